// Package anonymize rewrites a session so it can be shared without leaking
// what was being measured. Labels are obfuscated while string ids, event
// records and timing survive unchanged, so every analysis tool keeps
// working on the scrubbed copy.
package anonymize

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/tools/go/packages"

	"github.com/felixge/selfprof/pkg/format"
	"github.com/felixge/selfprof/pkg/profdata"
	"github.com/felixge/selfprof/pkg/sink"
	"github.com/felixge/selfprof/pkg/stringtable"
)

// StdlibPackages returns the import paths of the Go standard library.
// Label keeps references to these packages readable.
func StdlibPackages() ([]string, error) {
	pkgs, err := packages.Load(nil, "std")
	if err != nil {
		return nil, fmt.Errorf("anonymize: load stdlib packages: %w", err)
	}
	var paths []string
	for _, pkg := range pkgs {
		paths = append(paths, pkg.PkgPath)
	}
	return paths, nil
}

// wellKnownLabels are labels emitted by the runtime trace ingester. They
// carry no user data and stay readable in anonymized sessions.
var wellKnownLabels = map[string]bool{
	"gc":             true,
	"cycle":          true,
	"stop-the-world": true,
}

// Session writes an obfuscated copy of the session at inStem to the triple
// derived from outStem. Dynamic labels and the recorded command line are
// obfuscated with Label, everything else is copied verbatim. On success the
// copy opens and resolves like the original, under the same string ids.
func Session(inStem, outStem string, pkgs []string) error {
	in, err := profdata.Open(inStem)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := copyStrings(in, outStem, pkgs); err != nil {
		return err
	}
	return copyEvents(inStem, outStem)
}

// copyStrings replays the string table in id order so every label keeps its
// id in the copy.
func copyStrings(in *profdata.Data, outStem string, pkgs []string) error {
	data, err := sink.NewFile(format.StringDataPath(outStem))
	if err != nil {
		return err
	}
	index, err := sink.NewFile(format.StringIndexPath(outStem))
	if err != nil {
		data.Close()
		return err
	}
	table, err := stringtable.NewWriter(data, index)
	if err != nil {
		data.Close()
		index.Close()
		return err
	}

	err = in.Strings(func(id format.StringID, s string) error {
		switch {
		case id == format.MetadataStringID:
			scrubbed, err := scrubMetadata(s, pkgs)
			if err != nil {
				return err
			}
			return table.AllocMetadata(scrubbed)
		case id < format.FirstDynamicStringID:
			return table.AllocReservedID(id, anonymizeLabel(s, pkgs))
		default:
			got, err := table.Alloc(anonymizeLabel(s, pkgs))
			if err != nil {
				return err
			}
			if got != id {
				return fmt.Errorf("anonymize: string id %d moved to %d", id, got)
			}
			return nil
		}
	})
	if cerr := table.Close(); err == nil {
		err = cerr
	}
	return err
}

// copyEvents relays the event stream. Events reference labels by id and ids
// survive the rewrite, so records pass through verbatim.
func copyEvents(inStem, outStem string) error {
	in, err := os.Open(format.EventsPath(inStem))
	if err != nil {
		return fmt.Errorf("anonymize: %w", err)
	}
	defer in.Close()

	r := bufio.NewReader(in)
	header := make([]byte, format.MagicLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("anonymize: events file: %w", format.ErrBadMagic)
	}
	if err := format.CheckMagic(header, format.EventStreamMagic); err != nil {
		return fmt.Errorf("anonymize: events file: %w", err)
	}

	out, err := sink.NewFile(format.EventsPath(outStem))
	if err != nil {
		return err
	}
	if _, err := out.WriteAtomic(format.MagicLen, func(b []byte) {
		copy(b, format.EventStreamMagic)
	}); err != nil {
		out.Close()
		return fmt.Errorf("anonymize: write events header: %w", err)
	}

	var buf [format.RawEventSize]byte
	for {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			if err == io.EOF {
				break
			}
			out.Close()
			return fmt.Errorf("anonymize: read event: %w", err)
		}
		if _, err := out.WriteAtomic(format.RawEventSize, func(b []byte) {
			copy(b, buf[:])
		}); err != nil {
			out.Close()
			return err
		}
	}
	return out.Close()
}

// scrubMetadata obfuscates the recorded command line field by field. Start
// time and pid are kept, the event timestamps reveal them anyway.
func scrubMetadata(payload string, pkgs []string) (string, error) {
	var meta format.Metadata
	if err := json.Unmarshal([]byte(payload), &meta); err != nil {
		return "", fmt.Errorf("anonymize: parse metadata: %w", err)
	}
	fields := strings.Fields(meta.Cmd)
	for i, f := range fields {
		fields[i] = anonymizeLabel(f, pkgs)
	}
	meta.Cmd = strings.Join(fields, " ")
	out, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("anonymize: encode metadata: %w", err)
	}
	return string(out), nil
}

func anonymizeLabel(s string, pkgs []string) string {
	b := []byte(s)
	Label(b, pkgs)
	return string(b)
}

// Label takes a label s that may contain a pkg.func or a file path and
// obfuscates it in place. The obfuscation is done by replacing all upper
// and lower case letters with "X" and "x" respectively. Additionally it
// keeps any ".go" suffix of s intact. Labels naming a package in pkgs are
// left alone, and for file paths ending in such a package only the prefix
// of the path is obfuscated.
func Label(s []byte, pkgs []string) {
	if len(s) == 0 {
		return
	}

	if wellKnownLabels[string(s)] {
		return
	}

	if s[0] != '/' {
		// s is probably a pkg.func
		pkg, _, found := bytes.Cut(s, []byte("."))
		if !found {
			obfuscate(s)
			return
		}
		for _, stdlibPkg := range pkgs {
			if bytes.Equal(pkg, []byte(stdlibPkg)) {
				return
			}
		}
		obfuscate(s)
		return
	}

	// s is probably a file path
	var longest struct {
		length int
		prefix []byte
		suffix []byte
	}
	for _, pkg := range pkgs {
		sep := append([]byte("src/"), []byte(pkg)...)
		prefix, suffix, found := bytes.Cut(s, sep)
		if found && len(pkg) > longest.length && len(suffix) > 1 && !bytes.Contains(suffix[1:], []byte("/")) {
			longest.length = len(pkg)
			longest.prefix = prefix
			longest.suffix = suffix
		}
	}
	if longest.length == 0 {
		obfuscate(s)
	} else {
		obfuscate(longest.prefix)
	}
}

// obfuscate replaces all upper and lower case letters with "X" and "x"
// respectively. Additionally it keeps any ".go" suffix of b intact.
func obfuscate(b []byte) {
	// Keep ".go" suffix intact
	if bytes.HasSuffix(b, []byte(".go")) {
		b = b[:len(b)-3]
	}

	for i := 0; i < len(b); {
		r, size := utf8.DecodeRune(b[i:])
		if unicode.IsUpper(r) {
			for j := 0; j < size; j++ {
				b[i+j] = 'X'
			}
		} else if unicode.IsLower(r) {
			for j := 0; j < size; j++ {
				b[i+j] = 'x'
			}
		}
		i += size
	}
}
