//go:build ignore

// Generates a sample session for trying out the selfprof tool suite:
//
//	go run testdata/demo.go /tmp/demo
//	go run ./cmd/selfprof collapse /tmp/demo
package main

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/felixge/selfprof/pkg/profiler"
)

const (
	kindRequest = 1
	kindQuery   = 2
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) != 2 {
		return fmt.Errorf("usage: go run demo.go <stem>")
	}
	p, err := profiler.New(os.Args[1])
	if err != nil {
		return err
	}
	if err := p.AllocReservedString(kindRequest, "request"); err != nil {
		return err
	}
	if err := p.AllocReservedString(kindQuery, "query"); err != nil {
		return err
	}

	var wg sync.WaitGroup
	for thread := uint64(1); thread <= 4; thread++ {
		wg.Add(1)
		go func(thread uint64) {
			defer wg.Done()
			worker(p, thread)
		}(thread)
	}
	wg.Wait()
	return p.Close()
}

func worker(p *profiler.Profiler, thread uint64) {
	handler, err := p.AllocString(fmt.Sprintf("GET /users/%d", thread))
	if err != nil {
		return
	}
	query, err := p.AllocString("SELECT * FROM users WHERE id = ?")
	if err != nil {
		return
	}
	for i := 0; i < 5; i++ {
		request, err := p.StartIntervalEvent(kindRequest, handler, thread)
		if err != nil {
			return
		}
		db, err := p.StartIntervalEvent(kindQuery, query, thread)
		if err != nil {
			return
		}
		time.Sleep(2 * time.Millisecond)
		db.Stop()
		time.Sleep(time.Millisecond)
		request.Stop()
	}
}
