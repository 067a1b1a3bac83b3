// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package source

import (
	"context"
	"io"
	"runtime"
	"sync"

	"github.com/grailbio/base/errorreporter"
	"github.com/grailbio/base/log"
	"github.com/grailbio/bedpipe/interval"
)

// Process is the child process behind a Pipe.
type Process interface {
	// Wait blocks until the process exits and returns a non-nil error if it
	// did not exit cleanly.
	Wait() error
	// Kill terminates the process.  Wait must still be called to reap it.
	Kill() error
}

// Pipe is a source backed by the standard output of a running child process.
// It can be read once.  The child is reaped, and its exit status checked,
// when the output is drained; closing the Pipe before that kills the child.
// A Pipe that becomes unreachable without being closed is closed by a
// finalizer.
type Pipe struct {
	desc string

	mu     sync.Mutex
	r      io.ReadCloser
	proc   Process
	opened bool
	done   bool
	err    errorreporter.T
}

// NewPipe returns a Pipe that reads records from r, the standard output of
// proc.  desc names the command for error messages.
func NewPipe(desc string, r io.ReadCloser, proc Process) *Pipe {
	p := &Pipe{desc: desc, r: r, proc: proc}
	runtime.SetFinalizer(p, func(p *Pipe) {
		if err := p.Close(); err != nil {
			log.Error.Printf("source: close abandoned pipe %s: %v", p.desc, err)
		}
	})
	return p
}

// Kind implements Source.
func (p *Pipe) Kind() Kind { return KindPipe }

// Restartable implements Source.
func (p *Pipe) Restartable() bool { return false }

// String implements Source.
func (p *Pipe) String() string { return "<pipe " + p.desc + ">" }

// Done reports whether the child has been reaped.
func (p *Pipe) Done() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// Open implements Source.
func (p *Pipe) Open(context.Context) (Iterator, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.opened || p.done {
		return Empty(), nil
	}
	p.opened = true
	return &pipeIterator{p: p, sc: interval.NewScanner(p.r)}, nil
}

// finish reaps a child whose output has been drained.
func (p *Pipe) finish() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return p.err.Err()
	}
	p.done = true
	runtime.SetFinalizer(p, nil)
	if err := p.r.Close(); err != nil {
		log.Debug.Printf("source: close %s: %v", p.desc, err)
	}
	p.err.Set(p.proc.Wait())
	return p.err.Err()
}

// Close implements Source.  If the output has not been drained, the child is
// killed and reaped; its exit status is then not an error.
func (p *Pipe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return nil
	}
	p.done = true
	runtime.SetFinalizer(p, nil)
	log.Debug.Printf("source: killing %s", p.desc)
	if err := p.proc.Kill(); err != nil {
		log.Debug.Printf("source: kill %s: %v", p.desc, err)
	}
	if err := p.r.Close(); err != nil {
		log.Debug.Printf("source: close %s: %v", p.desc, err)
	}
	if err := p.proc.Wait(); err != nil {
		log.Debug.Printf("source: %s exited after kill: %v", p.desc, err)
	}
	return nil
}

type pipeIterator struct {
	p   *Pipe
	sc  *interval.Scanner
	err error
	eof bool
}

func (it *pipeIterator) Scan() bool {
	if it.eof {
		return false
	}
	if it.sc.Scan() {
		return true
	}
	it.eof = true
	if it.err = it.sc.Err(); it.err != nil {
		_ = it.p.Close()
		return false
	}
	it.err = it.p.finish()
	return false
}

func (it *pipeIterator) Record() *interval.Record { return it.sc.Record() }
func (it *pipeIterator) Err() error               { return it.err }
func (it *pipeIterator) Close() error             { return it.p.Close() }
