// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package source

import (
	"context"
	"sync"

	"github.com/grailbio/bedpipe/interval"
)

// OpenFunc starts the underlying sequence of a Generator.
type OpenFunc func(ctx context.Context) (Iterator, error)

// Generator is a one-shot lazy sequence of records with no backing storage.
// The first Open starts the sequence; later Opens return an empty iterator.
type Generator struct {
	desc string

	mu   sync.Mutex
	open OpenFunc
	used bool
}

// NewGenerator returns a Generator whose records come from the iterator that
// open returns.  open is called at most once, on the first Open.
func NewGenerator(desc string, open OpenFunc) *Generator {
	return &Generator{desc: desc, open: open}
}

// FromIterator returns a Generator over an existing iterator.  If the
// Generator is closed without being opened, it is closed too.
func FromIterator(desc string, it Iterator) *Generator {
	return NewGenerator(desc, func(context.Context) (Iterator, error) { return it, nil })
}

// FromRecords returns a Generator over recs.
func FromRecords(desc string, recs []*interval.Record) *Generator {
	return FromIterator(desc, NewSliceIterator(recs))
}

// Kind implements Source.
func (g *Generator) Kind() Kind { return KindGenerator }

// Restartable implements Source.
func (g *Generator) Restartable() bool { return false }

// String implements Source.
func (g *Generator) String() string { return "<generator " + g.desc + ">" }

// Consumed reports whether the generator has been opened.
func (g *Generator) Consumed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.used
}

// Open implements Source.
func (g *Generator) Open(ctx context.Context) (Iterator, error) {
	g.mu.Lock()
	if g.used {
		g.mu.Unlock()
		return Empty(), nil
	}
	g.used = true
	open := g.open
	g.open = nil
	g.mu.Unlock()
	return open(ctx)
}

// Close implements Source.  A generator that was never opened is started
// and its iterator closed immediately, which releases whatever it wraps.
func (g *Generator) Close() error {
	g.mu.Lock()
	if g.used {
		g.mu.Unlock()
		return nil
	}
	g.used = true
	open := g.open
	g.open = nil
	g.mu.Unlock()
	it, err := open(context.Background())
	if err != nil {
		return err
	}
	return it.Close()
}

// SliceIterator iterates over records held in memory.
type SliceIterator struct {
	recs []*interval.Record
	rec  *interval.Record
}

// NewSliceIterator returns an iterator over recs.
func NewSliceIterator(recs []*interval.Record) *SliceIterator {
	return &SliceIterator{recs: recs}
}

// Scan implements Iterator.
func (it *SliceIterator) Scan() bool {
	if len(it.recs) == 0 {
		it.rec = nil
		return false
	}
	it.rec, it.recs = it.recs[0], it.recs[1:]
	return true
}

// Record implements Iterator.
func (it *SliceIterator) Record() *interval.Record { return it.rec }

// Err implements Iterator.
func (it *SliceIterator) Err() error { return nil }

// Close implements Iterator.
func (it *SliceIterator) Close() error { return nil }

// Empty returns an iterator with no records.
func Empty() Iterator { return NewSliceIterator(nil) }

// TransformFunc maps one record.  It returns keep=false to drop the record.
type TransformFunc func(rec *interval.Record) (out *interval.Record, keep bool, err error)

// Transform returns an iterator that applies fn to every record of it,
// lazily.  Closing the result closes it.
func Transform(it Iterator, fn TransformFunc) Iterator {
	return &transformIterator{in: it, fn: fn}
}

type transformIterator struct {
	in  Iterator
	fn  TransformFunc
	rec *interval.Record
	err error
}

func (it *transformIterator) Scan() bool {
	if it.err != nil {
		return false
	}
	for it.in.Scan() {
		out, keep, err := it.fn(it.in.Record())
		if err != nil {
			it.err = err
			it.rec = nil
			return false
		}
		if keep {
			it.rec = out
			return true
		}
	}
	it.rec = nil
	return false
}

func (it *transformIterator) Record() *interval.Record { return it.rec }

func (it *transformIterator) Err() error {
	if it.err != nil {
		return it.err
	}
	return it.in.Err()
}

func (it *transformIterator) Close() error { return it.in.Close() }

// Concat returns an iterator over the records of each iterator in turn.
// Closing the result closes all of them.
func Concat(its ...Iterator) Iterator {
	return &concatIterator{its: its}
}

type concatIterator struct {
	its []Iterator
	cur int
}

func (it *concatIterator) Scan() bool {
	for it.cur < len(it.its) {
		if it.its[it.cur].Scan() {
			return true
		}
		if it.its[it.cur].Err() != nil {
			return false
		}
		it.cur++
	}
	return false
}

func (it *concatIterator) Record() *interval.Record {
	if it.cur < len(it.its) {
		return it.its[it.cur].Record()
	}
	return nil
}

func (it *concatIterator) Err() error {
	if it.cur < len(it.its) {
		return it.its[it.cur].Err()
	}
	return nil
}

func (it *concatIterator) Close() error {
	var err error
	for _, sub := range it.its {
		if cerr := sub.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
