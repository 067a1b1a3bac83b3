// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package pipeline

import (
	"context"
	"math/rand"
	"sort"
	"strconv"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/bedpipe/interval"
	"github.com/grailbio/bedpipe/source"
)

// EachFunc transforms one record.  Returning a nil record drops it.
type EachFunc func(rec *interval.Record) (*interval.Record, error)

// lazy returns a one-shot Handle whose records are h's, passed through fn
// when the Handle is first read.
func (h *Handle) lazy(op string, params []string, fn source.TransformFunc) *Handle {
	src := source.NewGenerator(op, func(ctx context.Context) (source.Iterator, error) {
		it, err := h.Iter(ctx)
		if err != nil {
			return nil, err
		}
		return source.Transform(it, fn), nil
	})
	return h.derive(op, params, src)
}

// Filter returns the records for which keep returns true.  It is lazy: h is
// read only when the result is.
func (h *Handle) Filter(keep func(rec *interval.Record) bool) *Handle {
	return h.lazy("filter", nil, func(rec *interval.Record) (*interval.Record, bool, error) {
		return rec, keep(rec), nil
	})
}

// Within returns, lazily, the records of h that overlap at least one record
// of targets.  targets is read in full when Within is called.
func (h *Handle) Within(ctx context.Context, targets *Handle) (*Handle, error) {
	recs, err := targets.Records(ctx)
	if err != nil {
		return nil, err
	}
	u := interval.NewUnion(recs)
	src := source.NewGenerator("within", func(ctx context.Context) (source.Iterator, error) {
		it, err := h.Iter(ctx)
		if err != nil {
			return nil, err
		}
		return source.Transform(it, func(rec *interval.Record) (*interval.Record, bool, error) {
			return rec, u.Overlaps(rec), nil
		}), nil
	})
	return h.derive("within", nil, src, targets.id), nil
}

// Introns returns, lazily, the gaps between consecutive blocks of every
// BED12 record of h.  Each gap is a BED6 record carrying the name, score and
// strand of its transcript.  Adjacent blocks leave no gap.  Reading a record
// that is not valid BED12 fails with errors.Invalid.
func (h *Handle) Introns() *Handle {
	src := source.NewGenerator("introns", func(ctx context.Context) (source.Iterator, error) {
		it, err := h.Iter(ctx)
		if err != nil {
			return nil, err
		}
		return &intronIterator{in: it}, nil
	})
	return h.derive("introns", nil, src)
}

type intronIterator struct {
	in      source.Iterator
	pending []*interval.Record
	rec     *interval.Record
	err     error
}

func (it *intronIterator) Scan() bool {
	for len(it.pending) == 0 {
		if it.err != nil || !it.in.Scan() {
			it.rec = nil
			return false
		}
		it.pending, it.err = introns(it.in.Record())
	}
	it.rec, it.pending = it.pending[0], it.pending[1:]
	return true
}

func (it *intronIterator) Record() *interval.Record { return it.rec }

func (it *intronIterator) Err() error {
	if it.err != nil {
		return it.err
	}
	return it.in.Err()
}

func (it *intronIterator) Close() error { return it.in.Close() }

func introns(rec *interval.Record) ([]*interval.Record, error) {
	blocks, err := rec.Blocks()
	if err != nil {
		return nil, err
	}
	var out []*interval.Record
	for i := 1; i < len(blocks); i++ {
		start, end := blocks[i-1].End, blocks[i].Start
		if start == end {
			continue
		}
		fields := rec.Fields()[:6]
		fields[1] = strconv.FormatInt(start, 10)
		fields[2] = strconv.FormatInt(end, 10)
		r, err := interval.NewRecord(fields)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Each applies fn to every record, lazily.
func (h *Handle) Each(fn EachFunc) *Handle {
	return h.lazy("each", nil, func(rec *interval.Record) (*interval.Record, bool, error) {
		out, err := fn(rec)
		return out, out != nil, err
	})
}

// Cut keeps the given 0-based columns, in the given order.  The result must
// still be a valid interval record, so the first three columns selected must
// be chromosome, start and end.
func (h *Handle) Cut(cols ...int) *Handle {
	params := make([]string, len(cols))
	for i, c := range cols {
		params[i] = strconv.Itoa(c)
	}
	return h.lazy("cut", params, func(rec *interval.Record) (*interval.Record, bool, error) {
		fields := make([]string, len(cols))
		for i, c := range cols {
			if c < 0 || c >= rec.NumFields() {
				return nil, false, errors.E(errors.Invalid, "cut: column", strconv.Itoa(c), "out of range for", rec.String())
			}
			fields[i] = rec.Field(c)
		}
		out, err := interval.NewRecord(fields)
		return out, err == nil, err
	})
}

// RandomSubset returns n records chosen uniformly at random, in their
// original order.  It reads h in full.  The same seed yields the same subset.
func (h *Handle) RandomSubset(ctx context.Context, n int, seed int64) (*Handle, error) {
	if n < 0 {
		return nil, errors.E(errors.Invalid, "random subset size must be non-negative")
	}
	it, err := h.Iter(ctx)
	if err != nil {
		return nil, err
	}
	// Reservoir sampling, keeping the input position of each pick.
	type pick struct {
		pos int
		rec *interval.Record
	}
	var (
		rnd       = rand.New(rand.NewSource(seed))
		reservoir []pick
		pos       int
	)
	for ; it.Scan(); pos++ {
		if len(reservoir) < n {
			reservoir = append(reservoir, pick{pos, it.Record()})
		} else if j := rnd.Intn(pos + 1); j < n {
			reservoir[j] = pick{pos, it.Record()}
		}
	}
	err = it.Err()
	if cerr := it.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return nil, err
	}
	sort.Slice(reservoir, func(i, j int) bool { return reservoir[i].pos < reservoir[j].pos })
	recs := make([]*interval.Record, len(reservoir))
	for i, p := range reservoir {
		recs[i] = p.rec
	}
	params := []string{strconv.Itoa(n), strconv.FormatInt(seed, 10)}
	return h.derive("random_subset", params, source.FromRecords("random_subset", recs)), nil
}

// Cat concatenates h and others.  With postmerge, the result is sorted and
// merged by bedtools, which leaves only chromosome, start and end.
func (h *Handle) Cat(ctx context.Context, others []*Handle, postmerge bool) (*Handle, error) {
	all := append([]*Handle{h}, others...)
	src := source.NewGenerator("cat", func(ctx context.Context) (source.Iterator, error) {
		its := make([]source.Iterator, 0, len(all))
		for _, x := range all {
			it, err := x.Iter(ctx)
			if err != nil {
				for _, open := range its {
					_ = open.Close()
				}
				return nil, err
			}
			its = append(its, it)
		}
		return source.Concat(its...), nil
	})
	parents := make([]NodeID, len(others))
	for i, o := range others {
		parents[i] = o.id
	}
	cat := h.derive("cat", nil, src, parents...)
	if !postmerge {
		return cat, nil
	}
	sorted, err := cat.Sort(ctx)
	if err != nil {
		return nil, err
	}
	return sorted.Merge(ctx)
}
