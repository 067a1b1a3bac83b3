// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package pipeline

import "github.com/grailbio/bedpipe/interval"

// Center returns an EachFunc that replaces each record by the width bases
// around its midpoint.  Starts that would be negative become 0.
func Center(width int64) EachFunc {
	return func(rec *interval.Record) (*interval.Record, error) {
		mid := rec.Start() + rec.Len()/2
		start := mid - width/2
		if start < 0 {
			start = 0
		}
		return rec.WithCoords(start, start+width)
	}
}

// Midpoint returns an EachFunc that replaces each record by its middle base.
func Midpoint() EachFunc { return Center(1) }

// Extend returns an EachFunc that grows each record by left bases before the
// start and right bases after the end, clamped to the chromosome bounds in g.
// Records on the '-' strand are grown the other way round.
func Extend(g interval.Genome, left, right int64) EachFunc {
	return func(rec *interval.Record) (*interval.Record, error) {
		l, r := left, right
		if rec.Strand() == interval.StrandMinus {
			l, r = r, l
		}
		start := rec.Start() - l
		if start < 0 {
			start = 0
		}
		out, err := rec.WithCoords(start, rec.End()+r)
		if err != nil {
			return nil, err
		}
		return g.Clamp(out)
	}
}

// LongerThan returns a Filter predicate that keeps records of more than n
// bases.
func LongerThan(n int64) func(*interval.Record) bool {
	return func(rec *interval.Record) bool { return rec.Len() > n }
}

// ShorterThan returns a Filter predicate that keeps records of fewer than n
// bases.
func ShorterThan(n int64) func(*interval.Record) bool {
	return func(rec *interval.Record) bool { return rec.Len() < n }
}
