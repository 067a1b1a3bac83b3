// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package interval

import (
	"sort"
)

// Union is the union of a set of intervals, for fast overlap queries.
//
// Each chromosome's union is stored as a sorted sequence of endpoints: the
// k-th disjoint interval is [ends[2k], ends[2k+1]).  For example, the
// intervals [5, 15), [7, 17) and [20, 25) are stored as {5, 17, 20, 25}.  A
// position p is covered iff the number of endpoints <= p is odd.
type Union struct {
	ends map[string][]int64
}

// NewUnion builds the union of the given records, in any order.  Touching and
// overlapping intervals are merged; empty ones are dropped.
func NewUnion(recs []*Record) *Union {
	byChrom := make(map[string][]Region)
	for _, rec := range recs {
		if rec.Len() > 0 {
			byChrom[rec.Chrom()] = append(byChrom[rec.Chrom()], rec.Region())
		}
	}
	u := &Union{ends: make(map[string][]int64, len(byChrom))}
	for chrom, regions := range byChrom {
		sort.Slice(regions, func(i, j int) bool { return regions[i].Start < regions[j].Start })
		ends := make([]int64, 0, 2*len(regions))
		for _, r := range regions {
			if n := len(ends); n > 0 && r.Start <= ends[n-1] {
				if r.End > ends[n-1] {
					ends[n-1] = r.End
				}
				continue
			}
			ends = append(ends, r.Start, r.End)
		}
		u.ends[chrom] = ends
	}
	return u
}

// search returns the number of endpoints <= pos.
func search(ends []int64, pos int64) int {
	return sort.Search(len(ends), func(i int) bool { return ends[i] > pos })
}

// Contains reports whether base pos of chrom is covered.
func (u *Union) Contains(chrom string, pos int64) bool {
	return search(u.ends[chrom], pos)&1 == 1
}

// Intersects reports whether [start, end) on chrom shares at least one base
// with the union.
func (u *Union) Intersects(chrom string, start, end int64) bool {
	if end <= start {
		return false
	}
	ends := u.ends[chrom]
	idx := search(ends, start)
	if idx&1 == 1 {
		return true
	}
	// start is in a gap; the next interval, if any, begins at ends[idx].
	return idx < len(ends) && ends[idx] < end
}

// Overlaps reports whether rec shares at least one base with the union.
func (u *Union) Overlaps(rec *Record) bool {
	return u.Intersects(rec.Chrom(), rec.Start(), rec.End())
}

// Regions returns the disjoint intervals of the union, sorted by chromosome
// name, then position.
func (u *Union) Regions() []Region {
	chroms := make([]string, 0, len(u.ends))
	for chrom := range u.ends {
		chroms = append(chroms, chrom)
	}
	sort.Strings(chroms)
	var out []Region
	for _, chrom := range chroms {
		ends := u.ends[chrom]
		for i := 0; i < len(ends); i += 2 {
			out = append(out, Region{Chrom: chrom, Start: ends[i], End: ends[i+1]})
		}
	}
	return out
}

// Len returns the number of bases covered.
func (u *Union) Len() int64 {
	var n int64
	for _, ends := range u.ends {
		for i := 0; i < len(ends); i += 2 {
			n += ends[i+1] - ends[i]
		}
	}
	return n
}
