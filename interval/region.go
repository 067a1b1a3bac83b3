// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package interval

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MaxPos is the End of a region string that names a whole chromosome.
const MaxPos = math.MaxInt64

// Region is a single interval with 0-based half-open coordinates.
type Region struct {
	Chrom string
	Start int64
	End   int64
}

// String returns "chrom:start-end" with the region's 0-based coordinates.
// This is the key format of extracted sequences.
func (r Region) String() string {
	return fmt.Sprintf("%s:%d-%d", r.Chrom, r.Start, r.End)
}

// Overlaps reports whether rec shares at least one base with r.  An empty
// record overlaps r if it sits strictly inside it.
func (r Region) Overlaps(rec *Record) bool {
	if rec.Chrom() != r.Chrom {
		return false
	}
	if rec.Len() == 0 {
		return rec.Start() > r.Start && rec.Start() < r.End
	}
	return rec.Start() < r.End && rec.End() > r.Start
}

// ParseRegion parses a region string of one of the forms
//   [chrom]:[1-based first pos]-[last pos]
//   [chrom]:[1-based pos]
//   [chrom]
// returning 0-based half-open boundaries.  The interval [0, MaxPos) is
// returned if there is no positional restriction.
func ParseRegion(region string) (result Region, err error) {
	if len(region) == 0 {
		err = fmt.Errorf("interval.ParseRegion: empty region string")
		return
	}
	colonPos := strings.LastIndexByte(region, ':')
	if colonPos == -1 {
		result.Chrom = region
		result.End = MaxPos
		return
	}
	if colonPos == 0 {
		err = fmt.Errorf("interval.ParseRegion: empty chromosome in %q", region)
		return
	}
	result.Chrom = region[:colonPos]
	rangeStr := strings.Replace(region[colonPos+1:], ",", "", -1)
	dashPos := strings.IndexByte(rangeStr, '-')
	if dashPos == -1 {
		var pos1 int64
		if pos1, err = strconv.ParseInt(rangeStr, 10, 64); err != nil {
			return
		}
		if pos1 <= 0 {
			err = fmt.Errorf("interval.ParseRegion: position %v in region string out of range", rangeStr)
			return
		}
		result.Start = pos1 - 1
		result.End = pos1
		return
	}
	var start1, end int64
	if start1, err = strconv.ParseInt(rangeStr[:dashPos], 10, 64); err != nil {
		return
	}
	if start1 <= 0 {
		err = fmt.Errorf("interval.ParseRegion: position %v in region string out of range", rangeStr[:dashPos])
		return
	}
	if end, err = strconv.ParseInt(rangeStr[dashPos+1:], 10, 64); err != nil {
		return
	}
	if end < start1 {
		err = fmt.Errorf("interval.ParseRegion: invalid range string %v", rangeStr)
		return
	}
	result.Start = start1 - 1
	result.End = end
	return
}
