// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package interval

import (
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
)

const (
	bed12NumFields    = 12
	bedBlockCountCol  = 9
	bedBlockSizesCol  = 10
	bedBlockStartsCol = 11
)

// Blocks returns the blocks (exons) of a BED12 record in absolute
// coordinates, in the order listed.  Block starts are relative to the
// record start, and the trailing comma of the size and start lists is
// optional.  The blocks must lie inside the record and must not overlap.
func (r *Record) Blocks() ([]Region, error) {
	if r.format != BED || len(r.fields) < bed12NumFields {
		return nil, errors.E(errors.Invalid, "not a BED12 record:", r.String())
	}
	invalid := func(reason string) error {
		return errors.E(errors.Invalid, "BED12 record", r.String()+":", reason)
	}
	count, err := strconv.Atoi(r.fields[bedBlockCountCol])
	if err != nil || count < 0 {
		return nil, invalid("bad block count")
	}
	sizes, err := parseBlockList(r.fields[bedBlockSizesCol], count)
	if err != nil {
		return nil, invalid("block sizes: " + err.Error())
	}
	starts, err := parseBlockList(r.fields[bedBlockStartsCol], count)
	if err != nil {
		return nil, invalid("block starts: " + err.Error())
	}
	blocks := make([]Region, count)
	for i := range blocks {
		b := Region{Chrom: r.chrom, Start: r.start + starts[i], End: r.start + starts[i] + sizes[i]}
		if b.End > r.end {
			return nil, invalid("block extends past the record end")
		}
		if i > 0 && b.Start < blocks[i-1].End {
			return nil, invalid("blocks overlap or are out of order")
		}
		blocks[i] = b
	}
	return blocks, nil
}

func parseBlockList(s string, n int) ([]int64, error) {
	parts := strings.Split(strings.TrimSuffix(s, ","), ",")
	if n == 0 && len(parts) == 1 && parts[0] == "" {
		return nil, nil
	}
	if len(parts) != n {
		return nil, errors.E("expected", strconv.Itoa(n), "values, found", strconv.Itoa(len(parts)))
	}
	vals := make([]int64, n)
	for i, p := range parts {
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil || v < 0 {
			return nil, errors.E("bad value", strconv.Quote(p))
		}
		vals[i] = v
	}
	return vals, nil
}
