// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package fasta

import (
	"bufio"
	"fmt"
	"io"

	"github.com/grailbio/base/errorreporter"
)

// Region is one interval to extract, in 0-based half-open coordinates.
// Strand is '+', '-', or 0 for none.
type Region struct {
	Chrom  string
	Start  uint64
	End    uint64
	Strand byte
}

// Key returns the FASTA header of the extracted region: "chrom:start-end",
// followed by "(strand)" when stranded is set.
func (r Region) Key(stranded bool) string {
	key := fmt.Sprintf("%s:%d-%d", r.Chrom, r.Start, r.End)
	if stranded {
		strand := r.Strand
		if strand != '-' {
			strand = '+'
		}
		key += "(" + string(strand) + ")"
	}
	return key
}

// ExtractOpts controls Extractor.
type ExtractOpts struct {
	// Stranded reverse-complements regions on the '-' strand and appends the
	// strand to each header.  Regions without a strand are treated as '+'.
	Stranded bool
}

// Extractor writes the subsequence of each added region as a FASTA entry.
// The first error encountered is sticky; later calls are no-ops.
type Extractor struct {
	fa   Fasta
	opts ExtractOpts
	w    *bufio.Writer
	err  errorreporter.T
}

// NewExtractor creates an Extractor that reads bases from fa and writes to w.
func NewExtractor(w io.Writer, fa Fasta, opts ExtractOpts) *Extractor {
	return &Extractor{fa: fa, opts: opts, w: bufio.NewWriter(w)}
}

// Add extracts one region.
func (e *Extractor) Add(r Region) {
	if e.err.Err() != nil {
		return
	}
	var seq string
	if r.End > r.Start {
		s, err := e.fa.Get(r.Chrom, r.Start, r.End)
		if err != nil {
			e.err.Set(fmt.Errorf("extract %s: %v", r.Key(false), err))
			return
		}
		seq = s
	}
	if e.opts.Stranded && r.Strand == '-' {
		seq = ReverseComplement(seq)
	}
	e.w.WriteByte('>')
	e.w.WriteString(r.Key(e.opts.Stranded))
	e.w.WriteByte('\n')
	e.w.WriteString(seq)
	if err := e.w.WriteByte('\n'); err != nil {
		e.err.Set(err)
	}
}

// Close flushes the output and returns the first error encountered.
func (e *Extractor) Close() error {
	if e.err.Err() == nil {
		e.err.Set(e.w.Flush())
	}
	return e.err.Err()
}

var revCompTable [256]byte

func init() {
	for i := range revCompTable {
		revCompTable[i] = 'N'
	}
	for _, p := range []string{"AT", "CG", "GC", "TA", "NN", "at", "cg", "gc", "ta", "nn"} {
		revCompTable[p[0]] = p[1]
	}
}

// ReverseComplement returns the reverse complement of an ASCII base sequence.
// Case is preserved; anything other than ACGTN (either case) maps to 'N'.
func ReverseComplement(seq string) string {
	n := len(seq)
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[n-1-i] = revCompTable[seq[i]]
	}
	return string(out)
}
