// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package interval

import (
	"context"
	"io"
	"path/filepath"
	"sort"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/bedpipe/encoding/fasta"
)

// ChromSize is the extent of one chromosome.  Start is always 0.
type ChromSize struct {
	Start int64
	End   int64
}

// Genome maps chromosome name to its extent.  Operations that grow intervals
// consult it to keep coordinates within chromosome bounds.
type Genome map[string]ChromSize

// NewGenome builds a Genome from chromosome lengths.
func NewGenome(lengths map[string]int64) Genome {
	g := make(Genome, len(lengths))
	for name, n := range lengths {
		g[name] = ChromSize{End: n}
	}
	return g
}

// Len returns the length of chrom.
func (g Genome) Len(chrom string) (int64, bool) {
	cs, ok := g[chrom]
	return cs.End, ok
}

// Names returns the chromosome names in lexical order.
func (g Genome) Names() []string {
	names := make([]string, 0, len(g))
	for name := range g {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clamp returns rec with its coordinates clamped to [0, length of its
// chromosome].  The start is clamped first, then the end is clamped to
// [start, length], so a record lying entirely past the chromosome end becomes
// an empty record at the chromosome end.  Records already in bounds are
// returned as is.
func (g Genome) Clamp(rec *Record) (*Record, error) {
	length, ok := g.Len(rec.Chrom())
	if !ok {
		return nil, errors.E(errors.NotExist, "chromosome", rec.Chrom(), "is not in the genome table")
	}
	start, end := rec.Start(), rec.End()
	if start > length {
		start = length
	}
	if end > length {
		end = length
	}
	if end < start {
		end = start
	}
	if start == rec.Start() && end == rec.End() {
		return rec, nil
	}
	return rec.WithCoords(start, end)
}

// Write writes the table as "name\tlength" lines, sorted by name.
func (g Genome) Write(w io.Writer) error {
	out := tsv.NewWriter(w)
	for _, name := range g.Names() {
		out.WriteString(name)
		out.WriteInt64(g[name].End)
		if err := out.EndLine(); err != nil {
			return err
		}
	}
	return out.Flush()
}

// WriteFile writes the table to path in the format of Write.
func (g Genome) WriteFile(ctx context.Context, path string) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return g.Write(out.Writer(ctx))
}

type genomeRow struct {
	Chrom  string
	Length int64
}

// ReadGenome reads a two-column "name\tlength" table.
func ReadGenome(r io.Reader) (Genome, error) {
	in := tsv.NewReader(r)
	in.Comment = '#'
	g := make(Genome)
	for {
		var row genomeRow
		if err := in.Read(&row); err != nil {
			if err == io.EOF {
				break
			}
			return nil, errors.E(errors.Invalid, "read genome table", err)
		}
		if row.Length < 0 {
			return nil, errors.E(errors.Invalid, "negative length for chromosome", row.Chrom)
		}
		g[row.Chrom] = ChromSize{End: row.Length}
	}
	return g, nil
}

// ReadGenomeFile reads a genome table from path.
func ReadGenomeFile(ctx context.Context, path string) (g Genome, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E("genome file", path, err)
	}
	defer func() {
		if cerr := in.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return ReadGenome(in.Reader(ctx))
}

// GenomeFromFai builds a Genome from a FASTA index (.fai).
func GenomeFromFai(index io.Reader) (Genome, error) {
	lengths, err := fasta.FaiToReferenceLengths(index)
	if err != nil {
		return nil, err
	}
	g := make(Genome, len(lengths))
	for name, n := range lengths {
		g[name] = ChromSize{End: int64(n)}
	}
	return g, nil
}

// GenomeResolver looks up genome-size tables by assembly name, e.g. "hg19".
type GenomeResolver interface {
	Genome(ctx context.Context, name string) (Genome, error)
}

// StaticGenomes is a GenomeResolver over tables held in memory.
type StaticGenomes map[string]Genome

// Genome implements GenomeResolver.
func (s StaticGenomes) Genome(_ context.Context, name string) (Genome, error) {
	g, ok := s[name]
	if !ok {
		return nil, errors.E(errors.NotExist, "unknown genome", name)
	}
	return g, nil
}

// DirResolver resolves a name to the table stored in <Dir>/<name>.genome.
type DirResolver struct {
	Dir string
}

// Genome implements GenomeResolver.
func (d DirResolver) Genome(ctx context.Context, name string) (Genome, error) {
	return ReadGenomeFile(ctx, filepath.Join(d.Dir, name+".genome"))
}

// Resolvers tries each resolver in turn and returns the first table found.
type Resolvers []GenomeResolver

// Genome implements GenomeResolver.
func (rs Resolvers) Genome(ctx context.Context, name string) (Genome, error) {
	var lastErr error = errors.E(errors.NotExist, "unknown genome", name)
	for _, r := range rs {
		g, err := r.Genome(ctx, name)
		if err == nil {
			return g, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
