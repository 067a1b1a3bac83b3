// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package fasta reads (optionally indexed) FASTA reference files and extracts
// the subsequences covered by a set of intervals.  See
// http://www.htslib.org/doc/faidx.html.  Briefly, FASTA files consist of a
// number of named sequences that may be interrupted by newlines.  For example:
//
// >chr7
// ACGTAC
// GAGGAC
// GCG
// >chr8
// ACGT
//
// Sequence names are the stretch of characters immediately after '>' up to
// the first space; '>chr1 A viral sequence' names 'chr1'.
package fasta

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/pkg/errors"
)

// maxLineLen bounds a single FASTA line for the in-memory reader.
const maxLineLen = 300 << 20

// Fasta represents FASTA-formatted data, consisting of a set of named
// sequences.
type Fasta interface {
	// Get returns the bases of the named sequence in the 0-based half-open
	// interval [start, end).  Get is thread-safe.
	Get(seqName string, start, end uint64) (string, error)

	// Len returns the length of the named sequence.
	Len(seqName string) (uint64, error)

	// SeqNames returns the names of all sequences, in file order.
	SeqNames() []string
}

type fasta struct {
	seqs     map[string]string
	seqNames []string
}

func seqNameOf(header string) string {
	if sp := strings.IndexAny(header, " \t"); sp >= 0 {
		return header[:sp]
	}
	return header
}

// New reads all the FASTA data from r into memory.
func New(r io.Reader) (Fasta, error) {
	f := &fasta{seqs: make(map[string]string)}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(nil, maxLineLen)
	var (
		seqName string
		seq     strings.Builder
		started bool
	)
	flush := func() {
		if started {
			f.seqs[seqName] = seq.String()
			f.seqNames = append(f.seqNames, seqName)
			seq.Reset()
		}
	}
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if len(line) == 0 {
			continue
		}
		if line[0] == '>' {
			flush()
			seqName = seqNameOf(line[1:])
			started = true
			continue
		}
		if !started {
			return nil, errors.Errorf("malformed FASTA file: sequence data before the first '>' header")
		}
		seq.WriteString(line)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "couldn't read FASTA data")
	}
	flush()
	return f, nil
}

// Get implements Fasta.Get().
func (f *fasta) Get(seqName string, start, end uint64) (string, error) {
	s, ok := f.seqs[seqName]
	if !ok {
		return "", errors.Errorf("sequence not found: %s", seqName)
	}
	if end <= start {
		return "", errors.Errorf("start must be less than end")
	}
	if end > uint64(len(s)) {
		return "", errors.Errorf("invalid query range %d - %d for sequence %s with length %d",
			start, end, seqName, len(s))
	}
	return s[start:end], nil
}

// Len implements Fasta.Len().
func (f *fasta) Len(seqName string) (uint64, error) {
	s, ok := f.seqs[seqName]
	if !ok {
		return 0, errors.Errorf("sequence not found: %s", seqName)
	}
	return uint64(len(s)), nil
}

// SeqNames implements Fasta.SeqNames().
func (f *fasta) SeqNames() []string {
	return f.seqNames
}

// File is an indexed FASTA file opened for random access.
type File struct {
	Fasta
	in file.File
}

// Open opens the FASTA file at path for random access.  The index is read
// from path + ".fai"; if there is no index, one is generated and written
// there, which is what samtools and bedtools do too.
func Open(ctx context.Context, path string) (_ *File, err error) {
	idxPath := path + ".fai"
	if _, err := file.Stat(ctx, idxPath); err != nil {
		log.Debug.Printf("fasta: generating index %s", idxPath)
		if err := writeIndex(ctx, idxPath, path); err != nil {
			return nil, err
		}
	}
	idx, err := file.Open(ctx, idxPath)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := idx.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	fa, err := NewIndexed(in.Reader(ctx), idx.Reader(ctx))
	if err != nil {
		_ = in.Close(ctx)
		return nil, err
	}
	return &File{Fasta: fa, in: in}, nil
}

// Close releases the underlying file.
func (f *File) Close(ctx context.Context) error {
	return f.in.Close(ctx)
}

func writeIndex(ctx context.Context, idxPath, path string) (err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := in.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	out, err := file.Create(ctx, idxPath)
	if err != nil {
		return err
	}
	if err = GenerateIndex(out.Writer(ctx), in.Reader(ctx)); err != nil {
		out.Discard(ctx)
		return err
	}
	return out.Close(ctx)
}
