// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package fasta

import (
	"bufio"
	"bytes"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/tsv"
)

// faiRecord is one line of a .fai index under construction.
type faiRecord struct {
	name string
	indexEntry
	// done is set once a line shorter than lineBase, or a blank line, ends
	// the sequence body.  Any further sequence line is an error.
	done bool
}

func (rec *faiRecord) addLine(raw, bases []byte) error {
	switch {
	case len(bases) == 0:
		rec.done = true
		return nil
	case rec.done:
		return errors.E(errors.Invalid, "fasta: sequence", rec.name, "has lines of differing length")
	case rec.lineWidth == 0:
		rec.lineBase, rec.lineWidth = uint64(len(bases)), uint64(len(raw))
	case uint64(len(bases)) > rec.lineBase:
		return errors.E(errors.Invalid, "fasta: sequence", rec.name, "has lines of differing length")
	case uint64(len(bases)) < rec.lineBase:
		rec.done = true
	}
	rec.length += uint64(len(bases))
	return nil
}

func (rec *faiRecord) write(w *tsv.Writer) error {
	w.WriteString(rec.name)
	w.WriteInt64(int64(rec.length))
	w.WriteInt64(int64(rec.offset))
	w.WriteInt64(int64(rec.lineBase))
	w.WriteInt64(int64(rec.lineWidth))
	return w.EndLine()
}

// GenerateIndex reads FASTA from in and writes its samtools faidx index
// (http://www.htslib.org/doc/faidx.html) to out.  Within a sequence every
// line but the last must hold the same number of bases, since the index
// addresses bases by line arithmetic.
func GenerateIndex(out io.Writer, in io.Reader) error {
	var (
		w   = tsv.NewWriter(out)
		r   = bufio.NewReader(in)
		cur *faiRecord
		off uint64
	)
	for {
		raw, rerr := r.ReadBytes('\n')
		if rerr != nil && rerr != io.EOF {
			return errors.E("fasta: generate index", rerr)
		}
		off += uint64(len(raw))
		line := bytes.TrimRight(raw, "\r\n")
		switch {
		case len(line) > 0 && line[0] == '>':
			if cur != nil {
				if err := cur.write(w); err != nil {
					return err
				}
			}
			cur = &faiRecord{name: seqNameOf(string(line[1:]))}
			cur.offset = off
		case cur != nil:
			if err := cur.addLine(raw, line); err != nil {
				return err
			}
		case len(line) > 0:
			return errors.E(errors.Invalid, "fasta: sequence data before the first header")
		}
		if rerr == io.EOF {
			break
		}
	}
	if cur == nil {
		return errors.E(errors.Invalid, "fasta: empty FASTA file")
	}
	if err := cur.write(w); err != nil {
		return err
	}
	return w.Flush()
}

// FaiToReferenceLengths reads a .fai index and returns the length of each
// sequence, without touching the FASTA data itself.
func FaiToReferenceLengths(index io.Reader) (map[string]uint64, error) {
	seqs, _, err := parseIndex(index)
	if err != nil {
		return nil, err
	}
	lengths := make(map[string]uint64, len(seqs))
	for name, ent := range seqs {
		lengths[name] = ent.length
	}
	return lengths, nil
}
