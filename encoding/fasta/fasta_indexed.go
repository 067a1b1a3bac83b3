// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package fasta

import (
	"bufio"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// indexEntry is one line of a .fai file.
type indexEntry struct {
	length    uint64 // bases in the sequence
	offset    uint64 // byte offset of the first base
	lineBase  uint64 // bases per line
	lineWidth uint64 // bytes per line, including the terminator
}

type indexedFasta struct {
	seqs     map[string]indexEntry
	seqNames []string // in file-offset order

	mu        sync.Mutex
	reader    io.ReadSeeker
	bufOff    int64
	buf       []byte // caches file contents starting at bufOff
	resultBuf []byte // scratch for joining multi-line sequences
}

// parseIndex reads a .fai: one "<name>\t<length>\t<offset>\t<bases per
// line>\t<bytes per line>" line per sequence.
func parseIndex(index io.Reader) (map[string]indexEntry, []string, error) {
	seqs := make(map[string]indexEntry)
	var names []string
	scanner := bufio.NewScanner(index)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		cols := strings.Split(line, "\t")
		if len(cols) != 5 {
			return nil, nil, errors.Errorf("invalid index line: %s", line)
		}
		var (
			ent  indexEntry
			vals [4]uint64
		)
		for i := range vals {
			v, err := strconv.ParseUint(cols[i+1], 10, 64)
			if err != nil {
				return nil, nil, errors.Errorf("invalid index line: %s", line)
			}
			vals[i] = v
		}
		ent.length, ent.offset, ent.lineBase, ent.lineWidth = vals[0], vals[1], vals[2], vals[3]
		if ent.length > 0 && (ent.lineBase == 0 || ent.lineWidth < ent.lineBase) {
			return nil, nil, errors.Errorf("invalid line geometry in index line: %s", line)
		}
		seqs[cols[0]] = ent
		names = append(names, cols[0])
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, errors.Wrap(err, "couldn't read FASTA index")
	}
	sort.SliceStable(names, func(i, j int) bool {
		return seqs[names[i]].offset < seqs[names[j]].offset
	})
	return seqs, names, nil
}

// NewIndexed creates a Fasta that performs random lookups through the given
// index without reading the sequence data into memory.
func NewIndexed(fasta io.ReadSeeker, index io.Reader) (Fasta, error) {
	seqs, names, err := parseIndex(index)
	if err != nil {
		return nil, err
	}
	return &indexedFasta{seqs: seqs, seqNames: names, reader: fasta}, nil
}

// Len implements Fasta.Len().
func (f *indexedFasta) Len(seqName string) (uint64, error) {
	ent, ok := f.seqs[seqName]
	if !ok {
		return 0, errors.Errorf("sequence not found in index: %s", seqName)
	}
	return ent.length, nil
}

// read returns the byte range [off, off+n) of the FASTA file.  REQUIRES: f.mu
// is held.
func (f *indexedFasta) read(off int64, n int) ([]byte, error) {
	limit := off + int64(n)
	if off >= f.bufOff && limit <= f.bufOff+int64(len(f.buf)) {
		return f.buf[off-f.bufOff : limit-f.bufOff], nil
	}
	if newOff, err := f.reader.Seek(off, io.SeekStart); err != nil || newOff != off {
		return nil, errors.Errorf("failed to seek to offset %d: %d, %v", off, newOff, err)
	}
	bufSize := 8192
	if bufSize < n {
		bufSize = n
	}
	f.buf = resize(f.buf, bufSize)
	nRead, err := io.ReadFull(f.reader, f.buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, err
	}
	if nRead < n {
		return nil, errors.Errorf("unexpected end of FASTA data at offset %d (bad index? file doesn't end in newline?)", off)
	}
	f.bufOff = off
	f.buf = f.buf[:nRead]
	return f.buf[:n], nil
}

func resize(buf []byte, n int) []byte {
	if cap(buf) < n {
		return make([]byte, n)
	}
	return buf[:n]
}

// Get implements Fasta.Get().
func (f *indexedFasta) Get(seqName string, start, end uint64) (string, error) {
	if end <= start {
		return "", errors.Errorf("start must be less than end")
	}
	ent, ok := f.seqs[seqName]
	if !ok {
		return "", errors.Errorf("sequence not found in index: %s", seqName)
	}
	if end > ent.length {
		return "", errors.Errorf("end is past end of sequence %s: %d", seqName, ent.length)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	// Byte offset of the first base, stepping over line terminators.
	termLen := ent.lineWidth - ent.lineBase
	offset := ent.offset + start + termLen*(start/ent.lineBase)

	// Bytes to read, including the terminators inside the range.
	firstLineBases := ent.lineBase - (start % ent.lineBase)
	nTerm := uint64(0)
	if end-start > firstLineBases {
		nTerm = 1 + (end-start-firstLineBases)/ent.lineBase
	}
	raw, err := f.read(int64(offset), int(end-start+nTerm*termLen))
	if err != nil {
		return "", err
	}

	f.resultBuf = resize(f.resultBuf, int(end-start))
	linePos := (offset - ent.offset) % ent.lineWidth
	n := 0
	for _, c := range raw {
		if linePos < ent.lineBase {
			f.resultBuf[n] = c
			n++
		}
		if linePos++; linePos == ent.lineWidth {
			linePos = 0
		}
	}
	return string(f.resultBuf[:n]), nil
}

// SeqNames implements Fasta.SeqNames().
func (f *indexedFasta) SeqNames() []string {
	return f.seqNames
}
