// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package bgzf writes the block-gzipped format that tabix and bedtools
// expect for compressed, indexable interval files.  A BGZF file is a series
// of complete gzip members, each holding at most 64KB of payload, followed by
// a fixed 28-byte empty member as terminator.  Each member carries its
// compressed size in a "BC" extra subfield.  Any gzip reader that handles
// multi-member streams reads BGZF.
//
// See the SAM/BAM spec: https://samtools.github.io/hts-specs/SAMv1.pdf
package bgzf

import (
	"bytes"
	"io"

	"github.com/grailbio/base/compress/libdeflate"
	"github.com/grailbio/base/errors"
)

const (
	// BlockSize is the payload size of every block but the last, as chosen
	// by htslib and sambamba.
	BlockSize = 0x0ff00

	// maxCompressedBlockSize bounds a whole compressed member.
	maxCompressedBlockSize = 0x10000

	// extraOffset is the offset of the extra field within a member.
	extraOffset = 12
)

var (
	// bgzfExtra is the "BC" subfield; its last two bytes are set to the
	// member size minus one.
	bgzfExtra = [...]byte{66, 67, 2, 0, 0, 0}

	// Terminator is the empty member that ends a BGZF file.
	Terminator = []byte{
		0x1f, 0x8b, 0x08, 0x04, 0x00, 0x00, 0x00, 0x00, 0x00, 0xff, 0x06, 0x00, 0x42, 0x43,
		0x02, 0x00, 0x1b, 0x00, 0x03, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	}
)

// Writer compresses its input into BGZF.  Close must be called to flush the
// last block and write the terminator.
type Writer struct {
	w          io.Writer
	level      int
	gz         *libdeflate.Writer
	pending    bytes.Buffer // payload not yet compressed
	compressed bytes.Buffer
	err        error
}

// NewWriter returns a Writer with the given compression level, e.g.
// flate.DefaultCompression.
func NewWriter(w io.Writer, level int) *Writer {
	return &Writer{w: w, level: level}
}

// Write implements io.Writer.
func (w *Writer) Write(buf []byte) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	for i := 0; i < len(buf); {
		end := i + BlockSize - w.pending.Len()
		if end > len(buf) {
			end = len(buf)
		}
		w.pending.Write(buf[i:end])
		i = end
		if w.pending.Len() == BlockSize {
			if err := w.flushBlock(); err != nil {
				return i, err
			}
		}
	}
	return len(buf), nil
}

// Close compresses any buffered payload and writes the terminator.  It does
// not close the underlying writer.
func (w *Writer) Close() error {
	if w.err != nil {
		return w.err
	}
	if w.pending.Len() > 0 {
		if err := w.flushBlock(); err != nil {
			return err
		}
	}
	_, w.err = w.w.Write(Terminator)
	return w.err
}

// flushBlock compresses the pending payload into one member.
func (w *Writer) flushBlock() error {
	if w.gz == nil {
		gz, err := libdeflate.NewWriterLevel(&w.compressed, w.level)
		if err != nil {
			w.err = err
			return err
		}
		w.gz = gz
	} else {
		w.gz.Reset(&w.compressed)
	}
	w.gz.Header.Extra = append([]byte(nil), bgzfExtra[:]...)
	w.gz.Header.OS = 0xff
	if _, err := w.gz.Write(w.pending.Bytes()); err != nil {
		w.err = err
		return err
	}
	if err := w.gz.Close(); err != nil {
		w.err = err
		return err
	}
	w.pending.Reset()

	b := w.compressed.Bytes()
	bsize := len(b) - 1
	if bsize >= maxCompressedBlockSize {
		w.err = errors.E(errors.Other, "bgzf: compressed block too big:", bsize)
		return w.err
	}
	if len(b) < extraOffset+len(bgzfExtra) || b[extraOffset] != 'B' || b[extraOffset+1] != 'C' {
		w.err = errors.E(errors.Other, "bgzf: missing BC extra subfield")
		return w.err
	}
	b[extraOffset+4] = byte(bsize)
	b[extraOffset+5] = byte(bsize >> 8)
	_, err := w.compressed.WriteTo(w.w)
	w.err = err
	return err
}
