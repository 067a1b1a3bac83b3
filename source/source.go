// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package source defines the backing storage of an interval dataset: a file,
// in-memory text, a one-shot generator, or the live output of a child
// process.  Only file sources can be read more than once.
package source

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/bedpipe/interval"
	"github.com/grailbio/bedpipe/tempfile"
)

// Kind identifies the variant of a Source.
type Kind int

const (
	// KindFile is a file on durable storage.
	KindFile Kind = iota
	// KindText is an in-memory string.
	KindText
	// KindGenerator is a one-shot sequence of records.
	KindGenerator
	// KindPipe is the standard output of a child process.
	KindPipe
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindText:
		return "text"
	case KindGenerator:
		return "generator"
	case KindPipe:
		return "pipe"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Restartable reports whether sources of kind k can be read more than once.
func (k Kind) Restartable() bool { return k == KindFile }

// Iterator yields records one at a time, in the manner of bufio.Scanner.
//
//   it, err := src.Open(ctx)
//   ...
//   defer it.Close()
//   for it.Scan() {
//     rec := it.Record()
//   }
//   if err := it.Err(); err != nil {
//     ...
//   }
type Iterator interface {
	// Scan advances to the next record.  It returns false at the end of the
	// data or on error.
	Scan() bool
	// Record returns the record read by the last successful Scan.
	Record() *interval.Record
	// Err returns the error that stopped the iteration, if any.  Malformed
	// input is reported as *interval.MalformedRecordError.
	Err() error
	// Close releases the resources held by the iterator.  It may be called
	// before the iterator is exhausted.
	Close() error
}

// Source is the backing storage of a dataset.
type Source interface {
	// Kind returns the variant of the source.
	Kind() Kind
	// Restartable is Kind().Restartable().
	Restartable() bool
	// Open starts a new read.  For a source that is not restartable, every
	// Open after the first returns an empty iterator.
	Open(ctx context.Context) (Iterator, error)
	// Close releases resources the source holds outside of any iterator,
	// such as a child process.  It is a no-op for files.
	Close() error
	// String describes the source for logs and error messages.
	String() string
}

// Write serializes every record of src to w, one tab-delimited line per
// record.
func Write(ctx context.Context, w io.Writer, src Source) (err error) {
	it, err := src.Open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := it.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	bw := bufio.NewWriter(w)
	for it.Scan() {
		bw.WriteString(it.Record().String())
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	if err := it.Err(); err != nil {
		return err
	}
	return bw.Flush()
}

// ReadAll collects the records of src.
func ReadAll(ctx context.Context, src Source) (recs []*interval.Record, err error) {
	it, err := src.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := it.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	for it.Scan() {
		recs = append(recs, it.Record())
	}
	return recs, it.Err()
}

// Materialize returns a file-backed copy of src.  A *File is returned as is.
// Other sources are written to a new temp file registered in reg, and are
// consumed in the process.  The temp file is removed if writing fails.
func Materialize(ctx context.Context, src Source, reg *tempfile.Registry) (*File, error) {
	if f, ok := src.(*File); ok {
		return f, nil
	}
	path, err := reg.NewPath()
	if err != nil {
		return nil, err
	}
	if err := writeFile(ctx, path, src); err != nil {
		if rerr := reg.Remove(ctx, []string{path}); rerr != nil {
			log.Error.Printf("source: remove %s: %v", path, rerr)
		}
		return nil, err
	}
	return NewFile(path), nil
}

func writeFile(ctx context.Context, path string, src Source) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	if err = Write(ctx, out.Writer(ctx), src); err != nil {
		out.Discard(ctx)
		return err
	}
	return out.Close(ctx)
}
