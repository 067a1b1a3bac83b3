// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package source

import (
	"context"
	"io"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/fileio"
	"github.com/grailbio/bedpipe/interval"
	"github.com/klauspost/compress/gzip"
)

// File is a source backed by a file.  Every Open reads the file afresh, so a
// File can be iterated any number of times.  Compressed files (see
// IsCompressed) are decompressed on the fly.
type File struct {
	Path string
}

// IsCompressed reports whether path names a gzip or BGZF file, judging by
// its extension.
func IsCompressed(path string) bool {
	return fileio.DetermineType(path) == fileio.Gzip || strings.HasSuffix(path, ".bgz")
}

// NewFile returns a File source for path.  The file is not accessed until
// Open.
func NewFile(path string) *File { return &File{Path: path} }

// Kind implements Source.
func (f *File) Kind() Kind { return KindFile }

// Restartable implements Source.
func (f *File) Restartable() bool { return true }

// String implements Source.
func (f *File) String() string { return f.Path }

// Close implements Source.
func (f *File) Close() error { return nil }

// Open implements Source.
func (f *File) Open(ctx context.Context) (Iterator, error) {
	in, err := file.Open(ctx, f.Path)
	if err != nil {
		return nil, errors.E("open", f.Path, err)
	}
	it := &fileIterator{ctx: ctx, in: in}
	r := io.Reader(in.Reader(ctx))
	if IsCompressed(f.Path) {
		gz, err := gzip.NewReader(r)
		if err != nil {
			_ = in.Close(ctx)
			return nil, errors.E(errors.Invalid, "open", f.Path, err)
		}
		it.gz = gz
		r = gz
	}
	it.sc = interval.NewScanner(r)
	return it, nil
}

type fileIterator struct {
	ctx context.Context
	in  file.File
	gz  *gzip.Reader
	sc  *interval.Scanner
}

func (it *fileIterator) Scan() bool               { return it.sc.Scan() }
func (it *fileIterator) Record() *interval.Record { return it.sc.Record() }
func (it *fileIterator) Err() error               { return it.sc.Err() }

func (it *fileIterator) Close() error {
	if it.in == nil {
		return nil
	}
	var err error
	if it.gz != nil {
		err = it.gz.Close()
	}
	if cerr := it.in.Close(it.ctx); cerr != nil && err == nil {
		err = cerr
	}
	it.in = nil
	return err
}
