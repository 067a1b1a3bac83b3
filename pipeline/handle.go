// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package pipeline

import (
	"bufio"
	"bytes"
	"compress/flate"
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/bedpipe/encoding/bgzf"
	"github.com/grailbio/bedpipe/interval"
	"github.com/grailbio/bedpipe/source"
)

// Handle is one dataset.  Operations never modify a Handle: they return a
// new one.  The exceptions are SetGenome, and Materialize, which replaces a
// one-shot source by a file holding the same records.
type Handle struct {
	sess *Session
	id   NodeID

	mu      sync.Mutex
	src     source.Source
	genome  interval.Genome
	seqPath string
}

func filesOf(src source.Source) []string {
	if f, ok := src.(*source.File); ok {
		return []string{f.Path}
	}
	return nil
}

func (s *Session) newHandle(op string, params []string, src source.Source, genome interval.Genome, parents ...NodeID) *Handle {
	id := s.addNode(node{op: op, params: params, parents: parents, files: filesOf(src)})
	return &Handle{sess: s, id: id, src: src, genome: genome}
}

// derive returns a new Handle produced from h (and maybe other inputs) by op.
// It inherits h's genome.
func (h *Handle) derive(op string, params []string, src source.Source, parents ...NodeID) *Handle {
	return h.sess.newHandle(op, params, src, h.Genome(), append([]NodeID{h.id}, parents...)...)
}

// FromFile returns a Handle over an existing file.  The error has kind
// errors.NotExist if the file cannot be found.  Files ending in ".gz" or
// ".bgz" are decompressed when read.
func (s *Session) FromFile(ctx context.Context, path string) (*Handle, error) {
	if _, err := file.Stat(ctx, path); err != nil {
		return nil, errors.E("interval file", path, err)
	}
	return s.newHandle("file", []string{path}, source.NewFile(path), nil), nil
}

// FromString returns a Handle over hand-typed interval text.  Fields may be
// separated by any mix of tabs and spaces.  The text is written to a temp
// file right away, so the Handle is restartable and malformed records are
// reported here.
func (s *Session) FromString(ctx context.Context, data string) (*Handle, error) {
	f, err := source.Materialize(ctx, source.NewText(source.Normalize(data)), s.reg)
	if err != nil {
		return nil, err
	}
	return s.newHandle("text", nil, f, nil), nil
}

// FromRecords returns a one-shot Handle over recs.
func (s *Session) FromRecords(recs []*interval.Record) *Handle {
	return s.newHandle("records", nil, source.FromRecords("records", recs), nil)
}

// FromIterator returns a one-shot Handle over the records of it.
func (s *Session) FromIterator(it source.Iterator) *Handle {
	return s.newHandle("records", nil, source.FromIterator("iterator", it), nil)
}

// FromHandle returns a one-shot Handle that passes h's records through.
func (s *Session) FromHandle(h *Handle) *Handle {
	src := source.NewGenerator("handle", func(ctx context.Context) (source.Iterator, error) {
		return h.Iter(ctx)
	})
	return s.newHandle("records", nil, src, h.Genome(), h.id)
}

// Session returns the session h belongs to.
func (h *Handle) Session() *Session { return h.sess }

// ID returns h's provenance node.
func (h *Handle) ID() NodeID { return h.id }

// Source returns the current source of h.
func (h *Handle) Source() source.Source {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.src
}

// Restartable reports whether h can be read more than once.
func (h *Handle) Restartable() bool { return h.Source().Restartable() }

// Path returns the file backing h, or "" if h is a one-shot stream.
func (h *Handle) Path() string {
	if f, ok := h.Source().(*source.File); ok {
		return f.Path
	}
	return ""
}

// String describes h.
func (h *Handle) String() string {
	return fmt.Sprintf("Handle(%d, %s)", h.id, h.Source())
}

// SetGenome attaches a genome-size table, which operations that grow
// intervals use when no "g" option is given.
func (h *Handle) SetGenome(g interval.Genome) {
	h.mu.Lock()
	h.genome = g
	h.mu.Unlock()
}

// Genome returns the attached genome-size table, if any.
func (h *Handle) Genome() interval.Genome {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.genome
}

// Materialize writes a one-shot source to a temp file and switches h over to
// it, so h can be read any number of times.  It is a no-op for file-backed
// Handles.  A one-shot source that was already read materializes as empty.
func (h *Handle) Materialize(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.src.(*source.File); ok {
		return nil
	}
	f, err := source.Materialize(ctx, h.src, h.sess.reg)
	if err != nil {
		return err
	}
	h.src = f
	h.sess.setFiles(h.id, h.filesLocked())
	return nil
}

func (h *Handle) filesLocked() []string {
	files := filesOf(h.src)
	if h.seqPath != "" {
		files = append(files, h.seqPath)
	}
	return files
}

// Keep protects the temp files backing h from cleanup.
func (h *Handle) Keep() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, p := range h.filesLocked() {
		h.sess.reg.Keep(p)
	}
}

// Iter starts a read of h's records.  For a one-shot Handle only the first
// read sees any records.
func (h *Handle) Iter(ctx context.Context) (source.Iterator, error) {
	return h.Source().Open(ctx)
}

// Records reads all of h's records.
func (h *Handle) Records(ctx context.Context) ([]*interval.Record, error) {
	return source.ReadAll(ctx, h.Source())
}

// WriteTo writes h's records to w as tab-delimited lines.
func (h *Handle) WriteTo(ctx context.Context, w io.Writer) error {
	return source.Write(ctx, w, h.Source())
}

// Text returns h's records as tab-delimited lines.
func (h *Handle) Text(ctx context.Context) (string, error) {
	var buf bytes.Buffer
	if err := h.WriteTo(ctx, &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Count returns the number of records.  It reads the whole dataset: calling
// it on a one-shot Handle consumes it, so a second call returns 0.
// Materialize first to count and then read.
func (h *Handle) Count(ctx context.Context) (n int, err error) {
	it, err := h.Iter(ctx)
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := it.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	for it.Scan() {
		n++
	}
	return n, it.Err()
}

// FieldCount returns the number of fields of the first record, or 0 if there
// are no records.
func (h *Handle) FieldCount(ctx context.Context) (int, error) {
	it, err := h.Iter(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	if it.Scan() {
		n = it.Record().NumFields()
	}
	err = it.Err()
	if cerr := it.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return n, err
}

// Head writes the first n records to w.
func (h *Handle) Head(ctx context.Context, w io.Writer, n int) error {
	it, err := h.Iter(ctx)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	for i := 0; i < n && it.Scan(); i++ {
		bw.WriteString(it.Record().String())
		bw.WriteByte('\n')
	}
	err = it.Err()
	if cerr := it.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if ferr := bw.Flush(); ferr != nil && err == nil {
		err = ferr
	}
	return err
}

// SaveAs writes h's records to path and returns a Handle over the saved
// file.  A path ending in ".gz" or ".bgz" is block-gzipped (BGZF), ready
// for tabix.  The saved file belongs
// to the caller: cleanup never removes it.
func (h *Handle) SaveAs(ctx context.Context, path string) (_ *Handle, err error) {
	out, err := createOutput(ctx, path)
	if err != nil {
		return nil, err
	}
	w := io.Writer(out.Writer(ctx))
	var bw *bgzf.Writer
	if source.IsCompressed(path) {
		bw = bgzf.NewWriter(w, flate.DefaultCompression)
		w = bw
	}
	if err = h.WriteTo(ctx, w); err == nil && bw != nil {
		err = bw.Close()
	}
	if err != nil {
		out.Discard(ctx)
		return nil, err
	}
	if err = out.Close(ctx); err != nil {
		return nil, err
	}
	return h.derive("saveas", []string{path}, source.NewFile(path)), nil
}

// createOutput creates a caller-owned output file.  The parent of a local
// path must already be a directory; file.Create would create it.
func createOutput(ctx context.Context, path string) (file.File, error) {
	if scheme, _, err := file.ParsePath(path); err == nil && scheme == "" {
		dir := file.Dir(path)
		info, err := os.Stat(dir)
		if err != nil {
			return nil, errors.E(errors.Precondition, "create", path, err)
		}
		if !info.IsDir() {
			return nil, errors.E(errors.Precondition, "create", path, dir, "is not a directory")
		}
	}
	out, err := file.Create(ctx, path)
	if err != nil {
		return nil, errors.E(errors.Precondition, "create", path, err)
	}
	return out, nil
}
