// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package pipeline

import (
	"context"
	"io"
	"io/ioutil"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/bedpipe/encoding/fasta"
	"github.com/grailbio/bedpipe/interval"
)

// Sequence extracts the bases under every record from the FASTA file at
// fastaPath, and returns a Handle over the same records with the extracted
// sequences attached (see SeqPath).  Each sequence is keyed
// "chrom:start-end", plus "(strand)" when opts.Stranded is set.  A one-shot h
// is materialized first.
func (h *Handle) Sequence(ctx context.Context, fastaPath string, opts fasta.ExtractOpts) (_ *Handle, err error) {
	if err := h.Materialize(ctx); err != nil {
		return nil, err
	}
	fa, err := fasta.Open(ctx, fastaPath)
	if err != nil {
		return nil, errors.E("open FASTA", fastaPath, err)
	}
	defer func() {
		if cerr := fa.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	seqPath, err := h.sess.reg.NewPath()
	if err != nil {
		return nil, err
	}
	if err := h.extract(ctx, fa, seqPath, opts); err != nil {
		if rerr := h.sess.reg.Remove(ctx, []string{seqPath}); rerr != nil {
			log.Error.Printf("pipeline: remove %s: %v", seqPath, rerr)
		}
		return nil, err
	}
	params := []string{"-fi", fastaPath}
	if opts.Stranded {
		params = append(params, "-s")
	}
	out := h.derive("sequence", params, h.Source())
	out.mu.Lock()
	out.seqPath = seqPath
	files := out.filesLocked()
	out.mu.Unlock()
	h.sess.setFiles(out.id, files)
	return out, nil
}

func (h *Handle) extract(ctx context.Context, fa fasta.Fasta, path string, opts fasta.ExtractOpts) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	e := fasta.NewExtractor(out.Writer(ctx), fa, opts)
	it, err := h.Iter(ctx)
	if err != nil {
		out.Discard(ctx)
		return err
	}
	for it.Scan() {
		rec := it.Record()
		r := fasta.Region{Chrom: rec.Chrom(), Start: uint64(rec.Start()), End: uint64(rec.End())}
		if s := rec.Strand(); s != interval.StrandNone {
			r.Strand = byte(s)
		}
		e.Add(r)
	}
	err = it.Err()
	if cerr := it.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if cerr := e.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		out.Discard(ctx)
		return err
	}
	return out.Close(ctx)
}

// SeqPath returns the FASTA file of extracted sequences, or "" if Sequence
// has not been run.
func (h *Handle) SeqPath() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.seqPath
}

func (h *Handle) requireSeq() (string, error) {
	p := h.SeqPath()
	if p == "" {
		return "", errors.E(errors.Precondition, "no sequences extracted for", h.String(), "; run Sequence first")
	}
	return p, nil
}

// PrintSequence returns the extracted sequences in FASTA format.
func (h *Handle) PrintSequence(ctx context.Context) (_ string, err error) {
	p, err := h.requireSeq()
	if err != nil {
		return "", err
	}
	in, err := file.Open(ctx, p)
	if err != nil {
		return "", err
	}
	defer func() {
		if cerr := in.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	data, err := ioutil.ReadAll(in.Reader(ctx))
	return string(data), err
}

// SaveSeqs copies the extracted sequences to path, which belongs to the
// caller.
func (h *Handle) SaveSeqs(ctx context.Context, path string) (err error) {
	p, err := h.requireSeq()
	if err != nil {
		return err
	}
	in, err := file.Open(ctx, p)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := in.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	out, err := createOutput(ctx, path)
	if err != nil {
		return err
	}
	if _, err = io.Copy(out.Writer(ctx), in.Reader(ctx)); err != nil {
		out.Discard(ctx)
		return err
	}
	return out.Close(ctx)
}
