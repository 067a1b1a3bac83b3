// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package pipeline_test

import (
	"context"
	"testing"

	"github.com/grailbio/bedpipe/bedtools"
	"github.com/grailbio/bedpipe/bedtools/bedtoolstest"
	"github.com/grailbio/bedpipe/pipeline"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

// These tests run the bedtools installed on the machine.

func newRealSession(t *testing.T) (*pipeline.Session, func()) {
	prog := bedtoolstest.Real(t)
	dir, cleanup := testutil.TempDir(t, "", "")
	sess, err := pipeline.NewSession(pipeline.Config{TmpDir: dir, Bedtools: prog})
	assert.NoError(t, err)
	return sess, func() {
		assert.NoError(t, sess.Close())
		cleanup()
	}
}

func TestRealIntersect(t *testing.T) {
	ctx := context.Background()
	sess, cleanup := newRealSession(t)
	defer cleanup()
	a := exampleHandle(t, sess, "a.bed")
	b := exampleHandle(t, sess, "b.bed")

	for _, tt := range []struct {
		args []bedtools.Arg
		want string
	}{
		{nil, "chr1\t155\t200\tfeature2\t0\t+\nchr1\t155\t200\tfeature3\t0\t-\nchr1\t900\t901\tfeature4\t0\t+\n"},
		{[]bedtools.Arg{bedtools.Flag("u")}, "chr1\t100\t200\tfeature2\t0\t+\nchr1\t150\t500\tfeature3\t0\t-\nchr1\t900\t950\tfeature4\t0\t+\n"},
		{[]bedtools.Arg{bedtools.Flag("s")}, "chr1\t155\t200\tfeature3\t0\t-\nchr1\t900\t901\tfeature4\t0\t+\n"},
	} {
		c, err := a.Intersect(ctx, b, tt.args...)
		assert.NoError(t, err)
		expect.EQ(t, text(t, c), tt.want)

		// Streamed output is identical.
		s, err := a.Intersect(ctx, b, append(tt.args, pipeline.Stream)...)
		assert.NoError(t, err)
		expect.EQ(t, text(t, s), tt.want)
	}

	sub, err := a.Sub(ctx, b)
	assert.NoError(t, err)
	expect.EQ(t, text(t, sub), "chr1\t1\t100\tfeature1\t0\t+\n")
}

func TestRealMergeAndCat(t *testing.T) {
	ctx := context.Background()
	sess, cleanup := newRealSession(t)
	defer cleanup()
	a := exampleHandle(t, sess, "a.bed")
	b := exampleHandle(t, sess, "b.bed")

	m, err := b.Merge(ctx, bedtools.Value("d", 700))
	assert.NoError(t, err)
	expect.EQ(t, text(t, m), "chr1\t155\t901\n")

	c, err := a.Cat(ctx, []*pipeline.Handle{b}, true)
	assert.NoError(t, err)
	expect.EQ(t, text(t, c), "chr1\t1\t500\nchr1\t800\t950\n")
}

func TestRealSlopClamps(t *testing.T) {
	ctx := context.Background()
	sess, cleanup := newRealSession(t)
	defer cleanup()
	h, err := sess.FromString(ctx, "chr1 249250600 249250621\nchr1 50 60\n")
	assert.NoError(t, err)
	s, err := h.Slop(ctx, bedtools.Value("b", 100), bedtools.Value("g", "hg19"))
	assert.NoError(t, err)
	expect.EQ(t, text(t, s), "chr1\t249250500\t249250621\nchr1\t0\t160\n")
}
