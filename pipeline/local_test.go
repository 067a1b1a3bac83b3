// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package pipeline_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/bedpipe/interval"
	"github.com/grailbio/bedpipe/pipeline"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/require"
)

func TestEachCenter(t *testing.T) {
	e := newEnv(t)
	defer e.cleanup()
	a := exampleHandle(t, e.sess, "a.bed")
	expect.EQ(t, text(t, a.Each(pipeline.Center(10))), ""+
		"chr1\t45\t55\tfeature1\t0\t+\n"+
		"chr1\t145\t155\tfeature2\t0\t+\n"+
		"chr1\t320\t330\tfeature3\t0\t-\n"+
		"chr1\t920\t930\tfeature4\t0\t+\n")
	expect.EQ(t, text(t, a.Each(pipeline.Midpoint())), ""+
		"chr1\t50\t51\tfeature1\t0\t+\n"+
		"chr1\t150\t151\tfeature2\t0\t+\n"+
		"chr1\t325\t326\tfeature3\t0\t-\n"+
		"chr1\t925\t926\tfeature4\t0\t+\n")
}

func TestEachLazy(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	defer e.cleanup()
	a := exampleHandle(t, e.sess, "a.bed")
	calls := 0
	h := a.Each(func(rec *interval.Record) (*interval.Record, error) {
		calls++
		if rec.Strand() == interval.StrandMinus {
			return nil, nil
		}
		return rec, nil
	})
	expect.EQ(t, calls, 0)
	n, err := h.Count(ctx)
	assert.NoError(t, err)
	expect.EQ(t, n, 3)
	expect.EQ(t, calls, 4)

	boom := fmt.Errorf("boom")
	_, err = a.Each(func(*interval.Record) (*interval.Record, error) { return nil, boom }).Records(ctx)
	expect.EQ(t, err, boom)
}

func TestExtend(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	defer e.cleanup()
	g := interval.NewGenome(map[string]int64{"chr1": 960})
	a := exampleHandle(t, e.sess, "a.bed")
	expect.EQ(t, text(t, a.Each(pipeline.Extend(g, 10, 20))), ""+
		"chr1\t0\t120\tfeature1\t0\t+\n"+
		"chr1\t90\t220\tfeature2\t0\t+\n"+
		"chr1\t130\t510\tfeature3\t0\t-\n"+
		"chr1\t890\t960\tfeature4\t0\t+\n")

	_, err := a.Each(pipeline.Extend(interval.NewGenome(map[string]int64{"chr2": 5}), 1, 1)).Records(ctx)
	expect.True(t, errors.Is(errors.NotExist, err), "%v", err)
}

func TestCut(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	defer e.cleanup()
	a := exampleHandle(t, e.sess, "a.bed")
	expect.EQ(t, text(t, a.Cut(0, 1, 2, 5)), ""+
		"chr1\t1\t100\t+\n"+
		"chr1\t100\t200\t+\n"+
		"chr1\t150\t500\t-\n"+
		"chr1\t900\t950\t+\n")
	expect.EQ(t, a.Cut(0, 1, 2).History()[1].Params, []string{"0", "1", "2"})

	_, err := a.Cut(0, 1, 9).Records(ctx)
	expect.True(t, errors.Is(errors.Invalid, err), "%v", err)
	_, err = a.Cut(0, 3, 2).Records(ctx)
	_, ok := err.(*interval.MalformedRecordError)
	expect.True(t, ok, "%v", err)
}

func TestRandomSubset(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	defer e.cleanup()
	a := exampleHandle(t, e.sess, "a.bed")

	s1, err := a.RandomSubset(ctx, 2, 1)
	assert.NoError(t, err)
	recs1, err := s1.Records(ctx)
	assert.NoError(t, err)
	require.Equal(t, 2, len(recs1))
	expect.True(t, recs1[0].Start() < recs1[1].Start())

	s2, err := a.RandomSubset(ctx, 2, 1)
	assert.NoError(t, err)
	expect.EQ(t, text(t, s2), recs1[0].String()+"\n"+recs1[1].String()+"\n")

	all, err := a.RandomSubset(ctx, 10, 1)
	assert.NoError(t, err)
	expect.EQ(t, text(t, all), aBed)

	_, err = a.RandomSubset(ctx, -1, 1)
	expect.True(t, errors.Is(errors.Invalid, err), "%v", err)
}

func TestWithin(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	defer e.cleanup()
	a := exampleHandle(t, e.sess, "a.bed")
	b := exampleHandle(t, e.sess, "b.bed")

	w, err := a.Within(ctx, b)
	assert.NoError(t, err)
	expect.False(t, w.Restartable())
	expect.EQ(t, text(t, w), ""+
		"chr1\t100\t200\tfeature2\t0\t+\n"+
		"chr1\t150\t500\tfeature3\t0\t-\n"+
		"chr1\t900\t950\tfeature4\t0\t+\n")
	steps := w.History()
	last := steps[len(steps)-1]
	expect.EQ(t, last.Op, "within")
	expect.EQ(t, last.Parents, []pipeline.NodeID{a.ID(), b.ID()})

	empty, err := e.sess.FromString(ctx, "chr2\t0\t1000\n")
	assert.NoError(t, err)
	w, err = a.Within(ctx, empty)
	assert.NoError(t, err)
	n, err := w.Count(ctx)
	assert.NoError(t, err)
	expect.EQ(t, n, 0)
}

func TestIntrons(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	defer e.cleanup()
	genes := exampleHandle(t, e.sess, "mm9.bed12")
	recs, err := genes.Records(ctx)
	assert.NoError(t, err)
	require.Len(t, recs, 3)

	for _, gene := range recs {
		exons, err := gene.Blocks()
		assert.NoError(t, err)
		name, _ := gene.Name()
		one := genes.Filter(func(rec *interval.Record) bool {
			n, _ := rec.Name()
			return n == name
		})
		got, err := one.Introns().Records(ctx)
		assert.NoError(t, err)
		expect.EQ(t, len(got), len(exons)-1, name)
		for i, r := range got {
			expect.EQ(t, r.Region(), interval.Region{Chrom: "chr1", Start: exons[i].End, End: exons[i+1].Start}, name)
			expect.EQ(t, r.NumFields(), 6)
			expect.EQ(t, r.Strand(), gene.Strand())
		}
	}

	all := genes.Introns()
	expect.EQ(t, text(t, all)[:len("chr1\t3196984\t3205213\tXkr4,uc007aeu.1\t0\t-\n")],
		"chr1\t3196984\t3205213\tXkr4,uc007aeu.1\t0\t-\n")
	steps := all.History()
	expect.EQ(t, steps[len(steps)-1].Op, "introns")
	n, err := genes.Introns().Count(ctx)
	assert.NoError(t, err)
	expect.EQ(t, n, 1+8+9)

	_, err = exampleHandle(t, e.sess, "a.bed").Introns().Records(ctx)
	expect.True(t, errors.Is(errors.Invalid, err), "%v", err)
}
