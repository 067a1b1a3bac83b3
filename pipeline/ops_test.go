// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package pipeline_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/bedpipe/bedtools"
	"github.com/grailbio/bedpipe/bedtools/bedtoolstest"
	"github.com/grailbio/bedpipe/interval"
	"github.com/grailbio/bedpipe/pipeline"
	"github.com/grailbio/bedpipe/source"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/require"
)

// lastCall returns the last argument list the fake bedtools received.
func lastCall(t *testing.T, e *testEnv) []string {
	lines := strings.Split(strings.TrimSpace(bedtoolstest.Log(t, e.fake)), "\n")
	return strings.Fields(lines[len(lines)-1])
}

func TestIntersectCommandLine(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	defer e.cleanup()
	a := e.userFile(t, "a.bed", aBed)
	b := e.userFile(t, "b.bed", bBed)

	c, err := a.Intersect(ctx, b, bedtools.Flag("s"), bedtools.Value("f", 0.5))
	assert.NoError(t, err)
	expect.EQ(t, lastCall(t, e), []string{"intersect", "-a", a.Path(), "-b", b.Path(), "-s", "-f", "0.5"})
	expect.True(t, c.Restartable())
	expect.True(t, e.sess.Registry().Registered(c.Path()))
	expect.EQ(t, text(t, c), aBed)

	_, err = a.Add(ctx, b)
	assert.NoError(t, err)
	expect.EQ(t, lastCall(t, e), []string{"intersect", "-a", a.Path(), "-b", b.Path(), "-u"})
	_, err = a.Sub(ctx, b)
	assert.NoError(t, err)
	expect.EQ(t, lastCall(t, e), []string{"intersect", "-a", a.Path(), "-b", b.Path(), "-v"})

	for _, tt := range []struct {
		run  func() (*pipeline.Handle, error)
		want []string
	}{
		{func() (*pipeline.Handle, error) { return a.Subtract(ctx, b) }, []string{"subtract", "-a", a.Path(), "-b", b.Path()}},
		{func() (*pipeline.Handle, error) { return a.Closest(ctx, b) }, []string{"closest", "-a", a.Path(), "-b", b.Path()}},
		{func() (*pipeline.Handle, error) { return a.Window(ctx, b, bedtools.Value("w", 10)) }, []string{"window", "-a", a.Path(), "-b", b.Path(), "-w", "10"}},
		{func() (*pipeline.Handle, error) { return a.Merge(ctx, bedtools.Value("d", 700)) }, []string{"merge", "-i", a.Path(), "-d", "700"}},
		{func() (*pipeline.Handle, error) { return a.Sort(ctx) }, []string{"sort", "-i", a.Path()}},
		{func() (*pipeline.Handle, error) { return a.Bed6(ctx) }, []string{"bed12tobed6", "-i", a.Path()}},
	} {
		h, err := tt.run()
		assert.NoError(t, err)
		expect.EQ(t, lastCall(t, e), tt.want)
		expect.EQ(t, h.History()[len(h.History())-1].Op, tt.want[0])
	}
}

func TestAddSubSharedArgs(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	defer e.cleanup()
	a := e.userFile(t, "a.bed", aBed)
	b := e.userFile(t, "b.bed", bBed)

	// Spare capacity must not be written through by either call.
	opts := make([]bedtools.Arg, 1, 4)
	opts[0] = bedtools.Flag("s")
	_, err := a.Add(ctx, b, opts...)
	assert.NoError(t, err)
	expect.EQ(t, lastCall(t, e), []string{"intersect", "-a", a.Path(), "-b", b.Path(), "-s", "-u"})
	_, err = a.Sub(ctx, b, opts...)
	assert.NoError(t, err)
	expect.EQ(t, lastCall(t, e), []string{"intersect", "-a", a.Path(), "-b", b.Path(), "-s", "-v"})
	expect.EQ(t, opts[:cap(opts)], []bedtools.Arg{bedtools.Flag("s"), {}, {}, {}})

	// A caller-supplied -u is not duplicated.
	_, err = a.Add(ctx, b, bedtools.Flag("u"))
	assert.NoError(t, err)
	expect.EQ(t, lastCall(t, e), []string{"intersect", "-a", a.Path(), "-b", b.Path(), "-u"})
}

func TestStreamMatchesMaterialized(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	defer e.cleanup()
	d := exampleHandle(t, e.sess, "d.gff")
	a := exampleHandle(t, e.sess, "a.bed")

	g1, err := d.Intersect(ctx, a)
	assert.NoError(t, err)
	g2, err := d.Intersect(ctx, a, pipeline.Stream)
	assert.NoError(t, err)
	_, ok := g2.Source().(*source.Pipe)
	expect.True(t, ok)
	// The stream pseudo-option never reaches bedtools.
	expect.EQ(t, lastCall(t, e), []string{"intersect", "-a", d.Path(), "-b", a.Path()})
	expect.EQ(t, text(t, g2), text(t, g1))
	expect.EQ(t, e.sess.Runner().Live(), 0)
}

func TestStreamOfStream(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	defer e.cleanup()
	a := exampleHandle(t, e.sess, "a.bed")
	s1, err := a.Intersect(ctx, a, pipeline.Stream)
	assert.NoError(t, err)
	s2, err := s1.Intersect(ctx, a, pipeline.Stream)
	assert.NoError(t, err)
	// Drain first: a streamed tool logs its arguments asynchronously.
	expect.EQ(t, text(t, s2), aBed)
	// The live input is piped through standard input.
	expect.EQ(t, lastCall(t, e), []string{"intersect", "-a", "stdin", "-b", a.Path()})
	expect.EQ(t, e.sess.Runner().Live(), 0)
}

func TestOneShotInputs(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	defer e.cleanup()
	a := exampleHandle(t, e.sess, "a.bed")
	recs, err := a.Records(ctx)
	assert.NoError(t, err)

	// A one-shot primary input goes through standard input.
	sorted, err := e.sess.FromRecords(recs).Sort(ctx)
	assert.NoError(t, err)
	expect.EQ(t, lastCall(t, e), []string{"sort", "-i", "stdin"})
	expect.EQ(t, text(t, sorted), aBed)

	// A one-shot secondary input is materialized.
	other := e.sess.FromRecords(recs)
	_, err = a.Intersect(ctx, other)
	assert.NoError(t, err)
	expect.True(t, other.Restartable())
	expect.True(t, e.sess.Registry().Registered(other.Path()))
	expect.EQ(t, lastCall(t, e), []string{"intersect", "-a", a.Path(), "-b", other.Path()})
}

func TestGenomeRequired(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	defer e.cleanup()
	a := exampleHandle(t, e.sess, "a.bed")

	for _, op := range []func(context.Context, ...bedtools.Arg) (*pipeline.Handle, error){a.Slop, a.Flank, a.Complement} {
		_, err := op(ctx, bedtools.Value("b", 100))
		expect.True(t, errors.Is(errors.Precondition, err), "%v", err)
	}
	_, err := a.Slop(ctx, bedtools.Value("b", 100), bedtools.Value("g", "nonexistent"))
	expect.True(t, errors.Is(errors.Precondition, err), "%v", err)
	_, err = a.Slop(ctx, bedtools.Value("b", 100), bedtools.Value("g", 42))
	expect.True(t, errors.Is(errors.Precondition, err), "%v", err)

	// By assembly name.
	_, err = a.Slop(ctx, bedtools.Value("b", 100), bedtools.Value("g", "hg19"))
	assert.NoError(t, err)
	args := lastCall(t, e)
	require.Equal(t, 7, len(args))
	expect.EQ(t, args[:3], []string{"slop", "-i", a.Path()})
	expect.EQ(t, args[3], "-g")
	g, err := interval.ReadGenomeFile(ctx, args[4])
	assert.NoError(t, err)
	n, _ := g.Len("chr1")
	expect.EQ(t, n, int64(249250621))
	expect.EQ(t, args[5:], []string{"-b", "100"})

	// By table.
	toy := interval.NewGenome(map[string]int64{"chr1": 1000})
	_, err = a.Flank(ctx, bedtools.Value("g", toy), bedtools.Value("b", 5))
	assert.NoError(t, err)
	g, err = interval.ReadGenomeFile(ctx, lastCall(t, e)[4])
	assert.NoError(t, err)
	expect.EQ(t, g, toy)

	// By file.
	path := e.dir + "/toy.genome"
	assert.NoError(t, toy.WriteFile(ctx, path))
	_, err = a.Complement(ctx, bedtools.Value("g", path))
	assert.NoError(t, err)
	expect.EQ(t, lastCall(t, e), []string{"complement", "-i", a.Path(), "-g", path})

	// Attached, and inherited by derived handles.
	a.SetGenome(toy)
	sorted, err := a.Sort(ctx)
	assert.NoError(t, err)
	_, err = sorted.Slop(ctx, bedtools.Value("b", 1))
	assert.NoError(t, err)
}

func TestProcessError(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	defer e.cleanup()
	a := exampleHandle(t, e.sess, "a.bed")
	before := len(e.sess.Registry().Paths())
	_, err := a.Run(ctx, "fail", "i")
	berr, ok := err.(*bedtools.Error)
	require.True(t, ok, "%v", err)
	expect.EQ(t, berr.Args, []string{e.fake, "fail", "-i", a.Path()})
	expect.HasSubstr(t, berr.Stderr, "failure requested")
	expect.EQ(t, len(e.sess.Registry().Paths()), before)
}

func TestMissingBedtools(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	defer e.cleanup()
	sess, err := pipeline.NewSession(pipeline.Config{TmpDir: e.dir, Bedtools: e.dir + "/nonexistent"})
	assert.NoError(t, err)
	a := exampleHandle(t, sess, "a.bed")
	_, err = a.Sort(ctx)
	berr, ok := err.(*bedtools.Error)
	require.True(t, ok, "%v", err)
	expect.True(t, errors.Is(errors.NotExist, berr.Err))
}

func TestAbandonedStream(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	defer e.cleanup()
	a := exampleHandle(t, e.sess, "a.bed")
	h, err := a.Run(ctx, "sleep", "i", pipeline.Stream)
	assert.NoError(t, err)
	it, err := h.Iter(ctx)
	assert.NoError(t, err)
	expect.True(t, it.Scan())
	expect.EQ(t, e.sess.Runner().Live(), 1)
	assert.NoError(t, it.Close())
	expect.EQ(t, e.sess.Runner().Live(), 0)

	// Session.Close reaps streams nobody opened.
	_, err = a.Run(ctx, "sleep", "i", pipeline.Stream)
	assert.NoError(t, err)
	expect.EQ(t, e.sess.Runner().Live(), 1)
	assert.NoError(t, e.sess.Close())
	expect.EQ(t, e.sess.Runner().Live(), 0)
}

func TestCat(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	defer e.cleanup()
	a := exampleHandle(t, e.sess, "a.bed")
	b := exampleHandle(t, e.sess, "b.bed")

	c, err := a.Cat(ctx, []*pipeline.Handle{b}, false)
	assert.NoError(t, err)
	expect.False(t, c.Restartable())
	expect.EQ(t, text(t, c), aBed+bBed)

	// The fake sort and merge pass records through unchanged.
	m, err := a.Cat(ctx, []*pipeline.Handle{b}, true)
	assert.NoError(t, err)
	expect.True(t, m.Restartable())
	expect.EQ(t, text(t, m), aBed+bBed)
	expect.EQ(t, lastCall(t, e)[:2], []string{"merge", "-i"})
	ops := []string{}
	for _, s := range m.History() {
		ops = append(ops, s.Op)
	}
	expect.EQ(t, ops, []string{"file", "file", "cat", "sort", "merge"})
}

// endlessIterator yields the same record forever and reports its Close.
type endlessIterator struct {
	rec    *interval.Record
	closed chan struct{}
}

func newEndlessIterator(t *testing.T) *endlessIterator {
	rec, err := interval.ParseLine("chr1\t10\t20", 1)
	require.NoError(t, err)
	return &endlessIterator{rec: rec, closed: make(chan struct{})}
}

func (it *endlessIterator) Scan() bool               { return true }
func (it *endlessIterator) Record() *interval.Record { return it.rec }
func (it *endlessIterator) Err() error               { return nil }
func (it *endlessIterator) Close() error             { close(it.closed); return nil }

func waitClosed(t *testing.T, it *endlessIterator) {
	select {
	case <-it.closed:
	case <-time.After(10 * time.Second):
		t.Fatal("input iterator still open after the tool finished")
	}
}

func TestStreamedStdinReleased(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	defer e.cleanup()

	// The tool exits without reading its input.
	in := newEndlessIterator(t)
	s, err := e.sess.FromIterator(in).Run(ctx, "fail", "i", pipeline.Stream)
	require.NoError(t, err)
	_, err = s.Text(ctx)
	_, ok := err.(*bedtools.Error)
	expect.True(t, ok, "%v", err)
	waitClosed(t, in)
	expect.EQ(t, e.sess.Runner().Live(), 0)

	// The stream is abandoned while the tool is still reading.
	in = newEndlessIterator(t)
	s, err = e.sess.FromIterator(in).Sort(ctx, pipeline.Stream)
	require.NoError(t, err)
	assert.NoError(t, s.Source().Close())
	waitClosed(t, in)
	expect.EQ(t, e.sess.Runner().Live(), 0)
}
