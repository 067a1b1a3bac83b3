// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bedtools_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/bedpipe/bedtools"
	"github.com/grailbio/bedpipe/bedtools/bedtoolstest"
	"github.com/grailbio/bedpipe/source"
	"github.com/grailbio/bedpipe/tempfile"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/require"
)

const aBed = "chr1\t1\t100\tfeature1\t0\t+\n" +
	"chr1\t100\t200\tfeature2\t0\t+\n" +
	"chr1\t150\t500\tfeature3\t0\t-\n" +
	"chr1\t900\t950\tfeature4\t0\t+\n"

func setup(t *testing.T) (dir, aPath string, r *bedtools.Runner, cleanup func()) {
	dir, cleanup = testutil.TempDir(t, "", "")
	aPath = filepath.Join(dir, "a.bed")
	assert.NoError(t, os.WriteFile(aPath, []byte(aBed), 0644))
	r = bedtoolstest.NewRunner(t, dir)
	return
}

func serialize(t *testing.T, src source.Source) string {
	var buf bytes.Buffer
	require.NoError(t, source.Write(context.Background(), &buf, src))
	return buf.String()
}

func TestRunMaterialized(t *testing.T) {
	ctx := context.Background()
	dir, aPath, r, cleanup := setup(t)
	defer cleanup()

	src, err := r.Run(ctx, bedtools.Call{
		Tool: "sort",
		Args: bedtools.Args{bedtools.Value("i", aPath)},
	})
	assert.NoError(t, err)
	f, ok := src.(*source.File)
	require.True(t, ok)
	expect.True(t, r.Registry.Registered(f.Path))
	expect.EQ(t, filepath.Dir(f.Path), dir)
	expect.EQ(t, serialize(t, f), aBed)
	expect.EQ(t, serialize(t, f), aBed)
	expect.EQ(t, bedtoolstest.Log(t, r.Program), "sort -i "+aPath+"\n")
	expect.EQ(t, r.Live(), 0)
}

func TestRunStdin(t *testing.T) {
	ctx := context.Background()
	_, _, r, cleanup := setup(t)
	defer cleanup()
	src, err := r.Run(ctx, bedtools.Call{
		Tool:  "merge",
		Args:  bedtools.Args{bedtools.Value("i", "stdin")},
		Stdin: strings.NewReader(aBed),
	})
	assert.NoError(t, err)
	expect.EQ(t, serialize(t, src), aBed)
}

func TestRunStreamed(t *testing.T) {
	ctx := context.Background()
	_, aPath, r, cleanup := setup(t)
	defer cleanup()

	src, err := r.Run(ctx, bedtools.Call{
		Tool:   "intersect",
		Args:   bedtools.Args{bedtools.Value("a", aPath), bedtools.Value("b", aPath), bedtools.Flag("u")},
		Stream: true,
	})
	assert.NoError(t, err)
	p, ok := src.(*source.Pipe)
	require.True(t, ok)
	expect.False(t, p.Restartable())
	expect.EQ(t, serialize(t, p), aBed)
	expect.True(t, p.Done())
	expect.EQ(t, r.Live(), 0)
	// One-shot: the second read is empty.
	expect.EQ(t, serialize(t, p), "")
	// Streaming creates no temp file.
	expect.EQ(t, len(r.Registry.Paths()), 0)
}

func TestStreamedEqualsMaterialized(t *testing.T) {
	ctx := context.Background()
	_, aPath, r, cleanup := setup(t)
	defer cleanup()
	call := bedtools.Call{Tool: "merge", Args: bedtools.Args{bedtools.Value("i", aPath)}}
	file, err := r.Run(ctx, call)
	assert.NoError(t, err)
	call.Stream = true
	pipe, err := r.Run(ctx, call)
	assert.NoError(t, err)
	expect.EQ(t, serialize(t, pipe), serialize(t, file))
}

func TestRunFailure(t *testing.T) {
	ctx := context.Background()
	dir, aPath, r, cleanup := setup(t)
	defer cleanup()

	_, err := r.Run(ctx, bedtools.Call{Tool: "fail", Args: bedtools.Args{bedtools.Value("i", aPath)}})
	require.Error(t, err)
	berr, ok := err.(*bedtools.Error)
	require.True(t, ok, "%v", err)
	expect.EQ(t, berr.Args, []string{r.Program, "fail", "-i", aPath})
	expect.HasSubstr(t, berr.Stderr, "failure requested")
	expect.HasSubstr(t, err.Error(), "failure requested")

	// The partial output is gone and unregistered.
	expect.EQ(t, len(r.Registry.Paths()), 0)
	matches, err := filepath.Glob(filepath.Join(dir, tempfile.Pattern))
	assert.NoError(t, err)
	expect.EQ(t, len(matches), 0)
	expect.EQ(t, r.Live(), 0)
}

func TestRunStreamedFailure(t *testing.T) {
	ctx := context.Background()
	_, _, r, cleanup := setup(t)
	defer cleanup()
	src, err := r.Run(ctx, bedtools.Call{Tool: "fail", Stream: true})
	assert.NoError(t, err)
	var buf bytes.Buffer
	err = source.Write(ctx, &buf, src)
	require.Error(t, err)
	_, ok := err.(*bedtools.Error)
	expect.True(t, ok, "%v", err)
}

func TestRunMissingProgram(t *testing.T) {
	ctx := context.Background()
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	reg, err := tempfile.New(dir)
	assert.NoError(t, err)

	for _, prog := range []string{filepath.Join(dir, "nope"), "bedpipe-no-such-program"} {
		r := bedtools.NewRunner(prog, reg)
		_, err = r.Check()
		expect.True(t, errors.Is(errors.NotExist, err), "%v", err)
		_, err = r.Run(ctx, bedtools.Call{Tool: "sort"})
		berr, ok := err.(*bedtools.Error)
		require.True(t, ok, "%v", err)
		expect.True(t, errors.Is(errors.NotExist, berr.Err))
		expect.EQ(t, berr.Args, []string{prog, "sort"})
	}
	expect.EQ(t, len(reg.Paths()), 0)
}

func TestAbandonedStreamIsKilled(t *testing.T) {
	ctx := context.Background()
	_, aPath, r, cleanup := setup(t)
	defer cleanup()
	src, err := r.Run(ctx, bedtools.Call{
		Tool:   "sleep",
		Args:   bedtools.Args{bedtools.Value("i", aPath)},
		Stream: true,
	})
	assert.NoError(t, err)
	it, err := src.Open(ctx)
	assert.NoError(t, err)
	expect.True(t, it.Scan())
	expect.EQ(t, it.Record().Start(), int64(1))
	expect.EQ(t, r.Live(), 1)
	assert.NoError(t, it.Close())
	expect.EQ(t, r.Live(), 0)
}

func TestRunnerCloseKillsStreams(t *testing.T) {
	ctx := context.Background()
	_, aPath, r, cleanup := setup(t)
	defer cleanup()
	for i := 0; i < 2; i++ {
		_, err := r.Run(ctx, bedtools.Call{
			Tool:   "sleep",
			Args:   bedtools.Args{bedtools.Value("i", aPath)},
			Stream: true,
		})
		assert.NoError(t, err)
	}
	expect.EQ(t, r.Live(), 2)
	assert.NoError(t, r.Close())
	expect.EQ(t, r.Live(), 0)
}

func TestRealBedtools(t *testing.T) {
	path := bedtoolstest.Real(t)
	ctx := context.Background()
	dir, aPath, _, cleanup := setup(t)
	defer cleanup()
	reg, err := tempfile.New(dir)
	assert.NoError(t, err)
	r := bedtools.NewRunner(path, reg)
	src, err := r.Run(ctx, bedtools.Call{Tool: "merge", Args: bedtools.Args{bedtools.Value("i", aPath)}})
	assert.NoError(t, err)
	expect.EQ(t, serialize(t, src), "chr1\t1\t500\nchr1\t900\t950\n")
}
