// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package bedtoolstest provides a stand-in bedtools executable for tests.
package bedtoolstest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/grailbio/bedpipe/bedtools"
	"github.com/grailbio/bedpipe/tempfile"
	"github.com/grailbio/testutil/assert"
	"v.io/x/lib/gosh"
	"v.io/x/lib/lookpath"
)

// fakeScript copies the primary input (-a or -i) to standard output, reading
// standard input for "stdin" or "-".  The subcommand "fail" writes to
// standard error and exits with status 3; "sleep" copies like the others but
// never exits on its own.  Every argument list is appended to $0.log.
const fakeScript = `#!/bin/sh
echo "$@" >> "$0.log"
tool=$1
shift
if [ "$tool" = fail ]; then
  echo "fake bedtools: failure requested" >&2
  exit 3
fi
in=
while [ $# -gt 0 ]; do
  case "$1" in
    -a|-i) in=$2; shift 2 ;;
    -b|-g|-c|-o|-l|-r|-w|-f|-fi|-fo) shift 2 ;;
    *) shift ;;
  esac
done
case "$in" in
  ""|stdin|-) cat ;;
  *) cat "$in" ;;
esac
if [ "$tool" = sleep ]; then
  exec sleep 1000
fi
`

// Fake writes the stand-in bedtools into dir and returns its path.
func Fake(t testing.TB, dir string) string {
	path := filepath.Join(dir, "bedtools")
	assert.NoError(t, os.WriteFile(path, []byte(fakeScript), 0755))
	return path
}

// Log returns the argument lists the fake at path has been called with, one
// per line.
func Log(t testing.TB, path string) string {
	data, err := os.ReadFile(path + ".log")
	if os.IsNotExist(err) {
		return ""
	}
	assert.NoError(t, err)
	return string(data)
}

// NewRunner returns a runner over the fake bedtools, with temp files in a
// new registry under dir.
func NewRunner(t testing.TB, dir string) *bedtools.Runner {
	reg, err := tempfile.New(dir)
	assert.NoError(t, err)
	return bedtools.NewRunner(Fake(t, dir), reg)
}

// Real returns the path of the bedtools installed on the machine, skipping
// the test if there is none.
func Real(t testing.TB) string {
	sh := gosh.NewShell(nil)
	defer sh.Cleanup()
	path, err := lookpath.Look(sh.Vars, bedtools.DefaultProgram)
	if err != nil {
		t.Skipf("bedtools not found on the machine. Skipping the test")
	}
	return path
}
