// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package source

import (
	"context"
	"strings"

	"github.com/grailbio/bedpipe/interval"
)

// Text is a source backed by an in-memory string.  It is not restartable:
// callers that need to read it more than once should Materialize it.
type Text struct {
	data string
}

// NewText returns a Text source over data.  The data is parsed as is; see
// Normalize for hand-typed input.
func NewText(data string) *Text { return &Text{data: data} }

// Normalize rewrites hand-typed interval text so that fields are separated by
// single tabs.  Blank lines are dropped and every line is '\n'-terminated.
func Normalize(data string) string {
	var b strings.Builder
	for _, line := range strings.Split(data, "\n") {
		line = interval.NormalizeLine(line)
		if line == "" {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// Data returns the text.
func (t *Text) Data() string { return t.data }

// Kind implements Source.
func (t *Text) Kind() Kind { return KindText }

// Restartable implements Source.
func (t *Text) Restartable() bool { return false }

// String implements Source.
func (t *Text) String() string { return "<text>" }

// Close implements Source.
func (t *Text) Close() error { return nil }

// Open implements Source.
func (t *Text) Open(context.Context) (Iterator, error) {
	return &scanIterator{sc: interval.NewScanner(strings.NewReader(t.data))}, nil
}

// scanIterator adapts an interval.Scanner over a reader that needs no
// closing.
type scanIterator struct {
	sc *interval.Scanner
}

func (it *scanIterator) Scan() bool               { return it.sc.Scan() }
func (it *scanIterator) Record() *interval.Record { return it.sc.Record() }
func (it *scanIterator) Err() error               { return it.sc.Err() }
func (it *scanIterator) Close() error             { return nil }
