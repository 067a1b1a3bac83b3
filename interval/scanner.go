// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package interval

import (
	"bufio"
	"io"
)

// maxLineLen bounds the length of a single line.  bufio.Scanner does not
// resize past its configured maximum.
const maxLineLen = 16 << 20

// Scanner reads records from a stream of interval text, skipping non-data
// lines.  It stops at the first malformed line.  Its use is the same as
// bufio.Scanner:
//
//   sc := interval.NewScanner(r)
//   for sc.Scan() {
//     rec := sc.Record()
//     ...
//   }
//   if err := sc.Err(); err != nil {
//     ...
//   }
type Scanner struct {
	sc      *bufio.Scanner
	lineNum int
	rec     *Record
	err     error
}

// NewScanner creates a Scanner reading from r.
func NewScanner(r io.Reader) *Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(nil, maxLineLen)
	return &Scanner{sc: sc}
}

// Scan advances to the next record.  It returns false at the end of input or
// on error.
func (s *Scanner) Scan() bool {
	if s.err != nil {
		return false
	}
	for s.sc.Scan() {
		s.lineNum++
		// Bytes() does not allocate; parseLine copies what it keeps.
		rec, err := parseLine(s.sc.Bytes(), s.lineNum)
		if err != nil {
			s.err = err
			s.rec = nil
			return false
		}
		if rec == nil {
			continue
		}
		s.rec = rec
		return true
	}
	s.err = s.sc.Err()
	s.rec = nil
	return false
}

// Record returns the record read by the last successful Scan call.
func (s *Scanner) Record() *Record { return s.rec }

// LineNum returns the 1-based number of the last line read.
func (s *Scanner) LineNum() int { return s.lineNum }

// Err returns the error, if any, that stopped the scan.  A malformed line is
// reported as a *MalformedRecordError.
func (s *Scanner) Err() error { return s.err }
