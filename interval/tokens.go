// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package interval

import "bytes"

// splitFields splits a line into fields.  Tab-delimited lines are split on
// tabs only, so that fields such as GTF attributes may contain spaces.  Lines
// without any tab are split on runs of characters <= ' '.
//
// The returned slices alias line.
func splitFields(line []byte) [][]byte {
	if bytes.IndexByte(line, '\t') >= 0 {
		return bytes.Split(line, []byte{'\t'})
	}
	return getTokens(line)
}

// getTokens identifies the whitespace-delimited tokens of curLine.  Any (group
// of) characters <= ' ' is treated as a delimiter.
func getTokens(curLine []byte) [][]byte {
	var tokens [][]byte
	posEnd := 0
	lineLen := len(curLine)
	for {
		// These simple loops beat the standard library split functions for the
		// handful of short tokens a BED line has.
		pos := posEnd
		for ; pos != lineLen; pos++ {
			if curLine[pos] > ' ' {
				break
			}
		}
		if pos == lineLen {
			return tokens
		}
		posEnd = pos
		for ; posEnd != lineLen; posEnd++ {
			if curLine[posEnd] <= ' ' {
				break
			}
		}
		tokens = append(tokens, curLine[pos:posEnd])
	}
}

// trimEOL strips a trailing "\n" or "\r\n".
func trimEOL(line []byte) []byte {
	if n := len(line); n > 0 && line[n-1] == '\n' {
		line = line[:n-1]
	}
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line
}

// NormalizeLine rewrites a line so that its fields are separated by single
// tabs, dropping leading and trailing whitespace.  It is used for records
// typed by hand, where tabs and spaces are mixed.
func NormalizeLine(line string) string {
	tokens := getTokens([]byte(line))
	return string(bytes.Join(tokens, []byte{'\t'}))
}
