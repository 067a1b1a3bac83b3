// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package interval

import (
	"fmt"
	"strconv"
	"strings"

	gunsafe "github.com/grailbio/base/unsafe"
)

// Format identifies the column layout of a record.
type Format int

const (
	// BED is the UCSC BED layout: chrom, 0-based start, end, then optional
	// name, score, strand and any number of further columns.
	BED Format = iota
	// GFF is the 9-column GFF/GTF layout: seqname, source, feature, 1-based
	// start, 1-based inclusive end, score, strand, frame, attributes.
	GFF
)

// String implements fmt.Stringer.
func (f Format) String() string {
	switch f {
	case BED:
		return "bed"
	case GFF:
		return "gff"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// Strand is the strand annotation of a record.  The zero value means that the
// record carries no strand.
type Strand byte

const (
	// StrandNone is the strand of records with no strand column, or with '.'.
	StrandNone Strand = 0
	// StrandPlus is '+'.
	StrandPlus Strand = '+'
	// StrandMinus is '-'.
	StrandMinus Strand = '-'
)

// String implements fmt.Stringer.
func (s Strand) String() string {
	if s == StrandNone {
		return "."
	}
	return string(byte(s))
}

// Column indexes of the semantic fields, per format.
const (
	bedNameCol   = 3
	bedScoreCol  = 4
	bedStrandCol = 5

	gffStartCol  = 3
	gffEndCol    = 4
	gffScoreCol  = 5
	gffStrandCol = 6
	gffAttrCol   = 8
	gffNumFields = 9
)

// gffNameKeys lists, in priority order, the attribute keys that provide a
// GFF/GTF record's name.
var gffNameKeys = []string{"ID", "Name", "gene_name", "gene_id", "transcript_id"}

// Record is one parsed interval.  The field count is fixed at parse time;
// Records are never modified in place (see WithCoords).
type Record struct {
	fields []string
	format Format
	chrom  string
	start  int64
	end    int64
}

// MalformedRecordError reports a line that is neither a record nor a
// recognized non-data line.
type MalformedRecordError struct {
	// LineNum is the 1-based line number, or 0 when the record did not come
	// from a line-oriented reader.
	LineNum int
	// Line is the raw text of the offending line.
	Line string
	// Reason describes what is wrong.
	Reason string
}

// Error implements error.
func (e *MalformedRecordError) Error() string {
	if e.LineNum > 0 {
		return fmt.Sprintf("interval: malformed record on line %d: %s: %q", e.LineNum, e.Reason, e.Line)
	}
	return fmt.Sprintf("interval: malformed record: %s: %q", e.Reason, e.Line)
}

// IsSkipLine reports whether line carries no record: it is blank, a "track" or
// "browser" directive, or a "#" comment.
func IsSkipLine(line []byte) bool {
	pos := 0
	for pos < len(line) && line[pos] <= ' ' {
		pos++
	}
	rest := line[pos:]
	if len(rest) == 0 || rest[0] == '#' {
		return true
	}
	return hasDirective(rest, "track") || hasDirective(rest, "browser")
}

func hasDirective(line []byte, word string) bool {
	if len(line) < len(word) || gunsafe.BytesToString(line[:len(word)]) != word {
		return false
	}
	return len(line) == len(word) || line[len(word)] <= ' '
}

// ParseLine parses one line of interval text.  It returns (nil, nil) when the
// line is a skip line (see IsSkipLine).  lineNum is only used for error
// reporting.
func ParseLine(line string, lineNum int) (*Record, error) {
	return parseLine([]byte(line), lineNum)
}

func parseLine(line []byte, lineNum int) (*Record, error) {
	line = trimEOL(line)
	if IsSkipLine(line) {
		return nil, nil
	}
	tokens := splitFields(line)
	return newRecord(tokens, line, lineNum)
}

// NewRecord creates a record from already-split fields, applying the same
// validation as ParseLine.
func NewRecord(fields []string) (*Record, error) {
	tokens := make([][]byte, len(fields))
	for i, f := range fields {
		tokens[i] = []byte(f)
	}
	return newRecord(tokens, []byte(strings.Join(fields, "\t")), 0)
}

func newRecord(tokens [][]byte, line []byte, lineNum int) (*Record, error) {
	malformed := func(format string, args ...interface{}) error {
		return &MalformedRecordError{LineNum: lineNum, Line: string(line), Reason: fmt.Sprintf(format, args...)}
	}
	if len(tokens) < 3 {
		return nil, malformed("expected at least 3 fields, found %d", len(tokens))
	}
	rec := &Record{format: detectFormat(tokens)}
	startCol, endCol := 1, 2
	if rec.format == GFF {
		startCol, endCol = gffStartCol, gffEndCol
	}
	start, err := strconv.ParseInt(gunsafe.BytesToString(tokens[startCol]), 10, 64)
	if err != nil {
		return nil, malformed("invalid start coordinate %q", tokens[startCol])
	}
	end, err := strconv.ParseInt(gunsafe.BytesToString(tokens[endCol]), 10, 64)
	if err != nil {
		return nil, malformed("invalid end coordinate %q", tokens[endCol])
	}
	if rec.format == GFF {
		start--
	}
	if start < 0 {
		return nil, malformed("negative start coordinate %d", start)
	}
	if end < start {
		return nil, malformed("end %d is before start %d", end, start)
	}
	// Heap copies: tokens alias a reader buffer that will be overwritten.
	rec.fields = make([]string, len(tokens))
	for i, tok := range tokens {
		rec.fields[i] = string(tok)
	}
	rec.chrom = rec.fields[0]
	rec.start = start
	rec.end = end
	return rec, nil
}

// detectFormat decides between BED and GFF.  A line whose second and third
// columns are integers is BED; otherwise a nine-field line with integer
// fourth and fifth columns is GFF.
func detectFormat(tokens [][]byte) Format {
	if isDigits(tokens[1]) && isDigits(tokens[2]) {
		return BED
	}
	if len(tokens) == gffNumFields && isDigits(tokens[gffStartCol]) && isDigits(tokens[gffEndCol]) {
		return GFF
	}
	return BED
}

func isDigits(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	for _, c := range b {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// Chrom returns the chromosome name.
func (r *Record) Chrom() string { return r.chrom }

// Start returns the 0-based inclusive start.
func (r *Record) Start() int64 { return r.start }

// End returns the 0-based exclusive end.
func (r *Record) End() int64 { return r.end }

// Len returns End() - Start().
func (r *Record) Len() int64 { return r.end - r.start }

// Format returns the column layout the record was parsed as.
func (r *Record) Format() Format { return r.format }

// NumFields returns the number of fields.
func (r *Record) NumFields() int { return len(r.fields) }

// Field returns the i'th (0-based) field verbatim.  It panics if i is out of
// range.
func (r *Record) Field(i int) string { return r.fields[i] }

// Fields returns a copy of all fields.
func (r *Record) Fields() []string {
	return append([]string(nil), r.fields...)
}

// Name returns the feature name.  BED records take it from the fourth column;
// GFF/GTF records from the first recognized key in the attributes column.
func (r *Record) Name() (string, bool) {
	if r.format == GFF {
		attrs := ParseAttributes(r.fields[gffAttrCol])
		for _, key := range gffNameKeys {
			if v, ok := attrs[key]; ok {
				return v, true
			}
		}
		return "", false
	}
	if len(r.fields) <= bedNameCol {
		return "", false
	}
	return r.fields[bedNameCol], true
}

// Score returns the numeric score, if the record has one.
func (r *Record) Score() (float64, bool) {
	col := bedScoreCol
	if r.format == GFF {
		col = gffScoreCol
	}
	if len(r.fields) <= col || r.fields[col] == "." {
		return 0, false
	}
	v, err := strconv.ParseFloat(r.fields[col], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Strand returns the strand annotation.
func (r *Record) Strand() Strand {
	col := bedStrandCol
	if r.format == GFF {
		col = gffStrandCol
	}
	if len(r.fields) <= col {
		return StrandNone
	}
	switch r.fields[col] {
	case "+":
		return StrandPlus
	case "-":
		return StrandMinus
	}
	return StrandNone
}

// Region returns the record's coordinates.
func (r *Record) Region() Region {
	return Region{Chrom: r.chrom, Start: r.start, End: r.end}
}

// WithCoords returns a copy of the record moved to [start, end), with the
// coordinate columns rewritten in the record's own convention.
func (r *Record) WithCoords(start, end int64) (*Record, error) {
	if start < 0 || end < start {
		return nil, &MalformedRecordError{Line: r.String(), Reason: fmt.Sprintf("invalid coordinate pair [%d, %d)", start, end)}
	}
	n := &Record{
		fields: r.Fields(),
		format: r.format,
		chrom:  r.chrom,
		start:  start,
		end:    end,
	}
	if r.format == GFF {
		n.fields[gffStartCol] = strconv.FormatInt(start+1, 10)
		n.fields[gffEndCol] = strconv.FormatInt(end, 10)
	} else {
		n.fields[1] = strconv.FormatInt(start, 10)
		n.fields[2] = strconv.FormatInt(end, 10)
	}
	return n, nil
}

// String returns the tab-joined fields, without a line terminator.
func (r *Record) String() string {
	return strings.Join(r.fields, "\t")
}

// ParseAttributes parses a GFF3 ("key=value;...") or GTF ('key "value"; ...')
// attributes column.  Malformed items are ignored.
func ParseAttributes(s string) map[string]string {
	attrs := make(map[string]string)
	for _, item := range strings.Split(s, ";") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if eq := strings.IndexByte(item, '='); eq > 0 {
			attrs[item[:eq]] = item[eq+1:]
			continue
		}
		if sp := strings.IndexByte(item, ' '); sp > 0 {
			attrs[item[:sp]] = strings.Trim(strings.TrimSpace(item[sp+1:]), `"`)
		}
	}
	return attrs
}
