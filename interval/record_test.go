// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package interval_test

import (
	"strings"
	"testing"

	"github.com/grailbio/bedpipe/interval"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func TestParseLineBED6(t *testing.T) {
	rec, err := interval.ParseLine("chr1\t1\t100\tfeature1\t0\t+\n", 1)
	assert.NoError(t, err)
	expect.EQ(t, rec.Chrom(), "chr1")
	expect.EQ(t, rec.Start(), int64(1))
	expect.EQ(t, rec.End(), int64(100))
	expect.EQ(t, rec.Len(), int64(99))
	expect.EQ(t, rec.NumFields(), 6)
	expect.EQ(t, rec.Format(), interval.BED)
	expect.EQ(t, rec.Strand(), interval.StrandPlus)
	name, ok := rec.Name()
	expect.True(t, ok)
	expect.EQ(t, name, "feature1")
	score, ok := rec.Score()
	expect.True(t, ok)
	expect.EQ(t, score, 0.0)
	expect.EQ(t, rec.String(), "chr1\t1\t100\tfeature1\t0\t+")
}

func TestParseLineBED3(t *testing.T) {
	rec, err := interval.ParseLine("chrX  1 10", 7)
	assert.NoError(t, err)
	expect.EQ(t, rec.String(), "chrX\t1\t10")
	_, ok := rec.Name()
	expect.False(t, ok)
	_, ok = rec.Score()
	expect.False(t, ok)
	expect.EQ(t, rec.Strand(), interval.StrandNone)
}

func TestParseLineSkip(t *testing.T) {
	for _, line := range []string{
		"",
		"   ",
		"\n",
		`track name="test"`,
		"browser position chrX:1-100",
		"# comment line",
		"   # indented comment",
		"track",
	} {
		rec, err := interval.ParseLine(line, 1)
		expect.NoError(t, err, line)
		expect.True(t, rec == nil, line)
	}
	// A chromosome that merely starts with a directive word is a record.
	rec, err := interval.ParseLine("trackless\t1\t2", 1)
	assert.NoError(t, err)
	expect.EQ(t, rec.Chrom(), "trackless")
}

func TestParseLineMalformed(t *testing.T) {
	tests := []struct {
		line   string
		reason string
	}{
		{"chr1\t100\t90", "before start"},
		{"chr1\t100", "at least 3 fields"},
		{"chr1\tabc\t200", "invalid start"},
		{"chr1\t1\tx", "invalid end"},
		{"chr1\t-5\t10", "negative start"},
	}
	for _, tt := range tests {
		_, err := interval.ParseLine(tt.line, 12)
		merr, ok := err.(*interval.MalformedRecordError)
		assert.True(t, ok, "line %q: got %v", tt.line, err)
		expect.EQ(t, merr.LineNum, 12)
		expect.EQ(t, merr.Line, tt.line)
		expect.HasSubstr(t, merr.Error(), tt.reason)
	}
}

func TestParseLineGFF(t *testing.T) {
	s := `
    chr1	fake	gene	1	100	.	+	.	ID=gene1
    chr1	fake	mRNA	1	100	.	+	.	Name=mRNA1
    chr1	fake	CDS	50	90	.	+	.	other=nothing
    chr1	fake	exon	50	90	7.5	-	.	gene_id "g1"; transcript_id "t1";
`
	var recs []*interval.Record
	for i, line := range strings.Split(s, "\n") {
		rec, err := interval.ParseLine(strings.TrimSpace(line), i+1)
		assert.NoError(t, err)
		if rec != nil {
			recs = append(recs, rec)
		}
	}
	assert.EQ(t, len(recs), 4)
	for _, rec := range recs {
		expect.EQ(t, rec.Format(), interval.GFF)
	}
	name, ok := recs[0].Name()
	expect.True(t, ok)
	expect.EQ(t, name, "gene1")
	name, ok = recs[1].Name()
	expect.True(t, ok)
	expect.EQ(t, name, "mRNA1")
	_, ok = recs[2].Name()
	expect.False(t, ok)
	name, ok = recs[3].Name()
	expect.True(t, ok)
	expect.EQ(t, name, "g1")

	// 1-based closed on disk, 0-based half-open in memory.
	expect.EQ(t, recs[2].Start(), int64(49))
	expect.EQ(t, recs[2].End(), int64(90))
	expect.EQ(t, recs[3].Strand(), interval.StrandMinus)
	score, ok := recs[3].Score()
	expect.True(t, ok)
	expect.EQ(t, score, 7.5)
	_, ok = recs[0].Score()
	expect.False(t, ok)
}

func TestNineColumnBED(t *testing.T) {
	// Nine fields whose fourth column is not numeric stay BED.
	rec, err := interval.ParseLine("chr1\t10\t20\tname\t0\t+\t10\t20\t0,0,0", 1)
	assert.NoError(t, err)
	expect.EQ(t, rec.Format(), interval.BED)
	expect.EQ(t, rec.Start(), int64(10))

	// Numeric name and score columns do not make a BED9 line GFF.
	for _, line := range []string{
		"chr1\t100\t200\t1\t500\t+\t100\t200\t0",
		"chr1\t100\t200\t5\t0\t+\t100\t200\t0",
	} {
		rec, err = interval.ParseLine(line, 1)
		assert.NoError(t, err)
		expect.EQ(t, rec.Format(), interval.BED, line)
		expect.EQ(t, rec.Start(), int64(100), line)
		expect.EQ(t, rec.End(), int64(200), line)
		expect.EQ(t, rec.String(), line)
	}
}

func TestWithCoords(t *testing.T) {
	bed, err := interval.ParseLine("chr1\t100\t200\tfeature2\t0\t+", 1)
	assert.NoError(t, err)
	moved, err := bed.WithCoords(145, 155)
	assert.NoError(t, err)
	expect.EQ(t, moved.String(), "chr1\t145\t155\tfeature2\t0\t+")
	expect.EQ(t, bed.String(), "chr1\t100\t200\tfeature2\t0\t+")

	gff, err := interval.ParseLine("chr1\tfake\tgene\t1\t100\t.\t+\t.\tID=gene1", 1)
	assert.NoError(t, err)
	moved, err = gff.WithCoords(9, 20)
	assert.NoError(t, err)
	expect.EQ(t, moved.String(), "chr1\tfake\tgene\t10\t20\t.\t+\t.\tID=gene1")
	expect.EQ(t, moved.Start(), int64(9))

	_, err = bed.WithCoords(10, 5)
	expect.NotNil(t, err)
}

func TestNewRecord(t *testing.T) {
	rec, err := interval.NewRecord([]string{"chr1", "1", "100", "0"})
	assert.NoError(t, err)
	expect.EQ(t, rec.NumFields(), 4)
	expect.EQ(t, rec.String(), "chr1\t1\t100\t0")

	_, err = interval.NewRecord([]string{"chr1", "5", "1"})
	_, ok := err.(*interval.MalformedRecordError)
	expect.True(t, ok)
}

func TestNormalizeLine(t *testing.T) {
	expect.EQ(t, interval.NormalizeLine("  chr1\t1\t100\tfeature1  0\t+  "), "chr1\t1\t100\tfeature1\t0\t+")
}
