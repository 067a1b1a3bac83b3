// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

/*Package interval parses and validates genomic interval records, one line at a
  time, from BED-like (3 to 12+ columns) and GFF/GTF (9 column) text.

  Coordinates are always exposed as 0-based half-open [Start, End), regardless
  of the on-disk convention of the record's format.  The original fields are
  kept verbatim so that String() reproduces the record as it was read.

  Blank lines, "track" and "browser" directives, and "#" comments are not
  records; ParseLine and Scanner skip them silently.  Anything else that does
  not parse is reported as a *MalformedRecordError carrying the line number
  and raw text.

  The package also holds the genome-size table (Genome) that interval
  operations consult to clamp coordinates to chromosome bounds, and Union, an
  endpoint index answering overlap queries against a set of target regions.
*/
package interval
