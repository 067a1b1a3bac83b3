// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/bedpipe/bedtools"
	"github.com/grailbio/bedpipe/interval"
	"github.com/grailbio/bedpipe/source"
)

// StreamArg is the pseudo-option that makes an operation return a live
// stream instead of a temp file.  It is not passed to bedtools.
const StreamArg = "stream"

// Stream requests a streamed result; see StreamArg.
var Stream = bedtools.Flag(StreamArg)

// tool describes how a bedtools subcommand takes its inputs.
type tool struct {
	name string
	// in is the option naming the primary input ("a" or "i").
	in string
	// other is the option naming the secondary input, if any.
	other string
	// genome is set for tools that need a genome-size table (-g).
	genome bool
}

var (
	toolIntersect  = tool{name: "intersect", in: "a", other: "b"}
	toolSubtract   = tool{name: "subtract", in: "a", other: "b"}
	toolClosest    = tool{name: "closest", in: "a", other: "b"}
	toolWindow     = tool{name: "window", in: "a", other: "b"}
	toolMerge      = tool{name: "merge", in: "i"}
	toolSort       = tool{name: "sort", in: "i"}
	toolSlop       = tool{name: "slop", in: "i", genome: true}
	toolFlank      = tool{name: "flank", in: "i", genome: true}
	toolComplement = tool{name: "complement", in: "i", genome: true}
	toolBed6       = tool{name: "bed12tobed6", in: "i"}
)

// Intersect runs "bedtools intersect -a h -b other".
func (h *Handle) Intersect(ctx context.Context, other *Handle, args ...bedtools.Arg) (*Handle, error) {
	return h.run(ctx, toolIntersect, other, args)
}

// Add returns the records of h that overlap other ("intersect -u").
func (h *Handle) Add(ctx context.Context, other *Handle, args ...bedtools.Arg) (*Handle, error) {
	return h.run(ctx, toolIntersect, other, bedtools.Args(args).With(bedtools.Flag("u")))
}

// Sub returns the records of h that do not overlap other ("intersect -v").
func (h *Handle) Sub(ctx context.Context, other *Handle, args ...bedtools.Arg) (*Handle, error) {
	return h.run(ctx, toolIntersect, other, bedtools.Args(args).With(bedtools.Flag("v")))
}

// Subtract runs "bedtools subtract -a h -b other".
func (h *Handle) Subtract(ctx context.Context, other *Handle, args ...bedtools.Arg) (*Handle, error) {
	return h.run(ctx, toolSubtract, other, args)
}

// Closest runs "bedtools closest -a h -b other".
func (h *Handle) Closest(ctx context.Context, other *Handle, args ...bedtools.Arg) (*Handle, error) {
	return h.run(ctx, toolClosest, other, args)
}

// Window runs "bedtools window -a h -b other".
func (h *Handle) Window(ctx context.Context, other *Handle, args ...bedtools.Arg) (*Handle, error) {
	return h.run(ctx, toolWindow, other, args)
}

// Merge runs "bedtools merge -i h".  bedtools requires sorted input.
func (h *Handle) Merge(ctx context.Context, args ...bedtools.Arg) (*Handle, error) {
	return h.run(ctx, toolMerge, nil, args)
}

// Sort runs "bedtools sort -i h".
func (h *Handle) Sort(ctx context.Context, args ...bedtools.Arg) (*Handle, error) {
	return h.run(ctx, toolSort, nil, args)
}

// Slop runs "bedtools slop -i h -g genome".  The genome comes from a "g"
// option, whose value is an interval.Genome, a genome file, or an assembly
// name; otherwise from the attached genome.
func (h *Handle) Slop(ctx context.Context, args ...bedtools.Arg) (*Handle, error) {
	return h.run(ctx, toolSlop, nil, args)
}

// Flank runs "bedtools flank -i h -g genome".  See Slop for the genome.
func (h *Handle) Flank(ctx context.Context, args ...bedtools.Arg) (*Handle, error) {
	return h.run(ctx, toolFlank, nil, args)
}

// Complement runs "bedtools complement -i h -g genome".  See Slop for the
// genome.
func (h *Handle) Complement(ctx context.Context, args ...bedtools.Arg) (*Handle, error) {
	return h.run(ctx, toolComplement, nil, args)
}

// Bed6 splits BED12 blocks into BED6 records ("bedtools bed12tobed6").
func (h *Handle) Bed6(ctx context.Context, args ...bedtools.Arg) (*Handle, error) {
	return h.run(ctx, toolBed6, nil, args)
}

// Run runs an arbitrary bedtools subcommand over h.  in names the option of
// the primary input, e.g. "i" or "a".
func (h *Handle) Run(ctx context.Context, subcommand, in string, args ...bedtools.Arg) (*Handle, error) {
	return h.run(ctx, tool{name: subcommand, in: in}, nil, args)
}

func (h *Handle) run(ctx context.Context, t tool, other *Handle, opts []bedtools.Arg) (*Handle, error) {
	args := bedtools.Args(opts)
	stream := args.Has(StreamArg)
	args = args.Without(StreamArg)

	var genomeArg bedtools.Arg
	if t.genome {
		path, err := h.genomeFile(ctx, t.name, args)
		if err != nil {
			return nil, err
		}
		genomeArg = bedtools.Value("g", path)
		args = args.Without("g")
	}
	params := args.Render()

	var parents []NodeID
	call := bedtools.Call{Tool: t.name, Stream: stream}
	inArg, stdin, err := h.input(ctx, t.in)
	if err != nil {
		return nil, err
	}
	call.Args = append(call.Args, inArg)
	call.Stdin = stdin
	if other != nil {
		if err := other.Materialize(ctx); err != nil {
			return nil, err
		}
		call.Args = append(call.Args, bedtools.Value(t.other, other.Path()))
		parents = append(parents, other.id)
	}
	if t.genome {
		call.Args = append(call.Args, genomeArg)
	}
	call.Args = append(call.Args, args...)

	src, err := h.sess.runner.Run(ctx, call)
	// Unblock the writer if the tool stopped reading early.  A streamed tool
	// is still reading.
	if closer, ok := stdin.(io.Closer); ok && (err != nil || !stream) {
		_ = closer.Close()
	}
	if err != nil {
		return nil, err
	}
	return h.derive(t.name, params, src, parents...), nil
}

// input returns the option that feeds h to a tool.  A file is passed by
// name; a one-shot source is piped through standard input.
func (h *Handle) input(ctx context.Context, name string) (bedtools.Arg, io.Reader, error) {
	src := h.Source()
	if f, ok := src.(*source.File); ok {
		return bedtools.Value(name, f.Path), nil, nil
	}
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(source.Write(ctx, pw, src))
	}()
	return bedtools.Value(name, "stdin"), pr, nil
}

// genomeFile returns the path of a genome-size file for a tool that needs
// one.  It fails with a Precondition error if there is no genome.
func (h *Handle) genomeFile(ctx context.Context, toolName string, args bedtools.Args) (string, error) {
	var g interval.Genome
	if v, ok := args.Lookup("g"); ok {
		switch v := v.(type) {
		case interval.Genome:
			g = v
		case string:
			if info, err := os.Stat(v); err == nil && !info.IsDir() {
				return v, nil
			}
			var err error
			if g, err = h.sess.Genome(ctx, v); err != nil {
				return "", err
			}
		default:
			return "", errors.E(errors.Precondition, fmt.Sprintf("%s: invalid genome option of type %T", toolName, v))
		}
	} else if g = h.Genome(); g == nil {
		return "", errors.E(errors.Precondition, toolName, "requires a genome-size table: pass a \"g\" option or attach one with SetGenome")
	}
	path, err := h.sess.reg.NewPath()
	if err != nil {
		return "", err
	}
	if err := g.WriteFile(ctx, path); err != nil {
		return "", err
	}
	log.Debug.Printf("pipeline: wrote genome table for %s to %s", toolName, path)
	return path, nil
}
