// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/log"
	"github.com/grailbio/bedpipe/bedtools"
	"github.com/grailbio/bedpipe/interval"
	"github.com/grailbio/bedpipe/pipeline"
	"v.io/x/lib/cmdline"
)

// commonFlags are accepted by every subcommand that runs a pipeline.
type commonFlags struct {
	config   *string
	tmpDir   *string
	bedtools *string
	stream   *bool
	region   *string
	regions  *string
}

func addCommonFlags(fs *flag.FlagSet) commonFlags {
	return commonFlags{
		config:   fs.String("config", "", "YAML config file. Settings are overridden by BEDPIPE_* environment variables"),
		tmpDir:   fs.String("tmpdir", "", "Directory for temp files. Overrides the config"),
		bedtools: fs.String("bedtools", "", "bedtools executable. Overrides the config"),
		stream:   fs.Bool("stream", false, "Stream the bedtools output instead of writing it to a temp file"),
		region: fs.String("region", "", `Only use input records overlapping this region.
Format as <chrom>:<1-based first pos>-<last pos>, <chrom>:<1-based pos>, or <chrom>`),
		regions: fs.String("regions", "", "Only use input records overlapping a record of this BED file"),
	}
}

// session opens a pipeline session configured by the flags.
func (f commonFlags) session(ctx context.Context) (*pipeline.Session, error) {
	cfg, err := pipeline.LoadConfig(ctx, *f.config)
	if err != nil {
		return nil, err
	}
	if *f.tmpDir != "" {
		cfg.TmpDir = *f.tmpDir
	}
	if *f.bedtools != "" {
		cfg.Bedtools = *f.bedtools
	}
	return pipeline.NewSession(cfg)
}

// open returns the dataset at path, restricted by -region and -regions.
func (f commonFlags) open(ctx context.Context, sess *pipeline.Session, path string) (*pipeline.Handle, error) {
	h, err := sess.FromFile(ctx, path)
	if err != nil {
		return nil, err
	}
	if *f.region != "" {
		region, err := interval.ParseRegion(*f.region)
		if err != nil {
			return nil, err
		}
		h = h.Filter(region.Overlaps)
	}
	if *f.regions != "" {
		targets, err := sess.FromFile(ctx, *f.regions)
		if err != nil {
			return nil, err
		}
		if h, err = h.Within(ctx, targets); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// args appends the -stream pseudo-option when requested.
func (f commonFlags) args(args ...bedtools.Arg) []bedtools.Arg {
	if *f.stream {
		args = append(args, pipeline.Stream)
	}
	return args
}

// pipelineFunc builds the output dataset of a subcommand from its inputs.
type pipelineFunc func(ctx context.Context, inputs []*pipeline.Handle) (*pipeline.Handle, error)

// withInputs opens the session and the inputs, then calls fn.  All temp
// files of the session are removed before returning.
func withInputs(f commonFlags, paths []string, fn func(ctx context.Context, sess *pipeline.Session, inputs []*pipeline.Handle) error) (err error) {
	ctx := context.Background()
	sess, err := f.session(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil && err == nil {
			err = cerr
		}
		if cerr := sess.Cleanup(ctx, false); cerr != nil && err == nil {
			err = cerr
		}
	}()
	inputs := make([]*pipeline.Handle, len(paths))
	for i, path := range paths {
		if inputs[i], err = f.open(ctx, sess, path); err != nil {
			return err
		}
	}
	return fn(ctx, sess, inputs)
}

// runPipeline runs fn over the inputs at paths and writes the result to out.
func runPipeline(f commonFlags, paths []string, out io.Writer, fn pipelineFunc) error {
	return withInputs(f, paths, func(ctx context.Context, _ *pipeline.Session, inputs []*pipeline.Handle) error {
		result, err := fn(ctx, inputs)
		if err != nil {
			return err
		}
		log.Debug.Printf("%v", result)
		return result.WriteTo(ctx, out)
	})
}

// pairOp is a two-input operation such as (*pipeline.Handle).Intersect.
type pairOp func(a *pipeline.Handle, ctx context.Context, b *pipeline.Handle, args ...bedtools.Arg) (*pipeline.Handle, error)

func pairRunner(name string, f commonFlags, op pairOp, opts func() []bedtools.Arg) cmdline.Runner {
	return cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 2 {
			return fmt.Errorf("%s takes two pathname arguments, but got %v", name, argv)
		}
		return runPipeline(f, argv, env.Stdout, func(ctx context.Context, in []*pipeline.Handle) (*pipeline.Handle, error) {
			return op(in[0], ctx, in[1], f.args(opts()...)...)
		})
	})
}

func newCmdIntersect() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "intersect",
		Short:    "Report the overlaps between two interval files",
		ArgsName: "a b",
	}
	f := addCommonFlags(&cmd.Flags)
	u := cmd.Flags.Bool("u", false, "Write each record of a once if it overlaps any record of b")
	v := cmd.Flags.Bool("v", false, "Write only the records of a that overlap no record of b")
	s := cmd.Flags.Bool("s", false, "Require same-strand overlaps")
	cmd.Runner = pairRunner("intersect", f, (*pipeline.Handle).Intersect,
		func() []bedtools.Arg {
			return []bedtools.Arg{bedtools.Value("u", *u), bedtools.Value("v", *v), bedtools.Value("s", *s)}
		})
	return cmd
}

func newCmdSubtract() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "subtract",
		Short:    "Remove the portions of a that overlap b",
		ArgsName: "a b",
	}
	f := addCommonFlags(&cmd.Flags)
	s := cmd.Flags.Bool("s", false, "Only subtract same-strand overlaps")
	cmd.Runner = pairRunner("subtract", f, (*pipeline.Handle).Subtract,
		func() []bedtools.Arg { return []bedtools.Arg{bedtools.Value("s", *s)} })
	return cmd
}

func newCmdMerge() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "merge",
		Short:    "Merge overlapping or nearby records of a sorted interval file",
		ArgsName: "path",
	}
	f := addCommonFlags(&cmd.Flags)
	d := cmd.Flags.Int("d", 0, "Merge records at most this many bases apart")
	sorted := cmd.Flags.Bool("sort", false, "Sort the input first")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("merge takes one pathname argument, but got %v", argv)
		}
		return runPipeline(f, argv, env.Stdout, func(ctx context.Context, in []*pipeline.Handle) (*pipeline.Handle, error) {
			h := in[0]
			if *sorted {
				var err error
				if h, err = h.Sort(ctx, f.args()...); err != nil {
					return nil, err
				}
			}
			var opts []bedtools.Arg
			if *d != 0 {
				opts = append(opts, bedtools.Value("d", *d))
			}
			return h.Merge(ctx, f.args(opts...)...)
		})
	})
	return cmd
}

func newCmdSort() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "sort",
		Short:    "Sort an interval file by chromosome, then start",
		ArgsName: "path",
	}
	f := addCommonFlags(&cmd.Flags)
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("sort takes one pathname argument, but got %v", argv)
		}
		return runPipeline(f, argv, env.Stdout, func(ctx context.Context, in []*pipeline.Handle) (*pipeline.Handle, error) {
			return in[0].Sort(ctx, f.args()...)
		})
	})
	return cmd
}

func newCmdIntrons() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "introns",
		Short:    "Report the gaps between the blocks of BED12 records",
		ArgsName: "path",
	}
	f := addCommonFlags(&cmd.Flags)
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("introns takes one pathname argument, but got %v", argv)
		}
		return runPipeline(f, argv, env.Stdout, func(ctx context.Context, in []*pipeline.Handle) (*pipeline.Handle, error) {
			return in[0].Introns(), nil
		})
	})
	return cmd
}

func newCmdSlop() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "slop",
		Short:    "Grow each record, clamped to the chromosome bounds",
		ArgsName: "path",
	}
	f := addCommonFlags(&cmd.Flags)
	g := cmd.Flags.String("g", "", "Genome: an assembly name such as hg19, or a genome-size file")
	b := cmd.Flags.Int("b", 0, "Bases to add to both ends")
	l := cmd.Flags.Int("l", 0, "Bases to add to the start")
	r := cmd.Flags.Int("r", 0, "Bases to add to the end")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("slop takes one pathname argument, but got %v", argv)
		}
		if *g == "" {
			return fmt.Errorf("slop requires -g")
		}
		opts := []bedtools.Arg{bedtools.Value("g", *g)}
		if *b != 0 {
			opts = append(opts, bedtools.Value("b", *b))
		} else {
			opts = append(opts, bedtools.Value("l", *l), bedtools.Value("r", *r))
		}
		return runPipeline(f, argv, env.Stdout, func(ctx context.Context, in []*pipeline.Handle) (*pipeline.Handle, error) {
			return in[0].Slop(ctx, f.args(opts...)...)
		})
	})
	return cmd
}

func Run() {
	cmdline.HideGlobalFlagsExcept()
	cmdline.Main(newRoot())
}

func newRoot() *cmdline.Command {
	return &cmdline.Command{
		Name:     "bio-bedpipe",
		Short:    "Run bedtools operations on interval files",
		LookPath: false,
		Children: []*cmdline.Command{
			newCmdIntersect(),
			newCmdSubtract(),
			newCmdMerge(),
			newCmdSort(),
			newCmdIntrons(),
			newCmdSlop(),
			newCmdGetFasta(),
			newCmdGenome(),
			newCmdCleanup(),
		},
	}
}
