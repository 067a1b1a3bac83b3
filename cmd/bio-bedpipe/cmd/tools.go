// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/log"
	"github.com/grailbio/bedpipe/encoding/fasta"
	"github.com/grailbio/bedpipe/pipeline"
	"v.io/x/lib/cmdline"
)

func newCmdGetFasta() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "getfasta",
		Short:    "Print the reference sequence of each record as FASTA",
		ArgsName: "path",
	}
	f := addCommonFlags(&cmd.Flags)
	fi := cmd.Flags.String("fi", "", "Reference FASTA file. An index is generated at <fi>.fai if missing")
	stranded := cmd.Flags.Bool("s", false, "Reverse-complement records on the '-' strand")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("getfasta takes one pathname argument, but got %v", argv)
		}
		if *fi == "" {
			return fmt.Errorf("getfasta requires -fi")
		}
		return withInputs(f, argv, func(ctx context.Context, _ *pipeline.Session, in []*pipeline.Handle) error {
			seqs, err := in[0].Sequence(ctx, *fi, fasta.ExtractOpts{Stranded: *stranded})
			if err != nil {
				return err
			}
			text, err := seqs.PrintSequence(ctx)
			if err != nil {
				return err
			}
			_, err = io.WriteString(env.Stdout, text)
			return err
		})
	})
	return cmd
}

func newCmdGenome() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "genome",
		Short:    "Print the chromosome sizes of a genome assembly",
		ArgsName: "name",
	}
	f := addCommonFlags(&cmd.Flags)
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("genome takes one assembly name, but got %v", argv)
		}
		return withInputs(f, nil, func(ctx context.Context, sess *pipeline.Session, _ []*pipeline.Handle) error {
			g, err := sess.Genome(ctx, argv[0])
			if err != nil {
				return err
			}
			return g.Write(env.Stdout)
		})
	})
	return cmd
}

func newCmdCleanup() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "cleanup",
		Short: "Remove temp files left in the temp directory by earlier runs",
	}
	f := addCommonFlags(&cmd.Flags)
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 0 {
			return fmt.Errorf("cleanup takes no arguments, but got %v", argv)
		}
		ctx := context.Background()
		sess, err := f.session(ctx)
		if err != nil {
			return err
		}
		log.Printf("cleanup: removing stale temp files in %s", sess.Registry().Dir())
		err = sess.Cleanup(ctx, true)
		if cerr := sess.Close(); cerr != nil && err == nil {
			err = cerr
		}
		return err
	})
	return cmd
}
