// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package bedtools runs the external bedtools toolkit.  Each invocation
// either materializes the tool's output into a registered temp file or
// exposes the live output as a source.Pipe.
package bedtools

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/bedpipe/source"
	"github.com/grailbio/bedpipe/tempfile"
	"v.io/x/lib/gosh"
	"v.io/x/lib/lookpath"
)

// DefaultProgram is the executable run when Runner.Program is empty.
const DefaultProgram = "bedtools"

// Error reports a failed invocation: the tool could not be started or it
// exited with a non-zero status.
type Error struct {
	// Args is the command line attempted, starting with the program.
	Args []string
	// Stderr is the standard error the tool produced.
	Stderr string
	// Err is the underlying failure.  It has kind errors.NotExist when the
	// program could not be found.
	Err error
}

// Error implements error.
func (e *Error) Error() string {
	msg := fmt.Sprintf("bedtools: %s: %v", strings.Join(e.Args, " "), e.Err)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

// Unwrap returns the underlying failure.
func (e *Error) Unwrap() error { return e.Err }

// Call describes one invocation.
type Call struct {
	// Tool is the bedtools subcommand, e.g. "intersect".
	Tool string
	// Args are the options of the subcommand.
	Args Args
	// Stdin, if set, is connected to the standard input of the tool.  Refer
	// to it with the file argument "stdin".  If it is an io.Closer, it is
	// closed when the tool is reaped or killed.
	Stdin io.Reader
	// Stream exposes the output as a live pipe instead of a temp file.
	Stream bool
}

// Runner invokes bedtools.  A Runner is safe for concurrent use.
type Runner struct {
	// Program is the bedtools executable, looked up in PATH if it contains no
	// slash.  Empty means DefaultProgram.
	Program string
	// Registry receives the temp files of materialized runs.
	Registry *tempfile.Registry

	mu   sync.Mutex
	live map[*process]struct{}
}

// NewRunner returns a Runner that runs program and registers its temp files
// in reg.
func NewRunner(program string, reg *tempfile.Registry) *Runner {
	return &Runner{Program: program, Registry: reg}
}

func (r *Runner) program() string {
	if r.Program == "" {
		return DefaultProgram
	}
	return r.Program
}

// Check resolves the program and returns its path.  The error has kind
// errors.NotExist if it cannot be found.
func (r *Runner) Check() (string, error) {
	prog := r.program()
	if strings.ContainsRune(prog, os.PathSeparator) {
		info, err := os.Stat(prog)
		if err != nil || info.IsDir() || info.Mode()&0111 == 0 {
			return "", errors.E(errors.NotExist, "bedtools program", prog, "is not an executable file")
		}
		return prog, nil
	}
	path, err := lookpath.Look(envVars(), prog)
	if err != nil {
		return "", errors.E(errors.NotExist, "bedtools program", prog, "not found in PATH", err)
	}
	return path, nil
}

func envVars() map[string]string {
	vars := make(map[string]string)
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i > 0 {
			vars[kv[:i]] = kv[i+1:]
		}
	}
	return vars
}

// Run runs call.  Without call.Stream it waits for the tool to exit and
// returns a *source.File holding its output; the file is registered in
// r.Registry, and removed again if the tool fails.  With call.Stream it
// returns a *source.Pipe as soon as the tool has started.
func (r *Runner) Run(ctx context.Context, call Call) (source.Source, error) {
	args := append([]string{call.Tool}, call.Args.Render()...)
	path, err := r.Check()
	if err != nil {
		return nil, &Error{Args: append([]string{r.program()}, args...), Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	proc := r.start(path, args, call.Stdin)
	if call.Stream {
		if proc.cmd.Err != nil {
			proc.closeStdin()
			proc.cleanup()
			return nil, proc.error(proc.cmd.Err)
		}
		return source.NewPipe(strings.Join(proc.args, " "), io.NopCloser(proc.stdout), proc), nil
	}
	return r.materialize(ctx, proc)
}

func (r *Runner) materialize(ctx context.Context, proc *process) (_ source.Source, err error) {
	if proc.cmd.Err != nil {
		proc.closeStdin()
		proc.cleanup()
		return nil, proc.error(proc.cmd.Err)
	}
	outPath, err := r.Registry.NewPath()
	if err != nil {
		_ = proc.Kill()
		return nil, err
	}
	defer func() {
		if err != nil {
			if rerr := r.Registry.Remove(ctx, []string{outPath}); rerr != nil {
				log.Error.Printf("bedtools: remove %s: %v", outPath, rerr)
			}
		}
	}()
	out, err := file.Create(ctx, outPath)
	if err != nil {
		_ = proc.Kill()
		return nil, err
	}
	if _, err = io.Copy(out.Writer(ctx), proc.stdout); err != nil {
		_ = proc.Kill()
		out.Discard(ctx)
		return nil, proc.error(err)
	}
	if err = proc.Wait(); err != nil {
		out.Discard(ctx)
		return nil, err
	}
	if err = out.Close(ctx); err != nil {
		return nil, err
	}
	return source.NewFile(outPath), nil
}

// Close kills every streamed invocation that is still running.
func (r *Runner) Close() error {
	r.mu.Lock()
	procs := make([]*process, 0, len(r.live))
	for p := range r.live {
		procs = append(procs, p)
	}
	r.mu.Unlock()
	for _, p := range procs {
		_ = p.Kill()
	}
	return nil
}

// Live returns the number of invocations that have not been reaped.
func (r *Runner) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

// lockedBuffer collects standard error.  Close lets it stand in where gosh
// expects an io.WriteCloser.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Close() error { return nil }

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// process is one running invocation.  It implements source.Process.
type process struct {
	runner *Runner
	sh     *gosh.Shell
	cmd    *gosh.Cmd
	args   []string
	stdin  io.Reader
	stdout io.Reader
	stderr *lockedBuffer

	mu   sync.Mutex
	done bool
	err  error
}

func (r *Runner) start(path string, args []string, stdin io.Reader) *process {
	sh := gosh.NewShell(nil)
	sh.ContinueOnError = true
	p := &process{
		runner: r,
		sh:     sh,
		cmd:    sh.Cmd(path, args...),
		args:   append([]string{r.program()}, args...),
		stdin:  stdin,
		stderr: &lockedBuffer{},
	}
	if stdin != nil {
		p.cmd.SetStdinReader(stdin)
	}
	p.cmd.AddStderrWriter(p.stderr)
	p.stdout = p.cmd.StdoutPipe()
	if log.At(log.Debug) {
		log.Debug.Printf("bedtools: %s", strings.Join(p.args, " "))
	}
	p.cmd.Start()
	r.mu.Lock()
	if r.live == nil {
		r.live = make(map[*process]struct{})
	}
	r.live[p] = struct{}{}
	r.mu.Unlock()
	return p
}

func (p *process) error(err error) error {
	return &Error{Args: p.args, Stderr: p.stderr.String(), Err: err}
}

// closeStdin closes the input reader, if closable, so that whatever feeds it
// stops.  It also unblocks the copy of standard input into the child.
func (p *process) closeStdin() {
	if c, ok := p.stdin.(io.Closer); ok {
		if err := c.Close(); err != nil {
			log.Debug.Printf("bedtools: close stdin of %s: %v", p.args[1], err)
		}
	}
}

// cleanup releases the shell and forgets the process.  REQUIRES: the child
// has exited or was never started.
func (p *process) cleanup() {
	p.sh.Cleanup()
	p.runner.mu.Lock()
	delete(p.runner.live, p)
	p.runner.mu.Unlock()
}

// Wait implements source.Process.  It is called once the output has been
// drained: it closes standard input, reaps the child and returns an *Error if
// it exited with a non-zero status.  After Kill, Wait returns nil.
func (p *process) Wait() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return p.err
	}
	p.done = true
	p.closeStdin()
	p.cmd.Wait()
	if p.cmd.Err != nil {
		p.err = p.error(p.cmd.Err)
	}
	p.cleanup()
	return p.err
}

// Kill implements source.Process.  gosh's Terminate both signals and reaps
// the child.
func (p *process) Kill() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return nil
	}
	p.done = true
	p.closeStdin()
	p.cmd.Terminate(os.Kill)
	p.cleanup()
	return nil
}
