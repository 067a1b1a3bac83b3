// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package pipeline chains bedtools operations over interval datasets.
//
// A Session owns the temp directory, the bedtools runner and the provenance
// of every dataset created in it.  A Handle is one dataset: each operation on
// a Handle returns a new Handle whose provenance links back to its inputs.
//
//   sess, err := pipeline.NewSession(pipeline.Config{})
//   ...
//   defer sess.Close()
//   a, err := sess.FromFile(ctx, "a.bed")
//   b, err := sess.FromFile(ctx, "b.bed")
//   c, err := a.Intersect(ctx, b, bedtools.Flag("u"))
//   d, err := c.Merge(ctx)
//   removed, err := d.DeleteTemporaryHistory(ctx, nil)
package pipeline

import (
	"context"
	"sort"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/bedpipe/bedtools"
	"github.com/grailbio/bedpipe/interval"
	"github.com/grailbio/bedpipe/tempfile"
)

// NodeID identifies a provenance node within its Session.
type NodeID int

// node is one entry of the provenance arena.  Parents always have smaller
// IDs than their children.
type node struct {
	op      string
	params  []string
	parents []NodeID
	files   []string
}

// Step describes one provenance node.
type Step struct {
	ID NodeID
	// Op is the operation that produced the dataset, e.g. "intersect", or
	// the kind of root ("file", "text", "records").
	Op string
	// Params is a snapshot of the operation's options in command-line form.
	Params []string
	// Parents are the input datasets, in argument order.
	Parents []NodeID
	// Files are the files backing the dataset, if any.
	Files []string
}

// Session is the context shared by a set of Handles.  Sessions are
// independent of each other and safe for concurrent use.
type Session struct {
	cfg     Config
	reg     *tempfile.Registry
	runner  *bedtools.Runner
	genomes interval.GenomeResolver

	mu    sync.Mutex
	nodes []node
}

// NewSession creates a Session.  It fails with a Precondition error if the
// temp directory is not writable.  The bedtools executable is not checked
// until it is first needed.
func NewSession(cfg Config) (*Session, error) {
	reg, err := tempfile.New(cfg.TmpDir)
	if err != nil {
		return nil, err
	}
	var resolvers interval.Resolvers
	if len(cfg.Genomes) > 0 {
		static := make(interval.StaticGenomes, len(cfg.Genomes))
		for name, lengths := range cfg.Genomes {
			static[name] = interval.NewGenome(lengths)
		}
		resolvers = append(resolvers, static)
	}
	if cfg.GenomeDir != "" {
		resolvers = append(resolvers, interval.DirResolver{Dir: cfg.GenomeDir})
	}
	resolvers = append(resolvers, BuiltinGenomes)
	return &Session{
		cfg:     cfg,
		reg:     reg,
		runner:  bedtools.NewRunner(cfg.Bedtools, reg),
		genomes: resolvers,
	}, nil
}

// Config returns the configuration the session was created with.
func (s *Session) Config() Config { return s.cfg }

// Registry returns the session's temp registry.
func (s *Session) Registry() *tempfile.Registry { return s.reg }

// Runner returns the session's bedtools runner.
func (s *Session) Runner() *bedtools.Runner { return s.runner }

// SetTmpDir changes the directory of temp files created from now on.
func (s *Session) SetTmpDir(dir string) error { return s.reg.SetDir(dir) }

// Genome resolves an assembly name such as "hg19" to its genome-size table,
// consulting inline tables, then the genome directory, then the built-in
// tables.  The error has kind errors.Precondition if the name is unknown.
func (s *Session) Genome(ctx context.Context, name string) (interval.Genome, error) {
	g, err := s.genomes.Genome(ctx, name)
	if err != nil {
		return nil, errors.E(errors.Precondition, "no genome-size table for", name, err)
	}
	return g, nil
}

// Cleanup removes the session's temp files; see tempfile.Registry.Cleanup.
func (s *Session) Cleanup(ctx context.Context, removeAll bool) error {
	return s.reg.Cleanup(ctx, removeAll)
}

// Close kills every streamed bedtools invocation that is still running.
// Temp files are left for Cleanup.
func (s *Session) Close() error {
	return s.runner.Close()
}

func (s *Session) addNode(n node) NodeID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = append(s.nodes, n)
	return NodeID(len(s.nodes) - 1)
}

func (s *Session) setFiles(id NodeID, files []string) {
	s.mu.Lock()
	s.nodes[id].files = files
	s.mu.Unlock()
}

// Step returns the provenance node id.
func (s *Session) Step(id NodeID) Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.nodes[id]
	return Step{
		ID:      id,
		Op:      n.op,
		Params:  append([]string(nil), n.params...),
		Parents: append([]NodeID(nil), n.parents...),
		Files:   append([]string(nil), n.files...),
	}
}

// ancestors returns id and every node it derives from, in creation order.
func (s *Session) ancestors(id NodeID) []NodeID {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[NodeID]bool{id: true}
	stack := []NodeID{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, p := range s.nodes[cur].parents {
			if !seen[p] {
				seen[p] = true
				stack = append(stack, p)
			}
		}
	}
	ids := make([]NodeID, 0, len(seen))
	for n := range seen {
		ids = append(ids, n)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
