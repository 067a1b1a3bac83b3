// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package tempfile tracks the temporary files created by a pipeline session
// so they can be removed in bulk or selectively.
package tempfile

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
)

const (
	// Prefix and Suffix bracket the name of every temp file a Registry
	// creates: bedpipe.<random>.tmp.
	Prefix = "bedpipe."
	Suffix = ".tmp"

	// Pattern is the glob form of the temp file name.
	Pattern = Prefix + "*" + Suffix
)

// IsTempName reports whether the base name of path matches Pattern.
func IsTempName(path string) bool {
	name := filepath.Base(path)
	return len(name) > len(Prefix)+len(Suffix) &&
		strings.HasPrefix(name, Prefix) && strings.HasSuffix(name, Suffix)
}

// Registry holds the temp directory and the set of temp files created in one
// session.  All methods are thread-safe.
type Registry struct {
	mu    sync.Mutex
	dir   string
	paths map[string]struct{}
	kept  map[string]struct{}
}

// New creates a Registry that creates temp files under dir.  If dir is empty,
// os.TempDir() is used.  It returns a Precondition error if dir is not a
// writable directory.
func New(dir string) (*Registry, error) {
	r := &Registry{
		paths: make(map[string]struct{}),
		kept:  make(map[string]struct{}),
	}
	if err := r.SetDir(dir); err != nil {
		return nil, err
	}
	return r, nil
}

// checkDir verifies that dir exists and accepts new files by creating and
// removing one.
func checkDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return errors.E(errors.Precondition, "temp directory", dir, "does not exist", err)
	}
	if !info.IsDir() {
		return errors.E(errors.Precondition, "temp directory", dir, "is not a directory")
	}
	f, err := os.CreateTemp(dir, ".bedpipe-check-*")
	if err != nil {
		return errors.E(errors.Precondition, "temp directory", dir, "is not writable", err)
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		return errors.E(errors.Precondition, "temp directory", dir, "is not writable", err)
	}
	if err := os.Remove(name); err != nil {
		log.Error.Printf("tempfile: remove %s: %v", name, err)
	}
	return nil
}

// SetDir changes the directory for temp files created from now on.  Files
// already registered stay where they are.  The directory is validated by
// creating and removing a file in it; on failure the previous directory stays
// in effect.
func (r *Registry) SetDir(dir string) error {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := checkDir(dir); err != nil {
		return err
	}
	r.mu.Lock()
	r.dir = dir
	r.mu.Unlock()
	return nil
}

// Dir returns the current temp directory.
func (r *Registry) Dir() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dir
}

// NewPath creates a fresh, empty temp file in the temp directory, registers
// it, and returns its path.
func (r *Registry) NewPath() (string, error) {
	dir := r.Dir()
	f, err := os.CreateTemp(dir, Pattern)
	if err != nil {
		return "", errors.E(errors.Precondition, "create temp file in", dir, err)
	}
	path := f.Name()
	if err := f.Close(); err != nil {
		return "", errors.E("close temp file", path, err)
	}
	r.Register(path)
	return path, nil
}

// Register adds path to the set of files owned by the session.
func (r *Registry) Register(path string) {
	r.mu.Lock()
	r.paths[path] = struct{}{}
	r.mu.Unlock()
	log.Debug.Printf("tempfile: registered %s", path)
}

// Registered reports whether path is owned by the session.
func (r *Registry) Registered(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.paths[path]
	return ok
}

// Unregister hands path back to the caller: cleanup no longer touches it.
func (r *Registry) Unregister(path string) {
	r.mu.Lock()
	delete(r.paths, path)
	delete(r.kept, path)
	r.mu.Unlock()
}

// Keep protects a registered path from Cleanup and Remove.
func (r *Registry) Keep(path string) {
	r.mu.Lock()
	r.kept[path] = struct{}{}
	r.mu.Unlock()
}

// Kept reports whether path is protected by Keep.
func (r *Registry) Kept(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.kept[path]
	return ok
}

// Paths returns the registered paths in lexical order.
func (r *Registry) Paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	paths := make([]string, 0, len(r.paths))
	for p := range r.paths {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Cleanup removes the registered temp files that are not kept.  With
// removeAll, it also removes every file in the temp directory that matches
// Pattern, including files left behind by other runs.  Files that are already
// gone are skipped, so Cleanup may be called any number of times.
func (r *Registry) Cleanup(ctx context.Context, removeAll bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var targets []string
	for p := range r.paths {
		if _, ok := r.kept[p]; !ok {
			targets = append(targets, p)
		}
	}
	if removeAll {
		matches, err := filepath.Glob(filepath.Join(r.dir, Pattern))
		if err != nil {
			return errors.E("list temp files in", r.dir, err)
		}
		for _, p := range matches {
			_, kept := r.kept[p]
			_, owned := r.paths[p]
			if !kept && !owned {
				targets = append(targets, p)
			}
		}
	}
	sort.Strings(targets)
	if err := removeFiles(ctx, targets); err != nil {
		return err
	}
	for _, p := range targets {
		delete(r.paths, p)
	}
	log.Printf("tempfile: cleaned up %d file(s) in %s", len(targets), r.dir)
	return nil
}

// Remove deletes the given paths and unregisters them.  Paths that are not
// registered, or are kept, are left alone; paths that are already gone are
// skipped.
func (r *Registry) Remove(ctx context.Context, paths []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var targets []string
	for _, p := range paths {
		_, owned := r.paths[p]
		_, kept := r.kept[p]
		if owned && !kept {
			targets = append(targets, p)
		}
	}
	if err := removeFiles(ctx, targets); err != nil {
		return err
	}
	for _, p := range targets {
		delete(r.paths, p)
	}
	return nil
}

func removeFiles(ctx context.Context, paths []string) error {
	return traverse.Each(len(paths), func(i int) error {
		if err := file.Remove(ctx, paths[i]); err != nil && !notExist(err) {
			return errors.E("remove temp file", paths[i], err)
		}
		log.Debug.Printf("tempfile: removed %s", paths[i])
		return nil
	})
}

func notExist(err error) bool {
	return os.IsNotExist(err) || errors.Is(errors.NotExist, err)
}
