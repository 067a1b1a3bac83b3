// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/grailbio/base/log"
)

// String renders the step as "#id op params <- parents".
func (s Step) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%d %s", s.ID, s.Op)
	if len(s.Params) > 0 {
		b.WriteString(" ")
		b.WriteString(strings.Join(s.Params, " "))
	}
	if len(s.Parents) > 0 {
		b.WriteString(" <-")
		for _, p := range s.Parents {
			fmt.Fprintf(&b, " #%d", p)
		}
	}
	return b.String()
}

// History returns the provenance of h: every step h derives from, in the
// order they were created, ending with h's own step.
func (h *Handle) History() []Step {
	ids := h.sess.ancestors(h.id)
	steps := make([]Step, len(ids))
	for i, id := range ids {
		steps[i] = h.sess.Step(id)
	}
	return steps
}

// ConfirmFunc decides whether the listed files may be deleted.
type ConfirmFunc func(paths []string) bool

// PromptConfirm returns a ConfirmFunc that lists the files on w and reads the
// answer from r.  Only an answer starting with 'y' or 'Y' confirms.
func PromptConfirm(r io.Reader, w io.Writer) ConfirmFunc {
	in := bufio.NewReader(r)
	return func(paths []string) bool {
		fmt.Fprintln(w, "Delete these files?")
		for _, p := range paths {
			fmt.Fprintf(w, "  %s\n", p)
		}
		fmt.Fprint(w, "(y/N) ")
		answer, err := in.ReadString('\n')
		if err != nil && answer == "" {
			return false
		}
		answer = strings.TrimSpace(answer)
		return answer != "" && (answer[0] == 'y' || answer[0] == 'Y')
	}
}

// DeleteTemporaryHistory deletes the temp files of the steps h derives from.
// h's own files, files the caller supplied, and kept files are never
// deleted.  If confirm is non-nil, it is called once with the candidate
// paths, and nothing is deleted unless it returns true.  It returns the
// deleted paths.  Files that are already gone are skipped silently.
func (h *Handle) DeleteTemporaryHistory(ctx context.Context, confirm ConfirmFunc) ([]string, error) {
	self := make(map[string]bool)
	for _, p := range h.sess.Step(h.id).Files {
		self[p] = true
	}
	seen := make(map[string]bool)
	var candidates []string
	for _, id := range h.sess.ancestors(h.id) {
		if id == h.id {
			continue
		}
		for _, p := range h.sess.Step(id).Files {
			if self[p] || seen[p] || !h.sess.reg.Registered(p) || h.sess.reg.Kept(p) {
				continue
			}
			seen[p] = true
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Strings(candidates)
	if confirm != nil && !confirm(candidates) {
		log.Printf("pipeline: deletion of %d temp file(s) declined", len(candidates))
		return nil, nil
	}
	if err := h.sess.reg.Remove(ctx, candidates); err != nil {
		return nil, err
	}
	log.Printf("pipeline: deleted %d temp file(s) from the history of %s", len(candidates), h)
	return candidates, nil
}
