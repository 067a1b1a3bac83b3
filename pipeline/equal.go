// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package pipeline

import (
	"context"
	"fmt"

	"github.com/grailbio/base/errors"
)

// Equal reports whether h and other hold the same records, field by field.
// It fails with an errors.NotSupported error if either side is a one-shot
// stream, since comparing would consume it; Materialize first.
func (h *Handle) Equal(ctx context.Context, other *Handle) (bool, error) {
	if err := checkComparable(h, other); err != nil {
		return false, err
	}
	a, err := h.Text(ctx)
	if err != nil {
		return false, err
	}
	b, err := other.Text(ctx)
	if err != nil {
		return false, err
	}
	return a == b, nil
}

// EqualString reports whether h serializes to exactly s.  Like Equal, it
// fails on a one-shot stream.
func (h *Handle) EqualString(ctx context.Context, s string) (bool, error) {
	if err := checkComparable(h); err != nil {
		return false, err
	}
	text, err := h.Text(ctx)
	if err != nil {
		return false, err
	}
	return text == s, nil
}

func checkComparable(hs ...*Handle) error {
	for _, h := range hs {
		if src := h.Source(); !src.Restartable() {
			return errors.E(errors.NotSupported,
				fmt.Sprintf("cannot compare %s: a %s source can be read only once; materialize it first", h, src.Kind()))
		}
	}
	return nil
}

