// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bedtools

import (
	"fmt"
	"strconv"
	"strings"
)

// Arg is one named option of a bedtools command.  Name is given without the
// leading '-'.
//
// Value is rendered as follows: true renders as "-name"; false and nil are
// omitted; a string, number, or fmt.Stringer renders as "-name value"; a
// slice renders as "-name v1,v2,...".
type Arg struct {
	Name  string
	Value interface{}
}

// Flag returns a boolean option that is present.
func Flag(name string) Arg { return Arg{Name: name, Value: true} }

// Value returns an option with a value.
func Value(name string, v interface{}) Arg { return Arg{Name: name, Value: v} }

// Args is an ordered option set.
type Args []Arg

func renderValue(v interface{}) string {
	switch v := v.(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case []string:
		return strings.Join(v, ",")
	case []int:
		s := make([]string, len(v))
		for i, n := range v {
			s[i] = strconv.Itoa(n)
		}
		return strings.Join(s, ",")
	case fmt.Stringer:
		return v.String()
	}
	return fmt.Sprint(v)
}

// Render returns the command-line form of the options, in order.
func (args Args) Render() []string {
	var out []string
	for _, a := range args {
		switch v := a.Value.(type) {
		case nil:
			continue
		case bool:
			if v {
				out = append(out, "-"+a.Name)
			}
		default:
			out = append(out, "-"+a.Name, renderValue(v))
		}
	}
	return out
}

// Lookup returns the value of the last option named name.
func (args Args) Lookup(name string) (interface{}, bool) {
	for i := len(args) - 1; i >= 0; i-- {
		if args[i].Name == name {
			return args[i].Value, true
		}
	}
	return nil, false
}

// Has reports whether the option name is present with a value other than
// false or nil.
func (args Args) Has(name string) bool {
	v, ok := args.Lookup(name)
	if !ok || v == nil {
		return false
	}
	if b, isBool := v.(bool); isBool {
		return b
	}
	return true
}

// Without returns a copy of args with every option named in names removed.
func (args Args) Without(names ...string) Args {
	out := make(Args, 0, len(args))
outer:
	for _, a := range args {
		for _, name := range names {
			if a.Name == name {
				continue outer
			}
		}
		out = append(out, a)
	}
	return out
}

// With returns a copy of args with a replacing any option of the same name.
func (args Args) With(a Arg) Args {
	return append(args.Without(a.Name), a)
}
