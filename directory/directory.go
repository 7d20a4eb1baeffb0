// Package directory defines the shared variable directory that pipelines
// read from, and provides an in-process implementation.
package directory

import (
	"context"
	"strconv"
	"strings"
)

// Var identifies one variable in the directory. Name plus InstanceID is
// unique; the same name may exist under several instance ids.
type Var struct {
	Name       string   `json:"name"`
	InstanceID uint32   `json:"instanceID,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Flags      Flags    `json:"flags,omitempty"`
}

// Key returns the identity of v. It doubles as the rendered JSON key:
// the bare name for instance 0, "[id]name" otherwise.
func (v Var) Key() string {
	if v.InstanceID == 0 {
		return v.Name
	}
	return "[" + strconv.FormatUint(uint64(v.InstanceID), 10) + "]" + v.Name
}

// HasTag reports whether v carries tag
func (v Var) HasTag(tag string) bool {
	for _, t := range v.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Matcher selects variables during Search
type Matcher interface {
	Match(v Var) bool
}

// MatchFunc adapts a function to Matcher
type MatchFunc func(Var) bool

// Match calls f(v)
func (f MatchFunc) Match(v Var) bool { return f(v) }

// Change reports a value written to a variable
type Change struct {
	Var   Var
	Value string
}

// Directory is the variable store shared between varmsg and the processes
// that own the variables.
type Directory interface {
	// Lookup resolves name to the variable with the lowest instance id.
	// A missing name returns an error wrapping errors.ErrNotFound.
	Lookup(ctx context.Context, name string) (Var, error)

	// Search returns every variable accepted by m, each once, in a
	// stable order.
	Search(ctx context.Context, m Matcher) ([]Var, error)

	// Read returns the current value of v as text. A variable removed
	// since it was resolved returns errors.ErrNotFound.
	Read(ctx context.Context, v Var) (string, error)

	// Write sets the value of the instance 0 variable called name,
	// creating it if it does not exist.
	Write(ctx context.Context, name, value string) error

	// Watch streams value changes until ctx is cancelled.
	Watch(ctx context.Context) (<-chan Change, error)

	Close() error
}

// JoinName builds the name of a variable scoped under prefix
func JoinName(prefix, name string) string {
	if prefix == "" {
		return name
	}
	if strings.HasSuffix(prefix, "/") {
		return prefix + strings.TrimPrefix(name, "/")
	}
	return prefix + "/" + strings.TrimPrefix(name, "/")
}
