// Package query implements the declarative variable filter used to select
// trigger and body variables.
package query

import (
	"fmt"
	"strings"

	"github.com/c360/varmsg/directory"
	"github.com/c360/varmsg/errors"
)

// MaxTagSpecLen bounds the tag specification. A spec of this length or
// longer is rejected, never truncated.
const MaxTagSpecLen = 256

// Kind is a bitmask of the active filters in a Query
type Kind uint8

// Filter kinds
const (
	KindTags Kind = 1 << iota
	KindMatch
	KindFlags
	KindInstance

	KindNone Kind = 0
)

// Spec is the raw query object from a pipeline file
type Spec struct {
	Tags       string `json:"tags,omitempty" yaml:"tags,omitempty"`
	Match      string `json:"match,omitempty" yaml:"match,omitempty"`
	Flags      string `json:"flags,omitempty" yaml:"flags,omitempty"`
	InstanceID uint32 `json:"instanceID,omitempty" yaml:"instanceID,omitempty"`
}

// Query is a decoded filter. All active kinds must match.
type Query struct {
	Kind       Kind
	TagSpec    string
	Tags       []string
	Pattern    string
	Flags      directory.Flags
	InstanceID uint32
}

var _ directory.Matcher = Query{}

// Build decodes spec. Filters are checked in the order tags, match, flags,
// instance; the first problem found is returned.
func Build(spec Spec) (Query, error) {
	var q Query

	if spec.Tags != "" {
		if len(spec.Tags) >= MaxTagSpecLen {
			return Query{}, errors.WrapInvalid(
				fmt.Errorf("%w: tag spec is %d bytes, limit %d", errors.ErrTooLarge, len(spec.Tags), MaxTagSpecLen-1),
				"query", "Build", "decode tags")
		}
		q.TagSpec = spec.Tags
		q.Tags = splitTags(spec.Tags)
		q.Kind |= KindTags
	}

	if spec.Match != "" {
		q.Pattern = spec.Match
		q.Kind |= KindMatch
	}

	if spec.Flags != "" {
		flags, err := directory.ParseFlags(spec.Flags)
		if err != nil {
			return Query{}, err
		}
		q.Flags = flags
		q.Kind |= KindFlags
	}

	if spec.InstanceID != 0 {
		q.InstanceID = spec.InstanceID
		q.Kind |= KindInstance
	}

	if err := q.Validate(); err != nil {
		return Query{}, err
	}
	return q, nil
}

// Validate reports a query that cannot select anything meaningful
func (q Query) Validate() error {
	if q.Kind == KindNone {
		return errors.WrapInvalid(
			fmt.Errorf("%w: query has no active filter", errors.ErrUnsupported),
			"query", "Validate", "check kind")
	}
	if len(q.TagSpec) >= MaxTagSpecLen {
		return errors.WrapInvalid(
			fmt.Errorf("%w: tag spec is %d bytes", errors.ErrTooLarge, len(q.TagSpec)),
			"query", "Validate", "check tags")
	}
	return nil
}

// Match implements directory.Matcher
func (q Query) Match(v directory.Var) bool {
	if q.Kind == KindNone {
		return false
	}
	if q.Kind&KindTags != 0 {
		for _, t := range q.Tags {
			if !v.HasTag(t) {
				return false
			}
		}
	}
	if q.Kind&KindMatch != 0 && !strings.Contains(v.Name, q.Pattern) {
		return false
	}
	if q.Kind&KindFlags != 0 && !v.Flags.Has(q.Flags) {
		return false
	}
	if q.Kind&KindInstance != 0 && v.InstanceID != q.InstanceID {
		return false
	}
	return true
}

// String describes the active filters, for logs
func (q Query) String() string {
	var parts []string
	if q.Kind&KindTags != 0 {
		parts = append(parts, "tags="+q.TagSpec)
	}
	if q.Kind&KindMatch != 0 {
		parts = append(parts, "match="+q.Pattern)
	}
	if q.Kind&KindFlags != 0 {
		parts = append(parts, "flags="+q.Flags.String())
	}
	if q.Kind&KindInstance != 0 {
		parts = append(parts, fmt.Sprintf("instanceID=%d", q.InstanceID))
	}
	if len(parts) == 0 {
		return "query{}"
	}
	return "query{" + strings.Join(parts, " ") + "}"
}

func splitTags(spec string) []string {
	var tags []string
	for _, t := range strings.Split(spec, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
