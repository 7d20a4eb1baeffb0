package varcache

import (
	"context"
	"fmt"

	"github.com/c360/varmsg/directory"
	"github.com/c360/varmsg/errors"
	"github.com/c360/varmsg/query"
)

// Source is the unresolved form of a variable set: either a query or an
// explicit list. List elements are whatever the configuration held; only
// strings are valid names.
type Source struct {
	Query *query.Query
	List  []any
}

// IsZero reports an unset source
func (s Source) IsZero() bool {
	return s.Query == nil && s.List == nil
}

// String describes the source, for logs
func (s Source) String() string {
	switch {
	case s.Query != nil:
		return s.Query.String()
	case s.List != nil:
		return fmt.Sprintf("list[%d]", len(s.List))
	default:
		return "none"
	}
}

// Lookuper is the part of the directory the resolver needs
type Lookuper interface {
	Lookup(ctx context.Context, name string) (directory.Var, error)
	Search(ctx context.Context, m directory.Matcher) ([]directory.Var, error)
}

// Resolver turns sources into caches
type Resolver struct {
	dir Lookuper
}

// NewResolver creates a resolver over dir
func NewResolver(dir Lookuper) *Resolver {
	return &Resolver{dir: dir}
}

// ResolveSource dispatches on the source kind. An unset source yields an
// empty cache.
func (r *Resolver) ResolveSource(ctx context.Context, src Source) (*Cache, error) {
	switch {
	case src.Query != nil:
		return r.Resolve(ctx, *src.Query)
	case src.List != nil:
		return r.ResolveList(ctx, src.List)
	default:
		return Empty(), nil
	}
}

// Resolve runs q against the directory. Any failure fails the whole query
// and no cache is returned.
func (r *Resolver) Resolve(ctx context.Context, q query.Query) (*Cache, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	vars, err := r.dir.Search(ctx, q)
	if err != nil {
		return nil, errors.Wrap(err, "Resolver", "Resolve", "search "+q.String())
	}

	c := New(QueryInitialSize, QueryGrowBy)
	for _, v := range vars {
		if err := c.Add(v); err != nil {
			return nil, errors.Wrap(err, "Resolver", "Resolve", "add "+v.Key())
		}
	}
	return c, nil
}

// ResolveList looks up each name in order. Elements that resolve are kept
// even when others fail; the returned error is the last element error.
// The cache is never nil.
func (r *Resolver) ResolveList(ctx context.Context, names []any) (*Cache, error) {
	c := New(len(names), ListGrowBy)

	var lastErr error
	for i, elem := range names {
		if err := ctx.Err(); err != nil {
			return c, err
		}

		v, err := r.resolveElement(ctx, elem)
		if err == nil {
			err = c.Add(v)
		}
		if err != nil {
			lastErr = fmt.Errorf("element %d: %w", i, err)
		}
	}
	return c, lastErr
}

func (r *Resolver) resolveElement(ctx context.Context, elem any) (directory.Var, error) {
	name, ok := elem.(string)
	if !ok {
		return directory.Var{}, fmt.Errorf("%w: list element %v is %T, not a name", errors.ErrUnsupported, elem, elem)
	}

	v, err := r.dir.Lookup(ctx, name)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return directory.Var{}, err
		}
		return directory.Var{}, errors.Wrap(err, "Resolver", "ResolveList", "lookup "+name)
	}
	return v, nil
}
