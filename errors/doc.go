// Package errors provides standardized error handling patterns for varmsg components.
//
// # Overview
//
// Two layers work together. The taxonomy sentinels describe WHAT went wrong
// in pipeline terms:
//
//   - ErrInvalidArgument: malformed configuration or query
//   - ErrNotFound: a named variable is absent from the directory
//   - ErrUnsupported: a query with no active filter, or a list element of the wrong type
//   - ErrTooLarge: a tag specification at or over the length limit
//   - ErrResourceExhausted: a cache or buffer could not grow
//   - ErrIO: a sink write failed
//
// The classification layer describes HOW a caller should react: Transient
// (retry), Invalid (do not retry, fix the input) or Fatal (stop).
//
// # Error Wrapping Pattern
//
// All error wrapping follows the standardized format:
//
//	component.method: action failed: cause
//
// For example:
//
//	if err := dir.Lookup(ctx, name); err != nil {
//	    return errors.WrapInvalid(err, "Resolver", "ResolveList", "lookup "+name)
//	}
//
// The original sentinel remains reachable through errors.Is, so callers can
// both classify and identify an error:
//
//	if errors.Is(err, errors.ErrNotFound) {
//	    // variable vanished between resolve and render
//	}
//
// # Metrics and Logs
//
// Code maps an error to a short taxonomy name ("not_found", "io", ...) used as
// the stage label of the pipeline error counter and in structured logs.
package errors
