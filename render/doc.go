// Package render turns a resolved variable cache into the message bytes a
// sink delivers.
//
// Each message is a single-line JSON object keyed by variable name, or
// "[id]name" for non-zero instances. Values whose first and last non-space
// characters form a [ ] or { } pair are written as-is; all others are
// quoted. Values are not escaped, so a value containing a double quote
// produces invalid JSON. That matches the byte format existing consumers
// expect.
//
// A Header is an optional template prepended to every message of a
// pipeline. It is reloaded when the file changes on disk.
package render
