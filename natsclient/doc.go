// Package natsclient wraps a single NATS connection for varmsg.
//
// The Client connects with a bounded context, initializes a JetStream
// context, and exposes the two things the rest of the program needs:
// core publish (used by the mqueue sink) and KV buckets (used by the
// NATS-backed variable directory). Consecutive connection failures open
// a circuit breaker with doubling backoff.
//
// KVStore normalizes bucket errors so callers can test for
// ErrKVKeyNotFound without string matching.
//
// TestClient starts a disposable NATS server with testcontainers. It is
// only used from integration tests built with the "integration" tag.
package natsclient
