// Package testutil provides test doubles and fixtures shared by the
// varmsg packages.
//
// Sinks:
//   - MockSink: testify mock of output.Sink for call expectations
//   - RecordingSink: keeps delivered messages, optional injected error
//
// NATS:
//   - MockPublisher: in-memory Publish with failure injection, for the
//     mqueue sink without a server
//
// Fixtures:
//   - NewMemory, GPSVars: seeded in-memory directories
//   - Pipeline: a minimal enabled pipeline configuration
//
// Tests that need a real NATS server use natsclient.NewTestClient and the
// integration build tag instead.
package testutil
