// Package scheduler runs the pipeline loop.
//
// One goroutine consumes wake reasons from a single channel:
//
//   - tick: sent once per second by a ticker goroutine. Every enabled
//     definition with a non-zero interval counts down and fires on zero.
//   - trigger: sent by the directory watch when a variable in some trigger
//     cache changes. The definition is marked pending and fires on the
//     next wake of any kind, independent of its countdown.
//   - control: enable/disable and rescan requests, from the HTTP API or
//     from writes to a pipeline's "enable" and "rescan" status variables.
//
// Firing renders the body cache, prepends the header if one is configured,
// and hands the bytes to the dispatcher. Failures are counted in the
// definition's errcount and never stop the loop; other definitions on the
// same wake still fire. After every firing the txcount and errcount status
// variables are written back to the directory.
//
// Lifecycle:
//
//	s, err := scheduler.New(dir, dispatcher, defs, scheduler.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	if err := s.Setup(ctx); err != nil {
//	    return err
//	}
//	return s.Run(ctx) // until ctx is cancelled
package scheduler
