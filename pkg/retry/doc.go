// Package retry provides simple exponential backoff retry logic for transient failures.
//
// # Configuration Presets
//
//   - DefaultConfig(): 3 attempts, 100ms-5s delay (normal operations)
//   - Quick(): 10 attempts, 50ms-1s delay (startup, e.g. connecting to NATS)
//   - Delivery(): 3 attempts, 20ms-200ms delay (sink publish inside the scheduler loop)
//
// # Usage
//
//	err := retry.Do(ctx, retry.Delivery(), func() error {
//	    if err := publish(); err != nil {
//	        if !errors.IsTransient(err) {
//	            return retry.NonRetryable(err)
//	        }
//	        return err
//	    }
//	    return nil
//	})
//
// Errors wrapped with NonRetryable stop the loop immediately and are returned
// as-is; every other error is retried until MaxAttempts is reached.
package retry
