package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/c360/varmsg/output"
)

// MockSink is a testify mock of output.Sink
type MockSink struct {
	mock.Mock
}

// Deliver records the call and returns the configured error
func (m *MockSink) Deliver(ctx context.Context, data []byte) error {
	args := m.Called(ctx, data)
	return args.Error(0)
}

// RecordingSink keeps every delivered message. Err, when set, is returned
// instead and nothing is recorded.
type RecordingSink struct {
	mu       sync.Mutex
	messages [][]byte
	Err      error
}

// Deliver records data
func (s *RecordingSink) Deliver(_ context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	msg := make([]byte, len(data))
	copy(msg, data)
	s.messages = append(s.messages, msg)
	return nil
}

// SetErr changes the injected error
func (s *RecordingSink) SetErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Err = err
}

// Messages returns the recorded messages as strings
func (s *RecordingSink) Messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.messages))
	for i, m := range s.messages {
		out[i] = string(m)
	}
	return out
}

// Count returns the number of recorded messages
func (s *RecordingSink) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Factory returns an output.Factory that always hands out s
func (s *RecordingSink) Factory() output.Factory {
	return func(string, bool) (output.Sink, error) { return s, nil }
}

// WaitForCount waits until s has recorded at least n messages
func (s *RecordingSink) WaitForCount(t *testing.T, n int, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s.Count() >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %d messages (got %d)", n, s.Count())
}
