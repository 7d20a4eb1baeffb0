package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/c360/varmsg/errors"
)

// MockPublisher is an in-memory stand-in for natsclient.Client publishing.
// Failures can be injected for the next N publishes.
type MockPublisher struct {
	mu       sync.RWMutex
	messages map[string][][]byte
	failNext int
	failWith error
	attempts int
	closed   bool
}

// NewMockPublisher creates an empty publisher
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{messages: make(map[string][][]byte)}
}

// FailNext makes the next n publishes return err
func (p *MockPublisher) FailNext(n int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failNext = n
	p.failWith = err
}

// Publish records data on subject (matches natsclient.Client signature)
func (p *MockPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.attempts++
	if p.closed {
		return errors.ErrNoConnection
	}
	if p.failNext > 0 {
		p.failNext--
		return p.failWith
	}

	msg := make([]byte, len(data))
	copy(msg, data)
	p.messages[subject] = append(p.messages[subject], msg)
	return nil
}

// Attempts returns the number of Publish calls, failed ones included
func (p *MockPublisher) Attempts() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.attempts
}

// Messages returns a copy of the messages published on subject
func (p *MockPublisher) Messages(subject string) [][]byte {
	p.mu.RLock()
	defer p.mu.RUnlock()

	msgs := p.messages[subject]
	if msgs == nil {
		return nil
	}
	result := make([][]byte, len(msgs))
	copy(result, msgs)
	return result
}

// MessageCount returns the number of messages on subject
func (p *MockPublisher) MessageCount(subject string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.messages[subject])
}

// Close makes further publishes fail
func (p *MockPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// WaitForMessageCount waits until subject has at least count messages
func WaitForMessageCount(t *testing.T, p *MockPublisher, subject string, count int, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if p.MessageCount(subject) >= count {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %d messages on subject %s (got %d)", count, subject, p.MessageCount(subject))
}
