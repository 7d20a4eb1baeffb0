// Package mqueue publishes messages on NATS subjects.
package mqueue

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/c360/varmsg/errors"
	"github.com/c360/varmsg/output"
	"github.com/c360/varmsg/pkg/retry"
)

// Publisher is the part of natsclient.Client the sink uses
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Subject maps a destination name to a NATS subject: the leading slashes
// are dropped and the remaining ones become dots, so "/varmsg/gps" is
// published on "varmsg.gps".
func Subject(name string) (string, error) {
	s := strings.ReplaceAll(strings.TrimLeft(name, "/"), "/", ".")
	if s == "" || strings.ContainsAny(s, " \t\r\n") || strings.Contains(s, "..") || strings.HasSuffix(s, ".") {
		return "", errors.WrapInvalid(fmt.Errorf("%w: destination %q is not a valid subject", errors.ErrInvalidArgument, name),
			"mqueue", "Subject", "map destination")
	}
	return s, nil
}

// Sink publishes each message on one subject. Transient publish failures
// are retried with a short backoff.
type Sink struct {
	pub     Publisher
	subject string
	retry   retry.Config
	logger  *slog.Logger

	published atomic.Int64
	retries   atomic.Int64
	failures  atomic.Int64
}

// New creates a sink for destination
func New(pub Publisher, destination string, logger *slog.Logger) (*Sink, error) {
	if pub == nil {
		return nil, errors.WrapFatal(errors.ErrNoConnection, "Sink", "New", "NATS client required")
	}
	subject, err := Subject(destination)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{
		pub:     pub,
		subject: subject,
		retry:   retry.Delivery(),
		logger:  logger.With("component", "mqueue-sink", "subject", subject),
	}, nil
}

// Factory returns an output.Factory publishing through pub
func Factory(pub Publisher, logger *slog.Logger) output.Factory {
	return func(target string, _ bool) (output.Sink, error) {
		s, err := New(pub, target, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// Subject returns the subject messages are published on
func (s *Sink) Subject() string { return s.subject }

// Published returns the number of messages published
func (s *Sink) Published() int64 { return s.published.Load() }

// Retries returns the number of publish attempts that were retried
func (s *Sink) Retries() int64 { return s.retries.Load() }

// Deliver publishes data
func (s *Sink) Deliver(ctx context.Context, data []byte) error {
	attempts := 1
	cfg := s.retry
	cfg.OnRetry = func(attempt int, err error) {
		attempts = attempt + 1
		s.retries.Add(1)
		s.logger.Debug("Publish retry", "attempt", attempt, "error", err)
	}

	err := retry.Do(ctx, cfg, func() error {
		err := s.pub.Publish(ctx, s.subject, data)
		if err != nil && errors.IsInvalid(err) {
			return retry.NonRetryable(err)
		}
		return err
	})
	if err != nil {
		s.failures.Add(1)
		s.logger.Warn("Publish failed", "attempts", attempts, "error", err)
		return fmt.Errorf("%w: publish %s: %w", errors.ErrIO, s.subject, err)
	}

	s.published.Add(1)
	return nil
}
