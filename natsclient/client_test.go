package natsclient

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_Defaults(t *testing.T) {
	c, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	assert.Equal(t, "nats://localhost:4222", c.URL())
	assert.Equal(t, StatusDisconnected, c.Status())
	assert.False(t, c.IsHealthy())
	assert.Contains(t, c.Name(), "varmsg-")
	assert.Equal(t, time.Second, c.Backoff())
}

func TestNewClient_Options(t *testing.T) {
	c, err := NewClient("nats://localhost:4222",
		WithName("pipelines"),
		WithLogger(slog.Default()),
		WithCircuitBreakerThreshold(2),
		WithMaxBackoff(10*time.Second),
		WithCredentials("u", "p"),
	)
	require.NoError(t, err)
	assert.Equal(t, "pipelines", c.Name())
	assert.Equal(t, int32(2), c.circuitThreshold)
	assert.Equal(t, 10*time.Second, c.maxBackoff)
}

func TestNewClient_RejectsBadTimeout(t *testing.T) {
	_, err := NewClient("nats://localhost:4222", WithTimeout(0))
	require.Error(t, err)
}

func TestCircuitBreaker_OpensAtThreshold(t *testing.T) {
	c, err := NewClient("nats://invalid:4222", WithCircuitBreakerThreshold(3))
	require.NoError(t, err)

	c.recordFailure()
	c.recordFailure()
	assert.NotEqual(t, StatusCircuitOpen, c.Status())

	c.recordFailure()
	assert.Equal(t, StatusCircuitOpen, c.Status())
	assert.Equal(t, 2*time.Second, c.Backoff())

	err = c.Connect(context.Background())
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreaker_Reset(t *testing.T) {
	c, err := NewClient("nats://invalid:4222", WithCircuitBreakerThreshold(1))
	require.NoError(t, err)

	c.recordFailure()
	require.Equal(t, StatusCircuitOpen, c.Status())

	c.resetCircuit()
	assert.Equal(t, int32(0), c.Failures())
	assert.Equal(t, StatusDisconnected, c.Status())
	assert.Equal(t, time.Second, c.Backoff())
}

func TestClient_NotConnected(t *testing.T) {
	c, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	ctx := context.Background()
	assert.ErrorIs(t, c.Publish(ctx, "varmsg.test", []byte("{}")), ErrNotConnected)

	_, err = c.RTT()
	assert.ErrorIs(t, err, ErrNotConnected)

	_, err = c.GetKeyValueBucket(ctx, "VARMSG_VARS")
	assert.ErrorIs(t, err, ErrNotConnected)

	_, err = c.JetStream()
	assert.Error(t, err)
}

func TestClient_CloseIdempotent(t *testing.T) {
	c, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	assert.NoError(t, c.Close(context.Background()))
	assert.NoError(t, c.Close(context.Background()))
	assert.Equal(t, StatusDisconnected, c.Status())
}

func TestConnectionStatus_String(t *testing.T) {
	tests := map[ConnectionStatus]string{
		StatusDisconnected:   "disconnected",
		StatusConnecting:     "connecting",
		StatusConnected:      "connected",
		StatusReconnecting:   "reconnecting",
		StatusCircuitOpen:    "circuit_open",
		ConnectionStatus(42): "unknown",
	}
	for status, want := range tests {
		assert.Equal(t, want, status.String())
	}
}

func TestKVErrorHelpers(t *testing.T) {
	assert.True(t, IsKVNotFoundError(ErrKVKeyNotFound))
	assert.True(t, IsKVNotFoundError(errors.New("nats: key not found")))
	assert.False(t, IsKVNotFoundError(nil))
	assert.False(t, IsKVNotFoundError(errors.New("timeout")))

	assert.True(t, IsKVConflictError(ErrKVKeyExists))
	assert.True(t, IsKVConflictError(errors.New("wrong last sequence: 4")))
	assert.False(t, IsKVConflictError(nil))
}

func TestIsAlreadyExistsError(t *testing.T) {
	assert.True(t, isAlreadyExistsError(errors.New("stream name already in use")))
	assert.False(t, isAlreadyExistsError(errors.New("permission denied")))
	assert.False(t, isAlreadyExistsError(nil))
}
