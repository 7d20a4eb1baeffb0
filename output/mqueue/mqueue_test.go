package mqueue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/varmsg/errors"
	"github.com/c360/varmsg/testutil"
)

func TestSubject(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "/varmsg/gps", want: "varmsg.gps"},
		{in: "//queue", want: "queue"},
		{in: "telemetry", want: "telemetry"},
		{in: "/a/b/c", want: "a.b.c"},
		{in: "/", wantErr: true},
		{in: "", wantErr: true},
		{in: "/a//b", wantErr: true},
		{in: "/a/", wantErr: true},
		{in: "/has space", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Subject(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, errors.ErrInvalidArgument)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSink_Publishes(t *testing.T) {
	pub := testutil.NewMockPublisher()
	s, err := Factory(pub, nil)("/varmsg/gps", true)
	require.NoError(t, err)

	require.NoError(t, s.Deliver(context.Background(), []byte("{}\n")))
	assert.Equal(t, [][]byte{[]byte("{}\n")}, pub.Messages("varmsg.gps"))
}

func TestSink_RetriesTransient(t *testing.T) {
	pub := testutil.NewMockPublisher()
	pub.FailNext(2, errors.WrapTransient(errors.ErrConnectionLost, "Client", "Publish", "publish"))

	s, err := New(pub, "/q", nil)
	require.NoError(t, err)
	require.NoError(t, s.Deliver(context.Background(), []byte("x")))

	assert.Equal(t, 3, pub.Attempts())
	assert.Equal(t, int64(2), s.Retries())
	assert.Equal(t, int64(1), s.Published())
}

func TestSink_GivesUp(t *testing.T) {
	pub := testutil.NewMockPublisher()
	pub.FailNext(10, errors.ErrConnectionLost)

	s, err := New(pub, "/q", nil)
	require.NoError(t, err)

	err = s.Deliver(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, errors.ErrIO)
	assert.ErrorIs(t, err, errors.ErrConnectionLost)
	assert.Equal(t, 3, pub.Attempts())
}

func TestSink_InvalidNotRetried(t *testing.T) {
	pub := testutil.NewMockPublisher()
	pub.FailNext(10, errors.WrapInvalid(errors.ErrInvalidArgument, "Client", "Publish", "bad subject"))

	s, err := New(pub, "/q", nil)
	require.NoError(t, err)

	err = s.Deliver(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, errors.ErrIO)
	assert.Equal(t, 1, pub.Attempts())
}

func TestNew_RequiresPublisher(t *testing.T) {
	_, err := New(nil, "/q", nil)
	assert.ErrorIs(t, err, errors.ErrNoConnection)
}
