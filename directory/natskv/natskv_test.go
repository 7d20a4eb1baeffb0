package natskv

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/varmsg/errors"
)

func TestKeyRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		name string
		id   uint32
	}{
		{"/sys/gps/lat", 0},
		{"temp.celsius", 12},
		{"ünïcode name", 4294967295},
	} {
		key := EncodeKey(tc.name, tc.id)
		encodedName := strings.TrimSuffix(key, "."+strconv.FormatUint(uint64(tc.id), 10))
		assert.NotContains(t, encodedName, ".")

		name, id, err := DecodeKey(key)
		require.NoError(t, err)
		assert.Equal(t, tc.name, name)
		assert.Equal(t, tc.id, id)
	}
}

func TestDecodeKey_Invalid(t *testing.T) {
	for _, key := range []string{"nodot", "!!!.1", "YQ.x"} {
		_, _, err := DecodeKey(key)
		assert.ErrorIs(t, err, errors.ErrInvalidArgument, key)
	}
}
