package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorCodecRoundTrip(t *testing.T) {
	vec := []float32{0.25, -1.5, 0, 3.1415927, -0.000123}

	decoded, err := DecodeVector(EncodeVector(vec))
	require.NoError(t, err)
	assert.Equal(t, vec, decoded)
}

func TestDecodeVectorRejectsTruncatedBlob(t *testing.T) {
	blob := EncodeVector([]float32{1, 2, 3})

	_, err := DecodeVector(blob[:len(blob)-2])
	assert.Error(t, err)
}

func TestEncodeVectorEmpty(t *testing.T) {
	decoded, err := DecodeVector(EncodeVector(nil))
	require.NoError(t, err)
	assert.Empty(t, decoded)
}
