package provider

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSEScannerSkipsFramingNoise(t *testing.T) {
	input := strings.Join([]string{
		": keep-alive",
		"event: message_start",
		"data: {\"a\":1}",
		"",
		"data:{\"b\":2}",
		"",
		"data: [DONE]",
		"",
	}, "\n")

	sc := newSSEScanner(strings.NewReader(input))

	var payloads []string
	for {
		data, ok, err := sc.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		payloads = append(payloads, data)
	}
	assert.Equal(t, []string{`{"a":1}`, `{"b":2}`, sseDone}, payloads)
}

func TestSSEScannerCRLF(t *testing.T) {
	sc := newSSEScanner(strings.NewReader("data: {\"x\":1}\r\n\r\n"))

	data, ok, err := sc.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"x":1}`, data)
}

func TestSSEScannerEmptyStream(t *testing.T) {
	sc := newSSEScanner(strings.NewReader(""))

	_, ok, err := sc.Next()
	require.NoError(t, err)
	assert.False(t, ok)
}
