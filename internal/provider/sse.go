package provider

import (
	"bufio"
	"io"
	"strings"
)

// sseDone is the sentinel payload terminating OpenAI-style streams.
const sseDone = "[DONE]"

// sseScanner reads server-sent-events framing: `data: {json}` lines separated
// by blank lines. Event-name lines are skipped; the JSON payloads carry their
// own type discriminators.
type sseScanner struct {
	scanner *bufio.Scanner
}

func newSSEScanner(r io.Reader) *sseScanner {
	sc := bufio.NewScanner(r)
	// Generation deltas are small but some providers batch large chunks.
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &sseScanner{scanner: sc}
}

// Next returns the next data payload. ok is false at end of stream; err is
// non-nil only on a read failure.
func (s *sseScanner) Next() (data string, ok bool, err error) {
	for s.scanner.Scan() {
		line := strings.TrimRight(s.scanner.Text(), "\r")
		if line == "" || strings.HasPrefix(line, ":") || strings.HasPrefix(line, "event:") {
			continue
		}
		if payload, found := strings.CutPrefix(line, "data:"); found {
			return strings.TrimSpace(payload), true, nil
		}
	}
	return "", false, s.scanner.Err()
}
