package serialdev

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// DefaultMaxLineBytes bounds a single device line
const DefaultMaxLineBytes = 4096

// LineSource splits a byte stream into trimmed text lines
type LineSource struct {
	r       *bufio.Reader
	dropped uint64
}

// NewLineSource reads lines of at most maxLineBytes from r.
// Longer lines are discarded whole.
func NewLineSource(r io.Reader, maxLineBytes int) *LineSource {
	if maxLineBytes <= 0 {
		maxLineBytes = DefaultMaxLineBytes
	}
	return &LineSource{r: bufio.NewReaderSize(r, maxLineBytes)}
}

// Next blocks until a full line is available and returns it decoded as
// UTF-8 with invalid bytes removed and surrounding whitespace trimmed.
// A final unterminated line is returned before io.EOF.
func (s *LineSource) Next() (string, error) {
	overlong := false
	for {
		b, err := s.r.ReadSlice('\n')
		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			overlong = true
			continue
		case overlong:
			s.dropped++
			overlong = false
			if err != nil {
				return "", err
			}
			continue
		case err != nil && len(b) == 0:
			return "", err
		}
		// A trailing partial line at EOF is still a line
		return decodeLine(b), nil
	}
}

// Dropped returns how many overlong lines were discarded
func (s *LineSource) Dropped() uint64 {
	return s.dropped
}

func decodeLine(b []byte) string {
	return strings.TrimSpace(strings.ToValidUTF8(string(b), ""))
}
