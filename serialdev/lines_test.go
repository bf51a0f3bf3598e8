package serialdev

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, src *LineSource) []string {
	t.Helper()
	var lines []string
	for {
		line, err := src.Next()
		if err == io.EOF {
			return lines
		}
		require.NoError(t, err)
		lines = append(lines, line)
	}
}

func TestLineSource_TrimsAndSplits(t *testing.T) {
	src := NewLineSource(strings.NewReader("==== START\r\n  Temperature: 21.5C \r\n\r\nIlluminance: (500lux)\n"), 0)

	require.Equal(t, []string{
		"==== START",
		"Temperature: 21.5C",
		"",
		"Illuminance: (500lux)",
	}, readAll(t, src))
}

func TestLineSource_DropsInvalidUTF8(t *testing.T) {
	src := NewLineSource(strings.NewReader("Humid\xffity: 45.0%\nTemperatura: 23.4 \xc2\xb0C\n"), 0)

	require.Equal(t, []string{"Humidity: 45.0%", "Temperatura: 23.4 °C"}, readAll(t, src))
}

func TestLineSource_UnterminatedTail(t *testing.T) {
	src := NewLineSource(strings.NewReader("one\ntwo"), 0)

	require.Equal(t, []string{"one", "two"}, readAll(t, src))
}

func TestLineSource_OverlongLineDropped(t *testing.T) {
	long := strings.Repeat("x", 100)
	src := NewLineSource(strings.NewReader("short\n"+long+"\nafter\n"), 16)

	require.Equal(t, []string{"short", "after"}, readAll(t, src))
	require.Equal(t, uint64(1), src.Dropped())
}

func TestLineSource_ByteAtATime(t *testing.T) {
	// Partial reads must not split lines
	src := NewLineSource(&oneByteReader{s: "Light: 60.0%\nMotion: DETECTED\n"}, 0)

	require.Equal(t, []string{"Light: 60.0%", "Motion: DETECTED"}, readAll(t, src))
}

type oneByteReader struct {
	s string
	i int
}

func (r *oneByteReader) Read(p []byte) (int, error) {
	if r.i >= len(r.s) {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}
	p[0] = r.s[r.i]
	r.i++
	return 1, nil
}
