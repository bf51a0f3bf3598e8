package frame

import "strings"

// Status is the outcome of feeding one line into the Accumulator
type Status int

const (
	// Building means the line was buffered and no frame is ready yet
	Building Status = iota
	// Complete means the line carried the completion marker and a frame is ready
	Complete
)

func (s Status) String() string {
	switch s {
	case Building:
		return "building"
	case Complete:
		return "complete"
	default:
		return "unknown"
	}
}

// Accumulator groups consecutive lines into a single frame.
// It holds at most one frame at a time and is not safe for concurrent use;
// the ingestion loop is its only caller.
type Accumulator struct {
	startPrefix      string
	completionMarker string
	maxLines         int

	buf       strings.Builder
	lines     int
	abandoned uint64
	// set after an overflow; lines are dropped until the next start line
	discarding bool
}

// NewAccumulator creates an Accumulator. maxLines bounds how many lines an
// unfinished frame may hold before it is discarded; 0 disables the bound.
func NewAccumulator(startPrefix, completionMarker string, maxLines int) *Accumulator {
	return &Accumulator{
		startPrefix:      startPrefix,
		completionMarker: completionMarker,
		maxLines:         maxLines,
	}
}

// Feed appends line to the frame in progress.
// A line starting with the start prefix drops whatever was buffered and
// opens a new frame with that line as its first line. A line containing the
// completion marker closes the frame: the full text is returned with Complete
// and the buffer is emptied for the next frame. Once a frame overflows
// maxLines, every line up to the next start line is dropped, including a
// completion line.
func (a *Accumulator) Feed(line string) (Status, string) {
	switch {
	case strings.HasPrefix(line, a.startPrefix):
		if a.lines > 0 {
			a.abandoned++
		}
		a.reset()
	case a.discarding:
		return Building, ""
	}

	a.buf.WriteString(line)
	a.buf.WriteByte('\n')
	a.lines++

	if strings.Contains(line, a.completionMarker) {
		text := a.buf.String()
		a.reset()
		return Complete, text
	}

	if a.maxLines > 0 && a.lines > a.maxLines {
		a.abandoned++
		a.reset()
		a.discarding = true
	}

	return Building, ""
}

// Pending returns the number of lines buffered for the frame in progress
func (a *Accumulator) Pending() int {
	return a.lines
}

// Abandoned returns how many partial frames were dropped, either because a
// new start marker arrived first or because the line bound was exceeded
func (a *Accumulator) Abandoned() uint64 {
	return a.abandoned
}

func (a *Accumulator) reset() {
	a.buf.Reset()
	a.lines = 0
	a.discarding = false
}
