package frame

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/mjasion/balena-home/smarthouse/pkg/types"
)

var (
	ErrMissingLabel      = errors.New("label not found")
	ErrMissingTerminator = errors.New("terminator not found")
	ErrInvalidNumber     = errors.New("invalid number")
)

// ParseError is returned for a frame that cannot produce a complete reading.
// It is a content error: callers log it and move on.
type ParseError struct {
	Frame  string
	Field  FieldKey
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse field %s: %s", e.Field, e.Reason)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// FlagState is the tri-state outcome of a boolean extraction
type FlagState int

const (
	// FlagAbsent means the label was not in the frame
	FlagAbsent FlagState = iota
	// FlagSet means the label line carried the affirmative token
	FlagSet
	// FlagUnset means the label line was present without the affirmative token
	FlagUnset
)

func (s FlagState) String() string {
	switch s {
	case FlagAbsent:
		return "absent"
	case FlagSet:
		return "set"
	case FlagUnset:
		return "unset"
	default:
		return "unknown"
	}
}

// Result is a successfully parsed frame
type Result struct {
	Reading types.SensorReading
	Motion  FlagState
}

// Parser turns completed frame text into a SensorReading
type Parser struct {
	schema Schema
	now    func() time.Time
}

// ParserOption configures a Parser
type ParserOption func(*Parser)

// WithClock replaces time.Now as the source of reading timestamps
func WithClock(now func() time.Time) ParserOption {
	return func(p *Parser) {
		p.now = now
	}
}

// NewParser creates a Parser for the given schema
func NewParser(schema Schema, opts ...ParserOption) (*Parser, error) {
	if err := schema.Validate(); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}

	p := &Parser{
		schema: schema,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Schema returns the schema the parser was built with
func (p *Parser) Schema() Schema {
	return p.schema
}

// Parse extracts every schema field from text. Fields are located by label,
// so their order in the frame does not matter. Any missing or malformed
// field yields a *ParseError and no reading.
func (p *Parser) Parse(text string) (Result, error) {
	values := make(map[FieldKey]float64, len(p.schema.Fields))
	for _, f := range p.schema.Fields {
		v, err := extractNumber(text, f)
		if err != nil {
			return Result{}, err
		}
		values[f.Key] = v
	}

	motion := extractFlag(text, p.schema.Motion)

	return Result{
		Reading: types.SensorReading{
			Timestamp:          p.now(),
			TemperatureCelsius: values[FieldTemperature],
			HumidityPercent:    values[FieldHumidity],
			AirQuality:         values[FieldAirQuality],
			LightPercent:       values[FieldLightPercent],
			Lux:                values[FieldLux],
			MotionDetected:     motion == FlagSet,
		},
		Motion: motion,
	}, nil
}

// extractNumber reads the value between f.Label and f.Terminator. The
// terminator must be on the same line as the label.
func extractNumber(text string, f Field) (float64, error) {
	rest, ok := lineAfter(text, f.Label)
	if !ok {
		return 0, &ParseError{
			Frame:  text,
			Field:  f.Key,
			Reason: fmt.Sprintf("label %q not found", f.Label),
			Err:    ErrMissingLabel,
		}
	}

	raw, _, found := strings.Cut(rest, f.Terminator)
	if !found {
		return 0, &ParseError{
			Frame:  text,
			Field:  f.Key,
			Reason: fmt.Sprintf("terminator %q not found after label %q", f.Terminator, f.Label),
			Err:    ErrMissingTerminator,
		}
	}

	raw = strings.TrimSpace(raw)
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &ParseError{
			Frame:  text,
			Field:  f.Key,
			Reason: fmt.Sprintf("value %q is not a finite number", raw),
			Err:    ErrInvalidNumber,
		}
	}

	return v, nil
}

func extractFlag(text string, f Flag) FlagState {
	if f.Label == "" {
		return FlagAbsent
	}
	rest, ok := lineAfter(text, f.Label)
	if !ok {
		return FlagAbsent
	}
	// Only the first word counts, so "NOT DETECTED" or "UNDETECTED" stay unset
	words := strings.FieldsFunc(rest, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) > 0 && strings.EqualFold(words[0], f.Affirmative) {
		return FlagSet
	}
	return FlagUnset
}

// lineAfter returns the remainder of the line following the first
// occurrence of label
func lineAfter(text, label string) (string, bool) {
	idx := strings.Index(text, label)
	if idx < 0 {
		return "", false
	}
	rest := text[idx+len(label):]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[:nl]
	}
	return rest, true
}
