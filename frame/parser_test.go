package frame

import (
	"errors"
	"strings"
	"testing"
	"time"
)

var fixedTime = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestParser(t *testing.T, schema Schema) *Parser {
	t.Helper()
	p, err := NewParser(schema, WithClock(func() time.Time { return fixedTime }))
	if err != nil {
		t.Fatalf("Failed to create parser: %v", err)
	}
	return p
}

const scenarioFrame = "==== START\n" +
	"Temperature: 21.5C\n" +
	"Humidity: 45.0%\n" +
	"Air Quality: 80.0%\n" +
	"Light: 60.0%\n" +
	"Illuminance: (500lux)\n"

func TestParse_Scenario(t *testing.T) {
	p := newTestParser(t, DefaultSchema())

	res, err := p.Parse(scenarioFrame)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	r := res.Reading
	if r.TemperatureCelsius != 21.5 {
		t.Errorf("Expected temperature 21.5, got %v", r.TemperatureCelsius)
	}
	if r.HumidityPercent != 45.0 {
		t.Errorf("Expected humidity 45.0, got %v", r.HumidityPercent)
	}
	if r.AirQuality != 80.0 {
		t.Errorf("Expected air quality 80.0, got %v", r.AirQuality)
	}
	if r.LightPercent != 60.0 {
		t.Errorf("Expected light 60.0, got %v", r.LightPercent)
	}
	if r.Lux != 500 {
		t.Errorf("Expected lux 500, got %v", r.Lux)
	}
	if r.MotionDetected {
		t.Error("Expected motion_detected=false")
	}
	if res.Motion != FlagAbsent {
		t.Errorf("Expected motion flag absent, got %s", res.Motion)
	}
	if !r.Timestamp.Equal(fixedTime) {
		t.Errorf("Expected timestamp from parser clock, got %v", r.Timestamp)
	}
}

func TestParse_MissingHumidity(t *testing.T) {
	p := newTestParser(t, DefaultSchema())

	text := strings.Replace(scenarioFrame, "Humidity: 45.0%\n", "", 1)
	res, err := p.Parse(text)
	if err == nil {
		t.Fatalf("Expected parse error, got reading %+v", res.Reading)
	}

	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("Expected *ParseError, got %T", err)
	}
	if perr.Field != FieldHumidity {
		t.Errorf("Expected field humidity, got %s", perr.Field)
	}
	if perr.Frame != text {
		t.Errorf("Expected raw frame in error")
	}
	if !errors.Is(err, ErrMissingLabel) {
		t.Errorf("Expected ErrMissingLabel, got %v", err)
	}
	if res != (Result{}) {
		t.Errorf("Expected zero result on error, got %+v", res)
	}
}

func TestParse_EveryMandatoryLabelMissing(t *testing.T) {
	p := newTestParser(t, DefaultSchema())

	lines := strings.Split(strings.TrimSuffix(scenarioFrame, "\n"), "\n")
	// Skip the start marker line, every other line carries a mandatory field
	for i := 1; i < len(lines); i++ {
		t.Run(lines[i], func(t *testing.T) {
			kept := append(append([]string{}, lines[:i]...), lines[i+1:]...)
			_, err := p.Parse(strings.Join(kept, "\n") + "\n")
			if err == nil {
				t.Fatal("Expected parse error, got nil")
			}
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("Expected *ParseError, got %T", err)
			}
		})
	}
}

func TestParse_FieldOrderIndependent(t *testing.T) {
	p := newTestParser(t, DefaultSchema())

	text := "====\n" +
		"Light: 60.0%\n" +
		"Motion: DETECTED\n" +
		"Humidity: 45.0%\n" +
		"Temperature: 21.5C\n" +
		"Air Quality: 80.0%\n" +
		"Illuminance: (500lux)\n"

	res, err := p.Parse(text)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if res.Reading.TemperatureCelsius != 21.5 || res.Reading.LightPercent != 60 {
		t.Errorf("Unexpected reading %+v", res.Reading)
	}
	if !res.Reading.MotionDetected {
		t.Error("Expected motion_detected=true")
	}
}

func TestParse_MotionTriState(t *testing.T) {
	p := newTestParser(t, DefaultSchema())

	tests := []struct {
		name       string
		motionLine string
		wantState  FlagState
		wantMotion bool
	}{
		{"absent", "", FlagAbsent, false},
		{"detected", "Motion: DETECTED\n", FlagSet, true},
		{"none", "Motion: NONE\n", FlagUnset, false},
		{"garbled", "Motion: ?#\n", FlagUnset, false},
		{"negated", "Motion: NOT DETECTED\n", FlagUnset, false},
		{"prefixed", "Motion: UNDETECTED\n", FlagUnset, false},
		{"punctuated", "Motion: DETECTED!\n", FlagSet, true},
		{"lowercase", "Motion: detected\n", FlagSet, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := p.Parse(scenarioFrame + tt.motionLine)
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			if res.Motion != tt.wantState {
				t.Errorf("Expected state %s, got %s", tt.wantState, res.Motion)
			}
			if res.Reading.MotionDetected != tt.wantMotion {
				t.Errorf("Expected motion %v, got %v", tt.wantMotion, res.Reading.MotionDetected)
			}
		})
	}
}

func TestParse_AffirmativeOnOtherLineIgnored(t *testing.T) {
	p := newTestParser(t, DefaultSchema())

	res, err := p.Parse(scenarioFrame + "Motion: NONE\nStatus: DETECTED\n")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if res.Reading.MotionDetected {
		t.Error("Affirmative token outside the motion line must not set the flag")
	}
}

func TestParse_LuxRepresentations(t *testing.T) {
	p := newTestParser(t, DefaultSchema())

	tests := []struct {
		lux  string
		want float64
	}{
		{"500", 500},
		{"500.5", 500.5},
		{" 42 ", 42},
		{"0", 0},
	}

	for _, tt := range tests {
		t.Run(tt.lux, func(t *testing.T) {
			text := strings.Replace(scenarioFrame, "(500lux)", "("+tt.lux+"lux)", 1)
			res, err := p.Parse(text)
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			if res.Reading.Lux != tt.want {
				t.Errorf("Expected lux %v, got %v", tt.want, res.Reading.Lux)
			}
		})
	}
}

func TestParse_InvalidNumbers(t *testing.T) {
	p := newTestParser(t, DefaultSchema())

	tests := []struct {
		name    string
		replace string
		with    string
	}{
		{"text temperature", "21.5C", "warmC"},
		{"empty humidity", "45.0%", "%"},
		{"NaN light", "60.0%", "NaN%"},
		{"Inf lux", "(500lux)", "(+Influx)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text := strings.Replace(scenarioFrame, tt.replace, tt.with, 1)
			_, err := p.Parse(text)
			if !errors.Is(err, ErrInvalidNumber) {
				t.Errorf("Expected ErrInvalidNumber, got %v", err)
			}
		})
	}
}

func TestParse_TerminatorMustBeOnLabelLine(t *testing.T) {
	p := newTestParser(t, DefaultSchema())

	// Humidity lost its unit; the next line's "%" must not be borrowed
	text := strings.Replace(scenarioFrame, "Humidity: 45.0%", "Humidity: 45.0", 1)
	_, err := p.Parse(text)
	if !errors.Is(err, ErrMissingTerminator) {
		t.Errorf("Expected ErrMissingTerminator, got %v", err)
	}
}

func TestParse_PolishSchema(t *testing.T) {
	p := newTestParser(t, PolishSchema())

	text := "==================\n" +
		"Temperatura: 23.4 °C\n" +
		"Wilgotność: 41.0 %\n" +
		"Jakość powietrza: 87.5 %\n" +
		"Ruch: WYKRYTO!\n" +
		"Natężenie światła: 62.0 % (512 lux)\n"

	res, err := p.Parse(text)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	r := res.Reading
	if r.TemperatureCelsius != 23.4 || r.HumidityPercent != 41 || r.AirQuality != 87.5 ||
		r.LightPercent != 62 || r.Lux != 512 || !r.MotionDetected {
		t.Errorf("Unexpected reading %+v", r)
	}
}

func TestParse_GarbageNeverPanics(t *testing.T) {
	p := newTestParser(t, DefaultSchema())

	inputs := []string{
		"",
		"\n\n\n",
		"Temperature:",
		"Temperature:C",
		"Illuminance: (",
		"Temperature: 1C Humidity: 2% Air Quality: 3% Light: 4% Illuminance: (5lux)",
		strings.Repeat("=", 1000),
	}

	for _, in := range inputs {
		_, _ = p.Parse(in)
	}
}

func TestNewParser_InvalidSchema(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *Schema)
	}{
		{"empty start prefix", func(s *Schema) { s.StartPrefix = "" }},
		{"empty completion marker", func(s *Schema) { s.CompletionMarker = "" }},
		{"no fields", func(s *Schema) { s.Fields = nil }},
		{"missing lux", func(s *Schema) { s.Fields = s.Fields[:4] }},
		{"duplicate field", func(s *Schema) { s.Fields = append(s.Fields, s.Fields[0]) }},
		{"empty terminator", func(s *Schema) { s.Fields[0].Terminator = "" }},
		{"motion without token", func(s *Schema) { s.Motion.Affirmative = "" }},
		{"multi-word motion token", func(s *Schema) { s.Motion.Affirmative = "NOT NONE" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSchema()
			tt.mutate(&s)
			if _, err := NewParser(s); err == nil {
				t.Error("Expected error for invalid schema, got nil")
			}
		})
	}
}

func TestSchemaByName(t *testing.T) {
	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{"", "default", false},
		{"default", "default", false},
		{"PL", "pl", false},
		{"de", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := SchemaByName(tt.name)
			if tt.wantErr {
				if err == nil {
					t.Error("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			if s.Name != tt.want {
				t.Errorf("Expected schema %s, got %s", tt.want, s.Name)
			}
		})
	}
}
