package frame

import (
	"fmt"
	"strings"
	"unicode"
)

// FieldKey identifies which SensorReading value a field fills
type FieldKey string

const (
	FieldTemperature  FieldKey = "temperature"
	FieldHumidity     FieldKey = "humidity"
	FieldAirQuality   FieldKey = "air_quality"
	FieldLightPercent FieldKey = "light_percent"
	FieldLux          FieldKey = "lux"
)

// Field describes how to find one numeric value in a frame: the text after
// Label and before Terminator on the same line.
type Field struct {
	Key        FieldKey
	Label      string
	Terminator string
}

// Flag describes a boolean line. The flag is set when the first word after
// Label is Affirmative, ignoring case and punctuation.
type Flag struct {
	Label       string
	Affirmative string
}

// Schema is the per-deployment description of the device report format
type Schema struct {
	Name             string
	StartPrefix      string
	CompletionMarker string
	Fields           []Field
	Motion           Flag
}

// DefaultSchema is the English report format
func DefaultSchema() Schema {
	return Schema{
		Name:             "default",
		StartPrefix:      "====",
		CompletionMarker: "lux)",
		Fields: []Field{
			{Key: FieldTemperature, Label: "Temperature:", Terminator: "C"},
			{Key: FieldHumidity, Label: "Humidity:", Terminator: "%"},
			{Key: FieldAirQuality, Label: "Air Quality:", Terminator: "%"},
			{Key: FieldLightPercent, Label: "Light:", Terminator: "%"},
			{Key: FieldLux, Label: "Illuminance: (", Terminator: "lux"},
		},
		Motion: Flag{Label: "Motion:", Affirmative: "DETECTED"},
	}
}

// PolishSchema is the format printed by the stock SmartHouse firmware.
// Illuminance is the parenthesised value on the light line, e.g.
// "Natężenie światła: 60.0% (500 lux)".
func PolishSchema() Schema {
	return Schema{
		Name:             "pl",
		StartPrefix:      "====",
		CompletionMarker: "lux)",
		Fields: []Field{
			{Key: FieldTemperature, Label: "Temperatura:", Terminator: "°C"},
			{Key: FieldHumidity, Label: "Wilgotność:", Terminator: "%"},
			{Key: FieldAirQuality, Label: "Jakość powietrza:", Terminator: "%"},
			{Key: FieldLightPercent, Label: "Natężenie światła:", Terminator: "%"},
			{Key: FieldLux, Label: "(", Terminator: "lux"},
		},
		Motion: Flag{Label: "Ruch:", Affirmative: "WYKRYTO"},
	}
}

// SchemaByName returns a built-in schema
func SchemaByName(name string) (Schema, error) {
	switch strings.ToLower(name) {
	case "", "default", "en":
		return DefaultSchema(), nil
	case "pl":
		return PolishSchema(), nil
	default:
		return Schema{}, fmt.Errorf("unknown frame schema %q", name)
	}
}

// Validate checks that the schema can drive both the accumulator and the parser
func (s Schema) Validate() error {
	if s.StartPrefix == "" {
		return fmt.Errorf("start prefix must not be empty")
	}
	if s.CompletionMarker == "" {
		return fmt.Errorf("completion marker must not be empty")
	}
	if len(s.Fields) == 0 {
		return fmt.Errorf("schema %q has no fields", s.Name)
	}

	seen := make(map[FieldKey]bool)
	for _, f := range s.Fields {
		if f.Label == "" || f.Terminator == "" {
			return fmt.Errorf("field %s: label and terminator are required", f.Key)
		}
		if seen[f.Key] {
			return fmt.Errorf("field %s: defined twice", f.Key)
		}
		seen[f.Key] = true
	}

	for _, key := range []FieldKey{FieldTemperature, FieldHumidity, FieldAirQuality, FieldLightPercent, FieldLux} {
		if !seen[key] {
			return fmt.Errorf("field %s: missing from schema %q", key, s.Name)
		}
	}

	if s.Motion.Label != "" && s.Motion.Affirmative == "" {
		return fmt.Errorf("motion flag: affirmative token is required when label is set")
	}
	if strings.ContainsFunc(s.Motion.Affirmative, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		return fmt.Errorf("motion flag: affirmative token %q must be a single word", s.Motion.Affirmative)
	}

	return nil
}
