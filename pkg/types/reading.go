package types

import "time"

// SensorReading is one parsed report from the SmartHouse board.
// Lux is kept as float64 regardless of whether the device printed an
// integer or a decimal value.
type SensorReading struct {
	Timestamp          time.Time `json:"timestamp"`
	TemperatureCelsius float64   `json:"temperature"`
	HumidityPercent    float64   `json:"humidity"`
	AirQuality         float64   `json:"air_quality"`
	LightPercent       float64   `json:"light_percent"`
	Lux                float64   `json:"lux"`
	MotionDetected     bool      `json:"motion_detected"`
}

// MotionValue returns motion as a numeric sample (1 or 0)
func (r *SensorReading) MotionValue() float64 {
	if r.MotionDetected {
		return 1
	}
	return 0
}
