package relay

import "strconv"

// Device command ranges accepted by the firmware
const (
	ServoMin   = 0
	ServoMax   = 180
	StepperMin = -2048
	StepperMax = 2048
)

// Servo positions the servo; angle is clamped to [ServoMin, ServoMax]
func Servo(angle int) string {
	return "S" + strconv.Itoa(min(max(angle, ServoMin), ServoMax))
}

// Stepper moves the stepper by steps; negative values turn it backwards
func Stepper(steps int) string {
	return "M" + strconv.Itoa(min(max(steps, StepperMin), StepperMax))
}

func Buzzer(on bool) string {
	if on {
		return "B1"
	}
	return "B0"
}
