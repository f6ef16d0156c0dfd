package hardware

import "fmt"

// max6675 frame bits.
const (
	max6675OpenBit    = 0x4
	max6675ShiftBits  = 3
	max6675DegPerUnit = 0.25
)

// decodeMAX6675 converts the two bytes clocked out of a MAX6675 into °C.
// Bit 2 set means the thermocouple is open.
func decodeMAX6675(frame []byte) (float64, error) {
	if len(frame) < 2 {
		return 0, fmt.Errorf("%w: short frame (%d bytes)", ErrSensorFault, len(frame))
	}
	word := uint16(frame[0])<<8 | uint16(frame[1])
	if word&max6675OpenBit != 0 {
		return 0, fmt.Errorf("%w: thermocouple open", ErrSensorFault)
	}
	return float64(word>>max6675ShiftBits) * max6675DegPerUnit, nil
}
