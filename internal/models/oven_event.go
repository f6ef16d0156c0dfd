package models

import "time"

// OvenEvent is a single log entry.
type OvenEvent struct {
	EventID     string    `json:"event_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Type        string    `json:"type"`        // HEATING_ON | HEATING_OFF | TIMER_EXPIRED | SENSOR_FAULT | ...
	Description string    `json:"description"` // human-readable
	Metadata    any       `json:"metadata,omitempty"`
}

// Event types.
const (
	EventHeatingOn      = "HEATING_ON"
	EventHeatingOff     = "HEATING_OFF"
	EventCoolingOn      = "COOLING_ON"
	EventCoolingOff     = "COOLING_OFF"
	EventSetpointChange = "SETPOINT_CHANGE"
	EventTimerStart     = "TIMER_START"
	EventTimerStop      = "TIMER_STOP"
	EventTimerExpired   = "TIMER_EXPIRED"
	EventSensorFault    = "SENSOR_FAULT"
	EventStorageFault   = "STORAGE_FAULT"
)
