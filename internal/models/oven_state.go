package models

import "time"

// Actuators is the live state of the six oven outputs (true = energized).
type Actuators struct {
	Cooling bool `json:"cooling"`
	Fan     bool `json:"fan"`
	Light   bool `json:"light"`
	Top     bool `json:"top"`
	Bottom  bool `json:"bottom"`
	Back    bool `json:"back"`
}

// Heating reports whether any heating element is on.
func (a Actuators) Heating() bool {
	return a.Top || a.Bottom || a.Back
}

// Setpoints is the persisted user intent. Only these fields survive a restart.
type Setpoints struct {
	SetTemp      float64   `json:"set_temp"` // °C, [0, 500]
	SetFan       bool      `json:"set_fan"`
	SetLight     bool      `json:"set_light"`
	SetTop       bool      `json:"set_top"`
	SetBottom    bool      `json:"set_bottom"`
	SetBack      bool      `json:"set_back"`
	Timer        bool      `json:"timer"`
	TimerStart   time.Time `json:"timer_start"`
	TimerMinutes int       `json:"timer_minutes"`
}

// OvenState is the merged view served by /status: persisted setpoints with the
// live sensor and actuator readings on top.
type OvenState struct {
	Temp float64 `json:"temp"` // °C
	Actuators
	Setpoints
	TimerLeft int `json:"timer_left"` // minutes, never negative
}
