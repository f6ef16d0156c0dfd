package service

import (
	"time"

	"oven_controller/internal/models"
)

// elapsedMinutes is floor((now-start)/1m). A start in the future counts as
// zero elapsed.
func elapsedMinutes(start, now time.Time) int {
	d := now.Sub(start)
	if d < 0 {
		return 0
	}
	return int(d / time.Minute)
}

// TimerLeft returns the whole minutes left on a counting timer, never
// negative. A manual (inactive) timer has nothing left.
func TimerLeft(sp models.Setpoints, now time.Time) int {
	if !sp.Timer {
		return 0
	}
	left := sp.TimerMinutes - elapsedMinutes(sp.TimerStart, now)
	if left < 0 {
		return 0
	}
	return left
}

// TimerExpired reports whether a counting timer has run out at now.
func TimerExpired(sp models.Setpoints, now time.Time) bool {
	return sp.Timer && elapsedMinutes(sp.TimerStart, now) >= sp.TimerMinutes
}

// MergeState builds the public view: persisted intent with live readings on
// top.
func MergeState(sp models.Setpoints, a models.Actuators, temp float64, now time.Time) models.OvenState {
	return models.OvenState{
		Temp:      temp,
		Actuators: a,
		Setpoints: sp,
		TimerLeft: TimerLeft(sp, now),
	}
}
