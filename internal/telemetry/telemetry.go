// Package telemetry publishes oven state and events to an MQTT broker.
package telemetry

import (
	"encoding/json"
	"time"

	"oven_controller/internal/models"
)

// DefaultTopic is the base topic when none is configured.
const DefaultTopic = "oven"

// Publisher sends oven telemetry. Publishing failures are reported to the
// caller and must not stop the control loop.
type Publisher interface {
	PublishState(st models.OvenState) error
	PublishEvent(e models.OvenEvent) error
	Close() error
}

// StateTopic and EventTopic derive the sub-topics from a base topic.
func StateTopic(base string) string { return base + "/state" }
func EventTopic(base string) string { return base + "/events" }

// StatePayload wraps a state snapshot with its publication time.
type StatePayload struct {
	Timestamp string           `json:"timestamp"`
	State     models.OvenState `json:"state"`
}

// FormatState creates the JSON payload for a state snapshot.
func FormatState(st models.OvenState, at time.Time) ([]byte, error) {
	return json.Marshal(StatePayload{
		Timestamp: at.UTC().Format(time.RFC3339),
		State:     st,
	})
}

// FormatEvent creates the JSON payload for an event.
func FormatEvent(e models.OvenEvent) ([]byte, error) {
	return json.Marshal(e)
}

// Nop discards everything. Used when no broker is configured.
type Nop struct{}

func (Nop) PublishState(models.OvenState) error { return nil }
func (Nop) PublishEvent(models.OvenEvent) error { return nil }
func (Nop) Close() error                        { return nil }
