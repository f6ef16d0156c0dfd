package service

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"oven_controller/internal/hardware"
	"oven_controller/internal/logger"
	"oven_controller/internal/models"
	"oven_controller/internal/repository"
)

// Accepted range and aliases for dev=temp.
const (
	MaxSetTempC   = 500.0
	HighAliasTemp = 250.0
	LowAliasTemp  = 180.0
)

// Devices accepted by Set.
const (
	DevTemp   = "temp"
	DevLight  = "light"
	DevFan    = "fan"
	DevTop    = "top"
	DevBottom = "bottom"
	DevBack   = "back"
	DevTimer  = "timer"
)

var switchKeys = map[string]string{
	DevLight:  repository.KeySetLight,
	DevFan:    repository.KeySetFan,
	DevTop:    repository.KeySetTop,
	DevBottom: repository.KeySetBottom,
	DevBack:   repository.KeySetBack,
}

var (
	trueWords  = []string{"on", "On", "ON", "1", "true", "True", "TRUE", "t", "T"}
	falseWords = []string{"off", "Off", "OFF", "0", "false", "False", "FALSE", "f", "F"}
)

// InvalidInputError is a rejected command. Its message is shown to the
// client as is.
type InvalidInputError struct {
	Msg string
}

func (e *InvalidInputError) Error() string { return e.Msg }

func cantSet(dev, value string) error {
	return &InvalidInputError{Msg: "can't set " + dev + " to " + value}
}

var errCantParse = &InvalidInputError{Msg: "can't parse request"}

// OvenService serves the merged state and applies user commands.
type OvenService struct {
	setpoints repository.SetpointRepo
	backend   hardware.Backend
	trend     hardware.TrendSource
	events    *eventRecorder
	log       *logger.Logger
	now       func() time.Time
}

// NewOvenService builds the command/status service. trend may be nil; it
// supplies the reported temperature after a write when the sensor is down.
func NewOvenService(setpoints repository.SetpointRepo, backend hardware.Backend, trend hardware.TrendSource, events *eventRecorder, log *logger.Logger) *OvenService {
	if log == nil {
		log = logger.Nop()
	}
	if events == nil {
		events = newEventRecorder(nil, nil, log)
	}
	return &OvenService{
		setpoints: setpoints,
		backend:   backend,
		trend:     trend,
		events:    events,
		log:       log,
		now:       time.Now,
	}
}

// Status returns the persisted setpoints merged with the current temperature
// and the live actuator states.
func (s *OvenService) Status(ctx context.Context) (models.OvenState, error) {
	sp, a, err := s.load(ctx)
	if err != nil {
		return models.OvenState{}, err
	}
	temp, err := hardware.CurrentTemperature(ctx, s.backend)
	if err != nil {
		return models.OvenState{}, fmt.Errorf("read temperature: %w", err)
	}
	return MergeState(sp, a, temp, s.now()), nil
}

func (s *OvenService) load(ctx context.Context) (models.Setpoints, models.Actuators, error) {
	sp, err := s.setpoints.Load(ctx)
	if err != nil {
		return models.Setpoints{}, models.Actuators{}, err
	}
	a, err := s.backend.Actuators()
	if err != nil {
		return models.Setpoints{}, models.Actuators{}, fmt.Errorf("read actuators: %w", err)
	}
	return sp, a, nil
}

// stateAfterWrite is Status for a command that already went through. A
// sensor failure does not fail the command; the last recorded temperature is
// reported instead.
func (s *OvenService) stateAfterWrite(ctx context.Context) (models.OvenState, error) {
	sp, a, err := s.load(ctx)
	if err != nil {
		return models.OvenState{}, err
	}
	temp, err := hardware.CurrentTemperature(ctx, s.backend)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.OvenState{}, ctxErr
		}
		s.log.Warnw("set_temperature_unavailable", "error", err)
		temp = s.lastTemp()
	}
	return MergeState(sp, a, temp, s.now()), nil
}

func (s *OvenService) lastTemp() float64 {
	if s.trend == nil {
		return 0
	}
	if last, ok := s.trend.Last(); ok {
		return last.Temp
	}
	return 0
}

// Set applies one command and returns the resulting state. Malformed input
// is rejected with *InvalidInputError before anything is written.
func (s *OvenService) Set(ctx context.Context, dev, value string) (models.OvenState, error) {
	var err error
	switch {
	case dev == DevTemp:
		err = s.setTemp(ctx, value)
	case dev == DevTimer:
		err = s.setTimer(ctx, value)
	case switchKeys[dev] != "":
		err = s.setSwitch(ctx, dev, value)
	default:
		return models.OvenState{}, errCantParse
	}
	if err != nil {
		return models.OvenState{}, err
	}
	return s.stateAfterWrite(ctx)
}

// ParseTemp accepts a number in [0, 500] or one of the aliases high and low.
func ParseTemp(value string) (float64, bool) {
	switch value {
	case "high":
		return HighAliasTemp, true
	case "low":
		return LowAliasTemp, true
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	if v < 0 || v > MaxSetTempC {
		return 0, false
	}
	return v, true
}

// ParseSwitch maps the accepted on/off words to a bool.
func ParseSwitch(value string) (on bool, ok bool) {
	for _, w := range trueWords {
		if value == w {
			return true, true
		}
	}
	for _, w := range falseWords {
		if value == w {
			return false, true
		}
	}
	return false, false
}

func (s *OvenService) setTemp(ctx context.Context, value string) error {
	v, ok := ParseTemp(value)
	if !ok {
		return cantSet(DevTemp, value)
	}
	return s.writeKey(ctx, repository.KeySetTemp, v)
}

func (s *OvenService) setSwitch(ctx context.Context, dev, value string) error {
	on, ok := ParseSwitch(value)
	if !ok {
		return cantSet(dev, value)
	}
	return s.writeKey(ctx, switchKeys[dev], on)
}

// setTimer starts a countdown of N minutes, restarting one already running,
// or returns to manual mode on 0.
func (s *OvenService) setTimer(ctx context.Context, value string) error {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n < 0 {
		return cantSet(DevTimer, value)
	}
	now := s.now().UTC()

	if n == 0 {
		changed, err := s.setpoints.WriteKeys(ctx, map[string]any{
			repository.KeyTimer:        false,
			repository.KeyTimerMinutes: 0,
		})
		if err != nil {
			return err
		}
		if containsKey(changed, repository.KeyTimer) {
			s.log.Infow("timer_stopped")
			s.events.record(ctx, now, models.EventTimerStop, "timer stopped, manual mode", nil)
		}
		return nil
	}

	if _, err := s.setpoints.WriteKeys(ctx, map[string]any{
		repository.KeyTimer:        true,
		repository.KeyTimerStart:   now,
		repository.KeyTimerMinutes: n,
	}); err != nil {
		return err
	}
	s.log.Infow("timer_started", "minutes", n)
	s.events.record(ctx, now, models.EventTimerStart, fmt.Sprintf("timer set to %d minutes", n),
		map[string]any{"timer_minutes": n})
	return nil
}

func (s *OvenService) writeKey(ctx context.Context, key string, value any) error {
	changed, err := s.setpoints.WriteKey(ctx, key, value)
	if err != nil {
		return err
	}
	if changed {
		s.log.Infow("setpoint_changed", "key", key, "value", value)
		s.events.record(ctx, s.now(), models.EventSetpointChange, fmt.Sprintf("%s set to %v", key, value),
			map[string]any{"key": key, "value": value})
	}
	return nil
}

func containsKey(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}
