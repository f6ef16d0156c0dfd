package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"oven_controller/internal/hardware"
	"oven_controller/internal/logger"
	"oven_controller/internal/metrics"
	"oven_controller/internal/models"
	"oven_controller/internal/repository"
	"oven_controller/internal/telemetry"
	"oven_controller/internal/trend"
)

// ErrTickInProgress is returned when a tick starts while the previous one is
// still running. The new tick is dropped, not queued.
var ErrTickInProgress = errors.New("control tick already in progress")

// ControlParams are the regulation constants, all in °C.
type ControlParams struct {
	CoolingThresholdC float64 `mapstructure:"cooling_threshold_c"`
	HysteresisC       float64 `mapstructure:"hysteresis_c"`
	MinHeatingC       float64 `mapstructure:"min_heating_c"`
}

func DefaultControlParams() ControlParams {
	return ControlParams{
		CoolingThresholdC: 100,
		HysteresisC:       4,
		MinHeatingC:       10,
	}
}

// ControlConfig configures the loop and its sensor averaging.
type ControlConfig struct {
	Params      ControlParams
	Samples     int
	SampleDelay time.Duration
}

// NextActuators is one control decision. It only depends on its arguments.
func NextActuators(prev models.Actuators, sp models.Setpoints, temp float64, timerExpired bool, p ControlParams) models.Actuators {
	next := prev

	// Residual heat indicator, with its own hysteresis band.
	if temp > p.CoolingThresholdC {
		next.Cooling = true
	}
	if temp < p.CoolingThresholdC-p.HysteresisC {
		next.Cooling = false
	}

	if sp.SetTemp <= p.MinHeatingC {
		setHeaters(&next, false, false, false)
	} else {
		if temp > sp.SetTemp {
			setHeaters(&next, false, false, false)
		}
		if temp < sp.SetTemp-p.HysteresisC {
			setHeaters(&next, sp.SetTop, sp.SetBottom, sp.SetBack)
		}
	}

	if timerExpired {
		setHeaters(&next, false, false, false)
	}

	applyInterlocks(&next, sp)
	return next
}

// FailSafeActuators is the decision taken when the temperature is unknown:
// heaters off, cooling indicator held, fan and light by their usual rules.
func FailSafeActuators(prev models.Actuators, sp models.Setpoints) models.Actuators {
	next := prev
	setHeaters(&next, false, false, false)
	applyInterlocks(&next, sp)
	return next
}

func setHeaters(a *models.Actuators, top, bottom, back bool) {
	a.Top, a.Bottom, a.Back = top, bottom, back
}

// applyInterlocks forces the fan on with the back element and passes the
// light through.
func applyInterlocks(a *models.Actuators, sp models.Setpoints) {
	if a.Back {
		a.Fan = true
	} else {
		a.Fan = sp.SetFan
	}
	a.Light = sp.SetLight
}

// ControlLoopService reconciles setpoints with the sensed temperature.
type ControlLoopService struct {
	setpoints repository.SetpointRepo
	backend   hardware.Backend
	trend     *trend.Buffer
	events    *eventRecorder
	publisher telemetry.Publisher
	metrics   metrics.Recorder
	log       *logger.Logger
	cfg       ControlConfig
	feed      *stateFeed

	// running is held for the duration of a tick.
	running sync.Mutex

	// guarded by running
	sensorFaulted  bool
	storageFaulted bool
	published      models.OvenState
	hasPublished   bool
}

func NewControlLoopService(
	setpoints repository.SetpointRepo,
	backend hardware.Backend,
	buf *trend.Buffer,
	events *eventRecorder,
	pub telemetry.Publisher,
	rec metrics.Recorder,
	log *logger.Logger,
	cfg ControlConfig,
) *ControlLoopService {
	if pub == nil {
		pub = telemetry.Nop{}
	}
	if rec == nil {
		rec = metrics.Nop{}
	}
	if log == nil {
		log = logger.Nop()
	}
	if events == nil {
		events = newEventRecorder(nil, pub, log)
	}
	if cfg.Samples < 1 {
		cfg.Samples = 1
	}
	return &ControlLoopService{
		setpoints: setpoints,
		backend:   backend,
		trend:     buf,
		events:    events,
		publisher: pub,
		metrics:   rec,
		log:       log,
		cfg:       cfg,
		feed:      newStateFeed(),
	}
}

// Last returns the state committed by the most recent tick.
func (s *ControlLoopService) Last() (models.OvenState, bool) {
	return s.feed.Last()
}

// Subscribe follows the committed states, one per tick.
func (s *ControlLoopService) Subscribe() (<-chan models.OvenState, func()) {
	return s.feed.Subscribe()
}

// Run ticks at the given interval until ctx is canceled. Each tick runs on
// its own goroutine so a slow sensor read shows up as skipped ticks instead
// of a drifting schedule. Run returns after the last tick has finished.
func (s *ControlLoopService) Run(ctx context.Context, tick time.Duration) {
	t := time.NewTicker(tick)
	defer t.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.logTick(s.Tick(ctx, now))
			}()
		}
	}
}

func (s *ControlLoopService) logTick(err error) {
	switch {
	case err == nil:
	case errors.Is(err, ErrTickInProgress):
		s.log.Debugw("control_tick_skipped", "reason", "overlap")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
	case errors.Is(err, hardware.ErrSensorFault):
		s.log.Warnw("control_tick_fail_safe", "error", err)
	default:
		s.log.Errorw("control_tick_failed", "error", err)
	}
}

// Tick runs one control cycle at now.
func (s *ControlLoopService) Tick(ctx context.Context, now time.Time) error {
	if !s.running.TryLock() {
		s.metrics.TickSkipped(metrics.SkipOverlap)
		return ErrTickInProgress
	}
	defer s.running.Unlock()

	sp, err := s.setpoints.Load(ctx)
	if err != nil {
		s.metrics.TickSkipped(metrics.SkipStorage)
		s.metrics.Fault(metrics.FaultStorage)
		if !s.storageFaulted {
			s.events.record(ctx, now, models.EventStorageFault, "setpoints unreadable, control tick skipped",
				map[string]any{"error": err.Error()})
		}
		s.storageFaulted = true
		return fmt.Errorf("load setpoints: %w", err)
	}
	s.storageFaulted = false

	prev, err := s.backend.Actuators()
	if err != nil {
		s.metrics.Fault(metrics.FaultApply)
		return fmt.Errorf("read actuators: %w", err)
	}

	expired := TimerExpired(sp, now)

	temp, sensorErr := hardware.ReadAveraged(ctx, s.backend, s.cfg.Samples, s.cfg.SampleDelay)
	var next models.Actuators
	if sensorErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		next = FailSafeActuators(prev, sp)
		temp = s.lastTemp()
	} else {
		next = NextActuators(prev, sp, temp, expired, s.cfg.Params)
	}

	// Outputs first; nothing below may hold them back.
	if err := s.backend.Apply(next); err != nil {
		s.metrics.Fault(metrics.FaultApply)
		return fmt.Errorf("apply actuators: %w", err)
	}

	if sensorErr != nil {
		s.metrics.Fault(metrics.FaultSensor)
		if !s.sensorFaulted {
			s.events.record(ctx, now, models.EventSensorFault, "temperature unavailable, heaters forced off",
				map[string]any{"error": sensorErr.Error()})
		}
	}
	s.sensorFaulted = sensorErr != nil

	if sensorErr == nil && s.trend != nil {
		s.trend.Add(now, temp)
	}
	s.recordTransitions(ctx, now, prev, next, temp, sp)

	if expired {
		sp = s.expireTimer(ctx, now, sp)
	}

	st := MergeState(sp, next, temp, now)
	s.metrics.ObserveState(st)
	s.feed.publish(st)
	if !s.hasPublished || st != s.published {
		if err := s.publisher.PublishState(st); err != nil {
			s.log.Debugw("state_publish_failed", "error", err)
		} else {
			s.published, s.hasPublished = st, true
		}
	}

	if sensorErr != nil {
		return fmt.Errorf("fail-safe: %w", sensorErr)
	}
	return nil
}

// lastTemp is the most recent good reading, used for reporting while the
// sensor is faulted.
func (s *ControlLoopService) lastTemp() float64 {
	if s.trend == nil {
		return 0
	}
	if last, ok := s.trend.Last(); ok {
		return last.Temp
	}
	return 0
}

// expireTimer returns the timer to manual and disables heating so the
// heaters stay off after this tick. The write only lands if the timer and
// set_temp still hold what this tick loaded.
func (s *ControlLoopService) expireTimer(ctx context.Context, now time.Time, sp models.Setpoints) models.Setpoints {
	minutes := sp.TimerMinutes
	_, err := s.setpoints.WriteKeysIf(ctx,
		map[string]any{
			repository.KeyTimer:        true,
			repository.KeyTimerStart:   sp.TimerStart,
			repository.KeyTimerMinutes: sp.TimerMinutes,
			repository.KeySetTemp:      sp.SetTemp,
		},
		map[string]any{
			repository.KeyTimer:   false,
			repository.KeySetTemp: 0.0,
		})
	switch {
	case errors.Is(err, repository.ErrSetpointConflict):
		// A newer command won; the next tick evaluates it.
		s.log.Infow("timer_expire_superseded", "error", err)
		return sp
	case err != nil:
		// Heaters are already off for this tick and the timer still reads
		// expired next tick, so the write is retried then.
		s.log.Errorw("timer_expire_write_failed", "error", err)
		return sp
	}
	sp.Timer = false
	sp.SetTemp = 0
	s.log.Infow("timer_expired", "minutes", minutes)
	s.events.record(ctx, now, models.EventTimerExpired, "timer expired, heating disabled",
		map[string]any{"timer_minutes": minutes})
	return sp
}

func (s *ControlLoopService) recordTransitions(ctx context.Context, now time.Time, prev, next models.Actuators, temp float64, sp models.Setpoints) {
	meta := func() map[string]any {
		return map[string]any{
			"temp":     temp,
			"set_temp": sp.SetTemp,
			"top":      next.Top,
			"bottom":   next.Bottom,
			"back":     next.Back,
		}
	}
	switch {
	case !prev.Heating() && next.Heating():
		s.log.Infow("heating_on", "temp", temp, "set_temp", sp.SetTemp)
		s.events.record(ctx, now, models.EventHeatingOn, "heating elements on", meta())
	case prev.Heating() && !next.Heating():
		s.log.Infow("heating_off", "temp", temp, "set_temp", sp.SetTemp)
		s.events.record(ctx, now, models.EventHeatingOff, "heating elements off", meta())
	}

	switch {
	case !prev.Cooling && next.Cooling:
		s.events.record(ctx, now, models.EventCoolingOn, "oven above cooling threshold",
			map[string]any{"temp": temp})
	case prev.Cooling && !next.Cooling:
		s.events.record(ctx, now, models.EventCoolingOff, "oven cooled below threshold",
			map[string]any{"temp": temp})
	}
}
