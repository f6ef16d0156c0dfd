package service

import (
	"context"
	"time"

	"oven_controller/internal/hardware"
	"oven_controller/internal/logger"
	"oven_controller/internal/metrics"
	"oven_controller/internal/models"
	"oven_controller/internal/repository"
	"oven_controller/internal/telemetry"
	"oven_controller/internal/trend"
)

type Authorization interface {
	SignUp(ctx context.Context, username, password string) (int, error)
	GenerateToken(ctx context.Context, username, password string) (string, error)
	ParseToken(accessToken string) (int, error)
}

// Oven exposes the merged state and the user commands.
type Oven interface {
	Status(ctx context.Context) (models.OvenState, error)
	Set(ctx context.Context, dev, value string) (models.OvenState, error)
}

// Controller runs the control loop. Stop Run via context cancellation.
type Controller interface {
	Run(ctx context.Context, tick time.Duration)
	Tick(ctx context.Context, now time.Time) error
}

// TrendReader exposes the recent temperature history, oldest first.
type TrendReader interface {
	Samples() []models.TrendSample
}

// EventLog exposes append-only logs with filtering access.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]models.OvenEvent, error)
}

// Service aggregates all sub-services.
type Service struct {
	Oven
	Controller
	StateFeed
	TrendReader
	EventLog
	Authorization
}

// Deps are the collaborators NewService wires together. Publisher, Metrics
// and Log may be nil.
type Deps struct {
	Repos     *repository.Repository
	Backend   hardware.Backend
	Trend     *trend.Buffer
	Publisher telemetry.Publisher
	Metrics   metrics.Recorder
	Log       *logger.Logger
	Control   ControlConfig
	Auth      AuthConfig
}

func NewService(d Deps) *Service {
	if d.Trend == nil {
		d.Trend = trend.New(trend.DefaultCapacity)
	}
	events := newEventRecorder(d.Repos.EventRepo, d.Publisher, d.Log)
	loop := NewControlLoopService(d.Repos.SetpointRepo, d.Backend, d.Trend, events,
		d.Publisher, d.Metrics, d.Log, d.Control)
	return &Service{
		Oven:          NewOvenService(d.Repos.SetpointRepo, d.Backend, d.Trend, events, d.Log),
		Controller:    loop,
		StateFeed:     loop,
		TrendReader:   d.Trend,
		EventLog:      NewEventLogService(d.Repos.EventRepo),
		Authorization: NewAuthService(d.Repos.Auth, d.Auth),
	}
}
