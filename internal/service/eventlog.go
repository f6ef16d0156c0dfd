package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"oven_controller/internal/logger"
	"oven_controller/internal/models"
	"oven_controller/internal/repository"
	"oven_controller/internal/telemetry"
)

// LogFilter supports history filtering by time range and type.
type LogFilter struct {
	From time.Time // inclusive; zero means no lower bound
	To   time.Time // inclusive; zero means no upper bound
	Type string    // "" or one of the models.Event* types
}

type EventLogService struct {
	eventRepo repository.EventRepo
}

func NewEventLogService(eventRepo repository.EventRepo) *EventLogService {
	return &EventLogService{eventRepo: eventRepo}
}

var (
	errInvalidTimeRange = errors.New("invalid time range: From must be <= To")
)

// normalizeToUTC returns t in UTC, preserving zero time values.
func normalizeToUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

// normalizeEventType trims spaces and uppercases the event type filter.
func normalizeEventType(s string) string {
	return strings.TrimSpace(strings.ToUpper(s))
}

// normalizeAndValidateFilter prepares query parameters and validates the time range.
func normalizeAndValidateFilter(f LogFilter) (time.Time, time.Time, string, error) {
	from := normalizeToUTC(f.From)
	to := normalizeToUTC(f.To)

	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return time.Time{}, time.Time{}, "", errInvalidTimeRange
	}

	eventType := normalizeEventType(f.Type)
	return from, to, eventType, nil
}

func (s *EventLogService) List(ctx context.Context, f LogFilter) ([]models.OvenEvent, error) {
	from, to, typ, err := normalizeAndValidateFilter(f)
	if err != nil {
		return nil, err
	}
	return s.eventRepo.List(ctx, from, to, typ)
}

// eventRecorder appends events to the log and forwards them to telemetry.
// Failures are logged and swallowed: losing an event must never block a
// control decision or a user command.
type eventRecorder struct {
	repo repository.EventRepo
	pub  telemetry.Publisher
	log  *logger.Logger
}

func newEventRecorder(repo repository.EventRepo, pub telemetry.Publisher, log *logger.Logger) *eventRecorder {
	if pub == nil {
		pub = telemetry.Nop{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &eventRecorder{repo: repo, pub: pub, log: log}
}

func (r *eventRecorder) record(ctx context.Context, at time.Time, typ, desc string, meta map[string]any) {
	e := models.OvenEvent{
		EventID:     uuid.NewString(),
		OccurredAt:  at.UTC(),
		Type:        typ,
		Description: desc,
	}
	if meta != nil {
		e.Metadata = meta
	}

	if r.repo != nil {
		if err := r.repo.Append(ctx, e); err != nil {
			r.log.Warnw("event_append_failed", "type", typ, "error", err)
		}
	}
	if err := r.pub.PublishEvent(e); err != nil {
		r.log.Debugw("event_publish_failed", "type", typ, "error", err)
	}
}
