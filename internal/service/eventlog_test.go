package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"oven_controller/internal/models"
	"oven_controller/internal/telemetry"
)

// listingRepo captures the filter EventLogService hands to the repository.
type listingRepo struct {
	recEventRepo

	from, to time.Time
	typ      string
	calls    int
	listErr  error
}

func (l *listingRepo) List(ctx context.Context, from, to time.Time, typ string) ([]models.OvenEvent, error) {
	l.calls++
	l.from, l.to, l.typ = from, to, typ
	if l.listErr != nil {
		return nil, l.listErr
	}
	return l.recEventRepo.List(ctx, from, to, typ)
}

func TestEventRecorder_AppendsAndPublishesSameEvent(t *testing.T) {
	repo := &recEventRepo{}
	pub := telemetry.NewFakePublisher()
	rec := newEventRecorder(repo, pub, nil)

	at := time.Date(2025, 6, 1, 14, 0, 0, 0, time.FixedZone("UTC+2", 2*3600))
	rec.record(context.Background(), at, models.EventHeatingOn, "heating elements on",
		map[string]any{"temp": 20.0, "set_temp": 200.0})

	if len(repo.events) != 1 {
		t.Fatalf("expected 1 appended event, got %d", len(repo.events))
	}
	e := repo.events[0]
	if e.EventID == "" || e.Type != models.EventHeatingOn || e.Description != "heating elements on" {
		t.Fatalf("unexpected event: %+v", e)
	}
	if e.OccurredAt.Location() != time.UTC || !e.OccurredAt.Equal(at) {
		t.Fatalf("expected UTC timestamp, got %v", e.OccurredAt)
	}
	_, published := pub.Snapshot()
	if len(published) != 1 || published[0].EventID != e.EventID {
		t.Fatalf("expected the stored event to be published, got %+v", published)
	}
}

func TestEventRecorder_AppendFailureStillPublishes(t *testing.T) {
	repo := &recEventRepo{err: errors.New("disk full")}
	pub := telemetry.NewFakePublisher()
	rec := newEventRecorder(repo, pub, nil)

	rec.record(context.Background(), time.Now(), models.EventStorageFault, "setpoints unreadable", nil)

	_, published := pub.Snapshot()
	if len(published) != 1 || published[0].Type != models.EventStorageFault {
		t.Fatalf("a failed append must not stop telemetry, got %+v", published)
	}
}

func TestEventRecorder_PublishFailureKeepsLog(t *testing.T) {
	repo := &recEventRepo{}
	pub := telemetry.NewFakePublisher()
	pub.PublishError = errors.New("broker down")
	rec := newEventRecorder(repo, pub, nil)

	rec.record(context.Background(), time.Now(), models.EventSensorFault, "temperature unavailable", nil)

	if got := repo.types(); len(got) != 1 || got[0] != models.EventSensorFault {
		t.Fatalf("event must be stored when the broker is down, got %v", got)
	}
}

func TestEventRecorder_WithoutRepoOnlyPublishes(t *testing.T) {
	pub := telemetry.NewFakePublisher()
	rec := newEventRecorder(nil, pub, nil)

	rec.record(context.Background(), time.Now(), models.EventTimerStart, "timer set to 30 minutes",
		map[string]any{"timer_minutes": 30})

	_, published := pub.Snapshot()
	if len(published) != 1 || published[0].Metadata == nil {
		t.Fatalf("expected the event with metadata on telemetry, got %+v", published)
	}
}

func TestNormalizeFilter(t *testing.T) {
	t.Parallel()

	plus2 := time.FixedZone("UTC+2", 2*3600)
	tests := []struct {
		name     string
		in       LogFilter
		wantFrom time.Time
		wantTo   time.Time
		wantType string
		wantErr  error
	}{
		{name: "empty filter", in: LogFilter{}},
		{
			name:     "local bounds become UTC, type uppercased",
			in:       LogFilter{From: time.Date(2025, 9, 10, 10, 0, 0, 0, plus2), To: time.Date(2025, 9, 10, 12, 0, 0, 0, time.UTC), Type: " timer_expired "},
			wantFrom: time.Date(2025, 9, 10, 8, 0, 0, 0, time.UTC),
			wantTo:   time.Date(2025, 9, 10, 12, 0, 0, 0, time.UTC),
			wantType: models.EventTimerExpired,
		},
		{
			name:    "inverted range",
			in:      LogFilter{From: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), To: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
			wantErr: errInvalidTimeRange,
		},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			from, to, typ, err := normalizeAndValidateFilter(tc.in)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err=%v, want %v", err, tc.wantErr)
			}
			if err != nil {
				return
			}
			if !from.Equal(tc.wantFrom) || !to.Equal(tc.wantTo) || typ != tc.wantType {
				t.Fatalf("got (%v, %v, %q)", from, to, typ)
			}
			if !from.IsZero() && from.Location() != time.UTC {
				t.Fatalf("from not in UTC: %v", from.Location())
			}
		})
	}
}

func TestEventLogService_ListsRecordedOvenEvents(t *testing.T) {
	repo := &listingRepo{}
	rec := newEventRecorder(repo, nil, nil)
	now := time.Now()
	rec.record(context.Background(), now, models.EventHeatingOn, "heating elements on", nil)
	rec.record(context.Background(), now, models.EventTimerExpired, "timer expired", nil)

	svc := NewEventLogService(repo)
	out, err := svc.List(context.Background(), LogFilter{Type: "heating_on"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if repo.typ != models.EventHeatingOn || repo.calls != 1 {
		t.Fatalf("repo got type %q after %d calls", repo.typ, repo.calls)
	}
	if len(out) != 2 {
		t.Fatalf("expected the repo result to pass through, got %d", len(out))
	}
}

func TestEventLogService_ListErrors(t *testing.T) {
	repo := &listingRepo{listErr: errors.New("db down")}
	svc := NewEventLogService(repo)

	if _, err := svc.List(context.Background(), LogFilter{}); !errors.Is(err, repo.listErr) {
		t.Fatalf("expected repo error, got %v", err)
	}

	repo.calls = 0
	_, err := svc.List(context.Background(), LogFilter{
		From: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if !errors.Is(err, errInvalidTimeRange) || repo.calls != 0 {
		t.Fatalf("invalid range must not reach the repo: err=%v calls=%d", err, repo.calls)
	}
}
