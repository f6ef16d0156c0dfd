package repository

import (
	"context"
	"database/sql"
	"time"

	"oven_controller/internal/models"
)

// Authorization stores operator accounts for the optional bearer-token guard.
type Authorization interface {
	Create(ctx context.Context, username, hash string) (int, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	Count(ctx context.Context) (int, error)
}

// SetpointRepo is the persisted key/value record of user intent.
type SetpointRepo interface {
	Load(ctx context.Context) (models.Setpoints, error)
	// WriteKey stores one key. It reports false, and writes nothing, when the
	// stored value is already equal.
	WriteKey(ctx context.Context, key string, value any) (bool, error)
	// WriteKeys stores several keys in one transaction and returns the keys
	// that actually changed.
	WriteKeys(ctx context.Context, kv map[string]any) ([]string, error)
	// WriteKeysIf is WriteKeys that first checks every key in expect still
	// holds its value, failing with ErrSetpointConflict otherwise.
	WriteKeysIf(ctx context.Context, expect, kv map[string]any) ([]string, error)
}

type EventRepo interface {
	Append(ctx context.Context, e models.OvenEvent) error
	List(ctx context.Context, from, to time.Time, typ string) ([]models.OvenEvent, error)
}

type Repository struct {
	SetpointRepo SetpointRepo
	EventRepo    EventRepo
	Auth         Authorization
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		SetpointRepo: NewSetpointSQLite(db),
		EventRepo:    NewEventSQLite(db),
		Auth:         NewUserRepository(db),
	}
}
