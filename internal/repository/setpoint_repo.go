package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"oven_controller/internal/models"
)

// Setpoint keys. These are the only keys the store accepts.
const (
	KeySetTemp      = "set_temp"
	KeySetFan       = "set_fan"
	KeySetLight     = "set_light"
	KeySetTop       = "set_top"
	KeySetBottom    = "set_bottom"
	KeySetBack      = "set_back"
	KeyTimer        = "timer"
	KeyTimerStart   = "timer_start"
	KeyTimerMinutes = "timer_minutes"
)

var (
	ErrUnknownKey         = errors.New("unknown setpoint key")
	ErrInvalidValue       = errors.New("invalid setpoint value")
	ErrStorageUnavailable = errors.New("setpoint storage unavailable")
	// ErrSetpointConflict means a conditional write found a stored value
	// other than the expected one. Nothing was written.
	ErrSetpointConflict = errors.New("setpoint changed concurrently")
)

type valueKind int

const (
	kindFloat valueKind = iota
	kindBool
	kindInt
	kindTime
)

var setpointKinds = map[string]valueKind{
	KeySetTemp:      kindFloat,
	KeySetFan:       kindBool,
	KeySetLight:     kindBool,
	KeySetTop:       kindBool,
	KeySetBottom:    kindBool,
	KeySetBack:      kindBool,
	KeyTimer:        kindBool,
	KeyTimerStart:   kindTime,
	KeyTimerMinutes: kindInt,
}

// IsSetpointKey reports whether key is one the store accepts.
func IsSetpointKey(key string) bool {
	_, ok := setpointKinds[key]
	return ok
}

const (
	selectSetpointsSQL = `SELECT key, value FROM setpoints`
	selectSetpointSQL  = `SELECT value FROM setpoints WHERE key = ?`
	upsertSetpointSQL  = `
		INSERT INTO setpoints (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value=excluded.value,
			updated_at=excluded.updated_at
	`
)

// SetpointSQLite keeps setpoints one row per key. Writers are serialized by
// mu so the read-compare-write of a key cannot interleave with another.
type SetpointSQLite struct {
	db *sql.DB
	mu sync.Mutex
}

var _ SetpointRepo = (*SetpointSQLite)(nil)

func NewSetpointSQLite(db *sql.DB) *SetpointSQLite {
	return &SetpointSQLite{db: db}
}

// encodeSetpoint validates value against the key's kind and returns its
// stored JSON text.
func encodeSetpoint(key string, value any) (string, error) {
	kind, ok := setpointKinds[key]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}

	var v any
	switch kind {
	case kindFloat:
		switch x := value.(type) {
		case float64:
			v = x
		case int:
			v = float64(x)
		}
	case kindBool:
		if x, ok := value.(bool); ok {
			v = x
		}
	case kindInt:
		if x, ok := value.(int); ok {
			v = x
		}
	case kindTime:
		if x, ok := value.(time.Time); ok {
			v = x.UTC()
		}
	}
	if v == nil {
		return "", fmt.Errorf("%w: %q cannot hold %T", ErrInvalidValue, key, value)
	}

	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("%w: encode %q: %v", ErrInvalidValue, key, err)
	}
	return string(b), nil
}

// decodeInto parses one stored value into its Setpoints field.
func decodeInto(sp *models.Setpoints, key, raw string) error {
	var dst any
	switch key {
	case KeySetTemp:
		dst = &sp.SetTemp
	case KeySetFan:
		dst = &sp.SetFan
	case KeySetLight:
		dst = &sp.SetLight
	case KeySetTop:
		dst = &sp.SetTop
	case KeySetBottom:
		dst = &sp.SetBottom
	case KeySetBack:
		dst = &sp.SetBack
	case KeyTimer:
		dst = &sp.Timer
	case KeyTimerStart:
		dst = &sp.TimerStart
	case KeyTimerMinutes:
		dst = &sp.TimerMinutes
	default:
		return nil // rows from newer schemas are ignored
	}
	return json.Unmarshal([]byte(raw), dst)
}

// Load reads the whole record. Missing keys keep their zero value; a row
// that does not decode makes the record unusable.
func (r *SetpointSQLite) Load(ctx context.Context) (models.Setpoints, error) {
	rows, err := r.db.QueryContext(ctx, selectSetpointsSQL)
	if err != nil {
		return models.Setpoints{}, fmt.Errorf("%w: select setpoints: %v", ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var sp models.Setpoints
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return models.Setpoints{}, fmt.Errorf("%w: scan setpoint: %v", ErrStorageUnavailable, err)
		}
		if err := decodeInto(&sp, key, raw); err != nil {
			return models.Setpoints{}, fmt.Errorf("%w: decode %q: %v", ErrStorageUnavailable, key, err)
		}
	}
	if err := rows.Err(); err != nil {
		return models.Setpoints{}, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if !sp.TimerStart.IsZero() {
		sp.TimerStart = sp.TimerStart.UTC()
	}
	return sp, nil
}

// WriteKey stores one key if valid and changed.
func (r *SetpointSQLite) WriteKey(ctx context.Context, key string, value any) (bool, error) {
	changed, err := r.WriteKeys(ctx, map[string]any{key: value})
	if err != nil {
		return false, err
	}
	return len(changed) > 0, nil
}

// WriteKeys validates every key first, then writes only the keys whose
// stored value differs, in one transaction.
func (r *SetpointSQLite) WriteKeys(ctx context.Context, kv map[string]any) ([]string, error) {
	return r.WriteKeysIf(ctx, nil, kv)
}

// WriteKeysIf is WriteKeys guarded by expect: every expected key must hold
// the given value, else ErrSetpointConflict is returned and nothing is
// written. A missing row holds the key's zero value.
func (r *SetpointSQLite) WriteKeysIf(ctx context.Context, expect, kv map[string]any) ([]string, error) {
	keys, encoded, err := encodeAll(kv)
	if err != nil {
		return nil, err
	}
	expectKeys, expected, err := encodeAll(expect)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, k := range expectKeys {
		current, err := r.storedOrZero(ctx, k)
		if err != nil {
			return nil, err
		}
		if current != expected[k] {
			return nil, fmt.Errorf("%w: %q", ErrSetpointConflict, k)
		}
	}

	var changed []string
	for _, k := range keys {
		var current string
		err := r.db.QueryRowContext(ctx, selectSetpointSQL, k).Scan(&current)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			changed = append(changed, k)
		case err != nil:
			return nil, fmt.Errorf("%w: select %q: %v", ErrStorageUnavailable, k, err)
		case current != encoded[k]:
			changed = append(changed, k)
		}
	}
	if len(changed) == 0 {
		return nil, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %v", ErrStorageUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	for _, k := range changed {
		if _, err := tx.ExecContext(ctx, upsertSetpointSQL, k, encoded[k], now); err != nil {
			return nil, fmt.Errorf("%w: upsert %q: %v", ErrStorageUnavailable, k, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit: %v", ErrStorageUnavailable, err)
	}
	return changed, nil
}

func encodeAll(kv map[string]any) ([]string, map[string]string, error) {
	keys := make([]string, 0, len(kv))
	encoded := make(map[string]string, len(kv))
	for k, v := range kv {
		enc, err := encodeSetpoint(k, v)
		if err != nil {
			return nil, nil, err
		}
		keys = append(keys, k)
		encoded[k] = enc
	}
	sort.Strings(keys)
	return keys, encoded, nil
}

func zeroSetpoint(kind valueKind) any {
	switch kind {
	case kindFloat:
		return 0.0
	case kindBool:
		return false
	case kindInt:
		return 0
	default:
		return time.Time{}
	}
}

// storedOrZero returns the stored text of key, or the encoded zero value
// when the row does not exist. Callers hold r.mu.
func (r *SetpointSQLite) storedOrZero(ctx context.Context, key string) (string, error) {
	var current string
	err := r.db.QueryRowContext(ctx, selectSetpointSQL, key).Scan(&current)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return encodeSetpoint(key, zeroSetpoint(setpointKinds[key]))
	case err != nil:
		return "", fmt.Errorf("%w: select %q: %v", ErrStorageUnavailable, key, err)
	}
	return current, nil
}
