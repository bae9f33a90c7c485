package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"Soundscape/db"
	"Soundscape/logger"
	"Soundscape/model"
)

// KVStore is the persistence port mixes are stored through. Get and Delete
// return db.ErrNotFound for a missing key.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Keys(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, key string) error
}

var (
	ErrMixNotFound    = errors.New("mix not found")
	ErrInvalidMixName = errors.New("invalid mix name")
	ErrEmptyMix       = errors.New("mix has no tracks")
)

// Keys other parts of the UI share the store with. They never hold mixes.
var reservedKeys = map[string]bool{
	"theme":              true,
	"selectedBackground": true,
	"soundscape":         true,
	"ui-settings":        true,
}

// PersistenceError reports a stored record that could not be read back as
// a mix, or a store operation that failed.
type PersistenceError struct {
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("mix %q: %v", e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// MixRepository saves and restores mixes by name.
type MixRepository struct {
	store KVStore
	now   func() time.Time
}

func NewMixRepository(store KVStore) *MixRepository {
	return &MixRepository{store: store, now: time.Now}
}

func validName(name string) bool {
	return strings.TrimSpace(name) != "" && !reservedKeys[name]
}

// Save stores mix under its name, stamping it with the current time.
func (r *MixRepository) Save(ctx context.Context, mix *model.Mix) error {
	if !validName(mix.Name) {
		return ErrInvalidMixName
	}
	if len(mix.Tracks) == 0 {
		return ErrEmptyMix
	}
	mix.Timestamp = r.now().UTC()
	data, err := json.Marshal(mix)
	if err != nil {
		return &PersistenceError{Key: mix.Name, Err: err}
	}
	if err := r.store.Set(ctx, mix.Name, data); err != nil {
		return &PersistenceError{Key: mix.Name, Err: err}
	}
	logger.Info("Mix saved", logger.String("name", mix.Name), logger.Int("tracks", len(mix.Tracks)))
	return nil
}

// Load reads a mix back. Missing track fields get their defaults; tracks
// without a sound path are dropped.
func (r *MixRepository) Load(ctx context.Context, name string) (*model.Mix, error) {
	if reservedKeys[name] {
		return nil, ErrMixNotFound
	}
	data, err := r.store.Get(ctx, name)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrMixNotFound
	}
	if err != nil {
		return nil, &PersistenceError{Key: name, Err: err}
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, ErrMixNotFound
	}
	mix, err := model.DecodeMix(data)
	if err != nil {
		return nil, &PersistenceError{Key: name, Err: err}
	}
	return mix, nil
}

// List returns a summary of every readable mix in key order. Reserved keys
// and malformed records are skipped.
func (r *MixRepository) List(ctx context.Context) ([]model.MixSummary, error) {
	mixes, err := r.scan(ctx, 0)
	if err != nil {
		return nil, err
	}
	out := make([]model.MixSummary, 0, len(mixes))
	for _, m := range mixes {
		out = append(out, m.Summary())
	}
	return out, nil
}

// FirstValid returns the first readable mix in key order.
func (r *MixRepository) FirstValid(ctx context.Context) (*model.Mix, error) {
	mixes, err := r.scan(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(mixes) == 0 {
		return nil, ErrMixNotFound
	}
	return mixes[0], nil
}

// scan loads readable mixes in key order, stopping after limit when limit > 0.
// The summary name is the key the mix is loaded by.
func (r *MixRepository) scan(ctx context.Context, limit int) ([]*model.Mix, error) {
	keys, err := r.store.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list mixes: %w", err)
	}
	var out []*model.Mix
	for _, key := range keys {
		if reservedKeys[key] {
			continue
		}
		mix, err := r.Load(ctx, key)
		if err != nil {
			logger.Warn("Skipping unreadable mix", logger.String("key", key), logger.ErrorField(err))
			continue
		}
		mix.Name = key
		out = append(out, mix)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *MixRepository) Delete(ctx context.Context, name string) error {
	if reservedKeys[name] {
		return ErrMixNotFound
	}
	err := r.store.Delete(ctx, name)
	if errors.Is(err, db.ErrNotFound) {
		return ErrMixNotFound
	}
	if err != nil {
		return &PersistenceError{Key: name, Err: err}
	}
	logger.Info("Mix deleted", logger.String("name", name))
	return nil
}
