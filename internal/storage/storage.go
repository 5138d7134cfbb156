package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Version is the envelope version written by Save.
const Version = 1

var (
	// ErrNotFound is returned by a Backend for a key that was never written or was deleted.
	ErrNotFound = errors.New("key not found")
	// ErrUnsupportedVersion means the stored envelope was written by a newer or unknown format.
	ErrUnsupportedVersion = errors.New("unsupported payload version")
)

// Repository is the key/value persistence used by the ledger and the annotation store.
type Repository interface {
	// Load decodes the value at key into dest and reports whether the key existed.
	Load(ctx context.Context, key string, dest any) (bool, error)
	Save(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, key string) error
	// Keys lists stored keys starting with prefix, sorted.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Backend stores raw payloads.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

type envelope struct {
	V    int             `json:"v"`
	Data json.RawMessage `json:"data"`
}

// Store wraps a Backend with the versioned JSON envelope {"v":1,"data":...}.
type Store struct {
	backend Backend
}

// NewStore creates a Store over b.
func NewStore(b Backend) *Store {
	return &Store{backend: b}
}

func (s *Store) Load(ctx context.Context, key string, dest any) (bool, error) {
	raw, err := s.backend.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load %s: %w", key, err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return false, fmt.Errorf("load %s: decode envelope: %w", key, err)
	}
	if env.V != Version {
		return false, fmt.Errorf("load %s: %w: %d", key, ErrUnsupportedVersion, env.V)
	}
	if err := json.Unmarshal(env.Data, dest); err != nil {
		return false, fmt.Errorf("load %s: decode payload: %w", key, err)
	}
	return true, nil
}

func (s *Store) Save(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("save %s: encode payload: %w", key, err)
	}
	raw, err := json.Marshal(envelope{V: Version, Data: data})
	if err != nil {
		return fmt.Errorf("save %s: encode envelope: %w", key, err)
	}
	if err := s.backend.Put(ctx, key, raw); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.backend.Delete(ctx, key); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Keys lists stored keys starting with prefix, sorted.
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	return s.backend.Keys(ctx, prefix)
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// LedgerPrefix starts every ledger key.
const LedgerPrefix = "ledger:"

// LedgerKey is where a symbol's paper-trading state on one chart slot lives.
func LedgerKey(symbol, chartID string) string {
	return LedgerPrefix + strings.ToUpper(symbol) + ":" + chartID
}

// DrawingsKey is where a symbol's drawing lines on one chart slot live.
func DrawingsKey(symbol, chartID string) string {
	return "drawings:" + strings.ToUpper(symbol) + ":" + chartID
}

// ResetKey holds the last ledger reset time of a chart slot.
func ResetKey(chartID string) string {
	return "reset:" + chartID
}
