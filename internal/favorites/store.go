package favorites

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/seenimoa/finmarket/internal/kv"
)

// Key is the single logical key holding the favorite set.
const Key = "favorites"

// StorageError reports a failed read or write of the favorite set.
type StorageError struct {
	Op  string // "read" or "write"
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("favorites %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsStorageError reports whether err is a *StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// Store persists the favorite set as a JSON array of symbols under Key.
type Store struct {
	kv kv.Store
}

// NewStore wraps a key-value backend.
func NewStore(backend kv.Store) *Store {
	return &Store{kv: backend}
}

// Read returns the persisted set, or an empty set when nothing has been
// written yet. Repeated symbols in the stored value are collapsed, keeping
// the first occurrence.
func (s *Store) Read(ctx context.Context) ([]string, error) {
	raw, err := s.kv.Get(ctx, Key)
	if errors.Is(err, kv.ErrNotFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, &StorageError{Op: "read", Err: err}
	}

	var symbols []string
	if err := json.Unmarshal(raw, &symbols); err != nil {
		return nil, &StorageError{Op: "read", Err: fmt.Errorf("decode %q: %w", Key, err)}
	}
	return dedupe(symbols), nil
}

// Write replaces the persisted set. The previous value stays intact when
// the write fails.
func (s *Store) Write(ctx context.Context, symbols []string) error {
	if symbols == nil {
		symbols = []string{}
	}
	raw, err := json.Marshal(symbols)
	if err != nil {
		return &StorageError{Op: "write", Err: err}
	}
	if err := s.kv.Set(ctx, Key, raw); err != nil {
		return &StorageError{Op: "write", Err: err}
	}
	return nil
}

func dedupe(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
