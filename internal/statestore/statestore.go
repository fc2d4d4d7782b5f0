// Package statestore is the durable key-value collaborator used by the
// scheduler, circadian rhythm, and notification mailbox. Values are
// opaque JSON documents. Consumers treat every load failure (missing,
// corrupt, or unreadable) as "start fresh"; the typed errors exist so
// logs can say which one it was.
package statestore

import (
	"context"
	"errors"
)

// ErrNotFound means no value has ever been saved under the key.
var ErrNotFound = errors.New("statestore: key not found")

// ErrCorrupt means a value exists but could not be read back intact.
var ErrCorrupt = errors.New("statestore: corrupt value")

// Store persists opaque documents under string keys.
type Store interface {
	// Load returns the stored bytes for key, ErrNotFound if absent,
	// or an error wrapping ErrCorrupt if the value is unreadable.
	Load(ctx context.Context, key string) ([]byte, error)
	// Save durably replaces the value under key.
	Save(ctx context.Context, key string, data []byte) error
}

// LoadJSON loads key into v, returning false (and no error) when the
// state is missing, corrupt, or unreadable. This is the start-fresh
// policy shared by every consumer.
func LoadJSON(ctx context.Context, s Store, key string, decode func([]byte) error) (bool, error) {
	data, err := s.Load(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrCorrupt) {
			return false, nil
		}
		// Permission and transport errors also map to start-fresh,
		// but are surfaced so callers can log them.
		return false, err
	}
	if err := decode(data); err != nil {
		return false, nil
	}
	return true, nil
}
