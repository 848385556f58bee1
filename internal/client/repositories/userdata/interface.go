// Package userdata is a small key/value store for per-device settings and
// bookkeeping (last replay time, deploy color, ...).
package userdata

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("user data not found")

// Well-known keys.
const (
	KeyLastReplayAt = "last_replay_at"
	KeyDeployColor  = "deployColor"
)

// Repository is a small key/value store for client state.
type Repository interface {
	// Get returns ErrNotFound when id is absent.
	Get(ctx context.Context, id string) ([]byte, error)
	Set(ctx context.Context, id string, value []byte) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) (map[string][]byte, error)
}
