package pending

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/nutritrack/internal/client/models"
)

var (
	ErrNotFound   = errors.New("record not found")
	ErrNotClaimed = errors.New("record is not being delivered")
)

// Repository persists queued writes, one table per kind.
type Repository interface {
	// Insert persists rec and returns its local id. rec.LocalID, State and
	// timestamps are filled in.
	Insert(ctx context.Context, rec *models.PendingRecord) (int64, error)

	GetByID(ctx context.Context, kind models.Kind, localID int64) (*models.PendingRecord, error)

	// GetAll returns every record of kind in insertion order.
	GetAll(ctx context.Context, kind models.Kind) ([]*models.PendingRecord, error)

	// GetAllUnsynced returns records with synced=false in insertion order.
	GetAllUnsynced(ctx context.Context, kind models.Kind) ([]*models.PendingRecord, error)

	// Claim atomically moves a pending, unsynced record to delivering.
	// It reports false when someone else holds the record or it is synced.
	Claim(ctx context.Context, kind models.Kind, localID int64) (bool, error)

	// MarkSynced completes a claimed record with the backend-assigned id.
	MarkSynced(ctx context.Context, kind models.Kind, localID int64, serverID string) error

	// Release returns a claimed record to pending and records the failure.
	Release(ctx context.Context, kind models.Kind, localID int64, lastErr string) error

	// ResetInFlight moves every delivering record back to pending. Run at
	// startup: a delivering record found then was abandoned by a crash.
	ResetInFlight(ctx context.Context) (int64, error)

	DeleteSynced(ctx context.Context, kind models.Kind) (int64, error)

	CountUnsynced(ctx context.Context, kind models.Kind) (int, error)
}
