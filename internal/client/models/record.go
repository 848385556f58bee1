// Package models defines the records the offline client keeps locally and
// sends to the backend.
package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind names a partition of the write queue. Each kind has its own table,
// its own backend collection and its own background-sync tag.
type Kind string

const (
	KindMeals    Kind = "meals"
	KindWorkouts Kind = "workouts"
)

// Kinds lists every partition in replay order.
var Kinds = []Kind{KindMeals, KindWorkouts}

var (
	ErrUnknownKind    = errors.New("unknown record kind")
	ErrInvalidPayload = errors.New("payload must be a JSON object")
)

// ParseKind accepts the plural and singular spellings ("meal", "meals").
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "meal", "meals":
		return KindMeals, nil
	case "workout", "workouts":
		return KindWorkouts, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

func (k Kind) Valid() bool {
	return k == KindMeals || k == KindWorkouts
}

// Endpoint is the backend collection path records of this kind are POSTed to.
func (k Kind) Endpoint() string {
	return "/" + string(k)
}

// SyncTag is the background-sync tag that triggers a replay of this kind.
func (k Kind) SyncTag() string {
	return "sync-" + string(k)
}

// KindFromSyncTag maps "sync-meals"/"sync-workouts" back to a Kind.
func KindFromSyncTag(tag string) (Kind, bool) {
	for _, k := range Kinds {
		if k.SyncTag() == tag {
			return k, true
		}
	}
	return "", false
}

// State tracks a record through delivery. A record moves
// pending -> delivering -> synced, or back to pending when delivery fails.
type State string

const (
	StatePending    State = "pending"
	StateDelivering State = "delivering"
	StateSynced     State = "synced"
)

// TempIDPrefix marks identifiers minted locally, before the backend has
// assigned a real one.
const TempIDPrefix = "local_"

// NewTempID returns a fresh, time-ordered local identifier.
func NewTempID() string {
	return TempIDPrefix + uuid.Must(uuid.NewV7()).String()
}

// PendingRecord is one queued write.
type PendingRecord struct {
	LocalID   int64
	TempID    string
	Kind      Kind
	Payload   json.RawMessage
	Synced    bool
	State     State
	ServerID  string
	Attempts  int
	LastError string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ValidatePayload checks that p is a JSON object.
func ValidatePayload(p []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(p, &obj); err != nil || obj == nil {
		return ErrInvalidPayload
	}
	return nil
}

// RequestBody is the JSON sent to the backend: the payload fields plus
// "tempId". Local bookkeeping keys ("id", "synced") never leave the device.
func (r *PendingRecord) RequestBody() ([]byte, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(r.Payload, &obj); err != nil || obj == nil {
		return nil, ErrInvalidPayload
	}
	delete(obj, "id")
	delete(obj, "synced")

	tmp, err := json.Marshal(r.TempID)
	if err != nil {
		return nil, err
	}
	obj["tempId"] = tmp

	return json.Marshal(obj)
}
