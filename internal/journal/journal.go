// Package journal records every action the portal submits, from the moment
// it is attempted until it is confirmed or fails.
package journal

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("journal entry not found")

type Kind string

const (
	KindTransfer  Kind = "transfer"
	KindApprove   Kind = "approve"
	KindSubscribe Kind = "subscribe"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Action is one journal entry. Addresses and quantities are kept in their
// readable string form.
type Action struct {
	ID        uuid.UUID
	Kind      Kind
	From      string
	Target    string
	Symbol    string
	Quantity  string
	TxHash    string
	Status    Status
	RequestID string
	Shares    string
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Outcome is what a finished action reports back to the journal.
type Outcome struct {
	TxHash    string
	RequestID string
	Shares    string
	Err       error
}

// Store persists actions.
type Store interface {
	Insert(ctx context.Context, a *Action) error
	Get(ctx context.Context, id uuid.UUID) (*Action, error)
	Finish(ctx context.Context, id uuid.UUID, status Status, out Outcome) error
	List(ctx context.Context, limit int) ([]Action, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Preferences persists small string settings, such as the selected account.
type Preferences interface {
	GetPreference(ctx context.Context, key string) (string, bool, error)
	SetPreference(ctx context.Context, key, value string) error
}
