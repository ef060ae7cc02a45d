package postgres

import (
	"time"

	"fundportal/internal/journal"

	"github.com/google/uuid"
)

// ActionRecord is a journal entry stored in the database.
type ActionRecord struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	Kind     string `gorm:"type:varchar(16);not null;index:idx_action_kind"`
	From     string `gorm:"column:from_address;type:varchar(42);not null"`
	Target   string `gorm:"type:varchar(42);not null"`
	Symbol   string `gorm:"type:varchar(16)"`
	Quantity string `gorm:"type:numeric"`

	TxHash    string `gorm:"type:varchar(66)"`
	Status    string `gorm:"type:varchar(16);not null;index:idx_action_status"`
	RequestID string `gorm:"type:text"`
	Shares    string `gorm:"type:text"`
	Error     string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null;index:idx_action_created_at"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName overrides the default table name for GORM.
func (ActionRecord) TableName() string {
	return "action_record"
}

// ToActionRecord converts a journal action for DB insertion.
func ToActionRecord(a *journal.Action) *ActionRecord {
	quantity := a.Quantity
	if quantity == "" {
		quantity = "0"
	}
	return &ActionRecord{
		ID:        a.ID,
		Kind:      string(a.Kind),
		From:      a.From,
		Target:    a.Target,
		Symbol:    a.Symbol,
		Quantity:  quantity,
		TxHash:    a.TxHash,
		Status:    string(a.Status),
		RequestID: a.RequestID,
		Shares:    a.Shares,
		Error:     a.Error,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func (r *ActionRecord) toAction() journal.Action {
	return journal.Action{
		ID:        r.ID,
		Kind:      journal.Kind(r.Kind),
		From:      r.From,
		Target:    r.Target,
		Symbol:    r.Symbol,
		Quantity:  r.Quantity,
		TxHash:    r.TxHash,
		Status:    journal.Status(r.Status),
		RequestID: r.RequestID,
		Shares:    r.Shares,
		Error:     r.Error,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

// PreferenceRecord is a persisted client setting.
type PreferenceRecord struct {
	Key       string    `gorm:"type:varchar(64);primaryKey"`
	Value     string    `gorm:"type:text;not null"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (PreferenceRecord) TableName() string {
	return "preference_record"
}
