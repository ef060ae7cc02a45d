package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fundportal/internal/journal"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	_ journal.Store       = (*PostgresClient)(nil)
	_ journal.Preferences = (*PostgresClient)(nil)
)

func (p *PostgresClient) Insert(ctx context.Context, a *journal.Action) error {
	record := ToActionRecord(a)
	tx := p.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(record)

	if tx.Error != nil {
		return tx.Error
	}

	if tx.RowsAffected == 0 {
		return fmt.Errorf("duplicate action skipped: id=%s", a.ID)
	}

	return nil
}

func (p *PostgresClient) Get(ctx context.Context, id uuid.UUID) (*journal.Action, error) {
	var record ActionRecord
	err := p.DB.WithContext(ctx).Where("id = ?", id).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%s: %w", id, journal.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	a := record.toAction()
	return &a, nil
}

func (p *PostgresClient) Finish(ctx context.Context, id uuid.UUID, status journal.Status, out journal.Outcome) error {
	updates := map[string]interface{}{
		"status":     string(status),
		"request_id": out.RequestID,
		"shares":     out.Shares,
		"updated_at": time.Now().UTC(),
	}
	if out.TxHash != "" {
		updates["tx_hash"] = out.TxHash
	}
	if out.Err != nil {
		updates["error"] = out.Err.Error()
	}

	tx := p.DB.WithContext(ctx).
		Model(&ActionRecord{}).
		Where("id = ?", id).
		Updates(updates)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return fmt.Errorf("%s: %w", id, journal.ErrNotFound)
	}
	return nil
}

func (p *PostgresClient) List(ctx context.Context, limit int) ([]journal.Action, error) {
	q := p.DB.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var records []ActionRecord
	if err := q.Find(&records).Error; err != nil {
		return nil, err
	}
	out := make([]journal.Action, len(records))
	for i := range records {
		out[i] = records[i].toAction()
	}
	return out, nil
}

func (p *PostgresClient) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tx := p.DB.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&ActionRecord{})
	return tx.RowsAffected, tx.Error
}

func (p *PostgresClient) GetPreference(ctx context.Context, key string) (string, bool, error) {
	var record PreferenceRecord
	err := p.DB.WithContext(ctx).Where("key = ?", key).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return record.Value, true, nil
}

func (p *PostgresClient) SetPreference(ctx context.Context, key, value string) error {
	return p.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&PreferenceRecord{Key: key, Value: value}).Error
}
