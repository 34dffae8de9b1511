// internal/workorder/store.go
package workorder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"rfms-invoicing/pkg/models"
)

// UpsertResult tells the sync engine what the upsert actually did, so the
// report can distinguish created / updated / unchanged.
type UpsertResult int

const (
	UpsertCreated UpsertResult = iota
	UpsertUpdated
	UpsertUnchanged
)

// Store owns WorkOrder/WorkOrderLine persistence. The sync engine is the only
// writer; the CRUD layer reads through the accessors below.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Upsert inserts or updates one WorkOrder keyed by its document number,
// replacing the line collection wholesale. Runs in a single transaction so a
// crash mid-upsert can never leave an order with a mix of old and new lines.
// Unchanged remote data (same fingerprint) is a no-op — re-running the same
// sync leaves storage byte-for-byte identical.
func (s *Store) Upsert(ctx context.Context, wo *models.WorkOrder) (UpsertResult, error) {
	result := UpsertCreated

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.WorkOrder
		err := tx.Where("doc_number = ?", wo.DocNumber).First(&existing).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				result = UpsertCreated
				return tx.Create(wo).Error
			}
			return err
		}

		if existing.Fingerprint == wo.Fingerprint {
			result = UpsertUnchanged
			return nil
		}

		result = UpsertUpdated
		updates := map[string]interface{}{
			"crew_code":      wo.CrewCode,
			"scheduled_date": wo.ScheduledDate,
			"status":         wo.Status,
			"date_flagged":   wo.DateFlagged,
			"raw_lines":      wo.RawLines,
			"fingerprint":    wo.Fingerprint,
		}
		if err := tx.Model(&existing).Updates(updates).Error; err != nil {
			return err
		}

		// Lines are owned exclusively by their WorkOrder and superseded
		// wholesale — merging field-by-field invites stale-line drift.
		if err := tx.Where("work_order_id = ?", existing.ID).Delete(&models.WorkOrderLine{}).Error; err != nil {
			return err
		}
		for i := range wo.Lines {
			wo.Lines[i].WorkOrderID = existing.ID
		}
		if len(wo.Lines) > 0 {
			if err := tx.Create(&wo.Lines).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("upsert work order %s: %w", wo.DocNumber, err)
	}
	return result, nil
}

// ListByCrewWindow returns a crew's work orders scheduled inside [from, to),
// lines preloaded in remote order. Used to populate the UI and pre-fill
// invoices.
func (s *Store) ListByCrewWindow(ctx context.Context, crewCode string, from, to time.Time) ([]models.WorkOrder, error) {
	var orders []models.WorkOrder
	err := s.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("seq ASC") }).
		Where("crew_code = ? AND scheduled_date >= ? AND scheduled_date < ?", crewCode, from, to).
		Order("scheduled_date ASC, doc_number ASC").
		Find(&orders).Error
	return orders, err
}

// GetByDocNumber fetches one work order by its natural key.
func (s *Store) GetByDocNumber(ctx context.Context, docNumber string) (*models.WorkOrder, error) {
	var wo models.WorkOrder
	err := s.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("seq ASC") }).
		Where("doc_number = ?", docNumber).
		First(&wo).Error
	if err != nil {
		return nil, err
	}
	return &wo, nil
}

// SetSyncMark records the last successful pass for a (crew, week) key.
func (s *Store) SetSyncMark(ctx context.Context, key string, at time.Time) error {
	cfg := models.SyncConfig{Key: key, Value: at.UTC().Format(time.RFC3339)}

	var existing models.SyncConfig
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&existing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return s.db.WithContext(ctx).Create(&cfg).Error
		}
		return err
	}
	return s.db.WithContext(ctx).Model(&existing).Update("value", cfg.Value).Error
}

// GetSyncMark returns the last successful pass time for a key, zero if never.
func (s *Store) GetSyncMark(ctx context.Context, key string) (time.Time, error) {
	var cfg models.SyncConfig
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&cfg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, cfg.Value)
}

// RegisterCrewDevice stores an FCM token for a crew; duplicate tokens move to
// the new crew.
func (s *Store) RegisterCrewDevice(ctx context.Context, crewCode, token string) error {
	var existing models.CrewDevice
	err := s.db.WithContext(ctx).Where("token = ?", token).First(&existing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return s.db.WithContext(ctx).Create(&models.CrewDevice{CrewCode: crewCode, Token: token}).Error
		}
		return err
	}
	if existing.CrewCode == crewCode {
		return nil
	}
	return s.db.WithContext(ctx).Model(&existing).Update("crew_code", crewCode).Error
}

// UnregisterCrewDevice removes an FCM token.
func (s *Store) UnregisterCrewDevice(ctx context.Context, token string) error {
	return s.db.WithContext(ctx).Where("token = ?", token).Delete(&models.CrewDevice{}).Error
}

// CrewTokens returns the registered device tokens for one crew.
func (s *Store) CrewTokens(ctx context.Context, crewCode string) ([]string, error) {
	var tokens []string
	err := s.db.WithContext(ctx).
		Model(&models.CrewDevice{}).
		Where("crew_code = ?", crewCode).
		Pluck("token", &tokens).Error
	return tokens, err
}
