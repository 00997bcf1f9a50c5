package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"repaircoin-backend/models"
)

// GormStore implements every repository interface on top of a gorm
// connection (postgres in production, sqlite in development and tests).
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) AppendEntry(ctx context.Context, entry *models.LedgerEntry) (uuid.UUID, error) {
	if existing, err := s.EntryByTxRef(ctx, entry.TxRef); err == nil {
		return existing.ID, &DuplicateEntryError{Existing: *existing}
	} else if !errors.Is(err, ErrNotFound) {
		return uuid.Nil, err
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		// A concurrent writer may have won the unique index on tx_ref.
		if existing, lookupErr := s.EntryByTxRef(ctx, entry.TxRef); lookupErr == nil {
			return existing.ID, &DuplicateEntryError{Existing: *existing}
		}
		return uuid.Nil, err
	}
	return entry.ID, nil
}

func (s *GormStore) AppendEntries(ctx context.Context, entries []*models.LedgerEntry) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, entry := range entries {
			var count int64
			if err := tx.Model(&models.LedgerEntry{}).Where("tx_ref = ?", entry.TxRef).Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				var existing models.LedgerEntry
				if err := tx.Where("tx_ref = ?", entry.TxRef).First(&existing).Error; err != nil {
					return err
				}
				return &DuplicateEntryError{Existing: existing}
			}
			if err := tx.Create(entry).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *GormStore) QueryEntries(ctx context.Context, address string, filter EntryFilter) ([]models.LedgerEntry, error) {
	query := s.db.WithContext(ctx).Where("customer_address = ?", address)
	if len(filter.Kinds) > 0 {
		query = query.Where("kind IN ?", filter.Kinds)
	}
	if filter.Since != nil {
		query = query.Where("timestamp >= ?", *filter.Since)
	}
	var entries []models.LedgerEntry
	if err := query.Order("timestamp ASC").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *GormStore) QueryShopEntries(ctx context.Context, shopID string, limit int) ([]models.LedgerEntry, error) {
	query := s.db.WithContext(ctx).Where("shop_id = ?", shopID).Order("timestamp DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var entries []models.LedgerEntry
	if err := query.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *GormStore) EntryByTxRef(ctx context.Context, txRef string) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	if err := s.db.WithContext(ctx).Where("tx_ref = ?", txRef).First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &entry, nil
}

func (s *GormStore) TransitionEntry(ctx context.Context, txRef string, from, to models.Status) (*models.LedgerEntry, bool, error) {
	result := s.db.WithContext(ctx).Model(&models.LedgerEntry{}).
		Where("tx_ref = ? AND status = ?", txRef, from).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return nil, false, result.Error
	}
	entry, err := s.EntryByTxRef(ctx, txRef)
	if err != nil {
		return nil, false, err
	}
	return entry, result.RowsAffected > 0, nil
}

func (s *GormStore) StalePending(ctx context.Context, kind models.Kind, before time.Time, limit int) ([]models.LedgerEntry, error) {
	query := s.db.WithContext(ctx).
		Where("kind = ? AND status = ? AND timestamp < ?", kind, models.StatusPending, before).
		Order("timestamp ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var entries []models.LedgerEntry
	if err := query.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
