package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"hotel-rate-monitor/internal/models"
)

// ErrNotFound is returned when a lookup matches no row
var ErrNotFound = errors.New("record not found")

// Store implements the persistence needs of the scanner, reconciler and importer
type Store struct {
	db *gorm.DB
}

// NewStore wraps an open connection
func NewStore(gdb *GormDB) *Store {
	return &Store{db: gdb.DB()}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// ListScanTargets returns live properties of one owner, or of all owners when ownerID
// is empty, least recently scanned first.
func (s *Store) ListScanTargets(ctx context.Context, ownerID string) ([]models.TrackedProperty, error) {
	var props []models.TrackedProperty
	q := s.db.WithContext(ctx).Model(&models.TrackedProperty{})
	if ownerID != "" {
		q = q.Where("owner_id = ?", ownerID)
	}
	err := q.Order("CASE WHEN last_scanned_at IS NULL THEN 0 ELSE 1 END").
		Order("last_scanned_at ASC").
		Order("id ASC").
		Find(&props).Error
	return props, err
}

// GetProperty returns a live property by id
func (s *Store) GetProperty(ctx context.Context, id string) (*models.TrackedProperty, error) {
	var p models.TrackedProperty
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// SetExternalIdentifier persists a newly acquired provider id
func (s *Store) SetExternalIdentifier(ctx context.Context, propertyID, identifier string) error {
	res := s.db.WithContext(ctx).Model(&models.TrackedProperty{}).
		Where("id = ?", propertyID).
		Update("external_identifier", identifier)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("property %s: %w", propertyID, ErrNotFound)
	}
	return nil
}

// MarkScanned stamps LastScannedAt without touching UpdatedAt
func (s *Store) MarkScanned(ctx context.Context, propertyID string, at time.Time) error {
	return s.db.WithContext(ctx).Model(&models.TrackedProperty{}).
		Where("id = ?", propertyID).
		UpdateColumn("last_scanned_at", at).Error
}

// FindPropertyByIdentifier returns the live property of owner with the given provider id
func (s *Store) FindPropertyByIdentifier(ctx context.Context, ownerID, externalID string) (*models.TrackedProperty, error) {
	var p models.TrackedProperty
	err := s.db.WithContext(ctx).
		Where("owner_id = ? AND external_identifier = ?", ownerID, externalID).
		Order("is_primary_target DESC").Order("updated_at DESC").
		First(&p).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// FindPropertyByName matches an owner's live property by display name and location
func (s *Store) FindPropertyByName(ctx context.Context, ownerID, name, location string) (*models.TrackedProperty, error) {
	var p models.TrackedProperty
	err := s.db.WithContext(ctx).
		Where("owner_id = ? AND display_name = ? AND location = ?", ownerID, name, location).
		First(&p).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// CreateProperty inserts a new tracked property
func (s *Store) CreateProperty(ctx context.Context, p *models.TrackedProperty) error {
	return s.db.WithContext(ctx).Create(p).Error
}

// UpdateProperty saves an existing tracked property
func (s *Store) UpdateProperty(ctx context.Context, p *models.TrackedProperty) error {
	return s.db.WithContext(ctx).Save(p).Error
}

// CreateSession inserts a new scan session
func (s *Store) CreateSession(ctx context.Context, session *models.ScanSession) error {
	return s.db.WithContext(ctx).Omit("Outcomes").Create(session).Error
}

// UpdateSession writes status, counters and timestamps of a session
func (s *Store) UpdateSession(ctx context.Context, session *models.ScanSession) error {
	return s.db.WithContext(ctx).Model(&models.ScanSession{}).
		Where("id = ?", session.ID).
		Updates(map[string]interface{}{
			"status":       session.Status,
			"total":        session.Total,
			"succeeded":    session.Succeeded,
			"failed":       session.Failed,
			"started_at":   session.StartedAt,
			"completed_at": session.CompletedAt,
		}).Error
}

// AppendOutcome inserts one trace row. Rows are never updated.
func (s *Store) AppendOutcome(ctx context.Context, outcome *models.ScanOutcome) error {
	return s.db.WithContext(ctx).Create(outcome).Error
}

// GetSession returns a session with its outcomes
func (s *Store) GetSession(ctx context.Context, id string) (*models.ScanSession, error) {
	var session models.ScanSession
	err := s.db.WithContext(ctx).
		Preload("Outcomes", func(db *gorm.DB) *gorm.DB { return db.Order("recorded_at ASC").Order("id ASC") }).
		Where("id = ?", id).
		First(&session).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &session, nil
}

// ListSessions returns the most recent sessions without outcomes
func (s *Store) ListSessions(ctx context.Context, limit int) ([]models.ScanSession, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var sessions []models.ScanSession
	err := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&sessions).Error
	return sessions, err
}

// ListIdentifiedProperties returns live properties that carry a provider id,
// grouped by owner and identifier.
func (s *Store) ListIdentifiedProperties(ctx context.Context, ownerID string) ([]models.TrackedProperty, error) {
	var props []models.TrackedProperty
	q := s.db.WithContext(ctx).Where("external_identifier IS NOT NULL AND external_identifier <> ''")
	if ownerID != "" {
		q = q.Where("owner_id = ?", ownerID)
	}
	err := q.Order("owner_id ASC").Order("external_identifier ASC").Order("id ASC").Find(&props).Error
	return props, err
}

// CountSnapshots returns how many snapshots reference a property
func (s *Store) CountSnapshots(ctx context.Context, propertyID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.PriceSnapshot{}).
		Where("property_id = ?", propertyID).
		Count(&count).Error
	return count, err
}

// RepointSnapshots moves every snapshot of fromID to toID, leaving content untouched
func (s *Store) RepointSnapshots(ctx context.Context, fromID, toID string) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.PriceSnapshot{}).
		Where("property_id = ?", fromID).
		Update("property_id", toID)
	return res.RowsAffected, res.Error
}

// SoftDeleteIfUnreferenced soft-deletes a property only while no snapshot points at it.
// It reports whether the row was deleted.
func (s *Store) SoftDeleteIfUnreferenced(ctx context.Context, propertyID string) (bool, error) {
	db := s.db.WithContext(ctx)
	refs := db.Model(&models.PriceSnapshot{}).Select("1").Where("property_id = ?", propertyID)
	res := db.Where("id = ?", propertyID).
		Where("NOT EXISTS (?)", refs).
		Delete(&models.TrackedProperty{})
	return res.RowsAffected > 0, res.Error
}

// RecordMerge writes an audit row for a merged duplicate
func (s *Store) RecordMerge(ctx context.Context, entry *models.MergeLog) error {
	return s.db.WithContext(ctx).Create(entry).Error
}

// ListMerges returns recent merge audit rows
func (s *Store) ListMerges(ctx context.Context, ownerID string, limit int) ([]models.MergeLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var logs []models.MergeLog
	q := s.db.WithContext(ctx).Order("merged_at DESC").Limit(limit)
	if ownerID != "" {
		q = q.Where("owner_id = ?", ownerID)
	}
	err := q.Find(&logs).Error
	return logs, err
}
