// Package snapshot stores price observations and the movements between them.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"hotel-rate-monitor/internal/models"
)

// ErrNoSnapshot is returned when a property has never been captured
var ErrNoSnapshot = errors.New("no snapshot for property")

// ErrAlreadyCaptured is returned by Create when the property already has a
// snapshot in the same window
var ErrAlreadyCaptured = errors.New("snapshot already captured for window")

// Service handles price snapshot operations
type Service struct {
	db         *gorm.DB
	resolution time.Duration
}

// NewService creates a snapshot service that dedupes captures within resolution
func NewService(db *gorm.DB, resolution time.Duration) *Service {
	if resolution <= 0 {
		resolution = 24 * time.Hour
	}
	return &Service{db: db, resolution: resolution}
}

// Resolution is the dedupe window
func (s *Service) Resolution() time.Duration {
	return s.resolution
}

// Truncate maps t onto the start of its dedupe window, in UTC
func (s *Service) Truncate(t time.Time) time.Time {
	return t.UTC().Truncate(s.resolution)
}

// Exists reports whether a snapshot is already stored for (propertyID, capturedAt)
func (s *Service) Exists(ctx context.Context, propertyID string, capturedAt time.Time) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.PriceSnapshot{}).
		Where("property_id = ? AND captured_at = ?", propertyID, s.Truncate(capturedAt)).
		Count(&count).Error
	return count > 0, err
}

// Create stores a snapshot with its offers and records a price change against
// the previous snapshot of the same property.
func (s *Service) Create(ctx context.Context, snap *models.PriceSnapshot) error {
	snap.CapturedAt = s.Truncate(snap.CapturedAt)
	for i := range snap.Offers {
		snap.Offers[i].Position = i
		snap.Offers[i].CapturedAt = snap.CapturedAt
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var taken int64
		if err := tx.Model(&models.PriceSnapshot{}).
			Where("property_id = ? AND captured_at = ?", snap.PropertyID, snap.CapturedAt).
			Count(&taken).Error; err != nil {
			return err
		}
		if taken > 0 {
			return ErrAlreadyCaptured
		}

		var previous models.PriceSnapshot
		err := tx.Where("property_id = ? AND captured_at < ?", snap.PropertyID, snap.CapturedAt).
			Order("captured_at DESC").
			First(&previous).Error
		hasPrevious := err == nil
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		var change *models.PriceChange
		if hasPrevious {
			change = detectChange(&previous, snap)
			if change != nil {
				snap.ChangeNote = describe(change, previous.Currency)
			}
		}

		if err := tx.Create(snap).Error; err != nil {
			return err
		}
		if change != nil {
			change.SnapshotID = snap.ID
			if err := tx.Create(change).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func detectChange(previous, current *models.PriceSnapshot) *models.PriceChange {
	if previous.Price == nil && current.Price == nil {
		return nil
	}
	if previous.Price != nil && current.Price != nil &&
		previous.Price.Equal(*current.Price) && previous.Currency == current.Currency {
		return nil
	}

	change := &models.PriceChange{
		PropertyID: current.PropertyID,
		OldPrice:   previous.Price,
		NewPrice:   current.Price,
		Currency:   current.Currency,
	}
	if previous.Price != nil && current.Price != nil && !previous.Price.IsZero() &&
		previous.Currency == current.Currency {
		pct, _ := current.Price.Sub(*previous.Price).
			Div(*previous.Price).
			Mul(decimal.NewFromInt(100)).
			Round(2).
			Float64()
		change.ChangeMagnitude = &pct
	}
	return change
}

func describe(change *models.PriceChange, previousCurrency string) string {
	str := func(d *decimal.Decimal) string {
		if d == nil {
			return "unknown"
		}
		return d.StringFixed(2)
	}
	note := fmt.Sprintf("price %s %s -> %s %s", str(change.OldPrice), previousCurrency, str(change.NewPrice), change.Currency)
	if change.ChangeMagnitude != nil {
		note += fmt.Sprintf(" (%+.2f%%)", *change.ChangeMagnitude)
	}
	return note
}

func preloadOffers(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

// History returns the most recent snapshots of a property, newest first
func (s *Service) History(ctx context.Context, propertyID string, limit int) ([]models.PriceSnapshot, error) {
	if limit <= 0 || limit > 365 {
		limit = 30
	}
	var snaps []models.PriceSnapshot
	err := s.db.WithContext(ctx).
		Preload("Offers", preloadOffers).
		Where("property_id = ?", propertyID).
		Order("captured_at DESC").
		Limit(limit).
		Find(&snaps).Error
	return snaps, err
}

// Latest returns the newest snapshot of a property
func (s *Service) Latest(ctx context.Context, propertyID string) (*models.PriceSnapshot, error) {
	var snap models.PriceSnapshot
	err := s.db.WithContext(ctx).
		Preload("Offers", preloadOffers).
		Where("property_id = ?", propertyID).
		Order("captured_at DESC").
		First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// Changes returns recorded price movements for a property, newest first
func (s *Service) Changes(ctx context.Context, propertyID string, limit int) ([]models.PriceChange, error) {
	if limit <= 0 || limit > 365 {
		limit = 30
	}
	var changes []models.PriceChange
	err := s.db.WithContext(ctx).
		Where("property_id = ?", propertyID).
		Order("detected_at DESC").Order("id DESC").
		Limit(limit).
		Find(&changes).Error
	return changes, err
}
