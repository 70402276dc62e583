package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// PriceSnapshot is one captured price observation for a property
type PriceSnapshot struct {
	ID         uint              `gorm:"primaryKey;autoIncrement" json:"id"`
	PropertyID string            `gorm:"type:varchar(36);not null;index:idx_property_captured" json:"property_id"`
	CapturedAt time.Time         `gorm:"not null;index:idx_property_captured,priority:2" json:"captured_at"`
	Price      *decimal.Decimal  `gorm:"type:decimal(14,2)" json:"price"`
	Currency   string            `gorm:"type:varchar(3);not null" json:"currency"`
	Offers     []RoomOffer       `gorm:"foreignKey:SnapshotID;constraint:OnDelete:CASCADE" json:"room_offers"`
	Source     string            `gorm:"type:varchar(50);not null" json:"source"`
	Rank       *int              `json:"rank,omitempty"`
	ChangeNote string            `gorm:"type:text" json:"change_note,omitempty"`
	Metadata   datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt  time.Time         `gorm:"not null;autoCreateTime" json:"created_at"`
}

// TableName specifies the table name
func (PriceSnapshot) TableName() string {
	return "price_snapshots"
}

// RoomOffer is a room-level price inside a snapshot
type RoomOffer struct {
	ID              uint             `gorm:"primaryKey;autoIncrement" json:"-"`
	SnapshotID      uint             `gorm:"not null;index" json:"-"`
	Position        int              `gorm:"not null" json:"-"`
	Name            string           `gorm:"type:varchar(255);not null" json:"name"`
	RawPrice        string           `gorm:"type:varchar(64)" json:"raw_price,omitempty"`
	Price           *decimal.Decimal `gorm:"type:decimal(14,2)" json:"price"`
	Currency        string           `gorm:"type:varchar(3)" json:"currency,omitempty"`
	Category        string           `gorm:"type:varchar(32)" json:"category,omitempty"`
	MatchConfidence *float64         `json:"match_confidence,omitempty"`
	CapturedAt      time.Time        `gorm:"not null" json:"-"`
}

// PriceIn returns the offer's parsed price and its currency, which is the
// snapshot currency unless the offer carried its own.
func (o RoomOffer) PriceIn(snapshotCurrency string) (decimal.Decimal, string, bool) {
	if o.Price == nil {
		return decimal.Decimal{}, "", false
	}
	if o.Currency != "" {
		return *o.Price, o.Currency, true
	}
	return *o.Price, snapshotCurrency, true
}

// TableName specifies the table name
func (RoomOffer) TableName() string {
	return "room_offers"
}

type offerJSON struct {
	Name            string       `json:"name"`
	Price           *json.Number `json:"price"`
	Currency        string       `json:"currency,omitempty"`
	Category        string       `json:"category,omitempty"`
	MatchConfidence *float64     `json:"match_confidence,omitempty"`
}

type snapshotJSON struct {
	ID         uint              `json:"id,omitempty"`
	PropertyID string            `json:"property_id"`
	CapturedAt time.Time         `json:"captured_at"`
	Price      *json.Number      `json:"price"`
	Currency   string            `json:"currency"`
	Offers     []offerJSON       `json:"room_offers"`
	Source     string            `json:"source"`
	Rank       *int              `json:"rank,omitempty"`
	ChangeNote string            `json:"change_note,omitempty"`
	Metadata   datatypes.JSONMap `json:"metadata,omitempty"`
}

// MarshalJSON renders the persisted snapshot shape with numeric prices:
// {captured_at, price, currency, room_offers: [{name, price}], source}.
func (s PriceSnapshot) MarshalJSON() ([]byte, error) {
	out := snapshotJSON{
		ID:         s.ID,
		PropertyID: s.PropertyID,
		CapturedAt: s.CapturedAt.UTC(),
		Price:      decimalNumber(s.Price),
		Currency:   s.Currency,
		Offers:     make([]offerJSON, 0, len(s.Offers)),
		Source:     s.Source,
		Rank:       s.Rank,
		ChangeNote: s.ChangeNote,
		Metadata:   s.Metadata,
	}
	for _, o := range s.Offers {
		offer := offerJSON{
			Name:            o.Name,
			Price:           decimalNumber(o.Price),
			Category:        o.Category,
			MatchConfidence: o.MatchConfidence,
		}
		if o.Currency != s.Currency {
			offer.Currency = o.Currency
		}
		out.Offers = append(out.Offers, offer)
	}
	return json.Marshal(out)
}

func decimalNumber(d *decimal.Decimal) *json.Number {
	if d == nil {
		return nil
	}
	n := json.Number(d.StringFixed(2))
	return &n
}

// PriceChange records a price movement between consecutive snapshots
type PriceChange struct {
	ID              uint             `gorm:"primaryKey;autoIncrement" json:"id"`
	PropertyID      string           `gorm:"type:varchar(36);not null;index" json:"property_id"`
	SnapshotID      uint             `gorm:"not null" json:"snapshot_id"`
	OldPrice        *decimal.Decimal `gorm:"type:decimal(14,2)" json:"old_price,omitempty"`
	NewPrice        *decimal.Decimal `gorm:"type:decimal(14,2)" json:"new_price,omitempty"`
	Currency        string           `gorm:"type:varchar(3)" json:"currency"`
	ChangeMagnitude *float64         `gorm:"type:decimal(10,2)" json:"change_magnitude,omitempty"` // percent
	DetectedAt      time.Time        `gorm:"not null;autoCreateTime;index" json:"detected_at"`
}

// TableName specifies the table name
func (PriceChange) TableName() string {
	return "price_changes"
}
