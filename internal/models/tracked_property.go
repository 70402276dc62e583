package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TrackedProperty is a hotel monitored on behalf of an owner
type TrackedProperty struct {
	ID                 string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	OwnerID            string         `gorm:"type:varchar(64);not null;index:idx_owner_external,priority:1" json:"owner_id"`
	DisplayName        string         `gorm:"type:varchar(255);not null" json:"display_name"`
	Location           string         `gorm:"type:varchar(255)" json:"location,omitempty"`
	ExternalIdentifier string         `gorm:"type:varchar(255);index:idx_owner_external,priority:2" json:"external_identifier,omitempty"`
	IsPrimaryTarget    bool           `gorm:"not null;default:false" json:"is_primary_target"`
	PreferredCurrency  string         `gorm:"type:varchar(3);not null;default:'USD'" json:"preferred_currency"`
	LastScannedAt      *time.Time     `json:"last_scanned_at,omitempty"`
	CreatedAt          time.Time      `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

// TableName specifies the table name
func (TrackedProperty) TableName() string {
	return "tracked_properties"
}

// BeforeCreate assigns a UUID when none is set
func (p *TrackedProperty) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// HasExternalIdentifier reports whether the provider id is known
func (p *TrackedProperty) HasExternalIdentifier() bool {
	return strings.TrimSpace(p.ExternalIdentifier) != ""
}
