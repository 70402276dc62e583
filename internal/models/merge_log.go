package models

import "time"

// MergeLog records a duplicate property folded into its survivor
type MergeLog struct {
	ID                 uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	OwnerID            string    `gorm:"type:varchar(64);not null;index" json:"owner_id"`
	ExternalIdentifier string    `gorm:"type:varchar(255);not null" json:"external_identifier"`
	DuplicateID        string    `gorm:"type:varchar(36);not null;index" json:"duplicate_id"`
	SurvivorID         string    `gorm:"type:varchar(36);not null;index" json:"survivor_id"`
	SnapshotsMoved     int64     `gorm:"not null" json:"snapshots_moved"`
	Reason             string    `gorm:"type:varchar(50);not null" json:"reason"`
	MergedAt           time.Time `gorm:"not null;autoCreateTime;index" json:"merged_at"`
}

// TableName specifies the table name
func (MergeLog) TableName() string {
	return "merge_logs"
}

// MergeReason constants
const (
	MergeReasonDuplicateIdentifier = "duplicate_identifier"
)
