// Package domain defines the core persistence models for the application.
// These types are used by GORM for database schema mapping and are shared
// across the repository and service layers.
package domain

import "time"

// Idempotency records the item produced by a create request, keyed by
// (client_id, key). A replay within the TTL returns the original item instead
// of inserting a duplicate.
type Idempotency struct {
	ID        string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	ClientID  string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_idempotency_client_key,priority:1"`
	Key       string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_idempotency_client_key,priority:2"`
	ItemID    int64     `gorm:"type:INTEGER NOT NULL"`
	Status    int       `gorm:"type:INTEGER NOT NULL"`
	CreatedAt time.Time `gorm:"type:TIMESTAMP NOT NULL;autoCreateTime"`
	ExpiresAt time.Time `gorm:"type:TIMESTAMP NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }

// RateCounter is a fixed-window admission counter persisted by the SQL
// counter store. Rows past ExpiresAt are stale and may be reclaimed.
type RateCounter struct {
	Key       string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	Count     int64     `gorm:"type:INTEGER NOT NULL"`
	ExpiresAt time.Time `gorm:"type:TIMESTAMP NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (RateCounter) TableName() string { return "rate_counters" }
