// Package domain defines the persistence models for the items API. These
// types are mapped with GORM and shared across the repository, service, and
// HTTP layers.
package domain

import "time"

// Item is the single resource exposed by the API.
//
// Fields:
//   - ID: integer surrogate key assigned by the store on creation.
//   - Name: required, never blank once persisted.
//   - Description: optional; nil is serialized as JSON null.
//   - CreatedAt: set once at creation and never updated.
type Item struct {
	ID          int64     `json:"id"          gorm:"primaryKey;autoIncrement"`
	Name        string    `json:"name"        gorm:"type:text;not null"`
	Description *string   `json:"description" gorm:"type:text"`
	CreatedAt   time.Time `json:"created_at"  gorm:"autoCreateTime;index:idx_items_created"`
}

// TableName returns the database table name for Item.
func (Item) TableName() string { return "items" }

// Pagination carries list metadata. Pages is never below 1.
type Pagination struct {
	Page  int   `json:"page"  example:"1"`
	Limit int   `json:"limit" example:"10"`
	Total int64 `json:"total" example:"15"`
	Pages int   `json:"pages" example:"2"`
}
