// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for the Item model.
package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/tbourn/go-items-api/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateItem inserts a new item and returns it with its generated ID and
// creation timestamp.
func CreateItem(ctx context.Context, db *gorm.DB, name string, description *string) (*domain.Item, error) {
	it := &domain.Item{Name: name, Description: description}
	if err := db.WithContext(ctx).Create(it).Error; err != nil {
		return nil, err
	}
	return it, nil
}

// GetItem fetches a single item by ID or returns ErrNotFound.
func GetItem(ctx context.Context, db *gorm.DB, id int64) (*domain.Item, error) {
	var it domain.Item
	err := db.WithContext(ctx).Where("id = ?", id).First(&it).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &it, nil
}

// CountItems returns the total number of stored items.
func CountItems(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Item{}).Count(&n).Error
	return n, err
}

// ListItemsPage returns a window of items, newest first. Items sharing a
// creation timestamp are ordered by descending ID.
func ListItemsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Item, error) {
	items := make([]domain.Item, 0, limit)
	err := db.WithContext(ctx).
		Order("created_at DESC").
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&items).Error
	return items, err
}

// UpdateItem overwrites the mutable fields of an item. A nil description
// clears the stored value. ID and created_at are never written.
func UpdateItem(ctx context.Context, db *gorm.DB, id int64, name string, description *string) error {
	var desc any
	if description != nil {
		desc = *description
	}
	res := db.WithContext(ctx).
		Model(&domain.Item{}).
		Where("id = ?", id).
		Updates(map[string]any{"name": name, "description": desc})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteItem removes an item by ID or returns ErrNotFound.
func DeleteItem(ctx context.Context, db *gorm.DB, id int64) error {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Item{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
