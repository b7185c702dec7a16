// Package services – ItemService
//
// This file implements the ItemService, which owns the item lifecycle. It
// validates and normalizes payloads, clamps pagination input, verifies
// existence before mutations, and coordinates idempotent creation.
//
// Predictable failures are returned as ValidationError or NotFoundError so
// handlers can map them to HTTP results consistently. Anything else is a
// storage fault wrapped with the failing operation.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"

	"github.com/tbourn/go-items-api/internal/domain"
	"github.com/tbourn/go-items-api/internal/repo"
	"github.com/tbourn/go-items-api/internal/utils"
)

// Pagination defaults and bounds.
const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// ItemRepo defines the repository contract required by ItemService.
type ItemRepo interface {
	// CreateItem inserts a new item row.
	CreateItem(ctx context.Context, db *gorm.DB, name string, description *string) (*domain.Item, error)

	// GetItem fetches an item by ID.
	GetItem(ctx context.Context, db *gorm.DB, id int64) (*domain.Item, error)

	// CountItems returns the total number of items for pagination.
	CountItems(ctx context.Context, db *gorm.DB) (int64, error)

	// ListItemsPage returns a page of items, newest first.
	ListItemsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Item, error)

	// UpdateItem overwrites name and description.
	UpdateItem(ctx context.Context, db *gorm.DB, id int64, name string, description *string) error

	// DeleteItem removes an item.
	DeleteItem(ctx context.Context, db *gorm.DB, id int64) error

	// GetIdempotency returns a live idempotency record for (clientID, key).
	GetIdempotency(ctx context.Context, db *gorm.DB, clientID, key string, now time.Time) (*domain.Idempotency, error)

	// CreateIdempotency records the item produced for (clientID, key).
	CreateIdempotency(ctx context.Context, db *gorm.DB, clientID, key string, itemID int64, status int, ttl time.Duration) (*domain.Idempotency, error)
}

// ItemInput is the create/update payload. Pointers distinguish an absent
// field from an empty one.
type ItemInput struct {
	Name        *string `json:"name"        example:"Laptop"`
	Description *string `json:"description" example:"14-inch, 16GB RAM"`
}

// itemFields is the normalized form checked by the validator.
type itemFields struct {
	Name        string `validate:"required"`
	Description *string
}

// ItemService provides CRUD operations over items.
type ItemService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the item repository used by this service.
	Repo ItemRepo
	// IdempotencyTTL bounds how long a create can be replayed.
	IdempotencyTTL time.Duration

	validate *validator.Validate
	tracer   trace.Tracer
	now      func() time.Time
}

// NewItemService constructs an ItemService with a 24h replay window.
func NewItemService(db *gorm.DB, r ItemRepo) *ItemService {
	return &ItemService{
		DB:             db,
		Repo:           r,
		IdempotencyTTL: 24 * time.Hour,
		validate:       validator.New(validator.WithRequiredStructEnabled()),
		tracer:         otel.Tracer("github.com/tbourn/go-items-api/internal/services"),
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// Create validates in and inserts a new item.
func (s *ItemService) Create(ctx context.Context, in ItemInput) (*domain.Item, error) {
	ctx, span := s.tracer.Start(ctx, "ItemService.Create")
	defer span.End()

	f, err := s.normalize(in)
	if err != nil {
		return nil, err
	}
	it, err := s.Repo.CreateItem(ctx, s.DB, f.Name, f.Description)
	if err != nil {
		return nil, record(span, wrap("create item", err))
	}
	span.SetAttributes(attribute.Int64("item.id", it.ID))
	return it, nil
}

// CreateIdempotent behaves like Create, but a repeated (clientID, key) within
// IdempotencyTTL returns the originally created item and replayed=true
// instead of inserting a duplicate.
func (s *ItemService) CreateIdempotent(ctx context.Context, clientID, key string, in ItemInput) (it *domain.Item, replayed bool, err error) {
	key = strings.TrimSpace(key)
	if key == "" {
		it, err = s.Create(ctx, in)
		return it, false, err
	}

	ctx, span := s.tracer.Start(ctx, "ItemService.CreateIdempotent")
	defer span.End()

	if it, ok, err := s.replay(ctx, clientID, key); err != nil || ok {
		return it, ok, err
	}

	f, err := s.normalize(in)
	if err != nil {
		return nil, false, err
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		created, err := s.Repo.CreateItem(ctx, tx, f.Name, f.Description)
		if err != nil {
			return err
		}
		if _, err := s.Repo.CreateIdempotency(ctx, tx, clientID, key, created.ID, 201, s.IdempotencyTTL); err != nil {
			return err
		}
		it = created
		return nil
	})
	if errors.Is(err, repo.ErrDuplicate) {
		// A concurrent request with the same key won the race.
		return s.replay(ctx, clientID, key)
	}
	if err != nil {
		return nil, false, record(span, wrap("create item", err))
	}
	return it, false, nil
}

func (s *ItemService) replay(ctx context.Context, clientID, key string) (*domain.Item, bool, error) {
	rec, err := s.Repo.GetIdempotency(ctx, s.DB, clientID, key, s.now())
	if errors.Is(err, repo.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrap("lookup idempotency", err)
	}
	it, err := s.Repo.GetItem(ctx, s.DB, rec.ItemID)
	if errors.Is(err, repo.ErrNotFound) {
		// The original item was deleted since; the key stays spent until it expires.
		return nil, false, Invalid("idempotency_key", "idempotency key refers to a deleted item")
	}
	if err != nil {
		return nil, false, wrap("get item", err)
	}
	return it, true, nil
}

// Get returns a single item or a NotFoundError.
func (s *ItemService) Get(ctx context.Context, id int64) (*domain.Item, error) {
	if id < 1 {
		return nil, Invalid("id", "id must be a positive integer")
	}
	it, err := s.Repo.GetItem(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, &NotFoundError{ID: id}
	}
	if err != nil {
		return nil, wrap("get item", err)
	}
	return it, nil
}

// List returns a page of items, newest first. page < 1 becomes 1, limit < 1
// becomes DefaultLimit and limit > MaxLimit becomes MaxLimit. Pages is never
// below 1, and a page past the end yields an empty slice.
func (s *ItemService) List(ctx context.Context, page, limit int) ([]domain.Item, domain.Pagination, error) {
	ctx, span := s.tracer.Start(ctx, "ItemService.List")
	defer span.End()

	page, limit = ClampPagination(page, limit)
	meta := domain.Pagination{Page: page, Limit: limit, Pages: 1}

	total, err := s.Repo.CountItems(ctx, s.DB)
	if err != nil {
		return nil, meta, record(span, wrap("count items", err))
	}
	meta.Total = total
	meta.Pages = utils.PageCount(total, limit)
	if total == 0 {
		return []domain.Item{}, meta, nil
	}

	items, err := s.Repo.ListItemsPage(ctx, s.DB, (page-1)*limit, limit)
	if err != nil {
		return nil, meta, record(span, wrap("list items", err))
	}
	if items == nil {
		items = []domain.Item{}
	}
	return items, meta, nil
}

// Update replaces name and description of an existing item and returns the
// stored row.
func (s *ItemService) Update(ctx context.Context, id int64, in ItemInput) (*domain.Item, error) {
	ctx, span := s.tracer.Start(ctx, "ItemService.Update", trace.WithAttributes(attribute.Int64("item.id", id)))
	defer span.End()

	if id < 1 {
		return nil, Invalid("id", "id must be a positive integer")
	}
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	f, err := s.normalize(in)
	if err != nil {
		return nil, err
	}
	if err := s.Repo.UpdateItem(ctx, s.DB, id, f.Name, f.Description); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, &NotFoundError{ID: id}
		}
		return nil, record(span, wrap("update item", err))
	}
	return s.Get(ctx, id)
}

// Delete removes an item and returns the row as it was before deletion.
func (s *ItemService) Delete(ctx context.Context, id int64) (*domain.Item, error) {
	ctx, span := s.tracer.Start(ctx, "ItemService.Delete", trace.WithAttributes(attribute.Int64("item.id", id)))
	defer span.End()

	prior, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.Repo.DeleteItem(ctx, s.DB, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, &NotFoundError{ID: id}
		}
		return nil, record(span, wrap("delete item", err))
	}
	return prior, nil
}

// ClampPagination applies the list defaults and bounds.
func ClampPagination(page, limit int) (int, int) {
	if page < 1 {
		page = DefaultPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return page, limit
}

// normalize trims and NFC-normalizes the payload, then validates it. A blank
// description is stored as null.
func (s *ItemService) normalize(in ItemInput) (itemFields, error) {
	var f itemFields
	if in.Name != nil {
		f.Name = clean(*in.Name)
	}
	if in.Description != nil {
		if d := clean(*in.Description); d != "" {
			f.Description = &d
		}
	}
	if err := s.validate.Struct(f); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return f, Invalid(strings.ToLower(verrs[0].Field()), "name is required")
		}
		return f, Invalid("body", err.Error())
	}
	return f, nil
}

func clean(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}

func wrap(op string, err error) error {
	return fmt.Errorf("%s: %w", op, err)
}

func record(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
