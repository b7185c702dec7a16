// Item HTTP handlers.
//
// This file exposes REST endpoints for the item resource:
//   - GET    /items         (list, paginated, ETag support)
//   - GET    /items/{id}    (read one, ETag support)
//   - POST   /items         (create, Idempotency-Key support)
//   - PUT    /items/{id}    (full replacement)
//   - DELETE /items/{id}    (delete, returns the prior snapshot)
//
// Handlers are transport-thin: they parse input, call the item service, and
// translate results into HTTP responses (including conditional responses).
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-items-api/internal/domain"
	"github.com/tbourn/go-items-api/internal/http/middleware"
	"github.com/tbourn/go-items-api/internal/services"
	"github.com/tbourn/go-items-api/internal/utils"
)

// ItemService defines the item operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type ItemService interface {
	// CreateIdempotent inserts an item, or replays the item previously
	// created for (clientID, key). An empty key always inserts.
	CreateIdempotent(ctx context.Context, clientID, key string, in services.ItemInput) (*domain.Item, bool, error)
	// Get returns a single item.
	Get(ctx context.Context, id int64) (*domain.Item, error)
	// List returns a page of items, newest first, with pagination metadata.
	List(ctx context.Context, page, limit int) ([]domain.Item, domain.Pagination, error)
	// Update overwrites name and description of an existing item.
	Update(ctx context.Context, id int64, in services.ItemInput) (*domain.Item, error)
	// Delete removes an item and returns it as it was.
	Delete(ctx context.Context, id int64) (*domain.Item, error)
}

// Handlers groups the HTTP endpoints for items.
type Handlers struct {
	items ItemService
}

// New constructs and returns a Handlers instance bound to the item service.
func New(items ItemService) *Handlers {
	return &Handlers{items: items}
}

//
// DTOs
//

// ListItemsResponse wraps a page of items and pagination information.
type ListItemsResponse struct {
	Items      []domain.Item     `json:"items"`
	Pagination domain.Pagination `json:"pagination"`
}

// ItemResponse is returned by create and update.
type ItemResponse struct {
	Success bool         `json:"success" example:"true"`
	Message string       `json:"message" example:"Item created successfully"`
	Item    *domain.Item `json:"item"`
}

// DeleteItemResponse carries the deleted row for confirmation.
type DeleteItemResponse struct {
	Success     bool         `json:"success" example:"true"`
	Message     string       `json:"message" example:"Item deleted successfully"`
	DeletedItem *domain.Item `json:"deletedItem"`
}

//
// Helpers
//

// itemID parses the {id} path parameter. It answers 400 itself and returns
// false when the value is not a positive integer.
func itemID(c *gin.Context) (int64, bool) {
	raw := c.Param("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		failWith(c, http.StatusBadRequest, ErrorResponse{
			Code:    ErrCodeBadRequest,
			Message: "id must be a positive integer",
			Field:   "id",
		})
		return 0, false
	}
	return id, true
}

// bindItem decodes the JSON body. Malformed JSON is a 400; a body over the
// configured cap is a 413.
func bindItem(c *gin.Context) (services.ItemInput, bool) {
	var in services.ItemInput
	if err := c.ShouldBindJSON(&in); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			fail(c, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, "request body too large")
			return in, false
		}
		failWith(c, http.StatusBadRequest, ErrorResponse{
			Code:    ErrCodeBadRequest,
			Message: "invalid JSON body",
			Field:   "body",
		})
		return in, false
	}
	return in, true
}

//
// Handlers
//

// ListItems godoc
// @ID          listItems
// @Summary     List items (paginated)
// @Description Returns a page of items, newest first (ties broken by id, newest first). Supports weak ETag via If-None-Match and may return 304.
// @Tags        Items
// @Produce     json
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"9f86d081884c7d65\")
// @Param       page           query   int     false "Page number"                  minimum(1) default(1)
// @Param       limit          query   int     false "Items per page"               minimum(1) maximum(100) default(10)
//
// @Success     200  {object} handlers.ListItemsResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /items [get]
func (h *Handlers) ListItems(c *gin.Context) {
	page := utils.AtoiDefault(c.Query("page"), services.DefaultPage)
	limit := utils.AtoiDefault(c.Query("limit"), services.DefaultLimit)

	items, meta, err := h.items.List(c.Request.Context(), page, limit)
	if err != nil {
		failErr(c, err)
		return
	}
	okWithETag(c, ListItemsResponse{Items: items, Pagination: meta})
}

// GetItem godoc
// @ID          getItem
// @Summary     Get an item
// @Description Returns a single item. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Items
// @Produce     json
//
// @Param       id             path    int     true  "Item ID"  minimum(1) example(42)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
//
// @Success     200  {object} domain.Item
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Invalid id"
// @Failure     404  {object} handlers.ErrorResponse "Item not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /items/{id} [get]
func (h *Handlers) GetItem(c *gin.Context) {
	id, valid := itemID(c)
	if !valid {
		return
	}
	it, err := h.items.Get(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	okWithETag(c, it)
}

// CreateItem godoc
// @ID          createItem
// @Summary     Create an item
// @Description Creates an item. With an Idempotency-Key, a retry from the same client returns the original item and sets `Idempotency-Replayed: true`. Subject to admission control.
// @Tags        Items
// @Accept      json
// @Produce     json
//
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    services.ItemInput  true  "Item payload"
//
// @Success     201  {object} handlers.ItemResponse
// @Header      201  {string} Idempotency-Replayed  "true when the response is a replay"
// @Failure     400  {object} handlers.ErrorResponse "Validation failed"
// @Failure     413  {object} handlers.ErrorResponse "Body too large"
// @Failure     429  {object} handlers.ErrorResponse "Rate limited"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /items [post]
func (h *Handlers) CreateItem(c *gin.Context) {
	in, valid := bindItem(c)
	if !valid {
		return
	}
	key, _ := middleware.GetIdempotencyKey(c)

	it, replayed, err := h.items.CreateIdempotent(c.Request.Context(), middleware.ClientIDFrom(c), key, in)
	if err != nil {
		failErr(c, err)
		return
	}
	if replayed {
		c.Header("Idempotency-Replayed", "true")
	}
	ok(c, http.StatusCreated, ItemResponse{
		Success: true,
		Message: "Item created successfully",
		Item:    it,
	})
}

// UpdateItem godoc
// @ID          updateItem
// @Summary     Replace an item
// @Description Overwrites name and description of an existing item. Subject to admission control.
// @Tags        Items
// @Accept      json
// @Produce     json
//
// @Param       id    path  int                 true  "Item ID"  minimum(1) example(42)
// @Param       body  body  services.ItemInput  true  "Item payload"
//
// @Success     200  {object} handlers.ItemResponse
// @Failure     400  {object} handlers.ErrorResponse "Validation failed"
// @Failure     404  {object} handlers.ErrorResponse "Item not found"
// @Failure     429  {object} handlers.ErrorResponse "Rate limited"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /items/{id} [put]
func (h *Handlers) UpdateItem(c *gin.Context) {
	id, valid := itemID(c)
	if !valid {
		return
	}
	in, valid := bindItem(c)
	if !valid {
		return
	}
	it, err := h.items.Update(c.Request.Context(), id, in)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ItemResponse{
		Success: true,
		Message: "Item updated successfully",
		Item:    it,
	})
}

// DeleteItem godoc
// @ID          deleteItem
// @Summary     Delete an item
// @Description Deletes an item and returns it as it was before deletion. Subject to admission control.
// @Tags        Items
// @Produce     json
//
// @Param       id  path  int  true  "Item ID"  minimum(1) example(42)
//
// @Success     200  {object} handlers.DeleteItemResponse
// @Failure     400  {object} handlers.ErrorResponse "Invalid id"
// @Failure     404  {object} handlers.ErrorResponse "Item not found"
// @Failure     429  {object} handlers.ErrorResponse "Rate limited"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /items/{id} [delete]
func (h *Handlers) DeleteItem(c *gin.Context) {
	id, valid := itemID(c)
	if !valid {
		return
	}
	it, err := h.items.Delete(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, DeleteItemResponse{
		Success:     true,
		Message:     "Item deleted successfully",
		DeletedItem: it,
	})
}

// MissingID answers PUT and DELETE on the collection.
//
// @ID          missingItemID
// @Summary     Update or delete without an id
// @Tags        Items
// @Produce     json
// @Failure     400  {object} handlers.ErrorResponse "id is required"
// @Router      /items [put]
// @Router      /items [delete]
func (h *Handlers) MissingID(c *gin.Context) {
	failWith(c, http.StatusBadRequest, ErrorResponse{
		Code:    ErrCodeBadRequest,
		Message: "id is required",
		Field:   "id",
	})
}
