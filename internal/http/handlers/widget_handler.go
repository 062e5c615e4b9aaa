// Widget HTTP handlers.
//
// This file exposes REST endpoints for the widget resource:
//   - POST   /widgets               (create)
//   - GET    /widgets               (list, paginated)
//   - GET    /widgets/{id}          (fetch)
//   - PUT    /widgets/{id}          (update)
//   - DELETE /widgets/{id}          (delete)
//   - POST   /widgets/{id}/publish  (enqueue async publish)
//
// Handlers are transport-thin: they validate input, call application services,
// and raise failures on the Gin context for the error renderer. Service
// sentinel errors are translated into taxonomy failures here; collaborator
// errors (duplicate-key writes, malformed ObjectIDs, binding validation) pass
// through raw so the renderer classifies them structurally.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/mvasilakos/go-api-starter/internal/apperr"
	"github.com/mvasilakos/go-api-starter/internal/domain"
	"github.com/mvasilakos/go-api-starter/internal/services"
)

// WidgetService defines the widget lifecycle operations consumed by HTTP
// handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type WidgetService interface {
	// Create inserts a new draft widget.
	Create(ctx context.Context, name, slug, description string) (*domain.Widget, error)
	// Get fetches a widget by its hex ID.
	Get(ctx context.Context, id string) (*domain.Widget, error)
	// ListPage returns a page of widgets and the total count.
	ListPage(ctx context.Context, page, pageSize int) ([]domain.Widget, int64, error)
	// Update renames a widget and replaces its description.
	Update(ctx context.Context, id, name, description string) (*domain.Widget, error)
	// Delete removes a widget.
	Delete(ctx context.Context, id string) error
	// Publish enqueues an async publish job for the widget.
	Publish(ctx context.Context, id string) (*domain.Job, error)
}

// Handlers groups the HTTP endpoints for the widget resource. It depends on
// an abstract service interface to keep transport concerns separate from
// business logic.
type Handlers struct {
	widgets WidgetService
}

// New constructs a Handlers instance bound to the given service.
func New(widgets WidgetService) *Handlers {
	return &Handlers{widgets: widgets}
}

//
// DTOs
//

// CreateWidgetRequest is the JSON payload for creating a widget.
type CreateWidgetRequest struct {
	Name        string `json:"name" binding:"required"`
	Slug        string `json:"slug" binding:"required"`
	Description string `json:"description"`
}

// UpdateWidgetRequest is the JSON payload for updating a widget.
type UpdateWidgetRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

// ListWidgetsResponse wraps a page of widgets and pagination information.
type ListWidgetsResponse struct {
	Widgets    []domain.Widget `json:"widgets"`
	Pagination Pagination      `json:"pagination"`
}

// PublishAcceptedResponse acknowledges an enqueued publish job.
type PublishAcceptedResponse struct {
	JobID    string `json:"job_id"`
	WidgetID string `json:"widget_id"`
	Status   string `json:"status"`
}

//
// Error translation
//

// raise attaches a failure to the context and aborts the handler chain. The
// error renderer writes the response body.
func raise(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// raiseBinding classifies a request-binding failure. Named-field validation
// errors pass through raw so the renderer applies the validation shape;
// anything else (malformed JSON, wrong types) becomes a BadRequest taxonomy
// failure.
func raiseBinding(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		raise(c, err)
		return
	}
	raise(c, apperr.BadRequest("Invalid JSON body").WithCause(err))
}

// raiseService translates service sentinel errors into taxonomy failures.
// Non-sentinel errors pass through raw for structural classification
// (duplicate-key, cast) or the 500 fallback.
func raiseService(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrWidgetNotFound):
		raise(c, apperr.NotFound("Widget not found"))
	case errors.Is(err, services.ErrEmptyName),
		errors.Is(err, services.ErrNameTooLong),
		errors.Is(err, services.ErrInvalidSlug):
		raise(c, apperr.BadRequest(err.Error()))
	case errors.Is(err, services.ErrAlreadyPublished):
		raise(c, apperr.Conflict("Widget is already published"))
	default:
		raise(c, err)
	}
}

//
// Handlers
//

// CreateWidget handles POST /widgets.
func (h *Handlers) CreateWidget(c *gin.Context) {
	var req CreateWidgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		raiseBinding(c, err)
		return
	}

	w, err := h.widgets.Create(c.Request.Context(), req.Name, req.Slug, req.Description)
	if err != nil {
		raiseService(c, err)
		return
	}
	ok(c, http.StatusCreated, w)
}

// ListWidgets handles GET /widgets.
func (h *Handlers) ListWidgets(c *gin.Context) {
	page, pageSize := clampPagination(c)

	items, total, err := h.widgets.ListPage(c.Request.Context(), page, pageSize)
	if err != nil {
		raiseService(c, err)
		return
	}
	if items == nil {
		items = []domain.Widget{}
	}
	ok(c, http.StatusOK, ListWidgetsResponse{
		Widgets:    items,
		Pagination: newPagination(page, pageSize, total),
	})
}

// GetWidget handles GET /widgets/:id.
func (h *Handlers) GetWidget(c *gin.Context) {
	w, err := h.widgets.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		raiseService(c, err)
		return
	}
	ok(c, http.StatusOK, w)
}

// UpdateWidget handles PUT /widgets/:id.
func (h *Handlers) UpdateWidget(c *gin.Context) {
	var req UpdateWidgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		raiseBinding(c, err)
		return
	}

	w, err := h.widgets.Update(c.Request.Context(), c.Param("id"), req.Name, req.Description)
	if err != nil {
		raiseService(c, err)
		return
	}
	ok(c, http.StatusOK, w)
}

// DeleteWidget handles DELETE /widgets/:id.
func (h *Handlers) DeleteWidget(c *gin.Context) {
	if err := h.widgets.Delete(c.Request.Context(), c.Param("id")); err != nil {
		raiseService(c, err)
		return
	}
	noContent(c)
}

// PublishWidget handles POST /widgets/:id/publish. The publish itself runs
// asynchronously; a 202 acknowledges the enqueued job.
func (h *Handlers) PublishWidget(c *gin.Context) {
	job, err := h.widgets.Publish(c.Request.Context(), c.Param("id"))
	if err != nil {
		raiseService(c, err)
		return
	}
	ok(c, http.StatusAccepted, PublishAcceptedResponse{
		JobID:    job.ID,
		WidgetID: job.Payload["widget_id"],
		Status:   "queued",
	})
}
