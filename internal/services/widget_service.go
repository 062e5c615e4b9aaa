// Package services defines the business logic for the widget sample resource.
//
// WidgetService enforces input rules, orchestrates the repository and the
// background queue, and returns either service sentinel errors (translated to
// taxonomy failures by handlers) or raw collaborator errors (duplicate-key
// write errors, cast errors) that the error renderer classifies structurally.
package services

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/mvasilakos/go-api-starter/internal/domain"
	"github.com/mvasilakos/go-api-starter/internal/queue"
	"github.com/mvasilakos/go-api-starter/internal/storage/mongodb"
)

// maxNameRunes caps widget names; longer input is rejected, not truncated.
const maxNameRunes = 120

// slugRe accepts lowercase alphanumeric segments joined by single hyphens.
var slugRe = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// JobQueue is the narrow producer interface the service needs; satisfied by
// *queue.Queue and easily faked in tests.
type JobQueue interface {
	Enqueue(ctx context.Context, job domain.Job) error
}

// WidgetService implements widget lifecycle operations over the document
// store and the background queue. All methods are safe for concurrent use
// and honor the provided context.
type WidgetService struct {
	DB   *mongo.Database
	Jobs JobQueue
}

// Create validates input and inserts a new draft widget. A duplicate slug
// propagates as the driver's duplicate-key error for structural
// classification downstream.
func (s *WidgetService) Create(ctx context.Context, name, slug, description string) (*domain.Widget, error) {
	name = strings.TrimSpace(name)
	if err := validateName(name); err != nil {
		return nil, err
	}
	slug = strings.TrimSpace(slug)
	if !slugRe.MatchString(slug) {
		return nil, ErrInvalidSlug
	}
	return mongodb.CreateWidget(ctx, s.DB, name, slug, strings.TrimSpace(description))
}

// Get fetches a widget by its hex ID. Malformed IDs propagate as
// *mongodb.CastError; missing documents map to ErrWidgetNotFound.
func (s *WidgetService) Get(ctx context.Context, id string) (*domain.Widget, error) {
	oid, err := mongodb.ParseObjectID("_id", id)
	if err != nil {
		return nil, err
	}
	w, err := mongodb.GetWidget(ctx, s.DB, oid)
	if errors.Is(err, mongodb.ErrNotFound) {
		return nil, ErrWidgetNotFound
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

// ListPage returns one page of widgets plus the total count.
func (s *WidgetService) ListPage(ctx context.Context, page, pageSize int) ([]domain.Widget, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	total, err := mongodb.CountWidgets(ctx, s.DB)
	if err != nil {
		return nil, 0, err
	}
	items, err := mongodb.ListWidgetsPage(ctx, s.DB, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Update renames a widget and replaces its description.
func (s *WidgetService) Update(ctx context.Context, id, name, description string) (*domain.Widget, error) {
	name = strings.TrimSpace(name)
	if err := validateName(name); err != nil {
		return nil, err
	}
	oid, err := mongodb.ParseObjectID("_id", id)
	if err != nil {
		return nil, err
	}
	w, err := mongodb.UpdateWidget(ctx, s.DB, oid, name, strings.TrimSpace(description))
	if errors.Is(err, mongodb.ErrNotFound) {
		return nil, ErrWidgetNotFound
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

// Delete removes a widget.
func (s *WidgetService) Delete(ctx context.Context, id string) error {
	oid, err := mongodb.ParseObjectID("_id", id)
	if err != nil {
		return err
	}
	if err := mongodb.DeleteWidget(ctx, s.DB, oid); err != nil {
		if errors.Is(err, mongodb.ErrNotFound) {
			return ErrWidgetNotFound
		}
		return err
	}
	return nil
}

// Publish enqueues a publish job for the widget. The status transition itself
// happens asynchronously in the queue worker; Publish only validates the
// widget and hands off. Queue failures surface as taxonomy errors (504 on
// enqueue deadline, 503 otherwise) and pass through unchanged.
func (s *WidgetService) Publish(ctx context.Context, id string) (*domain.Job, error) {
	w, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if w.Status == domain.WidgetStatusPublished {
		return nil, ErrAlreadyPublished
	}

	job := queue.NewJob(domain.JobTypePublishWidget, map[string]string{
		"widget_id": w.ID.Hex(),
	})
	if err := s.Jobs.Enqueue(ctx, job); err != nil {
		return nil, err
	}
	return &job, nil
}

// PublishHandler returns the queue handler that completes a publish job by
// flipping the widget status. Wire it into the worker at boot:
//
//	worker.Handle(domain.JobTypePublishWidget, svc.PublishHandler())
func (s *WidgetService) PublishHandler() queue.Handler {
	return func(ctx context.Context, job domain.Job) error {
		oid, err := mongodb.ParseObjectID("_id", job.Payload["widget_id"])
		if err != nil {
			return err
		}
		return mongodb.SetWidgetStatus(ctx, s.DB, oid, domain.WidgetStatusPublished)
	}
}

// validateName rejects empty and over-long widget names.
func validateName(name string) error {
	if name == "" {
		return ErrEmptyName
	}
	if len([]rune(name)) > maxNameRunes {
		return ErrNameTooLong
	}
	return nil
}
