package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/mvasilakos/go-api-starter/internal/apperr"
	"github.com/mvasilakos/go-api-starter/internal/config"
	"github.com/mvasilakos/go-api-starter/internal/domain"
	"github.com/mvasilakos/go-api-starter/internal/http/middleware"
	"github.com/mvasilakos/go-api-starter/internal/services"
	"github.com/mvasilakos/go-api-starter/internal/storage/mongodb"
)

// fakeWidgetService implements WidgetService with per-method overrides.
type fakeWidgetService struct {
	createFn  func(ctx context.Context, name, slug, description string) (*domain.Widget, error)
	getFn     func(ctx context.Context, id string) (*domain.Widget, error)
	listFn    func(ctx context.Context, page, pageSize int) ([]domain.Widget, int64, error)
	updateFn  func(ctx context.Context, id, name, description string) (*domain.Widget, error)
	deleteFn  func(ctx context.Context, id string) error
	publishFn func(ctx context.Context, id string) (*domain.Job, error)
}

func (f *fakeWidgetService) Create(ctx context.Context, name, slug, description string) (*domain.Widget, error) {
	return f.createFn(ctx, name, slug, description)
}
func (f *fakeWidgetService) Get(ctx context.Context, id string) (*domain.Widget, error) {
	return f.getFn(ctx, id)
}
func (f *fakeWidgetService) ListPage(ctx context.Context, page, pageSize int) ([]domain.Widget, int64, error) {
	return f.listFn(ctx, page, pageSize)
}
func (f *fakeWidgetService) Update(ctx context.Context, id, name, description string) (*domain.Widget, error) {
	return f.updateFn(ctx, id, name, description)
}
func (f *fakeWidgetService) Delete(ctx context.Context, id string) error {
	return f.deleteFn(ctx, id)
}
func (f *fakeWidgetService) Publish(ctx context.Context, id string) (*domain.Job, error) {
	return f.publishFn(ctx, id)
}

// newWidgetRouter wires handlers behind the error renderer under /api,
// matching the production route layout.
func newWidgetRouter(svc WidgetService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.ErrorRenderer(middleware.RenderOptions{Env: config.EnvProduction, BasePath: "/api"}))
	h := New(svc)
	api := r.Group("/api")
	api.POST("/widgets", h.CreateWidget)
	api.GET("/widgets", h.ListWidgets)
	api.GET("/widgets/:id", h.GetWidget)
	api.PUT("/widgets/:id", h.UpdateWidget)
	api.DELETE("/widgets/:id", h.DeleteWidget)
	api.POST("/widgets/:id/publish", h.PublishWidget)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	r.ServeHTTP(w, req)

	out := map[string]any{}
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			t.Fatalf("json: %v (body=%q)", err, w.Body.String())
		}
	}
	return w, out
}

func TestCreateWidget_Created(t *testing.T) {
	oid := primitive.NewObjectID()
	r := newWidgetRouter(&fakeWidgetService{
		createFn: func(ctx context.Context, name, slug, description string) (*domain.Widget, error) {
			if name != "Anvil" || slug != "anvil" {
				t.Fatalf("args: %q %q", name, slug)
			}
			return &domain.Widget{ID: oid, Name: name, Slug: slug, Status: domain.WidgetStatusDraft}, nil
		},
	})

	w, body := doJSON(t, r, http.MethodPost, "/api/widgets", `{"name":"Anvil","slug":"anvil"}`)

	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if body["id"] != oid.Hex() || body["status"] != string(domain.WidgetStatusDraft) {
		t.Fatalf("body: %+v", body)
	}
}

func TestCreateWidget_MissingFieldsRenderValidationShape(t *testing.T) {
	r := newWidgetRouter(&fakeWidgetService{
		createFn: func(ctx context.Context, name, slug, description string) (*domain.Widget, error) {
			t.Fatalf("service must not be called")
			return nil, nil
		},
	})

	w, body := doJSON(t, r, http.MethodPost, "/api/widgets", `{}`)

	// Named-field binding failures keep the validation shape's 500.
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", w.Code)
	}
	msg := body["message"].(string)
	if !strings.Contains(msg, "Name") || !strings.Contains(msg, "Slug") {
		t.Fatalf("message=%q", msg)
	}
}

func TestCreateWidget_MalformedJSONIs400(t *testing.T) {
	r := newWidgetRouter(&fakeWidgetService{})

	w, body := doJSON(t, r, http.MethodPost, "/api/widgets", `{"name":`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
	if body["message"] != "Invalid JSON body" {
		t.Fatalf("message=%v", body["message"])
	}
}

func TestCreateWidget_DuplicateSlugIs400(t *testing.T) {
	dup := mongo.WriteException{WriteErrors: []mongo.WriteError{{
		Code:    11000,
		Message: `E11000 duplicate key error collection: starter.widgets index: slug_1 dup key: { slug: "anvil" }`,
	}}}
	r := newWidgetRouter(&fakeWidgetService{
		createFn: func(ctx context.Context, name, slug, description string) (*domain.Widget, error) {
			return nil, dup
		},
	})

	w, body := doJSON(t, r, http.MethodPost, "/api/widgets", `{"name":"Anvil","slug":"anvil"}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
	msg := body["message"].(string)
	if !strings.Contains(msg, "slug") || !strings.Contains(msg, "unique") {
		t.Fatalf("message=%q", msg)
	}
}

func TestGetWidget_SentinelBecomes404(t *testing.T) {
	r := newWidgetRouter(&fakeWidgetService{
		getFn: func(ctx context.Context, id string) (*domain.Widget, error) {
			return nil, services.ErrWidgetNotFound
		},
	})

	w, body := doJSON(t, r, http.MethodGet, "/api/widgets/"+primitive.NewObjectID().Hex(), "")

	if w.Code != http.StatusNotFound {
		t.Fatalf("status=%d", w.Code)
	}
	if body["message"] != "Widget not found" {
		t.Fatalf("message=%v", body["message"])
	}
	// Taxonomy responses strip the API prefix.
	if !strings.HasPrefix(body["path"].(string), "/widgets/") {
		t.Fatalf("path=%v", body["path"])
	}
}

func TestGetWidget_MalformedIDIs400CastShape(t *testing.T) {
	r := newWidgetRouter(&fakeWidgetService{
		getFn: func(ctx context.Context, id string) (*domain.Widget, error) {
			return nil, &mongodb.CastError{Path: "_id", Value: id}
		},
	})

	w, body := doJSON(t, r, http.MethodGet, "/api/widgets/999", "")

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
	if body["message"] != "Invalid _id: 999" {
		t.Fatalf("message=%v", body["message"])
	}
}

func TestListWidgets_PaginationClampedAndEchoed(t *testing.T) {
	var gotPage, gotSize int
	r := newWidgetRouter(&fakeWidgetService{
		listFn: func(ctx context.Context, page, pageSize int) ([]domain.Widget, int64, error) {
			gotPage, gotSize = page, pageSize
			return nil, 42, nil
		},
	})

	w, body := doJSON(t, r, http.MethodGet, "/api/widgets?page=0&page_size=1000", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if gotPage != 1 || gotSize != 100 {
		t.Fatalf("clamped to page=%d size=%d", gotPage, gotSize)
	}
	pg := body["pagination"].(map[string]any)
	if int(pg["total"].(float64)) != 42 || pg["has_next"] != false {
		t.Fatalf("pagination: %+v", pg)
	}
	// nil service result must serialize as [], not null.
	if _, ok := body["widgets"].([]any); !ok {
		t.Fatalf("widgets=%v", body["widgets"])
	}
}

func TestUpdateWidget_EmptyNameIs400(t *testing.T) {
	r := newWidgetRouter(&fakeWidgetService{
		updateFn: func(ctx context.Context, id, name, description string) (*domain.Widget, error) {
			return nil, services.ErrEmptyName
		},
	})

	w, body := doJSON(t, r, http.MethodPut, "/api/widgets/abc", `{"name":"  "}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
	if body["message"] != services.ErrEmptyName.Error() {
		t.Fatalf("message=%v", body["message"])
	}
}

func TestDeleteWidget_NoContent(t *testing.T) {
	r := newWidgetRouter(&fakeWidgetService{
		deleteFn: func(ctx context.Context, id string) error { return nil },
	})

	w, _ := doJSON(t, r, http.MethodDelete, "/api/widgets/"+primitive.NewObjectID().Hex(), "")

	if w.Code != http.StatusNoContent {
		t.Fatalf("status=%d", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Fatalf("body=%q", w.Body.String())
	}
}

func TestPublishWidget_Accepted(t *testing.T) {
	oid := primitive.NewObjectID()
	r := newWidgetRouter(&fakeWidgetService{
		publishFn: func(ctx context.Context, id string) (*domain.Job, error) {
			return &domain.Job{
				ID:      "job-1",
				Type:    domain.JobTypePublishWidget,
				Payload: map[string]string{"widget_id": oid.Hex()},
			}, nil
		},
	})

	w, body := doJSON(t, r, http.MethodPost, "/api/widgets/"+oid.Hex()+"/publish", "")

	if w.Code != http.StatusAccepted {
		t.Fatalf("status=%d", w.Code)
	}
	if body["job_id"] != "job-1" || body["widget_id"] != oid.Hex() || body["status"] != "queued" {
		t.Fatalf("body: %+v", body)
	}
}

func TestPublishWidget_AlreadyPublishedIs409(t *testing.T) {
	r := newWidgetRouter(&fakeWidgetService{
		publishFn: func(ctx context.Context, id string) (*domain.Job, error) {
			return nil, services.ErrAlreadyPublished
		},
	})

	w, body := doJSON(t, r, http.MethodPost, "/api/widgets/abc/publish", "")

	if w.Code != http.StatusConflict {
		t.Fatalf("status=%d", w.Code)
	}
	if body["message"] != "Widget is already published" {
		t.Fatalf("message=%v", body["message"])
	}
}

func TestPublishWidget_QueueTimeoutIs504(t *testing.T) {
	r := newWidgetRouter(&fakeWidgetService{
		publishFn: func(ctx context.Context, id string) (*domain.Job, error) {
			return nil, apperr.QueueTimeout("").WithCause(errors.New("redis: enqueue deadline exceeded"))
		},
	})

	w, body := doJSON(t, r, http.MethodPost, "/api/widgets/abc/publish", "")

	if w.Code != http.StatusGatewayTimeout {
		t.Fatalf("status=%d", w.Code)
	}
	if body["message"] != "Gateway Timeout" {
		t.Fatalf("message=%v", body["message"])
	}
}
