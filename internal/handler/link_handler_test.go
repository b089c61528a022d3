package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/Kosench/go-link-resolver/internal/errors"
	"github.com/Kosench/go-link-resolver/internal/middleware"
	"github.com/Kosench/go-link-resolver/internal/model"
	"github.com/Kosench/go-link-resolver/internal/qrcode"
	"github.com/Kosench/go-link-resolver/internal/repository"
	"github.com/Kosench/go-link-resolver/internal/service"
)

const testUser = "user-1"

// mockLinkService fails every call with err when set.
type mockLinkService struct {
	err error
}

func (m *mockLinkService) CreateShortLink(ctx context.Context, userID string, in model.CreateLinkInput) (*model.Link, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &model.Link{ID: "id-1", UserID: userID, ShortCode: "abc123", OriginalURL: in.OriginalURL, Status: model.StatusActive}, nil
}

func (m *mockLinkService) Resolve(ctx context.Context, shortCode string, meta model.ClickMetadata) (string, error) {
	return "", m.err
}

func (m *mockLinkService) Unlock(ctx context.Context, shortCode, password string, meta model.ClickMetadata) (string, error) {
	return "", m.err
}

func (m *mockLinkService) UpdateLink(ctx context.Context, userID, id string, patch model.LinkPatch) (*model.Link, error) {
	return nil, m.err
}

func (m *mockLinkService) DeleteLink(ctx context.Context, userID, id string) error {
	return m.err
}

func (m *mockLinkService) GetLink(ctx context.Context, userID, id string) (*model.Link, error) {
	return nil, m.err
}

func (m *mockLinkService) ListLinks(ctx context.Context, userID string, limit, offset int) ([]*model.Link, error) {
	return nil, m.err
}

func (m *mockLinkService) ListClicks(ctx context.Context, userID, id string, limit int) ([]model.Click, error) {
	return nil, m.err
}

func (m *mockLinkService) ShortURL(shortCode string) string {
	return "http://localhost:8080/" + shortCode
}

func newTestRouter(links LinkService) *gin.Engine {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(middleware.Identity())
	NewLinkHandler(links, qrcode.NewGenerator(256)).Register(router)
	return router
}

func newServiceRouter(t *testing.T) (*gin.Engine, *service.LinkService) {
	t.Helper()
	svc := service.NewLinkService(repository.NewMemoryLinkRepository(), nil, service.Options{BaseURL: "http://localhost:8080"})
	return newTestRouter(svc), svc
}

func doRequest(router http.Handler, method, path string, body interface{}, userID string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		_ = json.NewEncoder(&buf).Encode(b)
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(middleware.UserIDHeader, userID)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), dest); err != nil {
		t.Fatalf("Failed to unmarshal response %q: %v", w.Body.String(), err)
	}
}

func TestLinkHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedError  string
	}{
		{"validation", apperrors.NewValidationError("url", "invalid URL"), http.StatusBadRequest, "validation_error"},
		{"conflict", apperrors.NewConflictError("promo"), http.StatusConflict, "conflict"},
		{"wrapped not found", fmt.Errorf("lookup: %w", apperrors.ErrLinkNotFound), http.StatusNotFound, "not_found"},
		{"store unavailable", apperrors.NewStoreUnavailableError("find link", errors.New("dial tcp")), http.StatusServiceUnavailable, "store_unavailable"},
		{"password required", apperrors.ErrPasswordRequired, http.StatusUnauthorized, "password_required"},
		{"invalid password", apperrors.ErrInvalidPassword, http.StatusUnauthorized, "invalid_password"},
		{"business", apperrors.NewBusinessError("CODE_GEN", "failed to generate code", nil), http.StatusInternalServerError, "business_error"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(&mockLinkService{err: tt.err})

			w := doRequest(router, http.MethodGet, "/abc123", nil, "")
			if w.Code != tt.expectedStatus {
				t.Errorf("RedirectLink() status = %d, want %d", w.Code, tt.expectedStatus)
			}

			var response map[string]interface{}
			decode(t, w, &response)
			if response["error"] != tt.expectedError {
				t.Errorf("RedirectLink() error = %v, want %s", response["error"], tt.expectedError)
			}
		})
	}
}

func TestLinkHandler_CreateLink(t *testing.T) {
	tests := []struct {
		name           string
		requestBody    interface{}
		userID         string
		expectedStatus int
		expectedFields []string
	}{
		{
			name:           "valid request",
			requestBody:    map[string]string{"url": "https://example.com"},
			userID:         testUser,
			expectedStatus: http.StatusCreated,
			expectedFields: []string{"id", "short_code", "original_url", "short_url", "status"},
		},
		{
			name:           "invalid JSON",
			requestBody:    "invalid json",
			userID:         testUser,
			expectedStatus: http.StatusBadRequest,
			expectedFields: []string{"error", "message"},
		},
		{
			name:           "missing url",
			requestBody:    map[string]string{"title": "x"},
			userID:         testUser,
			expectedStatus: http.StatusBadRequest,
			expectedFields: []string{"error", "message", "field"},
		},
		{
			name:           "bad alias rejected by binding",
			requestBody:    map[string]string{"url": "https://example.com", "custom_alias": "a/b/c"},
			userID:         testUser,
			expectedStatus: http.StatusBadRequest,
			expectedFields: []string{"error", "message", "field"},
		},
		{
			name:           "missing user",
			requestBody:    map[string]string{"url": "https://example.com"},
			expectedStatus: http.StatusUnauthorized,
			expectedFields: []string{"error", "message"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(&mockLinkService{})

			w := doRequest(router, http.MethodPost, "/api/links", tt.requestBody, tt.userID)
			if w.Code != tt.expectedStatus {
				t.Errorf("CreateLink() status = %d, want %d, body %s", w.Code, tt.expectedStatus, w.Body.String())
			}

			var response map[string]interface{}
			decode(t, w, &response)
			for _, field := range tt.expectedFields {
				if _, exists := response[field]; !exists {
					t.Errorf("CreateLink() response missing field: %s", field)
				}
			}
		})
	}
}

func TestLinkHandler_BindingFieldNames(t *testing.T) {
	router := newTestRouter(&mockLinkService{})

	w := doRequest(router, http.MethodPost, "/api/links", map[string]string{"url": "https://x.com", "custom_alias": "a b"}, testUser)

	var response map[string]string
	decode(t, w, &response)
	if response["field"] != "custom_alias" {
		t.Errorf("CreateLink() field = %s, want custom_alias", response["field"])
	}
}

func TestLinkHandler_Lifecycle(t *testing.T) {
	router, _ := newServiceRouter(t)

	w := doRequest(router, http.MethodPost, "/api/links", map[string]string{
		"url":          "https://example.com/a/b/c",
		"custom_alias": "my-page",
	}, testUser)
	if w.Code != http.StatusCreated {
		t.Fatalf("CreateLink() status = %d, body %s", w.Code, w.Body.String())
	}

	var created model.LinkResponse
	decode(t, w, &created)
	if created.ShortCode != "my-page" || created.ShortURL != "http://localhost:8080/my-page" {
		t.Errorf("CreateLink() = %+v", created)
	}

	t.Run("duplicate alias", func(t *testing.T) {
		w := doRequest(router, http.MethodPost, "/api/links", map[string]string{
			"url":          "https://other.example",
			"custom_alias": "my-page",
		}, testUser)
		if w.Code != http.StatusConflict {
			t.Errorf("CreateLink() status = %d, want %d", w.Code, http.StatusConflict)
		}
	})

	t.Run("redirect", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/my-page", nil, "")
		if w.Code != http.StatusFound {
			t.Errorf("RedirectLink() status = %d, want %d", w.Code, http.StatusFound)
		}
		if location := w.Header().Get("Location"); location != "https://example.com/a/b/c" {
			t.Errorf("RedirectLink() Location = %s", location)
		}
	})

	t.Run("resolve JSON", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/resolve/my-page", nil, "")

		var response model.ResolveResponse
		decode(t, w, &response)
		if response.OriginalURL != "https://example.com/a/b/c" {
			t.Errorf("ResolveLink() = %+v", response)
		}
	})

	t.Run("get", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/links/"+created.ID, nil, testUser)
		if w.Code != http.StatusOK {
			t.Errorf("GetLink() status = %d, want %d", w.Code, http.StatusOK)
		}

		if w := doRequest(router, http.MethodGet, "/api/links/"+created.ID, nil, "intruder"); w.Code != http.StatusNotFound {
			t.Errorf("GetLink() by other user status = %d, want %d", w.Code, http.StatusNotFound)
		}
	})

	t.Run("list", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/links?limit=500", nil, testUser)

		var response model.LinkListResponse
		decode(t, w, &response)
		if len(response.Links) != 1 || response.Limit != 100 {
			t.Errorf("ListLinks() = %+v", response)
		}

		if w := doRequest(router, http.MethodGet, "/api/links?limit=ten", nil, testUser); w.Code != http.StatusBadRequest {
			t.Errorf("ListLinks() bad limit status = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("qr", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/links/"+created.ID+"/qr?size=128", nil, testUser)
		if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/png" {
			t.Errorf("QRCode() status = %d, content type %s", w.Code, w.Header().Get("Content-Type"))
		}

		if w := doRequest(router, http.MethodGet, "/api/links/"+created.ID+"/qr?size=5000", nil, testUser); w.Code != http.StatusBadRequest {
			t.Errorf("QRCode() oversize status = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("disable and re-enable", func(t *testing.T) {
		w := doRequest(router, http.MethodPatch, "/api/links/"+created.ID, map[string]string{"status": "disabled"}, testUser)
		if w.Code != http.StatusOK {
			t.Fatalf("UpdateLink() status = %d, body %s", w.Code, w.Body.String())
		}

		if w := doRequest(router, http.MethodGet, "/my-page", nil, ""); w.Code != http.StatusNotFound {
			t.Errorf("RedirectLink() disabled status = %d, want %d", w.Code, http.StatusNotFound)
		}

		if w := doRequest(router, http.MethodPatch, "/api/links/"+created.ID, map[string]string{"status": "paused"}, testUser); w.Code != http.StatusBadRequest {
			t.Errorf("UpdateLink() bad status = %d, want %d", w.Code, http.StatusBadRequest)
		}

		doRequest(router, http.MethodPatch, "/api/links/"+created.ID, map[string]string{"status": "active"}, testUser)
		if w := doRequest(router, http.MethodGet, "/my-page", nil, ""); w.Code != http.StatusFound {
			t.Errorf("RedirectLink() re-enabled status = %d, want %d", w.Code, http.StatusFound)
		}
	})

	t.Run("delete", func(t *testing.T) {
		if w := doRequest(router, http.MethodDelete, "/api/links/"+created.ID, nil, testUser); w.Code != http.StatusNoContent {
			t.Errorf("DeleteLink() status = %d, want %d", w.Code, http.StatusNoContent)
		}
		if w := doRequest(router, http.MethodGet, "/my-page", nil, ""); w.Code != http.StatusNotFound {
			t.Errorf("RedirectLink() after delete status = %d, want %d", w.Code, http.StatusNotFound)
		}
		if w := doRequest(router, http.MethodDelete, "/api/links/"+created.ID, nil, testUser); w.Code != http.StatusNotFound {
			t.Errorf("second DeleteLink() status = %d, want %d", w.Code, http.StatusNotFound)
		}
	})
}

func TestLinkHandler_ExpiredLink(t *testing.T) {
	router, _ := newServiceRouter(t)

	expiresAt := time.Now().Add(300 * time.Millisecond).UTC()
	w := doRequest(router, http.MethodPost, "/api/links", map[string]interface{}{
		"url":          "https://example.com",
		"custom_alias": "short-lived",
		"expires_at":   expiresAt,
	}, testUser)
	if w.Code != http.StatusCreated {
		t.Fatalf("CreateLink() status = %d, body %s", w.Code, w.Body.String())
	}

	time.Sleep(400 * time.Millisecond)

	if w := doRequest(router, http.MethodGet, "/short-lived", nil, ""); w.Code != http.StatusNotFound {
		t.Errorf("RedirectLink() expired status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestLinkHandler_PasswordFlow(t *testing.T) {
	router, _ := newServiceRouter(t)

	doRequest(router, http.MethodPost, "/api/links", map[string]string{
		"url":          "https://secret.example",
		"custom_alias": "locked",
		"password":     "hunter22",
	}, testUser)

	if w := doRequest(router, http.MethodGet, "/locked", nil, ""); w.Code != http.StatusUnauthorized {
		t.Errorf("RedirectLink() protected status = %d, want %d", w.Code, http.StatusUnauthorized)
	}

	if w := doRequest(router, http.MethodPost, "/locked/unlock", map[string]string{"password": "nope-nope"}, ""); w.Code != http.StatusUnauthorized {
		t.Errorf("UnlockLink() wrong password status = %d, want %d", w.Code, http.StatusUnauthorized)
	}

	w := doRequest(router, http.MethodPost, "/locked/unlock", map[string]string{"password": "hunter22"}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("UnlockLink() status = %d, body %s", w.Code, w.Body.String())
	}

	var response model.ResolveResponse
	decode(t, w, &response)
	if response.OriginalURL != "https://secret.example" {
		t.Errorf("UnlockLink() = %+v", response)
	}
}

func TestHealthHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name           string
		checks         map[string]HealthCheck
		expectedStatus int
		expectedState  string
	}{
		{
			name: "all healthy",
			checks: map[string]HealthCheck{
				"database": func(context.Context) error { return nil },
				"cache":    nil,
			},
			expectedStatus: http.StatusOK,
			expectedState:  "healthy",
		},
		{
			name: "database down",
			checks: map[string]HealthCheck{
				"database": func(context.Context) error { return errors.New("down") },
			},
			expectedStatus: http.StatusServiceUnavailable,
			expectedState:  "degraded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			NewHealthHandler(tt.checks, gin.H{"service": "link-resolver"}).Register(router)

			w := doRequest(router, http.MethodGet, "/health", nil, "")
			if w.Code != tt.expectedStatus {
				t.Errorf("Health() status = %d, want %d", w.Code, tt.expectedStatus)
			}

			var response map[string]interface{}
			decode(t, w, &response)
			if response["status"] != tt.expectedState {
				t.Errorf("Health() status field = %v, want %s", response["status"], tt.expectedState)
			}

			w = doRequest(router, http.MethodGet, "/info", nil, "")
			decode(t, w, &response)
			if response["service"] != "link-resolver" || response["uptime"] == nil {
				t.Errorf("Info() = %v", response)
			}
		})
	}
}
