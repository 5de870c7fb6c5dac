package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"

	"github.com/cppla/imgdrop/config"
	"github.com/cppla/imgdrop/middleware"
	"github.com/cppla/imgdrop/repositories"
	"github.com/cppla/imgdrop/services"
	"github.com/cppla/imgdrop/storage"
)

type zeroTotals struct{}

func (zeroTotals) Totals(_ context.Context, _ time.Time) repositories.Totals {
	return repositories.Totals{}
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	cfg := config.AppConfig{
		GinMode:              "test",
		GinPath:              filepath.Join(t.TempDir(), "gin.log"),
		AllowedOrigins:       []string{"*"},
		MaxUploadBytes:       1024,
		AllowedExt:           []string{"png"},
		AllowedMIME:          []string{"image/png"},
		UploadBurstPerMinute: 1,
	}
	validator := services.NewValidator(cfg.MaxUploadBytes, cfg.AllowedExt, cfg.AllowedMIME)
	// requests in this file never get past validation, so no metadata store is needed
	uploads := services.NewUploadService(nil, storage.NewPlacer(afero.NewMemMapFs()), validator,
		services.NewLimiter(nil, 20, 50_000_000, time.Hour), nil, "img")
	return SetupRouter(cfg, Deps{Uploads: uploads, Totals: zeroTotals{}})
}

func TestSetupRouter_Health(t *testing.T) {
	r := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"code":0,"message":"success","data":{"status":"ok"}}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestSetupRouter_Metrics(t *testing.T) {
	r := newTestRouter(t)

	stats := httptest.NewRecorder()
	r.ServeHTTP(stats, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	assert.Equal(t, http.StatusOK, stats.Code)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "imgdrop_")
}

func TestSetupRouter_NoRoute(t *testing.T) {
	r := newTestRouter(t)

	api := httptest.NewRecorder()
	r.ServeHTTP(api, httptest.NewRequest(http.MethodGet, "/api/nope", nil))
	assert.Equal(t, http.StatusNotFound, api.Code)
	assert.Contains(t, api.Body.String(), "api route not found")

	page := httptest.NewRecorder()
	r.ServeHTTP(page, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, page.Code)
}

func TestSetupRouter_UploadThrottled(t *testing.T) {
	r := newTestRouter(t)

	first := httptest.NewRecorder()
	r.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/api/images", nil))
	assert.Equal(t, http.StatusBadRequest, first.Code)

	second := httptest.NewRecorder()
	r.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/api/images", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Contains(t, second.Body.String(), `"code":`+strconv.Itoa(middleware.CodeTooManyRequests))
}
