package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/fieldserve/backend/internal/db"
)

func testHandler() *Handler {
	return &Handler{
		Validator: validator.New(),
		Logger:    zerolog.Nop(),
	}
}

func performJSON(t *testing.T, router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeErrorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error payload: %v (body: %s)", err, w.Body.String())
	}
	return payload.Error.Code
}

func TestMapStoreError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{db.ErrJobNotFound, http.StatusNotFound, "NOT_FOUND"},
		{db.ErrTechnicianNotFound, http.StatusNotFound, "NOT_FOUND"},
		{db.ErrJobAlreadyAssigned, http.StatusConflict, "ALREADY_ASSIGNED"},
		{db.ErrTechnicianAtCapacity, http.StatusConflict, "AT_CAPACITY"},
		{db.ErrJobNotAssigned, http.StatusConflict, "INVALID_STATE"},
		{db.ErrJobAlreadyCompleted, http.StatusConflict, "INVALID_STATE"},
		{db.ErrJobNotStartable, http.StatusConflict, "INVALID_STATE"},
		{db.ErrJobNotAssignable, http.StatusConflict, "INVALID_STATE"},
		{errors.New("connection reset"), http.StatusInternalServerError, "DB_ERROR"},
	}
	for _, tc := range cases {
		status, code := mapStoreError(tc.err)
		if status != tc.status || code != tc.code {
			t.Fatalf("mapStoreError(%v) = %d/%s, want %d/%s", tc.err, status, code, tc.status, tc.code)
		}
	}
}

func TestBatchDispatchRejectsMissingTenant(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	h := testHandler()
	router.POST("/api/dispatch/batch", h.BatchDispatch)

	w := performJSON(t, router, http.MethodPost, "/api/dispatch/batch", `{"persist": true}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if code := decodeErrorCode(t, w); code != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR, got %s", code)
	}
}

func TestBatchDispatchRejectsMalformedBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	h := testHandler()
	router.POST("/api/dispatch/batch", h.BatchDispatch)

	w := performJSON(t, router, http.MethodPost, "/api/dispatch/batch", `{not json`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if code := decodeErrorCode(t, w); code != "INVALID_REQUEST" {
		t.Fatalf("expected INVALID_REQUEST, got %s", code)
	}
}

func TestOverrideAssignValidation(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	h := testHandler()
	router.POST("/api/jobs/:id/override", h.OverrideAssign)

	// Missing reason and actor must fail before any lookup happens.
	w := performJSON(t, router, http.MethodPost, "/api/jobs/job-1/override", `{"tech_id": "tech-9"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if code := decodeErrorCode(t, w); code != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR, got %s", code)
	}
}

func TestCompleteJobRejectsBadRating(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	h := testHandler()
	router.POST("/api/jobs/:id/complete", h.CompleteJob)

	w := performJSON(t, router, http.MethodPost, "/api/jobs/job-1/complete", `{"rating": 9}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if code := decodeErrorCode(t, w); code != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR, got %s", code)
	}
}

func TestRunsLatestRequiresTenant(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	h := testHandler()
	router.GET("/api/runs/latest", h.RunsLatest)

	req := httptest.NewRequest(http.MethodGet, "/api/runs/latest", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestDebugEligibilityRequiresJobID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	h := testHandler()
	router.GET("/api/debug/eligibility", h.DebugEligibility)

	req := httptest.NewRequest(http.MethodGet, "/api/debug/eligibility", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestRegeocodeRequiresGeocoder(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	h := testHandler() // Geocoder deliberately nil
	router.POST("/api/jobs/regeocode", h.RegeocodeJobs)

	w := performJSON(t, router, http.MethodPost, "/api/jobs/regeocode", `{"tenant_id": "t1"}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	if code := decodeErrorCode(t, w); code != "GEOCODER_UNAVAILABLE" {
		t.Fatalf("expected GEOCODER_UNAVAILABLE, got %s", code)
	}
}

func TestIsTrue(t *testing.T) {
	for _, v := range []string{"1", "true", "TRUE", "True"} {
		if !isTrue(v) {
			t.Fatalf("expected %q to be true", v)
		}
	}
	for _, v := range []string{"", "0", "false", "yes"} {
		if isTrue(v) {
			t.Fatalf("expected %q to be false", v)
		}
	}
}
