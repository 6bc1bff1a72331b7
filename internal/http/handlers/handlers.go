package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/fieldserve/backend/internal/db"
	"github.com/fieldserve/backend/internal/dispatch"
	"github.com/fieldserve/backend/internal/geocode"
	"github.com/fieldserve/backend/internal/metrics"
	"github.com/fieldserve/backend/internal/models"
)

type Handler struct {
	Store          *db.Store
	Batch          *dispatch.BatchService
	Geocoder       geocode.Geocoder
	Metrics        *metrics.Recorder
	Validator      *validator.Validate
	Logger         zerolog.Logger
	AdminKey       string
	CountryDefault string
}

const actorAuto = "auto-dispatch"

func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := h.Store.Ping(ctx); err != nil {
		writeError(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "Database unavailable", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// @Summary Dispatch one job
// @Description Runs eligibility, scoring, and ranking for a job and assigns the top candidate unless dry_run is set
// @Tags dispatch
// @Produce json
// @Param id path string true "Job ID"
// @Param dry_run query bool false "Skip persistence"
// @Success 200 {object} models.DispatchRecommendation
// @Failure 404 {object} map[string]any
// @Failure 409 {object} map[string]any
// @Router /api/jobs/{id}/dispatch [post]
func (h *Handler) DispatchJob(c *gin.Context) {
	jobID := c.Param("id")
	job, err := h.Store.GetJob(c.Request.Context(), jobID)
	if err != nil {
		h.writeStoreError(c, err)
		return
	}

	techs, err := h.Store.ListAvailableTechnicians(c.Request.Context(), job.TenantID)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to load technicians", err.Error())
		return
	}

	rec := dispatch.Dispatch(job, techs)
	if h.Metrics != nil {
		h.Metrics.RecordRecommendation(rec)
	}

	dryRun := isTrue(c.Query("dry_run"))
	if !dryRun && !rec.RequiresManualDispatch && rec.AssignedTech != nil {
		snapshot, _ := json.Marshal(rec)
		err := h.Store.AssignJob(c.Request.Context(), db.AssignParams{
			JobID:    job.ID,
			TechID:   rec.AssignedTech.TechID,
			Actor:    actorAuto,
			Snapshot: snapshot,
		})
		if err != nil {
			h.writeStoreError(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, rec)
}

type previewRequest struct {
	TenantID string `json:"tenant_id" validate:"required"`
}

// PreviewDispatch maps the single-job pipeline over all unassigned jobs of a
// tenant without decrementing capacity or persisting anything.
func (h *Handler) PreviewDispatch(c *gin.Context) {
	var req previewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}

	jobs, err := h.Store.ListUnassignedJobs(c.Request.Context(), req.TenantID)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to load jobs", err.Error())
		return
	}
	techs, err := h.Store.ListAvailableTechnicians(c.Request.Context(), req.TenantID)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to load technicians", err.Error())
		return
	}

	recs := dispatch.PreviewBatch(jobs, techs)
	c.JSON(http.StatusOK, gin.H{
		"recommendations": recs,
		"stats":           dispatch.GetDispatchStats(recs, -1),
	})
}

type batchRequest struct {
	TenantID string `json:"tenant_id" validate:"required"`
	Persist  bool   `json:"persist"`
}

// @Summary Capacity-aware batch dispatch
// @Tags dispatch
// @Accept json
// @Produce json
// @Success 200 {object} map[string]any
// @Router /api/dispatch/batch [post]
func (h *Handler) BatchDispatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}

	result, err := h.Batch.Run(c.Request.Context(), req.TenantID)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "BATCH_ERROR", "Batch dispatch failed", err.Error())
		return
	}
	if h.Metrics != nil {
		h.Metrics.RecordBatch(result)
	}

	// The in-memory ledger only guards this run; each assignment is still
	// persisted through the race-safe transaction, and losers surface here.
	var persistErrors []gin.H
	if req.Persist {
		for _, a := range result.Assignments {
			snapshot, _ := json.Marshal(a)
			err := h.Store.AssignJob(c.Request.Context(), db.AssignParams{
				JobID:    a.JobID,
				TechID:   a.TechID,
				Actor:    "batch-dispatch",
				Snapshot: snapshot,
			})
			if err != nil {
				h.Logger.Warn().Err(err).Str("job_id", a.JobID).Msg("batch assignment not persisted")
				persistErrors = append(persistErrors, gin.H{"job_id": a.JobID, "error": err.Error()})
			}
		}
	}

	resp := gin.H{"result": result}
	if req.Persist {
		resp["persist_errors"] = persistErrors
	}
	c.JSON(http.StatusOK, resp)
}

type overrideRequest struct {
	TechID string `json:"tech_id" validate:"required"`
	Reason string `json:"reason" validate:"required"`
	Actor  string `json:"actor" validate:"required"`
}

// OverrideAssign lets a dispatcher pick one of the top recommended
// candidates instead of the auto-selected technician. The recommendation is
// recomputed server-side so the candidate list reflects the current roster.
func (h *Handler) OverrideAssign(c *gin.Context) {
	var req overrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}

	jobID := c.Param("id")
	job, err := h.Store.GetJob(c.Request.Context(), jobID)
	if err != nil {
		h.writeStoreError(c, err)
		return
	}
	techs, err := h.Store.ListAvailableTechnicians(c.Request.Context(), job.TenantID)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to load technicians", err.Error())
		return
	}

	rec := dispatch.Dispatch(job, techs)
	overridden, err := dispatch.OverrideAssignment(rec, req.TechID, req.Reason, req.Actor)
	if err != nil {
		writeError(c, http.StatusUnprocessableEntity, "INVALID_OVERRIDE", err.Error(), nil)
		return
	}

	snapshot, _ := json.Marshal(overridden)
	err = h.Store.AssignJob(c.Request.Context(), db.AssignParams{
		JobID:      job.ID,
		TechID:     req.TechID,
		Actor:      req.Actor,
		IsOverride: true,
		Reason:     req.Reason,
		Snapshot:   snapshot,
	})
	if err != nil {
		h.writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, overridden)
}

type completeRequest struct {
	Notes           string `json:"notes"`
	DurationMinutes int    `json:"duration_minutes" validate:"gte=0"`
	FirstTimeFix    bool   `json:"first_time_fix"`
	Rating          int    `json:"rating" validate:"gte=0,lte=5"`
}

func (h *Handler) CompleteJob(c *gin.Context) {
	var req completeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
			return
		}
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}

	err := h.Store.CompleteJob(c.Request.Context(), db.CompleteParams{
		JobID:           c.Param("id"),
		Notes:           req.Notes,
		DurationMinutes: req.DurationMinutes,
		FirstTimeFix:    req.FirstTimeFix,
		Rating:          req.Rating,
	})
	if err != nil {
		h.writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": models.JobStatusCompleted})
}

func (h *Handler) StartJob(c *gin.Context) {
	if err := h.Store.StartJob(c.Request.Context(), c.Param("id")); err != nil {
		h.writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": models.JobStatusInProgress})
}

func (h *Handler) UnassignJob(c *gin.Context) {
	if err := h.Store.UnassignJob(c.Request.Context(), c.Param("id")); err != nil {
		h.writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": models.JobStatusUnassigned})
}

func (h *Handler) JobsList(c *gin.Context) {
	tenantID := c.Query("tenant_id")
	status := strings.ToLower(strings.TrimSpace(c.Query("status")))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	items, err := h.Store.ListJobs(c.Request.Context(), tenantID, status, limit, offset)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to list jobs", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "limit": limit, "offset": offset})
}

func (h *Handler) JobDetails(c *gin.Context) {
	jobID := c.Param("id")
	job, err := h.Store.GetJob(c.Request.Context(), jobID)
	if err != nil {
		h.writeStoreError(c, err)
		return
	}
	logs, err := h.Store.ListAssignmentLogs(c.Request.Context(), jobID)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to load assignment logs", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": job, "assignment_logs": logs})
}

func (h *Handler) TechniciansList(c *gin.Context) {
	items, err := h.Store.ListTechnicians(c.Request.Context(), c.Query("tenant_id"))
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to list technicians", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) RunsLatest(c *gin.Context) {
	tenantID := c.Query("tenant_id")
	if tenantID == "" {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "tenant_id is required", nil)
		return
	}
	run, err := h.Store.GetLatestRun(c.Request.Context(), tenantID)
	if err != nil {
		writeError(c, http.StatusNotFound, "NOT_FOUND", "No runs found", err.Error())
		return
	}
	c.JSON(http.StatusOK, run)
}

// @Summary Debug eligibility
// @Tags debug
// @Produce json
// @Param job_id query string true "Job ID"
// @Success 200 {object} map[string]any
// @Router /api/debug/eligibility [get]
func (h *Handler) DebugEligibility(c *gin.Context) {
	jobID := strings.TrimSpace(c.Query("job_id"))
	if jobID == "" {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "job_id is required", nil)
		return
	}
	job, err := h.Store.GetJob(c.Request.Context(), jobID)
	if err != nil {
		h.writeStoreError(c, err)
		return
	}
	techs, err := h.Store.ListAvailableTechnicians(c.Request.Context(), job.TenantID)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to load technicians", err.Error())
		return
	}
	filtered := dispatch.FilterEligibleTechnicians(techs, job)
	c.JSON(http.StatusOK, gin.H{
		"job":        job,
		"eligible":   filtered.Eligible,
		"ineligible": filtered.Ineligible,
	})
}

type regeocodeRequest struct {
	TenantID string `json:"tenant_id" validate:"required"`
	Force    bool   `json:"force"`
}

// RegeocodeJobs fills in coordinates for jobs missing them. Geocoding stays
// best-effort: failures leave the job ineligible by distance, never abort
// the request.
func (h *Handler) RegeocodeJobs(c *gin.Context) {
	var req regeocodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}
	if h.Geocoder == nil {
		writeError(c, http.StatusServiceUnavailable, "GEOCODER_UNAVAILABLE", "No geocoder configured", nil)
		return
	}

	jobs, err := h.Store.ListJobs(c.Request.Context(), req.TenantID, "", 200, 0)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to list jobs", err.Error())
		return
	}

	updated := 0
	failed := 0
	for _, job := range jobs {
		if !geocode.ShouldGeocode(job, req.Force) {
			continue
		}
		query := geocode.BuildGeocodeQuery(h.CountryDefault, job.City, job.Address)
		lat, lon, _, _, err := h.Geocoder.Geocode(c.Request.Context(), query)
		if err != nil {
			h.Logger.Warn().Err(err).Str("job_id", job.ID).Msg("geocode failed")
			failed++
			continue
		}
		if err := h.Store.UpdateJobCoordinates(c.Request.Context(), job.ID, lat, lon); err != nil {
			failed++
			continue
		}
		updated++
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated, "failed": failed})
}

func (h *Handler) writeStoreError(c *gin.Context, err error) {
	status, code := mapStoreError(err)
	writeError(c, status, code, err.Error(), nil)
}

// mapStoreError translates persistence sentinels into HTTP statuses.
func mapStoreError(err error) (int, string) {
	switch {
	case errors.Is(err, db.ErrJobNotFound), errors.Is(err, db.ErrTechnicianNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, db.ErrJobAlreadyAssigned):
		return http.StatusConflict, "ALREADY_ASSIGNED"
	case errors.Is(err, db.ErrTechnicianAtCapacity):
		return http.StatusConflict, "AT_CAPACITY"
	case errors.Is(err, db.ErrJobNotAssigned), errors.Is(err, db.ErrJobAlreadyCompleted),
		errors.Is(err, db.ErrJobNotStartable), errors.Is(err, db.ErrJobNotAssignable):
		return http.StatusConflict, "INVALID_STATE"
	default:
		return http.StatusInternalServerError, "DB_ERROR"
	}
}

func writeError(c *gin.Context, status int, code string, message string, details any) {
	payload := gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
	if details != nil {
		payload["error"].(gin.H)["details"] = details
	}
	c.JSON(status, payload)
}

func isTrue(v string) bool {
	return v == "1" || strings.EqualFold(v, "true")
}
