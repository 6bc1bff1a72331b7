package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/fieldserve/backend/internal/db"
	"github.com/fieldserve/backend/internal/drivetime"
	"github.com/fieldserve/backend/internal/geo"
	"github.com/fieldserve/backend/internal/models"
)

const (
	// MinAcceptScore is the lowest total score a top candidate may have and
	// still be auto-assigned in a batch run.
	MinAcceptScore = 20.0

	reasonNoCapacityOrLocation = "no technicians with capacity/location"
)

// RunBatch performs priority-ordered greedy assignment of many jobs against
// one roster. The capacity ledger is local to this invocation and only
// prevents over-assignment within the run; cross-process race safety belongs
// to the persistence layer. RunBatch itself writes nothing.
func RunBatch(ctx context.Context, jobs []models.Job, techs []models.Technician, est drivetime.Estimator) models.BatchResult {
	start := time.Now()
	result := models.BatchResult{
		Assignments: []models.BatchAssignment{},
		Unassigned:  []models.UnassignedJob{},
	}

	remaining := make(map[string]int, len(techs))
	techByID := make(map[string]models.Technician, len(techs))
	for _, t := range techs {
		maxJobs := t.MaxConcurrentJobs
		if maxJobs <= 0 {
			maxJobs = defaultMaxConcurrentJobs
		}
		spare := maxJobs - t.CurrentJobsCount
		if spare < 0 {
			spare = 0
		}
		remaining[t.ID] = spare
		techByID[t.ID] = t
	}

	for _, job := range SortJobsByPriority(jobs) {
		candidates := make([]models.Technician, 0, len(techs))
		for _, t := range techs {
			if remaining[t.ID] <= 0 {
				continue
			}
			if t.Lat == nil || t.Lon == nil || !geo.ValidCoordinates(*t.Lat, *t.Lon) {
				continue
			}
			candidates = append(candidates, t)
		}
		if len(candidates) == 0 {
			result.Unassigned = append(result.Unassigned, models.UnassignedJob{
				JobID:  job.ID,
				Reason: reasonNoCapacityOrLocation,
			})
			continue
		}

		filtered := FilterEligibleTechnicians(candidates, job)
		scores := ScoreAllTechnicians(filtered.Eligible, job)
		if len(scores) == 0 {
			result.Unassigned = append(result.Unassigned, models.UnassignedJob{
				JobID:  job.ID,
				Reason: ReasonNoEligibleTechnicians,
			})
			continue
		}

		ranked := RankTechnicians(scores, DefaultTieThreshold)
		top := ranked[0]
		if top.TotalScore < MinAcceptScore {
			result.Unassigned = append(result.Unassigned, models.UnassignedJob{
				JobID:  job.ID,
				Reason: fmt.Sprintf("best candidate score %.2f below minimum %.0f", top.TotalScore, MinAcceptScore),
			})
			continue
		}

		result.Assignments = append(result.Assignments, models.BatchAssignment{
			JobID:            job.ID,
			TechID:           top.TechID,
			Score:            top.TotalScore,
			DriveTimeMinutes: estimateDriveTime(ctx, est, techByID[top.TechID], job),
		})
		remaining[top.TechID]--
	}

	result.Stats = models.BatchStats{
		TotalJobs:  len(jobs),
		Assigned:   len(result.Assignments),
		Unassigned: len(result.Unassigned),
		ElapsedMs:  time.Since(start).Milliseconds(),
	}
	return result
}

func estimateDriveTime(ctx context.Context, est drivetime.Estimator, tech models.Technician, job models.Job) float64 {
	if tech.Lat == nil || tech.Lon == nil || job.Lat == nil || job.Lon == nil {
		return 0
	}
	if est == nil {
		est = drivetime.HaversineEstimator{}
	}
	minutes, err := est.Estimate(ctx, *tech.Lat, *tech.Lon, *job.Lat, *job.Lon)
	if err != nil {
		// Routing is display-only enrichment; fall back to the distance model.
		minutes, _ = drivetime.HaversineEstimator{}.Estimate(ctx, *tech.Lat, *tech.Lon, *job.Lat, *job.Lon)
	}
	return round2(minutes)
}

// BatchService loads the roster and unassigned jobs for a tenant, runs a
// capacity-aware batch, and records the run. Persisting individual
// assignments stays a separate, explicit step by the caller.
type BatchService struct {
	Store     *db.Store
	DriveTime drivetime.Estimator
	Logger    zerolog.Logger
}

func (s *BatchService) Run(ctx context.Context, tenantID string) (models.BatchResult, error) {
	runID, err := s.Store.CreateRun(ctx, tenantID, "RUNNING")
	if err != nil {
		return models.BatchResult{}, err
	}

	jobs, err := s.Store.ListUnassignedJobs(ctx, tenantID)
	if err != nil {
		s.finishRun(ctx, runID, "FAILED", nil)
		return models.BatchResult{}, err
	}
	techs, err := s.Store.ListAvailableTechnicians(ctx, tenantID)
	if err != nil {
		s.finishRun(ctx, runID, "FAILED", nil)
		return models.BatchResult{}, err
	}

	result := RunBatch(ctx, jobs, techs, s.DriveTime)

	summary, _ := json.Marshal(result.Stats)
	s.finishRun(ctx, runID, "SUCCESS", summary)

	s.Logger.Info().
		Str("tenant_id", tenantID).
		Str("run_id", runID).
		Int("total_jobs", result.Stats.TotalJobs).
		Int("assigned", result.Stats.Assigned).
		Int("unassigned", result.Stats.Unassigned).
		Int64("elapsed_ms", result.Stats.ElapsedMs).
		Msg("batch dispatch complete")
	return result, nil
}

func (s *BatchService) finishRun(ctx context.Context, runID, status string, summary []byte) {
	if err := s.Store.FinishRun(ctx, runID, status, summary); err != nil {
		s.Logger.Error().Err(err).Str("run_id", runID).Msg("failed to finish run")
	}
}
