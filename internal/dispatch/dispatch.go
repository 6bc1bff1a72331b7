package dispatch

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fieldserve/backend/internal/models"
)

// Dispatch runs the full filter -> score -> rank pipeline for one job.
// The eligibility step is the single source of truth for manual dispatch:
// when it leaves no candidates, the recommendation is forced manual here
// rather than re-derived downstream.
func Dispatch(job models.Job, techs []models.Technician) models.DispatchRecommendation {
	filtered := FilterEligibleTechnicians(techs, job)
	scores := ScoreAllTechnicians(filtered.Eligible, job)
	rec := CreateRecommendation(job.ID, scores, job.Priority == models.PriorityEmergency)
	rec.EligibleCount = len(filtered.Eligible)

	if len(filtered.Eligible) == 0 {
		rec.RequiresManualDispatch = true
		rec.AssignedTech = nil
		if rec.Reason == "" {
			rec.Reason = ReasonNoEligibleTechnicians
		}
	}
	return rec
}

// PreviewBatch maps Dispatch over a list of jobs against a shared roster
// without decrementing capacity between jobs. Suitable for non-conflicting
// previews only; capacity-aware assignment lives in RunBatch.
func PreviewBatch(jobs []models.Job, techs []models.Technician) []models.DispatchRecommendation {
	out := make([]models.DispatchRecommendation, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, Dispatch(job, techs))
	}
	return out
}

// OverrideAssignment replaces the assigned technician with one of the top
// recommended candidates. It trusts the caller's recommendation snapshot and
// does not re-run eligibility.
func OverrideAssignment(rec models.DispatchRecommendation, selectedTechID, reason, actor string) (models.DispatchRecommendation, error) {
	var selected *models.TechnicianScore
	for i := range rec.TopCandidates {
		if rec.TopCandidates[i].TechID == selectedTechID {
			selected = &rec.TopCandidates[i]
			break
		}
	}
	if selected == nil {
		ids := make([]string, 0, len(rec.TopCandidates))
		for _, c := range rec.TopCandidates {
			ids = append(ids, c.TechID)
		}
		return models.DispatchRecommendation{}, fmt.Errorf(
			"technician %s is not among the recommended candidates (available: %s)",
			selectedTechID, strings.Join(ids, ", "))
	}

	chosen := *selected
	rec.AssignedTech = &chosen
	rec.Override = &models.OverrideRecord{
		TechID:     selectedTechID,
		Reason:     reason,
		Actor:      actor,
		OverrodeAt: time.Now().UTC(),
	}
	return rec, nil
}

// GetDispatchStats aggregates outcomes across a set of recommendations.
// overrides < 0 means the caller supplied no override count.
func GetDispatchStats(recs []models.DispatchRecommendation, overrides int) models.DispatchStats {
	stats := models.DispatchStats{TotalJobs: len(recs)}
	eligibleTotal := 0
	for _, rec := range recs {
		if rec.RequiresManualDispatch {
			stats.ManualDispatchRequired++
		} else {
			stats.AutoAssigned++
		}
		if rec.IsEmergency {
			stats.EmergencyJobs++
		}
		eligibleTotal += rec.EligibleCount
	}
	if len(recs) > 0 {
		stats.AvgEligiblePerJob = round2(float64(eligibleTotal) / float64(len(recs)))
	}
	if overrides >= 0 && stats.AutoAssigned > 0 {
		rate := round2(float64(overrides) / float64(stats.AutoAssigned) * 100)
		stats.OverrideRatePct = &rate
	}
	return stats
}

// priorityRank orders jobs for batch dispatch. Unknown priorities sort last.
func priorityRank(priority string) int {
	switch priority {
	case models.PriorityEmergency:
		return 0
	case models.PriorityHigh:
		return 1
	case models.PriorityMedium:
		return 2
	case models.PriorityLow:
		return 3
	default:
		return 4
	}
}

// SortJobsByPriority orders jobs emergency first, preserving input order
// within the same priority.
func SortJobsByPriority(jobs []models.Job) []models.Job {
	out := make([]models.Job, len(jobs))
	copy(out, jobs)
	sort.SliceStable(out, func(i, j int) bool {
		return priorityRank(out[i].Priority) < priorityRank(out[j].Priority)
	})
	return out
}
