package dispatch

import (
	"testing"

	"github.com/fieldserve/backend/internal/models"
)

func TestRankTechniciansByScore(t *testing.T) {
	scores := []models.TechnicianScore{
		{TechID: "a", TotalScore: 70},
		{TechID: "b", TotalScore: 90},
		{TechID: "c", TotalScore: 80},
	}
	ranked := RankTechnicians(scores, DefaultTieThreshold)
	if ranked[0].TechID != "b" || ranked[1].TechID != "c" || ranked[2].TechID != "a" {
		t.Fatalf("unexpected order: %+v", ranked)
	}
}

func TestRankTechniciansTieBreakDistance(t *testing.T) {
	scores := []models.TechnicianScore{
		{TechID: "far", TotalScore: 85, DistanceMiles: 20},
		{TechID: "near", TotalScore: 85, DistanceMiles: 2},
	}
	ranked := RankTechnicians(scores, DefaultTieThreshold)
	if ranked[0].TechID != "near" {
		t.Fatalf("expected nearer technician first on tie, got %s", ranked[0].TechID)
	}
}

func TestRankTechniciansTieBreakWorkloadThenID(t *testing.T) {
	scores := []models.TechnicianScore{
		{TechID: "b", TotalScore: 85, DistanceMiles: 5, WorkloadScore: 4},
		{TechID: "a", TotalScore: 85, DistanceMiles: 5, WorkloadScore: 8},
	}
	ranked := RankTechnicians(scores, DefaultTieThreshold)
	if ranked[0].TechID != "a" {
		t.Fatalf("expected higher workload score first, got %s", ranked[0].TechID)
	}

	scores = []models.TechnicianScore{
		{TechID: "tech-9", TotalScore: 85, DistanceMiles: 5, WorkloadScore: 8},
		{TechID: "tech-1", TotalScore: 85, DistanceMiles: 5, WorkloadScore: 8},
	}
	ranked = RankTechnicians(scores, DefaultTieThreshold)
	if ranked[0].TechID != "tech-1" {
		t.Fatalf("expected lexicographically smaller id first, got %s", ranked[0].TechID)
	}
}

func TestRankTechniciansDoesNotMutateInput(t *testing.T) {
	scores := []models.TechnicianScore{
		{TechID: "a", TotalScore: 70},
		{TechID: "b", TotalScore: 90},
	}
	RankTechnicians(scores, DefaultTieThreshold)
	if scores[0].TechID != "a" {
		t.Fatalf("input slice was reordered")
	}
}

func TestCreateRecommendationEmptyScores(t *testing.T) {
	rec := CreateRecommendation("job-1", nil, false)
	if !rec.RequiresManualDispatch {
		t.Fatalf("expected manual dispatch for empty scores")
	}
	if rec.AssignedTech != nil {
		t.Fatalf("expected no assigned technician")
	}
	if rec.Reason != ReasonNoEligibleTechnicians {
		t.Fatalf("unexpected reason: %s", rec.Reason)
	}
}

func TestCreateRecommendationKeepsTopThree(t *testing.T) {
	scores := []models.TechnicianScore{
		{TechID: "a", TotalScore: 60},
		{TechID: "b", TotalScore: 95},
		{TechID: "c", TotalScore: 80},
		{TechID: "d", TotalScore: 75},
	}
	rec := CreateRecommendation("job-1", scores, true)
	if rec.RequiresManualDispatch {
		t.Fatalf("expected auto dispatch")
	}
	if rec.AssignedTech == nil || rec.AssignedTech.TechID != "b" {
		t.Fatalf("expected b assigned, got %+v", rec.AssignedTech)
	}
	if len(rec.TopCandidates) != 3 {
		t.Fatalf("expected top 3 candidates, got %d", len(rec.TopCandidates))
	}
	if !rec.IsEmergency {
		t.Fatalf("expected emergency flag carried through")
	}
	if rec.EligibleCount != 4 {
		t.Fatalf("expected eligible count 4, got %d", rec.EligibleCount)
	}
}
