package dispatch

import (
	"math"
	"sort"
	"time"

	"github.com/fieldserve/backend/internal/models"
)

const (
	// DefaultTieThreshold is the score gap at or below which two candidates
	// are considered tied and the tie-break chain decides.
	DefaultTieThreshold = 0.1

	// Number of ranked candidates kept on a recommendation for visibility.
	topCandidateCount = 3

	ReasonNoEligibleTechnicians = "no eligible technicians found"
)

// RankTechnicians sorts scores into dispatch order. Scores are bucketed to
// the tie threshold and the sort is stable on (bucket desc, distance asc,
// workload desc, tech id asc), so near-tie ordering stays transitive instead
// of depending on pairwise comparisons inside the sort.
func RankTechnicians(scores []models.TechnicianScore, tieThreshold float64) []models.TechnicianScore {
	if tieThreshold <= 0 {
		tieThreshold = DefaultTieThreshold
	}
	ranked := make([]models.TechnicianScore, len(scores))
	copy(ranked, scores)

	sort.SliceStable(ranked, func(i, j int) bool {
		bi := scoreBucket(ranked[i].TotalScore, tieThreshold)
		bj := scoreBucket(ranked[j].TotalScore, tieThreshold)
		if bi != bj {
			return bi > bj
		}
		if ranked[i].DistanceMiles != ranked[j].DistanceMiles {
			return ranked[i].DistanceMiles < ranked[j].DistanceMiles
		}
		if ranked[i].WorkloadScore != ranked[j].WorkloadScore {
			return ranked[i].WorkloadScore > ranked[j].WorkloadScore
		}
		return ranked[i].TechID < ranked[j].TechID
	})
	return ranked
}

func scoreBucket(score, tieThreshold float64) int64 {
	return int64(math.Round(score / tieThreshold))
}

// CreateRecommendation ranks the scored candidates for one job and picks the
// top one. An empty score list yields a manual-dispatch recommendation.
func CreateRecommendation(jobID string, scores []models.TechnicianScore, isEmergency bool) models.DispatchRecommendation {
	rec := models.DispatchRecommendation{
		JobID:         jobID,
		TopCandidates: []models.TechnicianScore{},
		EligibleCount: len(scores),
		IsEmergency:   isEmergency,
		CreatedAt:     time.Now().UTC(),
	}

	if len(scores) == 0 {
		rec.RequiresManualDispatch = true
		rec.Reason = ReasonNoEligibleTechnicians
		return rec
	}

	ranked := RankTechnicians(scores, DefaultTieThreshold)
	top := ranked
	if len(top) > topCandidateCount {
		top = top[:topCandidateCount]
	}
	rec.TopCandidates = top
	assigned := ranked[0]
	rec.AssignedTech = &assigned
	rec.RequiresManualDispatch = false
	return rec
}
