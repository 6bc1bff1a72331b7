package dispatch

import (
	"math"

	"github.com/fieldserve/backend/internal/geo"
	"github.com/fieldserve/backend/internal/models"
)

// Scoring weights and fallbacks. Every default lives here so formula changes
// stay auditable in one place.
const (
	maxDistanceScore          = 40.0
	maxDistanceScoreEmergency = 60.0

	maxAvailabilityScore          = 20.0
	maxAvailabilityScoreEmergency = 10.0

	maxSkillScore       = 20.0
	maxPerformanceScore = 10.0
	maxWorkloadScore    = 10.0

	// Distance score reaches zero at this range.
	distanceCutoffMiles = 50.0

	// Workload score reaches zero at this many jobs completed today.
	workloadCutoffJobs = 6.0

	// Technicians with fewer recent jobs than this get the new-technician
	// performance default instead of their reported completion rate.
	newTechnicianJobThreshold = 10
	newTechnicianPerformanceFactor = 0.7

	// Fallback when a technician record carries no max concurrent jobs.
	defaultMaxConcurrentJobs = 1
)

// ScoreTechnician computes the five component scores for one eligible
// technician against one job. Callers must pre-filter for eligibility;
// missing numeric inputs default rather than fail.
func ScoreTechnician(tech models.Technician, job models.Job) models.TechnicianScore {
	isEmergency := job.Priority == models.PriorityEmergency

	dist := 0.0
	if tech.Lat != nil && tech.Lon != nil && job.Lat != nil && job.Lon != nil &&
		geo.ValidCoordinates(*tech.Lat, *tech.Lon) && geo.ValidCoordinates(*job.Lat, *job.Lon) {
		dist = geo.HaversineMiles(*tech.Lat, *tech.Lon, *job.Lat, *job.Lon)
	}

	score := models.TechnicianScore{
		TechID:            tech.ID,
		DistanceScore:     distanceScore(dist, isEmergency),
		AvailabilityScore: availabilityScore(tech, isEmergency),
		SkillScore:        skillScore(tech, job),
		PerformanceScore:  performanceScore(tech),
		WorkloadScore:     workloadScore(tech, isEmergency),
		DistanceMiles:     round2(dist),
		IsEmergency:       isEmergency,
	}

	total := score.DistanceScore + score.AvailabilityScore + score.SkillScore +
		score.PerformanceScore + score.WorkloadScore
	score.TotalScore = round2(math.Max(0, math.Min(100, total)))
	return score
}

// ScoreAllTechnicians maps ScoreTechnician over an already-filtered eligible
// roster. A nil or empty roster yields an empty slice, never an error.
func ScoreAllTechnicians(techs []models.Technician, job models.Job) []models.TechnicianScore {
	out := make([]models.TechnicianScore, 0, len(techs))
	for _, tech := range techs {
		out = append(out, ScoreTechnician(tech, job))
	}
	return out
}

func distanceScore(miles float64, isEmergency bool) float64 {
	max := maxDistanceScore
	if isEmergency {
		max = maxDistanceScoreEmergency
	}
	if miles <= 0 {
		return max
	}
	if miles >= distanceCutoffMiles {
		return 0
	}
	return round2(max * (1 - miles/distanceCutoffMiles))
}

func availabilityScore(tech models.Technician, isEmergency bool) float64 {
	max := maxAvailabilityScore
	if isEmergency {
		max = maxAvailabilityScoreEmergency
	}
	maxJobs := tech.MaxConcurrentJobs
	if maxJobs <= 0 {
		return max
	}
	if tech.CurrentJobsCount <= 0 {
		return max
	}
	s := max * (1 - float64(tech.CurrentJobsCount)/float64(maxJobs))
	return round2(math.Max(0, s))
}

// skillScore rewards an exact fit over an overqualified one: a senior
// technician is wasted on a routine job.
func skillScore(tech models.Technician, job models.Job) float64 {
	if len(job.RequiredSkills) == 0 {
		return maxSkillScore
	}

	anyAbove := false
	anyBelow := false
	deficitSum := 0.0
	for _, skill := range job.RequiredSkills {
		level := tech.SkillLevels[skill]
		switch {
		case level > job.MinSkillLevel:
			anyAbove = true
		case level < job.MinSkillLevel:
			anyBelow = true
			deficitSum += float64(job.MinSkillLevel - level)
		}
	}

	if !anyBelow && !anyAbove {
		return maxSkillScore
	}
	if !anyBelow && anyAbove {
		return 15
	}
	avgDeficit := deficitSum / float64(len(job.RequiredSkills))
	if avgDeficit <= 1 {
		return 15
	}
	return 10
}

func performanceScore(tech models.Technician) float64 {
	if tech.RecentJobCount < newTechnicianJobThreshold {
		return math.Round(newTechnicianPerformanceFactor * maxPerformanceScore)
	}
	rate := tech.RecentCompletionRate
	switch {
	case rate >= 0.95:
		return math.Round(1.0 * maxPerformanceScore)
	case rate >= 0.90:
		return math.Round(0.9 * maxPerformanceScore)
	case rate >= 0.85:
		return math.Round(0.7 * maxPerformanceScore)
	case rate >= 0.75:
		return math.Round(0.5 * maxPerformanceScore)
	default:
		return math.Round(0.3 * maxPerformanceScore)
	}
}

// workloadScore balances daily load; emergency dispatch ignores it entirely.
func workloadScore(tech models.Technician, isEmergency bool) float64 {
	if isEmergency {
		return 0
	}
	today := float64(tech.JobsCompletedToday)
	if today <= 0 {
		return maxWorkloadScore
	}
	if today >= workloadCutoffJobs {
		return 0
	}
	return round2(maxWorkloadScore * (1 - today/workloadCutoffJobs))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
