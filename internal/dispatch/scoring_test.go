package dispatch

import (
	"reflect"
	"testing"

	"github.com/fieldserve/backend/internal/models"
)

func TestScoreTechnicianPerfectMatch(t *testing.T) {
	tech := baseTech("tech-001")
	tech.RecentCompletionRate = 0.98
	tech.RecentJobCount = 40

	score := ScoreTechnician(tech, baseJob())
	if score.DistanceScore != 40 {
		t.Fatalf("expected full distance score at 0 miles, got %f", score.DistanceScore)
	}
	if score.AvailabilityScore != 20 {
		t.Fatalf("expected full availability score, got %f", score.AvailabilityScore)
	}
	if score.SkillScore != 20 {
		t.Fatalf("expected exact-fit skill score, got %f", score.SkillScore)
	}
	if score.PerformanceScore != 10 {
		t.Fatalf("expected top performance tier, got %f", score.PerformanceScore)
	}
	if score.WorkloadScore != 10 {
		t.Fatalf("expected full workload score, got %f", score.WorkloadScore)
	}
	if score.TotalScore != 100 {
		t.Fatalf("expected total 100, got %f", score.TotalScore)
	}
}

func TestScoreTechnicianDeterministic(t *testing.T) {
	tech := baseTech("tech-001")
	a := ScoreTechnician(tech, baseJob())
	b := ScoreTechnician(tech, baseJob())
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("expected identical scores for identical inputs: %+v vs %+v", a, b)
	}
}

func TestScoreTechnicianBounded(t *testing.T) {
	techs := []models.Technician{
		baseTech("a"),
		{ID: "b"},
		{ID: "c", CurrentJobsCount: 99, MaxConcurrentJobs: 1, JobsCompletedToday: 99},
	}
	for _, tech := range techs {
		s := ScoreTechnician(tech, baseJob())
		if s.TotalScore < 0 || s.TotalScore > 100 {
			t.Fatalf("total score out of bounds for %s: %f", tech.ID, s.TotalScore)
		}
	}
}

func TestDistanceScoreMonotonic(t *testing.T) {
	prev := distanceScore(0, false)
	for miles := 1.0; miles <= 60; miles++ {
		cur := distanceScore(miles, false)
		if cur > prev {
			t.Fatalf("distance score increased at %f miles: %f > %f", miles, cur, prev)
		}
		prev = cur
	}
	if distanceScore(50, false) != 0 || distanceScore(120, false) != 0 {
		t.Fatalf("expected zero distance score at or beyond cutoff")
	}
	if distanceScore(0, true) != 60 {
		t.Fatalf("expected emergency distance max of 60, got %f", distanceScore(0, true))
	}
}

func TestAvailabilityScorePartialLoad(t *testing.T) {
	tech := baseTech("tech-1")
	tech.CurrentJobsCount = 1
	tech.MaxConcurrentJobs = 4
	s := availabilityScore(tech, false)
	if s != 15 {
		t.Fatalf("expected 15 at 1/4 load, got %f", s)
	}

	tech.MaxConcurrentJobs = 0
	if availabilityScore(tech, false) != maxAvailabilityScore {
		t.Fatalf("expected full score when max concurrent jobs is unset")
	}
}

func TestSkillScoreTiers(t *testing.T) {
	job := baseJob()
	job.RequiredSkills = []string{"hvac_repair"}
	job.MinSkillLevel = 2

	exact := baseTech("a")
	if got := skillScore(exact, job); got != 20 {
		t.Fatalf("exact fit: expected 20, got %f", got)
	}

	over := baseTech("b")
	over.SkillLevels = map[string]int{"hvac_repair": 5}
	if got := skillScore(over, job); got != 15 {
		t.Fatalf("overqualified: expected 15, got %f", got)
	}

	slightUnder := baseTech("c")
	slightUnder.SkillLevels = map[string]int{"hvac_repair": 1}
	if got := skillScore(slightUnder, job); got != 15 {
		t.Fatalf("slight deficit: expected 15, got %f", got)
	}

	under := baseTech("d")
	under.SkillLevels = map[string]int{"hvac_repair": 0}
	if got := skillScore(under, job); got != 10 {
		t.Fatalf("underqualified: expected 10, got %f", got)
	}

	job.RequiredSkills = nil
	if got := skillScore(under, job); got != 20 {
		t.Fatalf("no required skills: expected 20, got %f", got)
	}
}

func TestPerformanceScoreTiers(t *testing.T) {
	cases := []struct {
		rate     float64
		jobCount int
		want     float64
	}{
		{0.99, 5, 7},  // new technician default regardless of rate
		{0.98, 20, 10},
		{0.92, 20, 9},
		{0.87, 20, 7},
		{0.80, 20, 5},
		{0.50, 20, 3},
	}
	for _, tc := range cases {
		tech := baseTech("x")
		tech.RecentCompletionRate = tc.rate
		tech.RecentJobCount = tc.jobCount
		if got := performanceScore(tech); got != tc.want {
			t.Fatalf("rate %.2f count %d: expected %f, got %f", tc.rate, tc.jobCount, tc.want, got)
		}
	}
}

func TestWorkloadScoreZeroForEmergency(t *testing.T) {
	job := baseJob()
	job.Priority = models.PriorityEmergency

	tech := baseTech("tech-1")
	tech.JobsCompletedToday = 0
	score := ScoreTechnician(tech, job)
	if !score.IsEmergency {
		t.Fatalf("expected emergency flag")
	}
	if score.WorkloadScore != 0 {
		t.Fatalf("expected zero workload score for emergency, got %f", score.WorkloadScore)
	}
}

func TestWorkloadScoreLinear(t *testing.T) {
	tech := baseTech("tech-1")
	tech.JobsCompletedToday = 3
	if got := workloadScore(tech, false); got != 5 {
		t.Fatalf("expected 5 at 3/6 jobs, got %f", got)
	}
	tech.JobsCompletedToday = 6
	if got := workloadScore(tech, false); got != 0 {
		t.Fatalf("expected 0 at cutoff, got %f", got)
	}
}

func TestScoreAllTechniciansEmptyInput(t *testing.T) {
	out := ScoreAllTechnicians(nil, baseJob())
	if out == nil || len(out) != 0 {
		t.Fatalf("expected empty non-nil slice, got %v", out)
	}
}
