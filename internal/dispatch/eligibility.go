package dispatch

import (
	"fmt"
	"strings"

	"github.com/fieldserve/backend/internal/geo"
	"github.com/fieldserve/backend/internal/models"
)

type IneligibleTechnician struct {
	Technician models.Technician        `json:"technician"`
	Result     models.EligibilityResult `json:"result"`
}

type FilterResult struct {
	Eligible   []models.Technician    `json:"eligible"`
	Ineligible []IneligibleTechnician `json:"ineligible"`
}

// CheckEligibility evaluates all seven rules in fixed order without
// short-circuiting, so the result explains every failure at once.
func CheckEligibility(tech models.Technician, job models.Job) models.EligibilityResult {
	res := models.EligibilityResult{
		FailedRules: []string{},
		PassedRules: []string{},
	}

	record := func(ok bool, pass, fail string) {
		if ok {
			res.PassedRules = append(res.PassedRules, pass)
		} else {
			res.FailedRules = append(res.FailedRules, fail)
		}
	}

	record(tech.Active, "technician is active", "technician is not active")
	record(tech.Available, "technician is available", "technician is not available")
	record(tech.CurrentJobsCount < tech.MaxConcurrentJobs,
		"technician has spare capacity",
		fmt.Sprintf("technician at capacity (%d/%d jobs)", tech.CurrentJobsCount, tech.MaxConcurrentJobs))
	record(tech.TenantID == job.TenantID,
		"technician belongs to job tenant",
		"technician belongs to a different tenant")

	techCoordsValid := tech.Lat != nil && tech.Lon != nil && geo.ValidCoordinates(*tech.Lat, *tech.Lon)
	record(techCoordsValid, "technician location is known", "technician location is missing or invalid")

	jobCoordsValid := job.Lat != nil && job.Lon != nil && geo.ValidCoordinates(*job.Lat, *job.Lon)
	if techCoordsValid && jobCoordsValid {
		dist := geo.HaversineMiles(*tech.Lat, *tech.Lon, *job.Lat, *job.Lon)
		record(dist <= tech.MaxTravelMiles,
			"job is within travel range",
			fmt.Sprintf("job is %.1f miles away, beyond max travel distance of %.1f", dist, tech.MaxTravelMiles))
	} else {
		// Distance cannot be computed without both coordinates.
		record(false, "", "travel distance cannot be determined without valid coordinates")
	}

	var insufficient []string
	for _, skill := range job.RequiredSkills {
		if tech.SkillLevels[skill] < job.MinSkillLevel {
			insufficient = append(insufficient, skill)
		}
	}
	record(len(insufficient) == 0,
		"technician meets all required skills",
		fmt.Sprintf("missing or insufficient skills: %s", strings.Join(insufficient, ", ")))

	res.Eligible = len(res.FailedRules) == 0
	return res
}

// FilterEligibleTechnicians partitions a roster into eligible and ineligible
// technicians for one job. Pure function of its inputs.
func FilterEligibleTechnicians(techs []models.Technician, job models.Job) FilterResult {
	out := FilterResult{
		Eligible:   []models.Technician{},
		Ineligible: []IneligibleTechnician{},
	}
	for _, tech := range techs {
		res := CheckEligibility(tech, job)
		if res.Eligible {
			out.Eligible = append(out.Eligible, tech)
		} else {
			out.Ineligible = append(out.Ineligible, IneligibleTechnician{Technician: tech, Result: res})
		}
	}
	return out
}
