package models

import "time"

// Job priorities, most urgent first in dispatch order.
const (
	PriorityEmergency = "emergency"
	PriorityHigh      = "high"
	PriorityMedium    = "medium"
	PriorityLow       = "low"
)

// Job statuses.
const (
	JobStatusUnassigned = "unassigned"
	JobStatusAssigned   = "assigned"
	JobStatusInProgress = "in_progress"
	JobStatusCompleted  = "completed"
	JobStatusCancelled  = "cancelled"
)

type Job struct {
	ID             string    `json:"id"`
	TenantID       string    `json:"tenant_id"`
	JobType        string    `json:"job_type"`
	Priority       string    `json:"priority"`
	Address        string    `json:"address"`
	City           string    `json:"city"`
	Lat            *float64  `json:"lat"`
	Lon            *float64  `json:"lon"`
	RequiredSkills []string  `json:"required_skills"`
	MinSkillLevel  int       `json:"min_skill_level"`
	Status         string    `json:"status"`
	AssignedTechID *string   `json:"assigned_tech_id"`
	CreatedAt      time.Time `json:"created_at"`
}

type Technician struct {
	ID                   string         `json:"id"`
	TenantID             string         `json:"tenant_id"`
	Name                 string         `json:"name"`
	Active               bool           `json:"active"`
	Available            bool           `json:"available"`
	CurrentJobsCount     int            `json:"current_jobs_count"`
	MaxConcurrentJobs    int            `json:"max_concurrent_jobs"`
	Lat                  *float64       `json:"lat"`
	Lon                  *float64       `json:"lon"`
	MaxTravelMiles       float64        `json:"max_travel_miles"`
	Skills               []string       `json:"skills"`
	SkillLevels          map[string]int `json:"skill_levels"`
	RecentCompletionRate float64        `json:"recent_completion_rate"`
	RecentJobCount       int            `json:"recent_job_count"`
	JobsCompletedToday   int            `json:"jobs_completed_today"`
	UpdatedAt            time.Time      `json:"updated_at"`
}

// EligibilityResult explains every rule outcome for one technician/job pair.
// Computed fresh per call, never stored.
type EligibilityResult struct {
	Eligible    bool     `json:"eligible"`
	FailedRules []string `json:"failed_rules"`
	PassedRules []string `json:"passed_rules"`
}

type TechnicianScore struct {
	TechID            string  `json:"tech_id"`
	DistanceScore     float64 `json:"distance_score"`
	AvailabilityScore float64 `json:"availability_score"`
	SkillScore        float64 `json:"skill_score"`
	PerformanceScore  float64 `json:"performance_score"`
	WorkloadScore     float64 `json:"workload_score"`
	TotalScore        float64 `json:"total_score"`
	DistanceMiles     float64 `json:"distance_miles"`
	IsEmergency       bool    `json:"is_emergency"`
}

type OverrideRecord struct {
	TechID     string    `json:"tech_id"`
	Reason     string    `json:"reason"`
	Actor      string    `json:"actor"`
	OverrodeAt time.Time `json:"overrode_at"`
}

// DispatchRecommendation is the unit returned to callers and the payload
// logged alongside a persisted assignment.
type DispatchRecommendation struct {
	JobID                  string            `json:"job_id"`
	TopCandidates          []TechnicianScore `json:"top_candidates"`
	AssignedTech           *TechnicianScore  `json:"assigned_tech"`
	EligibleCount          int               `json:"eligible_count"`
	RequiresManualDispatch bool              `json:"requires_manual_dispatch"`
	IsEmergency            bool              `json:"is_emergency"`
	Reason                 string            `json:"reason,omitempty"`
	Override               *OverrideRecord   `json:"override,omitempty"`
	CreatedAt              time.Time         `json:"created_at"`
}

type BatchAssignment struct {
	JobID            string  `json:"job_id"`
	TechID           string  `json:"tech_id"`
	Score            float64 `json:"score"`
	DriveTimeMinutes float64 `json:"drive_time_minutes"`
}

type UnassignedJob struct {
	JobID  string `json:"job_id"`
	Reason string `json:"reason"`
}

type BatchStats struct {
	TotalJobs  int   `json:"total_jobs"`
	Assigned   int   `json:"assigned"`
	Unassigned int   `json:"unassigned"`
	ElapsedMs  int64 `json:"elapsed_ms"`
}

type BatchResult struct {
	Assignments []BatchAssignment `json:"assignments"`
	Unassigned  []UnassignedJob   `json:"unassigned"`
	Stats       BatchStats        `json:"stats"`
}

type DispatchStats struct {
	TotalJobs              int      `json:"total_jobs"`
	AutoAssigned           int      `json:"auto_assigned"`
	ManualDispatchRequired int      `json:"manual_dispatch_required"`
	EmergencyJobs          int      `json:"emergency_jobs"`
	AvgEligiblePerJob      float64  `json:"avg_eligible_per_job"`
	OverrideRatePct        *float64 `json:"override_rate_pct,omitempty"`
}

// AssignmentLog is an immutable audit row written by the persistence layer.
type AssignmentLog struct {
	ID         string    `json:"id"`
	JobID      string    `json:"job_id"`
	TechID     *string   `json:"tech_id"`
	Action     string    `json:"action"`
	Actor      string    `json:"actor"`
	IsOverride bool      `json:"is_override"`
	Reason     string    `json:"reason"`
	Snapshot   []byte    `json:"snapshot,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type Run struct {
	ID         string     `json:"id"`
	TenantID   string     `json:"tenant_id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
	Status     string     `json:"status"`
	Summary    []byte     `json:"summary"`
}
