package db

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fieldserve/backend/internal/models"
)

// Business-rule and not-found failures surfaced by assignment transitions.
// Callers map these to client-facing statuses; none of them are retryable,
// since retrying would replay a stale dispatch decision.
var (
	ErrJobNotFound          = errors.New("job not found")
	ErrJobAlreadyAssigned   = errors.New("job is already assigned")
	ErrJobNotAssignable     = errors.New("job is not in an assignable status")
	ErrJobNotAssigned       = errors.New("job has no assigned technician")
	ErrJobAlreadyCompleted  = errors.New("job is already completed")
	ErrJobNotStartable      = errors.New("job not found or not in assigned status")
	ErrTechnicianNotFound   = errors.New("technician not found")
	ErrTechnicianAtCapacity = errors.New("technician is at capacity")
)

type AssignParams struct {
	JobID      string
	TechID     string
	Actor      string
	IsOverride bool
	Reason     string
	Snapshot   []byte
}

type CompleteParams struct {
	JobID           string
	Notes           string
	DurationMinutes int
	FirstTimeFix    bool
	Rating          int
}

// completionDetails is the snapshot payload of a "complete" log row.
type completionDetails struct {
	DurationMinutes int  `json:"duration_minutes"`
	FirstTimeFix    bool `json:"first_time_fix"`
	Rating          int  `json:"rating"`
}

// AssignJob performs the race-free assignment transition. The job row is
// locked strictly before the technician row so concurrent assignments of
// different jobs to overlapping technicians cannot deadlock. Preconditions
// are re-checked after the locks are held, which closes the window where two
// dispatchers race for the same job: the loser observes ErrJobAlreadyAssigned.
func (s *Store) AssignJob(ctx context.Context, p AssignParams) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		var assignedTechID *string
		var status string
		err := tx.QueryRow(ctx,
			`SELECT assigned_tech_id, status FROM jobs WHERE id = $1 FOR UPDATE`,
			p.JobID).Scan(&assignedTechID, &status)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrJobNotFound
		}
		if err != nil {
			return err
		}
		if assignedTechID != nil {
			return ErrJobAlreadyAssigned
		}
		// A cancelled or completed job also carries no technician; only a
		// genuinely unassigned job may enter the pool again.
		if status != models.JobStatusUnassigned {
			return ErrJobNotAssignable
		}

		var currentJobs, maxJobs int
		err = tx.QueryRow(ctx,
			`SELECT current_jobs_count, max_concurrent_jobs FROM technicians WHERE id = $1 FOR UPDATE`,
			p.TechID).Scan(&currentJobs, &maxJobs)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrTechnicianNotFound
		}
		if err != nil {
			return err
		}
		if currentJobs >= maxJobs {
			return ErrTechnicianAtCapacity
		}

		if _, err := tx.Exec(ctx,
			`UPDATE jobs SET status = $1, assigned_tech_id = $2 WHERE id = $3`,
			models.JobStatusAssigned, p.TechID, p.JobID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`UPDATE technicians SET current_jobs_count = current_jobs_count + 1, updated_at = NOW() WHERE id = $1`,
			p.TechID); err != nil {
			return err
		}
		return insertLog(ctx, tx, models.AssignmentLog{
			JobID:      p.JobID,
			TechID:     &p.TechID,
			Action:     "assign",
			Actor:      p.Actor,
			IsOverride: p.IsOverride,
			Reason:     p.Reason,
			Snapshot:   p.Snapshot,
		})
	})
}

// CompleteJob marks an assigned or in-progress job completed and releases
// the technician's workload slot. Preconditions are revalidated inside the
// transaction before any write.
func (s *Store) CompleteJob(ctx context.Context, p CompleteParams) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		var assignedTechID *string
		var status string
		err := tx.QueryRow(ctx,
			`SELECT assigned_tech_id, status FROM jobs WHERE id = $1 FOR UPDATE`,
			p.JobID).Scan(&assignedTechID, &status)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrJobNotFound
		}
		if err != nil {
			return err
		}
		if assignedTechID == nil {
			return ErrJobNotAssigned
		}
		if status == models.JobStatusCompleted {
			return ErrJobAlreadyCompleted
		}

		if _, err := tx.Exec(ctx,
			`UPDATE jobs SET status = $1 WHERE id = $2`,
			models.JobStatusCompleted, p.JobID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`UPDATE technicians
			 SET current_jobs_count = GREATEST(current_jobs_count - 1, 0),
			     jobs_completed_today = jobs_completed_today + 1,
			     updated_at = NOW()
			 WHERE id = $1`,
			*assignedTechID); err != nil {
			return err
		}
		snapshot, err := json.Marshal(completionDetails{
			DurationMinutes: p.DurationMinutes,
			FirstTimeFix:    p.FirstTimeFix,
			Rating:          p.Rating,
		})
		if err != nil {
			return err
		}
		return insertLog(ctx, tx, models.AssignmentLog{
			JobID:    p.JobID,
			TechID:   assignedTechID,
			Action:   "complete",
			Actor:    "system",
			Reason:   p.Notes,
			Snapshot: snapshot,
		})
	})
}

// UnassignJob clears an assignment and returns the job to the unassigned
// pool.
func (s *Store) UnassignJob(ctx context.Context, jobID string) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		var assignedTechID *string
		err := tx.QueryRow(ctx,
			`SELECT assigned_tech_id FROM jobs WHERE id = $1 FOR UPDATE`,
			jobID).Scan(&assignedTechID)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrJobNotFound
		}
		if err != nil {
			return err
		}
		if assignedTechID == nil {
			return ErrJobNotAssigned
		}

		if _, err := tx.Exec(ctx,
			`UPDATE jobs SET status = $1, assigned_tech_id = NULL WHERE id = $2`,
			models.JobStatusUnassigned, jobID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`UPDATE technicians SET current_jobs_count = GREATEST(current_jobs_count - 1, 0), updated_at = NOW() WHERE id = $1`,
			*assignedTechID); err != nil {
			return err
		}
		return insertLog(ctx, tx, models.AssignmentLog{
			JobID:  jobID,
			TechID: assignedTechID,
			Action: "unassign",
			Actor:  "system",
		})
	})
}

// StartJob flips an assigned job to in_progress with a single conditional
// update. Zero rows affected cannot distinguish "missing" from "wrong
// status", so both surface as ErrJobNotStartable.
func (s *Store) StartJob(ctx context.Context, jobID string) error {
	ct, err := s.Pool.Exec(ctx,
		`UPDATE jobs SET status = $1 WHERE id = $2 AND status = $3`,
		models.JobStatusInProgress, jobID, models.JobStatusAssigned)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrJobNotStartable
	}
	return nil
}

func insertLog(ctx context.Context, tx pgx.Tx, l models.AssignmentLog) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO assignment_logs (id, job_id, tech_id, action, actor, is_override, reason, snapshot, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, uuid.NewString(), l.JobID, l.TechID, l.Action, l.Actor, l.IsOverride, l.Reason, l.Snapshot, time.Now().UTC())
	return err
}
