package db

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fieldserve/backend/internal/db/migrations"
	"github.com/fieldserve/backend/internal/models"
)

type Store struct {
	Pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{Pool: pool}, nil
}

func (s *Store) Close() {
	s.Pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Migrate applies the embedded schema files in filename order.
func (s *Store) Migrate(ctx context.Context) error {
	entries, err := fs.ReadDir(migrations.Files, ".")
	if err != nil {
		return err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		sql, err := fs.ReadFile(migrations.Files, name)
		if err != nil {
			return err
		}
		if _, err := s.Pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("migration %s: %w", name, err)
		}
	}
	return nil
}

const jobColumns = `id, tenant_id, job_type, priority, address, city, lat, lon,
	required_skills, min_skill_level, status, assigned_tech_id, created_at`

func scanJob(row pgx.Row) (models.Job, error) {
	var j models.Job
	err := row.Scan(&j.ID, &j.TenantID, &j.JobType, &j.Priority, &j.Address, &j.City,
		&j.Lat, &j.Lon, &j.RequiredSkills, &j.MinSkillLevel, &j.Status, &j.AssignedTechID, &j.CreatedAt)
	return j, err
}

func (s *Store) GetJob(ctx context.Context, jobID string) (models.Job, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, jobID)
	j, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Job{}, ErrJobNotFound
		}
		return models.Job{}, err
	}
	return j, nil
}

func (s *Store) ListJobs(ctx context.Context, tenantID, status string, limit, offset int) ([]models.Job, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + jobColumns + ` FROM jobs`
	var args []any
	var wheres []string
	if tenantID != "" {
		args = append(args, tenantID)
		wheres = append(wheres, fmt.Sprintf("tenant_id = $%d", len(args)))
	}
	if status != "" {
		args = append(args, status)
		wheres = append(wheres, fmt.Sprintf("status = $%d", len(args)))
	}
	if len(wheres) > 0 {
		query += " WHERE " + strings.Join(wheres, " AND ")
	}
	query += " ORDER BY created_at DESC LIMIT $" + fmt.Sprint(len(args)+1) + " OFFSET $" + fmt.Sprint(len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// ListUnassignedJobs returns a tenant's unassigned jobs oldest first, the
// input order batch dispatch relies on for stable ties.
func (s *Store) ListUnassignedJobs(ctx context.Context, tenantID string) ([]models.Job, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE tenant_id = $1 AND status = $2
		ORDER BY created_at ASC
	`, tenantID, models.JobStatusUnassigned)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

const technicianColumns = `id, tenant_id, name, active, available, current_jobs_count,
	max_concurrent_jobs, lat, lon, max_travel_miles, skills, skill_levels,
	recent_completion_rate, recent_job_count, jobs_completed_today, updated_at`

func scanTechnician(row pgx.Row) (models.Technician, error) {
	var t models.Technician
	err := row.Scan(&t.ID, &t.TenantID, &t.Name, &t.Active, &t.Available,
		&t.CurrentJobsCount, &t.MaxConcurrentJobs, &t.Lat, &t.Lon, &t.MaxTravelMiles,
		&t.Skills, &t.SkillLevels, &t.RecentCompletionRate, &t.RecentJobCount,
		&t.JobsCompletedToday, &t.UpdatedAt)
	return t, err
}

func (s *Store) GetTechnician(ctx context.Context, techID string) (models.Technician, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+technicianColumns+` FROM technicians WHERE id = $1`, techID)
	t, err := scanTechnician(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Technician{}, ErrTechnicianNotFound
		}
		return models.Technician{}, err
	}
	return t, nil
}

func (s *Store) ListTechnicians(ctx context.Context, tenantID string) ([]models.Technician, error) {
	query := `SELECT ` + technicianColumns + ` FROM technicians`
	var args []any
	if tenantID != "" {
		args = append(args, tenantID)
		query += " WHERE tenant_id = $1"
	}
	query += " ORDER BY id ASC"

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Technician
	for rows.Next() {
		t, err := scanTechnician(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListAvailableTechnicians returns the candidate roster for a tenant:
// active, available technicians with their live workload counters.
func (s *Store) ListAvailableTechnicians(ctx context.Context, tenantID string) ([]models.Technician, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT `+technicianColumns+` FROM technicians
		WHERE tenant_id = $1 AND active AND available
		ORDER BY id ASC
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Technician
	for rows.Next() {
		t, err := scanTechnician(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) UpdateJobCoordinates(ctx context.Context, jobID string, lat, lon float64) error {
	ct, err := s.Pool.Exec(ctx, `UPDATE jobs SET lat = $1, lon = $2 WHERE id = $3`, lat, lon, jobID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (s *Store) ListAssignmentLogs(ctx context.Context, jobID string) ([]models.AssignmentLog, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, job_id, tech_id, action, actor, is_override, reason, snapshot, created_at
		FROM assignment_logs WHERE job_id = $1 ORDER BY created_at ASC
	`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.AssignmentLog
	for rows.Next() {
		var l models.AssignmentLog
		if err := rows.Scan(&l.ID, &l.JobID, &l.TechID, &l.Action, &l.Actor,
			&l.IsOverride, &l.Reason, &l.Snapshot, &l.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) CreateRun(ctx context.Context, tenantID, status string) (string, error) {
	var id string
	err := s.Pool.QueryRow(ctx,
		`INSERT INTO dispatch_runs (tenant_id, status, started_at) VALUES ($1, $2, NOW()) RETURNING id`,
		tenantID, status).Scan(&id)
	return id, err
}

func (s *Store) FinishRun(ctx context.Context, runID, status string, summary []byte) error {
	_, err := s.Pool.Exec(ctx,
		`UPDATE dispatch_runs SET status = $1, summary = $2, finished_at = NOW() WHERE id = $3`,
		status, summary, runID)
	return err
}

func (s *Store) GetLatestRun(ctx context.Context, tenantID string) (models.Run, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT id, tenant_id, started_at, finished_at, status, summary
		FROM dispatch_runs WHERE tenant_id = $1 ORDER BY started_at DESC LIMIT 1
	`, tenantID)
	var r models.Run
	if err := row.Scan(&r.ID, &r.TenantID, &r.StartedAt, &r.FinishedAt, &r.Status, &r.Summary); err != nil {
		return models.Run{}, err
	}
	return r, nil
}
