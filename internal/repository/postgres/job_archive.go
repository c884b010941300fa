package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Harsh-BH/codr/internal/domain"
	"github.com/Harsh-BH/codr/internal/repository"
)

// Ensure pgJobArchive implements repository.JobArchive.
var _ repository.JobArchive = (*pgJobArchive)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS job_archive (
	job_id        UUID PRIMARY KEY,
	language      TEXT NOT NULL,
	filename      TEXT NOT NULL DEFAULT '',
	source_code   TEXT NOT NULL,
	status        TEXT NOT NULL,
	result        JSONB,
	error         TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL,
	completed_at  TIMESTAMPTZ,
	archived_at   TIMESTAMPTZ NOT NULL
)`

type pgJobArchive struct {
	pool *pgxpool.Pool
}

// NewJobArchive creates a PostgreSQL-backed archive of finished jobs.
func NewJobArchive(pool *pgxpool.Pool) repository.JobArchive {
	return &pgJobArchive{pool: pool}
}

// Migrate creates the archive table if it does not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

func (r *pgJobArchive) Save(ctx context.Context, job *domain.Job) error {
	if !job.Status.IsTerminal() {
		return fmt.Errorf("postgres: archive job %s in status %s: %w", job.ID, job.Status, domain.ErrInvalidTransition)
	}

	var result *string
	if job.Result != nil {
		b, err := json.Marshal(job.Result)
		if err != nil {
			return fmt.Errorf("postgres: encode result: %w", err)
		}
		s := string(b)
		result = &s
	}

	query := `
		INSERT INTO job_archive (job_id, language, filename, source_code, status, result, error, created_at, completed_at, archived_at)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8, $9, $10)
		ON CONFLICT (job_id) DO NOTHING`

	_, err := r.pool.Exec(ctx, query,
		job.ID, job.Language, job.Filename, job.Code, string(job.Status),
		result, job.Error, job.CreatedAt, job.CompletedAt, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("postgres: save job: %w", err)
	}
	return nil
}

func (r *pgJobArchive) Get(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	query := `
		SELECT job_id, language, filename, source_code, status, result::text, error, created_at, completed_at
		FROM job_archive
		WHERE job_id = $1`

	job := &domain.Job{}
	var (
		status string
		result *string
	)
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&job.ID, &job.Language, &job.Filename, &job.Code, &status,
		&result, &job.Error, &job.CreatedAt, &job.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get job: %w", err)
	}

	job.Status = domain.JobStatus(status)
	if result != nil {
		var r domain.ExecutionResult
		if err := json.Unmarshal([]byte(*result), &r); err != nil {
			return nil, fmt.Errorf("postgres: decode result: %w", err)
		}
		job.Result = &r
	}
	return job, nil
}
