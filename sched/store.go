package sched

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/casevine/casevine/errors"
)

// Store persists scheduled jobs. The identity string is the primary key;
// kind, task id and secondary key are kept as structured columns so bulk
// operations match on the key's components, never on string patterns.
type Store struct {
	db *sql.DB
}

// NewStore creates a new job store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Upsert inserts the job, replacing any existing job with the same
// identity. Re-scheduling under an identity therefore converges to a
// single row carrying the latest payload and fire time.
func (s *Store) Upsert(job *Job) error {
	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return errors.Wrap(err, "failed to marshal job payload")
	}

	query := `
		INSERT OR REPLACE INTO scheduled_jobs (
			identity, kind, task_id, secondary_key,
			payload, fire_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now().UTC()
	var taskID interface{}
	if job.TaskID != "" {
		taskID = job.TaskID
	}

	_, err = s.db.Exec(query,
		job.Identity,
		string(job.Kind),
		taskID,
		job.SecondaryKey,
		string(payload),
		job.FireAt.UnixNano(),
		now.Format(time.RFC3339),
		now.Format(time.RFC3339),
	)
	if err != nil {
		return errors.Wrap(err, "failed to upsert scheduled job")
	}

	return nil
}

// Get retrieves a job by identity. Returns ErrNotFound if absent.
func (s *Store) Get(identity string) (*Job, error) {
	query := `
		SELECT identity, kind, task_id, secondary_key, payload, fire_at, created_at, updated_at
		FROM scheduled_jobs
		WHERE identity = ?
	`

	var job Job
	var kind, payload, createdAt, updatedAt string
	var taskID sql.NullString
	var fireAt int64

	err := s.db.QueryRow(query, identity).Scan(
		&job.Identity,
		&kind,
		&taskID,
		&job.SecondaryKey,
		&payload,
		&fireAt,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(errors.ErrNotFound, "job %s", identity)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get scheduled job")
	}

	job.Kind = Kind(kind)
	job.TaskID = taskID.String
	job.FireAt = time.Unix(0, fireAt)
	if err := json.Unmarshal([]byte(payload), &job.Payload); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal payload for job %s", identity)
	}
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		job.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		job.UpdatedAt = t
	}

	return &job, nil
}

// Delete removes the job if present. Returns whether a row was removed;
// absence is not an error.
func (s *Store) Delete(identity string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM scheduled_jobs WHERE identity = ?`, identity)
	if err != nil {
		return false, errors.Wrap(err, "failed to delete scheduled job")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to read rows affected")
	}
	return n > 0, nil
}

// DeleteByTask removes every job whose task segment equals taskID.
// Matching happens on the structured task_id column, so a task id that is
// a lexical prefix of another can never cross-match.
func (s *Store) DeleteByTask(taskID string) (int, error) {
	res, err := s.db.Exec(`DELETE FROM scheduled_jobs WHERE task_id = ?`, taskID)
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete jobs for task")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to read rows affected")
	}
	return int(n), nil
}

// Exists reports whether a job with the given identity is scheduled.
func (s *Store) Exists(identity string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(
		`SELECT EXISTS(SELECT 1 FROM scheduled_jobs WHERE identity = ?)`, identity,
	).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "failed to check job existence")
	}
	return exists, nil
}

// ListDue returns all jobs whose fire time is at or before now, soonest
// first.
func (s *Store) ListDue(ctx context.Context, now time.Time) ([]*Job, error) {
	query := `
		SELECT identity, kind, task_id, secondary_key, payload, fire_at
		FROM scheduled_jobs
		WHERE fire_at <= ?
		ORDER BY fire_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, now.UnixNano())
	if err != nil {
		return nil, errors.Wrap(err, "failed to list due jobs")
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		var job Job
		var kind, payload string
		var taskID sql.NullString
		var fireAt int64

		if err := rows.Scan(&job.Identity, &kind, &taskID, &job.SecondaryKey, &payload, &fireAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan due job")
		}

		job.Kind = Kind(kind)
		job.TaskID = taskID.String
		job.FireAt = time.Unix(0, fireAt)
		if err := json.Unmarshal([]byte(payload), &job.Payload); err != nil {
			return nil, errors.Wrapf(err, "failed to unmarshal payload for job %s", job.Identity)
		}

		jobs = append(jobs, &job)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate due jobs")
	}

	return jobs, nil
}

// Count returns the number of currently scheduled jobs.
func (s *Store) Count() (int, error) {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM scheduled_jobs`).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "failed to count scheduled jobs")
	}
	return count, nil
}
