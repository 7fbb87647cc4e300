// apcore is a server framework for implementing an ActivityPub application.
// Copyright (C) 2019 Cory Slep
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package queue

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	// Registers the "pgx" database/sql driver name.
	_ "github.com/jackc/pgx/v4/stdlib"
)

const createJobsTable = `
CREATE TABLE IF NOT EXISTS jobs (
	id SERIAL PRIMARY KEY,
	kind SMALLINT NOT NULL,
	payload_json JSONB NOT NULL,
	scheduled_for TIMESTAMP WITH TIME ZONE NOT NULL,
	attempts INTEGER NOT NULL DEFAULT 0,
	locked_until TIMESTAMP WITH TIME ZONE
);`

const createJobsIndex = `
CREATE INDEX IF NOT EXISTS jobs_lease_idx ON jobs (kind, scheduled_for, locked_until);`

// PostgresStore is the database/sql-backed Store, following the
// prepared-statement idiom of models.Model: statements are prepared once
// against *sql.DB and reused, mirroring models/delivery_attempts.go.
type PostgresStore struct {
	db *sql.DB

	enqueueStmt *sql.Stmt
	leaseStmt   *sql.Stmt
	lockStmt    *sql.Stmt
	completeStmt *sql.Stmt
	retryStmt   *sql.Stmt
}

// OpenPostgresStore opens a pgx connection pool at dsn, creates the jobs
// table if absent, and prepares every statement PostgresStore needs.
func OpenPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("queue: opening database: %w", err)
	}
	if _, err := db.Exec(createJobsTable); err != nil {
		return nil, fmt.Errorf("queue: creating jobs table: %w", err)
	}
	if _, err := db.Exec(createJobsIndex); err != nil {
		return nil, fmt.Errorf("queue: creating jobs index: %w", err)
	}
	s := &PostgresStore{db: db}
	if err := s.prepare(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) prepare() (err error) {
	stmts := []struct {
		dst  **sql.Stmt
		sqlQ string
	}{
		{&s.enqueueStmt, `INSERT INTO jobs (kind, payload_json, scheduled_for, attempts) VALUES ($1, $2, $3, 0) RETURNING id`},
		{&s.leaseStmt, `SELECT id, kind, payload_json, scheduled_for, attempts, locked_until FROM jobs WHERE kind = $1 AND scheduled_for <= $2 AND (locked_until IS NULL OR locked_until < $2) ORDER BY scheduled_for ASC LIMIT $3 FOR UPDATE SKIP LOCKED`},
		{&s.lockStmt, `UPDATE jobs SET locked_until = $2 WHERE id = $1`},
		{&s.completeStmt, `DELETE FROM jobs WHERE id = $1`},
		{&s.retryStmt, `UPDATE jobs SET scheduled_for = $2, attempts = attempts + 1, locked_until = NULL WHERE id = $1`},
	}
	for _, st := range stmts {
		*st.dst, err = s.db.Prepare(st.sqlQ)
		if err != nil {
			return fmt.Errorf("queue: preparing statement: %w", err)
		}
	}
	return nil
}

// Close releases every prepared statement and the underlying pool.
func (s *PostgresStore) Close() error {
	for _, st := range []*sql.Stmt{s.enqueueStmt, s.leaseStmt, s.lockStmt, s.completeStmt, s.retryStmt} {
		if st != nil {
			st.Close()
		}
	}
	return s.db.Close()
}

func (s *PostgresStore) Enqueue(kind Kind, payload json.RawMessage, scheduledFor time.Time) (string, error) {
	var id int64
	row := s.enqueueStmt.QueryRow(int(kind), []byte(payload), scheduledFor)
	if err := row.Scan(&id); err != nil {
		return "", fmt.Errorf("queue: enqueue: %w", err)
	}
	return fmt.Sprintf("%d", id), nil
}

// Lease selects and locks up to Policies[kind].Batch eligible jobs inside
// a single transaction, so SKIP LOCKED concurrent workers never double-
// lease a row, then advances locked_until on each before committing.
func (s *PostgresStore) Lease(kind Kind, now time.Time) ([]Job, error) {
	policy, ok := Policies[kind]
	if !ok {
		return nil, fmt.Errorf("queue: unknown kind %v", kind)
	}
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("queue: lease begin: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.Stmt(s.leaseStmt).Query(int(kind), now, policy.Batch)
	if err != nil {
		return nil, fmt.Errorf("queue: lease query: %w", err)
	}
	var jobs []Job
	for rows.Next() {
		var j Job
		var id int64
		var k int
		var payload []byte
		var lockedUntil sql.NullTime
		if err := rows.Scan(&id, &k, &payload, &j.ScheduledFor, &j.Attempts, &lockedUntil); err != nil {
			rows.Close()
			return nil, fmt.Errorf("queue: lease scan: %w", err)
		}
		j.ID = fmt.Sprintf("%d", id)
		j.Kind = Kind(k)
		j.Payload = json.RawMessage(payload)
		if lockedUntil.Valid {
			t := lockedUntil.Time
			j.LockedUntil = &t
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("queue: lease rows: %w", err)
	}
	rows.Close()

	until := now.Add(policy.Timeout)
	for _, j := range jobs {
		if _, err := tx.Stmt(s.lockStmt).Exec(j.ID, until); err != nil {
			return nil, fmt.Errorf("queue: lease lock: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("queue: lease commit: %w", err)
	}
	for i := range jobs {
		t := until
		jobs[i].LockedUntil = &t
	}
	return jobs, nil
}

func (s *PostgresStore) Complete(id string) error {
	if _, err := s.completeStmt.Exec(id); err != nil {
		return fmt.Errorf("queue: complete: %w", err)
	}
	return nil
}

func (s *PostgresStore) Retry(job Job, execErr error) (bool, error) {
	scheduledFor, exhausted := NextAttempt(job.Kind, job, execErr, time.Now())
	if exhausted {
		return true, s.Complete(job.ID)
	}
	if _, err := s.retryStmt.Exec(job.ID, scheduledFor); err != nil {
		return false, fmt.Errorf("queue: retry: %w", err)
	}
	return false, nil
}

var _ Store = (*PostgresStore)(nil)
