package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// IngestRun audits one pipeline fetch of one summary kind for one region.
type IngestRun struct {
	ID             string
	StartedAt      time.Time
	FinishedAt     sql.NullTime
	API            string // "obis", "movebank"
	Kind           string // "abundance", "environmental", "tracking"
	RegionID       string
	PagesAttempted sql.NullInt64
	RecordsParsed  sql.NullInt64
	RecordsKept    sql.NullInt64
	Complete       bool
	Success        bool
	ErrorMessage   sql.NullString
}

// StartIngestRun creates a new ingest run record and returns it.
func (s *Store) StartIngestRun(ctx context.Context, api, kind, regionID string) (*IngestRun, error) {
	run := &IngestRun{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
		API:       api,
		Kind:      kind,
		RegionID:  regionID,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ingest_runs (id, started_at, api, kind, region_id, complete, success)
		VALUES (?, ?, ?, ?, ?, FALSE, FALSE)
	`, run.ID, run.StartedAt, run.API, run.Kind, run.RegionID)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// CompleteIngestRun updates the ingest run with results.
func (s *Store) CompleteIngestRun(ctx context.Context, run *IngestRun) error {
	if run == nil {
		return nil
	}

	run.FinishedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}

	_, err := s.db.ExecContext(ctx, `
		UPDATE ingest_runs SET
			finished_at = ?,
			pages_attempted = ?,
			records_parsed = ?,
			records_kept = ?,
			complete = ?,
			success = ?,
			error_message = ?
		WHERE id = ?
	`, run.FinishedAt, run.PagesAttempted, run.RecordsParsed, run.RecordsKept,
		run.Complete, run.Success, run.ErrorMessage, run.ID)
	return err
}

// IngestHealthSummary represents a daily ingest health summary.
type IngestHealthSummary struct {
	Date          string
	API           string
	Kind          string
	TotalRuns     int
	SuccessRuns   int
	CompleteRuns  int
	TotalRecords  int64
	TotalAttempts int64
}

// GetIngestHealth returns ingest health summaries for the last N days.
func (s *Store) GetIngestHealth(ctx context.Context, days int) ([]IngestHealthSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			DATE(SUBSTR(started_at, 1, 19)) as date,
			api,
			kind,
			COUNT(*) as total_runs,
			SUM(CASE WHEN success THEN 1 ELSE 0 END) as success_runs,
			SUM(CASE WHEN complete THEN 1 ELSE 0 END) as complete_runs,
			COALESCE(SUM(records_kept), 0) as total_records,
			COALESCE(SUM(pages_attempted), 0) as total_pages
		FROM ingest_runs
		WHERE SUBSTR(started_at, 1, 19) > datetime('now', '-' || ? || ' days')
		GROUP BY date, api, kind
		ORDER BY date DESC, api, kind
	`, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []IngestHealthSummary
	for rows.Next() {
		var h IngestHealthSummary
		if err := rows.Scan(&h.Date, &h.API, &h.Kind, &h.TotalRuns,
			&h.SuccessRuns, &h.CompleteRuns, &h.TotalRecords, &h.TotalAttempts); err != nil {
			return nil, err
		}
		results = append(results, h)
	}
	return results, rows.Err()
}

// GetRecentIngestRuns returns the latest runs for a region, newest first.
func (s *Store) GetRecentIngestRuns(ctx context.Context, regionID string, limit int) ([]IngestRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, api, kind, region_id,
			   pages_attempted, records_parsed, records_kept,
			   complete, success, error_message
		FROM ingest_runs
		WHERE region_id = ?
		ORDER BY started_at DESC
		LIMIT ?
	`, regionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []IngestRun
	for rows.Next() {
		var r IngestRun
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.API, &r.Kind, &r.RegionID,
			&r.PagesAttempted, &r.RecordsParsed, &r.RecordsKept,
			&r.Complete, &r.Success, &r.ErrorMessage); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
