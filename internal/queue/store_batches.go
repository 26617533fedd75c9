package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const batchColumns = "id, name, status, priority, max_concurrent, skip_approval, total_count, processed_count, success_count, failed_count, file_ids_json, results_json, error_summary, created_at, updated_at, completed_at"

// BatchOptions control batch job submission.
type BatchOptions struct {
	Name          string
	Priority      Priority
	MaxConcurrent int
	MaxAttempts   int
	SkipApproval  bool
}

// NewBatch creates a batch job and one queue entry per member file inside a
// single transaction. A member that already has an active queue entry aborts
// the whole submission with ErrDuplicateEnqueue.
func (s *Store) NewBatch(ctx context.Context, fileIDs []int64, opts BatchOptions) (*BatchJob, error) {
	if len(fileIDs) == 0 {
		return nil, ErrEmptyBatch
	}
	if _, ok := ParsePriority(string(opts.Priority)); !ok {
		opts.Priority = PriorityNormal
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 2
	}

	batchID := uuid.NewString()
	idsJSON, err := json.Marshal(fileIDs)
	if err != nil {
		return nil, fmt.Errorf("encode batch file ids: %w", err)
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		now := formatTime(time.Now())
		if _, err := tx.ExecContext(
			ensureContext(ctx),
			`INSERT INTO batch_jobs (
                id, name, status, priority, max_concurrent, skip_approval,
                total_count, file_ids_json, created_at, updated_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			batchID,
			nullableString(opts.Name),
			BatchRunning,
			opts.Priority.Weight(),
			opts.MaxConcurrent,
			boolToInt(opts.SkipApproval),
			len(fileIDs),
			string(idsJSON),
			now,
			now,
		); err != nil {
			return fmt.Errorf("insert batch: %w", err)
		}

		for _, fileID := range fileIDs {
			if _, err := enqueueTx(ensureContext(ctx), tx, fileID, EnqueueOptions{
				Priority:     opts.Priority,
				MaxAttempts:  opts.MaxAttempts,
				SkipApproval: opts.SkipApproval,
				BatchID:      batchID,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetBatch(ctx, batchID)
}

// GetBatch fetches a batch job by identifier.
func (s *Store) GetBatch(ctx context.Context, id string) (*BatchJob, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+batchColumns+` FROM batch_jobs WHERE id = ?`, id)
	job, err := scanBatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get batch: %w", err)
	}
	return job, nil
}

// ListBatches returns batch jobs ordered by creation time, newest first.
func (s *Store) ListBatches(ctx context.Context) ([]*BatchJob, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT `+batchColumns+` FROM batch_jobs ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	var jobs []*BatchJob
	for rows.Next() {
		job, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// applyMemberOutcomeTx folds one member's terminal outcome into the batch
// aggregates. It runs inside the same transaction as the member's own terminal
// transition so counts never drift under concurrent completions.
func applyMemberOutcomeTx(ctx context.Context, tx *sql.Tx, batchID string, fileID int64, outcome MemberOutcome, errMsg string) error {
	row := tx.QueryRowContext(ctx, `SELECT `+batchColumns+` FROM batch_jobs WHERE id = ?`, batchID)
	job, err := scanBatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("batch %s not found", batchID)
	}
	if err != nil {
		return fmt.Errorf("load batch: %w", err)
	}

	results, err := job.Results()
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	results = append(results, BatchResult{
		FileID:      fileID,
		Outcome:     outcome,
		Error:       truncateError(errMsg),
		CompletedAt: now,
	})
	resultsJSON, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("encode batch results: %w", err)
	}

	job.ProcessedCount++
	if outcome.Succeeded() {
		job.SuccessCount++
	} else {
		job.FailedCount++
	}

	status := BatchRunning
	var completedAt any
	if job.ProcessedCount >= job.TotalCount {
		status = job.terminalStatus()
		completedAt = formatTime(now)
	}

	if _, err := tx.ExecContext(
		ctx,
		`UPDATE batch_jobs
         SET status = ?, processed_count = ?, success_count = ?, failed_count = ?,
             results_json = ?, error_summary = ?, updated_at = ?, completed_at = ?
         WHERE id = ?`,
		status,
		job.ProcessedCount,
		job.SuccessCount,
		job.FailedCount,
		string(resultsJSON),
		nullableString(summarizeErrors(results)),
		formatTime(now),
		completedAt,
		batchID,
	); err != nil {
		return fmt.Errorf("update batch aggregates: %w", err)
	}
	return nil
}

func scanBatch(scanner interface{ Scan(dest ...any) error }) (*BatchJob, error) {
	var (
		id             string
		name           sql.NullString
		statusStr      string
		priorityWeight int
		maxConcurrent  int
		skipApproval   sql.NullInt64
		totalCount     int
		processedCount int
		successCount   int
		failedCount    int
		fileIDsJSON    sql.NullString
		resultsJSON    sql.NullString
		errorSummary   sql.NullString
		createdRaw     sql.NullString
		updatedRaw     sql.NullString
		completedRaw   sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&name,
		&statusStr,
		&priorityWeight,
		&maxConcurrent,
		&skipApproval,
		&totalCount,
		&processedCount,
		&successCount,
		&failedCount,
		&fileIDsJSON,
		&resultsJSON,
		&errorSummary,
		&createdRaw,
		&updatedRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}

	job := &BatchJob{
		ID:             id,
		Name:           name.String,
		Status:         BatchStatus(statusStr),
		Priority:       priorityFromWeight(priorityWeight),
		MaxConcurrent:  maxConcurrent,
		SkipApproval:   skipApproval.Valid && skipApproval.Int64 != 0,
		TotalCount:     totalCount,
		ProcessedCount: processedCount,
		SuccessCount:   successCount,
		FailedCount:    failedCount,
		FileIDsJSON:    fileIDsJSON.String,
		ResultsJSON:    resultsJSON.String,
		ErrorSummary:   errorSummary.String,
		CompletedAt:    parseNullableTime(completedRaw),
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	return job, nil
}
