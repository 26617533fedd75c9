package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const entryColumns = "id, file_id, batch_id, priority, status, attempts, max_attempts, last_error, skip_approval, cancel_requested, not_before, added_at, started_at, completed_at, updated_at, last_heartbeat"

// EnqueueOptions control how a file entry is scheduled.
type EnqueueOptions struct {
	Priority     Priority
	MaxAttempts  int
	SkipApproval bool
	BatchID      string
}

func (o EnqueueOptions) normalized() EnqueueOptions {
	if _, ok := ParsePriority(string(o.Priority)); !ok {
		o.Priority = PriorityNormal
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	return o
}

// Enqueue inserts a pending queue entry for a file. It fails with
// ErrDuplicateEnqueue when the file already has a pending or processing entry,
// preserving the at-most-one-active-per-file guarantee.
func (s *Store) Enqueue(ctx context.Context, fileID int64, opts EnqueueOptions) (*Entry, error) {
	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var insertErr error
		id, insertErr = enqueueTx(ensureContext(ctx), tx, fileID, opts)
		return insertErr
	})
	if err != nil {
		return nil, err
	}
	return s.GetEntry(ctx, id)
}

func enqueueTx(ctx context.Context, tx *sql.Tx, fileID int64, opts EnqueueOptions) (int64, error) {
	opts = opts.normalized()

	var active int
	err := tx.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM processing_queue WHERE file_id = ? AND status IN (?, ?)`,
		fileID, StatusPending, StatusProcessing,
	).Scan(&active)
	if err != nil {
		return 0, fmt.Errorf("check active entries: %w", err)
	}
	if active > 0 {
		return 0, fmt.Errorf("file %d: %w", fileID, ErrDuplicateEnqueue)
	}

	now := formatTime(time.Now())
	res, err := tx.ExecContext(
		ctx,
		`INSERT INTO processing_queue (
            file_id, batch_id, priority, status, attempts, max_attempts,
            skip_approval, added_at, updated_at
        ) VALUES (?, ?, ?, ?, 0, ?, ?, ?, ?)`,
		fileID,
		nullableString(opts.BatchID),
		opts.Priority.Weight(),
		StatusPending,
		opts.MaxAttempts,
		boolToInt(opts.SkipApproval),
		now,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("insert queue entry: %w", err)
	}
	return res.LastInsertId()
}

// GetEntry fetches a queue entry by identifier.
func (s *Store) GetEntry(ctx context.Context, id int64) (*Entry, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+entryColumns+` FROM processing_queue WHERE id = ?`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get queue entry: %w", err)
	}
	return entry, nil
}

// ActiveEntryForFile returns the pending or processing entry for a file, if any.
func (s *Store) ActiveEntryForFile(ctx context.Context, fileID int64) (*Entry, error) {
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT `+entryColumns+` FROM processing_queue WHERE file_id = ? AND status IN (?, ?) LIMIT 1`,
		fileID, StatusPending, StatusProcessing,
	)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("active entry for file: %w", err)
	}
	return entry, nil
}

// claimCandidateQuery selects the next claimable entry: strict priority order
// with FIFO tie-break, honoring retry delays and per-batch concurrency caps.
const claimCandidateQuery = `
SELECT q.id FROM processing_queue q
WHERE q.status = ?
  AND (q.not_before IS NULL OR q.not_before <= ?)
  AND (q.batch_id IS NULL OR (
        SELECT COUNT(1) FROM processing_queue a
        WHERE a.batch_id = q.batch_id AND a.status = ?
      ) < (SELECT b.max_concurrent FROM batch_jobs b WHERE b.id = q.batch_id))
ORDER BY q.priority DESC, q.added_at ASC, q.id ASC
LIMIT 1`

// ClaimNext atomically transitions the highest-priority claimable entry to
// processing and returns it. It returns nil when nothing is claimable.
func (s *Store) ClaimNext(ctx context.Context) (*Entry, error) {
	var claimedID int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		claimedID = 0
		now := formatTime(time.Now())

		var id int64
		err := tx.QueryRowContext(ensureContext(ctx), claimCandidateQuery, StatusPending, now, StatusProcessing).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("select claim candidate: %w", err)
		}

		res, err := tx.ExecContext(
			ensureContext(ctx),
			`UPDATE processing_queue
             SET status = ?, started_at = ?, last_heartbeat = ?, updated_at = ?
             WHERE id = ? AND status = ?`,
			StatusProcessing, now, now, now, id, StatusPending,
		)
		if err != nil {
			return fmt.Errorf("claim entry: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("claim rows affected: %w", err)
		}
		if affected == 1 {
			claimedID = id
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if claimedID == 0 {
		return nil, nil
	}
	return s.GetEntry(ctx, claimedID)
}

// RequeueForNextStage returns a processing entry to pending after a partial
// stage completion. The original added_at is preserved so the entry neither
// starves nor jumps the queue; attempts are left untouched.
func (s *Store) RequeueForNextStage(ctx context.Context, id int64) error {
	now := formatTime(time.Now())
	_, err := s.execWithRetry(
		ctx,
		`UPDATE processing_queue
         SET status = ?, started_at = NULL, last_heartbeat = NULL, not_before = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusPending, now, id, StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("requeue entry: %w", err)
	}
	return nil
}

// Complete marks a processing entry as completed and, when the entry belongs
// to a batch, folds the member outcome into the batch aggregates in the same
// transaction.
func (s *Store) Complete(ctx context.Context, id int64, outcome MemberOutcome) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		entry, err := getEntryTx(ensureContext(ctx), tx, id)
		if err != nil {
			return err
		}
		if entry == nil {
			return fmt.Errorf("queue entry %d not found", id)
		}

		now := formatTime(time.Now())
		if _, err := tx.ExecContext(
			ensureContext(ctx),
			`UPDATE processing_queue
             SET status = ?, completed_at = ?, last_heartbeat = NULL, updated_at = ?
             WHERE id = ?`,
			StatusCompleted, now, now, id,
		); err != nil {
			return fmt.Errorf("complete entry: %w", err)
		}

		if entry.BatchID != "" {
			return applyMemberOutcomeTx(ensureContext(ctx), tx, entry.BatchID, entry.FileID, outcome, "")
		}
		return nil
	})
}

// Fail records a failure against a processing entry. A non-nil retryAfter
// requeues the entry (status pending, claimable after the delay); nil marks
// it terminally failed and updates batch aggregates.
func (s *Store) Fail(ctx context.Context, id int64, lastError string, retryAfter *time.Duration) error {
	lastError = truncateError(lastError)
	return s.withTx(ctx, func(tx *sql.Tx) error {
		entry, err := getEntryTx(ensureContext(ctx), tx, id)
		if err != nil {
			return err
		}
		if entry == nil {
			return fmt.Errorf("queue entry %d not found", id)
		}

		now := time.Now()
		if retryAfter != nil {
			notBefore := now.Add(*retryAfter)
			if _, err := tx.ExecContext(
				ensureContext(ctx),
				`UPDATE processing_queue
                 SET status = ?, attempts = attempts + 1, last_error = ?,
                     started_at = NULL, last_heartbeat = NULL, not_before = ?, updated_at = ?
                 WHERE id = ?`,
				StatusPending, lastError, formatTime(notBefore), formatTime(now), id,
			); err != nil {
				return fmt.Errorf("requeue failed entry: %w", err)
			}
			return nil
		}

		if _, err := tx.ExecContext(
			ensureContext(ctx),
			`UPDATE processing_queue
             SET status = ?, attempts = attempts + 1, last_error = ?,
                 completed_at = ?, last_heartbeat = NULL, updated_at = ?
             WHERE id = ?`,
			StatusFailed, lastError, formatTime(now), formatTime(now), id,
		); err != nil {
			return fmt.Errorf("fail entry: %w", err)
		}

		if entry.BatchID != "" {
			return applyMemberOutcomeTx(ensureContext(ctx), tx, entry.BatchID, entry.FileID, OutcomeFailed, lastError)
		}
		return nil
	})
}

// RequestCancel cancels a queue entry. Pending entries are removed immediately
// (batch aggregates record a cancelled member); processing entries are flagged
// so the executing worker aborts at the next stage boundary. The return value
// reports whether anything changed.
func (s *Store) RequestCancel(ctx context.Context, id int64) (bool, error) {
	var changed bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		changed = false
		entry, err := getEntryTx(ensureContext(ctx), tx, id)
		if err != nil {
			return err
		}
		if entry == nil {
			return nil
		}

		switch entry.Status {
		case StatusPending:
			if _, err := tx.ExecContext(ensureContext(ctx), `DELETE FROM processing_queue WHERE id = ?`, id); err != nil {
				return fmt.Errorf("remove pending entry: %w", err)
			}
			changed = true
			if entry.BatchID != "" {
				return applyMemberOutcomeTx(ensureContext(ctx), tx, entry.BatchID, entry.FileID, OutcomeCancelled, "cancelled before processing")
			}
			return nil
		case StatusProcessing:
			res, err := tx.ExecContext(
				ensureContext(ctx),
				`UPDATE processing_queue SET cancel_requested = 1, updated_at = ? WHERE id = ? AND cancel_requested = 0`,
				formatTime(time.Now()), id,
			)
			if err != nil {
				return fmt.Errorf("flag cancel: %w", err)
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("cancel rows affected: %w", err)
			}
			changed = affected > 0
			return nil
		default:
			return nil
		}
	})
	return changed, err
}

// CancelAbandoned finalizes a processing entry whose worker stopped mid-stage.
// The entry returns to pending with the flag cleared so it stays resumable,
// unless remove is set, in which case it is deleted and the batch records a
// cancelled member. Either way the file's in-flight status rolls back to
// pending so listings do not show a phantom running stage.
func (s *Store) CancelAbandoned(ctx context.Context, id int64, remove bool) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		entry, err := getEntryTx(ensureContext(ctx), tx, id)
		if err != nil {
			return err
		}
		if entry == nil {
			return nil
		}

		if remove {
			if _, err := tx.ExecContext(ensureContext(ctx), `DELETE FROM processing_queue WHERE id = ?`, id); err != nil {
				return fmt.Errorf("remove cancelled entry: %w", err)
			}
		} else {
			if _, err := tx.ExecContext(
				ensureContext(ctx),
				`UPDATE processing_queue
                 SET status = ?, cancel_requested = 0, started_at = NULL, last_heartbeat = NULL, updated_at = ?
                 WHERE id = ? AND status = ?`,
				StatusPending, formatTime(time.Now()), id, StatusProcessing,
			); err != nil {
				return fmt.Errorf("reset cancelled entry: %w", err)
			}
		}

		if _, err := tx.ExecContext(
			ensureContext(ctx),
			`UPDATE file_entries SET status = ?, updated_at = ?
             WHERE id = ? AND status NOT IN (?, ?, ?)`,
			FilePending, formatTime(time.Now()), entry.FileID,
			FileCompleted, FileFailed, FileDuplicate,
		); err != nil {
			return fmt.Errorf("reset cancelled file status: %w", err)
		}

		if remove && entry.BatchID != "" {
			return applyMemberOutcomeTx(ensureContext(ctx), tx, entry.BatchID, entry.FileID, OutcomeCancelled, "cancelled during processing")
		}
		return nil
	})
}

// Heartbeat refreshes the liveness timestamp of an in-flight entry and reports
// whether cancellation has been requested for it.
func (s *Store) Heartbeat(ctx context.Context, id int64) (cancelRequested bool, err error) {
	now := formatTime(time.Now())
	if _, err = s.execWithRetry(
		ctx,
		`UPDATE processing_queue SET last_heartbeat = ?, updated_at = ? WHERE id = ? AND status = ?`,
		now, now, id, StatusProcessing,
	); err != nil {
		return false, fmt.Errorf("update heartbeat: %w", err)
	}

	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT cancel_requested FROM processing_queue WHERE id = ?`, id)
	var flag sql.NullInt64
	if scanErr := row.Scan(&flag); scanErr != nil {
		if errors.Is(scanErr, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("read cancel flag: %w", scanErr)
	}
	return flag.Valid && flag.Int64 != 0, nil
}

// ListEntries returns queue entries filtered by status set (or all entries when
// no status is provided), in claim order.
func (s *Store) ListEntries(ctx context.Context, statuses ...Status) ([]*Entry, error) {
	baseQuery := `SELECT ` + entryColumns + ` FROM processing_queue`
	orderClause := ` ORDER BY priority DESC, added_at, id`

	var (
		rows *sql.Rows
		err  error
	)
	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ensureContext(ctx), baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		rows, err = s.db.QueryContext(ensureContext(ctx), baseQuery+` WHERE status IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list queue entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// EntriesForBatch returns every queue entry tagged with the batch id.
func (s *Store) EntriesForBatch(ctx context.Context, batchID string) ([]*Entry, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT `+entryColumns+` FROM processing_queue WHERE batch_id = ? ORDER BY added_at, id`,
		batchID,
	)
	if err != nil {
		return nil, fmt.Errorf("entries for batch: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func getEntryTx(ctx context.Context, tx *sql.Tx, id int64) (*Entry, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM processing_queue WHERE id = ?`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get queue entry: %w", err)
	}
	return entry, nil
}

func scanEntry(scanner interface{ Scan(dest ...any) error }) (*Entry, error) {
	var (
		id              int64
		fileID          int64
		batchID         sql.NullString
		priorityWeight  int
		statusStr       string
		attempts        int
		maxAttempts     int
		lastError       sql.NullString
		skipApproval    sql.NullInt64
		cancelRequested sql.NullInt64
		notBeforeRaw    sql.NullString
		addedRaw        sql.NullString
		startedRaw      sql.NullString
		completedRaw    sql.NullString
		updatedRaw      sql.NullString
		heartbeatRaw    sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&fileID,
		&batchID,
		&priorityWeight,
		&statusStr,
		&attempts,
		&maxAttempts,
		&lastError,
		&skipApproval,
		&cancelRequested,
		&notBeforeRaw,
		&addedRaw,
		&startedRaw,
		&completedRaw,
		&updatedRaw,
		&heartbeatRaw,
	); err != nil {
		return nil, err
	}

	entry := &Entry{
		ID:              id,
		FileID:          fileID,
		BatchID:         batchID.String,
		Priority:        priorityFromWeight(priorityWeight),
		Status:          Status(statusStr),
		Attempts:        attempts,
		MaxAttempts:     maxAttempts,
		LastError:       lastError.String,
		SkipApproval:    skipApproval.Valid && skipApproval.Int64 != 0,
		CancelRequested: cancelRequested.Valid && cancelRequested.Int64 != 0,
		NotBefore:       parseNullableTime(notBeforeRaw),
		StartedAt:       parseNullableTime(startedRaw),
		CompletedAt:     parseNullableTime(completedRaw),
		LastHeartbeat:   parseNullableTime(heartbeatRaw),
	}
	if added, err := parseTimeString(addedRaw.String); err == nil {
		entry.AddedAt = added
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		entry.UpdatedAt = updated
	}
	return entry, nil
}
