package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

const fileColumns = "id, source_path, release_name, status, error_message, scanned_at, analyzed_at, renamed_at, metadata_generated_at, uploaded_at, analysis_json, duplicate_checks_json, release_names_json, torrent_path, nfo_path, created_at, updated_at"

// NewFile registers a media file for processing. The source path must be
// unique; re-registering a known path returns the existing entry.
func (s *Store) NewFile(ctx context.Context, sourcePath string) (*FileEntry, error) {
	sourcePath = strings.TrimSpace(sourcePath)
	if sourcePath == "" {
		return nil, errors.New("source path is required")
	}

	if existing, err := s.FileBySourcePath(ctx, sourcePath); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	now := formatTime(time.Now())
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO file_entries (source_path, release_name, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?)`,
		sourcePath,
		inferReleaseName(sourcePath),
		FilePending,
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert file: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetFile(ctx, id)
}

// GetFile fetches a file entry by identifier.
func (s *Store) GetFile(ctx context.Context, id int64) (*FileEntry, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+fileColumns+` FROM file_entries WHERE id = ?`, id)
	entry, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}
	return entry, nil
}

// FileBySourcePath returns the file entry registered for a path, if any.
func (s *Store) FileBySourcePath(ctx context.Context, sourcePath string) (*FileEntry, error) {
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT `+fileColumns+` FROM file_entries WHERE source_path = ? LIMIT 1`,
		sourcePath,
	)
	entry, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file by source path: %w", err)
	}
	return entry, nil
}

// UpdateFile persists changes to an existing file entry.
func (s *Store) UpdateFile(ctx context.Context, entry *FileEntry) error {
	if entry == nil {
		return errors.New("file entry is nil")
	}
	entry.UpdatedAt = time.Now().UTC()
	_, err := s.execWithRetry(
		ctx,
		`UPDATE file_entries
         SET source_path = ?, release_name = ?, status = ?, error_message = ?,
             scanned_at = ?, analyzed_at = ?, renamed_at = ?, metadata_generated_at = ?, uploaded_at = ?,
             analysis_json = ?, duplicate_checks_json = ?, release_names_json = ?,
             torrent_path = ?, nfo_path = ?, updated_at = ?
         WHERE id = ?`,
		entry.SourcePath,
		nullableString(entry.ReleaseName),
		entry.Status,
		nullableString(entry.ErrorMessage),
		nullableTime(entry.ScannedAt),
		nullableTime(entry.AnalyzedAt),
		nullableTime(entry.RenamedAt),
		nullableTime(entry.MetadataGeneratedAt),
		nullableTime(entry.UploadedAt),
		nullableString(entry.AnalysisJSON),
		nullableString(entry.DuplicateChecksJSON),
		nullableString(entry.ReleaseNamesJSON),
		nullableString(entry.TorrentPath),
		nullableString(entry.NFOPath),
		formatTime(entry.UpdatedAt),
		entry.ID,
	)
	if err != nil {
		return fmt.Errorf("update file: %w", err)
	}
	return nil
}

// ListFiles returns file entries filtered by status set (or all files when no
// status is provided), ordered by creation time.
func (s *Store) ListFiles(ctx context.Context, statuses ...FileStatus) ([]*FileEntry, error) {
	baseQuery := `SELECT ` + fileColumns + ` FROM file_entries`
	orderClause := ` ORDER BY created_at, id`

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
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var entries []*FileEntry
	for rows.Next() {
		entry, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func scanFile(scanner interface{ Scan(dest ...any) error }) (*FileEntry, error) {
	var (
		id              int64
		sourcePath      string
		releaseName     sql.NullString
		statusStr       string
		errorMessage    sql.NullString
		scannedRaw      sql.NullString
		analyzedRaw     sql.NullString
		renamedRaw      sql.NullString
		metadataRaw     sql.NullString
		uploadedRaw     sql.NullString
		analysisJSON    sql.NullString
		duplicatesJSON  sql.NullString
		releaseNames    sql.NullString
		torrentPath     sql.NullString
		nfoPath         sql.NullString
		createdRaw      sql.NullString
		updatedRaw      sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&sourcePath,
		&releaseName,
		&statusStr,
		&errorMessage,
		&scannedRaw,
		&analyzedRaw,
		&renamedRaw,
		&metadataRaw,
		&uploadedRaw,
		&analysisJSON,
		&duplicatesJSON,
		&releaseNames,
		&torrentPath,
		&nfoPath,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	entry := &FileEntry{
		ID:                  id,
		SourcePath:          sourcePath,
		ReleaseName:         releaseName.String,
		Status:              FileStatus(statusStr),
		ErrorMessage:        errorMessage.String,
		ScannedAt:           parseNullableTime(scannedRaw),
		AnalyzedAt:          parseNullableTime(analyzedRaw),
		RenamedAt:           parseNullableTime(renamedRaw),
		MetadataGeneratedAt: parseNullableTime(metadataRaw),
		UploadedAt:          parseNullableTime(uploadedRaw),
		AnalysisJSON:        analysisJSON.String,
		DuplicateChecksJSON: duplicatesJSON.String,
		ReleaseNamesJSON:    releaseNames.String,
		TorrentPath:         torrentPath.String,
		NFOPath:             nfoPath.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		entry.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		entry.UpdatedAt = updated
	}
	return entry, nil
}

func inferReleaseName(path string) string {
	base := strings.TrimSpace(filepath.Base(path))
	if base == "" {
		return ""
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}
