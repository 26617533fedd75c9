package queue

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

func referenceTable(kind ReferenceKind) (string, error) {
	switch kind {
	case KindTag:
		return "tags", nil
	case KindCategory:
		return "categories", nil
	default:
		return "", fmt.Errorf("unknown reference kind %q", kind)
	}
}

// UpsertReferenceEntries merges a catalog snapshot into the mirror table,
// matching on external_id. Existing rows not present in the snapshot are left
// untouched so they remain available as a stale fallback.
func (s *Store) UpsertReferenceEntries(ctx context.Context, kind ReferenceKind, entries []ReferenceEntry) error {
	table, err := referenceTable(kind)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		now := formatTime(time.Now())
		stmt, err := tx.PrepareContext(
			ensureContext(ctx),
			`INSERT INTO `+table+` (external_id, label, slug, description, created_at, updated_at)
             VALUES (?, ?, ?, ?, ?, ?)
             ON CONFLICT(external_id) DO UPDATE SET
                 label = excluded.label,
                 slug = excluded.slug,
                 description = excluded.description,
                 updated_at = excluded.updated_at`,
		)
		if err != nil {
			return fmt.Errorf("prepare upsert: %w", err)
		}
		defer stmt.Close()

		for _, entry := range entries {
			if _, err := stmt.ExecContext(
				ensureContext(ctx),
				entry.ExternalID,
				entry.Label,
				nullableString(entry.Slug),
				nullableString(entry.Description),
				now,
				now,
			); err != nil {
				return fmt.Errorf("upsert %s %d: %w", kind, entry.ExternalID, err)
			}
		}
		return nil
	})
}

// ListReferenceEntries returns the mirrored catalog for a kind ordered by label.
func (s *Store) ListReferenceEntries(ctx context.Context, kind ReferenceKind) ([]ReferenceEntry, error) {
	table, err := referenceTable(kind)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT id, external_id, label, slug, description, created_at, updated_at FROM `+table+` ORDER BY label COLLATE NOCASE`,
	)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	defer rows.Close()

	var entries []ReferenceEntry
	for rows.Next() {
		var (
			entry       ReferenceEntry
			slug        sql.NullString
			description sql.NullString
			createdRaw  sql.NullString
			updatedRaw  sql.NullString
		)
		if err := rows.Scan(&entry.ID, &entry.ExternalID, &entry.Label, &slug, &description, &createdRaw, &updatedRaw); err != nil {
			return nil, err
		}
		entry.Kind = kind
		entry.Slug = slug.String
		entry.Description = description.String
		if created, err := parseTimeString(createdRaw.String); err == nil {
			entry.CreatedAt = created
		}
		if updated, err := parseTimeString(updatedRaw.String); err == nil {
			entry.UpdatedAt = updated
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// PurgeReferenceEntries removes every mirrored row for a kind. This is an
// explicit administrative action, never part of normal sync.
func (s *Store) PurgeReferenceEntries(ctx context.Context, kind ReferenceKind) (int64, error) {
	table, err := referenceTable(kind)
	if err != nil {
		return 0, err
	}
	res, err := s.execWithRetry(ctx, `DELETE FROM `+table)
	if err != nil {
		return 0, fmt.Errorf("purge %s: %w", kind, err)
	}
	return res.RowsAffected()
}
