package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"vea/internal/domain"
)

// ReplaceSnapshot stores entries and stats for dateKey, discarding whatever an
// earlier run stored for the same day.
func (d *Database) ReplaceSnapshot(
	ctx context.Context,
	dateKey string,
	entries []domain.Entry,
	stats domain.RunStats,
) (err error) {
	dateKey = strings.TrimSpace(dateKey)
	if dateKey == "" {
		return errors.New("date key is empty")
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				err = errors.Join(err, fmt.Errorf("rollback: %w", rollbackErr))
			}
		}
	}()

	if _, err = tx.ExecContext(ctx, "delete from entries where date_key = ?", dateKey); err != nil {
		return fmt.Errorf("delete entries: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `insert into entries
	(date_key, position, source, title, summary, link, published)
	values (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() {
		if closeErr := stmt.Close(); closeErr != nil {
			d.log.ErrorContext(ctx, "Failed to close statement",
				"error", closeErr,
				"dateKey", dateKey,
				"operation", "ReplaceSnapshot")
		}
	}()

	for i, e := range entries {
		var published sql.NullString
		if e.Published != nil {
			published = sql.NullString{String: e.Published.UTC().Format(time.RFC3339), Valid: true}
		}

		if _, err = stmt.ExecContext(ctx, dateKey, i, e.Source, e.Title, e.Summary, e.Link, published); err != nil {
			return fmt.Errorf("insert entry (link = %s): %w", e.Link, err)
		}
	}

	query := `insert into runs
	(date_key, sources_attempted, sources_failed, entries_matched, entries_emitted, finished_at)
	values (?, ?, ?, ?, ?, ?)
	on conflict (date_key) do update
	set sources_attempted = excluded.sources_attempted,
	sources_failed = excluded.sources_failed,
	entries_matched = excluded.entries_matched,
	entries_emitted = excluded.entries_emitted,
	finished_at = excluded.finished_at`

	_, err = tx.ExecContext(ctx, query,
		dateKey,
		stats.SourcesAttempted,
		stats.SourcesFailed,
		stats.EntriesMatched,
		stats.EntriesEmitted,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}
