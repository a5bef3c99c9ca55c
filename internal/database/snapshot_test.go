package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"vea/internal/domain"
)

// snapshot returns the entries stored for dateKey in their original order.
func (d *Database) snapshot(ctx context.Context, dateKey string) ([]domain.Entry, error) {
	query := `select source, title, summary, link, published
	from entries
	where date_key = ?
	order by position`

	rows, err := d.db.QueryContext(ctx, query, dateKey)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer func() {
		if err = rows.Close(); err != nil {
			d.log.ErrorContext(ctx, "Failed to close rows",
				"error", err,
				"dateKey", dateKey,
				"operation", "snapshot")
		}
	}()

	var entries []domain.Entry
	for rows.Next() {
		var (
			e         domain.Entry
			published sql.NullString
		)

		if err = rows.Scan(&e.Source, &e.Title, &e.Summary, &e.Link, &published); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		if published.Valid {
			t, parseErr := time.Parse(time.RFC3339, published.String)
			if parseErr != nil {
				return nil, fmt.Errorf("parse published (link = %s): %w", e.Link, parseErr)
			}
			e.Published = &t
		}

		entries = append(entries, e)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return entries, nil
}

// runStats returns the stats stored for dateKey, or false when that day has no run.
func (d *Database) runStats(ctx context.Context, dateKey string) (domain.RunStats, bool, error) {
	query := `select sources_attempted, sources_failed, entries_matched, entries_emitted
	from runs
	where date_key = ?`

	var stats domain.RunStats

	err := d.db.QueryRowContext(ctx, query, dateKey).Scan(
		&stats.SourcesAttempted,
		&stats.SourcesFailed,
		&stats.EntriesMatched,
		&stats.EntriesEmitted,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RunStats{}, false, nil
	}
	if err != nil {
		return domain.RunStats{}, false, fmt.Errorf("scan row: %w", err)
	}

	return stats, true, nil
}
