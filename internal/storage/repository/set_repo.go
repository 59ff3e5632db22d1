package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ramonehamilton/binderkeep/internal/scryfall"
)

// SetRepository caches the Scryfall set list.
type SetRepository interface {
	// LoadSets returns the cached sets if they were fetched within maxAge,
	// or nil when the cache is empty or stale.
	LoadSets(ctx context.Context, maxAge time.Duration) ([]scryfall.Set, error)

	// SaveSets replaces the cached set list.
	SaveSets(ctx context.Context, sets []scryfall.Set) error
}

type setRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSetRepository creates a new set repository.
func NewSetRepository(db *sql.DB) SetRepository {
	return &setRepository{db: db, now: time.Now}
}

func (r *setRepository) LoadSets(ctx context.Context, maxAge time.Duration) ([]scryfall.Set, error) {
	var oldest sql.NullInt64
	if err := r.db.QueryRowContext(ctx, "SELECT MIN(fetched_at) FROM scryfall_sets").Scan(&oldest); err != nil {
		return nil, fmt.Errorf("failed to check set cache age: %w", err)
	}
	if !oldest.Valid {
		return nil, nil
	}
	if maxAge > 0 && r.now().Sub(time.Unix(oldest.Int64, 0)) > maxAge {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT code, name, COALESCE(released_at, ''), COALESCE(set_type, ''), card_count, digital
		FROM scryfall_sets
		ORDER BY code
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sets: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var sets []scryfall.Set
	for rows.Next() {
		var s scryfall.Set
		if err := rows.Scan(&s.Code, &s.Name, &s.ReleasedAt, &s.SetType, &s.CardCount, &s.Digital); err != nil {
			return nil, fmt.Errorf("failed to scan set: %w", err)
		}
		sets = append(sets, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sets: %w", err)
	}
	return sets, nil
}

func (r *setRepository) SaveSets(ctx context.Context, sets []scryfall.Set) error {
	fetchedAt := r.now().Unix()

	return withTransaction(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM scryfall_sets"); err != nil {
			return fmt.Errorf("failed to clear set cache: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO scryfall_sets (code, name, released_at, set_type, card_count, digital, fetched_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare set insert: %w", err)
		}
		defer func() {
			_ = stmt.Close()
		}()

		for _, s := range sets {
			if s.Code == "" {
				continue
			}
			if _, err := stmt.ExecContext(ctx, s.Code, s.Name, s.ReleasedAt, s.SetType, s.CardCount, s.Digital, fetchedAt); err != nil {
				return fmt.Errorf("failed to cache set %s: %w", s.Code, err)
			}
		}
		return nil
	})
}
