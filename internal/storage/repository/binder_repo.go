package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ramonehamilton/binderkeep/internal/binder"
)

// BinderRepository stores binders as whole JSON documents.
type BinderRepository interface {
	// Get loads a binder. Returns ErrNotFound if it does not exist.
	Get(ctx context.Context, id string) (*binder.Binder, error)

	// Save writes the full binder, replacing any previous version.
	Save(ctx context.Context, b *binder.Binder) error

	// Delete removes a binder. Returns ErrNotFound if it does not exist.
	Delete(ctx context.Context, id string) error

	// List returns an owner's binders, oldest first.
	List(ctx context.Context, ownerID string) ([]*binder.Binder, error)
}

type binderRepository struct {
	db *sql.DB
}

// NewBinderRepository creates a new binder repository.
func NewBinderRepository(db *sql.DB) BinderRepository {
	return &binderRepository{db: db}
}

func (r *binderRepository) Get(ctx context.Context, id string) (*binder.Binder, error) {
	var doc string
	err := r.db.QueryRowContext(ctx, "SELECT document FROM binders WHERE id = ?", id).Scan(&doc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("binder %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get binder %s: %w", id, err)
	}
	return decodeBinder(doc)
}

func (r *binderRepository) Save(ctx context.Context, b *binder.Binder) error {
	doc, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to marshal binder %s: %w", b.ID, err)
	}

	return withTransaction(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO binders (id, owner_id, name, public, card_count, document, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				owner_id = excluded.owner_id,
				name = excluded.name,
				public = excluded.public,
				card_count = excluded.card_count,
				document = excluded.document,
				updated_at = excluded.updated_at
		`, b.ID, b.OwnerID, b.Name, b.Public, b.CardCount(), string(doc),
			b.CreatedAt.UnixNano(), b.UpdatedAt.UnixNano())
		if err != nil {
			return fmt.Errorf("failed to save binder %s: %w", b.ID, err)
		}
		return nil
	})
}

func (r *binderRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM binders WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete binder %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete binder %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("binder %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *binderRepository) List(ctx context.Context, ownerID string) ([]*binder.Binder, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT document FROM binders WHERE owner_id = ? ORDER BY created_at, id", ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query binders: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	binders := make([]*binder.Binder, 0)
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan binder: %w", err)
		}
		b, err := decodeBinder(doc)
		if err != nil {
			return nil, err
		}
		binders = append(binders, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating binders: %w", err)
	}
	return binders, nil
}

func decodeBinder(doc string) (*binder.Binder, error) {
	var b binder.Binder
	if err := json.Unmarshal([]byte(doc), &b); err != nil {
		return nil, fmt.Errorf("failed to unmarshal binder: %w", err)
	}
	return &b, nil
}
