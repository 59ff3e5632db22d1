package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ramonehamilton/binderkeep/internal/trade"
)

// TradeRepository stores trades as JSON documents with their status and
// parties indexed.
type TradeRepository interface {
	Get(ctx context.Context, id string) (*trade.Trade, error)
	Save(ctx context.Context, t *trade.Trade) error

	// ListForUser returns trades the user initiated or received, newest first.
	ListForUser(ctx context.Context, userID string) ([]*trade.Trade, error)
}

type tradeRepository struct {
	db *sql.DB
}

// NewTradeRepository creates a new trade repository.
func NewTradeRepository(db *sql.DB) TradeRepository {
	return &tradeRepository{db: db}
}

func (r *tradeRepository) Get(ctx context.Context, id string) (*trade.Trade, error) {
	var doc string
	err := r.db.QueryRowContext(ctx, "SELECT document FROM trades WHERE id = ?", id).Scan(&doc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("trade %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get trade %s: %w", id, err)
	}
	return decodeTrade(doc)
}

func (r *tradeRepository) Save(ctx context.Context, t *trade.Trade) error {
	doc, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal trade %s: %w", t.ID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO trades (id, initiator_id, recipient_id, status, document, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			document = excluded.document,
			updated_at = excluded.updated_at
	`, t.ID, t.InitiatorID, t.RecipientID, string(t.Status), string(doc),
		t.CreatedAt.UnixNano(), t.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save trade %s: %w", t.ID, err)
	}
	return nil
}

func (r *tradeRepository) ListForUser(ctx context.Context, userID string) ([]*trade.Trade, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT document FROM trades
		WHERE initiator_id = ? OR recipient_id = ?
		ORDER BY created_at DESC, id
	`, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	trades := make([]*trade.Trade, 0)
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		t, err := decodeTrade(doc)
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trades: %w", err)
	}
	return trades, nil
}

func decodeTrade(doc string) (*trade.Trade, error) {
	var t trade.Trade
	if err := json.Unmarshal([]byte(doc), &t); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trade: %w", err)
	}
	return &t, nil
}
