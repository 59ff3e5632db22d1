package trade

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Store persists trades as whole documents.
type Store interface {
	Get(ctx context.Context, id string) (*Trade, error)
	Save(ctx context.Context, t *Trade) error
	ListForUser(ctx context.Context, userID string) ([]*Trade, error)
}

// Service creates trades and applies status changes.
type Service struct {
	store  Store
	logger *zap.Logger

	// mu serializes read-modify-write status updates.
	mu sync.Mutex
}

// NewService creates a trade service.
func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger}
}

// Propose validates and stores a new pending trade.
func (s *Service) Propose(ctx context.Context, initiatorID, recipientID string, wants, offers []LineItem) (*Trade, error) {
	t, err := New(initiatorID, recipientID, wants, offers)
	if err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to save trade: %w", err)
	}

	s.logger.Info("Trade proposed",
		zap.String("trade_id", t.ID),
		zap.String("initiator_id", t.InitiatorID),
		zap.String("recipient_id", t.RecipientID))
	return t, nil
}

// Get loads a trade.
func (s *Service) Get(ctx context.Context, id string) (*Trade, error) {
	return s.store.Get(ctx, id)
}

// List returns the trades a user takes part in.
func (s *Service) List(ctx context.Context, userID string) ([]*Trade, error) {
	return s.store.ListForUser(ctx, userID)
}

// UpdateStatus moves a trade to next on behalf of actor.
func (s *Service) UpdateStatus(ctx context.Context, id, actor string, next Status) (*Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	prev := t.Status
	if err := t.Transition(actor, next); err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to save trade %s: %w", id, err)
	}

	s.logger.Info("Trade status changed",
		zap.String("trade_id", id),
		zap.String("from", string(prev)),
		zap.String("to", string(next)))
	return t, nil
}
