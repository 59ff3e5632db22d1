package binder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Store persists whole binders. Get and Save operate on the full document;
// there is no partial update.
type Store interface {
	Get(ctx context.Context, id string) (*Binder, error)
	Save(ctx context.Context, b *Binder) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, ownerID string) ([]*Binder, error)
}

// Service serializes mutations per binder and writes the full binder back
// after each one. The layout methods on Binder themselves do no locking.
type Service struct {
	store  Store
	logger *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService creates a binder service on top of store.
func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:  store,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

// Create makes and persists a new empty binder.
func (s *Service) Create(ctx context.Context, ownerID, name string, public bool) (*Binder, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, errors.New("owner is required")
	}
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("binder name is required")
	}

	b := New(ownerID, strings.TrimSpace(name))
	b.Public = public
	if err := s.store.Save(ctx, b); err != nil {
		return nil, fmt.Errorf("failed to save new binder: %w", err)
	}

	s.logger.Info("Binder created", zap.String("binder_id", b.ID), zap.String("owner_id", ownerID))
	return b, nil
}

// Get loads a binder.
func (s *Service) Get(ctx context.Context, id string) (*Binder, error) {
	return s.store.Get(ctx, id)
}

// List returns every binder owned by ownerID.
func (s *Service) List(ctx context.Context, ownerID string) ([]*Binder, error) {
	return s.store.List(ctx, ownerID)
}

// Delete removes a binder.
func (s *Service) Delete(ctx context.Context, id string) error {
	unlock := s.lock(id)
	defer unlock()

	return s.store.Delete(ctx, id)
}

// Update loads the binder, applies fn, validates the result and saves it.
// Calls for the same binder id run one at a time. If fn returns an error
// nothing is written.
func (s *Service) Update(ctx context.Context, id string, fn func(*Binder) error) (*Binder, error) {
	unlock := s.lock(id)
	defer unlock()

	b, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(b); err != nil {
		return nil, err
	}
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("binder layout invalid after update: %w", err)
	}
	if err := s.store.Save(ctx, b); err != nil {
		return nil, fmt.Errorf("failed to save binder %s: %w", id, err)
	}

	return b, nil
}

// Place puts one card into the binder's first empty slot.
func (s *Service) Place(ctx context.Context, id string, card Card) (SlotRef, error) {
	var ref SlotRef
	_, err := s.Update(ctx, id, func(b *Binder) error {
		ref = b.PlaceCard(card)
		return nil
	})
	return ref, err
}

// Remove clears one slot without compacting.
func (s *Service) Remove(ctx context.Context, id string, page, position int) (*Card, error) {
	var removed *Card
	_, err := s.Update(ctx, id, func(b *Binder) error {
		c, err := b.RemoveCard(page, position)
		removed = c
		return err
	})
	return removed, err
}

// Move relocates a card, swapping with the target if occupied.
func (s *Service) Move(ctx context.Context, id string, from, to SlotRef) (*Binder, error) {
	return s.Update(ctx, id, func(b *Binder) error {
		return b.MoveCard(from, to)
	})
}

// Rearrange compacts the binder and saves it.
func (s *Service) Rearrange(ctx context.Context, id string) (*Binder, error) {
	b, err := s.Update(ctx, id, func(b *Binder) error {
		b.Rearrange()
		return nil
	})
	if err == nil {
		s.logger.Debug("Binder rearranged", zap.String("binder_id", id), zap.Int("pages", len(b.Pages)))
	}
	return b, err
}

func (s *Service) lock(id string) func() {
	s.mu.Lock()
	m, ok := s.locks[id]
	if !ok {
		m = &sync.Mutex{}
		s.locks[id] = m
	}
	s.mu.Unlock()

	m.Lock()
	return m.Unlock
}
