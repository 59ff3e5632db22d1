package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ramonehamilton/binderkeep/internal/api/response"
	"github.com/ramonehamilton/binderkeep/internal/binder"
	"github.com/ramonehamilton/binderkeep/internal/csvimport"
	"github.com/ramonehamilton/binderkeep/internal/export"
	"github.com/ramonehamilton/binderkeep/internal/logging"
)

// BinderService is the subset of binder.Service used by the API.
type BinderService interface {
	Create(ctx context.Context, ownerID, name string, public bool) (*binder.Binder, error)
	Get(ctx context.Context, id string) (*binder.Binder, error)
	List(ctx context.Context, ownerID string) ([]*binder.Binder, error)
	Delete(ctx context.Context, id string) error
	Remove(ctx context.Context, id string, page, position int) (*binder.Card, error)
	Move(ctx context.Context, id string, from, to binder.SlotRef) (*binder.Binder, error)
	Rearrange(ctx context.Context, id string) (*binder.Binder, error)
}

// CardAdder resolves one card and places it into a binder.
type CardAdder interface {
	AddOne(ctx context.Context, binderID string, row csvimport.Row) (*binder.Card, binder.SlotRef, error)
}

// BinderHandler handles binder-related API requests.
type BinderHandler struct {
	binders BinderService
	cards   CardAdder
	logger  *zap.Logger
}

// NewBinderHandler creates a new BinderHandler.
func NewBinderHandler(binders BinderService, cards CardAdder, logger *zap.Logger) *BinderHandler {
	return &BinderHandler{binders: binders, cards: cards, logger: logger}
}

// BinderSummary is the list view of a binder.
type BinderSummary struct {
	ID         string  `json:"id"`
	OwnerID    string  `json:"owner_id"`
	Name       string  `json:"name"`
	Public     bool    `json:"public"`
	Pages      int     `json:"pages"`
	CardCount  int     `json:"card_count"`
	TotalValue float64 `json:"total_value"`
}

func summarize(b *binder.Binder) BinderSummary {
	return BinderSummary{
		ID:         b.ID,
		OwnerID:    b.OwnerID,
		Name:       b.Name,
		Public:     b.Public,
		Pages:      len(b.Pages),
		CardCount:  b.CardCount(),
		TotalValue: b.TotalValue(),
	}
}

// CreateBinderRequest represents a request to create a binder.
type CreateBinderRequest struct {
	OwnerID string `json:"owner_id"`
	Name    string `json:"name"`
	Public  bool   `json:"public"`
}

// CreateBinder creates a new empty binder.
func (h *BinderHandler) CreateBinder(w http.ResponseWriter, r *http.Request) {
	var req CreateBinderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, errors.New("invalid request body"))
		return
	}

	if strings.TrimSpace(req.OwnerID) == "" {
		response.BadRequest(w, errors.New("owner_id is required"))
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		response.BadRequest(w, errors.New("binder name is required"))
		return
	}

	b, err := h.binders.Create(r.Context(), req.OwnerID, req.Name, req.Public)
	if err != nil {
		writeError(w, err)
		return
	}

	response.Created(w, b)
}

// ListBinders returns summaries of the binders owned by ?owner=.
func (h *BinderHandler) ListBinders(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		response.BadRequest(w, errors.New("owner query parameter is required"))
		return
	}

	binders, err := h.binders.List(r.Context(), owner)
	if err != nil {
		writeError(w, err)
		return
	}

	summaries := make([]BinderSummary, 0, len(binders))
	for _, b := range binders {
		summaries = append(summaries, summarize(b))
	}
	response.Success(w, summaries)
}

// GetBinder returns a full binder document.
func (h *BinderHandler) GetBinder(w http.ResponseWriter, r *http.Request) {
	b, err := h.binders.Get(r.Context(), chi.URLParam(r, "binderID"))
	if err != nil {
		writeError(w, err)
		return
	}
	response.Success(w, b)
}

// ExportBinder downloads the binder's cards as CSV (default) or JSON.
func (h *BinderHandler) ExportBinder(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		response.BadRequest(w, err)
		return
	}

	b, err := h.binders.Get(r.Context(), chi.URLParam(r, "binderID"))
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(b, format)))
	if err := export.WriteBinder(w, b, format); err != nil {
		logging.FromContext(r.Context(), h.logger).Error("Failed to write export",
			zap.String("binder_id", b.ID), zap.Error(err))
	}
}

// DeleteBinder removes a binder.
func (h *BinderHandler) DeleteBinder(w http.ResponseWriter, r *http.Request) {
	if err := h.binders.Delete(r.Context(), chi.URLParam(r, "binderID")); err != nil {
		writeError(w, err)
		return
	}
	response.NoContent(w)
}

// AddCardRequest identifies one card to resolve and place.
type AddCardRequest struct {
	Name            string `json:"name"`
	Set             string `json:"set,omitempty"`
	CollectorNumber string `json:"collector_number,omitempty"`
	Quantity        int    `json:"quantity,omitempty"`
	Condition       string `json:"condition,omitempty"`
	Finish          string `json:"finish,omitempty"`
	Notes           string `json:"notes,omitempty"`
}

// AddCardResponse reports where the card went.
type AddCardResponse struct {
	Card *binder.Card   `json:"card"`
	Slot binder.SlotRef `json:"slot"`
}

// AddCard resolves a card by name and optional set and places it in the
// first empty slot.
func (h *BinderHandler) AddCard(w http.ResponseWriter, r *http.Request) {
	var req AddCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, errors.New("invalid request body"))
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		response.BadRequest(w, errors.New("card name is required"))
		return
	}

	row := csvimport.Row{
		Name:            strings.TrimSpace(req.Name),
		Set:             csvimport.CleanSet(req.Set),
		CollectorNumber: strings.TrimSpace(req.CollectorNumber),
		Quantity:        req.Quantity,
		Condition:       strings.TrimSpace(req.Condition),
		Finish:          csvimport.ParseFinish(req.Finish),
		Notes:           req.Notes,
	}

	binderID := chi.URLParam(r, "binderID")
	card, ref, err := h.cards.AddOne(r.Context(), binderID, row)
	if err != nil {
		logging.FromContext(r.Context(), h.logger).Info("Card add failed",
			zap.String("binder_id", binderID), zap.String("name", row.Name), zap.Error(err))
		writeError(w, err)
		return
	}

	response.Created(w, AddCardResponse{Card: card, Slot: ref})
}

// RemoveCard clears one slot. Other cards do not move.
func (h *BinderHandler) RemoveCard(w http.ResponseWriter, r *http.Request) {
	page, err := strconv.Atoi(chi.URLParam(r, "page"))
	if err != nil {
		response.BadRequest(w, errors.New("page must be a number"))
		return
	}
	position, err := strconv.Atoi(chi.URLParam(r, "position"))
	if err != nil {
		response.BadRequest(w, errors.New("position must be a number"))
		return
	}

	card, err := h.binders.Remove(r.Context(), chi.URLParam(r, "binderID"), page, position)
	if err != nil {
		writeError(w, err)
		return
	}
	response.Success(w, card)
}

// MoveCardRequest represents a request to move a card between slots.
type MoveCardRequest struct {
	From binder.SlotRef `json:"from"`
	To   binder.SlotRef `json:"to"`
}

// MoveCard moves a card, swapping with the target slot if it is occupied.
func (h *BinderHandler) MoveCard(w http.ResponseWriter, r *http.Request) {
	var req MoveCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, errors.New("invalid request body"))
		return
	}

	b, err := h.binders.Move(r.Context(), chi.URLParam(r, "binderID"), req.From, req.To)
	if err != nil {
		writeError(w, err)
		return
	}
	response.Success(w, b)
}

// Rearrange compacts the binder so cards fill slots from the front.
func (h *BinderHandler) Rearrange(w http.ResponseWriter, r *http.Request) {
	b, err := h.binders.Rearrange(r.Context(), chi.URLParam(r, "binderID"))
	if err != nil {
		writeError(w, err)
		return
	}
	response.Success(w, b)
}
