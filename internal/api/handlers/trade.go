package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ramonehamilton/binderkeep/internal/api/response"
	"github.com/ramonehamilton/binderkeep/internal/trade"
)

// TradeService is the subset of trade.Service used by the API.
type TradeService interface {
	Propose(ctx context.Context, initiatorID, recipientID string, wants, offers []trade.LineItem) (*trade.Trade, error)
	Get(ctx context.Context, id string) (*trade.Trade, error)
	List(ctx context.Context, userID string) ([]*trade.Trade, error)
	UpdateStatus(ctx context.Context, id, actor string, next trade.Status) (*trade.Trade, error)
}

// TradeHandler handles trade-related API requests.
type TradeHandler struct {
	trades TradeService
}

// NewTradeHandler creates a new TradeHandler.
func NewTradeHandler(trades TradeService) *TradeHandler {
	return &TradeHandler{trades: trades}
}

// ProposeTradeRequest represents a new trade proposal.
type ProposeTradeRequest struct {
	InitiatorID string           `json:"initiator_id"`
	RecipientID string           `json:"recipient_id"`
	Wants       []trade.LineItem `json:"wants"`
	Offers      []trade.LineItem `json:"offers"`
}

// ProposeTrade records a pending trade.
func (h *TradeHandler) ProposeTrade(w http.ResponseWriter, r *http.Request) {
	var req ProposeTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, errors.New("invalid request body"))
		return
	}

	t, err := h.trades.Propose(r.Context(), req.InitiatorID, req.RecipientID, req.Wants, req.Offers)
	if err != nil {
		writeError(w, err)
		return
	}
	response.Created(w, t)
}

// ListTrades returns trades involving ?user=.
func (h *TradeHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("user")
	if user == "" {
		response.BadRequest(w, errors.New("user query parameter is required"))
		return
	}

	trades, err := h.trades.List(r.Context(), user)
	if err != nil {
		writeError(w, err)
		return
	}
	response.Success(w, trades)
}

// GetTrade returns a single trade.
func (h *TradeHandler) GetTrade(w http.ResponseWriter, r *http.Request) {
	t, err := h.trades.Get(r.Context(), chi.URLParam(r, "tradeID"))
	if err != nil {
		writeError(w, err)
		return
	}
	response.Success(w, t)
}

// UpdateStatusRequest moves a trade to a new status on behalf of actor.
type UpdateStatusRequest struct {
	Actor  string `json:"actor"`
	Status string `json:"status"`
}

// UpdateStatus applies a status transition.
func (h *TradeHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, errors.New("invalid request body"))
		return
	}
	if req.Actor == "" {
		response.BadRequest(w, errors.New("actor is required"))
		return
	}

	next, err := trade.ParseStatus(req.Status)
	if err != nil {
		response.BadRequest(w, err)
		return
	}

	t, err := h.trades.UpdateStatus(r.Context(), chi.URLParam(r, "tradeID"), req.Actor, next)
	if err != nil {
		writeError(w, err)
		return
	}
	response.Success(w, t)
}
