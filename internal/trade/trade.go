// Package trade holds card trade proposals between two users and the
// status transitions both parties can see.
package trade

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ramonehamilton/binderkeep/internal/binder"
)

// Status is the state of a trade.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusDeclined  Status = "declined"
	StatusCompleted Status = "completed"
)

var (
	// ErrInvalidTrade is returned for malformed proposals.
	ErrInvalidTrade = errors.New("invalid trade")

	// ErrInvalidTransition is returned for status changes the state
	// machine does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrNotParticipant is returned when someone outside the trade, or the
	// wrong party, tries to change its status.
	ErrNotParticipant = errors.New("user may not change this trade")
)

// transitions lists the allowed next states.
var transitions = map[Status][]Status{
	StatusPending:  {StatusAccepted, StatusDeclined},
	StatusAccepted: {StatusCompleted},
}

// ParseStatus validates a status name.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusPending, StatusAccepted, StatusDeclined, StatusCompleted:
		return st, nil
	}
	return "", fmt.Errorf("unknown trade status %q", s)
}

// CanTransitionTo reports whether a trade in s may move to next.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Final reports whether no further transitions are possible.
func (s Status) Final() bool {
	return len(transitions[s]) == 0
}

// LineItem is a snapshot of a card and how many copies change hands.
type LineItem struct {
	Card     binder.Card `json:"card"`
	Quantity int         `json:"quantity"`
}

// Trade is a proposal from the initiator to the recipient. Wants are cards
// the initiator asks for, Offers are cards the initiator gives.
type Trade struct {
	ID          string     `json:"id"`
	InitiatorID string     `json:"initiator_id"`
	RecipientID string     `json:"recipient_id"`
	Status      Status     `json:"status"`
	Wants       []LineItem `json:"wants"`
	Offers      []LineItem `json:"offers"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// New validates and creates a pending trade.
func New(initiatorID, recipientID string, wants, offers []LineItem) (*Trade, error) {
	initiatorID = strings.TrimSpace(initiatorID)
	recipientID = strings.TrimSpace(recipientID)

	switch {
	case initiatorID == "" || recipientID == "":
		return nil, fmt.Errorf("%w: initiator and recipient are required", ErrInvalidTrade)
	case initiatorID == recipientID:
		return nil, fmt.Errorf("%w: cannot trade with yourself", ErrInvalidTrade)
	case len(wants) == 0 && len(offers) == 0:
		return nil, fmt.Errorf("%w: trade has no cards", ErrInvalidTrade)
	}

	for side, items := range map[string][]LineItem{"wants": wants, "offers": offers} {
		for i, item := range items {
			if strings.TrimSpace(item.Card.Name) == "" {
				return nil, fmt.Errorf("%w: %s[%d] has no card name", ErrInvalidTrade, side, i)
			}
			if item.Quantity < 1 {
				return nil, fmt.Errorf("%w: %s[%d] quantity must be positive", ErrInvalidTrade, side, i)
			}
		}
	}

	now := time.Now().UTC()
	return &Trade{
		ID:          uuid.NewString(),
		InitiatorID: initiatorID,
		RecipientID: recipientID,
		Status:      StatusPending,
		Wants:       append([]LineItem(nil), wants...),
		Offers:      append([]LineItem(nil), offers...),
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Involves reports whether userID is a party to the trade.
func (t *Trade) Involves(userID string) bool {
	return userID != "" && (userID == t.InitiatorID || userID == t.RecipientID)
}

// Transition moves the trade to next on behalf of actor. Only the
// recipient may accept or decline; either party may complete.
func (t *Trade) Transition(actor string, next Status) error {
	if !t.Involves(actor) {
		return ErrNotParticipant
	}
	if !t.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, t.Status, next)
	}
	if (next == StatusAccepted || next == StatusDeclined) && actor != t.RecipientID {
		return ErrNotParticipant
	}

	t.Status = next
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// Value sums the known prices of each side.
func (t *Trade) Value() (wants, offers float64) {
	return total(t.Wants), total(t.Offers)
}

func total(items []LineItem) float64 {
	var sum float64
	for _, item := range items {
		if item.Card.Price != nil {
			sum += *item.Card.Price * float64(item.Quantity)
		}
	}
	return sum
}
