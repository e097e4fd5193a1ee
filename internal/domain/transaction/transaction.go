package transaction

import (
	"fmt"
	"time"

	"github.com/cassiomorais/bookaccess/internal/domain/errors"
	"github.com/google/uuid"
)

// Status represents the settlement state of a purchase.
type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	StatusFailed  Status = "failed"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s Status) IsTerminal() bool {
	return s == StatusPaid || s == StatusFailed
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusFailed:
		return true
	}
	return false
}

// DaysPerMonth is the divisor used to turn a monthly rate into a daily one.
const DaysPerMonth = 30

// Amount represents a monetary amount in the smallest currency unit (e.g. cents).
type Amount struct {
	ValueCents int64
	Currency   string
}

// String returns a human-readable representation of the amount.
func (a Amount) String() string {
	whole := a.ValueCents / 100
	frac := a.ValueCents % 100
	if frac < 0 {
		frac = -frac
	}
	return fmt.Sprintf("%d.%02d %s", whole, frac, a.Currency)
}

// Validate checks that the amount is valid.
func (a Amount) Validate() error {
	return validateAmount(a)
}

// ComputeAmount prices durationDays of access at monthlyRateCents per 30 days,
// rounding half-up to the cent.
func ComputeAmount(monthlyRateCents int64, durationDays int, currency string) (Amount, error) {
	if durationDays <= 0 {
		return Amount{}, errors.NewValidationError("duration_days", "must be greater than 0")
	}
	if monthlyRateCents < 0 {
		return Amount{}, errors.NewValidationError("monthly_rate", "cannot be negative")
	}
	// rate*days/30 rounded half-up, kept in integers: (2*rate*days + 30) / 60
	cents := (2*monthlyRateCents*int64(durationDays) + DaysPerMonth) / (2 * DaysPerMonth)
	return Amount{ValueCents: cents, Currency: currency}, nil
}

// Transaction is a single purchase of time-boxed access to an item.
// Values are treated as immutable: every state change produces a new value.
type Transaction struct {
	ID               uuid.UUID
	UserID           string
	CustomerEmail    string
	ItemID           int64
	Amount           Amount
	DurationDays     int
	Status           Status
	GatewayProvider  string
	GatewaySessionID *string
	CheckoutURL      *string
	FailureReason    *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	SettledAt        *time.Time
}

// New creates a pending transaction stamped with now.
func New(userID, customerEmail string, itemID int64, amount Amount, durationDays int, now time.Time) (*Transaction, error) {
	if userID == "" {
		return nil, errors.NewValidationError("user_id", "cannot be empty")
	}
	if durationDays <= 0 {
		return nil, errors.NewValidationError("duration_days", "must be greater than 0")
	}
	if err := validateAmount(amount); err != nil {
		return nil, err
	}

	now = now.UTC()
	return &Transaction{
		ID:            uuid.New(),
		UserID:        userID,
		CustomerEmail: customerEmail,
		ItemID:        itemID,
		Amount:        amount,
		DurationDays:  durationDays,
		Status:        StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// CanTransition reports whether from -> to is a legal settlement.
// Only pending transactions may move, and only to a terminal state.
func CanTransition(from, to Status) bool {
	return from == StatusPending && to.IsTerminal()
}

// Transition returns a copy of t moved to status to. reason is recorded for failures.
func (t *Transaction) Transition(to Status, reason string, at time.Time) (*Transaction, error) {
	if !CanTransition(t.Status, to) {
		return nil, errors.NewDomainError(
			"invalid_transition",
			"cannot transition from "+string(t.Status)+" to "+string(to),
			errors.ErrInvalidStateTransition,
		)
	}

	next := *t
	next.Status = to
	next.UpdatedAt = at
	settled := at
	next.SettledAt = &settled
	if to == StatusFailed && reason != "" {
		r := reason
		next.FailureReason = &r
	}
	return &next, nil
}

// WithSession returns a copy of t bound to a hosted checkout session.
func (t *Transaction) WithSession(provider, sessionID, checkoutURL string, at time.Time) *Transaction {
	next := *t
	next.GatewayProvider = provider
	next.GatewaySessionID = &sessionID
	next.CheckoutURL = &checkoutURL
	next.UpdatedAt = at.UTC()
	return &next
}

// IsTerminal checks if the transaction is in a terminal state
func (t *Transaction) IsTerminal() bool {
	return t.Status.IsTerminal()
}

// SessionID returns the gateway session id or an empty string.
func (t *Transaction) SessionID() string {
	if t.GatewaySessionID == nil {
		return ""
	}
	return *t.GatewaySessionID
}

func validateAmount(amount Amount) error {
	if amount.ValueCents <= 0 {
		return errors.NewValidationError("amount", "must be greater than 0")
	}
	if amount.Currency == "" {
		return errors.NewValidationError("currency", "cannot be empty")
	}
	if len(amount.Currency) != 3 {
		return errors.NewValidationError("currency", "must be a 3-letter ISO code")
	}
	return nil
}
