package quotes

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Status is the lifecycle state of a quote.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSent      Status = "sent"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// transitions lists the moves out of each status. Rejected, expired and
// cancelled are terminal; an accepted quote can still be withdrawn.
var transitions = map[Status][]Status{
	StatusDraft:    {StatusSent, StatusCancelled},
	StatusSent:     {StatusAccepted, StatusRejected, StatusExpired, StatusCancelled},
	StatusAccepted: {StatusCancelled},
}

// CanTransition reports whether a quote may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusSent, StatusAccepted, StatusRejected, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// ItemsEditable reports whether items may still change in this status.
func (s Status) ItemsEditable() bool {
	return s == StatusDraft
}

// Quote is a priced offer made to a contact by a freelancer.
type Quote struct {
	ID           int64     `json:"id" db:"id"`
	ContactID    int64     `json:"contact_id" db:"contact_id"`
	FreelancerID int64     `json:"freelancer_id" db:"freelancer_id"`
	ValidUntil   time.Time `json:"valid_until" db:"valid_until"`
	Status       Status    `json:"status" db:"status"`
	TotalAmount  float64   `json:"total_amount" db:"total_amount"`
	Notes        *string   `json:"notes,omitempty" db:"notes"`
	CreatedBy    int64     `json:"created_by" db:"created_by"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
	Items        []Item    `json:"items,omitempty" db:"-"`
}

// Item is one priced line of a quote. Nil numeric fields are treated as
// missing form input.
type Item struct {
	ID              int64    `json:"id,omitempty" db:"id"`
	QuoteID         int64    `json:"quote_id,omitempty" db:"quote_id"`
	Description     string   `json:"description" db:"description"`
	Quantity        *int     `json:"quantity" db:"quantity"`
	UnitPrice       *float64 `json:"unit_price" db:"unit_price"`
	DiscountPercent *float64 `json:"discount_percent,omitempty" db:"discount_percent"`
	TaxPercent      *float64 `json:"tax_percent,omitempty" db:"tax_percent"`
	Position        int      `json:"position" db:"position"`
	ToDelete        bool     `json:"to_delete,omitempty" db:"-"`
}

// Form is the editable state of a quote before submission.
type Form struct {
	ContactID    int64      `json:"contact_id"`
	FreelancerID int64      `json:"freelancer_id"`
	ValidUntil   *time.Time `json:"valid_until"`
	Notes        *string    `json:"notes,omitempty"`
	Items        []Item     `json:"items"`
}

// dateLayout is the calendar form of valid_until.
const dateLayout = "2006-01-02"

// UnmarshalJSON accepts valid_until as a calendar date or an RFC 3339
// timestamp. Anything else fails as a *ValidationError on valid_until once
// the rest of the form has been decoded.
func (f *Form) UnmarshalJSON(data []byte) error {
	type formFields Form
	aux := struct {
		*formFields
		ValidUntil json.RawMessage `json:"valid_until"`
	}{formFields: (*formFields)(f)}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&aux); err != nil {
		return err
	}

	f.ValidUntil = nil
	if len(aux.ValidUntil) == 0 || string(aux.ValidUntil) == "null" {
		return nil
	}
	var raw string
	if err := json.Unmarshal(aux.ValidUntil, &raw); err != nil {
		return &ValidationError{Field: FieldValidUntil, Message: "validity date must be a date (YYYY-MM-DD)"}
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	t, err := ParseValidUntil(raw)
	if err != nil {
		return &ValidationError{Field: FieldValidUntil, Message: "validity date must be a date (YYYY-MM-DD)"}
	}
	f.ValidUntil = &t
	return nil
}

// ParseValidUntil reads YYYY-MM-DD as midnight UTC, falling back to RFC 3339.
func ParseValidUntil(raw string) (time.Time, error) {
	if t, err := time.Parse(dateLayout, raw); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}

// ListRequest filters quote listings.
type ListRequest struct {
	ContactID    *int64  `json:"contact_id,omitempty"`
	FreelancerID *int64  `json:"freelancer_id,omitempty"`
	Status       *Status `json:"status,omitempty"`
	Limit        int     `json:"limit" validate:"gte=0,lte=200"`
	Offset       int     `json:"offset" validate:"gte=0"`
}

var (
	ErrNotFound          = errors.New("quote not found")
	ErrInvalidTransition = errors.New("invalid quote status transition")
	ErrItemsLocked       = errors.New("quote items can only change while draft")
	ErrExpired           = errors.New("quote validity date has passed")
	ErrStaleStatus       = errors.New("quote status changed concurrently")
)
