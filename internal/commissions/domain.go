package commissions

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Tier names a commission bracket.
type Tier string

const (
	TierBronze   Tier = "bronze"
	TierSilver   Tier = "silver"
	TierGold     Tier = "gold"
	TierPlatinum Tier = "platinum"
)

// TierRule maps an inclusive contract count range to a flat payout. A nil
// MaxContracts means the range is unbounded.
type TierRule struct {
	Tier         Tier    `json:"tier" db:"tier"`
	MinContracts int     `json:"min_contracts" db:"min_contracts"`
	MaxContracts *int    `json:"max_contracts" db:"max_contracts"`
	UnitAmount   float64 `json:"unit_amount" db:"unit_amount"`
}

// Contains reports whether count falls within the rule's range.
func (r TierRule) Contains(count int) bool {
	return count >= r.MinContracts && (r.MaxContracts == nil || count <= *r.MaxContracts)
}

// Status is the payout state of a commission.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
)

// Commission is one freelancer's payout for one month.
type Commission struct {
	ID            int64      `json:"id" db:"id"`
	FreelancerID  int64      `json:"freelancer_id" db:"freelancer_id"`
	Amount        float64    `json:"amount" db:"amount"`
	Tier          Tier       `json:"tier" db:"tier"`
	ContractCount int        `json:"contract_count" db:"contract_count"`
	Status        Status     `json:"status" db:"status"`
	PeriodStart   time.Time  `json:"period_start" db:"period_start"`
	PeriodEnd     time.Time  `json:"period_end" db:"period_end"`
	RunID         uuid.UUID  `json:"run_id" db:"run_id"`
	PaidAt        *time.Time `json:"paid_at,omitempty" db:"paid_at"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

// UpsertOutcome says what Upsert did with a row.
type UpsertOutcome int

const (
	OutcomeCreated UpsertOutcome = iota
	OutcomeUpdated
	OutcomeSkipped
)

// GenerationResult summarises one generation run.
type GenerationResult struct {
	RunID       uuid.UUID    `json:"run_id"`
	Period      string       `json:"period"`
	Created     int          `json:"created"`
	Updated     int          `json:"updated"`
	Skipped     int          `json:"skipped"`
	Commissions []Commission `json:"commissions"`
}

// ListRequest filters commission listings.
type ListRequest struct {
	PeriodStart  *time.Time
	FreelancerID *int64
	Status       *Status
	Limit        int
	Offset       int
}

var (
	ErrNotFound             = errors.New("commission not found")
	ErrInvalidTierTable     = errors.New("invalid commission tier table")
	ErrNoTier               = errors.New("no commission tier matches contract count")
	ErrInvalidTransition    = errors.New("invalid commission status transition")
	ErrGenerationInProgress = errors.New("commission generation already running for period")
)
