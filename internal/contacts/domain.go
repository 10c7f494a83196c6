package contacts

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status is the sales stage of a contact.
type Status string

const (
	StatusLead     Status = "lead"
	StatusProspect Status = "prospect"
	StatusClient   Status = "client"
	StatusInactive Status = "inactive"
)

// Contact is a person the agency deals with.
type Contact struct {
	ID           int64     `json:"id" db:"id"`
	FirstName    string    `json:"first_name" db:"first_name"`
	LastName     string    `json:"last_name" db:"last_name"`
	Email        *string   `json:"email,omitempty" db:"email"`
	Phone        *string   `json:"phone,omitempty" db:"phone"`
	Status       Status    `json:"status" db:"status"`
	FreelancerID *int64    `json:"freelancer_id,omitempty" db:"freelancer_id"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// FullName joins first and last name.
func (c Contact) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// Input is the editable part of a contact.
type Input struct {
	FirstName    string  `json:"first_name" validate:"required,max=100"`
	LastName     string  `json:"last_name" validate:"max=100"`
	Email        *string `json:"email,omitempty" validate:"omitempty,email,max=254"`
	Phone        *string `json:"phone,omitempty" validate:"omitempty,max=32"`
	Status       Status  `json:"status,omitempty" validate:"omitempty,oneof=lead prospect client inactive"`
	FreelancerID *int64  `json:"freelancer_id,omitempty" validate:"omitempty,gt=0"`
}

// ListRequest filters contact listings.
type ListRequest struct {
	Search       string
	Status       *Status
	FreelancerID *int64
	Limit        int
	Offset       int
}

// Field identifies which contact field matched an existing contact.
type Field string

const (
	FieldEmail Field = "email"
	FieldPhone Field = "phone"
)

// DuplicateResult is the outcome of a duplicate lookup.
type DuplicateResult struct {
	IsDuplicate bool     `json:"is_duplicate"`
	Field       Field    `json:"field,omitempty"`
	Existing    *Contact `json:"existing,omitempty"`
}

var (
	ErrNotFound  = errors.New("contact not found")
	ErrDuplicate = errors.New("duplicate contact")
)

// DuplicateError blocks a write that would collide with an existing contact.
type DuplicateError struct {
	Field    Field
	Existing Contact
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s already used by %s", e.Field, e.Existing.FullName())
}

func (e *DuplicateError) Is(target error) bool {
	return target == ErrDuplicate
}
