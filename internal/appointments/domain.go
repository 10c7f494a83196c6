package appointments

import (
	"errors"
	"fmt"
	"time"
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusPending   Status = "pending"
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

var transitions = map[Status][]Status{
	StatusPending:   {StatusScheduled, StatusCancelled},
	StatusScheduled: {StatusCompleted, StatusNoShow, StatusCancelled},
}

// CanTransition reports whether an appointment may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Open reports whether the appointment still occupies its time slot.
func (s Status) Open() bool {
	return s == StatusPending || s == StatusScheduled
}

// Appointment is a meeting with a contact, optionally owned by a freelancer.
type Appointment struct {
	ID              int64     `json:"id" db:"id"`
	Title           string    `json:"title" db:"title"`
	ContactID       int64     `json:"contact_id" db:"contact_id"`
	FreelancerID    *int64    `json:"freelancer_id" db:"freelancer_id"`
	Start           time.Time `json:"start" db:"start_at"`
	DurationMinutes int       `json:"duration_minutes" db:"duration_minutes"`
	Status          Status    `json:"status" db:"status"`
	Notes           *string   `json:"notes,omitempty" db:"notes"`
	CreatedBy       int64     `json:"created_by" db:"created_by"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// Window returns the half-open interval the appointment occupies.
func (a Appointment) Window() Window {
	return NewWindow(a.Start, a.DurationMinutes)
}

// CreateRequest describes a new appointment. Without a freelancer the
// appointment waits in pending until accepted.
type CreateRequest struct {
	Title           string    `json:"title" validate:"required,max=200"`
	ContactID       int64     `json:"contact_id" validate:"required,gt=0"`
	FreelancerID    *int64    `json:"freelancer_id" validate:"omitempty,gt=0"`
	Start           time.Time `json:"start" validate:"required"`
	DurationMinutes int       `json:"duration_minutes" validate:"required,gt=0,lte=1440"`
	Notes           *string   `json:"notes,omitempty"`
}

// RescheduleRequest moves an open appointment.
type RescheduleRequest struct {
	Start           time.Time `json:"start" validate:"required"`
	DurationMinutes int       `json:"duration_minutes" validate:"required,gt=0,lte=1440"`
}

// AcceptRequest assigns a pending appointment.
type AcceptRequest struct {
	FreelancerID int64 `json:"freelancer_id" validate:"required,gt=0"`
}

// ListRequest filters appointment listings.
type ListRequest struct {
	FreelancerID *int64
	ContactID    *int64
	Status       *Status
	From         *time.Time
	To           *time.Time
	Limit        int
	Offset       int
}

var (
	ErrNotFound           = errors.New("appointment not found")
	ErrContactNotFound    = errors.New("contact not found")
	ErrFreelancerNotFound = errors.New("freelancer not found")
	ErrInvalidTransition  = errors.New("invalid appointment status transition")
	ErrSchedulingConflict = errors.New("scheduling conflict")
)

// ConflictError names the appointment a candidate collides with.
type ConflictError struct {
	Existing Appointment
}

func (e *ConflictError) Error() string {
	w := e.Existing.Window()
	return fmt.Sprintf("%s: overlaps %q (%s to %s)", ErrSchedulingConflict, e.Existing.Title,
		w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrSchedulingConflict
}
