package appointments

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/agencyops/agencyops/internal/contacts"
	"github.com/agencyops/agencyops/internal/platform/db"
	"github.com/agencyops/agencyops/internal/platform/httpx"
	"github.com/agencyops/agencyops/internal/shared"
)

// Service schedules appointments and drives their state machine.
type Service struct {
	repo     Repository
	audit    shared.AuditRecorder
	notifier shared.Notifier
	now      func() time.Time
}

// NewService constructs a Service. Nil audit or notifier fall back to no-ops.
func NewService(repo Repository, audit shared.AuditRecorder, notifier shared.Notifier) *Service {
	if audit == nil {
		audit = shared.NopAuditRecorder{}
	}
	if notifier == nil {
		notifier = shared.NopNotifier{}
	}
	return &Service{repo: repo, audit: audit, notifier: notifier, now: time.Now}
}

// checkSlot fails with a *ConflictError when candidate overlaps another
// appointment of its freelancer. It must run inside the writing transaction.
func checkSlot(ctx context.Context, repo Repository, candidate Appointment) error {
	if candidate.FreelancerID == nil {
		return nil
	}
	freelancerID := *candidate.FreelancerID
	if err := repo.LockFreelancer(ctx, freelancerID); err != nil {
		return fmt.Errorf("lock freelancer: %w", err)
	}
	window := candidate.Window()
	existing, err := repo.ListActiveForFreelancer(ctx, freelancerID, window.Start, window.End)
	if err != nil {
		return fmt.Errorf("list freelancer appointments: %w", err)
	}
	if other, found := FindConflict(candidate, existing); found {
		return &ConflictError{Existing: other}
	}
	return nil
}

// Create stores an appointment. With a freelancer it is scheduled straight
// away after a conflict check, otherwise it waits in pending.
func (s *Service) Create(ctx context.Context, req CreateRequest, actorID int64) (*Appointment, error) {
	if err := httpx.Validate(req); err != nil {
		return nil, err
	}
	a := Appointment{
		Title:           req.Title,
		ContactID:       req.ContactID,
		FreelancerID:    req.FreelancerID,
		Start:           req.Start.UTC(),
		DurationMinutes: req.DurationMinutes,
		Status:          StatusPending,
		Notes:           req.Notes,
		CreatedBy:       actorID,
	}
	if a.FreelancerID != nil {
		a.Status = StatusScheduled
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if err := checkSlot(ctx, repo, a); err != nil {
			return err
		}
		id, err := repo.Create(ctx, a)
		if db.IsForeignKeyViolation(err) {
			return fmt.Errorf("%w: contact_id %d does not exist", httpx.ErrValidation, a.ContactID)
		}
		if err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}
		a.ID = id
		return nil
	})
	if err != nil {
		s.notifyFailure(ctx, "Appointment could not be created", 0, err)
		return nil, err
	}
	s.record(ctx, actorID, "appointment.create", a.ID, map[string]any{"status": string(a.Status)})
	return s.repo.Get(ctx, a.ID)
}

// Reschedule moves an open appointment, re-checking the freelancer's calendar.
func (s *Service) Reschedule(ctx context.Context, id int64, req RescheduleRequest, actorID int64) (*Appointment, error) {
	if err := httpx.Validate(req); err != nil {
		return nil, err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		current, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !current.Status.Open() {
			return fmt.Errorf("%w: cannot reschedule %s appointment", ErrInvalidTransition, current.Status)
		}
		current.Start = req.Start.UTC()
		current.DurationMinutes = req.DurationMinutes
		if err := checkSlot(ctx, repo, *current); err != nil {
			return err
		}
		return repo.UpdateSchedule(ctx, id, current.Start, current.DurationMinutes)
	})
	if err != nil {
		s.notifyFailure(ctx, "Appointment could not be rescheduled", id, err)
		return nil, err
	}
	s.record(ctx, actorID, "appointment.reschedule", id, map[string]any{"start": req.Start.UTC().Format(time.RFC3339)})
	return s.repo.Get(ctx, id)
}

// Accept assigns a pending appointment to a freelancer, schedules it and
// moves the linked contact to prospect under that freelancer. Either every
// write lands or none does.
func (s *Service) Accept(ctx context.Context, id int64, req AcceptRequest, actorID int64) (*Appointment, error) {
	if err := httpx.Validate(req); err != nil {
		return nil, err
	}
	var contactID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		current, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !CanTransition(current.Status, StatusScheduled) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, StatusScheduled)
		}
		contactID = current.ContactID
		current.FreelancerID = &req.FreelancerID
		if err := checkSlot(ctx, repo, *current); err != nil {
			return err
		}
		if err := repo.Assign(ctx, id, req.FreelancerID); err != nil {
			return fmt.Errorf("assign appointment: %w", err)
		}
		if err := repo.SetContactStatus(ctx, current.ContactID, contacts.StatusProspect, req.FreelancerID); err != nil {
			return fmt.Errorf("update contact: %w", err)
		}
		return nil
	})
	if err != nil {
		s.notifyFailure(ctx, "Appointment could not be accepted", id, err)
		return nil, err
	}
	s.record(ctx, actorID, "appointment.accept", id, map[string]any{
		"freelancer_id": req.FreelancerID,
		"contact_id":    contactID,
	})
	s.notifier.Notify(ctx, shared.Notification{
		Kind:    shared.NotifySuccess,
		Subject: "appointment",
		Message: "Appointment accepted",
		Meta:    map[string]any{"appointment_id": id, "freelancer_id": req.FreelancerID},
	})
	return s.repo.Get(ctx, id)
}

// Complete closes a scheduled appointment that took place.
func (s *Service) Complete(ctx context.Context, id, actorID int64) (*Appointment, error) {
	return s.transition(ctx, id, StatusCompleted, actorID)
}

// MarkNoShow closes a scheduled appointment the contact missed.
func (s *Service) MarkNoShow(ctx context.Context, id, actorID int64) (*Appointment, error) {
	return s.transition(ctx, id, StatusNoShow, actorID)
}

// Cancel frees the slot of a pending or scheduled appointment.
func (s *Service) Cancel(ctx context.Context, id, actorID int64) (*Appointment, error) {
	return s.transition(ctx, id, StatusCancelled, actorID)
}

func (s *Service) transition(ctx context.Context, id int64, to Status, actorID int64) (*Appointment, error) {
	var from Status
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		current, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		from = current.Status
		if !CanTransition(from, to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
		}
		return repo.UpdateStatus(ctx, id, from, to)
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, actorID, "appointment.status."+string(to), id, map[string]any{"from": string(from)})
	return s.repo.Get(ctx, id)
}

// Get returns one appointment.
func (s *Service) Get(ctx context.Context, id int64) (*Appointment, error) {
	return s.repo.Get(ctx, id)
}

// List returns appointments matching req.
func (s *Service) List(ctx context.Context, req ListRequest) ([]Appointment, int, error) {
	if req.Limit <= 0 {
		req.Limit = 50
	}
	return s.repo.List(ctx, req)
}

func (s *Service) notifyFailure(ctx context.Context, msg string, id int64, err error) {
	meta := map[string]any{"error": err.Error()}
	if id != 0 {
		meta["appointment_id"] = id
	}
	var conflict *ConflictError
	if errors.As(err, &conflict) {
		meta["conflicting_id"] = conflict.Existing.ID
		meta["conflicting_title"] = conflict.Existing.Title
	}
	s.notifier.Notify(ctx, shared.Notification{Kind: shared.NotifyError, Subject: "appointment", Message: msg, Meta: meta})
}

func (s *Service) record(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "appointment",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
		At:       s.now(),
	})
}
