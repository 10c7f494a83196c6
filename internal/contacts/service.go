package contacts

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/agencyops/agencyops/internal/platform/db"
	"github.com/agencyops/agencyops/internal/platform/httpx"
	"github.com/agencyops/agencyops/internal/shared"
)

// Service manages contacts and gates writes on duplicate checks.
type Service struct {
	repo     Repository
	checker  *DuplicateChecker
	live     *LiveChecks
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
	checker := NewDuplicateChecker(repo)
	return &Service{
		repo:     repo,
		checker:  checker,
		live:     NewLiveChecks(checker, DefaultLiveDebounce, DefaultLiveIdle),
		audit:    audit,
		notifier: notifier,
		now:      time.Now,
	}
}

// LiveCheck runs the debounced as-you-type check for one field of an open
// form. Only the newest value per field settles; older calls get ErrSuperseded.
func (s *Service) LiveCheck(ctx context.Context, session string, excludeID int64, field Field, value string) (FieldResult, error) {
	if session == "" || len(session) > 64 {
		return FieldResult{}, fmt.Errorf("%w: session must be 1 to 64 characters", httpx.ErrValidation)
	}
	if field != FieldEmail && field != FieldPhone {
		return FieldResult{}, fmt.Errorf("%w: unknown field %q", httpx.ErrValidation, field)
	}
	return s.live.Check(ctx, session, excludeID, field, value)
}

// Close stops open live check sessions.
func (s *Service) Close() {
	s.live.Close()
}

// CheckDuplicates runs the synchronous duplicate lookup.
func (s *Service) CheckDuplicates(ctx context.Context, email, phone string, excludeID int64) (DuplicateResult, error) {
	return s.checker.Check(ctx, email, phone, excludeID)
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}

func (s *Service) prepare(in Input) (Contact, error) {
	in.Email = trimmed(in.Email)
	in.Phone = trimmed(in.Phone)
	if err := httpx.Validate(in); err != nil {
		return Contact{}, err
	}
	c := Contact{
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Email:        normalizedPtr(in.Email, NormalizeEmail),
		Phone:        normalizedPtr(in.Phone, NormalizePhone),
		Status:       in.Status,
		FreelancerID: in.FreelancerID,
	}
	if c.Status == "" {
		c.Status = StatusLead
	}
	return c, nil
}

// gate fails with a *DuplicateError when c collides with another contact.
func (s *Service) gate(ctx context.Context, c Contact) error {
	var email, phone string
	if c.Email != nil {
		email = *c.Email
	}
	if c.Phone != nil {
		phone = *c.Phone
	}
	res, err := s.checker.Check(ctx, email, phone, c.ID)
	if err != nil {
		return err
	}
	if res.IsDuplicate {
		return &DuplicateError{Field: res.Field, Existing: *res.Existing}
	}
	return nil
}

// uniqueViolation turns a lost race on the unique indexes into a DuplicateError.
func (s *Service) uniqueViolation(ctx context.Context, c Contact, err error) error {
	if !db.IsUniqueViolation(err) {
		return err
	}
	if gateErr := s.gate(ctx, c); gateErr != nil {
		return gateErr
	}
	return fmt.Errorf("%w: %v", ErrDuplicate, err)
}

// Create stores a new contact after the duplicate gate.
func (s *Service) Create(ctx context.Context, in Input, actorID int64) (*Contact, error) {
	c, err := s.prepare(in)
	if err != nil {
		return nil, err
	}
	if err := s.gate(ctx, c); err != nil {
		s.notifyDuplicate(ctx, err)
		return nil, err
	}
	id, err := s.repo.Create(ctx, c)
	if err != nil {
		return nil, s.uniqueViolation(ctx, c, err)
	}
	s.record(ctx, actorID, "contact.create", id)
	return s.repo.Get(ctx, id)
}

// Update replaces a contact's fields after the duplicate gate, ignoring the
// contact itself.
func (s *Service) Update(ctx context.Context, id int64, in Input, actorID int64) (*Contact, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	c, err := s.prepare(in)
	if err != nil {
		return nil, err
	}
	c.ID = id
	if in.Status == "" {
		c.Status = current.Status
	}
	if err := s.gate(ctx, c); err != nil {
		s.notifyDuplicate(ctx, err)
		return nil, err
	}
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, s.uniqueViolation(ctx, c, err)
	}
	s.record(ctx, actorID, "contact.update", id)
	return s.repo.Get(ctx, id)
}

// Get returns one contact.
func (s *Service) Get(ctx context.Context, id int64) (*Contact, error) {
	return s.repo.Get(ctx, id)
}

// List returns contacts matching req.
func (s *Service) List(ctx context.Context, req ListRequest) ([]Contact, int, error) {
	if req.Limit <= 0 {
		req.Limit = 50
	}
	return s.repo.List(ctx, req)
}

func (s *Service) notifyDuplicate(ctx context.Context, err error) {
	var dup *DuplicateError
	if !errors.As(err, &dup) {
		return
	}
	s.notifier.Notify(ctx, shared.Notification{
		Kind:    shared.NotifyError,
		Subject: "contact",
		Message: dup.Error(),
		Meta:    map[string]any{"field": string(dup.Field), "existing_id": dup.Existing.ID},
	})
}

func (s *Service) record(ctx context.Context, actorID int64, action string, id int64) {
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "contact",
		EntityID: strconv.FormatInt(id, 10),
		At:       s.now(),
	})
}
