package contacts

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agencyops/agencyops/internal/platform/httpx"
	"github.com/agencyops/agencyops/internal/shared"
)

type mockRepository struct {
	contacts map[int64]*Contact
	nextID   int64

	createError error
}

func newMockRepository() *mockRepository {
	return &mockRepository{contacts: make(map[int64]*Contact), nextID: 1}
}

func (m *mockRepository) find(match func(*Contact) bool, excludeID int64) (*Contact, error) {
	for id := int64(1); id < m.nextID; id++ {
		c, ok := m.contacts[id]
		if !ok || id == excludeID {
			continue
		}
		if match(c) {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockRepository) FindByEmail(ctx context.Context, email string, excludeID int64) (*Contact, error) {
	return m.find(func(c *Contact) bool { return c.Email != nil && *c.Email == email }, excludeID)
}

func (m *mockRepository) FindByPhone(ctx context.Context, phone string, excludeID int64) (*Contact, error) {
	return m.find(func(c *Contact) bool { return c.Phone != nil && *c.Phone == phone }, excludeID)
}

func (m *mockRepository) Get(ctx context.Context, id int64) (*Contact, error) {
	c, ok := m.contacts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *mockRepository) List(ctx context.Context, req ListRequest) ([]Contact, int, error) {
	var out []Contact
	for id := int64(1); id < m.nextID; id++ {
		if c, ok := m.contacts[id]; ok {
			out = append(out, *c)
		}
	}
	return out, len(out), nil
}

func (m *mockRepository) Create(ctx context.Context, c Contact) (int64, error) {
	if m.createError != nil {
		return 0, m.createError
	}
	c.ID = m.nextID
	m.nextID++
	m.contacts[c.ID] = &c
	return c.ID, nil
}

func (m *mockRepository) Update(ctx context.Context, c Contact) error {
	if _, ok := m.contacts[c.ID]; !ok {
		return ErrNotFound
	}
	m.contacts[c.ID] = &c
	return nil
}

func newTestService() (*Service, *mockRepository, *[]shared.Notification) {
	repo := newMockRepository()
	var notes []shared.Notification
	svc := NewService(repo, nil, shared.NotifierFunc(func(ctx context.Context, n shared.Notification) {
		notes = append(notes, n)
	}))
	return svc, repo, &notes
}

func TestServiceCreateNormalisesAndDefaultsStatus(t *testing.T) {
	svc, _, _ := newTestService()
	c, err := svc.Create(context.Background(), Input{
		FirstName: " Jane ",
		LastName:  "Doe",
		Email:     strp(" Jane@Example.com "),
		Phone:     strp("0033 6 12 34 56 78"),
	}, 5)
	require.NoError(t, err)
	assert.Equal(t, "Jane", c.FirstName)
	assert.Equal(t, "jane@example.com", *c.Email)
	assert.Equal(t, "+33612345678", *c.Phone)
	assert.Equal(t, StatusLead, c.Status)
}

func TestServiceCreateBlocksDuplicate(t *testing.T) {
	svc, repo, notes := newTestService()
	ctx := context.Background()
	_, err := svc.Create(ctx, Input{FirstName: "Jane", LastName: "Doe", Email: strp("jane@example.com")}, 5)
	require.NoError(t, err)

	_, err = svc.Create(ctx, Input{FirstName: "J", Email: strp("JANE@example.com")}, 5)
	var dup *DuplicateError
	require.ErrorAs(t, err, &dup)
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Equal(t, FieldEmail, dup.Field)
	assert.Equal(t, "email already used by Jane Doe", dup.Error())
	assert.Len(t, repo.contacts, 1)
	require.Len(t, *notes, 1)
	assert.Equal(t, shared.NotifyError, (*notes)[0].Kind)
}

func TestServiceUpdateIgnoresItself(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	jane, err := svc.Create(ctx, Input{FirstName: "Jane", Email: strp("jane@example.com"), Status: StatusProspect}, 5)
	require.NoError(t, err)
	_, err = svc.Create(ctx, Input{FirstName: "John", Phone: strp("+15550109999")}, 5)
	require.NoError(t, err)

	updated, err := svc.Update(ctx, jane.ID, Input{FirstName: "Janet", Email: strp("jane@example.com")}, 5)
	require.NoError(t, err)
	assert.Equal(t, "Janet", updated.FirstName)
	assert.Equal(t, StatusProspect, updated.Status)

	_, err = svc.Update(ctx, jane.ID, Input{FirstName: "Janet", Phone: strp("+1 555 010 9999")}, 5)
	var dup *DuplicateError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, FieldPhone, dup.Field)
	assert.Equal(t, "John", dup.Existing.FirstName)
}

func TestServiceValidation(t *testing.T) {
	svc, repo, _ := newTestService()
	_, err := svc.Create(context.Background(), Input{FirstName: "", Email: strp("not-an-email")}, 5)
	assert.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.Create(context.Background(), Input{FirstName: "A", Email: strp("   ")}, 5)
	require.NoError(t, err)
	assert.Nil(t, repo.contacts[1].Email)
}

func TestServiceCreateLostRaceBecomesDuplicate(t *testing.T) {
	svc, repo, _ := newTestService()
	repo.createError = &pgconn.PgError{Code: "23505"}

	_, err := svc.Create(context.Background(), Input{FirstName: "A", Email: strp("a@example.com")}, 5)
	assert.ErrorIs(t, err, ErrDuplicate)

	repo.createError = errors.New("other")
	_, err = svc.Create(context.Background(), Input{FirstName: "A", Email: strp("a@example.com")}, 5)
	assert.NotErrorIs(t, err, ErrDuplicate)
}

func TestServiceUpdateMissing(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.Update(context.Background(), 9, Input{FirstName: "A"}, 5)
	assert.ErrorIs(t, err, ErrNotFound)
}
