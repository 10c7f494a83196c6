package contacts

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agencyops/agencyops/internal/shared"
)

type liveOutcome struct {
	res FieldResult
	err error
}

func TestLiveChecksNewerInputSupersedesOlder(t *testing.T) {
	checker := newScriptedChecker()
	live := NewLiveChecks(checker, 0, time.Minute)

	first := make(chan liveOutcome, 1)
	go func() {
		res, err := live.Check(context.Background(), "form-1", 0, FieldEmail, "jane@example.com")
		first <- liveOutcome{res, err}
	}()
	checker.waitStarted(t, "jane@example.com")

	second := make(chan liveOutcome, 1)
	go func() {
		res, err := live.Check(context.Background(), "form-1", 0, FieldEmail, "janet@example.com")
		second <- liveOutcome{res, err}
	}()

	select {
	case got := <-first:
		assert.ErrorIs(t, got.err, ErrSuperseded)
	case <-time.After(time.Second):
		t.Fatal("older check was not released")
	}

	checker.waitStarted(t, "janet@example.com")
	checker.finish("jane@example.com", DuplicateResult{IsDuplicate: true, Field: FieldEmail, Existing: &Contact{ID: 1}})
	checker.finish("janet@example.com", DuplicateResult{})

	select {
	case got := <-second:
		require.NoError(t, got.err)
		assert.Equal(t, uint64(2), got.res.Seq)
		assert.Equal(t, "janet@example.com", got.res.Value)
		assert.False(t, got.res.Result.IsDuplicate)
	case <-time.After(time.Second):
		t.Fatal("latest check never settled")
	}
	live.Close()
}

func TestLiveChecksFieldsAreIndependent(t *testing.T) {
	checker := newScriptedChecker()
	live := NewLiveChecks(checker, 0, time.Minute)
	defer live.Close()

	phone := make(chan liveOutcome, 1)
	go func() {
		res, err := live.Check(context.Background(), "form-1", 0, FieldPhone, "+33612345678")
		phone <- liveOutcome{res, err}
	}()
	checker.waitStarted(t, "+33612345678")

	res, err := live.Check(context.Background(), "form-1", 0, FieldEmail, "")
	require.NoError(t, err)
	assert.False(t, res.Result.IsDuplicate)

	checker.finish("+33612345678", DuplicateResult{IsDuplicate: true, Field: FieldPhone, Existing: &Contact{ID: 1}})
	got := <-phone
	require.NoError(t, got.err)
	assert.True(t, got.res.Result.IsDuplicate)
}

func TestLiveChecksEmptyValueSettlesWithoutLookup(t *testing.T) {
	checker := newScriptedChecker()
	live := NewLiveChecks(checker, time.Hour, time.Minute)
	defer live.Close()

	res, err := live.Check(context.Background(), "form-1", 0, FieldEmail, "   ")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), res.Seq)
	assert.False(t, res.Result.IsDuplicate)
	assert.Empty(t, checker.calls)
}

func TestLiveChecksCallerCancel(t *testing.T) {
	live := NewLiveChecks(newScriptedChecker(), time.Hour, time.Minute)
	defer live.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := live.Check(ctx, "form-1", 0, FieldEmail, "jane@example.com")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLiveChecksEvictsIdleSessions(t *testing.T) {
	live := NewLiveChecks(newScriptedChecker(), 0, 10*time.Minute)
	defer live.Close()
	now := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	live.now = func() time.Time { return now }

	_, err := live.Check(context.Background(), "form-1", 0, FieldEmail, "")
	require.NoError(t, err)
	_, err = live.Check(context.Background(), "form-2", 0, FieldEmail, "")
	require.NoError(t, err)
	assert.Equal(t, 2, live.Sessions())

	now = now.Add(11 * time.Minute)
	_, err = live.Check(context.Background(), "form-2", 0, FieldEmail, "")
	require.NoError(t, err)
	assert.Equal(t, 1, live.Sessions())
}

func TestHandlerLiveDuplicates(t *testing.T) {
	svc, _, _ := newTestService()
	svc.live = NewLiveChecks(svc.checker, 0, time.Minute)
	defer svc.Close()
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)
	router := chi.NewRouter()
	router.Use(shared.ActorMiddleware)
	h.MountRoutes(router)

	rec := serve(router, http.MethodPost, "/contacts", `{"first_name":"Jane","last_name":"Doe","email":"jane@example.com"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = serve(router, http.MethodGet, "/contacts/duplicates/live?session=f1&field=email&value=JANE@example.com", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res liveCheckResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.False(t, res.Stale)
	assert.Equal(t, uint64(1), res.Seq)
	assert.True(t, res.Result.IsDuplicate)
	assert.Equal(t, "Jane", res.Result.Existing.FirstName)

	rec = serve(router, http.MethodGet, "/contacts/duplicates/live?session=f1&field=email&value=jane@example.com&exclude=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.False(t, res.Result.IsDuplicate)

	rec = serve(router, http.MethodGet, "/contacts/duplicates/live?session=f1&field=name&value=x", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = serve(router, http.MethodGet, "/contacts/duplicates/live?field=email&value=x", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
