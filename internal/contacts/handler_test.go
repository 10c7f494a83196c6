package contacts

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agencyops/agencyops/internal/platform/httpx"
	"github.com/agencyops/agencyops/internal/shared"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	svc, _, _ := newTestService()
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)
	r := chi.NewRouter()
	r.Use(shared.ActorMiddleware)
	h.MountRoutes(r)
	return r
}

func serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(shared.ActorHeader, "5")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerDuplicateFlow(t *testing.T) {
	router := newTestRouter(t)

	rec := serve(router, http.MethodPost, "/contacts", `{"first_name":"Jane","last_name":"Doe","email":"jane@example.com"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = serve(router, http.MethodGet, "/contacts/duplicates?email=JANE@example.com", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var res DuplicateResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.IsDuplicate)
	assert.Equal(t, "Jane", res.Existing.FirstName)

	rec = serve(router, http.MethodGet, "/contacts/duplicates?email=jane@example.com&exclude=1", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.False(t, res.IsDuplicate)

	rec = serve(router, http.MethodPost, "/contacts", `{"first_name":"Other","email":"jane@example.com"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, "email", problem.Field)
	assert.Contains(t, problem.Detail, "Jane Doe")
}

func TestHandlerRejectsBadInput(t *testing.T) {
	router := newTestRouter(t)
	rec := serve(router, http.MethodPost, "/contacts", `{"first_name":"","email":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(router, http.MethodGet, "/contacts/duplicates?exclude=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(router, http.MethodGet, "/contacts/77", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
