// internal/api/router_test.go
package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libraledger/internal/catalog"
	"libraledger/internal/circulation"
	"libraledger/internal/ledger"
	"libraledger/internal/membership"
	"libraledger/internal/store"
)

type testServer struct {
	*httptest.Server
	clock *fakeClock
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	mem := store.NewMemory()
	clock := &fakeClock{t: time.Date(2025, time.June, 1, 9, 0, 0, 0, time.UTC)}
	circSvc := circulation.NewService(mem, ledger.DefaultPolicy(), circulation.WithClock(clock.Now))

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		catalog.NewHandler(catalog.NewService(mem)).Register(r)
		membership.NewHandler(membership.NewService(mem), circSvc).Register(r)
		circulation.NewHandler(circSvc).Register(r)
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, clock: clock}
}

func (ts *testServer) post(t *testing.T, path string, body interface{}, out interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	resp, err := http.Post(ts.URL+path, "application/json", &buf)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func (ts *testServer) get(t *testing.T, path string, out interface{}) *http.Response {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestCirculationFlow(t *testing.T) {
	ts := newTestServer(t)

	var member ledger.Member
	resp := ts.post(t, "/api/v1/members/", map[string]string{
		"name":              "Test Reader",
		"email":             "reader@example.com",
		"membership_number": "M-1001",
	}, &member)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, ledger.MemberActive, member.Status)

	var book ledger.Book
	resp = ts.post(t, "/api/v1/books/", map[string]interface{}{
		"isbn":         "9780743273565",
		"title":        "The Great Gatsby",
		"author":       "F. Scott Fitzgerald",
		"category":     "fiction",
		"total_copies": 1,
	}, &book)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var available []ledger.Book
	resp = ts.get(t, "/api/v1/books/available", &available)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, available, 1)

	var tr ledger.Transaction
	resp = ts.post(t, "/api/v1/transactions/borrow", map[string]string{
		"member_id": member.ID.String(),
		"book_id":   book.ID.String(),
	}, &tr)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, ledger.TransactionActive, tr.Status)

	// The only copy is out, so the catalog shows nothing available and a
	// second borrow is rejected with the exact rule that failed.
	resp = ts.get(t, "/api/v1/books/available", &available)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, available)

	var errBody map[string]string
	resp = ts.post(t, "/api/v1/transactions/borrow", map[string]string{
		"member_id": member.ID.String(),
		"book_id":   book.ID.String(),
	}, &errBody)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, errBody["error"], "not available")

	// Return three days late: the transaction goes overdue and a fine of
	// 1.50 appears.
	ts.clock.Advance(17 * 24 * time.Hour)
	var returned ledger.Transaction
	resp = ts.post(t, fmt.Sprintf("/api/v1/transactions/%s/return", tr.ID), nil, &returned)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, ledger.TransactionOverdue, returned.Status)

	var fines []ledger.Fine
	resp = ts.get(t, "/api/v1/fines/", &fines)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, fines, 1)
	assert.Equal(t, int64(150), fines[0].AmountCents)

	var suspended ledger.Member
	resp = ts.get(t, "/api/v1/members/"+member.ID.String(), &suspended)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, ledger.MemberSuspended, suspended.Status)

	var paid ledger.Fine
	resp = ts.post(t, fmt.Sprintf("/api/v1/fines/%s/pay", fines[0].ID), nil, &paid)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, paid.PaidAt)

	var active ledger.Member
	resp = ts.get(t, "/api/v1/members/"+member.ID.String(), &active)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, ledger.MemberActive, active.Status)

	// A late-returned loan keeps its overdue status and stays in the
	// member's loans view.
	var loans []ledger.Transaction
	resp = ts.get(t, fmt.Sprintf("/api/v1/members/%s/loans", member.ID), &loans)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, loans, 1)
	assert.Equal(t, ledger.TransactionOverdue, loans[0].Status)
}

func TestErrorStatusMapping(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.get(t, "/api/v1/books/6a6e66a9-4d3f-4a3b-9e93-000000000000", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = ts.post(t, "/api/v1/transactions/6a6e66a9-4d3f-4a3b-9e93-000000000000/return", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = ts.post(t, "/api/v1/books/", map[string]interface{}{"title": "No ISBN"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.post(t, "/api/v1/transactions/not-a-uuid/return", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var borrowErr map[string]string
	resp = ts.post(t, "/api/v1/transactions/borrow", map[string]string{}, &borrowErr)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, borrowErr["error"], "member_id and book_id are required")

	var member ledger.Member
	resp = ts.post(t, "/api/v1/members/", map[string]string{
		"name":              "Dup",
		"email":             "dup@example.com",
		"membership_number": "M-1",
	}, &member)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = ts.post(t, "/api/v1/members/", map[string]string{
		"name":              "Dup",
		"email":             "dup@example.com",
		"membership_number": "M-2",
	}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}
