package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cassiomorais/bookaccess/internal/domain/identity"
	"github.com/cassiomorais/bookaccess/internal/repository/postgres"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu      sync.Mutex
	entries map[string]*postgres.IdempotencyEntry
	getErr  error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{entries: map[string]*postgres.IdempotencyEntry{}}
}

func (s *memoryStore) Get(ctx context.Context, key string) (*postgres.IdempotencyEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.entries[key], nil
}

func (s *memoryStore) Set(ctx context.Context, e *postgres.IdempotencyEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[e.Key]; !ok {
		s.entries[e.Key] = e
	}
	return nil
}

type countingHandler struct {
	calls  int
	status int
	body   string
}

func (h *countingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.calls++
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(h.status)
	w.Write([]byte(h.body))
}

func post(h http.Handler, user, key string) *httptest.ResponseRecorder {
	return postBody(h, user, key, `{"item_id":1,"duration_days":30}`)
}

func postBody(h http.Handler, user, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", strings.NewReader(body))
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	if user != "" {
		req = req.WithContext(WithUser(req.Context(), identity.User{ID: user}))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestIdempotency_ReplaysStoredResponse(t *testing.T) {
	store := newMemoryStore()
	next := &countingHandler{status: http.StatusCreated, body: `{"transaction_id":"t1"}`}
	h := Idempotency(store, time.Hour)(next)

	first := post(h, "reader-1", "k1")
	second := post(h, "reader-1", "k1")

	assert.Equal(t, 1, next.calls)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get("X-Idempotency-Replayed"))
	require.Contains(t, store.entries, "reader-1:k1")
	assert.WithinDuration(t, time.Now().Add(time.Hour), store.entries["reader-1:k1"].ExpiresAt, time.Minute)
}

func TestIdempotency_KeyReusedForDifferentRequest(t *testing.T) {
	store := newMemoryStore()
	next := &countingHandler{status: http.StatusCreated, body: `{"transaction_id":"t1"}`}
	h := Idempotency(store, time.Hour)(next)

	postBody(h, "reader-1", "k1", `{"item_id":1,"duration_days":30}`)
	w := postBody(h, "reader-1", "k1", `{"item_id":2,"duration_days":30}`)

	assert.Equal(t, 1, next.calls)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "idempotency_key_reused")
}

func TestIdempotency_StoredEntryCarriesRequestFingerprint(t *testing.T) {
	store := newMemoryStore()
	next := &countingHandler{status: http.StatusCreated, body: `{"transaction_id":"t1"}`}
	h := Idempotency(store, time.Hour)(next)

	postBody(h, "reader-1", "k1", `{"item_id":1,"duration_days":30}`)

	require.Len(t, store.entries, 1)
	for _, e := range store.entries {
		assert.NotEmpty(t, e.RequestHash)
	}

	w := postBody(h, "reader-1", "k1", `{"item_id":1,"duration_days":7}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, 1, next.calls)
}

func TestIdempotency_HandlerStillReadsBody(t *testing.T) {
	var seen string
	h := Idempotency(newMemoryStore(), time.Hour)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		seen = string(b)
		w.WriteHeader(http.StatusCreated)
	}))

	postBody(h, "reader-1", "k1", `{"item_id":7,"duration_days":3}`)

	assert.Equal(t, `{"item_id":7,"duration_days":3}`, seen)
}

func TestIdempotency_KeysAreScopedPerUser(t *testing.T) {
	next := &countingHandler{status: http.StatusCreated, body: `{}`}
	h := Idempotency(newMemoryStore(), time.Hour)(next)

	post(h, "reader-1", "k1")
	post(h, "reader-2", "k1")

	assert.Equal(t, 2, next.calls)
}

func TestIdempotency_NoKeyPassesThrough(t *testing.T) {
	store := newMemoryStore()
	next := &countingHandler{status: http.StatusCreated, body: `{}`}
	h := Idempotency(store, time.Hour)(next)

	post(h, "reader-1", "")
	post(h, "reader-1", "")

	assert.Equal(t, 2, next.calls)
	assert.Empty(t, store.entries)
}

func TestIdempotency_ServerErrorsAreNotStored(t *testing.T) {
	store := newMemoryStore()
	next := &countingHandler{status: http.StatusBadGateway, body: `{"error":"gateway"}`}
	h := Idempotency(store, time.Hour)(next)

	post(h, "reader-1", "k1")
	post(h, "reader-1", "k1")

	assert.Equal(t, 2, next.calls)
	assert.Empty(t, store.entries)
}

func TestIdempotency_StoreErrorFallsThrough(t *testing.T) {
	store := newMemoryStore()
	store.getErr = errors.New("connection reset")
	next := &countingHandler{status: http.StatusCreated, body: `{}`}
	h := Idempotency(store, time.Hour)(next)

	w := post(h, "reader-1", "k1")

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 1, next.calls)
}

func TestResponseRecorder_LargeBodyIsNotStored(t *testing.T) {
	store := newMemoryStore()
	large := bytes.Repeat([]byte("x"), maxIdempotencyBodySize+100)
	h := Idempotency(store, time.Hour)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write(large)
	}))

	w := post(h, "reader-1", "k1")

	assert.Equal(t, len(large), w.Body.Len())
	assert.Empty(t, store.entries)
}
