package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cassiomorais/bookaccess/internal/domain/catalog"
	"github.com/cassiomorais/bookaccess/internal/domain/entitlement"
	domainErrors "github.com/cassiomorais/bookaccess/internal/domain/errors"
	"github.com/cassiomorais/bookaccess/internal/domain/outbox"
	"github.com/cassiomorais/bookaccess/internal/domain/transaction"
	"github.com/cassiomorais/bookaccess/internal/domain/webhook"
	"github.com/cassiomorais/bookaccess/internal/notify"
	"github.com/google/uuid"
)

// --- Transaction Repository Mock ---

// MockTransactionRepository is an in-memory transaction.Repository. Its
// CompareAndSetStatus is atomic under the mutex, like the conditional UPDATE,
// and Create allows one pending transaction per user and item like the
// partial unique index.
type MockTransactionRepository struct {
	mu        sync.Mutex
	byID      map[uuid.UUID]*transaction.Transaction
	bySession map[string]uuid.UUID
	events    map[uuid.UUID][]*transaction.Event

	CreateFunc              func(ctx context.Context, tx *transaction.Transaction) error
	GetByIDFunc             func(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error)
	AttachSessionFunc       func(ctx context.Context, tx *transaction.Transaction) error
	CompareAndSetStatusFunc func(ctx context.Context, next *transaction.Transaction, expected transaction.Status) (bool, error)
	ListStalePendingFunc    func(ctx context.Context, cutoff time.Time, limit int) ([]*transaction.Transaction, error)
}

func NewMockTransactionRepository() *MockTransactionRepository {
	return &MockTransactionRepository{
		byID:      make(map[uuid.UUID]*transaction.Transaction),
		bySession: make(map[string]uuid.UUID),
		events:    make(map[uuid.UUID][]*transaction.Event),
	}
}

func (m *MockTransactionRepository) Create(ctx context.Context, tx *transaction.Transaction) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, tx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[tx.ID]; ok {
		return domainErrors.ErrConflict
	}
	if tx.Status == transaction.StatusPending && m.pendingLocked(tx.UserID, tx.ItemID) != nil {
		return domainErrors.ErrConflict
	}
	m.store(tx)
	return nil
}

func (m *MockTransactionRepository) pendingLocked(userID string, itemID int64) *transaction.Transaction {
	for _, cur := range m.byID {
		if cur.UserID == userID && cur.ItemID == itemID && cur.Status == transaction.StatusPending {
			return cur
		}
	}
	return nil
}

func (m *MockTransactionRepository) GetPending(ctx context.Context, userID string, itemID int64) (*transaction.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := m.pendingLocked(userID, itemID)
	if tx == nil {
		return nil, domainErrors.ErrTransactionNotFound
	}
	c := *tx
	return &c, nil
}

// Put stores tx as is, bypassing Create.
func (m *MockTransactionRepository) Put(tx *transaction.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store(tx)
}

func (m *MockTransactionRepository) store(tx *transaction.Transaction) {
	c := *tx
	m.byID[tx.ID] = &c
	if sid := tx.SessionID(); sid != "" {
		m.bySession[sid] = tx.ID
	}
}

func (m *MockTransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.byID[id]
	if !ok {
		return nil, domainErrors.ErrTransactionNotFound
	}
	c := *tx
	return &c, nil
}

func (m *MockTransactionRepository) GetBySessionID(ctx context.Context, sessionID string) (*transaction.Transaction, error) {
	m.mu.Lock()
	id, ok := m.bySession[sessionID]
	m.mu.Unlock()
	if !ok {
		return nil, domainErrors.ErrTransactionNotFound
	}
	return m.GetByID(ctx, id)
}

func (m *MockTransactionRepository) AttachSession(ctx context.Context, tx *transaction.Transaction) error {
	if m.AttachSessionFunc != nil {
		return m.AttachSessionFunc(ctx, tx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.byID[tx.ID]
	if !ok || cur.Status != transaction.StatusPending {
		return domainErrors.ErrInvalidStateTransition
	}
	if id, taken := m.bySession[tx.SessionID()]; taken && id != tx.ID {
		return domainErrors.ErrConflict
	}
	next := *cur
	next.GatewayProvider = tx.GatewayProvider
	next.GatewaySessionID = tx.GatewaySessionID
	next.CheckoutURL = tx.CheckoutURL
	next.UpdatedAt = tx.UpdatedAt
	m.store(&next)
	return nil
}

func (m *MockTransactionRepository) CompareAndSetStatus(ctx context.Context, next *transaction.Transaction, expected transaction.Status) (bool, error) {
	if m.CompareAndSetStatusFunc != nil {
		return m.CompareAndSetStatusFunc(ctx, next, expected)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.byID[next.ID]
	if !ok || cur.Status != expected {
		return false, nil
	}
	upd := *cur
	upd.Status = next.Status
	upd.FailureReason = next.FailureReason
	upd.UpdatedAt = next.UpdatedAt
	upd.SettledAt = next.SettledAt
	m.store(&upd)
	return true, nil
}

func (m *MockTransactionRepository) ListByUser(ctx context.Context, userID string, f transaction.ListFilter) ([]*transaction.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*transaction.Transaction
	for _, tx := range m.byID {
		if tx.UserID != userID {
			continue
		}
		if f.Status != nil && tx.Status != *f.Status {
			continue
		}
		c := *tx
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Offset >= len(out) {
		return nil, nil
	}
	out = out[f.Offset:]
	if n := f.PageSize(); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (m *MockTransactionRepository) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*transaction.Transaction, error) {
	if m.ListStalePendingFunc != nil {
		return m.ListStalePendingFunc(ctx, cutoff, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*transaction.Transaction
	for _, tx := range m.byID {
		if tx.Status == transaction.StatusPending && tx.CreatedAt.Before(cutoff) {
			c := *tx
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockTransactionRepository) AddEvent(ctx context.Context, event *transaction.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[event.TransactionID] = append(m.events[event.TransactionID], event)
	return nil
}

func (m *MockTransactionRepository) GetEvents(ctx context.Context, transactionID uuid.UUID) ([]*transaction.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*transaction.Event(nil), m.events[transactionID]...), nil
}

// --- Grant Repository Mock ---

// MockGrantRepository enforces one grant per transaction like the unique index.
type MockGrantRepository struct {
	mu   sync.Mutex
	byTx map[uuid.UUID]*entitlement.Grant

	CreateIfAbsentFunc func(ctx context.Context, g *entitlement.Grant) (*entitlement.Grant, bool, error)
	FindActiveFunc     func(ctx context.Context, userID string, itemID int64, now time.Time) (*entitlement.Grant, error)

	ListByTransactionIDsFunc func(ctx context.Context, ids []uuid.UUID) ([]*entitlement.Grant, error)
}

func NewMockGrantRepository() *MockGrantRepository {
	return &MockGrantRepository{byTx: make(map[uuid.UUID]*entitlement.Grant)}
}

func (m *MockGrantRepository) CreateIfAbsent(ctx context.Context, g *entitlement.Grant) (*entitlement.Grant, bool, error) {
	if m.CreateIfAbsentFunc != nil {
		return m.CreateIfAbsentFunc(ctx, g)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.byTx[g.TransactionID]; ok {
		return existing, false, nil
	}
	m.byTx[g.TransactionID] = g
	return g, true, nil
}

// Put stores g as is.
func (m *MockGrantRepository) Put(g *entitlement.Grant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byTx[g.TransactionID] = g
}

func (m *MockGrantRepository) GetByTransactionID(ctx context.Context, transactionID uuid.UUID) (*entitlement.Grant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.byTx[transactionID]
	if !ok {
		return nil, domainErrors.ErrGrantNotFound
	}
	return g, nil
}

func (m *MockGrantRepository) FindActive(ctx context.Context, userID string, itemID int64, now time.Time) (*entitlement.Grant, error) {
	if m.FindActiveFunc != nil {
		return m.FindActiveFunc(ctx, userID, itemID, now)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *entitlement.Grant
	for _, g := range m.byTx {
		if g.UserID != userID || g.ItemID != itemID || !g.ActiveAt(now) {
			continue
		}
		if best == nil || g.EndAt.After(best.EndAt) {
			best = g
		}
	}
	if best == nil {
		return nil, domainErrors.ErrGrantNotFound
	}
	return best, nil
}

func (m *MockGrantRepository) ListByTransactionIDs(ctx context.Context, ids []uuid.UUID) ([]*entitlement.Grant, error) {
	if m.ListByTransactionIDsFunc != nil {
		return m.ListByTransactionIDsFunc(ctx, ids)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entitlement.Grant
	for _, id := range ids {
		if g, ok := m.byTx[id]; ok {
			out = append(out, g)
		}
	}
	return out, nil
}

// Count returns the number of stored grants.
func (m *MockGrantRepository) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byTx)
}

// --- Outbox Repository Mock ---

type MockOutboxRepository struct {
	mu      sync.Mutex
	Entries []*outbox.Entry

	InsertFunc       func(ctx context.Context, entry *outbox.Entry) error
	ClaimPendingFunc func(ctx context.Context, limit int) ([]*outbox.Entry, error)
}

func NewMockOutboxRepository() *MockOutboxRepository {
	return &MockOutboxRepository{}
}

func (m *MockOutboxRepository) Insert(ctx context.Context, entry *outbox.Entry) error {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, entry)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entries = append(m.Entries, entry)
	return nil
}

func (m *MockOutboxRepository) ClaimPending(ctx context.Context, limit int) ([]*outbox.Entry, error) {
	if m.ClaimPendingFunc != nil {
		return m.ClaimPendingFunc(ctx, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*outbox.Entry
	for _, e := range m.Entries {
		if e.Status == outbox.StatusPending {
			out = append(out, e)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *MockOutboxRepository) MarkPublished(ctx context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.Entries {
		if e.ID == id {
			e.MarkPublished(at)
		}
	}
	return nil
}

func (m *MockOutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, cause string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.Entries {
		if e.ID == id {
			e.RecordFailure(cause)
		}
	}
	return nil
}

func (m *MockOutboxRepository) PurgePublished(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []*outbox.Entry
	var n int64
	for _, e := range m.Entries {
		if e.Status == outbox.StatusPublished && e.PublishedAt != nil && e.PublishedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	m.Entries = kept
	return n, nil
}

// Len returns the number of stored entries.
func (m *MockOutboxRepository) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Entries)
}

// --- Webhook Event Repository Mock ---

type MockWebhookEventRepository struct {
	mu      sync.Mutex
	records map[string]*webhook.Record

	RecordFunc func(ctx context.Context, r *webhook.Record) (bool, error)
}

func NewMockWebhookEventRepository() *MockWebhookEventRepository {
	return &MockWebhookEventRepository{records: make(map[string]*webhook.Record)}
}

func (m *MockWebhookEventRepository) Record(ctx context.Context, r *webhook.Record) (bool, error) {
	if m.RecordFunc != nil {
		return m.RecordFunc(ctx, r)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := r.Provider + "/" + r.ProviderEventID
	if _, ok := m.records[key]; ok {
		return false, nil
	}
	c := *r
	m.records[key] = &c
	return true, nil
}

func (m *MockWebhookEventRepository) SetOutcome(ctx context.Context, id uuid.UUID, outcome webhook.Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.ID == id {
			r.Outcome = outcome
			return nil
		}
	}
	return domainErrors.ErrNotFound
}

// Get returns the record stored for a provider event id.
func (m *MockWebhookEventRepository) Get(provider, eventID string) (*webhook.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[provider+"/"+eventID]
	return r, ok
}

// --- Catalog Mock ---

type MockCatalog struct {
	mu    sync.Mutex
	items map[int64]*catalog.Item

	GetItemFunc func(ctx context.Context, id int64) (*catalog.Item, error)
}

func NewMockCatalog(items ...*catalog.Item) *MockCatalog {
	m := &MockCatalog{items: make(map[int64]*catalog.Item)}
	for _, it := range items {
		m.items[it.ID] = it
	}
	return m
}

func (m *MockCatalog) GetItem(ctx context.Context, id int64) (*catalog.Item, error) {
	if m.GetItemFunc != nil {
		return m.GetItemFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return nil, domainErrors.ErrItemNotFound
	}
	return it, nil
}

// --- Transaction Manager Mock ---

// MockTxManager runs fn directly. Nothing is rolled back on error.
type MockTxManager struct {
	mu    sync.Mutex
	Calls int

	WithTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func (m *MockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	m.Calls++
	m.mu.Unlock()
	if m.WithTransactionFunc != nil {
		return m.WithTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}

// --- Access Cache Mock ---

type MockAccessCache struct {
	mu      sync.Mutex
	entries map[string]time.Time
	Puts    int

	GetFunc func(ctx context.Context, userID string, itemID int64, now time.Time) (time.Time, bool, error)
}

func NewMockAccessCache() *MockAccessCache {
	return &MockAccessCache{entries: make(map[string]time.Time)}
}

func cacheKey(userID string, itemID int64) string {
	return fmt.Sprintf("%s:%d", userID, itemID)
}

func (m *MockAccessCache) Get(ctx context.Context, userID string, itemID int64, now time.Time) (time.Time, bool, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, userID, itemID, now)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	end, ok := m.entries[cacheKey(userID, itemID)]
	if !ok || now.After(end) {
		return time.Time{}, false, nil
	}
	return end, true, nil
}

func (m *MockAccessCache) Put(ctx context.Context, userID string, itemID int64, endAt, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Puts++
	m.entries[cacheKey(userID, itemID)] = endAt
	return nil
}

// --- Notifier Mock ---

type MockNotifier struct {
	mu   sync.Mutex
	Sent []notify.Message

	SendFunc func(ctx context.Context, msg notify.Message) error
}

func (m *MockNotifier) Name() string { return "mock" }

func (m *MockNotifier) Send(ctx context.Context, msg notify.Message) error {
	if m.SendFunc != nil {
		if err := m.SendFunc(ctx, msg); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, msg)
	return nil
}

// --- Locker Mock ---

type MockLocker struct {
	Held     bool
	Err      error
	Released bool
}

func (l *MockLocker) Acquire(ctx context.Context) (bool, error) {
	if l.Err != nil {
		return false, l.Err
	}
	return !l.Held, nil
}

func (l *MockLocker) Release(ctx context.Context) error {
	l.Released = true
	return nil
}
