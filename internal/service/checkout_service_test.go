package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	domainErrors "github.com/cassiomorais/bookaccess/internal/domain/errors"
	"github.com/cassiomorais/bookaccess/internal/domain/identity"
	"github.com/cassiomorais/bookaccess/internal/domain/transaction"
	"github.com/cassiomorais/bookaccess/internal/gateway"
	"github.com/cassiomorais/bookaccess/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitiate_Success(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := testutil.NewTestUser("reader-1")

	res, err := h.checkout.Initiate(ctx, user, 1, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, res.RedirectURL)
	assert.Equal(t, int64(10_00), res.Amount.ValueCents)
	assert.Equal(t, "USD", res.Amount.Currency)

	tx, err := h.transactions.GetByID(ctx, res.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusPending, tx.Status)
	assert.Equal(t, "reader-1", tx.UserID)
	assert.Equal(t, "reader-1@example.com", tx.CustomerEmail)
	assert.Equal(t, 10, tx.DurationDays)
	assert.Equal(t, gateway.ProviderMock, tx.GatewayProvider)
	require.NotEmpty(t, tx.SessionID())
	require.NotNil(t, tx.CheckoutURL)
	assert.Equal(t, res.RedirectURL, *tx.CheckoutURL)

	req, ok := h.gateway.Request(tx.SessionID())
	require.True(t, ok)
	assert.Equal(t, int64(10_00), req.AmountCents)
	assert.Equal(t, "The Go Programming Language", req.ItemTitle)
	assert.Equal(t, res.TransactionID.String(), req.Metadata()[gateway.MetaTransactionID])
	assert.Equal(t, "http://localhost:3000/payment/success", req.SuccessURL)
	assert.Equal(t, h.now.Add(time.Hour), req.ExpiresAt)
	assert.Equal(t, h.now, tx.CreatedAt)
	assert.Equal(t, h.now, tx.UpdatedAt)
}

func TestInitiate_SecondCheckoutWhilePendingConflicts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := testutil.NewTestUser("reader-1")

	first, err := h.checkout.Initiate(ctx, user, 1, 10)
	require.NoError(t, err)

	_, err = h.checkout.Initiate(ctx, user, 1, 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, domainErrors.ErrCheckoutInProgress)
	assert.ErrorIs(t, err, domainErrors.ErrConflict)
	assert.Equal(t, 1, h.gateway.SessionCount())

	txs, err := h.transactions.ListByUser(ctx, "reader-1", transaction.ListFilter{})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, first.TransactionID, txs[0].ID)
	assert.Equal(t, transaction.StatusPending, txs[0].Status)

	// Other items and other readers are unaffected.
	_, err = h.checkout.Initiate(ctx, user, 2, 10)
	assert.NoError(t, err)
	_, err = h.checkout.Initiate(ctx, testutil.NewTestUser("reader-2"), 1, 10)
	assert.NoError(t, err)
}

func TestInitiate_ConcurrentCheckoutsOpenOneSession(t *testing.T) {
	h := newHarness(t)
	user := testutil.NewTestUser("reader-1")

	const attempts = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok        int
		conflicts int
	)
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.checkout.Initiate(context.Background(), user, 1, 10)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, domainErrors.ErrCheckoutInProgress):
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, attempts-1, conflicts)
	assert.Equal(t, 1, h.gateway.SessionCount())
}

func TestInitiate_InsertConflictReportsCheckoutInProgress(t *testing.T) {
	h := newHarness(t)
	h.transactions.CreateFunc = func(ctx context.Context, tx *transaction.Transaction) error {
		return fmt.Errorf("insert transaction %s: %w", tx.ID, domainErrors.ErrConflict)
	}

	_, err := h.checkout.Initiate(context.Background(), testutil.NewTestUser("reader-1"), 1, 10)
	assert.ErrorIs(t, err, domainErrors.ErrCheckoutInProgress)
	assert.Equal(t, 0, h.gateway.SessionCount())
}

func TestInitiate_FailedCheckoutFreesItem(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := testutil.NewTestUser("reader-1")

	first, err := h.checkout.Initiate(ctx, user, 1, 10)
	require.NoError(t, err)
	_, err = h.ledger.FailByID(ctx, first.TransactionID, "checkout.session.expired")
	require.NoError(t, err)

	second, err := h.checkout.Initiate(ctx, user, 1, 10)
	require.NoError(t, err)
	assert.NotEqual(t, first.TransactionID, second.TransactionID)
}

func TestInitiate_AbandonedPendingIsReplaced(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	stale := testutil.NewTestTransaction("reader-1", 1, 10_00, 10, "cs_stale")
	stale.CreatedAt = h.now.Add(-3 * time.Hour)
	h.transactions.Put(stale)

	res, err := h.checkout.Initiate(ctx, testutil.NewTestUser("reader-1"), 1, 10)
	require.NoError(t, err)

	old, err := h.transactions.GetByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusFailed, old.Status)
	require.NotNil(t, old.FailureReason)
	assert.Contains(t, *old.FailureReason, "abandoned")

	fresh, err := h.transactions.GetByID(ctx, res.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusPending, fresh.Status)
}

func TestInitiate_PendingWithinTTLIsKept(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	recent := testutil.NewTestTransaction("reader-1", 1, 10_00, 10, "cs_recent")
	recent.CreatedAt = h.now.Add(-90 * time.Minute)
	h.transactions.Put(recent)

	_, err := h.checkout.Initiate(ctx, testutil.NewTestUser("reader-1"), 1, 10)
	assert.ErrorIs(t, err, domainErrors.ErrCheckoutInProgress)

	kept, err := h.transactions.GetByID(ctx, recent.ID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusPending, kept.Status)
}

func TestInitiate_Pricing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.checkout.Initiate(ctx, testutil.NewTestUser("reader-1"), 2, 45)
	require.NoError(t, err)
	// 9.99 * 45 / 30 = 14.985, rounded half-up
	assert.Equal(t, int64(14_99), res.Amount.ValueCents)
}

func TestInitiate_InvalidDuration(t *testing.T) {
	h := newHarness(t)

	for _, days := range []int{0, -1} {
		_, err := h.checkout.Initiate(context.Background(), testutil.NewTestUser("reader-1"), 1, days)
		var ve *domainErrors.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "duration_days", ve.Field)
	}
}

func TestInitiate_Unauthenticated(t *testing.T) {
	h := newHarness(t)

	_, err := h.checkout.Initiate(context.Background(), identity.User{}, 1, 10)
	assert.ErrorIs(t, err, domainErrors.ErrUnauthorized)
}

func TestInitiate_ItemNotFound(t *testing.T) {
	h := newHarness(t)

	_, err := h.checkout.Initiate(context.Background(), testutil.NewTestUser("reader-1"), 404, 10)
	assert.ErrorIs(t, err, domainErrors.ErrItemNotFound)
	assert.ErrorIs(t, err, domainErrors.ErrNotFound)
}

func TestInitiate_ActiveGrantConflicts(t *testing.T) {
	h := newHarness(t)
	end := h.now.Add(72 * time.Hour)
	h.grants.Put(testutil.NewTestGrant("reader-1", 1, h.now.Add(-24*time.Hour), end))

	_, err := h.checkout.Initiate(context.Background(), testutil.NewTestUser("reader-1"), 1, 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, domainErrors.ErrConflict)
	assert.ErrorIs(t, err, domainErrors.ErrActiveAccessExists)
	assert.Contains(t, err.Error(), "active access exists until "+end.Format(time.RFC3339))

	txs, _ := h.transactions.ListByUser(context.Background(), "reader-1", transaction.ListFilter{})
	assert.Empty(t, txs)
}

func TestInitiate_GrantEndingAtNowStillConflicts(t *testing.T) {
	h := newHarness(t)
	h.grants.Put(testutil.NewTestGrant("reader-1", 1, h.now.Add(-24*time.Hour), h.now))

	_, err := h.checkout.Initiate(context.Background(), testutil.NewTestUser("reader-1"), 1, 10)
	assert.ErrorIs(t, err, domainErrors.ErrActiveAccessExists)
}

func TestInitiate_ExpiredGrantAllowsPurchase(t *testing.T) {
	h := newHarness(t)
	h.grants.Put(testutil.NewTestGrant("reader-1", 1, h.now.Add(-30*24*time.Hour), h.now.Add(-time.Second)))

	_, err := h.checkout.Initiate(context.Background(), testutil.NewTestUser("reader-1"), 1, 10)
	assert.NoError(t, err)
}

func TestInitiate_OtherUsersGrantDoesNotConflict(t *testing.T) {
	h := newHarness(t)
	h.grants.Put(testutil.NewTestGrant("reader-2", 1, h.now.Add(-time.Hour), h.now.Add(time.Hour)))

	_, err := h.checkout.Initiate(context.Background(), testutil.NewTestUser("reader-1"), 1, 10)
	assert.NoError(t, err)
}

func TestInitiate_GatewayFailureFailsTransaction(t *testing.T) {
	h := newHarness(t, gateway.WithFailureRate(1))
	ctx := context.Background()

	_, err := h.checkout.Initiate(ctx, testutil.NewTestUser("reader-1"), 1, 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, domainErrors.ErrGateway)

	txs, err := h.transactions.ListByUser(ctx, "reader-1", transaction.ListFilter{})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, transaction.StatusFailed, txs[0].Status)
	require.NotNil(t, txs[0].FailureReason)
	assert.Contains(t, *txs[0].FailureReason, "simulated outage")
	assert.Empty(t, txs[0].SessionID())
}

func TestInitiate_PersistFailureOpensNoSession(t *testing.T) {
	h := newHarness(t)
	h.transactions.CreateFunc = func(ctx context.Context, tx *transaction.Transaction) error {
		return errors.New("connection refused")
	}
	attached := false
	h.transactions.AttachSessionFunc = func(ctx context.Context, tx *transaction.Transaction) error {
		attached = true
		return nil
	}

	_, err := h.checkout.Initiate(context.Background(), testutil.NewTestUser("reader-1"), 1, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.False(t, attached)
}

func TestInitiate_GatewayTimeout(t *testing.T) {
	h := newHarness(t, gateway.WithLatency(time.Second))
	h.checkout.cfg.SessionTimeout = 10 * time.Millisecond

	_, err := h.checkout.Initiate(context.Background(), testutil.NewTestUser("reader-1"), 1, 10)
	assert.ErrorIs(t, err, domainErrors.ErrGatewayTimeout)
}
