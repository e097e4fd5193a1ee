package service

import (
	"testing"
	"time"

	"github.com/cassiomorais/bookaccess/internal/gateway"
	"github.com/cassiomorais/bookaccess/internal/infrastructure/observability"
	"github.com/cassiomorais/bookaccess/internal/testutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

const testWebhookSecret = "whsec_test_secret"

// harness wires every settlement service over in-memory repositories.
type harness struct {
	now time.Time

	transactions *testutil.MockTransactionRepository
	grants       *testutil.MockGrantRepository
	outbox       *testutil.MockOutboxRepository
	events       *testutil.MockWebhookEventRepository
	catalog      *testutil.MockCatalog
	txManager    *testutil.MockTxManager
	cache        *testutil.MockAccessCache
	gateway      *gateway.MockGateway
	metrics      *observability.Metrics

	ledger   *Ledger
	grantor  *Grantor
	access   *AccessService
	checkout *CheckoutService
	webhooks *WebhookService
	history  *HistoryService
}

func newHarness(t *testing.T, opts ...gateway.MockOption) *harness {
	t.Helper()

	h := &harness{
		now:          testutil.FixedNow,
		transactions: testutil.NewMockTransactionRepository(),
		grants:       testutil.NewMockGrantRepository(),
		outbox:       testutil.NewMockOutboxRepository(),
		events:       testutil.NewMockWebhookEventRepository(),
		catalog: testutil.NewMockCatalog(
			testutil.NewTestItem(1, "The Go Programming Language", 30_00),
			testutil.NewTestItem(2, "Designing Data-Intensive Applications", 9_99),
		),
		txManager: &testutil.MockTxManager{},
		cache:     testutil.NewMockAccessCache(),
		gateway:   gateway.NewMockGateway(testWebhookSecret, opts...),
		metrics:   observability.NewMetrics("test", prometheus.NewRegistry()),
	}

	logger := zerolog.Nop()
	clock := Clock(testutil.FixedClock(h.now))

	h.ledger = NewLedger(h.transactions, clock, logger, h.metrics)
	h.grantor = NewGrantor(h.grants, h.outbox, h.txManager, clock, logger, h.metrics)
	h.access = NewAccessService(h.grants, h.cache, logger, h.metrics)
	h.checkout = NewCheckoutService(
		h.transactions, h.catalog, h.access, h.ledger,
		gateway.NewFactory(gateway.BreakerSettings{}, h.gateway),
		CheckoutConfig{
			Gateway:         gateway.ProviderMock,
			Currency:        "USD",
			SessionLifetime: time.Hour,
			PendingTTL:      2 * time.Hour,
			SuccessURL:      "http://localhost:3000/payment/success",
			CancelURL:       "http://localhost:3000/payment/failure",
		},
		clock, logger, h.metrics,
	)
	h.webhooks = NewWebhookService(h.gateway, h.transactions, h.events, h.ledger, h.grantor, h.txManager, logger, h.metrics)
	h.history = NewHistoryService(h.transactions, h.grants, h.catalog, logger)
	return h
}
