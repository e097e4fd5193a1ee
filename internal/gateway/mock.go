package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	domainerrors "github.com/cassiomorais/bookaccess/internal/domain/errors"
	"github.com/cassiomorais/bookaccess/internal/domain/webhook"
	"github.com/google/uuid"
)

const ProviderMock = "mock"

// MockGateway is an in-process checkout provider for local runs and tests.
// Its webhooks use the same signature scheme as Stripe.
type MockGateway struct {
	name          string
	baseURL       string
	webhookSecret string
	failureRate   float64
	latency       time.Duration

	mu       sync.Mutex
	sessions map[string]SessionRequest
}

type MockOption func(*MockGateway)

func WithFailureRate(rate float64) MockOption {
	return func(g *MockGateway) { g.failureRate = rate }
}

func WithLatency(d time.Duration) MockOption {
	return func(g *MockGateway) { g.latency = d }
}

func WithBaseURL(u string) MockOption {
	return func(g *MockGateway) { g.baseURL = strings.TrimRight(u, "/") }
}

func NewMockGateway(webhookSecret string, opts ...MockOption) *MockGateway {
	g := &MockGateway{
		name:          ProviderMock,
		baseURL:       "http://localhost:8080/mock-checkout",
		webhookSecret: webhookSecret,
		sessions:      make(map[string]SessionRequest),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

func (g *MockGateway) Name() string { return g.name }

func (g *MockGateway) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	if g.latency > 0 {
		select {
		case <-time.After(g.latency):
		case <-ctx.Done():
			return nil, domainerrors.NewGatewayError(g.name, "create session",
				fmt.Errorf("%w: %v", domainerrors.ErrGatewayTimeout, ctx.Err()))
		}
	}

	if g.failureRate > 0 && rand.Float64() < g.failureRate {
		return nil, domainerrors.NewGatewayError(g.name, "create session",
			fmt.Errorf("%w: simulated outage", domainerrors.ErrGatewayUnavailable))
	}

	id := "cs_mock_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	g.mu.Lock()
	g.sessions[id] = req
	g.mu.Unlock()

	expires := req.ExpiresAt
	if expires.IsZero() {
		expires = time.Now().Add(24 * time.Hour)
	}
	return &Session{
		ID:        id,
		URL:       fmt.Sprintf("%s/%s", g.baseURL, id),
		ExpiresAt: expires.UTC(),
	}, nil
}

func (g *MockGateway) ParseEvent(payload []byte, signatureHeader string) (*webhook.Event, error) {
	return parseSignedEvent(g.name, payload, signatureHeader, g.webhookSecret, DefaultTolerance)
}

// Request returns what a session was opened with.
func (g *MockGateway) Request(sessionID string) (SessionRequest, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	req, ok := g.sessions[sessionID]
	return req, ok
}

// SessionCount reports how many sessions were opened.
func (g *MockGateway) SessionCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sessions)
}

// SignedEvent produces a delivery for sessionID as the provider would send it.
func (g *MockGateway) SignedEvent(eventType, sessionID string) (payload []byte, header string) {
	var metadata map[string]string
	if req, ok := g.Request(sessionID); ok {
		metadata = req.Metadata()
	}
	payload = EventPayload("evt_"+uuid.NewString(), eventType, sessionID, metadata)
	return payload, SignatureHeader(payload, g.webhookSecret, time.Now())
}

// SignedSessionEvent is SignedEvent with an explicit payment status.
func (g *MockGateway) SignedSessionEvent(eventType, sessionID, paymentStatus string) (payload []byte, header string) {
	var metadata map[string]string
	if req, ok := g.Request(sessionID); ok {
		metadata = req.Metadata()
	}
	payload = SessionEventPayload("evt_"+uuid.NewString(), eventType, sessionID, paymentStatus, metadata)
	return payload, SignatureHeader(payload, g.webhookSecret, time.Now())
}
