package gateway

import (
	"errors"
	"fmt"
	"time"

	domainerrors "github.com/cassiomorais/bookaccess/internal/domain/errors"
	"github.com/sony/gobreaker/v2"
)

// BreakerSettings tunes the per-gateway circuit breaker.
type BreakerSettings struct {
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
	OnStateChange       func(name string, from, to gobreaker.State)
}

// Factory holds the registered gateways, each behind its own circuit breaker.
type Factory struct {
	settings        BreakerSettings
	gateways        map[string]Gateway
	circuitBreakers map[string]*gobreaker.CircuitBreaker[*Session]
}

func NewFactory(settings BreakerSettings, gateways ...Gateway) *Factory {
	if settings.ConsecutiveFailures == 0 {
		settings.ConsecutiveFailures = 5
	}
	if settings.OpenTimeout <= 0 {
		settings.OpenTimeout = 30 * time.Second
	}

	f := &Factory{
		settings:        settings,
		gateways:        make(map[string]Gateway),
		circuitBreakers: make(map[string]*gobreaker.CircuitBreaker[*Session]),
	}
	for _, g := range gateways {
		f.Register(g)
	}
	return f
}

func (f *Factory) Register(g Gateway) {
	threshold := f.settings.ConsecutiveFailures
	f.gateways[g.Name()] = g
	f.circuitBreakers[g.Name()] = gobreaker.NewCircuitBreaker[*Session](gobreaker.Settings{
		Name:        g.Name(),
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     f.settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// Rejections of a single request say nothing about provider health.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				!(errors.Is(err, domainerrors.ErrGatewayUnavailable) || errors.Is(err, domainerrors.ErrGatewayTimeout))
		},
		OnStateChange: f.settings.OnStateChange,
	})
}

func (f *Factory) Get(name string) (Gateway, *gobreaker.CircuitBreaker[*Session], error) {
	g, ok := f.gateways[name]
	if !ok {
		return nil, nil, fmt.Errorf("unknown gateway %q: %w", name, domainerrors.ErrGatewayNotFound)
	}
	return g, f.circuitBreakers[name], nil
}

// BreakerStateValue encodes a breaker state for the state gauge.
func BreakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
