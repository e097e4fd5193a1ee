package entitlement_test

import (
	"testing"
	"time"

	"github.com/cassiomorais/bookaccess/internal/domain/entitlement"
	"github.com/cassiomorais/bookaccess/internal/domain/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2026, 1, 10, 9, 30, 0, 0, time.UTC)

func TestNewGrant(t *testing.T) {
	txID := uuid.New()

	g, err := entitlement.NewGrant("user-1", 42, txID, 10, start)
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, g.ID)
	assert.Equal(t, txID, g.TransactionID)
	assert.Equal(t, start, g.StartAt)
	assert.Equal(t, time.Date(2026, 1, 20, 9, 30, 0, 0, time.UTC), g.EndAt)
	assert.True(t, g.EndAt.After(g.StartAt))
}

func TestNewGrant_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		user  string
		txID  uuid.UUID
		days  int
		field string
	}{
		{"empty user", "", uuid.New(), 10, "user_id"},
		{"nil transaction", "user-1", uuid.Nil, 10, "transaction_id"},
		{"zero days", "user-1", uuid.New(), 0, "duration_days"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := entitlement.NewGrant(tt.user, 1, tt.txID, tt.days, start)
			var ve *errors.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestGrant_ActiveAt(t *testing.T) {
	g, err := entitlement.NewGrant("user-1", 42, uuid.New(), 5, start)
	require.NoError(t, err)

	tests := []struct {
		name   string
		now    time.Time
		active bool
	}{
		{"before start", start.Add(-time.Second), false},
		{"at start", start, true},
		{"midway", start.Add(48 * time.Hour), true},
		{"at end", g.EndAt, true},
		{"one second after end", g.EndAt.Add(time.Second), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.active, g.ActiveAt(tt.now))
		})
	}
}

func TestGrant_ExpiredOneSecondAgo(t *testing.T) {
	now := time.Now()
	g := &entitlement.Grant{StartAt: now.Add(-72 * time.Hour), EndAt: now.Add(-time.Second)}

	assert.False(t, g.ActiveAt(now))
	assert.Zero(t, g.Remaining(now))
}

func TestGrant_Remaining(t *testing.T) {
	g, err := entitlement.NewGrant("user-1", 42, uuid.New(), 1, start)
	require.NoError(t, err)

	assert.Equal(t, 12*time.Hour, g.Remaining(start.Add(12*time.Hour)))
}
