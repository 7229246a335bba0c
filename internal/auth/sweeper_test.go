package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/schoolresults/server/internal/metrics"
	"github.com/schoolresults/server/internal/model"
	"github.com/schoolresults/server/internal/repo/repotest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionSweeper_SweepOnce(t *testing.T) {
	now := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	store := repotest.New()
	store.PutSession(model.AdminSession{TokenHash: "a", AdminID: uuid.New(), ExpiresAt: now.Add(-time.Hour)})
	store.PutSession(model.AdminSession{TokenHash: "b", AdminID: uuid.New(), ExpiresAt: now.Add(-time.Second)})
	store.PutSession(model.AdminSession{TokenHash: "c", AdminID: uuid.New(), ExpiresAt: now.Add(time.Hour)})

	m := metrics.New(prometheus.NewRegistry())
	sweeper := NewSessionSweeper(store.Sessions(), time.Minute, WithClock(func() time.Time { return now }), WithMetrics(m))

	n, err := sweeper.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	_, ok := store.Session("c")
	assert.True(t, ok)
	_, ok = store.Session("a")
	assert.False(t, ok)
}

func TestSessionSweeper_RunStopsOnCancel(t *testing.T) {
	store := repotest.New()
	store.PutSession(model.AdminSession{TokenHash: "a", AdminID: uuid.New(), ExpiresAt: time.Now().Add(-time.Hour)})
	sweeper := NewSessionSweeper(store.Sessions(), 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		_, ok := store.Session("a")
		return !ok
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestSessionSweeper_disabled(t *testing.T) {
	store := repotest.New()
	NewSessionSweeper(store.Sessions(), 0).Run(context.Background())
	assert.Zero(t, store.Calls())
}
