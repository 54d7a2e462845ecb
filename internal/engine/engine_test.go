package engine

import (
	"context"
	"testing"
	"time"

	"github.com/bobmcallan/vire-engine/internal/common"
)

// newTestEngine builds an Engine tuned for fast, deterministic unit tests:
// a short eviction interval so TTL behavior is observable without sleeping
// for the production default, and a generous command timeout so a slow CI
// box never flakes a blocking-op test.
func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	eng := New(Options{
		MaxExpirationTime:     0,
		MaxStateHistoryLength: 10,
		CommandTimeout:        5 * time.Second,
		InboxCapacity:         256,
		EvictionInterval:      time.Millisecond,
	}, common.NewSilentLogger())
	t.Cleanup(eng.Stop)
	return eng
}

func newTestConnection(t *testing.T) *Connection {
	t.Helper()
	return newTestEngine(t).NewConnection("conn-" + t.Name())
}

func ctx() context.Context { return context.Background() }
