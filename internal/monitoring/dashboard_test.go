package monitoring

import (
	"context"
	"testing"
	"time"

	"github.com/bobmcallan/vire-engine/internal/common"
	"github.com/bobmcallan/vire-engine/internal/engine"
)

func newUnitTestConnection(t *testing.T) *engine.Connection {
	t.Helper()
	eng := engine.New(engine.Options{
		MaxExpirationTime:     24 * time.Hour,
		MaxStateHistoryLength: 20,
		CommandTimeout:        time.Second,
		InboxCapacity:         64,
		EvictionInterval:      time.Minute,
	}, common.NewLogger("debug"))
	t.Cleanup(eng.Stop)
	return eng.NewConnection("test")
}

func TestDashboardSnapshot(t *testing.T) {
	conn := newUnitTestConnection(t)
	ctx := context.Background()

	invocation := engine.InvocationData{Type: "Worker", Method: "Run", Queue: "default"}
	jobKey, err := conn.CreateExpiredJob(ctx, invocation, nil, time.Hour)
	if err != nil {
		t.Fatalf("CreateExpiredJob: %v", err)
	}
	if err := conn.Enqueue(ctx, "default", jobKey); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := conn.AnnounceServer(ctx, "server-1", []string{"default"}, 2); err != nil {
		t.Fatalf("AnnounceServer: %v", err)
	}

	dash := New(conn)
	snap, err := dash.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(snap.Queues) != 1 || snap.Queues[0].Name != "default" {
		t.Errorf("expected one default queue, got %+v", snap.Queues)
	}
	if len(snap.Queues[0].Head) != 1 || snap.Queues[0].Head[0] != jobKey {
		t.Errorf("expected head [%s], got %+v", jobKey, snap.Queues[0].Head)
	}
	if len(snap.Servers) != 1 || snap.Servers[0].ID != "server-1" {
		t.Errorf("expected one server-1, got %+v", snap.Servers)
	}
}

func TestDashboardThroughputByDay(t *testing.T) {
	conn := newUnitTestConnection(t)
	ctx := context.Background()

	invocation := engine.InvocationData{Type: "Worker", Method: "Run"}
	for i := 0; i < 2; i++ {
		key, err := conn.CreateExpiredJob(ctx, invocation, nil, time.Hour)
		if err != nil {
			t.Fatalf("CreateExpiredJob: %v", err)
		}
		if err := conn.SetJobState(ctx, key, &engine.StateData{Name: "Succeeded"}); err != nil {
			t.Fatalf("SetJobState: %v", err)
		}
	}

	dash := New(conn)
	buckets, err := dash.ThroughputByDay(ctx, "Succeeded", 0)
	if err != nil {
		t.Fatalf("ThroughputByDay: %v", err)
	}
	if len(buckets) != 1 || buckets[0].Count != 2 {
		t.Errorf("expected one bucket with count 2, got %+v", buckets)
	}
}

func TestDashboardJobsInState(t *testing.T) {
	conn := newUnitTestConnection(t)
	ctx := context.Background()

	invocation := engine.InvocationData{Type: "Worker", Method: "Run"}
	jobKey, err := conn.CreateExpiredJob(ctx, invocation, nil, time.Hour)
	if err != nil {
		t.Fatalf("CreateExpiredJob: %v", err)
	}
	if err := conn.SetJobState(ctx, jobKey, &engine.StateData{Name: "Failed"}); err != nil {
		t.Fatalf("SetJobState: %v", err)
	}

	dash := New(conn)
	page, err := dash.JobsInState(ctx, "Failed", 0, 10)
	if err != nil {
		t.Fatalf("JobsInState: %v", err)
	}
	if len(page.Keys) != 1 || page.Keys[0] != jobKey {
		t.Errorf("expected [%s], got %+v", jobKey, page.Keys)
	}
}
