package mirror

import (
	"context"
	"testing"
	"time"

	"github.com/bobmcallan/vire-engine/internal/common"
	"github.com/bobmcallan/vire-engine/internal/engine"
	"github.com/bobmcallan/vire-engine/internal/models"
)

func newUnitTestConnection(t *testing.T) (*Connection, *Store) {
	t.Helper()
	eng := engine.New(engine.Options{
		MaxExpirationTime:     24 * time.Hour,
		MaxStateHistoryLength: 20,
		CommandTimeout:        time.Second,
		InboxCapacity:         64,
		EvictionInterval:      time.Minute,
	}, common.NewLogger("debug"))
	t.Cleanup(eng.Stop)

	store := newUnitTestStore(t)
	conn := NewConnection(eng.NewConnection("test"), store, common.NewLogger("debug"))
	return conn, store
}

func TestConnectionMirrorsJobOnCreate(t *testing.T) {
	conn, store := newUnitTestConnection(t)
	ctx := context.Background()

	invocation := engine.InvocationData{Type: "Worker", Method: "Run"}
	jobKey, err := conn.CreateExpiredJob(ctx, invocation, nil, time.Hour)
	if err != nil {
		t.Fatalf("CreateExpiredJob: %v", err)
	}

	data, err := conn.GetJobData(ctx, jobKey)
	if err != nil {
		t.Fatalf("GetJobData: %v", err)
	}
	if data.Key != jobKey {
		t.Errorf("expected %s, got %s", jobKey, data.Key)
	}

	var snap models.JobSnapshot
	if err := store.db.Get(jobKey, &snap); err != nil {
		t.Fatalf("mirror Get job: %v", err)
	}
	if snap.Key != jobKey {
		t.Errorf("expected mirrored job %s, got %s", jobKey, snap.Key)
	}
}

func TestConnectionMirrorsQueueOnEnqueue(t *testing.T) {
	conn, store := newUnitTestConnection(t)
	ctx := context.Background()

	invocation := engine.InvocationData{Type: "Worker", Method: "Run", Queue: "default"}
	jobKey, err := conn.CreateExpiredJob(ctx, invocation, nil, time.Hour)
	if err != nil {
		t.Fatalf("CreateExpiredJob: %v", err)
	}
	if err := conn.Enqueue(ctx, "default", jobKey); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	queues, err := conn.ListQueues(ctx)
	if err != nil {
		t.Fatalf("ListQueues: %v", err)
	}
	if len(queues) != 1 || queues[0].Name != "default" {
		t.Errorf("expected one default queue, got %+v", queues)
	}

	var snap models.QueueSnapshot
	if err := store.db.Get(queueKey("default"), &snap); err != nil {
		t.Fatalf("mirror Get queue: %v", err)
	}
	if snap.Name != "default" || snap.Length != 1 {
		t.Errorf("expected mirrored default queue of length 1, got %+v", snap)
	}
}

func TestConnectionMirrorsServerOnAnnounce(t *testing.T) {
	conn, store := newUnitTestConnection(t)
	ctx := context.Background()

	if err := conn.AnnounceServer(ctx, "server-1", []string{"default"}, 2); err != nil {
		t.Fatalf("AnnounceServer: %v", err)
	}
	if err := conn.Heartbeat(ctx, "server-1"); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}

	servers, err := conn.ListServers(ctx)
	if err != nil {
		t.Fatalf("ListServers: %v", err)
	}
	if len(servers) != 1 || servers[0].ID != "server-1" {
		t.Errorf("expected one server-1, got %+v", servers)
	}

	var snap models.ServerSnapshot
	if err := store.db.Get(serverKey("server-1"), &snap); err != nil {
		t.Fatalf("mirror Get server: %v", err)
	}
	if snap.ID != "server-1" {
		t.Errorf("expected mirrored server-1, got %+v", snap)
	}
}

func TestConnectionWithNilStoreIsPassthrough(t *testing.T) {
	eng := engine.New(engine.Options{
		MaxExpirationTime:     time.Hour,
		MaxStateHistoryLength: 10,
		CommandTimeout:        time.Second,
		InboxCapacity:         16,
		EvictionInterval:      time.Minute,
	}, common.NewLogger("debug"))
	t.Cleanup(eng.Stop)

	conn := NewConnection(eng.NewConnection("test"), nil, common.NewLogger("debug"))
	ctx := context.Background()

	invocation := engine.InvocationData{Type: "Worker", Method: "Run"}
	if _, err := conn.CreateExpiredJob(ctx, invocation, nil, time.Hour); err != nil {
		t.Fatalf("CreateExpiredJob: %v", err)
	}
}
