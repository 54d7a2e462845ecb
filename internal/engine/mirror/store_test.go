package mirror

import (
	"context"
	"testing"
	"time"

	"github.com/bobmcallan/vire-engine/internal/common"
	"github.com/bobmcallan/vire-engine/internal/models"
)

func newUnitTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	logger := common.NewLogger("debug")
	store, err := NewStore(logger, dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreSaveJob(t *testing.T) {
	store := newUnitTestStore(t)
	ctx := context.Background()

	snap := &models.JobSnapshot{
		Key:       "job-1",
		Queue:     "default",
		State:     "Enqueued",
		CreatedAt: time.Now(),
	}
	if err := store.SaveJob(ctx, snap); err != nil {
		t.Fatalf("SaveJob: %v", err)
	}

	snap.State = "Succeeded"
	if err := store.SaveJob(ctx, snap); err != nil {
		t.Fatalf("SaveJob update: %v", err)
	}
}

func TestStoreSaveQueueAndServer(t *testing.T) {
	store := newUnitTestStore(t)
	ctx := context.Background()

	if err := store.SaveQueue(ctx, &models.QueueSnapshot{Name: "default", Length: 3, UpdatedAt: time.Now()}); err != nil {
		t.Fatalf("SaveQueue: %v", err)
	}
	if err := store.SaveServer(ctx, &models.ServerSnapshot{ID: "server-1", Queues: []string{"default"}, WorkerCount: 4, StartedAt: time.Now(), HeartbeatAt: time.Now()}); err != nil {
		t.Fatalf("SaveServer: %v", err)
	}
}
