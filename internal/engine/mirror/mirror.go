// Package mirror implements the engine's optional, best-effort durability
// shadow: a decorator over engine.Connection that snapshots committed job,
// queue and server writes into an interfaces.MirrorStore. The engine itself
// remains the sole state authority and is never durable on its own; nothing
// in this package is ever read back into MemoryState.
package mirror

import (
	"context"
	"time"

	"github.com/bobmcallan/vire-engine/internal/common"
	"github.com/bobmcallan/vire-engine/internal/engine"
	"github.com/bobmcallan/vire-engine/internal/interfaces"
	"github.com/bobmcallan/vire-engine/internal/models"
)

// Connection wraps an *engine.Connection, forwarding every call unchanged,
// and best-effort persists a snapshot through store after the handful of
// writes an operator dashboard would want surviving a restart: job
// creation, state transitions, enqueues and server heartbeats. A mirror
// failure is logged and swallowed — it never fails the caller's write,
// since the engine already committed it.
type Connection struct {
	*engine.Connection
	store  interfaces.MirrorStore
	logger *common.Logger
}

// NewConnection returns a Connection that mirrors inner's writes into store.
// Pass a nil store to get a plain passthrough (used when mirroring is
// disabled so callers don't need two code paths).
func NewConnection(inner *engine.Connection, store interfaces.MirrorStore, logger *common.Logger) *Connection {
	return &Connection{Connection: inner, store: store, logger: logger}
}

func (c *Connection) CreateExpiredJob(ctx context.Context, invocation engine.InvocationData, parameters []engine.Parameter, expireIn time.Duration) (string, error) {
	jobKey, err := c.Connection.CreateExpiredJob(ctx, invocation, parameters, expireIn)
	if err != nil {
		return "", err
	}
	c.snapshotJob(ctx, jobKey)
	return jobKey, nil
}

func (c *Connection) SetJobState(ctx context.Context, jobKey string, state *engine.StateData) error {
	if err := c.Connection.SetJobState(ctx, jobKey, state); err != nil {
		return err
	}
	c.snapshotJob(ctx, jobKey)
	return nil
}

func (c *Connection) Enqueue(ctx context.Context, queue, jobID string) error {
	if err := c.Connection.Enqueue(ctx, queue, jobID); err != nil {
		return err
	}
	c.snapshotQueue(ctx, queue)
	return nil
}

func (c *Connection) AnnounceServer(ctx context.Context, id string, queues []string, workerCount int) error {
	if err := c.Connection.AnnounceServer(ctx, id, queues, workerCount); err != nil {
		return err
	}
	c.snapshotServer(ctx, id)
	return nil
}

func (c *Connection) Heartbeat(ctx context.Context, id string) error {
	if err := c.Connection.Heartbeat(ctx, id); err != nil {
		return err
	}
	c.snapshotServer(ctx, id)
	return nil
}

func (c *Connection) snapshotJob(ctx context.Context, jobKey string) {
	if c.store == nil {
		return
	}
	data, err := c.Connection.GetJobData(ctx, jobKey)
	if err != nil || data == nil {
		// job already evicted (e.g. expireIn == 0): nothing to mirror.
		return
	}
	snap := &models.JobSnapshot{
		Key:            data.Key,
		InvocationData: data.Invocation.Type + ":" + data.Invocation.Method,
		CreatedAt:      data.CreatedAt,
	}
	if data.Invocation.Queue != "" {
		snap.Queue = data.Invocation.Queue
	}
	if data.ExpireAt != nil {
		snap.ExpireAt = *data.ExpireAt
	}
	if data.State != nil {
		snap.State = data.State.Name
	}
	for _, h := range data.History {
		snap.StateHistory = append(snap.StateHistory, models.StateTransition{
			State:     h.Name,
			Reason:    h.Reason,
			CreatedAt: data.CreatedAt,
		})
	}
	if err := c.store.SaveJob(ctx, snap); err != nil {
		c.logger.Warn().Err(err).Str("job", jobKey).Msg("mirror: failed to save job snapshot")
	}
}

func (c *Connection) snapshotQueue(ctx context.Context, queue string) {
	if c.store == nil {
		return
	}
	head, err := c.Connection.GetQueueHead(ctx, queue, 1)
	if err != nil {
		return
	}
	snap := &models.QueueSnapshot{
		Name:      queue,
		UpdatedAt: c.Connection.GetUtcDateTime(),
	}
	if len(head) > 0 {
		snap.HeadKey = head[0]
	}
	if queues, err := c.Connection.ListQueues(ctx); err == nil {
		for _, q := range queues {
			if q.Name == queue {
				snap.Length = q.Length
				break
			}
		}
	}
	if err := c.store.SaveQueue(ctx, snap); err != nil {
		c.logger.Warn().Err(err).Str("queue", queue).Msg("mirror: failed to save queue snapshot")
	}
}

func (c *Connection) snapshotServer(ctx context.Context, id string) {
	if c.store == nil {
		return
	}
	servers, err := c.Connection.ListServers(ctx)
	if err != nil {
		return
	}
	for _, srv := range servers {
		if srv.ID != id {
			continue
		}
		snap := &models.ServerSnapshot{
			ID:          srv.ID,
			Queues:      srv.Queues,
			WorkerCount: srv.WorkerCount,
			StartedAt:   srv.StartedAt.UTC(),
			HeartbeatAt: srv.HeartbeatAt.UTC(),
		}
		if err := c.store.SaveServer(ctx, snap); err != nil {
			c.logger.Warn().Err(err).Str("server", id).Msg("mirror: failed to save server snapshot")
		}
		return
	}
}
