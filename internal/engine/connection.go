package engine

import (
	"context"
	"sync"
	"time"
)

// canonical feature ids reported by Connection.HasFeature. Hosts probe these
// instead of type-asserting on the engine, so new capabilities can be added
// without breaking older callers that don't know about them yet.
const (
	FeatureExtendedAPI                         = "extended-api"
	FeatureQueueing                             = "queueing"
	FeatureBatchedLowestScoreFetch              = "batched-lowest-score fetch"
	FeatureUTCTimeAccessor                      = "UTC-time accessor"
	FeatureSetContains                          = "set-contains"
	FeatureLimitedSetCount                      = "limited set-count"
	FeatureTransactionalLockAcquisition         = "transactional lock acquisition"
	FeatureInTransactionJobCreation              = "in-transaction job creation"
	FeatureInTransactionJobParameterSet          = "in-transaction job-parameter set"
	FeatureTransactionalAcknowledgeFetchedJobs   = "transactional acknowledge of fetched jobs"
	FeatureDeletedStateGraphs                    = "deleted-state graphs"
	FeatureAwaitingStateListing                  = "awaiting-state listing"
)

var featureSet = map[string]struct{}{
	FeatureExtendedAPI:                       {},
	FeatureQueueing:                          {},
	FeatureBatchedLowestScoreFetch:           {},
	FeatureUTCTimeAccessor:                   {},
	FeatureSetContains:                       {},
	FeatureLimitedSetCount:                   {},
	FeatureTransactionalLockAcquisition:      {},
	FeatureInTransactionJobCreation:          {},
	FeatureInTransactionJobParameterSet:      {},
	FeatureTransactionalAcknowledgeFetchedJobs: {},
	FeatureDeletedStateGraphs:                {},
	FeatureAwaitingStateListing:              {},
}

// Connection is the per-caller façade over the engine: every exported
// method either submits a command through the shared Dispatcher or (for
// FetchNextJob and AcquireDistributedLock) runs a register-wait-retry loop
// around it. A Connection is cheap to create and is not itself safe for
// concurrent use by multiple goroutines at once, matching the host's usual
// one-connection-per-unit-of-work pattern.
type Connection struct {
	id         string
	dispatcher *Dispatcher
	lockTable  *LockTable
	clock      *Clock

	mu        sync.Mutex
	heldLocks map[string]int
}

// NewConnection returns a Connection identified by id, the value used as the
// owner for any locks it acquires.
func NewConnection(id string, dispatcher *Dispatcher, lockTable *LockTable, clock *Clock) *Connection {
	return &Connection{
		id:         id,
		dispatcher: dispatcher,
		lockTable:  lockTable,
		clock:      clock,
		heldLocks:  make(map[string]int),
	}
}

// HasFeature reports whether this engine build supports the named
// capability, letting hosts written against older engines degrade
// gracefully instead of failing a type assertion. An empty id is rejected
// rather than silently reported as unsupported.
func (c *Connection) HasFeature(id string) (bool, error) {
	if id == "" {
		return false, invalidArg("HasFeature", "id must not be empty")
	}
	_, ok := featureSet[id]
	return ok, nil
}

// GetUtcDateTime returns the engine's current clock reading in UTC. It does
// not round-trip through the dispatcher: the monotonic clock is already
// safe for concurrent reads and isn't part of MemoryState.
func (c *Connection) GetUtcDateTime() time.Time {
	return c.clock.Now().UTC()
}

// Close releases every lock still held by this connection. Hosts should
// defer it once per Connection obtained from the engine.
func (c *Connection) Close(ctx context.Context) error {
	c.mu.Lock()
	held := c.heldLocks
	c.heldLocks = make(map[string]int)
	c.mu.Unlock()

	for resource, count := range held {
		for i := 0; i < count; i++ {
			if _, err := c.dispatcher.Submit(ctx, releaseLockCmd(resource, c.id)); err != nil {
				return err
			}
		}
	}
	return nil
}

// --- Jobs ---

func (c *Connection) GetJobData(ctx context.Context, jobKey string) (*JobData, error) {
	v, err := c.dispatcher.Submit(ctx, getJobDataCmd(jobKey))
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.(*JobData), nil
}

func (c *Connection) GetStateData(ctx context.Context, jobKey string) (*StateData, error) {
	v, err := c.dispatcher.Submit(ctx, getStateDataCmd(jobKey))
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.(*StateData), nil
}

func (c *Connection) GetJobParameter(ctx context.Context, jobKey, name string) (string, bool, error) {
	v, err := c.dispatcher.Submit(ctx, getJobParameterCmd(jobKey, name))
	if err != nil {
		return "", false, err
	}
	pair := v.([2]any)
	return pair[0].(string), pair[1].(bool), nil
}

func (c *Connection) GetJobTtl(ctx context.Context, jobKey string) (time.Duration, error) {
	v, err := c.dispatcher.Submit(ctx, getJobTtlCmd(jobKey))
	if err != nil {
		return 0, err
	}
	return v.(time.Duration), nil
}

// CreateExpiredJob mints a new job key and schedules the job under it,
// returning the generated key on success.
func (c *Connection) CreateExpiredJob(ctx context.Context, invocation InvocationData, parameters []Parameter, expireIn time.Duration) (string, error) {
	jobKey, txn := c.CreateWriteTransaction().CreateExpiredJob(invocation, parameters, expireIn)
	if err := txn.Commit(ctx); err != nil {
		return "", err
	}
	return jobKey, nil
}

func (c *Connection) SetJobParameter(ctx context.Context, jobKey, name, value string) error {
	return c.CreateWriteTransaction().SetJobParameter(jobKey, name, value).Commit(ctx)
}

func (c *Connection) SetJobState(ctx context.Context, jobKey string, state *StateData) error {
	return c.CreateWriteTransaction().SetJobState(jobKey, state).Commit(ctx)
}

func (c *Connection) ExpireJob(ctx context.Context, jobKey string, in time.Duration) error {
	return c.CreateWriteTransaction().ExpireJob(jobKey, in).Commit(ctx)
}

func (c *Connection) PersistJob(ctx context.Context, jobKey string) error {
	return c.CreateWriteTransaction().PersistJob(jobKey).Commit(ctx)
}

// --- Hashes ---

func (c *Connection) SetRangeInHash(ctx context.Context, key string, fields []Parameter) error {
	return c.CreateWriteTransaction().SetRangeInHash(key, fields).Commit(ctx)
}

func (c *Connection) GetAllEntriesFromHash(ctx context.Context, key string) (map[string]string, error) {
	v, err := c.dispatcher.Submit(ctx, getAllEntriesFromHashCmd(key))
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.(map[string]string), nil
}

func (c *Connection) RemoveHash(ctx context.Context, key string) error {
	return c.CreateWriteTransaction().RemoveHash(key).Commit(ctx)
}

func (c *Connection) ExpireHash(ctx context.Context, key string, in time.Duration) error {
	return c.CreateWriteTransaction().ExpireHash(key, in).Commit(ctx)
}

func (c *Connection) PersistHash(ctx context.Context, key string) error {
	return c.CreateWriteTransaction().PersistHash(key).Commit(ctx)
}

func (c *Connection) GetHashTtl(ctx context.Context, key string) (time.Duration, error) {
	v, err := c.dispatcher.Submit(ctx, getHashTtlCmd(key))
	if err != nil {
		return 0, err
	}
	return v.(time.Duration), nil
}

// --- Lists ---

func (c *Connection) InsertToList(ctx context.Context, key, value string) error {
	return c.CreateWriteTransaction().InsertToList(key, value).Commit(ctx)
}

func (c *Connection) RemoveFromList(ctx context.Context, key, value string) error {
	return c.CreateWriteTransaction().RemoveFromList(key, value).Commit(ctx)
}

func (c *Connection) RemoveList(ctx context.Context, key string) error {
	return c.CreateWriteTransaction().RemoveList(key).Commit(ctx)
}

func (c *Connection) GetAllItemsFromList(ctx context.Context, key string) ([]string, error) {
	v, err := c.dispatcher.Submit(ctx, getAllItemsFromListCmd(key))
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

func (c *Connection) GetRangeFromList(ctx context.Context, key string, startingFrom, endingAt int) ([]string, error) {
	v, err := c.dispatcher.Submit(ctx, getRangeFromListCmd(key, startingFrom, endingAt))
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

func (c *Connection) ExpireList(ctx context.Context, key string, in time.Duration) error {
	return c.CreateWriteTransaction().ExpireList(key, in).Commit(ctx)
}

func (c *Connection) PersistList(ctx context.Context, key string) error {
	return c.CreateWriteTransaction().PersistList(key).Commit(ctx)
}

func (c *Connection) GetListTtl(ctx context.Context, key string) (time.Duration, error) {
	v, err := c.dispatcher.Submit(ctx, getListTtlCmd(key))
	if err != nil {
		return 0, err
	}
	return v.(time.Duration), nil
}

// --- Sorted sets ---

func (c *Connection) AddToSet(ctx context.Context, key, member string, score float64) error {
	return c.CreateWriteTransaction().AddToSet(key, member, score).Commit(ctx)
}

func (c *Connection) RemoveFromSet(ctx context.Context, key, member string) error {
	return c.CreateWriteTransaction().RemoveFromSet(key, member).Commit(ctx)
}

func (c *Connection) GetSetContains(ctx context.Context, key, member string) (bool, error) {
	v, err := c.dispatcher.Submit(ctx, getSetContainsCmd(key, member))
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (c *Connection) GetRangeFromSet(ctx context.Context, key string, startingFrom, endingAt int) ([]string, error) {
	v, err := c.dispatcher.Submit(ctx, getRangeFromSetCmd(key, startingFrom, endingAt))
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

// GetFirstByLowestScoreFromSet returns the lowest-scored member whose score
// falls in [fromScore, toScore], both bounds inclusive.
func (c *Connection) GetFirstByLowestScoreFromSet(ctx context.Context, key string, fromScore, toScore float64) (string, bool, error) {
	v, err := c.dispatcher.Submit(ctx, getFirstByLowestScoreFromSetCmd(key, fromScore, toScore))
	if err != nil {
		return "", false, err
	}
	pair := v.([2]any)
	return pair[0].(string), pair[1].(bool), nil
}

func (c *Connection) GetFirstNByLowestScoreFromSet(ctx context.Context, key string, fromScore, toScore float64, count int) ([]string, error) {
	v, err := c.dispatcher.Submit(ctx, getFirstNByLowestScoreFromSetCmd(key, fromScore, toScore, count))
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

func (c *Connection) GetSetCount(ctx context.Context, keys []string, limit int) (int, error) {
	v, err := c.dispatcher.Submit(ctx, getSetCountCmd(keys, limit))
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

func (c *Connection) ExpireSet(ctx context.Context, key string, in time.Duration) error {
	return c.CreateWriteTransaction().ExpireSet(key, in).Commit(ctx)
}

func (c *Connection) PersistSet(ctx context.Context, key string) error {
	return c.CreateWriteTransaction().PersistSet(key).Commit(ctx)
}

func (c *Connection) GetSetTtl(ctx context.Context, key string) (time.Duration, error) {
	v, err := c.dispatcher.Submit(ctx, getSetTtlCmd(key))
	if err != nil {
		return 0, err
	}
	return v.(time.Duration), nil
}

// --- Counters ---

func (c *Connection) IncrementCounter(ctx context.Context, key string, by int64, expireIn time.Duration) error {
	return c.CreateWriteTransaction().IncrementCounter(key, by, expireIn).Commit(ctx)
}

func (c *Connection) GetCounter(ctx context.Context, key string) (int64, error) {
	v, err := c.dispatcher.Submit(ctx, getCounterCmd(key))
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

func (c *Connection) GetCounterTtl(ctx context.Context, key string) (time.Duration, error) {
	v, err := c.dispatcher.Submit(ctx, getCounterTtlCmd(key))
	if err != nil {
		return 0, err
	}
	return v.(time.Duration), nil
}

// --- Queues ---

func (c *Connection) Enqueue(ctx context.Context, queue, jobID string) error {
	return c.CreateWriteTransaction().Enqueue(queue, jobID).Commit(ctx)
}

// RemoveFromQueue and Dispose exist for host-API symmetry only: fetched jobs
// are never moved to a separate in-flight list, so there is nothing for
// either to do. A host that wants to drop a fetched job deletes it inside a
// write transaction instead.
func (c *Connection) RemoveFromQueue(ctx context.Context, fetched *FetchedJob) error { return nil }
func (c *Connection) Dispose(ctx context.Context, fetched *FetchedJob) error         { return nil }

// Requeue gives a fetched job back: it is re-enqueued at the tail of the
// queue it came from, waking a blocked fetcher like any other enqueue.
func (c *Connection) Requeue(ctx context.Context, fetched *FetchedJob) error {
	if fetched == nil {
		return invalidArg("Requeue", "fetched must not be nil")
	}
	return c.CreateWriteTransaction().Enqueue(fetched.Queue, fetched.JobID).Commit(ctx)
}

// FetchNextJob blocks until a job is available on one of queues (deduped,
// first occurrence kept) or ctx is done. Fetchers are served fair FIFO
// round-robin across all callers currently blocked on any of these queues:
// a wake only means "something changed, go try again", so a lost race
// re-registers and re-waits rather than trusting the wake's payload.
func (c *Connection) FetchNextJob(ctx context.Context, queues []string) (*FetchedJob, error) {
	queues = dedupPreserveOrder(queues)
	if len(queues) == 0 {
		return nil, invalidArg("FetchNextJob", "queues must not be empty")
	}

	if v, err := c.dispatcher.Submit(ctx, tryFetchNextJobCmd(queues)); err != nil {
		return nil, err
	} else if v != nil {
		return v.(*FetchedJob), nil
	}

	for {
		w := newWaiter()
		if _, err := c.dispatcher.Submit(ctx, registerFetchWaiterCmd(queues, w)); err != nil {
			return nil, err
		}

		// Recheck after registering: an enqueue landing between the last
		// failed attempt and the registration wakes nobody.
		if v, err := c.dispatcher.Submit(ctx, tryFetchNextJobCmd(queues)); err != nil || v != nil {
			c.dispatcher.Submit(context.Background(), deregisterFetchWaiterCmd(queues, w))
			if err != nil {
				return nil, err
			}
			return v.(*FetchedJob), nil
		}

		select {
		case <-w.wake:
		case <-ctx.Done():
			c.dispatcher.Submit(context.Background(), deregisterFetchWaiterCmd(queues, w))
			return nil, &Error{Op: "FetchNextJob", Kind: Cancelled, Err: ctx.Err()}
		}

		v, err := c.dispatcher.Submit(ctx, tryFetchNextJobCmd(queues))
		if err != nil {
			c.dispatcher.Submit(context.Background(), deregisterFetchWaiterCmd(queues, w))
			return nil, err
		}
		if v != nil {
			c.dispatcher.Submit(context.Background(), deregisterFetchWaiterCmd(queues, w))
			return v.(*FetchedJob), nil
		}
		// lost race: queue drained again before we got to it. Loop and
		// re-register; the previous waiter already consumed its one wake.
	}
}

func dedupPreserveOrder(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// --- Servers ---

func (c *Connection) AnnounceServer(ctx context.Context, id string, queues []string, workerCount int) error {
	return c.CreateWriteTransaction().AnnounceServer(id, queues, workerCount).Commit(ctx)
}

func (c *Connection) Heartbeat(ctx context.Context, id string) error {
	_, err := c.dispatcher.Submit(ctx, heartbeatCmd(id))
	return err
}

func (c *Connection) RemoveServer(ctx context.Context, id string) error {
	return c.CreateWriteTransaction().RemoveServer(id).Commit(ctx)
}

func (c *Connection) RemoveTimedOutServers(ctx context.Context, timeout time.Duration) (int, error) {
	v, err := c.dispatcher.Submit(ctx, removeTimedOutServersCmd(timeout))
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

// --- Distributed locks ---

// DistributedLock is a held lock handle; callers release it via Dispose.
type DistributedLock struct {
	resource string
	conn     *Connection
}

// Dispose releases the lock. Safe to call once; a second call is a
// harmless no-op decrement against a resource this connection no longer
// holds.
func (l *DistributedLock) Dispose(ctx context.Context) error {
	return l.conn.releaseLock(ctx, l.resource)
}

func (c *Connection) releaseLock(ctx context.Context, resource string) error {
	c.forgetLockHeld(resource)
	_, err := c.dispatcher.Submit(ctx, releaseLockCmd(resource, c.id))
	return err
}

// AcquireDistributedLock blocks until resource is free for this connection
// (reentrant acquisition by the same connection always succeeds
// immediately) or timeout elapses, returning LockTimeout in the latter
// case. A timeout of 0 is a valid non-blocking single attempt.
func (c *Connection) AcquireDistributedLock(ctx context.Context, resource string, timeout time.Duration) (*DistributedLock, error) {
	if resource == "" {
		return nil, invalidArg("AcquireDistributedLock", "resource must not be empty")
	}
	if timeout < 0 {
		return nil, invalidArg("AcquireDistributedLock", "timeout must not be negative")
	}

	grant := func() (bool, error) {
		v, err := c.dispatcher.Submit(ctx, tryAcquireLockCmd(resource, c.id))
		if err != nil {
			return false, err
		}
		return v.(bool), nil
	}

	ok, err := grant()
	if err != nil {
		return nil, err
	}
	if ok {
		c.recordLockHeld(resource)
		return &DistributedLock{resource: resource, conn: c}, nil
	}
	if timeout <= 0 {
		return nil, newError("AcquireDistributedLock", LockTimeout, "resource unavailable: "+resource)
	}

	deadline := c.clock.Now().Add(timeout)
	for {
		w := c.lockTable.Register(resource)

		// Recheck after registering: a release landing between a failed
		// grant and Register fires WakeOne against an empty wait list, so
		// without this attempt the wake is lost and the caller would sit
		// out its full timeout against a free lock.
		ok, err := grant()
		if err != nil {
			c.lockTable.Deregister(resource, w)
			return nil, err
		}
		if ok {
			c.lockTable.Deregister(resource, w)
			c.recordLockHeld(resource)
			return &DistributedLock{resource: resource, conn: c}, nil
		}

		remaining := deadline.Sub(c.clock.Now())
		if remaining <= 0 {
			c.lockTable.Deregister(resource, w)
			return nil, newError("AcquireDistributedLock", LockTimeout, "timed out waiting for: "+resource)
		}
		timer := time.NewTimer(remaining)

		select {
		case <-w.wake:
			timer.Stop()
			// Loop: re-register, then retry the grant. A wake only means
			// the lock was free at some point; a faster waiter may have
			// taken it again.
		case <-timer.C:
			c.lockTable.Deregister(resource, w)
			return nil, newError("AcquireDistributedLock", LockTimeout, "timed out waiting for: "+resource)
		case <-ctx.Done():
			timer.Stop()
			c.lockTable.Deregister(resource, w)
			return nil, &Error{Op: "AcquireDistributedLock", Kind: Cancelled, Err: ctx.Err()}
		}
	}
}

func (c *Connection) recordLockHeld(resource string) {
	c.mu.Lock()
	c.heldLocks[resource]++
	c.mu.Unlock()
}

// forgetLockHeld decrements resource's held-lock count, the counterpart to
// recordLockHeld used both by the direct release path and by Transaction
// after a committed ReleaseDistributedLock op.
func (c *Connection) forgetLockHeld(resource string) {
	c.mu.Lock()
	if c.heldLocks[resource] > 0 {
		c.heldLocks[resource]--
		if c.heldLocks[resource] == 0 {
			delete(c.heldLocks, resource)
		}
	}
	c.mu.Unlock()
}

// --- Monitoring read API ---
//
// These are plain read commands like every other getter above; they exist
// so internal/monitoring never needs to reach past Connection into
// MemoryState directly.

// ListQueues returns every known queue in sorted name order along with its
// current length.
func (c *Connection) ListQueues(ctx context.Context) ([]QueueSummary, error) {
	v, err := c.dispatcher.Submit(ctx, listQueuesCmd())
	if err != nil {
		return nil, err
	}
	return v.([]QueueSummary), nil
}

// GetQueueHead returns up to count job ids from the front of queueName's
// FIFO without dequeuing them, for a dashboard preview.
func (c *Connection) GetQueueHead(ctx context.Context, queueName string, count int) ([]string, error) {
	v, err := c.dispatcher.Submit(ctx, queueHeadCmd(queueName, count))
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

// GetStateCounts returns the number of jobs currently in each state name.
func (c *Connection) GetStateCounts(ctx context.Context) (map[string]int, error) {
	v, err := c.dispatcher.Submit(ctx, stateCountsCmd())
	if err != nil {
		return nil, err
	}
	return v.(map[string]int), nil
}

// GetJobsInState returns job keys currently in stateName, paged by
// offset/limit in stable sorted order.
func (c *Connection) GetJobsInState(ctx context.Context, stateName string, offset, limit int) ([]string, error) {
	v, err := c.dispatcher.Submit(ctx, jobsInStateCmd(stateName, offset, limit))
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

// ListServers returns every registered server, sorted by id.
func (c *Connection) ListServers(ctx context.Context) ([]ServerSummary, error) {
	v, err := c.dispatcher.Submit(ctx, listServersCmd())
	if err != nil {
		return nil, err
	}
	return v.([]ServerSummary), nil
}
