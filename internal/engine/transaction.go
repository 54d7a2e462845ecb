package engine

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
)

// newJobKey mints a new unique job key, the same way
// internal/server/middleware.go mints correlation ids, but kept as a full
// uuid string here since job keys are persisted and compared, not just
// logged.
func newJobKey() string {
	return uuid.New().String()
}

// writeOp is one elementary mutation inside a TransactionBatch. validate
// runs for every op in the batch before apply runs for any of them, so a
// batch either commits in full or leaves state untouched.
type writeOp interface {
	validate(st *MemoryState, now Time) error
	apply(st *MemoryState, now Time)
}

// Transaction buffers an ordered list of write ops and submits them as one
// atomic command. Building a Transaction never touches the engine; only
// Commit does.
type Transaction struct {
	conn *Connection
	ops  []writeOp
	err  error
}

// CreateWriteTransaction starts an empty transaction bound to c.
func (c *Connection) CreateWriteTransaction() *Transaction {
	return &Transaction{conn: c}
}

func (t *Transaction) add(op writeOp, err error) *Transaction {
	if err != nil && t.err == nil {
		t.err = err
		return t
	}
	if t.err == nil {
		t.ops = append(t.ops, op)
	}
	return t
}

// Commit submits the buffered ops as a single TransactionBatch. A build-time
// argument error (recorded by one of the op-adding methods) short-circuits
// without ever reaching the dispatcher.
func (t *Transaction) Commit(ctx context.Context) error {
	if t.err != nil {
		return t.err
	}
	if len(t.ops) == 0 {
		return nil
	}
	ops := t.ops
	_, err := t.conn.dispatcher.Submit(ctx, func(st *MemoryState, now Time) (any, error) {
		// A job created earlier in this batch does not exist yet while the
		// ops validate, so SetJobState against it skips the existence check.
		created := make(map[string]bool)
		for _, op := range ops {
			switch o := op.(type) {
			case opCreateExpiredJob:
				if o.ExpireIn > 0 {
					created[o.JobKey] = true
				}
			case opSetJobState:
				if created[o.JobKey] {
					continue
				}
			}
			if err := op.validate(st, now); err != nil {
				return nil, err
			}
		}
		for _, op := range ops {
			op.apply(st, now)
		}
		return nil, nil
	})
	if err != nil {
		return err
	}
	// The batch committed, so every lock op in it took effect against
	// MemoryState; mirror that into the connection's held-lock bookkeeping
	// so Close releases locks acquired transactionally and doesn't try to
	// release ones already released transactionally.
	for _, op := range ops {
		switch o := op.(type) {
		case opAcquireLock:
			t.conn.recordLockHeld(o.Resource)
		case opReleaseLock:
			t.conn.forgetLockHeld(o.Resource)
		}
	}
	return nil
}

func invalidArg(op, msg string) error {
	return newError(op, InvalidArgument, msg)
}

// --- Jobs ---

type opCreateExpiredJob struct {
	JobKey     string
	Invocation InvocationData
	Parameters []Parameter
	ExpireIn   time.Duration
}

func (o opCreateExpiredJob) validate(st *MemoryState, now Time) error { return nil }
func (o opCreateExpiredJob) apply(st *MemoryState, now Time) {
	st.createJob(o.JobKey, o.Invocation, o.Parameters, now, o.ExpireIn)
}

// CreateExpiredJob schedules a new job record, born already evicted unless
// expireIn > 0, so a job can be staged before its first state transition
// without ever being visible to a scan that hasn't applied that transition
// yet. The engine mints the job's key; it returns the generated key
// alongside the transaction so the caller can reference it in later ops.
func (t *Transaction) CreateExpiredJob(invocation InvocationData, parameters []Parameter, expireIn time.Duration) (string, *Transaction) {
	jobKey := newJobKey()
	return jobKey, t.add(opCreateExpiredJob{JobKey: jobKey, Invocation: invocation, Parameters: parameters, ExpireIn: expireIn}, nil)
}

type opSetJobParameter struct{ JobKey, Name, Value string }

func (o opSetJobParameter) validate(st *MemoryState, now Time) error { return nil }
func (o opSetJobParameter) apply(st *MemoryState, now Time)          { st.setJobParameter(o.JobKey, o.Name, o.Value) }

func (t *Transaction) SetJobParameter(jobKey, name, value string) *Transaction {
	if jobKey == "" || name == "" {
		return t.add(nil, invalidArg("SetJobParameter", "jobKey and name must not be empty"))
	}
	return t.add(opSetJobParameter{jobKey, name, value}, nil)
}

// opSetJobState installs a new current state on a job. The engine indexes
// the job under the state's exact Name and never enqueues or schedules on a
// caller's behalf, whatever that name is.
type opSetJobState struct {
	JobKey string
	State  *StateData
}

func (o opSetJobState) validate(st *MemoryState, now Time) error {
	if _, ok := st.getJob(o.JobKey); !ok {
		return newError("SetJobState", NotFound, "job not found: "+o.JobKey)
	}
	return nil
}
func (o opSetJobState) apply(st *MemoryState, now Time) { st.setJobState(o.JobKey, o.State) }

func (t *Transaction) SetJobState(jobKey string, state *StateData) *Transaction {
	if jobKey == "" || state == nil || state.Name == "" {
		return t.add(nil, invalidArg("SetJobState", "jobKey and state.Name must not be empty"))
	}
	return t.add(opSetJobState{jobKey, state}, nil)
}

type opExpireJob struct {
	JobKey string
	In     time.Duration
}

func (o opExpireJob) validate(st *MemoryState, now Time) error { return nil }
func (o opExpireJob) apply(st *MemoryState, now Time)          { st.expireJob(o.JobKey, now, o.In) }

func (t *Transaction) ExpireJob(jobKey string, in time.Duration) *Transaction {
	if jobKey == "" {
		return t.add(nil, invalidArg("ExpireJob", "jobKey must not be empty"))
	}
	if in < 0 {
		return t.add(nil, invalidArg("ExpireJob", "in must be >= 0"))
	}
	return t.add(opExpireJob{jobKey, in}, nil)
}

type opPersistJob struct{ JobKey string }

func (o opPersistJob) validate(st *MemoryState, now Time) error { return nil }
func (o opPersistJob) apply(st *MemoryState, now Time)          { st.persistJob(o.JobKey) }

func (t *Transaction) PersistJob(jobKey string) *Transaction {
	if jobKey == "" {
		return t.add(nil, invalidArg("PersistJob", "jobKey must not be empty"))
	}
	return t.add(opPersistJob{jobKey}, nil)
}

// --- Hashes ---

type opSetRangeInHash struct {
	Key    string
	Fields []Parameter
}

func (o opSetRangeInHash) validate(st *MemoryState, now Time) error { return nil }
func (o opSetRangeInHash) apply(st *MemoryState, now Time)          { st.setRangeInHash(o.Key, o.Fields, now) }

func (t *Transaction) SetRangeInHash(key string, fields []Parameter) *Transaction {
	if key == "" {
		return t.add(nil, invalidArg("SetRangeInHash", "key must not be empty"))
	}
	return t.add(opSetRangeInHash{key, fields}, nil)
}

type opRemoveHash struct{ Key string }

func (o opRemoveHash) validate(st *MemoryState, now Time) error { return nil }
func (o opRemoveHash) apply(st *MemoryState, now Time)          { st.removeHash(o.Key) }

func (t *Transaction) RemoveHash(key string) *Transaction {
	if key == "" {
		return t.add(nil, invalidArg("RemoveHash", "key must not be empty"))
	}
	return t.add(opRemoveHash{key}, nil)
}

type opExpireHash struct {
	Key string
	In  time.Duration
}

func (o opExpireHash) validate(st *MemoryState, now Time) error { return nil }
func (o opExpireHash) apply(st *MemoryState, now Time)          { st.expireHash(o.Key, now, o.In) }

func (t *Transaction) ExpireHash(key string, in time.Duration) *Transaction {
	if key == "" {
		return t.add(nil, invalidArg("ExpireHash", "key must not be empty"))
	}
	if in < 0 {
		return t.add(nil, invalidArg("ExpireHash", "in must be >= 0"))
	}
	return t.add(opExpireHash{key, in}, nil)
}

type opPersistHash struct{ Key string }

func (o opPersistHash) validate(st *MemoryState, now Time) error { return nil }
func (o opPersistHash) apply(st *MemoryState, now Time)          { st.persistHash(o.Key) }

func (t *Transaction) PersistHash(key string) *Transaction {
	if key == "" {
		return t.add(nil, invalidArg("PersistHash", "key must not be empty"))
	}
	return t.add(opPersistHash{key}, nil)
}

// --- Lists ---

type opInsertToList struct{ Key, Value string }

func (o opInsertToList) validate(st *MemoryState, now Time) error { return nil }
func (o opInsertToList) apply(st *MemoryState, now Time)          { st.insertToList(o.Key, o.Value) }

func (t *Transaction) InsertToList(key, value string) *Transaction {
	if key == "" {
		return t.add(nil, invalidArg("InsertToList", "key must not be empty"))
	}
	return t.add(opInsertToList{key, value}, nil)
}

type opRemoveFromList struct{ Key, Value string }

func (o opRemoveFromList) validate(st *MemoryState, now Time) error { return nil }
func (o opRemoveFromList) apply(st *MemoryState, now Time)          { st.removeFromList(o.Key, o.Value) }

func (t *Transaction) RemoveFromList(key, value string) *Transaction {
	if key == "" {
		return t.add(nil, invalidArg("RemoveFromList", "key must not be empty"))
	}
	return t.add(opRemoveFromList{key, value}, nil)
}

type opRemoveList struct{ Key string }

func (o opRemoveList) validate(st *MemoryState, now Time) error { return nil }
func (o opRemoveList) apply(st *MemoryState, now Time)          { st.removeList(o.Key) }

func (t *Transaction) RemoveList(key string) *Transaction {
	if key == "" {
		return t.add(nil, invalidArg("RemoveList", "key must not be empty"))
	}
	return t.add(opRemoveList{key}, nil)
}

type opExpireList struct {
	Key string
	In  time.Duration
}

func (o opExpireList) validate(st *MemoryState, now Time) error { return nil }
func (o opExpireList) apply(st *MemoryState, now Time)          { st.expireList(o.Key, now, o.In) }

func (t *Transaction) ExpireList(key string, in time.Duration) *Transaction {
	if key == "" {
		return t.add(nil, invalidArg("ExpireList", "key must not be empty"))
	}
	if in < 0 {
		return t.add(nil, invalidArg("ExpireList", "in must be >= 0"))
	}
	return t.add(opExpireList{key, in}, nil)
}

type opPersistList struct{ Key string }

func (o opPersistList) validate(st *MemoryState, now Time) error { return nil }
func (o opPersistList) apply(st *MemoryState, now Time)          { st.persistList(o.Key) }

func (t *Transaction) PersistList(key string) *Transaction {
	if key == "" {
		return t.add(nil, invalidArg("PersistList", "key must not be empty"))
	}
	return t.add(opPersistList{key}, nil)
}

// --- Sorted sets ---

type opAddToSet struct {
	Key, Member string
	Score       float64
}

func (o opAddToSet) validate(st *MemoryState, now Time) error { return nil }
func (o opAddToSet) apply(st *MemoryState, now Time)          { st.addToSet(o.Key, o.Member, o.Score) }

func (t *Transaction) AddToSet(key, member string, score float64) *Transaction {
	if key == "" || member == "" {
		return t.add(nil, invalidArg("AddToSet", "key and member must not be empty"))
	}
	if math.IsNaN(score) {
		return t.add(nil, invalidArg("AddToSet", "score must not be NaN"))
	}
	return t.add(opAddToSet{key, member, score}, nil)
}

type opRemoveFromSet struct{ Key, Member string }

func (o opRemoveFromSet) validate(st *MemoryState, now Time) error { return nil }
func (o opRemoveFromSet) apply(st *MemoryState, now Time)          { st.removeFromSet(o.Key, o.Member) }

func (t *Transaction) RemoveFromSet(key, member string) *Transaction {
	if key == "" || member == "" {
		return t.add(nil, invalidArg("RemoveFromSet", "key and member must not be empty"))
	}
	return t.add(opRemoveFromSet{key, member}, nil)
}

type opExpireSet struct {
	Key string
	In  time.Duration
}

func (o opExpireSet) validate(st *MemoryState, now Time) error { return nil }
func (o opExpireSet) apply(st *MemoryState, now Time)          { st.expireSet(o.Key, now, o.In) }

func (t *Transaction) ExpireSet(key string, in time.Duration) *Transaction {
	if key == "" {
		return t.add(nil, invalidArg("ExpireSet", "key must not be empty"))
	}
	if in < 0 {
		return t.add(nil, invalidArg("ExpireSet", "in must be >= 0"))
	}
	return t.add(opExpireSet{key, in}, nil)
}

type opPersistSet struct{ Key string }

func (o opPersistSet) validate(st *MemoryState, now Time) error { return nil }
func (o opPersistSet) apply(st *MemoryState, now Time)          { st.persistSet(o.Key) }

func (t *Transaction) PersistSet(key string) *Transaction {
	if key == "" {
		return t.add(nil, invalidArg("PersistSet", "key must not be empty"))
	}
	return t.add(opPersistSet{key}, nil)
}

// --- Counters ---

type opIncrementCounter struct {
	Key      string
	By       int64
	ExpireIn time.Duration
}

func (o opIncrementCounter) validate(st *MemoryState, now Time) error { return nil }
func (o opIncrementCounter) apply(st *MemoryState, now Time) {
	st.incrementCounter(o.Key, o.By, now, o.ExpireIn)
}

func (t *Transaction) IncrementCounter(key string, by int64, expireIn time.Duration) *Transaction {
	if key == "" {
		return t.add(nil, invalidArg("IncrementCounter", "key must not be empty"))
	}
	return t.add(opIncrementCounter{key, by, expireIn}, nil)
}

// --- Queues ---

type opEnqueue struct{ Queue, JobID string }

func (o opEnqueue) validate(st *MemoryState, now Time) error { return nil }
func (o opEnqueue) apply(st *MemoryState, now Time)          { st.enqueue(o.Queue, o.JobID) }

func (t *Transaction) Enqueue(queue, jobID string) *Transaction {
	if queue == "" || jobID == "" {
		return t.add(nil, invalidArg("Enqueue", "queue and jobID must not be empty"))
	}
	return t.add(opEnqueue{queue, jobID}, nil)
}

// --- Servers ---

type opAnnounceServer struct {
	ID          string
	Queues      []string
	WorkerCount int
}

func (o opAnnounceServer) validate(st *MemoryState, now Time) error { return nil }
func (o opAnnounceServer) apply(st *MemoryState, now Time) {
	st.announceServer(o.ID, o.Queues, o.WorkerCount, now)
}

func (t *Transaction) AnnounceServer(id string, queues []string, workerCount int) *Transaction {
	if id == "" {
		return t.add(nil, invalidArg("AnnounceServer", "id must not be empty"))
	}
	if workerCount < 0 {
		return t.add(nil, invalidArg("AnnounceServer", "workerCount must be >= 0"))
	}
	return t.add(opAnnounceServer{id, queues, workerCount}, nil)
}

type opRemoveServer struct{ ID string }

func (o opRemoveServer) validate(st *MemoryState, now Time) error { return nil }
func (o opRemoveServer) apply(st *MemoryState, now Time)          { st.removeServer(o.ID) }

func (t *Transaction) RemoveServer(id string) *Transaction {
	if id == "" {
		return t.add(nil, invalidArg("RemoveServer", "id must not be empty"))
	}
	return t.add(opRemoveServer{id}, nil)
}

type opRemoveTimedOutServers struct{ Timeout time.Duration }

func (o opRemoveTimedOutServers) validate(st *MemoryState, now Time) error { return nil }
func (o opRemoveTimedOutServers) apply(st *MemoryState, now Time) {
	st.removeTimedOutServers(now, o.Timeout)
}

func (t *Transaction) RemoveTimedOutServers(timeout time.Duration) *Transaction {
	if timeout <= 0 {
		return t.add(nil, invalidArg("RemoveTimedOutServers", "timeout must be > 0"))
	}
	return t.add(opRemoveTimedOutServers{timeout}, nil)
}

// --- Locks ---

// opAcquireLock fails the whole batch with LockTimeout if resource isn't
// available at commit time; a transaction never blocks waiting for one.
type opAcquireLock struct{ Resource, ConnID string }

func (o opAcquireLock) validate(st *MemoryState, now Time) error {
	if !st.lockAvailable(o.Resource, o.ConnID) {
		return newError("AcquireDistributedLock", LockTimeout, "resource held by another connection: "+o.Resource)
	}
	return nil
}
func (o opAcquireLock) apply(st *MemoryState, now Time) { st.tryAcquireLock(o.Resource, o.ConnID) }

func (t *Transaction) AcquireDistributedLock(resource string) *Transaction {
	if resource == "" {
		return t.add(nil, invalidArg("AcquireDistributedLock", "resource must not be empty"))
	}
	return t.add(opAcquireLock{resource, t.conn.id}, nil)
}

type opReleaseLock struct{ Resource, ConnID string }

func (o opReleaseLock) validate(st *MemoryState, now Time) error { return nil }
func (o opReleaseLock) apply(st *MemoryState, now Time)          { st.releaseLock(o.Resource, o.ConnID) }

func (t *Transaction) ReleaseDistributedLock(resource string) *Transaction {
	if resource == "" {
		return t.add(nil, invalidArg("ReleaseDistributedLock", "resource must not be empty"))
	}
	return t.add(opReleaseLock{resource, t.conn.id}, nil)
}
