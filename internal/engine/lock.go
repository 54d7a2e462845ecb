package engine

import (
	"encoding/hex"
	"sync"

	"golang.org/x/crypto/blake2b"
)

// LockTable tracks a wait list for every resource that has had a blocked
// waiter; a list stays in the table, empty, after its last waiter leaves.
// Grant/release/reentrancy bookkeeping for the LockEntry
// itself lives in MemoryState, which the dispatcher alone mutates; LockTable
// only owns the cross-goroutine wake signal, the same role waiterList plays
// for queues.
type LockTable struct {
	comparer StringComparer

	mu    sync.Mutex
	lists map[string]*waiterList
}

// NewLockTable creates an empty LockTable using comparer to normalize
// resource names into wait-list keys.
func NewLockTable(comparer StringComparer) *LockTable {
	return &LockTable{comparer: comparer, lists: make(map[string]*waiterList)}
}

// lockKey reduces a resource name to its internal wait-list key. When the
// comparer is byte-based (ordinal), names are digested with blake2b-256 to
// bound key length in the wait-list map regardless of how long resource
// names get; case-insensitive comparers normalize instead, since digesting
// would defeat their equality semantics.
func (t *LockTable) lockKey(resource string) string {
	if _, ok := t.comparer.(ordinalComparer); ok {
		sum := blake2b.Sum256([]byte(resource))
		return hex.EncodeToString(sum[:])
	}
	return t.comparer.Normalize(resource)
}

// Register adds a waiter to resource's FIFO and returns it.
func (t *LockTable) Register(resource string) *waiter {
	key := t.lockKey(resource)
	t.mu.Lock()
	list, ok := t.lists[key]
	if !ok {
		list = newWaiterList()
		t.lists[key] = list
	}
	t.mu.Unlock()

	w := newWaiter()
	list.register(w)
	return w
}

// Deregister removes w from resource's FIFO, used after a timeout or
// cancellation so the wait list doesn't accumulate dead entries.
func (t *LockTable) Deregister(resource string, w *waiter) {
	key := t.lockKey(resource)
	t.mu.Lock()
	list := t.lists[key]
	t.mu.Unlock()
	if list != nil {
		list.remove(w)
	}
}

// WakeOne wakes the longest-waiting registrant on resource, telling it to
// retry acquisition. Returns false if nobody was waiting.
func (t *LockTable) WakeOne(resource string) bool {
	key := t.lockKey(resource)
	t.mu.Lock()
	list := t.lists[key]
	t.mu.Unlock()
	if list == nil {
		return false
	}
	return list.wakeOne()
}
