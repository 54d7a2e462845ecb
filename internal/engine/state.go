package engine

import (
	"sort"
	"time"
)

// MemoryState is the single in-memory container for every collection the
// engine manages, plus the secondary indices that back sorted and
// expiration queries. It is created once and mutated exclusively by the
// Dispatcher's writer goroutine; nothing else ever touches it directly.
type MemoryState struct {
	comparer StringComparer

	jobs     map[string]*JobEntry
	hashes   map[string]*HashEntry
	lists    map[string]*ListEntry
	sets     map[string]*sortedSetEntry
	counters map[string]*CounterEntry
	queues   map[string]*QueueEntry
	servers  map[string]*ServerEntry
	locks    map[string]*LockEntry

	jobExpiration     *expirationIndex
	hashExpiration    *expirationIndex
	listExpiration    *expirationIndex
	setExpiration     *expirationIndex
	counterExpiration *expirationIndex

	// jobsByState indexes job keys by current state name, for the
	// monitoring read API's per-state counts and listings.
	jobsByState map[string]map[string]struct{}

	maxExpirationTime     time.Duration
	maxStateHistoryLength int

	lockTable *LockTable
}

// NewMemoryState builds an empty state container using comparer for all key
// normalization, capping expirations set after creation at maxExpiration
// (0 = uncapped) and bounding job history at maxHistory entries. lockTable
// is woken whenever a release fully frees a resource.
func NewMemoryState(comparer StringComparer, maxExpiration time.Duration, maxHistory int, lockTable *LockTable) *MemoryState {
	return &MemoryState{
		comparer:              comparer,
		lockTable:             lockTable,
		jobs:                  make(map[string]*JobEntry),
		hashes:                make(map[string]*HashEntry),
		lists:                 make(map[string]*ListEntry),
		sets:                  make(map[string]*sortedSetEntry),
		counters:              make(map[string]*CounterEntry),
		queues:                make(map[string]*QueueEntry),
		servers:               make(map[string]*ServerEntry),
		locks:                 make(map[string]*LockEntry),
		jobExpiration:         newExpirationIndex(),
		hashExpiration:        newExpirationIndex(),
		listExpiration:        newExpirationIndex(),
		setExpiration:         newExpirationIndex(),
		counterExpiration:     newExpirationIndex(),
		jobsByState:           make(map[string]map[string]struct{}),
		maxExpirationTime:     maxExpiration,
		maxStateHistoryLength: maxHistory,
	}
}

func (s *MemoryState) key(k string) string { return s.comparer.Normalize(k) }

func (s *MemoryState) capExpiration(now Time, expireAt Time) Time {
	if s.maxExpirationTime <= 0 {
		return expireAt
	}
	capped := now.Add(s.maxExpirationTime)
	if expireAt.After(capped) {
		return capped
	}
	return expireAt
}

// --- Jobs ---

// createJob installs a new job entry, born already evicted (never stored)
// when expireIn == 0. The job's own expiration is never clamped by
// maxExpirationTime; only subsequent expire calls are.
func (s *MemoryState) createJob(jobKey string, inv InvocationData, params []Parameter, now Time, expireIn time.Duration) {
	if expireIn <= 0 {
		return
	}
	fields := newOrderedFields()
	for _, p := range params {
		fields.Set(p.Name, p.Value)
	}
	expireAt := now.Add(expireIn)
	j := &JobEntry{
		Key:        jobKey,
		Invocation: inv,
		Parameters: fields,
		CreatedAt:  now,
		ExpireAt:   &expireAt,
		maxHistory: s.maxStateHistoryLength,
	}
	k := s.key(jobKey)
	s.jobs[k] = j
	s.jobExpiration.Set(k, expireAt)
}

func (s *MemoryState) getJob(jobKey string) (*JobEntry, bool) {
	j, ok := s.jobs[s.key(jobKey)]
	return j, ok
}

func (s *MemoryState) deleteJob(normalizedKey string) {
	j, ok := s.jobs[normalizedKey]
	if !ok {
		return
	}
	if j.State != nil {
		s.removeFromStateIndex(j.State.Name, normalizedKey)
	}
	delete(s.jobs, normalizedKey)
	s.jobExpiration.Remove(normalizedKey)
}

func (s *MemoryState) setJobParameter(jobKey, name, value string) {
	j, ok := s.getJob(jobKey)
	if !ok {
		return
	}
	j.Parameters.Set(name, value)
}

func (s *MemoryState) getJobParameter(jobKey, name string) (string, bool) {
	j, ok := s.getJob(jobKey)
	if !ok {
		return "", false
	}
	return j.Parameters.Get(name)
}

func (s *MemoryState) setJobState(jobKey string, state *StateData) {
	j, ok := s.getJob(jobKey)
	if !ok {
		return
	}
	if j.State != nil {
		s.removeFromStateIndex(j.State.Name, s.key(jobKey))
	}
	j.pushState(state)
	if state != nil {
		s.addToStateIndex(state.Name, s.key(jobKey))
	}
}

func (s *MemoryState) addToStateIndex(stateName, normalizedKey string) {
	m, ok := s.jobsByState[stateName]
	if !ok {
		m = make(map[string]struct{})
		s.jobsByState[stateName] = m
	}
	m[normalizedKey] = struct{}{}
}

func (s *MemoryState) removeFromStateIndex(stateName, normalizedKey string) {
	if m, ok := s.jobsByState[stateName]; ok {
		delete(m, normalizedKey)
		if len(m) == 0 {
			delete(s.jobsByState, stateName)
		}
	}
}

// expireJob sets or refreshes a job's expiration, subject to the
// maxExpirationTime cap (creation itself is never capped — see createJob).
func (s *MemoryState) expireJob(jobKey string, now Time, in time.Duration) {
	j, ok := s.getJob(jobKey)
	if !ok {
		return
	}
	expireAt := s.capExpiration(now, now.Add(in))
	j.ExpireAt = &expireAt
	s.jobExpiration.Set(s.key(jobKey), expireAt)
}

// persistJob clears a job's expiration so it survives indefinitely.
func (s *MemoryState) persistJob(jobKey string) {
	j, ok := s.getJob(jobKey)
	if !ok {
		return
	}
	j.ExpireAt = nil
	s.jobExpiration.Remove(s.key(jobKey))
}

func (s *MemoryState) jobTtl(jobKey string, now Time) time.Duration {
	j, ok := s.getJob(jobKey)
	if !ok || j.ExpireAt == nil {
		return -1
	}
	d := j.ExpireAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// --- Hashes ---

func (s *MemoryState) setRangeInHash(key string, fields []Parameter, now Time) {
	if len(fields) == 0 {
		return
	}
	k := s.key(key)
	h, ok := s.hashes[k]
	if !ok {
		h = &HashEntry{Fields: newOrderedFields()}
		s.hashes[k] = h
	}
	for _, f := range fields {
		h.Fields.Set(f.Name, f.Value)
	}
}

func (s *MemoryState) getAllEntriesFromHash(key string) (map[string]string, bool) {
	h, ok := s.hashes[s.key(key)]
	if !ok {
		return nil, false
	}
	return h.Fields.Map(), true
}

func (s *MemoryState) removeHash(key string) {
	k := s.key(key)
	delete(s.hashes, k)
	s.hashExpiration.Remove(k)
}

func (s *MemoryState) expireHash(key string, now Time, in time.Duration) {
	k := s.key(key)
	h, ok := s.hashes[k]
	if !ok {
		return
	}
	expireAt := s.capExpiration(now, now.Add(in))
	h.ExpireAt = &expireAt
	s.hashExpiration.Set(k, expireAt)
}

func (s *MemoryState) persistHash(key string) {
	k := s.key(key)
	if h, ok := s.hashes[k]; ok {
		h.ExpireAt = nil
	}
	s.hashExpiration.Remove(k)
}

func (s *MemoryState) hashTtl(key string, now Time) time.Duration {
	h, ok := s.hashes[s.key(key)]
	if !ok || h.ExpireAt == nil {
		return -1
	}
	d := h.ExpireAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// --- Lists ---

func (s *MemoryState) insertToList(key, value string) {
	k := s.key(key)
	l, ok := s.lists[k]
	if !ok {
		l = &ListEntry{}
		s.lists[k] = l
	}
	l.Insert(value)
}

func (s *MemoryState) getAllItemsFromList(key string) []string {
	l, ok := s.lists[s.key(key)]
	if !ok {
		return nil
	}
	out := make([]string, len(l.Items))
	copy(out, l.Items)
	return out
}

func (s *MemoryState) getRangeFromList(key string, startingFrom, endingAt int) []string {
	l, ok := s.lists[s.key(key)]
	if !ok {
		return nil
	}
	n := len(l.Items)
	if startingFrom >= n {
		return nil
	}
	if endingAt >= n {
		endingAt = n - 1
	}
	if endingAt < startingFrom {
		return nil
	}
	out := make([]string, endingAt-startingFrom+1)
	copy(out, l.Items[startingFrom:endingAt+1])
	return out
}

// removeFromList drops every element equal to value from key's list,
// deleting the list entry (and its expiration membership) once empty.
func (s *MemoryState) removeFromList(key, value string) {
	k := s.key(key)
	l, ok := s.lists[k]
	if !ok {
		return
	}
	out := l.Items[:0]
	for _, item := range l.Items {
		if item != value {
			out = append(out, item)
		}
	}
	l.Items = out
	if len(l.Items) == 0 {
		delete(s.lists, k)
		s.listExpiration.Remove(k)
	}
}

func (s *MemoryState) removeList(key string) {
	k := s.key(key)
	delete(s.lists, k)
	s.listExpiration.Remove(k)
}

func (s *MemoryState) expireList(key string, now Time, in time.Duration) {
	k := s.key(key)
	l, ok := s.lists[k]
	if !ok {
		return
	}
	expireAt := s.capExpiration(now, now.Add(in))
	l.ExpireAt = &expireAt
	s.listExpiration.Set(k, expireAt)
}

func (s *MemoryState) persistList(key string) {
	k := s.key(key)
	if l, ok := s.lists[k]; ok {
		l.ExpireAt = nil
	}
	s.listExpiration.Remove(k)
}

func (s *MemoryState) listTtl(key string, now Time) time.Duration {
	l, ok := s.lists[s.key(key)]
	if !ok || l.ExpireAt == nil {
		return -1
	}
	d := l.ExpireAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// --- Sorted sets ---

func (s *MemoryState) addToSet(key, member string, score float64) {
	k := s.key(key)
	set, ok := s.sets[k]
	if !ok {
		set = newSortedSetEntry(s.comparer)
		s.sets[k] = set
	}
	set.Add(member, score)
}

func (s *MemoryState) removeFromSet(key, member string) {
	k := s.key(key)
	if set, ok := s.sets[k]; ok {
		set.Remove(member)
		if set.Len() == 0 {
			delete(s.sets, k)
			s.setExpiration.Remove(k)
		}
	}
}

func (s *MemoryState) getSetContains(key, member string) bool {
	set, ok := s.sets[s.key(key)]
	return ok && set.Contains(member)
}

func (s *MemoryState) getFirstByLowestScoreFromSet(key string, fromScore, toScore float64) (string, bool) {
	set, ok := s.sets[s.key(key)]
	if !ok {
		return "", false
	}
	return set.FirstByLowestScore(fromScore, toScore)
}

func (s *MemoryState) getFirstNByLowestScoreFromSet(key string, fromScore, toScore float64, count int) []string {
	set, ok := s.sets[s.key(key)]
	if !ok {
		return nil
	}
	return set.FirstNByLowestScore(fromScore, toScore, count)
}

func (s *MemoryState) getRangeFromSet(key string, startingFrom, endingAt int) []string {
	set, ok := s.sets[s.key(key)]
	if !ok {
		return nil
	}
	return set.Range(startingFrom, endingAt)
}

func (s *MemoryState) getSetCount(keys []string, limit int) int {
	sum := 0
	for _, key := range keys {
		if set, ok := s.sets[s.key(key)]; ok {
			sum += set.Len()
		}
	}
	if limit >= 0 && sum > limit {
		return limit
	}
	return sum
}

func (s *MemoryState) expireSet(key string, now Time, in time.Duration) {
	k := s.key(key)
	set, ok := s.sets[k]
	if !ok {
		return
	}
	expireAt := s.capExpiration(now, now.Add(in))
	set.ExpireAt = &expireAt
	s.setExpiration.Set(k, expireAt)
}

func (s *MemoryState) persistSet(key string) {
	k := s.key(key)
	if set, ok := s.sets[k]; ok {
		set.ExpireAt = nil
	}
	s.setExpiration.Remove(k)
}

func (s *MemoryState) setTtl(key string, now Time) time.Duration {
	set, ok := s.sets[s.key(key)]
	if !ok || set.ExpireAt == nil {
		return -1
	}
	d := set.ExpireAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// --- Counters ---

func (s *MemoryState) incrementCounter(key string, by int64, now Time, expireIn time.Duration) {
	k := s.key(key)
	c, ok := s.counters[k]
	if !ok {
		c = &CounterEntry{}
		s.counters[k] = c
	}
	c.Value += by
	if expireIn > 0 {
		expireAt := s.capExpiration(now, now.Add(expireIn))
		c.ExpireAt = &expireAt
		s.counterExpiration.Set(k, expireAt)
	}
}

func (s *MemoryState) getCounter(key string) int64 {
	c, ok := s.counters[s.key(key)]
	if !ok {
		return 0
	}
	return c.Value
}

func (s *MemoryState) counterTtl(key string, now Time) time.Duration {
	c, ok := s.counters[s.key(key)]
	if !ok || c.ExpireAt == nil {
		return -1
	}
	d := c.ExpireAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// --- Queues ---

func (s *MemoryState) queueFor(name string) *QueueEntry {
	k := s.key(name)
	q, ok := s.queues[k]
	if !ok {
		q = &QueueEntry{waiters: newWaiterList()}
		s.queues[k] = q
	}
	return q
}

func (s *MemoryState) enqueue(queueName, jobID string) {
	q := s.queueFor(queueName)
	q.Items = append(q.Items, jobID)
	q.waiters.wakeOne()
}

// dequeueHead pops the head of queueName's FIFO, if non-empty.
func (s *MemoryState) dequeueHead(queueName string) (string, bool) {
	k := s.key(queueName)
	q, ok := s.queues[k]
	if !ok || len(q.Items) == 0 {
		return "", false
	}
	jobID := q.Items[0]
	q.Items = q.Items[1:]
	return jobID, true
}

// --- Servers ---

func (s *MemoryState) announceServer(id string, queues []string, workerCount int, now Time) {
	k := s.key(id)
	srv, ok := s.servers[k]
	if !ok {
		srv = &ServerEntry{StartedAt: now}
		s.servers[k] = srv
	}
	srv.Queues = queues
	srv.WorkerCount = workerCount
	srv.HeartbeatAt = now
}

func (s *MemoryState) heartbeat(id string, now Time) bool {
	srv, ok := s.servers[s.key(id)]
	if !ok {
		return false
	}
	srv.HeartbeatAt = now
	return true
}

func (s *MemoryState) removeServer(id string) {
	delete(s.servers, s.key(id))
}

func (s *MemoryState) removeTimedOutServers(now Time, timeout time.Duration) int {
	removed := 0
	for k, srv := range s.servers {
		if now.Sub(srv.HeartbeatAt) >= timeout {
			delete(s.servers, k)
			removed++
		}
	}
	return removed
}

// --- Monitoring read support ---

// QueueSummary is one row of the monitoring dashboard's queue listing.
type QueueSummary struct {
	Name   string
	Length int
}

// listQueues returns every known queue in sorted name order. Empty queues
// are still listed: a queue that has had at least one write stays visible
// (queues have no TTL) so operators can see it drained to zero.
func (s *MemoryState) listQueues() []QueueSummary {
	out := make([]QueueSummary, 0, len(s.queues))
	for k, q := range s.queues {
		out = append(out, QueueSummary{Name: k, Length: len(q.Items)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// queueHead returns up to count job ids from the front of queueName's FIFO
// without removing them, for the dashboard's "up to five head jobs" view.
func (s *MemoryState) queueHead(queueName string, count int) []string {
	q, ok := s.queues[s.key(queueName)]
	if !ok || count <= 0 {
		return nil
	}
	n := len(q.Items)
	if n > count {
		n = count
	}
	out := make([]string, n)
	copy(out, q.Items[:n])
	return out
}

// stateCounts returns the number of jobs currently in each state name, for
// the dashboard's per-state bucket counts.
func (s *MemoryState) stateCounts() map[string]int {
	out := make(map[string]int, len(s.jobsByState))
	for name, keys := range s.jobsByState {
		if len(keys) > 0 {
			out[name] = len(keys)
		}
	}
	return out
}

// jobsInState returns job keys currently in stateName, sorted for stable
// paging, sliced by the inclusive-from-zero [offset, offset+limit) window
// the monitoring "list jobs per state with offset+limit" view needs.
func (s *MemoryState) jobsInState(stateName string, offset, limit int) []string {
	keys, ok := s.jobsByState[stateName]
	if !ok || len(keys) == 0 || limit <= 0 {
		return nil
	}
	all := make([]string, 0, len(keys))
	for k := range keys {
		all = append(all, k)
	}
	sort.Strings(all)
	if offset >= len(all) {
		return nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end]
}

// ServerSummary is one row of the monitoring dashboard's server listing.
type ServerSummary struct {
	ID          string
	Queues      []string
	WorkerCount int
	StartedAt   Time
	HeartbeatAt Time
}

// listServers returns every registered server, sorted by id, for the
// dashboard's server roster.
func (s *MemoryState) listServers() []ServerSummary {
	out := make([]ServerSummary, 0, len(s.servers))
	for k, srv := range s.servers {
		out = append(out, ServerSummary{
			ID:          k,
			Queues:      append([]string(nil), srv.Queues...),
			WorkerCount: srv.WorkerCount,
			StartedAt:   srv.StartedAt,
			HeartbeatAt: srv.HeartbeatAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// --- Locks ---

// lockAvailable reports whether connID could acquire resource right now,
// without mutating anything. Used by the transactional acquire op to fail
// fast instead of blocking when composed inside a batch.
func (s *MemoryState) lockAvailable(resource, connID string) bool {
	l, ok := s.locks[s.key(resource)]
	return !ok || l.Owner == connID
}

func (s *MemoryState) tryAcquireLock(resource, connID string) bool {
	k := s.key(resource)
	l, ok := s.locks[k]
	if !ok {
		s.locks[k] = &LockEntry{Owner: connID, ReentrancyCount: 1}
		return true
	}
	if l.Owner == connID {
		l.ReentrancyCount++
		return true
	}
	return false
}

// releaseLock decrements reentrancy and reports whether the lock entry was
// fully removed (i.e. a waiter should be woken).
func (s *MemoryState) releaseLock(resource, connID string) bool {
	k := s.key(resource)
	l, ok := s.locks[k]
	if !ok || l.Owner != connID {
		return false
	}
	l.ReentrancyCount--
	if l.ReentrancyCount <= 0 {
		delete(s.locks, k)
		if s.lockTable != nil {
			s.lockTable.WakeOne(resource)
		}
		return true
	}
	return false
}
