package engine

import (
	"container/heap"
	"sort"
)

// heapItem is one entry in an expirationHeap.
type heapItem struct {
	key      string
	expireAt Time
	index    int
}

// expirationIndex is the min-heap, ordered by expireAt, backing one
// collection family's eviction sweep. It supports O(log n) set/remove/fix
// so a changed expireAt relocates its entry rather than requiring a full
// rebuild.
type expirationIndex struct {
	items []*heapItem
	pos   map[string]*heapItem
}

func newExpirationIndex() *expirationIndex {
	return &expirationIndex{pos: make(map[string]*heapItem)}
}

func (h *expirationIndex) Len() int { return len(h.items) }
func (h *expirationIndex) Less(i, j int) bool {
	return h.items[i].expireAt.Before(h.items[j].expireAt)
}
func (h *expirationIndex) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].index = i
	h.items[j].index = j
}
func (h *expirationIndex) Push(x any) {
	it := x.(*heapItem)
	it.index = len(h.items)
	h.items = append(h.items, it)
}
func (h *expirationIndex) Pop() any {
	n := len(h.items)
	it := h.items[n-1]
	h.items[n-1] = nil
	h.items = h.items[:n-1]
	return it
}

// Set registers or relocates key's expiration. Passing a nil expireAt via
// Remove clears it instead.
func (h *expirationIndex) Set(key string, expireAt Time) {
	if it, ok := h.pos[key]; ok {
		it.expireAt = expireAt
		heap.Fix(h, it.index)
		return
	}
	it := &heapItem{key: key, expireAt: expireAt}
	heap.Push(h, it)
	h.pos[key] = it
}

// Remove clears key's expiration membership, if any.
func (h *expirationIndex) Remove(key string) {
	if it, ok := h.pos[key]; ok {
		heap.Remove(h, it.index)
		delete(h.pos, key)
	}
}

// Contains reports whether key currently has a tracked expiration.
func (h *expirationIndex) Contains(key string) bool {
	_, ok := h.pos[key]
	return ok
}

// PopExpired removes and returns every key whose expireAt <= now.
func (h *expirationIndex) PopExpired(now Time) []string {
	var expired []string
	for h.Len() > 0 && !h.items[0].expireAt.After(now) {
		it := heap.Pop(h).(*heapItem)
		delete(h.pos, it.key)
		expired = append(expired, it.key)
	}
	return expired
}

// sortedSetMember is one (member, score) pair inside a sortedSetEntry.
type sortedSetMember struct {
	Member string
	Score  float64
}

// sortedSetEntry maintains the (score asc, member asc) order statistic for
// one sorted set, with member equality and ordering delegated to the
// engine's comparer just like collection keys. Lookup by member is O(1);
// insert/remove/range are O(log n) to locate the slice position and O(n) to
// shift, which is the accepted trade-off for the engine's expected set
// sizes (per-job schedule/state sets, not general-purpose large
// collections).
type sortedSetEntry struct {
	cmp      StringComparer
	members  []sortedSetMember
	byMember map[string]float64 // keyed by cmp.Normalize(member)
	ExpireAt *Time
}

func newSortedSetEntry(cmp StringComparer) *sortedSetEntry {
	return &sortedSetEntry{cmp: cmp, byMember: make(map[string]float64)}
}

func (s *sortedSetEntry) searchPos(member string, score float64) int {
	return sort.Search(len(s.members), func(i int) bool {
		if s.members[i].Score != score {
			return s.members[i].Score > score
		}
		return !s.cmp.Less(s.members[i].Member, member)
	})
}

// Add inserts member with score, or relocates it if it already exists with
// a different score. A re-add keeps the originally stored member string:
// the member's comparator identity does not change.
func (s *sortedSetEntry) Add(member string, score float64) {
	norm := s.cmp.Normalize(member)
	if old, ok := s.byMember[norm]; ok {
		if old == score {
			return
		}
		if raw, removed := s.removeAt(member, old); removed {
			member = raw
		}
	}
	s.byMember[norm] = score
	pos := s.searchPos(member, score)
	s.members = append(s.members, sortedSetMember{})
	copy(s.members[pos+1:], s.members[pos:])
	s.members[pos] = sortedSetMember{Member: member, Score: score}
}

// removeAt drops the element comparer-equal to member at score, returning
// the stored member string so a relocating Add can preserve identity.
func (s *sortedSetEntry) removeAt(member string, score float64) (string, bool) {
	pos := sort.Search(len(s.members), func(i int) bool {
		return s.members[i].Score >= score
	})
	for ; pos < len(s.members) && s.members[pos].Score == score; pos++ {
		if s.cmp.Equal(s.members[pos].Member, member) {
			raw := s.members[pos].Member
			s.members = append(s.members[:pos], s.members[pos+1:]...)
			return raw, true
		}
	}
	return "", false
}

// Remove deletes member if present.
func (s *sortedSetEntry) Remove(member string) {
	norm := s.cmp.Normalize(member)
	if score, ok := s.byMember[norm]; ok {
		s.removeAt(member, score)
		delete(s.byMember, norm)
	}
}

func (s *sortedSetEntry) Contains(member string) bool {
	_, ok := s.byMember[s.cmp.Normalize(member)]
	return ok
}

func (s *sortedSetEntry) Len() int { return len(s.members) }

// Range returns members[startingFrom:endingAt] inclusive, clamped to bounds.
func (s *sortedSetEntry) Range(startingFrom, endingAt int) []string {
	n := len(s.members)
	if startingFrom >= n {
		return nil
	}
	if endingAt >= n {
		endingAt = n - 1
	}
	if endingAt < startingFrom {
		return nil
	}
	out := make([]string, 0, endingAt-startingFrom+1)
	for i := startingFrom; i <= endingAt; i++ {
		out = append(out, s.members[i].Member)
	}
	return out
}

// FirstByLowestScore returns the lowest-scored member with score in
// [fromScore, toScore], inclusive on both bounds.
func (s *sortedSetEntry) FirstByLowestScore(fromScore, toScore float64) (string, bool) {
	for _, m := range s.members {
		if m.Score > toScore {
			break
		}
		if m.Score >= fromScore {
			return m.Member, true
		}
	}
	return "", false
}

// FirstNByLowestScore returns up to count members with score in
// [fromScore, toScore], in ascending (score, member) order.
func (s *sortedSetEntry) FirstNByLowestScore(fromScore, toScore float64, count int) []string {
	var out []string
	for _, m := range s.members {
		if len(out) >= count {
			break
		}
		if m.Score > toScore {
			break
		}
		if m.Score >= fromScore {
			out = append(out, m.Member)
		}
	}
	return out
}

// All returns every member in (score asc, member asc) order.
func (s *sortedSetEntry) All() []string {
	out := make([]string, len(s.members))
	for i, m := range s.members {
		out[i] = m.Member
	}
	return out
}
