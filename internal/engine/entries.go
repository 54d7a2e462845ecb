package engine

// InvocationData is the opaque blob describing what a job invokes. The
// engine never interprets these fields; it stores and returns them verbatim.
type InvocationData struct {
	Type           string
	Method         string
	ParameterTypes string
	Arguments      string
	Queue          string // optional: set when the job was created for a known queue
}

// StateData is the reduced form of a host state object: a name, an optional
// human reason, and an opaque data map. The engine uses Name, matched
// exactly, only as the key of its per-state job index; no state name is
// matched case-insensitively, and Data is never introspected.
type StateData struct {
	Name   string
	Reason string
	Data   map[string]string
}

// Clone returns a defensive copy of s, safe to hand to a caller.
func (s *StateData) Clone() *StateData {
	if s == nil {
		return nil
	}
	data := make(map[string]string, len(s.Data))
	for k, v := range s.Data {
		data[k] = v
	}
	return &StateData{Name: s.Name, Reason: s.Reason, Data: data}
}

// Parameter is one ordered (name, value) pair, used for both job parameters
// and hash fields: insertion order is preserved and a re-set overwrites in
// place rather than moving the field to the end.
type Parameter struct {
	Name  string
	Value string
}

// orderedFields is the shared ordered-map-with-overwrite behavior backing
// JobEntry.Parameters and HashEntry.Fields.
type orderedFields struct {
	items []Parameter
	pos   map[string]int
}

func newOrderedFields() orderedFields {
	return orderedFields{pos: make(map[string]int)}
}

func (f *orderedFields) Set(name, value string) {
	if f.pos == nil {
		f.pos = make(map[string]int)
	}
	if i, ok := f.pos[name]; ok {
		f.items[i].Value = value
		return
	}
	f.pos[name] = len(f.items)
	f.items = append(f.items, Parameter{Name: name, Value: value})
}

func (f *orderedFields) Get(name string) (string, bool) {
	if i, ok := f.pos[name]; ok {
		return f.items[i].Value, true
	}
	return "", false
}

func (f *orderedFields) Remove(name string) {
	i, ok := f.pos[name]
	if !ok {
		return
	}
	f.items = append(f.items[:i], f.items[i+1:]...)
	delete(f.pos, name)
	for n, idx := range f.pos {
		if idx > i {
			f.pos[n] = idx - 1
		}
	}
}

func (f *orderedFields) Len() int { return len(f.items) }

func (f *orderedFields) All() []Parameter {
	out := make([]Parameter, len(f.items))
	copy(out, f.items)
	return out
}

func (f *orderedFields) Map() map[string]string {
	out := make(map[string]string, len(f.items))
	for _, p := range f.items {
		out[p.Name] = p.Value
	}
	return out
}

// JobEntry is the engine's record for one background job.
type JobEntry struct {
	Key        string
	Invocation InvocationData
	Parameters orderedFields
	History    []*StateData // most-recent first
	State      *StateData
	CreatedAt  Time
	ExpireAt   *Time

	maxHistory int
}

// pushState prepends the current state (if any) to history, bounded to
// maxHistory, then installs the new state.
func (j *JobEntry) pushState(state *StateData) {
	if j.State != nil {
		j.History = append([]*StateData{j.State}, j.History...)
		if j.maxHistory > 0 && len(j.History) > j.maxHistory {
			j.History = j.History[:j.maxHistory]
		}
	}
	j.State = state
}

// HashEntry is an ordered field→value map with an optional expiration.
type HashEntry struct {
	Fields   orderedFields
	ExpireAt *Time
}

// ListEntry is a head-insertion ordered sequence (newest at index 0).
type ListEntry struct {
	Items    []string
	ExpireAt *Time
}

func (l *ListEntry) Insert(value string) {
	l.Items = append(l.Items, "")
	copy(l.Items[1:], l.Items)
	l.Items[0] = value
}

// CounterEntry is a signed integer counter. Absent keys read as zero, so a
// CounterEntry is only allocated once a write touches it.
type CounterEntry struct {
	Value    int64
	ExpireAt *Time
}

// QueueEntry is a FIFO of job keys plus its blocked fetchers.
type QueueEntry struct {
	Items   []string
	waiters *waiterList
}

// ServerEntry tracks one background-process registration.
type ServerEntry struct {
	Queues      []string
	WorkerCount int
	StartedAt   Time
	HeartbeatAt Time
}

// LockEntry exists only while a resource is held.
type LockEntry struct {
	Owner         string
	ReentrancyCount int
}
