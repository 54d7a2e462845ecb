package engine

import (
	"time"

	"github.com/bobmcallan/vire-engine/internal/common"
)

// Options configures a new Engine. Zero values fall back to the same
// defaults documented on common.EngineConfig.
type Options struct {
	StringComparer        string
	MaxExpirationTime      time.Duration
	MaxStateHistoryLength  int
	CommandTimeout         time.Duration
	InboxCapacity          int
	EvictionInterval       time.Duration
}

// Engine owns the clock, state, dispatcher and lock table for one
// in-memory job storage instance. Callers obtain Connections from it and
// never touch MemoryState directly.
type Engine struct {
	clock      *Clock
	state      *MemoryState
	dispatcher *Dispatcher
	lockTable  *LockTable
	logger     *common.Logger
}

// New builds an Engine and starts its writer goroutine.
func New(opts Options, logger *common.Logger) *Engine {
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = 10 * time.Second
	}
	if opts.MaxStateHistoryLength <= 0 {
		opts.MaxStateHistoryLength = 25
	}
	comparer := NewStringComparer(opts.StringComparer)
	lockTable := NewLockTable(comparer)
	state := NewMemoryState(comparer, opts.MaxExpirationTime, opts.MaxStateHistoryLength, lockTable)
	clock := NewClock()
	evictor := NewEvictor(opts.EvictionInterval)
	dispatcher := NewDispatcher(state, clock, evictor, logger, opts.InboxCapacity, opts.CommandTimeout)

	e := &Engine{
		clock:      clock,
		state:      state,
		dispatcher: dispatcher,
		lockTable:  lockTable,
		logger:     logger,
	}
	go dispatcher.Run()
	return e
}

// NewConnection returns a Connection identified by id, bound to this
// Engine's dispatcher, lock table and clock.
func (e *Engine) NewConnection(id string) *Connection {
	return NewConnection(id, e.dispatcher, e.lockTable, e.clock)
}

// Stop halts the writer goroutine and blocks until it exits. Commands still
// waiting in the inbox are not applied. Connections obtained before Stop
// become unusable afterward.
func (e *Engine) Stop() {
	e.dispatcher.Stop()
}
