package engine

import (
	"context"
	"time"

	"github.com/bobmcallan/vire-engine/internal/common"
)

// command is the typed unit of work the Dispatcher applies: every public
// engine operation compiles down to one of these, closing over its
// validated arguments, so the writer goroutine has a single uniform
// execution path for both reads and writes.
type command func(st *MemoryState, now Time) (any, error)

type envelope struct {
	cmd  command
	done chan envelopeResult
}

type envelopeResult struct {
	value any
	err   error
}

// Dispatcher is the engine's single writer: exactly one goroutine drains
// its inbox, applies each command to the shared MemoryState, and returns the
// result to the submitting caller. Between batches it advances the clock
// snapshot and runs the Evictor.
type Dispatcher struct {
	state   *MemoryState
	clock   *Clock
	evictor *Evictor
	logger  *common.Logger

	inbox chan *envelope
	done  chan struct{}
	stopped chan struct{}

	commandTimeout time.Duration
}

// NewDispatcher creates a Dispatcher over state, ticking the given clock and
// evictor. inboxCapacity sizes the buffered command channel; commandTimeout
// is the default deadline applied by Submit (SubmitWithTimeout overrides
// it per call).
func NewDispatcher(state *MemoryState, clock *Clock, evictor *Evictor, logger *common.Logger, inboxCapacity int, commandTimeout time.Duration) *Dispatcher {
	if inboxCapacity <= 0 {
		inboxCapacity = 1024
	}
	return &Dispatcher{
		state:          state,
		clock:          clock,
		evictor:        evictor,
		logger:         logger,
		inbox:          make(chan *envelope, inboxCapacity),
		done:           make(chan struct{}),
		stopped:        make(chan struct{}),
		commandTimeout: commandTimeout,
	}
}

// Run is the writer goroutine's body; callers start it with `go d.Run()`.
func (d *Dispatcher) Run() {
	defer close(d.stopped)
	d.logger.Debug().Msg("engine dispatcher started")
	for {
		select {
		case env := <-d.inbox:
			d.apply(env)
			d.drainAvailable()
			d.tick()
		case <-d.done:
			d.logger.Debug().Msg("engine dispatcher stopping")
			return
		}
	}
}

// drainAvailable applies any commands already queued without blocking,
// so a burst of submissions amortizes one eviction tick instead of one per
// command.
func (d *Dispatcher) drainAvailable() {
	for {
		select {
		case env := <-d.inbox:
			d.apply(env)
		default:
			return
		}
	}
}

func (d *Dispatcher) apply(env *envelope) {
	now := d.clock.Now()
	value, err := env.cmd(d.state, now)
	env.done <- envelopeResult{value: value, err: err}
}

func (d *Dispatcher) tick() {
	now := d.clock.Now()
	if removed := d.evictor.Sweep(d.state, now, false); removed > 0 {
		d.logger.Debug().Int("removed", removed).Msg("engine eviction sweep")
	}
}

// Stop signals the writer goroutine to exit after it finishes any
// in-flight command, and blocks until it has.
func (d *Dispatcher) Stop() {
	close(d.done)
	<-d.stopped
}

// Submit enqueues cmd and blocks until it has been applied, using the
// Dispatcher's default command timeout.
func (d *Dispatcher) Submit(ctx context.Context, cmd command) (any, error) {
	return d.SubmitWithTimeout(ctx, cmd, d.commandTimeout)
}

// SubmitWithTimeout enqueues cmd and blocks until applied, ctx is
// cancelled, or timeout elapses (0 = no timeout beyond ctx).
func (d *Dispatcher) SubmitWithTimeout(ctx context.Context, cmd command, timeout time.Duration) (any, error) {
	env := &envelope{cmd: cmd, done: make(chan envelopeResult, 1)}

	var timer *time.Timer
	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer = time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case d.inbox <- env:
	case <-ctx.Done():
		return nil, &Error{Op: "Submit", Kind: Cancelled, Err: ctx.Err()}
	case <-timeoutCh:
		return nil, newError("Submit", Internal, "dispatcher inbox full: timed out enqueueing command")
	}

	select {
	case res := <-env.done:
		return res.value, res.err
	case <-ctx.Done():
		return nil, &Error{Op: "Submit", Kind: Cancelled, Err: ctx.Err()}
	case <-timeoutCh:
		return nil, newError("Submit", Internal, "command timed out waiting for dispatcher")
	}
}
