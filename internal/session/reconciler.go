package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// DefaultDebounce is how long a trigger waits for others to coalesce with.
const DefaultDebounce = 100 * time.Millisecond

// ErrUnmounted is returned by waits on a controller that is not mounted.
var ErrUnmounted = errors.New("session: controller not mounted")

// Phase is where the reconciler is in its cycle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseChecking
	PhaseChecked
)

func (p Phase) String() string {
	switch p {
	case PhaseChecking:
		return "checking"
	case PhaseChecked:
		return "checked"
	}
	return "idle"
}

type fetchFunc func(ctx context.Context) (*Profile, error)

// reconciler settles AuthState by asking the server.
//
// Every scheduled cycle gets a generation number. Anything that supersedes
// the cycle (a new trigger, Invalidate, logout, stop) bumps the generation,
// stops the debounce timer and cancels the request context. A result is
// committed only if its generation is still current and its context is
// still live.
type reconciler struct {
	fetch  fetchFunc
	events *dispatcher
	logger *slog.Logger
	delay  time.Duration

	mu         sync.Mutex
	phase      Phase
	state      AuthState
	checked    bool
	loggingOut bool
	stopped    bool
	gen        uint64
	timer      *time.Timer
	cancel     context.CancelFunc
	changed    chan struct{}
}

func newReconciler(fetch fetchFunc, events *dispatcher, logger *slog.Logger, delay time.Duration) *reconciler {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &reconciler{
		fetch:   fetch,
		events:  events,
		logger:  logger,
		delay:   delay,
		changed: make(chan struct{}),
	}
}

// trigger schedules a cycle unless the session is already checked.
func (r *reconciler) trigger() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped || r.checked {
		return
	}
	if r.loggingOut {
		r.cancelPendingLocked()
		r.gen++
		r.state = AnonymousState()
		r.events.publish(Event{Kind: EventAuthChanged, State: r.state, Cycle: r.gen})
		r.markCheckedLocked()
		return
	}

	r.cancelPendingLocked()
	r.gen++
	g := r.gen
	r.timer = time.AfterFunc(r.delay, func() { r.run(g) })
}

func (r *reconciler) run(g uint64) {
	r.mu.Lock()
	if g != r.gen || r.stopped || r.loggingOut {
		r.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.timer = nil
	r.cancel = cancel
	r.phase = PhaseChecking
	r.mu.Unlock()

	profile, err := r.fetch(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()

	if g != r.gen || ctx.Err() != nil {
		return
	}
	r.cancel = nil

	if errors.Is(err, context.Canceled) {
		r.phase = PhaseIdle
		return
	}

	switch {
	case err == nil:
		r.state = AuthenticatedAs(*profile)
		r.events.publish(
			Event{Kind: EventAuthChanged, State: r.state, Cycle: g},
			Event{Kind: EventUserLoaded, Profile: profile, Cycle: g},
		)
	case errors.Is(err, ErrUnauthorized):
		r.state = AnonymousState()
		r.events.publish(Event{Kind: EventAuthChanged, State: r.state, Cycle: g})
	default:
		r.logger.Warn("session check failed", slog.String("error", err.Error()))
		r.state = AnonymousState()
		r.events.publish(Event{Kind: EventAuthChanged, State: r.state, Cycle: g})
	}
	r.markCheckedLocked()
}

// invalidate forgets the last result and drops any pending cycle, so the
// next trigger checks again.
func (r *reconciler) invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelPendingLocked()
	r.gen++
	r.checked = false
	r.phase = PhaseIdle
}

// beginLogout suppresses checks until endLogout.
func (r *reconciler) beginLogout() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loggingOut = true
	r.cancelPendingLocked()
	r.gen++
}

// completeLogout commits the anonymous state and publishes it as an
// explicit logout.
func (r *reconciler) completeLogout() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelPendingLocked()
	r.gen++
	r.state = AnonymousState()
	r.events.publish(Event{Kind: EventAuthChanged, State: r.state, Active: true, Cycle: r.gen})
	r.markCheckedLocked()
}

func (r *reconciler) endLogout() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loggingOut = false
}

// stop cancels everything pending. Results still in flight are discarded.
func (r *reconciler) stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	r.stopped = true
	r.cancelPendingLocked()
	r.gen++
	r.notifyLocked()
}

// resume restarts a stopped reconciler. A session belongs to one mount, so
// the previous mount's result is dropped and the next trigger checks again.
func (r *reconciler) resume() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.stopped {
		return
	}
	r.stopped = false
	r.state = UnknownState()
	r.checked = false
	r.phase = PhaseIdle
}

func (r *reconciler) snapshot() (AuthState, Phase, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state, r.phase, r.checked
}

// waitChecked blocks until the session is checked, the reconciler is
// stopped, or ctx is done.
func (r *reconciler) waitChecked(ctx context.Context) (AuthState, error) {
	for {
		r.mu.Lock()
		state, checked, stopped, changed := r.state, r.checked, r.stopped, r.changed
		r.mu.Unlock()

		switch {
		case checked:
			return state, nil
		case stopped:
			return state, ErrUnmounted
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return state, ctx.Err()
		}
	}
}

func (r *reconciler) cancelPendingLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	if r.phase == PhaseChecking {
		r.phase = PhaseIdle
	}
}

func (r *reconciler) markCheckedLocked() {
	r.checked = true
	r.phase = PhaseChecked
	r.notifyLocked()
}

func (r *reconciler) notifyLocked() {
	close(r.changed)
	r.changed = make(chan struct{})
}
