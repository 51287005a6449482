package session

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrClosed is returned by operations on a closed Controller.
var ErrClosed = errors.New("session: controller closed")

// Controller is the client's session manager.
type Controller struct {
	client *Client
	store  Store
	prober *Prober
	rec    *reconciler
	act    *actuator
	events *dispatcher
	logger *slog.Logger

	mu        sync.Mutex
	mounted   bool
	closed    bool
	raised    map[Warning]bool
	dismissed map[Warning]bool
}

// Option configures a Controller.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	onLogout func()
	debounce time.Duration
}

// WithLogger sets the logger. The default discards.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithLogoutCallback sets a function called once after every logout.
func WithLogoutCallback(fn func()) Option {
	return func(o *options) { o.onLogout = fn }
}

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(o *options) { o.debounce = d }
}

// NewController wires a Controller. nav may be nil if Login is never used.
func NewController(client *Client, store Store, nav Navigator, opts ...Option) *Controller {
	o := options{
		logger:   slog.New(slog.DiscardHandler),
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(&o)
	}

	events := newDispatcher()
	rec := newReconciler(client.CurrentUser, events, o.logger, o.debounce)
	return &Controller{
		client: client,
		store:  store,
		prober: NewProber(client, o.logger),
		rec:    rec,
		act: &actuator{
			client:   client,
			store:    store,
			nav:      nav,
			rec:      rec,
			logger:   o.logger,
			onLogout: o.onLogout,
		},
		events:    events,
		logger:    o.logger,
		raised:    make(map[Warning]bool),
		dismissed: make(map[Warning]bool),
	}
}

// MountOptions describes how the client arrived.
type MountOptions struct {
	// OAuthSignal is set when the client just came back from the login
	// round-trip (the "oauth" query parameter). It forces a fresh check and
	// means a user is expected.
	OAuthSignal bool
}

// Mount starts the controller: it schedules a session check, then runs the
// legacy-credential detector and the cookie probe concurrently and raises
// their warnings before returning. Mounting twice is a no-op.
func (c *Controller) Mount(ctx context.Context, opts MountOptions) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.mounted {
		c.mu.Unlock()
		return nil
	}
	c.mounted = true
	c.raised = make(map[Warning]bool)
	c.mu.Unlock()

	c.rec.resume()
	if opts.OAuthSignal {
		c.rec.invalidate()
	}
	c.rec.trigger()

	_, hasSession := c.store.Get(KeySession)
	expectUser := opts.OAuthSignal || hasSession

	var legacy, blocked bool
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		legacy = DetectLegacy(c.store)
		return nil
	})
	g.Go(func() error {
		blocked = c.prober.CookiesBlocked(gctx, expectUser)
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if legacy {
		c.logger.Info("legacy credentials found in local store")
		c.raise(WarningLegacyCredentials)
	}
	if blocked {
		c.logger.Warn("server answered without a user; cookies may be blocked")
		c.raise(WarningCookiesBlocked)
	}
	return ctx.Err()
}

// Unmount cancels any pending check. In-flight results are discarded.
func (c *Controller) Unmount() {
	c.mu.Lock()
	c.mounted = false
	c.mu.Unlock()
	c.rec.stop()
}

// Refresh discards the current result and checks again.
func (c *Controller) Refresh() {
	c.rec.invalidate()
	c.rec.trigger()
}

// Login sends the user agent to the login page. returnTo is optional.
func (c *Controller) Login(returnTo string) error {
	return c.act.login(returnTo)
}

// Logout ends the session. See the actuator for failure semantics.
func (c *Controller) Logout(ctx context.Context) error {
	return c.act.logout(ctx)
}

// Subscribe registers o and returns a function that removes it.
func (c *Controller) Subscribe(o Observer) func() {
	return c.events.subscribe(o)
}

// State returns the current AuthState.
func (c *Controller) State() AuthState {
	s, _, _ := c.rec.snapshot()
	return s
}

// Phase returns the reconciler phase.
func (c *Controller) Phase() Phase {
	_, p, _ := c.rec.snapshot()
	return p
}

// Checked reports whether the session has been checked.
func (c *Controller) Checked() bool {
	_, _, checked := c.rec.snapshot()
	return checked
}

// WaitChecked blocks until the session is checked and returns the state.
func (c *Controller) WaitChecked(ctx context.Context) (AuthState, error) {
	return c.rec.waitChecked(ctx)
}

// Warnings returns the warnings raised this mount and not dismissed.
func (c *Controller) Warnings() []Warning {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Warning, 0, len(c.raised))
	for w := range c.raised {
		if !c.dismissed[w] {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Dismiss hides w for the rest of the controller's life.
func (c *Controller) Dismiss(w Warning) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dismissed[w] = true
}

// Close unmounts and stops event delivery after flushing queued events.
// It must not be called from an Observer.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.Unmount()
	c.events.close()
}

func (c *Controller) raise(w Warning) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.raised[w] || c.dismissed[w] {
		return
	}
	c.raised[w] = true
	c.events.publish(Event{Kind: EventWarning, Warning: w})
}
