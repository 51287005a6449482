package session

import "sync"

// EventKind identifies what an Event reports.
type EventKind int

const (
	// EventAuthChanged carries the new AuthState. Active is true only for
	// the event produced by an explicit logout.
	EventAuthChanged EventKind = iota + 1
	// EventUserLoaded follows EventAuthChanged when a check found a user.
	EventUserLoaded
	// EventWarning raises a dismissible Warning.
	EventWarning
)

func (k EventKind) String() string {
	switch k {
	case EventAuthChanged:
		return "auth_changed"
	case EventUserLoaded:
		return "user_loaded"
	case EventWarning:
		return "warning"
	}
	return "unknown"
}

// Warning is a condition shown to the user until dismissed.
type Warning string

const (
	WarningCookiesBlocked    Warning = "cookies_blocked"
	WarningLegacyCredentials Warning = "legacy_credentials"
)

// Event is a single notification to observers.
type Event struct {
	Kind    EventKind
	State   AuthState // EventAuthChanged
	Active  bool      // EventAuthChanged: set by an explicit logout
	Profile *Profile  // EventUserLoaded
	Warning Warning   // EventWarning
	Cycle   uint64    // reconciliation cycle that produced the event, 0 if none
}

// Observer receives events. OnEvent runs on the dispatcher goroutine; it
// may call back into the Controller.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnEvent(e Event) { f(e) }

// dispatcher delivers events to observers in the order they were
// published, from a single goroutine. publish never blocks, so it is safe
// to call while holding other locks.
type dispatcher struct {
	mu        sync.Mutex
	queue     []Event
	observers map[int]Observer
	order     []int
	nextID    int
	closed    bool

	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

func newDispatcher() *dispatcher {
	d := &dispatcher{
		observers: make(map[int]Observer),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	d.wg.Add(1)
	go d.loop()
	return d
}

func (d *dispatcher) subscribe(o Observer) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextID
	d.nextID++
	d.observers[id] = o
	d.order = append(d.order, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			delete(d.observers, id)
			for i, v := range d.order {
				if v == id {
					d.order = append(d.order[:i], d.order[i+1:]...)
					break
				}
			}
		})
	}
}

func (d *dispatcher) publish(events ...Event) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, events...)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *dispatcher) loop() {
	defer d.wg.Done()
	for {
		select {
		case <-d.wake:
			d.drain()
		case <-d.done:
			d.drain()
			return
		}
	}
}

func (d *dispatcher) drain() {
	for {
		d.mu.Lock()
		batch := d.queue
		d.queue = nil
		observers := make([]Observer, 0, len(d.order))
		for _, id := range d.order {
			observers = append(observers, d.observers[id])
		}
		d.mu.Unlock()

		if len(batch) == 0 {
			return
		}
		for _, e := range batch {
			for _, o := range observers {
				o.OnEvent(e)
			}
		}
	}
}

// close delivers what is already queued, then stops the goroutine.
func (d *dispatcher) close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	close(d.done)
	d.wg.Wait()
}
