package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// recorder collects events delivered to it.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) OnEvent(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recorder) kinds() []EventKind {
	var out []EventKind
	for _, e := range r.all() {
		out = append(out, e.Kind)
	}
	return out
}

func TestDispatcher_DeliversInOrder(t *testing.T) {
	d := newDispatcher()
	rec := &recorder{}
	d.subscribe(rec)

	for i := range 50 {
		d.publish(Event{Kind: EventAuthChanged, Cycle: uint64(i)})
	}
	d.close()

	got := rec.all()
	assert.Len(t, got, 50)
	for i, e := range got {
		assert.Equal(t, uint64(i), e.Cycle)
	}
}

func TestDispatcher_Unsubscribe(t *testing.T) {
	d := newDispatcher()
	kept, dropped := &recorder{}, &recorder{}
	d.subscribe(kept)
	unsubscribe := d.subscribe(dropped)
	unsubscribe()
	unsubscribe()

	d.publish(Event{Kind: EventWarning, Warning: WarningCookiesBlocked})
	d.close()

	assert.Len(t, kept.all(), 1)
	assert.Empty(t, dropped.all())
}

func TestDispatcher_PublishAfterCloseIsDropped(t *testing.T) {
	d := newDispatcher()
	rec := &recorder{}
	d.subscribe(rec)
	d.close()
	d.close()

	d.publish(Event{Kind: EventAuthChanged})
	assert.Empty(t, rec.all())
}

func TestDispatcher_ObserverMayPublish(t *testing.T) {
	d := newDispatcher()
	rec := &recorder{}
	d.subscribe(ObserverFunc(func(e Event) {
		if e.Kind == EventAuthChanged {
			d.publish(Event{Kind: EventUserLoaded})
		}
	}))
	d.subscribe(rec)

	d.publish(Event{Kind: EventAuthChanged})
	assert.Eventually(t, func() bool { return len(rec.all()) == 2 }, time.Second, 5*time.Millisecond)
	d.close()

	assert.Equal(t, []EventKind{EventAuthChanged, EventUserLoaded}, rec.kinds())
}
