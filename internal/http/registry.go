package http

import (
	"context"
	"sync"
	"time"

	"github.com/fyrsmithlabs/ideabank/internal/run"
)

// subscriberBuffer sizes each attached consumer's channel on top of
// the replayed history.
const subscriberBuffer = 256

// stream buffers one run's events so consumers can attach at any time
// and still see the stream from the beginning, in order.
type stream struct {
	cancel context.CancelFunc

	mu      sync.Mutex
	history []run.Event
	subs    map[chan run.Event]struct{}
	done    bool
}

func (st *stream) append(e run.Event) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.history = append(st.history, e)
	for ch := range st.subs {
		select {
		case ch <- e:
		default:
			// A consumer that stopped draining is detached rather than
			// allowed to stall the others. It can re-attach and replay.
			delete(st.subs, ch)
			close(ch)
		}
	}
}

func (st *stream) finish() {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.done = true
	for ch := range st.subs {
		close(ch)
	}
	st.subs = nil
}

// attach returns a channel that replays the stream's history and then
// carries live events. The channel closes when the stream ends.
func (st *stream) attach() (<-chan run.Event, func()) {
	st.mu.Lock()
	defer st.mu.Unlock()

	ch := make(chan run.Event, len(st.history)+subscriberBuffer)
	for _, e := range st.history {
		ch <- e
	}
	if st.done {
		close(ch)
		return ch, func() {}
	}

	st.subs[ch] = struct{}{}
	detach := func() {
		st.mu.Lock()
		defer st.mu.Unlock()
		if _, ok := st.subs[ch]; ok {
			delete(st.subs, ch)
			close(ch)
		}
	}
	return ch, detach
}

// Registry tracks the event streams of known runs. Finished streams
// are retained for the configured duration so late consumers can still
// replay them.
type Registry struct {
	mu        sync.Mutex
	streams   map[string]*stream
	retention time.Duration
}

// NewRegistry creates a Registry.
func NewRegistry(retention time.Duration) *Registry {
	if retention <= 0 {
		retention = 30 * time.Minute
	}
	return &Registry{
		streams:   make(map[string]*stream),
		retention: retention,
	}
}

// Register creates the stream for a new run and returns it.
func (r *Registry) Register(id string, cancel context.CancelFunc) *stream {
	st := &stream{
		cancel: cancel,
		subs:   make(map[chan run.Event]struct{}),
	}
	r.mu.Lock()
	r.streams[id] = st
	r.mu.Unlock()
	return st
}

// Attach subscribes to a run's event stream with full replay.
func (r *Registry) Attach(id string) (<-chan run.Event, func(), bool) {
	r.mu.Lock()
	st, ok := r.streams[id]
	r.mu.Unlock()
	if !ok {
		return nil, nil, false
	}
	events, detach := st.attach()
	return events, detach, true
}

// Cancel requests cooperative cancellation of a run.
func (r *Registry) Cancel(id string) bool {
	r.mu.Lock()
	st, ok := r.streams[id]
	r.mu.Unlock()
	if !ok {
		return false
	}
	st.cancel()
	return true
}

// finish marks a stream done and schedules its removal.
func (r *Registry) finish(id string, st *stream) {
	st.finish()
	time.AfterFunc(r.retention, func() {
		r.mu.Lock()
		delete(r.streams, id)
		r.mu.Unlock()
	})
}
