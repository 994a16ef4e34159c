package shellcache

import (
	"context"
	"net/http"
	"sync"

	"github.com/rs/zerolog/log"
)

type EventKind string

const (
	EventInstall  EventKind = "install"
	EventActivate EventKind = "activate"
	EventFetch    EventKind = "fetch"
	EventSync     EventKind = "sync"
)

// PreloadFunc waits for a navigation response whose fetch was started
// before the request was routed.
type PreloadFunc func(ctx context.Context) (*http.Response, error)

// Event is the input of Engine.Dispatch.
// Handlers may attach side-effect tasks to it with WaitUntil; the event is
// not done before all of them have finished.
type Event struct {
	Kind EventKind
	// Request is set for fetch events. Its URL must be absolute.
	Request *http.Request
	// Preload is optionally set for navigation fetch events.
	Preload PreloadFunc
	// Tag is set for sync events.
	Tag string

	tasks  sync.WaitGroup
	parent *taskCounter
}

func NewFetchEvent(r *http.Request) *Event {
	return &Event{Kind: EventFetch, Request: r}
}

// WaitUntil runs fn in the background and extends the lifetime of the event
// (and of the engine that dispatched it) until fn returns.
func (ev *Event) WaitUntil(fn func()) {
	ev.tasks.Add(1)
	if ev.parent != nil {
		ev.parent.add()
	}
	go func() {
		defer func() {
			if err := recover(); err != nil {
				log.Error().Interface("error", err).Str("event", string(ev.Kind)).Msg("Panic in background task")
			}
			ev.tasks.Done()
			if ev.parent != nil {
				ev.parent.done()
			}
		}()
		fn()
	}()
}

// Wait blocks until all tasks registered with WaitUntil have finished.
func (ev *Event) Wait() {
	ev.tasks.Wait()
}

// taskCounter counts running background tasks. Unlike a sync.WaitGroup it
// can be waited on with a deadline and incremented while someone waits.
type taskCounter struct {
	mu   sync.Mutex
	n    int
	idle chan struct{}
}

func (c *taskCounter) add() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.n == 0 {
		c.idle = make(chan struct{})
	}
	c.n++
}

func (c *taskCounter) done() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n--
	if c.n == 0 {
		close(c.idle)
	}
}

// wait blocks until no task is running or ctx is done.
func (c *taskCounter) wait(ctx context.Context) error {
	c.mu.Lock()
	if c.n == 0 {
		c.mu.Unlock()
		return nil
	}
	idle := c.idle
	c.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
