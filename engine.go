package shellcache

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/always-cache/shellcache/cache"

	"github.com/rs/zerolog"
)

// ErrUnknownEvent is returned by Dispatch for events without a handler.
var ErrUnknownEvent = errors.New("unknown event")

type state int

const (
	stateNew state = iota
	stateInstalled
	stateActivating
	stateActive
)

type handler func(ctx context.Context, ev *Event) (*Outcome, error)

// Engine intercepts requests for one origin and serves them from the
// network, the cache partitions, or both.
type Engine struct {
	cfg      Config
	origin   *url.URL
	router   Router
	store    cache.Store
	network  http.RoundTripper
	log      zerolog.Logger
	handlers map[EventKind]handler

	mu       sync.Mutex
	state    state
	barrier  chan struct{}
	preload  bool
	precache cache.Partition
	runtime  cache.Partition

	// tasks tracks background work of all dispatched events
	tasks taskCounter
}

// New creates an engine. Requests that are not served from the cache are
// sent through network; http.DefaultTransport is used if it is nil.
// The engine does not control any request before it is activated.
func New(cfg Config, store cache.Store, network http.RoundTripper) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if store == nil {
		return nil, errors.New("store is required")
	}
	cfg = cfg.withDefaults()
	origin, _ := url.Parse(cfg.Origin)
	if network == nil {
		network = http.DefaultTransport
	}

	// use console logger if not specified in config
	var logger zerolog.Logger
	if cfg.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()
	} else {
		logger = *cfg.Logger
	}
	logger = logger.With().
		Str("origin", cfg.Origin).
		Str("version", cfg.Version).
		Logger()

	e := &Engine{
		cfg:     cfg,
		origin:  origin,
		router:  Router{Origin: origin, BackendHost: cfg.BackendHost},
		store:   store,
		network: network,
		log:     logger,
		barrier: make(chan struct{}),
	}
	e.handlers = map[EventKind]handler{
		EventInstall:  e.handleInstall,
		EventActivate: e.handleActivate,
		EventFetch:    e.handleFetch,
		EventSync:     e.handleSync,
	}
	return e, nil
}

// Dispatch runs the handler for the event kind.
// Only fetch events produce an outcome.
func (e *Engine) Dispatch(ctx context.Context, ev *Event) (*Outcome, error) {
	h, ok := e.handlers[ev.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Kind)
	}
	ev.parent = &e.tasks
	return h(ctx, ev)
}

// Install dispatches an install event and waits for its tasks.
func (e *Engine) Install(ctx context.Context) error {
	ev := &Event{Kind: EventInstall}
	_, err := e.Dispatch(ctx, ev)
	ev.Wait()
	return err
}

// Activate dispatches an activate event and waits for its tasks.
func (e *Engine) Activate(ctx context.Context) error {
	ev := &Event{Kind: EventActivate}
	_, err := e.Dispatch(ctx, ev)
	ev.Wait()
	return err
}

// Start installs and activates the engine.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.Install(ctx); err != nil {
		return err
	}
	return e.Activate(ctx)
}

// Sync dispatches a sync event with the given tag.
func (e *Engine) Sync(ctx context.Context, tag string) error {
	ev := &Event{Kind: EventSync, Tag: tag}
	_, err := e.Dispatch(ctx, ev)
	ev.Wait()
	return err
}

// Drain waits until the background tasks of all dispatched events are done,
// or the context is done. Events may still be dispatched while draining.
func (e *Engine) Drain(ctx context.Context) error {
	return e.tasks.wait(ctx)
}

// Config returns the configuration with defaults applied.
func (e *Engine) Config() Config {
	return e.cfg
}

// Partitions lists the names of all partitions in the store.
func (e *Engine) Partitions() ([]string, error) {
	return e.store.Names()
}

// controlling reports whether fetch events are routed.
// While an activation is running it waits for the activation to finish.
func (e *Engine) controlling(ctx context.Context) (bool, error) {
	e.mu.Lock()
	st, barrier := e.state, e.barrier
	e.mu.Unlock()
	switch st {
	case stateActive:
		return true, nil
	case stateActivating:
		select {
		case <-barrier:
			return true, nil
		case <-ctx.Done():
			return false, ctx.Err()
		}
	default:
		return false, nil
	}
}

func (e *Engine) partitions() (precache, runtime cache.Partition) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.precache, e.runtime
}

func (e *Engine) preloadEnabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.preload
}

func (e *Engine) handleSync(ctx context.Context, ev *Event) (*Outcome, error) {
	if ev.Tag != e.cfg.SyncTag {
		e.log.Debug().Str("tag", ev.Tag).Msg("Ignoring sync event with unknown tag")
		return nil, nil
	}
	if e.cfg.OnSync == nil {
		e.log.Info().Str("tag", ev.Tag).Msg("Sync requested, no sync hook configured")
		return nil, nil
	}
	e.log.Debug().Str("tag", ev.Tag).Msg("Running sync hook")
	if err := e.cfg.OnSync(ctx); err != nil {
		e.log.Warn().Err(err).Str("tag", ev.Tag).Msg("Sync hook failed")
		return nil, fmt.Errorf("sync %s: %w", ev.Tag, err)
	}
	return nil, nil
}
