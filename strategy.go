package shellcache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/always-cache/shellcache/cache"
	cachekey "github.com/always-cache/shellcache/pkg/cache-key"
	"github.com/always-cache/shellcache/rfc9211"

	"github.com/rs/zerolog"
)

// Source tells where the response of an outcome came from.
type Source string

const (
	SourceNetwork     Source = "network"
	SourcePreload     Source = "preload"
	SourceCache       Source = "cache"
	SourceShell       Source = "shell"
	SourceOffline     Source = "offline"
	SourcePassthrough Source = "passthrough"
)

// Outcome is the result of a fetch event.
// For passthrough outcomes Response is nil and the caller is expected to
// send the request to the network itself.
type Outcome struct {
	Route    Route
	Source   Source
	Response *http.Response
}

// Passthrough reports whether the engine left the request alone.
func (o *Outcome) Passthrough() bool {
	return o == nil || o.Response == nil || o.Route == RoutePassthrough
}

func passthrough() *Outcome {
	return &Outcome{Route: RoutePassthrough, Source: SourcePassthrough}
}

var errNoPreload = errors.New("no preload response")

// lookup is the result of one attempt to find a response.
type lookup struct {
	source Source
	res    *http.Response
	body   []byte
	err    error
	// storedAt is set for responses read from a partition
	storedAt time.Time
}

func (l lookup) ok() bool {
	return l.err == nil && l.res != nil
}

// firstUsable runs steps in order until one yields a response.
// The last result is returned if none does.
func firstUsable(steps ...func() lookup) lookup {
	var last lookup
	for _, step := range steps {
		last = step()
		if last.ok() {
			return last
		}
	}
	return last
}

func (e *Engine) handleFetch(ctx context.Context, ev *Event) (out *Outcome, err error) {
	if ev.Request == nil || ev.Request.URL == nil {
		return nil, errors.New("fetch event without request")
	}
	controlling, err := e.controlling(ctx)
	if err != nil {
		return nil, err
	}
	if !controlling {
		return passthrough(), nil
	}

	route := e.router.Classify(Describe(ev.Request))
	log := e.log.With().
		Str("route", string(route)).
		Str("method", ev.Request.Method).
		Str("url", ev.Request.URL.String()).
		Logger()

	// escape hatch: a failing strategy must not take the client down with it
	defer func() {
		if r := recover(); r != nil {
			log.WithLevel(zerolog.PanicLevel).Interface("error", r).Msg("Recovered from panic, sending offline response")
			out, err = e.outcome(ev.Request, route, e.offline(ev.Request, route), false), nil
		}
	}()

	switch route {
	case RouteNetworkOnly:
		out = e.networkOnly(ctx, ev)
	case RouteNavigation:
		out = e.navigate(ctx, ev)
	case RouteAsset:
		out = e.staleWhileRevalidate(ctx, ev)
	default:
		log.Trace().Msg("Passing through")
		return passthrough(), nil
	}
	log.Debug().
		Str("source", string(out.Source)).
		Int("status", out.Response.StatusCode).
		Msg("Responding")
	return out, nil
}

// networkOnly sends the request to the backend and never touches the cache.
func (e *Engine) networkOnly(ctx context.Context, ev *Event) *Outcome {
	l := e.fetchNetwork(ctx, ev.Request, false)
	if l.ok() {
		return &Outcome{Route: RouteNetworkOnly, Source: l.source, Response: l.res}
	}
	e.log.Info().Err(l.err).Str("url", ev.Request.URL.String()).Msg("Backend unreachable, sending offline notice")
	return e.outcome(ev.Request, RouteNetworkOnly, e.offline(ev.Request, RouteNetworkOnly), false)
}

// navigate is network-first: the preloaded response if there is one, else a
// fetch past any HTTP cache, else the app shell. Navigations are not stored.
func (e *Engine) navigate(ctx context.Context, ev *Event) *Outcome {
	req := ev.Request
	l := firstUsable(
		func() lookup {
			if ev.Preload == nil {
				return lookup{source: SourcePreload, err: errNoPreload}
			}
			res, err := ev.Preload(ctx)
			if err != nil {
				return lookup{source: SourcePreload, err: err}
			}
			if res == nil {
				return lookup{source: SourcePreload, err: errNoPreload}
			}
			return readBody(SourcePreload, res)
		},
		func() lookup {
			return e.fetchNetwork(ctx, req, true)
		},
		func() lookup {
			return e.resolveShell(req)
		},
	)
	if !l.ok() {
		e.log.Info().Err(l.err).Str("url", req.URL.String()).Msg("Navigation failed and no shell available")
		l = e.offline(req, RouteNavigation)
	}
	return e.outcome(req, RouteNavigation, l, false)
}

// staleWhileRevalidate answers from the cache when it can and refreshes the
// runtime partition from the network in the background. The network fetch
// starts before the cache lookup and outlives the request.
func (e *Engine) staleWhileRevalidate(ctx context.Context, ev *Event) *Outcome {
	req := ev.Request
	precache, runtime := e.partitions()

	netCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	network := make(chan lookup, 1)
	go func() {
		defer cancel()
		network <- e.fetchNetwork(netCtx, req, false)
	}()

	key := cachekey.FromRequest(req)
	cached := firstUsable(
		func() lookup { return e.match(runtime, req, key, cache.MatchOptions{}, SourceCache) },
		func() lookup { return e.match(precache, req, key, cache.MatchOptions{}, SourceCache) },
	)
	if cached.ok() {
		ev.WaitUntil(func() {
			e.revalidate(runtime, req, <-network)
		})
		return e.outcome(req, RouteAsset, cached, false)
	}
	if !errors.Is(cached.err, errCacheMiss) {
		e.log.Warn().Err(cached.err).Msg("Could not read from cache")
	}

	// nobody waits for the result anymore once the client is gone
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	fresh := <-network
	if fresh.ok() {
		stored := e.cacheable(fresh.res)
		if stored {
			snapshot := fresh.snapshot()
			ev.WaitUntil(func() {
				e.revalidate(runtime, req, snapshot)
			})
		}
		return e.outcome(req, RouteAsset, fresh, stored)
	}

	l := e.resolveShell(req)
	if !l.ok() {
		e.log.Info().Err(fresh.err).Str("url", req.URL.String()).Msg("Asset not available offline")
		l = e.offline(req, RouteAsset)
	}
	return e.outcome(req, RouteAsset, l, false)
}

// revalidate writes a fresh network response to the runtime partition.
func (e *Engine) revalidate(runtime cache.Partition, req *http.Request, l lookup) {
	if !l.ok() {
		e.log.Debug().Err(l.err).Str("url", req.URL.String()).Msg("Could not revalidate")
		return
	}
	if !e.cacheable(l.res) {
		e.log.Trace().Int("status", l.res.StatusCode).Str("url", req.URL.String()).Msg("Not storing response")
		return
	}
	if err := e.put(runtime, req, l); err != nil {
		e.log.Warn().Err(err).Str("url", req.URL.String()).Msg("Could not write to cache")
		return
	}
	e.log.Trace().Str("url", req.URL.String()).Msg("Revalidated")
}

// outcome wraps the response of l, adding the Cache-Status header.
func (e *Engine) outcome(req *http.Request, route Route, l lookup, stored bool) *Outcome {
	cs := rfc9211.CacheStatus{Stored: stored}
	switch l.source {
	case SourceCache:
		cs.Hit()
	case SourceShell:
		cs.Hit()
		cs.Detail = string(SourceShell)
	case SourcePreload:
		cs.Forward(rfc9211.FwdReasonRequest)
		cs.Detail = string(SourcePreload)
	case SourceOffline:
		cs.Forward(rfc9211.FwdReasonMiss)
		cs.Detail = string(SourceOffline)
	default:
		switch route {
		case RouteNavigation:
			cs.Forward(rfc9211.FwdReasonRequest)
		case RouteAsset:
			cs.Forward(rfc9211.FwdReasonUriMiss)
		default:
			cs.Forward(rfc9211.FwdReasonBypass)
		}
	}
	if l.res.Header == nil {
		l.res.Header = make(http.Header)
	}
	if !l.storedAt.IsZero() {
		addAge(l.res.Header, time.Since(l.storedAt))
	}
	cs.Set(l.res.Header)
	l.res.Request = req
	return &Outcome{Route: route, Source: l.source, Response: l.res}
}

// addAge adds the time a response spent in the cache to the age it had
// when it was received.
func addAge(h http.Header, resident time.Duration) {
	received, err := strconv.Atoi(h.Get("Age"))
	if err != nil || received < 0 {
		received = 0
	}
	h.Set("Age", strconv.Itoa(received+int(resident.Seconds())))
}

// offline returns the fallback for a failed route: a JSON notice for
// backend calls, the plain text stub for everything else.
func (e *Engine) offline(req *http.Request, route Route) lookup {
	if route == RouteNetworkOnly {
		body, err := json.Marshal(offlineNotice{Error: e.cfg.OfflineMessage})
		if err != nil {
			panic(err)
		}
		return lookup{source: SourceOffline, res: newResponse(req, http.StatusServiceUnavailable, "application/json", body), body: body}
	}
	body := []byte("Offline")
	return lookup{source: SourceOffline, res: newResponse(req, http.StatusServiceUnavailable, "text/plain", body), body: body}
}

type offlineNotice struct {
	Error string `json:"error"`
}

func newResponse(req *http.Request, status int, contentType string, body []byte) *http.Response {
	header := make(http.Header)
	header.Set("Content-Type", contentType)
	header.Set("Content-Length", strconv.Itoa(len(body)))
	return &http.Response{
		Status:        strconv.Itoa(status) + " " + http.StatusText(status),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		ContentLength: int64(len(body)),
		Body:          io.NopCloser(bytes.NewReader(body)),
		Request:       req,
	}
}
