package shellcache

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	tee "github.com/always-cache/shellcache/pkg/response-writer-tee"
)

// fetchNetwork sends a copy of r through the network and buffers the whole
// response body. With bypassCache set, HTTP caches between the engine and
// the origin are asked not to answer the request.
func (e *Engine) fetchNetwork(ctx context.Context, r *http.Request, bypassCache bool) lookup {
	if e.cfg.NetworkTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.NetworkTimeout)
		defer cancel()
	}
	req := r.Clone(ctx)
	req.RequestURI = ""
	req.Header.Del("Connection")
	if bypassCache {
		req.Header.Set("Cache-Control", "no-cache")
		req.Header.Set("Pragma", "no-cache")
	}
	res, err := e.roundTrip(req)
	if err != nil {
		return lookup{source: SourceNetwork, err: err}
	}
	return readBody(SourceNetwork, res)
}

// roundTrip reports a panicking network as a failed fetch. Strategies call it
// from background goroutines, where a panic cannot be recovered by the caller.
func (e *Engine) roundTrip(req *http.Request) (res *http.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("network failed: %v", r)
		}
	}()
	return e.network.RoundTrip(req)
}

// readBody buffers the response body so that the response can be stored and
// sent independently.
func readBody(source Source, res *http.Response) lookup {
	if res.Body == nil {
		res.Body = http.NoBody
		return lookup{source: source, res: res}
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return lookup{source: source, err: fmt.Errorf("could not read response body: %w", err)}
	}
	res.Body = io.NopCloser(bytes.NewReader(body))
	res.ContentLength = int64(len(body))
	return lookup{source: source, res: res, body: body}
}

// cacheable reports whether a network response may be written to a
// partition: a complete successful response to a request for this origin.
// Responses without a request are opaque and never stored.
func (e *Engine) cacheable(res *http.Response) bool {
	if res == nil || res.Request == nil || res.Request.URL == nil {
		return false
	}
	if res.StatusCode < 200 || res.StatusCode > 299 || res.StatusCode == http.StatusPartialContent {
		return false
	}
	return sameOrigin(res.Request.URL, e.origin)
}

// resolve returns the absolute URL of a path on the engine origin.
func (e *Engine) resolve(path string) (*url.URL, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, err
	}
	return e.origin.ResolveReference(ref), nil
}

// startPreload starts the network fetch for a navigation right away.
// The returned function waits for its result.
func (e *Engine) startPreload(req *http.Request) PreloadFunc {
	result := make(chan lookup, 1)
	go func() {
		result <- e.fetchNetwork(req.Context(), req, true)
	}()
	return func(ctx context.Context) (*http.Response, error) {
		select {
		case l := <-result:
			return l.res, l.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

type handlerTransport struct {
	handler http.Handler
}

// HandlerTransport returns a network that answers requests by calling h,
// e.g. a file server for the static build of the app. A panic in h is
// reported as a network error.
func HandlerTransport(h http.Handler) http.RoundTripper {
	return handlerTransport{handler: h}
}

func (t handlerTransport) RoundTrip(req *http.Request) (res *http.Response, err error) {
	if err := req.Context().Err(); err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("handler failed: %v", r)
		}
	}()
	saver := tee.NewResponseSaver(nil)
	t.handler.ServeHTTP(saver, req)
	return saver.Result(req), nil
}
