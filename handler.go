package shellcache

import (
	"io"
	"net/http"
	"net/http/httputil"
)

// ServeHTTP implements the http.Handler interface.
// Requests with a relative URL are taken to be for the engine origin.
// Passthrough requests are proxied to the network unchanged.
func (e *Engine) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req := e.forwardRequest(r)
	ev := NewFetchEvent(req)
	if e.preloadEnabled() && req.Method == http.MethodGet && e.router.Classify(Describe(req)) == RouteNavigation {
		ev.Preload = e.startPreload(req)
	}

	out, err := e.Dispatch(r.Context(), ev)
	if err != nil {
		e.log.Warn().Err(err).Str("url", req.URL.String()).Msg("Could not handle request")
		http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
		return
	}
	if out.Passthrough() {
		e.proxy(w, req)
		return
	}
	if err := send(w, out.Response); err != nil {
		e.log.Debug().Err(err).Str("url", req.URL.String()).Msg("Could not send response to client")
	}
}

// RoundTrip implements the http.RoundTripper interface, so that the engine
// can be used as the transport of an http.Client. The request URL must be
// absolute.
func (e *Engine) RoundTrip(req *http.Request) (*http.Response, error) {
	out, err := e.Dispatch(req.Context(), NewFetchEvent(req))
	if err != nil {
		return nil, err
	}
	if out.Passthrough() {
		return e.network.RoundTrip(req)
	}
	return out.Response, nil
}

// forwardRequest returns a copy of the incoming server request with an
// absolute URL, ready to be sent to the network.
func (e *Engine) forwardRequest(r *http.Request) *http.Request {
	abs := e.origin.ResolveReference(r.URL)
	req := r.Clone(r.Context())
	req.URL = abs
	req.RequestURI = ""
	req.Host = abs.Host
	req.Header.Del("Connection")
	return req
}

func (e *Engine) proxy(w http.ResponseWriter, req *http.Request) {
	proxy := httputil.ReverseProxy{
		// the request URL is already absolute
		Director:  func(*http.Request) {},
		Transport: e.network,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			e.log.Warn().Err(err).Str("url", r.URL.String()).Msg("Error contacting origin")
			http.Error(w, "Error contacting origin", http.StatusBadGateway)
		},
	}
	proxy.ServeHTTP(w, req)
}

func send(w http.ResponseWriter, res *http.Response) error {
	if res.Body != nil {
		defer res.Body.Close()
	}
	copyHeader(w.Header(), res.Header)
	w.WriteHeader(res.StatusCode)
	if res.Body == nil {
		return nil
	}
	_, err := io.Copy(w, res.Body)
	return err
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		// this is a workaround to remove default headers sent by an upstream proxy
		// some clients do not like the presence of these headers in the response
		if k != "X-Forwarded-For" && k != "X-Forwarded-Proto" && k != "X-Forwarded-Host" {
			for _, v := range vv {
				dst.Add(k, v)
			}
		}
	}
}
