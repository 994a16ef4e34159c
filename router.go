package shellcache

import (
	"net/http"
	"net/url"
	"strings"
)

// Mode is the request mode as seen by the engine.
type Mode string

const (
	// ModeNavigate is a request for a full document, e.g. a link click.
	ModeNavigate Mode = "navigate"
	// ModeFetch is any other request.
	ModeFetch Mode = "fetch"
)

// Descriptor is the part of a request that routing depends on.
type Descriptor struct {
	Method string
	URL    *url.URL
	Mode   Mode
}

// Describe returns the descriptor of a request with an absolute URL.
// The mode is read from the Sec-Fetch-Mode header, a request for a
// document destination without that header also counts as a navigation.
func Describe(r *http.Request) Descriptor {
	d := Descriptor{
		Method: r.Method,
		URL:    r.URL,
		Mode:   ModeFetch,
	}
	if d.Method == "" {
		d.Method = http.MethodGet
	}
	if mode := r.Header.Get("Sec-Fetch-Mode"); mode != "" {
		if strings.EqualFold(mode, string(ModeNavigate)) {
			d.Mode = ModeNavigate
		}
	} else if strings.EqualFold(r.Header.Get("Sec-Fetch-Dest"), "document") {
		d.Mode = ModeNavigate
	}
	return d
}

// Route is the strategy selected for a request.
type Route string

const (
	// RoutePassthrough leaves the request to the underlying network.
	RoutePassthrough Route = "passthrough"
	// RouteNetworkOnly always uses the network and answers with an offline
	// notice when it fails.
	RouteNetworkOnly Route = "network-only"
	// RouteNavigation is network-first with the app shell as fallback.
	RouteNavigation Route = "navigation"
	// RouteAsset is stale-while-revalidate.
	RouteAsset Route = "asset"
)

// Router selects a Route. It has no state besides its configuration.
type Router struct {
	Origin      *url.URL
	BackendHost string
}

// Classify returns the route for the request, the first matching rule wins:
// cross-origin requests pass through, requests to the backend host are
// network-only, navigations use the navigation strategy, other GETs the
// asset strategy, and everything else passes through.
func (rt Router) Classify(d Descriptor) Route {
	switch {
	case d.URL == nil || !sameOrigin(d.URL, rt.Origin):
		return RoutePassthrough
	case rt.BackendHost != "" && strings.Contains(strings.ToLower(d.URL.Hostname()), strings.ToLower(rt.BackendHost)):
		return RouteNetworkOnly
	case d.Mode == ModeNavigate:
		return RouteNavigation
	case d.Method == http.MethodGet:
		return RouteAsset
	default:
		return RoutePassthrough
	}
}

func sameOrigin(a, b *url.URL) bool {
	if a == nil || b == nil {
		return false
	}
	return originOf(a) == originOf(b)
}

// originOf returns scheme://host:port with the default port made explicit.
func originOf(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	port := u.Port()
	if port == "" {
		switch scheme {
		case "https":
			port = "443"
		case "http":
			port = "80"
		}
	}
	return scheme + "://" + strings.ToLower(u.Hostname()) + ":" + port
}
