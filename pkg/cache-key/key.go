package cachekey

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const (
	methodSeparator = ":"
	querySeparator  = "\t"
)

// Key identifies a stored response within a partition.
// The query string is kept apart from the rest of the URL so that lookups
// can choose to ignore it.
type Key struct {
	Method string
	// Base is the absolute URL without query string and fragment.
	Base string
	// Query is the raw query string, without the leading '?'.
	Query string
}

// FromRequest returns the key for the given request.
func FromRequest(r *http.Request) Key {
	return FromURL(r.Method, r.URL)
}

// FromURL returns the key for a request with the given method and URL.
// Scheme and host are lower-cased, the default port of the scheme is
// dropped and an empty path becomes "/".
func FromURL(method string, u *url.URL) Key {
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if method == "" {
		method = http.MethodGet
	}
	scheme := strings.ToLower(u.Scheme)
	return Key{
		Method: strings.ToUpper(method),
		Base:   scheme + "://" + host(scheme, u) + path,
		Query:  u.RawQuery,
	}
}

func host(scheme string, u *url.URL) string {
	name := strings.ToLower(u.Hostname())
	if strings.Contains(name, ":") {
		name = "[" + name + "]"
	}
	switch port := u.Port(); {
	case port == "",
		scheme == "http" && port == "80",
		scheme == "https" && port == "443":
		return name
	default:
		return name + ":" + port
	}
}

// String returns the serialized form of the key, e.g.
// "GET:https://example.com/app.js\tv=2".
func (k Key) String() string {
	return k.Method + methodSeparator + k.Base + querySeparator + k.Query
}

// URL returns the full URL the key was created from.
func (k Key) URL() string {
	if k.Query == "" {
		return k.Base
	}
	return k.Base + "?" + k.Query
}

// Request creates a request that is equal to the one that produced the key,
// caching-wise.
func (k Key) Request() (*http.Request, error) {
	return http.NewRequest(k.Method, k.URL(), nil)
}

// Parse is the inverse of Key.String.
func Parse(s string) (Key, error) {
	rest, query, found := strings.Cut(s, querySeparator)
	if !found {
		return Key{}, fmt.Errorf("malformed key: %q", s)
	}
	method, base, found := strings.Cut(rest, methodSeparator)
	if !found || method == "" || base == "" {
		return Key{}, fmt.Errorf("malformed key: %q", s)
	}
	return Key{Method: method, Base: base, Query: query}, nil
}
