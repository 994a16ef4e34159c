package shellcache

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeHTTPUsesPreload(t *testing.T) {
	network := newFakeNetwork(appBodies())
	e := newTestEngine(t, network, nil, func(c *Config) {
		c.NavigationPreload = true
	})
	startEngine(t, e)
	before := len(network.requests())

	req := httptest.NewRequest("GET", "/about", nil)
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	rr := httptest.NewRecorder()
	e.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "<html>about</html>", rr.Body.String())
	assert.Equal(t, "ShellCache; fwd=request; detail=preload", rr.Header().Get("Cache-Status"))

	requests := network.requests()[before:]
	require.Len(t, requests, 1)
	assert.Equal(t, testOrigin+"/about", requests[0].URL.String())
	assert.Equal(t, "no-cache", requests[0].Header.Get("Cache-Control"))
}

func TestServeHTTPNoPreloadForBackend(t *testing.T) {
	network := newFakeNetwork(map[string]string{"/rows": `{"rows":[]}`})
	e := newTestEngine(t, network, nil, func(c *Config) {
		c.Origin = "https://api.app.example"
		c.BackendHost = "api."
		c.ShellAssets = nil
		c.NavigationPreload = true
	})
	startEngine(t, e)
	before := len(network.requests())

	req := httptest.NewRequest("GET", "/rows", nil)
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	rr := httptest.NewRecorder()
	e.ServeHTTP(rr, req)
	drain(t, e)

	assert.Equal(t, `{"rows":[]}`, rr.Body.String())
	assert.Len(t, network.requests()[before:], 1)
}

func TestServeHTTPWithoutPreload(t *testing.T) {
	network := newFakeNetwork(appBodies())
	e := newTestEngine(t, network, nil, nil)
	startEngine(t, e)

	req := httptest.NewRequest("GET", "/about", nil)
	req.Header.Set("Sec-Fetch-Dest", "document")
	rr := httptest.NewRecorder()
	e.ServeHTTP(rr, req)

	assert.Equal(t, "<html>about</html>", rr.Body.String())
	assert.Equal(t, "ShellCache; fwd=request", rr.Header().Get("Cache-Status"))
}

func TestServeHTTPProxiesPassthrough(t *testing.T) {
	network := newFakeNetwork(appBodies())
	e := newTestEngine(t, network, nil, nil)
	startEngine(t, e)

	rr := httptest.NewRecorder()
	e.ServeHTTP(rr, httptest.NewRequest("POST", "/form", strings.NewReader("a=1")))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "received", rr.Body.String())
	assert.Empty(t, rr.Header().Get("Cache-Status"))

	requests := network.requests()
	last := requests[len(requests)-1]
	assert.Equal(t, "POST", last.Method)
	assert.Equal(t, testOrigin+"/form", last.URL.String())

	network.setOffline(true)
	rr = httptest.NewRecorder()
	e.ServeHTTP(rr, httptest.NewRequest("POST", "/form", strings.NewReader("a=1")))
	assert.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestServeHTTPAsset(t *testing.T) {
	network := newFakeNetwork(appBodies())
	e := newTestEngine(t, network, nil, nil)
	startEngine(t, e)
	network.setOffline(true)

	rr := httptest.NewRecorder()
	e.ServeHTTP(rr, httptest.NewRequest("GET", "/app.js", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "app v1", rr.Body.String())
	assert.Equal(t, "origin", rr.Header().Get("X-Served-By"))
	drain(t, e)
}

func TestHandlerTransport(t *testing.T) {
	files := fstest.MapFS{
		"index.html": {Data: []byte(testShell)},
		"app.js":     {Data: []byte("console.log(1)")},
	}
	network := HandlerTransport(http.FileServer(http.FS(files)))

	req, err := http.NewRequest("GET", testOrigin+"/app.js", nil)
	require.NoError(t, err)
	res, err := network.RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Same(t, req, res.Request)
	b, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Equal(t, "console.log(1)", string(b))

	// a file server backed engine works offline after install
	e := newTestEngine(t, network, nil, nil)
	startEngine(t, e)
	res = fetch(t, e, "GET", testOrigin+"/app.js", false)
	assert.Equal(t, "ShellCache; hit", res.Header.Get("Cache-Status"))
	drain(t, e)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req, err = http.NewRequestWithContext(ctx, "GET", testOrigin+"/app.js", nil)
	require.NoError(t, err)
	_, err = network.RoundTrip(req)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHandlerTransportRecoversPanics(t *testing.T) {
	network := HandlerTransport(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("handler exploded")
	}))
	req, err := http.NewRequest("GET", testOrigin+"/", nil)
	require.NoError(t, err)
	_, err = network.RoundTrip(req)
	assert.Error(t, err)
}
