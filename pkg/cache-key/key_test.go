package cachekey

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyFromRequest(t *testing.T) {
	r, _ := http.NewRequest("get", "https://App.Example.com/assets/app.js?v=2", nil)
	key := FromRequest(r)

	assert.Equal(t, "GET", key.Method)
	assert.Equal(t, "https://app.example.com/assets/app.js", key.Base)
	assert.Equal(t, "v=2", key.Query)
	assert.Equal(t, "https://app.example.com/assets/app.js?v=2", key.URL())
}

func TestEmptyPathIsRoot(t *testing.T) {
	r, _ := http.NewRequest("GET", "https://example.com", nil)
	assert.Equal(t, "https://example.com/", FromRequest(r).Base)
}

func TestDefaultPortIsDropped(t *testing.T) {
	for _, pair := range [][2]string{
		{"https://app.example:443/app.js", "https://app.example/app.js"},
		{"http://App.Example:80/", "http://app.example/"},
		{"http://[::1]:80/x", "http://[::1]/x"},
	} {
		a, _ := http.NewRequest("GET", pair[0], nil)
		b, _ := http.NewRequest("GET", pair[1], nil)
		assert.Equal(t, FromRequest(b), FromRequest(a), pair[0])
	}

	r, _ := http.NewRequest("GET", "https://app.example:8443/app.js", nil)
	assert.Equal(t, "https://app.example:8443/app.js", FromRequest(r).Base)
	r, _ = http.NewRequest("GET", "http://app.example:443/", nil)
	assert.Equal(t, "http://app.example:443/", FromRequest(r).Base)
}

func TestRequestFromKey(t *testing.T) {
	r, _ := http.NewRequest("GET", "http://dev.localhost/page?x=1", nil)
	key := FromRequest(r)

	parsed, err := Parse(key.String())
	require.NoError(t, err)
	assert.Equal(t, key, parsed)

	req, err := parsed.Request()
	require.NoError(t, err)
	assert.Equal(t, "http://dev.localhost/page?x=1", req.URL.String())
	assert.Equal(t, "GET", req.Method)
}

func TestParseMalformed(t *testing.T) {
	for _, s := range []string{"", "GET:https://x/", "GET:\t", ":\t"} {
		_, err := Parse(s)
		assert.Error(t, err, "key %q", s)
	}
}
