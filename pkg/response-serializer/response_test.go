package serializer

import (
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimedResponseSerialization(t *testing.T) {
	res := &http.Response{
		StatusCode: 201,
		Header:     http.Header{},
	}
	res.Header.Add("Test", "-ing")
	storedAt := time.Now()

	bts, err := StoredResponseToBytes(res, []byte("This is the body"), storedAt)
	require.NoError(t, err)

	req, _ := http.NewRequest("GET", "https://example.com/", nil)
	sRes, err := BytesToStoredResponse(bts, req)
	require.NoError(t, err)

	assert.Equal(t, 201, sRes.Response.StatusCode)
	assert.Equal(t, "-ing", sRes.Response.Header.Get("Test"))
	assert.Empty(t, sRes.Response.Header.Get(storedAtHeaderName))
	assert.Equal(t, req, sRes.Response.Request)
	assert.True(t, storedAt.Equal(sRes.StoredAt))

	body, err := io.ReadAll(sRes.Response.Body)
	require.NoError(t, err)
	assert.Equal(t, "This is the body", string(body))
}

func TestSerializationLeavesResponseIntact(t *testing.T) {
	res := &http.Response{StatusCode: 200, Header: http.Header{"Content-Type": {"text/plain"}}}

	_, err := StoredResponseToBytes(res, nil, time.Now())
	require.NoError(t, err)

	assert.Empty(t, res.Header.Get(storedAtHeaderName))
}

func TestGarbageIsRejected(t *testing.T) {
	_, err := BytesToStoredResponse([]byte("not a response"), nil)
	assert.Error(t, err)
}
