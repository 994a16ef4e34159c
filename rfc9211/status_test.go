package rfc9211

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	cs := CacheStatus{}
	cs.Hit()
	assert.Equal(t, "ShellCache; hit", cs.String())

	cs.Forward(FwdReasonUriMiss)
	cs.Stored = true
	assert.Equal(t, "ShellCache; fwd=uri-miss; stored", cs.String())

	cs = CacheStatus{Detail: "offline"}
	cs.Forward(FwdReasonMiss)
	assert.Equal(t, "ShellCache; fwd=miss; detail=offline", cs.String())
}

func TestSetKeepsOtherCaches(t *testing.T) {
	h := http.Header{}
	h.Add(HeaderName, "ExampleCDN; hit")
	h.Add(HeaderName, "ShellCache; fwd=miss")

	cs := CacheStatus{}
	cs.Hit()
	cs.Set(h)

	assert.Equal(t, []string{"ExampleCDN; hit", "ShellCache; hit"}, h.Values(HeaderName))
}
