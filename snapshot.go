package shellcache

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/always-cache/shellcache/cache"
	cachekey "github.com/always-cache/shellcache/pkg/cache-key"
	serializer "github.com/always-cache/shellcache/pkg/response-serializer"
)

// ErrNotCacheable is returned when a response must not be written to a partition.
var ErrNotCacheable = errors.New("response not cacheable")

var errCacheMiss = errors.New("cache miss")

// put stores the response of l under the key of req. The stored copy does
// not share any state with l.
func (e *Engine) put(p cache.Partition, req *http.Request, l lookup) error {
	if p == nil {
		return cache.ErrNoPartition
	}
	if !l.ok() {
		return ErrNotCacheable
	}
	now := time.Now()
	b, err := serializer.StoredResponseToBytes(l.res, l.body, now)
	if err != nil {
		return err
	}
	return p.Put(cache.Entry{
		Key:      cachekey.FromRequest(req),
		StoredAt: now,
		Bytes:    b,
	})
}

// match reads the response stored under key in p. A missing partition or
// entry is reported as errCacheMiss.
func (e *Engine) match(p cache.Partition, req *http.Request, key cachekey.Key, opts cache.MatchOptions, source Source) lookup {
	if p == nil {
		return lookup{source: source, err: errCacheMiss}
	}
	entry, found, err := p.Match(key, opts)
	if err != nil {
		return lookup{source: source, err: fmt.Errorf("could not read %s from %s: %w", key, p.Name(), err)}
	}
	if !found {
		return lookup{source: source, err: errCacheMiss}
	}
	sRes, err := serializer.BytesToStoredResponse(entry.Bytes, req)
	if err != nil {
		return lookup{source: source, err: fmt.Errorf("corrupt entry %s in %s: %w", key, p.Name(), err)}
	}
	e.log.Trace().
		Str("key", key.String()).
		Str("partition", p.Name()).
		Dur("age", time.Since(sRes.StoredAt)).
		Msg("Found stored response")
	return lookup{source: source, res: sRes.Response, storedAt: sRes.StoredAt}
}

// snapshot returns a copy of the response of l that can be stored while the
// original is being sent.
func (l lookup) snapshot() lookup {
	res := &http.Response{
		StatusCode: l.res.StatusCode,
		Header:     l.res.Header.Clone(),
		Request:    l.res.Request,
	}
	return lookup{source: l.source, res: res, body: l.body}
}
