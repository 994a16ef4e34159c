package shellcache

import (
	"net/http"

	"github.com/always-cache/shellcache/cache"
	cachekey "github.com/always-cache/shellcache/pkg/cache-key"
)

// resolveShell finds the app shell document, ignoring query strings.
// The configured shell path is tried before the root document, and for
// each of them the precache before the runtime partition.
func (e *Engine) resolveShell(req *http.Request) lookup {
	precache, runtime := e.partitions()
	var steps []func() lookup
	for _, path := range []string{e.cfg.ShellPath, "/"} {
		u, err := e.resolve(path)
		if err != nil {
			e.log.Warn().Err(err).Str("path", path).Msg("Invalid shell path")
			continue
		}
		key := cachekey.FromURL(http.MethodGet, u)
		for _, p := range []cache.Partition{precache, runtime} {
			steps = append(steps, func() lookup {
				return e.match(p, req, key, cache.MatchOptions{IgnoreQuery: true}, SourceShell)
			})
		}
	}
	if len(steps) == 0 {
		return lookup{source: SourceShell, err: errCacheMiss}
	}
	return firstUsable(steps...)
}
