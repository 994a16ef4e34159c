package cache

import (
	"net/url"
	"path/filepath"
	"sync"
	"testing"
	"time"

	cachekey "github.com/always-cache/shellcache/pkg/cache-key"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })
	return map[string]Store{
		"memory": NewMemStore(),
		"sqlite": sqlite,
	}
}

func key(t *testing.T, rawURL string) cachekey.Key {
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	return cachekey.FromURL("GET", u)
}

func TestPartitionLifecycle(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Open("b-runtime-v1")
			require.NoError(t, err)
			_, err = store.Open("a-precache-v1")
			require.NoError(t, err)
			// opening twice does not duplicate
			_, err = store.Open("a-precache-v1")
			require.NoError(t, err)

			names, err := store.Names()
			require.NoError(t, err)
			assert.Equal(t, []string{"a-precache-v1", "b-runtime-v1"}, names)

			has, err := store.Has("a-precache-v1")
			require.NoError(t, err)
			assert.True(t, has)

			deleted, err := store.Delete("a-precache-v1")
			require.NoError(t, err)
			assert.True(t, deleted)
			deleted, err = store.Delete("a-precache-v1")
			require.NoError(t, err)
			assert.False(t, deleted)

			has, err = store.Has("a-precache-v1")
			require.NoError(t, err)
			assert.False(t, has)
		})
	}
}

func TestPutAndMatch(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			p, err := store.Open("runtime")
			require.NoError(t, err)
			k := key(t, "https://app.example/app.js?v=1")

			_, found, err := p.Match(k, MatchOptions{})
			require.NoError(t, err)
			assert.False(t, found)

			require.NoError(t, p.Put(Entry{Key: k, StoredAt: time.Now(), Bytes: []byte("first")}))
			require.NoError(t, p.Put(Entry{Key: k, StoredAt: time.Now(), Bytes: []byte("second")}))

			entry, found, err := p.Match(k, MatchOptions{})
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, "second", string(entry.Bytes))
			assert.Equal(t, k, entry.Key)

			other := key(t, "https://app.example/app.js?v=2")
			_, found, err = p.Match(other, MatchOptions{})
			require.NoError(t, err)
			assert.False(t, found)

			keys, err := p.Keys()
			require.NoError(t, err)
			assert.Equal(t, []cachekey.Key{k}, keys)

			deleted, err := p.Delete(k)
			require.NoError(t, err)
			assert.True(t, deleted)
			_, found, err = p.Match(k, MatchOptions{})
			require.NoError(t, err)
			assert.False(t, found)
		})
	}
}

func TestMatchIgnoreQuery(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			p, err := store.Open("precache")
			require.NoError(t, err)
			now := time.Now()
			require.NoError(t, p.Put(Entry{Key: key(t, "https://app.example/index.html?a=1"), StoredAt: now, Bytes: []byte("old")}))
			require.NoError(t, p.Put(Entry{Key: key(t, "https://app.example/index.html?b=2"), StoredAt: now.Add(time.Second), Bytes: []byte("new")}))

			entry, found, err := p.Match(key(t, "https://app.example/index.html?utm=x"), MatchOptions{IgnoreQuery: true})
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, "new", string(entry.Bytes))
			assert.Equal(t, "b=2", entry.Key.Query)

			_, found, err = p.Match(key(t, "https://app.example/other.html"), MatchOptions{IgnoreQuery: true})
			require.NoError(t, err)
			assert.False(t, found)
		})
	}
}

func TestPutToDeletedPartition(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			p, err := store.Open("runtime-v1")
			require.NoError(t, err)
			_, err = store.Delete("runtime-v1")
			require.NoError(t, err)

			err = p.Put(Entry{Key: key(t, "https://app.example/"), StoredAt: time.Now()})
			assert.ErrorIs(t, err, ErrNoPartition)

			// a recreated partition is not written through the stale handle
			recreated, err := store.Open("runtime-v1")
			require.NoError(t, err)
			err = p.Put(Entry{Key: key(t, "https://app.example/"), StoredAt: time.Now()})
			assert.ErrorIs(t, err, ErrNoPartition)
			keys, err := recreated.Keys()
			require.NoError(t, err)
			assert.Empty(t, keys)
		})
	}
}

func TestConcurrentWritesLastWins(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			p, err := store.Open("runtime")
			require.NoError(t, err)
			k := key(t, "https://app.example/data.json")

			var wg sync.WaitGroup
			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					assert.NoError(t, p.Put(Entry{Key: k, StoredAt: time.Now(), Bytes: []byte{byte(i)}}))
				}(i)
			}
			wg.Wait()

			entry, found, err := p.Match(k, MatchOptions{})
			require.NoError(t, err)
			assert.True(t, found)
			assert.Len(t, entry.Bytes, 1)
		})
	}
}
