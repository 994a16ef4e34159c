package cache

import (
	"errors"
	"sort"
	"sync"
	"time"

	cachekey "github.com/always-cache/shellcache/pkg/cache-key"
)

// ErrNoPartition is returned when writing to a partition that has been deleted.
var ErrNoPartition = errors.New("partition does not exist")

// Store is a set of named cache partitions.
// Partitions are created on Open and live until they are deleted.
//
// Implementations must be thread-safe!
type Store interface {
	// Open returns the partition with the given name, creating it if needed.
	Open(name string) (Partition, error)
	// Has reports whether a partition with the given name exists.
	Has(name string) (bool, error)
	// Delete removes the partition and all its entries.
	// It returns false if there was no such partition.
	Delete(name string) (bool, error)
	// Names lists all partition names in lexical order.
	Names() ([]string, error)
}

// Partition stores []byte values, which represent HTTP responses, under
// request keys. Writing a key again replaces the previous entry.
//
// Implementations must be thread-safe!
type Partition interface {
	Name() string
	// Match returns the entry for the key. With IgnoreQuery, the query string
	// of both the key and the stored keys is disregarded, and the most
	// recently stored matching entry is returned.
	Match(key cachekey.Key, opts MatchOptions) (Entry, bool, error)
	// Put stores the entry, replacing an existing one with the same key.
	// It returns ErrNoPartition if the partition was deleted.
	Put(entry Entry) error
	// Delete removes the entry for the given key.
	Delete(key cachekey.Key) (bool, error)
	// Keys lists the keys of all entries.
	Keys() ([]cachekey.Key, error)
}

type MatchOptions struct {
	IgnoreQuery bool
}

type Entry struct {
	Key      cachekey.Key
	StoredAt time.Time
	Bytes    []byte
}

type memPartition struct {
	name    string
	entries map[cachekey.Key]Entry
}

// MemStore keeps all partitions in memory.
type MemStore struct {
	mutex      *sync.RWMutex
	partitions map[string]*memPartition
}

func NewMemStore() MemStore {
	return MemStore{
		mutex:      &sync.RWMutex{},
		partitions: make(map[string]*memPartition),
	}
}

func (m MemStore) Open(name string) (Partition, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	p, ok := m.partitions[name]
	if !ok {
		p = &memPartition{
			name:    name,
			entries: make(map[cachekey.Key]Entry),
		}
		m.partitions[name] = p
	}
	return memHandle{store: m, p: p}, nil
}

func (m MemStore) Has(name string) (bool, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	_, ok := m.partitions[name]
	return ok, nil
}

func (m MemStore) Delete(name string) (bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	_, ok := m.partitions[name]
	delete(m.partitions, name)
	return ok, nil
}

func (m MemStore) Names() ([]string, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	names := make([]string, 0, len(m.partitions))
	for name := range m.partitions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// memHandle is only valid while its partition is registered in the store.
// A handle to a deleted partition does not write into a recreated one.
type memHandle struct {
	store MemStore
	p     *memPartition
}

func (h memHandle) Name() string {
	return h.p.name
}

// live returns the partition if it has not been deleted.
// The caller must hold the store mutex.
func (h memHandle) live() (*memPartition, bool) {
	p, ok := h.store.partitions[h.p.name]
	return p, ok && p == h.p
}

func (h memHandle) Match(key cachekey.Key, opts MatchOptions) (Entry, bool, error) {
	h.store.mutex.RLock()
	defer h.store.mutex.RUnlock()
	p, ok := h.live()
	if !ok {
		return Entry{}, false, nil
	}
	if !opts.IgnoreQuery {
		entry, ok := p.entries[key]
		return entry, ok, nil
	}
	var (
		found   Entry
		matched bool
	)
	for k, entry := range p.entries {
		if k.Method != key.Method || k.Base != key.Base {
			continue
		}
		if !matched || entry.StoredAt.After(found.StoredAt) {
			found = entry
			matched = true
		}
	}
	return found, matched, nil
}

func (h memHandle) Put(entry Entry) error {
	h.store.mutex.Lock()
	defer h.store.mutex.Unlock()
	p, ok := h.live()
	if !ok {
		return ErrNoPartition
	}
	p.entries[entry.Key] = entry
	return nil
}

func (h memHandle) Delete(key cachekey.Key) (bool, error) {
	h.store.mutex.Lock()
	defer h.store.mutex.Unlock()
	p, ok := h.live()
	if !ok {
		return false, nil
	}
	_, ok = p.entries[key]
	delete(p.entries, key)
	return ok, nil
}

func (h memHandle) Keys() ([]cachekey.Key, error) {
	h.store.mutex.RLock()
	defer h.store.mutex.RUnlock()
	p, ok := h.live()
	if !ok {
		return nil, nil
	}
	keys := make([]cachekey.Key, 0, len(p.entries))
	for k := range p.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})
	return keys, nil
}
