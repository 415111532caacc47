// Package cache keeps compiled units between runs: a bounded LRU store of
// encoded units keyed by source hash, persisted with msgpack.
package cache

import (
	"container/list"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// Stats reports store usage.
type Stats struct {
	Length       int   `json:"length"`
	CurrentBytes int64 `json:"current_bytes"`
	HitCount     int64 `json:"hit_count"`
	MissCount    int64 `json:"miss_count"`
}

// entry is the persisted form of one cached value.
type entry struct {
	Key   string `msgpack:"key"`
	Value []byte `msgpack:"value"`
}

// store maps cache keys to encoded units, evicting the least recently
// used entry once it holds more than max entries. max 0 means unbounded.
type store struct {
	mu     sync.Mutex
	max    int
	order  *list.List // of *entry, most recent at front
	items  map[string]*list.Element
	bytes  int64
	hits   int64
	misses int64
}

func newStore(max int) *store {
	return &store{
		max:   max,
		order: list.New(),
		items: make(map[string]*list.Element),
	}
}

func (s *store) get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.items[key]
	if !ok {
		s.misses++
		return nil, false
	}
	s.hits++
	s.order.MoveToFront(el)
	return el.Value.(*entry).Value, true
}

func (s *store) set(key string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.items[key]; ok {
		e := el.Value.(*entry)
		s.bytes += int64(len(value) - len(e.Value))
		e.Value = value
		s.order.MoveToFront(el)
		return
	}
	s.items[key] = s.order.PushFront(&entry{Key: key, Value: value})
	s.bytes += int64(len(value))
	s.evict()
}

func (s *store) delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.items[key]; ok {
		s.remove(el)
	}
}

func (s *store) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

func (s *store) stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Length:       s.order.Len(),
		CurrentBytes: s.bytes,
		HitCount:     s.hits,
		MissCount:    s.misses,
	}
}

func (s *store) remove(el *list.Element) {
	e := s.order.Remove(el).(*entry)
	delete(s.items, e.Key)
	s.bytes -= int64(len(e.Value))
}

// evict must be called with mu held.
func (s *store) evict() {
	for s.max > 0 && s.order.Len() > s.max {
		s.remove(s.order.Back())
	}
}

// encode writes all entries, most recent first.
func (s *store) encode(w io.Writer) error {
	s.mu.Lock()
	entries := make([]entry, 0, s.order.Len())
	for el := s.order.Front(); el != nil; el = el.Next() {
		entries = append(entries, *el.Value.(*entry))
	}
	s.mu.Unlock()

	return msgpack.NewEncoder(w).Encode(entries)
}

// decode replaces the contents with the entries read from r, keeping
// their recency order and the size bound.
func (s *store) decode(r io.Reader) error {
	var entries []entry
	if err := msgpack.NewDecoder(r).Decode(&entries); err != nil {
		return fmt.Errorf("failed to decode cache: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.order.Init()
	s.items = make(map[string]*list.Element, len(entries))
	s.bytes = 0
	for i := range entries {
		e := entries[i]
		if _, dup := s.items[e.Key]; dup {
			continue
		}
		s.items[e.Key] = s.order.PushBack(&e)
		s.bytes += int64(len(e.Value))
	}
	s.evict()
	return nil
}

// save writes the store to path through a temporary file so a crash never
// leaves a truncated cache behind.
func (s *store) save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	if err := s.encode(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	return os.Rename(tmp, path)
}

// load reads path into the store. A missing file leaves it empty.
func (s *store) load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open cache file: %w", err)
	}
	defer f.Close()

	return s.decode(f)
}
