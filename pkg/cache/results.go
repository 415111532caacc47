package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/l3aro/go-flowc/pkg/ir"
)

// ResultsFile is the name of the persisted result cache inside the cache
// directory.
const ResultsFile = "results.msgpack"

// unitVersion is bumped whenever the encoding of Unit changes. Entries
// with another version are treated as misses.
const unitVersion = 1

// Global is a cached module-level variable.
type Global struct {
	Name string `msgpack:"name"`
	Init int64  `msgpack:"init"`
}

// Unit is the cached flat output for one source file.
type Unit struct {
	Version   int               `msgpack:"version"`
	File      string            `msgpack:"file"`
	Globals   []Global          `msgpack:"globals"`
	Functions []ir.WireFunction `msgpack:"functions"`
}

// NewUnit builds a cache entry from a unit's globals and flattened
// functions.
func NewUnit(file string, globals []ir.Global, functions []ir.WireFunction) *Unit {
	u := &Unit{Version: unitVersion, File: file, Functions: functions}
	for _, g := range globals {
		u.Globals = append(u.Globals, Global{Name: g.Name, Init: g.Init})
	}
	return u
}

// IRGlobals converts the cached globals back to IR form.
func (u *Unit) IRGlobals() []ir.Global {
	var out []ir.Global
	for _, g := range u.Globals {
		out = append(out, ir.Global{Name: g.Name, Init: g.Init})
	}
	return out
}

// Key derives a cache key from the source text and every setting that
// changes the compiled output.
func Key(src []byte, settings ...string) string {
	h := sha256.New()
	h.Write(src)
	for _, s := range settings {
		h.Write([]byte{0})
		h.Write([]byte(s))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ResultCache caches compiled units keyed by Key, optionally backed by a
// file in a cache directory.
type ResultCache struct {
	mu    sync.Mutex
	store *store
	path  string
	dirty bool
}

// NewResultCache creates an in-memory result cache holding up to
// maxEntries units.
func NewResultCache(maxEntries int) *ResultCache {
	return &ResultCache{store: newStore(maxEntries)}
}

// OpenResultCache creates a result cache persisted in dir, loading any
// previously flushed entries.
func OpenResultCache(dir string, maxEntries int) (*ResultCache, error) {
	rc := NewResultCache(maxEntries)
	rc.path = filepath.Join(dir, ResultsFile)

	if err := rc.store.load(rc.path); err != nil {
		return nil, fmt.Errorf("loading result cache %s: %w", rc.path, err)
	}
	return rc, nil
}

// Get returns the unit stored under key. Entries that fail to decode or
// carry another version are dropped and reported as misses.
func (rc *ResultCache) Get(key string) (*Unit, bool) {
	data, ok := rc.store.get(key)
	if !ok {
		return nil, false
	}

	var u Unit
	if err := msgpack.NewDecoder(bytes.NewReader(data)).Decode(&u); err != nil || u.Version != unitVersion {
		rc.store.delete(key)
		return nil, false
	}
	return &u, true
}

// Put stores u under key.
func (rc *ResultCache) Put(key string, u *Unit) error {
	var buf bytes.Buffer
	if err := msgpack.NewEncoder(&buf).Encode(u); err != nil {
		return fmt.Errorf("encoding cached unit %s: %w", u.File, err)
	}
	rc.store.set(key, buf.Bytes())

	rc.mu.Lock()
	rc.dirty = true
	rc.mu.Unlock()
	return nil
}

// Flush writes the cache to its file if it changed since it was opened.
// In-memory caches ignore Flush.
func (rc *ResultCache) Flush() error {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.path == "" || !rc.dirty {
		return nil
	}
	if err := rc.store.save(rc.path); err != nil {
		return err
	}
	rc.dirty = false
	return nil
}

// Path returns the backing file, or "" for an in-memory cache.
func (rc *ResultCache) Path() string {
	return rc.path
}

// Stats returns hit and miss counts.
func (rc *ResultCache) Stats() Stats {
	return rc.store.stats()
}
