// Package cache implements the tiered, namespaced in-memory store used by
// the request orchestrator as a warm path in front of the relay network.
// Each namespace has its own TTL and size cap; there is no backing store —
// everything here lives only for the life of the process (no persistent
// storage is an explicit non-goal of this service).
package cache

import (
	"encoding/json"
	"math"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// Forever is passed to Get to probe a namespace for a stale entry regardless
// of its age — the read-through trick the list cache uses to warm the detail
// cache without a network round trip. It is the largest Duration, so no
// finite TTL a caller passes (a negative one included) is mistaken for it.
const Forever time.Duration = math.MaxInt64

// Namespace names, matching the recognized namespaces of the aggregation
// service. Each has a distinct default TTL and size cap below.
const (
	NsListPublications  = "list:publications"
	NsListArticles      = "list:articles"
	NsListHighlights    = "list:highlights"
	NsDetailPublication = "detail:publication"
	NsDetailArticle     = "detail:article"
	NsHierarchy         = "hierarchy"
	NsComments          = "comments"
	NsProfileHandle     = "profile:handle"
	NsProfileEvent      = "profile:event"
	NsSearch            = "search"
	NsDerivedFile       = "derived:file"
	NsMediaImage        = "media:image"
)

// entry is one cache slot: a value, an optional side payload, and the
// bookkeeping needed for TTL expiry and oldest-inserted eviction.
type entry struct {
	value     interface{}
	extra     interface{}
	insertAt  time.Time
	insertSeq uint64
}

// namespaceConfig describes a namespace's TTL and capacity. A Cap of 0 means
// unbounded (no eviction ever happens for that namespace).
type namespaceConfig struct {
	ttl time.Duration
	cap int
}

func defaultNamespaceConfigs() map[string]namespaceConfig {
	return map[string]namespaceConfig{
		NsListPublications:  {ttl: 30 * time.Minute, cap: 1},
		NsListArticles:      {ttl: 30 * time.Minute, cap: 1},
		NsListHighlights:    {ttl: 30 * time.Minute, cap: 50},
		NsDetailPublication: {ttl: 60 * time.Minute, cap: 100},
		NsDetailArticle:     {ttl: 60 * time.Minute, cap: 100},
		NsHierarchy:         {ttl: 60 * time.Minute, cap: 0},
		NsComments:          {ttl: 30 * time.Minute, cap: 0},
		NsProfileHandle:     {ttl: 60 * time.Minute, cap: 500},
		NsProfileEvent:      {ttl: 60 * time.Minute, cap: 1000},
		NsSearch:            {ttl: 10 * time.Minute, cap: 0},
		NsDerivedFile:       {ttl: 24 * time.Hour, cap: 0},
		NsMediaImage:        {ttl: 24 * time.Hour, cap: 0},
	}
}

type namespaceStore struct {
	mu      sync.RWMutex
	cfg     namespaceConfig
	entries map[string]*entry
	seq     uint64
	updated time.Time
}

func newNamespaceStore(cfg namespaceConfig) *namespaceStore {
	return &namespaceStore{cfg: cfg, entries: make(map[string]*entry)}
}

// Store is the process-wide tagged-variant cache façade: one namespaceStore
// per namespace, each with its own lock, composed behind a uniform
// interface rather than the ad-hoc string-prefix dispatch a looser design
// would use.
type Store struct {
	mu         sync.RWMutex
	namespaces map[string]*namespaceStore
}

// Option customizes a namespace's TTL or cap at construction time, letting
// callers override the defaults above from loaded configuration.
type Option func(map[string]namespaceConfig)

// WithTTL overrides the TTL for a single namespace.
func WithTTL(namespace string, ttl time.Duration) Option {
	return func(cfgs map[string]namespaceConfig) {
		c := cfgs[namespace]
		c.ttl = ttl
		cfgs[namespace] = c
	}
}

// WithCap overrides the size cap for a single namespace. 0 means unbounded.
func WithCap(namespace string, cap int) Option {
	return func(cfgs map[string]namespaceConfig) {
		c := cfgs[namespace]
		c.cap = cap
		cfgs[namespace] = c
	}
}

// New builds a Store with the recognized namespaces pre-registered.
func New(opts ...Option) *Store {
	cfgs := defaultNamespaceConfigs()
	for _, opt := range opts {
		opt(cfgs)
	}

	s := &Store{namespaces: make(map[string]*namespaceStore, len(cfgs))}
	for ns, cfg := range cfgs {
		s.namespaces[ns] = newNamespaceStore(cfg)
	}
	return s
}

// namespace returns the store for ns, lazily registering one with no TTL
// cap if ns is not among the recognized names (defensive: callers should
// only ever use the Ns* constants).
func (s *Store) namespace(ns string) *namespaceStore {
	s.mu.RLock()
	n, ok := s.namespaces[ns]
	s.mu.RUnlock()
	if ok {
		return n
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.namespaces[ns]; ok {
		return n
	}
	n = newNamespaceStore(namespaceConfig{})
	s.namespaces[ns] = n
	return n
}

// snapshot returns the current namespace map for iteration without holding
// the store lock across per-namespace work.
func (s *Store) snapshot() map[string]*namespaceStore {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*namespaceStore, len(s.namespaces))
	for ns, n := range s.namespaces {
		out[ns] = n
	}
	return out
}

// DefaultTTL returns the configured default TTL for a namespace, for callers
// that want to probe with the namespace's own policy rather than Forever or
// a custom override.
func (s *Store) DefaultTTL(ns string) time.Duration {
	return s.namespace(ns).cfg.ttl
}

// Get retrieves the value stored under key in namespace ns, honoring ttl
// (the caller's choice, not necessarily the namespace default — pass
// Forever to read a stale entry regardless of age).
func (s *Store) Get(ns, key string, ttl time.Duration) (interface{}, bool) {
	n := s.namespace(ns)
	n.mu.RLock()
	defer n.mu.RUnlock()

	e, ok := n.entries[key]
	if !ok {
		return nil, false
	}
	if ttl != Forever && time.Since(e.insertAt) > ttl {
		return nil, false
	}
	return e.value, true
}

// GetWithExtra is Get plus the side payload recorded alongside the value
// (e.g. the media type stored next to compressed image bytes).
func (s *Store) GetWithExtra(ns, key string, ttl time.Duration) (value interface{}, extra interface{}, ok bool) {
	n := s.namespace(ns)
	n.mu.RLock()
	defer n.mu.RUnlock()

	e, found := n.entries[key]
	if !found {
		return nil, nil, false
	}
	if ttl != Forever && time.Since(e.insertAt) > ttl {
		return nil, nil, false
	}
	return e.value, e.extra, true
}

// Set records value (and an optional extra payload) under key in namespace
// ns, stamping the insertion time and enforcing the namespace's size cap by
// evicting the oldest-inserted key on overflow.
func (s *Store) Set(ns, key string, value interface{}, extra interface{}) {
	n := s.namespace(ns)
	n.mu.Lock()
	defer n.mu.Unlock()

	n.seq++
	n.entries[key] = &entry{
		value:     value,
		extra:     extra,
		insertAt:  time.Now(),
		insertSeq: n.seq,
	}
	n.updated = time.Now()
	n.evictLocked()
}

// evictLocked removes the oldest-inserted entries until the namespace is
// back within its cap. Must be called with n.mu held for writing.
func (n *namespaceStore) evictLocked() {
	if n.cfg.cap <= 0 {
		return
	}
	for len(n.entries) > n.cfg.cap {
		var oldestKey string
		oldestSeq := uint64(math.MaxUint64)
		for k, e := range n.entries {
			if e.insertSeq < oldestSeq {
				oldestSeq = e.insertSeq
				oldestKey = k
			}
		}
		delete(n.entries, oldestKey)
	}
}

// Single returns the newest entry in a namespace regardless of its key,
// honoring ttl. Meant for the single-slot list namespaces, where the probing
// caller (a detail lookup warming itself from the cached list) does not know
// which fetch-limit/relay-set key the list was stored under.
func (s *Store) Single(ns string, ttl time.Duration) (string, interface{}, bool) {
	n := s.namespace(ns)
	n.mu.RLock()
	defer n.mu.RUnlock()

	var newestKey string
	var newest *entry
	for k, e := range n.entries {
		if newest == nil || e.insertSeq > newest.insertSeq {
			newestKey, newest = k, e
		}
	}
	if newest == nil {
		return "", nil, false
	}
	if ttl != Forever && time.Since(newest.insertAt) > ttl {
		return "", nil, false
	}
	return newestKey, newest.value, true
}

// ClearAll returns every namespace in the store to the empty state.
func (s *Store) ClearAll() {
	for _, n := range s.snapshot() {
		n.mu.Lock()
		n.entries = make(map[string]*entry)
		n.mu.Unlock()
	}
}

// NamespaceStats reports the count of live entries and the last time the
// namespace was written to.
type NamespaceStats struct {
	Count       int       `json:"count"`
	LastUpdated time.Time `json:"last_updated,omitempty"`
}

// Stats returns a snapshot of per-namespace counts and last-update times.
func (s *Store) Stats() map[string]NamespaceStats {
	namespaces := s.snapshot()
	out := make(map[string]NamespaceStats, len(namespaces))
	for ns, n := range namespaces {
		n.mu.RLock()
		out[ns] = NamespaceStats{Count: len(n.entries), LastUpdated: n.updated}
		n.mu.RUnlock()
	}
	return out
}

// Size returns a best-effort byte estimate per namespace, suitable for a log
// line formatted with humanize.Bytes; estimation is via JSON marshaling,
// which is approximate for non-JSON-shaped values (e.g. raw image bytes)
// but good enough for diagnostics.
func (s *Store) Size() map[string]uint64 {
	namespaces := s.snapshot()
	out := make(map[string]uint64, len(namespaces))
	for ns, n := range namespaces {
		n.mu.RLock()
		var total uint64
		for _, e := range n.entries {
			total += estimateBytes(e.value) + estimateBytes(e.extra)
		}
		n.mu.RUnlock()
		out[ns] = total
	}
	return out
}

// HumanSize is Size rendered through humanize.Bytes for log lines and the
// /status endpoint.
func (s *Store) HumanSize() map[string]string {
	raw := s.Size()
	out := make(map[string]string, len(raw))
	for ns, n := range raw {
		out[ns] = humanize.Bytes(n)
	}
	return out
}

func estimateBytes(v interface{}) uint64 {
	if v == nil {
		return 0
	}
	if b, ok := v.([]byte); ok {
		return uint64(len(b))
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return uint64(len(encoded))
}
