package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/memorykeep/docsync/internal/cache"
	"github.com/memorykeep/docsync/internal/events"
	"github.com/memorykeep/docsync/internal/kinds"
	"github.com/memorykeep/docsync/internal/storage/memory"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordedOp struct {
	operation, kind, outcome string
}

type testRecorder struct {
	mu      sync.Mutex
	ops     []recordedOp
	skips   map[string]int
	sources map[string]int
	deletes map[bool]int
}

func newTestRecorder() *testRecorder {
	return &testRecorder{
		skips:   map[string]int{},
		sources: map[string]int{},
		deletes: map[bool]int{},
	}
}

func (r *testRecorder) RecordOperation(operation, kind, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, recordedOp{operation, kind, outcome})
}

func (r *testRecorder) RecordProbeSkip(_, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skips[reason]++
}

func (r *testRecorder) RecordReadSource(_, source string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[source]++
}

func (r *testRecorder) RecordDelete(_ string, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deletes[success]++
}

func (r *testRecorder) skipCount(reason string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.skips[reason]
}

type fixture struct {
	store    *memory.Store
	cache    *cache.MemoryCache
	fallback *cache.MemoryCache
	clock    *testClock
	recorder *testRecorder
	bus      *events.Bus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := newTestClock()
	store := memory.New()
	store.SetClock(clock.Now)
	return &fixture{
		store:    store,
		cache:    cache.NewMemoryCache(0),
		fallback: cache.NewMemoryCache(0),
		clock:    clock,
		recorder: newTestRecorder(),
		bus:      events.NewBus(16, nil),
	}
}

func (f *fixture) options() Options {
	return Options{
		Root:     "docsync",
		Clock:    f.clock.Now,
		Recorder: f.recorder,
		Bus:      f.bus,
	}
}

func (f *fixture) themeEngine(opts Options) *Engine[kinds.Theme] {
	return New(kinds.ThemeKind(), f.store, f.cache, f.fallback, opts)
}

func (f *fixture) namesEngine(opts Options) *Engine[kinds.DisplayNames] {
	return New(kinds.DisplayNamesKind(), f.store, f.cache, f.fallback, opts)
}

// putDoc stores payload as a well-formed envelope for id at folder/name.
func (f *fixture) putDoc(t *testing.T, id Identity, name string, payload any, modified time.Time) string {
	t.Helper()
	data, err := EncodeEnvelope(payload, id, modified)
	require.NoError(t, err)
	key := FolderPath("docsync", id) + name
	f.store.Put(key, data, modified)
	return key
}

func (f *fixture) putRaw(id Identity, name string, data string, modified time.Time) string {
	key := FolderPath("docsync", id) + name
	f.store.Put(key, []byte(data), modified)
	return key
}

func names(m map[string]string) kinds.DisplayNames {
	return kinds.DisplayNames{CustomNames: m}
}
