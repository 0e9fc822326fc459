// Package memory provides an in-process types.BlobStore with failure
// injection. It backs the "memory" storage backend and the engine tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/memorykeep/docsync/pkg/errors"
	"github.com/memorykeep/docsync/pkg/types"
)

const urlScheme = "mem://"

type object struct {
	data         []byte
	lastModified time.Time
	seq          int
}

// Store is a thread-safe in-memory blob store. Listings are returned in
// insertion order, which keeps ranking ties reproducible in tests.
type Store struct {
	mu      sync.Mutex
	objects map[string]*object
	seq     int
	now     func() time.Time

	// failure injection
	listErr     error
	uploadErr   error
	deleteErr   map[string]error
	fetchErr    map[string]error
	maxListKeys int
	fetchHook   func(key string)

	calls Calls
}

// Calls counts operations issued against the store.
type Calls struct {
	List      int
	ListSizes []int
	Upload    int
	Fetch     int
	Fetched   []string
	Delete    int
	Deleted   []string
}

// New creates an empty store.
func New() *Store {
	return &Store{
		objects:   make(map[string]*object),
		deleteErr: make(map[string]error),
		fetchErr:  make(map[string]error),
		now:       time.Now,
	}
}

// SetClock replaces the clock used to stamp LastModified on upload.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Put stores data at key with an explicit modification time.
func (s *Store) Put(key string, data []byte, lastModified time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(key, data, lastModified)
}

func (s *Store) put(key string, data []byte, lastModified time.Time) {
	buf := make([]byte, len(data))
	copy(buf, data)
	if existing, ok := s.objects[key]; ok {
		existing.data = buf
		existing.lastModified = lastModified
		return
	}
	s.seq++
	s.objects[key] = &object{data: buf, lastModified: lastModified, seq: s.seq}
}

// Get returns the raw content at key.
func (s *Store) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), obj.data...), true
}

// Keys returns all keys in insertion order.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedKeys("")
}

// FailList makes every List call return err. Nil clears it.
func (s *Store) FailList(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listErr = err
}

// FailUpload makes every Upload call return err. Nil clears it.
func (s *Store) FailUpload(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploadErr = err
}

// FailFetch makes fetching key return err.
func (s *Store) FailFetch(key string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchErr[key] = err
}

// FailDelete makes deleting key return err.
func (s *Store) FailDelete(key string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteErr[key] = err
}

// LimitListKeys makes List reject any maxKeys above limit with
// ErrCodeRequestTooLarge. Zero removes the limit.
func (s *Store) LimitListKeys(limit int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxListKeys = limit
}

// OnFetch registers a hook called with the key of every fetch.
func (s *Store) OnFetch(hook func(key string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchHook = hook
}

// Calls returns a snapshot of the operation counters.
func (s *Store) Calls() Calls {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.calls
	c.ListSizes = append([]int(nil), s.calls.ListSizes...)
	c.Fetched = append([]string(nil), s.calls.Fetched...)
	c.Deleted = append([]string(nil), s.calls.Deleted...)
	return c
}

// ResetCalls zeroes the operation counters.
func (s *Store) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = Calls{}
}

// List implements types.BlobStore.
func (s *Store) List(ctx context.Context, prefix string, maxKeys int) ([]types.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeOperationCanceled, "list canceled")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls.List++
	s.calls.ListSizes = append(s.calls.ListSizes, maxKeys)

	if s.listErr != nil {
		return nil, s.listErr
	}
	if s.maxListKeys > 0 && maxKeys > s.maxListKeys {
		return nil, errors.NewError(errors.ErrCodeRequestTooLarge, "requested page exceeds store limit").
			WithComponent("memory-store").
			WithOperation("list")
	}

	keys := s.sortedKeys(prefix)
	if maxKeys > 0 && len(keys) > maxKeys {
		keys = keys[:maxKeys]
	}

	out := make([]types.ObjectInfo, 0, len(keys))
	for _, k := range keys {
		obj := s.objects[k]
		out = append(out, types.ObjectInfo{
			Key:          k,
			Size:         int64(len(obj.data)),
			LastModified: obj.lastModified,
			ContentType:  "text/plain",
		})
	}
	return out, nil
}

// Upload implements types.BlobStore.
func (s *Store) Upload(ctx context.Context, content []byte, fileName, folder string) (*types.UploadResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeOperationCanceled, "upload canceled")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls.Upload++
	if s.uploadErr != nil {
		return nil, s.uploadErr
	}

	key := strings.TrimSuffix(folder, "/") + "/" + fileName
	if folder == "" {
		key = fileName
	}
	s.put(key, content, s.now())

	return &types.UploadResult{Success: true, URL: urlScheme + key, Key: key}, nil
}

// Fetch implements types.BlobStore.
func (s *Store) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeOperationCanceled, "fetch canceled")
	}

	s.mu.Lock()
	key := strings.TrimPrefix(url, urlScheme)
	s.calls.Fetch++
	s.calls.Fetched = append(s.calls.Fetched, key)
	hook := s.fetchHook
	failure := s.fetchErr[key]
	obj, ok := s.objects[key]
	var data []byte
	if ok {
		data = append([]byte(nil), obj.data...)
	}
	s.mu.Unlock()

	if hook != nil {
		hook(key)
	}
	if failure != nil {
		return nil, failure
	}
	if !ok {
		return nil, errors.NewError(errors.ErrCodeObjectNotFound, "object not found").
			WithComponent("memory-store").
			WithContext("key", key)
	}
	return data, nil
}

// PublicURL implements types.BlobStore.
func (s *Store) PublicURL(key string) string {
	return urlScheme + key
}

// Delete implements types.BlobStore.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeOperationCanceled, "delete canceled")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls.Delete++
	s.calls.Deleted = append(s.calls.Deleted, key)
	if err := s.deleteErr[key]; err != nil {
		return err
	}
	delete(s.objects, key)
	return nil
}

func (s *Store) sortedKeys(prefix string) []string {
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		return s.objects[keys[i]].seq < s.objects[keys[j]].seq
	})
	return keys
}
