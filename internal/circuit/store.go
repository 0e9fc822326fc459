package circuit

import (
	"context"

	"github.com/memorykeep/docsync/pkg/types"
)

// Store wraps a types.BlobStore with one breaker per operation.
type Store struct {
	next     types.BlobStore
	breakers *Manager
}

// NewStore wraps next. Breakers are named after the operation they guard.
func NewStore(next types.BlobStore, config Config) *Store {
	return &Store{next: next, breakers: NewManager(config)}
}

// Breakers exposes the breaker manager for health reporting.
func (s *Store) Breakers() *Manager {
	return s.breakers
}

func (s *Store) List(ctx context.Context, prefix string, maxKeys int) ([]types.ObjectInfo, error) {
	var out []types.ObjectInfo
	err := s.breakers.GetBreaker("list").ExecuteWithContext(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.next.List(ctx, prefix, maxKeys)
		return err
	})
	return out, err
}

func (s *Store) Upload(ctx context.Context, content []byte, fileName, folder string) (*types.UploadResult, error) {
	var out *types.UploadResult
	err := s.breakers.GetBreaker("upload").ExecuteWithContext(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.next.Upload(ctx, content, fileName, folder)
		return err
	})
	return out, err
}

func (s *Store) Fetch(ctx context.Context, url string) ([]byte, error) {
	var out []byte
	err := s.breakers.GetBreaker("fetch").ExecuteWithContext(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.next.Fetch(ctx, url)
		return err
	})
	return out, err
}

func (s *Store) PublicURL(key string) string {
	return s.next.PublicURL(key)
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.breakers.GetBreaker("delete").ExecuteWithContext(ctx, func(ctx context.Context) error {
		return s.next.Delete(ctx, key)
	})
}
