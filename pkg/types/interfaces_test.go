package types

import (
	"context"
	"testing"
	"time"
)

// TestInterfaces verifies that the interfaces can be satisfied by simple types
func TestInterfaces(t *testing.T) {
	var (
		_ BlobStore       = (*mockBlobStore)(nil)
		_ Cache           = (*mockCache)(nil)
		_ MetricsRecorder = (*mockRecorder)(nil)
	)
}

type mockBlobStore struct{}

func (m *mockBlobStore) List(ctx context.Context, prefix string, maxKeys int) ([]ObjectInfo, error) {
	return nil, nil
}

func (m *mockBlobStore) Upload(ctx context.Context, content []byte, fileName, folder string) (*UploadResult, error) {
	return &UploadResult{Success: true, Key: folder + fileName}, nil
}

func (m *mockBlobStore) Fetch(ctx context.Context, url string) ([]byte, error) {
	return nil, nil
}

func (m *mockBlobStore) PublicURL(key string) string { return key }

func (m *mockBlobStore) Delete(ctx context.Context, key string) error { return nil }

type mockCache struct{}

func (m *mockCache) Get(key string) ([]byte, bool)     { return nil, false }
func (m *mockCache) Set(key string, value []byte) error { return nil }
func (m *mockCache) Has(key string) bool                { return false }
func (m *mockCache) Delete(key string) error            { return nil }

type mockRecorder struct{}

func (m *mockRecorder) RecordOperation(operation, kind, outcome string, duration time.Duration) {}
func (m *mockRecorder) RecordProbeSkip(kind, reason string)                                     {}
func (m *mockRecorder) RecordReadSource(kind, source string)                                    {}
func (m *mockRecorder) RecordDelete(kind string, success bool)                                  {}

func TestObjectInfo_ZeroValue(t *testing.T) {
	var info ObjectInfo
	if !info.LastModified.IsZero() {
		t.Error("zero ObjectInfo should have zero LastModified")
	}
	if info.Key != "" {
		t.Error("zero ObjectInfo should have empty key")
	}
}
