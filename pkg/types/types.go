package types

import (
	"time"
)

// ObjectInfo is a raw listing entry. It is a candidate only: nothing is known
// about its content until it has been fetched and decoded.
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
	ContentType  string    `json:"content_type"`
}

// UploadResult reports where an uploaded blob landed
type UploadResult struct {
	Success bool   `json:"success"`
	URL     string `json:"url"`
	Key     string `json:"key"`
}

// CacheStats represents cache statistics
type CacheStats struct {
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	Writes  uint64  `json:"writes"`
	Entries int     `json:"entries"`
	HitRate float64 `json:"hit_rate"`
}
