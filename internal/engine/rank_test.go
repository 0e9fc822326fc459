package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/memorykeep/docsync/pkg/types"
)

func keysOf(objs []types.ObjectInfo) []string {
	out := make([]string, len(objs))
	for i, o := range objs {
		out[i] = o.Key
	}
	return out
}

func TestRank(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	listed := []types.ObjectInfo{
		{Key: "f/old.txt", LastModified: base},
		{Key: "f/tie-a.txt", LastModified: base.Add(time.Hour)},
		{Key: "f/pinned.txt", LastModified: base.Add(-time.Hour)},
		{Key: "f/new.txt", LastModified: base.Add(2 * time.Hour)},
		{Key: "f/tie-b.txt", LastModified: base.Add(time.Hour)},
	}

	ranked := Rank(listed, "pinned.txt")

	assert.Equal(t, []string{
		"f/pinned.txt",
		"f/new.txt",
		"f/tie-a.txt",
		"f/tie-b.txt",
		"f/old.txt",
	}, keysOf(ranked))
	assert.Equal(t, "f/old.txt", listed[0].Key, "input is not reordered")
}

func TestFilter_KeepsListingOrder(t *testing.T) {
	m := Matcher{pinned: "theme_abc_global_latest.txt", keyword: "theme"}
	listed := []types.ObjectInfo{
		{Key: "f/theme_b.txt"},
		{Key: "f/avatar.png"},
		{Key: "f/theme_a.txt"},
	}
	assert.Equal(t, []string{"f/theme_b.txt", "f/theme_a.txt"}, keysOf(Filter(m, listed)))
}
