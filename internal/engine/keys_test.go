package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/memorykeep/docsync/internal/kinds"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"abc123", "abc123"},
		{"with space", "with-space"},
		{"a/b\\c", "a-b-c"},
		{"üñí", "---"},
		{"keep_under-score", "keep_under-score"},
		{"", "_"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Sanitize(tt.in), "Sanitize(%q)", tt.in)
	}
}

func TestKeyScheme(t *testing.T) {
	info := kinds.ThemeKind().Info
	id := Identity{OwnerID: "ab c", PartitionID: "global"}

	assert.Equal(t, "docsync/ab-c/global/", FolderPath("docsync", id))
	assert.Equal(t, "docsync/ab-c/global/", FolderPath("/docsync/", id))
	assert.Equal(t, "ab-c/global/", FolderPath("", id))
	assert.Equal(t, "docsync/ab-c/", OwnerPrefix("docsync", "ab c"))
	assert.Equal(t, "theme_ab-c_global_latest.txt", PinnedName(info, id))
	assert.Equal(t, "theme:ab-c:global", CacheKey(info.Name, id))
}

func TestTimestampedName(t *testing.T) {
	info := kinds.TimelineKind().Info
	id := Identity{OwnerID: "abc", PartitionID: "s1"}
	at := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)

	a := TimestampedName(info, id, at)
	b := TimestampedName(info, id, at)

	assert.Regexp(t, `^life_events_abc_20240203_040506_[0-9a-f]{8}\.txt$`, a)
	assert.NotEqual(t, a, b, "hash suffix makes names unique")
	assert.Equal(t, RuleKeyword, NewMatcher(info, id).Reason(a))
	assert.True(t, timestampedShape.MatchString(a))
}

func TestPartitionFromKey(t *testing.T) {
	tests := []struct {
		key       string
		partition string
		ok        bool
	}{
		{"docsync/abc/s1/custom_names_abc_s1_latest.txt", "s1", true},
		{"docsync/abc/global/x.txt", "global", true},
		{"docsync/abc/x.txt", "", false},
		{"docsync/other/s1/x.txt", "", false},
		{"docsync/abcd/s1/x.txt", "", false},
	}
	for _, tt := range tests {
		got, ok := PartitionFromKey("docsync", "abc", tt.key)
		assert.Equal(t, tt.ok, ok, tt.key)
		assert.Equal(t, tt.partition, got, tt.key)
	}
}
