package engine

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/memorykeep/docsync/internal/kinds"
)

// AggregatePartition is the partition the merged display-name map is cached
// under. It never appears in the blob store.
const AggregatePartition = "_all"

var unsafeSegment = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// Identity addresses one logical document of a kind.
type Identity struct {
	OwnerID     string `json:"ownerId"`
	PartitionID string `json:"partitionId"`
}

// Sanitize maps s onto the characters allowed in a key segment.
func Sanitize(s string) string {
	if s == "" {
		return "_"
	}
	return unsafeSegment.ReplaceAllString(s, "-")
}

// Normalize returns id with both segments sanitized.
func (id Identity) Normalize() Identity {
	return Identity{OwnerID: Sanitize(id.OwnerID), PartitionID: Sanitize(id.PartitionID)}
}

func (id Identity) String() string {
	return id.OwnerID + "/" + id.PartitionID
}

// OwnerPrefix is the listing prefix covering every partition of owner.
func OwnerPrefix(root, owner string) string {
	return joinSegments(root, Sanitize(owner)) + "/"
}

// FolderPath is the folder holding every blob of id.
func FolderPath(root string, id Identity) string {
	n := id.Normalize()
	return joinSegments(root, n.OwnerID, n.PartitionID) + "/"
}

// PinnedName is the canonical filename of id's current document.
func PinnedName(info kinds.Info, id Identity) string {
	n := id.Normalize()
	return fmt.Sprintf("%s_%s_%s_latest.txt", info.Prefix, n.OwnerID, n.PartitionID)
}

// TimestampedName is the filename a legacy writer uses for a version written at t.
func TimestampedName(info kinds.Info, id Identity, t time.Time) string {
	n := id.Normalize()
	hash := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s_%s_%s_%s.txt", info.Prefix, n.OwnerID, t.UTC().Format("20060102_150405"), hash)
}

// PartitionFromKey extracts the partition segment of a key listed under
// OwnerPrefix(root, owner). Keys directly under the owner folder have none.
func PartitionFromKey(root, owner, key string) (string, bool) {
	rest, ok := strings.CutPrefix(key, OwnerPrefix(root, owner))
	if !ok {
		return "", false
	}
	partition, _, found := strings.Cut(rest, "/")
	if !found || partition == "" {
		return "", false
	}
	return partition, true
}

// CacheKey addresses id's entry in the local cache and fallback store.
func CacheKey(kind string, id Identity) string {
	n := id.Normalize()
	return kind + ":" + n.OwnerID + ":" + n.PartitionID
}

func baseName(key string) string {
	if i := strings.LastIndexByte(key, '/'); i >= 0 {
		return key[i+1:]
	}
	return key
}

func joinSegments(root string, segments ...string) string {
	root = strings.Trim(root, "/")
	if root == "" {
		return strings.Join(segments, "/")
	}
	return root + "/" + strings.Join(segments, "/")
}
