package engine

import (
	"sort"

	"github.com/memorykeep/docsync/pkg/types"
)

// Filter keeps the candidates accepted by m, in listing order.
func Filter(m Matcher, listed []types.ObjectInfo) []types.ObjectInfo {
	out := make([]types.ObjectInfo, 0, len(listed))
	for _, obj := range listed {
		if m.Match(obj.Key) {
			out = append(out, obj)
		}
	}
	return out
}

// Rank orders candidates newest-first with the pinned name ahead of
// everything. Equal modification times keep listing order, so the winner
// of a tie depends on the store's listing.
func Rank(candidates []types.ObjectInfo, pinned string) []types.ObjectInfo {
	out := make([]types.ObjectInfo, len(candidates))
	copy(out, candidates)

	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := baseName(out[i].Key) == pinned, baseName(out[j].Key) == pinned
		if pi != pj {
			return pi
		}
		return out[i].LastModified.After(out[j].LastModified)
	})
	return out
}
