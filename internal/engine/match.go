package engine

import (
	"regexp"
	"strings"

	"github.com/memorykeep/docsync/internal/kinds"
)

// Rule names the filename shape that made a blob a candidate.
type Rule int

const (
	RuleNone Rule = iota
	// RulePinned: the exact pinned name of the identity
	RulePinned
	// RuleKeyword: the filename contains the kind keyword
	RuleKeyword
	// RuleTimestamped: the filename ends in the generic date/time/hash shape
	RuleTimestamped
)

func (r Rule) String() string {
	switch r {
	case RulePinned:
		return "pinned"
	case RuleKeyword:
		return "keyword"
	case RuleTimestamped:
		return "timestamped"
	default:
		return "none"
	}
}

// timestampedShape matches names written by any historical writer version,
// regardless of kind prefix.
var timestampedShape = regexp.MustCompile(`\d{8}_\d{6}_[0-9a-f]{8}\.txt$`)

// Matcher decides which listed blobs may hold a document of one identity.
// The three accepted shapes are deliberately loose: content validation
// during probing rejects anything that matched by accident.
type Matcher struct {
	pinned  string
	keyword string
	prefix  string
}

// NewMatcher builds the matcher for id.
func NewMatcher(info kinds.Info, id Identity) Matcher {
	return Matcher{pinned: PinnedName(info, id), keyword: info.Keyword, prefix: info.Prefix + "_"}
}

// Pinned returns the pinned filename the matcher prefers.
func (m Matcher) Pinned() string {
	return m.pinned
}

// Reason reports the first rule name satisfies. name may be a full key.
func (m Matcher) Reason(name string) Rule {
	name = baseName(name)
	switch {
	case name == m.pinned:
		return RulePinned
	case m.keyword != "" && strings.Contains(name, m.keyword):
		return RuleKeyword
	case timestampedShape.MatchString(name):
		return RuleTimestamped
	default:
		return RuleNone
	}
}

// Match reports whether name is a candidate.
func (m Matcher) Match(name string) bool {
	return m.Reason(name) != RuleNone
}

// Owns reports whether name was written under the kind's own prefix. Only
// owned blobs may be deleted: the timestamped rule also admits other kinds'
// versions, which probing would reject but cleanup never probes.
func (m Matcher) Owns(name string) bool {
	return strings.HasPrefix(baseName(name), m.prefix)
}
