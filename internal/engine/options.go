package engine

import (
	"log/slog"
	"time"

	"github.com/memorykeep/docsync/internal/events"
	"github.com/memorykeep/docsync/pkg/types"
)

// Options tunes an engine. Zero values take the defaults below.
type Options struct {
	// Root is the top-level folder of every key.
	Root string
	// ListPageSize is the maxKeys of the first listing request.
	ListPageSize int
	// ReducedPageSize is used once when the store rejects ListPageSize as too large.
	ReducedPageSize int
	// RetentionThreshold is how many ranked candidates the cleaner keeps.
	RetentionThreshold int
	// CleanupOnWrite runs the cleaner in the background after each cloud write.
	CleanupOnWrite bool
	// WriteTimestamped writes versioned filenames instead of the pinned name.
	WriteTimestamped bool
	// CleanupTimeout bounds a background cleanup pass.
	CleanupTimeout time.Duration

	Clock    func() time.Time
	Logger   *slog.Logger
	Recorder types.MetricsRecorder
	Bus      *events.Bus
}

const (
	DefaultRoot               = "docsync"
	DefaultListPageSize       = 1000
	DefaultReducedPageSize    = 100
	DefaultRetentionThreshold = 3
	DefaultPartition          = "global"
)

func (o Options) withDefaults() Options {
	if o.Root == "" {
		o.Root = DefaultRoot
	}
	if o.ListPageSize <= 0 {
		o.ListPageSize = DefaultListPageSize
	}
	if o.ReducedPageSize <= 0 {
		o.ReducedPageSize = DefaultReducedPageSize
	}
	if o.ReducedPageSize > o.ListPageSize {
		o.ReducedPageSize = o.ListPageSize
	}
	if o.RetentionThreshold <= 0 {
		o.RetentionThreshold = DefaultRetentionThreshold
	}
	if o.CleanupTimeout <= 0 {
		o.CleanupTimeout = 30 * time.Second
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Recorder == nil {
		o.Recorder = NopRecorder{}
	}
	if o.Bus == nil {
		o.Bus = events.NewBus(0, o.Logger)
	}
	return o
}

// NopRecorder discards metrics.
type NopRecorder struct{}

func (NopRecorder) RecordOperation(string, string, string, time.Duration) {}
func (NopRecorder) RecordProbeSkip(string, string)                         {}
func (NopRecorder) RecordReadSource(string, string)                        {}
func (NopRecorder) RecordDelete(string, bool)                              {}
