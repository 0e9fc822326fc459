// Package kinds defines the document kinds the sync engine persists: their
// payload types, naming, defaults and shape validation.
package kinds

import (
	"fmt"
	"sort"
	"time"

	"github.com/memorykeep/docsync/pkg/errors"
)

// Kind names as they appear in cache keys, filenames and the HTTP API.
const (
	NameTheme        = "theme"
	NameDisplayNames = "custom_names"
	NameTimeline     = "life_events"
	NameBirthDate    = "birth_date"
)

// Info is the kind metadata used for naming and discovery.
type Info struct {
	// Name identifies the kind in cache keys and events.
	Name string
	// Prefix starts every filename written for the kind.
	Prefix string
	// Keyword marks a filename as belonging to the kind.
	Keyword string
	// Aggregated kinds are merged across all of an owner's partitions.
	Aggregated bool
}

// Kind binds Info to a payload type.
type Kind[T any] struct {
	Info
	Default  func() T
	Validate func(T) error
}

// Theme is the selected presentation theme.
type Theme struct {
	ThemeID string `json:"themeId"`
}

// DisplayNames maps item ids to user-chosen display names.
type DisplayNames struct {
	CustomNames map[string]string `json:"customNames"`
}

// LifeEvent is one entry of the timeline.
type LifeEvent struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Date        string `json:"date"`
	Description string `json:"description"`
}

// Timeline is the owner's list of life events.
type Timeline struct {
	Events []LifeEvent `json:"events"`
}

// BirthDate holds a calendar date as YYYY-MM-DD. The empty value is only
// ever served as the default; stored documents must carry a date.
type BirthDate struct {
	BirthDate string `json:"birthDate"`
}

// DateLayout is the wire format of BirthDate and LifeEvent.Date.
const DateLayout = "2006-01-02"

// ThemeKind returns the theme selection kind.
func ThemeKind() Kind[Theme] {
	return Kind[Theme]{
		Info:    Info{Name: NameTheme, Prefix: "theme", Keyword: "theme"},
		Default: func() Theme { return Theme{ThemeID: "default"} },
		Validate: func(t Theme) error {
			if t.ThemeID == "" {
				return invalid(NameTheme, "themeId is empty")
			}
			return nil
		},
	}
}

// DisplayNamesKind returns the display-name map kind. It is the only
// aggregated kind.
func DisplayNamesKind() Kind[DisplayNames] {
	return Kind[DisplayNames]{
		Info:    Info{Name: NameDisplayNames, Prefix: "custom_names", Keyword: "custom_names", Aggregated: true},
		Default: func() DisplayNames { return DisplayNames{CustomNames: map[string]string{}} },
		Validate: func(d DisplayNames) error {
			if d.CustomNames == nil {
				return invalid(NameDisplayNames, "customNames is missing")
			}
			return nil
		},
	}
}

// TimelineKind returns the life event list kind.
func TimelineKind() Kind[Timeline] {
	return Kind[Timeline]{
		Info:    Info{Name: NameTimeline, Prefix: "life_events", Keyword: "life_events"},
		Default: func() Timeline { return Timeline{Events: []LifeEvent{}} },
		Validate: func(tl Timeline) error {
			if tl.Events == nil {
				return invalid(NameTimeline, "events is missing")
			}
			for i, e := range tl.Events {
				if e.ID == "" || e.Title == "" {
					return invalid(NameTimeline, fmt.Sprintf("event %d needs an id and a title", i))
				}
			}
			return nil
		},
	}
}

// BirthDateKind returns the birth date kind. now supplies today's date; nil
// uses the wall clock.
func BirthDateKind(now func() time.Time) Kind[BirthDate] {
	if now == nil {
		now = time.Now
	}
	return Kind[BirthDate]{
		Info:    Info{Name: NameBirthDate, Prefix: "birth_date", Keyword: "birth_date"},
		Default: func() BirthDate { return BirthDate{} },
		Validate: func(b BirthDate) error {
			if b.BirthDate == "" {
				return invalid(NameBirthDate, "birthDate is empty")
			}
			d, err := time.Parse(DateLayout, b.BirthDate)
			if err != nil {
				return invalid(NameBirthDate, "birthDate is not YYYY-MM-DD")
			}
			today := now().UTC().Truncate(24 * time.Hour)
			if d.After(today) {
				return invalid(NameBirthDate, "birthDate is in the future")
			}
			return nil
		},
	}
}

// All returns the metadata of every kind, sorted by name.
func All() []Info {
	infos := []Info{
		ThemeKind().Info,
		DisplayNamesKind().Info,
		TimelineKind().Info,
		BirthDateKind(nil).Info,
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Lookup returns the metadata for name.
func Lookup(name string) (Info, bool) {
	for _, info := range All() {
		if info.Name == name {
			return info, true
		}
	}
	return Info{}, false
}

func invalid(kind, msg string) error {
	return errors.NewError(errors.ErrCodeValidationFailed, msg).
		WithComponent("kinds").
		WithContext("kind", kind)
}
