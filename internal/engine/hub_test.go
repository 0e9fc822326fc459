package engine

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memorykeep/docsync/internal/kinds"
	"github.com/memorykeep/docsync/pkg/errors"
)

func (f *fixture) hub() *Hub {
	return NewHub(f.store, f.cache, f.fallback, f.options())
}

func TestHub_Kinds(t *testing.T) {
	f := newFixture(t)
	h := f.hub()

	assert.Equal(t, []string{
		kinds.NameBirthDate,
		kinds.NameDisplayNames,
		kinds.NameTimeline,
		kinds.NameTheme,
	}, h.Kinds())
	assert.Same(t, f.bus, h.Bus())

	s, ok := h.Syncer(kinds.NameTheme)
	require.True(t, ok)
	assert.Equal(t, "theme", s.Info().Prefix)
}

func TestHub_ReadWriteJSON(t *testing.T) {
	f := newFixture(t)
	h := f.hub()
	ctx := context.Background()

	w := h.Write(ctx, kinds.NameTimeline, "abc", "global",
		json.RawMessage(`{"events":[{"id":"1","title":"Born","date":"1990-01-01"}]}`))
	require.True(t, w.Success, w.Message)
	assert.Equal(t, SourceCloud, w.Source)

	r := h.Read(ctx, kinds.NameTimeline, "abc", "global")
	assert.Equal(t, SourceCloud, r.Source)
	assert.JSONEq(t, `{"events":[{"id":"1","title":"Born","date":"1990-01-01"}]}`, string(r.Data))

	d := h.Read(ctx, kinds.NameBirthDate, "abc", "global")
	assert.Equal(t, SourceDefault, d.Source)
	assert.JSONEq(t, `{"birthDate":""}`, string(d.Data))
}

func TestHub_RejectsBadInput(t *testing.T) {
	f := newFixture(t)
	h := f.hub()
	ctx := context.Background()

	res := h.Read(ctx, "wallpaper", "abc", "global")
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "unknown kind")

	res = h.Write(ctx, "wallpaper", "abc", "global", json.RawMessage(`{}`))
	assert.False(t, res.Success)

	res = h.Write(ctx, kinds.NameTheme, "abc", "global", json.RawMessage(`{"themeId":`))
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "MALFORMED_DOCUMENT")

	res = h.Write(ctx, kinds.NameBirthDate, "abc", "global", json.RawMessage(`{"birthDate":"2999-01-01"}`))
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "future")

	_, err := h.Clean(ctx, "wallpaper", "abc", "global")
	assert.Error(t, err)
	assert.Equal(t, 0, f.store.Calls().Upload)
}

func TestHub_StartupSync(t *testing.T) {
	f := newFixture(t)
	f.putDoc(t, themeID, "theme_abc_global_latest.txt", kinds.Theme{ThemeID: "ocean"}, f.clock.Now())
	f.putNames(t, "s1", map[string]string{"k1": "Alice"})
	h := f.hub()
	ctx := context.Background()

	report := h.StartupSync(ctx, "abc", false)

	assert.False(t, report.Skipped)
	require.Len(t, report.Results, 4)
	assert.Equal(t, SourceCloud, report.Results[kinds.NameTheme].Source)
	assert.JSONEq(t, `{"themeId":"ocean"}`, string(report.Results[kinds.NameTheme].Data))
	assert.Equal(t, SourceCloud, report.Results[kinds.NameDisplayNames].Source)
	assert.JSONEq(t, `{"customNames":{"k1":"Alice"}}`, string(report.Results[kinds.NameDisplayNames].Data))
	assert.Equal(t, SourceDefault, report.Results[kinds.NameTimeline].Source)
	assert.Equal(t, SourceDefault, report.Results[kinds.NameBirthDate].Source)
	assert.Equal(t, 0, f.store.Calls().Upload, "startup sync never writes")

	lists := f.store.Calls().List
	again := h.StartupSync(ctx, "abc", false)
	assert.True(t, again.Skipped)
	assert.Empty(t, again.Results)
	assert.Equal(t, lists, f.store.Calls().List)

	forced := h.StartupSync(ctx, "abc", true)
	assert.False(t, forced.Skipped)
	assert.Greater(t, f.store.Calls().List, lists)

	other := h.StartupSync(ctx, "xyz", false)
	assert.False(t, other.Skipped, "sync state is per owner")
}

func TestHub_StartupSyncRetriesAfterOfflineRun(t *testing.T) {
	f := newFixture(t)
	h := f.hub()
	ctx := context.Background()

	f.store.FailList(errors.NewError(errors.ErrCodeNetworkError, "offline"))
	offline := h.StartupSync(ctx, "abc", false)
	assert.False(t, offline.Skipped)
	assert.Equal(t, SourceDefault, offline.Results[kinds.NameTheme].Source)
	assert.Equal(t, errors.ErrCodeStorageRead, offline.Results[kinds.NameTheme].Code)

	f.store.FailList(nil)
	f.putDoc(t, themeID, "theme_abc_global_latest.txt", kinds.Theme{ThemeID: "ocean"}, f.clock.Now())

	online := h.StartupSync(ctx, "abc", false)
	require.False(t, online.Skipped, "an offline run does not count as synced")
	assert.Equal(t, SourceCloud, online.Results[kinds.NameTheme].Source)

	assert.True(t, h.StartupSync(ctx, "abc", false).Skipped)
}

func TestHub_StartupSyncSharesConcurrentRun(t *testing.T) {
	f := newFixture(t)
	f.putDoc(t, themeID, "theme_abc_global_latest.txt", kinds.Theme{ThemeID: "ocean"}, f.clock.Now())

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f.store.OnFetch(func(string) {
		once.Do(func() {
			close(started)
			<-release
		})
	})

	h := f.hub()
	ctx := context.Background()

	var wg sync.WaitGroup
	reports := make([]StartupReport, 4)
	wg.Add(1)
	go func() {
		defer wg.Done()
		reports[0] = h.StartupSync(ctx, "abc", true)
	}()
	<-started

	for i := 1; i < len(reports); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reports[i] = h.StartupSync(ctx, "abc", true)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, 1, f.store.Calls().Fetch, "one discovery run for all callers")
	for _, r := range reports {
		assert.Equal(t, SourceCloud, r.Results[kinds.NameTheme].Source)
	}
}

func TestHub_Clean(t *testing.T) {
	f := newFixture(t)
	f.putVersions(t, 5)

	report, err := f.hub().Clean(context.Background(), kinds.NameTheme, "abc", "global")

	require.NoError(t, err)
	assert.Equal(t, 2, report.Deleted)
}
