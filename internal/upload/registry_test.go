package upload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T, maxFiles int) (*Registry, *MemoryPreviews) {
	t.Helper()
	previews := NewMemoryPreviews("/previews")
	reg := NewRegistry(RegistryConfig{Previews: previews, MaxFiles: maxFiles})
	return reg, previews
}

func TestRegistry_IngestAppendsInOrder(t *testing.T) {
	reg, previews := newTestRegistry(t, 0)
	files := []RawFile{
		{Name: "a.png", Type: "image/png", Data: []byte("aaa")},
		{Name: "b.png", Type: "image/png", Data: []byte("bbbb")},
	}

	entries, err := reg.Ingest(files)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 2, reg.Len())

	all := reg.Entries()
	for i, entry := range all {
		assert.Equal(t, files[i].Name, entry.Source.Name)
		assert.Equal(t, files[i].Data, entry.Source.Data)
		assert.Equal(t, int64(len(files[i].Data)), entry.Source.Size)
		assert.Equal(t, StatusPending, entry.Status)
		assert.Equal(t, SourceLocal, entry.Source.Kind)
		assert.NotEmpty(t, entry.PreviewURL)
		assert.Nil(t, entry.Progress)
	}
	assert.NotEqual(t, all[0].ID, all[1].ID)
	assert.Equal(t, 2, previews.Live())
}

func TestRegistry_IngestRespectsCapacity(t *testing.T) {
	reg, previews := newTestRegistry(t, 1)

	_, err := reg.Ingest([]RawFile{{Name: "a"}, {Name: "b"}})

	assert.ErrorIs(t, err, ErrRegistryFull)
	assert.Equal(t, 0, reg.Len())
	assert.Zero(t, previews.Acquired())
}

func TestRegistry_PreviewLifecycle(t *testing.T) {
	reg, previews := newTestRegistry(t, 0)
	entries, err := reg.Ingest([]RawFile{{Name: "a"}, {Name: "b"}, {Name: "c"}})
	require.NoError(t, err)

	require.NoError(t, reg.Remove(entries[0].ID))
	assert.ErrorIs(t, reg.Remove(entries[0].ID), ErrUnknownFile)
	assert.Equal(t, int64(1), previews.Released())

	assert.Equal(t, 2, reg.Clear(All))
	assert.Equal(t, int64(3), previews.Acquired())
	assert.Equal(t, int64(3), previews.Released())
	assert.Zero(t, previews.Live())
	assert.Zero(t, reg.Len())
}

func TestRegistry_ClearDefaultKeepsUploaded(t *testing.T) {
	reg, previews := newTestRegistry(t, 0)
	entries, err := reg.Ingest([]RawFile{{Name: "done"}, {Name: "pending"}, {Name: "broken"}})
	require.NoError(t, err)

	gen, err := reg.MarkUploading(entries[0].ID, func() {})
	require.NoError(t, err)
	require.NoError(t, reg.MarkUploaded(entries[0].ID, gen, ServerFile{ID: "srv-1", URL: "http://cdn/done"}))

	gen, err = reg.MarkUploading(entries[2].ID, func() {})
	require.NoError(t, err)
	require.NoError(t, reg.MarkFailed(entries[2].ID, gen, "boom"))

	removed := reg.Clear(nil)

	assert.Equal(t, 2, removed)
	remaining := reg.Entries()
	require.Len(t, remaining, 1)
	assert.Equal(t, entries[0].ID, remaining[0].ID)
	assert.Equal(t, StatusUploaded, remaining[0].Status)
	assert.Equal(t, int64(2), previews.Released())
	assert.Equal(t, 1, previews.Live())
}

func TestRegistry_RemoveUploadedAndUnknown(t *testing.T) {
	reg, _ := newTestRegistry(t, 0)
	entries, err := reg.Ingest([]RawFile{{Name: "a"}})
	require.NoError(t, err)
	gen, err := reg.MarkUploading(entries[0].ID, func() {})
	require.NoError(t, err)
	require.NoError(t, reg.MarkUploaded(entries[0].ID, gen, ServerFile{ID: "x"}))

	require.NoError(t, reg.Remove(entries[0].ID))
	_, ok := reg.Get(entries[0].ID)
	assert.False(t, ok)

	assert.NotPanics(t, func() {
		err := reg.Remove("missing")
		var cerr *ConsistencyError
		assert.ErrorAs(t, err, &cerr)
		assert.Equal(t, "missing", cerr.ID)
	})
}

func TestRegistry_RemoveUploadingCancels(t *testing.T) {
	reg, _ := newTestRegistry(t, 0)
	entries, err := reg.Ingest([]RawFile{{Name: "a"}})
	require.NoError(t, err)

	cancelled := 0
	gen, err := reg.MarkUploading(entries[0].ID, func() { cancelled++ })
	require.NoError(t, err)

	require.NoError(t, reg.Remove(entries[0].ID))
	assert.Equal(t, 1, cancelled)

	assert.ErrorIs(t, reg.MarkProgress(entries[0].ID, gen, NewProgress(1, 2)), ErrUnknownFile)
	assert.ErrorIs(t, reg.MarkUploaded(entries[0].ID, gen, ServerFile{}), ErrUnknownFile)
	assert.Zero(t, reg.Len())
}

func TestRegistry_ProgressAfterTerminalIgnored(t *testing.T) {
	reg, _ := newTestRegistry(t, 0)
	entries, err := reg.Ingest([]RawFile{{Name: "a", Data: []byte("1234")}})
	require.NoError(t, err)
	id := entries[0].ID

	gen, err := reg.MarkUploading(id, func() {})
	require.NoError(t, err)
	require.NoError(t, reg.MarkProgress(id, gen, NewProgress(2, 4)))

	entry, _ := reg.Get(id)
	require.NotNil(t, entry.Progress)
	assert.Equal(t, 50, entry.Progress.Percentage)

	require.NoError(t, reg.MarkUploaded(id, gen, ServerFile{ID: "srv"}))
	assert.ErrorIs(t, reg.MarkProgress(id, gen, NewProgress(4, 4)), ErrInvalidTransition)
	assert.ErrorIs(t, reg.MarkFailed(id, gen, "late"), ErrInvalidTransition)

	entry, _ = reg.Get(id)
	assert.Equal(t, StatusUploaded, entry.Status)
	assert.Nil(t, entry.Progress)
	assert.Empty(t, entry.Error)
	require.NotNil(t, entry.Result)
	assert.Equal(t, "srv", entry.Result.ID)
}

func TestRegistry_StaleGenerationRejected(t *testing.T) {
	reg, _ := newTestRegistry(t, 0)
	entries, err := reg.Ingest([]RawFile{{Name: "a"}})
	require.NoError(t, err)
	id := entries[0].ID

	first, err := reg.MarkUploading(id, func() {})
	require.NoError(t, err)
	require.NoError(t, reg.MarkFailed(id, first, "network"))

	second, err := reg.MarkUploading(id, func() {})
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	assert.ErrorIs(t, reg.MarkProgress(id, first, NewProgress(1, 1)), ErrStaleUpload)
	assert.ErrorIs(t, reg.MarkFailed(id, first, "old"), ErrStaleUpload)

	entry, _ := reg.Get(id)
	assert.Equal(t, StatusUploading, entry.Status)
}

func TestRegistry_StateMachine(t *testing.T) {
	reg, _ := newTestRegistry(t, 0)
	entries, err := reg.Ingest([]RawFile{{Name: "a"}})
	require.NoError(t, err)
	id := entries[0].ID

	assert.ErrorIs(t, reg.Retry(id), ErrInvalidTransition)

	gen, err := reg.MarkUploading(id, func() {})
	require.NoError(t, err)
	_, err = reg.MarkUploading(id, func() {})
	assert.ErrorIs(t, err, ErrInvalidTransition, "only one upload in flight per id")

	require.NoError(t, reg.MarkFailed(id, gen, ""))
	entry, _ := reg.Get(id)
	assert.Equal(t, StatusFailed, entry.Status)
	assert.Equal(t, DefaultFailureMessage, entry.Error)

	require.NoError(t, reg.Retry(id))
	entry, _ = reg.Get(id)
	assert.Equal(t, StatusPending, entry.Status)
	assert.Empty(t, entry.Error)

	gen, err = reg.MarkUploading(id, func() {})
	require.NoError(t, err)
	require.NoError(t, reg.MarkUploaded(id, gen, ServerFile{}))
	_, err = reg.MarkUploading(id, func() {})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRegistry_SeedRemoteReferences(t *testing.T) {
	reg, previews := newTestRegistry(t, 2)

	entries, err := reg.Seed([]RemoteReference{
		{ID: "r1", URL: "http://cdn/r1.png", Name: "r1.png", Size: 10, Type: "image/png"},
		{URL: "http://cdn/r2.png", Name: "r2.png"},
	})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "r1", entries[0].ID)
	assert.NotEmpty(t, entries[1].ID)

	for _, entry := range entries {
		assert.Equal(t, StatusUploaded, entry.Status)
		assert.Equal(t, SourceRemote, entry.Source.Kind)
		assert.Equal(t, entry.Source.URL, entry.PreviewURL)
		assert.False(t, entry.Uploadable())

		_, err := reg.MarkUploading(entry.ID, func() {})
		assert.ErrorIs(t, err, ErrInvalidTransition)
	}
	assert.Zero(t, previews.Acquired())
	assert.Empty(t, reg.Eligible())

	_, err = reg.Seed([]RemoteReference{{ID: "r3"}})
	assert.ErrorIs(t, err, ErrRegistryFull)
}

func TestRegistry_SeedRejectsDuplicates(t *testing.T) {
	reg, _ := newTestRegistry(t, 0)

	_, err := reg.Seed([]RemoteReference{{ID: "dup"}, {ID: "dup"}})

	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Zero(t, reg.Len())
}

func TestRegistry_RetirePreviewsOnSuccess(t *testing.T) {
	previews := NewMemoryPreviews("/previews")
	reg := NewRegistry(RegistryConfig{Previews: previews, RetirePreviews: true})
	entries, err := reg.Ingest([]RawFile{{Name: "a"}})
	require.NoError(t, err)

	gen, err := reg.MarkUploading(entries[0].ID, func() {})
	require.NoError(t, err)
	require.NoError(t, reg.MarkUploaded(entries[0].ID, gen, ServerFile{URL: "http://cdn/a"}))

	entry, _ := reg.Get(entries[0].ID)
	assert.Equal(t, "http://cdn/a", entry.PreviewURL)
	assert.Zero(t, previews.Live())

	require.NoError(t, reg.Remove(entries[0].ID))
	assert.Equal(t, int64(1), previews.Released())
}

func TestRegistry_EventsAreOrdered(t *testing.T) {
	broker := NewBroker(32)
	events, cancel := broker.Subscribe()
	defer cancel()

	reg := NewRegistry(RegistryConfig{Broker: broker})
	entries, err := reg.Ingest([]RawFile{{Name: "a", Data: []byte("xy")}})
	require.NoError(t, err)
	id := entries[0].ID

	gen, err := reg.MarkUploading(id, func() {})
	require.NoError(t, err)
	require.NoError(t, reg.MarkProgress(id, gen, NewProgress(1, 2)))
	require.NoError(t, reg.MarkUploaded(id, gen, ServerFile{ID: "s"}))
	_ = reg.MarkProgress(id, gen, NewProgress(2, 2))
	require.NoError(t, reg.Remove(id))

	var got []EventType
	var statuses []Status
	for i := 0; i < 5; i++ {
		ev := <-events
		got = append(got, ev.Type)
		statuses = append(statuses, ev.Entry.Status)
	}

	assert.Equal(t, []EventType{EventAdded, EventStatus, EventProgress, EventStatus, EventRemoved}, got)
	assert.Equal(t, []Status{StatusPending, StatusUploading, StatusUploading, StatusUploaded, StatusUploaded}, statuses)
	assert.Empty(t, events)
}

func TestBroker_DisconnectsSlowSubscriber(t *testing.T) {
	broker := NewBroker(1)
	events, cancel := broker.Subscribe()
	defer cancel()

	broker.publish(Event{Type: EventAdded})
	broker.publish(Event{Type: EventRemoved})

	first, ok := <-events
	require.True(t, ok)
	assert.Equal(t, EventAdded, first.Type)
	_, ok = <-events
	assert.False(t, ok)
}
