package upload

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDropzone(t *testing.T, rules Rules) (*Dropzone, *Registry, *MemoryPreviews) {
	t.Helper()
	previews := NewMemoryPreviews("/previews")
	reg := NewRegistry(RegistryConfig{Previews: previews, MaxFiles: rules.MaxFiles})
	return NewDropzone(NewValidator(rules), reg, nil), reg, previews
}

func TestDropzone_DragStateDoesNotIngest(t *testing.T) {
	dz, reg, _ := newTestDropzone(t, imageRules())

	assert.False(t, dz.Dragging())
	dz.DragEnter()
	dz.DragOver()
	assert.True(t, dz.Dragging())
	assert.Zero(t, reg.Len())

	dz.DragLeave()
	assert.False(t, dz.Dragging())

	dz.DragEnter()
	result := dz.Drop([]RawFile{pngFile("a.png", 10)})
	assert.False(t, dz.Dragging())
	assert.NoError(t, result.Err)
	assert.Len(t, result.Accepted, 1)
	assert.Equal(t, 1, reg.Len())
}

func TestDropzone_EmptyDropIsNoop(t *testing.T) {
	dz, reg, _ := newTestDropzone(t, imageRules())
	dz.DragEnter()

	result := dz.Drop(nil)

	assert.NoError(t, result.Err)
	assert.Empty(t, result.Accepted)
	assert.Empty(t, dz.Errors())
	assert.False(t, dz.Dragging())
	assert.Zero(t, reg.Len())
}

func TestDropzone_PartialBatch(t *testing.T) {
	dz, reg, previews := newTestDropzone(t, imageRules())

	result := dz.Select([]RawFile{
		pngFile("ok.png", 10),
		{Name: "notes.txt", Type: "text/plain", Data: []byte("x")},
		pngFile("ok2.png", 10),
	})

	require.Len(t, result.Accepted, 2)
	require.Len(t, result.Rejected, 1)
	assert.ErrorIs(t, result.Err, ErrInvalidFileType)
	assert.Equal(t, []string{"invalid file type"}, dz.Errors())
	assert.Equal(t, 2, reg.Len())
	assert.Equal(t, int64(2), previews.Acquired())

	dz.Select([]RawFile{pngFile("more.png", 1)})
	assert.Empty(t, dz.Errors(), "a clean batch clears the previous message")
}

func TestDropzone_RejectedBatchLeavesRegistryUntouched(t *testing.T) {
	dz, reg, previews := newTestDropzone(t, imageRules())
	dz.Select([]RawFile{pngFile("keep.png", 10)})
	before := reg.Entries()

	result := dz.Drop([]RawFile{
		{Name: "a.txt", Type: "text/plain"},
		{Name: "huge.png", Type: "image/png", Size: 50 * 1024 * 1024},
	})

	assert.Empty(t, result.Accepted)
	assert.Len(t, result.Rejected, 2)
	assert.Equal(t, before, reg.Entries())
	assert.Equal(t, int64(1), previews.Acquired())
	assert.Equal(t, []string{"invalid file type"}, dz.Errors())

	dz.ClearErrors()
	assert.Empty(t, dz.Errors())
}

func TestDropzone_MaxFilesAcrossBatches(t *testing.T) {
	rules := imageRules()
	rules.MaxFiles = 2
	dz, reg, _ := newTestDropzone(t, rules)

	dz.Drop([]RawFile{pngFile("a.png", 1024)})
	result := dz.Drop([]RawFile{pngFile("b.png", 1024), pngFile("c.png", 1024)})

	assert.Len(t, result.Accepted, 1)
	assert.ErrorIs(t, result.Err, ErrTooManyFiles)
	assert.Equal(t, 2, reg.Len())
}

func TestDropzone_SingleModeReplacesPending(t *testing.T) {
	rules := imageRules()
	rules.Multiple = false
	dz, reg, previews := newTestDropzone(t, rules)

	dz.Select([]RawFile{pngFile("first.png", 1)})
	result := dz.Select([]RawFile{pngFile("second.png", 1), pngFile("third.png", 1)})

	require.Len(t, result.Accepted, 1)
	entries := reg.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "second.png", entries[0].Source.Name)
	assert.Equal(t, int64(1), previews.Released())
}

func TestMemoryPreviews_ServesUntilReleased(t *testing.T) {
	previews := NewMemoryPreviews("previews")
	reg := NewRegistry(RegistryConfig{Previews: previews})
	entries, err := reg.Ingest([]RawFile{{Name: "a.png", Type: "image/png", Data: []byte("pixels")}})
	require.NoError(t, err)

	url := entries[0].PreviewURL
	assert.Contains(t, url, "/previews/")

	rec := httptest.NewRecorder()
	previews.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Equal(t, "pixels", string(body))
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	require.NoError(t, reg.Remove(entries[0].ID))

	rec = httptest.NewRecorder()
	previews.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
