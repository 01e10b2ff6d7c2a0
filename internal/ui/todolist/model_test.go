package todolist

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyhall-dev/studyhall/internal/keys"
	"github.com/studyhall-dev/studyhall/internal/model"
	"github.com/studyhall-dev/studyhall/tests/testutil"
)

// pngHeader is enough of a PNG for content-type sniffing.
var pngHeader = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0}

func newTestModel(client *testutil.FakeClient) Model {
	return New(client, keys.DefaultKeyMap(), 80, 24)
}

func TestAttachImageUploadsAndRecordsRow(t *testing.T) {
	client := testutil.NewFakeClient()
	m := newTestModel(client)
	m.SetUser("user-1")

	path := filepath.Join(t.TempDir(), "notes.png")
	require.NoError(t, os.WriteFile(path, pngHeader, 0o644))

	msg := m.attachImage(model.Todo{ID: "t-1", ListID: "l-1"}, path)()
	done, ok := msg.(mutationDoneMsg)
	require.True(t, ok, "expected mutationDoneMsg, got %T", msg)
	require.NoError(t, done.err)

	require.Len(t, client.ImageRows, 1)
	for _, img := range client.ImageRows {
		assert.Equal(t, "t-1", img.TodoID)
		assert.Equal(t, "l-1", img.ListID)
		assert.Equal(t, "user-1", img.UserID)
	}
}

func TestAttachImageMissingFileSurfacesError(t *testing.T) {
	client := testutil.NewFakeClient()
	m := newTestModel(client)

	msg := m.attachImage(model.Todo{ID: "t-1", ListID: "l-1"}, filepath.Join(t.TempDir(), "missing.png"))()
	done, ok := msg.(mutationDoneMsg)
	require.True(t, ok)
	assert.Error(t, done.err)
	assert.Empty(t, client.ImageRows)
}

func TestLoadTodosCarriesImages(t *testing.T) {
	client := testutil.NewFakeClient()
	client.TodoRows["t-1"] = model.Todo{ID: "t-1", ListID: "l-1", Title: "Read ch. 4"}
	client.ImageRows["img-1"] = model.TodoImage{
		ID:         "img-1",
		TodoID:     "t-1",
		UserID:     "user-1",
		ListID:     "l-1",
		Path:       "user-1/t-1/img-1",
		InsertedAt: time.Now().UTC(),
	}

	m := newTestModel(client)
	m.SetLists([]model.List{{ID: "l-1", Name: "Math"}})

	msg := m.loadTodos("l-1")()
	loaded, ok := msg.(todosLoadedMsg)
	require.True(t, ok)
	require.NoError(t, loaded.err)
	require.Len(t, loaded.images, 1)

	updated, _ := m.Update(loaded)
	require.Len(t, updated.todos, 1)
	require.Len(t, updated.images["t-1"], 1)
	assert.Equal(t, "user-1/t-1/img-1", updated.images["t-1"][0].Path)
}

func TestGroupImagesByTodo(t *testing.T) {
	grouped := groupImages([]model.TodoImage{
		{ID: "a", TodoID: "t-1"},
		{ID: "b", TodoID: "t-2"},
		{ID: "c", TodoID: "t-1"},
	})

	assert.Len(t, grouped["t-1"], 2)
	assert.Len(t, grouped["t-2"], 1)
	assert.Empty(t, grouped["t-3"])
}

func TestSelectListIDRestoresCursor(t *testing.T) {
	m := newTestModel(testutil.NewFakeClient())
	m.SelectListID("l-2")
	m.SetLists([]model.List{
		{ID: "l-1", Name: model.InboxName},
		{ID: "l-2", Name: "Math"},
	})

	list, ok := m.selectedList()
	require.True(t, ok)
	assert.Equal(t, "l-2", list.ID)
}

func TestSelectListIDWaitsForUnknownList(t *testing.T) {
	m := newTestModel(testutil.NewFakeClient())
	m.SelectListID("l-9")
	m.SetLists([]model.List{{ID: "l-1", Name: model.InboxName}})

	// The preference survives until the list shows up.
	list, ok := m.selectedList()
	require.True(t, ok)
	assert.Equal(t, "l-1", list.ID)

	m.SetLists([]model.List{
		{ID: "l-1", Name: model.InboxName},
		{ID: "l-9", Name: "History"},
	})
	list, ok = m.selectedList()
	require.True(t, ok)
	assert.Equal(t, "l-9", list.ID)
}
