package store

import (
	"testing"

	"fyne.io/fyne/v2/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ytget/sharedl/internal/model"
)

func sampleSnapshot() *Snapshot {
	active := model.NewTask("album", "https://share/album", "/data", "pw", true)
	active.URLType = model.URLTypeFolder
	active.Subtasks = []*model.Subtask{
		{URL: "https://share/p1", Dir: active.TempDir(), Name: "p1", Size: 10, Resolved: 10, Status: model.StatusFinish},
		{URL: "https://share/p2", Dir: active.TempDir(), Name: "p2", Size: 20, Resolved: 5, Status: model.StatusPause},
	}
	done := model.NewTask("doc.pdf", "https://share/doc", "/data", "", false)
	done.URLType = model.URLTypeFile
	return &Snapshot{List: []*model.Task{active}, FinishList: []*model.Task{done}, Dir: "/data"}
}

func assertRoundTrip(t *testing.T, kv KV) {
	t.Helper()

	empty, err := LoadSnapshot(kv)
	require.NoError(t, err)
	assert.Empty(t, empty.List)
	assert.Empty(t, empty.FinishList)
	assert.Empty(t, empty.Dir)

	snap := sampleSnapshot()
	require.NoError(t, SaveSnapshot(kv, snap))

	loaded, err := LoadSnapshot(kv)
	require.NoError(t, err)
	assert.Equal(t, "/data", loaded.Dir)
	require.Len(t, loaded.List, 1)
	require.Len(t, loaded.FinishList, 1)

	task := loaded.List[0]
	assert.Equal(t, snap.List[0].ID, task.ID)
	assert.Equal(t, model.URLTypeFolder, task.URLType)
	assert.True(t, task.Merge)
	assert.Equal(t, "pw", task.Pwd)
	require.Len(t, task.Subtasks, 2)
	assert.Equal(t, model.StatusPause, task.Subtasks[1].Status)
	assert.Equal(t, int64(30), task.Total())
	assert.Equal(t, int64(15), task.Resolved())
	assert.Equal(t, "doc.pdf", loaded.FinishList[0].Name)

	// Saving an empty state clears the lists
	require.NoError(t, SaveSnapshot(kv, &Snapshot{Dir: "/other"}))
	loaded, err = LoadSnapshot(kv)
	require.NoError(t, err)
	assert.Empty(t, loaded.List)
	assert.Equal(t, "/other", loaded.Dir)
}

func TestMemory_Snapshot(t *testing.T) {
	assertRoundTrip(t, NewMemory())
}

func TestPreferences_Snapshot(t *testing.T) {
	app := test.NewApp()
	defer app.Quit()

	kv := NewPreferences(app.Preferences(), "tasks.")
	assertRoundTrip(t, kv)

	assert.NotEmpty(t, app.Preferences().String("tasks."+KeyList))
}

func TestSQLite_Snapshot(t *testing.T) {
	kv, err := OpenSQLite(t.TempDir())
	require.NoError(t, err)
	defer kv.Close()

	assertRoundTrip(t, kv)
}

func TestSQLite_Reopen(t *testing.T) {
	dir := t.TempDir()

	kv, err := OpenSQLite(dir)
	require.NoError(t, err)
	require.NoError(t, kv.Set("k", "v1"))
	require.NoError(t, kv.Set("k", "v2"))
	require.NoError(t, kv.Close())

	kv, err = OpenSQLite(dir)
	require.NoError(t, err)
	defer kv.Close()

	v, err := kv.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v2", v)
}

func TestLoadSnapshot_Corrupt(t *testing.T) {
	kv := NewMemory()
	require.NoError(t, kv.Set(KeyList, "{not json"))

	_, err := LoadSnapshot(kv)
	assert.Error(t, err)
}
