package platform

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateDirectoryIfNotExists(t *testing.T) {
	fsys := afero.NewMemMapFs()
	testDir := filepath.Join("/data", "test_dir")

	exists, err := afero.DirExists(fsys, testDir)
	require.NoError(t, err)
	require.False(t, exists)

	require.NoError(t, CreateDirectoryIfNotExists(fsys, testDir))
	exists, err = afero.DirExists(fsys, testDir)
	require.NoError(t, err)
	assert.True(t, exists)

	// Second call should not fail
	assert.NoError(t, CreateDirectoryIfNotExists(fsys, testDir))
}

func TestGetHomeDownloadsDir(t *testing.T) {
	downloadsDir, err := GetHomeDownloadsDir()
	require.NoError(t, err)
	assert.Equal(t, "Downloads", filepath.Base(downloadsDir))
}

func TestListFiles_SortedAndSkipsDirs(t *testing.T) {
	fsys := afero.NewMemMapFs()
	dir := "/tmp/parts"
	require.NoError(t, afero.WriteFile(fsys, filepath.Join(dir, "p3"), []byte("C"), DefaultFilePermissions))
	require.NoError(t, afero.WriteFile(fsys, filepath.Join(dir, "p1"), []byte("A"), DefaultFilePermissions))
	require.NoError(t, afero.WriteFile(fsys, filepath.Join(dir, "p2"), []byte("B"), DefaultFilePermissions))
	require.NoError(t, fsys.MkdirAll(filepath.Join(dir, "nested"), DefaultDirPermissions))

	names, err := ListFiles(fsys, dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2", "p3"}, names)

	_, err = ListFiles(fsys, "/missing")
	assert.Error(t, err)
}

func TestMergeFiles(t *testing.T) {
	fsys := afero.NewMemMapFs()
	dir := "/data/movie.bin.downloading"
	parts := map[string]string{"p2": "B", "p3": "C", "p1": "A"}
	for name, content := range parts {
		require.NoError(t, afero.WriteFile(fsys, filepath.Join(dir, name), []byte(content), DefaultFilePermissions))
	}

	dest := "/data/movie.bin"
	require.NoError(t, afero.WriteFile(fsys, dest, []byte("stale content"), DefaultFilePermissions))
	require.NoError(t, MergeFiles(fsys, dir, dest))

	data, err := afero.ReadFile(fsys, dest)
	require.NoError(t, err)
	assert.Equal(t, "ABC", string(data))

	// Parts stay in place; removal is up to the caller
	names, err := ListFiles(fsys, dir)
	require.NoError(t, err)
	assert.Len(t, names, 3)
}

func TestRestoreFileName(t *testing.T) {
	tests := []struct {
		name     string
		expected string
	}{
		{"movie.mkv.zip", "movie.mkv"},
		{"movie.mkv.ZIP", "movie.mkv"},
		{"archive.zip", "archive.zip"},
		{"notes.txt", "notes.txt"},
		{".zip", ".zip"},
		{"a.b.c.zip", "a.b.c"},
	}

	for _, test := range tests {
		result := RestoreFileName(test.name, DefaultDisguiseExtensions)
		assert.Equal(t, test.expected, result, "RestoreFileName(%q)", test.name)
	}

	assert.Equal(t, "movie.mkv.zip", RestoreFileName("movie.mkv.zip", nil))
}

func TestDeriveFileName(t *testing.T) {
	tests := []struct {
		url      string
		index    int
		expected string
	}{
		{"https://share.example/abc", 0, "abc"},
		{"https://share.example/files/report.pdf?x=1", 0, "report.pdf"},
		{"https://share.example/", 2, "file_2"},
		{"https://share.example", 3, "file_3"},
		{"://bad", 4, "file_4"},
	}

	for _, test := range tests {
		assert.Equal(t, test.expected, DeriveFileName(test.url, test.index), "DeriveFileName(%q)", test.url)
	}
}

func TestCheckFreeSpace(t *testing.T) {
	dir := t.TempDir()

	assert.NoError(t, CheckFreeSpace(dir, 0))
	assert.NoError(t, CheckFreeSpace(filepath.Join(dir, "not", "created", "yet"), 1))

	err := CheckFreeSpace(dir, 1<<62)
	assert.True(t, errors.Is(err, ErrInsufficientSpace), "expected ErrInsufficientSpace, got %v", err)
}

func TestOpenInFileManager_NonExistentFile(t *testing.T) {
	err := OpenInFileManager(filepath.Join(t.TempDir(), "nonexistent.txt"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file does not exist")
}
