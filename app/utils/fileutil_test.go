package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureParentDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a", "b", "out.mp4")

	require.NoError(t, EnsureParentDir(path))
	stat, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.True(t, stat.IsDir())

	assert.NoError(t, EnsureParentDir("out.mp4"))
}

func TestRemoveIfExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stale.mp4")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	require.NoError(t, RemoveIfExists(path))
	_, ok := FileSize(path)
	assert.False(t, ok)

	assert.NoError(t, RemoveIfExists(path))
}

func TestFileSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.mp4")
	require.NoError(t, os.WriteFile(path, []byte("12345"), 0644))

	size, ok := FileSize(path)
	assert.True(t, ok)
	assert.EqualValues(t, 5, size)

	_, ok = FileSize(dir)
	assert.False(t, ok)
}

func TestReplaceExt(t *testing.T) {
	assert.Equal(t, "/out/a.jpg", ReplaceExt("/out/a.mp4", ".jpg"))
	assert.Equal(t, "/out/a.jpg", ReplaceExt("/out/a.mp4", "jpg"))
	assert.Equal(t, "/out/a", ReplaceExt("/out/a.mp4", ""))
}

func TestHasExtension(t *testing.T) {
	exts := []string{".mp4", "MOV"}
	assert.True(t, HasExtension("/in/a.MP4", exts))
	assert.True(t, HasExtension("/in/a.mov", exts))
	assert.False(t, HasExtension("/in/a.mkv", exts))
	assert.True(t, HasExtension("/in/a.mkv", nil))
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("secret")
	require.NoError(t, err)

	assert.True(t, VerifyPassword("secret", hash))
	assert.ErrorIs(t, CheckPassword("wrong", hash), ErrPasswordMismatch)
}

func TestIsSubPath(t *testing.T) {
	assert.True(t, IsSubPath("/data/out", "/data/out"))
	assert.True(t, IsSubPath("/data/out/2024/a.mp4", "/data/out/"))
	assert.False(t, IsSubPath("/data/output/a.mp4", "/data/out"))
	assert.False(t, IsSubPath("/data", "/data/out"))
	assert.False(t, IsSubPath("relative/a.mp4", "/data/out"))
}
