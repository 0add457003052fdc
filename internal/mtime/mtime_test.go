package mtime

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeAt(t *testing.T, path string, sec int64) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(path), 0644))
	require.NoError(t, Stamp(path, sec))
}

func TestOfMissingIsOlderThanAnything(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, Missing, Of(filepath.Join(dir, "absent")))

	p := filepath.Join(dir, "a.txt")
	writeAt(t, p, 1000)
	assert.Equal(t, int64(1000), Of(p))
	assert.Greater(t, Of(p), Missing)
}

func TestOfRoundsUp(t *testing.T) {
	p := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(p, nil, 0644))
	ts := time.Unix(2000, 500_000_000)
	require.NoError(t, os.Chtimes(p, ts, ts))

	assert.Equal(t, int64(2001), Of(p))
}

func TestMax(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a")
	b := filepath.Join(dir, "b")
	writeAt(t, a, 100)
	writeAt(t, b, 300)

	assert.Equal(t, int64(300), Max(a, b, filepath.Join(dir, "none")))
	assert.Equal(t, Missing, Max())
}

func TestResolveIncompleteProbesSuffixesInOrder(t *testing.T) {
	dir := t.TempDir()
	logical := filepath.Join(dir, "res", "logo")
	writeAt(t, logical+".webp", 50)

	real, ts, err := ResolveIncomplete(logical)
	require.NoError(t, err)
	assert.Equal(t, logical+".webp", real)
	assert.Equal(t, int64(50), ts)

	writeAt(t, logical+".png", 70)
	real, ts, err = ResolveIncomplete(logical)
	require.NoError(t, err)
	assert.Equal(t, logical+".png", real)
	assert.Equal(t, int64(70), ts)

	_, _, err = ResolveIncomplete(filepath.Join(dir, "nothing"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCurrentAndAllEqual(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.css")
	assert.False(t, Current(out, 10))

	writeAt(t, out, 10)
	assert.True(t, Current(out, 10))
	assert.True(t, Current(out, 9))
	assert.False(t, Current(out, 11))

	png := filepath.Join(dir, "x.png")
	webp := filepath.Join(dir, "x.webp")
	writeAt(t, png, 10)
	assert.False(t, AllEqual([]string{png, webp}, 10))

	writeAt(t, webp, 10)
	assert.True(t, AllEqual([]string{png, webp}, 10))
	assert.False(t, AllEqual([]string{png, webp}, 11))
}
