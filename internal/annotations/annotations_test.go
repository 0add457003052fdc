package annotations

import (
	"os"
	"path/filepath"
	"testing"

	"sitebuild/internal/mtime"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(t *testing.T, dir, name, content string, ts int64) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	require.NoError(t, mtime.Stamp(p, ts))
	return p
}

func TestMergeLastWriteWins(t *testing.T) {
	merged := Merge(
		map[string]any{"a": 1.0, "b": 2.0},
		map[string]any{"b": 3.0, "c": 4.0},
	)
	assert.Equal(t, map[string]any{"a": 1.0, "b": 3.0, "c": 4.0}, merged)

	// 非对象值直接替换
	assert.Equal(t, "new", Merge(map[string]any{"a": 1.0}, "new"))
	assert.Equal(t, map[string]any{"x": 1.0}, Merge([]any{1.0}, map[string]any{"x": 1.0}))
}

func TestMergeIsShallow(t *testing.T) {
	merged := Merge(
		map[string]any{"outer": map[string]any{"keep": true}},
		map[string]any{"outer": map[string]any{"other": true}},
	)
	assert.Equal(t, map[string]any{"outer": map[string]any{"other": true}}, merged)
}

func TestReadAndWrite(t *testing.T) {
	dir := t.TempDir()
	dice := writeJSON(t, dir, "dice.json", `{"faces": 6, "colors": ["red", "white"]}`, 100)
	board := writeJSON(t, dir, "board.json", `{"tiles": 20}`, 300)

	a := New()
	require.NoError(t, a.Read("dice", dice))
	require.NoError(t, a.Read("board", board))

	sprites := map[string]map[string]int{"res/tiles": {"u_u": 1}}
	require.NoError(t, a.Add(SpritesKey, sprites, dice))
	assert.Equal(t, 3, a.Len())

	out := filepath.Join(dir, "out", "annotations.json")
	written, err := a.Write(out)
	require.NoError(t, err)
	assert.True(t, written)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, `{"board":{"tiles":20},"dice":{"colors":["red","white"],"faces":6},"sprites":{"res/tiles":{"u_u":1}}}`, string(data))
	assert.Equal(t, int64(300), mtime.Of(out))

	written, err = a.Write(out)
	require.NoError(t, err)
	assert.False(t, written)
}

func TestAddMergesRepeatedKeys(t *testing.T) {
	a := New()
	require.NoError(t, a.Add("k", map[string]any{"a": 1.0, "b": 1.0}))
	require.NoError(t, a.Add("k", map[string]any{"b": 2.0}))

	v, ok := a.Get("k")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"a": 1.0, "b": 2.0}, v)
}

func TestReadRejectsInvalidJSON(t *testing.T) {
	dir := t.TempDir()
	bad := writeJSON(t, dir, "bad.json", `{"faces":`, 1)

	a := New()
	assert.Error(t, a.Read("bad", bad))
	assert.Error(t, a.Read("missing", filepath.Join(dir, "missing.json")))
}
