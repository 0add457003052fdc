package annotations

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const viaExport = `{
	"_via_settings": {"ui": {}},
	"_via_img_metadata": {
		"board.png123456": {
			"filename": "board.png",
			"size": 123456,
			"regions": [
				{"shape_attributes": {"name": "rect", "x": 10, "y": 20, "width": 30, "height": 40}, "region_attributes": {}},
				{"shape_attributes": {"name": "rect", "x": 5.5, "y": 0, "width": 1, "height": 2}, "region_attributes": {}}
			]
		}
	}
}`

func TestFromVGGConvertsRectangles(t *testing.T) {
	out, err := FromVGG([]byte(viaExport), "board")
	require.NoError(t, err)
	require.Len(t, out["board"], 2)
	assert.Equal(t, Rect{"10", "20", "30", "40"}, out["board"][0])
	assert.Equal(t, Rect{"5.5", "0", "1", "2"}, out["board"][1])
}

func TestFromVGGRejectsNonRectRegions(t *testing.T) {
	data := `{"_via_img_metadata": {"a.png1": {"regions": [
		{"shape_attributes": {"name": "polygon", "all_points_x": [1, 2], "all_points_y": [3, 4]}}
	]}}}`
	_, err := FromVGG([]byte(data), "a")
	assert.ErrorIs(t, err, ErrNonRectRegion)
}

func TestFromVGGRequiresSingleImage(t *testing.T) {
	for name, data := range map[string]string{
		"none": `{"_via_img_metadata": {}}`,
		"two":  `{"_via_img_metadata": {"a.png1": {"regions": []}, "b.png2": {"regions": []}}}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := FromVGG([]byte(data), "x")
			assert.ErrorIs(t, err, ErrNotSingleImage)
		})
	}
}

func TestFromVGGWithoutRegions(t *testing.T) {
	out, err := FromVGG([]byte(`{"_via_img_metadata": {"a.png1": {"regions": []}}}`), "empty")
	require.NoError(t, err)
	assert.Empty(t, out["empty"])
	assert.NotNil(t, out["empty"])
}

func TestFromVGGMissingCoordinate(t *testing.T) {
	data := `{"_via_img_metadata": {"a.png1": {"regions": [{"shape_attributes": {"name": "rect", "x": 1, "y": 2, "width": 3}}]}}}`
	_, err := FromVGG([]byte(data), "a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "region 0")
}

func TestReformatWritesCompactJSON(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "via.json")
	require.NoError(t, os.WriteFile(src, []byte(viaExport), 0644))
	dst := filepath.Join(dir, "data", "board.json")

	n, err := Reformat(src, "board", dst)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, `{"board":[[10,20,30,40],[5.5,0,1,2]]}`, string(data))

	// 转换结果可以直接作为注解文件合并
	a := New()
	require.NoError(t, a.Read("board", dst))
	v, ok := a.Get("board")
	require.True(t, ok)
	assert.Contains(t, v, "board")
}

func TestReformatInvalidInputWritesNothing(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "via.json")
	require.NoError(t, os.WriteFile(src, []byte(`{"_via_img_metadata": {}}`), 0644))
	dst := filepath.Join(dir, "out.json")

	_, err := Reformat(src, "x", dst)
	assert.ErrorIs(t, err, ErrNotSingleImage)
	assert.NoFileExists(t, dst)
}
