package imaging

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"sitebuild/internal/manifest"

	"github.com/HugoSmits86/nativewebp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
}

func TestScaleAutoHeight(t *testing.T) {
	src := solid(200, 100, color.NRGBA{R: 255, A: 255})
	out := Scale(src, manifest.Size{Width: 100})
	assert.Equal(t, image.Rect(0, 0, 100, 50), out.Bounds())
}

func TestScaleFixedBothIgnoresAspect(t *testing.T) {
	src := solid(200, 100, color.NRGBA{G: 255, A: 255})
	out := Scale(src, manifest.Size{Width: 30, Height: 70})
	assert.Equal(t, image.Rect(0, 0, 30, 70), out.Bounds())
}

func TestScaleIdentityCopiesPixels(t *testing.T) {
	src := solid(3, 2, color.NRGBA{B: 200, A: 128})
	out := Scale(src, manifest.Size{})
	assert.Equal(t, src.Pix, out.Pix)
}

func TestPlanLayout(t *testing.T) {
	layout := PlanLayout([]image.Point{{50, 50}, {50, 30}})
	assert.Equal(t, 100, layout.Width)
	assert.Equal(t, 50, layout.Height)
	assert.Equal(t, Placement{Width: 50, Height: 50, XOffset: 0, YOffset: 0}, layout.Placements[0])
	assert.Equal(t, Placement{Width: 50, Height: 30, XOffset: 50, YOffset: 0}, layout.Placements[1])
}

func TestPlanLayoutOffsetsHaveNoGaps(t *testing.T) {
	sizes := []image.Point{{7, 3}, {1, 9}, {12, 4}, {5, 5}}
	layout := PlanLayout(sizes)

	sum := 0
	for i, p := range layout.Placements {
		assert.Equal(t, sum, p.XOffset, "member %d", i)
		assert.Zero(t, p.YOffset)
		sum += p.Width
	}
	assert.Equal(t, sum, layout.Width)
	assert.Equal(t, 9, layout.Height)
}

func TestComposeTopAlignsWithTransparentPadding(t *testing.T) {
	a := solid(50, 50, color.NRGBA{R: 255, A: 255})
	b := solid(50, 30, color.NRGBA{B: 255, A: 255})
	layout := PlanLayout([]image.Point{{50, 50}, {50, 30}})

	out, err := Compose([]image.Image{a, b}, layout)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 100, 50), out.Bounds())
	assert.Equal(t, color.NRGBA{R: 255, A: 255}, out.NRGBAAt(10, 40))
	assert.Equal(t, color.NRGBA{B: 255, A: 255}, out.NRGBAAt(60, 0))
	assert.Equal(t, color.NRGBA{}, out.NRGBAAt(60, 40))
}

func TestComposeRejectsMismatchedMembers(t *testing.T) {
	layout := PlanLayout([]image.Point{{10, 10}})
	_, err := Compose([]image.Image{solid(5, 5, color.NRGBA{A: 255})}, layout)
	assert.Error(t, err)

	_, err = Compose(nil, layout)
	assert.Error(t, err)
}

func TestQuantizeIsDeterministicAndKeepsAlpha(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 16, 1))
	for x := 0; x < 16; x++ {
		src.SetNRGBA(x, 0, color.NRGBA{R: uint8(x * 16), G: uint8(255 - x*16), B: 77, A: uint8(x * 10)})
	}

	a := Quantize(src, 1)
	b := Quantize(src, 1)
	assert.Equal(t, a.Pix, b.Pix)

	for x := 0; x < 16; x++ {
		assert.Equal(t, src.NRGBAAt(x, 0).A, a.NRGBAAt(x, 0).A)
	}

	levels := map[uint8]bool{}
	for x := 0; x < 16; x++ {
		levels[a.NRGBAAt(x, 0).R] = true
	}
	assert.Less(t, len(levels), 16)

	// 端点保持不变
	edge := solid(1, 1, color.NRGBA{R: 255, G: 0, B: 255, A: 255})
	assert.Equal(t, color.NRGBA{R: 255, G: 0, B: 255, A: 255}, Quantize(edge, 1).NRGBAAt(0, 0))
}

func TestWriteVariantProducesBothEncodings(t *testing.T) {
	base := filepath.Join(t.TempDir(), "res", "board.100_u")
	img := solid(8, 4, color.NRGBA{R: 10, G: 20, B: 30, A: 255})

	n, err := WriteVariant(base, img, 60)
	require.NoError(t, err)
	assert.Positive(t, n)

	f, err := os.Open(base + ".png")
	require.NoError(t, err)
	cfg, err := png.DecodeConfig(f)
	_ = f.Close()
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Width)

	data, err := os.ReadFile(base + ".webp")
	require.NoError(t, err)
	decoded, err := nativewebp.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 8, 4), decoded.Bounds())

	assert.Equal(t, []string{base + ".png", base + ".webp"}, OutputPaths(base))
}

func TestEncodeICO(t *testing.T) {
	images := []image.Image{solid(16, 16, color.NRGBA{A: 255}), solid(32, 32, color.NRGBA{A: 255})}

	var buf bytes.Buffer
	require.NoError(t, EncodeICO(&buf, images))

	data := buf.Bytes()
	assert.Equal(t, uint16(0), binary.LittleEndian.Uint16(data[0:]))
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(data[2:]))
	assert.Equal(t, uint16(2), binary.LittleEndian.Uint16(data[4:]))

	first := data[icoHeaderSize:]
	assert.Equal(t, uint8(16), first[0])
	offset := binary.LittleEndian.Uint32(first[12:])
	assert.Equal(t, uint32(icoHeaderSize+2*icoEntrySize), offset)

	cfg, err := png.DecodeConfig(bytes.NewReader(data[offset:]))
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Width)

	assert.Error(t, EncodeICO(&buf, nil))
	assert.Error(t, EncodeICO(&buf, []image.Image{solid(300, 10, color.NRGBA{})}))
}

func TestLoaderCachesDecodedImages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.png")
	writePNG(t, path, solid(20, 10, color.NRGBA{G: 9, A: 255}))

	loader, err := NewLoader(2)
	require.NoError(t, err)

	bounds, err := loader.Bounds(path)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(20, 10), bounds)

	first, err := loader.Load(path)
	require.NoError(t, err)
	second, err := loader.Load(path)
	require.NoError(t, err)
	assert.Same(t, first, second)

	stats := loader.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)

	_, err = loader.Load(filepath.Join(t.TempDir(), "missing.png"))
	assert.ErrorIs(t, err, ErrDecodeFailed)
}

func TestReadBoundsWebP(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.webp")
	var buf bytes.Buffer
	require.NoError(t, nativewebp.Encode(&buf, solid(12, 7, color.NRGBA{R: 1, A: 255}), nil))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))

	bounds, err := ReadBounds(path)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(12, 7), bounds)
}
