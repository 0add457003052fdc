/**
 * internal/imaging/encode.go
 * 图片编码（PNG + WebP）
 *
 * 功能：
 * - 每个尺寸变体同时输出 PNG 和 WebP 两种编码
 * - quality >= 100 为无损；更低的质量先做确定性的通道量化再编码
 *   （两种编码使用相同的量化结果）
 *
 * 依赖：
 * - github.com/HugoSmits86/nativewebp (WebP 编码，同时注册 WebP 解码器)
 */

package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"io"

	"sitebuild/internal/manifest"
	"sitebuild/internal/utils"

	"github.com/HugoSmits86/nativewebp"
)

// ====================  编码格式 ====================

// Format 输出编码
type Format struct {
	Ext    string
	encode func(w io.Writer, img image.Image) error
}

var (
	// PNG 无损 PNG，最高压缩率
	PNG = Format{Ext: ".png", encode: func(w io.Writer, img image.Image) error {
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		return enc.Encode(w, img)
	}}

	// WebP VP8L 编码
	WebP = Format{Ext: ".webp", encode: func(w io.Writer, img image.Image) error {
		return nativewebp.Encode(w, img, nil)
	}}

	// Formats 每个变体输出的全部编码
	Formats = []Format{PNG, WebP}
)

// ====================  公开函数 ====================

// Encode 按质量编码图片
func Encode(w io.Writer, f Format, img image.Image, quality int) error {
	if quality < manifest.LosslessQuality {
		img = Quantize(img, quality)
	}
	if err := f.encode(w, img); err != nil {
		return fmt.Errorf("%s encode failed: %w", f.Ext, err)
	}
	return nil
}

// OutputPaths 变体的全部输出路径（base 不含扩展名）
func OutputPaths(base string) []string {
	paths := make([]string, len(Formats))
	for i, f := range Formats {
		paths[i] = base + f.Ext
	}
	return paths
}

// WriteVariant 将图片以全部编码写到 base.png / base.webp，返回写入字节数
func WriteVariant(base string, img image.Image, quality int) (int64, error) {
	if quality < manifest.LosslessQuality {
		img = Quantize(img, quality)
		quality = manifest.LosslessQuality
	}

	var total int64
	for _, f := range Formats {
		var buf bytes.Buffer
		if err := Encode(&buf, f, img, quality); err != nil {
			return total, fmt.Errorf("%s: %w", base, err)
		}
		if err := utils.WriteFile(base+f.Ext, buf.Bytes()); err != nil {
			return total, err
		}
		total += int64(buf.Len())
	}
	return total, nil
}

// Quantize 按质量减少每个颜色通道的级数（alpha 保持不变）
// quality 1 约 4 级，99 约 253 级；相同输入总是得到相同输出
func Quantize(src image.Image, quality int) *image.NRGBA {
	if quality < 1 {
		quality = 1
	}
	levels := 2 + quality*254/100
	if levels > 256 {
		levels = 256
	}

	var table [256]uint8
	steps := levels - 1
	for v := 0; v < 256; v++ {
		q := (v*steps + 127) / 255
		table[v] = uint8((q*255 + steps/2) / steps)
	}

	dst := toNRGBA(src)
	for i := 0; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = table[dst.Pix[i]]
		dst.Pix[i+1] = table[dst.Pix[i+1]]
		dst.Pix[i+2] = table[dst.Pix[i+2]]
	}
	return dst
}

// toNRGBA 复制为独立的 NRGBA 图片（原点为 0,0）
func toNRGBA(src image.Image) *image.NRGBA {
	b := src.Bounds()
	return Resize(src, b.Dx(), b.Dy())
}
