/**
 * internal/imaging/scale.go
 * 图片缩放
 *
 * 功能：
 * - 按尺寸规则计算目标尺寸（manifest.Size.Scaled）
 * - Catmull-Rom 重采样（放大、缩小均适用）
 *
 * 依赖：
 * - golang.org/x/image/draw
 */

package imaging

import (
	"image"

	"sitebuild/internal/manifest"

	"golang.org/x/image/draw"
)

// Scale 按目标尺寸缩放图片，返回新的 NRGBA 图片
// 目标尺寸与原图一致时只做一次像素拷贝
func Scale(src image.Image, size manifest.Size) *image.NRGBA {
	b := src.Bounds()
	w, h := size.Scaled(b.Dx(), b.Dy())
	return Resize(src, w, h)
}

// Resize 缩放到指定宽高
func Resize(src image.Image, w, h int) *image.NRGBA {
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	b := src.Bounds()
	if b.Dx() == w && b.Dy() == h {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
		return dst
	}

	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}
