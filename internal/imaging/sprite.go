/**
 * internal/imaging/sprite.go
 * 雪碧图布局与合成
 *
 * 布局规则：
 * - 成员按输入顺序从左到右排列，y 偏移恒为 0（顶部对齐）
 * - 总宽 = 成员宽度之和，总高 = 成员最大高度
 * - x_offset[i] = width[0..i-1] 之和
 */

package imaging

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// Placement 成员在合成图中的位置
type Placement struct {
	Width   int `json:"width"`
	Height  int `json:"height"`
	XOffset int `json:"x_offset"`
	YOffset int `json:"y_offset"`
}

// Layout 雪碧图布局
type Layout struct {
	Width      int
	Height     int
	Placements []Placement
}

// PlanLayout 根据成员尺寸计算水平布局
func PlanLayout(sizes []image.Point) Layout {
	layout := Layout{Placements: make([]Placement, len(sizes))}
	for i, s := range sizes {
		layout.Placements[i] = Placement{
			Width:   s.X,
			Height:  s.Y,
			XOffset: layout.Width,
			YOffset: 0,
		}
		layout.Width += s.X
		if s.Y > layout.Height {
			layout.Height = s.Y
		}
	}
	return layout
}

// Compose 按布局合成雪碧图，未覆盖区域保持透明
func Compose(images []image.Image, layout Layout) (*image.NRGBA, error) {
	if len(images) != len(layout.Placements) {
		return nil, fmt.Errorf("sprite layout has %d placements for %d images", len(layout.Placements), len(images))
	}

	canvas := image.NewNRGBA(image.Rect(0, 0, layout.Width, layout.Height))
	for i, img := range images {
		p := layout.Placements[i]
		b := img.Bounds()
		if b.Dx() != p.Width || b.Dy() != p.Height {
			return nil, fmt.Errorf("sprite member %d is %dx%d, layout expects %dx%d", i, b.Dx(), b.Dy(), p.Width, p.Height)
		}
		r := image.Rect(p.XOffset, p.YOffset, p.XOffset+p.Width, p.YOffset+p.Height)
		draw.Draw(canvas, r, img, b.Min, draw.Src)
	}
	return canvas, nil
}
