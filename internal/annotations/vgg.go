/**
 * internal/annotations/vgg.go
 * VGG Image Annotator（Oxford VIA）导出文件转换
 *
 * 功能：
 * - 读取 VIA 项目导出的 _via_img_metadata
 * - 只接受恰好包含一张图片的文件
 * - 只接受矩形区域，转换为 {名称: [[x, y, width, height], ...]}
 * - 数值原样保留（整数不会变成浮点）
 */

package annotations

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"sitebuild/internal/utils"
)

// ====================  错误定义 ====================

var (
	// ErrNotSingleImage 导出文件中图片数量不是 1
	ErrNotSingleImage = errors.New("VGG_NOT_SINGLE_IMAGE")

	// ErrNonRectRegion 存在非矩形区域
	ErrNonRectRegion = errors.New("VGG_NON_RECT_REGION")
)

// ====================  数据结构 ====================

// Rect 矩形区域 [x, y, width, height]
type Rect [4]json.Number

type vggExport struct {
	Images map[string]vggImage `json:"_via_img_metadata"`
}

type vggImage struct {
	Regions []vggRegion `json:"regions"`
}

type vggRegion struct {
	Shape struct {
		Name   string       `json:"name"`
		X      *json.Number `json:"x"`
		Y      *json.Number `json:"y"`
		Width  *json.Number `json:"width"`
		Height *json.Number `json:"height"`
	} `json:"shape_attributes"`
}

// ====================  公开方法 ====================

// FromVGG 将 VIA 导出内容转换为 {name: 矩形列表}
func FromVGG(data []byte, name string) (map[string][]Rect, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var export vggExport
	if err := dec.Decode(&export); err != nil {
		return nil, fmt.Errorf("not a VGG annotation export: %w", err)
	}
	if len(export.Images) != 1 {
		return nil, fmt.Errorf("%w: found %d", ErrNotSingleImage, len(export.Images))
	}

	rects := make([]Rect, 0)
	for _, img := range export.Images {
		for i, region := range img.Regions {
			s := region.Shape
			if s.Name != "rect" {
				return nil, fmt.Errorf("%w: region %d is %q", ErrNonRectRegion, i, s.Name)
			}
			if s.X == nil || s.Y == nil || s.Width == nil || s.Height == nil {
				return nil, fmt.Errorf("region %d is missing x, y, width or height", i)
			}
			rects = append(rects, Rect{*s.X, *s.Y, *s.Width, *s.Height})
		}
	}
	return map[string][]Rect{name: rects}, nil
}

// Reformat 读取 src，转换后以紧凑 JSON 写入 dst
func Reformat(src, name, dst string) (int, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", src, err)
	}

	out, err := FromVGG(data, name)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", src, err)
	}

	encoded, err := json.Marshal(out)
	if err != nil {
		return 0, err
	}
	if err := utils.WriteFile(dst, encoded); err != nil {
		return 0, err
	}

	utils.LogPrintf("[ANNOTATIONS] Reformatted %s -> %s (%d regions)", src, dst, len(out[name]))
	return len(out[name]), nil
}
