/**
 * internal/assets/images.go
 * 图片、雪碧图与 favicon 输出
 *
 * 输出命名：
 *   dest.png / dest.webp                 原始尺寸类（u_u）
 *   dest.<class>.png / dest.<class>.webp 其他尺寸类
 *
 * 跳过条件：变体的两种编码都存在且修改时间等于源修改时间
 * （雪碧图使用成员中最大的修改时间）
 */

package assets

import (
	"bytes"
	"fmt"
	"image"

	"sitebuild/internal/imaging"
	"sitebuild/internal/manifest"
	"sitebuild/internal/mtime"
	"sitebuild/internal/stage"
	"sitebuild/internal/utils"
)

// SpriteAnnotations 雪碧图布局注解：dest -> class -> member -> placement
type SpriteAnnotations map[string]map[string]map[string]imaging.Placement

// VariantBase 尺寸类变体的输出路径（不含扩展名）
func VariantBase(dest, class string) string {
	if class == manifest.IdentityClass {
		return dest
	}
	return dest + "." + class
}

// ====================  独立图片 ====================

// WriteImages 输出所有独立图片的尺寸类变体
func (m *Materializer) WriteImages(images []*manifest.Image) (stage.Result, error) {
	var res stage.Result
	for _, img := range images {
		if !img.Standalone() {
			continue
		}

		src := m.source(img.Source)
		srcTime := mtime.Of(src)
		if srcTime == mtime.Missing {
			return res, fmt.Errorf("%w: image %s", ErrMissingSource, img.Source)
		}

		for _, class := range img.Classes() {
			rel := VariantBase(img.Dest, class)
			base := m.target(rel)
			outputs := imaging.OutputPaths(base)
			if mtime.AllEqual(outputs, srcTime) {
				res.Skip()
				continue
			}

			original, err := m.Loader.Load(src)
			if err != nil {
				return res, err
			}
			size, _ := img.Size(class)
			n, err := writeStamped(base, imaging.Scale(original, size), img.Quality, srcTime)
			if err != nil {
				return res, err
			}
			res.Wrote(rel, n)
		}
	}
	return res, nil
}

// ====================  雪碧图 ====================

// WriteSprites 输出雪碧图，返回布局注解和参与计算的源文件
// 布局总是会计算（注解需要），合成图只在过期时重建
func (m *Materializer) WriteSprites(sprites []*manifest.Sprite) (SpriteAnnotations, []string, stage.Result, error) {
	var res stage.Result
	annotations := make(SpriteAnnotations)
	var provenance []string

	for _, sprite := range sprites {
		sources := make([]string, len(sprite.Members))
		for i, member := range sprite.Members {
			sources[i] = m.source(member.Source)
			if mtime.Of(sources[i]) == mtime.Missing {
				return nil, nil, res, fmt.Errorf("%w: sprite %s member %s", ErrMissingSource, sprite.Dest, member.Source)
			}
		}
		provenance = append(provenance, sources...)
		spriteTime := mtime.Max(sources...)

		byClass := make(map[string]map[string]imaging.Placement)
		for _, class := range sprite.Classes() {
			layout, err := m.planSprite(sprite, sources, class)
			if err != nil {
				return nil, nil, res, err
			}

			placements := make(map[string]imaging.Placement, len(sprite.Members))
			for i, member := range sprite.Members {
				placements[member.Source] = layout.Placements[i]
			}
			byClass[class] = placements

			rel := VariantBase(sprite.Dest, class)
			base := m.target(rel)
			if mtime.AllEqual(imaging.OutputPaths(base), spriteTime) {
				res.Skip()
				continue
			}

			composite, err := m.composeSprite(sprite, sources, layout)
			if err != nil {
				return nil, nil, res, err
			}
			n, err := writeStamped(base, composite, sprite.Quality(), spriteTime)
			if err != nil {
				return nil, nil, res, err
			}
			res.Wrote(rel, n)
		}
		annotations[sprite.Dest] = byClass
	}
	return annotations, provenance, res, nil
}

// planSprite 根据成员尺寸（只读文件头）计算某尺寸类的布局
func (m *Materializer) planSprite(sprite *manifest.Sprite, sources []string, class string) (imaging.Layout, error) {
	sizes := make([]image.Point, len(sprite.Members))
	for i, member := range sprite.Members {
		bounds, err := m.Loader.Bounds(sources[i])
		if err != nil {
			return imaging.Layout{}, err
		}
		size, ok := member.Size(class)
		if !ok {
			return imaging.Layout{}, fmt.Errorf("%w: sprite %s member %s lacks size class %s",
				manifest.ErrInvalidSpec, sprite.Dest, member.Source, class)
		}
		w, h := size.Scaled(bounds.X, bounds.Y)
		sizes[i] = image.Pt(w, h)
	}
	return imaging.PlanLayout(sizes), nil
}

// composeSprite 解码并按布局尺寸缩放所有成员后合成
func (m *Materializer) composeSprite(sprite *manifest.Sprite, sources []string, layout imaging.Layout) (image.Image, error) {
	scaled := make([]image.Image, len(sprite.Members))
	for i := range sprite.Members {
		original, err := m.Loader.Load(sources[i])
		if err != nil {
			return nil, err
		}
		p := layout.Placements[i]
		scaled[i] = imaging.Resize(original, p.Width, p.Height)
	}
	return imaging.Compose(scaled, layout)
}

// ====================  favicon ====================

// WriteFavicons 输出 favicon-N.png 系列和 favicon.ico
// 源文件不存在时记录警告并跳过
func (m *Materializer) WriteFavicons(source string) (stage.Result, error) {
	var res stage.Result
	src := m.source(source)
	srcTime := mtime.Of(src)
	if srcTime == mtime.Missing {
		utils.LogPrintf("[ASSETS] WARN: favicon source %s not found, skipping", source)
		return res, nil
	}

	var outputs []string
	for _, size := range imaging.FaviconSizes {
		outputs = append(outputs, m.target(faviconName(size)))
	}
	icoPath := m.target("favicon.ico")
	outputs = append(outputs, icoPath)

	if mtime.AllEqual(outputs, srcTime) {
		res.Skip()
		return res, nil
	}

	original, err := m.Loader.Load(src)
	if err != nil {
		return res, err
	}

	icons := make([]image.Image, 0, len(imaging.FaviconSizes))
	for i, size := range imaging.FaviconSizes {
		icon := imaging.Resize(original, size, size)
		icons = append(icons, icon)

		var buf bytes.Buffer
		if err := imaging.Encode(&buf, imaging.PNG, icon, manifest.LosslessQuality); err != nil {
			return res, err
		}
		if err := writeFileStamped(outputs[i], buf.Bytes(), srcTime); err != nil {
			return res, err
		}
		res.Wrote(faviconName(size), int64(buf.Len()))
	}

	var ico bytes.Buffer
	if err := imaging.EncodeICO(&ico, icons); err != nil {
		return res, err
	}
	if err := writeFileStamped(icoPath, ico.Bytes(), srcTime); err != nil {
		return res, err
	}
	res.Wrote("favicon.ico", int64(ico.Len()))
	return res, nil
}

func faviconName(size int) string {
	return fmt.Sprintf("favicon-%d.png", size)
}

// ====================  辅助函数 ====================

// writeStamped 写出变体的全部编码并设置修改时间
func writeStamped(base string, img image.Image, quality int, t int64) (int64, error) {
	n, err := imaging.WriteVariant(base, img, quality)
	if err != nil {
		return 0, err
	}
	for _, out := range imaging.OutputPaths(base) {
		if err := mtime.Stamp(out, t); err != nil {
			return 0, err
		}
	}
	return n, nil
}

func writeFileStamped(path string, data []byte, t int64) error {
	if err := utils.WriteFile(path, data); err != nil {
		return err
	}
	return mtime.Stamp(path, t)
}
