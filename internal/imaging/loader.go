/**
 * internal/imaging/loader.go
 * 原图解码缓存
 *
 * 功能：
 * - LRU 缓存已解码的原图（同一原图的多个尺寸类、雪碧图成员共用一次解码）
 * - 尺寸缓存（只读取文件头）
 * - 命中率统计
 *
 * 依赖：
 * - github.com/hashicorp/golang-lru/v2
 */

package imaging

import (
	"errors"
	"fmt"
	"image"
	_ "image/png"
	"os"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ====================  错误定义 ====================

// ErrDecodeFailed 图片解码失败
var ErrDecodeFailed = errors.New("IMAGE_DECODE_FAILED")

// ====================  数据结构 ====================

// LoaderStats 缓存统计
type LoaderStats struct {
	Size   int
	Hits   uint64
	Misses uint64
}

// Loader 原图解码缓存（单次构建内使用）
type Loader struct {
	images *lru.Cache[string, image.Image]
	bounds map[string]image.Point
	hits   uint64
	misses uint64
}

// NewLoader 创建解码缓存，size <= 0 时使用 1
func NewLoader(size int) (*Loader, error) {
	if size <= 0 {
		size = 1
	}
	images, err := lru.New[string, image.Image](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create image cache: %w", err)
	}
	return &Loader{images: images, bounds: make(map[string]image.Point)}, nil
}

// Load 解码图片（优先使用缓存）
func (l *Loader) Load(path string) (image.Image, error) {
	if img, ok := l.images.Get(path); ok {
		atomic.AddUint64(&l.hits, 1)
		return img, nil
	}
	atomic.AddUint64(&l.misses, 1)

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	defer func() { _ = f.Close() }()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecodeFailed, path, err)
	}

	l.images.Add(path, img)
	b := img.Bounds()
	l.bounds[path] = image.Pt(b.Dx(), b.Dy())
	return img, nil
}

// Bounds 获取图片尺寸（优先使用缓存，否则只解码文件头）
func (l *Loader) Bounds(path string) (image.Point, error) {
	if p, ok := l.bounds[path]; ok {
		return p, nil
	}
	p, err := ReadBounds(path)
	if err != nil {
		return image.Point{}, err
	}
	l.bounds[path] = p
	return p, nil
}

// Stats 缓存统计
func (l *Loader) Stats() LoaderStats {
	return LoaderStats{
		Size:   l.images.Len(),
		Hits:   atomic.LoadUint64(&l.hits),
		Misses: atomic.LoadUint64(&l.misses),
	}
}

// ReadBounds 只读取文件头获取图片尺寸（支持 PNG 和 WebP）
func ReadBounds(path string) (image.Point, error) {
	f, err := os.Open(path)
	if err != nil {
		return image.Point{}, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	defer func() { _ = f.Close() }()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return image.Point{}, fmt.Errorf("%w: %s: %v", ErrDecodeFailed, path, err)
	}
	return image.Pt(cfg.Width, cfg.Height), nil
}
