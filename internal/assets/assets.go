/**
 * internal/assets/assets.go
 * 资源与图片输出
 *
 * 功能：
 * - 复制静态资源（目录递归镜像），源比目标新时才复制
 * - 复制站点地图
 * - 输出独立图片的每个尺寸类变体（PNG + WebP）
 * - 输出雪碧图并生成布局注解
 * - 输出 favicon 系列与 ICO
 *
 * 所有产物写入后其修改时间被设置为源的修改时间。
 */

package assets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"sitebuild/internal/imaging"
	"sitebuild/internal/manifest"
	"sitebuild/internal/mtime"
	"sitebuild/internal/stage"
	"sitebuild/internal/utils"
)

// ====================  错误定义 ====================

// ErrMissingSource 清单中声明的源文件不存在
var ErrMissingSource = errors.New("MISSING_SOURCE")

// ====================  数据结构 ====================

// Materializer 资源输出器
type Materializer struct {
	SourceDir string
	TargetDir string
	Loader    *imaging.Loader
}

// New 创建资源输出器
func New(sourceDir, targetDir string, loader *imaging.Loader) *Materializer {
	return &Materializer{SourceDir: sourceDir, TargetDir: targetDir, Loader: loader}
}

// source 清单源路径对应的文件路径
func (m *Materializer) source(p string) string {
	return filepath.Join(m.SourceDir, filepath.FromSlash(p))
}

// target 清单目标路径对应的文件路径
func (m *Materializer) target(p string) string {
	return filepath.Join(m.TargetDir, filepath.FromSlash(p))
}

// ====================  资源复制 ====================

// CopyResources 复制静态资源
func (m *Materializer) CopyResources(resources []manifest.Mapping) (stage.Result, error) {
	var res stage.Result
	for _, r := range resources {
		src := m.source(r.Source)
		info, err := os.Stat(src)
		if err != nil {
			return res, fmt.Errorf("%w: resource %s", ErrMissingSource, r.Source)
		}

		if !info.IsDir() {
			if err := copyIfNewer(src, m.target(r.Dest), r.Dest, &res); err != nil {
				return res, err
			}
			continue
		}

		err = filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(src, path)
			if err != nil {
				return err
			}
			dest := filepath.ToSlash(filepath.Join(r.Dest, rel))
			return copyIfNewer(path, m.target(dest), dest, &res)
		})
		if err != nil {
			return res, fmt.Errorf("failed to copy %s: %w", r.Source, err)
		}
	}
	return res, nil
}

// CopySitemap 复制站点地图
func (m *Materializer) CopySitemap(source, dest string) (stage.Result, error) {
	var res stage.Result
	src := m.source(source)
	if mtime.Of(src) == mtime.Missing {
		return res, fmt.Errorf("%w: sitemap %s", ErrMissingSource, source)
	}
	err := copyIfNewer(src, m.target(dest), dest, &res)
	return res, err
}

// copyIfNewer 源比目标新时复制，并把目标修改时间设置为源的修改时间
func copyIfNewer(src, dst, label string, res *stage.Result) error {
	srcTime := mtime.Of(src)
	if srcTime <= mtime.Of(dst) {
		res.Skip()
		return nil
	}

	n, err := utils.CopyFile(src, dst)
	if err != nil {
		return fmt.Errorf("failed to copy %s: %w", label, err)
	}
	if err := mtime.Stamp(dst, srcTime); err != nil {
		return err
	}
	res.Wrote(label, n)
	return nil
}
