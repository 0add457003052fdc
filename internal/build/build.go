/**
 * internal/build/build.go
 * 构建编排
 *
 * 功能：
 * - 按固定顺序执行各阶段（编号连续的进度日志）
 * - 任一阶段失败立即中止（不重试）
 * - 统计写入/跳过文件数、写入字节数、耗时
 *
 * 阶段：
 *   1. Load Compilation Spec     （任何文件写入之前）
 *   2. Prepare Target
 *   3. Copy Resource Files
 *   4. Copy Sitemap
 *   5. Write Images
 *   6. Write Sprites
 *   7. Write Favicons
 *   8. Create Annotations File
 *   9. Bundle Stylesheets
 *  10. Bundle JavaScript          （nojs 跳过）
 *  11. Compile HTML
 *  12. Archive Development Resources（仅 release）
 *  13. Brotli Precompression      （仅 release）
 *  14. Record Build Mode
 *
 * 注意：
 *   同一输出目录不能同时运行两次构建（修改时间判定跨越多个阶段）
 */

package build

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"sitebuild/internal/annotations"
	"sitebuild/internal/archive"
	"sitebuild/internal/assets"
	"sitebuild/internal/bundle"
	"sitebuild/internal/config"
	"sitebuild/internal/html"
	"sitebuild/internal/imaging"
	"sitebuild/internal/manifest"
	"sitebuild/internal/mtime"
	"sitebuild/internal/stage"
	"sitebuild/internal/utils"
	"sitebuild/internal/version"
)

// ====================  数据结构 ====================

// Stats 构建统计
type Stats struct {
	Mode    Mode
	Stages  int
	Written int
	Skipped int
	Bytes   int64
	Elapsed time.Duration
}

// Builder 单次构建
type Builder struct {
	Mode     Mode
	Config   *config.Config
	Compiler bundle.Compiler

	log           stage.Log
	total         stage.Result
	loader        *imaging.Loader
	spec          *manifest.Spec
	sprites       assets.SpriteAnnotations
	spriteSources []string
}

// New 创建构建器（默认使用 esbuild）
func New(cfg *config.Config, mode Mode) *Builder {
	return &Builder{Mode: mode, Config: cfg, Compiler: bundle.Esbuild{}}
}

// ====================  执行 ====================

// Run 执行全部阶段
func (b *Builder) Run() (*Stats, error) {
	started := time.Now()
	utils.LogPrintf("[BUILD] Compiling %s build into %s", b.Mode, b.Config.TargetDir)

	steps := []struct {
		name string
		run  func() (stage.Result, error)
		when bool
	}{
		{"Load Compilation Spec", b.loadSpec, true},
		{"Prepare Target", b.prepareTarget, true},
		{"Copy Resource Files", b.copyResources, true},
		{"Copy Sitemap", b.copySitemap, true},
		{"Write Images", b.writeImages, true},
		{"Write Sprites", b.writeSprites, true},
		{"Write Favicons", b.writeFavicons, true},
		{"Create Annotations File", b.writeAnnotations, true},
		{"Bundle Stylesheets", b.bundleStylesheets, true},
		{"Bundle JavaScript", b.bundleJavaScript, b.Mode.BundlesJS()},
		{"Compile HTML", b.compileHTML, true},
		{"Archive Development Resources", b.archiveResources, b.Mode == Release},
		{"Brotli Precompression", b.precompress, b.Mode == Release},
		{"Record Build Mode", b.recordMode, true},
	}

	// 图片解码缓存只在本次构建内有效
	loader, err := imaging.NewLoader(b.Config.ImageCacheSize)
	if err != nil {
		return nil, err
	}
	b.loader = loader

	for _, step := range steps {
		if !step.when {
			continue
		}
		b.log.Begin(step.name)
		res, err := step.run()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", step.name, err)
		}
		if res.Written > 0 || res.Skipped > 0 {
			stage.Detail("%s", res)
		}
		b.total.Add(res)
	}

	stats := &Stats{
		Mode:    b.Mode,
		Stages:  b.log.Count(),
		Written: b.total.Written,
		Skipped: b.total.Skipped,
		Bytes:   b.total.Bytes,
		Elapsed: time.Since(started),
	}
	utils.LogPrintf("[BUILD] Done: %d written (%s), %d skipped in %v",
		stats.Written, utils.FormatBytes(stats.Bytes), stats.Skipped, stats.Elapsed.Round(time.Millisecond))
	return stats, nil
}

// Clean 删除输出目录和中间产物目录
func Clean(cfg *config.Config) error {
	for _, dir := range []string{cfg.TargetDir, cfg.CacheDir} {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("failed to remove %s: %w", dir, err)
		}
		utils.LogPrintf("[BUILD] Removed %s", dir)
	}
	return nil
}

// ====================  路径辅助 ====================

func (b *Builder) source(p string) string {
	return filepath.Join(b.Config.SourceDir, filepath.FromSlash(p))
}

func (b *Builder) target(p string) string {
	return filepath.Join(b.Config.TargetDir, filepath.FromSlash(p))
}

func (b *Builder) materializer() *assets.Materializer {
	return assets.New(b.Config.SourceDir, b.Config.TargetDir, b.loader)
}

func (b *Builder) filter() *version.Filter {
	return &version.Filter{
		Root:     b.Config.TargetDir,
		SiteRoot: b.Config.SiteRoot,
		Release:  b.Mode.Minify(),
		Floor:    b.Config.VersionFloor,
	}
}

func (b *Builder) bundler() *bundle.Bundler {
	return &bundle.Bundler{
		SourceDir: b.Config.SourceDir,
		CacheDir:  filepath.Join(b.Config.CacheDir, b.Mode.Flavor()),
		Minify:    b.Mode.Minify(),
		Compiler:  b.Compiler,
		Filter:    b.filter(),
	}
}

// ====================  阶段实现 ====================

func (b *Builder) loadSpec() (stage.Result, error) {
	spec, err := manifest.Load(b.Config.ManifestPath)
	if err != nil {
		return stage.Result{}, err
	}
	b.spec = spec
	stage.Detail("%s: %d html, %d css, %d js, %d images, %d sprites",
		b.Config.ManifestPath, len(spec.HTML), len(spec.CSS), len(spec.JavaScript), len(spec.Images), len(spec.Sprites))
	return stage.Result{}, nil
}

func (b *Builder) prepareTarget() (stage.Result, error) {
	target := b.Config.TargetDir
	previous := previousFlavor(target)

	if b.Mode == Release || (previous != "" && previous != b.Mode.Flavor()) {
		if err := os.RemoveAll(target); err != nil {
			return stage.Result{}, fmt.Errorf("failed to clean %s: %w", target, err)
		}
		stage.Detail("cleaned %s", target)
	}

	if err := os.MkdirAll(target, utils.DirPerm); err != nil {
		return stage.Result{}, fmt.Errorf("failed to create %s: %w", target, err)
	}
	return stage.Result{}, nil
}

func (b *Builder) copyResources() (stage.Result, error) {
	return b.materializer().CopyResources(b.spec.Resources)
}

func (b *Builder) copySitemap() (stage.Result, error) {
	if b.spec.Sitemap == nil {
		stage.Detail("no sitemap declared")
		return stage.Result{}, nil
	}
	return b.materializer().CopySitemap(b.spec.Sitemap.Source, b.spec.Sitemap.Dest)
}

func (b *Builder) writeImages() (stage.Result, error) {
	return b.materializer().WriteImages(b.spec.Images)
}

func (b *Builder) writeSprites() (stage.Result, error) {
	sprites, sources, res, err := b.materializer().WriteSprites(b.spec.Sprites)
	if err != nil {
		return res, err
	}
	b.sprites = sprites
	b.spriteSources = sources
	return res, nil
}

func (b *Builder) writeFavicons() (stage.Result, error) {
	return b.materializer().WriteFavicons(b.Config.FaviconSource)
}

func (b *Builder) writeAnnotations() (stage.Result, error) {
	var res stage.Result
	ann := annotations.New()

	for _, a := range b.spec.Annotations {
		if err := ann.Read(a.Key, b.source(a.Source)); err != nil {
			return res, err
		}
	}
	if len(b.sprites) > 0 {
		if err := ann.Add(annotations.SpritesKey, b.sprites, b.spriteSources...); err != nil {
			return res, err
		}
	}

	if ann.Len() == 0 {
		stage.Detail("no annotations declared")
		return res, nil
	}

	out := b.target(b.Config.AnnotationsPath)
	written, err := ann.Write(out)
	if err != nil {
		return res, err
	}
	if written {
		info, err := os.Stat(out)
		if err != nil {
			return res, err
		}
		res.Wrote(b.Config.AnnotationsPath, info.Size())
	} else {
		res.Skip()
	}
	return res, nil
}

func (b *Builder) bundleStylesheets() (stage.Result, error) {
	return b.bundleAll(bundle.Stylesheet, b.spec.CSS)
}

func (b *Builder) bundleJavaScript() (stage.Result, error) {
	return b.bundleAll(bundle.Script, b.spec.JavaScript)
}

// bundleAll 打包到中间目录（版本标记在转译前已替换），再写入输出目录
func (b *Builder) bundleAll(kind bundle.Kind, bundles []manifest.Bundle) (stage.Result, error) {
	var res stage.Result
	bundler := b.bundler()

	for _, bd := range bundles {
		out, err := bundler.Bundle(kind, bd.Name, bd.Sources)
		if err != nil {
			return res, err
		}
		if out.Written {
			stage.Detail("compiled %s -> %s", bd.Name, out.Path)
		}

		data, err := os.ReadFile(out.Path)
		if err != nil {
			return res, fmt.Errorf("failed to read %s: %w", out.Path, err)
		}
		compiled := version.Result{Text: string(data), MTime: mtime.Missing}
		if err := b.writeFiltered(&res, bd.Name, compiled, out.MTime, bundler.Filter); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (b *Builder) compileHTML() (stage.Result, error) {
	var res stage.Result
	resolver := &html.Resolver{Root: b.Config.SourceDir}
	filter := b.filter()

	for _, page := range b.spec.HTML {
		resolved, err := resolver.Resolve(page.Source)
		if err != nil {
			return res, err
		}

		filtered, err := filter.Apply(resolved.Text)
		if err != nil {
			return res, fmt.Errorf("%s: %w", page.Source, err)
		}
		if b.Mode.Minify() {
			filtered.Text = html.Minify(filtered.Text)
		}

		if err := b.writeFiltered(&res, page.Dest, filtered, resolved.MTime, filter); err != nil {
			return res, err
		}
	}
	return res, nil
}

// writeFiltered 写出过滤后的文本并记录统计
func (b *Builder) writeFiltered(res *stage.Result, dest string, filtered version.Result, base int64, filter *version.Filter) error {
	written, err := filter.WriteFile(b.target(dest), filtered, base)
	if err != nil {
		return err
	}
	if written {
		res.Wrote(dest, int64(len(filtered.Text)))
	} else {
		res.Skip()
	}
	return nil
}

func (b *Builder) archiveResources() (stage.Result, error) {
	var res stage.Result
	for _, a := range b.spec.Archives {
		written, n, err := archive.ZipDir(b.source(a.Source), b.target(a.Dest))
		if err != nil {
			return res, err
		}
		if written {
			res.Wrote(a.Dest, n)
		} else {
			res.Skip()
		}
	}
	return res, nil
}

func (b *Builder) precompress() (stage.Result, error) {
	stats, err := archive.BrotliDir(b.Config.TargetDir, b.Config.BrotliLevel)
	if err != nil {
		return stage.Result{}, err
	}
	stage.Detail("brotli: %d files, %s -> %s (%.1f%%)",
		stats.Compressed, utils.FormatBytes(stats.OriginalBytes), utils.FormatBytes(stats.CompressedBytes), stats.Ratio())
	return stage.Result{Written: stats.Compressed, Skipped: stats.Skipped, Bytes: stats.CompressedBytes}, nil
}

func (b *Builder) recordMode() (stage.Result, error) {
	return stage.Result{}, recordFlavor(b.Config.TargetDir, b.Mode.Flavor())
}
