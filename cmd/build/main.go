/**
 * cmd/build/main.go
 * 静态站点构建工具
 *
 * 功能：
 * - release：清空输出目录，压缩 JS/CSS/HTML，插入版本号，打包开发资源，Brotli 预压缩
 * - dev：增量构建，不压缩
 * - nojs：同 dev，但跳过 JavaScript 打包
 * - clean：删除输出目录和中间产物目录
 * - publish：上传输出目录中变化的文件到 S3 兼容存储
 * - reformat：将 VGG 标注工具导出的文件转换为注解 JSON
 *
 * 用法：
 *   go run ./cmd/build release
 *   go run ./cmd/build dev --target compiled
 *   go run ./cmd/build reformat via.json board data/board.json
 */

package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"sitebuild/internal/annotations"
	"sitebuild/internal/build"
	"sitebuild/internal/config"
	"sitebuild/internal/publish"
	"sitebuild/internal/utils"

	"github.com/alecthomas/kong"
)

// CLI 命令行定义
var CLI struct {
	Spec   string `help:"Compilation manifest path (overrides COMPILATION_SPEC)" type:"path"`
	Target string `help:"Output directory (overrides BUILD_TARGET_DIR)" type:"path"`

	Release struct{} `cmd:"" help:"Minified, cache-busted release build (always starts from a clean target)"`
	Dev     struct{} `cmd:"" help:"Incremental development build"`
	Nojs    struct{} `cmd:"" name:"nojs" help:"Development build without JavaScript bundling"`
	Clean   struct{} `cmd:"" help:"Remove the output and intermediate directories"`
	Publish struct{} `cmd:"" help:"Upload changed files in the output directory to the configured bucket"`

	Reformat struct {
		Input  string `arg:"" type:"existingfile" help:"VGG Image Annotator export"`
		Name   string `arg:"" help:"Key to store the regions under"`
		Output string `arg:"" type:"path" help:"Annotation file to write"`
	} `cmd:"" help:"Convert a VGG Image Annotator export into an annotation file of rectangles"`
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("build"),
		kong.Description("Incremental static-site asset pipeline"),
		kong.UsageOnError(),
	)
	defer utils.SyncLogger()

	cfg, err := config.Load()
	if err != nil {
		utils.LogFatalf("[BUILD] FATAL: %v", err)
	}
	if CLI.Spec != "" {
		cfg.ManifestPath = CLI.Spec
	}
	if CLI.Target != "" {
		cfg.TargetDir = CLI.Target
	}

	switch strings.Fields(ctx.Command())[0] {
	case "clean":
		err = build.Clean(cfg)
	case "publish":
		err = runPublish(cfg)
	case "reformat":
		_, err = annotations.Reformat(CLI.Reformat.Input, CLI.Reformat.Name, CLI.Reformat.Output)
	default:
		err = runBuild(cfg, ctx.Command())
	}

	if err != nil {
		utils.LogPrintf("[BUILD] FATAL: %v", err)
		utils.SyncLogger()
		os.Exit(1)
	}
}

// runBuild 执行一次构建
func runBuild(cfg *config.Config, command string) error {
	mode, err := build.ParseMode(command)
	if err != nil {
		return err
	}
	_, err = build.New(cfg, mode).Run()
	return err
}

// runPublish 上传输出目录（Ctrl+C 中止）
func runPublish(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	publisher, err := publish.New(ctx, cfg)
	if err != nil {
		return err
	}
	_, err = publisher.Publish(ctx, cfg.TargetDir, filepath.Join(cfg.CacheDir, publish.MarkerFile))
	return err
}
