/**
 * internal/bundle/esbuild.go
 * 基于 esbuild 的转译器
 *
 * 依赖：
 * - github.com/evanw/esbuild/pkg/api
 */

package bundle

import (
	"fmt"

	"sitebuild/internal/utils"

	"github.com/evanw/esbuild/pkg/api"
)

// Esbuild 使用 esbuild Transform API 转译和压缩
type Esbuild struct{}

// Compile 转译拼接后的源码
func (Esbuild) Compile(req Request) (string, error) {
	opts := api.TransformOptions{
		Loader:     api.LoaderJS,
		Target:     api.ES2020,
		Sourcefile: req.Name,
		LogLevel:   api.LogLevelSilent,
	}

	switch {
	case req.Kind == Stylesheet:
		opts.Loader = api.LoaderCSS
	case req.TypeScript:
		opts.Loader = api.LoaderTS
	}

	if req.Minify {
		opts.MinifyWhitespace = true
		opts.MinifySyntax = true
		if req.Kind == Script {
			opts.MinifyIdentifiers = true
		}
	}

	result := api.Transform(req.Source, opts)

	if len(result.Errors) > 0 {
		for _, msg := range result.Errors {
			utils.LogPrintf("[BUNDLE] ERROR: %s: %s", req.Name, msg.Text)
			if msg.Location != nil {
				file, line := req.Locate(msg.Location.Line)
				utils.LogPrintf("[BUNDLE]   at %s:%d:%d", file, line, msg.Location.Column)
			}
		}
		return "", fmt.Errorf("%w: %s %s bundle %s (%d errors)",
			ErrCompileFailed, req.Kind, modeName(req.Minify), req.Name, len(result.Errors))
	}

	for _, msg := range result.Warnings {
		utils.LogPrintf("[BUNDLE] WARN: %s: %s", req.Name, msg.Text)
	}

	return string(result.Code), nil
}

func modeName(minify bool) string {
	if minify {
		return "release"
	}
	return "dev"
}
