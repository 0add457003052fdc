/**
 * internal/bundle/bundle.go
 * JS/CSS 打包
 *
 * 功能：
 * - 按声明顺序拼接源文件（以换行分隔）
 * - 转译前替换版本标记（esbuild 会改写 url("…") 等字符串的引号）
 * - 交给 Compiler 转译（正式构建同时压缩）
 * - 有效修改时间 = max(源文件, 被引用文件)；产物不比它旧时跳过，重建后盖上该时间
 */

package bundle

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"sitebuild/internal/mtime"
	"sitebuild/internal/utils"
	"sitebuild/internal/version"
)

// ====================  错误定义 ====================

var (
	// ErrCompileFailed 转译或压缩失败
	ErrCompileFailed = errors.New("COMPILE_FAILED")

	// ErrSourceMissing 打包源文件不存在
	ErrSourceMissing = errors.New("BUNDLE_SOURCE_MISSING")
)

// ====================  数据结构 ====================

// Kind 产物类型
type Kind int

const (
	// Script JavaScript / TypeScript
	Script Kind = iota
	// Stylesheet CSS
	Stylesheet
)

// String 日志用名称
func (k Kind) String() string {
	if k == Stylesheet {
		return "css"
	}
	return "js"
}

// Request 一次转译请求
type Request struct {
	Kind       Kind
	Name       string
	Source     string
	TypeScript bool
	Minify     bool
	Files      []SourceFile // 拼接前各源文件所占的行区间，用于定位错误
}

// SourceFile 拼接结果中某个源文件的起始行（从 1 开始）
type SourceFile struct {
	Path      string
	FirstLine int
}

// Locate 将拼接结果中的行号换算为源文件和文件内行号
func (r Request) Locate(line int) (string, int) {
	for i := len(r.Files) - 1; i >= 0; i-- {
		if line >= r.Files[i].FirstLine {
			return r.Files[i].Path, line - r.Files[i].FirstLine + 1
		}
	}
	return r.Name, line
}

// Compiler 文本进、文本出的转译器
type Compiler interface {
	Compile(req Request) (string, error)
}

// Bundler 打包器
type Bundler struct {
	SourceDir string
	CacheDir  string
	Minify    bool
	Compiler  Compiler
	Filter    *version.Filter // 为 nil 时不处理版本标记
}

// Output 单个产物的打包结果
type Output struct {
	Path    string
	MTime   int64
	Written bool
	Bytes   int64
}

// ====================  公开方法 ====================

// Bundle 打包 name（输出到 CacheDir/name）
func (b *Bundler) Bundle(kind Kind, name string, sources []string) (Output, error) {
	paths := make([]string, len(sources))
	for i, s := range sources {
		paths[i] = filepath.Join(b.SourceDir, filepath.FromSlash(s))
		if mtime.Of(paths[i]) == mtime.Missing {
			return Output{}, fmt.Errorf("%w: %s (bundle %s)", ErrSourceMissing, s, name)
		}
	}

	out := Output{
		Path:  filepath.Join(b.CacheDir, filepath.FromSlash(name)),
		MTime: mtime.Max(paths...),
	}

	req := Request{Kind: kind, Name: name, Minify: b.Minify}
	var combined strings.Builder
	line := 1
	for i, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return Output{}, fmt.Errorf("failed to read %s: %w", sources[i], err)
		}
		if i > 0 {
			combined.WriteByte('\n')
			line++
		}
		req.Files = append(req.Files, SourceFile{Path: sources[i], FirstLine: line})
		combined.Write(data)
		line += strings.Count(string(data), "\n")

		if strings.EqualFold(filepath.Ext(p), ".ts") {
			req.TypeScript = true
		}
	}
	req.Source = combined.String()

	// 标记替换不增减换行，Files 中的行号仍然有效
	if b.Filter != nil {
		filtered, err := b.Filter.Apply(req.Source)
		if err != nil {
			return Output{}, fmt.Errorf("%s: %w", name, err)
		}
		req.Source = filtered.Text
		if filtered.MTime > out.MTime {
			out.MTime = filtered.MTime
		}
		// 提高版本号下限后，带标记的正式产物需要重建
		if b.Filter.Release && filtered.Markers > 0 && b.Filter.Floor > out.MTime {
			out.MTime = b.Filter.Floor
		}
	}

	if mtime.Current(out.Path, out.MTime) {
		return out, nil
	}

	code, err := b.Compiler.Compile(req)
	if err != nil {
		return Output{}, err
	}

	if err := utils.WriteFile(out.Path, []byte(code)); err != nil {
		return Output{}, err
	}
	if err := mtime.Stamp(out.Path, out.MTime); err != nil {
		return Output{}, err
	}

	out.Written = true
	out.Bytes = int64(len(code))
	return out, nil
}
