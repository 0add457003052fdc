/**
 * internal/version/version.go
 * 版本标记替换
 *
 * 功能：
 * - 单遍从左到右扫描 ".[ver]" 标记，标记必须位于双引号字符串内
 * - 正式构建：在标记处插入 .v<修改时间>（不低于 Floor）
 * - 开发构建：删除标记，但仍然解析目标文件（校验其存在）
 * - data-dynamic-image= / data-dynamic-button= 属性注入图片宽高
 *   （dynamic-image 还注入与图片同尺寸的 SVG 占位图）
 *
 * 示例（目标文件修改时间 1700000000）：
 *   "/res/board.[ver].png"  ->  "/res/board.v1700000000.png"   正式
 *   "/res/board.[ver].png"  ->  "/res/board.png"               开发
 */

package version

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"sitebuild/internal/imaging"
	"sitebuild/internal/mtime"
	"sitebuild/internal/utils"
)

// ====================  常量定义 ====================

const (
	// Marker 版本占位标记
	Marker = ".[ver]"

	dynamicImageAttr  = "data-dynamic-image="
	dynamicButtonAttr = "data-dynamic-button="
)

// ====================  错误定义 ====================

var (
	// ErrMarkerOutsideString 标记不在双引号字符串内
	ErrMarkerOutsideString = errors.New("VERSION_MARKER_OUTSIDE_STRING")

	// ErrUnresolvedReference 标记引用的文件不存在
	ErrUnresolvedReference = errors.New("UNRESOLVED_VERSION_REFERENCE")
)

// ====================  数据结构 ====================

// Filter 版本标记过滤器
type Filter struct {
	Root     string // 引用路径相对的输出目录
	SiteRoot string // 解析前去掉的站点 URL 前缀
	Release  bool
	Floor    int64 // 版本号下限
}

// Result 过滤结果
type Result struct {
	Text    string
	MTime   int64 // 所有被引用文件的最大修改时间
	Markers int
}

// ====================  公开方法 ====================

// Apply 替换文本中的全部版本标记
func (f *Filter) Apply(text string) (Result, error) {
	res := Result{MTime: mtime.Missing}

	var out strings.Builder
	cursor := 0
	for {
		idx := strings.Index(text[cursor:], Marker)
		if idx < 0 {
			break
		}
		idx += cursor
		after := idx + len(Marker)

		open := strings.LastIndexByte(text[:idx], '"')
		if open < cursor {
			return Result{}, fmt.Errorf("%w: at offset %d", ErrMarkerOutsideString, idx)
		}
		closeLen := strings.IndexByte(text[after:], '"')
		if closeLen < 0 {
			return Result{}, fmt.Errorf("%w: unterminated string at offset %d", ErrMarkerOutsideString, idx)
		}
		closing := after + closeLen

		path := text[open+1 : idx]
		suffix := text[after:closing]

		real, t, err := f.resolve(path, suffix)
		if err != nil {
			return Result{}, err
		}
		if t > res.MTime {
			res.MTime = t
		}

		attrStart := open
		var inject string
		switch {
		case strings.HasSuffix(text[:open], dynamicImageAttr):
			attrStart = open - len(dynamicImageAttr)
			if inject, err = dimensions(real, true); err != nil {
				return Result{}, err
			}
		case strings.HasSuffix(text[:open], dynamicButtonAttr):
			attrStart = open - len(dynamicButtonAttr)
			if inject, err = dimensions(real, false); err != nil {
				return Result{}, err
			}
		}

		out.WriteString(text[cursor:attrStart])
		out.WriteString(inject)
		out.WriteString(text[attrStart : open+1])
		out.WriteString(path)
		if f.Release {
			version := t
			if f.Floor > version {
				version = f.Floor
			}
			out.WriteString(".v")
			out.WriteString(strconv.FormatInt(version, 10))
		}
		out.WriteString(suffix)
		out.WriteByte('"')

		cursor = closing + 1
		res.Markers++
	}

	if res.Markers == 0 {
		res.Text = text
		return res, nil
	}
	out.WriteString(text[cursor:])
	res.Text = out.String()
	return res, nil
}

// WriteFile 写出过滤结果，返回是否实际写入
// 有效修改时间 = max(base, 被引用文件的修改时间)；目标不比它旧时跳过
func (f *Filter) WriteFile(dst string, res Result, base int64) (bool, error) {
	effective := base
	if res.MTime > effective {
		effective = res.MTime
	}
	if mtime.Current(dst, effective) {
		return false, nil
	}

	if err := utils.WriteFile(dst, []byte(res.Text)); err != nil {
		return false, err
	}
	if err := mtime.Stamp(dst, effective); err != nil {
		return false, err
	}
	return true, nil
}

// ====================  私有函数 ====================

// resolve 解析引用路径对应的输出文件及其修改时间
func (f *Filter) resolve(path, suffix string) (string, int64, error) {
	lookup := path
	if f.SiteRoot != "" {
		lookup = strings.TrimPrefix(lookup, f.SiteRoot)
	}
	lookup = strings.TrimLeft(lookup, "/") + suffix

	real, t, err := mtime.ResolveIncomplete(filepath.Join(f.Root, filepath.FromSlash(lookup)))
	if err != nil {
		return "", 0, fmt.Errorf("%w: %q: %v", ErrUnresolvedReference, path+Marker+suffix, err)
	}
	return real, t, nil
}

// dimensions 生成宽高属性（可选 SVG 占位图）
func dimensions(real string, placeholder bool) (string, error) {
	bounds, err := imaging.ReadBounds(real)
	if err != nil {
		return "", fmt.Errorf("dynamic image %s: %w", real, err)
	}

	w, h := bounds.X, bounds.Y
	attrs := fmt.Sprintf(`width="%d" height="%d" `, w, h)
	if placeholder {
		attrs += fmt.Sprintf(
			`src="data:image/svg+xml,%%3Csvg xmlns='http://www.w3.org/2000/svg' viewBox='0 0 %d %d'%%3E%%3C/svg%%3E" `,
			w, h)
	}
	return attrs, nil
}
