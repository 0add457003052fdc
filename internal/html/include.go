/**
 * internal/html/include.go
 * HTML include 展开
 *
 * 功能：
 * - 递归展开 <include src="PATH"/>（PATH 相对于 Root）
 * - 有效修改时间为整个包含图中的最大修改时间
 * - 使用字面子串查找，不做完整的标记解析
 */

package html

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"sitebuild/internal/mtime"
)

// ====================  常量定义 ====================

const (
	includeOpen  = `<include src="`
	includeClose = "/>"

	// MaxIncludeDepth 最大嵌套深度（防止循环包含）
	MaxIncludeDepth = 32
)

// ====================  错误定义 ====================

var (
	// ErrIncludeNotFound 被包含的文件不存在
	ErrIncludeNotFound = errors.New("INCLUDE_NOT_FOUND")

	// ErrMalformedInclude include 标签格式错误
	ErrMalformedInclude = errors.New("MALFORMED_INCLUDE")

	// ErrIncludeDepth 嵌套过深（通常是循环包含）
	ErrIncludeDepth = errors.New("INCLUDE_TOO_DEEP")
)

// ====================  数据结构 ====================

// Resolver include 展开器
type Resolver struct {
	Root string
}

// Resolved 展开结果
type Resolved struct {
	MTime   int64  // 包含图中最大的修改时间
	Text    string // 展开后的文本
	Changed bool   // 至少展开了一个 include
}

// ====================  公开方法 ====================

// Resolve 展开 path（相对于 Root）中的所有 include
func (r *Resolver) Resolve(path string) (Resolved, error) {
	return r.resolve(path, 0)
}

func (r *Resolver) resolve(path string, depth int) (Resolved, error) {
	if depth > MaxIncludeDepth {
		return Resolved{}, fmt.Errorf("%w: %s", ErrIncludeDepth, path)
	}

	full := filepath.Join(r.Root, filepath.FromSlash(path))
	data, err := os.ReadFile(full)
	if err != nil {
		return Resolved{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	result := Resolved{MTime: mtime.Of(full)}
	text := string(data)

	var out strings.Builder
	cursor := 0
	for {
		start := strings.Index(text[cursor:], includeOpen)
		if start < 0 {
			break
		}
		start += cursor

		srcStart := start + len(includeOpen)
		srcLen := strings.IndexByte(text[srcStart:], '"')
		if srcLen < 0 {
			return Resolved{}, fmt.Errorf("%w: unterminated src in %s", ErrMalformedInclude, path)
		}
		target := text[srcStart : srcStart+srcLen]

		rest := text[srcStart+srcLen+1:]
		trimmed := strings.TrimLeft(rest, " \t\r\n")
		if !strings.HasPrefix(trimmed, includeClose) {
			return Resolved{}, fmt.Errorf("%w: include of %q in %s is not self-closing", ErrMalformedInclude, target, path)
		}
		end := srcStart + srcLen + 1 + (len(rest) - len(trimmed)) + len(includeClose)

		if mtime.Of(filepath.Join(r.Root, filepath.FromSlash(target))) == mtime.Missing {
			return Resolved{}, fmt.Errorf("%w: %s (included from %s)", ErrIncludeNotFound, target, path)
		}
		included, err := r.resolve(target, depth+1)
		if err != nil {
			return Resolved{}, fmt.Errorf("%s: %w", path, err)
		}

		out.WriteString(text[cursor:start])
		out.WriteString(included.Text)
		if included.MTime > result.MTime {
			result.MTime = included.MTime
		}
		result.Changed = true
		cursor = end
	}

	if !result.Changed {
		result.Text = text
		return result, nil
	}
	out.WriteString(text[cursor:])
	result.Text = out.String()
	return result, nil
}
