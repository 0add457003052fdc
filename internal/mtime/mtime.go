/**
 * internal/mtime/mtime.go
 * 修改时间判定模块
 *
 * 功能：
 * - 获取文件修改时间（秒级，向上取整；不存在返回 Missing）
 * - 多源最大修改时间
 * - 不完整路径探测（"", ".png", ".webp"）
 * - 将产物的修改时间写回为源文件的修改时间
 *
 * 过期规则：
 *   产物修改时间 >= 源修改时间 时跳过；
 *   重建后产物的修改时间被设置为源修改时间，
 *   使下一次构建能沿依赖链正确传播过期状态。
 */

package mtime

import (
	"errors"
	"fmt"
	"os"
	"time"
)

// ====================  常量定义 ====================

// Missing 文件不存在时的修改时间，比任何真实文件都旧
const Missing int64 = -1

// incompleteSuffixes 不完整路径的候选后缀（按顺序探测）
var incompleteSuffixes = []string{"", ".png", ".webp"}

// ====================  错误定义 ====================

// ErrNotFound 不完整路径的所有候选都不存在
var ErrNotFound = errors.New("PATH_NOT_FOUND")

// ====================  公开函数 ====================

// Of 返回路径的修改时间（Unix 秒，向上取整）
// 路径不存在或无法访问时返回 Missing，不会返回错误
func Of(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return Missing
	}
	return ceilSeconds(info.ModTime())
}

// Max 返回多个路径中最大的修改时间
// 空列表返回 Missing
func Max(paths ...string) int64 {
	result := Missing
	for _, p := range paths {
		if t := Of(p); t > result {
			result = t
		}
	}
	return result
}

// ResolveIncomplete 探测不完整路径，返回第一个存在的真实路径及其修改时间
func ResolveIncomplete(logical string) (string, int64, error) {
	for _, suffix := range incompleteSuffixes {
		candidate := logical + suffix
		info, err := os.Stat(candidate)
		if err != nil || info.IsDir() {
			continue
		}
		return candidate, ceilSeconds(info.ModTime()), nil
	}
	return "", Missing, fmt.Errorf("%w: %s", ErrNotFound, logical)
}

// Stamp 将文件的访问时间和修改时间设置为 t（Unix 秒）
func Stamp(path string, t int64) error {
	if t < 0 {
		return nil
	}
	ts := time.Unix(t, 0)
	if err := os.Chtimes(path, ts, ts); err != nil {
		return fmt.Errorf("failed to stamp %s: %w", path, err)
	}
	return nil
}

// Current 判断文本类产物是否最新（产物修改时间 >= 源修改时间）
// 源不存在（Missing）时，只要产物存在即视为最新
func Current(output string, sources int64) bool {
	out := Of(output)
	return out != Missing && out >= sources
}

// AllEqual 判断所有产物都存在且修改时间恰好等于 t（图片类产物）
func AllEqual(outputs []string, t int64) bool {
	if len(outputs) == 0 {
		return false
	}
	for _, o := range outputs {
		if Of(o) != t {
			return false
		}
	}
	return true
}

// ====================  私有函数 ====================

// ceilSeconds 向上取整到秒
func ceilSeconds(t time.Time) int64 {
	sec := t.Unix()
	if t.Nanosecond() > 0 {
		sec++
	}
	return sec
}
