/**
 * internal/stage/stage.go
 * 构建阶段计数与进度日志
 *
 * 日志格式：
 *   [BUILD] 3. Copy Resource Files
 *   [BUILD]  .. wrote res/font.woff2 (12.30 KB)
 *   [BUILD]  .. 1 written, 4 skipped
 */

package stage

import (
	"fmt"

	"sitebuild/internal/utils"
)

// Result 单个阶段的写入/跳过统计
type Result struct {
	Written int
	Skipped int
	Bytes   int64
}

// Wrote 记录一次写入
func (r *Result) Wrote(path string, n int64) {
	r.Written++
	r.Bytes += n
	Detail("wrote %s (%s)", path, utils.FormatBytes(n))
}

// Skip 记录一次跳过
func (r *Result) Skip() {
	r.Skipped++
}

// Add 合并另一个阶段结果
func (r *Result) Add(o Result) {
	r.Written += o.Written
	r.Skipped += o.Skipped
	r.Bytes += o.Bytes
}

// String 摘要
func (r Result) String() string {
	return fmt.Sprintf("%d written, %d skipped", r.Written, r.Skipped)
}

// Log 编号的阶段日志（编号连续）
type Log struct {
	n int
}

// Begin 开始下一个阶段
func (l *Log) Begin(name string) {
	l.n++
	utils.LogPrintf("[BUILD] %d. %s", l.n, name)
}

// Count 已开始的阶段数
func (l *Log) Count() int {
	return l.n
}

// Detail 阶段内的明细行
func Detail(format string, args ...interface{}) {
	utils.LogPrintf("[BUILD]  .. "+format, args...)
}
