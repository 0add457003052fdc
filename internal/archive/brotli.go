/**
 * internal/archive/brotli.go
 * Brotli 预压缩模块
 *
 * 功能：
 * - 为输出目录中的文本文件生成 .br 副本（保留原文件）
 * - .br 的修改时间与原文件一致，已是最新时跳过
 * - 顺序执行
 */

package archive

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"sitebuild/internal/mtime"
	"sitebuild/internal/utils"

	"github.com/andybalholm/brotli"
)

// compressibleExts 需要预压缩的扩展名
var compressibleExts = map[string]bool{
	".js":   true,
	".css":  true,
	".html": true,
	".json": true,
	".svg":  true,
	".xml":  true,
	".txt":  true,
}

// BrotliStats 预压缩统计
type BrotliStats struct {
	Compressed      int
	Skipped         int
	OriginalBytes   int64
	CompressedBytes int64
}

// Ratio 压缩率（百分比）
func (s BrotliStats) Ratio() float64 {
	if s.OriginalBytes == 0 {
		return 0
	}
	return float64(s.CompressedBytes) / float64(s.OriginalBytes) * 100
}

// BrotliDir 预压缩目录中的文本文件
func BrotliDir(dir string, level int) (BrotliStats, error) {
	var stats BrotliStats

	// 收集需要压缩的文件
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(path, ".br") {
			return nil
		}
		if compressibleExts[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("failed to walk directory: %w", err)
	}

	for _, path := range files {
		srcTime := mtime.Of(path)
		brPath := path + ".br"
		if mtime.Of(brPath) == srcTime {
			stats.Skipped++
			continue
		}

		original, compressed, err := brotliFile(path, brPath, level)
		if err != nil {
			return stats, fmt.Errorf("%s: %w", path, err)
		}
		if compressed == 0 {
			stats.Skipped++
			continue
		}
		if err := mtime.Stamp(brPath, srcTime); err != nil {
			return stats, err
		}

		stats.Compressed++
		stats.OriginalBytes += original
		stats.CompressedBytes += compressed
	}

	return stats, nil
}

// brotliFile 使用 Brotli 压缩单个文件
// 返回原始大小和压缩后大小
func brotliFile(src, dst string, level int) (int64, int64, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read: %w", err)
	}

	// 跳过空文件
	if len(data) == 0 {
		return 0, 0, nil
	}

	var buf bytes.Buffer
	brWriter := brotli.NewWriterLevel(&buf, level)
	if _, err := brWriter.Write(data); err != nil {
		return 0, 0, fmt.Errorf("failed to write compressed data: %w", err)
	}
	if err := brWriter.Close(); err != nil {
		return 0, 0, fmt.Errorf("failed to close brotli writer: %w", err)
	}

	if err := utils.WriteFile(dst, buf.Bytes()); err != nil {
		return 0, 0, err
	}
	return int64(len(data)), int64(buf.Len()), nil
}
