/**
 * internal/utils/files.go
 * 文件辅助函数
 *
 * 功能：
 * - 文件复制（自动创建目标目录）
 * - 写文件（自动创建目标目录）
 * - 字节格式化
 */

package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ====================  常量定义 ====================

const (
	// DirPerm 目录权限
	DirPerm = 0755
	// FilePerm 文件权限
	FilePerm = 0644
)

// ====================  公开函数 ====================

// CopyFile 复制文件，返回写入的字节数
func CopyFile(src, dst string) (int64, error) {
	// 打开源文件
	srcFile, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("failed to open source: %w", err)
	}
	defer func() { _ = srcFile.Close() }()

	// 确保目标目录存在
	if err := os.MkdirAll(filepath.Dir(dst), DirPerm); err != nil {
		return 0, fmt.Errorf("failed to create directory: %w", err)
	}

	// 创建目标文件
	dstFile, err := os.Create(dst)
	if err != nil {
		return 0, fmt.Errorf("failed to create destination: %w", err)
	}

	// 复制内容
	written, err := io.Copy(dstFile, srcFile)
	if err != nil {
		_ = dstFile.Close()
		return 0, fmt.Errorf("failed to copy: %w", err)
	}

	if err := dstFile.Close(); err != nil {
		return 0, fmt.Errorf("failed to close destination: %w", err)
	}

	return written, nil
}

// WriteFile 写文件，目标目录不存在时自动创建
func WriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), DirPerm); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, FilePerm); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// FormatBytes 格式化字节数为人类可读格式
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
	)

	switch {
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
