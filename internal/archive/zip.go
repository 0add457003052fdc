/**
 * internal/archive/zip.go
 * 开发资源目录打包（正式构建）
 *
 * 功能：
 * - 将目录打包为 zip（条目按路径排序，条目时间取自源文件）
 * - 压缩包修改时间设置为最新的成员修改时间，未变化时跳过
 *
 * 依赖：
 * - github.com/klauspost/compress/zip
 */

package archive

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"sitebuild/internal/mtime"

	"github.com/klauspost/compress/zip"
)

// ErrEmptyArchive 待打包目录不存在或为空
var ErrEmptyArchive = errors.New("EMPTY_ARCHIVE")

// ZipDir 将 srcDir 打包到 dst，返回是否写入和写入字节数
func ZipDir(srcDir, dst string) (bool, int64, error) {
	var files []string
	err := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return false, 0, fmt.Errorf("%w: %s: %v", ErrEmptyArchive, srcDir, err)
	}
	if len(files) == 0 {
		return false, 0, fmt.Errorf("%w: %s", ErrEmptyArchive, srcDir)
	}
	sort.Strings(files)

	newest := mtime.Max(files...)
	if mtime.Current(dst, newest) {
		return false, 0, nil
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return false, 0, fmt.Errorf("failed to create directory: %w", err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return false, 0, fmt.Errorf("failed to create %s: %w", dst, err)
	}

	zw := zip.NewWriter(out)
	for _, path := range files {
		if err := addFile(zw, srcDir, path); err != nil {
			_ = zw.Close()
			_ = out.Close()
			_ = os.Remove(dst)
			return false, 0, err
		}
	}
	if err := zw.Close(); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return false, 0, fmt.Errorf("failed to finish zip: %w", err)
	}
	if err := out.Close(); err != nil {
		return false, 0, fmt.Errorf("failed to close zip: %w", err)
	}

	if err := mtime.Stamp(dst, newest); err != nil {
		return false, 0, err
	}
	info, err := os.Stat(dst)
	if err != nil {
		return false, 0, err
	}
	return true, info.Size(), nil
}

// addFile 写入一个 zip 条目
func addFile(zw *zip.Writer, root, path string) error {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return err
	}

	header := &zip.FileHeader{
		Name:     filepath.ToSlash(rel),
		Method:   zip.Deflate,
		Modified: time.Unix(mtime.Of(path), 0).UTC(),
	}
	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", rel, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", rel, err)
	}
	defer func() { _ = f.Close() }()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to compress %s: %w", rel, err)
	}
	return nil
}
