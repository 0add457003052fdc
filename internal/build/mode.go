/**
 * internal/build/mode.go
 * 构建模式与模式标记
 *
 * 模式：
 *   release  清空输出目录，压缩，版本号，打包开发资源，Brotli 预压缩
 *   dev      增量构建，不压缩
 *   nojs     同 dev，但跳过 JavaScript 打包
 *
 * dev 与 nojs 共用 dev 产物（flavor），release 单独一套。
 * 输出目录中的 .build-mode 记录上次构建的 flavor，
 * flavor 从 release 切换到 dev 时必须先清空输出目录。
 */

package build

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"sitebuild/internal/utils"
)

// ====================  常量定义 ====================

// Mode 构建模式
type Mode string

const (
	Release Mode = "release"
	Dev     Mode = "dev"
	NoJS    Mode = "nojs"
)

// ModeFile 输出目录中记录上次构建 flavor 的文件
const ModeFile = ".build-mode"

// ErrUnknownMode 未知构建模式
var ErrUnknownMode = errors.New("UNKNOWN_BUILD_MODE")

// ====================  公开函数 ====================

// ParseMode 解析模式名
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case Release, Dev, NoJS:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q (expected release, dev or nojs)", ErrUnknownMode, s)
}

// Flavor 产物类型：release 或 dev
func (m Mode) Flavor() string {
	if m == Release {
		return string(Release)
	}
	return string(Dev)
}

// Minify 是否压缩并插入版本号
func (m Mode) Minify() bool {
	return m == Release
}

// BundlesJS 是否打包 JavaScript
func (m Mode) BundlesJS() bool {
	return m != NoJS
}

// previousFlavor 读取上次构建的 flavor，不存在时返回空串
func previousFlavor(target string) string {
	data, err := os.ReadFile(filepath.Join(target, ModeFile))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// recordFlavor 写入本次构建的 flavor（内容未变时不写）
func recordFlavor(target, flavor string) error {
	if previousFlavor(target) == flavor {
		return nil
	}
	return utils.WriteFile(filepath.Join(target, ModeFile), []byte(flavor+"\n"))
}
