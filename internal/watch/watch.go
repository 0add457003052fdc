/**
 * internal/watch/watch.go
 * 源文件监听与自动重建
 *
 * 功能：
 * - fsnotify 递归监听源目录（新建目录自动加入）
 * - 排除输出目录、中间产物目录、隐藏文件和编辑器临时文件
 * - 去抖动：一段时间内的多次修改合并为一次重建
 * - 重建串行执行（同一输出目录不能并发构建）
 * - 记录最近一次构建状态（供预览服务查询）
 *
 * 依赖：
 * - github.com/fsnotify/fsnotify
 */

package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"sitebuild/internal/build"
	"sitebuild/internal/utils"

	"github.com/fsnotify/fsnotify"
)

// ====================  常量定义 ====================

// DefaultDebounce 默认去抖动时间
const DefaultDebounce = 300 * time.Millisecond

// ErrNoRebuild 未提供重建函数
var ErrNoRebuild = errors.New("REBUILD_FUNC_REQUIRED")

// ====================  数据结构 ====================

// RebuildFunc 执行一次构建
type RebuildFunc func() (*build.Stats, error)

// Status 最近一次构建状态
type Status struct {
	Builds    int       `json:"builds"`
	LastBuild time.Time `json:"lastBuild"`
	LastError string    `json:"lastError,omitempty"`
	Written   int       `json:"written"`
	Skipped   int       `json:"skipped"`
	Elapsed   string    `json:"elapsed"`
}

// Watcher 源文件监听器
type Watcher struct {
	root     string
	exclude  []string
	debounce time.Duration
	rebuild  RebuildFunc
	after    []func()
	fsw      *fsnotify.Watcher

	buildMu  sync.Mutex // 串行化构建
	statusMu sync.RWMutex
	status   Status
}

// ====================  构造函数 ====================

// New 创建监听器并递归注册源目录
//
// 参数：
//   - root: 源目录
//   - exclude: 不监听的目录（输出目录、中间产物目录）
//   - debounce: 去抖动时间，<= 0 时使用 DefaultDebounce
//   - rebuild: 重建函数
func New(root string, exclude []string, debounce time.Duration, rebuild RebuildFunc) (*Watcher, error) {
	if rebuild == nil {
		return nil, ErrNoRebuild
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", root, err)
	}

	w := &Watcher{root: absRoot, debounce: debounce, rebuild: rebuild}
	for _, dir := range exclude {
		if abs, err := filepath.Abs(dir); err == nil {
			w.exclude = append(w.exclude, abs)
		}
	}

	w.fsw, err = fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fsnotify: %w", err)
	}
	if err := w.addTree(absRoot); err != nil {
		_ = w.fsw.Close()
		return nil, err
	}

	utils.LogPrintf("[WATCH] Watching %s (excluding %s)", absRoot, strings.Join(w.exclude, ", "))
	return w, nil
}

// OnRebuild 注册构建完成后的回调（成功或失败都会调用）
func (w *Watcher) OnRebuild(fn func()) {
	w.after = append(w.after, fn)
}

// ====================  构建 ====================

// Rebuild 立即执行一次构建
// 并发调用会排队，保证同一时间只有一次构建
func (w *Watcher) Rebuild() error {
	w.buildMu.Lock()
	defer w.buildMu.Unlock()

	stats, err := w.rebuild()

	w.statusMu.Lock()
	w.status.Builds++
	w.status.LastBuild = time.Now()
	if err != nil {
		w.status.LastError = err.Error()
	} else {
		w.status.LastError = ""
		if stats != nil {
			w.status.Written = stats.Written
			w.status.Skipped = stats.Skipped
			w.status.Elapsed = stats.Elapsed.String()
		}
	}
	w.statusMu.Unlock()

	for _, fn := range w.after {
		fn()
	}

	if err != nil {
		utils.LogPrintf("[WATCH] ERROR: Rebuild failed: %v", err)
		return err
	}
	return nil
}

// Status 返回最近一次构建状态
func (w *Watcher) Status() Status {
	w.statusMu.RLock()
	defer w.statusMu.RUnlock()
	return w.status
}

// ====================  事件循环 ====================

// Run 处理文件事件直到 ctx 取消
func (w *Watcher) Run(ctx context.Context) error {
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			if ev.Has(fsnotify.Create) {
				if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
					_ = w.addTree(ev.Name)
				}
			}
			timer.Reset(w.debounce)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			utils.LogPrintf("[WATCH] WARN: Watcher error: %v", err)

		case <-timer.C:
			utils.LogPrintf("[WATCH] Change detected, rebuilding")
			_ = w.Rebuild()
		}
	}
}

// Close 停止监听
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// ====================  私有函数 ====================

// relevant 事件是否需要触发重建
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	// 修改时间戳等属性变化不算内容变化
	if ev.Op == fsnotify.Chmod {
		return false
	}
	return !w.excluded(ev.Name) && !ignoredName(filepath.Base(ev.Name))
}

// excluded 路径是否位于排除目录内
func (w *Watcher) excluded(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return true
	}
	for _, dir := range w.exclude {
		if abs == dir || strings.HasPrefix(abs, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// addTree 递归注册目录
func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && (w.excluded(path) || ignoredName(d.Name())) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			utils.LogPrintf("[WATCH] WARN: Failed to watch %s: %v", path, err)
		}
		return nil
	})
}

// ignoredName 隐藏文件和编辑器临时文件
func ignoredName(base string) bool {
	switch {
	case strings.HasPrefix(base, "."),
		strings.HasSuffix(base, "~"),
		strings.HasSuffix(base, ".swp"),
		strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#"):
		return true
	}
	return false
}
