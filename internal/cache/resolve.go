/**
 * internal/cache/resolve.go
 * 预览 URL 解析 LRU 缓存（带 singleflight 防缓存击穿）
 *
 * 功能：
 * - 去掉 URL 中的版本号（/main.v1712345678.css -> /main.css）
 *   只认最后一段中紧挨扩展名或位于结尾的 .v<数字>；同名文件真实存在时优先
 * - 按 "" / .png / .webp 后缀探测输出目录中的真实文件
 * - LRU 缓存策略 + TTL 过期（未找到的结果同样缓存）
 * - 命中率统计
 * - Singleflight 合并同一 URL 的并发解析
 * - 重新构建后整体失效
 *
 * 依赖：
 * - github.com/hashicorp/golang-lru/v2 (LRU 缓存实现)
 * - golang.org/x/sync/singleflight (防缓存击穿)
 */

package cache

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"sitebuild/internal/mtime"
	"sitebuild/internal/utils"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// ====================  错误定义 ====================

var (
	// ErrNotFound URL 在输出目录中没有对应文件
	ErrNotFound = errors.New("RESOURCE_NOT_FOUND")

	// ErrInvalidPath URL 路径无效
	ErrInvalidPath = errors.New("INVALID_PATH")

	// ErrCacheInitFailed 缓存初始化失败
	ErrCacheInitFailed = errors.New("CACHE_INIT_FAILED")
)

// IndexFile 目录默认页面
const IndexFile = "index.html"

// versionToken release 构建插入的版本号：位于最后一段，后面只能是最终扩展名或结尾
var versionToken = regexp.MustCompile(`\.v[0-9]+(\.[^./]+)?$`)

// ====================  数据结构 ====================

// cachedPath 缓存条目
// Path 为空表示该 URL 不存在（负缓存）
type cachedPath struct {
	Path     string
	CachedAt time.Time
}

// CacheStats 缓存统计信息
type CacheStats struct {
	Size     int     `json:"size"`     // 当前缓存条目数
	MaxSize  int     `json:"maxSize"`  // 最大缓存容量
	Hits     uint64  `json:"hits"`     // 缓存命中次数
	Misses   uint64  `json:"misses"`   // 缓存未命中次数
	HitRatio float64 `json:"hitRatio"` // 缓存命中率（0-1）
}

// ResolveCache URL 解析缓存
type ResolveCache struct {
	root    string                          // 输出目录
	cache   *lru.Cache[string, *cachedPath] // LRU 缓存实例
	ttl     time.Duration                   // 缓存过期时间
	maxSize int                             // 最大缓存容量
	hits    uint64                          // 命中计数器（原子操作）
	misses  uint64                          // 未命中计数器（原子操作）
	mu      sync.RWMutex                    // 读写锁
	sf      singleflight.Group              // 合并并发解析
}

// ====================  构造函数 ====================

// NewResolveCache 创建 URL 解析缓存
//
// 参数：
//   - root: 输出目录
//   - maxSize: 最大缓存容量，必须大于 0
//   - ttl: 缓存过期时间，必须大于 0
func NewResolveCache(root string, maxSize int, ttl time.Duration) (*ResolveCache, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: root is empty", ErrCacheInitFailed)
	}
	if maxSize <= 0 {
		utils.LogPrintf("[CACHE] ERROR: Invalid maxSize: %d (must be > 0)", maxSize)
		return nil, fmt.Errorf("%w: maxSize must be positive, got %d", ErrCacheInitFailed, maxSize)
	}
	if ttl <= 0 {
		utils.LogPrintf("[CACHE] ERROR: Invalid ttl: %v (must be > 0)", ttl)
		return nil, fmt.Errorf("%w: ttl must be positive, got %v", ErrCacheInitFailed, ttl)
	}

	c, err := lru.New[string, *cachedPath](maxSize)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create LRU cache: %v", ErrCacheInitFailed, err)
	}

	utils.LogPrintf("[CACHE] Resolve cache initialized: root=%s, maxSize=%d, ttl=%v", root, maxSize, ttl)

	return &ResolveCache{
		root:    root,
		cache:   c,
		ttl:     ttl,
		maxSize: maxSize,
	}, nil
}

// ====================  URL 处理 ====================

// StripVersion 去掉 URL 路径中的版本号
func StripVersion(urlPath string) string {
	return versionToken.ReplaceAllString(urlPath, "$1")
}

// IsVersioned URL 是否带有版本号（可长期缓存）
func IsVersioned(urlPath string) bool {
	return versionToken.MatchString(urlPath)
}

// normalize 清理 URL 路径（版本号在查找时处理）
// 结果总是以 / 开头，且不含 ..；以 / 结尾的路径指向目录下的 index.html
func normalize(urlPath string) (string, error) {
	if strings.ContainsRune(urlPath, 0) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, urlPath)
	}
	clean := path.Clean("/" + urlPath)
	if urlPath == "" || strings.HasSuffix(urlPath, "/") {
		clean = path.Join(clean, IndexFile)
	}
	return clean, nil
}

// ====================  缓存操作 ====================

// Resolve 解析 URL 到输出目录中的真实文件
//
// 返回：
//   - string: 文件路径
//   - error: ErrNotFound / ErrInvalidPath / ctx 错误
func (c *ResolveCache) Resolve(ctx context.Context, urlPath string) (string, error) {
	key, err := normalize(urlPath)
	if err != nil {
		return "", err
	}

	if entry, ok := c.get(key); ok {
		if entry.Path == "" {
			return "", fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return entry.Path, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// 等待期间可能已被其他请求解析
		if entry, ok := c.get(key); ok {
			return entry, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		entry := &cachedPath{CachedAt: time.Now()}
		found, err := c.lookup(key)
		if err != nil {
			return nil, err
		}
		entry.Path = found

		c.mu.Lock()
		c.cache.Add(key, entry)
		c.mu.Unlock()
		return entry, nil
	})
	if err != nil {
		return "", err
	}

	entry, ok := result.(*cachedPath)
	if !ok {
		return "", fmt.Errorf("%w: type assertion failed", ErrInvalidPath)
	}
	if entry.Path == "" {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return entry.Path, nil
}

// lookup 先按原路径查找（如 lib.v2.js 本身就是文件名），找不到再去掉版本号
// 都不存在时返回空路径
func (c *ResolveCache) lookup(key string) (string, error) {
	candidates := []string{key}
	if stripped := StripVersion(key); stripped != key {
		candidates = append(candidates, stripped)
	}

	for _, candidate := range candidates {
		found, _, err := mtime.ResolveIncomplete(filepath.Join(c.root, filepath.FromSlash(candidate)))
		if err == nil {
			return found, nil
		}
		if !errors.Is(err, mtime.ErrNotFound) {
			return "", err
		}
	}
	return "", nil
}

// get 读取未过期的缓存条目
func (c *ResolveCache) get(key string) (*cachedPath, bool) {
	c.mu.RLock()
	entry, ok := c.cache.Get(key)
	c.mu.RUnlock()

	if !ok || entry == nil {
		atomic.AddUint64(&c.misses, 1)
		return nil, false
	}

	if time.Since(entry.CachedAt) > c.ttl {
		c.mu.Lock()
		c.cache.Remove(key)
		c.mu.Unlock()
		atomic.AddUint64(&c.misses, 1)
		return nil, false
	}

	atomic.AddUint64(&c.hits, 1)
	return entry, true
}

// InvalidateAll 清空所有缓存（每次重新构建后调用）
func (c *ResolveCache) InvalidateAll() {
	c.mu.Lock()
	c.cache.Purge()
	c.mu.Unlock()

	utils.LogPrintf("[CACHE] All resolve entries invalidated")
}

// ====================  统计信息 ====================

// Stats 获取缓存统计信息
func (c *ResolveCache) Stats() CacheStats {
	hits := atomic.LoadUint64(&c.hits)
	misses := atomic.LoadUint64(&c.misses)
	total := hits + misses

	var hitRatio float64
	if total > 0 {
		hitRatio = float64(hits) / float64(total)
	}

	c.mu.RLock()
	size := c.cache.Len()
	c.mu.RUnlock()

	return CacheStats{
		Size:     size,
		MaxSize:  c.maxSize,
		Hits:     hits,
		Misses:   misses,
		HitRatio: hitRatio,
	}
}

// Root 返回输出目录
func (c *ResolveCache) Root() string {
	return c.root
}
