/**
 * internal/handlers/static.go
 * 预览服务静态文件 Handler
 *
 * 功能：
 * - 服务输出目录中的文件（去掉版本号、补全 .png/.webp 后缀）
 * - 目录请求服务 index.html
 * - 404 页面处理（输出目录有 404.html 时使用）
 * - 状态 API（解析缓存统计、最近一次自动构建）
 *
 * 依赖：
 * - internal/cache (URL 解析缓存)
 * - internal/watch (自动构建状态)
 */

package handlers

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"sitebuild/internal/cache"
	"sitebuild/internal/utils"
	"sitebuild/internal/watch"

	"github.com/gin-gonic/gin"
)

// ====================  错误定义 ====================

var (
	// ErrStaticHandlerNotInitialized Handler 参数缺失
	ErrStaticHandlerNotInitialized = errors.New("STATIC_HANDLER_NOT_INITIALIZED")
)

// ====================  常量定义 ====================

const (
	// NotFoundPage 输出目录中的 404 页面
	NotFoundPage = "404.html"

	// ContentTypeHTML HTML 内容类型
	ContentTypeHTML = "text/html; charset=utf-8"
)

// ====================  依赖接口 ====================

// Resolver URL 解析器
type Resolver interface {
	Resolve(ctx context.Context, urlPath string) (string, error)
	Stats() cache.CacheStats
}

// BuildStatus 自动构建状态来源
type BuildStatus interface {
	Status() watch.Status
}

// ====================  Handler 结构 ====================

// StaticHandler 预览静态文件 Handler
type StaticHandler struct {
	root     string      // 输出目录
	resolver Resolver    // URL 解析缓存
	builds   BuildStatus // 自动构建状态（未开启监听时为 nil）
}

// NewStaticHandler 创建静态文件 Handler
//
// 参数：
//   - root: 输出目录（必需）
//   - resolver: URL 解析器（必需）
//   - builds: 自动构建状态（可选）
func NewStaticHandler(root string, resolver Resolver, builds BuildStatus) (*StaticHandler, error) {
	if root == "" {
		utils.LogPrintf("[PREVIEW] ERROR: root is empty")
		return nil, errors.Join(ErrStaticHandlerNotInitialized, errors.New("root is required"))
	}
	if resolver == nil {
		utils.LogPrintf("[PREVIEW] ERROR: resolver is nil")
		return nil, errors.Join(ErrStaticHandlerNotInitialized, errors.New("resolver is required"))
	}

	utils.LogPrintf("[PREVIEW] StaticHandler initialized: root=%s", root)

	return &StaticHandler{root: root, resolver: resolver, builds: builds}, nil
}

// ====================  文件服务 ====================

// Serve 服务输出目录中的文件
// 挂载在 NoRoute 上，处理所有未匹配的 GET/HEAD 请求
func (h *StaticHandler) Serve(c *gin.Context) {
	method := c.Request.Method
	if method != http.MethodGet && method != http.MethodHead {
		c.Header("Allow", "GET, HEAD")
		c.String(http.StatusMethodNotAllowed, "405 Method Not Allowed")
		return
	}

	file, err := h.resolver.Resolve(c.Request.Context(), c.Request.URL.Path)
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) || errors.Is(err, cache.ErrInvalidPath) {
			h.NotFound(c)
			return
		}
		utils.LogPrintf("[PREVIEW] ERROR: Resolve %s failed: %v", c.Request.URL.Path, err)
		c.String(http.StatusInternalServerError, "500 Internal Server Error")
		return
	}

	c.File(file)
}

// NotFound 404 处理
// 输出目录有 404.html 时返回该页面，否则返回纯文本
func (h *StaticHandler) NotFound(c *gin.Context) {
	path := c.Request.URL.Path
	if !isStaticAsset(path) {
		utils.LogPrintf("[PREVIEW] 404: %s %s", c.Request.Method, path)
	}

	if data, err := os.ReadFile(filepath.Join(h.root, NotFoundPage)); err == nil {
		c.Data(http.StatusNotFound, ContentTypeHTML, data)
		return
	}

	c.String(http.StatusNotFound, "404 Not Found")
}

// ====================  状态 API ====================

// GetStatus 预览服务状态
// GET /__preview/status
//
// 响应：
//   - cache: 解析缓存统计
//   - build: 最近一次自动构建（未开启监听时省略）
func (h *StaticHandler) GetStatus(c *gin.Context) {
	resp := gin.H{
		"status": "ok",
		"root":   h.root,
		"cache":  h.resolver.Stats(),
	}

	if h.builds != nil {
		st := h.builds.Status()
		resp["build"] = st
		if st.LastError != "" {
			resp["status"] = "degraded"
		}
	}

	c.JSON(http.StatusOK, resp)
}

// isStaticAsset 检查路径是否为静态资源
// 用于过滤 404 日志
func isStaticAsset(path string) bool {
	staticExtensions := []string{
		".js", ".css", ".png", ".jpg", ".jpeg", ".gif", ".svg", ".ico",
		".webp", ".woff", ".woff2", ".ttf", ".map", ".json",
	}

	for _, ext := range staticExtensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}
