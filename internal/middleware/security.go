/**
 * internal/middleware/security.go
 * 安全头与缓存头中间件
 *
 * 功能：
 * - 设置安全响应头（防止 MIME 嗅探、点击劫持）
 * - 带版本号的资源长期缓存，其余资源每次重新验证
 *
 * 安全头说明：
 * - X-Content-Type-Options: 防止 MIME 类型嗅探攻击
 * - Referrer-Policy: 控制 Referrer 信息泄露
 * - Permissions-Policy: 限制浏览器功能（地理位置、麦克风、摄像头）
 * - Content-Security-Policy: 仅 HTML 页面，防止点击劫持
 */

package middleware

import (
	"path"
	"strings"

	"sitebuild/internal/cache"

	"github.com/gin-gonic/gin"
)

// ====================  常量定义 ====================

const (
	// headerXContentTypeOptions 防止 MIME 类型嗅探
	headerXContentTypeOptions = "nosniff"

	// headerReferrerPolicy Referrer 策略
	headerReferrerPolicy = "strict-origin-when-cross-origin"

	// headerPermissionsPolicy 权限策略
	headerPermissionsPolicy = "geolocation=(), microphone=(), camera=()"

	// headerCSPFrameAncestors CSP frame-ancestors 策略
	headerCSPFrameAncestors = "frame-ancestors 'self'"

	// headerCacheControlImmutable 不可变资源缓存（1年）
	headerCacheControlImmutable = "public, max-age=31536000, immutable"

	// headerCacheControlRevalidate 每次重新验证
	headerCacheControlRevalidate = "no-cache"
)

// ====================  数据结构 ====================

// SecurityConfig 安全中间件配置
type SecurityConfig struct {
	// EnableCSP 是否启用 CSP
	EnableCSP bool
	// EnableReferrerPolicy 是否启用 Referrer 策略
	EnableReferrerPolicy bool
	// EnablePermissionsPolicy 是否启用权限策略
	EnablePermissionsPolicy bool
	// CustomCSP 自定义 CSP 策略
	CustomCSP string
}

// ====================  公开函数 ====================

// SecurityHeaders 安全头中间件（使用默认配置）
func SecurityHeaders() gin.HandlerFunc {
	return SecurityHeadersWithConfig(SecurityConfig{
		EnableCSP:               true,
		EnableReferrerPolicy:    true,
		EnablePermissionsPolicy: true,
	})
}

// SecurityHeadersWithConfig 使用自定义配置的安全头中间件
func SecurityHeadersWithConfig(config SecurityConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", headerXContentTypeOptions)

		if config.EnableReferrerPolicy {
			c.Header("Referrer-Policy", headerReferrerPolicy)
		}
		if config.EnablePermissionsPolicy {
			c.Header("Permissions-Policy", headerPermissionsPolicy)
		}

		if config.EnableCSP && isHTMLPage(c.Request.URL.Path) {
			csp := headerCSPFrameAncestors
			if config.CustomCSP != "" {
				csp = config.CustomCSP
			}
			c.Header("Content-Security-Policy", csp)
		}

		c.Next()
	}
}

// CacheHeaders 缓存头中间件
// 带 .v<时间戳> 的 URL 内容不会变化，可以长期缓存
func CacheHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		if cache.IsVersioned(c.Request.URL.Path) {
			c.Header("Cache-Control", headerCacheControlImmutable)
		} else {
			c.Header("Cache-Control", headerCacheControlRevalidate)
		}
		c.Next()
	}
}

// ====================  私有函数 ====================

// isHTMLPage 判断是否为 HTML 页面（目录、.html 或无扩展名）
func isHTMLPage(p string) bool {
	if p == "" {
		return false
	}
	if strings.HasSuffix(p, "/") || strings.HasSuffix(p, ".html") {
		return true
	}
	return path.Ext(p) == ""
}
