/**
 * internal/middleware/compress.go
 * Brotli 预压缩文件协商中间件
 *
 * 功能：
 * - 客户端接受 br 且输出目录存在 <file>.br 时直接服务预压缩内容
 * - 零运行时压缩开销（release 构建生成 .br，dev 构建没有则回退原文件）
 * - Content-Type 取原文件类型
 *
 * 依赖：
 * - 构建系统生成的 .br 文件
 */

package middleware

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"strings"

	"sitebuild/internal/publish"

	"github.com/gin-gonic/gin"
)

// ====================  常量定义 ====================

const (
	// contentEncodingBrotli Brotli 编码标识
	contentEncodingBrotli = "br"

	// brotliExtension Brotli 文件扩展名
	brotliExtension = ".br"
)

// Resolver URL 到输出文件的解析器
type Resolver interface {
	Resolve(ctx context.Context, urlPath string) (string, error)
}

// ====================  公开函数 ====================

// PreCompressedStatic Brotli 预压缩静态文件中间件
// 未命中时交给下一个处理器（原文件或 404）
func PreCompressedStatic(resolver Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		method := c.Request.Method
		if method != http.MethodGet && method != http.MethodHead {
			c.Next()
			return
		}

		if !AcceptsBrotli(c.GetHeader("Accept-Encoding")) {
			c.Next()
			return
		}

		file, err := resolver.Resolve(c.Request.Context(), c.Request.URL.Path)
		if err != nil {
			c.Next()
			return
		}

		brPath := file + brotliExtension
		if fi, err := os.Stat(brPath); err != nil || fi.IsDir() {
			c.Next()
			return
		}

		setCompressedHeaders(c, publish.ContentType(file))
		c.File(brPath)
		c.Abort()
	}
}

// AcceptsBrotli Accept-Encoding 是否包含 br（q=0 视为拒绝）
func AcceptsBrotli(header string) bool {
	for _, part := range strings.Split(header, ",") {
		fields := strings.Split(part, ";")
		if strings.TrimSpace(fields[0]) != contentEncodingBrotli {
			continue
		}
		for _, param := range fields[1:] {
			param = strings.TrimSpace(param)
			if !strings.HasPrefix(param, "q=") {
				continue
			}
			if q, err := strconv.ParseFloat(param[2:], 64); err == nil && q == 0 {
				return false
			}
		}
		return true
	}
	return false
}

// ====================  私有函数 ====================

// setCompressedHeaders 设置压缩文件的响应头
func setCompressedHeaders(c *gin.Context, contentType string) {
	c.Header("Content-Encoding", contentEncodingBrotli)
	c.Header("Content-Type", contentType)
	// 告诉缓存服务器根据 Accept-Encoding 区分缓存
	c.Header("Vary", "Accept-Encoding")
}
