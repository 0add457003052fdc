/**
 * cmd/server/main.go
 * 预览服务器入口文件
 *
 * 功能：
 * - 服务输出目录（版本号 URL、.png/.webp 补全、Brotli 预压缩协商）
 * - 中间件配置（安全头、缓存头、请求日志）
 * - 可选：监听源目录并自动执行 dev 构建，构建后通过 WebSocket 通知页面刷新
 * - 优雅关闭（监听器、自动刷新连接、HTTP）
 *
 * 依赖：
 * - Gin Web 框架
 * - 内部构建与缓存模块
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"sitebuild/internal/build"
	"sitebuild/internal/cache"
	"sitebuild/internal/config"
	"sitebuild/internal/handlers"
	"sitebuild/internal/middleware"
	"sitebuild/internal/utils"
	"sitebuild/internal/watch"

	"github.com/gin-gonic/gin"
)

// ====================  常量定义 ====================

const (
	// 服务器超时配置
	serverReadTimeout  = 15 * time.Second
	serverWriteTimeout = 30 * time.Second
	serverIdleTimeout  = 60 * time.Second

	// 优雅关闭超时
	shutdownTimeout = 10 * time.Second

	// URL 解析缓存配置
	resolveCacheMaxSize = 1024
	resolveCacheTTL     = 30 * time.Second
)

// ====================  主函数 ====================

func main() {
	utils.LogPrintf("[SERVER] Starting preview server...")

	if err := run(); err != nil {
		utils.LogFatalf("[SERVER] FATAL: Server failed: %v", err)
	}
}

// run 运行服务器的主逻辑
func run() error {
	// 1. 加载配置
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}

	// 2. 设置 Gin 模式
	gin.SetMode(gin.ReleaseMode)

	// 3. 初始化 URL 解析缓存
	resolver, err := cache.NewResolveCache(cfg.TargetDir, resolveCacheMaxSize, resolveCacheTTL)
	if err != nil {
		return fmt.Errorf("cache init failed: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 4. 可选：启动源文件监听
	live := handlers.NewLiveReload()
	var watcher *watch.Watcher
	if cfg.PreviewWatch {
		watcher, err = startWatcher(ctx, cfg, resolver, live)
		if err != nil {
			return fmt.Errorf("watcher init failed: %w", err)
		}
	} else if _, err := os.Stat(cfg.TargetDir); err != nil {
		utils.LogPrintf("[SERVER] WARN: %s does not exist, run `go run ./cmd/build dev` first", cfg.TargetDir)
	}

	// 5. 初始化 Handler
	var builds handlers.BuildStatus
	if watcher != nil {
		builds = watcher
	}
	static, err := handlers.NewStaticHandler(cfg.TargetDir, resolver, builds)
	if err != nil {
		return fmt.Errorf("handler init failed: %w", err)
	}

	// 6. 创建路由并启动服务器
	srv := createServer(cfg.PreviewPort, setupRouter(static, resolver, live))
	startServer(srv)

	// 7. 等待关闭信号并优雅关闭
	<-ctx.Done()
	gracefulShutdown(srv, watcher, live)

	return nil
}

// ====================  初始化函数 ====================

// loadConfig 加载配置
func loadConfig() (*config.Config, error) {
	utils.LogPrintf("[CONFIG] Loading configuration...")

	cfg, err := config.Load()
	if err != nil {
		utils.LogPrintf("[CONFIG] ERROR: Failed to load config: %v", err)
		return nil, err
	}

	if cfg.PreviewPort == "" {
		utils.LogPrintf("[CONFIG] WARN: Port not configured, using default 8080")
		cfg.PreviewPort = "8080"
	}

	utils.LogPrintf("[CONFIG] Preview: port=%s, root=%s, watch=%v", cfg.PreviewPort, cfg.TargetDir, cfg.PreviewWatch)
	return cfg, nil
}

// startWatcher 先执行一次 dev 构建，再在后台监听源目录
// 初次构建失败不阻止启动（修复源文件后会自动重建）
func startWatcher(ctx context.Context, cfg *config.Config, resolver *cache.ResolveCache, live *handlers.LiveReload) (*watch.Watcher, error) {
	rebuild := func() (*build.Stats, error) {
		return build.New(cfg, build.Dev).Run()
	}

	w, err := watch.New(cfg.SourceDir, []string{cfg.TargetDir, cfg.CacheDir}, watch.DefaultDebounce, rebuild)
	if err != nil {
		return nil, err
	}
	// 先清空解析缓存，页面刷新时才能拿到新文件
	w.OnRebuild(resolver.InvalidateAll)
	w.OnRebuild(func() { live.Notify(w.Status()) })

	_ = w.Rebuild()

	go func() {
		if err := w.Run(ctx); err != nil {
			utils.LogPrintf("[WATCH] ERROR: Watcher stopped: %v", err)
		}
	}()
	return w, nil
}

// ====================  路由配置 ====================

// setupRouter 创建并配置路由
func setupRouter(static *handlers.StaticHandler, resolver middleware.Resolver, live *handlers.LiveReload) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(loggerMiddleware())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CacheHeaders())

	r.GET("/__preview/status", static.GetStatus)
	r.GET("/__preview/ws", live.Handle)
	r.GET("/__preview/livereload.js", live.Script)

	// 其余请求全部交给输出目录
	r.NoRoute(middleware.PreCompressedStatic(resolver), static.Serve)

	return r
}

// ====================  服务器管理 ====================

// createServer 创建 HTTP 服务器
func createServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         ":" + port,
		Handler:      handler,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}
}

// startServer 启动服务器（非阻塞）
func startServer(srv *http.Server) {
	go func() {
		utils.LogPrintf("[SERVER] Starting HTTP server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.LogFatalf("[SERVER] FATAL: HTTP server failed: %v", err)
		}
	}()

	utils.LogPrintf("[SERVER] Preview is running on http://localhost%s", srv.Addr)
}

// ====================  中间件 ====================

// loggerMiddleware 日志中间件
// 记录 HTTP 请求的方法、路径、状态码和延迟
func loggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		// 静态资源只记录错误
		if shouldSkipLog(path) && status < 400 {
			return
		}

		latency := time.Since(start)
		switch {
		case status >= 500:
			utils.LogPrintf("[HTTP] ERROR: %s %s %d %v", c.Request.Method, path, status, latency)
		case status >= 400:
			utils.LogPrintf("[HTTP] WARN: %s %s %d %v", c.Request.Method, path, status, latency)
		default:
			utils.LogPrintf("[HTTP] %s %s %d %v", c.Request.Method, path, status, latency)
		}
	}
}

// shouldSkipLog 判断是否跳过日志记录
func shouldSkipLog(path string) bool {
	skipSuffixes := []string{".js", ".css", ".png", ".webp", ".jpg", ".ico", ".woff", ".woff2", ".br"}
	for _, suffix := range skipSuffixes {
		if strings.HasSuffix(path, suffix) {
			return true
		}
	}
	return strings.HasPrefix(path, "/__preview/")
}

// ====================  优雅关闭 ====================

// gracefulShutdown 优雅关闭服务器
// 按顺序关闭：监听器 -> 自动刷新连接 -> HTTP
func gracefulShutdown(srv *http.Server, watcher *watch.Watcher, live *handlers.LiveReload) {
	utils.LogPrintf("[SERVER] Received shutdown signal, initiating graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if watcher != nil {
		if err := watcher.Close(); err != nil {
			utils.LogPrintf("[SERVER] WARN: Watcher close failed: %v", err)
		}
	}

	// 升级后的连接不受 srv.Shutdown 管理
	live.Shutdown()

	utils.LogPrintf("[SERVER] Shutting down HTTP server...")
	if err := srv.Shutdown(ctx); err != nil {
		utils.LogPrintf("[SERVER] ERROR: HTTP server shutdown failed: %v", err)
	} else {
		utils.LogPrintf("[SERVER] HTTP server stopped")
	}

	utils.SyncLogger()
	utils.LogPrintf("[SERVER] Graceful shutdown completed")
}
