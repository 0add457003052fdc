/**
 * internal/config/config.go
 * 构建配置加载模块
 *
 * 功能：
 * - 从环境变量加载所有配置
 * - 提供默认值和类型转换
 * - 配置验证（取值范围检查）
 * - 安全的配置访问（防止 nil panic）
 *
 * 依赖：
 * - github.com/joho/godotenv (.env 文件加载)
 */

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"sitebuild/internal/utils"

	"github.com/joho/godotenv"
)

// ====================  错误定义 ====================

var (
	// ErrInvalidValue 配置值无效
	ErrInvalidValue = errors.New("INVALID_CONFIG_VALUE")

	// ErrPublishNotConfigured 发布目标未配置
	ErrPublishNotConfigured = errors.New("PUBLISH_NOT_CONFIGURED")
)

// ====================  配置结构 ====================

// Config 构建配置
type Config struct {
	// 路径配置
	ManifestPath    string // 编译清单路径，默认 compilation.json
	SourceDir       string // 源文件根目录，默认 .
	TargetDir       string // 输出目录，默认 compiled
	CacheDir        string // 中间产物目录，默认 build
	AnnotationsPath string // 注解文件（相对输出目录）
	FaviconSource   string // favicon 源图（相对源目录）

	// 版本标记配置
	SiteRoot     string // 解析版本路径前去掉的站点 URL 前缀
	VersionFloor int64  // 版本号下限（强制缓存失效）

	// 处理配置
	ImageCacheSize int // 解码图片 LRU 容量
	BrotliLevel    int // Brotli 压缩级别（0-11）

	// 预览服务配置
	PreviewPort  string // 预览端口
	PreviewWatch bool   // 源文件变化时自动重建

	// 发布配置（S3 兼容存储）
	PublishEndpoint  string
	PublishAccessKey string
	PublishSecretKey string
	PublishBucket    string
	PublishRegion    string
	PublishPrefix    string
}

// ====================  全局配置实例 ====================

var (
	cfg     *Config      // 全局配置实例
	cfgOnce sync.Once    // 确保只加载一次
	cfgMu   sync.RWMutex // 配置读写锁
)

// ====================  配置加载 ====================

// Load 加载配置
// 从环境变量加载所有配置项，支持 .env 文件
//
// 返回：
//   - *Config: 配置实例
//   - error: ErrInvalidValue（配置值无效）
//
// 注意：
//   - .env 文件不存在时会记录日志但不会返回错误
func Load() (*Config, error) {
	var loadErr error

	cfgOnce.Do(func() {
		var newCfg *Config
		newCfg, loadErr = loadConfig()
		if loadErr != nil {
			return
		}
		cfgMu.Lock()
		cfg = newCfg
		cfgMu.Unlock()
	})

	if loadErr != nil {
		return nil, loadErr
	}

	cfgMu.RLock()
	defer cfgMu.RUnlock()

	if cfg == nil {
		return nil, fmt.Errorf("%w: configuration failed to load earlier", ErrInvalidValue)
	}
	return cfg, nil
}

// loadConfig 内部配置加载函数
func loadConfig() (*Config, error) {
	if err := godotenv.Load(".env"); err == nil {
		utils.LogPrintf("[CONFIG] Loaded .env")
	}

	return FromEnv()
}

// FromEnv 从当前环境变量构造配置（不读取 .env）
func FromEnv() (*Config, error) {
	c := Default()

	c.ManifestPath = getEnv("COMPILATION_SPEC", c.ManifestPath)
	c.SourceDir = getEnv("SOURCE_DIR", c.SourceDir)
	c.TargetDir = getEnv("BUILD_TARGET_DIR", c.TargetDir)
	c.CacheDir = getEnv("BUILD_CACHE_DIR", c.CacheDir)
	c.AnnotationsPath = getEnv("ANNOTATIONS_PATH", c.AnnotationsPath)
	c.FaviconSource = getEnv("FAVICON_SOURCE", c.FaviconSource)
	c.SiteRoot = getEnv("SITE_ROOT_URL", c.SiteRoot)
	c.PreviewPort = getEnv("PREVIEW_PORT", c.PreviewPort)

	var err error
	if c.VersionFloor, err = getEnvInt64("VERSION_FLOOR", c.VersionFloor); err != nil {
		return nil, err
	}
	if c.ImageCacheSize, err = getEnvInt("IMAGE_CACHE_SIZE", c.ImageCacheSize); err != nil {
		return nil, err
	}
	if c.BrotliLevel, err = getEnvInt("BROTLI_LEVEL", c.BrotliLevel); err != nil {
		return nil, err
	}
	if c.PreviewWatch, err = getEnvBool("PREVIEW_WATCH", c.PreviewWatch); err != nil {
		return nil, err
	}

	c.PublishEndpoint = getEnv("PUBLISH_ENDPOINT", "")
	c.PublishAccessKey = getEnv("PUBLISH_ACCESS_KEY", "")
	c.PublishSecretKey = getEnv("PUBLISH_SECRET_KEY", "")
	c.PublishBucket = getEnv("PUBLISH_BUCKET", "")
	c.PublishRegion = getEnv("PUBLISH_REGION", c.PublishRegion)
	c.PublishPrefix = strings.Trim(getEnv("PUBLISH_PREFIX", ""), "/")

	if err := validateConfig(c); err != nil {
		return nil, err
	}

	utils.LogPrintf("[CONFIG] Configuration loaded: spec=%s, target=%s, cache=%s",
		c.ManifestPath, c.TargetDir, c.CacheDir)
	return c, nil
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		ManifestPath:    "compilation.json",
		SourceDir:       ".",
		TargetDir:       "compiled",
		CacheDir:        "build",
		AnnotationsPath: "res/annotations.json",
		FaviconSource:   "res/favicon.png",
		ImageCacheSize:  32,
		BrotliLevel:     11,
		PreviewPort:     "8080",
		PublishRegion:   "auto",
	}
}

// validateConfig 验证配置
func validateConfig(c *Config) error {
	var problems []string

	if c.TargetDir == "" || c.CacheDir == "" {
		problems = append(problems, "BUILD_TARGET_DIR and BUILD_CACHE_DIR must not be empty")
	}
	if c.BrotliLevel < 0 || c.BrotliLevel > 11 {
		problems = append(problems, fmt.Sprintf("BROTLI_LEVEL=%d must be within 0..11", c.BrotliLevel))
	}
	if c.VersionFloor < 0 {
		problems = append(problems, fmt.Sprintf("VERSION_FLOOR=%d must not be negative", c.VersionFloor))
	}

	if len(problems) > 0 {
		errMsg := strings.Join(problems, "; ")
		utils.LogPrintf("[CONFIG] ERROR: %s", errMsg)
		return fmt.Errorf("%w: %s", ErrInvalidValue, errMsg)
	}
	return nil
}

// ====================  配置检查方法 ====================

// IsPublishConfigured 检查发布配置是否完整
func (c *Config) IsPublishConfigured() bool {
	return c.PublishEndpoint != "" && c.PublishAccessKey != "" &&
		c.PublishSecretKey != "" && c.PublishBucket != ""
}

// ====================  辅助函数 ====================

// getEnv 获取环境变量，支持默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt 获取整数环境变量
func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%w: %s=%s is not a valid integer", ErrInvalidValue, key, value)
	}
	if intVal < 0 {
		return defaultValue, fmt.Errorf("%w: %s=%d must not be negative", ErrInvalidValue, key, intVal)
	}
	return intVal, nil
}

// getEnvInt64 获取 int64 环境变量（Unix 时间戳）
func getEnvInt64(key string, defaultValue int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	v, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return defaultValue, fmt.Errorf("%w: %s=%s is not a valid integer", ErrInvalidValue, key, value)
	}
	return v, nil
}

// getEnvBool 获取布尔环境变量
func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%w: %s=%s is not a valid boolean", ErrInvalidValue, key, value)
	}
	return b, nil
}
