/**
 * internal/utils/logger.go
 * 构建日志模块（基于 zap）
 *
 * 功能：
 * - 统一日志格式（控制台编码，输出到 stdout，作为构建进度日志）
 * - 自动脱敏发布凭证（access key / secret key）
 * - 支持优雅关闭
 *
 * 用法（其他包）：
 *   utils.LogPrintf("[BUILD] 3. Copy Resource Files")
 *
 * 用法（utils 包内）：
 *   LogPrintf("[FILES] WARN: ...")
 */

package utils

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ====================  全局变量 ====================

var (
	// logger zap 日志实例
	logger *zap.Logger

	// sugar zap SugaredLogger（更方便的 API）
	sugar *zap.SugaredLogger

	// loggerOnce 确保只初始化一次
	loggerOnce sync.Once

	// 凭证正则（用于检测日志中的密钥）
	// 匹配格式：secret=xxxx、access_key: xxxx
	// 通过 key=value 模式匹配，避免误伤普通文本
	logSecretRegex = regexp.MustCompile(`(?i)(secret_key|secret|access_key|accesskey)[=:\s]+([a-zA-Z0-9_\-/+\.]{8,})`)
)

// ====================  初始化 ====================

// initLogger 初始化 zap 日志
func initLogger() {
	loggerOnce.Do(func() {
		// 统一配置：控制台格式，Info 级别，stdout
		config := zap.Config{
			Level:            zap.NewAtomicLevelAt(zapcore.InfoLevel),
			Development:      false,
			Encoding:         "console",
			OutputPaths:      []string{"stdout"},
			ErrorOutputPaths: []string{"stderr"},
			EncoderConfig: zapcore.EncoderConfig{
				TimeKey:        "time",
				LevelKey:       "level",
				MessageKey:     "msg",
				EncodeTime:     zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05"),
				EncodeLevel:    zapcore.CapitalLevelEncoder,
				EncodeDuration: zapcore.StringDurationEncoder,
			},
		}

		var err error
		logger, err = config.Build(
			zap.AddCallerSkip(1), // 跳过 LogPrintf 调用层
		)
		if err != nil {
			// 降级到空日志
			fmt.Fprintf(os.Stderr, "[LOGGER] Failed to init zap: %v, falling back to nop logger\n", err)
			logger = zap.NewNop()
		}

		sugar = logger.Sugar()
	})
}

// getLogger 获取 logger 实例（懒加载）
func getLogger() *zap.SugaredLogger {
	if sugar == nil {
		initLogger()
	}
	return sugar
}

// ====================  公开函数 ====================

// LogPrintf 日志输出（格式化），自动脱敏凭证
func LogPrintf(format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	getLogger().Info(maskSensitiveData(message))
}

// LogFatalf 日志输出后退出（状态码 1）
func LogFatalf(format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	getLogger().Fatal(maskSensitiveData(message))
}

// SyncLogger 同步日志缓冲区（程序退出前调用）
func SyncLogger() {
	if logger != nil {
		_ = logger.Sync()
	}
}

// ====================  私有函数 ====================

// maskSensitiveData 脱敏凭证
// 先做字符串包含预检查，避免不必要的正则扫描
func maskSensitiveData(message string) string {
	lower := strings.ToLower(message)
	if !strings.Contains(lower, "secret") && !strings.Contains(lower, "access") {
		return message
	}
	return logSecretRegex.ReplaceAllStringFunc(message, maskSecret)
}

// maskSecret 对密钥进行脱敏处理
// 将 secret=abcd1234efgh 转换为 secret=abcd***[MASKED]
// 保留前 4 个字符用于辨认是哪把钥匙
func maskSecret(match string) string {
	if match == "" {
		return ""
	}

	// 找到分隔符位置（= 或 : 或空格）
	separatorIdx := strings.IndexAny(match, "=: ")
	if separatorIdx == -1 {
		return match
	}

	key := match[:separatorIdx+1]
	value := strings.TrimLeft(match[separatorIdx:], "=: \t")

	if len(value) <= 8 {
		return key + "***[MASKED]"
	}

	return key + value[:4] + "***[MASKED]"
}
