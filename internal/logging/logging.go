// Package logging 提供进程级的 zap 日志记录器
package logging

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tangzhangming/reactor/internal/config"
)

var (
	mu     sync.RWMutex
	logger = zap.NewNop()
)

// New 按配置创建日志记录器（输出到 stderr，控制台格式）
func New(cfg *config.Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg != nil && cfg.Log.Level != "" {
		if err := level.UnmarshalText([]byte(strings.ToLower(cfg.Log.Level))); err != nil {
			return nil, fmt.Errorf("bad log level %q: %w", cfg.Log.Level, err)
		}
	}

	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.DisableStacktrace = cfg == nil || !cfg.Debug
	zc.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	return zc.Build()
}

// Init 用配置替换全局日志记录器
func Init(cfg *config.Config) error {
	l, err := New(cfg)
	if err != nil {
		return err
	}
	Set(l)
	return nil
}

// Set 替换全局日志记录器（测试里用 zaptest 或 observer）
func Set(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	mu.Lock()
	logger = l
	mu.Unlock()
}

// L 返回全局日志记录器，未初始化时不输出任何内容
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Sync 刷新缓冲
func Sync() {
	_ = L().Sync()
}
