// Package config 读取 reactor 的运行配置
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// 常量定义
const (
	ConfigFileName = "reactor.toml"   // 配置文件名
	EnvConfigPath  = "REACTOR_CONFIG" // 覆盖配置文件路径的环境变量

	DefaultCacheCapacity   = 128
	DefaultNativeStackSize = 64 * 1024
)

// Config 运行配置
type Config struct {
	// Debug 为 true 时，不支持的输入直接 panic，而不是记日志后返回空例程
	Debug bool `toml:"debug"`

	// Optimize 编译前是否运行优化流水线（Finalize 的默认值）
	Optimize bool `toml:"optimize"`

	// Passes 覆盖默认的优化遍顺序（为空时使用默认顺序）
	Passes []string `toml:"passes"`

	// CacheCapacity 例程缓存的默认容量
	CacheCapacity int `toml:"cache_capacity"`

	// NativeStackSize 执行生成代码时使用的原生栈大小（字节）
	NativeStackSize int `toml:"native_stack_size"`

	Log  LogConfig  `toml:"log"`
	Dump DumpConfig `toml:"dump"`
}

// LogConfig 日志配置
type LogConfig struct {
	// Level zap 日志级别：debug / info / warn / error
	Level string `toml:"level"`
}

// DumpConfig 调试输出
type DumpConfig struct {
	IR   bool `toml:"ir"`   // 打印优化后的 IR
	LLVM bool `toml:"llvm"` // 打印等价的 LLVM 汇编
	Asm  bool `toml:"asm"`  // 打印生成代码的反汇编
}

// Default 默认配置
func Default() *Config {
	return &Config{
		Optimize:        true,
		CacheCapacity:   DefaultCacheCapacity,
		NativeStackSize: DefaultNativeStackSize,
		Log:             LogConfig{Level: "info"},
	}
}

// LoadConfig 从文件加载配置，未出现的字段保留默认值
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, nil
}

// Load 按 REACTOR_CONFIG、当前目录向上查找的顺序加载配置
// 两者都没有时返回默认配置。
func Load() (*Config, error) {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return LoadConfig(p)
	}
	wd, err := os.Getwd()
	if err != nil {
		return Default(), nil
	}
	if p := FindConfigFile(wd); p != "" {
		return LoadConfig(p)
	}
	return Default(), nil
}

// Validate 检查字段取值
func (c *Config) Validate() error {
	if c.CacheCapacity <= 0 {
		return fmt.Errorf("cache_capacity must be positive, got %d", c.CacheCapacity)
	}
	if c.NativeStackSize < 4096 {
		return fmt.Errorf("native_stack_size must be at least 4096, got %d", c.NativeStackSize)
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	return nil
}

// Save 保存配置到文件
func (c *Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	header := "# reactor 运行配置\n# 可以用环境变量 " + EnvConfigPath + " 指定其他路径\n\n"
	if err := os.WriteFile(path, append([]byte(header), data...), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// FindConfigFile 从指定路径向上查找配置文件
// 返回配置文件的完整路径，如果找不到则返回空字符串
func FindConfigFile(startPath string) string {
	info, err := os.Stat(startPath)
	if err != nil {
		return ""
	}

	dir := startPath
	if !info.IsDir() {
		dir = filepath.Dir(startPath)
	}
	dir, err = filepath.Abs(dir)
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		} else if !errors.Is(err, fs.ErrNotExist) {
			return ""
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// 已到达根目录
			return ""
		}
		dir = parent
	}
}
