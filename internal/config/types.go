package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/dirkv/internal/cache"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// 文件名派生方式。
const (
	NamingHashed = "hashed"
	NamingRaw    = "raw"
)

// GlobalConfig 描述进程级行为：监听端口、日志与缓存目录。
type GlobalConfig struct {
	ListenPort     int      `mapstructure:"ListenPort"`
	LogLevel       string   `mapstructure:"LogLevel"`
	LogFilePath    string   `mapstructure:"LogFilePath"`
	LogMaxSize     int      `mapstructure:"LogMaxSize"`
	LogMaxBackups  int      `mapstructure:"LogMaxBackups"`
	LogCompress    bool     `mapstructure:"LogCompress"`
	StoragePath    string   `mapstructure:"StoragePath"`
	RequestTimeout Duration `mapstructure:"RequestTimeout"`
}

// StoreConfig 决定 key 如何落盘以及 TTL 的记录方式。
type StoreConfig struct {
	Prefix        string   `mapstructure:"Prefix"`
	Suffix        string   `mapstructure:"Suffix"`
	Naming        string   `mapstructure:"Naming"`
	MtimeAsTTL    bool     `mapstructure:"MtimeAsTTL"`
	MemoryOverlay bool     `mapstructure:"MemoryOverlay"`
	DefaultTTL    Duration `mapstructure:"DefaultTTL"`
	Codec         string   `mapstructure:"Codec"`
	Namespace     string   `mapstructure:"Namespace"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global GlobalConfig `mapstructure:",squash"`
	Store  StoreConfig  `mapstructure:"Store"`
}

// Options 将 Store 配置映射为 cache.Options，logger 用于记录被吞掉的 I/O 异常。
func (s StoreConfig) Options(logger *logrus.Logger) cache.Options {
	opts := cache.Options{
		Namer:          cache.DefaultNamer,
		Prefix:         s.Prefix,
		Suffix:         s.Suffix,
		MtimeAsTTL:     s.MtimeAsTTL,
		DisableOverlay: !s.MemoryOverlay,
		Logger:         logger,
	}
	if s.Naming == NamingRaw {
		opts.Namer = cache.RawNamer
	}
	return opts
}

// TypedOptions 返回 Typed 访问器使用的命名空间与默认 TTL。
func (s StoreConfig) TypedOptions() cache.TypedOptions {
	return cache.TypedOptions{
		Namespace:  s.Namespace,
		DefaultTTL: s.DefaultTTL.DurationValue(),
	}
}
