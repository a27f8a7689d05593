package cache

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/dirkv/internal/codec"
)

// Store 描述目录缓存的全部操作。磁盘布局遵循：
//
//	<Dir>/<Prefix><sanitize(Namer(key) + Suffix)>    # 文件内容即原始值，mtime 即过期时间
//
// 目录由 Store 独占：Clear 会递归删除整个目录，切勿与其它用途共享。
type Store interface {
	// Get 返回 key 对应的原始值。不存在、已过期或读取失败均返回 ErrNotFound。
	Get(ctx context.Context, key string) (string, error)

	// Set 写入 value，ttl 为 0 表示永不过期，负数表示写入即过期。
	// 空字符串视为删除请求。
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete 幂等删除，条目不存在时同样视为成功。
	Delete(ctx context.Context, key string) error

	// Clear 递归删除整个目录并清空内存层，随后重新创建空目录。
	Clear(ctx context.Context) error

	// Has 等价于 Get 是否命中，副作用与 Get 相同（包括过期删除）。
	Has(ctx context.Context, key string) bool

	// Path 返回 key 解析后的绝对文件路径，不触碰文件系统。
	Path(key string) string

	// Stats 返回目录与内存层的概要信息，供诊断接口使用。
	Stats() Stats
}

// Options 控制 Store 的构建参数，构建后不可变。零值表示关闭 mtime TTL、
// 文件名不带后缀；一般从 DefaultOptions 开始修改。
type Options struct {
	// Namer 将 key 映射为文件名主体，默认 DefaultNamer（可读前缀 + 摘要）。
	// 使用 RawNamer 可与按原始 key 命名的远端存储保持同一路径。
	Namer func(key string) string
	// Prefix 拼接在相对路径最前面，允许包含 "/" 表示子目录，不做清洗。
	Prefix string
	// Suffix 拼接在文件名之后（如 ".json"），与文件名一起清洗。
	Suffix string
	// MtimeAsTTL 为 true 时以文件 mtime 记录并校验过期时间。
	MtimeAsTTL bool
	// Expiry 替换默认的 MtimeCodec，仅在 MtimeAsTTL 为 true 时生效。
	Expiry ExpiryCodec
	// Overlay 注入可跨实例共享的内存层；为 nil 时自建私有实例。
	Overlay *Overlay
	// DisableOverlay 完全关闭内存层，每次读取都落到磁盘。
	DisableOverlay bool
	// Logger 记录被吞掉的 I/O 异常，为 nil 时丢弃日志。
	Logger *logrus.Logger
	// Clock 便于测试注入时间，默认 time.Now。
	Clock func() time.Time
}

// DefaultOptions 返回与原有目录布局一致的默认配置：摘要文件名、".json" 后缀、启用 mtime TTL。
func DefaultOptions() Options {
	return Options{
		Namer:      DefaultNamer,
		Suffix:     DefaultSuffix,
		MtimeAsTTL: true,
	}
}

// DefaultSuffix 是 DefaultOptions 使用的文件名后缀。
const DefaultSuffix = ".json"

// Stats 汇总 Store 的静态配置与内存层规模。
type Stats struct {
	Dir            string `json:"dir"`
	Prefix         string `json:"prefix"`
	Suffix         string `json:"suffix"`
	MtimeAsTTL     bool   `json:"mtime_as_ttl"`
	OverlayEnabled bool   `json:"overlay_enabled"`
	OverlayEntries int    `json:"overlay_entries"`
}

var (
	// ErrNotFound 表示条目不存在或已过期。
	ErrNotFound = errors.New("cache entry not found")
	// ErrDirectoryRequired 表示未提供缓存目录。
	ErrDirectoryRequired = errors.New("cache directory required")
	// ErrInvalidValue 表示调用方传入了存储层无法表示的值。
	ErrInvalidValue = codec.ErrInvalidValue
)
