package cache

import (
	"io/fs"
	"os"
	"time"
)

// Deadline 是以 Unix 毫秒表示的过期时间点，0 表示永不过期。
// 内存层与磁盘层使用同一套比较语义，避免两层判定出现偏差。
type Deadline int64

// NeverExpires 表示条目没有过期时间。
const NeverExpires Deadline = 0

// ExpiryState 描述某个 Deadline 在给定时刻的状态。
type ExpiryState int

const (
	StateNever ExpiryState = iota
	StateLive
	StateExpired
)

func (s ExpiryState) String() string {
	switch s {
	case StateNever:
		return "never"
	case StateLive:
		return "live"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// NewDeadline 将相对 TTL 编码为绝对 Deadline，ttl 为 0 时返回 NeverExpires。
func NewDeadline(now time.Time, ttl time.Duration) Deadline {
	if ttl == 0 {
		return NeverExpires
	}
	ms := now.Add(ttl).UnixMilli()
	if ms == 0 {
		// 恰好落在纪元零点会被误读为永不过期
		ms = -1
	}
	return Deadline(ms)
}

// DeadlineFromTime 以毫秒精度截取 t。
func DeadlineFromTime(t time.Time) Deadline {
	return Deadline(t.UnixMilli())
}

// Time 返回 Deadline 对应的时间，NeverExpires 对应纪元零点。
func (d Deadline) Time() time.Time {
	return time.UnixMilli(int64(d))
}

// State 判断 Deadline 在 now 时刻是否过期：严格早于 now 才算过期。
func (d Deadline) State(now time.Time) ExpiryState {
	if d == NeverExpires {
		return StateNever
	}
	if int64(d) < now.UnixMilli() {
		return StateExpired
	}
	return StateLive
}

// ExpiryCodec 负责把 Deadline 附着到已写入的文件上并读回，便于替换为
// sidecar 文件等其它编码方式而不改动 Store 逻辑。
type ExpiryCodec interface {
	// Stamp 在正文写入完成后记录 deadline。
	Stamp(path string, deadline Deadline, now time.Time) error
	// Load 根据 Stat 结果读回 deadline。
	Load(path string, info fs.FileInfo) (Deadline, error)
}

// MtimeCodec 把 deadline 写进文件 mtime（atime 记为写入时刻）。
// mtime 可能被备份、同步等工具改写，只能作为尽力而为的 TTL。
type MtimeCodec struct{}

// Stamp 必须在写入正文之后调用，因为写入本身会把 mtime 刷新为当前时间。
func (MtimeCodec) Stamp(path string, deadline Deadline, now time.Time) error {
	return os.Chtimes(path, now, deadline.Time())
}

// Load 直接读取 Stat 得到的 mtime。
func (MtimeCodec) Load(_ string, info fs.FileInfo) (Deadline, error) {
	return DeadlineFromTime(info.ModTime()), nil
}
