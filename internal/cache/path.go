package cache

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

const (
	// readableNameLen 按 UTF-16 码元计数，与 JavaScript 字符串长度一致。
	readableNameLen = 16
	digestLen       = 16
	maxSegmentBytes = 255

	// digestSalt 固定且与目录无关，保证镜像端可以按同一 key 算出同一文件名。
	digestSalt = "+SALT-poS1djRa4M2jXsWi"
)

var (
	illegalChars      = regexp.MustCompile(`[/?<>\\:*|"]`)
	controlChars      = regexp.MustCompile(`[\x00-\x1f\x80-\x9f]`)
	reservedName      = regexp.MustCompile(`^\.+$`)
	windowsReserved   = regexp.MustCompile(`(?i)^(con|prn|aux|nul|com[0-9]|lpt[0-9])(\..*)?$`)
	windowsTrailing   = regexp.MustCompile(`[. ]+$`)
	errPrefixEscapes  = errors.New("prefix must stay inside the cache directory")
	errPrefixAbsolute = errors.New("prefix must be relative")
)

// SanitizeSegment 将任意字符串转换为安全的单级路径片段：去掉分隔符、保留字符、
// 控制字符、纯点名称、Windows 保留名与结尾的点/空格，并按 UTF-8 截断到 255 字节。
// 结果可能为空字符串。
func SanitizeSegment(s string) string {
	s = illegalChars.ReplaceAllString(s, "")
	s = controlChars.ReplaceAllString(s, "")
	s = reservedName.ReplaceAllString(s, "")
	s = windowsReserved.ReplaceAllString(s, "")
	s = windowsTrailing.ReplaceAllString(s, "")
	return truncateUTF8(s, maxSegmentBytes)
}

func truncateUTF8(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// DefaultNamer 生成 "{可读前缀}-{摘要}"：可读部分便于人工排查，摘要保证
// 清洗后前缀相同或超长的 key 仍然互不冲突。
func DefaultNamer(key string) string {
	return truncateUTF16(SanitizeSegment(key), readableNameLen) + "-" + keyDigest(key)
}

// truncateUTF16 截取前 limit 个 UTF-16 码元。切在代理对中间时，残留的半个代理
// 按 UTF-8 写盘会变成 U+FFFD，这里直接补上。
func truncateUTF16(s string, limit int) string {
	units := 0
	for i, r := range s {
		n := utf16.RuneLen(r)
		if n < 0 {
			n = 1
		}
		if units+n > limit {
			if units < limit {
				return s[:i] + string(utf8.RuneError)
			}
			return s[:i]
		}
		units += n
	}
	return s
}

// RawNamer 原样使用 key，放弃摘要带来的防冲突能力，换取与外部路径方案一致。
func RawNamer(key string) string {
	return key
}

func keyDigest(key string) string {
	sum := md5.Sum([]byte(key + digestSalt))
	return hex.EncodeToString(sum[:])[:digestLen]
}

// PathResolver 是 key → 文件路径的纯函数封装，不做任何 I/O。
type PathResolver struct {
	Dir    string
	Namer  func(key string) string
	Prefix string
	Suffix string
}

// Resolve 返回 Dir/Prefix + sanitize(Namer(key) + Suffix)。Prefix 不参与清洗，
// 可用来表达嵌套子目录。清洗后文件名为空时退回摘要命名，避免落到目录本身。
func (r PathResolver) Resolve(key string) string {
	namer := r.Namer
	if namer == nil {
		namer = DefaultNamer
	}
	name := SanitizeSegment(namer(key) + r.Suffix)
	if name == "" {
		name = SanitizeSegment(DefaultNamer(key) + r.Suffix)
	}
	return filepath.Join(r.Dir, filepath.FromSlash(r.Prefix+name))
}

// ValidatePrefix 拒绝绝对路径以及跳出缓存目录的前缀，配置校验与 NewStore 共用。
func ValidatePrefix(prefix string) error {
	if prefix == "" {
		return nil
	}
	if filepath.IsAbs(prefix) || strings.HasPrefix(prefix, "/") {
		return errPrefixAbsolute
	}
	cleaned := filepath.ToSlash(filepath.Clean(filepath.FromSlash(prefix)))
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return errPrefixEscapes
	}
	return nil
}
