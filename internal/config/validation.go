package config

import (
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/dirkv/internal/cache"
	"github.com/any-hub/dirkv/internal/codec"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if strings.TrimSpace(g.StoragePath) == "" {
		return newFieldError("Global.StoragePath", "不能为空")
	}
	if _, err := logrus.ParseLevel(g.LogLevel); err != nil {
		return newFieldError("Global.LogLevel", "无法识别的日志级别")
	}
	if g.LogMaxSize < 0 {
		return newFieldError("Global.LogMaxSize", "不能为负数")
	}
	if g.LogMaxBackups < 0 {
		return newFieldError("Global.LogMaxBackups", "不能为负数")
	}
	if g.RequestTimeout.DurationValue() <= 0 {
		return newFieldError("Global.RequestTimeout", "必须大于 0")
	}

	s := c.Store
	switch s.Naming {
	case NamingHashed, NamingRaw:
	default:
		return newFieldError(storeField("Naming"), "仅支持 hashed|raw")
	}
	if _, err := codec.Lookup(s.Codec); err != nil {
		return newFieldError(storeField("Codec"), "仅支持 raw|json|yaml")
	}
	if s.DefaultTTL.DurationValue() < 0 {
		return newFieldError(storeField("DefaultTTL"), "不能为负数")
	}
	if err := cache.ValidatePrefix(s.Prefix); err != nil {
		return newFieldError(storeField("Prefix"), err.Error())
	}
	if strings.ContainsAny(s.Suffix, `/\`) {
		return newFieldError(storeField("Suffix"), "不允许包含路径分隔符")
	}

	return nil
}
