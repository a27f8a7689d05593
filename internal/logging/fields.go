package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// StoreFields 描述一次缓存操作涉及的 key 与落盘路径。
func StoreFields(action, key, path string) logrus.Fields {
	return logrus.Fields{
		"action": action,
		"key":    key,
		"path":   path,
	}
}

// RequestFields 提供 method/key/请求 ID/命中状态字段，供 HTTP 请求日志复用。
func RequestFields(method, key, requestID string, status int, cacheHit bool) logrus.Fields {
	return logrus.Fields{
		"method":     method,
		"key":        key,
		"request_id": requestID,
		"status":     status,
		"cache_hit":  cacheHit,
	}
}
