package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields 提供单个入站请求的公共字段。
func RequestFields(requestID, method, uri string) logrus.Fields {
	fields := logrus.Fields{
		"method": method,
		"uri":    uri,
	}
	if requestID != "" {
		fields["request_id"] = requestID
	}
	return fields
}

// DispatchFields 描述一次向 backend 的分发。
func DispatchFields(backend, address, role string) logrus.Fields {
	return logrus.Fields{
		"backend": backend,
		"address": address,
		"role":    role,
	}
}

// Merge 把 extra 合并进 base 的副本，extra 同名字段优先。
func Merge(base logrus.Fields, extra logrus.Fields) logrus.Fields {
	out := make(logrus.Fields, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
