package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// ServiceFields 提供 group/key 字段，供 Orchestrator 的决策日志复用。
func ServiceFields(group, key string) logrus.Fields {
	return logrus.Fields{
		"group": group,
		"key":   key,
	}
}

// RequestFields 提供请求 ID 与缓存状态字段，供 HTTP 访问日志复用。
func RequestFields(requestID, group, key, status string) logrus.Fields {
	return logrus.Fields{
		"request_id": requestID,
		"group":      group,
		"key":        key,
		"status":     status,
	}
}
