package audit

import (
	"context"
	"errors"
	"time"

	"dnshole/types"
	"dnshole/utils"
)

// NewNullLogger 创建空日志
func NewNullLogger() *NullLogger {
	utils.WriteLog(utils.LogInfo, "🚫 拦截日志已禁用")
	return &NullLogger{}
}

func (n *NullLogger) LogBlocked(context.Context, Entry) error { return nil }
func (n *NullLogger) Close() error                            { return nil }

// NewMultiLogger 组合多个日志后端，忽略nil项
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	m := &MultiLogger{}
	for _, l := range loggers {
		if l != nil {
			m.loggers = append(m.loggers, l)
		}
	}
	return m
}

// LogBlocked 写入全部后端，单个后端失败不影响其余后端
func (m *MultiLogger) LogBlocked(ctx context.Context, entry Entry) error {
	var errs []error
	for _, l := range m.loggers {
		if err := l.LogBlocked(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close 关闭全部后端
func (m *MultiLogger) Close() error {
	var errs []error
	for _, l := range m.loggers {
		if err := l.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// New 按配置组合文件日志与可选的Redis镜像；Redis不可用时仅记录警告
func New(config *types.ServerConfig, offset time.Duration) (Logger, error) {
	var loggers []Logger

	if config.Audit.File != "" {
		fileLogger, err := NewFileLogger(config.Audit.File, offset)
		if err != nil {
			return nil, err
		}
		loggers = append(loggers, fileLogger)
	}

	if config.Redis.Address != "" {
		redisLogger, err := NewRedisLogger(config)
		if err != nil {
			utils.WriteLog(utils.LogWarn, "⚠️ Redis拦截日志镜像不可用，仅写入文件: %v", err)
		} else {
			loggers = append(loggers, redisLogger)
		}
	}

	switch len(loggers) {
	case 0:
		return NewNullLogger(), nil
	case 1:
		return loggers[0], nil
	default:
		return NewMultiLogger(loggers...), nil
	}
}
