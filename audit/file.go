package audit

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dnshole/types"
	"dnshole/utils"
)

// NewFileLogger 打开（必要时创建）日志文件，offset 为写入时间戳前附加的偏移
func NewFileLogger(path string, offset time.Duration) (*FileLogger, error) {
	if path == "" {
		return nil, errors.New("❌ 审计日志路径为空")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("📁 创建审计日志目录失败: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("📝 打开审计日志失败: %w", err)
	}

	utils.WriteLog(utils.LogInfo, "📝 拦截日志: %s (时间偏移: %v)", path, offset)
	return &FileLogger{path: path, offset: offset, file: file}, nil
}

// FormatLine 生成一行日志：<域名> has been blocked at <时间> by <客户端>
func FormatLine(entry Entry, offset time.Duration) string {
	domain := strings.TrimSuffix(entry.Domain, ".")
	if domain == "" {
		domain = "."
	}
	line := fmt.Sprintf("%s has been blocked at %s", domain, entry.Time.Add(offset).Format(types.AuditTimeLayout))
	if entry.Client != "" {
		line += " by " + entry.Client
	}
	return line + "\n"
}

// LogBlocked 追加一行；单次Write保证并发写入时行不交错
func (l *FileLogger) LogBlocked(_ context.Context, entry Entry) error {
	line := FormatLine(entry, l.offset)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return os.ErrClosed
	}
	if _, err := l.file.WriteString(line); err != nil {
		return fmt.Errorf("📝 写入审计日志失败: %w", err)
	}
	return nil
}

// Path 日志文件路径
func (l *FileLogger) Path() string {
	return l.path
}

// Close 关闭文件
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
