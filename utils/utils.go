package utils

import (
	"fmt"
	"net"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"
)

// RequestTracker 请求追踪器
type RequestTracker struct {
	ID           string
	StartTime    time.Time
	Domain       string
	QueryType    string
	ClientIP     string
	Steps        []string
	Outcome      string
	ResponseTime time.Duration
	mu           sync.Mutex
}

// handlePanicWithContext 处理关键goroutine的panic，记录后退出进程
func handlePanicWithContext(operation string) {
	if r := recover(); r != nil {
		buf := make([]byte, 2048)
		n := runtime.Stack(buf, false)
		stackTrace := string(buf[:n])

		WriteLog(LogError, "🚨 Panic触发 [%s]: %v\n堆栈:\n%s\n💥 程序因panic退出",
			operation, r, stackTrace)

		os.Exit(1)
	}
}

// HandlePanicWithContext 处理带上下文的panic（导出版本）
var HandlePanicWithContext = handlePanicWithContext

// RecoverAndLog 恢复单个请求中的panic，只记录日志，不影响主循环
func RecoverAndLog(operation string) {
	if r := recover(); r != nil {
		buf := make([]byte, 2048)
		n := runtime.Stack(buf, false)
		WriteLog(LogError, "🚨 Panic已恢复 [%s]: %v\n堆栈:\n%s", operation, r, string(buf[:n]))
	}
}

// NewRequestTracker 创建请求追踪器
func NewRequestTracker(domain, qtype, clientIP string) *RequestTracker {
	return &RequestTracker{
		ID:        fmt.Sprintf("%x", time.Now().UnixNano()&0xFFFFFF),
		StartTime: time.Now(),
		Domain:    domain,
		QueryType: qtype,
		ClientIP:  clientIP,
		Steps:     make([]string, 0, 8),
	}
}

// AddStep 记录处理步骤
func (rt *RequestTracker) AddStep(step string, args ...interface{}) {
	if rt == nil || GetLogLevel() < LogDebug {
		return
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()

	timestamp := time.Since(rt.StartTime)
	stepMsg := fmt.Sprintf("[%v] %s", timestamp.Truncate(time.Microsecond), fmt.Sprintf(step, args...))
	rt.Steps = append(rt.Steps, stepMsg)

	WriteLog(LogDebug, "🔍 [%s] %s", rt.ID, stepMsg)
}

// Finish 结束追踪并输出摘要
func (rt *RequestTracker) Finish() {
	if rt == nil {
		return
	}

	rt.ResponseTime = time.Since(rt.StartTime)
	WriteLog(LogDebug, "📊 [%s] 查询完成: %s %s | 客户端:%s | 结果:%s | 耗时:%v",
		rt.ID, rt.Domain, rt.QueryType, rt.ClientIP, rt.Outcome,
		rt.ResponseTime.Truncate(time.Microsecond))
}

// GetClientIP 从网络地址提取客户端IP
func GetClientIP(addr net.Addr) net.IP {
	switch a := addr.(type) {
	case *net.UDPAddr:
		return a.IP
	case *net.TCPAddr:
		return a.IP
	}
	return nil
}

// IsValidFilePath 检查文件路径是否有效
func IsValidFilePath(path string) bool {
	if strings.Contains(path, "..") ||
		strings.HasPrefix(path, "/etc/") ||
		strings.HasPrefix(path, "/proc/") ||
		strings.HasPrefix(path, "/sys/") {
		return false
	}

	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}

// IsSecureProtocol 检查协议是否为加密协议
func IsSecureProtocol(protocol string) bool {
	switch strings.ToLower(protocol) {
	case "tls", "quic", "https":
		return true
	default:
		return false
	}
}

// GetProtocolEmoji 获取协议对应的emoji
func GetProtocolEmoji(protocol string) string {
	switch strings.ToLower(protocol) {
	case "tls":
		return "🔐"
	case "quic":
		return "🚀"
	case "https":
		return "🌐"
	case "tcp":
		return "🔌"
	default:
		return "📡"
	}
}
