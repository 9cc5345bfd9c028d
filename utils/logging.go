package utils

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// Color constants for logging
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
	ColorGray   = "\033[90m"
)

// LogLevel 日志级别
type LogLevel int

const (
	LogNone LogLevel = iota - 1
	LogError
	LogWarn
	LogInfo
	LogDebug
)

// LogConfig 日志配置
type LogConfig struct {
	level     LogLevel
	useColor  bool
	useEmojis bool
	mu        sync.RWMutex
}

var (
	logConfig = &LogConfig{
		level:     LogInfo,
		useColor:  true,
		useEmojis: true,
	}
	customLogger = log.New(os.Stdout, "", 0)
)

// ValidLogLevels 配置文件中可用的日志级别
var ValidLogLevels = map[string]LogLevel{
	"none": LogNone, "error": LogError, "warn": LogWarn,
	"info": LogInfo, "debug": LogDebug,
}

// GetLogger returns the custom logger instance
func GetLogger() *log.Logger {
	return customLogger
}

// String 将日志级别转换为字符串
func (l LogLevel) String() string {
	configs := []struct {
		name  string
		emoji string
		color string
	}{
		{"NONE", "🔇", ColorGray},
		{"ERROR", "💥", ColorRed},
		{"WARN", "⚠️", ColorYellow},
		{"INFO", "✨", ColorGreen},
		{"DEBUG", "🔍", ColorBlue},
	}

	index := int(l) + 1
	if index >= 0 && index < len(configs) {
		config := configs[index]
		result := config.name

		logConfig.mu.RLock()
		useEmojis := logConfig.useEmojis
		useColor := logConfig.useColor
		logConfig.mu.RUnlock()

		if useEmojis {
			result = config.emoji + " " + result
		}

		if useColor {
			result = config.color + result + ColorReset
		}

		return result
	}
	return "UNKNOWN"
}

// WriteLog 写入日志
func WriteLog(level LogLevel, format string, args ...interface{}) {
	logConfig.mu.RLock()
	currentLevel := logConfig.level
	useColor := logConfig.useColor
	logConfig.mu.RUnlock()

	if level > currentLevel || level == LogNone {
		return
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	message := enhanceLogMessage(fmt.Sprintf(format, args...))

	var logLine string
	if useColor {
		logLine = fmt.Sprintf("%s[%s]%s %s %s", ColorGray, timestamp, ColorReset, level.String(), message)
	} else {
		logLine = fmt.Sprintf("[%s] %s %s", timestamp, level.String(), message)
	}
	customLogger.Println(logLine)
}

// enhanceLogMessage 根据消息内容添加相应的emoji
func enhanceLogMessage(message string) string {
	logConfig.mu.RLock()
	useEmojis := logConfig.useEmojis
	logConfig.mu.RUnlock()
	if !useEmojis {
		return message
	}

	lowerMsg := strings.ToLower(message)

	// 协议相关emoji
	if strings.Contains(lowerMsg, "tcp") && !strings.Contains(message, "🔌") {
		message = "🔌 " + message
	} else if strings.Contains(lowerMsg, "udp") && !strings.Contains(message, "📡") {
		message = "📡 " + message
	} else if strings.Contains(lowerMsg, "tls") && !strings.Contains(message, "🔐") {
		message = "🔐 " + message
	} else if strings.Contains(lowerMsg, "quic") && !strings.Contains(message, "🚀") {
		message = "🚀 " + message
	} else if strings.Contains(lowerMsg, "https") && !strings.Contains(message, "🌐") {
		message = "🌐 " + message
	}

	// 操作相关emoji
	if strings.Contains(lowerMsg, "tunnel") && !strings.Contains(message, "🕳️") {
		message = "🕳️ " + message
	} else if strings.Contains(lowerMsg, "block") && !strings.Contains(message, "🚫") {
		message = "🚫 " + message
	} else if strings.Contains(lowerMsg, "timeout") && !strings.Contains(message, "⏰") {
		message = "⏰ " + message
	} else if strings.Contains(lowerMsg, "retry") && !strings.Contains(message, "🔄") {
		message = "🔄 " + message
	} else if strings.Contains(lowerMsg, "fallback") && !strings.Contains(message, "🔙") {
		message = "🔙 " + message
	}

	return message
}

// SetLogLevel 设置日志级别
func SetLogLevel(level LogLevel) {
	logConfig.mu.Lock()
	defer logConfig.mu.Unlock()
	logConfig.level = level
}

// GetLogLevel 获取当前日志级别
func GetLogLevel() LogLevel {
	logConfig.mu.RLock()
	defer logConfig.mu.RUnlock()
	return logConfig.level
}

// SetLogStyle 设置颜色与emoji开关，输出到非终端时关闭
func SetLogStyle(useColor, useEmojis bool) {
	logConfig.mu.Lock()
	defer logConfig.mu.Unlock()
	logConfig.useColor = useColor
	logConfig.useEmojis = useEmojis
}

// SetLogOutput 重定向日志输出
func SetLogOutput(w io.Writer) {
	customLogger.SetOutput(w)
}
