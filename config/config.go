package config

import (
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/miekg/dns"

	"dnshole/types"
	"dnshole/utils"
)

// ServerConfig 服务器配置
type ServerConfig = types.ServerConfig

// ConfigManager 配置管理器
type ConfigManager struct{}

// NewConfigManager 创建配置管理器
func NewConfigManager() *ConfigManager {
	return &ConfigManager{}
}

// LoadConfig 从文件加载配置，文件名为空时使用默认配置
func (cm *ConfigManager) LoadConfig(configFile string) (*ServerConfig, error) {
	config := cm.getDefaultConfig()

	if configFile == "" {
		utils.WriteLog(utils.LogInfo, "📄 使用默认配置")
		return config, cm.validateConfig(config)
	}

	if !utils.IsValidFilePath(configFile) {
		return nil, fmt.Errorf("❌ 无效的配置文件路径: %s", configFile)
	}

	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("📖 读取配置文件失败: %w", err)
	}

	if len(data) > types.MaxConfigFileSizeBytes {
		return nil, fmt.Errorf("📏 配置文件过大: %d bytes", len(data))
	}

	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("📦 解析配置文件失败: %w", err)
	}

	if err := cm.validateConfig(config); err != nil {
		return nil, fmt.Errorf("✅ 配置验证失败: %w", err)
	}

	utils.WriteLog(utils.LogInfo, "✅ 配置加载成功: %s", configFile)
	return config, nil
}

// validateConfig 验证配置并补全规范化字段
func (cm *ConfigManager) validateConfig(config *ServerConfig) error {
	// 日志级别验证
	if level, ok := utils.ValidLogLevels[strings.ToLower(config.Server.LogLevel)]; ok {
		utils.SetLogLevel(level)
	} else {
		return fmt.Errorf("❌ 无效的日志级别: %s", config.Server.LogLevel)
	}

	// 监听端口验证
	if port, err := strconv.Atoi(config.Server.Port); err != nil || port < 0 || port > 65535 {
		return fmt.Errorf("🔌 端口无效: %s", config.Server.Port)
	}
	if config.Server.Listen != "" && net.ParseIP(config.Server.Listen) == nil {
		return fmt.Errorf("🔌 监听地址无效: %s", config.Server.Listen)
	}

	if config.Server.RecordsFile == "" {
		return fmt.Errorf("📄 records_file 不能为空")
	}

	if _, err := ParseDuration(config.Server.UpstreamTimeout, types.DefaultUpstreamTimeout); err != nil {
		return fmt.Errorf("⏰ upstream_timeout 格式错误: %w", err)
	}

	if config.Server.MaxConcurrency < 1 || config.Server.MaxConcurrency > types.MaxGlobalConcurrency {
		return fmt.Errorf("⚡ 并发数必须在1-%d之间", types.MaxGlobalConcurrency)
	}

	// 上游服务器验证
	validProtocols := map[string]bool{"udp": true, "tcp": true, "tls": true, "quic": true, "https": true}
	for i := range config.Upstream {
		server := &config.Upstream[i]
		server.Protocol = strings.ToLower(server.Protocol)
		if server.Protocol == "" {
			server.Protocol = "udp"
		}
		if !validProtocols[server.Protocol] {
			return fmt.Errorf("🔌 上游服务器 %d 协议无效: %s", i, server.Protocol)
		}

		if server.Protocol == "https" {
			if u, err := url.Parse(server.Address); err != nil || u.Scheme != "https" || u.Host == "" {
				return fmt.Errorf("🔗 上游服务器 %d 地址格式错误: %s", i, server.Address)
			}
			continue
		}

		if _, _, err := net.SplitHostPort(server.Address); err != nil {
			return fmt.Errorf("🔗 上游服务器 %d 地址格式错误: %w", i, err)
		}
		if (server.Protocol == "tls" || server.Protocol == "quic") && server.ServerName == "" {
			return fmt.Errorf("🔒 上游服务器 %d 使用 %s 协议需要配置 server_name", i, server.Protocol)
		}
	}

	// 隧道配置验证
	if config.Tunnel.Suffix == "" {
		return fmt.Errorf("🕳️ tunnel.suffix 不能为空")
	}
	config.Tunnel.Suffix = dns.CanonicalName(config.Tunnel.Suffix)
	if _, ok := dns.IsDomainName(config.Tunnel.Suffix); !ok || config.Tunnel.Suffix == "." ||
		len(config.Tunnel.Suffix) > types.MaxDomainNameLengthRFC {
		return fmt.Errorf("🕳️ tunnel.suffix 不是合法域名: %s", config.Tunnel.Suffix)
	}
	if config.Tunnel.ChunkSize <= 0 || config.Tunnel.ChunkSize%4 != 0 {
		return fmt.Errorf("🕳️ tunnel.chunk_size 必须是4的正整数倍: %d", config.Tunnel.ChunkSize)
	}
	if config.Tunnel.Directory == "" {
		return fmt.Errorf("🕳️ tunnel.directory 不能为空")
	}
	if config.Tunnel.CacheSize < 0 {
		return fmt.Errorf("💾 tunnel.cache_size 不能为负数")
	}

	// 审计日志验证
	if _, err := ParseDuration(config.Audit.TimestampOffset, 0); err != nil {
		return fmt.Errorf("🕐 audit.timestamp_offset 格式错误: %w", err)
	}

	// Redis配置验证
	if config.Redis.Address != "" {
		if _, _, err := net.SplitHostPort(config.Redis.Address); err != nil {
			return fmt.Errorf("💾 Redis地址格式错误: %w", err)
		}
	}

	return nil
}

// ParseDuration 解析时长字符串，空字符串返回默认值
func ParseDuration(value string, fallback time.Duration) (time.Duration, error) {
	if strings.TrimSpace(value) == "" {
		return fallback, nil
	}
	return time.ParseDuration(value)
}

var globalConfigManager = NewConfigManager()

// LoadConfig 使用全局配置管理器加载配置
func LoadConfig(filename string) (*ServerConfig, error) {
	return globalConfigManager.LoadConfig(filename)
}
