package config

import (
	"encoding/json"

	"dnshole/types"
)

// getDefaultConfig 获取默认配置
func (cm *ConfigManager) getDefaultConfig() *types.ServerConfig {
	config := &types.ServerConfig{}

	config.Server.Listen = types.DefaultListenAddress
	config.Server.Port = types.DefaultDNSPort
	config.Server.LogLevel = types.DefaultLogLevel
	config.Server.RecordsFile = types.DefaultRecordsFile
	config.Server.UpstreamTimeout = types.DefaultUpstreamTimeout.String()
	config.Server.MaxConcurrency = types.DefaultMaxConcurrency

	config.Upstream = []types.UpstreamServer{
		{Address: types.DefaultUpstream, Protocol: "udp"},
	}

	config.Tunnel.Suffix = types.DefaultTunnelSuffix
	config.Tunnel.Directory = types.DefaultTunnelDirectory
	config.Tunnel.ChunkSize = types.DefaultChunkSize
	config.Tunnel.TTL = types.DefaultTunnelTTL
	config.Tunnel.CacheSize = types.DefaultTunnelCacheSize

	config.Audit.File = types.DefaultAuditFile
	config.Audit.TimestampOffset = types.DefaultTimestampOffset

	config.Redis.Address = ""
	config.Redis.Password = ""
	config.Redis.Database = 0
	config.Redis.KeyPrefix = types.DefaultRedisKeyPrefix

	return config
}

// GenerateExampleConfig 生成示例配置
func GenerateExampleConfig() string {
	config := globalConfigManager.getDefaultConfig()

	config.Server.Listen = "0.0.0.0"
	config.Server.LogLevel = "info"

	config.Upstream = []types.UpstreamServer{
		{
			Address:  "8.8.8.8:53",
			Protocol: "udp",
		},
		{
			Address:  "1.1.1.1:53",
			Protocol: "tcp",
		},
		{
			Address:    "1.1.1.1:853",
			Protocol:   "tls",
			ServerName: "cloudflare-dns.com",
		},
		{
			Address:    "94.140.14.140:853",
			Protocol:   "quic",
			ServerName: "unfiltered.adguard-dns.com",
		},
		{
			Address:  "https://dns.google/dns-query",
			Protocol: "https",
		},
	}

	config.Tunnel.Suffix = "tunnel.example.com."
	config.Redis.Address = "127.0.0.1:6379"

	data, _ := json.MarshalIndent(config, "", "  ")
	return string(data)
}
