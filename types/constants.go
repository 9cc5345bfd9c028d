package types

import "time"

const (
	// 日志
	DefaultLogLevel = "info"

	// DNS服务
	DefaultListenAddress = "127.0.0.1"
	DefaultDNSPort       = "53"
	DefaultRecordsFile   = "dns_records.json"
	DefaultUpstream      = "8.8.8.8:53"
	DefaultHTTPSPort     = "443"

	// 缓冲区大小
	ClientUDPBufferSizeBytes   = 65535
	UpstreamUDPBufferSizeBytes = 4096
	MinDNSPacketSizeBytes      = 12

	// RFC限制
	MaxDomainNameLengthRFC = 253
	MaxTXTStringLength     = 255
	MaxConfigFileSizeBytes = 1024 * 1024
)

const (
	// 本地应答
	DefaultRecordTTL = 300
)

const (
	// 隧道配置
	DefaultTunnelSuffix    = "tunnel.example.com."
	DefaultTunnelDirectory = "tunnel_files"
	DefaultChunkSize       = 200
	DefaultTunnelTTL       = 0
	DefaultTunnelCacheSize = 64 << 20
	ChunkLabelPrefix       = "chunk"
)

const (
	// 审计日志
	DefaultAuditFile       = "blocked_domains.md"
	DefaultTimestampOffset = "3h"
	AuditTimeLayout        = "2006-01-02 15:04:05"
)

const (
	// 超时配置
	DefaultUpstreamTimeout  = 3 * time.Second
	DefaultClientTimeout    = 5 * time.Second
	DefaultClientMaxRetries = 3
	GracefulShutdownTimeout = 5 * time.Second
	ReceiveErrorPause       = 100 * time.Millisecond
)

const (
	// 并发控制
	DefaultMaxConcurrency = 256
	MaxGlobalConcurrency  = 4096
)

const (
	// 加密上游连接
	SecureConnKeepAlive = 15 * time.Second
	DoHMaxConnsPerHost  = 3
	DoHMaxIdleConns     = 3
	DoHIdleConnTimeout  = 300 * time.Second
)

const (
	// Redis配置
	DefaultRedisKeyPrefix      = "dnshole:"
	RedisConnectionPoolSize    = 20
	RedisMinIdleConnections    = 5
	RedisMaxRetryAttempts      = 3
	RedisConnectionPoolTimeout = 5 * time.Second
	RedisReadTimeout           = 3 * time.Second
	RedisWriteTimeout          = 3 * time.Second
	RedisDialTimeout           = 5 * time.Second
	StandardOperationTimeout   = 5 * time.Second
)

// 协议标识符
var (
	NextProtoQUIC = []string{"doq", "doq-i02", "doq-i00", "dq"}
)
