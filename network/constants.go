package network

import (
	"time"

	"github.com/quic-go/quic-go"
)

const (
	// 缓冲区大小
	SecureConnBufferSizeBytes = 65535

	// 超时配置
	SecureConnHandshakeTimeout = 3 * time.Second
	SecureConnIdleTimeout      = 30 * time.Second

	// QUIC错误码
	QUICCodeNoError quic.ApplicationErrorCode = 0

	// DoH
	DNSMessageContentType = "application/dns-message"
)
