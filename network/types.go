package network

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/miekg/dns"
	"github.com/quic-go/quic-go"
)

var (
	// ErrNoUpstream 未配置上游
	ErrNoUpstream = errors.New("🌐 未配置上游服务器")
	// ErrUpstreamTimeout 在超时时间内没有任何上游应答
	ErrUpstreamTimeout = errors.New("⏰ 上游查询超时")
	// ErrInvalidResponse 上游应答不是对本次查询的合法响应
	ErrInvalidResponse = errors.New("❌ 上游响应无效")
	// ErrUnsupportedProtocol 协议不受支持
	ErrUnsupportedProtocol = errors.New("❌ 不支持的上游协议")
)

// Upstream 原样转发查询字节并返回上游的原始响应字节
type Upstream interface {
	Exchange(ctx context.Context, query []byte) ([]byte, error)
	Close() error
	String() string
}

// Relay 按顺序尝试各上游，整体受同一超时约束
type Relay struct {
	upstreams []Upstream
	timeout   time.Duration
}

// plainUpstream 经 udp/tcp/tls 传输的上游
type plainUpstream struct {
	protocol string
	addr     string
	client   *dns.Client
}

// quicUpstream DNS over QUIC 上游，复用单个连接
type quicUpstream struct {
	addr      string
	tlsConfig *tls.Config
	config    *quic.Config
	conn      *quic.Conn
	mu        sync.Mutex
}

// dohUpstream DNS over HTTPS 上游
type dohUpstream struct {
	endpoint *url.URL
	client   *http.Client
}
