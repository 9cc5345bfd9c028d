package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"dnshole/types"
	"dnshole/utils"
)

// NewRelay 根据配置创建上游中继；列表为空时 Relay 返回 ErrNoUpstream
func NewRelay(servers []types.UpstreamServer, timeout time.Duration) (*Relay, error) {
	if timeout <= 0 {
		timeout = types.DefaultUpstreamTimeout
	}

	relay := &Relay{timeout: timeout}
	for _, server := range servers {
		upstream, err := NewUpstream(server, timeout)
		if err != nil {
			relay.Close()
			return nil, err
		}
		relay.upstreams = append(relay.upstreams, upstream)
		utils.WriteLog(utils.LogInfo, "🔗 上游服务器: %s", upstream)
	}
	return relay, nil
}

// NewRelayWith 使用现成的上游实现创建中继
func NewRelayWith(timeout time.Duration, upstreams ...Upstream) *Relay {
	if timeout <= 0 {
		timeout = types.DefaultUpstreamTimeout
	}
	return &Relay{upstreams: upstreams, timeout: timeout}
}

// NewUpstream 按协议创建单个上游
func NewUpstream(server types.UpstreamServer, timeout time.Duration) (Upstream, error) {
	protocol := strings.ToLower(server.Protocol)
	if protocol == "" {
		protocol = "udp"
	}

	switch protocol {
	case "udp", "tcp", "tls":
		return newPlainUpstream(protocol, withDefaultPort(server.Address, protocol), server.ServerName, server.SkipTLSVerify, timeout), nil
	case "quic":
		return newQUICUpstream(withDefaultPort(server.Address, protocol), server.ServerName, server.SkipTLSVerify), nil
	case "https":
		return newDoHUpstream(server.Address, server.ServerName, server.SkipTLSVerify, timeout)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProtocol, server.Protocol)
	}
}

func withDefaultPort(addr, protocol string) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	port := "53"
	if protocol == "tls" || protocol == "quic" {
		port = "853"
	}
	return net.JoinHostPort(strings.Trim(addr, "[]"), port)
}

// Len 上游数量
func (r *Relay) Len() int {
	return len(r.upstreams)
}

// Timeout 单次中继的总超时
func (r *Relay) Timeout() time.Duration {
	return r.timeout
}

// Relay 原样转发查询，返回第一个有效的上游响应字节。
// 响应不会被重新编码，ID与查询一致。
func (r *Relay) Relay(ctx context.Context, query []byte) ([]byte, error) {
	if len(r.upstreams) == 0 {
		return nil, ErrNoUpstream
	}
	if len(query) < types.MinDNSPacketSizeBytes {
		return nil, fmt.Errorf("%w: 查询过短", ErrInvalidResponse)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var lastErr error
	for _, upstream := range r.upstreams {
		resp, err := upstream.Exchange(ctx, query)
		if err == nil {
			err = ValidateResponse(query, resp)
		}
		if err == nil {
			return resp, nil
		}

		lastErr = err
		utils.WriteLog(utils.LogDebug, "🔄 上游 %s 失败: %v", upstream, err)
		if ctx.Err() != nil {
			break
		}
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) || isTimeout(lastErr) {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamTimeout, lastErr)
	}
	return nil, lastErr
}

// Close 关闭全部上游
func (r *Relay) Close() error {
	var errs []error
	for _, upstream := range r.upstreams {
		if err := upstream.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ValidateResponse 响应至少包含报头，QR置位，且ID与查询一致
func ValidateResponse(query, resp []byte) error {
	if len(resp) < types.MinDNSPacketSizeBytes {
		return fmt.Errorf("%w: 长度 %d", ErrInvalidResponse, len(resp))
	}
	if resp[2]&0x80 == 0 {
		return fmt.Errorf("%w: 非响应报文", ErrInvalidResponse)
	}
	if resp[0] != query[0] || resp[1] != query[1] {
		return fmt.Errorf("%w: ID不匹配", ErrInvalidResponse)
	}
	return nil
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
