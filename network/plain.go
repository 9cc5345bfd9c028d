package network

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"

	"dnshole/types"
	"dnshole/utils"
)

func newPlainUpstream(protocol, addr, serverName string, skipVerify bool, timeout time.Duration) *plainUpstream {
	client := &dns.Client{
		Net:     protocol,
		Timeout: timeout,
		UDPSize: types.ClientUDPBufferSizeBytes,
		Dialer: &net.Dialer{
			Timeout:   timeout,
			KeepAlive: types.SecureConnKeepAlive,
		},
	}

	if protocol == "tls" {
		client.Net = "tcp-tls"
		if serverName == "" {
			serverName, _, _ = net.SplitHostPort(addr)
		}
		client.TLSConfig = &tls.Config{
			ServerName:         serverName,
			InsecureSkipVerify: skipVerify,
			MinVersion:         tls.VersionTLS12,
		}
	}

	return &plainUpstream{protocol: protocol, addr: addr, client: client}
}

// Exchange 每次查询建立新连接，写入原始字节并读取原始响应
func (u *plainUpstream) Exchange(ctx context.Context, query []byte) ([]byte, error) {
	conn, err := u.client.DialContext(ctx, u.addr)
	if err != nil {
		return nil, fmt.Errorf("🔌 连接上游失败 %s: %w", u, err)
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			utils.WriteLog(utils.LogDebug, "⚠️ 关闭上游连接失败: %v", closeErr)
		}
	}()

	conn.UDPSize = types.ClientUDPBufferSizeBytes
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return nil, fmt.Errorf("⏰ 设置截止时间失败: %w", err)
		}
	}

	if _, err := conn.Write(query); err != nil {
		return nil, fmt.Errorf("📤 发送查询失败 %s: %w", u, err)
	}

	for {
		resp, err := conn.ReadMsgHeader(nil)
		if err != nil {
			return nil, fmt.Errorf("📥 读取响应失败 %s: %w", u, err)
		}
		// UDP上可能收到迟到的其他报文
		if u.protocol == "udp" && ValidateResponse(query, resp) != nil {
			continue
		}
		return resp, nil
	}
}

func (u *plainUpstream) Close() error {
	return nil
}

func (u *plainUpstream) String() string {
	return u.protocol + "://" + u.addr
}
