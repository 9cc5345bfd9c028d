package network

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/quic-go/quic-go"

	"dnshole/types"
	"dnshole/utils"
)

func newQUICUpstream(addr, serverName string, skipVerify bool) *quicUpstream {
	if serverName == "" {
		serverName, _, _ = net.SplitHostPort(addr)
	}
	return &quicUpstream{
		addr: addr,
		tlsConfig: &tls.Config{
			ServerName:         serverName,
			InsecureSkipVerify: skipVerify,
			NextProtos:         types.NextProtoQUIC,
			MinVersion:         tls.VersionTLS13,
		},
		config: &quic.Config{
			HandshakeIdleTimeout: SecureConnHandshakeTimeout,
			MaxIdleTimeout:       SecureConnIdleTimeout,
			KeepAlivePeriod:      types.SecureConnKeepAlive,
		},
	}
}

// connection 返回可用连接，必要时重新拨号
func (u *quicUpstream) connection(ctx context.Context) (*quic.Conn, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.conn != nil && u.conn.Context().Err() == nil {
		return u.conn, nil
	}

	conn, err := quic.DialAddr(ctx, u.addr, u.tlsConfig, u.config)
	if err != nil {
		return nil, fmt.Errorf("🚀 QUIC连接失败: %w", err)
	}
	u.conn = conn
	return conn, nil
}

func (u *quicUpstream) resetConnection(conn *quic.Conn) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.conn == conn {
		_ = conn.CloseWithError(QUICCodeNoError, "")
		u.conn = nil
	}
}

// Exchange DoQ要求报文ID为0，发送前清零，收到后恢复为原ID
func (u *quicUpstream) Exchange(ctx context.Context, query []byte) ([]byte, error) {
	conn, err := u.connection(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := u.exchangeStream(ctx, conn, query)
	if err != nil {
		var idleErr *quic.IdleTimeoutError
		var appErr *quic.ApplicationError
		if errors.As(err, &idleErr) || errors.As(err, &appErr) {
			u.resetConnection(conn)
		}
		return nil, err
	}
	return resp, nil
}

func (u *quicUpstream) exchangeStream(ctx context.Context, conn *quic.Conn, query []byte) ([]byte, error) {
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, fmt.Errorf("🚀 创建QUIC流失败: %w", err)
	}
	defer stream.CancelRead(0)

	if deadline, ok := ctx.Deadline(); ok {
		if err := stream.SetDeadline(deadline); err != nil {
			return nil, fmt.Errorf("⏰ 设置流超时失败: %w", err)
		}
	}

	buf := make([]byte, 2+len(query))
	binary.BigEndian.PutUint16(buf[:2], uint16(len(query)))
	copy(buf[2:], query)
	buf[2], buf[3] = 0, 0

	if _, err := stream.Write(buf); err != nil {
		return nil, fmt.Errorf("🚀 发送QUIC查询失败: %w", err)
	}
	if err := stream.Close(); err != nil {
		utils.WriteLog(utils.LogDebug, "⚠️ 关闭QUIC流写方向失败: %v", err)
	}

	var lengthBuf [2]byte
	if _, err := io.ReadFull(stream, lengthBuf[:]); err != nil {
		return nil, fmt.Errorf("📖 读取QUIC响应长度失败: %w", err)
	}
	respLen := binary.BigEndian.Uint16(lengthBuf[:])
	if int(respLen) < types.MinDNSPacketSizeBytes {
		return nil, fmt.Errorf("📏 QUIC响应太短: %d字节", respLen)
	}

	resp := make([]byte, respLen)
	if _, err := io.ReadFull(stream, resp); err != nil {
		return nil, fmt.Errorf("📖 读取QUIC响应失败: %w", err)
	}

	resp[0], resp[1] = query[0], query[1]
	return resp, nil
}

func (u *quicUpstream) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.conn == nil {
		return nil
	}
	err := u.conn.CloseWithError(QUICCodeNoError, "")
	u.conn = nil
	return err
}

func (u *quicUpstream) String() string {
	return "quic://" + u.addr
}
