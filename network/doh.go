package network

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/http2"

	"dnshole/types"
	"dnshole/utils"
)

func newDoHUpstream(addr, serverName string, skipVerify bool, timeout time.Duration) (*dohUpstream, error) {
	endpoint, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("🌐 解析DoH地址失败: %w", err)
	}
	if endpoint.Scheme != "https" || endpoint.Host == "" {
		return nil, fmt.Errorf("🌐 DoH地址必须为https URL: %s", addr)
	}
	if endpoint.Port() == "" {
		endpoint.Host = net.JoinHostPort(endpoint.Hostname(), types.DefaultHTTPSPort)
	}
	if serverName == "" {
		serverName = endpoint.Hostname()
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			ServerName:         serverName,
			InsecureSkipVerify: skipVerify,
			MinVersion:         tls.VersionTLS12,
			ClientSessionCache: tls.NewLRUClientSessionCache(0),
		},
		DisableCompression: true,
		IdleConnTimeout:    types.DoHIdleConnTimeout,
		MaxConnsPerHost:    types.DoHMaxConnsPerHost,
		MaxIdleConns:       types.DoHMaxIdleConns,
		ForceAttemptHTTP2:  true,
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: types.SecureConnKeepAlive,
		}).DialContext,
	}
	if _, err := http2.ConfigureTransports(transport); err != nil {
		return nil, fmt.Errorf("🚛 创建HTTP传输失败: %w", err)
	}

	return &dohUpstream{
		endpoint: endpoint,
		client:   &http.Client{Transport: transport, Timeout: timeout},
	}, nil
}

// Exchange 以POST发送 application/dns-message；报文ID清零后发送，响应恢复原ID
func (u *dohUpstream) Exchange(ctx context.Context, query []byte) ([]byte, error) {
	body := make([]byte, len(query))
	copy(body, query)
	body[0], body[1] = 0, 0

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("🌐 创建HTTP请求失败: %w", err)
	}
	req.Header.Set("Content-Type", DNSMessageContentType)
	req.Header.Set("Accept", DNSMessageContentType)
	req.Header.Set("User-Agent", "")

	httpResp, err := u.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("🌐 发送HTTP请求失败: %w", err)
	}
	defer func() {
		if closeErr := httpResp.Body.Close(); closeErr != nil {
			utils.WriteLog(utils.LogDebug, "⚠️ 关闭HTTP响应体失败: %v", closeErr)
		}
	}()

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("🌐 HTTP响应错误: %d", httpResp.StatusCode)
	}

	resp, err := io.ReadAll(io.LimitReader(httpResp.Body, SecureConnBufferSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("📖 读取响应失败: %w", err)
	}
	if len(resp) < types.MinDNSPacketSizeBytes {
		return nil, fmt.Errorf("%w: 长度 %d", ErrInvalidResponse, len(resp))
	}

	resp[0], resp[1] = query[0], query[1]
	return resp, nil
}

func (u *dohUpstream) Close() error {
	u.client.CloseIdleConnections()
	return nil
}

func (u *dohUpstream) String() string {
	return u.endpoint.Redacted()
}
