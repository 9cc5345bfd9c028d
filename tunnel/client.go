package tunnel

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/miekg/dns"

	"dnshole/types"
	"dnshole/utils"
)

// NewClient 创建隧道下载客户端
func NewClient(server, suffix string, timeout time.Duration, maxTimeouts int) *Client {
	if timeout <= 0 {
		timeout = types.DefaultClientTimeout
	}
	if maxTimeouts <= 0 {
		maxTimeouts = types.DefaultClientMaxRetries
	}
	return &Client{
		Server:      server,
		Suffix:      dns.Fqdn(suffix),
		Timeout:     timeout,
		MaxTimeouts: maxTimeouts,
		dnsClient: &dns.Client{
			Net:     "udp",
			Timeout: timeout,
			UDPSize: types.UpstreamUDPBufferSizeBytes,
		},
	}
}

// Download 从序号0开始逐块请求，直到收到空负载；拼接全部文本后统一解码
func (c *Client) Download(ctx context.Context, fileID string) ([]byte, error) {
	if err := ValidateFileID(fileID); err != nil {
		return nil, err
	}

	var (
		chunks   []string
		failures int
		lastErr  error
	)

	for index := 0; ; {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		payload, err := c.fetchChunk(ctx, fileID, index)
		if err != nil {
			failures++
			lastErr = err
			utils.WriteLog(utils.LogWarn, "🔄 分块 %d 请求失败 (%d/%d): %v", index, failures, c.MaxTimeouts, err)
			if failures >= c.MaxTimeouts {
				return nil, fmt.Errorf("%w: %s 分块 %d: %v", ErrTooManyTimeouts, fileID, index, lastErr)
			}
			continue
		}

		if payload == "" {
			break
		}

		chunks = append(chunks, payload)
		utils.WriteLog(utils.LogDebug, "📡 收到分块 %d: %d字符", index, len(payload))
		failures = 0
		index++
	}

	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoData, fileID)
	}

	data, err := base64.StdEncoding.DecodeString(strings.Join(chunks, ""))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return data, nil
}

// DownloadToFile 下载并写入 <outDir>/<name>_received<ext>，无扩展名时使用.txt，返回输出路径
func (c *Client) DownloadToFile(ctx context.Context, fileID, outDir string) (string, error) {
	data, err := c.Download(ctx, fileID)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("📁 创建输出目录失败: %w", err)
	}

	ext := filepath.Ext(fileID)
	base := strings.TrimSuffix(fileID, ext)
	if ext == "" {
		ext = ".txt"
	}
	outPath := filepath.Join(outDir, base+"_received"+ext)

	tmp, err := os.CreateTemp(outDir, ".tunnelget-*")
	if err != nil {
		return "", fmt.Errorf("💾 创建临时文件失败: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("💾 写入临时文件失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("💾 关闭临时文件失败: %w", err)
	}
	if err := os.Rename(tmpName, outPath); err != nil {
		return "", fmt.Errorf("💾 保存文件失败: %w", err)
	}

	utils.WriteLog(utils.LogInfo, "✅ 文件已保存: %s (%d字节)", outPath, len(data))
	return outPath, nil
}

// fetchChunk 发送一次TXT查询；超时、非NOERROR和非法字符都计为失败
func (c *Client) fetchChunk(ctx context.Context, fileID string, index int) (string, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(ChunkName(index, fileID, c.Suffix), dns.TypeTXT)
	msg.RecursionDesired = true

	attemptCtx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	resp, _, err := c.dnsClient.ExchangeContext(attemptCtx, msg, c.Server)
	if err != nil {
		return "", err
	}
	if resp.Id != msg.Id {
		return "", errors.New("🆔 响应ID不匹配")
	}
	if resp.Rcode != dns.RcodeSuccess {
		return "", fmt.Errorf("❌ 服务器返回 %s", dns.RcodeToString[resp.Rcode])
	}

	var payload strings.Builder
	for _, rr := range resp.Answer {
		txt, ok := rr.(*dns.TXT)
		if !ok {
			continue
		}
		for _, s := range txt.Txt {
			payload.WriteString(s)
		}
		break
	}

	text := payload.String()
	if !isBase64Text(text) {
		return "", fmt.Errorf("%w: 分块 %d 含非法字符", ErrDecode, index)
	}
	return text, nil
}

func isBase64Text(s string) bool {
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch >= 'A' && ch <= 'Z', ch >= 'a' && ch <= 'z', ch >= '0' && ch <= '9':
		case ch == '+', ch == '/', ch == '=':
		default:
			return false
		}
	}
	return true
}
