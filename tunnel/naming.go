package tunnel

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/miekg/dns"

	"dnshole/types"
)

// ChunkName 构造分块查询名 chunk<index>.<fileID>.<suffix>
func ChunkName(index int, fileID, suffix string) string {
	return fmt.Sprintf("%s%d.%s.%s", types.ChunkLabelPrefix, index, fileID, dns.Fqdn(suffix))
}

// IsTunnelName 查询名是否位于隧道后缀之下（按完整标签匹配，而非子串）
func IsTunnelName(name, suffix string) bool {
	name = dns.CanonicalName(name)
	suffix = dns.CanonicalName(suffix)
	return name != suffix && dns.IsSubDomain(suffix, name)
}

// ParseChunkName 从查询名中解析文件标识和分块序号。
// 文件标识可以跨多个标签，例如 chunk0.report.txt.<suffix> 对应 report.txt。
func ParseChunkName(name, suffix string) (string, int, error) {
	if !IsTunnelName(name, suffix) {
		return "", 0, ErrInvalidChunkName
	}

	nameLabels := dns.SplitDomainName(name)
	suffixLabels := dns.CountLabel(dns.Fqdn(suffix))
	selector := nameLabels[:len(nameLabels)-suffixLabels]
	if len(selector) < 2 {
		return "", 0, fmt.Errorf("%w: %s", ErrInvalidChunkName, name)
	}

	indexLabel := strings.ToLower(selector[0])
	if !strings.HasPrefix(indexLabel, types.ChunkLabelPrefix) {
		return "", 0, fmt.Errorf("%w: %s", ErrInvalidChunkName, name)
	}
	digits := indexLabel[len(types.ChunkLabelPrefix):]
	if digits == "" || strings.TrimLeft(digits, "0123456789") != "" {
		return "", 0, fmt.Errorf("%w: %s", ErrInvalidChunkName, name)
	}
	index, err := strconv.Atoi(digits)
	if errors.Is(err, strconv.ErrRange) {
		// 超出int范围的序号必然越过末尾，按结束标记处理
		index, err = math.MaxInt, nil
	}
	if err != nil || index < 0 {
		return "", 0, fmt.Errorf("%w: %s", ErrInvalidChunkName, name)
	}

	fileID := strings.Join(selector[1:], ".")
	if err := ValidateFileID(fileID); err != nil {
		return "", 0, err
	}
	return fileID, index, nil
}

// ValidateFileID 拒绝空标识、路径分隔符、上级目录和转义字符
func ValidateFileID(fileID string) error {
	switch {
	case fileID == "", fileID == ".", fileID == "..":
		return ErrInvalidFileID
	case strings.ContainsAny(fileID, "/\\\x00"):
		return ErrInvalidFileID
	case strings.Contains(fileID, ".."):
		return ErrInvalidFileID
	case strings.HasPrefix(fileID, "."):
		return ErrInvalidFileID
	}
	return nil
}

// SplitTXT 将负载切分为不超过255字节的TXT字符串；空负载保留为单个空字符串
func SplitTXT(payload string) []string {
	if payload == "" {
		return []string{""}
	}
	parts := make([]string, 0, len(payload)/types.MaxTXTStringLength+1)
	for len(payload) > types.MaxTXTStringLength {
		parts = append(parts, payload[:types.MaxTXTStringLength])
		payload = payload[types.MaxTXTStringLength:]
	}
	return append(parts, payload)
}
