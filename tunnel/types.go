package tunnel

import (
	"errors"
	"time"

	"github.com/miekg/dns"

	"dnshole/cache"
)

var (
	// ErrInvalidFileID 文件标识包含路径分隔符或上级目录
	ErrInvalidFileID = errors.New("🚫 非法的隧道文件标识")
	// ErrFileNotFound 隧道目录中不存在该文件
	ErrFileNotFound = errors.New("📄 隧道文件不存在")
	// ErrInvalidChunkName 查询名不符合 chunk<N>.<fileID>.<suffix>
	ErrInvalidChunkName = errors.New("❌ 非法的分块查询名")
	// ErrInvalidChunkSize 分块大小必须是4的正整数倍
	ErrInvalidChunkSize = errors.New("❌ 分块大小必须是4的正整数倍")
	// ErrTooManyTimeouts 连续失败次数达到上限
	ErrTooManyTimeouts = errors.New("⏰ 连续超时次数过多")
	// ErrNoData 没有收到任何分块
	ErrNoData = errors.New("📭 未收到任何数据")
	// ErrDecode 拼接后的base64无法解码
	ErrDecode = errors.New("📦 base64解码失败")
)

// Chunk 文件base64编码文本中的一个定长切片
type Chunk struct {
	FileID  string
	Index   int
	Payload string
}

// IsEnd 空负载即传输结束标记
func (c Chunk) IsEnd() bool {
	return c.Payload == ""
}

// Responder 按分块序号返回隧道文件的base64切片，每个请求相互独立
type Responder struct {
	dir       string
	chunkSize int
	cache     cache.EncodedCache
}

// Client 停等方式逐块下载隧道文件
type Client struct {
	// Server 隧道服务器地址 host:port
	Server string
	// Suffix 隧道保留后缀
	Suffix string
	// Timeout 单次请求超时
	Timeout time.Duration
	// MaxTimeouts 连续失败上限
	MaxTimeouts int

	dnsClient *dns.Client
}
