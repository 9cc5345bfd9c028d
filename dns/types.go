package dns

import (
	"context"
	"net"
	"sync"
	"time"

	"dnshole/audit"
	"dnshole/cache"
	"dnshole/store"
	"dnshole/tunnel"
	"dnshole/types"
	"dnshole/utils"
)

// Outcome 单次查询的分类结果
type Outcome int

const (
	// OutcomeDrop 不回复（报文非法、操作码非0或上游失败）
	OutcomeDrop Outcome = iota
	// OutcomeRootAck 根域名查询，空应答
	OutcomeRootAck
	// OutcomeTunnel 隧道分块
	OutcomeTunnel
	// OutcomeBlocked 本地记录命中
	OutcomeBlocked
	// OutcomeUpstream 上游原样转发
	OutcomeUpstream
	// OutcomeNXDomain 无本地记录且未配置上游
	OutcomeNXDomain
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDrop:
		return "drop"
	case OutcomeRootAck:
		return "root"
	case OutcomeTunnel:
		return "tunnel"
	case OutcomeBlocked:
		return "blocked"
	case OutcomeUpstream:
		return "upstream"
	case OutcomeNXDomain:
		return "nxdomain"
	default:
		return "unknown"
	}
}

// Relayer 上游中继
type Relayer interface {
	Relay(ctx context.Context, query []byte) ([]byte, error)
	Len() int
	Timeout() time.Duration
	Close() error
}

// Components 服务器依赖的组件，nil项使用空实现
type Components struct {
	Store     *store.RecordStore
	Relay     Relayer
	Responder *tunnel.Responder
	Audit     audit.Logger
	Cache     cache.EncodedCache
}

// DNSServer 选择性DNS解析服务器，持有监听套接字及全部组件
type DNSServer struct {
	config       *types.ServerConfig
	store        *store.RecordStore
	relay        Relayer
	responder    *tunnel.Responder
	audit        audit.Logger
	encodedCache cache.EncodedCache
	tunnelSuffix string
	tunnelTTL    uint32
	taskManager  *utils.TaskManager
	resources    *utils.ResourceManager
	conn         net.PacketConn
	connMu       sync.Mutex
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
	closed       int32
	now          func() time.Time
}
