package dns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"dnshole/audit"
	"dnshole/cache"
	"dnshole/config"
	"dnshole/network"
	"dnshole/store"
	"dnshole/tunnel"
	"dnshole/types"
	"dnshole/utils"
)

// NewDNSServer 按配置创建全部组件
func NewDNSServer(cfg *types.ServerConfig) (*DNSServer, error) {
	recordStore, err := store.Load(cfg.Server.RecordsFile)
	if err != nil {
		// 默认记录仍在内存中可用
		utils.WriteLog(utils.LogWarn, "⚠️ %v", err)
	}

	timeout, err := config.ParseDuration(cfg.Server.UpstreamTimeout, types.DefaultUpstreamTimeout)
	if err != nil {
		return nil, fmt.Errorf("⏰ upstream_timeout 格式错误: %w", err)
	}
	relay, err := network.NewRelay(cfg.Upstream, timeout)
	if err != nil {
		return nil, fmt.Errorf("🔗 上游初始化失败: %w", err)
	}

	encodedCache, err := cache.New(cfg.Tunnel.CacheSize)
	if err != nil {
		relay.Close()
		return nil, err
	}

	responder, err := tunnel.NewResponder(cfg.Tunnel.Directory, cfg.Tunnel.ChunkSize, encodedCache)
	if err != nil {
		relay.Close()
		encodedCache.Shutdown()
		return nil, fmt.Errorf("🕳️ 隧道初始化失败: %w", err)
	}

	offset, err := config.ParseDuration(cfg.Audit.TimestampOffset, 0)
	if err != nil {
		relay.Close()
		encodedCache.Shutdown()
		return nil, fmt.Errorf("🕐 audit.timestamp_offset 格式错误: %w", err)
	}
	auditLogger, err := audit.New(cfg, offset)
	if err != nil {
		relay.Close()
		encodedCache.Shutdown()
		return nil, err
	}

	return NewDNSServerWith(cfg, Components{
		Store:     recordStore,
		Relay:     relay,
		Responder: responder,
		Audit:     auditLogger,
		Cache:     encodedCache,
	}), nil
}

// NewDNSServerWith 使用现成组件创建服务器
func NewDNSServerWith(cfg *types.ServerConfig, c Components) *DNSServer {
	if c.Store == nil {
		c.Store = store.NewMemoryStore("", nil)
	}
	if c.Relay == nil {
		c.Relay = network.NewRelayWith(types.DefaultUpstreamTimeout)
	}
	if c.Audit == nil {
		c.Audit = &audit.NullLogger{}
	}
	if c.Cache == nil {
		c.Cache = &cache.NullCache{}
	}

	maxConcurrency := cfg.Server.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = types.DefaultMaxConcurrency
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &DNSServer{
		config:       cfg,
		store:        c.Store,
		relay:        c.Relay,
		responder:    c.Responder,
		audit:        c.Audit,
		encodedCache: c.Cache,
		tunnelSuffix: strings.ToLower(cfg.Tunnel.Suffix),
		tunnelTTL:    cfg.Tunnel.TTL,
		taskManager:  utils.NewTaskManager(maxConcurrency),
		resources:    utils.NewResourceManager(types.ClientUDPBufferSizeBytes),
		ctx:          ctx,
		cancel:       cancel,
		now:          time.Now,
	}
}

// Store 本地记录表
func (s *DNSServer) Store() *store.RecordStore {
	return s.store
}

// Start 绑定UDP端口并进入接收循环，直到收到退出信号。绑定失败是唯一的致命错误。
func (s *DNSServer) Start() error {
	if atomic.LoadInt32(&s.closed) != 0 {
		return errors.New("🔒 服务器已关闭")
	}

	addr := net.JoinHostPort(s.config.Server.Listen, s.config.Server.Port)
	pc, err := net.ListenPacket("udp", addr)
	if err != nil {
		return fmt.Errorf("📡 UDP监听失败 %s: %w", addr, err)
	}

	s.setupSignalHandling()
	s.displayInfo(pc.LocalAddr())
	return s.Serve(pc)
}

func (s *DNSServer) displayInfo(addr net.Addr) {
	utils.WriteLog(utils.LogInfo, "🚀 启动 dnshole")
	utils.WriteLog(utils.LogInfo, "📡 UDP服务器启动: %s", addr)
	recordsFile := s.store.Path()
	if recordsFile == "" {
		recordsFile = "内存"
	}
	utils.WriteLog(utils.LogInfo, "📄 本地记录: %d条 (类型: %v, 来源: %s)", s.store.Len(), s.store.Types(), recordsFile)
	if s.relay.Len() > 0 {
		utils.WriteLog(utils.LogInfo, "🔗 上游模式: 共 %d 个服务器 (超时: %v)", s.relay.Len(), s.relay.Timeout())
		for i, server := range s.config.Upstream {
			secure := ""
			if utils.IsSecureProtocol(server.Protocol) {
				secure = " (加密)"
			}
			utils.WriteLog(utils.LogInfo, "%s 上游服务器 %d: %s://%s%s",
				utils.GetProtocolEmoji(server.Protocol), i+1, server.Protocol, server.Address, secure)
		}
	} else {
		utils.WriteLog(utils.LogInfo, "🚫 未配置上游，未命中查询返回NXDOMAIN")
	}
	if s.responder != nil {
		utils.WriteLog(utils.LogInfo, "🕳️ 隧道后缀: %s (目录: %s, 分块: %d字符)",
			s.tunnelSuffix, s.responder.Dir(), s.responder.ChunkSize())
	}
}

func (s *DNSServer) setupSignalHandling() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer utils.HandlePanicWithContext("信号处理器")
		defer signal.Stop(sigChan)

		select {
		case sig := <-sigChan:
			utils.WriteLog(utils.LogInfo, "🛑 收到信号 %v，开始优雅关闭...", sig)
			if err := s.Shutdown(); err != nil {
				utils.WriteLog(utils.LogError, "💥 关闭失败: %v", err)
			}
		case <-s.ctx.Done():
		}
	}()
}

// Serve 在给定套接字上循环接收，每个报文交给任务管理器处理，接收循环本身从不等待上游
func (s *DNSServer) Serve(pc net.PacketConn) error {
	s.connMu.Lock()
	s.conn = pc
	s.connMu.Unlock()

	go func() {
		<-s.ctx.Done()
		_ = pc.Close()
	}()

	for {
		bufp := s.resources.GetBuffer()
		n, addr, err := pc.ReadFrom(*bufp)
		if err != nil {
			s.resources.PutBuffer(bufp)
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			utils.WriteLog(utils.LogWarn, "⚠️ UDP接收失败: %v", err)
			time.Sleep(types.ReceiveErrorPause)
			continue
		}

		packet := make([]byte, n)
		copy(packet, (*bufp)[:n])
		s.resources.PutBuffer(bufp)

		err = s.taskManager.ExecuteAsync("udp-query", func(ctx context.Context) error {
			s.handlePacket(ctx, pc, addr, packet)
			return nil
		})
		if errors.Is(err, utils.ErrTaskManagerClosed) {
			return nil
		}
	}
}

func (s *DNSServer) handlePacket(ctx context.Context, pc net.PacketConn, addr net.Addr, packet []byte) {
	resp, _ := s.Resolve(ctx, packet, utils.GetClientIP(addr))
	if resp == nil {
		return
	}
	if _, err := pc.WriteTo(resp, addr); err != nil {
		utils.WriteLog(utils.LogDebug, "📤 发送响应失败 %s: %v", addr, err)
	}
}

// ImportBlocklist 导入域名列表为拦截记录并持久化
func (s *DNSServer) ImportBlocklist(path, address string) (int, error) {
	if address == "" {
		address = "0.0.0.0"
	}

	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("📖 打开域名列表失败: %w", err)
	}
	defer file.Close()

	n, err := s.store.ImportDomainList(file, store.Address(address))
	if err != nil {
		return n, err
	}
	if err := s.store.Save(); err != nil {
		return n, err
	}

	utils.WriteLog(utils.LogInfo, "✅ 已导入 %d 个域名 -> %s", n, address)
	return n, nil
}

// Shutdown 关闭套接字，等待进行中的请求，然后释放各组件
func (s *DNSServer) Shutdown() error {
	var errs []error

	s.shutdownOnce.Do(func() {
		atomic.StoreInt32(&s.closed, 1)
		utils.WriteLog(utils.LogInfo, "🛑 开始关闭DNS服务器...")

		s.cancel()

		if active := s.taskManager.ActiveCount(); active > 0 {
			utils.WriteLog(utils.LogInfo, "⏳ 等待 %d 个进行中的请求完成", active)
		}
		if err := s.taskManager.Shutdown(types.GracefulShutdownTimeout); err != nil {
			errs = append(errs, err)
		}
		if err := s.relay.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := s.audit.Close(); err != nil {
			errs = append(errs, err)
		}
		s.encodedCache.Shutdown()

		executed, failed, rejected := s.taskManager.GetStats()
		gets, _, news := s.resources.GetStats()
		utils.WriteLog(utils.LogInfo, "📊 任务统计: 完成 %d, 失败 %d, 拒绝 %d | 缓冲区: 获取 %d, 新建 %d",
			executed, failed, rejected, gets, news)
		utils.WriteLog(utils.LogInfo, "✅ 所有组件已安全关闭")
	})

	return errors.Join(errs...)
}
