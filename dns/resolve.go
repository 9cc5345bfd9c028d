package dns

import (
	"context"
	"errors"
	"net"
	"strconv"

	"github.com/miekg/dns"

	"dnshole/audit"
	"dnshole/network"
	"dnshole/store"
	"dnshole/tunnel"
	"dnshole/types"
	"dnshole/utils"
)

// LocalAddr 当前监听地址，未启动时为nil
func (s *DNSServer) LocalAddr() net.Addr {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Resolve 处理一个原始查询报文，返回应发送的响应字节；返回nil表示丢弃
func (s *DNSServer) Resolve(ctx context.Context, packet []byte, client net.IP) ([]byte, Outcome) {
	defer utils.RecoverAndLog("DNS请求处理")

	req, ok := parseQuery(packet)
	if !ok {
		utils.WriteLog(utils.LogDebug, "🗑️ 丢弃非法报文: %d字节 来自 %v", len(packet), client)
		return nil, OutcomeDrop
	}

	question := req.Question[0]
	var tracker *utils.RequestTracker
	if utils.GetLogLevel() >= utils.LogDebug {
		clientIP := "unknown"
		if client != nil {
			clientIP = client.String()
		}
		tracker = utils.NewRequestTracker(question.Name, dns.TypeToString[question.Qtype], clientIP)
		defer tracker.Finish()
	}

	outcome, value := s.classify(question)
	if tracker != nil {
		tracker.Outcome = outcome.String()
		tracker.AddStep("🧭 分类结果: %s", outcome)
	}

	switch outcome {
	case OutcomeRootAck:
		return s.pack(s.rootAck(req), OutcomeRootAck)
	case OutcomeTunnel:
		return s.pack(s.tunnelAnswer(req, tracker), OutcomeTunnel)
	case OutcomeBlocked:
		s.recordBlocked(ctx, question, client)
		return s.pack(s.blockedAnswer(req, value, tracker), OutcomeBlocked)
	case OutcomeNXDomain:
		return s.pack(s.nxdomain(req, false), OutcomeNXDomain)
	case OutcomeUpstream:
		resp, err := s.relay.Relay(ctx, packet)
		if err != nil {
			if errors.Is(err, network.ErrUpstreamTimeout) {
				utils.WriteLog(utils.LogWarn, "⏰ 上游超时，丢弃查询 %s: %v", question.Name, err)
			} else {
				utils.WriteLog(utils.LogWarn, "🔗 上游失败，丢弃查询 %s: %v", question.Name, err)
			}
			if tracker != nil {
				tracker.Outcome = OutcomeDrop.String()
			}
			return nil, OutcomeDrop
		}
		if tracker != nil {
			tracker.AddStep("✅ 上游应答 %d字节", len(resp))
		}
		return resp, OutcomeUpstream
	default:
		return nil, OutcomeDrop
	}
}

// parseQuery 仅接受标准查询：非响应报文、操作码为0且至少一个问题
func parseQuery(packet []byte) (*dns.Msg, bool) {
	if len(packet) < types.MinDNSPacketSizeBytes {
		return nil, false
	}

	req := new(dns.Msg)
	if err := req.Unpack(packet); err != nil {
		return nil, false
	}
	if req.Response || req.Opcode != dns.OpcodeQuery || len(req.Question) == 0 {
		return nil, false
	}
	return req, true
}

// classify 根域名优先，其次隧道后缀，再查本地记录，最后才是上游
func (s *DNSServer) classify(question dns.Question) (Outcome, store.RecordValue) {
	name := dns.CanonicalName(question.Name)

	if name == "." {
		return OutcomeRootAck, store.RecordValue{}
	}
	if s.responder != nil && s.tunnelSuffix != "" && tunnel.IsTunnelName(name, s.tunnelSuffix) {
		return OutcomeTunnel, store.RecordValue{}
	}
	if value, ok := s.lookup(question.Qtype, name); ok {
		return OutcomeBlocked, value
	}
	if s.relay.Len() == 0 {
		return OutcomeNXDomain, store.RecordValue{}
	}
	return OutcomeUpstream, store.RecordValue{}
}

// lookup 先按查询类型精确查找；地址类查询（A/AAAA/HTTPS）再依次查找其余地址类记录
func (s *DNSServer) lookup(qtype uint16, name string) (store.RecordValue, bool) {
	if value, ok := s.store.Lookup(recordTypeName(qtype), name); ok {
		return value, true
	}
	if !isAddressType(qtype) {
		return store.RecordValue{}, false
	}
	for _, fallback := range []uint16{dns.TypeA, dns.TypeAAAA, dns.TypeHTTPS} {
		if fallback == qtype {
			continue
		}
		if value, ok := s.store.Lookup(recordTypeName(fallback), name); ok {
			return value, true
		}
	}
	return store.RecordValue{}, false
}

func (s *DNSServer) recordBlocked(ctx context.Context, question dns.Question, client net.IP) {
	entry := audit.Entry{
		Domain:    dns.CanonicalName(question.Name),
		QueryType: dns.TypeToString[question.Qtype],
		Time:      s.now(),
	}
	if client != nil {
		entry.Client = client.String()
	}

	utils.WriteLog(utils.LogInfo, "🚫 block: %s %s 客户端 %s", entry.Domain, entry.QueryType, entry.Client)
	if err := s.audit.LogBlocked(ctx, entry); err != nil {
		utils.WriteLog(utils.LogWarn, "📝 拦截日志写入失败: %v", err)
	}
}

func (s *DNSServer) pack(msg *dns.Msg, outcome Outcome) ([]byte, Outcome) {
	msg.Compress = true
	data, err := msg.Pack()
	if err != nil {
		utils.WriteLog(utils.LogError, "📦 响应打包失败: %v", err)
		return nil, OutcomeDrop
	}
	return data, outcome
}

func recordTypeName(qtype uint16) store.RecordType {
	if name, ok := dns.TypeToString[qtype]; ok {
		return store.RecordType(name)
	}
	return store.RecordType("TYPE" + strconv.Itoa(int(qtype)))
}

func isAddressType(qtype uint16) bool {
	return qtype == dns.TypeA || qtype == dns.TypeAAAA || qtype == dns.TypeHTTPS
}
