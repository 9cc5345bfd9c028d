package dns

import (
	"fmt"
	"net"
	"strings"

	"github.com/miekg/dns"

	"dnshole/store"
	"dnshole/tunnel"
	"dnshole/types"
	"dnshole/utils"
)

func (s *DNSServer) buildResponse(req *dns.Msg, authoritative bool) *dns.Msg {
	msg := new(dns.Msg)
	msg.SetReply(req)
	msg.Authoritative = authoritative
	return msg
}

// rootAck 根域名：空应答、非权威、NOERROR
func (s *DNSServer) rootAck(req *dns.Msg) *dns.Msg {
	return s.buildResponse(req, false)
}

func (s *DNSServer) nxdomain(req *dns.Msg, authoritative bool) *dns.Msg {
	msg := s.buildResponse(req, authoritative)
	msg.Rcode = dns.RcodeNameError
	return msg
}

// tunnelAnswer 单条TXT记录；空负载表示传输结束。非法选择器、越界路径和缺失文件一律NXDOMAIN
func (s *DNSServer) tunnelAnswer(req *dns.Msg, tracker *utils.RequestTracker) *dns.Msg {
	question := req.Question[0]

	fileID, index, err := tunnel.ParseChunkName(question.Name, s.tunnelSuffix)
	if err != nil {
		utils.WriteLog(utils.LogWarn, "🕳️ tunnel 查询名无效 %s: %v", question.Name, err)
		return s.nxdomain(req, true)
	}

	chunk, err := s.responder.Respond(fileID, index)
	if err != nil {
		utils.WriteLog(utils.LogWarn, "🕳️ tunnel 文件 %s 分块 %d 拒绝: %v", fileID, index, err)
		return s.nxdomain(req, true)
	}
	if tracker != nil {
		tracker.AddStep("🕳️ 隧道分块 %s#%d: %d字符", fileID, index, len(chunk.Payload))
	}

	msg := s.buildResponse(req, true)
	if question.Qtype != dns.TypeTXT && question.Qtype != dns.TypeANY {
		return msg
	}
	msg.Answer = append(msg.Answer, &dns.TXT{
		Hdr: dns.RR_Header{
			Name:   question.Name,
			Rrtype: dns.TypeTXT,
			Class:  dns.ClassINET,
			Ttl:    s.tunnelTTL,
		},
		Txt: tunnel.SplitTXT(chunk.Payload),
	})
	return msg
}

// blockedAnswer 按存储值构造权威应答
func (s *DNSServer) blockedAnswer(req *dns.Msg, value store.RecordValue, tracker *utils.RequestTracker) *dns.Msg {
	question := req.Question[0]
	msg := s.buildResponse(req, true)

	rrs, err := buildRecords(question, value)
	if err != nil {
		utils.WriteLog(utils.LogWarn, "📄 记录 %s %s 无法构造应答: %v", question.Name, dns.TypeToString[question.Qtype], err)
	}
	msg.Answer = append(msg.Answer, rrs...)

	if tracker != nil {
		tracker.AddStep("🎯 本地应答: %s (%d条)", value, len(msg.Answer))
	}
	return msg
}

func header(name string, rrtype uint16) dns.RR_Header {
	return dns.RR_Header{Name: name, Rrtype: rrtype, Class: dns.ClassINET, Ttl: types.DefaultRecordTTL}
}

// buildRecords 地址值按其自身协议族应答（IPv4为A，IPv6为AAAA），
// 服务记录在A/AAAA查询下使用对应的hint，其余类型按表示格式解析。
func buildRecords(question dns.Question, value store.RecordValue) ([]dns.RR, error) {
	name := question.Name

	if value.IsService() {
		svc := value.Service
		switch question.Qtype {
		case dns.TypeHTTPS, dns.TypeSVCB:
			return []dns.RR{serviceRecord(name, question.Qtype, svc)}, nil
		case dns.TypeA:
			return addressRecords(name, splitHints(svc.IPv4Hint), true), nil
		case dns.TypeAAAA:
			return addressRecords(name, splitHints(svc.IPv6Hint), false), nil
		default:
			return nil, nil
		}
	}

	if isAddressType(question.Qtype) {
		ip := net.ParseIP(strings.TrimSpace(value.Address))
		if ip == nil {
			return nil, fmt.Errorf("❌ 无效的IP地址: %s", value.Address)
		}
		if ip4 := ip.To4(); ip4 != nil {
			return []dns.RR{&dns.A{Hdr: header(name, dns.TypeA), A: ip4}}, nil
		}
		return []dns.RR{&dns.AAAA{Hdr: header(name, dns.TypeAAAA), AAAA: ip}}, nil
	}

	if question.Qtype == dns.TypeTXT {
		return []dns.RR{&dns.TXT{Hdr: header(name, dns.TypeTXT), Txt: tunnel.SplitTXT(value.Address)}}, nil
	}

	typeName, ok := dns.TypeToString[question.Qtype]
	if !ok {
		typeName = fmt.Sprintf("TYPE%d", question.Qtype)
	}
	rr, err := dns.NewRR(fmt.Sprintf("%s %d IN %s %s", name, types.DefaultRecordTTL, typeName, value.Address))
	if err != nil {
		return nil, err
	}
	if rr == nil {
		return nil, nil
	}
	return []dns.RR{rr}, nil
}

func serviceRecord(name string, rrtype uint16, svc *store.ServiceRecord) dns.RR {
	svcb := dns.SVCB{
		Hdr:      header(name, rrtype),
		Priority: svc.Priority,
		Target:   dns.Fqdn(svc.Target),
	}

	if svc.ALPN != "" {
		svcb.Value = append(svcb.Value, &dns.SVCBAlpn{Alpn: splitHints(svc.ALPN)})
	}
	if svc.Port != 0 {
		svcb.Value = append(svcb.Value, &dns.SVCBPort{Port: svc.Port})
	}
	if hints := parseIPs(splitHints(svc.IPv4Hint), true); len(hints) > 0 {
		svcb.Value = append(svcb.Value, &dns.SVCBIPv4Hint{Hint: hints})
	}
	if hints := parseIPs(splitHints(svc.IPv6Hint), false); len(hints) > 0 {
		svcb.Value = append(svcb.Value, &dns.SVCBIPv6Hint{Hint: hints})
	}

	if rrtype == dns.TypeHTTPS {
		return &dns.HTTPS{SVCB: svcb}
	}
	return &svcb
}

func addressRecords(name string, addrs []string, v4 bool) []dns.RR {
	var rrs []dns.RR
	for _, ip := range parseIPs(addrs, v4) {
		if v4 {
			rrs = append(rrs, &dns.A{Hdr: header(name, dns.TypeA), A: ip})
		} else {
			rrs = append(rrs, &dns.AAAA{Hdr: header(name, dns.TypeAAAA), AAAA: ip})
		}
	}
	return rrs
}

func parseIPs(addrs []string, v4 bool) []net.IP {
	var ips []net.IP
	for _, addr := range addrs {
		ip := net.ParseIP(addr)
		if ip == nil {
			continue
		}
		if ip4 := ip.To4(); v4 && ip4 != nil {
			ips = append(ips, ip4)
		} else if !v4 && ip4 == nil {
			ips = append(ips, ip)
		}
	}
	return ips
}

func splitHints(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
