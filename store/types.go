package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// RecordType 记录类型名称，如 "A"、"AAAA"、"HTTPS" 或 "TYPE99"
type RecordType string

// 常用记录类型
const (
	TypeA     RecordType = "A"
	TypeAAAA  RecordType = "AAAA"
	TypeTXT   RecordType = "TXT"
	TypeHTTPS RecordType = "HTTPS"
)

// ServiceRecord HTTPS/SVCB 结构化记录
type ServiceRecord struct {
	Priority uint16 `json:"priority"`
	Target   string `json:"target"`
	ALPN     string `json:"alpn"`
	Port     uint16 `json:"port"`
	IPv4Hint string `json:"ipv4hint"`
	IPv6Hint string `json:"ipv6hint"`
}

// RecordValue 记录值：纯地址字符串或结构化服务记录，二者只能有其一
type RecordValue struct {
	Address string
	Service *ServiceRecord
}

// Records 记录类型 -> 规范化域名 -> 值
type Records map[RecordType]map[string]RecordValue

// RecordStore 本地覆盖记录表，持久化为单个JSON文档
type RecordStore struct {
	path    string
	records Records
	mu      sync.RWMutex
}

var (
	// ErrEmptyValue 记录值为空
	ErrEmptyValue = errors.New("❌ 记录值为空")
	// ErrEmptyDomain 域名为空
	ErrEmptyDomain = errors.New("❌ 域名为空")
)

// Address 构造纯地址记录值
func Address(addr string) RecordValue {
	return RecordValue{Address: addr}
}

// Service 构造结构化服务记录值
func Service(svc ServiceRecord) RecordValue {
	return RecordValue{Service: &svc}
}

// IsService 是否为结构化服务记录
func (v RecordValue) IsService() bool {
	return v.Service != nil
}

// String 便于日志输出
func (v RecordValue) String() string {
	if v.Service != nil {
		return fmt.Sprintf("%d %s alpn=%s port=%d", v.Service.Priority, v.Service.Target, v.Service.ALPN, v.Service.Port)
	}
	return v.Address
}

// MarshalJSON 纯地址编码为字符串，服务记录编码为对象
func (v RecordValue) MarshalJSON() ([]byte, error) {
	if v.Service != nil {
		return json.Marshal(v.Service)
	}
	return json.Marshal(v.Address)
}

// UnmarshalJSON 接受字符串或对象
func (v *RecordValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return ErrEmptyValue
	}

	switch data[0] {
	case '"':
		var addr string
		if err := json.Unmarshal(data, &addr); err != nil {
			return err
		}
		*v = RecordValue{Address: addr}
		return nil
	case '{':
		var svc ServiceRecord
		if err := json.Unmarshal(data, &svc); err != nil {
			return err
		}
		*v = RecordValue{Service: &svc}
		return nil
	default:
		return fmt.Errorf("📦 不支持的记录值: %s", string(data))
	}
}
