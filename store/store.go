package store

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/miekg/dns"

	"dnshole/utils"
)

// DefaultRecords 记录文件缺失或损坏时写入的默认记录
func DefaultRecords() Records {
	return Records{
		TypeA: {
			"example.com.": Address("23.192.228.80"),
		},
	}
}

// NormalizeDomain 统一为小写并补全末尾的点
func NormalizeDomain(domain string) string {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return ""
	}
	return dns.CanonicalName(domain)
}

// NormalizeType 统一记录类型名称为大写
func NormalizeType(recordType RecordType) RecordType {
	return RecordType(strings.ToUpper(strings.TrimSpace(string(recordType))))
}

// Load 加载记录文件；文件缺失或损坏时写入默认记录，不会中断启动。
// 仅当默认记录持久化失败时返回错误，此时返回的store仍可使用。
func Load(path string) (*RecordStore, error) {
	s := &RecordStore{path: path}

	records, err := readRecords(path)
	if err == nil {
		s.records = records
		utils.WriteLog(utils.LogInfo, "📄 记录文件加载成功: %s (%d条)", path, s.Len())
		return s, nil
	}

	if errors.Is(err, fs.ErrNotExist) {
		utils.WriteLog(utils.LogWarn, "⚠️ 记录文件不存在，写入默认记录: %s", path)
	} else {
		utils.WriteLog(utils.LogWarn, "⚠️ 记录文件损坏，写入默认记录: %s (%v)", path, err)
	}

	s.records = DefaultRecords()
	if saveErr := s.Save(); saveErr != nil {
		return s, fmt.Errorf("💾 默认记录保存失败: %w", saveErr)
	}
	return s, nil
}

// NewMemoryStore 创建不落盘的记录表，path为空时Save为空操作
func NewMemoryStore(path string, records Records) *RecordStore {
	s := &RecordStore{path: path, records: Records{}}
	for recordType, domains := range records {
		for domain, value := range domains {
			s.setLocked(recordType, domain, value)
		}
	}
	return s
}

func readRecords(path string) (Records, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw Records
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("📦 解析记录文件失败: %w", err)
	}
	if raw == nil {
		return nil, errors.New("📦 记录文件为空")
	}

	records := make(Records, len(raw))
	for recordType, domains := range raw {
		recordType = NormalizeType(recordType)
		if records[recordType] == nil {
			records[recordType] = make(map[string]RecordValue, len(domains))
		}
		for domain, value := range domains {
			if normalized := NormalizeDomain(domain); normalized != "" {
				records[recordType][normalized] = value
			}
		}
	}
	return records, nil
}

// Lookup 精确匹配查找，不做后缀或通配匹配
func (s *RecordStore) Lookup(recordType RecordType, domain string) (RecordValue, bool) {
	domain = NormalizeDomain(domain)
	if domain == "" {
		return RecordValue{}, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	domains, ok := s.records[NormalizeType(recordType)]
	if !ok {
		return RecordValue{}, false
	}
	value, ok := domains[domain]
	return value, ok
}

// Set 写入内存中的记录，需调用Save持久化
func (s *RecordStore) Set(recordType RecordType, domain string, value RecordValue) error {
	if NormalizeDomain(domain) == "" {
		return ErrEmptyDomain
	}
	if value.Address == "" && value.Service == nil {
		return ErrEmptyValue
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(recordType, domain, value)
	return nil
}

func (s *RecordStore) setLocked(recordType RecordType, domain string, value RecordValue) {
	recordType = NormalizeType(recordType)
	if s.records[recordType] == nil {
		s.records[recordType] = make(map[string]RecordValue)
	}
	s.records[recordType][NormalizeDomain(domain)] = value
}

// Save 整体重写记录文件：先写临时文件再原子替换
func (s *RecordStore) Save() error {
	if s.path == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(s.records, "", "    ")
	if err != nil {
		return fmt.Errorf("📦 记录序列化失败: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("💾 创建临时文件失败: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("💾 写入临时文件失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("💾 关闭临时文件失败: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("💾 替换记录文件失败: %w", err)
	}
	return nil
}

// Len 记录总数
func (s *RecordStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, domains := range s.records {
		total += len(domains)
	}
	return total
}

// Types 已有的记录类型，按名称排序
func (s *RecordStore) Types() []RecordType {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]RecordType, 0, len(s.records))
	for recordType := range s.records {
		result = append(result, recordType)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

// Path 记录文件路径
func (s *RecordStore) Path() string {
	return s.path
}

// ImportDomainList 将每行一个域名的列表导入为A记录，忽略空行和#注释。
// hosts格式的行（"0.0.0.0 ads.example"）取最后一列作为域名。
func (s *RecordStore) ImportDomainList(r io.Reader, value RecordValue) (int, error) {
	if value.Address == "" && value.Service == nil {
		return 0, ErrEmptyValue
	}

	scanner := bufio.NewScanner(r)
	imported := 0

	s.mu.Lock()
	defer s.mu.Unlock()

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if idx := strings.Index(line, "#"); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		domain := NormalizeDomain(fields[len(fields)-1])
		if _, ok := dns.IsDomainName(domain); !ok || domain == "." {
			continue
		}
		s.setLocked(TypeA, domain, value)
		imported++
	}

	if err := scanner.Err(); err != nil {
		return imported, fmt.Errorf("📖 读取域名列表失败: %w", err)
	}
	return imported, nil
}
