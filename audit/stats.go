package audit

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// ParseBlockLog 统计每个域名在日志中出现的次数，取每行第一列
func ParseBlockLog(r io.Reader) (map[string]int, error) {
	counts := make(map[string]int)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		counts[strings.ToLower(fields[0])]++
	}
	if err := scanner.Err(); err != nil {
		return counts, fmt.Errorf("📖 读取拦截日志失败: %w", err)
	}
	return counts, nil
}

// Summarize 按次数降序、域名升序排列
func Summarize(counts map[string]int) []DomainCount {
	result := make([]DomainCount, 0, len(counts))
	for domain, n := range counts {
		result = append(result, DomainCount{Domain: domain, Count: n})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Domain < result[j].Domain
	})
	return result
}

// SummarizeFile 读取日志文件并汇总
func SummarizeFile(path string) ([]DomainCount, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("📖 打开拦截日志失败: %w", err)
	}
	defer file.Close()

	counts, err := ParseBlockLog(file)
	if err != nil {
		return nil, err
	}
	return Summarize(counts), nil
}

// WriteSummary 输出 "<次数>\t<域名>" 列表
func WriteSummary(w io.Writer, summary []DomainCount) error {
	for _, dc := range summary {
		if _, err := fmt.Fprintf(w, "%d\t%s\n", dc.Count, dc.Domain); err != nil {
			return err
		}
	}
	return nil
}
