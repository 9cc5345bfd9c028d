package audit

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Entry 一次拦截事件
type Entry struct {
	Domain    string    `json:"domain"`
	QueryType string    `json:"type"`
	Client    string    `json:"client"`
	Time      time.Time `json:"time"`
}

// Logger 拦截审计日志接口
type Logger interface {
	LogBlocked(ctx context.Context, entry Entry) error
	Close() error
}

// NullLogger 不记录任何内容
type NullLogger struct{}

// FileLogger 追加写入文本日志，每次拦截一整行
type FileLogger struct {
	path   string
	offset time.Duration
	file   *os.File
	mu     sync.Mutex
}

// RedisLogger 将拦截事件镜像到Redis列表并累计域名命中数
type RedisLogger struct {
	client    *redis.Client
	keyPrefix string
}

// MultiLogger 依次写入多个日志后端
type MultiLogger struct {
	loggers []Logger
}

// DomainCount 单个域名的拦截次数
type DomainCount struct {
	Domain string
	Count  int
}
