package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/redis/go-redis/v9/hitless"
	"github.com/redis/go-redis/v9/logging"

	"dnshole/types"
	"dnshole/utils"
)

// NewRedisLogger 连接Redis并验证可用性
func NewRedisLogger(config *types.ServerConfig) (*RedisLogger, error) {
	// 使用go-redis内置的VoidLogger来禁用日志
	logging.Disable()

	rdb := redis.NewClient(&redis.Options{
		Addr:            config.Redis.Address,
		Password:        config.Redis.Password,
		DB:              config.Redis.Database,
		PoolSize:        types.RedisConnectionPoolSize,
		MinIdleConns:    types.RedisMinIdleConnections,
		MaxRetries:      types.RedisMaxRetryAttempts,
		PoolTimeout:     types.RedisConnectionPoolTimeout,
		ReadTimeout:     types.RedisReadTimeout,
		WriteTimeout:    types.RedisWriteTimeout,
		DialTimeout:     types.RedisDialTimeout,
		DisableIdentity: true,
		HitlessUpgradeConfig: &hitless.Config{
			Mode: hitless.MaintNotificationsDisabled,
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), types.StandardOperationTimeout)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("💾 Redis连接失败: %w", err)
	}

	prefix := config.Redis.KeyPrefix
	if prefix == "" {
		prefix = types.DefaultRedisKeyPrefix
	}

	utils.WriteLog(utils.LogInfo, "✅ Redis拦截日志镜像已启用: %s", config.Redis.Address)
	return &RedisLogger{client: rdb, keyPrefix: prefix}, nil
}

// EventsKey 拦截事件列表键
func (l *RedisLogger) EventsKey() string {
	return l.keyPrefix + "blocked"
}

// HitsKey 域名命中计数键
func (l *RedisLogger) HitsKey(domain string) string {
	return l.keyPrefix + "hits:" + strings.TrimSuffix(strings.ToLower(domain), ".")
}

// LogBlocked 在一个管道中追加事件并递增计数
func (l *RedisLogger) LogBlocked(ctx context.Context, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("📦 拦截事件序列化失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, types.StandardOperationTimeout)
	defer cancel()

	_, err = l.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, l.EventsKey(), data)
		pipe.Incr(ctx, l.HitsKey(entry.Domain))
		return nil
	})
	if err != nil {
		return fmt.Errorf("💾 Redis写入拦截事件失败: %w", err)
	}
	return nil
}

// Hits 读取域名累计拦截次数
func (l *RedisLogger) Hits(ctx context.Context, domain string) (int64, error) {
	n, err := l.client.Get(ctx, l.HitsKey(domain)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

// Close 关闭连接池
func (l *RedisLogger) Close() error {
	return l.client.Close()
}
