package cache

import (
	"fmt"

	"github.com/dgraph-io/ristretto/v2"

	"dnshole/utils"
)

// NewRistrettoCache 创建最大容量为maxCost字节的缓存
func NewRistrettoCache(maxCost int64) (*RistrettoCache, error) {
	if maxCost <= 0 {
		return nil, fmt.Errorf("💾 缓存容量必须为正数: %d", maxCost)
	}

	c, err := ristretto.NewCache(&ristretto.Config[string, string]{
		NumCounters: 10 * 1024,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("💾 ristretto缓存初始化失败: %w", err)
	}

	utils.WriteLog(utils.LogInfo, "✅ 隧道文件缓存初始化完成: %d bytes", maxCost)
	return &RistrettoCache{cache: c, maxCost: maxCost}, nil
}

// New 根据容量选择缓存实现，容量为0时不缓存
func New(maxCost int64) (EncodedCache, error) {
	if maxCost == 0 {
		return NewNullCache(), nil
	}
	return NewRistrettoCache(maxCost)
}

// Get 从缓存中获取条目
func (rc *RistrettoCache) Get(key string) (string, bool) {
	return rc.cache.Get(key)
}

// Set 写入条目并等待缓冲区落地，保证随后的Get可见
func (rc *RistrettoCache) Set(key string, value string) {
	cost := int64(len(value))
	if cost == 0 {
		cost = 1
	}
	if cost > rc.maxCost {
		utils.WriteLog(utils.LogDebug, "💾 条目超过缓存容量，跳过: %s (%d bytes)", key, cost)
		return
	}
	if rc.cache.Set(key, value, cost) {
		rc.cache.Wait()
	}
}

// Shutdown 关闭缓存
func (rc *RistrettoCache) Shutdown() {
	rc.cache.Close()
}
