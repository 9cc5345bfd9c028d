package cache

import (
	"dnshole/utils"
)

// NewNullCache 创建新的空缓存实例
func NewNullCache() *NullCache {
	utils.WriteLog(utils.LogInfo, "🚫 隧道文件无缓存模式")
	return &NullCache{}
}

// Get 从缓存中获取条目
func (nc *NullCache) Get(key string) (string, bool) { return "", false }

// Set 将条目设置到缓存中
func (nc *NullCache) Set(key string, value string) {}

// Shutdown 关闭缓存
func (nc *NullCache) Shutdown() {}
