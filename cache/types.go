package cache

import (
	"github.com/dgraph-io/ristretto/v2"
)

// EncodedCache 隧道文件编码结果缓存接口
type EncodedCache interface {
	Get(key string) (string, bool)
	Set(key string, value string)
	Shutdown()
}

// NullCache 无缓存实现
type NullCache struct{}

// RistrettoCache 基于ristretto的内存缓存，按编码文本长度计费
type RistrettoCache struct {
	cache   *ristretto.Cache[string, string]
	maxCost int64
}
