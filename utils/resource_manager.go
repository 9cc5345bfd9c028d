package utils

import (
	"sync"
	"sync/atomic"
)

// ResourceManager 收包缓冲区对象池
type ResourceManager struct {
	bufferSize int
	buffers    sync.Pool
	stats      struct {
		gets int64
		puts int64
		news int64
	}
}

// NewResourceManager 创建缓冲区大小为bufferSize的对象池
func NewResourceManager(bufferSize int) *ResourceManager {
	rm := &ResourceManager{bufferSize: bufferSize}
	rm.buffers = sync.Pool{
		New: func() interface{} {
			atomic.AddInt64(&rm.stats.news, 1)
			buf := make([]byte, bufferSize)
			return &buf
		},
	}
	return rm
}

// GetBuffer 获取缓冲区
func (rm *ResourceManager) GetBuffer() *[]byte {
	atomic.AddInt64(&rm.stats.gets, 1)
	buf := rm.buffers.Get().(*[]byte)
	*buf = (*buf)[:rm.bufferSize]
	return buf
}

// PutBuffer 归还缓冲区
func (rm *ResourceManager) PutBuffer(buf *[]byte) {
	if buf == nil || cap(*buf) < rm.bufferSize {
		return
	}
	atomic.AddInt64(&rm.stats.puts, 1)
	rm.buffers.Put(buf)
}

// GetStats 获取对象池统计
func (rm *ResourceManager) GetStats() (gets, puts, news int64) {
	return atomic.LoadInt64(&rm.stats.gets),
		atomic.LoadInt64(&rm.stats.puts),
		atomic.LoadInt64(&rm.stats.news)
}
