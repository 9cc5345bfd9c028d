package utils

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// ErrTaskManagerClosed 任务管理器已关闭
var ErrTaskManagerClosed = errors.New("🔒 任务管理器已关闭")

// TaskManager 并发受限的任务管理器
type TaskManager struct {
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	mu          sync.Mutex
	semaphore   chan struct{}
	activeCount int64
	closed      int32
	stats       struct {
		executed int64
		failed   int64
		rejected int64
	}
}

// NewTaskManager 创建新的任务管理器
func NewTaskManager(maxGoroutines int) *TaskManager {
	if maxGoroutines <= 0 {
		maxGoroutines = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &TaskManager{
		ctx:       ctx,
		cancel:    cancel,
		semaphore: make(chan struct{}, maxGoroutines),
	}
}

// ExecuteAsync 异步执行任务，并发数达到上限时阻塞等待空位
func (tm *TaskManager) ExecuteAsync(name string, fn func(ctx context.Context) error) error {
	if tm == nil {
		return ErrTaskManagerClosed
	}
	if atomic.LoadInt32(&tm.closed) != 0 {
		atomic.AddInt64(&tm.stats.rejected, 1)
		return ErrTaskManagerClosed
	}

	select {
	case tm.semaphore <- struct{}{}:
	case <-tm.ctx.Done():
		atomic.AddInt64(&tm.stats.rejected, 1)
		return ErrTaskManagerClosed
	}

	// 关闭与登记互斥，保证Shutdown等待时不会再有新任务加入
	tm.mu.Lock()
	if atomic.LoadInt32(&tm.closed) != 0 {
		tm.mu.Unlock()
		<-tm.semaphore
		atomic.AddInt64(&tm.stats.rejected, 1)
		return ErrTaskManagerClosed
	}
	tm.wg.Add(1)
	tm.mu.Unlock()

	go func() {
		defer tm.wg.Done()
		defer func() { <-tm.semaphore }()
		defer RecoverAndLog(fmt.Sprintf("AsyncTask-%s", name))

		atomic.AddInt64(&tm.activeCount, 1)
		defer atomic.AddInt64(&tm.activeCount, -1)
		atomic.AddInt64(&tm.stats.executed, 1)

		if err := fn(tm.ctx); err != nil && !errors.Is(err, context.Canceled) {
			atomic.AddInt64(&tm.stats.failed, 1)
			WriteLog(LogDebug, "💥 异步任务执行失败 [%s]: %v", name, err)
		}
	}()
	return nil
}

// ActiveCount 当前运行中的任务数
func (tm *TaskManager) ActiveCount() int64 {
	return atomic.LoadInt64(&tm.activeCount)
}

// GetStats 获取任务统计
func (tm *TaskManager) GetStats() (executed, failed, rejected int64) {
	return atomic.LoadInt64(&tm.stats.executed),
		atomic.LoadInt64(&tm.stats.failed),
		atomic.LoadInt64(&tm.stats.rejected)
}

// Shutdown 关闭任务管理器并等待运行中的任务结束
func (tm *TaskManager) Shutdown(timeout time.Duration) error {
	if tm == nil {
		return nil
	}
	tm.mu.Lock()
	if !atomic.CompareAndSwapInt32(&tm.closed, 0, 1) {
		tm.mu.Unlock()
		return nil
	}
	tm.mu.Unlock()

	WriteLog(LogInfo, "🛑 正在关闭任务管理器...")
	tm.cancel()

	done := make(chan struct{})
	go func() {
		tm.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		WriteLog(LogInfo, "✅ 任务管理器已安全关闭")
		return nil
	case <-time.After(timeout):
		WriteLog(LogWarn, "⏰ 任务管理器关闭超时")
		return fmt.Errorf("🕐 shutdown timeout")
	}
}
