package utils

import (
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestTaskManagerBoundsConcurrency(t *testing.T) {
	tm := NewTaskManager(2)

	var running, peak int64
	for i := 0; i < 6; i++ {
		err := tm.ExecuteAsync("bounded", func(ctx context.Context) error {
			n := atomic.AddInt64(&running, 1)
			for {
				p := atomic.LoadInt64(&peak)
				if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt64(&running, -1)
			return nil
		})
		if err != nil {
			t.Fatalf("ExecuteAsync: %v", err)
		}
	}

	if err := tm.Shutdown(time.Second); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if peak > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak)
	}
	if executed, _, _ := tm.GetStats(); executed != 6 {
		t.Errorf("executed = %d, want 6", executed)
	}
	if tm.ActiveCount() != 0 {
		t.Errorf("active = %d after shutdown", tm.ActiveCount())
	}
}

func TestTaskManagerRecoversPanics(t *testing.T) {
	defer SetLogLevel(GetLogLevel())
	SetLogLevel(LogNone)

	tm := NewTaskManager(1)

	if err := tm.ExecuteAsync("panic", func(ctx context.Context) error { panic("boom") }); err != nil {
		t.Fatalf("ExecuteAsync: %v", err)
	}

	done := make(chan struct{})
	if err := tm.ExecuteAsync("after", func(ctx context.Context) error {
		close(done)
		return nil
	}); err != nil {
		t.Fatalf("ExecuteAsync: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task after panic never ran")
	}
	if err := tm.Shutdown(time.Second); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestTaskManagerRejectsAfterShutdown(t *testing.T) {
	tm := NewTaskManager(1)
	if err := tm.Shutdown(time.Second); err != nil {
		t.Fatal(err)
	}

	err := tm.ExecuteAsync("late", func(ctx context.Context) error { return nil })
	if !errors.Is(err, ErrTaskManagerClosed) {
		t.Errorf("ExecuteAsync after shutdown = %v", err)
	}
}

func TestTaskManagerRejectsWaitingTaskOnShutdown(t *testing.T) {
	tm := NewTaskManager(1)

	release := make(chan struct{})
	if err := tm.ExecuteAsync("holder", func(ctx context.Context) error {
		<-release
		return nil
	}); err != nil {
		t.Fatalf("ExecuteAsync: %v", err)
	}

	var ran int32
	waiting := make(chan error, 1)
	go func() {
		waiting <- tm.ExecuteAsync("waiter", func(ctx context.Context) error {
			atomic.StoreInt32(&ran, 1)
			return nil
		})
	}()

	// let the waiter block on the full semaphore first
	time.Sleep(20 * time.Millisecond)

	shut := make(chan error, 1)
	go func() { shut <- tm.Shutdown(time.Second) }()
	for tm.ctx.Err() == nil {
		time.Sleep(time.Millisecond)
	}
	close(release)

	select {
	case err := <-waiting:
		if !errors.Is(err, ErrTaskManagerClosed) {
			t.Errorf("waiting ExecuteAsync = %v, want ErrTaskManagerClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("waiting ExecuteAsync never returned")
	}
	if err := <-shut; err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if atomic.LoadInt32(&ran) != 0 {
		t.Error("task admitted after shutdown ran")
	}
	if _, _, rejected := tm.GetStats(); rejected != 1 {
		t.Errorf("rejected = %d, want 1", rejected)
	}
}

func TestTaskManagerCountsFailures(t *testing.T) {
	defer SetLogLevel(GetLogLevel())
	SetLogLevel(LogNone)

	tm := NewTaskManager(1)
	_ = tm.ExecuteAsync("fail", func(ctx context.Context) error { return errors.New("nope") })
	_ = tm.ExecuteAsync("cancel", func(ctx context.Context) error { return context.Canceled })
	if err := tm.Shutdown(time.Second); err != nil {
		t.Fatal(err)
	}

	if _, failed, _ := tm.GetStats(); failed != 1 {
		t.Errorf("failed = %d, want 1", failed)
	}
}

func TestResourceManagerBuffers(t *testing.T) {
	rm := NewResourceManager(512)

	buf := rm.GetBuffer()
	if len(*buf) != 512 {
		t.Fatalf("buffer length = %d", len(*buf))
	}
	*buf = (*buf)[:10]
	rm.PutBuffer(buf)
	rm.PutBuffer(nil)

	again := rm.GetBuffer()
	if len(*again) != 512 {
		t.Errorf("reused buffer length = %d", len(*again))
	}

	gets, puts, _ := rm.GetStats()
	if gets != 2 || puts != 1 {
		t.Errorf("gets=%d puts=%d", gets, puts)
	}
}

func TestWriteLogFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	SetLogOutput(&buf)
	SetLogStyle(false, false)
	level := GetLogLevel()
	defer func() {
		SetLogOutput(os.Stdout)
		SetLogStyle(true, true)
		SetLogLevel(level)
	}()

	SetLogLevel(LogWarn)
	WriteLog(LogInfo, "hidden %d", 1)
	WriteLog(LogWarn, "shown %d", 2)
	WriteLog(LogNone, "never")

	out := buf.String()
	if strings.Contains(out, "hidden") || strings.Contains(out, "never") {
		t.Errorf("filtered message written: %q", out)
	}
	if !strings.Contains(out, "WARN shown 2") {
		t.Errorf("missing warn line: %q", out)
	}
}

func TestEnhanceLogMessage(t *testing.T) {
	defer SetLogStyle(true, true)
	SetLogStyle(false, true)

	if got := enhanceLogMessage("udp listener ready"); !strings.HasPrefix(got, "📡 ") {
		t.Errorf("udp message = %q", got)
	}
	if got := enhanceLogMessage("📡 udp listener ready"); strings.Count(got, "📡") != 1 {
		t.Errorf("emoji duplicated: %q", got)
	}

	SetLogStyle(false, false)
	if got := enhanceLogMessage("udp listener ready"); got != "udp listener ready" {
		t.Errorf("plain message = %q", got)
	}
}

func TestGetClientIP(t *testing.T) {
	ip := net.ParseIP("192.0.2.7")
	if got := GetClientIP(&net.UDPAddr{IP: ip, Port: 53}); !got.Equal(ip) {
		t.Errorf("udp = %v", got)
	}
	if got := GetClientIP(&net.TCPAddr{IP: ip, Port: 53}); !got.Equal(ip) {
		t.Errorf("tcp = %v", got)
	}
	if got := GetClientIP(&net.UnixAddr{Name: "sock"}); got != nil {
		t.Errorf("unix = %v", got)
	}
}

func TestProtocolHelpers(t *testing.T) {
	for _, p := range []string{"tls", "QUIC", "https"} {
		if !IsSecureProtocol(p) {
			t.Errorf("%s should be secure", p)
		}
	}
	for _, p := range []string{"udp", "tcp", ""} {
		if IsSecureProtocol(p) {
			t.Errorf("%s should not be secure", p)
		}
	}
	if GetProtocolEmoji("quic") != "🚀" {
		t.Errorf("quic emoji = %q", GetProtocolEmoji("quic"))
	}
}
