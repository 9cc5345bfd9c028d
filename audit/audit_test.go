package audit

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"dnshole/types"
)

func TestFormatLine(t *testing.T) {
	ts := time.Date(2024, 5, 1, 22, 30, 0, 0, time.UTC)

	got := FormatLine(Entry{Domain: "ads.example.", Time: ts}, 3*time.Hour)
	want := "ads.example has been blocked at 2024-05-02 01:30:00\n"
	if got != want {
		t.Errorf("FormatLine() = %q, want %q", got, want)
	}

	got = FormatLine(Entry{Domain: "ads.example.", Client: "127.0.0.1", Time: ts}, 0)
	if !strings.HasSuffix(got, " by 127.0.0.1\n") {
		t.Errorf("FormatLine() with client = %q", got)
	}
}

func TestFileLoggerAppendsWholeLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "blocked_domains.md")
	logger, err := NewFileLogger(path, 0)
	if err != nil {
		t.Fatalf("NewFileLogger() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = logger.LogBlocked(context.Background(), Entry{Domain: "ads.example.", Client: "10.0.0.1", Time: time.Now()})
		}()
	}
	wg.Wait()
	if err := logger.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	if len(lines) != 20 {
		t.Fatalf("got %d lines, want 20", len(lines))
	}
	for _, line := range lines {
		if !strings.HasPrefix(line, "ads.example has been blocked at ") {
			t.Errorf("malformed line %q", line)
		}
	}

	if err := logger.LogBlocked(context.Background(), Entry{Domain: "x."}); !errors.Is(err, os.ErrClosed) {
		t.Errorf("write after close error = %v", err)
	}
}

type recordingLogger struct {
	entries []Entry
	err     error
	closed  bool
}

func (r *recordingLogger) LogBlocked(_ context.Context, e Entry) error {
	r.entries = append(r.entries, e)
	return r.err
}

func (r *recordingLogger) Close() error {
	r.closed = true
	return nil
}

func TestMultiLoggerContinuesPastFailure(t *testing.T) {
	failing := &recordingLogger{err: errors.New("down")}
	healthy := &recordingLogger{}
	m := NewMultiLogger(failing, nil, healthy)

	err := m.LogBlocked(context.Background(), Entry{Domain: "ads.example."})
	if err == nil {
		t.Error("expected joined error from failing backend")
	}
	if len(healthy.entries) != 1 {
		t.Errorf("healthy backend got %d entries", len(healthy.entries))
	}

	_ = m.Close()
	if !failing.closed || !healthy.closed {
		t.Error("Close did not reach every backend")
	}
}

func TestNewWithoutSinksIsNull(t *testing.T) {
	cfg := &types.ServerConfig{}
	logger, err := New(cfg, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := logger.(*NullLogger); !ok {
		t.Errorf("New() = %T, want *NullLogger", logger)
	}
}

func TestSummarize(t *testing.T) {
	log := strings.Join([]string{
		"ads.example has been blocked at 2024-05-02 01:30:00",
		"tracker.example has been blocked at 2024-05-02 01:31:00",
		"",
		"ads.example has been blocked at 2024-05-02 01:32:00 by 127.0.0.1",
		"a.example has been blocked at 2024-05-02 01:33:00",
	}, "\n")

	counts, err := ParseBlockLog(strings.NewReader(log))
	if err != nil {
		t.Fatal(err)
	}
	summary := Summarize(counts)

	want := []DomainCount{{"ads.example", 2}, {"a.example", 1}, {"tracker.example", 1}}
	if len(summary) != len(want) {
		t.Fatalf("summary = %+v", summary)
	}
	for i := range want {
		if summary[i] != want[i] {
			t.Errorf("summary[%d] = %+v, want %+v", i, summary[i], want[i])
		}
	}

	var buf bytes.Buffer
	if err := WriteSummary(&buf, summary); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "2\tads.example\n") {
		t.Errorf("WriteSummary() = %q", buf.String())
	}
}

func TestRedisLoggerMirrorsEvents(t *testing.T) {
	addr := os.Getenv("DNSHOLE_TEST_REDIS")
	if addr == "" {
		t.Skip("DNSHOLE_TEST_REDIS not set")
	}

	cfg := &types.ServerConfig{}
	cfg.Redis.Address = addr
	cfg.Redis.KeyPrefix = "dnshole-test:" + strings.ReplaceAll(t.Name(), "/", "_") + ":"

	logger, err := NewRedisLogger(cfg)
	if err != nil {
		t.Fatalf("NewRedisLogger() error = %v", err)
	}
	defer logger.Close()

	ctx := context.Background()
	defer logger.client.Del(ctx, logger.EventsKey(), logger.HitsKey("ads.example."))

	before, err := logger.Hits(ctx, "ads.example.")
	if err != nil {
		t.Fatal(err)
	}
	if err := logger.LogBlocked(ctx, Entry{Domain: "ads.example.", Time: time.Now()}); err != nil {
		t.Fatalf("LogBlocked() error = %v", err)
	}
	after, err := logger.Hits(ctx, "ads.example.")
	if err != nil {
		t.Fatal(err)
	}
	if after != before+1 {
		t.Errorf("hits = %d, want %d", after, before+1)
	}
	if n, _ := logger.client.LLen(ctx, logger.EventsKey()).Result(); n < 1 {
		t.Errorf("events list length = %d", n)
	}
}
