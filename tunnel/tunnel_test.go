package tunnel

import (
	"bytes"
	"context"
	"errors"
	"math"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/miekg/dns"

	"dnshole/cache"
)

const testSuffix = "tunnel.test."

func newTestResponder(t *testing.T, files map[string][]byte) *Responder {
	t.Helper()
	dir := t.TempDir()
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	c, err := cache.New(1 << 20)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(c.Shutdown)

	r, err := NewResponder(dir, 200, c)
	if err != nil {
		t.Fatalf("NewResponder() error = %v", err)
	}
	return r
}

func TestRespondChunksFile(t *testing.T) {
	r := newTestResponder(t, map[string][]byte{"example": bytes.Repeat([]byte{0xAB}, 500)})

	// 500 bytes encode to 668 base64 characters.
	wantLens := []int{200, 200, 200, 68, 0}
	for i, want := range wantLens {
		chunk, err := r.Respond("example", i)
		if err != nil {
			t.Fatalf("Respond(%d) error = %v", i, err)
		}
		if len(chunk.Payload) != want {
			t.Errorf("chunk %d length = %d, want %d", i, len(chunk.Payload), want)
		}
		if chunk.IsEnd() != (want == 0) {
			t.Errorf("chunk %d IsEnd = %v", i, chunk.IsEnd())
		}
	}

	if n, err := r.ChunkCount("example"); err != nil || n != 4 {
		t.Errorf("ChunkCount() = %d, %v, want 4", n, err)
	}
}

func TestRespondIsIdempotent(t *testing.T) {
	r := newTestResponder(t, map[string][]byte{"data.txt": []byte(strings.Repeat("hello tunnel ", 40))})

	first, err := r.Respond("data.txt", 1)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		again, err := r.Respond("data.txt", 1)
		if err != nil {
			t.Fatal(err)
		}
		if again.Payload != first.Payload {
			t.Fatalf("repeat %d returned different payload", i)
		}
	}
}

func TestRespondPastEndIsEmpty(t *testing.T) {
	r := newTestResponder(t, map[string][]byte{"small": []byte("abc")})

	for _, index := range []int{1, 50, 1 << 20, 1 << 61, math.MaxInt} {
		chunk, err := r.Respond("small", index)
		if err != nil {
			t.Fatalf("Respond(%d) error = %v", index, err)
		}
		if !chunk.IsEnd() {
			t.Errorf("Respond(%d) payload = %q, want empty", index, chunk.Payload)
		}
	}

	if _, err := r.Respond("small", -1); err == nil {
		t.Error("negative index should be rejected")
	}
}

func TestRespondHugeIndexFromQueryName(t *testing.T) {
	r := newTestResponder(t, map[string][]byte{"example": bytes.Repeat([]byte("A"), 500)})

	for _, name := range []string{
		"chunk2305843009213693952.example.tunnel.test.",
		"chunk99999999999999999999.example.tunnel.test.",
	} {
		id, index, err := ParseChunkName(name, testSuffix)
		if err != nil {
			t.Fatalf("ParseChunkName(%q) error = %v", name, err)
		}
		chunk, err := r.Respond(id, index)
		if err != nil {
			t.Fatalf("Respond(%d) error = %v", index, err)
		}
		if !chunk.IsEnd() {
			t.Errorf("%s returned %d characters, want end of stream", name, len(chunk.Payload))
		}
	}
}

func TestRespondRejectsTraversal(t *testing.T) {
	r := newTestResponder(t, nil)

	outside := filepath.Join(filepath.Dir(r.Dir()), "secret")
	if err := os.WriteFile(outside, []byte("secret"), 0o644); err != nil {
		t.Fatal(err)
	}

	for _, id := range []string{"../secret", "..", ".", "a/b", `a\b`, "", "..secret"} {
		if _, err := r.Respond(id, 0); !errors.Is(err, ErrInvalidFileID) {
			t.Errorf("Respond(%q) error = %v, want ErrInvalidFileID", id, err)
		}
	}

	if err := os.Symlink(outside, filepath.Join(r.Dir(), "link")); err == nil {
		if _, err := r.Respond("link", 0); !errors.Is(err, ErrInvalidFileID) {
			t.Errorf("symlink escape error = %v, want ErrInvalidFileID", err)
		}
	}
}

func TestRespondMissingFile(t *testing.T) {
	r := newTestResponder(t, nil)
	if _, err := r.Respond("nope", 0); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("error = %v, want ErrFileNotFound", err)
	}
}

func TestRespondSeesUpdatedFile(t *testing.T) {
	r := newTestResponder(t, map[string][]byte{"f": []byte("first")})

	before, _ := r.Respond("f", 0)
	path := filepath.Join(r.Dir(), "f")
	if err := os.WriteFile(path, []byte("second version"), 0o644); err != nil {
		t.Fatal(err)
	}
	later := time.Now().Add(time.Second)
	_ = os.Chtimes(path, later, later)

	after, _ := r.Respond("f", 0)
	if after.Payload == before.Payload {
		t.Error("cached encoding survived a file change")
	}
}

func TestNewResponderChunkSize(t *testing.T) {
	for _, size := range []int{0, -4, 6, 201} {
		if _, err := NewResponder(t.TempDir(), size, nil); !errors.Is(err, ErrInvalidChunkSize) {
			t.Errorf("chunk size %d error = %v", size, err)
		}
	}
}

func TestParseChunkName(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		wantID    string
		wantIndex int
		wantErr   bool
	}{
		{"simple", "chunk0.example.tunnel.test.", "example", 0, false},
		{"multi label id", "chunk12.report.txt.tunnel.test.", "report.txt", 12, false},
		{"case insensitive prefix", "CHUNK3.example.Tunnel.Test.", "example", 3, false},
		{"missing file id", "chunk0.tunnel.test.", "", 0, true},
		{"bad prefix", "part0.example.tunnel.test.", "", 0, true},
		{"no digits", "chunk.example.tunnel.test.", "", 0, true},
		{"signed index", "chunk-1.example.tunnel.test.", "", 0, true},
		{"overflowing index", "chunk99999999999999999999.example.tunnel.test.", "example", math.MaxInt, false},
		{"suffix itself", "tunnel.test.", "", 0, true},
		{"other zone", "chunk0.example.other.test.", "", 0, true},
		{"label boundary", "chunk0.example.xtunnel.test.", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, index, err := ParseChunkName(tt.query, testSuffix)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseChunkName(%q) error = %v, wantErr %v", tt.query, err, tt.wantErr)
			}
			if err == nil && (id != tt.wantID || index != tt.wantIndex) {
				t.Errorf("ParseChunkName(%q) = %q, %d", tt.query, id, index)
			}
		})
	}
}

func TestChunkNameRoundTrip(t *testing.T) {
	name := ChunkName(7, "example", "tunnel.test")
	if name != "chunk7.example.tunnel.test." {
		t.Fatalf("ChunkName() = %q", name)
	}
	id, index, err := ParseChunkName(name, testSuffix)
	if err != nil || id != "example" || index != 7 {
		t.Errorf("round trip = %q, %d, %v", id, index, err)
	}
}

func TestSplitTXT(t *testing.T) {
	if got := SplitTXT(""); len(got) != 1 || got[0] != "" {
		t.Errorf("SplitTXT(\"\") = %q", got)
	}
	long := strings.Repeat("A", 600)
	parts := SplitTXT(long)
	if len(parts) != 3 || len(parts[0]) != 255 || len(parts[2]) != 90 {
		t.Errorf("SplitTXT(600) lengths = %d parts", len(parts))
	}
	if strings.Join(parts, "") != long {
		t.Error("split parts do not rejoin")
	}
}

// startTunnelServer serves the responder over UDP with a minimal handler.
func startTunnelServer(t *testing.T, r *Responder) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	handler := dns.HandlerFunc(func(w dns.ResponseWriter, req *dns.Msg) {
		resp := new(dns.Msg)
		resp.SetReply(req)
		q := req.Question[0]
		id, index, err := ParseChunkName(q.Name, testSuffix)
		if err == nil {
			var chunk Chunk
			chunk, err = r.Respond(id, index)
			if err == nil {
				resp.Answer = append(resp.Answer, &dns.TXT{
					Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypeTXT, Class: dns.ClassINET},
					Txt: SplitTXT(chunk.Payload),
				})
			}
		}
		if err != nil {
			resp.Rcode = dns.RcodeNameError
		}
		_ = w.WriteMsg(resp)
	})

	started := make(chan struct{})
	server := &dns.Server{PacketConn: pc, Handler: handler, NotifyStartedFunc: func() { close(started) }}
	go func() { _ = server.ActivateAndServe() }()
	<-started
	t.Cleanup(func() { _ = server.Shutdown() })

	return pc.LocalAddr().String()
}

func TestClientDownloadRoundTrip(t *testing.T) {
	content := bytes.Repeat([]byte("tunnel payload 0123456789\n"), 40)
	r := newTestResponder(t, map[string][]byte{"example.txt": content})
	addr := startTunnelServer(t, r)

	client := NewClient(addr, testSuffix, time.Second, 3)
	outDir := filepath.Join(t.TempDir(), "received_files")

	path, err := client.DownloadToFile(context.Background(), "example.txt", outDir)
	if err != nil {
		t.Fatalf("DownloadToFile() error = %v", err)
	}
	if filepath.Base(path) != "example_received.txt" {
		t.Errorf("output name = %s", filepath.Base(path))
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("downloaded %d bytes, want %d identical bytes", len(got), len(content))
	}
}

func TestClientDefaultsToTxtExtension(t *testing.T) {
	content := []byte("no extension here")
	r := newTestResponder(t, map[string][]byte{"example": content})
	addr := startTunnelServer(t, r)

	client := NewClient(addr, testSuffix, time.Second, 3)
	path, err := client.DownloadToFile(context.Background(), "example", t.TempDir())
	if err != nil {
		t.Fatalf("DownloadToFile() error = %v", err)
	}
	if filepath.Base(path) != "example_received.txt" {
		t.Errorf("output name = %s, want example_received.txt", filepath.Base(path))
	}
	if got, _ := os.ReadFile(path); !bytes.Equal(got, content) {
		t.Errorf("content = %q", got)
	}
}

func TestClientMissingFileFails(t *testing.T) {
	r := newTestResponder(t, nil)
	addr := startTunnelServer(t, r)

	client := NewClient(addr, testSuffix, time.Second, 2)
	if _, err := client.Download(context.Background(), "missing"); !errors.Is(err, ErrTooManyTimeouts) {
		t.Errorf("error = %v, want ErrTooManyTimeouts", err)
	}
}

func TestClientEmptyFileHasNoData(t *testing.T) {
	r := newTestResponder(t, map[string][]byte{"empty": nil})
	addr := startTunnelServer(t, r)

	client := NewClient(addr, testSuffix, time.Second, 2)
	if _, err := client.Download(context.Background(), "empty"); !errors.Is(err, ErrNoData) {
		t.Errorf("error = %v, want ErrNoData", err)
	}
}

func TestClientGivesUpOnSilentServer(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer pc.Close()
	go func() {
		buf := make([]byte, 512)
		for {
			if _, _, err := pc.ReadFrom(buf); err != nil {
				return
			}
		}
	}()

	client := NewClient(pc.LocalAddr().String(), testSuffix, 50*time.Millisecond, 3)
	start := time.Now()
	_, err = client.Download(context.Background(), "example")
	if !errors.Is(err, ErrTooManyTimeouts) {
		t.Fatalf("error = %v, want ErrTooManyTimeouts", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("gave up after %v", elapsed)
	}
}
