package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/gaspardpetit/shittim/internal/peer"
	"github.com/gaspardpetit/shittim/internal/settings"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	base := []string{"--mode", "mock", "--mock-reply-min", "5ms", "--mock-reply-max", "10ms", "--log-level", "error"}
	return execute(t, append(base, args...))
}

func execute(t *testing.T, args []string) string {
	t.Helper()
	for _, key := range []string{"STORE_URL", "SDK_URL", "METRICS_ADDR", "BRIDGE_URL", "BRIDGE_MODE", "PAGE_ORIGIN"} {
		t.Setenv(key, "")
	}
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	root, err := newRootCmd(args)
	if err != nil {
		t.Fatalf("new root: %v", err)
	}
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("%v: %v (stderr %q)", args, err, errOut.String())
	}
	return out.String()
}

func TestChatInMockMode(t *testing.T) {
	out := run(t, "chat", "arona", "hello", "there", "--timeout", "2s")
	if !strings.HasPrefix(out, "阿罗娜: ") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestRosterInMockMode(t *testing.T) {
	out := run(t, "roster")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[1], "ARONA ") {
		t.Fatalf("unexpected roster %q", out)
	}
}

func TestStatusInMockMode(t *testing.T) {
	out := run(t, "status")
	if !strings.Contains(out, "mode:      mock") || !strings.Contains(out, "player:    Sensei") {
		t.Fatalf("unexpected status %q", out)
	}
}

func TestSettingsCommand(t *testing.T) {
	out := run(t, "settings", "zoom=400", "debug=true")
	if out != "zoom=250 volume=80 notifications=true debug=true\n" {
		t.Fatalf("unexpected settings %q", out)
	}
}

func TestSetOptionRejectsUnknown(t *testing.T) {
	for _, kv := range []string{"zoom", "color=red", "volume=loud"} {
		if _, err := setOption(settings.Defaults(), kv); err == nil {
			t.Fatalf("%s: expected error", kv)
		}
	}
}

func startPeer(t *testing.T) string {
	t.Helper()
	nop := zerolog.Nop()
	p := peer.New(peer.Options{ReplyMin: 10 * time.Millisecond, ReplyMax: 20 * time.Millisecond, Logger: &nop})
	srv := httptest.NewServer(peer.NewServer(p, peer.ServerOptions{}))
	t.Cleanup(func() {
		p.Close()
		srv.Close()
	})
	return srv.URL
}

func TestChatAgainstPeer(t *testing.T) {
	url := startPeer(t)
	base := []string{"--bridge-url", url, "--log-level", "error"}

	out := execute(t, append(base, "status"))
	if !strings.Contains(out, "mode:      http("+url+")") {
		t.Fatalf("peer not detected: %q", out)
	}
	out = execute(t, append(base, "chat", "arona", "hi", "--timeout", "2s"))
	if !strings.HasPrefix(out, "阿罗娜: ") {
		t.Fatalf("no reply over the peer event feed: %q", out)
	}

	out = execute(t, append(base, "history"))
	var arona string
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "arona ") {
			arona = line
		}
	}
	if !strings.HasSuffix(strings.TrimSpace(arona), "yes") {
		t.Fatalf("arona should have history: %q", out)
	}
	if !strings.Contains(out, "hina ") {
		t.Fatalf("missing chat partners: %q", out)
	}
}
