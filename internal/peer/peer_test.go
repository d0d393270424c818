package peer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/gaspardpetit/shittim/internal/bridge"
	"github.com/gaspardpetit/shittim/internal/bridge/events"
	"github.com/gaspardpetit/shittim/internal/hostsdk"
	"github.com/gaspardpetit/shittim/internal/roster"
)

func quiet() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func startPeer(t *testing.T) (*Peer, *httptest.Server) {
	t.Helper()
	p := New(Options{
		ReplyMin: 10 * time.Millisecond,
		ReplyMax: 20 * time.Millisecond,
		Version:  "test",
		Logger:   quiet(),
		Now:      func() time.Time { return time.UnixMilli(1700000000000) },
	})
	reg := prometheus.NewRegistry()
	Register(reg)
	srv := httptest.NewServer(NewServer(p, ServerOptions{AllowedOrigins: []string{"http://ui.local"}, Gatherer: reg}))
	t.Cleanup(func() {
		p.Close()
		srv.Close()
	})
	return p, srv
}

func post(t *testing.T, url, body string) (int, string) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(b)
}

func httpClient(srv *httptest.Server) *bridge.Client {
	return bridge.New(bridge.Options{BaseURL: srv.URL, Logger: quiet()})
}

func TestPingAndResolve(t *testing.T) {
	_, srv := startPeer(t)
	status, body := post(t, srv.URL+"/api/ping", "{}")
	if status != http.StatusOK || !strings.Contains(body, `"version":"test"`) {
		t.Fatalf("ping = %d %s", status, body)
	}
	c := httpClient(srv)
	defer c.Close()
	if m := c.Resolve(context.Background()); m != bridge.HTTPMode(srv.URL) {
		t.Fatalf("unexpected mode %v", m)
	}
}

func TestActionErrors(t *testing.T) {
	_, srv := startPeer(t)
	cases := []struct {
		path, body string
		status     int
	}{
		{"/api/nope", "{}", http.StatusNotFound},
		{"/api/teleport", "[1,2", http.StatusBadRequest},
		{"/api/getInventory", "", http.StatusOK},
	}
	for _, tc := range cases {
		if status, body := post(t, srv.URL+tc.path, tc.body); status != tc.status {
			t.Fatalf("%s: status %d (%s), want %d", tc.path, status, body, tc.status)
		}
	}

	c := httpClient(srv)
	defer c.Close()
	_, err := c.Call(context.Background(), "nope", nil)
	var he *bridge.HTTPError
	if !errors.As(err, &he) || he.Status != http.StatusNotFound {
		t.Fatalf("expected 404 HTTPError, got %v", err)
	}
}

func TestWorldActionsOverHTTP(t *testing.T) {
	_, srv := startPeer(t)
	c := httpClient(srv)
	defer c.Close()
	ctx := context.Background()

	if err := c.Teleport(ctx, 10, 70, -3); err != nil {
		t.Fatalf("teleport: %v", err)
	}
	info := c.PlayerInfo(ctx)
	if info.Position == nil || info.Position.X != 10 || info.Position.Z != -3 || info.Level != 12 {
		t.Fatalf("unexpected player %+v", info)
	}
	if inv := c.Inventory(ctx); len(inv.Slots) != 3 {
		t.Fatalf("unexpected inventory %+v", inv)
	}
	if tasks := c.Tasks(ctx); len(tasks) != 2 || tasks[1].MaxProgress != 16 {
		t.Fatalf("unexpected tasks %+v", tasks)
	}
	if err := c.ExecuteCommand(ctx, "/time set day"); err != nil {
		t.Fatalf("command: %v", err)
	}
	var ae *bridge.ApplicationError
	if err := c.SendChat(ctx, "  "); !errors.As(err, &ae) {
		t.Fatalf("expected application error for empty chat, got %v", err)
	}
}

func TestChatHistoryAndRoster(t *testing.T) {
	p, srv := startPeer(t)
	c := httpClient(srv)
	defer c.Close()
	ctx := context.Background()

	resp, err := c.StudentChat(ctx, "alice", "邦邦咔邦")
	if err != nil || resp.RequestID == "" {
		t.Fatalf("chat: %+v %v", resp, err)
	}
	if _, err := c.StudentChat(ctx, "nobody", "hi"); err == nil {
		t.Fatalf("expected error for unknown student")
	}
	wctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if !p.Wait(wctx) {
		t.Fatalf("reply not sent")
	}

	st, err := c.Student(ctx, "ALICE")
	if err != nil || st.Student == nil || st.Student.HistorySize != 2 || !st.Student.HasActiveSession {
		t.Fatalf("unexpected student %+v %v", st, err)
	}

	e := roster.New(c, roster.Options{Logger: quiet()})
	recs, err := e.FetchAndMerge(ctx)
	if err != nil {
		t.Fatalf("roster: %v", err)
	}
	if len(recs) != 4 || recs[0].ID != "ARONA" || recs[1].ID != "ARIS" || !recs[1].HasActiveSession {
		t.Fatalf("unexpected roster %+v", recs)
	}
	for _, r := range recs {
		if r.Placeholder {
			t.Fatalf("default personas should all be in the catalog: %+v", r)
		}
	}

	if _, err := c.ClearHistory(ctx, "alice"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if st, _ := c.Student(ctx, "alice"); st.Student.HasActiveSession {
		t.Fatalf("history not cleared")
	}
	if _, err := c.ClearHistory(ctx, "ghost"); err == nil {
		t.Fatalf("expected error for unknown student")
	}
	if _, err := c.ClearHistory(ctx, ""); err != nil {
		t.Fatalf("clear all: %v", err)
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/bridge/ws"
}

func TestHostSDKEndToEnd(t *testing.T) {
	p, srv := startPeer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	bus := events.NewBus(0)
	sdk, err := hostsdk.Dial(ctx, hostsdk.Options{URL: wsURL(srv), Broadcast: bus, Logger: quiet()})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer sdk.Close()
	if err := sdk.WhenReady(ctx); err != nil || sdk.Version() != "test" {
		t.Fatalf("ready: %v %q", err, sdk.Version())
	}

	c := bridge.New(bridge.Options{SDK: sdk, Bus: bus, Override: bridge.InjectedSDKMode(), Logger: quiet()})
	defer c.Close()

	replies := make(chan bridge.StudentReplyEvent, 4)
	c.OnStudentReply(func(ev bridge.StudentReplyEvent) { replies <- ev })

	resp, err := c.StudentChat(ctx, "arona", "早上好")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	select {
	case ev := <-replies:
		if ev.RequestID != resp.RequestID || ev.StudentID != "arona" || !ev.Success || ev.Content == "" {
			t.Fatalf("unexpected reply %+v", ev)
		}
	case <-ctx.Done():
		t.Fatalf("no reply")
	}
	// a second reply with the same id must not arrive
	select {
	case ev := <-replies:
		t.Fatalf("duplicate reply %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}

	chats := make(chan events.Event, 1)
	c.On(bridge.EventPlayerChat, func(ev events.Event) { chats <- ev })
	if err := c.SendChat(ctx, "hello"); err != nil {
		t.Fatalf("send chat: %v", err)
	}
	select {
	case ev := <-chats:
		var pc bridge.PlayerChatEvent
		if err := ev.Decode(&pc); err != nil || pc.Message != "hello" || pc.Sender != "Sensei" || pc.Timestamp != 1700000000000 {
			t.Fatalf("unexpected chat event %+v %v", pc, err)
		}
	case <-ctx.Done():
		t.Fatalf("no chat event")
	}

	c.EnableDebug()
	if p.Connections() != 1 {
		t.Fatalf("expected one connection, got %d", p.Connections())
	}
}

func TestEmitEndpoint(t *testing.T) {
	p, srv := startPeer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	sdk, err := hostsdk.Dial(ctx, hostsdk.Options{URL: wsURL(srv), Logger: quiet()})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer sdk.Close()
	if err := sdk.WhenReady(ctx); err != nil {
		t.Fatalf("ready: %v", err)
	}
	got := make(chan json.RawMessage, 1)
	sdk.Subscribe(bridge.EventTaskComplete, func(raw json.RawMessage) { got <- raw }, true)

	deadline := time.Now().Add(time.Second)
	for p.Connections() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	status, body := post(t, srv.URL+"/dev/events/task:complete", `{"taskId":"mine-iron"}`)
	if status != http.StatusAccepted || !strings.Contains(body, `"delivered":1`) {
		t.Fatalf("emit = %d %s", status, body)
	}
	select {
	case raw := <-got:
		if !bytes.Contains(raw, []byte("mine-iron")) {
			t.Fatalf("unexpected event %s", raw)
		}
	case <-ctx.Done():
		t.Fatalf("event not delivered")
	}
	if status, _ := post(t, srv.URL+"/dev/events/x", "{"); status != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid JSON, got %d", status)
	}
}

func TestHealthMetricsAndCORS(t *testing.T) {
	_, srv := startPeer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: %v %v", resp, err)
	}
	resp.Body.Close()

	_, _ = post(t, srv.URL+"/api/ping", "{}")
	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(b), `shittim_peer_requests_total{action="ping",outcome="ok"}`) {
		t.Fatalf("ping not counted:\n%s", b)
	}

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/api/ping", nil)
	req.Header.Set("Origin", "http://ui.local")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://ui.local" {
		t.Fatalf("unexpected allow origin %q", got)
	}
}

func TestDrainRefusesCalls(t *testing.T) {
	p, srv := startPeer(t)
	p.StartDrain()
	if code, _ := post(t, srv.URL+"/api/ping", "{}"); code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 while draining, got %d", code)
	}
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	defer resp.Body.Close()
	var body struct{ Status string }
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Status != "draining" {
		t.Fatalf("unexpected health %+v %v", body, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if !p.Wait(ctx) {
		t.Fatalf("idle peer did not drain")
	}
}

type logSink struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *logSink) Write(b []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(b)
}

func (s *logSink) count(msg string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Count(s.buf.String(), msg)
}

func TestDebugConfigRaisesCallLogging(t *testing.T) {
	sink := &logSink{}
	lg := zerolog.New(sink).Level(zerolog.InfoLevel)
	p := New(Options{Version: "test", Logger: &lg})
	srv := httptest.NewServer(NewServer(p, ServerOptions{}))
	t.Cleanup(func() {
		p.Close()
		srv.Close()
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	sdk, err := hostsdk.Dial(ctx, hostsdk.Options{URL: wsURL(srv), Logger: quiet()})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer sdk.Close()
	if err := sdk.WhenReady(ctx); err != nil {
		t.Fatalf("ready: %v", err)
	}

	if _, err := sdk.PlayerInfo(ctx); err != nil {
		t.Fatalf("player info: %v", err)
	}
	if n := sink.count(`"host sdk call"`); n != 0 {
		t.Fatalf("calls logged before debug was enabled: %d", n)
	}
	if err := sdk.EnableDebug(); err != nil {
		t.Fatalf("enable debug: %v", err)
	}
	if _, err := sdk.PlayerInfo(ctx); err != nil {
		t.Fatalf("player info: %v", err)
	}
	if n := sink.count(`"action":"getPlayerInfo"`); n != 1 {
		t.Fatalf("expected one logged call after debug, got %d:\n%s", n, sink.buf.String())
	}
}
