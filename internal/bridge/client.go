// Package bridge is the single point of contact between the companion and the
// game process. A Client picks one of three transports at first use (the
// embedded HTTP peer, a host provided SDK, or a local mock) and keeps the
// request and event contract identical across them.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/gaspardpetit/shittim/core/logx"
	"github.com/gaspardpetit/shittim/internal/bridge/events"
	"github.com/gaspardpetit/shittim/internal/inflight"
)

const (
	// DefaultSDKReadyTimeout bounds the wait for a host SDK during resolution.
	DefaultSDKReadyTimeout = time.Second
	DefaultMockReplyMin    = time.Second
	DefaultMockReplyMax    = 2 * time.Second
)

type (
	// Event is a named payload delivered to subscribers.
	Event = events.Event
	// Handler receives events delivered to a subscription.
	Handler = events.Handler
)

// Options configures a Client. The zero value probes DefaultBaseURL and runs
// without a host SDK.
type Options struct {
	// BaseURL is the fallback peer address.
	BaseURL string
	// PageOrigin is the origin the UI is served from. When it is a loopback
	// address on EmbeddedPort it is probed first.
	PageOrigin   string
	EmbeddedPort int

	ProbeTimeout    time.Duration
	SDKReadyTimeout time.Duration

	// Override skips detection when resolved.
	Override Mode

	SDK        HostSDK
	HTTPClient *http.Client
	Bus        *events.Bus

	MockReplyMin time.Duration
	MockReplyMax time.Duration
	// Rand returns a value in [0, n). Defaults to math/rand.
	Rand func(n int64) int64

	Logger *zerolog.Logger
}

func (o *Options) setDefaults() {
	if o.BaseURL == "" {
		o.BaseURL = DefaultBaseURL
	}
	if o.EmbeddedPort == 0 {
		o.EmbeddedPort = DefaultEmbeddedPort
	}
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = DefaultProbeTimeout
	}
	if o.SDKReadyTimeout <= 0 {
		o.SDKReadyTimeout = DefaultSDKReadyTimeout
	}
	if o.SDK == nil {
		o.SDK = Unavailable{}
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{}
	}
	if o.Bus == nil {
		o.Bus = events.NewBus(0)
	}
	if o.MockReplyMin <= 0 {
		o.MockReplyMin = DefaultMockReplyMin
	}
	if o.MockReplyMax <= 0 {
		o.MockReplyMax = DefaultMockReplyMax
	}
	if o.MockReplyMax < o.MockReplyMin {
		o.MockReplyMax = o.MockReplyMin
	}
	if o.Rand == nil {
		o.Rand = rand.Int63n
	}
}

// Client is safe for concurrent use. Construct one per process and share it.
type Client struct {
	opts   Options
	sdk    HostSDK
	bus    *events.Bus
	prober *Prober
	log    zerolog.Logger

	mu       sync.RWMutex
	mode     Mode
	override *Mode
	sdkCfg   SDKConfig

	resolving singleflight.Group
	pending   inflight.Counter

	subsMu  sync.Mutex
	sdkSubs map[string]*sdkSub

	timersMu sync.Mutex
	timers   map[*time.Timer]struct{}
	closed   bool
}

type sdkSub struct {
	refs   int
	cancel func()
}

// New builds a Client. Nothing is probed until the first call.
func New(opts Options) *Client {
	opts.setDefaults()
	lg := logx.Component("bridge")
	if opts.Logger != nil {
		lg = *opts.Logger
	}
	c := &Client{
		opts:    opts,
		sdk:     opts.SDK,
		bus:     opts.Bus,
		prober:  &Prober{Client: opts.HTTPClient, Timeout: opts.ProbeTimeout},
		log:     lg,
		sdkCfg:  DefaultSDKConfig,
		sdkSubs: make(map[string]*sdkSub),
		timers:  make(map[*time.Timer]struct{}),
	}
	if opts.Override.Resolved() {
		c.SetOverride(opts.Override)
	}
	return c
}

// Bus returns the broadcast bus every event is dispatched on.
func (c *Client) Bus() *events.Bus { return c.bus }

// SDK returns the host SDK the client was built with.
func (c *Client) SDK() HostSDK { return c.sdk }

// SetOverride pins the transport. An HTTP override without a base URL uses
// the page origin or the fallback address.
func (c *Client) SetOverride(m Mode) {
	if m.Kind == KindHTTP && m.BaseURL == "" {
		m.BaseURL = c.defaultBase()
	}
	c.mu.Lock()
	c.override = &m
	c.mu.Unlock()
	c.log.Debug().Str("mode", m.String()).Msg("bridge mode overridden")
}

// ClearOverride returns to detection. The cached detection result, if any,
// is kept.
func (c *Client) ClearOverride() {
	c.mu.Lock()
	c.override = nil
	c.mu.Unlock()
}

// Reset forgets the detected mode so the next call probes again.
func (c *Client) Reset() {
	c.mu.Lock()
	c.mode = Mode{}
	c.mu.Unlock()
}

// Mode returns the active mode without probing. It is unresolved until the
// first call completes detection.
func (c *Client) Mode() Mode {
	m, _ := c.current()
	return m
}

// MockMode reports whether calls are answered locally.
func (c *Client) MockMode() bool { return c.Mode().Kind == KindMock }

func (c *Client) current() (Mode, bool) {
	c.mu.RLock()
	if c.override != nil {
		m := *c.override
		c.mu.RUnlock()
		return m, true
	}
	m := c.mode
	c.mu.RUnlock()
	if m.Kind == KindMock && c.sdk.Available() && c.sdk.Ready() {
		c.mu.Lock()
		if c.override == nil && c.mode.Kind == KindMock {
			c.mode = InjectedSDKMode()
			c.log.Info().Msg("host sdk became ready; leaving mock mode")
		}
		m = c.mode
		c.mu.Unlock()
	}
	return m, m.Resolved()
}

// Resolve returns the active mode, detecting it on first use. Concurrent
// callers share a single detection, which is bounded by the probe and SDK
// ready timeouts and does not depend on any caller's context. A caller whose
// ctx ends first gets an unresolved Mode.
func (c *Client) Resolve(ctx context.Context) Mode {
	if m, ok := c.current(); ok {
		return m
	}
	ch := c.resolving.DoChan("mode", func() (any, error) {
		if m, ok := c.current(); ok {
			return m, nil
		}
		m := c.detect(context.WithoutCancel(ctx))
		c.mu.Lock()
		c.mode = m
		c.mu.Unlock()
		modeResolutions.WithLabelValues(m.Kind.String()).Inc()
		return m, nil
	})
	select {
	case r := <-ch:
		return r.Val.(Mode)
	case <-ctx.Done():
		return Mode{}
	}
}

func (c *Client) detect(ctx context.Context) Mode {
	var errs []error
	for _, base := range c.probeTargets() {
		err := c.prober.Probe(ctx, base)
		if err == nil {
			c.log.Info().Str("base_url", base).Msg("bridge peer detected")
			return HTTPMode(base)
		}
		c.log.Debug().Err(err).Str("base_url", base).Msg("bridge probe failed")
		errs = append(errs, err)
	}

	if c.sdk.Available() {
		wctx, cancel := context.WithTimeout(ctx, c.opts.SDKReadyTimeout)
		err := c.sdk.WhenReady(wctx)
		cancel()
		if err == nil && c.sdk.Ready() {
			c.log.Info().Msg("using host sdk")
			return InjectedSDKMode()
		}
		if err == nil {
			err = errors.New("host sdk not ready")
		}
		errs = append(errs, err)
	}

	c.log.Info().Err(errors.Join(errs...)).Msg("no bridge peer found; entering mock mode")
	return MockMode()
}

func (c *Client) probeTargets() []string {
	var out []string
	if o := embeddedOrigin(c.opts.PageOrigin, c.opts.EmbeddedPort); o != "" {
		out = append(out, o)
	}
	if len(out) == 0 || out[0] != c.opts.BaseURL {
		out = append(out, c.opts.BaseURL)
	}
	return out
}

func (c *Client) defaultBase() string {
	if o := embeddedOrigin(c.opts.PageOrigin, c.opts.EmbeddedPort); o != "" {
		return o
	}
	return c.opts.BaseURL
}

// Call sends action with payload over the active transport and returns the
// raw JSON result. A nil payload is sent as {}.
//
// Over HTTP, a transport failure is retried once through the host SDK when
// one is available. The detected mode is not changed by the retry.
func (c *Client) Call(ctx context.Context, action string, payload any) (json.RawMessage, error) {
	return c.call(ctx, action, payload, false)
}

// CallServer is Call for actions the peer forwards to the game server.
func (c *Client) CallServer(ctx context.Context, action string, payload any) (json.RawMessage, error) {
	return c.call(ctx, action, payload, true)
}

func (c *Client) call(ctx context.Context, action string, payload any, server bool) (json.RawMessage, error) {
	mode := c.Resolve(ctx)
	end := c.pending.Begin()
	defer end()
	start := time.Now()

	var (
		out json.RawMessage
		err error
	)
	switch mode.Kind {
	case KindMock:
		out = c.mockResponse(action, payload)
	case KindInjectedSDK:
		out, err = c.callSDK(ctx, action, payload, server)
	case KindHTTP:
		out, err = c.callHTTP(ctx, mode.BaseURL, action, payload)
		if err != nil && IsTransportFailure(err) && c.sdk.Available() {
			c.log.Warn().Err(err).Str("action", action).Msg("http call failed; retrying over host sdk")
			out, err = c.callSDK(ctx, action, payload, server)
			sdkFallbacks.WithLabelValues(action, outcome(err)).Inc()
		}
	default:
		err = ErrTransportUnavailable
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %w", ErrTransportUnavailable, ctx.Err())
		}
	}
	observeCall(mode, action, err, time.Since(start))
	return out, err
}

func (c *Client) callHTTP(ctx context.Context, baseURL, action string, payload any) (json.RawMessage, error) {
	body, err := encodePayload(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", action, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, actionURL(baseURL, action), bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Action: action, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, &TransportError{Action: action, Err: err}
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Action: action, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{Action: action, Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return json.RawMessage("null"), nil
	}
	if !json.Valid(data) {
		return nil, &TransportError{Action: action, Err: errors.New("malformed response body")}
	}
	if msg := errorField(data); msg != "" {
		return nil, &ApplicationError{Action: action, Message: msg}
	}
	return json.RawMessage(data), nil
}

func (c *Client) callSDK(ctx context.Context, action string, payload any, server bool) (json.RawMessage, error) {
	if !c.sdk.Available() {
		return nil, &SDKError{Action: action, Err: ErrSDKUnavailable}
	}
	if payload == nil {
		payload = struct{}{}
	}
	var (
		out json.RawMessage
		err error
	)
	if server {
		out, err = c.sdk.CallServer(ctx, action, payload)
	} else {
		out, err = c.sdk.Call(ctx, action, payload)
	}
	if err != nil {
		return nil, &SDKError{Action: action, Err: err}
	}
	return out, nil
}

func encodePayload(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case nil:
		return []byte("{}"), nil
	case json.RawMessage:
		if len(p) == 0 {
			return []byte("{}"), nil
		}
		return p, nil
	}
	return json.Marshal(payload)
}

// errorField returns the top-level "error" string of a JSON object.
func errorField(data []byte) string {
	if len(data) == 0 || data[0] != '{' {
		return ""
	}
	var probe struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(data, &probe); err != nil || len(probe.Error) == 0 {
		return ""
	}
	var msg string
	if err := json.Unmarshal(probe.Error, &msg); err != nil {
		return ""
	}
	return msg
}

// CallAs is Call with the result decoded into T.
func CallAs[T any](ctx context.Context, c *Client, action string, payload any) (T, error) {
	var out T
	raw, err := c.Call(ctx, action, payload)
	if err != nil {
		return out, err
	}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode %s response: %w", action, err)
	}
	return out, nil
}

// Subscription is the handle returned by On and Once. Pass it to Off to
// remove exactly what was registered.
type Subscription struct {
	client   *Client
	name     string
	listener *events.Listener
	viaSDK   bool
	release  sync.Once
}

// Name returns the subscribed event name.
func (s *Subscription) Name() string { return s.name }

// Active reports whether the subscription is registered with the bus.
func (s *Subscription) Active() bool { return s != nil && s.listener != nil }

func (s *Subscription) releaseSDK() {
	if !s.viaSDK {
		return
	}
	s.release.Do(func() { s.client.releaseSDK(s.name) })
}

// On registers h for name. In mock mode nothing is registered and the
// returned subscription is inert; mock replies still reach Bus listeners.
func (c *Client) On(name string, h Handler) *Subscription {
	return c.subscribe(name, h, false)
}

// Once is On for a single delivery.
func (c *Client) Once(name string, h Handler) *Subscription {
	return c.subscribe(name, h, true)
}

// Off removes a subscription made with On or Once. Calling it twice is safe.
func (c *Client) Off(sub *Subscription) {
	if sub == nil || sub.listener == nil {
		return
	}
	c.bus.Unsubscribe(sub.listener)
	sub.releaseSDK()
}

func (c *Client) subscribe(name string, h Handler, once bool) *Subscription {
	sub := &Subscription{client: c, name: name}
	if c.Mode().Kind == KindMock {
		c.log.Debug().Str("event", name).Msg("mock mode: subscription ignored")
		return sub
	}
	handler := h
	if once {
		handler = func(ev events.Event) {
			sub.releaseSDK()
			h(ev)
		}
	}
	sub.listener = c.bus.Subscribe(name, handler, once)
	if c.sdk.Available() && !sdkBroadcasts(c.sdk) {
		c.retainSDK(name)
		sub.viaSDK = true
	}
	return sub
}

// broadcaster is implemented by host SDKs that already publish their events
// on the bus. Those are not subscribed natively a second time.
type broadcaster interface {
	Broadcasts() bool
}

func sdkBroadcasts(sdk HostSDK) bool {
	b, ok := sdk.(broadcaster)
	return ok && b.Broadcasts()
}

func (c *Client) retainSDK(name string) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	s := c.sdkSubs[name]
	if s == nil {
		cancel := c.sdk.Subscribe(name, func(raw json.RawMessage) {
			c.bus.Dispatch(events.Event{Name: name, Detail: raw, Source: events.SourceSDK})
		}, false)
		s = &sdkSub{cancel: cancel}
		c.sdkSubs[name] = s
	}
	s.refs++
}

func (c *Client) releaseSDK(name string) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	s := c.sdkSubs[name]
	if s == nil {
		return
	}
	s.refs--
	if s.refs <= 0 {
		if s.cancel != nil {
			s.cancel()
		}
		delete(c.sdkSubs, name)
	}
}

// SDKConfig returns the last configuration pushed with Configure.
func (c *Client) SDKConfig() SDKConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sdkCfg
}

// Configure forwards cfg to the host SDK. Mock mode only records it.
func (c *Client) Configure(cfg SDKConfig) {
	c.mu.Lock()
	c.sdkCfg = cfg
	c.mu.Unlock()
	if c.Mode().Kind == KindMock {
		c.log.Debug().Interface("config", cfg).Msg("mock mode: configure")
		return
	}
	if !c.sdk.Available() {
		return
	}
	if err := c.sdk.Configure(cfg); err != nil {
		c.log.Warn().Err(err).Msg("host sdk configure failed")
	}
}

// EnableDebug turns on host SDK debug output.
func (c *Client) EnableDebug() {
	c.mu.Lock()
	c.sdkCfg.Debug = true
	c.mu.Unlock()
	if c.Mode().Kind == KindMock {
		c.log.Debug().Msg("mock mode: debug enabled")
		return
	}
	if !c.sdk.Available() {
		return
	}
	if err := c.sdk.EnableDebug(); err != nil {
		c.log.Warn().Err(err).Msg("host sdk enable debug failed")
	}
}

// Status describes the active transport.
func (c *Client) Status() Status {
	m := c.Mode()
	switch {
	case m.Kind == KindMock:
		return Status{Ready: false, EventListeners: []string{}, Config: DefaultSDKConfig}
	case m.Kind == KindInjectedSDK && c.sdk.Available():
		return c.sdk.Status()
	}
	return Status{
		Ready:           true,
		PendingRequests: int(c.pending.Load()),
		EventListeners:  c.bus.Names(),
		Config:          c.SDKConfig(),
	}
}

// Pending returns the number of calls in flight.
func (c *Client) Pending() int64 { return c.pending.Load() }

// Wait blocks until no call is in flight or ctx is done.
func (c *Client) Wait(ctx context.Context) bool { return c.pending.Wait(ctx) }

// Close stops pending mock replies and drops host SDK subscriptions.
func (c *Client) Close() {
	c.timersMu.Lock()
	c.closed = true
	for t := range c.timers {
		t.Stop()
	}
	c.timers = map[*time.Timer]struct{}{}
	c.timersMu.Unlock()

	c.subsMu.Lock()
	for name, s := range c.sdkSubs {
		if s.cancel != nil {
			s.cancel()
		}
		delete(c.sdkSubs, name)
	}
	c.subsMu.Unlock()
}
