// Package hostsdk implements bridge.HostSDK over a websocket offered by the
// host. The host announces itself with a ready frame, answers call frames
// with result frames and pushes event frames at any time.
package hostsdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gaspardpetit/shittim/core/logx"
	"github.com/gaspardpetit/shittim/core/reconnect"
	"github.com/gaspardpetit/shittim/internal/bridge"
	"github.com/gaspardpetit/shittim/internal/bridge/events"
)

var (
	ErrNotConnected = errors.New("hostsdk: not connected")
	ErrDisconnected = errors.New("hostsdk: connection lost")
	ErrCallTimeout  = errors.New("hostsdk: call timed out")
)

const readLimit = 1 << 20

type Options struct {
	URL string
	// Reconnect keeps redialing after a drop, waiting Backoff between
	// attempts. The zero Backoff is reconnect.Default.
	Reconnect bool
	Backoff   reconnect.Backoff
	// Broadcast, when set, receives every event frame in addition to native
	// subscribers.
	Broadcast *events.Bus
	Logger    *zerolog.Logger
}

type subscriber struct {
	fn   func(json.RawMessage)
	once bool
}

// Client is safe for concurrent use.
type Client struct {
	opts Options
	log  zerolog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	ready   bool
	readyCh chan struct{}
	version string
	pending map[string]chan Frame
	subs    map[string][]*subscriber
	cfg     bridge.SDKConfig

	cancel context.CancelFunc
	done   chan struct{}
}

func newClient(opts Options) *Client {
	lg := logx.Component("hostsdk")
	if opts.Logger != nil {
		lg = *opts.Logger
	}
	return &Client{
		opts:    opts,
		log:     lg,
		readyCh: make(chan struct{}),
		pending: make(map[string]chan Frame),
		subs:    make(map[string][]*subscriber),
		cfg:     bridge.DefaultSDKConfig,
		done:    make(chan struct{}),
	}
}

// Dial opens one connection and fails if it cannot be established. The
// connection is not redialed when it drops.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	c := newClient(opts)
	conn, _, err := websocket.Dial(ctx, opts.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial host sdk: %w", err)
	}
	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go func() {
		defer close(c.done)
		_ = c.serve(runCtx, conn)
	}()
	return c, nil
}

// Connect returns immediately and keeps a connection open in the background
// until Close. With opts.Reconnect unset it gives up after the first drop.
func Connect(ctx context.Context, opts Options) *Client {
	c := newClient(opts)
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	go func() {
		defer close(c.done)
		attempt := 0
		for {
			connected, err := c.dialAndServe(runCtx)
			if runCtx.Err() != nil || !opts.Reconnect {
				return
			}
			if connected {
				attempt = 0
			}
			c.log.Warn().Dur("backoff", opts.Backoff.Delay(attempt)).Err(err).Str("url", opts.URL).Msg("host sdk connection lost; retrying")
			if opts.Backoff.Wait(runCtx, attempt) != nil {
				return
			}
			attempt++
		}
	}()
	return c
}

func (c *Client) dialAndServe(ctx context.Context) (bool, error) {
	conn, _, err := websocket.Dial(ctx, c.opts.URL, nil)
	if err != nil {
		return false, err
	}
	return true, c.serve(ctx, conn)
}

func (c *Client) serve(ctx context.Context, conn *websocket.Conn) error {
	conn.SetReadLimit(readLimit)
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.log.Info().Str("url", c.opts.URL).Msg("connected to host sdk")

	err := c.readLoop(ctx, conn)
	c.detach(conn)
	return err
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			var ce websocket.CloseError
			if errors.As(err, &ce) && ce.Code == websocket.StatusNormalClosure {
				c.log.Info().Str("reason", ce.Reason).Msg("host sdk closed connection")
			} else if ctx.Err() == nil {
				c.log.Error().Err(err).Msg("host sdk read error")
			}
			return err
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.log.Debug().Err(err).Msg("ignoring malformed frame")
			continue
		}
		c.handle(ctx, f)
	}
}

func (c *Client) handle(ctx context.Context, f Frame) {
	switch f.Type {
	case FrameReady:
		c.mu.Lock()
		c.version = f.Version
		if !c.ready {
			c.ready = true
			close(c.readyCh)
		}
		cfg := c.cfg
		c.mu.Unlock()
		c.log.Info().Str("version", f.Version).Msg("host sdk ready")
		if cfg != bridge.DefaultSDKConfig {
			_ = c.send(ctx, Frame{Type: FrameConfigure, Config: &cfg})
		}
	case FrameResult:
		c.mu.Lock()
		ch, ok := c.pending[f.ID]
		delete(c.pending, f.ID)
		c.mu.Unlock()
		if ok {
			ch <- f
		}
	case FrameEvent:
		c.dispatch(f.Name, f.Data)
	default:
		c.log.Debug().Str("type", f.Type).Msg("ignoring frame")
	}
}

func (c *Client) dispatch(name string, data json.RawMessage) {
	c.mu.Lock()
	list := c.subs[name]
	targets := append([]*subscriber(nil), list...)
	kept := list[:0:0]
	for _, s := range list {
		if !s.once {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		delete(c.subs, name)
	} else {
		c.subs[name] = kept
	}
	c.mu.Unlock()

	for _, s := range targets {
		s.fn(data)
	}
	if c.opts.Broadcast != nil {
		c.opts.Broadcast.Dispatch(events.Event{Name: name, Detail: data, Source: events.SourceBroadcast})
	}
}

func (c *Client) detach(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	if c.ready {
		c.ready = false
		c.readyCh = make(chan struct{})
	}
	pending := c.pending
	c.pending = make(map[string]chan Frame)
	c.mu.Unlock()

	for id, ch := range pending {
		ch <- Frame{Type: FrameResult, ID: id, Error: ErrDisconnected.Error()}
	}
	_ = conn.Close(websocket.StatusNormalClosure, "closing")
}

func (c *Client) send(ctx context.Context, f Frame) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	b, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

// Available is always true: a Client is the host SDK, whether or not it is
// currently connected.
func (c *Client) Available() bool { return true }

func (c *Client) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// Version returns the version announced by the host.
func (c *Client) Version() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// WhenReady blocks until the host announced itself or ctx is done.
func (c *Client) WhenReady(ctx context.Context) error {
	c.mu.Lock()
	ch := c.readyCh
	c.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrNotConnected
	}
}

func (c *Client) Call(ctx context.Context, action string, payload any) (json.RawMessage, error) {
	return c.call(ctx, action, payload, false)
}

func (c *Client) CallServer(ctx context.Context, action string, payload any) (json.RawMessage, error) {
	return c.call(ctx, action, payload, true)
}

func (c *Client) call(ctx context.Context, action string, payload any, server bool) (json.RawMessage, error) {
	c.mu.Lock()
	timeout := time.Duration(c.cfg.Timeout) * time.Millisecond
	c.mu.Unlock()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := c.WhenReady(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrNotConnected
		}
		return nil, err
	}

	if payload == nil {
		payload = struct{}{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", action, err)
	}
	id := uuid.NewString()
	ch := make(chan Frame, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	drop := func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}

	if err := c.send(ctx, Frame{Type: FrameCall, ID: id, Action: action, Payload: body, Server: server}); err != nil {
		drop()
		return nil, err
	}
	select {
	case f := <-ch:
		if !f.OK {
			if f.Error == "" {
				f.Error = "call failed"
			}
			return nil, errors.New(f.Error)
		}
		return f.Data, nil
	case <-ctx.Done():
		drop()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", ErrCallTimeout, action)
		}
		return nil, ctx.Err()
	}
}

// Subscribe registers fn for name and returns the func that removes it.
func (c *Client) Subscribe(name string, fn func(json.RawMessage), once bool) func() {
	s := &subscriber{fn: fn, once: once}
	c.mu.Lock()
	c.subs[name] = append(c.subs[name], s)
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		list := c.subs[name]
		for i, cur := range list {
			if cur != s {
				continue
			}
			next := append(list[:i:i], list[i+1:]...)
			if len(next) == 0 {
				delete(c.subs, name)
			} else {
				c.subs[name] = next
			}
			return
		}
	}
}

// Broadcasts reports whether events are also published on a bus.
func (c *Client) Broadcasts() bool { return c.opts.Broadcast != nil }

// Configure records cfg and sends it to the host. When disconnected the
// config is sent on the next ready frame.
func (c *Client) Configure(cfg bridge.SDKConfig) error {
	c.mu.Lock()
	c.cfg = cfg
	c.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.send(ctx, Frame{Type: FrameConfigure, Config: &cfg})
}

func (c *Client) EnableDebug() error {
	c.mu.Lock()
	cfg := c.cfg
	c.mu.Unlock()
	cfg.Debug = true
	return c.Configure(cfg)
}

func (c *Client) Status() bridge.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.subs))
	for name := range c.subs {
		names = append(names, name)
	}
	sort.Strings(names)
	return bridge.Status{
		Ready:           c.ready,
		PendingRequests: len(c.pending),
		EventListeners:  names,
		Config:          c.cfg,
	}
}

func (c *Client) PlayerInfo(ctx context.Context) (bridge.PlayerInfo, error) {
	var info bridge.PlayerInfo
	err := c.decodeCall(ctx, bridge.ActionGetPlayerInfo, nil, &info)
	return info, err
}

func (c *Client) Inventory(ctx context.Context) (bridge.Inventory, error) {
	var inv bridge.Inventory
	err := c.decodeCall(ctx, bridge.ActionGetInventory, nil, &inv)
	return inv, err
}

func (c *Client) Teleport(ctx context.Context, x, y, z float64) error {
	_, err := c.Call(ctx, bridge.ActionTeleport, bridge.Position{X: x, Y: y, Z: z})
	return err
}

func (c *Client) SendChat(ctx context.Context, message string) error {
	_, err := c.Call(ctx, bridge.ActionSendChat, map[string]string{"message": message})
	return err
}

func (c *Client) ExecuteCommand(ctx context.Context, command string) error {
	_, err := c.Call(ctx, bridge.ActionExecuteCommand, map[string]string{"command": command})
	return err
}

func (c *Client) decodeCall(ctx context.Context, action string, payload, out any) error {
	raw, err := c.Call(ctx, action, payload)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", action, err)
	}
	return nil
}

// Close drops the connection and stops reconnecting.
func (c *Client) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "client closing")
	}
	<-c.done
	return nil
}

var _ bridge.HostSDK = (*Client)(nil)
