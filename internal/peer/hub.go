package peer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gaspardpetit/shittim/internal/bridge"
	"github.com/gaspardpetit/shittim/internal/hostsdk"
)

const sendBuffer = 32

type conn struct {
	id   string
	send chan hostsdk.Frame

	mu  sync.Mutex
	cfg bridge.SDKConfig
	log zerolog.Logger
}

func (c *conn) config() bridge.SDKConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// hub tracks the host SDK websocket connections and fans events out to them.
type hub struct {
	mu    sync.RWMutex
	conns map[string]*conn
}

func newHub() *hub { return &hub{conns: make(map[string]*conn)} }

func (h *hub) add(c *conn) {
	h.mu.Lock()
	h.conns[c.id] = c
	n := len(h.conns)
	h.mu.Unlock()
	wsConnections.Set(float64(n))
}

func (h *hub) remove(id string) {
	h.mu.Lock()
	delete(h.conns, id)
	n := len(h.conns)
	h.mu.Unlock()
	wsConnections.Set(float64(n))
}

func (h *hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// broadcast queues f on every connection. Slow connections drop frames
// rather than stall the sender.
func (h *hub) broadcast(f hostsdk.Frame) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sent := 0
	for _, c := range h.conns {
		select {
		case c.send <- f:
			sent++
		default:
			droppedFrames.Inc()
		}
	}
	return sent
}

// ServeSDK accepts a host SDK websocket: it announces ready, answers call
// frames through the action table and forwards broadcast events.
func (p *Peer) ServeSDK(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: p.opts.OriginPatterns})
	if err != nil {
		p.log.Error().Err(err).Str("remote", r.RemoteAddr).Msg("ws accept")
		return
	}
	ws.SetReadLimit(1 << 20)
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	defer func() { _ = ws.Close(websocket.StatusInternalError, "server error") }()

	c := &conn{id: uuid.NewString(), send: make(chan hostsdk.Frame, sendBuffer), cfg: bridge.DefaultSDKConfig}
	p.hub.add(c)
	defer p.hub.remove(c.id)
	log := p.log.With().Str("conn_id", c.id).Str("remote", r.RemoteAddr).Logger()
	c.log = log
	log.Info().Msg("host sdk connected")

	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case f := <-c.send:
				b, err := json.Marshal(f)
				if err != nil {
					continue
				}
				if err := ws.Write(ctx, websocket.MessageText, b); err != nil {
					log.Debug().Err(err).Msg("ws write")
					return
				}
			}
		}
	}()
	c.send <- hostsdk.Frame{Type: hostsdk.FrameReady, Version: p.opts.Version}

	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			var ce websocket.CloseError
			if errors.As(err, &ce) && ce.Code == websocket.StatusNormalClosure {
				log.Info().Str("reason", ce.Reason).Msg("host sdk disconnected")
			} else if ctx.Err() == nil {
				log.Warn().Err(err).Msg("host sdk disconnected")
			}
			return
		}
		var f hostsdk.Frame
		if err := json.Unmarshal(data, &f); err != nil {
			log.Debug().Err(err).Msg("ws decode frame")
			continue
		}
		switch f.Type {
		case hostsdk.FrameCall:
			go p.answer(ctx, c, f)
		case hostsdk.FrameConfigure:
			if f.Config != nil {
				c.mu.Lock()
				c.cfg = *f.Config
				c.mu.Unlock()
				log.Debug().Bool("debug", f.Config.Debug).Int("timeout_ms", f.Config.Timeout).Msg("host sdk configured")
			}
		default:
			log.Debug().Str("type", f.Type).Msg("ignoring frame")
		}
	}
}

// answer runs a call frame. A connection configured with debug gets its
// calls logged at info level.
func (p *Peer) answer(ctx context.Context, c *conn, f hostsdk.Frame) {
	end := p.inflight.Begin()
	defer end()
	cfg := c.config()
	level := zerolog.DebugLevel
	if cfg.Debug {
		level = zerolog.InfoLevel
	}
	start := time.Now()
	res := hostsdk.Frame{Type: hostsdk.FrameResult, ID: f.ID}
	data, err := p.Handle(ctx, f.Action, f.Payload)
	if err != nil {
		res.Error = err.Error()
	} else {
		res.OK = true
		res.Data = data
	}
	c.log.WithLevel(level).Str("action", f.Action).Bool("ok", res.OK).Dur("took", time.Since(start)).Msg("host sdk call")
	select {
	case c.send <- res:
	case <-ctx.Done():
	}
}
