// Package peer is a development stand-in for the game-side peer. It speaks
// the peer HTTP protocol and the host SDK websocket, keeps a small in-memory
// world and answers student chats asynchronously.
package peer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gaspardpetit/shittim/core/logx"
	"github.com/gaspardpetit/shittim/internal/bridge"
	"github.com/gaspardpetit/shittim/internal/inflight"
	"github.com/gaspardpetit/shittim/internal/store"
	"github.com/gaspardpetit/shittim/internal/transcript"
)

var (
	// ErrUnknownAction is returned for actions outside the action table.
	ErrUnknownAction = errors.New("unknown action")
	// ErrBadPayload wraps payload decoding failures.
	ErrBadPayload = errors.New("invalid payload")
)

type Options struct {
	Personas []bridge.AnimaStudent
	// History keeps chat transcripts. Defaults to an in-memory store.
	History *transcript.Store

	ReplyMin time.Duration
	ReplyMax time.Duration
	Rand     func(n int64) int64

	// OriginPatterns are accepted for cross-origin websocket upgrades.
	OriginPatterns []string
	Version        string
	Logger         *zerolog.Logger
	Now            func() time.Time
}

// Peer is safe for concurrent use.
type Peer struct {
	opts    Options
	log     zerolog.Logger
	hub     *hub
	history *transcript.Store
	actions map[string]actionFunc

	mu        sync.RWMutex
	player    bridge.PlayerInfo
	inventory bridge.Inventory
	tasks     []bridge.Task
	personas  []bridge.AnimaStudent

	inflight inflight.Counter
	draining atomic.Bool

	timersMu sync.Mutex
	timers   map[*time.Timer]func()
	closed   bool
}

type actionFunc func(ctx context.Context, payload json.RawMessage) (any, error)

func New(opts Options) *Peer {
	if opts.Personas == nil {
		opts.Personas = DefaultPersonas()
	}
	if opts.History == nil {
		opts.History = transcript.New(store.NewMemoryStore(), 0)
	}
	if opts.ReplyMin <= 0 {
		opts.ReplyMin = bridge.DefaultMockReplyMin
	}
	if opts.ReplyMax < opts.ReplyMin {
		opts.ReplyMax = opts.ReplyMin
	}
	if opts.Rand == nil {
		opts.Rand = rand.Int63n
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	lg := logx.Component("peer")
	if opts.Logger != nil {
		lg = *opts.Logger
	}
	p := &Peer{
		opts:      opts,
		log:       lg,
		hub:       newHub(),
		history:   opts.History,
		player:    defaultPlayer(),
		inventory: defaultInventory(),
		tasks:     defaultTasks(),
		personas:  append([]bridge.AnimaStudent(nil), opts.Personas...),
		timers:    make(map[*time.Timer]func()),
	}
	p.actions = map[string]actionFunc{
		bridge.ActionPing:              p.ping,
		bridge.ActionGetPlayerInfo:     p.getPlayerInfo,
		bridge.ActionGetInventory:      p.getInventory,
		bridge.ActionGetStudents:       p.getStudents,
		bridge.ActionGetTasks:          p.getTasks,
		bridge.ActionTeleport:          p.teleport,
		bridge.ActionSendChat:          p.sendChat,
		bridge.ActionExecuteCommand:    p.executeCommand,
		bridge.ActionAnimaChat:         p.animaChat,
		bridge.ActionAnimaGetStudents:  p.animaGetStudents,
		bridge.ActionAnimaGetStudent:   p.animaGetStudent,
		bridge.ActionAnimaClearHistory: p.animaClearHistory,
	}
	return p
}

// Handle runs action with its JSON payload and returns the JSON result.
func (p *Peer) Handle(ctx context.Context, action string, payload json.RawMessage) (json.RawMessage, error) {
	fn, ok := p.actions[action]
	if !ok {
		requestsTotal.WithLabelValues("unknown", "unknown_action").Inc()
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}
	out, err := fn(ctx, payload)
	if err != nil {
		requestsTotal.WithLabelValues(action, "error").Inc()
		return nil, err
	}
	b, err := json.Marshal(out)
	if err != nil {
		requestsTotal.WithLabelValues(action, "error").Inc()
		return nil, err
	}
	requestsTotal.WithLabelValues(action, "ok").Inc()
	return b, nil
}

// Emit pushes an event to every connected host SDK and returns how many
// connections it was queued on.
func (p *Peer) Emit(name string, data any) (int, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return 0, err
	}
	eventsTotal.WithLabelValues(name).Inc()
	n := p.hub.broadcast(hostsdkEvent(name, b))
	p.log.Debug().Str("event", name).Int("connections", n).Msg("event emitted")
	return n, nil
}

// Connections returns the number of connected host SDKs.
func (p *Peer) Connections() int { return p.hub.count() }

// Wait blocks until no call or scheduled reply is outstanding, or ctx is done.
func (p *Peer) Wait(ctx context.Context) bool { return p.inflight.Wait(ctx) }

// StartDrain makes the peer refuse new calls while outstanding ones finish.
func (p *Peer) StartDrain() {
	if !p.draining.Swap(true) {
		p.log.Info().Int64("in_flight", p.inflight.Load()).Msg("draining")
	}
}

// Draining reports whether StartDrain was called.
func (p *Peer) Draining() bool { return p.draining.Load() }

// Close cancels scheduled replies.
func (p *Peer) Close() {
	p.timersMu.Lock()
	defer p.timersMu.Unlock()
	p.closed = true
	for t, end := range p.timers {
		if t.Stop() {
			end()
		}
	}
	clear(p.timers)
}

func decode(payload json.RawMessage, v any) error {
	if len(payload) == 0 || string(payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return nil
}

func (p *Peer) ping(context.Context, json.RawMessage) (any, error) {
	return map[string]any{"success": true, "version": p.opts.Version}, nil
}

func (p *Peer) getPlayerInfo(context.Context, json.RawMessage) (any, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	info := p.player
	pos := *info.Position
	info.Position = &pos
	return info, nil
}

func (p *Peer) getInventory(context.Context, json.RawMessage) (any, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return bridge.Inventory{Slots: append([]bridge.InventorySlot{}, p.inventory.Slots...)}, nil
}

func (p *Peer) getStudents(context.Context, json.RawMessage) (any, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]bridge.AnimaStudent{}, p.personas...), nil
}

func (p *Peer) getTasks(context.Context, json.RawMessage) (any, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]bridge.Task{}, p.tasks...), nil
}

func (p *Peer) teleport(_ context.Context, payload json.RawMessage) (any, error) {
	var pos bridge.Position
	if err := decode(payload, &pos); err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.player.Position = &pos
	p.mu.Unlock()
	p.log.Info().Float64("x", pos.X).Float64("y", pos.Y).Float64("z", pos.Z).Msg("player teleported")
	return bridge.AckResponse{Success: true}, nil
}

func (p *Peer) sendChat(_ context.Context, payload json.RawMessage) (any, error) {
	var in struct {
		Message string `json:"message"`
	}
	if err := decode(payload, &in); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Message) == "" {
		return bridge.AckResponse{Error: "消息不能为空"}, nil
	}
	p.mu.RLock()
	sender := p.player.Name
	p.mu.RUnlock()
	_, _ = p.Emit(bridge.EventPlayerChat, bridge.PlayerChatEvent{Sender: sender, Message: in.Message, Timestamp: p.opts.Now().UnixMilli()})
	return bridge.AckResponse{Success: true}, nil
}

func (p *Peer) executeCommand(_ context.Context, payload json.RawMessage) (any, error) {
	var in struct {
		Command string `json:"command"`
	}
	if err := decode(payload, &in); err != nil {
		return nil, err
	}
	cmd := strings.TrimPrefix(strings.TrimSpace(in.Command), "/")
	if cmd == "" {
		return bridge.AckResponse{Error: "命令不能为空"}, nil
	}
	p.log.Info().Str("command", cmd).Msg("command executed")
	return map[string]any{"success": true, "output": "executed: /" + cmd}, nil
}

func (p *Peer) persona(id string) (bridge.AnimaStudent, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, s := range p.personas {
		if strings.EqualFold(s.ID, id) {
			return s, true
		}
	}
	return bridge.AnimaStudent{}, false
}

type studentPayload struct {
	StudentID string `json:"studentId"`
	Message   string `json:"message"`
}

func (p *Peer) animaChat(ctx context.Context, payload json.RawMessage) (any, error) {
	var in studentPayload
	if err := decode(payload, &in); err != nil {
		return nil, err
	}
	s, ok := p.persona(in.StudentID)
	if !ok {
		return bridge.ChatResponse{Error: bridge.ErrStudentNotFound}, nil
	}
	if strings.TrimSpace(in.Message) == "" {
		return bridge.ChatResponse{Error: "消息不能为空"}, nil
	}
	if _, err := p.history.Append(ctx, s.ID, transcript.Message{Sender: transcript.SenderPlayer, Content: in.Message}); err != nil {
		return nil, err
	}
	requestID := uuid.NewString()
	p.scheduleReply(requestID, s.ID)
	return bridge.ChatResponse{Success: true, RequestID: requestID}, nil
}

func (p *Peer) withSession(ctx context.Context, s bridge.AnimaStudent) bridge.AnimaStudent {
	msgs, err := p.history.Load(ctx, s.ID)
	if err != nil {
		p.log.Warn().Err(err).Str("student_id", s.ID).Msg("load history")
		return s
	}
	s.HistorySize = len(msgs)
	s.HasActiveSession = len(msgs) > 0
	return s
}

func (p *Peer) animaGetStudents(ctx context.Context, _ json.RawMessage) (any, error) {
	p.mu.RLock()
	personas := append([]bridge.AnimaStudent(nil), p.personas...)
	p.mu.RUnlock()
	for i, s := range personas {
		personas[i] = p.withSession(ctx, s)
	}
	return bridge.StudentsResponse{Success: true, Students: personas}, nil
}

func (p *Peer) animaGetStudent(ctx context.Context, payload json.RawMessage) (any, error) {
	var in studentPayload
	if err := decode(payload, &in); err != nil {
		return nil, err
	}
	s, ok := p.persona(in.StudentID)
	if !ok {
		return bridge.StudentResponse{Error: bridge.ErrStudentNotFound}, nil
	}
	s = p.withSession(ctx, s)
	return bridge.StudentResponse{Success: true, Student: &s}, nil
}

func (p *Peer) animaClearHistory(ctx context.Context, payload json.RawMessage) (any, error) {
	var in studentPayload
	if err := decode(payload, &in); err != nil {
		return nil, err
	}
	id := in.StudentID
	if id != "" {
		s, ok := p.persona(id)
		if !ok {
			return bridge.AckResponse{Error: bridge.ErrStudentNotFound}, nil
		}
		id = s.ID
	}
	if err := p.history.Clear(ctx, id); err != nil {
		return nil, err
	}
	return bridge.AckResponse{Success: true}, nil
}
