// Package roster turns the peer's list of registered students into the
// records the companion shows, enriched with bundled catalog metadata.
package roster

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gaspardpetit/shittim/core/logx"
	"github.com/gaspardpetit/shittim/internal/bridge"
	"github.com/gaspardpetit/shittim/internal/catalog"
)

// Source returns the registered students. *bridge.Client implements it.
type Source interface {
	Students(ctx context.Context) (bridge.StudentsResponse, error)
}

// Conversation is the chat list projection of a record.
type Conversation struct {
	StudentID  string `json:"studentId"`
	Name       string `json:"name"`
	Avatar     string `json:"avatar,omitempty"`
	HasHistory bool   `json:"hasHistory"`
}

type Options struct {
	Catalog *catalog.Catalog
	Logger  *zerolog.Logger
	Now     func() time.Time
}

// Engine holds the latest merged roster. It is safe for concurrent use;
// readers always see a complete list from a single refresh.
type Engine struct {
	src Source
	cat *catalog.Catalog
	log zerolog.Logger
	now func() time.Time

	refreshMu sync.Mutex

	mu      sync.RWMutex
	records []Record
	err     error
	fetched time.Time
	loading bool
}

func New(src Source, opts Options) *Engine {
	if opts.Catalog == nil {
		opts.Catalog = catalog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	lg := logx.Component("roster")
	if opts.Logger != nil {
		lg = *opts.Logger
	}
	return &Engine{src: src, cat: opts.Catalog, log: lg, now: opts.Now}
}

// FetchAndMerge fetches the roster and replaces the held records. Every
// remote student yields exactly one record, in remote order.
//
// On failure the error is returned and the held records become the single
// fallback record, which is also returned.
func (e *Engine) FetchAndMerge(ctx context.Context) ([]Record, error) {
	e.refreshMu.Lock()
	defer e.refreshMu.Unlock()

	e.mu.Lock()
	e.loading = true
	e.mu.Unlock()

	resp, err := e.src.Students(ctx)
	if err == nil && !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = "获取学生列表失败"
		}
		err = &bridge.ApplicationError{Action: bridge.ActionAnimaGetStudents, Message: msg}
	}
	if err != nil {
		e.log.Error().Err(err).Msg("fetch registered students failed; showing fallback")
		fallback := []Record{Fallback(e.cat)}
		e.publish(fallback, err, false)
		refreshes.WithLabelValues("error").Inc()
		return clone(fallback), err
	}

	records := make([]Record, 0, len(resp.Students))
	for _, remote := range resp.Students {
		rec := Merge(e.cat, remote)
		if rec.Placeholder {
			e.log.Warn().Str("remote_id", remote.ID).Str("remote_name", remote.Name).Msg("no catalog entry for registered student; using placeholder")
			placeholders.Inc()
		}
		records = append(records, rec)
	}
	e.publish(records, nil, true)
	refreshes.WithLabelValues("ok").Inc()
	e.log.Debug().Int("count", len(records)).Msg("registered students refreshed")
	return clone(records), nil
}

func (e *Engine) publish(records []Record, err error, fetched bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.records = records
	e.err = err
	e.loading = false
	if fetched {
		e.fetched = e.now()
	}
	rosterSize.Set(float64(len(records)))
}

func clone(in []Record) []Record {
	return append([]Record(nil), in...)
}

// Records returns the latest merged roster.
func (e *Engine) Records() []Record {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return clone(e.records)
}

// Err returns the error of the latest refresh, if it failed.
func (e *Engine) Err() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.err
}

// LastFetched is when the roster was last fetched successfully.
func (e *Engine) LastFetched() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.fetched
}

// Loading reports whether a refresh is in progress.
func (e *Engine) Loading() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.loading
}

// Get finds a record by catalog id or remote id, ignoring case.
func (e *Engine) Get(id string) (Record, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, r := range e.records {
		if strings.EqualFold(r.ID, id) || strings.EqualFold(r.AnimaData.ID, id) {
			return r, true
		}
	}
	return Record{}, false
}

func (e *Engine) IsRegistered(id string) bool {
	_, ok := e.Get(id)
	return ok
}

// RegisteredIDs returns the lower-case catalog and remote ids of every record.
func (e *Engine) RegisteredIDs() map[string]struct{} {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make(map[string]struct{}, 2*len(e.records))
	for _, r := range e.records {
		ids[strings.ToLower(r.ID)] = struct{}{}
		ids[strings.ToLower(r.AnimaData.ID)] = struct{}{}
	}
	return ids
}

// Conversations lists the records as chat partners keyed by remote id.
func (e *Engine) Conversations() []Conversation {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Conversation, 0, len(e.records))
	for _, r := range e.records {
		out = append(out, Conversation{
			StudentID:  r.AnimaData.ID,
			Name:       r.Name,
			Avatar:     r.Avatar,
			HasHistory: r.HistorySize > 0,
		})
	}
	return out
}

// Run refreshes immediately and then every interval until ctx is done. An
// interval <= 0 refreshes once and returns nil. Refresh errors are kept in
// Err and do not stop the loop.
func (e *Engine) Run(ctx context.Context, interval time.Duration) error {
	_, _ = e.FetchAndMerge(ctx)
	if interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			_, _ = e.FetchAndMerge(ctx)
		}
	}
}
