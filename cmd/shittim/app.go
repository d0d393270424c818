package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/gaspardpetit/shittim/core/logx"
	"github.com/gaspardpetit/shittim/internal/bridge"
	"github.com/gaspardpetit/shittim/internal/bridge/events"
	"github.com/gaspardpetit/shittim/internal/catalog"
	"github.com/gaspardpetit/shittim/internal/config"
	"github.com/gaspardpetit/shittim/internal/hostsdk"
	"github.com/gaspardpetit/shittim/internal/roster"
	"github.com/gaspardpetit/shittim/internal/settings"
	"github.com/gaspardpetit/shittim/internal/store"
	"github.com/gaspardpetit/shittim/internal/transcript"
)

// app is the wired companion shared by the subcommands.
type app struct {
	cfg config.CompanionConfig
	out io.Writer
	log zerolog.Logger

	reg         *prometheus.Registry
	bus         *events.Bus
	sdk         *hostsdk.Client
	feed        *hostsdk.Client
	client      *bridge.Client
	catalog     *catalog.Catalog
	roster      *roster.Engine
	kv          store.Store
	transcripts *transcript.Store
	settings    *settings.Store
	metricsSrv  *http.Server
}

func newApp(ctx context.Context, cfg config.CompanionConfig, out io.Writer) (*app, error) {
	opts, err := cfg.BridgeOptions()
	if err != nil {
		return nil, err
	}
	cat := catalog.Default()
	if cfg.CatalogFile != "" {
		if cat, err = catalog.Load(cfg.CatalogFile); err != nil {
			return nil, err
		}
	}
	kv, err := store.Open(ctx, cfg.StoreURL)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:         cfg,
		out:         out,
		log:         logx.Component("companion"),
		reg:         prometheus.NewRegistry(),
		bus:         events.NewBus(0),
		catalog:     cat,
		kv:          kv,
		transcripts: transcript.New(kv, cfg.TranscriptLimit),
		settings:    settings.New(kv),
	}
	a.reg.MustRegister(collectors.NewGoCollector(), buildInfo)
	buildInfo.WithLabelValues(version, buildSHA, buildDate).Set(1)
	bridge.Register(a.reg)
	roster.Register(a.reg)

	opts.Bus = a.bus
	if cfg.SDKURL != "" {
		a.sdk = hostsdk.Connect(ctx, hostsdk.Options{URL: cfg.SDKURL, Reconnect: true, Broadcast: a.bus})
		opts.SDK = a.sdk
	}
	a.client = bridge.New(opts)
	a.roster = roster.New(a.client, roster.Options{Catalog: cat})

	st, err := a.settings.Load(ctx)
	if err != nil {
		a.log.Warn().Err(err).Msg("load settings; using defaults")
	}
	settings.Apply(st, a.client)

	if cfg.MetricsAddr != "" {
		a.serveMetrics(cfg.MetricsAddr)
	}
	return a, nil
}

var buildInfo = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "shittim_build_info",
		Help: "Build information of the companion",
	},
	[]string{"version", "sha", "date"},
)

func (a *app) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.reg, promhttp.HandlerOpts{}))
	a.metricsSrv = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		a.log.Info().Str("addr", addr).Msg("metrics listening")
		if err := a.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error().Err(err).Msg("metrics server")
		}
	}()
}

func (a *app) Close() {
	a.client.Close()
	if a.sdk != nil {
		_ = a.sdk.Close()
	}
	if a.feed != nil {
		_ = a.feed.Close()
	}
	if a.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = a.metricsSrv.Shutdown(ctx)
	}
	if err := a.kv.Close(); err != nil {
		a.log.Warn().Err(err).Msg("close store")
	}
}

// student resolves a user-typed id against the roster. It returns the
// peer's id for the student and a display name; unknown ids are passed
// through lower-cased.
func (a *app) student(ctx context.Context, id string) (remoteID, name string, registered bool) {
	if _, err := a.roster.FetchAndMerge(ctx); err != nil {
		a.log.Warn().Err(err).Msg("refresh registered students")
	}
	if rec, ok := a.roster.Get(id); ok {
		return rec.AnimaData.ID, rec.Name, true
	}
	if e, ok := a.catalog.Get(id); ok {
		return strings.ToLower(e.ID), e.Name, false
	}
	return strings.ToLower(id), id, false
}

// listen subscribes h to name. Client subscriptions are inert in mock mode,
// so there h listens on the bus directly, where mock replies are dispatched.
func (a *app) listen(ctx context.Context, name string, h bridge.Handler) (stop func()) {
	m := a.client.Resolve(ctx)
	if m.Kind == bridge.KindMock {
		l := a.bus.Subscribe(name, h, false)
		return func() { a.bus.Unsubscribe(l) }
	}
	a.attachFeed(ctx, m)
	sub := a.client.On(name, h)
	return func() { a.client.Off(sub) }
}

// attachFeed connects the bus to the peer's event websocket in HTTP mode.
// The peer pushes events only there; a configured host SDK already feeds the
// bus.
func (a *app) attachFeed(ctx context.Context, m bridge.Mode) {
	if m.Kind != bridge.KindHTTP || a.sdk != nil || a.feed != nil {
		return
	}
	url, err := hostsdk.FeedURL(m.BaseURL)
	if err != nil {
		a.log.Warn().Err(err).Str("base_url", m.BaseURL).Msg("no event feed for peer")
		return
	}
	a.feed = hostsdk.Connect(ctx, hostsdk.Options{URL: url, Reconnect: true, Broadcast: a.bus})
	wctx, cancel := context.WithTimeout(ctx, a.cfg.SDKReadyTimeout)
	defer cancel()
	if err := a.feed.WhenReady(wctx); err != nil {
		a.log.Warn().Err(err).Str("url", url).Msg("peer event feed not ready; events may be missed")
		return
	}
	a.log.Debug().Str("url", url).Msg("peer event feed attached")
}

func (a *app) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(a.out, format, args...)
}
