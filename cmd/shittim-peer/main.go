package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gaspardpetit/shittim/core/logx"
	"github.com/gaspardpetit/shittim/internal/config"
	"github.com/gaspardpetit/shittim/internal/peer"
	"github.com/gaspardpetit/shittim/internal/store"
	"github.com/gaspardpetit/shittim/internal/transcript"
)

var (
	version   = "dev"
	buildSHA  = "unknown"
	buildDate = "unknown"
)

func main() {
	args := os.Args[1:]
	fs := flag.NewFlagSet("shittim-peer", flag.ExitOnError)
	showVersion := fs.Bool("version", false, "print version and exit")
	fs.Usage = func() {
		_, _ = fmt.Fprintf(fs.Output(), "shittim-peer version=%s sha=%s date=%s\n\n", version, buildSHA, buildDate)
		fs.PrintDefaults()
	}
	var cfg config.PeerConfig
	if err := cfg.Parse(fs, args); err != nil {
		logx.Log.Fatal().Err(err).Msg("load config")
	}
	if *showVersion {
		fmt.Printf("shittim-peer version=%s sha=%s date=%s\n", version, buildSHA, buildDate)
		return
	}
	logx.Configure(cfg.LogLevel)
	log := logx.Component("peer")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	kv, err := store.Open(ctx, cfg.StoreURL)
	if err != nil {
		log.Fatal().Err(err).Msg("open store")
	}
	defer func() { _ = kv.Close() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	peer.Register(reg)

	p := peer.New(peer.Options{
		History:        transcript.New(kv, transcript.DefaultLimit),
		ReplyMin:       cfg.ReplyMin,
		ReplyMax:       cfg.ReplyMax,
		OriginPatterns: cfg.AllowedOrigins,
		Version:        version,
	})
	opts := peer.ServerOptions{AllowedOrigins: cfg.AllowedOrigins}
	var metricsSrv *http.Server
	if cfg.MetricsAddr == "" || cfg.MetricsAddr == cfg.Addr {
		opts.Gatherer = reg
	} else {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	}
	srv := &http.Server{Addr: cfg.Addr, Handler: peer.NewServer(p, opts), ReadHeaderTimeout: 5 * time.Second}

	draining := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		for range sigCh {
			select {
			case <-draining:
				log.Warn().Msg("termination requested")
				cancel()
				return
			default:
			}
			if cfg.DrainTimeout <= 0 {
				cancel()
				return
			}
			close(draining)
			p.StartDrain()
			log.Info().Dur("timeout", cfg.DrainTimeout).Msg("draining; send SIGTERM again to terminate immediately")
			go func() {
				dctx, dcancel := context.WithTimeout(ctx, cfg.DrainTimeout)
				defer dcancel()
				if !p.Wait(dctx) {
					log.Warn().Msg("drain timeout exceeded; terminating")
				}
				cancel()
			}()
		}
	}()
	go func() {
		<-ctx.Done()
		p.Close()
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Error().Err(err).Msg("server shutdown")
		}
		if metricsSrv != nil {
			if err := metricsSrv.Shutdown(sctx); err != nil {
				log.Error().Err(err).Msg("metrics server shutdown")
			}
		}
	}()

	if metricsSrv != nil {
		go func() {
			log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server starting")
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("metrics server error")
			}
		}()
	}
	log.Info().Str("addr", cfg.Addr).Str("version", version).Msg("peer starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server error")
	}
}
