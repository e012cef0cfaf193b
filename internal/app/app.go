// Package app wires all Orato subsystems into a running application.
//
// The App struct owns the full lifecycle: New loads the lexicon, opens the
// history store and builds the assessment engine, Run serves the HTTP API
// until its context is cancelled, and Shutdown tears everything down in
// order.
//
// For testing, inject test doubles via functional options (WithLexicon,
// WithHistory, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/MrWong99/orato/internal/assess"
	"github.com/MrWong99/orato/internal/config"
	"github.com/MrWong99/orato/internal/health"
	"github.com/MrWong99/orato/internal/history"
	"github.com/MrWong99/orato/internal/observe"
	"github.com/MrWong99/orato/internal/server"
	"github.com/MrWong99/orato/pkg/lexicon"
)

// readyzLearner is the learner ID used to probe the history store.
const readyzLearner = "__readyz"

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	lexicon    lexicon.Lexicon
	history    history.Store
	metrics    *observe.Metrics
	metricsH   http.Handler
	engineOpts []assess.Option

	// Built in New.
	engine *assess.Engine
	health *health.Handler

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithLexicon injects a lexicon instead of loading cfg.Lexicon.Path.
func WithLexicon(l lexicon.Lexicon) Option {
	return func(a *App) { a.lexicon = l }
}

// WithHistory injects a history store instead of opening the configured backend.
func WithHistory(s history.Store) Option {
	return func(a *App) { a.history = s }
}

// WithMetrics sets the metrics shared by the engine and the HTTP middleware.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler replaces the /metrics handler.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsH = h }
}

// WithEngineOptions appends options passed to [assess.New] after the ones
// derived from the config.
func WithEngineOptions(opts ...assess.Option) Option {
	return func(a *App) { a.engineOpts = append(a.engineOpts, opts...) }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App from cfg and the providers built by [BuildProviders].
// The App takes ownership of providers and closes them in Shutdown.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.Recognizer == nil {
		return nil, errors.New("app: a recognizer provider is required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	a.closers = append(a.closers, providers.Close)

	// ── 1. Lexicon ───────────────────────────────────────────────────────
	if err := a.initLexicon(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init lexicon: %w", err)
	}

	// ── 2. History ───────────────────────────────────────────────────────
	if err := a.initHistory(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init history: %w", err)
	}

	// ── 3. Engine ────────────────────────────────────────────────────────
	a.initEngine()

	// ── 4. Health ────────────────────────────────────────────────────────
	checkers := append([]health.Checker{{
		Name: "history",
		Check: func(ctx context.Context) error {
			_, err := a.history.Recent(ctx, readyzLearner, 1)
			return err
		},
	}}, providers.Checkers...)
	a.health = health.New(checkers...)

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) initLexicon() error {
	if a.lexicon != nil {
		return nil
	}
	d, err := lexicon.Load(a.cfg.Lexicon.Path)
	if err != nil {
		return err
	}
	slog.Info("lexicon loaded", "path", a.cfg.Lexicon.Path, "words", d.Len())
	a.lexicon = d
	return nil
}

// initHistory opens the configured history backend unless one was injected.
func (a *App) initHistory(ctx context.Context) error {
	if a.history != nil {
		return nil
	}

	hc := a.cfg.History
	switch hc.Backend {
	case config.HistoryPostgres:
		store, closeFn, err := history.OpenPostgres(ctx, hc.DSN)
		if err != nil {
			return err
		}
		a.history = store
		a.closers = append(a.closers, func() error {
			closeFn()
			return nil
		})
	case config.HistorySQLite:
		store, err := history.OpenSQLite(hc.DSN)
		if err != nil {
			return err
		}
		a.history = store
		a.closers = append(a.closers, store.Close)
	case config.HistoryMemory, "":
		a.history = history.NewMemStore()
	default:
		return fmt.Errorf("unknown history backend %q", hc.Backend)
	}
	slog.Info("history store ready", "backend", hc.Backend)
	return nil
}

func (a *App) initEngine() {
	p := a.providers
	opts := []assess.Option{
		assess.WithRecognizerName(p.RecognizerName),
		assess.WithMetrics(a.metrics),
		assess.WithSettings(a.cfg.Scoring.Settings()),
		assess.WithStageTimeout(a.cfg.Server.StageTimeout),
		assess.WithBatchLimit(a.cfg.Batch.MaxConcurrency),
	}
	if p.Aligner != nil {
		opts = append(opts, assess.WithAligner(p.AlignerName, p.Aligner))
	}
	if p.Extractor != nil {
		opts = append(opts, assess.WithExtractor(p.ExtractorName, p.Extractor))
	}
	opts = append(opts, a.engineOpts...)
	a.engine = assess.New(p.Recognizer, a.lexicon, opts...)
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Engine returns the assessment engine. It is also the target of hot
// reloaded scoring settings.
func (a *App) Engine() *assess.Engine { return a.engine }

// History returns the learner history store.
func (a *App) History() history.Store { return a.history }

// Health returns the /healthz and /readyz handler.
func (a *App) Health() *health.Handler { return a.health }

// Handler returns the HTTP API with all routes mounted.
func (a *App) Handler() http.Handler {
	opts := []server.Option{
		server.WithHealth(a.health),
		server.WithMetrics(a.metrics),
		server.WithMaxUploadBytes(a.cfg.Server.MaxUploadBytes),
		server.WithRequestTimeout(a.cfg.Server.RequestTimeout),
	}
	if a.metricsH != nil {
		opts = append(opts, server.WithMetricsHandler(a.metricsH))
	}
	return server.New(a.engine, a.history, opts...).Handler()
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run listens on cfg.Server.ListenAddr and serves the API until ctx is
// cancelled. See [App.Serve].
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen %q: %w", a.cfg.Server.ListenAddr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve serves the API on ln until ctx is cancelled, then drains in-flight
// requests for up to the configured request timeout. It returns nil after a
// clean shutdown.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		if tls := a.cfg.Server.TLS; tls != nil {
			errCh <- srv.ServeTLS(ln, tls.CertFile, tls.KeyFile)
			return
		}
		errCh <- srv.Serve(ln)
	}()
	slog.Info("listening", "addr", ln.Addr().String(), "tls", a.cfg.Server.TLS != nil)

	select {
	case err := <-errCh:
		return fmt.Errorf("app: serve: %w", err)
	case <-ctx.Done():
	}

	grace := a.cfg.Server.RequestTimeout
	if grace <= 0 {
		grace = config.DefaultRequestTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), grace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("app: http shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("app: serve: %w", err)
	}
	return nil
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// closeAll releases whatever New opened before failing.
func (a *App) closeAll() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("closer error", "index", i, "err", err)
		}
	}
	a.closers = nil
}
