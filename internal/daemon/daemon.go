package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tutu-network/rivals/internal/api"
	"github.com/tutu-network/rivals/internal/app/game"
	"github.com/tutu-network/rivals/internal/app/rival"
	"github.com/tutu-network/rivals/internal/domain"
	"github.com/tutu-network/rivals/internal/health"
	"github.com/tutu-network/rivals/internal/infra/memstore"
	"github.com/tutu-network/rivals/internal/infra/narrator"
	"github.com/tutu-network/rivals/internal/infra/sqlite"
	"github.com/tutu-network/rivals/internal/infra/tracing"
)

// Backend is a store the daemon can run on.
type Backend interface {
	domain.Store
	Ping(ctx context.Context) error
	SummaryHistory(ctx context.Context, key string, limit int) ([]domain.DailySummary, error)
	PruneDated(ctx context.Context, key string, before domain.Date) (int64, error)
	Reset(ctx context.Context, key string) error
	Close() error
}

// Daemon is the rivals runtime. It wires together all services.
type Daemon struct {
	Config Config
	Store  Backend
	Engine *game.Engine
	Server *api.Server
	Health *health.Checker

	logger  *log.Logger
	logFile io.Closer
	cancel  context.CancelFunc
}

// New creates and initializes a Daemon with all services wired.
func New() (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return NewWithConfig(cfg)
}

// NewWithConfig creates a Daemon with the given configuration.
func NewWithConfig(cfg Config) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger, logFile, err := openLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	store, err := OpenStore(cfg)
	if err != nil {
		if logFile != nil {
			logFile.Close()
		}
		return nil, fmt.Errorf("open store: %w", err)
	}

	gc, err := cfg.EngineConfig()
	if err != nil {
		store.Close()
		return nil, err
	}

	var nar domain.Narrator = narrator.Static{}
	if cfg.Narrator.BaseURL != "" {
		c, err := narrator.NewClient(narrator.Config{
			BaseURL:   cfg.Narrator.BaseURL,
			Model:     cfg.Narrator.Model,
			APIKey:    cfg.Narrator.APIKey,
			MaxTokens: cfg.Narrator.MaxTokens,
		}, nil)
		if err != nil {
			logger.Printf("[daemon] WARNING: narrator disabled: %v", err)
		} else {
			nar = c
		}
	}

	sim, err := rival.NewRandomSimulator()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("seed simulator: %w", err)
	}

	eng := game.New(gc, store, nar, sim, logger)

	srv := api.NewServer(eng)
	srv.SetHistory(func(ctx context.Context, limit int) ([]domain.DailySummary, error) {
		return store.SummaryHistory(ctx, gc.Key, limit)
	})
	if cfg.Telemetry.Prometheus {
		srv.EnableMetrics()
	}

	dataDir := ""
	if cfg.Store.Driver == "sqlite" {
		dataDir = cfg.Store.Dir
	}
	checker := health.NewChecker(store, eng.Retries, dataDir)
	srv.SetHealth(checker)

	return &Daemon{
		Config:  cfg,
		Store:   store,
		Engine:  eng,
		Server:  srv,
		Health:  checker,
		logger:  logger,
		logFile: logFile,
	}, nil
}

// OpenStore opens the configured backend.
func OpenStore(cfg Config) (Backend, error) {
	switch cfg.Store.Driver {
	case "memory":
		return memstore.New(), nil
	case "sqlite", "":
		dir := cfg.Store.Dir
		if dir == "" {
			dir = rivalsHome()
		}
		return sqlite.Open(dir)
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

// Serve loads the game state, starts the engine and the HTTP server and
// blocks until ctx ends or SIGINT/SIGTERM arrives.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	defer cancel()

	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		Enabled:     d.Config.Telemetry.OTLPEndpoint != "",
		Endpoint:    d.Config.Telemetry.OTLPEndpoint,
		ServiceName: "rivals",
		SampleRatio: d.Config.Telemetry.SampleRatio,
	})
	if err != nil {
		d.logger.Printf("[daemon] WARNING: tracing disabled: %v", err)
		shutdownTracing = func(context.Context) error { return nil }
	}
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		if err := shutdownTracing(sctx); err != nil {
			d.logger.Printf("[daemon] tracing shutdown: %v", err)
		}
	}()

	if err := d.Engine.Load(ctx); err != nil {
		return fmt.Errorf("load game state: %w", err)
	}

	addr := d.Config.Addr()
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      d.Server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	g, gctx := errgroup.WithContext(ctx)

	// Run stores any unsaved state before it returns.
	g.Go(func() error {
		return d.Engine.Run(gctx)
	})
	g.Go(func() error {
		d.Health.Run(gctx)
		return nil
	})
	if d.Config.Store.KeepDays > 0 {
		g.Go(func() error {
			d.pruneLoop(gctx)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen on %s: %w", addr, err)
		}
		return nil
	})

	fmt.Printf("Rivals serving on http://%s (player %q, store %s)\n", addr, d.Config.Game.Player, d.Config.Store.Driver)
	if d.Config.Telemetry.Prometheus {
		fmt.Printf("  Metrics: http://%s/metrics\n", addr)
	}
	if d.Config.Narrator.BaseURL != "" {
		fmt.Printf("  Narrator: %s (%s)\n", d.Config.Narrator.BaseURL, d.Config.Narrator.Model)
	}

	err = g.Wait()
	d.logger.Printf("[daemon] stopped")
	d.closeResources()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// pruneLoop drops baselines older than the retention window once a day.
func (d *Daemon) pruneLoop(ctx context.Context) {
	prune := func() {
		loc, _ := d.Config.Location()
		cutoff := pruneCutoff(time.Now(), d.Config.Store.KeepDays, loc, d.Engine.Snapshot().LastSummaryDate)
		n, err := d.Store.PruneDated(ctx, d.Config.Game.Player, cutoff)
		switch {
		case err != nil && ctx.Err() == nil:
			d.logger.Printf("[daemon] prune baselines: %v", err)
		case n > 0:
			d.logger.Printf("[daemon] pruned %d baseline(s) before %s", n, cutoff)
		}
	}
	prune()

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}

// pruneCutoff returns the date before which baselines may go. The open
// day's baseline is never pruned, however old, because the next day close
// measures against it.
func pruneCutoff(now time.Time, keepDays int, loc *time.Location, open domain.Date) domain.Date {
	cutoff := domain.DateOf(now.AddDate(0, 0, -keepDays), loc)
	if !open.IsZero() && open.Before(cutoff) {
		return open
	}
	return cutoff
}

// Close shuts down all daemon resources.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	d.closeResources()
}

func (d *Daemon) closeResources() {
	if d.Store != nil {
		_ = d.Store.Close()
		d.Store = nil
	}
	if d.logFile != nil {
		_ = d.logFile.Close()
		d.logFile = nil
	}
}

// openLogger returns the daemon logger. With a log file configured, output
// goes to both stderr and the file.
func openLogger(cfg LoggingConfig) (*log.Logger, io.Closer, error) {
	if cfg.File == "" {
		return log.Default(), nil, nil
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return log.New(io.MultiWriter(os.Stderr, f), "", log.LstdFlags), f, nil
}
