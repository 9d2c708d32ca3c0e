package app

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/valyala/fasthttp"

	"assetbridge/pkg/assets"
	"assetbridge/pkg/banner"
	"assetbridge/pkg/bridge"
	"assetbridge/pkg/compress"
	"assetbridge/pkg/config"
	"assetbridge/pkg/httpx"
	"assetbridge/pkg/limiter"
	"assetbridge/pkg/logger"
	"assetbridge/pkg/negotiate"
	"assetbridge/pkg/telemetry"
)

const (
	shutdownTimeout = 10 * time.Second
	sweepInterval   = time.Minute
	memoEntries     = 1024
)

// Options carries what the process supplies beyond configuration.
type Options struct {
	// Factory builds the application handler. Required.
	Factory httpx.HandlerFactory
	Version string
	// Banner receives the startup summary; nil skips it.
	Banner io.Writer
}

// App encapsulates the server components and lifecycle.
type App struct {
	eff  config.EffectiveConfigResult
	opts Options

	idx      *assets.Index
	bridge   *bridge.Bridge
	dispatch *telemetry.Dispatcher
	limiter  *limiter.Pool
	registry *prometheus.Registry

	mu      sync.Mutex
	srv     *http.Server
	fsrv    *fasthttp.Server
	admin   *http.Server
	addr    net.Addr
	adminAt net.Addr

	started chan struct{}
	ready   atomic.Bool
}

// New builds everything that does not need a listener: the static index,
// the application handler, encoders, telemetry and the bridge. Any error is
// startup-fatal.
func New(ctx context.Context, eff config.EffectiveConfigResult, opts Options) (*App, error) {
	_ = godotenv.Load(".env")

	if opts.Factory == nil {
		return nil, fmt.Errorf("no application handler factory")
	}
	// validate effective config early and fail fast
	if err := validateConfig(eff); err != nil {
		return nil, err
	}
	cfg := eff.Config

	idx, err := assets.Build(ctx, cfg.Static.Root)
	if err != nil {
		return nil, fmt.Errorf("build static index: %w", err)
	}
	logger.Info("static_index_built", "root", idx.Root(), "files", idx.Len(), "bytes", idx.TotalBytes())
	logger.Debug("static_index_paths", "paths", idx.Paths())

	handler, err := opts.Factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("build application handler: %w", err)
	}

	codec, err := compress.NewCodec(compress.Levels{
		Brotli:  cfg.Compression.BrotliQuality,
		Gzip:    cfg.Compression.GzipLevel,
		Deflate: cfg.Compression.DeflateLevel,
		Zstd:    cfg.Compression.ZstdLevel,
	})
	if err != nil {
		return nil, fmt.Errorf("compression levels: %w", err)
	}

	a := &App{
		eff:      eff,
		opts:     opts,
		idx:      idx,
		registry: prometheus.NewRegistry(),
		started:  make(chan struct{}),
	}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	observer, err := a.setupTelemetry()
	if err != nil {
		return nil, err
	}

	if rl := cfg.Server.RateLimit; rl.RPS > 0 {
		a.limiter = limiter.New(limiter.Config{RPS: rl.RPS, Burst: rl.Burst})
	}

	memo := negotiate.NewMemo(memoEntries)
	suffixes := assets.DefaultSuffixes
	if cfg.Static.DeflateFromGzip {
		suffixes = assets.LegacySuffixes
	}
	static := assets.NewResponder(idx, assets.ResponderOptions{
		PublicPath: cfg.Static.PublicPath,
		Suffixes:   suffixes,
		ChunkSize:  cfg.Static.ChunkSize.Int(),
		Memo:       memo,
	})

	a.bridge, err = bridge.New(bridge.Options{
		Static:      static,
		Handler:     handler,
		Codec:       codec,
		Memo:        memo,
		Observer:    observer,
		CachePolicy: bridge.CachePolicy(cfg.Dynamic.CacheControl),
		Limiter:     a.limiter,
		ChunkSize:   cfg.Static.ChunkSize.Int(),
	})
	if err != nil {
		a.closeTelemetry()
		return nil, err
	}
	return a, nil
}

// setupTelemetry registers exchange metrics and, when telemetry is enabled,
// returns the dispatcher feeding the log and metrics observers.
func (a *App) setupTelemetry() (telemetry.Observer, error) {
	tc := a.eff.Config.Telemetry
	metrics, err := telemetry.NewMetrics(a.registry)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	if !tc.Enabled {
		return metrics, nil
	}
	if tc.EventsDir != "" {
		if err := logger.AttachEventFileSink(tc.EventsDir); err != nil {
			return nil, fmt.Errorf("attach event sink: %w", err)
		}
	}
	a.dispatch = telemetry.NewDispatcher(telemetry.Multi{
		telemetry.LogObserver{SlowThreshold: tc.SlowThreshold.Duration()},
		metrics,
	}, tc.QueueCapacity)
	if err := telemetry.RegisterDropped(a.registry, a.dispatch); err != nil {
		a.dispatch.Close()
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	return a.dispatch, nil
}

func (a *App) closeTelemetry() {
	if a.dispatch != nil {
		a.dispatch.Close()
	}
}

// Run starts the transport and admin servers and blocks until ctx is
// canceled or a fatal server error occurs. Servers are shut down and the
// telemetry queue drained before Run returns.
func (a *App) Run(ctx context.Context) error {
	defer a.closeTelemetry()

	errCh, err := a.startHTTP(ctx)
	if err != nil {
		return err
	}
	if a.eff.Config.Admin.Enabled {
		if err := a.startAdmin(errCh); err != nil {
			a.shutdown()
			return err
		}
	}
	a.ready.Store(true)
	close(a.started)
	a.printBanner()

	if a.limiter != nil {
		go a.sweepLimiter(ctx)
	}

	select {
	case <-ctx.Done():
		a.shutdown()
		return nil
	case err := <-errCh:
		a.shutdown()
		return err
	}
}

// Started is closed once the listeners are bound.
func (a *App) Started() <-chan struct{} { return a.started }

// Addr returns the bound transport address, nil before Run.
func (a *App) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.addr
}

// AdminAddr returns the bound admin address, nil when disabled or before Run.
func (a *App) AdminAddr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.adminAt
}

func (a *App) sweepLimiter(ctx context.Context) {
	t := time.NewTicker(sweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := a.limiter.Sweep(); n > 0 {
				logger.Debug("rate_limiter_swept", "removed", n, "remaining", a.limiter.Len())
			}
		}
	}
}

// shutdown stops accepting new exchanges and waits up to shutdownTimeout
// for in-flight ones.
func (a *App) shutdown() {
	a.ready.Store(false)
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	a.mu.Lock()
	srv, fsrv, admin := a.srv, a.fsrv, a.admin
	a.mu.Unlock()

	if srv != nil {
		if err := srv.Shutdown(sctx); err != nil {
			logger.Warn("server_shutdown", "error", err)
			_ = srv.Close()
		}
	}
	if fsrv != nil {
		done := make(chan error, 1)
		go func() { done <- fsrv.Shutdown() }()
		select {
		case err := <-done:
			if err != nil {
				logger.Warn("server_shutdown", "error", err)
			}
		case <-sctx.Done():
			logger.Warn("server_shutdown", "error", sctx.Err())
		}
	}
	if admin != nil {
		_ = admin.Shutdown(sctx)
	}
	logger.Info("server_stopped")
}

// printBanner prints the startup banner and build info.
func (a *App) printBanner() {
	if a.opts.Banner == nil {
		return
	}
	banner.Print(a.opts.Banner, a.eff, banner.Assets{
		Root:  a.idx.Root(),
		Files: a.idx.Len(),
		Bytes: a.idx.TotalBytes(),
	}, a.opts.Version)
}
