package app

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"assetbridge/pkg/config"
	"assetbridge/pkg/httpx"
	"assetbridge/pkg/logger"
	"assetbridge/pkg/utils"
)

// streamFailed logs exchanges the bridge could not complete.
func streamFailed(s *httpx.Stream, err error) {
	logger.Warn("stream_failed", "method", s.Method, "path", s.Path, "remote", s.RemoteAddr, "headers", logger.SafeHeaders(s.Header), "error", err)
}

// startHTTP binds the transport listener, starts serving in a goroutine and
// returns a channel that will contain any server error.
func (a *App) startHTTP(_ context.Context) (chan error, error) {
	cfg := a.eff.Config
	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return nil, err
	}
	cert, key := cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile
	errCh := make(chan error, 2)

	switch cfg.Server.Transport {
	case config.TransportFastHTTP:
		fsrv := &fasthttp.Server{
			Handler:      httpx.FastHTTPAdapter(a.bridge.ServeStream, streamFailed),
			Name:         "assetbridge",
			ReadTimeout:  cfg.Server.ReadTimeout.Duration(),
			WriteTimeout: cfg.Server.WriteTimeout.Duration(),
			IdleTimeout:  cfg.Server.IdleTimeout.Duration(),
		}
		a.mu.Lock()
		a.fsrv, a.addr = fsrv, ln.Addr()
		a.mu.Unlock()
		go func() {
			if cfg.Server.TLS.Enabled() {
				errCh <- fsrv.ServeTLS(ln, cert, key)
			} else {
				errCh <- fsrv.Serve(ln)
			}
		}()
	default:
		var handler http.Handler = httpx.NetHTTPAdapter(a.bridge.ServeStream, streamFailed)
		h2 := &http2.Server{IdleTimeout: cfg.Server.IdleTimeout.Duration()}
		if cfg.Server.H2C && !cfg.Server.TLS.Enabled() {
			handler = h2c.NewHandler(handler, h2)
		}
		srv := &http.Server{
			Handler:      handler,
			ReadTimeout:  cfg.Server.ReadTimeout.Duration(),
			WriteTimeout: cfg.Server.WriteTimeout.Duration(),
			IdleTimeout:  cfg.Server.IdleTimeout.Duration(),
		}
		if cfg.Server.TLS.Enabled() {
			if err := http2.ConfigureServer(srv, h2); err != nil {
				_ = ln.Close()
				return nil, err
			}
		}
		a.mu.Lock()
		a.srv, a.addr = srv, ln.Addr()
		a.mu.Unlock()
		go func() {
			var err error
			if cfg.Server.TLS.Enabled() {
				err = srv.ServeTLS(ln, cert, key)
			} else {
				err = srv.Serve(ln)
			}
			if !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}
	logger.Info("server_listening", "addr", ln.Addr().String(), "transport", cfg.Server.Transport)
	return errCh, nil
}

// startAdmin serves health and metrics on the admin address.
func (a *App) startAdmin(errCh chan<- error) error {
	ln, err := net.Listen("tcp", a.eff.Config.Admin.Address)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	a.setupAdminHandlers(mux)
	srv := &http.Server{Handler: mux}
	a.mu.Lock()
	a.admin, a.adminAt = srv, ln.Addr()
	a.mu.Unlock()
	go func() {
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	logger.Info("admin_listening", "addr", ln.Addr().String())
	return nil
}

// setupAdminHandlers sets up all admin handlers on the provided mux.
func (a *App) setupAdminHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", healthzHandler)
	mux.HandleFunc("/readyz", a.readyzHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
}

// readyzHandler reports ready once the index is built and the transport is
// accepting connections.
func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	if !a.ready.Load() {
		utils.JSONError(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	ver := a.opts.Version
	if ver == "" {
		ver = "dev"
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": ver,
		"files":   a.idx.Len(),
	})
}

// healthzHandler handles the /healthz endpoint.
func healthzHandler(w http.ResponseWriter, r *http.Request) {
	_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "ok"})
}
