package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/mliane/voxpipe/internal/health"
	"github.com/mliane/voxpipe/internal/observe"
	"github.com/mliane/voxpipe/internal/session"
)

// sessionStatus is the JSON body served by /statusz.
type sessionStatus struct {
	State     string `json:"state"`
	MicActive bool   `json:"mic_active"`
	Segments  uint64 `json:"segments"`
	Batches   uint64 `json:"batches"`
	Commands  uint64 `json:"commands"`
	Dropped   int64  `json:"segments_dropped"`
}

// opsMux builds the operational HTTP surface: health probes, Prometheus
// metrics, and a session status snapshot.
func (a *App) opsMux() http.Handler {
	h := health.New(
		health.Checker{
			Name: "pipeline",
			Check: func(context.Context) error {
				if a.machine.State() == session.Terminated {
					return errors.New("session terminated")
				}
				return nil
			},
		},
	)

	mux := http.NewServeMux()
	h.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /statusz", a.handleStatus)

	return observe.Middleware(observe.DefaultMetrics())(mux)
}

func (a *App) handleStatus(w http.ResponseWriter, _ *http.Request) {
	stats := a.machine.Stats()
	status := sessionStatus{
		State:     a.machine.State().String(),
		MicActive: a.machine.MicActive(),
		Segments:  stats.Segments,
		Batches:   stats.Batches,
		Commands:  stats.Commands,
		Dropped:   a.batcher.Dropped(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		slog.Warn("statusz encode failed", "err", err)
	}
}

// startOpsServer runs the ops HTTP server on the errgroup and shuts it down
// when ctx ends.
func (a *App) startOpsServer(ctx context.Context, g *errgroup.Group) {
	srv := &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.opsMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g.Go(func() error {
		slog.Info("ops server listening", "addr", srv.Addr, "tls", a.cfg.Server.TLS != nil)
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
