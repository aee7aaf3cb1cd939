// Package keepalive exposes a tiny HTTP endpoint for external uptime
// monitors and self-pings the public URL when traffic goes quiet, which
// keeps free-tier hosts from idling the process out.
package keepalive

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"log/slog"

	coreconfig "github.com/quicknotes/studybot/core/config"
	"github.com/quicknotes/studybot/core/logger"
)

// Keeper runs the liveness endpoint and the idle self-ping loop.
type Keeper struct {
	listen       string
	publicURL    string
	pingInterval time.Duration
	idleLimit    time.Duration
	client       *http.Client
	now          func() time.Time

	lastActivity atomic.Int64
}

// New builds a keeper from the keepalive configuration.
func New(cfg coreconfig.KeepaliveConfig) *Keeper {
	k := &Keeper{
		listen:       cfg.Listen,
		publicURL:    cfg.PublicURL,
		pingInterval: time.Duration(cfg.PingIntervalSeconds) * time.Second,
		idleLimit:    time.Duration(cfg.IdleLimitSeconds) * time.Second,
		client:       &http.Client{Timeout: 30 * time.Second},
		now:          time.Now,
	}
	k.Touch()
	return k
}

// Touch records activity; the self-pinger stays quiet while traffic is fresh.
func (k *Keeper) Touch() {
	k.lastActivity.Store(k.now().UnixNano())
}

func (k *Keeper) idleFor() time.Duration {
	return k.now().Sub(time.Unix(0, k.lastActivity.Load()))
}

// Handler serves "/" and "/ping". Any hit on "/" counts as activity, so
// external monitors keep the self-pinger dormant.
func (k *Keeper) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		k.Touch()
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Bot is alive!"))
	})
	mux.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Ping OK"))
	})
	return mux
}

// Run serves the liveness endpoint and drives the ping loop until the
// context is cancelled.
func (k *Keeper) Run(ctx context.Context) {
	srv := &http.Server{
		Addr:              k.listen,
		Handler:           k.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Keep.Info("keepalive listening",
			slog.String("event", "keepalive.start"),
			slog.String("addr", k.listen),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Keep.Error("keepalive server failed",
				slog.String("event", "keepalive.serve"),
				slog.String("err", err.Error()),
			)
		}
	}()

	k.pingLoop(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func (k *Keeper) pingLoop(ctx context.Context) {
	if k.publicURL == "" || k.pingInterval <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(k.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if idle := k.idleFor(); idle < k.idleLimit {
				logger.Keep.Debug("skipping self-ping, recent activity",
					slog.String("event", "keepalive.skip"),
					slog.Duration("idle", idle),
				)
				continue
			}
			k.selfPing(ctx)
		}
	}
}

func (k *Keeper) selfPing(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.publicURL, nil)
	if err != nil {
		logger.Keep.Warn("self-ping request build failed",
			slog.String("event", "keepalive.ping"),
			slog.String("err", err.Error()),
		)
		return
	}
	resp, err := k.client.Do(req)
	if err != nil {
		logger.Keep.Warn("self-ping failed",
			slog.String("event", "keepalive.ping"),
			slog.String("err", err.Error()),
		)
		return
	}
	defer resp.Body.Close()
	logger.Keep.Info("self-ping ok",
		slog.String("event", "keepalive.ping"),
		slog.Int("status", resp.StatusCode),
	)
}
