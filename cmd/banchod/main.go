// banchod is the Bancho presence and chat-routing daemon: the HTTP
// long-poll transport, the JSON/gRPC-health session-service façade, and
// the three background reaper loops, wired together and run under one
// errgroup with signal-aware shutdown.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"banchod/internal/authn"
	"banchod/internal/bancho"
	"banchod/internal/channel"
	banchometrics "banchod/internal/metrics"
	"banchod/internal/config"
	"banchod/internal/geoip"
	transporthttp "banchod/internal/transport/http"
	"banchod/internal/transport/grpcfacade"
	"banchod/internal/reaper"
	"banchod/internal/token"
	"banchod/internal/userrepo"
)

// defaultPublicChannels seeds the channel registry at startup the way a
// real Bancho deployment ships a standing #osu/#announce/#lobby set
// rather than requiring an operator to create them by hand.
var defaultPublicChannels = map[string]string{
	"#osu":       "Main channel",
	"#announce":  "Announcements",
	"#lobby":     "Multiplayer lobby",
}

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Printf("[banchod] failed to load configuration: %v", err)
		return 1
	}

	logOpts := &slog.HandlerOptions{Level: config.ParseLogLevel(cfg.Log.Level)}
	var logHandler slog.Handler = slog.NewJSONHandler(os.Stderr, logOpts)
	if cfg.Log.Format == "text" {
		logHandler = slog.NewTextHandler(os.Stderr, logOpts)
	}
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	log.Printf("[banchod] starting: http=%s grpc=%s metrics=%s", cfg.HTTP.Addr, cfg.GRPC.Addr, cfg.Metrics.Addr)

	reg := prometheus.NewRegistry()
	metrics := banchometrics.NewCollector(reg)

	signer, err := token.NewFromFile(cfg.Token.PEMPath)
	if err != nil {
		log.Printf("[banchod] failed to load signing key: %v", err)
		return 1
	}

	repo, err := userrepo.New(cfg.Store.SQLitePath, cfg.Store.RemoteURL)
	if err != nil {
		log.Printf("[banchod] failed to open user repository: %v", err)
		return 1
	}
	defer repo.Close()

	geo, err := geoip.New(cfg.GeoIP.MMDBPath, cfg.GeoIP.RemoteURL)
	if err != nil {
		log.Printf("[banchod] failed to open geoip resolver: %v", err)
		return 1
	}
	defer geo.Close()

	channels := channel.NewRegistry()
	channels.SeedPublic(defaultPublicChannels)

	svc := bancho.New(repo, signer, channels, metrics, logger)
	passwords := authn.NewCache(cfg.Password.CacheTTL(), cfg.Password.CacheCleanupInterval())
	dispatcher := bancho.NewDispatcher(svc, geo, passwords, cfg.Reapers.LogoutGrace())

	httpSrv := transporthttp.New(dispatcher, logger)
	grpcSrv := grpcfacade.New(svc, logger)
	metricsSrv := &http.Server{
		Addr:              cfg.Metrics.Addr,
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sessionReaper := &reaper.SessionReaper{
		Svc:      svc,
		Dead:     cfg.Reapers.SessionDead(),
		Interval: cfg.Reapers.SessionInterval(),
		Log:      logger,
	}
	notifyReaper := &reaper.NotifyReaper{
		Svc:      svc,
		Interval: cfg.Reapers.NotifyInterval(),
		Log:      logger,
	}
	passwordReaper := &reaper.PasswordCacheReaper{
		Cache:    passwords,
		Interval: cfg.Password.CacheCleanupInterval(),
		Metrics:  metrics,
		Log:      logger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error { return httpSrv.Run(gCtx, cfg.HTTP.Addr) })
	g.Go(func() error { return grpcSrv.Run(gCtx, cfg.GRPC.Addr) })
	g.Go(func() error { return runMetricsServer(gCtx, metricsSrv) })
	g.Go(func() error { return sessionReaper.Run(gCtx) })
	g.Go(func() error { return notifyReaper.Run(gCtx) })
	g.Go(func() error { return passwordReaper.Run(gCtx) })

	log.Printf("[banchod] ready")

	if err := g.Wait(); err != nil {
		log.Printf("[banchod] exited with error: %v", err)
		return 1
	}

	log.Printf("[banchod] stopped")
	return 0
}

// runMetricsServer serves the Prometheus endpoint until ctx is
// canceled, then shuts down gracefully. The metrics surface is plain
// net/http rather than echo: it is a single handler with no routing,
// matching the donor's own split between its echo-based API server and
// its plain-mux metrics endpoint (server/metrics.go).
func runMetricsServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}
