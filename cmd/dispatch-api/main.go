// README: Entry point; loads config, wires services, starts HTTP, metrics and realtime servers.
package main

import (
	"context"
	"fmt"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"

	firebase "firebase.google.com/go/v4"
	"github.com/facebookgo/clock"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"herodispatch/internal/config"
	httptransport "herodispatch/internal/http"
	"herodispatch/internal/infra"
	"herodispatch/internal/logging"
	"herodispatch/internal/maps"
	"herodispatch/internal/metrics"
	"herodispatch/internal/modules/dispatch"
	"herodispatch/internal/modules/escalation"
	"herodispatch/internal/modules/incident"
	"herodispatch/internal/modules/location"
	"herodispatch/internal/modules/notify"
	"herodispatch/internal/modules/radius"
	"herodispatch/internal/modules/responder"
	"herodispatch/internal/ratelimit"
	"herodispatch/internal/realtime"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger := logging.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("dispatch-api stopped")
	}
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	app, err := infra.NewFirebaseApp(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile, cfg.Firebase.DatabaseURL)
	if err != nil {
		return err
	}
	verifier, err := infra.NewFirebaseVerifier(ctx, app)
	if err != nil {
		return err
	}
	pool, err := infra.NewDB(ctx, cfg.DB.DSN, cfg.DB.MaxConns)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := infra.Migrate(ctx, pool); err != nil {
		return err
	}
	metrics.RegisterPgxPoolMetrics(prometheus.DefaultRegisterer, pool)

	redisClient, err := infra.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	policy, err := escalation.LoadPolicy(cfg.Dispatch.PolicyFile)
	if err != nil {
		return err
	}

	clk := clock.New()
	incidents := incident.NewStore(pool)
	responders := responder.NewStore(pool, redisClient)
	finder, err := newFinder(ctx, cfg, app, responders)
	if err != nil {
		return err
	}

	// Locations and the hub depend on each other through the transport, so
	// the hub is built first and the location service injected after.
	// One ping budget per helper across HTTP and the socket.
	pingLimiter := ratelimit.NewKeyed(cfg.Location.PingsPerSecond, cfg.Location.PingBurst)
	pings := &pingRouter{}
	hub := realtime.NewHub(pings, pingLimiter, logger)

	transports := notify.Fanout{hub, notify.NewRedisPublisher(redisClient, cfg.Redis.Channel)}
	// Push is best effort; sockets and the Redis channel still deliver.
	if messaging, err := app.Messaging(ctx); err != nil {
		logger.Warn().Err(err).Msg("firebase messaging unavailable, push notifications disabled")
	} else {
		transports = append(transports, notify.NewFCMTransport(messaging, responders))
	}
	async := notify.NewAsync(transports, cfg.Dispatch.QueueSize, cfg.Dispatch.Workers, logger)

	locations := location.NewService(location.NewStore(pool), incidents, incidents, responders, async, clk, logger)
	pings.next = locations

	var geocoder dispatch.Geocoder
	if cfg.Maps.APIKey != "" {
		g, err := maps.NewGeocoder(cfg.Maps.APIKey)
		if err != nil {
			return err
		}
		geocoder = g
	}

	svc := dispatch.NewService(dispatch.Deps{
		Incidents: incidents,
		Resolver:  responder.NewResolver(finder),
		Rewards:   responders,
		Scheduler: notify.NewScheduler(clk, async, logger),
		Transport: async,
		Geocoder:  geocoder,
		Clock:     clk,
		Logger:    logger,
	}, dispatch.Config{
		MaxAcceptKm: cfg.Dispatch.MaxAcceptKm,
		Policy:      policy,
		Schedule:    radius.DefaultSchedule(),
	})
	defer svc.Shutdown()

	if cfg.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := httptransport.NewRouter(httptransport.RouterDeps{
		Dispatch:      svc,
		Locations:     locations,
		Responders:    responders,
		Sockets:       hub,
		Verifier:      verifier,
		Logger:        logger,
		PingLimiter:   pingLimiter,
		SubmitLimiter: ratelimit.PerMinute(cfg.Dispatch.SubmitsPerMinute),
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return async.Run(ctx) })
	g.Go(func() error { return hub.Run(ctx) })

	recovered, err := svc.Recover(ctx)
	if err != nil {
		return err
	}
	logger.Info().Int("incidents", recovered).Msg("active incidents recovered")

	g.Go(func() error {
		return httptransport.Serve(ctx, &nethttp.Server{Addr: cfg.HTTP.Addr, Handler: router}, logger)
	})
	g.Go(func() error {
		return httptransport.Serve(ctx, metrics.NewServer(cfg.Metrics.Addr), logger)
	})
	return g.Wait()
}

func newFinder(ctx context.Context, cfg config.Config, app *firebase.App, store *responder.Store) (responder.Finder, error) {
	if cfg.Dispatch.ResponderSource != "firebase" {
		return store, nil
	}
	db, err := app.Database(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase app.Database: %w", err)
	}
	return responder.NewFirebaseFinder(db), nil
}

// pingRouter forwards socket location updates to the location service once
// it exists.
type pingRouter struct {
	next *location.Service
}

func (p *pingRouter) Ping(ctx context.Context, ping location.Ping) (location.Ping, error) {
	return p.next.Ping(ctx, ping)
}
