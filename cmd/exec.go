package cmd

import (
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"dj-requests/config"
	"dj-requests/internal/handlers"
	"dj-requests/internal/services"
	"dj-requests/internal/spotify"
	"dj-requests/internal/store"
	"dj-requests/monitoring"
	"dj-requests/security"
	"dj-requests/utils"

	"github.com/benbjohnson/clock"
	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pubnub "github.com/pubnub/go/v7"
)

const shutdownTimeout = 10 * time.Second

func Start() error {
	app := pocketbase.New()

	cfg := config.LoadConfig()

	redisClient, err := utils.NewRedisClient(cfg.RedisURL)
	if err != nil {
		return err
	}

	pnConfig := pubnub.NewConfigWithUserId(pubnub.UserId(cfg.PubNubUserID))
	pnConfig.PublishKey = cfg.PubNubPublishKey
	pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
	pnConfig.SecretKey = cfg.PubNubSecretKey
	// Publish on the caller's goroutine; the worker queue drops requests whose
	// context is already done without ever answering.
	pnConfig.MaxWorkers = 0
	pn := pubnub.NewPubNub(pnConfig)

	clk := clock.New()
	monitor := monitoring.NewMonitor()
	publisher := services.NewPubNubPublisher(pn, monitor)
	db := store.New(app)

	tokens := spotify.NewTokenStore(redisClient, clk)
	spotifyClient := spotify.NewClient(
		spotify.NewAuthenticator(cfg.SpotifyClientID, cfg.SpotifyClientSecret, cfg.SpotifyRedirectURL),
		tokens,
	)

	eventService := services.NewEventService(db, publisher, monitor, clk)
	requestService := services.NewRequestService(db, db, publisher, monitor, clk, cfg.DefaultMaxRequests)
	reconciler := services.NewRequestReconciler(db, clk, cfg.ApprovedLookupLimit)
	stats := services.NewStatsAggregator(db, publisher, monitor)
	watcher := services.NewWatcherService(spotifyClient, spotifyClient, reconciler, stats, publisher, monitor, clk, services.WatcherConfig{
		Concurrency:   cfg.WatcherConcurrency,
		FetchTimeout:  cfg.FetchTimeout,
		StatsInterval: cfg.StatsInterval,
	})

	watcherHandler := handlers.NewWatcherHandler(watcher, cfg.WatcherControlToken, cfg.WatcherInterval, cfg.QueueInterval)
	eventHandler := handlers.NewEventHandler(eventService)
	requestHandler := handlers.NewRequestHandler(requestService)
	spotifyHandler := handlers.NewSpotifyHandler(spotifyClient)
	limiter := security.NewRateLimiter(redisClient, cfg.SubmitRateLimit, time.Minute)

	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		api := e.Router.Group("/api/v1")

		// Watcher control
		api.POST("/watcher/start", watcherHandler.Start)
		api.POST("/watcher/stop", watcherHandler.Stop)
		api.GET("/watcher/status", watcherHandler.Status)

		// Host endpoints
		host := api.Group("")
		host.Bind(apis.RequireAuth())
		host.GET("/events/me", eventHandler.GetMyEvent)
		host.POST("/events/start", eventHandler.StartEvent)
		host.PATCH("/events/status", eventHandler.UpdateStatus)
		host.POST("/events/pin", eventHandler.SetPin)
		host.GET("/requests", requestHandler.List)
		host.POST("/requests/random", requestHandler.RandomPick)
		host.POST("/requests/{requestId}/approve", requestHandler.Approve)
		host.POST("/requests/{requestId}/reject", requestHandler.Reject)
		host.GET("/spotify/connect", spotifyHandler.Connect)
		host.POST("/spotify/disconnect", spotifyHandler.Disconnect)
		host.GET("/spotify/status", spotifyHandler.Status)
		host.POST("/spotify/player/{action}", spotifyHandler.Player)
		host.POST("/spotify/queue", spotifyHandler.Queue)

		// Guest endpoints
		api.GET("/spotify/callback", spotifyHandler.Callback)
		api.GET("/parties/{userId}", eventHandler.GetParty)
		api.POST("/parties/{userId}/requests", requestHandler.Submit).
			BindFunc(limiter.AntiBot()).
			BindFunc(limiter.SubmitRateLimit())

		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return e.JSON(http.StatusServiceUnavailable, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(http.StatusOK, map[string]any{
				"status":  "healthy",
				"watcher": watcher.Status(),
			})
		})

		if cfg.EnableMetrics {
			e.Router.GET("/metrics", apis.WrapStdHandler(promhttp.Handler()))
		}

		if cfg.WatcherAutoStart {
			if err := watcher.Start(cfg.WatcherInterval, cfg.QueueInterval); err != nil {
				slog.Error("Failed to auto-start playback watcher", "error", err)
			}
		}

		slog.Info("Server routes registered", "environment", cfg.Environment)
		return e.Next()
	})

	app.OnTerminate().BindFunc(func(e *core.TerminateEvent) error {
		slog.Info("Shutdown signal received, cleaning up...")
		watcher.Shutdown(shutdownTimeout)
		if err := redisClient.Close(); err != nil {
			slog.Error("Failed to close redis client", "error", err)
		}
		return e.Next()
	})

	app.RootCmd.SetArgs(serveArgs(os.Args[1:], cfg.Port))
	return app.Start()
}

// serveArgs binds "serve" to PORT unless an address was passed explicitly.
func serveArgs(args []string, port string) []string {
	if len(args) == 0 || args[0] != "serve" || port == "" {
		return args
	}
	for _, arg := range args[1:] {
		if arg == "--http" || arg == "--https" ||
			strings.HasPrefix(arg, "--http=") || strings.HasPrefix(arg, "--https=") {
			return args
		}
	}
	return append(append([]string{}, args...), "--http=0.0.0.0:"+port)
}
