package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"cafetrack/internal/app"
	"cafetrack/internal/config"
	"cafetrack/internal/events"
	"cafetrack/internal/geo"
	"cafetrack/internal/geocode"
	"cafetrack/internal/handler"
	"cafetrack/internal/location"
	internalRedis "cafetrack/internal/redis"
	"cafetrack/internal/repository/postgres"
	"cafetrack/internal/route"
	"cafetrack/internal/tracking"
	"cafetrack/internal/upstream"
)

func main() {
	// Load configuration.
	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize New Relic FIRST (before database so we can instrument DB).
	var nrApp *newrelic.Application
	var err error
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			log.Printf("failed to initialize New Relic: %v", err)
		} else {
			log.Printf("New Relic enabled: app=%s (with DB instrumentation)", cfg.NewRelic.AppName)
		}
	}

	// Initialize database with New Relic instrumentation.
	db, err := app.NewDatabase(ctx, cfg.Database, nrApp)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Connected to PostgreSQL")

	// Initialize Redis with New Relic instrumentation.
	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, nrApp)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Connected to Redis")

	// Initialize the event publisher.
	var publisher tracking.EventPublisher = events.NopPublisher{}
	if cfg.AMQP.Enabled {
		amqpPublisher, err := events.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			log.Fatalf("failed to connect to RabbitMQ: %v", err)
		}
		defer amqpPublisher.Close()
		publisher = amqpPublisher
		log.Println("Connected to RabbitMQ")
	}

	// Wire dependencies.
	server, manager := wireServer(db, redisClient, nrApp, publisher, cfg)

	// Start server in goroutine.
	go func() {
		log.Printf("Starting server on port %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Stop polling loops before closing their downstream connections.
	manager.StopAll()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

// wireServer wires all dependencies and returns the HTTP server and the
// tracking session manager.
func wireServer(
	db *sql.DB,
	redisClient *redis.Client,
	nrApp *newrelic.Application,
	publisher tracking.EventPublisher,
	cfg *config.Config,
) (*http.Server, *tracking.Manager) {
	// Initialize Redis stores.
	locationStore := internalRedis.NewLocationStore(redisClient)
	lockStore := internalRedis.NewLockStore(redisClient)
	cacheStore := internalRedis.NewCacheStore(redisClient)

	// Initialize repositories.
	riderRepo := postgres.NewRiderRepository(db)
	breadcrumbRepo := postgres.NewBreadcrumbRepository(db)
	sessionRepo := postgres.NewSessionRepository(db)

	// Initialize upstream clients.
	orderClient := upstream.NewOrderClient(
		cfg.Upstream.OrderServiceURL,
		cfg.Upstream.ServiceToken,
		cfg.Upstream.RequestTimeout,
		cacheStore,
	)

	// The resolver consults our own geo index first, then the configured
	// upstream candidate endpoints in order.
	sources := []location.Source{location.NewRedisSource(locationStore)}
	for i, template := range cfg.Upstream.RiderLocationEndpoints {
		sources = append(sources, upstream.NewLocationSource(
			fmt.Sprintf("upstream-%d", i+1),
			template,
			cfg.Upstream.ServiceToken,
			cfg.Upstream.RequestTimeout,
		))
	}
	resolver := location.NewResolver(sources...)

	geocoder := geocode.NewHTTPGeocoder(
		cfg.Upstream.GeocoderURL,
		cfg.Upstream.GeocoderUserAgent,
		cfg.Upstream.RequestTimeout,
	)
	geocodeCache := geocode.NewCache(geocoder)

	planner := route.NewHTTPDirections(cfg.Upstream.DirectionsURL, cfg.Upstream.RequestTimeout)

	// Initialize the tracking session manager.
	manager := tracking.NewManager(tracking.Deps{
		Orders:      orderClient,
		Locations:   resolver,
		Planner:     planner,
		Publisher:   publisher,
		Geocoder:    geocodeCache,
		Sessions:    sessionRepo,
		Locks:       lockStore,
		Snapshots:   cacheStore,
		Interval:    cfg.Tracking.PollInterval,
		AvgSpeedKmh: cfg.Tracking.AvgSpeedKmh,
		DefaultPin:  geo.Point{Lat: cfg.Tracking.DefaultPinLat, Lng: cfg.Tracking.DefaultPinLng},
	})

	// Initialize handlers.
	trackingHandler := handler.NewTrackingHandler(manager, breadcrumbRepo)
	riderHandler := handler.NewRiderHandler(locationStore, riderRepo, breadcrumbRepo)

	// Create router.
	router := app.NewRouter(app.RouterDeps{
		TrackingHandler: trackingHandler,
		RiderHandler:    riderHandler,
		RedisClient:     redisClient,
		NewRelicApp:     nrApp,
		JWTSecret:       cfg.Auth.JWTSecret,
	})

	// Create HTTP server.
	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, manager
}
