package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"timeclock/internal/attendance"
	"timeclock/internal/config"
	"timeclock/internal/httpmiddleware"
	"timeclock/internal/metrics"
	"timeclock/internal/notify"
	"timeclock/internal/queue"
	"timeclock/internal/store"
	"timeclock/internal/web"
)

func main() {
	cfg := config.Load()

	// Set Gin mode based on environment
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	loc := cfg.Location()

	st, err := store.Open(ctx, store.Options{
		Backend:     cfg.StoreBackend,
		DataFile:    cfg.DataFile,
		DatabaseURL: cfg.DatabaseURL,
		SQLitePath:  cfg.SQLitePath,
	})
	if err != nil {
		return err
	}
	defer st.Close()
	log.Printf("store backend: %s", cfg.StoreBackend)

	roster, err := store.LoadSeed(cfg.SeedFile)
	if err != nil {
		return err
	}
	added, err := store.Seed(ctx, st, roster)
	if err != nil {
		return err
	}
	if added > 0 {
		log.Printf("seeded %d users", added)
	}

	var (
		q           queue.Queue
		redisClient *store.Redis
	)
	switch cfg.QueueBackend {
	case "redis":
		redisClient = store.NewRedis(cfg.RedisAddr)
		defer redisClient.Close()
		q = queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)
	case "none":
	default:
		mem := queue.NewInMemory(64)
		q = mem
		// No separate worker can see an in-memory queue, so notify here.
		msgs, err := mem.Consume(ctx)
		if err != nil {
			log.Fatalf("queue consume init failed: %v", err)
		}
		go notify.Run(ctx, msgs, notifier(cfg, loc))
	}

	ledger := attendance.NewLedger(st)
	var pub attendance.Publisher
	if q != nil {
		pub = q
	}
	svc := attendance.NewService(ledger, pub)

	h := web.New(svc, web.Options{
		Location:      loc,
		AdminPassword: cfg.AdminPassword,
		SigningKey:    cfg.JWTSigningKey,
		Issuer:        cfg.JWTIssuer,
		TokenTTL:      cfg.AccessTTL,
	})
	if p, ok := st.(store.Pinger); ok {
		h.AddHealthCheck("store", func(ctx context.Context) bool { return p.Ping(ctx) == nil })
	}
	if redisClient != nil {
		h.AddHealthCheck("redis", redisClient.Healthy)
	}

	r, err := newRouter(cfg, h)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

// newRouter builds the engine with the middleware chain and all routes.
func newRouter(cfg config.App, h *web.Handler) (*gin.Engine, error) {
	r := gin.New()
	// Only listed proxies may set X-Forwarded-For; otherwise the recorded IP
	// and the rate limit key come from the connection.
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Disposition"},
		MaxAge:        24 * time.Hour,
	}))
	r.Use(securityHeaders())
	r.Use(metrics.GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	limiter := httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	h.Register(r, limiter.GinMiddleware())
	return r, nil
}

func notifier(cfg config.App, loc *time.Location) notify.Notifier {
	if cfg.SlackToken != "" && cfg.SlackChannel != "" {
		log.Printf("Slack notifications enabled for %s", cfg.SlackChannel)
		return notify.NewSlack(cfg.SlackToken, cfg.SlackChannel, loc)
	}
	return notify.Log{Loc: loc}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// Only add HSTS in production
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
