package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/lorekeep/lorekeep/handlers"
	"github.com/lorekeep/lorekeep/internal/config"
	"github.com/lorekeep/lorekeep/internal/database"
	dochandler "github.com/lorekeep/lorekeep/internal/document/handler"
	docservice "github.com/lorekeep/lorekeep/internal/document/service"
	"github.com/lorekeep/lorekeep/internal/notify"
	"github.com/lorekeep/lorekeep/internal/sessions"
	"github.com/lorekeep/lorekeep/internal/syncprogress"
	"github.com/lorekeep/lorekeep/internal/tokens"
	"github.com/lorekeep/lorekeep/internal/users"
	"github.com/lorekeep/lorekeep/pkg/logger"
	"github.com/lorekeep/lorekeep/pkg/metrics"
	"github.com/lorekeep/lorekeep/pkg/middleware"
)

var startTime = time.Now()

func main() {
	// logging level controlled with LOG_LEVEL env: debug|info|warn|error|fatal
	logger.Init(os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: mongo=%v redis=%v smtp=%v", cfg.MongoDB.URI != "", cfg.Redis.Host != "", cfg.SMTP.User != "")

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	// Lightweight CORS middleware for dev/test: set common headers and respond to OPTIONS.
	// (Keep this intentionally simple. Production should use a stricter policy.)
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(200)
			return
		}
		c.Next()
	})

	// Connect to Redis early so sessions, the blacklist and the rate limiter
	// can use it when configured.
	var redisClient *redis.Client
	if cfg.Redis.Host != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.Host + ":" + cfg.Redis.Port, Password: cfg.Redis.Password})
		if err := redisClient.Ping(context.Background()).Err(); err == nil {
			sessions.SetBlacklistClient(redisClient)
			logger.Infof("connected to Redis: %s:%s", cfg.Redis.Host, cfg.Redis.Port)
		} else {
			logger.Warnf("failed to connect to Redis (%s:%s): %v", cfg.Redis.Host, cfg.Redis.Port, err)
			redisClient = nil
		}
	}

	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && redisClient != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			r.Use(middleware.RedisRateLimitMiddleware(redisClient, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
		} else {
			r.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}

	var userSvc *users.Service
	var sessionsSvc *sessions.Service
	var docSvc docservice.Service

	// Prefer Redis-based sessions when available, fall back to Mongo below.
	if redisClient != nil {
		sessionsSvc = sessions.NewService(sessions.NewRedisRepository(redisClient, "session:"))
		logger.Info("using Redis for session storage")
	}

	ctx := context.Background()
	if cfg.MongoDB.URI != "" {
		// retry with backoff to tolerate container startup races
		const maxAttempts = 5
		backoff := time.Second
		var client *mongo.Client
		var errConn error
		for attempt := 1; attempt <= maxAttempts; attempt++ {
			client, errConn = database.ConnectMongo(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout)
			if errConn == nil {
				break
			}
			logger.Warnf("attempt %d/%d: failed to connect to MongoDB: %v", attempt, maxAttempts, errConn)
			if attempt < maxAttempts {
				time.Sleep(backoff)
				backoff *= 2
			}
		}
		if errConn != nil {
			logger.Warnf("could not connect to MongoDB after %d attempts: %v", maxAttempts, errConn)
		} else {
			defer func() { _ = client.Disconnect(ctx) }()
			db := client.Database(cfg.MongoDB.Database)
			userSvc = users.NewService(
				users.NewMongoUserRepository(db.Collection("users")),
				users.NewMongoTenantRepository(db.Collection("tenants")),
			)
			if sessionsSvc == nil {
				sessionsSvc = sessions.NewService(sessions.NewMongoRepository(db.Collection("sessions")))
			}
			docSvc = docservice.NewMongoService(db.Collection("documents"))
		}
	}
	if docSvc == nil {
		docSvc = docservice.NewMemoryService()
		logger.Warn("documents stored in memory (MongoDB unavailable)")
	}

	// sync progress tracking with Mongo archive and SMTP notifications
	mailer := notify.NewMailer(cfg.SMTP)
	archive := func(ctx context.Context, p *syncprogress.Progress) error {
		metrics.SyncsFinished.WithLabelValues(p.Status).Inc()
		return syncprogress.SaveArchive(ctx, cfg.MongoDB.URI, cfg.MongoDB.Database, p)
	}
	tracker := syncprogress.NewTracker(mailer, archive)
	go func() {
		for range time.Tick(10 * time.Minute) {
			tracker.CleanupOldSyncs(time.Hour)
		}
	}()

	parse := func(raw string) (*tokens.Claims, error) {
		return tokens.ParseAccessToken(cfg, raw)
	}
	auth := middleware.AuthMiddleware(parse)
	queryAuth := middleware.AuthQueryToken(parse)

	if userSvc != nil && sessionsSvc != nil {
		handlers.NewAuthHandler(cfg, userSvc, sessionsSvc).Register(r.Group("/api"), auth)
	} else {
		logger.Warnf("auth handlers not registered because user/session services are unavailable")
	}
	archiveLookup := func(ctx context.Context, syncID string) (*syncprogress.Progress, error) {
		return syncprogress.LoadArchive(ctx, cfg.MongoDB.URI, cfg.MongoDB.Database, syncID)
	}
	handlers.NewSyncProgressHandler(tracker, archiveLookup).Register(r, auth, queryAuth)
	dochandler.RegisterDocumentRoutes(r, docSvc, auth)
	handlers.RegisterSwagger(r)

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})

	// ready only when critical dependencies are available
	r.GET("/ready", func(c *gin.Context) {
		ready := true
		deps := map[string]bool{}

		deps["sessions"] = sessionsSvc != nil
		deps["users"] = userSvc != nil
		if sessionsSvc == nil || userSvc == nil {
			ready = false
		}
		if cfg.Redis.Host != "" && cfg.RateLimit.UseRedis {
			deps["redis"] = redisClient != nil
			if redisClient == nil {
				ready = false
			}
		} else {
			deps["redis"] = true
		}

		status := http.StatusOK
		name := "ready"
		if !ready {
			status = http.StatusServiceUnavailable
			name = "not_ready"
		}
		c.JSON(status, gin.H{"status": name, "deps": deps, "uptime": time.Since(startTime).String()})
	})

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	logger.Infof("starting lorekeep server on %s", addr)
	if err := r.Run(addr); err != nil {
		logger.Fatalf("server failed: %v", err)
	}
}
