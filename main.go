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

	"github.com/appvault/appvault/handlers"
	"github.com/appvault/appvault/internal/config"
	"github.com/appvault/appvault/internal/database"
	"github.com/appvault/appvault/internal/documents"
	"github.com/appvault/appvault/internal/oidc"
	"github.com/appvault/appvault/internal/sessions"
	"github.com/appvault/appvault/internal/users"
	"github.com/appvault/appvault/pkg/logger"
	"github.com/appvault/appvault/pkg/metrics"
	"github.com/appvault/appvault/pkg/middleware"
)

var startTime = time.Now()

func main() {
	// initialize logging (can be controlled with LOG_LEVEL env: debug|info|warn|error|fatal)
	logger.Init(os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: auth0=%v mongo=%v redis=%v", cfg.Auth0.Domain != "", cfg.MongoDB.URI != "", cfg.Redis.Host != "")

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	// Lightweight CORS middleware for dev/test: set common headers and respond to OPTIONS.
	// (Keep this intentionally simple — production should use a stricter policy.)
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	})

	ctx := context.Background()

	// Connect to Redis early so the rate-limiter and session store can use it
	var redisClient *redis.Client
	if cfg.Redis.Host != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.Host + ":" + cfg.Redis.Port, Password: cfg.Redis.Password})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warnf("failed to connect to Redis (%s:%s): %v", cfg.Redis.Host, cfg.Redis.Port, err)
			redisClient = nil
		} else {
			logger.Infof("Connected to Redis at %s:%s", cfg.Redis.Host, cfg.Redis.Port)
		}
	}

	// Optional global rate limiter (per-user when authenticated, otherwise per-IP)
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && redisClient != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			r.Use(middleware.RedisRateLimitMiddleware(redisClient, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
		} else {
			r.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}

	// Connect to MongoDB with retry/backoff to tolerate startup races
	var mongoClient *mongo.Client
	if cfg.MongoDB.URI != "" {
		const maxAttempts = 5
		backoff := time.Second
		for attempt := 1; attempt <= maxAttempts; attempt++ {
			mongoClient, err = database.ConnectMongo(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout)
			if err == nil {
				break
			}
			logger.Warnf("attempt %d/%d: failed to connect to MongoDB: %v", attempt, maxAttempts, err)
			if attempt < maxAttempts {
				time.Sleep(backoff)
				backoff *= 2
			}
		}
		if mongoClient == nil {
			logger.Warnf("could not connect to MongoDB; continuing without it")
		} else {
			defer func() { _ = mongoClient.Disconnect(ctx) }()
		}
	}

	// Session storage: prefer Redis (fast, TTL-native), then Mongo, then memory
	var srepo sessions.Repository
	switch {
	case redisClient != nil:
		srepo = sessions.NewRedisRepository(redisClient, "session:")
		logger.Infof("Using Redis for session storage")
	case mongoClient != nil:
		srepo = sessions.NewMongoRepository(mongoClient.Database(cfg.MongoDB.Database).Collection("sessions"))
		logger.Infof("Using MongoDB for session storage")
	default:
		srepo = sessions.NewMemoryRepository()
		logger.Warnf("no Redis/MongoDB available; sessions are process-local")
	}
	sessionsSvc := sessions.NewService(srepo)

	// Users + documents live in Mongo; memory fallback keeps dev runs working
	var urepo users.UserRepository
	var drepo documents.Repository
	if mongoClient != nil {
		db := mongoClient.Database(cfg.MongoDB.Database)
		urepo = users.NewMongoUserRepository(db.Collection("users"))
		drepo = documents.NewMongoRepository(db.Collection("app_data"))
	} else {
		logger.Warnf("no MongoDB available; users and documents are process-local")
		urepo = users.NewMemoryUserRepository()
		drepo = documents.NewMemoryRepository()
	}
	userSvc := users.NewService(urepo)
	docsSvc := documents.NewService(drepo)

	// OIDC authenticator; a failed discovery leaves login degraded but the
	// rest of the service up
	var auth oidc.Exchanger
	if cfg.Auth0.Domain != "" && cfg.Auth0.ClientID != "" {
		a, err := oidc.New(ctx, cfg)
		if err != nil {
			logger.Warnf("failed to initialize OIDC authenticator: %v", err)
		} else {
			auth = a
		}
	}

	h := handlers.NewWebHandler(cfg, auth, userSvc, sessionsSvc, docsSvc)
	h.Register(r)

	// readiness endpoint — 200 only when configured dependencies are available
	r.GET("/ready", func(c *gin.Context) {
		deps := map[string]bool{
			"sessions": true,
			"mongo":    mongoClient != nil,
			"redis":    redisClient != nil || cfg.Redis.Host == "",
			"oidc":     auth != nil || cfg.Auth0.Domain == "",
		}
		if !deps["redis"] || !deps["oidc"] {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "deps": deps, "uptime": time.Since(startTime).String()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "deps": deps, "uptime": time.Since(startTime).String()})
	})

	// Expose Prometheus metrics
	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	logger.Infof("Starting appvault service on %s", addr)
	if err := r.Run(addr); err != nil {
		logger.Fatalf("server failed: %v", err)
	}
}
