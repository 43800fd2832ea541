package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"lazla/internal/config"
	"lazla/internal/database"
	"lazla/internal/events"
	"lazla/internal/mailer"
	"lazla/internal/middleware"
	"lazla/internal/modules/auth"
	"lazla/internal/modules/delivery"
	"lazla/internal/pkg/jwt"
	"lazla/internal/pkg/otp"
	"lazla/internal/pkg/password"
	"lazla/internal/ratelimit"
	"lazla/internal/repository"
)

const (
	authRateLimit  = 5
	authRateWindow = 10 * time.Minute
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("level=fatal msg=\"config invalid\" err=%v", err)
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal msg=\"db connect failed\" err=%v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("level=fatal msg=\"db migrate failed\" err=%v", err)
	}

	mail, err := mailer.New(cfg.Mail)
	if err != nil {
		log.Fatalf("level=fatal msg=\"mailer init failed\" err=%v", err)
	}

	tokens := jwt.New(jwt.Config{
		AccessSecret:  cfg.JWTAccessSecret,
		RefreshSecret: cfg.JWTRefreshSecret,
		AccessTTL:     cfg.AccessTTL,
		RefreshTTL:    cfg.RefreshTTL,
	})
	deps := auth.Deps{
		Hasher:             password.NewHasher(cfg.BcryptRounds),
		Tokens:             tokens,
		OTP:                otp.NewManager(cfg.OTPPepper, cfg.OTPLength, cfg.OTPTTL),
		Mailer:             mail,
		RefreshTokenPepper: cfg.RefreshTokenPepper,
		Loggerf:            log.Printf,
	}
	customerService := auth.NewCustomerService(repository.NewCustomerRepository(db), deps)
	staffService := auth.NewStaffService(repository.NewStaffRepository(db), deps)

	limiter := ratelimit.New(rateLimitStore(ctx, cfg), authRateLimit, authRateWindow)

	hub := events.NewHub()
	defer hub.Close()
	publisher := events.Multi{hub}
	if cfg.RabbitMQURL != "" {
		amqpPub := events.NewAMQPPublisher(cfg.RabbitMQURL, events.PaymentEventsQueue)
		defer amqpPub.Close()
		publisher = append(publisher, amqpPub)
	}
	fanout := events.NewAsync(publisher, events.DefaultQueueSize, events.DefaultSendTimeout, log.Printf)
	deliveryService := delivery.NewService(repository.NewPaymentEventRepository(db), fanout, log.Printf)

	r := gin.New()
	r.Use(middleware.AccessLog(nil))
	r.Use(middleware.ErrorLogger())
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	customerAuth := middleware.JWTAuth(tokens, jwt.PrincipalCustomer)
	staffAuth := middleware.JWTAuth(tokens, jwt.PrincipalStaff)
	cookie := auth.CookieConfig{Secure: cfg.CookieSecure}

	api := r.Group("/api")
	{
		auth.NewHandler(customerService, cookie, log.Printf).
			RegisterCustomerRoutes(api.Group("/auth/customer"), customerAuth, middleware.RateLimit(limiter))
		auth.NewHandler(staffService, cookie, log.Printf).
			RegisterStaffRoutes(api.Group("/auth/staff"), staffAuth, middleware.AdminOnly())
		delivery.NewHandler(deliveryService, hub, cfg.CORSAllowedOrigins, log.Printf).
			RegisterRoutes(api.Group("/delivery"), staffAuth, middleware.JWTAuthWS(tokens, jwt.PrincipalStaff), middleware.AdminOnly())
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("level=info msg=\"listening\" addr=%s env=%s", srv.Addr, cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("level=fatal msg=\"server failed\" err=%v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("level=info msg=\"shutting down\"")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("level=error msg=\"shutdown failed\" err=%v", err)
	}
	if err := fanout.Close(shutdownCtx); err != nil {
		log.Printf("level=warn msg=\"payment events not drained\" err=%v", err)
	}
}

func rateLimitStore(ctx context.Context, cfg *config.Config) ratelimit.Store {
	if cfg.RateLimitBackend == config.RateLimitRedis {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Printf("level=warn msg=\"redis ping failed, rate limiting will fail open\" addr=%s err=%v", cfg.RedisAddr, err)
		}
		return ratelimit.NewRedisStore(client, "")
	}

	store := ratelimit.NewMemoryStore()
	store.Start(ctx, time.Minute)
	return store
}
