package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ammar0101/campus-security-system/internal/config"
	"github.com/ammar0101/campus-security-system/internal/delivery/http/handler"
	"github.com/ammar0101/campus-security-system/internal/delivery/http/middleware"
	"github.com/ammar0101/campus-security-system/internal/domain/entity"
	"github.com/ammar0101/campus-security-system/internal/domain/repository"
	"github.com/ammar0101/campus-security-system/internal/platform/channel"
	"github.com/ammar0101/campus-security-system/internal/platform/database"
	"github.com/ammar0101/campus-security-system/internal/platform/dispatch"
	"github.com/ammar0101/campus-security-system/internal/platform/idgen"
	"github.com/ammar0101/campus-security-system/internal/platform/logger"
	"github.com/ammar0101/campus-security-system/internal/platform/queue"
	"github.com/ammar0101/campus-security-system/internal/platform/realtime"
	"github.com/ammar0101/campus-security-system/internal/platform/storage"
	"github.com/ammar0101/campus-security-system/internal/repository/memory"
	"github.com/ammar0101/campus-security-system/internal/repository/postgres"
	"github.com/ammar0101/campus-security-system/internal/service"
	"github.com/ammar0101/campus-security-system/internal/worker"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

type repositories struct {
	users      repository.UserRepository
	incidents  repository.IncidentRepository
	alerts     repository.AlertRepository
	recipients repository.AlertRecipientRepository
	locations  repository.LocationRepository
	auditLogs  repository.AuditLogRepository
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	zlog, err := logger.NewLogger(cfg.LogLevel, cfg.LogFormat, "campus-security-api")
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer zlog.Sync()

	if cfg.Env == config.EnvProd {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Stockage : Postgres si DATABASE_URL est défini, sinon mémoire
	repos, db, err := openRepositories(ctx, cfg, zlog)
	if err != nil {
		zlog.Fatal("storage initialization failed", zap.Error(err))
	}
	if db != nil {
		defer db.Close()
	}

	// RabbitMQ : les e-mails passent par la file quand un broker est configuré
	var mailer channel.Mailer = channel.NewLogMailer(zlog)
	if cfg.RabbitMQURL != "" {
		publisher, err := queue.NewRabbitPublisher(cfg.RabbitMQURL, cfg.EmailQueue)
		if err != nil {
			zlog.Warn("could not connect to RabbitMQ, emails delivered inline", zap.Error(err))
		} else {
			defer publisher.Close()
			mailer = channel.NewQueueMailer(publisher, cfg.EmailQueue)
		}

		consumer, err := queue.NewRabbitConsumer(cfg.RabbitMQURL, zlog, cfg.EmailQueue)
		if err != nil {
			zlog.Warn("could not connect RabbitMQ consumer", zap.Error(err))
		} else {
			defer consumer.Close()
			emailConsumer := worker.NewEmailConsumer(consumer, channel.NewLogMailer(zlog), cfg.EmailQueue, zlog)
			if err := emailConsumer.Start(ctx); err != nil {
				zlog.Warn("email consumer did not start", zap.Error(err))
			}
		}
	}

	var pusher channel.Pusher = channel.NewLogPusher(zlog)
	if cfg.PushGatewayURL != "" {
		pusher = channel.NewHTTPPusher(cfg.PushGatewayURL, cfg.PushGatewayToken, zlog)
	}

	// MinIO
	var storageService service.StorageService
	if cfg.MinioEndpoint != "" {
		objectStore, err := storage.NewMinioStorage(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioUseSSL)
		if err != nil {
			zlog.Warn("could not connect to MinIO", zap.Error(err))
		} else {
			storageService = service.NewStorageService(objectStore, cfg.MinioBucket)
			if err := storageService.Initialize(ctx); err != nil {
				zlog.Warn("could not initialize storage bucket", zap.Error(err))
			}
		}
	}

	// Temps réel : Redis relaie les événements entre instances
	hub := realtime.NewHub(zlog)
	go hub.Run(ctx)
	var notifier realtime.Notifier = hub
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			zlog.Warn("could not connect to Redis, realtime stays local", zap.Error(err))
		} else {
			bridge := realtime.NewRedisBridge(rdb, cfg.RedisChannel, hub, zlog)
			go func() {
				if err := bridge.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
					zlog.Error("realtime bridge stopped", zap.Error(err))
				}
			}()
			notifier = bridge
		}
	}

	dispatcher := dispatch.New(cfg.DispatchWorkers, cfg.DispatchQueueSize, 10*time.Second, zlog)

	// Injection des dépendances
	fx := &service.Effects{
		Gateway:    channel.NewGateway(pusher, mailer),
		Notifier:   notifier,
		Dispatcher: dispatcher,
		Logger:     zlog,
	}
	auditService := service.NewAuditService(repos.auditLogs, dispatcher, zlog)
	authService := service.NewAuthService(repos.users, auditService, cfg.JWTSecret, cfg.JWTTTL, zlog)
	incidentService := service.NewIncidentService(repos.incidents, repos.users, repos.locations, auditService, fx, service.IncidentConfig{
		CancelWindow:      cfg.IncidentCancelWindow,
		PanicRadiusMeters: cfg.PanicMatchRadiusMeters,
		EmergencyMailbox:  cfg.EmergencyMailbox,
	})
	alertService := service.NewAlertService(repos.alerts, repos.recipients, repos.users, repos.incidents, repos.locations, auditService, fx, service.AlertConfig{})
	analyticsService := service.NewAnalyticsService(repos.incidents, repos.alerts, repos.users, zlog, nil)

	sweeper := worker.NewExpirySweeper(alertService, cfg.AlertSweepInterval, zlog)
	go sweeper.Run(ctx)

	generalLimiter := middleware.NewRateLimiter(cfg.RateLimitMax, cfg.RateLimitWindow)
	incidentLimiter := middleware.NewRateLimiter(cfg.IncidentRateLimitMax, cfg.IncidentRateLimitWindow)
	go generalLimiter.Run(ctx)
	go incidentLimiter.Run(ctx)

	router := handler.NewRouter(handler.RouterDeps{
		Auth:            authService,
		Incidents:       incidentService,
		Alerts:          alertService,
		Analytics:       analyticsService,
		Storage:         storageService,
		Audit:           auditService,
		Hub:             hub,
		AllowedOrigins:  cfg.CORSAllowedOrigins,
		GeneralLimiter:  generalLimiter,
		IncidentLimiter: incidentLimiter,
		Logger:          zlog,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zlog.Info("server starting", zap.String("port", cfg.Port), zap.Bool("memory_store", cfg.UsesMemoryStore()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zlog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Warn("http shutdown", zap.Error(err))
	}
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		zlog.Warn("dispatcher shutdown", zap.Error(err))
	}
	dropped, failures := dispatcher.Stats()
	zlog.Info("stopped", zap.Uint64("dropped_tasks", dropped), zap.Uint64("failed_tasks", failures))
}

func openRepositories(ctx context.Context, cfg *config.Config, zlog *zap.Logger) (*repositories, *sql.DB, error) {
	if cfg.UsesMemoryStore() {
		zlog.Warn("DATABASE_URL not set, using in-memory repositories")
		users := memory.NewUserRepository()
		if err := seedAdmin(cfg, users); err != nil {
			return nil, nil, err
		}
		alerts := memory.NewAlertStore()
		return &repositories{
			users:      users,
			incidents:  memory.NewIncidentRepository(),
			alerts:     alerts,
			recipients: alerts,
			locations:  memory.NewLocationRepository(),
			auditLogs:  memory.NewAuditLogRepository(),
		}, nil, nil
	}

	db, err := database.NewPostgresDB(database.Options{
		URL:          cfg.DatabaseURL,
		MaxOpenConns: cfg.DBMaxOpenConns,
		MaxIdleConns: cfg.DBMaxIdleConns,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, nil, err
	}
	return &repositories{
		users:      postgres.NewUserRepository(db),
		incidents:  postgres.NewIncidentRepository(db),
		alerts:     postgres.NewAlertRepository(db),
		recipients: postgres.NewAlertRecipientRepository(db),
		locations:  postgres.NewLocationRepository(db),
		auditLogs:  postgres.NewAuditLogRepository(db),
	}, db, nil
}

func seedAdmin(cfg *config.Config, users *memory.UserRepository) error {
	if cfg.SeedAdminEmail == "" || cfg.SeedAdminPassword == "" {
		return nil
	}
	hash, err := service.HashPassword(cfg.SeedAdminPassword)
	if err != nil {
		return err
	}
	users.Add(entity.User{
		ID:           idgen.New("USR"),
		Name:         "Administrator",
		Email:        strings.ToLower(cfg.SeedAdminEmail),
		PasswordHash: hash,
		Role:         entity.RoleAdmin,
		Status:       entity.UserActive,
		OnDuty:       true,
		CreatedAt:    time.Now().UTC(),
	})
	return nil
}
