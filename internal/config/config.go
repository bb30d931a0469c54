package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Env string

const (
	EnvProd Env = "prod"
	EnvDev  Env = "dev"
)

func (e Env) IsValid() bool {
	switch e {
	case EnvProd, EnvDev:
		return true
	}
	return false
}

const devJWTSecret = "campus-security-dev-secret"

type Config struct {
	Port      string `env:"PORT" envDefault:"8095"`
	Env       Env    `env:"ENV" envDefault:"dev"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	DatabaseURL    string `env:"DATABASE_URL"`
	DBMaxOpenConns int    `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns int    `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`

	RedisAddr    string `env:"REDIS_ADDR"`
	RedisChannel string `env:"REDIS_CHANNEL" envDefault:"campus:realtime"`

	RabbitMQURL string `env:"RABBITMQ_URL"`
	EmailQueue  string `env:"EMAIL_QUEUE" envDefault:"outbound_email"`

	MinioEndpoint  string `env:"MINIO_ENDPOINT"`
	MinioAccessKey string `env:"MINIO_ACCESS_KEY"`
	MinioSecretKey string `env:"MINIO_SECRET_KEY"`
	MinioUseSSL    bool   `env:"MINIO_USE_SSL" envDefault:"false"`
	MinioBucket    string `env:"MINIO_BUCKET" envDefault:"incident-media"`

	JWTSecret string        `env:"JWT_SECRET"`
	JWTTTL    time.Duration `env:"JWT_TTL" envDefault:"24h"`

	PushGatewayURL   string `env:"PUSH_GATEWAY_URL"`
	PushGatewayToken string `env:"PUSH_GATEWAY_TOKEN"`
	EmergencyMailbox string `env:"EMERGENCY_MAILBOX" envDefault:"security@campus.edu"`

	IncidentCancelWindow   time.Duration `env:"INCIDENT_CANCEL_WINDOW" envDefault:"10m"`
	PanicMatchRadiusMeters float64       `env:"PANIC_MATCH_RADIUS_METERS" envDefault:"200"`

	DispatchWorkers   int `env:"DISPATCH_WORKERS" envDefault:"4"`
	DispatchQueueSize int `env:"DISPATCH_QUEUE_SIZE" envDefault:"256"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`

	RateLimitMax            int           `env:"RATE_LIMIT_MAX" envDefault:"100"`
	RateLimitWindow         time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"15m"`
	IncidentRateLimitMax    int           `env:"INCIDENT_RATE_LIMIT_MAX" envDefault:"10"`
	IncidentRateLimitWindow time.Duration `env:"INCIDENT_RATE_LIMIT_WINDOW" envDefault:"5m"`

	AlertSweepInterval time.Duration `env:"ALERT_SWEEP_INTERVAL" envDefault:"1m"`

	// compte administrateur injecté au démarrage en mode mémoire
	SeedAdminEmail    string `env:"SEED_ADMIN_EMAIL"`
	SeedAdminPassword string `env:"SEED_ADMIN_PASSWORD"`
}

// Load lit un éventuel fichier .env puis l'environnement.
func Load(files ...string) (*Config, error) {
	// .env absent : on continue avec l'environnement du processus
	_ = godotenv.Load(files...)

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = devJWTSecret
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if !c.Env.IsValid() {
		return fmt.Errorf("invalid env variable (must be 'prod' or 'dev')")
	}
	if c.Env == EnvProd && strings.TrimSpace(c.JWTSecret) == "" {
		return errors.New("JWT_SECRET is required in prod")
	}
	if c.IncidentCancelWindow <= 0 {
		return errors.New("INCIDENT_CANCEL_WINDOW must be positive")
	}
	if c.PanicMatchRadiusMeters < 0 {
		return errors.New("PANIC_MATCH_RADIUS_METERS must not be negative")
	}
	return nil
}

func (c *Config) UsesMemoryStore() bool {
	return c.DatabaseURL == ""
}
