package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	// EnvPrefix namespaces every environment variable the service reads.
	EnvPrefix = "FEASTLY"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Stripe       StripeConfig
	MoMo         MoMoConfig
	ZaloPay      ZaloPayConfig
	FreeTier     FreeTierConfig
	PlanCache    PlanCacheConfig
	Cron         CronConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"FEASTLY_APP_ENV" required:"true"`
	Port         string `envconfig:"FEASTLY_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"FEASTLY_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"FEASTLY_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"FEASTLY_DB_DSN"`
	Driver string `envconfig:"FEASTLY_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"FEASTLY_DB_HOST"`
	Port     int    `envconfig:"FEASTLY_DB_PORT" default:"5432"`
	User     string `envconfig:"FEASTLY_DB_USER"`
	Password string `envconfig:"FEASTLY_DB_PASSWORD"`
	Name     string `envconfig:"FEASTLY_DB_NAME"`
	SSLMode  string `envconfig:"FEASTLY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"FEASTLY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FEASTLY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FEASTLY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FEASTLY_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

func (d *DBConfig) ensureDSN() error {
	if strings.TrimSpace(d.DSN) != "" {
		return nil
	}
	if d.Host == "" || d.User == "" || d.Name == "" {
		return fmt.Errorf("either FEASTLY_DB_DSN or host/user/name parts are required")
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.Name,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	d.DSN = u.String()
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"FEASTLY_REDIS_URL"`
	Address      string        `envconfig:"FEASTLY_REDIS_ADDR"`
	Password     string        `envconfig:"FEASTLY_REDIS_PASSWORD"`
	DB           int           `envconfig:"FEASTLY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FEASTLY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FEASTLY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FEASTLY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FEASTLY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FEASTLY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"FEASTLY_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"FEASTLY_JWT_ISSUER" default:"feastly"`
	ExpirationMinutes int    `envconfig:"FEASTLY_JWT_EXPIRATION_MINUTES" default:"60"`
}

type StripeConfig struct {
	SecretKey     string `envconfig:"FEASTLY_STRIPE_SECRET_KEY"`
	WebhookSecret string `envconfig:"FEASTLY_STRIPE_WEBHOOK_SECRET"`
}

type MoMoConfig struct {
	PartnerCode string `envconfig:"FEASTLY_MOMO_PARTNER_CODE"`
	AccessKey   string `envconfig:"FEASTLY_MOMO_ACCESS_KEY"`
	SecretKey   string `envconfig:"FEASTLY_MOMO_SECRET_KEY"`
	Endpoint    string `envconfig:"FEASTLY_MOMO_ENDPOINT" default:"https://payment.momo.vn"`
}

type ZaloPayConfig struct {
	AppID    string `envconfig:"FEASTLY_ZALOPAY_APP_ID"`
	Key1     string `envconfig:"FEASTLY_ZALOPAY_KEY1"`
	Key2     string `envconfig:"FEASTLY_ZALOPAY_KEY2"`
	Endpoint string `envconfig:"FEASTLY_ZALOPAY_ENDPOINT" default:"https://openapi.zalopay.vn"`
}

// FreeTierConfig holds the hardcoded ceilings applied to users without a
// subscription. The ledger reports them as already exhausted.
type FreeTierConfig struct {
	RecipeGenerations int `envconfig:"FEASTLY_FREE_RECIPE_GENERATIONS" default:"5"`
	VideoGenerations  int `envconfig:"FEASTLY_FREE_VIDEO_GENERATIONS" default:"1"`
	CommunityPosts    int `envconfig:"FEASTLY_FREE_COMMUNITY_POSTS" default:"3"`
	CommunityComments int `envconfig:"FEASTLY_FREE_COMMUNITY_COMMENTS" default:"10"`
}

type PlanCacheConfig struct {
	TTL time.Duration `envconfig:"FEASTLY_PLAN_CACHE_TTL" default:"1h"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"FEASTLY_CRON_INTERVAL" default:"1h"`
	LockTTL  time.Duration `envconfig:"FEASTLY_CRON_LOCK_TTL" default:"55m"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"FEASTLY_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"FEASTLY_AUTO_MIGRATE" default:"false"`
}
