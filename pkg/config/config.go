package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "TIERLINK_DB_DSN"
	EnvDBHost = "TIERLINK_DB_HOST"
	EnvDBUser = "TIERLINK_DB_USER"
	EnvDBName = "TIERLINK_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	Admin        AdminConfig
	RateLimit    RateLimitConfig
	FeatureFlags FeatureFlagsConfig
	Cron         CronConfig
	Referral     ReferralConfig
	WooCommerce  WooCommerceConfig
	Tipalti      TipaltiConfig
	Mailer       MailerConfig
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
	Env          string   `envconfig:"TIERLINK_APP_ENV" required:"true"`
	Port         string   `envconfig:"TIERLINK_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"TIERLINK_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"TIERLINK_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"TIERLINK_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"TIERLINK_DB_DSN"`
	Driver string `envconfig:"TIERLINK_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"TIERLINK_DB_HOST"`
	LegacyPort     int    `envconfig:"TIERLINK_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"TIERLINK_DB_USER"`
	LegacyPassword string `envconfig:"TIERLINK_DB_PASSWORD"`
	LegacyName     string `envconfig:"TIERLINK_DB_NAME"`
	LegacySSLMode  string `envconfig:"TIERLINK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TIERLINK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TIERLINK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TIERLINK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TIERLINK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"TIERLINK_REDIS_URL" required:"true"`
	Address      string        `envconfig:"TIERLINK_REDIS_ADDR"`
	Password     string        `envconfig:"TIERLINK_REDIS_PASSWORD"`
	DB           int           `envconfig:"TIERLINK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TIERLINK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TIERLINK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TIERLINK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TIERLINK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TIERLINK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// AdminConfig carries the shared secret used to verify bearer tokens minted by
// the identity provider, plus the bootstrap allowlist used until an
// admin_emails setting exists.
type AdminConfig struct {
	JWTSecret       string `envconfig:"TIERLINK_ADMIN_JWT_SECRET" required:"true"`
	JWTIssuer       string `envconfig:"TIERLINK_ADMIN_JWT_ISSUER"`
	BootstrapEmails string `envconfig:"TIERLINK_ADMIN_EMAILS"`
	CronToken       string `envconfig:"TIERLINK_CRON_TOKEN"`
}

// BootstrapEmailList splits the comma-separated bootstrap allowlist.
func (a AdminConfig) BootstrapEmailList() []string {
	if strings.TrimSpace(a.BootstrapEmails) == "" {
		return nil
	}
	parts := strings.Split(a.BootstrapEmails, ",")
	emails := make([]string, 0, len(parts))
	for _, part := range parts {
		email := strings.ToLower(strings.TrimSpace(part))
		if email != "" {
			emails = append(emails, email)
		}
	}
	return emails
}

type RateLimitConfig struct {
	ApplyWindow     time.Duration `envconfig:"TIERLINK_RATE_LIMIT_APPLY_WINDOW" default:"5m"`
	ApplyIPLimit    int           `envconfig:"TIERLINK_RATE_LIMIT_APPLY_IP_LIMIT" default:"10"`
	ApplyEmailLimit int           `envconfig:"TIERLINK_RATE_LIMIT_APPLY_EMAIL_LIMIT" default:"3"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"TIERLINK_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"TIERLINK_AUTO_MIGRATE" default:"false"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"TIERLINK_CRON_INTERVAL" default:"1h"`
	LockTTL  time.Duration `envconfig:"TIERLINK_CRON_LOCK_TTL" default:"2h"`
}

type ReferralConfig struct {
	StorefrontURL string `envconfig:"TIERLINK_STOREFRONT_URL" required:"true"`
	CookieName    string `envconfig:"TIERLINK_REFERRAL_COOKIE_NAME" default:"ref"`
	CookieDays    int    `envconfig:"TIERLINK_REFERRAL_COOKIE_DAYS" default:"30"`
}

type WooCommerceConfig struct {
	BaseURL        string `envconfig:"TIERLINK_WOOCOMMERCE_BASE_URL"`
	ConsumerKey    string `envconfig:"TIERLINK_WOOCOMMERCE_CONSUMER_KEY"`
	ConsumerSecret string `envconfig:"TIERLINK_WOOCOMMERCE_CONSUMER_SECRET"`
	WebhookSecret  string `envconfig:"TIERLINK_WOOCOMMERCE_WEBHOOK_SECRET"`
}

type TipaltiConfig struct {
	BaseURL   string `envconfig:"TIERLINK_TIPALTI_BASE_URL" default:"https://api.tipalti.com"`
	PayerName string `envconfig:"TIERLINK_TIPALTI_PAYER_NAME"`
	MasterKey string `envconfig:"TIERLINK_TIPALTI_MASTER_KEY"`
}

type MailerConfig struct {
	APIKey      string `envconfig:"TIERLINK_MAILER_API_KEY"`
	BaseURL     string `envconfig:"TIERLINK_MAILER_BASE_URL" default:"https://api.sendgrid.com"`
	DefaultFrom string `envconfig:"TIERLINK_MAILER_FROM_EMAIL"`
	AdminEmail  string `envconfig:"TIERLINK_MAILER_ADMIN_EMAIL"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
