package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Kafka        KafkaConfig
	Webhook      WebhookConfig
	BigQuery     BigQueryConfig
	Outbox       OutboxConfig
	Cron         CronConfig
	Metrics      MetricsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Outbox.validate(); err != nil {
		return nil, err
	}
	if cfg.App.IsProd() && !cfg.JWT.Enabled() {
		return nil, fmt.Errorf("%s_JWT_SECRET is required in prod", EnvPrefix)
	}
	return &cfg, nil
}

// LoadJWT reads only the token settings, for tools that never touch the
// database.
func LoadJWT() (JWTConfig, error) {
	var cfg JWTConfig
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return JWTConfig{}, fmt.Errorf("parsing jwt config: %w", err)
	}
	return cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"HRCORE_APP_ENV" required:"true"`
	Port         string `envconfig:"HRCORE_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"HRCORE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"HRCORE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"HRCORE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"HRCORE_DB_DSN"`
	Driver string `envconfig:"HRCORE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"HRCORE_DB_HOST"`
	LegacyPort     int    `envconfig:"HRCORE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"HRCORE_DB_USER"`
	LegacyPassword string `envconfig:"HRCORE_DB_PASSWORD"`
	LegacyName     string `envconfig:"HRCORE_DB_NAME"`
	LegacySSLMode  string `envconfig:"HRCORE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"HRCORE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"HRCORE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"HRCORE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"HRCORE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the sqlite driver is selected.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"HRCORE_REDIS_URL"`
	Address      string        `envconfig:"HRCORE_REDIS_ADDR"`
	Password     string        `envconfig:"HRCORE_REDIS_PASSWORD"`
	DB           int           `envconfig:"HRCORE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"HRCORE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"HRCORE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"HRCORE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"HRCORE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"HRCORE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether any redis endpoint is configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type JWTConfig struct {
	Secret            string `envconfig:"HRCORE_JWT_SECRET"`
	Issuer            string `envconfig:"HRCORE_JWT_ISSUER" default:"hrcore"`
	ExpirationMinutes int    `envconfig:"HRCORE_JWT_EXPIRATION_MINUTES" default:"60"`
}

// Enabled reports whether bearer auth should guard the ops routes.
func (j JWTConfig) Enabled() bool {
	return strings.TrimSpace(j.Secret) != ""
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"HRCORE_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"HRCORE_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"HRCORE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"HRCORE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	DefaultTopic    string `envconfig:"HRCORE_PUBSUB_DEFAULT_TOPIC" default:"hrcore-domain-events"`
	EmployeeTopic   string `envconfig:"HRCORE_PUBSUB_EMPLOYEE_TOPIC"`
	DepartmentTopic string `envconfig:"HRCORE_PUBSUB_DEPARTMENT_TOPIC"`
	PositionTopic   string `envconfig:"HRCORE_PUBSUB_POSITION_TOPIC"`
}

type KafkaConfig struct {
	Brokers      []string      `envconfig:"HRCORE_KAFKA_BROKERS"`
	Topic        string        `envconfig:"HRCORE_KAFKA_TOPIC" default:"hrcore.domain-events"`
	WriteTimeout time.Duration `envconfig:"HRCORE_KAFKA_WRITE_TIMEOUT" default:"10s"`
}

type WebhookConfig struct {
	URL          string `envconfig:"HRCORE_WEBHOOK_URL"`
	SecretHeader string `envconfig:"HRCORE_WEBHOOK_SECRET_HEADER" default:"X-Hrcore-Token"`
	Secret       string `envconfig:"HRCORE_WEBHOOK_SECRET"`
}

type BigQueryConfig struct {
	Dataset      string `envconfig:"HRCORE_BIGQUERY_DATASET" default:"hrcore"`
	ArchiveTable string `envconfig:"HRCORE_BIGQUERY_ARCHIVE_TABLE" default:"outbox_archive"`
	CreateTable  bool   `envconfig:"HRCORE_BIGQUERY_CREATE_TABLE" default:"true"`
}

type OutboxConfig struct {
	BatchSize         int           `envconfig:"HRCORE_OUTBOX_BATCH_SIZE" default:"50"`
	PollIntervalMS    int           `envconfig:"HRCORE_OUTBOX_POLL_MS" default:"500"`
	MaxAttempts       int           `envconfig:"HRCORE_OUTBOX_MAX_ATTEMPTS" default:"10"`
	DeliveryTimeout   time.Duration `envconfig:"HRCORE_OUTBOX_DELIVERY_TIMEOUT" default:"15s"`
	BackoffBase       time.Duration `envconfig:"HRCORE_OUTBOX_BACKOFF_BASE" default:"1s"`
	BackoffMax        time.Duration `envconfig:"HRCORE_OUTBOX_BACKOFF_MAX" default:"10m"`
	BackoffMultiplier float64       `envconfig:"HRCORE_OUTBOX_BACKOFF_MULTIPLIER" default:"2"`
	BackoffJitter     float64       `envconfig:"HRCORE_OUTBOX_BACKOFF_JITTER" default:"0"`
	ClaimLease        time.Duration `envconfig:"HRCORE_OUTBOX_CLAIM_LEASE" default:"2m"`
	Workers           int           `envconfig:"HRCORE_OUTBOX_WORKERS" default:"1"`
	Channel           string        `envconfig:"HRCORE_OUTBOX_CHANNEL" default:"log"`
	WakeChannel       string        `envconfig:"HRCORE_OUTBOX_WAKE_CHANNEL" default:"hrcore:outbox:wake"`
	IdempotencyTTL    time.Duration `envconfig:"HRCORE_OUTBOX_IDEMPOTENCY_TTL" default:"720h"`
	BreakerThreshold  int           `envconfig:"HRCORE_OUTBOX_BREAKER_THRESHOLD" default:"5"`
	BreakerCooldown   time.Duration `envconfig:"HRCORE_OUTBOX_BREAKER_COOLDOWN" default:"30s"`
	RetentionDays     int           `envconfig:"HRCORE_OUTBOX_RETENTION_DAYS" default:"30"`
}

// PollInterval converts the millisecond knob into a duration.
func (o OutboxConfig) PollInterval() time.Duration {
	if o.PollIntervalMS <= 0 {
		return 0
	}
	return time.Duration(o.PollIntervalMS) * time.Millisecond
}

func (o OutboxConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(o.Channel)) {
	case "", OutboxChannelLog, OutboxChannelPubSub, OutboxChannelKafka, OutboxChannelWebhook:
	default:
		return fmt.Errorf("%s must be one of log, pubsub, kafka, webhook; got %q", EnvOutboxChannel, o.Channel)
	}
	if o.BackoffMultiplier != 0 && o.BackoffMultiplier < 1 {
		return fmt.Errorf("%s must be >= 1", EnvOutboxBackoffMultiplier)
	}
	if o.BackoffJitter < 0 || o.BackoffJitter > 1 {
		return fmt.Errorf("%s must be within [0, 1]", EnvOutboxBackoffJitter)
	}
	return nil
}

type CronConfig struct {
	Interval time.Duration `envconfig:"HRCORE_CRON_INTERVAL" default:"1h"`
	LockTTL  time.Duration `envconfig:"HRCORE_CRON_LOCK_TTL" default:"55m"`
}

type MetricsConfig struct {
	Addr string `envconfig:"HRCORE_METRICS_ADDR" default:":9090"`
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
