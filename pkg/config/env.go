package config

const EnvPrefix = "HRCORE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"

	OutboxChannelLog     = "log"
	OutboxChannelPubSub  = "pubsub"
	OutboxChannelKafka   = "kafka"
	OutboxChannelWebhook = "webhook"
)

const (
	EnvAppEnv   = "HRCORE_APP_ENV"
	EnvPort     = "HRCORE_APP_PORT"
	EnvLogLevel = "HRCORE_LOG_LEVEL"

	EnvDBDSN    = "HRCORE_DB_DSN"
	EnvDBDriver = "HRCORE_DB_DRIVER"
	EnvDBHost   = "HRCORE_DB_HOST"
	EnvDBUser   = "HRCORE_DB_USER"
	EnvDBName   = "HRCORE_DB_NAME"

	EnvRedisURL = "HRCORE_REDIS_URL"

	EnvJWTSecret = "HRCORE_JWT_SECRET"

	EnvOutboxBatchSize         = "HRCORE_OUTBOX_BATCH_SIZE"
	EnvOutboxPollMS            = "HRCORE_OUTBOX_POLL_MS"
	EnvOutboxMaxAttempts       = "HRCORE_OUTBOX_MAX_ATTEMPTS"
	EnvOutboxDeliveryTimeout   = "HRCORE_OUTBOX_DELIVERY_TIMEOUT"
	EnvOutboxChannel           = "HRCORE_OUTBOX_CHANNEL"
	EnvOutboxBackoffMultiplier = "HRCORE_OUTBOX_BACKOFF_MULTIPLIER"
	EnvOutboxBackoffJitter     = "HRCORE_OUTBOX_BACKOFF_JITTER"

	EnvKafkaBrokers = "HRCORE_KAFKA_BROKERS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
