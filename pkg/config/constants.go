package config

// EnvPrefix is empty because every tag already carries the full variable name.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	EventBusPubSub = "pubsub"
	EventBusKafka  = "kafka"
	EventBusAMQP   = "amqp"
)

const (
	EnvAppEnv   = "VENDCARE_APP_ENV"
	EnvPort     = "VENDCARE_APP_PORT"
	EnvLogLevel = "VENDCARE_LOG_LEVEL"

	EnvDBDSN  = "VENDCARE_DB_DSN"
	EnvDBHost = "VENDCARE_DB_HOST"
	EnvDBUser = "VENDCARE_DB_USER"
	EnvDBName = "VENDCARE_DB_NAME"

	EnvUseSQLite = "VENDCARE_USE_SQLITE"

	EnvRedisURL = "VENDCARE_REDIS_URL"

	EnvJWTSecret  = "VENDCARE_JWT_SECRET"
	EnvJWTIssuer  = "VENDCARE_JWT_ISSUER"
	EnvJWTExpMins = "VENDCARE_JWT_EXPIRATION_MINUTES"

	EnvGatewayBaseURL = "VENDCARE_GATEWAY_BASE_URL"
	EnvGatewayToken   = "VENDCARE_GATEWAY_TOKEN"

	EnvDispensingCodeTTL = "VENDCARE_DISPENSING_CODE_TTL"
	EnvGatewayExpiry     = "VENDCARE_GATEWAY_EXPIRE_AFTER"

	EnvEventBusDriver = "VENDCARE_EVENTBUS_DRIVER"
	EnvKafkaBrokers   = "VENDCARE_KAFKA_BROKERS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
