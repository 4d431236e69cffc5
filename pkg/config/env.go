package config

// EnvPrefix is handed to envconfig; the explicit tags below already carry it.
const EnvPrefix = "MESA"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv                 = "MESA_APP_ENV"
	EnvPort                   = "MESA_APP_PORT"
	EnvDBDSN                  = "MESA_DB_DSN"
	EnvDBHost                 = "MESA_DB_HOST"
	EnvDBUser                 = "MESA_DB_USER"
	EnvDBName                 = "MESA_DB_NAME"
	EnvRedisURL               = "MESA_REDIS_URL"
	EnvJWTSecret              = "MESA_JWT_SECRET"
	EnvJWTIssuer              = "MESA_JWT_ISSUER"
	EnvJWTExpMins             = "MESA_JWT_EXPIRATION_MINUTES"
	EnvRefreshTokenTTLMinutes = "MESA_REFRESH_TOKEN_TTL_MINUTES"
	EnvGCPProjectID           = "MESA_GCP_PROJECT_ID"
	EnvPubSubOrdersTopic      = "MESA_PUBSUB_ORDERS_TOPIC"
	EnvPubSubBookingsTopic    = "MESA_PUBSUB_BOOKINGS_TOPIC"
	EnvCartTTL                = "MESA_CART_TTL"
	EnvBookingSlotMinutes     = "MESA_BOOKING_SLOT_MINUTES"
	EnvOrdersPendingExpiry    = "MESA_ORDERS_PENDING_EXPIRY"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
