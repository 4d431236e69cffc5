package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Eventing      EventingConfig
	CORS          CORSConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	BigQuery      BigQueryConfig
	Outbox        OutboxConfig
	Cart          CartConfig
	Booking       BookingConfig
	Orders        OrdersConfig
	Cron          CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Booking.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"MESA_APP_ENV" required:"true"`
	Port         string `envconfig:"MESA_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"MESA_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MESA_LOG_WARN_STACK" default:"false"`

	RequestTimeout  time.Duration `envconfig:"MESA_HTTP_REQUEST_TIMEOUT" default:"15s"`
	ShutdownTimeout time.Duration `envconfig:"MESA_HTTP_SHUTDOWN_TIMEOUT" default:"20s"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"MESA_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"MESA_DB_DSN"`
	Driver string `envconfig:"MESA_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MESA_DB_HOST"`
	LegacyPort     int    `envconfig:"MESA_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MESA_DB_USER"`
	LegacyPassword string `envconfig:"MESA_DB_PASSWORD"`
	LegacyName     string `envconfig:"MESA_DB_NAME"`
	LegacySSLMode  string `envconfig:"MESA_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MESA_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MESA_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MESA_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MESA_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MESA_REDIS_URL" required:"true"`
	Address      string        `envconfig:"MESA_REDIS_ADDR"`
	Password     string        `envconfig:"MESA_REDIS_PASSWORD"`
	DB           int           `envconfig:"MESA_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MESA_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MESA_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MESA_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MESA_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MESA_REDIS_WRITE_TIMEOUT" default:"5s"`
	KeyPrefix    string        `envconfig:"MESA_REDIS_KEY_PREFIX" default:"mesa"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"MESA_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"MESA_JWT_ISSUER" required:"true"`
	ExpirationMinutes      int    `envconfig:"MESA_JWT_EXPIRATION_MINUTES" required:"true"`
	RefreshTokenTTLMinutes int    `envconfig:"MESA_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"MESA_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"MESA_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"MESA_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"MESA_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"MESA_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"MESA_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"MESA_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"MESA_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"MESA_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"MESA_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"MESA_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"MESA_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"MESA_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	IdempotencyTTL time.Duration `envconfig:"MESA_EVENTING_IDEMPOTENCY_TTL" default:"24h"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"MESA_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
	MaxAgeSeconds  int      `envconfig:"MESA_CORS_MAX_AGE" default:"300"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"MESA_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"MESA_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"MESA_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic   string `envconfig:"MESA_PUBSUB_ORDERS_TOPIC" default:"mesa-order-events"`
	BookingsTopic string `envconfig:"MESA_PUBSUB_BOOKINGS_TOPIC" default:"mesa-booking-events"`
	// Ordered publishes use the aggregate id as ordering key so a consumer sees
	// one order's status changes in sequence.
	Ordered bool `envconfig:"MESA_PUBSUB_ORDERED" default:"true"`
	// Analytics subscriptions hang off the two topics above; only the
	// analytics worker reads them.
	OrdersAnalyticsSubscription   string `envconfig:"MESA_PUBSUB_ORDERS_ANALYTICS_SUBSCRIPTION" default:"mesa-order-events-analytics"`
	BookingsAnalyticsSubscription string `envconfig:"MESA_PUBSUB_BOOKINGS_ANALYTICS_SUBSCRIPTION" default:"mesa-booking-events-analytics"`
}

type BigQueryConfig struct {
	Dataset            string `envconfig:"MESA_BIGQUERY_DATASET" default:"mesa_analytics"`
	OrderEventsTable   string `envconfig:"MESA_BIGQUERY_ORDER_EVENTS_TABLE" default:"order_events"`
	BookingEventsTable string `envconfig:"MESA_BIGQUERY_BOOKING_EVENTS_TABLE" default:"booking_events"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"MESA_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"MESA_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"MESA_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"MESA_OUTBOX_RETENTION" default:"720h"`
}

type CartConfig struct {
	TTL time.Duration `envconfig:"MESA_CART_TTL" default:"72h"`
}

type BookingConfig struct {
	SlotMinutes    int           `envconfig:"MESA_BOOKING_SLOT_MINUTES" default:"90"`
	MaxPartySize   int           `envconfig:"MESA_BOOKING_MAX_PARTY_SIZE" default:"12"`
	Window         time.Duration `envconfig:"MESA_BOOKING_WINDOW" default:"1440h"`
	MinLeadTime    time.Duration `envconfig:"MESA_BOOKING_MIN_LEAD_TIME" default:"30m"`
	NoShowGrace    time.Duration `envconfig:"MESA_BOOKING_NO_SHOW_GRACE" default:"20m"`
	SlotStepMinute int           `envconfig:"MESA_BOOKING_SLOT_STEP_MINUTES" default:"30"`
}

// SlotDuration is how long a table stays held by one booking.
func (b BookingConfig) SlotDuration() time.Duration {
	return time.Duration(b.SlotMinutes) * time.Minute
}

func (b BookingConfig) validate() error {
	if b.SlotMinutes <= 0 {
		return fmt.Errorf("%s must be positive", EnvBookingSlotMinutes)
	}
	if b.MaxPartySize <= 0 {
		return fmt.Errorf("booking max party size must be positive")
	}
	if b.SlotStepMinute <= 0 {
		return fmt.Errorf("booking slot step must be positive")
	}
	return nil
}

type OrdersConfig struct {
	PendingExpiry time.Duration `envconfig:"MESA_ORDERS_PENDING_EXPIRY" default:"2h"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"MESA_CRON_INTERVAL" default:"5m"`
	LockTTL  time.Duration `envconfig:"MESA_CRON_LOCK_TTL" default:"4m"`
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
