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
	JoinCode      JoinCodeConfig
	JoinRateLimit JoinRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Eventing      EventingConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	BigQuery      BigQueryConfig
	Outbox        OutboxConfig
	Proximity     ProximityConfig
	Realtime      RealtimeConfig
	Reconcile     ReconcileConfig
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
	Env          string `envconfig:"HOPROUND_APP_ENV" required:"true"`
	Port         string `envconfig:"HOPROUND_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"HOPROUND_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"HOPROUND_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"HOPROUND_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"HOPROUND_DB_DSN"`
	Driver string `envconfig:"HOPROUND_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"HOPROUND_DB_HOST"`
	LegacyPort     int    `envconfig:"HOPROUND_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"HOPROUND_DB_USER"`
	LegacyPassword string `envconfig:"HOPROUND_DB_PASSWORD"`
	LegacyName     string `envconfig:"HOPROUND_DB_NAME"`
	LegacySSLMode  string `envconfig:"HOPROUND_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"HOPROUND_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"HOPROUND_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"HOPROUND_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"HOPROUND_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"HOPROUND_REDIS_URL" required:"true"`
	Address      string        `envconfig:"HOPROUND_REDIS_ADDR"`
	Password     string        `envconfig:"HOPROUND_REDIS_PASSWORD"`
	DB           int           `envconfig:"HOPROUND_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"HOPROUND_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"HOPROUND_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"HOPROUND_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"HOPROUND_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"HOPROUND_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"HOPROUND_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"HOPROUND_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"HOPROUND_JWT_EXPIRATION_MINUTES" default:"720"`
}

type JoinCodeConfig struct {
	ArgonMemoryKB    int `envconfig:"HOPROUND_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"HOPROUND_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"HOPROUND_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"HOPROUND_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"HOPROUND_ARGON_KEY_LEN" default:"32"`
}

type JoinRateLimitConfig struct {
	Window   time.Duration `envconfig:"HOPROUND_JOIN_RATE_LIMIT_WINDOW" default:"1m"`
	IPLimit  int           `envconfig:"HOPROUND_JOIN_RATE_LIMIT_IP_LIMIT" default:"20"`
	PerRoute int           `envconfig:"HOPROUND_JOIN_RATE_LIMIT_ROUTE_LIMIT" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"HOPROUND_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"HOPROUND_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"HOPROUND_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"HOPROUND_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"HOPROUND_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"HOPROUND_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	RouteEventsTopic      string `envconfig:"HOPROUND_PUBSUB_ROUTE_EVENTS_TOPIC" required:"true"`
	RealtimeSubscription  string `envconfig:"HOPROUND_PUBSUB_REALTIME_SUBSCRIPTION" required:"true"`
	AnalyticsSubscription string `envconfig:"HOPROUND_PUBSUB_ANALYTICS_SUBSCRIPTION" required:"true"`
}

type BigQueryConfig struct {
	Dataset          string `envconfig:"HOPROUND_BIGQUERY_DATASET" default:"hopround"`
	CrawlEventsTable string `envconfig:"HOPROUND_BIGQUERY_CRAWL_EVENTS_TABLE" default:"crawl_events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"HOPROUND_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"HOPROUND_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"HOPROUND_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type ProximityConfig struct {
	AccuracyThresholdM float64       `envconfig:"HOPROUND_PROXIMITY_ACCURACY_THRESHOLD_M" default:"150"`
	ProximityRadiusM   float64       `envconfig:"HOPROUND_PROXIMITY_RADIUS_M" default:"100"`
	CheckInRadiusM     float64       `envconfig:"HOPROUND_PROXIMITY_CHECKIN_RADIUS_M" default:"30"`
	Cooldown           time.Duration `envconfig:"HOPROUND_PROXIMITY_COOLDOWN" default:"60s"`
}

type RealtimeConfig struct {
	SnapshotMessages  int           `envconfig:"HOPROUND_REALTIME_SNAPSHOT_MESSAGES" default:"50"`
	ClientSendBuffer  int           `envconfig:"HOPROUND_REALTIME_CLIENT_SEND_BUFFER" default:"64"`
	ReconnectBaseWait time.Duration `envconfig:"HOPROUND_REALTIME_RECONNECT_BASE_WAIT" default:"500ms"`
	ReconnectMaxWait  time.Duration `envconfig:"HOPROUND_REALTIME_RECONNECT_MAX_WAIT" default:"30s"`
}

type ReconcileConfig struct {
	Interval time.Duration `envconfig:"HOPROUND_RECONCILE_INTERVAL" default:"5m"`
	LockTTL  time.Duration `envconfig:"HOPROUND_RECONCILE_LOCK_TTL" default:"4m"`
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
