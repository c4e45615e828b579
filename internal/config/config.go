package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	TenantDB    TenantDBConfig
	Storage     StorageConfig
	Platform    PlatformConfig
	App         AppConfig
	Maintenance MaintenanceConfig
	Redis       RedisConfig
	Metrics     MetricsConfig
	Auth        AuthConfig
}

type ServerConfig struct {
	Port string
	Mode string
}

// DatabaseConfig is the control plane's own database.
type DatabaseConfig struct {
	URL            string
	MaxConnections int
	MaxIdleConns   int
}

// TenantDBConfig describes the shared relational engine that tenant
// databases are provisioned on. AdminURL must carry CREATEDB/CREATEROLE.
type TenantDBConfig struct {
	AdminURL string
	Host     string
	Port     int
}

type StorageConfig struct {
	RootPath string
}

type PlatformConfig struct {
	Endpoint       string
	Network        string
	LabelPrefix    string
	RequestTimeout time.Duration
	RateLimit      float64
	RateBurst      int
}

type AppConfig struct {
	Image           string
	DomainSuffix    string
	ResolverAddress string
	RestartDelay    time.Duration
	DefaultReplicas int
	MaxSitesPerUser int
}

type MaintenanceConfig struct {
	TickInterval   time.Duration
	HealthInterval time.Duration
	HealthTimeout  time.Duration
}

type RedisConfig struct {
	URL         string
	SnapshotTTL time.Duration
}

type MetricsConfig struct {
	RemoteWriteURL string
	TenantHeader   string
	BatchSize      int
	FlushInterval  time.Duration
	AuthToken      string
}

type AuthConfig struct {
	JWTSecret string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.SetEnvPrefix("SITEHARBOR")
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "release")
	viper.SetDefault("database.maxconnections", 25)
	viper.SetDefault("database.maxidleconns", 5)
	viper.SetDefault("tenantdb.host", "localhost")
	viper.SetDefault("tenantdb.port", 5432)
	viper.SetDefault("storage.rootpath", "/var/lib/siteharbor/sites")
	viper.SetDefault("platform.endpoint", "http://localhost:2375")
	viper.SetDefault("platform.network", "siteharbor-overlay")
	viper.SetDefault("platform.labelprefix", "siteharbor")
	viper.SetDefault("platform.requesttimeout", "30s")
	viper.SetDefault("platform.ratelimit", 10.0)
	viper.SetDefault("platform.rateburst", 20)
	viper.SetDefault("app.restartdelay", "5s")
	viper.SetDefault("app.defaultreplicas", 1)
	viper.SetDefault("app.maxsitesperuser", 1)
	viper.SetDefault("maintenance.tickinterval", "60s")
	viper.SetDefault("maintenance.healthinterval", "5s")
	viper.SetDefault("maintenance.healthtimeout", "120s")
	viper.SetDefault("redis.snapshotttl", "30s")
	viper.SetDefault("metrics.tenantheader", "X-Scope-OrgID")
	viper.SetDefault("metrics.batchsize", 1000)
	viper.SetDefault("metrics.flushinterval", "10s")

	var cfg Config
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Override with environment variables
	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.Database.URL = url
	}
	if url := os.Getenv("TENANT_DB_ADMIN_URL"); url != "" {
		cfg.TenantDB.AdminURL = url
	}
	if endpoint := os.Getenv("PLATFORM_ENDPOINT"); endpoint != "" {
		cfg.Platform.Endpoint = endpoint
	}
	if url := os.Getenv("REDIS_URL"); url != "" {
		cfg.Redis.URL = url
	}
	if url := os.Getenv("REMOTE_WRITE_URL"); url != "" {
		cfg.Metrics.RemoteWriteURL = url
	}
	if token := os.Getenv("REMOTE_WRITE_AUTH_TOKEN"); token != "" {
		cfg.Metrics.AuthToken = token
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}

	return &cfg, nil
}
