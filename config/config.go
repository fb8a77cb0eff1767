package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration values.
type Config struct {
	AppPort           string `mapstructure:"APP_PORT"`
	Env               string `mapstructure:"ENV"`
	LogLevel          string `mapstructure:"LOG_LEVEL"`
	MaxRequestsPerMin int    `mapstructure:"MAX_REQUESTS_PER_MIN"`

	// TrustedProxies lists the peers whose X-Forwarded-For is believed.
	// Empty means the socket address is the client address.
	TrustedProxies []string `mapstructure:"TRUSTED_PROXIES"`

	// MongoDB.
	DatabaseURL  string `mapstructure:"DATABASE_URL"`
	DatabaseName string `mapstructure:"DATABASE_NAME"`

	// Redis configuration.
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisLocalDB  int    `mapstructure:"REDIS_LOCAL_DB"`
	RedisQueueDB  int    `mapstructure:"REDIS_QUEUE_DB"`

	// LocalStore selects where client-local state lives: "redis" or "memory".
	LocalStore string `mapstructure:"LOCAL_STORE"`

	// Client tokens.
	JWTSecret string `mapstructure:"JWT_SECRET"`

	// Session protocol.
	MaxDevices             int           `mapstructure:"MAX_DEVICES"`
	BcryptCost             int           `mapstructure:"BCRYPT_COST"`
	MissedSummaryThreshold int           `mapstructure:"MISSED_SUMMARY_THRESHOLD"`
	ShellIdleTimeout       time.Duration `mapstructure:"SHELL_IDLE_TIMEOUT"`
	BootstrapAdmin         string        `mapstructure:"BOOTSTRAP_ADMIN"`

	// Push delivery.
	PushEnabled         bool   `mapstructure:"PUSH_ENABLED"`
	FirebaseCredentials string `mapstructure:"FIREBASE_CREDENTIALS"`
}

var AppConfig Config

// SetDefaults registers a default for every key so env-only deployments work.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("APP_PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("MAX_REQUESTS_PER_MIN", 200)
	v.SetDefault("TRUSTED_PROXIES", []string{})
	v.SetDefault("DATABASE_URL", "mongodb://localhost:27017")
	v.SetDefault("DATABASE_NAME", "skylark")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_LOCAL_DB", 0)
	v.SetDefault("REDIS_QUEUE_DB", 1)
	v.SetDefault("LOCAL_STORE", "redis")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("MAX_DEVICES", 5)
	v.SetDefault("BCRYPT_COST", 10)
	v.SetDefault("MISSED_SUMMARY_THRESHOLD", 3)
	v.SetDefault("SHELL_IDLE_TIMEOUT", "30m")
	v.SetDefault("BOOTSTRAP_ADMIN", "")
	v.SetDefault("PUSH_ENABLED", false)
	v.SetDefault("FIREBASE_CREDENTIALS", "")
}

// Load reads config.yaml from the current and "config" directory, then
// overlays environment variables.
func Load(v *viper.Viper) (Config, error) {
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AutomaticEnv()
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Println("No config file found, using environment variables only")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func LoadConfig() {
	cfg, err := Load(viper.GetViper())
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	AppConfig = cfg
}

func GetEnv() string {
	return AppConfig.Env
}

func IsProduction() bool {
	return GetEnv() == "production"
}
