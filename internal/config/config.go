package config

import (
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Admin    AdminConfig
	Remote   RemoteConfig
	Deploy   DeployConfig
	FS       FSConfig
	Sync     SyncConfig
	Catalog  CatalogConfig
	Media    MediaConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port           string
	Env            string
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	Schema   string
}

type RedisConfig struct {
	Host      string
	Port      string
	Password  string
	DB        int
	KeyPrefix string
	// SessionTTL bounds the lifetime of secondary copies and backups.
	SessionTTL time.Duration
}

type JWTConfig struct {
	Secret       string
	AccessExpiry int // in minutes
}

type AdminConfig struct {
	Username     string
	PasswordHash string
}

// RemoteConfig selects the hosted database backend: postgres, mongo or memory.
type RemoteConfig struct {
	Driver        string
	MongoURI      string
	MongoDatabase string
}

type DeployConfig struct {
	WebhookURL string
	FSAPIURL   string
	DataDir    string
	Timeout    time.Duration
}

type FSConfig struct {
	Enabled bool
	Root    string
}

type SyncConfig struct {
	PollInterval    time.Duration
	StartupDelay    time.Duration
	Debounce        time.Duration
	TriggerThrottle time.Duration
	LockTTL         time.Duration
}

type CatalogConfig struct {
	Categories []string
}

type MediaConfig struct {
	CloudinaryURL string
	Folder        string
}

type LogConfig struct {
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

func Load() *Config {
	// Preload .env into the process environment so libraries reading os.Getenv see it too
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: no .env file loaded: %v", err)
	}

	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("SERVER_ENV", "development")
	viper.SetDefault("SERVER_ALLOWED_ORIGINS", "http://localhost:3000")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_SCHEMA", "public")
	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("REDIS_KEY_PREFIX", "storefront")
	viper.SetDefault("REDIS_SESSION_TTL", "24h")
	viper.SetDefault("JWT_ACCESS_EXPIRY", 60)
	viper.SetDefault("ADMIN_USERNAME", "admin")
	viper.SetDefault("REMOTE_DRIVER", "postgres")
	viper.SetDefault("MONGO_DATABASE", "storefront")
	viper.SetDefault("DEPLOY_DATA_DIR", "src/data")
	viper.SetDefault("DEPLOY_TIMEOUT", "30s")
	viper.SetDefault("FS_API_ROOT", ".")
	viper.SetDefault("SYNC_POLL_INTERVAL", "2m")
	viper.SetDefault("SYNC_STARTUP_DELAY", "3s")
	viper.SetDefault("SYNC_DEBOUNCE", "1s")
	viper.SetDefault("SYNC_TRIGGER_THROTTLE", "5s")
	viper.SetDefault("SYNC_LOCK_TTL", "2m")
	viper.SetDefault("CATALOG_CATEGORIES", "engines,transmissions,brakes,suspension,electrical,accessories")
	viper.SetDefault("MEDIA_FOLDER", "storefront")
	viper.SetDefault("LOG_MAX_SIZE_MB", 50)
	viper.SetDefault("LOG_MAX_BACKUPS", 3)
	viper.SetDefault("LOG_MAX_AGE_DAYS", 14)

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Warning: Could not read config file: %v", err)
	}

	return &Config{
		Server: ServerConfig{
			Port:           viper.GetString("SERVER_PORT"),
			Env:            viper.GetString("SERVER_ENV"),
			AllowedOrigins: splitList(viper.GetString("SERVER_ALLOWED_ORIGINS")),
		},
		Database: DatabaseConfig{
			Host:     viper.GetString("DB_HOST"),
			Port:     viper.GetString("DB_PORT"),
			User:     viper.GetString("DB_USER"),
			Password: viper.GetString("DB_PASSWORD"),
			Database: viper.GetString("DB_DATABASE"),
			Schema:   viper.GetString("DB_SCHEMA"),
		},
		Redis: RedisConfig{
			Host:       viper.GetString("REDIS_HOST"),
			Port:       viper.GetString("REDIS_PORT"),
			Password:   viper.GetString("REDIS_PASSWORD"),
			DB:         viper.GetInt("REDIS_DB"),
			KeyPrefix:  viper.GetString("REDIS_KEY_PREFIX"),
			SessionTTL: viper.GetDuration("REDIS_SESSION_TTL"),
		},
		JWT: JWTConfig{
			Secret:       viper.GetString("JWT_SECRET"),
			AccessExpiry: viper.GetInt("JWT_ACCESS_EXPIRY"),
		},
		Admin: AdminConfig{
			Username:     viper.GetString("ADMIN_USERNAME"),
			PasswordHash: viper.GetString("ADMIN_PASSWORD_HASH"),
		},
		Remote: RemoteConfig{
			Driver:        strings.ToLower(viper.GetString("REMOTE_DRIVER")),
			MongoURI:      viper.GetString("MONGO_URI"),
			MongoDatabase: viper.GetString("MONGO_DATABASE"),
		},
		Deploy: DeployConfig{
			WebhookURL: viper.GetString("DEPLOY_WEBHOOK_URL"),
			FSAPIURL:   viper.GetString("DEPLOY_FS_API_URL"),
			DataDir:    viper.GetString("DEPLOY_DATA_DIR"),
			Timeout:    viper.GetDuration("DEPLOY_TIMEOUT"),
		},
		FS: FSConfig{
			Enabled: viper.GetBool("FS_API_ENABLED"),
			Root:    viper.GetString("FS_API_ROOT"),
		},
		Sync: SyncConfig{
			PollInterval:    viper.GetDuration("SYNC_POLL_INTERVAL"),
			StartupDelay:    viper.GetDuration("SYNC_STARTUP_DELAY"),
			Debounce:        viper.GetDuration("SYNC_DEBOUNCE"),
			TriggerThrottle: viper.GetDuration("SYNC_TRIGGER_THROTTLE"),
			LockTTL:         viper.GetDuration("SYNC_LOCK_TTL"),
		},
		Catalog: CatalogConfig{
			Categories: splitList(viper.GetString("CATALOG_CATEGORIES")),
		},
		Media: MediaConfig{
			CloudinaryURL: viper.GetString("CLOUDINARY_URL"),
			Folder:        viper.GetString("MEDIA_FOLDER"),
		},
		Log: LogConfig{
			File:       viper.GetString("LOG_FILE"),
			MaxSizeMB:  viper.GetInt("LOG_MAX_SIZE_MB"),
			MaxBackups: viper.GetInt("LOG_MAX_BACKUPS"),
			MaxAgeDays: viper.GetInt("LOG_MAX_AGE_DAYS"),
		},
	}
}

// IsDevelopment reports whether the server runs outside production
func (c *Config) IsDevelopment() bool {
	return c.Server.Env != "production"
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
