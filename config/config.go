package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort int
	Env        string
	AppURL     string
	AdminEmail string

	Database  DatabaseConfig
	Session   SessionConfig
	OAuth     OAuthConfig
	Activity  ActivityConfig
	RateLimit RateLimitConfig
	Events    EventsConfig
	Storage   StorageConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	UseSSL   bool
}

type SessionConfig struct {
	// JWTSecret signs session tokens. Required; the server refuses to
	// start without it.
	JWTSecret string
	// TTL is the lifetime of a session and its token.
	TTL time.Duration
	// CookieSecure marks the auth cookie Secure. Enabled when Env is
	// "production" unless overridden.
	CookieSecure bool
}

// ProviderConfig holds the OAuth client credentials for one provider.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
}

type OAuthConfig struct {
	// StateSecret keys the HMAC over the state payload that round-trips
	// through the provider redirect.
	StateSecret string
	GitHub      ProviderConfig
	Google      ProviderConfig
	Discord     ProviderConfig
}

// ActivityConfig configures the git-activity feed.
type ActivityConfig struct {
	Owner    string
	Repo     string
	Branch   string
	CacheTTL time.Duration
	// Token optionally authenticates GitHub API calls to raise the rate
	// limit. Anonymous access works but is capped at 60 req/hour.
	Token string
}

type RateLimitConfig struct {
	// RedisAddr enables redis-backed rate limiting of the credential
	// endpoints when non-empty.
	RedisAddr string
	PerMinute int
}

// EventsConfig selects the auth-event broker. Backend is one of
// "rabbitmq", "pubsub" or "" (disabled).
type EventsConfig struct {
	Backend string

	RabbitMQ RabbitMQConfig
	PubSub   PubSubConfig
}

type RabbitMQConfig struct {
	URL      string
	Exchange string
}

type PubSubConfig struct {
	ProjectID       string
	CredentialsFile string
	TopicPrefix     string
}

// StorageConfig selects the avatar object-storage backend. Backend is
// one of "minio", "gcs" or "" (disabled).
type StorageConfig struct {
	Backend string
	// PublicBaseURL prefixes stored object keys to form the avatar URL
	// written to the user record.
	PublicBaseURL string

	Minio MinioConfig
	GCS   GCSConfig
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type GCSConfig struct {
	Bucket          string
	ProjectID       string
	CredentialsFile string
}

func LoadConfig() Config {
	if os.Getenv("ENV") == "dev" {
		godotenv.Load()
	}

	return Config{
		ServerPort: getEnvInt("SERVER_PORT", 8080),
		Env:        getEnv("ENV", "dev"),
		AppURL:     getEnv("APP_URL", "http://localhost:8080"),
		AdminEmail: getEnv("ADMIN_EMAIL", ""),
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "agentplan"),
			Password: getEnv("DB_PASSWORD", "password"),
			DBName:   getEnv("DB_NAME", "agentplan_db"),
			UseSSL:   getEnvBool("DB_USE_SSL", false),
		},
		Session: SessionConfig{
			JWTSecret:    getEnv("JWT_SECRET", ""),
			TTL:          getEnvDuration("SESSION_TTL", 7*24*time.Hour),
			CookieSecure: getEnvBool("COOKIE_SECURE", os.Getenv("ENV") == "production"),
		},
		OAuth: OAuthConfig{
			StateSecret: getEnv("OAUTH_STATE_SECRET", ""),
			GitHub: ProviderConfig{
				ClientID:     getEnv("GITHUB_CLIENT_ID", ""),
				ClientSecret: getEnv("GITHUB_CLIENT_SECRET", ""),
			},
			Google: ProviderConfig{
				ClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
				ClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
			},
			Discord: ProviderConfig{
				ClientID:     getEnv("DISCORD_CLIENT_ID", ""),
				ClientSecret: getEnv("DISCORD_CLIENT_SECRET", ""),
			},
		},
		Activity: ActivityConfig{
			Owner:    getEnv("ACTIVITY_REPO_OWNER", "remcostoeten"),
			Repo:     getEnv("ACTIVITY_REPO_NAME", "tauri-nextjs-template"),
			Branch:   getEnv("ACTIVITY_BRANCH", "master"),
			CacheTTL: getEnvDuration("ACTIVITY_CACHE_TTL", 30*time.Minute),
			Token:    getEnv("ACTIVITY_GITHUB_TOKEN", ""),
		},
		RateLimit: RateLimitConfig{
			RedisAddr: getEnv("REDIS_ADDR", ""),
			PerMinute: getEnvInt("RATE_LIMIT_PER_MIN", 10),
		},
		Events: EventsConfig{
			Backend: getEnv("EVENTS_BACKEND", ""),
			RabbitMQ: RabbitMQConfig{
				URL:      getEnv("RABBITMQ_URL", ""),
				Exchange: getEnv("RABBITMQ_EXCHANGE", "auth.events"),
			},
			PubSub: PubSubConfig{
				ProjectID:       getEnv("PUBSUB_PROJECT_ID", ""),
				CredentialsFile: getEnv("PUBSUB_CREDENTIALS_FILE", ""),
				TopicPrefix:     getEnv("PUBSUB_TOPIC_PREFIX", "auth-events"),
			},
		},
		Storage: StorageConfig{
			Backend:       getEnv("STORAGE_BACKEND", ""),
			PublicBaseURL: getEnv("STORAGE_PUBLIC_BASE_URL", ""),
			Minio: MinioConfig{
				Endpoint:  getEnv("MINIO_ENDPOINT", ""),
				AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
				SecretKey: getEnv("MINIO_SECRET_KEY", ""),
				Bucket:    getEnv("MINIO_BUCKET", "avatars"),
				UseSSL:    getEnvBool("MINIO_USE_SSL", false),
			},
			GCS: GCSConfig{
				Bucket:          getEnv("GCS_BUCKET", ""),
				ProjectID:       getEnv("GCS_PROJECT_ID", ""),
				CredentialsFile: getEnv("GCS_CREDENTIALS_FILE", ""),
			},
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		var value int
		fmt.Sscanf(valueStr, "%d", &value)
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := strconv.ParseBool(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := time.ParseDuration(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}
