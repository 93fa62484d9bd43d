package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
// Values come from the environment (optionally via a .env file) with sane defaults.
type Config struct {
	ServerPort    string
	AllowedOrigin string // CORS allowed origin, "*" for development

	// 日志配置
	LogLevel      string
	LogPath       string
	LogMaxSize    int // MB
	LogMaxBackups int
	LogMaxAge     int // days
	LogCompress   bool

	// MySQL配置
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis配置
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// MinIO配置
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioRegion    string
	MinioUseSSL    bool

	// 上游曲库配置
	CatalogBaseURL string
	CatalogToken   string // optional bearer token for the upstream API
	CatalogTimeout time.Duration

	// JWT配置
	JWTSecret string
	JWTTTL    time.Duration

	// 下载队列配置
	DownloadDir        string
	DownloadWorkers    int
	DownloadMaxRetries int           // default when the submit request carries none
	DownloadLeaseTTL   time.Duration // processing jobs with an older heartbeat are recovered
	HeartbeatInterval  time.Duration
	RetryDelay         time.Duration // delay before a failed job re-enters the queue

	// 播放会话配置
	FallbackQuality string // streaming quality used for lossless fallback
	SessionTTL      time.Duration

	FFmpegPath string
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvBool gets an environment variable as bool or returns a default value.
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

// getEnvDuration gets an environment variable as time.Duration or returns a default value.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// Attempt to load .env file. godotenv.Load() will not override existing env vars.
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	return &Config{
		ServerPort:    getEnv("SERVER_PORT", "8080"),
		AllowedOrigin: getEnv("ALLOWED_ORIGIN", "*"),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogPath:       getEnv("LOG_PATH", "logs/aurafm.log"),
		LogMaxSize:    getEnvInt("LOG_MAX_SIZE", 100),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 5),
		LogMaxAge:     getEnvInt("LOG_MAX_AGE", 30),
		LogCompress:   getEnvBool("LOG_COMPRESS", true),

		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"), // For password, better not to have a hardcoded default
		DBName:     getEnv("DB_NAME", "aurafm"),

		// Redis配置，使用默认值
		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""), // 默认无密码
		RedisDB:       getEnvInt("REDIS_DB", 0),     // 默认使用0号数据库

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getEnv("MINIO_BUCKET", "aurafm"),
		MinioRegion:    getEnv("MINIO_REGION", "us-east-1"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),

		CatalogBaseURL: getEnv("CATALOG_BASE_URL", "http://127.0.0.1:3000"),
		CatalogToken:   os.Getenv("CATALOG_TOKEN"),
		CatalogTimeout: getEnvDuration("CATALOG_TIMEOUT", 30*time.Second),

		JWTSecret: getEnv("JWT_SECRET", "aurafm-dev-secret"),
		JWTTTL:    getEnvDuration("JWT_TTL", 72*time.Hour),

		DownloadDir:        getEnv("DOWNLOAD_DIR", "downloads"),
		DownloadWorkers:    getEnvInt("DOWNLOAD_WORKERS", 3),
		DownloadMaxRetries: getEnvInt("DOWNLOAD_MAX_RETRIES", 3),
		DownloadLeaseTTL:   getEnvDuration("DOWNLOAD_LEASE_TTL", 60*time.Second),
		HeartbeatInterval:  getEnvDuration("HEARTBEAT_INTERVAL", 10*time.Second),
		RetryDelay:         getEnvDuration("RETRY_DELAY", 5*time.Second),

		// 无损播放失败后回退到的串流音质
		FallbackQuality: getEnv("FALLBACK_QUALITY", "exhigh"),
		SessionTTL:      getEnvDuration("SESSION_TTL", 24*time.Hour),

		FFmpegPath: getEnv("FFMPEG_PATH", "ffmpeg"),
	}
}
