package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
type Config struct {
	HTTPAddr string

	LogLevel string
	LogFile  string

	// Audio output
	SampleRate  int
	AudioDriver string // "speaker" or "null"

	// Where sound files come from: "file", "http" or "minio"
	SoundSource  string
	SoundDir     string // Root directory for the file source
	SoundBaseURL string // Base URL for the http source
	WatchSounds  bool   // Evict cached buffers when files under SoundDir change

	// Mix persistence
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	MixKeyPrefix  string
	MixStore      string // "redis" or "memory"

	// Sound catalog database
	CatalogSource string // "embedded" or "db"
	DBHost        string
	DBPort        string
	DBUser        string
	DBPassword    string
	DBName        string

	// MinIO, used by the minio sound source and command
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioRegion    string
	MinioUseSSL    bool
	MinioPrefix    string

	// Auth is disabled when AuthSecret is empty.
	AuthSecret        string
	AdminPasswordHash string
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

func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	return &Config{
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),

		SampleRate:  getEnvInt("SAMPLE_RATE", 44100),
		AudioDriver: getEnv("AUDIO_DRIVER", "speaker"),

		SoundSource:  getEnv("SOUND_SOURCE", "file"),
		SoundDir:     getEnv("SOUND_DIR", "."),
		SoundBaseURL: getEnv("SOUND_BASE_URL", "http://127.0.0.1:8000"),
		WatchSounds:  getEnvBool("WATCH_SOUNDS", false),

		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		MixKeyPrefix:  getEnv("MIX_KEY_PREFIX", "soundscape:mix:"),
		MixStore:      getEnv("MIX_STORE", "redis"),

		CatalogSource: getEnv("CATALOG_SOURCE", "embedded"),
		DBHost:        getEnv("DB_HOST", "127.0.0.1"),
		DBPort:        getEnv("DB_PORT", "3306"),
		DBUser:        getEnv("DB_USER", "root"),
		DBPassword:    os.Getenv("DB_PASSWORD"), // no hardcoded default for passwords
		DBName:        getEnv("DB_NAME", "soundscape"),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getEnv("MINIO_BUCKET", "soundscape"),
		MinioRegion:    getEnv("MINIO_REGION", "us-east-1"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),
		MinioPrefix:    getEnv("MINIO_PREFIX", ""),

		AuthSecret:        os.Getenv("AUTH_SECRET"),
		AdminPasswordHash: os.Getenv("ADMIN_PASSWORD_HASH"),
	}
}
