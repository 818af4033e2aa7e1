package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
type Config struct {
	ListenAddr string

	FFmpegPath   string
	AudioBitrate string // target bitrate for compressed tracks, e.g. "128k"

	// TranscodeConcurrency caps concurrent ffmpeg processes system-wide.
	TranscodeConcurrency int
	// TranscodeTimeout bounds a single ffmpeg invocation.
	TranscodeTimeout time.Duration

	// StorageRoot is the base directory for all stored assets.
	// Category subdirectories live below it.
	StorageRoot    string
	AlbumArtDir    string // StorageRoot/albumArt
	CompressedDir  string // StorageRoot/compressed
	ProfilePicsDir string // StorageRoot/profilePics

	// IDMaxRetries bounds the allocator's draw-and-check loop.
	IDMaxRetries int

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	JWTSecret string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	MinioEnabled   bool

	LogPath string
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

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on existing environment variables and defaults.")
	}

	storageRoot := getEnv("STORAGE_ROOT", "uploads")

	return &Config{
		ListenAddr: getEnv("LISTEN_ADDR", ":5000"),

		FFmpegPath:   getEnv("FFMPEG_PATH", "ffmpeg"),
		AudioBitrate: getEnv("AUDIO_BITRATE", "128k"),

		TranscodeConcurrency: getEnvInt("TRANSCODE_CONCURRENCY", 2),
		TranscodeTimeout:     time.Duration(getEnvInt("TRANSCODE_TIMEOUT_SECONDS", 300)) * time.Second,

		StorageRoot:    storageRoot,
		AlbumArtDir:    filepath.Join(storageRoot, "albumArt"),
		CompressedDir:  filepath.Join(storageRoot, "compressed"),
		ProfilePicsDir: filepath.Join(storageRoot, "profilePics"),

		IDMaxRetries: getEnvInt("ID_MAX_RETRIES", 32),

		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     getEnv("DB_NAME", "resonate"),

		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		JWTSecret: getEnv("JWT_SECRET", "resonate-dev-secret"),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:    getEnv("MINIO_BUCKET", "resonate"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),
		MinioEnabled:   getEnvBool("MINIO_ENABLED", false),

		LogPath: getEnv("LOG_PATH", ""),
	}
}
