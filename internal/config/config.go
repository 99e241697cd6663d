package config

import (
	"crypto/rand"
	"log"
	"math/big"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	LogLevel    string

	// API client configuration
	APIBaseURL     string
	AuthPrefix     string
	RequestTimeout time.Duration

	// Durable client storage: memory, sqlite or redis
	TokenStorage string
	TokenDBPath  string

	// Redis configuration
	RedisAddress string

	// Query cache defaults
	QueryStaleTime time.Duration
	QueryGCTime    time.Duration
	QueryRetries   int
	UserStaleTime  time.Duration

	// OAuth popup flow
	OAuthPopupTimeout time.Duration
	OAuthPollInterval time.Duration

	// Routes the session controller redirects to
	SignInPath       string
	UnauthorizedPath string

	// Development backend
	ServerPort      string
	DBHost          string
	DBPort          string
	DBUser          string
	DBPassword      string
	DBName          string
	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	GoogleClientID  string
	FrontendAddress string

	GoogleClientSecret string
}

// Global application configuration
var AppConfig Config

// LoadConfig loads configuration from environment variables
func LoadConfig() {
	// Find .env file
	envPath := ".env"
	if _, err := os.Stat(envPath); os.IsNotExist(err) {
		// Try to find .env in parent directories
		envPath = filepath.Join("..", ".env")
		if _, err := os.Stat(envPath); os.IsNotExist(err) {
			envPath = filepath.Join("..", "..", ".env")
		}
	}

	// Load .env file if it exists
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			log.Printf("Warning: Error loading .env file: %v\n", err)
		}
	}

	AppConfig = FromEnv()
}

// FromEnv builds a Config from the current environment without touching
// AppConfig.
func FromEnv() Config {
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = generateRandomSecret(32) // Generate a 32-byte random secret if not declared
		log.Println("Generated random JWT secret")
	}

	return Config{
		Environment: getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		APIBaseURL:     getEnv("API_BASE_URL", "http://localhost:8080/api"),
		AuthPrefix:     getEnv("AUTH_PREFIX", "/auth"),
		RequestTimeout: getDuration("REQUEST_TIMEOUT", 15*time.Second),

		TokenStorage: getEnv("TOKEN_STORAGE", "sqlite"),
		TokenDBPath:  getEnv("TOKEN_DB_PATH", "second-brain.db"),
		RedisAddress: getEnv("REDIS_ADDRESS", "localhost:6379"),

		QueryStaleTime: getDuration("QUERY_STALE_TIME", 30*time.Second),
		QueryGCTime:    getDuration("QUERY_GC_TIME", 5*time.Minute),
		QueryRetries:   getInt("QUERY_RETRIES", 3),
		UserStaleTime:  getDuration("USER_STALE_TIME", 5*time.Minute),

		OAuthPopupTimeout: getDuration("OAUTH_POPUP_TIMEOUT", 10*time.Minute),
		OAuthPollInterval: getDuration("OAUTH_POLL_INTERVAL", 500*time.Millisecond),

		SignInPath:       getEnv("SIGN_IN_PATH", "/auth/signin"),
		UnauthorizedPath: getEnv("UNAUTHORIZED_PATH", "/unauthorized"),

		ServerPort:      getEnv("PORT", "8080"),
		DBHost:          getEnv("DB_HOST", "localhost"),
		DBPort:          getEnv("DB_PORT", "5432"),
		DBUser:          getEnv("DB_USER", "postgres"),
		DBPassword:      getEnv("DB_PASSWORD", "postgres"),
		DBName:          getEnv("DB_NAME", "second_brain"),
		JWTSecret:       jwtSecret,
		AccessTokenTTL:  getDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL: getDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		GoogleClientID:  os.Getenv("GOOGLE_CLIENT_ID"),
		FrontendAddress: getEnv("FRONTEND_ADDRESS", "http://localhost:5173"),

		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
	}
}

// IsProduction reports whether the environment is production.
func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return d
}

func getInt(key string, defaultValue int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return n
}

// generateRandomSecret generates a random secret of the specified length
func generateRandomSecret(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	secret := make([]byte, length)
	max := big.NewInt(int64(len(charset)))
	for i := range secret {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			n = big.NewInt(int64(i % len(charset)))
		}
		secret[i] = charset[n.Int64()]
	}
	return string(secret)
}
