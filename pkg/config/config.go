package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreMemory    = "memory"
	StoreSQLite    = "sqlite"
	StoreFirestore = "firestore"

	AuthJWT      = "jwt"
	AuthJWKS     = "jwks"
	AuthFirebase = "firebase"

	EnvDevelopment = "development"

	// DefaultJWTSecret is only acceptable for local development.
	DefaultJWTSecret = "your-secret-key"
)

type Config struct {
	ServerPort  string
	Environment string

	StoreDriver string
	SQLitePath  string

	FirebaseProject            string
	FirebaseServiceAccountJSON string
	FirebaseServiceAccountPath string
	StorageBucket              string

	AuthMode  string
	JWTSecret string
	JWTExpiry int64
	JWKSURL   string

	WSSendBuffer        int
	ExplicitJoinDenial  bool
	RateSendPerMinute   int
	RateTypingPerMinute int
	AllowedOrigins      []string
	ShutdownTimeout     time.Duration
}

func Load() (*Config, error) {
	godotenv.Load()

	config := &Config{
		ServerPort:  getEnv("SERVER_PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", EnvDevelopment),

		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", StoreMemory)),
		SQLitePath:  getEnv("SQLITE_PATH", "./marketchat.db"),

		FirebaseProject:            getEnv("FIREBASE_PROJECT_ID", ""),
		FirebaseServiceAccountJSON: getEnv("FIREBASE_SERVICE_ACCOUNT_JSON", ""),
		FirebaseServiceAccountPath: getEnv("FIREBASE_SERVICE_ACCOUNT_PATH", ""),
		StorageBucket:              getEnv("STORAGE_BUCKET", ""),

		AuthMode:  strings.ToLower(getEnv("AUTH_MODE", AuthJWT)),
		JWTSecret: getEnv("JWT_SECRET", DefaultJWTSecret),
		JWTExpiry: getEnvAsInt64("JWT_EXPIRY", 24*60*60), // 24 hours
		JWKSURL:   getEnv("JWKS_URL", ""),

		WSSendBuffer:        int(getEnvAsInt64("WS_SEND_BUFFER", 256)),
		ExplicitJoinDenial:  getEnvAsBool("WS_EXPLICIT_JOIN_DENIAL", false),
		RateSendPerMinute:   int(getEnvAsInt64("RATE_SEND_PER_MIN", 30)),
		RateTypingPerMinute: int(getEnvAsInt64("RATE_TYPING_PER_MIN", 60)),
		AllowedOrigins:      getEnvAsList("ALLOWED_ORIGINS", []string{"*"}),
		ShutdownTimeout:     time.Duration(getEnvAsInt64("SHUTDOWN_TIMEOUT_SECONDS", 10)) * time.Second,
	}

	return config, nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == EnvDevelopment
}

// UsesDefaultJWTSecret reports whether HS256 sessions would be signed with
// the built-in secret.
func (c *Config) UsesDefaultJWTSecret() bool {
	return c.AuthMode == AuthJWT && c.JWTSecret == DefaultJWTSecret
}

// Validate rejects settings that are only safe on a developer machine.
func (c *Config) Validate() error {
	if c.UsesDefaultJWTSecret() && !c.IsDevelopment() {
		return fmt.Errorf("JWT_SECRET must be set when ENVIRONMENT=%s and AUTH_MODE=%s", c.Environment, c.AuthMode)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		boolValue, err := strconv.ParseBool(value)
		if err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
