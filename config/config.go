package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/joho/godotenv"
)

var (
	// ErrMissingJWTKey is returned by Load when JWT_KEY is not configured.
	ErrMissingJWTKey = errors.New("JWT_KEY is not set in the environment")
	// ErrOutOfRange is returned by Load when a ratio setting is outside [0,1].
	ErrOutOfRange = errors.New("value must be between 0 and 1")
)

// Token types carried in the "type" claim.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// JWTClaims is the payload stored inside access and refresh tokens.
type JWTClaims struct {
	Username string `json:"username,omitempty"`
	Role     string `json:"role,omitempty"`
	Type     string `json:"type"`
	jwt.RegisteredClaims
}

type SFTPConfig struct {
	Host      string
	Port      int
	User      string
	Password  string
	KeyFile   string
	BasePath  string
	PublicURL string // base URL the uploaded objects are served from

	// HostKey is the server's public key in authorized_keys format.
	HostKey        string
	KnownHostsFile string
	// InsecureSkipHostKey accepts any server key. Local testing only.
	InsecureSkipHostKey bool
}

// Enabled reports whether a remote object store is configured.
func (s SFTPConfig) Enabled() bool {
	return s.Host != "" && s.PublicURL != ""
}

type MQTTConfig struct {
	Broker   string
	ClientID string
	Topic    string
	Username string
	Password string
}

func (m MQTTConfig) Enabled() bool {
	return m.Broker != ""
}

type Config struct {
	Env   string
	Port  string
	Debug bool

	DatabaseURL string // MySQL DSN, empty means SQLite
	SQLitePath  string

	JWTKey             []byte
	AccessTokenExpire  time.Duration
	RefreshTokenExpire time.Duration
	// AdminPassword seeds the "admin" account on first start when set.
	AdminPassword string

	FrontendURL string
	UploadDir   string
	SFTP        SFTPConfig

	FaceModelsDir  string
	MatchThreshold float64
	EncodingWeight float64

	NotifyURL string
	MQTT      MQTTConfig

	ImportEnabled  bool
	ImportInterval time.Duration

	ExternalTimeout    time.Duration
	StatsCacheTTL      time.Duration
	LoginRatePerMinute int
}

// Load reads .env (when present) and the process environment.
func Load() (*Config, error) {
	// 1. .env is only present on developer machines; production uses real env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("Info: .env file not found, using system environment variables.")
	}

	// 2. JWT key is mandatory.
	key := os.Getenv("JWT_KEY")
	if key == "" {
		return nil, ErrMissingJWTKey
	}

	cfg := &Config{
		Env:   getEnv("APP_ENV", "development"),
		Port:  getEnv("PORT", "8000"),
		Debug: getEnvAsBool("DEBUG", false),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		SQLitePath:  getEnv("SQLITE_PATH", "bureau.db"),

		JWTKey:             []byte(key),
		AccessTokenExpire:  time.Duration(getEnvAsInt("ACCESS_TOKEN_EXPIRE_MINUTES", 30)) * time.Minute,
		RefreshTokenExpire: time.Duration(getEnvAsInt("REFRESH_TOKEN_EXPIRE_DAYS", 7)) * 24 * time.Hour,
		AdminPassword:      os.Getenv("ADMIN_PASSWORD"),

		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:5173"),
		UploadDir:   getEnv("UPLOAD_DIR", "uploads"),
		SFTP: SFTPConfig{
			Host:      os.Getenv("SFTP_HOST"),
			Port:      getEnvAsInt("SFTP_PORT", 22),
			User:      os.Getenv("SFTP_USER"),
			Password:  os.Getenv("SFTP_PASSWORD"),
			KeyFile:   os.Getenv("SFTP_KEY_FILE"),
			BasePath:  getEnv("SFTP_BASE_PATH", "missing-persons"),
			PublicURL: os.Getenv("STORAGE_PUBLIC_URL"),

			HostKey:             os.Getenv("SFTP_HOST_KEY"),
			KnownHostsFile:      os.Getenv("SFTP_KNOWN_HOSTS"),
			InsecureSkipHostKey: getEnvAsBool("SFTP_INSECURE_SKIP_HOST_KEY", false),
		},

		FaceModelsDir:  os.Getenv("FACE_MODELS_DIR"),
		MatchThreshold: getEnvAsFloat("MATCH_THRESHOLD", 0.7),
		EncodingWeight: getEnvAsFloat("ENCODING_WEIGHT", 0.7),

		NotifyURL: os.Getenv("NOTIFY_URL"),
		MQTT: MQTTConfig{
			Broker:   os.Getenv("MQTT_BROKER"),
			ClientID: getEnv("MQTT_CLIENT_ID", "bureau-api"),
			Topic:    getEnv("MQTT_TOPIC", "bureau/detections"),
			Username: os.Getenv("MQTT_USERNAME"),
			Password: os.Getenv("MQTT_PASSWORD"),
		},

		ImportEnabled:  getEnvAsBool("IMPORT_ENABLED", true),
		ImportInterval: getEnvAsDuration("IMPORT_INTERVAL", time.Hour),

		ExternalTimeout:    getEnvAsDuration("EXTERNAL_TIMEOUT", 10*time.Second),
		StatsCacheTTL:      getEnvAsDuration("STATS_CACHE_TTL", 15*time.Second),
		LoginRatePerMinute: getEnvAsInt("LOGIN_RATE_PER_MINUTE", 10),
	}

	// 3. Ratios feed straight into matching and learning, zero included.
	if err := checkRatio("MATCH_THRESHOLD", cfg.MatchThreshold); err != nil {
		return nil, err
	}
	if err := checkRatio("ENCODING_WEIGHT", cfg.EncodingWeight); err != nil {
		return nil, err
	}

	return cfg, nil
}

func checkRatio(key string, v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("%s=%v: %w", key, v, ErrOutOfRange)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
