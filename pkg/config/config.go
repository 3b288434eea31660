package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/certen/objectvalidator/pkg/orchestrator"
	"github.com/certen/objectvalidator/pkg/scheduler"
	"github.com/certen/objectvalidator/pkg/statesync"
)

// Config holds all configuration for the validator node service.
type Config struct {
	// Server Configuration
	ListenAddr  string
	MetricsAddr string
	HealthAddr  string

	// Database Configuration (URL-based; the fields database.NewClient reads)
	DatabaseURL         string
	DatabaseMaxConns    int
	DatabaseMinConns    int
	DatabaseMaxIdleTime int // seconds
	DatabaseMaxLifetime int // seconds
	DatabaseRequired    bool

	// Database Configuration (individual fields; loaded but not read by
	// database.NewClient)
	DBHost            string
	DBPort            int
	DBUser            string
	DBPassword        string
	DBName            string
	DBSSLMode         string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	// Ed25519 Key Configuration
	Ed25519KeyPath string
	DataDir        string

	// ObjectStoreBackend selects the C1 object store implementation:
	// "memory" (objectstore.MemStore, the default) or "leveldb"
	// (pkg/ledger.Store over cometbft-db, durable across restarts).
	ObjectStoreBackend string

	// Service Configuration
	ValidatorID   string
	ValidatorRole string
	LogLevel      string

	// Peer-to-peer network configuration (consumed by the statesync transport
	// the node wires up in main; this package only surfaces addresses/peer
	// lists, the transport itself lives outside pkg/config).
	P2PListenAddr string
	PeerAddrs     []string

	// Network Identification
	NetworkName string
	ChainID     string

	// Security Configuration
	JWTSecret   string
	CORSOrigins []string
	TLSEnabled  bool

	// Rate Limiting
	RateLimitRequests int
	RateLimitWindow   int

	// Pipeline tunables, each scoped to its own package's Config type and
	// populated from defaults overridable via env vars or the YAML overlay.
	Overload  scheduler.OverloadConfig
	Orchestrator orchestrator.Config
	StateSync statesync.Config
}

// Load reads configuration from environment variables. Call Validate()
// afterward to ensure all required configuration is present.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:  getEnv("API_HOST", "0.0.0.0") + ":" + getEnv("API_PORT", "8080"),
		MetricsAddr: getEnv("API_HOST", "0.0.0.0") + ":" + getEnv("METRICS_PORT", "9090"),
		HealthAddr:  getEnv("API_HOST", "0.0.0.0") + ":" + getEnv("HEALTH_CHECK_PORT", "8081"),

		DatabaseURL:         getEnv("DATABASE_URL", ""),
		DatabaseMaxConns:    getEnvInt("DATABASE_MAX_CONNS", 25),
		DatabaseMinConns:    getEnvInt("DATABASE_MIN_CONNS", 5),
		DatabaseMaxIdleTime: getEnvInt("DATABASE_MAX_IDLE_TIME", 300),
		DatabaseMaxLifetime: getEnvInt("DATABASE_MAX_LIFETIME", 3600),
		DatabaseRequired:    getEnvBool("DATABASE_REQUIRED", false),

		DBHost:            getEnv("DB_HOST", "localhost"),
		DBPort:            getEnvInt("DB_PORT", 5432),
		DBUser:            getEnv("DB_USER", "certen"),
		DBPassword:        getEnv("DB_PASSWORD", ""),
		DBName:            getEnv("DB_NAME", "certen_validator"),
		DBSSLMode:         getEnv("DB_SSL_MODE", "require"),
		DBMaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
		DBConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", time.Hour),

		Ed25519KeyPath: getEnv("ED25519_KEY_PATH", ""),
		DataDir:        getEnv("DATA_DIR", "./data"),

		ObjectStoreBackend: getEnv("OBJECT_STORE_BACKEND", "memory"),

		ValidatorID:   getEnv("VALIDATOR_ID", "validator-default"),
		ValidatorRole: getEnv("VALIDATOR_ROLE", "validator"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		P2PListenAddr: getEnv("P2P_LISTEN_ADDR", "0.0.0.0:26656"),
		PeerAddrs:     parseCommaList(getEnv("PEER_ADDRS", "")),

		NetworkName: getEnv("NETWORK_NAME", "devnet"),
		ChainID:     getEnv("CHAIN_ID", "certen-validator"),

		JWTSecret:   getEnv("JWT_SECRET", ""),
		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:3001"), ","),
		TLSEnabled:  getEnvBool("TLS_ENABLED", true),

		RateLimitRequests: getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:   getEnvInt("RATE_LIMIT_WINDOW", 60),

		Overload:     loadOverloadConfig(),
		Orchestrator: loadOrchestratorConfig(),
		StateSync:    loadStateSyncConfig(),
	}

	return cfg, nil
}

func loadOverloadConfig() scheduler.OverloadConfig {
	c := scheduler.DefaultOverloadConfig()
	c.MaxQueueLength = getEnvInt("SCHEDULER_MAX_QUEUE_LENGTH", c.MaxQueueLength)
	c.MaxOldestPendingAge = getEnvDuration("SCHEDULER_MAX_OLDEST_PENDING_AGE", c.MaxOldestPendingAge)
	c.MaxPerSenderOutstanding = getEnvInt("SCHEDULER_MAX_PER_SENDER_OUTSTANDING", c.MaxPerSenderOutstanding)
	return c
}

func loadOrchestratorConfig() orchestrator.Config {
	c := orchestrator.DefaultConfig()
	c.EnableEarlyValidation = getEnvBool("ORCHESTRATOR_ENABLE_EARLY_VALIDATION", c.EnableEarlyValidation)
	c.FinalityTimeout = getEnvDuration("ORCHESTRATOR_FINALITY_TIMEOUT", c.FinalityTimeout)
	if secs := getEnvInt("WAIT_FOR_FINALITY_TIMEOUT_SECS", 0); secs > 0 {
		c.FinalityTimeout = time.Duration(secs) * time.Second
	}
	c.LocalExecutionTimeout = getEnvDuration("ORCHESTRATOR_LOCAL_EXECUTION_TIMEOUT", c.LocalExecutionTimeout)
	c.RecoveryTimeout = getEnvDuration("ORCHESTRATOR_RECOVERY_TIMEOUT", c.RecoveryTimeout)
	c.MaxBackgroundRetries = getEnvInt("ORCHESTRATOR_MAX_BACKGROUND_RETRIES", c.MaxBackgroundRetries)
	c.BackoffMin = getEnvDuration("ORCHESTRATOR_BACKOFF_MIN", c.BackoffMin)
	c.BackoffMax = getEnvDuration("ORCHESTRATOR_BACKOFF_MAX", c.BackoffMax)
	c.LiveInputEnforcementFromAttempt = getEnvInt("ORCHESTRATOR_LIVE_INPUT_ENFORCEMENT_FROM_ATTEMPT", c.LiveInputEnforcementFromAttempt)
	c.MaxDuplicateSubmissions = getEnvInt("ORCHESTRATOR_MAX_DUPLICATE_SUBMISSIONS", c.MaxDuplicateSubmissions)
	c.AllowedSubmissionValidators = parseCommaList(getEnv("ORCHESTRATOR_ALLOWED_SUBMISSION_VALIDATORS", ""))
	c.BlockedSubmissionValidators = parseCommaList(getEnv("ORCHESTRATOR_BLOCKED_SUBMISSION_VALIDATORS", ""))
	return c
}

func loadStateSyncConfig() statesync.Config {
	c := statesync.DefaultConfig()
	c.TickInterval = getEnvDuration("STATESYNC_TICK_INTERVAL", c.TickInterval)
	c.Timeout = getEnvDuration("STATESYNC_TIMEOUT", c.Timeout)
	c.HeaderDownloadConcurrency = getEnvInt("STATESYNC_HEADER_DOWNLOAD_CONCURRENCY", c.HeaderDownloadConcurrency)
	c.ContentCheckpointConcurrency = getEnvInt("STATESYNC_CONTENT_CHECKPOINT_CONCURRENCY", c.ContentCheckpointConcurrency)
	c.ContentTxConcurrency = getEnvInt("STATESYNC_CONTENT_TX_CONCURRENCY", c.ContentTxConcurrency)
	c.ContentTimeout = getEnvDuration("STATESYNC_CONTENT_TIMEOUT", c.ContentTimeout)
	c.RequeueDelay = getEnvDuration("STATESYNC_REQUEUE_DELAY", c.RequeueDelay)
	c.NotifyPeersEvery = getEnvInt("STATESYNC_NOTIFY_PEERS_EVERY", c.NotifyPeersEvery)
	return c
}

// Validate checks that all required configuration is present and secure.
// This must be called after Load() before starting the service.
func (c *Config) Validate() error {
	var errors []string

	if c.DatabaseURL == "" {
		errors = append(errors, "DATABASE_URL is required but not set")
	} else {
		if strings.Contains(c.DatabaseURL, "sslmode=disable") {
			errors = append(errors, "DATABASE_URL must use sslmode=require for production security")
		}
	}

	if c.JWTSecret == "" {
		errors = append(errors, "JWT_SECRET is required but not set")
	} else {
		weakSecrets := []string{"development", "secret", "password", "change-me", "changeme", "default", "test"}
		lowerSecret := strings.ToLower(c.JWTSecret)
		for _, weak := range weakSecrets {
			if strings.Contains(lowerSecret, weak) {
				errors = append(errors, "JWT_SECRET contains weak/default value - generate a secure random secret")
				break
			}
		}
		if len(c.JWTSecret) < 32 {
			errors = append(errors, "JWT_SECRET must be at least 32 characters for security")
		}
	}

	if c.Orchestrator.MaxDuplicateSubmissions < 1 {
		errors = append(errors, "ORCHESTRATOR_MAX_DUPLICATE_SUBMISSIONS must be at least 1")
	}
	if c.StateSync.HeaderDownloadConcurrency < 1 {
		errors = append(errors, "STATESYNC_HEADER_DOWNLOAD_CONCURRENCY must be at least 1")
	}

	if c.ObjectStoreBackend != "memory" && c.ObjectStoreBackend != "leveldb" {
		errors = append(errors, "OBJECT_STORE_BACKEND must be 'memory' or 'leveldb'")
	}

	if !c.TLSEnabled {
		fmt.Println("WARNING: TLS_ENABLED is false - enable TLS for production security")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

// ValidateForDevelopment performs relaxed validation suitable for local development.
// WARNING: Do not use this in production - use Validate() instead.
func (c *Config) ValidateForDevelopment() error {
	if c.ValidatorID == "" {
		return fmt.Errorf("development configuration validation failed:\n  - VALIDATOR_ID is required")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// parseCommaList parses a comma-separated list, trimming whitespace and
// dropping empty entries. Returns nil for an empty input.
func parseCommaList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
