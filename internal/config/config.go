// ./internal/config/config.go

package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Config holds application-wide configuration.
type Config struct {
	Port             string
	ShutdownTimeout  time.Duration
	DataDir          string
	NumShards        int
	SnapshotInterval time.Duration
	EnableSnapshots  bool
	TtlCleanInterval time.Duration
	JwtSecret        string
	TokenTtl         time.Duration
	OtpTtl           time.Duration
	MerchantName     string
	DefaultBranchId  string
	DevMode          bool
}

// NewDefaultConfig creates a Config struct with sensible default values.
func NewDefaultConfig() Config {
	return Config{
		Port:             ":8080",
		ShutdownTimeout:  10 * time.Second,
		DataDir:          "data",
		NumShards:        16,
		SnapshotInterval: 5 * time.Minute,
		EnableSnapshots:  true,
		TtlCleanInterval: 1 * time.Minute,
		JwtSecret:        "dev-only-secret",
		TokenTtl:         24 * time.Hour,
		OtpTtl:           5 * time.Minute,
		MerchantName:     "Shopcore Store",
		DefaultBranchId:  "main",
		DevMode:          false,
	}
}

// LoadConfig loads configuration with a clear precedence: Environment > Defaults.
func LoadConfig() Config {
	cfg := NewDefaultConfig()
	slog.Info("Loading configuration...")
	applyEnvConfig(&cfg)
	return cfg
}

// applyEnvConfig overrides config values from environment variables.
func applyEnvConfig(cfg *Config) {
	if portEnv := os.Getenv("SHOPCORE_PORT"); portEnv != "" {
		cfg.Port = portEnv
		slog.Info("Overriding Port from environment", "value", portEnv)
	}

	if dataDirEnv := os.Getenv("SHOPCORE_DATA_DIR"); dataDirEnv != "" {
		cfg.DataDir = dataDirEnv
		slog.Info("Overriding DataDir from environment", "value", dataDirEnv)
	}

	if numShardsEnv := os.Getenv("SHOPCORE_NUM_SHARDS"); numShardsEnv != "" {
		if i, err := strconv.Atoi(numShardsEnv); err == nil && i > 0 {
			cfg.NumShards = i
			slog.Info("Overriding NumShards from environment", "value", i)
		} else {
			slog.Warn("Invalid SHOPCORE_NUM_SHARDS env var, using default", "value", numShardsEnv)
		}
	}

	if enableSnapshotsEnv := os.Getenv("SHOPCORE_ENABLE_SNAPSHOTS"); enableSnapshotsEnv != "" {
		if b, err := strconv.ParseBool(enableSnapshotsEnv); err == nil {
			cfg.EnableSnapshots = b
			slog.Info("Overriding EnableSnapshots from environment", "value", b)
		} else {
			slog.Warn("Invalid SHOPCORE_ENABLE_SNAPSHOTS env var, using default", "value", enableSnapshotsEnv)
		}
	}

	if jwtSecretEnv := os.Getenv("SHOPCORE_JWT_SECRET"); jwtSecretEnv != "" {
		cfg.JwtSecret = jwtSecretEnv
	}

	if merchantEnv := os.Getenv("SHOPCORE_MERCHANT_NAME"); merchantEnv != "" {
		cfg.MerchantName = merchantEnv
		slog.Info("Overriding MerchantName from environment", "value", merchantEnv)
	}

	if branchEnv := os.Getenv("SHOPCORE_DEFAULT_BRANCH_ID"); branchEnv != "" {
		cfg.DefaultBranchId = branchEnv
		slog.Info("Overriding DefaultBranchId from environment", "value", branchEnv)
	}

	if devModeEnv := os.Getenv("SHOPCORE_DEV_MODE"); devModeEnv != "" {
		if b, err := strconv.ParseBool(devModeEnv); err == nil {
			cfg.DevMode = b
			slog.Info("Overriding DevMode from environment", "value", b)
		} else {
			slog.Warn("Invalid SHOPCORE_DEV_MODE env var, using default", "value", devModeEnv)
		}
	}

	overrideDuration("SHOPCORE_SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout)
	overrideDuration("SHOPCORE_SNAPSHOT_INTERVAL", &cfg.SnapshotInterval)
	overrideDuration("SHOPCORE_TTL_CLEAN_INTERVAL", &cfg.TtlCleanInterval)
	overrideDuration("SHOPCORE_TOKEN_TTL", &cfg.TokenTtl)
	overrideDuration("SHOPCORE_OTP_TTL", &cfg.OtpTtl)
}

func overrideDuration(envKey string, target *time.Duration) {
	envVal := os.Getenv(envKey)
	if envVal != "" {
		if d, err := time.ParseDuration(envVal); err == nil {
			*target = d
			slog.Info("Overriding duration from environment", "key", envKey, "value", envVal)
		} else {
			slog.Warn("Invalid duration format in env var, using default", "key", envKey, "value", envVal)
		}
	}
}
