package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	DataDir       string `toml:"DataDir"`
	// StorageEngine is "leveldb" or "memory".
	StorageEngine string `toml:"StorageEngine"`
	Environment   string `toml:"Environment"`
	GenesisFile   string `toml:"GenesisFile"`

	Logging   LoggingConfig   `toml:"Logging"`
	RPC       RPCConfig       `toml:"RPC"`
	Telemetry TelemetryConfig `toml:"Telemetry"`
	Commerce  CommerceConfig  `toml:"Commerce"`
}

type LoggingConfig struct {
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

type RPCConfig struct {
	RateLimitPerSecond float64 `toml:"RateLimitPerSecond"`
	RateLimitBurst     int     `toml:"RateLimitBurst"`
	MaxBodyBytes       int64   `toml:"MaxBodyBytes"`
	// TimestampSkewSeconds bounds how far a signed request's timestamp may
	// drift from the node clock.
	TimestampSkewSeconds int64 `toml:"TimestampSkewSeconds"`
	// JWTSecretEnv names the environment variable holding the HMAC secret.
	// Bearer auth is enforced only when the variable is set.
	JWTSecretEnv string `toml:"JWTSecretEnv"`
	JWTIssuer    string `toml:"JWTIssuer"`
	// AuditDriver is "sqlite", "postgres" or empty to disable the audit log.
	AuditDriver string `toml:"AuditDriver"`
	AuditDSN    string `toml:"AuditDSN"`
}

type TelemetryConfig struct {
	Endpoint    string  `toml:"Endpoint"`
	Insecure    bool    `toml:"Insecure"`
	Headers     string  `toml:"Headers"`
	Traces      bool    `toml:"Traces"`
	Metrics     bool    `toml:"Metrics"`
	SampleRatio float64 `toml:"SampleRatio"`
}

type CommerceConfig struct {
	ConflictRetries int `toml:"ConflictRetries"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	} else if err != nil {
		return nil, err
	}

	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown key %s", path, undecoded[0].String())
	}
	cfg.normalise()
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration written for a fresh node.
func Default() *Config {
	return &Config{
		ListenAddress: ":8080",
		DataDir:       "./ecom-data",
		StorageEngine: "leveldb",
		Environment:   "local",
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
		RPC: RPCConfig{
			RateLimitPerSecond:   20,
			RateLimitBurst:       40,
			MaxBodyBytes:         1 << 20,
			TimestampSkewSeconds: 300,
			JWTSecretEnv:         "ECOM_RPC_JWT_SECRET",
			JWTIssuer:            "ecomledger",
			AuditDriver:          "sqlite",
		},
		Telemetry: TelemetryConfig{
			Endpoint:    "localhost:4318",
			Insecure:    true,
			SampleRatio: 1,
		},
		Commerce: CommerceConfig{ConflictRetries: 3},
	}
}

func (c *Config) normalise() {
	c.StorageEngine = strings.ToLower(strings.TrimSpace(c.StorageEngine))
	c.RPC.AuditDriver = strings.ToLower(strings.TrimSpace(c.RPC.AuditDriver))
	if c.RPC.AuditDriver == "sqlite" && strings.TrimSpace(c.RPC.AuditDSN) == "" {
		c.RPC.AuditDSN = filepath.Join(c.DataDir, "audit.db")
	}
	if strings.TrimSpace(c.Environment) == "" {
		c.Environment = "local"
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	cfg.normalise()
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
