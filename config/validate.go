package config

import "fmt"

func ValidateConfig(c *Config) error {
	if c == nil {
		return fmt.Errorf("config: nil")
	}
	switch c.StorageEngine {
	case "leveldb":
		if c.DataDir == "" {
			return fmt.Errorf("storage: DataDir required for leveldb")
		}
	case "memory":
	default:
		return fmt.Errorf("storage: unknown engine %q", c.StorageEngine)
	}
	if c.RPC.RateLimitPerSecond < 0 || c.RPC.RateLimitBurst < 0 {
		return fmt.Errorf("rpc: rate limit must not be negative")
	}
	if c.RPC.RateLimitPerSecond > 0 && c.RPC.RateLimitBurst == 0 {
		return fmt.Errorf("rpc: RateLimitBurst must be positive when rate limiting")
	}
	if c.RPC.MaxBodyBytes <= 0 {
		return fmt.Errorf("rpc: MaxBodyBytes <= 0")
	}
	if c.RPC.TimestampSkewSeconds <= 0 {
		return fmt.Errorf("rpc: TimestampSkewSeconds <= 0")
	}
	switch c.RPC.AuditDriver {
	case "", "sqlite":
	case "postgres":
		if c.RPC.AuditDSN == "" {
			return fmt.Errorf("rpc: AuditDSN required for postgres audit log")
		}
	default:
		return fmt.Errorf("rpc: unknown audit driver %q", c.RPC.AuditDriver)
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry: SampleRatio must be within [0,1]")
	}
	if c.Commerce.ConflictRetries < 0 {
		return fmt.Errorf("commerce: ConflictRetries < 0")
	}
	return nil
}
