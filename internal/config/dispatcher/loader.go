package dispatcher_config

import (
	"github.com/NordCoder/Flatwatch/internal/config/base"
)

func Load(path string) (*Config, error) {
	v, err := base.New(path)
	if err != nil {
		return nil, err
	}

	base.SetCommonDefaults(v, "dispatcher", ":8083")

	v.SetDefault("dispatch.workers", 4)
	v.SetDefault("dispatch.poll_interval", "500ms")
	v.SetDefault("dispatch.lease_ttl", "60s")
	v.SetDefault("dispatch.claim_stale_after", "5m")
	v.SetDefault("dispatch.claim_recheck", "30s")
	v.SetDefault("dispatch.max_attempts", 5)
	v.SetDefault("dispatch.backoff_base", "2s")
	v.SetDefault("dispatch.backoff_max", "10m")
	v.SetDefault("dispatch.backoff_jitter", 0.2)

	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.api_endpoint", "https://api.telegram.org/bot%s/%s")
	v.SetDefault("telegram.timeout", "10s")
	v.SetDefault("telegram.rate_per_sec", 25)
	v.SetDefault("telegram.burst", 5)
	v.SetDefault("telegram.debug", false)

	var cfg Config
	if err := base.Unmarshal(v, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Telegram.Token == "" {
		return nil, base.ErrConfig("telegram.token is required")
	}
	if cfg.Dispatch.MaxAttempts <= 0 || cfg.Dispatch.Workers <= 0 {
		return nil, base.ErrConfig("dispatch.workers and dispatch.max_attempts must be positive")
	}
	if cfg.Dispatch.ClaimStaleAfter <= cfg.Dispatch.LeaseTTL {
		return nil, base.ErrConfig("dispatch.claim_stale_after must exceed dispatch.lease_ttl")
	}
	return &cfg, nil
}
