package dispatcher_config

import (
	"time"

	"github.com/NordCoder/Flatwatch/internal/config/base"
)

type Dispatch struct {
	Workers         int           `mapstructure:"workers"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	LeaseTTL        time.Duration `mapstructure:"lease_ttl"`
	ClaimStaleAfter time.Duration `mapstructure:"claim_stale_after"`
	ClaimRecheck    time.Duration `mapstructure:"claim_recheck"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	BackoffBase     time.Duration `mapstructure:"backoff_base"`
	BackoffMax      time.Duration `mapstructure:"backoff_max"`
	BackoffJitter   float64       `mapstructure:"backoff_jitter"`
}

type Telegram struct {
	Token       string        `mapstructure:"token"`
	APIEndpoint string        `mapstructure:"api_endpoint"`
	Timeout     time.Duration `mapstructure:"timeout"`
	RatePerSec  float64       `mapstructure:"rate_per_sec"`
	Burst       int           `mapstructure:"burst"`
	Debug       bool          `mapstructure:"debug"`
}

type Config struct {
	base.Common `mapstructure:",squash"`
	Dispatch    Dispatch `mapstructure:"dispatch"`
	Telegram    Telegram `mapstructure:"telegram"`
}
