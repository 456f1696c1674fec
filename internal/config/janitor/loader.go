package janitor_config

import (
	"github.com/NordCoder/Flatwatch/internal/config/base"
)

func Load(path string) (*Config, error) {
	v, err := base.New(path)
	if err != nil {
		return nil, err
	}

	base.SetCommonDefaults(v, "janitor", ":8085")

	v.SetDefault("janitor.schedule", "0 3 * * *")
	v.SetDefault("janitor.listing_retention", "720h")
	v.SetDefault("janitor.job_retention", "168h")
	v.SetDefault("janitor.batch_limit", 1000)
	v.SetDefault("janitor.run_on_start", false)
	v.SetDefault("janitor.reminder_retention", "720h")

	v.SetDefault("janitor.reminders.enabled", true)
	v.SetDefault("janitor.reminders.schedule", "0 * * * *")
	v.SetDefault("janitor.reminders.timezone", "Europe/Kyiv")
	v.SetDefault("janitor.reminders.batch_limit", 500)

	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.api_endpoint", "https://api.telegram.org/bot%s/%s")
	v.SetDefault("telegram.timeout", "10s")
	v.SetDefault("telegram.rate_per_sec", 5)
	v.SetDefault("telegram.burst", 1)
	v.SetDefault("telegram.debug", false)

	var cfg Config
	if err := base.Unmarshal(v, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Janitor.ListingRetention <= 0 || cfg.Janitor.BatchLimit <= 0 {
		return nil, base.ErrConfig("janitor.listing_retention and janitor.batch_limit must be positive")
	}
	if r := cfg.Janitor.Reminders; r.Enabled {
		if cfg.Telegram.Token == "" {
			return nil, base.ErrConfig("telegram.token is required while janitor.reminders.enabled")
		}
		if _, err := r.Location(); err != nil {
			return nil, base.ErrConfig("janitor.reminders.timezone: " + err.Error())
		}
		if r.BatchLimit <= 0 {
			return nil, base.ErrConfig("janitor.reminders.batch_limit must be positive")
		}
	}
	return &cfg, nil
}
