package janitor_config

import (
	"time"
	_ "time/tzdata"

	"github.com/NordCoder/Flatwatch/internal/config/base"
	dispatcher_config "github.com/NordCoder/Flatwatch/internal/config/dispatcher"
)

type Janitor struct {
	// Schedule is a five-field cron expression.
	Schedule         string        `mapstructure:"schedule"`
	ListingRetention time.Duration `mapstructure:"listing_retention"`
	JobRetention     time.Duration `mapstructure:"job_retention"`
	BatchLimit       int           `mapstructure:"batch_limit"`
	RunOnStart       bool          `mapstructure:"run_on_start"`
	// ReminderRetention bounds how long sent reminder marks are kept.
	ReminderRetention time.Duration `mapstructure:"reminder_retention"`
	Reminders         Reminders     `mapstructure:"reminders"`
}

// Reminders drives the subscription expiry notices.
type Reminders struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
	// Timezone decides which calendar day an expiry falls on.
	Timezone   string `mapstructure:"timezone"`
	BatchLimit int    `mapstructure:"batch_limit"`
}

// Location resolves Timezone.
func (r Reminders) Location() (*time.Location, error) {
	return time.LoadLocation(r.Timezone)
}

type Config struct {
	base.Common `mapstructure:",squash"`
	Janitor     Janitor                    `mapstructure:"janitor"`
	Telegram    dispatcher_config.Telegram `mapstructure:"telegram"`
}
