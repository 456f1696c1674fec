package ingestor_config

import (
	"time"

	"github.com/NordCoder/Flatwatch/internal/config/base"
)

type Outbox struct {
	Workers       int           `mapstructure:"workers"`
	BatchSize     int           `mapstructure:"batch_size"`
	WaitTime      time.Duration `mapstructure:"wait_time"`
	InProgressTTL time.Duration `mapstructure:"in_progress_ttl"`
}

type Config struct {
	base.Common `mapstructure:",squash"`
	KafkaIn     base.KafkaIn  `mapstructure:"kafka_in"`
	KafkaOut    base.KafkaOut `mapstructure:"kafka_out"`
	Outbox      Outbox        `mapstructure:"outbox"`
}
