package ingestor_config

import (
	"github.com/NordCoder/Flatwatch/internal/config/base"
)

func Load(path string) (*Config, error) {
	v, err := base.New(path)
	if err != nil {
		return nil, err
	}

	base.SetCommonDefaults(v, "ingestor", ":8081")
	base.SetKafkaInDefaults(v, "kafka_in", base.TopicScraped, "flatwatch-ingestor")
	base.SetKafkaOutDefaults(v, "kafka_out", base.TopicCreated)

	v.SetDefault("outbox.workers", 2)
	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.wait_time", "500ms")
	v.SetDefault("outbox.in_progress_ttl", "30s")

	var cfg Config
	if err := base.Unmarshal(v, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Outbox.Workers <= 0 || cfg.Outbox.BatchSize <= 0 {
		return nil, base.ErrConfig("outbox.workers and outbox.batch_size must be positive")
	}
	return &cfg, nil
}
