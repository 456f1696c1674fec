package matcher_config

import (
	"github.com/NordCoder/Flatwatch/internal/config/base"
)

func Load(path string) (*Config, error) {
	v, err := base.New(path)
	if err != nil {
		return nil, err
	}

	base.SetCommonDefaults(v, "matcher", ":8082")
	base.SetKafkaInDefaults(v, "kafka_in", base.TopicCreated, "flatwatch-matcher")
	v.SetDefault("match.handle_timeout", "30s")

	var cfg Config
	if err := base.Unmarshal(v, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
