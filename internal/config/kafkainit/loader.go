package kafkainit_config

import (
	"strings"

	"github.com/NordCoder/Flatwatch/internal/config/base"
)

func Load(path string) (*Config, error) {
	v, err := base.New(path)
	if err != nil {
		return nil, err
	}

	v.SetDefault("app.name", "kafka-init")
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.version", "dev")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("kafka.brokers", []string{"localhost:9094"})
	v.SetDefault("kafka.topics", []string{base.TopicScraped, base.TopicCreated})
	v.SetDefault("kafka.timeout", "60s")
	base.SetTopicLayoutDefaults(v, "kafka")
	v.SetDefault("kafka.ready_timeout", "30s")

	var cfg Config
	if err := base.Unmarshal(v, &cfg); err != nil {
		return nil, err
	}
	topics := cfg.Kafka.Topics[:0]
	for _, t := range cfg.Kafka.Topics {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}
	cfg.Kafka.Topics = topics

	if len(cfg.Kafka.Brokers) == 0 || len(cfg.Kafka.Topics) == 0 {
		return nil, base.ErrConfig("kafka.brokers and kafka.topics must not be empty")
	}
	if cfg.Kafka.Partitions <= 0 || cfg.Kafka.ReplicationFactor <= 0 {
		return nil, base.ErrConfig("kafka.partitions and kafka.replication_factor must be positive")
	}
	return &cfg, nil
}
