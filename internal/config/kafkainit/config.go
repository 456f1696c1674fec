package kafkainit_config

import (
	"time"

	"github.com/NordCoder/Flatwatch/internal/config/base"
)

type Kafka struct {
	Brokers          []string      `mapstructure:"brokers"`
	Topics           []string      `mapstructure:"topics"`
	Timeout          time.Duration `mapstructure:"timeout"`
	base.TopicLayout `mapstructure:",squash"`
}

type Config struct {
	App   base.App `mapstructure:"app"`
	Log   base.Log `mapstructure:"log"`
	Kafka Kafka    `mapstructure:"kafka"`
}
