package matcher_config

import (
	"time"

	"github.com/NordCoder/Flatwatch/internal/config/base"
)

type Match struct {
	// HandleTimeout bounds the work done for one created-listing event.
	HandleTimeout time.Duration `mapstructure:"handle_timeout"`
}

type Config struct {
	base.Common `mapstructure:",squash"`
	KafkaIn     base.KafkaIn `mapstructure:"kafka_in"`
	Match       Match        `mapstructure:"match"`
}
