package base

import (
	"time"

	"github.com/NordCoder/Flatwatch/internal/obs"
	kafkax "github.com/NordCoder/Flatwatch/internal/repository/kafka"
	pg "github.com/NordCoder/Flatwatch/internal/repository/postgres"
)

type App struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

func (lc Log) AsLoggerConfig(app App) obs.LogConfig {
	return obs.LogConfig{
		Level:  lc.Level,
		Pretty: lc.Pretty,
		App:    "flatwatch/" + app.Name,
		Env:    app.Env,
		Ver:    app.Version,
	}
}

type OTEL struct {
	Enable       bool    `mapstructure:"enable"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

func (oc OTEL) AsOTELConfig() obs.OTELConfig {
	return obs.OTELConfig{
		Enable:      oc.Enable,
		Endpoint:    oc.OTLPEndpoint,
		ServiceName: oc.ServiceName,
		SampleRatio: oc.SampleRatio,
	}
}

type Server struct {
	MetricsAddr     string        `mapstructure:"metrics_addr"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
}

// TopicLayout is how a service creates a topic it finds missing. Every
// service and kafka-init read the same keys so partition counts agree.
type TopicLayout struct {
	Partitions        int           `mapstructure:"partitions"`
	ReplicationFactor int           `mapstructure:"replication_factor"`
	ReadyTimeout      time.Duration `mapstructure:"ready_timeout"`
}

func (t TopicLayout) AsTopicSpec(name string) kafkax.TopicSpec {
	return kafkax.TopicSpec{
		Name:              name,
		NumPartitions:     t.Partitions,
		ReplicationFactor: t.ReplicationFactor,
		MaxWait:           t.ReadyTimeout,
	}
}

type KafkaIn struct {
	Brokers       []string `mapstructure:"brokers"`
	Topic         string   `mapstructure:"topic"`
	GroupID       string   `mapstructure:"group_id"`
	FromBeginning bool     `mapstructure:"from_beginning"`
	TopicLayout   `mapstructure:",squash"`
}

type KafkaOut struct {
	Brokers     []string `mapstructure:"brokers"`
	Topic       string   `mapstructure:"topic"`
	TopicLayout `mapstructure:",squash"`
}

// Common is embedded by every service config.
type Common struct {
	App    App       `mapstructure:"app"`
	Server Server    `mapstructure:"server"`
	DB     pg.Config `mapstructure:"db"`
	OTEL   OTEL      `mapstructure:"otel"`
	Log    Log       `mapstructure:"log"`
}

type ErrConfig string

func (e ErrConfig) Error() string { return string(e) }

const (
	TopicScraped = "flatwatch.listings.scraped"
	TopicCreated = "flatwatch.listings.created"

	DefaultPartitions = 3
)
