package admin_api_config

import (
	"time"

	"github.com/NordCoder/Flatwatch/internal/config/base"
)

type HTTP struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type Auth struct {
	Enable bool `mapstructure:"enable"`
	// OperatorPasswordHash is a bcrypt hash of the operator password.
	OperatorPasswordHash string        `mapstructure:"operator_password_hash"`
	JWTSecret            string        `mapstructure:"jwt_secret"`
	AccessTTL            time.Duration `mapstructure:"access_ttl"`
}

type Config struct {
	base.Common `mapstructure:",squash"`
	HTTP        HTTP `mapstructure:"http"`
	Auth        Auth `mapstructure:"auth"`
}
