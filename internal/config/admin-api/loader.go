package admin_api_config

import (
	"github.com/NordCoder/Flatwatch/internal/config/base"
)

func Load(path string) (*Config, error) {
	v, err := base.New(path)
	if err != nil {
		return nil, err
	}

	base.SetCommonDefaults(v, "admin-api", ":8084")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", "5s")
	v.SetDefault("http.write_timeout", "10s")
	v.SetDefault("http.idle_timeout", "60s")

	v.SetDefault("auth.enable", true)
	v.SetDefault("auth.operator_password_hash", "")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.access_ttl", "15m")

	var cfg Config
	if err := base.Unmarshal(v, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Auth.Enable && (cfg.Auth.JWTSecret == "" || cfg.Auth.OperatorPasswordHash == "") {
		return nil, base.ErrConfig("auth.jwt_secret and auth.operator_password_hash are required when auth is enabled")
	}
	return &cfg, nil
}
