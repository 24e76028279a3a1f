package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// envKeys are the keys that may be overridden from the environment.
var envKeys = []string{
	"database.driver",
	"database.dsn",
	"geocoder.url",
	"alerts.recipients_file",
	"alerts.smtp.addr",
	"alerts.smtp.from",
	"alerts.smtp.username",
	"alerts.smtp.password",
	"sync.consume_queue",
	"lock.kind",
	"lock.redis_url",
	"telemetry.pushgateway_url",
	"telemetry.otlp_endpoint",
	"logging.level",
	"logging.format",
	"logging.file",
}

// NewViper returns a viper instance bound to STORESYNC_* variables.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// applyEnv overrides configuration keys from the environment.
func applyEnv(cfg *Config) error {
	v := NewViper()
	for _, key := range envKeys {
		if !v.IsSet(key) {
			continue
		}
		if err := setKey(cfg, key, v); err != nil {
			return fmt.Errorf("environment override %s_%s: %w",
				EnvPrefix, strings.ToUpper(strings.ReplaceAll(key, ".", "_")), err)
		}
	}
	return nil
}

func setKey(cfg *Config, key string, v *viper.Viper) error {
	s := v.GetString(key)
	switch key {
	case "database.driver":
		if s != "sqlite3" && s != "pgx" {
			return fmt.Errorf("unsupported driver %q", s)
		}
		cfg.Database.Driver = s
	case "database.dsn":
		cfg.Database.DSN = s
	case "geocoder.url":
		cfg.Geocoder.URL = s
	case "alerts.recipients_file":
		cfg.Alerts.RecipientsFile = s
	case "alerts.smtp.addr":
		cfg.Alerts.SMTP.Addr = s
	case "alerts.smtp.from":
		cfg.Alerts.SMTP.From = s
	case "alerts.smtp.username":
		cfg.Alerts.SMTP.Username = s
	case "alerts.smtp.password":
		cfg.Alerts.SMTP.Password = s
	case "sync.consume_queue":
		cfg.Sync.ConsumeQueue = v.GetBool(key)
	case "lock.kind":
		if s != LockFile && s != LockRedis && s != LockNone {
			return fmt.Errorf("unsupported lock kind %q", s)
		}
		cfg.Lock.Kind = s
	case "lock.redis_url":
		cfg.Lock.RedisURL = s
	case "telemetry.pushgateway_url":
		cfg.Telemetry.PushgatewayURL = s
	case "telemetry.otlp_endpoint":
		cfg.Telemetry.OTLPEndpoint = s
	case "logging.level":
		cfg.Logging.Level = s
	case "logging.format":
		cfg.Logging.Format = s
	case "logging.file":
		cfg.Logging.File = s
	}
	return nil
}
