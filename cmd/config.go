package main

import (
	"strings"
	"time"

	"github.com/samber/lo"
)

type Config struct {
	Host                  string        `env:"HOST,default=0.0.0.0"`
	Port                  int           `env:"PORT,default=5000"`
	OpsPort               int           `env:"OPS_PORT,default=9090"`
	LogLevel              string        `env:"LOG_LEVEL,default=INFO"`
	BadgerFilepath        string        `env:"BADGER_FILEPATH,required=true"`
	JWTSecret             string        `env:"JWT_SECRET,required=true"`
	AuthTokenDuration     time.Duration `env:"AUTH_TOKEN_DURATION,default=168h"`
	MaxContentLength      int           `env:"MAX_CONTENT_LENGTH,default=5000"`
	ConnectionBufferSize  int           `env:"CONNECTION_BUFFER_SIZE,default=64"`
	DeliveryTimeout       time.Duration `env:"DELIVERY_TIMEOUT,default=5s"`
	SweepInterval         time.Duration `env:"SWEEP_INTERVAL,default=1m"`
	StatsInterval         time.Duration `env:"STATS_INTERVAL,default=15s"`
	RestartInterval       time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	ShutdownTimeout       time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
	CorsOrigin            string        `env:"CORS_ORIGIN,default=*"`
	LimitMessages         *int          `env:"LIMIT_MESSAGES"`
	NotifySessionReplaced bool          `env:"NOTIFY_SESSION_REPLACED,default=true"`
}

// AllowedOrigins splits CORS_ORIGIN on commas.
func (c Config) AllowedOrigins() []string {
	origins := lo.Map(strings.Split(c.CorsOrigin, ","), func(origin string, _ int) string {
		return strings.TrimSuffix(strings.TrimSpace(origin), "/")
	})
	return lo.Compact(origins)
}
