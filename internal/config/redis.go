package config

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/redis/go-redis/v9"
)

// RedisConfig is read from REDIS_* variables.  Addr is used when Host is
// empty.
type RedisConfig struct {
	Host     string `envconfig:"HOST"`
	Port     string `envconfig:"PORT" default:"6379"`
	Addr     string `envconfig:"ADDR" default:"localhost:6379"`
	Password string `envconfig:"PASSWORD"`
	DB       int    `envconfig:"DB" default:"0"`
	TLS      bool   `envconfig:"TLS" default:"false"`
}

func LoadRedisConfig() (RedisConfig, error) {
	var c RedisConfig
	err := envconfig.Process("REDIS", &c)
	return c, err
}

func (c RedisConfig) address() string {
	if c.Host != "" {
		return net.JoinHostPort(c.Host, c.Port)
	}
	return c.Addr
}

// NewRedisClient connects and pings with a short timeout.  It returns nil
// when the server is unreachable; callers then run without rate limiting
// and caching.
func NewRedisClient(ctx context.Context, c RedisConfig) *redis.Client {
	var tlsConf *tls.Config
	if c.TLS {
		tlsConf = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(&redis.Options{
		Addr:      c.address(),
		Password:  c.Password,
		DB:        c.DB,
		TLSConfig: tlsConf,
	})
	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		_ = client.Close()
		return nil
	}
	return client
}
