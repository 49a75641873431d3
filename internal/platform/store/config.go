package store

import "time"

// Config selects and tunes the backends. AppName is reported as the client name
type Config struct {
	AppName string
	PG      PGConfig
	CH      CHConfig
	RDS     RedisConfig
}

// PGConfig tunes the postgres pool
type PGConfig struct {
	Enabled        bool
	URL            string
	MaxConns       int32
	LogSQL         bool
	SlowQueryMs    int
	ConnectRetries int
	PingTimeout    time.Duration
}

// CHConfig points at the clickhouse report sink
type CHConfig struct {
	Enabled bool
	URL     string
}

// RedisConfig locates redis. URL takes precedence over Addr
type RedisConfig struct {
	Enabled     bool
	URL         string
	Addr        string
	DB          int
	PingTimeout time.Duration
}

// withDefaults fills boot knobs left at zero: six pg connect attempts,
// 5s pg pings and 3s redis pings
func (c Config) withDefaults() Config {
	if c.PG.ConnectRetries <= 0 {
		c.PG.ConnectRetries = 6
	}
	if c.PG.PingTimeout <= 0 {
		c.PG.PingTimeout = 5 * time.Second
	}
	if c.RDS.PingTimeout <= 0 {
		c.RDS.PingTimeout = 3 * time.Second
	}
	return c
}
