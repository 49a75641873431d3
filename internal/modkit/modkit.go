// Package modkit wires API modules: shared deps in, routes and ports out
package modkit

import (
	"github.com/redis/go-redis/v9"

	"detention/internal/modkit/module"
	"detention/internal/modkit/repokit"
	"detention/internal/platform/config"
	"detention/internal/platform/logger"
	"detention/internal/platform/store"
)

// Module is the contract every API module satisfies
type Module = module.Module

// Deps holds what a module may need from the process. Store fields are nil
// when that backend is not configured
type Deps struct {
	Log logger.Logger
	Cfg config.Conf
	PG  repokit.TxRunner
	CH  store.Clickhouse
	RDS *redis.Client
}
