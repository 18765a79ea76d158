// Package repository selects the meeting store implementation from config
package repository

import (
	"fmt"

	"github.com/dkeye/Consult/internal/config"
	"github.com/dkeye/Consult/internal/core"
	"github.com/dkeye/Consult/internal/repository/memory"
	"github.com/dkeye/Consult/internal/repository/redis"
)

// New builds the store named by cfg.Driver.
func New(cfg config.StoreConfig) (core.MeetingStore, error) {
	switch cfg.Driver {
	case "", "memory":
		return memory.NewRepository(), nil
	case "redis":
		return redis.NewRepository(cfg.Redis)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
