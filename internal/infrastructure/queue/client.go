package queue

import (
	"github.com/bakery/backoffice/internal/infrastructure/config"
	"github.com/hibiken/asynq"
)

// RedisOpt returns the asynq connection options for the configured redis
func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// NewClient creates an asynq client. Close it on shutdown.
func NewClient(cfg config.RedisConfig) *asynq.Client {
	return asynq.NewClient(RedisOpt(cfg))
}
