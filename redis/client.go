package redis

import (
	"context"

	"github.com/go-redis/redis/v8"

	"github.com/datatrails/go-datatrails-redisobjs/logger"
)

type Logger = logger.Logger

// Client is satisfied by both *redis.Client and *redis.ClusterClient. It is a
// superset of redisobjs.Client.
type Client interface {
	Do(ctx context.Context, args ...any) *redis.Cmd
	Pipeline() redis.Pipeliner
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error

	redis.Scripter
}
