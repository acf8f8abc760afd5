// Package usertimestamp remembers the last request timestamp accepted for each
// API user, so that a signed request cannot be replayed.
package usertimestamp

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/go-redis/redis/v8"
	otrace "github.com/opentracing/opentracing-go"

	"github.com/datatrails/go-datatrails-redisobjs/logger"
	"github.com/datatrails/go-datatrails-redisobjs/redisobjs"
)

const Entity = "user_timestamp"

var (
	ErrStaleTimestamp   = errors.New("timestamp is not later than the last accepted")
	ErrInvalidTimestamp = errors.New("invalid timestamp")
)

type Logger = logger.Logger

// Client reads through redisobjs and advances with a script.
type Client interface {
	redisobjs.Client
	redis.Scripter
}

// advance stores ARGV[2] unless the stored timestamp is not earlier than
// ARGV[1]. It returns 1 when stored, 0 when stale and -1 when the stored
// value is not a number.
var advance = redis.NewScript(`
local last = redis.call("GET", KEYS[1])
if last then
  local n = tonumber(last)
  if not n then
    return -1
  end
  if tonumber(ARGV[1]) <= n then
    return 0
  end
end
redis.call("SET", KEYS[1], ARGV[2])
return 1
`)

type Cache struct {
	client Client
	log    Logger
}

type CacheOption func(*Cache)

func WithLogger(log Logger) CacheOption {
	return func(c *Cache) {
		c.log = log
	}
}

func NewCache(client Client, opts ...CacheOption) *Cache {
	c := &Cache{
		client: client,
		log:    logger.Sugar,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) object(user string) *redisobjs.Object {
	p := redisobjs.NewPipeline(c.client, redisobjs.WithLogger(c.log))
	return redisobjs.NewObject(c.client, Entity, user, redisobjs.WithPipeline(p))
}

// Last returns the last timestamp accepted for user, or 0 if there is none.
func (c *Cache) Last(ctx context.Context, user string) (float64, error) {
	v, err := c.object(user).Get(ctx, redisobjs.Whole())
	if err != nil {
		return 0, err
	}
	switch ts := v.(type) {
	case nil:
		return 0, nil
	case int64:
		return float64(ts), nil
	case float64:
		return ts, nil
	case string:
		f, err := strconv.ParseFloat(ts, 64)
		if err != nil {
			return 0, fmt.Errorf("%w %s: %q", ErrInvalidTimestamp, user, ts)
		}
		return f, nil
	}
	return 0, fmt.Errorf("%w %s: %v", ErrInvalidTimestamp, user, v)
}

// Advance accepts timestamp for user if it is later than the last one
// accepted, and records it. The compare and the write are one atomic step, so
// of several concurrent calls with the same timestamp exactly one succeeds.
func (c *Cache) Advance(ctx context.Context, user, timestamp string) error {
	log := c.log.FromContext(ctx)
	defer log.Close()

	span, ctx := otrace.StartSpanFromContext(ctx, "usertimestamp.Cache.Advance")
	defer span.Finish()

	ts, err := strconv.ParseFloat(timestamp, 64)
	if err != nil || math.IsInf(ts, 0) || math.IsNaN(ts) {
		return fmt.Errorf("%w %s: %q", ErrInvalidTimestamp, user, timestamp)
	}
	key := c.object(user).Key
	n, err := advance.Run(
		ctx, c.client, []string{key}, strconv.FormatFloat(ts, 'f', -1, 64), timestamp,
	).Int64()
	if err != nil {
		return err
	}
	switch n {
	case 0:
		log.Infof("stale timestamp for %s: %s", user, timestamp)
		return fmt.Errorf("%w %s: %s", ErrStaleTimestamp, user, timestamp)
	case -1:
		return fmt.Errorf("%w %s: stored value is not a number", ErrInvalidTimestamp, user)
	}
	return nil
}
