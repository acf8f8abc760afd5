package redisobjs

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/mock"
)

// newTestClient sets up a fresh instance of miniredis and a client for it.
func newTestClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

// mockClient is a mock redis Client
type mockClient struct {
	mock.Mock
}

func (mc *mockClient) Do(ctx context.Context, args ...any) *redis.Cmd {
	arguments := mc.Called(args...)
	return arguments.Get(0).(*redis.Cmd)
}

func (mc *mockClient) Pipeline() redis.Pipeliner {
	arguments := mc.Called()
	return arguments.Get(0).(redis.Pipeliner)
}
