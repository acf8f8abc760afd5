package redis

// Defines Mocks for the redis Client

import (
	"context"

	"github.com/go-redis/redis/v8"

	"github.com/stretchr/testify/mock"
)

// MockClient is a mock redis Client
type MockClient struct {
	mock.Mock
}

func (mc *MockClient) Do(ctx context.Context, args ...any) (reply *redis.Cmd) {

	arguments := mc.Called(args...)
	return arguments.Get(0).(*redis.Cmd)
}

func (mc *MockClient) Pipeline() redis.Pipeliner {
	arguments := mc.Called()
	return arguments.Get(0).(redis.Pipeliner)
}

func (mc *MockClient) Ping(ctx context.Context) *redis.StatusCmd {
	arguments := mc.Called()
	return arguments.Get(0).(*redis.StatusCmd)
}

func (mc *MockClient) Close() error {
	arguments := mc.Called()
	return arguments.Error(0)
}

func (mc *MockClient) Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd {
	arguments := mc.Called(append([]any{script, keys}, args...)...)
	return arguments.Get(0).(*redis.Cmd)
}

func (mc *MockClient) EvalSha(ctx context.Context, sha1 string, keys []string, args ...any) *redis.Cmd {
	arguments := mc.Called(append([]any{sha1, keys}, args...)...)
	return arguments.Get(0).(*redis.Cmd)
}

func (mc *MockClient) ScriptExists(ctx context.Context, hashes ...string) *redis.BoolSliceCmd {
	arguments := mc.Called()
	return arguments.Get(0).(*redis.BoolSliceCmd)
}

func (mc *MockClient) ScriptLoad(ctx context.Context, script string) *redis.StringCmd {
	arguments := mc.Called(script)
	return arguments.Get(0).(*redis.StringCmd)
}

// NewErrorCmd returns a command that has already failed with err, for
// mocking Do.
func NewErrorCmd(ctx context.Context, err error) *redis.Cmd {
	cmd := redis.NewCmd(ctx)
	cmd.SetErr(err)
	return cmd
}

// NewMockClient returns a MockClient whose Pipeline queues on a client that
// never connects.
func NewMockClient() *MockClient {
	mc := &MockClient{}
	mc.On("Pipeline").Return(redis.NewClient(&redis.Options{Addr: "localhost:0"}).Pipeline()).Maybe()
	return mc
}
