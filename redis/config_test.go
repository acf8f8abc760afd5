package redis

import (
	"context"
	"crypto/tls"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datatrails/go-datatrails-redisobjs/logger"
)

func TestFromEnvSingleNode(t *testing.T) {
	logger.New("NOOP")
	defer logger.OnExit()

	dir := t.TempDir()
	passwordFile := filepath.Join(dir, "password")
	require.NoError(t, os.WriteFile(passwordFile, []byte("secret"), 0o600))

	t.Setenv(RedisClusterSizeEnv, "-1")
	t.Setenv(RedisNodeAddressEnv, "redis.example:6380")
	t.Setenv(RedisDBEnv, "2")
	t.Setenv(RedisPasswordFilenameEnv, passwordFile)

	cfg := FromEnvOrFatal(logger.Sugar)
	assert.False(t, cfg.IsCluster())
	assert.Equal(t, "redis.example:6380", cfg.URL())

	opts, err := cfg.GetOptions()
	require.NoError(t, err)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, "secret", opts.Password)

	_, err = cfg.GetClusterOptions()
	assert.Error(t, err)
}

func TestFromEnvDefaults(t *testing.T) {
	logger.New("NOOP")
	defer logger.OnExit()

	t.Setenv(RedisClusterSizeEnv, "not a number")

	cfg := FromEnvOrFatal(logger.Sugar)
	assert.False(t, cfg.IsCluster())
	if _, ok := os.LookupEnv(RedisNodeAddressEnv); !ok {
		assert.Equal(t, defaultRedisNodeAddress, cfg.URL())
	}
}

func TestFromEnvCluster(t *testing.T) {
	logger.New("NOOP")
	defer logger.OnExit()

	t.Setenv(RedisClusterSizeEnv, "2")
	t.Setenv("REDIS_NODE0_STORE_ADDRESS", "node0:6379")
	t.Setenv("REDIS_NODE1_STORE_ADDRESS", "node1:6379")
	t.Setenv(RedisUseTLSEnv, "true")

	cfg := FromEnvOrFatal(logger.Sugar)
	assert.True(t, cfg.IsCluster())
	assert.Equal(t, "node0:6379", cfg.URL())

	copts, err := cfg.GetClusterOptions()
	require.NoError(t, err)
	assert.Equal(t, []string{"node0:6379", "node1:6379"}, copts.Addrs)
	assert.Equal(t, nodePoolSize, copts.PoolSize)
	assert.Equal(t, 2, copts.MaxRedirects)

	_, err = cfg.GetOptions()
	assert.Error(t, err)

	tlsConfig := cfg.(*clusterConfig).tlsConfig()
	require.NotNil(t, tlsConfig)
	assert.Equal(t, uint16(tls.VersionTLS12), tlsConfig.MinVersion)
}

func TestFromEnvClusterMissingNode(t *testing.T) {
	logger.New("NOOP")
	defer logger.OnExit()

	t.Setenv(RedisClusterSizeEnv, "1")
	t.Setenv("REDIS_NODE0_STORE_ADDRESS", "")
	os.Unsetenv("REDIS_NODE0_STORE_ADDRESS")

	assert.Panics(t, func() { FromEnvOrFatal(logger.Sugar) })
}

func TestNewClient(t *testing.T) {
	logger.New("NOOP")
	defer logger.OnExit()

	mr := miniredis.RunT(t)
	t.Setenv(RedisClusterSizeEnv, "-1")
	t.Setenv(RedisNodeAddressEnv, mr.Addr())
	t.Setenv(RedisUseTLSEnv, "false")

	c, err := NewClient(FromEnvOrFatal(logger.Sugar))
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.Do(ctx, "SET", "k", "v").Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestNewClientConnectError(t *testing.T) {
	logger.New("NOOP")
	defer logger.OnExit()

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	t.Setenv(RedisClusterSizeEnv, "-1")
	t.Setenv(RedisNodeAddressEnv, addr)
	t.Setenv(RedisUseTLSEnv, "false")

	_, err := NewClient(FromEnvOrFatal(logger.Sugar))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRedisConnect)
	assert.Contains(t, err.Error(), addr)
}
