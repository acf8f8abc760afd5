package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	env "github.com/datatrails/go-datatrails-redisobjs/environment"
	"github.com/go-redis/redis/v8"
)

const (
	RedisClusterSizeEnv       = "REDIS_CLUSTER_SIZE"
	RedisNodeAddressFmt       = "REDIS_NODE%d_STORE_ADDRESS"
	RedisNodeAddressEnv       = "REDIS_STORE_ADDRESS"
	RedisDBEnv                = "REDIS_STORE_DB"
	RedisUseTLSEnv            = "REDIS_USE_TLS"
	RedisPasswordFilenameEnv  = "REDIS_STORE_PASSWORD_FILENAME" //nolint:gosec
	defaultRedisNodeAddress   = "localhost:6379"
	defaultClusterSize        = -1
	connectTimeout            = 30 * time.Second
	// The default implementation does 10 * GOMAXPROCS(0). GOMAXPROCS is
	// problematic in containers. Note that each cluster node gets its own pool
	nodePoolSize = 10
)

// RedisConfig describes how to connect to redis. It is read once at process
// start.
type RedisConfig interface {
	GetClusterOptions() (*redis.ClusterOptions, error)
	GetOptions() (*redis.Options, error)
	IsCluster() bool
	URL() string
	Log() Logger
}

type clusterConfig struct {
	log            Logger
	Size           int
	useTLS         bool
	clusterOptions redis.ClusterOptions
	options        redis.Options
}

// FromEnvOrFatal reads the connection descriptor from the conventional
// environment variables. A cluster size of -1 (the default) selects a single
// node.
func FromEnvOrFatal(log Logger) RedisConfig {
	cfg := clusterConfig{log: log}

	cfg.Size = env.GetIntWithDefault(RedisClusterSizeEnv, defaultClusterSize)
	cfg.useTLS = env.GetTruthy(RedisUseTLSEnv)
	password := env.ReadIndirectWithDefault(RedisPasswordFilenameEnv, "")

	if cfg.Size == -1 {
		cfg.options.Addr = env.GetWithDefault(RedisNodeAddressEnv, defaultRedisNodeAddress)
		cfg.options.DB = env.GetIntWithDefault(RedisDBEnv, 0)
		cfg.options.Password = password
		return &cfg
	}

	cfg.clusterOptions.Password = password
	cfg.clusterOptions.PoolSize = nodePoolSize
	cfg.clusterOptions.Addrs = make([]string, 0, cfg.Size)
	cfg.clusterOptions.MaxRedirects = cfg.Size
	for i := range cfg.Size {
		cfg.clusterOptions.Addrs = append(
			cfg.clusterOptions.Addrs,
			env.GetOrFatal(fmt.Sprintf(RedisNodeAddressFmt, i)),
		)
	}
	log.InfoR("Addrs", cfg.clusterOptions.Addrs)

	return &cfg
}

func (cfg *clusterConfig) Log() Logger {
	return cfg.log
}

func (cfg *clusterConfig) IsCluster() bool {
	return cfg.Size > -1
}

func (cfg *clusterConfig) GetClusterOptions() (*redis.ClusterOptions, error) {
	if cfg.IsCluster() {
		return &cfg.clusterOptions, nil
	}
	return nil, fmt.Errorf("unexpected config type when requesting ClusterOptions")
}

func (cfg *clusterConfig) GetOptions() (*redis.Options, error) {
	if !cfg.IsCluster() {
		return &cfg.options, nil
	}
	return nil, fmt.Errorf("unexpected config type when requesting Options")
}

func (cfg *clusterConfig) URL() string {
	if cfg.IsCluster() {
		if len(cfg.clusterOptions.Addrs) == 0 {
			return ""
		}
		return cfg.clusterOptions.Addrs[0]
	}
	return cfg.options.Addr
}

func (cfg *clusterConfig) tlsConfig() *tls.Config {
	if !cfg.useTLS {
		return nil
	}
	return &tls.Config{MinVersion: tls.VersionTLS12}
}

// NewClient creates the shared connection described by cfg and pings it once.
func NewClient(cfg RedisConfig) (Client, error) {
	log := cfg.Log()

	var tlsConfig *tls.Config
	if c, ok := cfg.(*clusterConfig); ok {
		tlsConfig = c.tlsConfig()
	}

	var c Client
	if cfg.IsCluster() {
		copts, err := cfg.GetClusterOptions()
		if err != nil {
			return nil, err
		}
		copts.TLSConfig = tlsConfig
		c = redis.NewClusterClient(copts)
	} else {
		opts, err := cfg.GetOptions()
		if err != nil {
			return nil, err
		}
		opts.TLSConfig = tlsConfig
		c = redis.NewClient(opts)
	}

	log.Infof("connecting to redis: %s", cfg.URL())
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	status := c.Ping(ctx)
	if status.Err() != nil {
		log.Infof("failed ping: %v (%v, %v)", status.Err(), status.FullName(), status.Args())
		return nil, ConnectError(status.Err(), cfg.URL())
	}
	return c, nil
}
