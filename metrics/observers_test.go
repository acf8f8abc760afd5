package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datatrails/go-datatrails-redisobjs/logger"
	"github.com/datatrails/go-datatrails-redisobjs/redisobjs"
)

var _ redisobjs.Observer = (*PipelineObservers)(nil)

func TestPipelineObserver(t *testing.T) {
	logger.New("NOOP")
	defer logger.OnExit()

	m := New(logger.Sugar, "Holdings")
	o := NewPipelineObserver(m)

	o.ObserveCommand("GET")
	o.ObserveCommand("GET")
	o.ObserveCommand("SET")
	o.ObserveExecute(3, 2*time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(o.commands.WithLabelValues("holdings", "GET")))
	assert.Equal(t, float64(1), testutil.ToFloat64(o.commands.WithLabelValues("holdings", "SET")))
	assert.Equal(t, float64(1), testutil.ToFloat64(o.executes.WithLabelValues("holdings")))
	assert.Equal(t, 1, testutil.CollectAndCount(o.latency))
	assert.Equal(t, 1, testutil.CollectAndCount(o.batchSize))
}

func TestNilPipelineObserver(t *testing.T) {
	o := NewPipelineObserver(nil)
	assert.Nil(t, o)

	// records nothing, and does not panic
	o.ObserveCommand("GET")
	o.ObserveExecute(1, time.Millisecond)
}

// TestPipelineObserverWired runs a real pipeline against miniredis and reads
// the result back through the prometheus handler.
func TestPipelineObserverWired(t *testing.T) {
	logger.New("NOOP")
	defer logger.OnExit()

	ctx := context.Background()
	mr := miniredis.RunT(t)
	c := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer c.Close()

	m := New(logger.Sugar, "test")
	o := NewPipelineObserver(m)

	p := redisobjs.NewPipeline(c, redisobjs.WithObserver(o))
	obj := redisobjs.NewObject(c, "wired", "1", redisobjs.WithPipeline(p))
	_, err := obj.Set(ctx, []string{"a", "b"})
	require.NoError(t, err)

	// DEL and RPUSH in one round trip
	assert.Equal(t, float64(1), testutil.ToFloat64(o.commands.WithLabelValues("test", "DEL")))
	assert.Equal(t, float64(1), testutil.ToFloat64(o.commands.WithLabelValues("test", "RPUSH")))
	assert.Equal(t, float64(1), testutil.ToFloat64(o.executes.WithLabelValues("test")))

	srv := httptest.NewServer(m.NewPromHandler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `redisobjs_pipeline_commands_total{command="RPUSH",service="test"} 1`)
	assert.Contains(t, string(body), "redisobjs_pipeline_batch_size_count")
}

func TestNewFromEnvironment(t *testing.T) {
	logger.New("NOOP")
	defer logger.OnExit()

	t.Setenv("USE_METRICS", "false")
	assert.Nil(t, NewFromEnvironment(logger.Sugar, "test"))
	assert.Equal(t, "", NewFromEnvironment(logger.Sugar, "test").Port())

	t.Setenv("USE_METRICS", "true")
	t.Setenv("METRICS_PORT", "9090")
	m := NewFromEnvironment(logger.Sugar, "Test")
	require.NotNil(t, m)
	assert.Equal(t, "9090", m.Port())
	assert.Equal(t, "test", m.String())
}
