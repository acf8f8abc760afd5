package redisobjs

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datatrails/go-datatrails-redisobjs/logger"
)

func seedList(t *testing.T, ctx context.Context, c Client, key string, values ...any) {
	t.Helper()
	args := append([]any{"RPUSH", key}, values...)
	require.NoError(t, c.Do(ctx, args...).Err())
}

func TestPipelineOrdering(t *testing.T) {
	logger.New("NOOP")
	defer logger.OnExit()

	ctx := context.Background()
	c, _ := newTestClient(t)
	seedList(t, ctx, c, "l", "a", "b", "c")

	p := NewPipeline(c)
	for i := range 3 {
		p.Add(ctx, "LINDEX", "l", []any{i})
	}
	assert.Equal(t, 3, p.Len())

	results, err := p.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b", "c"}, results)
	assert.Equal(t, 0, p.Len())
}

func TestPipelineSharedAccumulator(t *testing.T) {
	logger.New("NOOP")
	defer logger.OnExit()

	ctx := context.Background()
	c, _ := newTestClient(t)
	seedList(t, ctx, c, "l", "a", "b", "c")

	p := NewPipeline(c)
	acc := ListAccumulator()
	for i := range 3 {
		p.Add(ctx, "LINDEX", "l", []any{i}, WithAccumulator(acc), EndOfGroup(i == 2))
	}
	results, err := p.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, []any{[]any{"a", "b", "c"}}, results)
}

func TestPipelineGroups(t *testing.T) {
	logger.New("NOOP")
	defer logger.OnExit()

	ctx := context.Background()
	c, _ := newTestClient(t)
	seedList(t, ctx, c, "ints", "1", "2", "3", "4", "5")
	seedList(t, ctx, c, "strs", "a", "b", "c", "d", "e")
	require.NoError(t, c.Do(ctx, "SET", "str", "foobarbaz").Err())

	toInt := func(reply any) any {
		i, _ := replyInt(reply)
		return i
	}

	p := NewPipeline(c)
	acc := ListAccumulator()
	for _, i := range []int{0, 2, 4} {
		p.Add(ctx, "LINDEX", "ints", []any{i}, WithCallback(toInt), WithAccumulator(acc), EndOfGroup(false))
	}
	p.MarkAccumulatorPop()
	for _, i := range []int{1, 3} {
		p.Add(ctx, "LINDEX", "strs", []any{i}, WithAccumulator(acc), EndOfGroup(false))
	}
	p.MarkAccumulatorPop()
	p.Add(ctx, "GET", "str", nil)

	results, err := p.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, []any{[]any{1, 3, 5}, []any{"b", "d"}, "foobarbaz"}, results)
}

func TestPipelineOpenGroupClosedByPlainEntry(t *testing.T) {
	logger.New("NOOP")
	defer logger.OnExit()

	ctx := context.Background()
	c, _ := newTestClient(t)
	seedList(t, ctx, c, "l", "a", "b")

	p := NewPipeline(c)
	acc := ListAccumulator()
	p.Add(ctx, "LINDEX", "l", []any{0}, WithAccumulator(acc), EndOfGroup(false))
	p.AddPlaceholder("between")
	p.Add(ctx, "LINDEX", "l", []any{1}, WithAccumulator(acc), EndOfGroup(false))

	results, err := p.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, []any{[]any{"a"}, "between", []any{"b"}}, results)
}

func TestPipelineDistinctAccumulators(t *testing.T) {
	logger.New("NOOP")
	defer logger.OnExit()

	ctx := context.Background()
	c, _ := newTestClient(t)
	seedList(t, ctx, c, "l", "a", "b", "c")

	p := NewPipeline(c)
	first, second := ListAccumulator(), ExtendAccumulator()
	p.Add(ctx, "LINDEX", "l", []any{0}, WithAccumulator(first), EndOfGroup(false))
	p.Add(ctx, "LRANGE", "l", []any{1, 2}, WithAccumulator(second), EndOfGroup(false))
	p.Add(ctx, "LRANGE", "l", []any{0, 0}, WithAccumulator(second))

	results, err := p.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, []any{[]any{"a"}, []any{"b", "c", "a"}}, results)
}

func TestPipelineMissingReplyIsNil(t *testing.T) {
	logger.New("NOOP")
	defer logger.OnExit()

	ctx := context.Background()
	c, _ := newTestClient(t)

	p := NewPipeline(c)
	p.Add(ctx, "GET", "nosuch", nil)
	p.Add(ctx, "HGET", "nosuch", []any{"f"}, WithCallback(decodeElement))

	results, err := p.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, []any{nil, nil}, results)
}

func TestPipelinePlaceholdersOnly(t *testing.T) {
	logger.New("NOOP")
	defer logger.OnExit()

	c, _ := newTestClient(t)
	p := NewPipeline(c)
	p.AddPlaceholder("x").AddPlaceholder(nil)

	results, err := p.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []any{"x", nil}, results)
}

func TestPipelineCommandErrorPropagates(t *testing.T) {
	logger.New("NOOP")
	defer logger.OnExit()

	ctx := context.Background()
	c, _ := newTestClient(t)
	require.NoError(t, c.Do(ctx, "SET", "str", "v").Err())

	p := NewPipeline(c)
	p.Add(ctx, "GET", "str", nil)
	p.Add(ctx, "LPUSH", "str", []any{"x"})

	_, err := p.Execute(ctx)
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "WRONGTYPE"), err.Error())

	// the queue is cleared, so the pipeline can be used again
	assert.Equal(t, 0, p.Len())
	p.Add(ctx, "GET", "str", nil)
	results, err := p.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, []any{"v"}, results)
}

type countingObserver struct {
	commands map[string]int
	executes []int
}

func (o *countingObserver) ObserveCommand(command string) {
	o.commands[command]++
}

func (o *countingObserver) ObserveExecute(commands int, _ time.Duration) {
	o.executes = append(o.executes, commands)
}

func TestPipelineObserver(t *testing.T) {
	logger.New("NOOP")
	defer logger.OnExit()

	ctx := context.Background()
	c, _ := newTestClient(t)

	o := &countingObserver{commands: map[string]int{}}
	p := NewPipeline(c, WithObserver(o), WithLogger(logger.Sugar))
	p.Add(ctx, "SET", "a", []any{"1"})
	p.Add(ctx, "GET", "a", nil)
	p.Add(ctx, "GET", "b", nil)
	p.AddPlaceholder(nil)

	_, err := p.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"SET": 1, "GET": 2}, o.commands)
	assert.Equal(t, []int{3}, o.executes)
}
