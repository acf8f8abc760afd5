package redisobjs

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	otrace "github.com/opentracing/opentracing-go"

	"github.com/datatrails/go-datatrails-redisobjs/logger"
)

type Logger = logger.Logger

// Client is the part of a go-redis client this package needs. Both
// *redis.Client and *redis.ClusterClient satisfy it.
type Client interface {
	Do(ctx context.Context, args ...any) *redis.Cmd
	Pipeline() redis.Pipeliner
}

// Callback transforms a single reply before it is accumulated or returned.
// A missing reply (redis nil) arrives as nil.
type Callback func(reply any) any

// Observer is told about queued commands and executes. See
// metrics.NewPipelineObserver.
type Observer interface {
	ObserveCommand(command string)
	ObserveExecute(commands int, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveCommand(string)             {}
func (nopObserver) ObserveExecute(int, time.Duration) {}

type entry struct {
	cmd  *redis.Cmd
	name string

	// entries without a command either yield value or, for markers, only
	// close the open accumulation group
	placeholder bool
	marker      bool
	value       any

	callback   Callback
	acc        *Accumulator
	endOfGroup bool
}

// keyState is what is known about a key: its type and its size. Size is the
// length of a list, the byte length of a string and the next free score of a
// zset.
type keyState struct {
	rtype RType
	size  int
}

// Pipeline queues commands on a go-redis Pipeliner and executes them in one
// round trip, applying per entry callbacks and folding accumulator groups.
//
// A Pipeline may be shared by any number of Objects. It is not safe for
// concurrent use.
type Pipeline struct {
	id        string
	pipe      redis.Pipeliner
	entries   []entry
	commands  int
	projected map[string]keyState
	log       Logger
	observer  Observer
}

type PipelineOption func(*Pipeline)

func WithLogger(log Logger) PipelineOption {
	return func(p *Pipeline) {
		p.log = log
	}
}

func WithObserver(o Observer) PipelineOption {
	return func(p *Pipeline) {
		p.observer = o
	}
}

func NewPipeline(client Client, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		id:        uuid.NewString(),
		pipe:      client.Pipeline(),
		projected: make(map[string]keyState),
		log:       logger.Sugar,
		observer:  nopObserver{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) ID() string {
	return p.id
}

// Len is the number of queued entries, including placeholders and markers.
func (p *Pipeline) Len() int {
	return len(p.entries)
}

type EntryOption func(*entry)

func WithCallback(cb Callback) EntryOption {
	return func(e *entry) {
		e.callback = cb
	}
}

func WithAccumulator(acc *Accumulator) EntryOption {
	return func(e *entry) {
		e.acc = acc
	}
}

// EndOfGroup sets whether the entry closes its accumulation group. The
// default is true, so consecutive entries only share a group when all but
// the last say EndOfGroup(false).
func EndOfGroup(end bool) EntryOption {
	return func(e *entry) {
		e.endOfGroup = end
	}
}

func newEntry(opts []EntryOption) entry {
	e := entry{endOfGroup: true}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// Add queues command on key. Nothing is sent until Execute.
func (p *Pipeline) Add(ctx context.Context, command, key string, args []any, opts ...EntryOption) *Pipeline {
	e := newEntry(opts)
	e.name = command

	cmdArgs := make([]any, 0, len(args)+2)
	cmdArgs = append(cmdArgs, command, key)
	cmdArgs = append(cmdArgs, args...)
	e.cmd = p.pipe.Do(ctx, cmdArgs...)

	p.entries = append(p.entries, e)
	p.commands++
	p.observer.ObserveCommand(command)
	return p
}

// AddPlaceholder queues an entry that sends nothing and yields value. It
// keeps result positions aligned when a read or write has nothing to do.
func (p *Pipeline) AddPlaceholder(value any, opts ...EntryOption) *Pipeline {
	e := newEntry(opts)
	e.placeholder = true
	e.value = value
	p.entries = append(p.entries, e)
	return p
}

// MarkAccumulatorPop closes the open accumulation group, if any, at this
// point in the queue.
func (p *Pipeline) MarkAccumulatorPop() *Pipeline {
	p.entries = append(p.entries, entry{marker: true})
	return p
}

func (p *Pipeline) projectedState(key string) (keyState, bool) {
	st, ok := p.projected[key]
	return st, ok
}

// project records the state key will have once the queued writes run, so
// later writes queued before Execute build on it.
func (p *Pipeline) project(key string, st keyState) {
	p.projected[key] = st
}

func (p *Pipeline) reset() {
	p.entries = nil
	p.commands = 0
	p.projected = make(map[string]keyState)
	_ = p.pipe.Discard()
}

type group struct {
	acc   *Accumulator
	value any
}

// Execute sends the queued commands in one round trip and returns one result
// per plain entry or accumulation group, in queue order. The queue is
// cleared whether or not Execute succeeds.
//
// A missing reply is nil. Any other command error is returned unchanged.
func (p *Pipeline) Execute(ctx context.Context) ([]any, error) {
	log := p.log.FromContext(ctx)
	defer log.Close()

	span, ctx := otrace.StartSpanFromContext(ctx, "redis.redisobjs.Pipeline.Execute")
	defer span.Finish()
	span.SetTag("pipeline", p.id)

	entries := p.entries
	commands := p.commands
	defer p.reset()

	if commands > 0 {
		log.Debugf("pipeline %s: execute %d commands (%d entries)", p.id, commands, len(entries))
		start := time.Now()
		// Exec reports the first failed command, which includes redis.Nil
		// for a missing key, so each reply is checked below instead.
		if _, err := p.pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
			log.Debugf("pipeline %s: exec: %v", p.id, err)
		}
		p.observer.ObserveExecute(commands, time.Since(start))
	}

	results := make([]any, 0, len(entries))
	var open *group
	closeGroup := func() {
		if open != nil {
			results = append(results, open.value)
			open = nil
		}
	}

	for _, e := range entries {
		if e.marker {
			closeGroup()
			continue
		}

		value := e.value
		if e.cmd != nil {
			reply, err := e.cmd.Result()
			switch {
			case errors.Is(err, redis.Nil):
				reply = nil
			case err != nil:
				log.Debugf("pipeline %s: %s failed: %v", p.id, e.name, err)
				return nil, err
			}
			value = reply
		}
		if e.callback != nil {
			value = e.callback(value)
		}

		if e.acc == nil {
			closeGroup()
			results = append(results, value)
			continue
		}
		if open != nil && open.acc != e.acc {
			closeGroup()
		}
		if open == nil {
			open = &group{acc: e.acc, value: e.acc.Seed()}
		}
		open.value = e.acc.Reduce(open.value, value)
		if e.endOfGroup {
			closeGroup()
		}
	}
	closeGroup()

	return results, nil
}
