// Package holdings caches which holdings records belong to each electronic
// resource, and the reverse.
//
// Each resource's holdings are an ordered list without repeats, stored as a
// zset under eresource_holdings_list:<ernum>. A single hash,
// reverse_holdings_list:0, maps each holding back to its resource.
package holdings

import (
	"context"
	"fmt"
	"sort"

	otrace "github.com/opentracing/opentracing-go"

	"github.com/datatrails/go-datatrails-redisobjs/logger"
	"github.com/datatrails/go-datatrails-redisobjs/redisobjs"
)

const (
	ListEntity    = "eresource_holdings_list"
	ReverseEntity = "reverse_holdings_list"
	reverseID     = "0"
)

type Logger = logger.Logger

type Cache struct {
	client    redisobjs.Client
	log       Logger
	observer  redisobjs.Observer
	batchSize int
}

type CacheOption func(*Cache)

func WithLogger(log Logger) CacheOption {
	return func(c *Cache) {
		c.log = log
	}
}

func WithObserver(o redisobjs.Observer) CacheOption {
	return func(c *Cache) {
		c.observer = o
	}
}

// WithBatchSize writes and reads whole lists in chunks of n holdings.
func WithBatchSize(n int) CacheOption {
	return func(c *Cache) {
		c.batchSize = n
	}
}

func NewCache(client redisobjs.Client, opts ...CacheOption) *Cache {
	c := &Cache{
		client: client,
		log:    logger.Sugar,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) newPipeline() *redisobjs.Pipeline {
	opts := []redisobjs.PipelineOption{redisobjs.WithLogger(c.log)}
	if c.observer != nil {
		opts = append(opts, redisobjs.WithObserver(c.observer))
	}
	return redisobjs.NewPipeline(c.client, opts...)
}

func (c *Cache) list(p *redisobjs.Pipeline, ernum string) *redisobjs.Object {
	return redisobjs.NewObject(c.client, ListEntity, ernum, redisobjs.WithPipeline(p), redisobjs.Deferred())
}

func (c *Cache) reverse(p *redisobjs.Pipeline) *redisobjs.Object {
	return redisobjs.NewObject(c.client, ReverseEntity, reverseID, redisobjs.WithPipeline(p), redisobjs.Deferred())
}

func (c *Cache) object(entity, id string) *redisobjs.Object {
	return redisobjs.NewObject(c.client, entity, id, redisobjs.WithPipeline(c.newPipeline()))
}

func (c *Cache) stream(ernum string) (*redisobjs.Stream, error) {
	return redisobjs.NewStream(c.object(ListEntity, ernum), c.batchSize, 0)
}

// Put replaces the holdings list of each resource in lists and records the
// resource as the owner of each holding. An empty list deletes the
// resource's list.
func (c *Cache) Put(ctx context.Context, lists map[string][]string) error {
	log := c.log.FromContext(ctx)
	defer log.Close()

	span, ctx := otrace.StartSpanFromContext(ctx, "holdings.Cache.Put")
	defer span.Finish()

	ernums := make([]string, 0, len(lists))
	for ernum := range lists {
		ernums = append(ernums, ernum)
	}
	sort.Strings(ernums)

	p := c.newPipeline()
	owners := map[string]any{}
	for _, ernum := range ernums {
		hs := lists[ernum]
		if c.batchSize > 0 && len(hs) > c.batchSize {
			s, err := c.stream(ernum)
			if err != nil {
				return err
			}
			steps, err := s.Set(ctx, hs, redisobjs.ForceUnique(true))
			if err != nil {
				return err
			}
			log.Debugf("Put %s: %d holdings in %d steps", ernum, len(hs), len(steps))
		} else if _, err := c.list(p, ernum).Set(ctx, hs, redisobjs.ForceUnique(true)); err != nil {
			return err
		}
		for _, h := range hs {
			owners[h] = ernum
		}
	}
	if len(owners) > 0 {
		if _, err := c.reverse(p).SetField(ctx, owners); err != nil {
			return err
		}
	}

	log.Debugf("Put %d lists, %d holdings", len(ernums), len(owners))
	_, err := p.Execute(ctx)
	return err
}

// Append adds holdings to the end of a resource's list. A holding already
// in the list moves to the end.
func (c *Cache) Append(ctx context.Context, ernum string, hs ...string) error {
	log := c.log.FromContext(ctx)
	defer log.Close()

	if len(hs) == 0 {
		return nil
	}

	p := c.newPipeline()
	if _, err := c.list(p, ernum).Set(ctx, hs, redisobjs.ForceUnique(true), redisobjs.Update()); err != nil {
		return err
	}
	owners := make(map[string]any, len(hs))
	for _, h := range hs {
		owners[h] = ernum
	}
	if _, err := c.reverse(p).SetField(ctx, owners); err != nil {
		return err
	}

	log.Debugf("Append %s: %d holdings", ernum, len(hs))
	_, err := p.Execute(ctx)
	return err
}

// Remove takes holdings out of a resource's list, and drops their owner
// where it is that resource.
func (c *Cache) Remove(ctx context.Context, ernum string, hs ...string) error {
	log := c.log.FromContext(ctx)
	defer log.Close()

	current, err := c.Holdings(ctx, ernum)
	if err != nil {
		return err
	}
	owners, err := c.owners(ctx)
	if err != nil {
		return err
	}

	drop := make(map[string]bool, len(hs))
	for _, h := range hs {
		drop[h] = true
		if owners[h] == ernum {
			delete(owners, h)
		}
	}
	remaining := make([]string, 0, len(current))
	for _, h := range current {
		if !drop[h] {
			remaining = append(remaining, h)
		}
	}

	p := c.newPipeline()
	if _, err = c.list(p, ernum).Set(ctx, remaining, redisobjs.ForceUnique(true)); err != nil {
		return err
	}
	if _, err = c.reverse(p).Set(ctx, owners); err != nil {
		return err
	}

	log.Debugf("Remove %s: %d of %d holdings remain", ernum, len(remaining), len(current))
	_, err = p.Execute(ctx)
	return err
}

// Delete drops the lists of the given resources and every reverse entry
// pointing at them.
func (c *Cache) Delete(ctx context.Context, ernums ...string) error {
	log := c.log.FromContext(ctx)
	defer log.Close()

	if len(ernums) == 0 {
		return nil
	}
	owners, err := c.owners(ctx)
	if err != nil {
		return err
	}

	deleted := make(map[string]bool, len(ernums))
	for _, ernum := range ernums {
		deleted[ernum] = true
	}
	for h, ernum := range owners {
		if s, ok := ernum.(string); ok && deleted[s] {
			delete(owners, h)
		}
	}

	p := c.newPipeline()
	for _, ernum := range ernums {
		if _, err = c.list(p, ernum).Delete(ctx); err != nil {
			return err
		}
	}
	if _, err = c.reverse(p).Set(ctx, owners); err != nil {
		return err
	}

	log.Debugf("Delete %d lists, %d owners remain", len(ernums), len(owners))
	_, err = p.Execute(ctx)
	return err
}

// Holdings returns a resource's holdings in order, nil if it has none.
func (c *Cache) Holdings(ctx context.Context, ernum string) ([]string, error) {
	var v any
	var err error
	if c.batchSize > 0 {
		var s *redisobjs.Stream
		if s, err = c.stream(ernum); err != nil {
			return nil, err
		}
		v, err = s.Get(ctx, redisobjs.Whole())
	} else {
		v, err = c.object(ListEntity, ernum).Get(ctx, redisobjs.Whole())
	}
	if err != nil {
		return nil, err
	}
	return toStrings(v), nil
}

// Slice returns the holdings at positions start to end inclusive. Negative
// positions count from the end.
func (c *Cache) Slice(ctx context.Context, ernum string, start, end int) ([]string, error) {
	v, err := c.object(ListEntity, ernum).GetValueRange(ctx, start, end)
	if err != nil {
		return nil, err
	}
	return toStrings(v), nil
}

// Position returns the position of a holding in a resource's list. Removed
// and moved holdings leave gaps, so positions only order holdings.
func (c *Cache) Position(ctx context.Context, ernum, h string) (int, bool, error) {
	v, err := c.object(ListEntity, ernum).GetIndex(ctx, h)
	if err != nil {
		return 0, false, err
	}
	i, ok := v.(int)
	return i, ok, nil
}

// Owner returns the resource a holding belongs to.
func (c *Cache) Owner(ctx context.Context, h string) (string, bool, error) {
	v, err := c.object(ReverseEntity, reverseID).GetField(ctx, h)
	if err != nil {
		return "", false, err
	}
	s, ok := v.(string)
	return s, ok, nil
}

func (c *Cache) owners(ctx context.Context) (map[string]any, error) {
	v, err := c.object(ReverseEntity, reverseID).Get(ctx, redisobjs.Whole())
	if err != nil {
		return nil, err
	}
	owners, _ := v.(map[string]any)
	if owners == nil {
		owners = map[string]any{}
	}
	return owners, nil
}

func toStrings(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, len(items))
	for i, item := range items {
		if s, ok := item.(string); ok {
			out[i] = s
			continue
		}
		out[i] = fmt.Sprint(item)
	}
	return out
}
