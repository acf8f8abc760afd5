package redisobjs

import (
	"context"
	"sort"
)

const (
	StepSet     = "set"
	StepGet     = "get"
	StepExecute = "execute"
)

// StreamStep records one queued chunk, or one execute, of a Stream call.
type StreamStep struct {
	Op     string
	Offset int
	Count  int
}

// Stream reads and writes large values in chunks of at most batchSize
// elements, executing the pipeline after every commitEvery chunks. A
// commitEvery of 0 or less executes once at the end.
//
// The net effect of a Stream call is that of the unchunked Object call.
type Stream struct {
	obj         *Object
	batchSize   int
	commitEvery int
}

func NewStream(obj *Object, batchSize, commitEvery int) (*Stream, error) {
	if batchSize < 1 {
		return nil, ErrInvalidBatchSize
	}
	return &Stream{obj: obj, batchSize: batchSize, commitEvery: commitEvery}, nil
}

type chunk struct {
	value  any
	offset int
	count  int
}

func (s *Stream) chunks(p *payload) []chunk {
	var n int
	switch p.shape {
	case shapeList, shapeSet:
		n = len(p.raw)
	case shapeHash:
		n = len(p.fields)
	}
	if n <= s.batchSize {
		return nil
	}

	var chunks []chunk
	for off := 0; off < n; off += s.batchSize {
		end := min(off+s.batchSize, n)
		c := chunk{offset: off, count: end - off}
		switch p.shape {
		case shapeList:
			c.value = p.raw[off:end]
		case shapeSet:
			c.value = Set(p.raw[off:end])
		case shapeHash:
			m := make(map[string]any, end-off)
			for _, f := range p.fields[off:end] {
				m[f] = p.rawFields[f]
			}
			c.value = m
		}
		chunks = append(chunks, c)
	}
	return chunks
}

// committer executes the pipeline every commitEvery queued chunks and
// collects the results of the chunks.
type committer struct {
	ctx     context.Context
	s       *Stream
	queued  int
	steps   []StreamStep
	results []any
}

func (c *committer) add(st StreamStep) error {
	c.steps = append(c.steps, st)
	c.queued++
	if c.s.commitEvery > 0 && c.queued >= c.s.commitEvery {
		return c.flush()
	}
	return nil
}

func (c *committer) flush() error {
	if c.queued == 0 {
		return nil
	}
	results, err := c.s.obj.pipe.Execute(c.ctx)
	if err != nil {
		return err
	}
	c.results = append(c.results, results[len(results)-c.queued:]...)
	c.steps = append(c.steps, StreamStep{Op: StepExecute})
	c.queued = 0
	return nil
}

// Set writes data as Object.Set would, in chunks. Chunks after the first are
// update writes, continuing from the first chunk's index when one applies.
// It returns the queued chunks interleaved with the executes.
func (s *Stream) Set(ctx context.Context, data any, opts ...SetOption) ([]StreamStep, error) {
	log := s.obj.log().FromContext(ctx)
	defer log.Close()

	so := setOptions{}
	for _, opt := range opts {
		opt(&so)
	}
	p, err := preparePayload(data)
	if err != nil {
		return nil, err
	}

	view := s.obj.view(true)
	c := &committer{ctx: ctx, s: s}

	chunks := s.chunks(p)
	if chunks == nil {
		if _, err = view.Set(ctx, data, opts...); err != nil {
			return nil, err
		}
		if err = c.add(StreamStep{Op: StepSet, Count: len(p.raw) + len(p.fields)}); err != nil {
			return c.steps, err
		}
		return c.steps, c.flush()
	}

	// An index carries over to later chunks only where the first chunk
	// honours it: lists, and zsets being updated.
	base := -1
	if so.index != nil && p.shape == shapeList {
		st := keyState{rtype: NoneType}
		if so.update {
			if st, err = view.state(ctx, true); err != nil {
				return nil, err
			}
		}
		switch st.rtype {
		case NoneType:
			if !so.forceUnique {
				base = resolveIndex(*so.index, 0)
			}
		case ListType, ZsetType:
			base = resolveIndex(*so.index, st.size)
		}
	}

	log.Debugf("Stream Set %s: %d chunks of %d", s.obj.Key, len(chunks), s.batchSize)
	for i, ch := range chunks {
		chunkOpts := opts
		if i > 0 {
			chunkOpts = []SetOption{ForceUnique(so.forceUnique), Update()}
			if base >= 0 {
				chunkOpts = append(chunkOpts, AtIndex(base+ch.offset))
			}
		}
		if _, err = view.Set(ctx, ch.value, chunkOpts...); err != nil {
			return c.steps, err
		}
		if err = c.add(StreamStep{Op: StepSet, Offset: ch.offset, Count: ch.count}); err != nil {
			return c.steps, err
		}
	}
	return c.steps, c.flush()
}

// Get reads as Object.Get would, paging whole and ranged reads of lists and
// zsets, whole hashes, and multi value, field and membership lookups. Other
// lookups are not chunked. A whole set cannot be paged and fails with
// ErrUnchunkableSet.
func (s *Stream) Get(ctx context.Context, l Lookup) (any, error) {
	log := s.obj.log().FromContext(ctx)
	defer log.Close()

	view := s.obj.view(true)
	st, err := view.state(ctx, false)
	if err != nil {
		return nil, err
	}
	l = l.resolve(st.rtype)
	if !st.rtype.supports(l.Type) {
		return s.obj.view(false).Get(ctx, l)
	}

	switch st.rtype {
	case ListType, ZsetType:
		switch l.Type {
		case LookupWhole:
			return s.getRange(ctx, view, st, 0, -1)
		case LookupIndexRange:
			return s.getRange(ctx, view, st, l.Start, l.End)
		case LookupValues:
			return s.getMany(ctx, view, st, l.Values, func(vs []any) Lookup { return Values(vs...) })
		}
	case HashType:
		switch l.Type {
		case LookupWhole:
			return s.getHash(ctx, view, st)
		case LookupFields:
			return s.getMany(ctx, view, st, anys(l.Fields), func(vs []any) Lookup {
				return Fields(anyToStrings(vs)...)
			})
		}
	case SetType:
		switch l.Type {
		case LookupWhole:
			return nil, ErrUnchunkableSet
		case LookupValuesExist:
			return s.getMany(ctx, view, st, l.Values, func(vs []any) Lookup { return ValuesExist(vs...) })
		}
	}
	log.Debugf("Stream Get %s: %s not chunked", s.obj.Key, l.Type)
	return s.obj.view(false).Get(ctx, l)
}

func (s *Stream) run(ctx context.Context, view *Object, st keyState, batches []Lookup) ([]any, error) {
	c := &committer{ctx: ctx, s: s}
	for _, b := range batches {
		if err := view.queueRead(ctx, st, b); err != nil {
			return nil, err
		}
		if err := c.add(StreamStep{Op: StepGet}); err != nil {
			return nil, err
		}
	}
	if err := c.flush(); err != nil {
		return nil, err
	}
	return c.results, nil
}

func (s *Stream) count(ctx context.Context, view *Object, rt RType) (int, error) {
	cmd := "LLEN"
	if rt == ZsetType {
		cmd = "ZCARD"
	}
	n, err := view.client.Do(ctx, cmd, view.Key).Int64()
	return int(n), err
}

// getRange pages positions start to end inclusive, resolved as LRANGE
// resolves them.
func (s *Stream) getRange(ctx context.Context, view *Object, st keyState, start, end int) (any, error) {
	n, err := s.count(ctx, view, st.rtype)
	if err != nil {
		return nil, err
	}
	if start < 0 {
		start = max(start+n, 0)
	}
	if end < 0 {
		end += n
	}
	end = min(end, n-1)
	if start > end {
		return nil, nil
	}

	var batches []Lookup
	for off := start; off <= end; off += s.batchSize {
		batches = append(batches, IndexRange(off, min(off+s.batchSize-1, end)))
	}
	results, err := s.run(ctx, view, st, batches)
	if err != nil {
		return nil, err
	}
	out := ExtendAccumulator().Fold(results...).([]any)
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func (s *Stream) getHash(ctx context.Context, view *Object, st keyState) (any, error) {
	fields, err := view.client.Do(ctx, "HKEYS", view.Key).StringSlice()
	if err != nil {
		return nil, err
	}
	sort.Strings(fields)

	var batches []Lookup
	for off := 0; off < len(fields); off += s.batchSize {
		batches = append(batches, Fields(fields[off:min(off+s.batchSize, len(fields))]...))
	}
	results, err := s.run(ctx, view, st, batches)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	for i, r := range results {
		values, _ := r.([]any)
		for j, f := range batches[i].Fields {
			if j < len(values) && values[j] != nil {
				out[f] = values[j]
			}
		}
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

// getMany pages a multi value lookup, concatenating the aligned replies.
func (s *Stream) getMany(
	ctx context.Context, view *Object, st keyState, items []any, lookup func([]any) Lookup,
) (any, error) {
	if len(items) == 0 {
		return nil, nil
	}
	var batches []Lookup
	for off := 0; off < len(items); off += s.batchSize {
		batches = append(batches, lookup(items[off:min(off+s.batchSize, len(items))]))
	}
	results, err := s.run(ctx, view, st, batches)
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(items))
	for _, r := range results {
		values, _ := r.([]any)
		out = append(out, values...)
	}
	return out, nil
}

func anyToStrings(vs []any) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i], _ = v.(string)
	}
	return out
}
