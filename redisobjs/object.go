package redisobjs

import (
	"context"
	"strconv"

	otrace "github.com/opentracing/opentracing-go"
)

// Object is a typed view of one redis key, entity:id.
//
// In immediate mode (the default) Set and Get execute their pipeline and
// return values. A Deferred Object only queues, returning its Pipeline; the
// caller executes it and reads the results positionally.
type Object struct {
	Entity string
	ID     string
	Key    string

	client   Client
	pipe     *Pipeline
	deferred bool
}

type ObjectOption func(*Object)

// WithPipeline shares p with other Objects so that their commands go in one
// round trip.
func WithPipeline(p *Pipeline) ObjectOption {
	return func(o *Object) {
		o.pipe = p
	}
}

func Deferred() ObjectOption {
	return func(o *Object) {
		o.deferred = true
	}
}

func NewObject(client Client, entity, id string, opts ...ObjectOption) *Object {
	o := &Object{
		Entity: entity,
		ID:     id,
		Key:    entity + ":" + id,
		client: client,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.pipe == nil {
		o.pipe = NewPipeline(client)
	}
	return o
}

func (o *Object) Pipeline() *Pipeline {
	return o.pipe
}

func (o *Object) IsDeferred() bool {
	return o.deferred
}

// view returns a copy of o sharing its pipeline.
func (o *Object) view(deferred bool) *Object {
	v := *o
	v.deferred = deferred
	return &v
}

func (o *Object) log() Logger {
	return o.pipe.log
}

type setOptions struct {
	forceUnique bool
	update      bool
	index       *int
}

type SetOption func(*setOptions)

// ForceUnique stores a list as a zset, where adding an existing element
// moves it rather than duplicating it.
func ForceUnique(unique bool) SetOption {
	return func(so *setOptions) {
		so.forceUnique = unique
	}
}

// Update merges the value into what is stored: append for list and zset,
// union for set, merge for hash and append for string.
func Update() SetOption {
	return func(so *setOptions) {
		so.update = true
	}
}

// AtIndex writes starting at index i. Negative indexes count from the end.
func AtIndex(i int) SetOption {
	return func(so *setOptions) {
		so.index = &i
	}
}

// RType queries the store for the key's current type.
func (o *Object) RType(ctx context.Context) (RType, error) {
	name, err := o.client.Do(ctx, "TYPE", o.Key).Text()
	if err != nil {
		return nil, err
	}
	return rtypeFromName(o.Key, name)
}

// state returns what the pipeline expects of the key, or else what the store
// holds now. sized adds the size needed to plan update writes.
func (o *Object) state(ctx context.Context, sized bool) (keyState, error) {
	if st, ok := o.pipe.projectedState(o.Key); ok {
		return st, nil
	}

	span, ctx := otrace.StartSpanFromContext(ctx, "redis.redisobjs.Object.state")
	defer span.Finish()

	rt, err := o.RType(ctx)
	if err != nil {
		return keyState{}, err
	}
	st := keyState{rtype: rt}
	if !sized {
		return st, nil
	}

	switch rt {
	case ListType:
		n, err := o.client.Do(ctx, "LLEN", o.Key).Int64()
		if err != nil {
			return keyState{}, err
		}
		st.size = int(n)
	case StringType:
		n, err := o.client.Do(ctx, "STRLEN", o.Key).Int64()
		if err != nil {
			return keyState{}, err
		}
		st.size = int(n)
	case ZsetType:
		reply, err := o.client.Do(ctx, "ZREVRANGE", o.Key, 0, 0, "WITHSCORES").Slice()
		if err != nil {
			return keyState{}, err
		}
		if len(reply) == 2 {
			if s, ok := replyString(reply[1]); ok {
				f, err := strconv.ParseFloat(s, 64)
				if err != nil {
					return keyState{}, err
				}
				st.size = int(f) + 1
			}
		}
	}
	return st, nil
}

// queue adds the steps of pl to the pipeline, grouping them into a single
// result when there are several.
func (o *Object) queue(ctx context.Context, pl plan) {
	var acc *Accumulator
	if len(pl.steps) > 1 || pl.fold {
		acc = ListAccumulator()
	}
	last := len(pl.steps) - 1
	for i, s := range pl.steps {
		var opts []EntryOption
		if s.callback != nil {
			opts = append(opts, WithCallback(s.callback))
		}
		if acc != nil {
			opts = append(opts, WithAccumulator(acc), EndOfGroup(i == last))
		}
		if s.placeholder {
			o.pipe.AddPlaceholder(s.value, opts...)
			continue
		}
		o.pipe.Add(ctx, s.command, o.Key, s.args, opts...)
	}
	if pl.next != nil {
		o.pipe.project(o.Key, *pl.next)
	}
}

// finish executes the pipeline in immediate mode, returning the result of
// the last entry.
func (o *Object) finish(ctx context.Context) (any, error) {
	if o.deferred {
		return o.pipe, nil
	}
	results, err := o.pipe.Execute(ctx)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results[len(results)-1], nil
}

func (o *Object) writePlan(ctx context.Context, p *payload, so setOptions) (plan, error) {
	if !so.update {
		if p.empty {
			return plan{
				steps: []step{command("DEL")},
				next:  &keyState{rtype: NoneType},
			}, nil
		}
		pl := inferRType(p.shape, so.forceUnique).write(p, keyState{rtype: NoneType}, so)
		pl.steps = append([]step{command("DEL")}, pl.steps...)
		return pl, nil
	}

	st, err := o.state(ctx, true)
	if err != nil {
		return plan{}, err
	}
	if p.shape != shapeNil && !st.rtype.accepts(p.shape) {
		return plan{}, &TypeMismatchError{
			Key:      o.Key,
			Existing: st.rtype,
			Got:      p.shape.String(),
			Expected: st.rtype.expected(),
		}
	}
	if p.empty {
		return nothing(), nil
	}
	if st.rtype == NoneType {
		so.update = false
		return inferRType(p.shape, so.forceUnique).write(p, st, so), nil
	}
	return st.rtype.write(p, st, so), nil
}

// Set stores value at the key. Without Update the key is replaced, and an
// empty value (nil, "" or an empty list, hash or Set) deletes it. With
// Update the value is merged into the existing one and must fit its type.
//
// Updating a string appends text, while a number, bool or struct replaces
// the stored value.
//
// Immediate mode returns the written value in the form Get reads it back.
// After an update that is the part written, not the merged whole. Deferred
// mode returns the Pipeline.
func (o *Object) Set(ctx context.Context, value any, opts ...SetOption) (any, error) {
	log := o.log().FromContext(ctx)
	defer log.Close()

	so := setOptions{}
	for _, opt := range opts {
		opt(&so)
	}

	p, err := preparePayload(value)
	if err != nil {
		return nil, err
	}
	pl, err := o.writePlan(ctx, p, so)
	if err != nil {
		return nil, err
	}
	log.Debugf("Set %s: %s, %d commands", o.Key, p.shape, len(pl.steps))
	o.queue(ctx, pl)

	if o.deferred {
		return o.pipe, nil
	}
	if _, err = o.pipe.Execute(ctx); err != nil {
		return nil, err
	}
	return p.normalized, nil
}

// SetField merges mapping into the hash at the key.
func (o *Object) SetField(ctx context.Context, mapping any) (any, error) {
	return o.Set(ctx, mapping, Update())
}

// SetValue writes values starting at index. Immediate mode returns the
// single value when one is given.
func (o *Object) SetValue(ctx context.Context, index int, values ...any) (any, error) {
	result, err := o.Set(ctx, values, Update(), AtIndex(index))
	if err != nil || o.deferred {
		return result, err
	}
	if list, ok := result.([]any); ok && len(values) == 1 {
		return list[0], nil
	}
	return result, nil
}

// queueRead plans and queues l against a known key state.
func (o *Object) queueRead(ctx context.Context, st keyState, l Lookup) error {
	pl, err := readPlan(st.rtype, l.resolve(st.rtype))
	if err != nil {
		return err
	}
	o.queue(ctx, pl)
	return nil
}

// Get reads the key. A missing key, or a lookup its type does not support,
// reads nil. Deferred mode returns the Pipeline.
func (o *Object) Get(ctx context.Context, l Lookup) (any, error) {
	log := o.log().FromContext(ctx)
	defer log.Close()

	st, err := o.state(ctx, false)
	if err != nil {
		return nil, err
	}
	log.Debugf("Get %s (%s): %s", o.Key, st.rtype, l.Type)
	if err = o.queueRead(ctx, st, l); err != nil {
		return nil, err
	}
	return o.finish(ctx)
}

// GetField reads one hash field, or a list of fields in the order given.
func (o *Object) GetField(ctx context.Context, names ...string) (any, error) {
	if len(names) == 1 {
		return o.Get(ctx, Field(names[0]))
	}
	return o.Get(ctx, Fields(names...))
}

// GetIndex finds the position of one value, or of each value given.
func (o *Object) GetIndex(ctx context.Context, values ...any) (any, error) {
	if len(values) == 1 {
		return o.Get(ctx, Value(values[0]))
	}
	return o.Get(ctx, Values(values...))
}

// GetValue reads the element at index.
func (o *Object) GetValue(ctx context.Context, index int) (any, error) {
	return o.Get(ctx, Index(index))
}

// GetValueRange reads the elements from start to end inclusive.
func (o *Object) GetValueRange(ctx context.Context, start, end int) (any, error) {
	return o.Get(ctx, IndexRange(start, end))
}

// Delete removes the key. Immediate mode returns the number of keys removed.
func (o *Object) Delete(ctx context.Context) (any, error) {
	o.queue(ctx, plan{
		steps: []step{command("DEL")},
		next:  &keyState{rtype: NoneType},
	})
	return o.finish(ctx)
}
