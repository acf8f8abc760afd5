package redisobjs

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

const maxNesting = 64

// Set is an unordered collection of members, stored as a redis set. Members
// are compared by their JSON encoding, so NewSet(1, 1.0) has one member.
type Set []any

// NewSet returns a Set holding the distinct members.
func NewSet(members ...any) Set {
	seen := make(map[string]struct{}, len(members))
	s := make(Set, 0, len(members))
	for _, m := range members {
		k := memberKey(m)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		s = append(s, m)
	}
	return s
}

// Contains reports whether v is a member of s.
func (s Set) Contains(v any) bool {
	k := memberKey(v)
	for _, m := range s {
		if memberKey(m) == k {
			return true
		}
	}
	return false
}

// MarshalJSON always fails. A Set is only storable at the top level of a
// value.
func (s Set) MarshalJSON() ([]byte, error) {
	return nil, ErrNestedSet
}

func memberKey(m any) string {
	enc, err := encode(m)
	if err != nil {
		return fmt.Sprintf("%#v", m)
	}
	return enc
}

var setReflectType = reflect.TypeOf(Set(nil))

func containsSet(v reflect.Value, depth int) bool {
	if !v.IsValid() || depth > maxNesting {
		return false
	}
	if v.Type() == setReflectType {
		return true
	}
	switch v.Kind() {
	case reflect.Interface, reflect.Pointer:
		if v.IsNil() {
			return false
		}
		return containsSet(v.Elem(), depth+1)
	case reflect.Slice, reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return false
		}
		for i := range v.Len() {
			if containsSet(v.Index(i), depth+1) {
				return true
			}
		}
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			if containsSet(iter.Value(), depth+1) {
				return true
			}
		}
	case reflect.Struct:
		t := v.Type()
		for i := range v.NumField() {
			if t.Field(i).IsExported() && containsSet(v.Field(i), depth+1) {
				return true
			}
		}
	}
	return false
}

// encode JSON encodes a single element, field value or member.
func encode(v any) (string, error) {
	if containsSet(reflect.ValueOf(v), 0) {
		return "", &SerializationError{Value: v, Err: ErrNestedSet}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", &SerializationError{Value: v, Err: err}
	}
	return string(b), nil
}

// decode returns the JSON value of raw, or raw itself when it is not JSON.
// Integral numbers decode as int64 and all others as float64.
func decode(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return raw
	}
	return numbers(v)
}

// numbers replaces each json.Number in v, in place.
func numbers(v any) any {
	switch tv := v.(type) {
	case json.Number:
		if i, err := tv.Int64(); err == nil {
			return i
		}
		f, err := tv.Float64()
		if err != nil {
			return tv.String()
		}
		return f
	case []any:
		for i, e := range tv {
			tv[i] = numbers(e)
		}
	case map[string]any:
		for k, e := range tv {
			tv[k] = numbers(e)
		}
	}
	return v
}

type shape int

const (
	shapeNil shape = iota
	shapeScalar
	shapeString
	shapeList
	shapeHash
	shapeSet
)

func (s shape) String() string {
	switch s {
	case shapeScalar:
		return "scalar"
	case shapeString:
		return "string"
	case shapeList:
		return "list"
	case shapeHash:
		return "hash"
	case shapeSet:
		return "set"
	}
	return "nil"
}

// payload is a value prepared for writing. Everything that can fail is done
// here, before any command is queued.
type payload struct {
	shape shape
	empty bool

	// list items, or set members in encoded order
	raw   []any
	items []string

	// hash fields, sorted
	fields    []string
	rawFields map[string]any
	values    map[string]string

	// string text, or the encoded scalar
	text string

	// what a whole read returns once the write has run
	normalized any
}

func preparePayload(v any) (*payload, error) {
	if v == nil {
		return &payload{shape: shapeNil, empty: true}, nil
	}
	switch tv := v.(type) {
	case Set:
		return setPayload(tv)
	case string:
		return stringPayload(tv), nil
	case []byte:
		return stringPayload(string(tv)), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return &payload{shape: shapeNil, empty: true}, nil
		}
	case reflect.String:
		return stringPayload(rv.String()), nil
	case reflect.Slice, reflect.Array:
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		return listPayload(items)
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			fields := make(map[string]any, rv.Len())
			iter := rv.MapRange()
			for iter.Next() {
				fields[iter.Key().String()] = iter.Value().Interface()
			}
			return hashPayload(fields)
		}
	}

	enc, err := encode(v)
	if err != nil {
		return nil, err
	}
	return &payload{shape: shapeScalar, text: enc, normalized: decode(enc)}, nil
}

func stringPayload(s string) *payload {
	p := &payload{shape: shapeString, text: s, empty: s == ""}
	if !p.empty {
		p.normalized = decode(s)
	}
	return p
}

func listPayload(items []any) (*payload, error) {
	p := &payload{shape: shapeList, empty: len(items) == 0, raw: items}
	p.items = make([]string, len(items))
	decoded := make([]any, len(items))
	for i, item := range items {
		enc, err := encode(item)
		if err != nil {
			return nil, err
		}
		p.items[i] = enc
		decoded[i] = decode(enc)
	}
	if !p.empty {
		p.normalized = decoded
	}
	return p, nil
}

func hashPayload(fields map[string]any) (*payload, error) {
	p := &payload{
		shape:     shapeHash,
		empty:     len(fields) == 0,
		rawFields: fields,
		fields:    make([]string, 0, len(fields)),
		values:    make(map[string]string, len(fields)),
	}
	decoded := make(map[string]any, len(fields))
	for f, v := range fields {
		enc, err := encode(v)
		if err != nil {
			return nil, err
		}
		p.fields = append(p.fields, f)
		p.values[f] = enc
		decoded[f] = decode(enc)
	}
	sort.Strings(p.fields)
	if !p.empty {
		p.normalized = decoded
	}
	return p, nil
}

func setPayload(members Set) (*payload, error) {
	type member struct {
		raw any
		enc string
	}
	seen := make(map[string]struct{}, len(members))
	ms := make([]member, 0, len(members))
	for _, m := range members {
		enc, err := encode(m)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[enc]; ok {
			continue
		}
		seen[enc] = struct{}{}
		ms = append(ms, member{raw: m, enc: enc})
	}
	sort.Slice(ms, func(i, j int) bool { return ms[i].enc < ms[j].enc })

	p := &payload{shape: shapeSet, empty: len(ms) == 0}
	p.raw = make([]any, len(ms))
	p.items = make([]string, len(ms))
	decoded := make(Set, len(ms))
	for i, m := range ms {
		p.raw[i] = m.raw
		p.items[i] = m.enc
		decoded[i] = decode(m.enc)
	}
	if !p.empty {
		p.normalized = decoded
	}
	return p, nil
}

// The helpers below convert go-redis replies. Bulk strings arrive as string,
// integers as int64 and arrays as []any.

func replyString(reply any) (string, bool) {
	switch r := reply.(type) {
	case string:
		return r, true
	case []byte:
		return string(r), true
	}
	return "", false
}

func replyInt(reply any) (int, bool) {
	switch r := reply.(type) {
	case int64:
		return int(r), true
	case string:
		f, err := strconv.ParseFloat(r, 64)
		if err != nil {
			return 0, false
		}
		return int(f), true
	}
	return 0, false
}

func decodeElement(reply any) any {
	s, ok := replyString(reply)
	if !ok {
		return nil
	}
	return decode(s)
}

// decodeList decodes each element of an array reply. An empty reply is nil.
func decodeList(reply any) any {
	raw, ok := reply.([]any)
	if !ok || len(raw) == 0 {
		return nil
	}
	out := make([]any, len(raw))
	for i, r := range raw {
		out[i] = decodeElement(r)
	}
	return out
}

// decodeHash decodes a flat field/value array reply, as returned by HGETALL.
func decodeHash(reply any) any {
	raw, ok := reply.([]any)
	if !ok || len(raw) == 0 {
		return nil
	}
	out := make(map[string]any, len(raw)/2)
	for i := 0; i+1 < len(raw); i += 2 {
		f, _ := replyString(raw[i])
		out[f] = decodeElement(raw[i+1])
	}
	return out
}

// decodeSet decodes a SMEMBERS reply, ordered by encoded member.
func decodeSet(reply any) any {
	raw, ok := reply.([]any)
	if !ok || len(raw) == 0 {
		return nil
	}
	encs := make([]string, 0, len(raw))
	for _, r := range raw {
		if s, ok := replyString(r); ok {
			encs = append(encs, s)
		}
	}
	sort.Strings(encs)
	out := make(Set, len(encs))
	for i, enc := range encs {
		out[i] = decode(enc)
	}
	return out
}
