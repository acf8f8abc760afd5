package redisobjs

// RType is the storage encoding of a key. The set of variants is closed:
// NoneType, StringType, ListType, ZsetType, HashType and SetType.
type RType interface {
	String() string

	defaultLookup() LookupType
	supports(LookupType) bool

	// accepts reports whether an update write of the given shape fits
	accepts(shape) bool
	expected() string

	read(l Lookup) (plan, error)
	write(p *payload, st keyState, o setOptions) plan
}

var (
	NoneType   RType = noneType{}
	StringType RType = stringType{}
	ListType   RType = listType{}
	ZsetType   RType = zsetType{}
	HashType   RType = hashType{}
	SetType    RType = setType{}
)

// rtypeFromName maps a TYPE reply to its RType.
func rtypeFromName(key, name string) (RType, error) {
	switch name {
	case "none":
		return NoneType, nil
	case "string":
		return StringType, nil
	case "list":
		return ListType, nil
	case "zset":
		return ZsetType, nil
	case "hash":
		return HashType, nil
	case "set":
		return SetType, nil
	}
	return nil, unsupportedRTypeError(key, name)
}

// inferRType picks the RType a non-update write of shape s creates.
func inferRType(s shape, forceUnique bool) RType {
	switch s {
	case shapeList:
		if forceUnique {
			return ZsetType
		}
		return ListType
	case shapeHash:
		return HashType
	case shapeSet:
		return SetType
	case shapeNil:
		return NoneType
	}
	return StringType
}

type step struct {
	command     string
	args        []any
	callback    Callback
	placeholder bool
	value       any
}

// plan is the sequence of commands realising one read or write. A plan with
// more than one step, or with fold set, yields a single list of results.
type plan struct {
	steps []step
	fold  bool
	// next is the state of the key once the plan has run, nil for reads
	next *keyState
}

func command(name string, args ...any) step {
	return step{command: name, args: args}
}

func placeholder(v any) step {
	return step{placeholder: true, value: v}
}

func nothing() plan {
	return plan{steps: []step{placeholder(nil)}}
}

// readPlan plans l against rt. Lookups rt does not support read nil.
func readPlan(rt RType, l Lookup) (plan, error) {
	if !rt.supports(l.Type) {
		return nothing(), nil
	}
	return rt.read(l)
}

// resolveIndex counts a negative index back from size, clamping at 0.
func resolveIndex(i, size int) int {
	if i < 0 {
		i += size
	}
	return max(i, 0)
}

func anys(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func encodeAll(vs []any) ([]any, error) {
	out := make([]any, len(vs))
	for i, v := range vs {
		enc, err := encode(v)
		if err != nil {
			return nil, err
		}
		out[i] = enc
	}
	return out, nil
}

type noneType struct{}

func (noneType) String() string            { return "none" }
func (noneType) defaultLookup() LookupType { return LookupWhole }
func (noneType) supports(LookupType) bool  { return false }
func (noneType) accepts(shape) bool        { return true }
func (noneType) expected() string          { return "any value" }
func (noneType) read(Lookup) (plan, error) { return nothing(), nil }

func (noneType) write(*payload, keyState, setOptions) plan {
	return plan{next: &keyState{rtype: NoneType}}
}

type stringType struct{}

func (stringType) String() string            { return "string" }
func (stringType) defaultLookup() LookupType { return LookupIndex }

func (stringType) supports(t LookupType) bool {
	return t == LookupWhole || t == LookupIndex || t == LookupIndexRange
}

func (stringType) accepts(s shape) bool {
	return s == shapeString || s == shapeScalar
}

func (stringType) expected() string {
	return "string or any JSON-serializable type except list, array, hash, or set"
}

// substring returns the GETRANGE reply as is. An empty reply is nil.
func substring(reply any) any {
	s, ok := replyString(reply)
	if !ok || s == "" {
		return nil
	}
	return s
}

func (stringType) read(l Lookup) (plan, error) {
	switch l.Type {
	case LookupIndex, LookupIndexRange:
		return plan{steps: []step{{
			command: "GETRANGE", args: []any{l.Start, l.End}, callback: substring,
		}}}, nil
	}
	return plan{steps: []step{{command: "GET", callback: decodeElement}}}, nil
}

func (stringType) write(p *payload, st keyState, o setOptions) plan {
	size := st.size
	if st.rtype != StringType {
		size = 0
	}
	n := len(p.text)
	switch {
	case o.index != nil:
		i := resolveIndex(*o.index, size)
		return plan{
			steps: []step{command("SETRANGE", i, p.text)},
			next:  &keyState{rtype: StringType, size: max(size, i+n)},
		}
	case o.update && st.rtype == StringType && p.shape == shapeString:
		// text is appended; an encoded scalar replaces the value
		return plan{
			steps: []step{command("APPEND", p.text)},
			next:  &keyState{rtype: StringType, size: size + n},
		}
	}
	return plan{
		steps: []step{command("SET", p.text)},
		next:  &keyState{rtype: StringType, size: n},
	}
}

// sequence holds what list and zset share.
type sequence struct{}

func (sequence) defaultLookup() LookupType { return LookupIndex }

func (sequence) supports(t LookupType) bool {
	switch t {
	case LookupWhole, LookupIndex, LookupIndexRange, LookupValue, LookupValues:
		return true
	}
	return false
}

func (sequence) accepts(s shape) bool { return s == shapeList }
func (sequence) expected() string     { return "list or array" }

type listType struct{ sequence }

func (listType) String() string { return "list" }

// positions converts an LPOS ... COUNT 0 reply: nil when absent, an int for
// one match and []int for several.
func positions(reply any) any {
	raw, ok := reply.([]any)
	if !ok || len(raw) == 0 {
		return nil
	}
	out := make([]int, 0, len(raw))
	for _, r := range raw {
		if i, ok := replyInt(r); ok {
			out = append(out, i)
		}
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}

func (listType) read(l Lookup) (plan, error) {
	switch l.Type {
	case LookupIndex:
		return plan{steps: []step{{
			command: "LINDEX", args: []any{l.Start}, callback: decodeElement,
		}}}, nil
	case LookupIndexRange:
		return plan{steps: []step{{
			command: "LRANGE", args: []any{l.Start, l.End}, callback: decodeList,
		}}}, nil
	case LookupValue, LookupValues:
		encs, err := encodeAll(l.Values)
		if err != nil {
			return plan{}, err
		}
		if len(encs) == 0 {
			return nothing(), nil
		}
		pl := plan{fold: l.Type == LookupValues}
		for _, enc := range encs {
			pl.steps = append(pl.steps, step{
				command: "LPOS", args: []any{enc, "COUNT", 0}, callback: positions,
			})
		}
		return pl, nil
	}
	return plan{steps: []step{{
		command: "LRANGE", args: []any{0, -1}, callback: decodeList,
	}}}, nil
}

func (listType) write(p *payload, st keyState, o setOptions) plan {
	size := st.size
	if st.rtype != ListType {
		size = 0
	}
	n := len(p.items)
	if o.index == nil {
		return plan{
			steps: []step{command("RPUSH", anys(p.items)...)},
			next:  &keyState{rtype: ListType, size: size + n},
		}
	}

	i := resolveIndex(*o.index, size)
	var steps []step
	var pushed []any
	for j, item := range p.items {
		if pos := i + j; pos < size {
			steps = append(steps, command("LSET", pos, item))
			continue
		}
		pushed = append(pushed, item)
	}
	if i > size {
		pad := make([]any, i-size)
		for k := range pad {
			pad[k] = "null"
		}
		steps = append(steps, command("RPUSH", pad...))
	}
	if len(pushed) > 0 {
		steps = append(steps, command("RPUSH", pushed...))
	}
	return plan{steps: steps, next: &keyState{rtype: ListType, size: max(size, i+n)}}
}

type zsetType struct{ sequence }

func (zsetType) String() string { return "zset" }

func first(reply any) any {
	raw, ok := reply.([]any)
	if !ok || len(raw) == 0 {
		return nil
	}
	return decodeElement(raw[0])
}

func score(reply any) any {
	if i, ok := replyInt(reply); ok {
		return i
	}
	return nil
}

func scores(reply any) any {
	raw, ok := reply.([]any)
	if !ok || len(raw) == 0 {
		return nil
	}
	out := make([]any, len(raw))
	for i, r := range raw {
		out[i] = score(r)
	}
	return out
}

func (zsetType) read(l Lookup) (plan, error) {
	switch l.Type {
	case LookupIndex:
		return plan{steps: []step{{
			command: "ZRANGE", args: []any{l.Start, l.Start}, callback: first,
		}}}, nil
	case LookupIndexRange:
		return plan{steps: []step{{
			command: "ZRANGE", args: []any{l.Start, l.End}, callback: decodeList,
		}}}, nil
	case LookupValue:
		enc, err := encode(l.Values[0])
		if err != nil {
			return plan{}, err
		}
		return plan{steps: []step{{command: "ZSCORE", args: []any{enc}, callback: score}}}, nil
	case LookupValues:
		encs, err := encodeAll(l.Values)
		if err != nil {
			return plan{}, err
		}
		if len(encs) == 0 {
			return nothing(), nil
		}
		return plan{steps: []step{{command: "ZMSCORE", args: encs, callback: scores}}}, nil
	}
	return plan{steps: []step{{
		command: "ZRANGE", args: []any{0, -1}, callback: decodeList,
	}}}, nil
}

// write gives each element its position as score. Re-adding a member moves
// it, leaving a gap at its old score.
func (zsetType) write(p *payload, st keyState, o setOptions) plan {
	next := st.size
	if st.rtype != ZsetType {
		next = 0
	}
	n := len(p.items)

	var steps []step
	start := 0
	if o.update {
		start = next
		if o.index != nil {
			start = resolveIndex(*o.index, next)
			steps = append(steps, command("ZREMRANGEBYSCORE", start, start+n-1))
		}
	}
	args := make([]any, 0, 2*n)
	for j, item := range p.items {
		args = append(args, start+j, item)
	}
	steps = append(steps, command("ZADD", args...))
	return plan{steps: steps, next: &keyState{rtype: ZsetType, size: max(next, start+n)}}
}

type hashType struct{}

func (hashType) String() string            { return "hash" }
func (hashType) defaultLookup() LookupType { return LookupField }
func (hashType) accepts(s shape) bool      { return s == shapeHash }
func (hashType) expected() string          { return "hash" }

func (hashType) supports(t LookupType) bool {
	return t == LookupWhole || t == LookupField || t == LookupFields
}

func (hashType) read(l Lookup) (plan, error) {
	switch l.Type {
	case LookupField:
		return plan{steps: []step{{
			command: "HGET", args: []any{l.Fields[0]}, callback: decodeElement,
		}}}, nil
	case LookupFields:
		if len(l.Fields) == 0 {
			return nothing(), nil
		}
		return plan{steps: []step{{
			command: "HMGET", args: anys(l.Fields), callback: decodeList,
		}}}, nil
	}
	return plan{steps: []step{{command: "HGETALL", callback: decodeHash}}}, nil
}

func (hashType) write(p *payload, _ keyState, _ setOptions) plan {
	args := make([]any, 0, 2*len(p.fields))
	for _, f := range p.fields {
		args = append(args, f, p.values[f])
	}
	return plan{
		steps: []step{command("HSET", args...)},
		next:  &keyState{rtype: HashType},
	}
}

type setType struct{}

func (setType) String() string            { return "set" }
func (setType) defaultLookup() LookupType { return LookupValueExists }
func (setType) accepts(s shape) bool      { return s == shapeSet }
func (setType) expected() string          { return "set" }

func (setType) supports(t LookupType) bool {
	return t == LookupWhole || t == LookupValueExists || t == LookupValuesExist
}

func membership(reply any) any {
	i, ok := replyInt(reply)
	return ok && i == 1
}

func memberships(reply any) any {
	raw, ok := reply.([]any)
	if !ok || len(raw) == 0 {
		return nil
	}
	out := make([]any, len(raw))
	for i, r := range raw {
		out[i] = membership(r)
	}
	return out
}

func (setType) read(l Lookup) (plan, error) {
	switch l.Type {
	case LookupValueExists:
		enc, err := encode(l.Values[0])
		if err != nil {
			return plan{}, err
		}
		return plan{steps: []step{{
			command: "SISMEMBER", args: []any{enc}, callback: membership,
		}}}, nil
	case LookupValuesExist:
		encs, err := encodeAll(l.Values)
		if err != nil {
			return plan{}, err
		}
		if len(encs) == 0 {
			return nothing(), nil
		}
		return plan{steps: []step{{
			command: "SMISMEMBER", args: encs, callback: memberships,
		}}}, nil
	}
	return plan{steps: []step{{command: "SMEMBERS", callback: decodeSet}}}, nil
}

func (setType) write(p *payload, _ keyState, _ setOptions) plan {
	return plan{
		steps: []step{command("SADD", anys(p.items)...)},
		next:  &keyState{rtype: SetType},
	}
}
