package redisobjs

// LookupType selects how a read interprets its arguments.
type LookupType int

const (
	LookupWhole LookupType = iota
	LookupIndex
	LookupIndexRange
	LookupValue
	LookupValues
	LookupField
	LookupFields
	LookupValueExists
	LookupValuesExist
	// LookupAuto is resolved against the key's RType when the read is planned
	LookupAuto
)

func (t LookupType) String() string {
	switch t {
	case LookupWhole:
		return "whole"
	case LookupIndex:
		return "index"
	case LookupIndexRange:
		return "index_range"
	case LookupValue:
		return "value"
	case LookupValues:
		return "values"
	case LookupField:
		return "field"
	case LookupFields:
		return "fields"
	case LookupValueExists:
		return "value_exists"
	case LookupValuesExist:
		return "values_exist"
	}
	return "auto"
}

// Lookup describes a read. The zero value reads the whole value.
type Lookup struct {
	Type   LookupType
	Start  int
	End    int
	Values []any
	Fields []string
	arg    any
}

func Whole() Lookup {
	return Lookup{Type: LookupWhole}
}

// Index reads one position. Negative positions count from the end.
func Index(i int) Lookup {
	return Lookup{Type: LookupIndex, Start: i, End: i}
}

// IndexRange reads positions start to end inclusive.
func IndexRange(start, end int) Lookup {
	return Lookup{Type: LookupIndexRange, Start: start, End: end}
}

// Value finds the position(s) of v in a list or zset.
func Value(v any) Lookup {
	return Lookup{Type: LookupValue, Values: []any{v}}
}

func Values(vs ...any) Lookup {
	return Lookup{Type: LookupValues, Values: vs}
}

func Field(f string) Lookup {
	return Lookup{Type: LookupField, Fields: []string{f}}
}

func Fields(fs ...string) Lookup {
	return Lookup{Type: LookupFields, Fields: fs}
}

func ValueExists(v any) Lookup {
	return Lookup{Type: LookupValueExists, Values: []any{v}}
}

func ValuesExist(vs ...any) Lookup {
	return Lookup{Type: LookupValuesExist, Values: vs}
}

// Auto defers the choice of lookup to the key's RType: index for list, zset
// and string, field for hash, value_exists for set. Index lookups take an
// int or a [2]int range, field lookups a string or []string, and
// membership lookups a single value or a Set / []any of values. A nil arg
// reads the whole value.
func Auto(arg any) Lookup {
	return Lookup{Type: LookupAuto, arg: arg}
}

func (l Lookup) resolve(rt RType) Lookup {
	if l.Type != LookupAuto {
		return l
	}
	if l.arg == nil {
		return Whole()
	}
	switch rt.defaultLookup() {
	case LookupIndex:
		switch a := l.arg.(type) {
		case int:
			return Index(a)
		case int64:
			return Index(int(a))
		case [2]int:
			return IndexRange(a[0], a[1])
		case []int:
			if len(a) == 2 {
				return IndexRange(a[0], a[1])
			}
		}
	case LookupField:
		switch a := l.arg.(type) {
		case string:
			return Field(a)
		case []string:
			return Fields(a...)
		}
	case LookupValueExists:
		switch a := l.arg.(type) {
		case Set:
			return ValuesExist(a...)
		case []any:
			return ValuesExist(a...)
		default:
			return ValueExists(a)
		}
	}
	return l
}
