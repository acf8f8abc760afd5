package redisobjs

// Accumulator folds the replies of a group of pipelined commands into one
// result. Each group starts from a fresh Seed, so an Accumulator may be
// reused across groups and executes.
//
// Entries are grouped by Accumulator identity (the pointer), so two
// independent groups must use two Accumulators.
type Accumulator struct {
	Seed   func() any
	Reduce func(acc, item any) any
}

func NewAccumulator(seed func() any, reduce func(acc, item any) any) *Accumulator {
	return &Accumulator{Seed: seed, Reduce: reduce}
}

// ListAccumulator collects each item into a []any.
func ListAccumulator() *Accumulator {
	return NewAccumulator(
		func() any { return []any{} },
		func(acc, item any) any { return append(acc.([]any), item) },
	)
}

// ExtendAccumulator concatenates []any items. nil items are skipped and any
// other item is appended.
func ExtendAccumulator() *Accumulator {
	return NewAccumulator(
		func() any { return []any{} },
		func(acc, item any) any {
			switch v := item.(type) {
			case nil:
				return acc
			case []any:
				return append(acc.([]any), v...)
			default:
				return append(acc.([]any), v)
			}
		},
	)
}

// MergeAccumulator merges map[string]any items, later fields winning.
func MergeAccumulator() *Accumulator {
	return NewAccumulator(
		func() any { return map[string]any{} },
		func(acc, item any) any {
			m := acc.(map[string]any)
			if v, ok := item.(map[string]any); ok {
				for k, fv := range v {
					m[k] = fv
				}
			}
			return m
		},
	)
}

// Fold reduces items from a fresh seed.
func (a *Accumulator) Fold(items ...any) any {
	acc := a.Seed()
	for _, item := range items {
		acc = a.Reduce(acc, item)
	}
	return acc
}
