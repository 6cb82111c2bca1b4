package eval

import (
	"context"
	"maps"
	"math"
	"slices"

	"github.com/roach88/tally/internal/value"
)

// Builtin is a native operation resolvable by name from any pipeline.
type Builtin struct {
	Name  string
	Arity int
	Doc   string
	Fn    func(c *Call, input value.Value) (value.Value, error)
}

// Call is the context handed to a builtin: its argument bindings and
// access to the enclosing run.
type Call struct {
	r        *run
	name     string
	argNames []string
	args     []binding
	expr     string
}

// Name returns the name the builtin was invoked under.
func (c *Call) Name() string { return c.name }

// Context returns the run's context.
func (c *Call) Context() context.Context { return c.r.ctx }

// NumArgs returns the number of argument bindings.
func (c *Call) NumArgs() int { return len(c.args) }

// Arg invokes the i-th argument binding against input with no arguments of
// its own. Each invocation counts one step.
func (c *Call) Arg(i int, input value.Value) (value.Value, error) {
	if err := c.r.q.step(); err != nil {
		return nil, err
	}
	return c.r.invoke(c.argNames[i], c.args[i], nil, nil, input, c.expr)
}

// Mismatch builds a TYPE_MISMATCH error for this call.
func (c *Call) Mismatch(want string, got value.Value) error {
	return NewTypeMismatchError(c.name, want, got, c.expr)
}

func (c *Call) bag(v value.Value) (value.Bag, error) {
	b, ok := v.(value.Bag)
	if !ok {
		return nil, c.Mismatch("bag", v)
	}
	return b, nil
}

func (c *Call) integer(v value.Value) (value.Int, error) {
	n, ok := v.(value.Int)
	if !ok {
		return 0, c.Mismatch("int", v)
	}
	return n, nil
}

// Builtins returns the default catalog sorted by name.
func Builtins() []*Builtin {
	cat := defaultCatalog()
	out := make([]*Builtin, 0, len(cat))
	for _, name := range slices.Sorted(maps.Keys(cat)) {
		out = append(out, cat[name])
	}
	return out
}

// LookupBuiltin returns the default builtin registered under name.
func LookupBuiltin(name string) (*Builtin, bool) {
	b, ok := defaultCatalog()[name]
	return b, ok
}

// defaultCatalog returns a fresh map so Evaluators can extend it privately.
func defaultCatalog() map[string]*Builtin {
	list := []*Builtin{
		{Name: "id", Arity: 0, Doc: "the input unchanged", Fn: builtinID},
		{Name: "count", Arity: 0, Doc: "number of bag elements", Fn: builtinCount},
		{Name: "sum", Arity: 0, Doc: "sum of a bag of ints", Fn: builtinSum},
		{Name: "min", Arity: 0, Doc: "least int in a bag, null when empty", Fn: extremum(func(a, b value.Int) bool { return a < b })},
		{Name: "max", Arity: 0, Doc: "greatest int in a bag, null when empty", Fn: extremum(func(a, b value.Int) bool { return a > b })},
		{Name: "distinct", Arity: 0, Doc: "bag without duplicate elements", Fn: builtinDistinct},
		{Name: "flatten", Arity: 0, Doc: "union of a bag of bags", Fn: builtinFlatten},
		{Name: "keys", Arity: 0, Doc: "bag of record keys", Fn: builtinKeys},
		{Name: "values", Arity: 0, Doc: "bag of record field values", Fn: builtinValues},
		{Name: "not", Arity: 0, Doc: "boolean negation", Fn: builtinNot},
		{Name: "map", Arity: 1, Doc: "apply f to every element", Fn: builtinMap},
		{Name: "filter", Arity: 1, Doc: "keep elements where p is true", Fn: builtinFilter},
		{Name: "group", Arity: 1, Doc: "group elements by k into {key, items}", Fn: builtinGroup},
		{Name: "tally", Arity: 1, Doc: "count elements by k into {key, count}", Fn: builtinTally},
		{Name: "union", Arity: 1, Doc: "multiset sum of the input and b", Fn: builtinUnion},
		{Name: "eq", Arity: 1, Doc: "input equals x", Fn: builtinEq},
		{Name: "lt", Arity: 1, Doc: "input is less than x", Fn: compareInt(func(a, b value.Int) bool { return a < b })},
		{Name: "gt", Arity: 1, Doc: "input is greater than x", Fn: compareInt(func(a, b value.Int) bool { return a > b })},
		{Name: "add", Arity: 1, Doc: "input plus x", Fn: arith(addInt)},
		{Name: "mul", Arity: 1, Doc: "input times x", Fn: arith(mulInt)},
	}
	cat := make(map[string]*Builtin, len(list))
	for _, b := range list {
		cat[b.Name] = b
	}
	return cat
}

func builtinID(_ *Call, input value.Value) (value.Value, error) {
	return input, nil
}

func builtinCount(c *Call, input value.Value) (value.Value, error) {
	b, err := c.bag(input)
	if err != nil {
		return nil, err
	}
	return value.Int(len(b)), nil
}

func builtinSum(c *Call, input value.Value) (value.Value, error) {
	b, err := c.bag(input)
	if err != nil {
		return nil, err
	}
	var total value.Int
	for _, e := range b {
		n, err := c.integer(e)
		if err != nil {
			return nil, err
		}
		sum, ok := addInt(total, n)
		if !ok {
			return nil, NewIntOverflowError(c.name, total, n, c.expr)
		}
		total = sum
	}
	return total, nil
}

func extremum(better func(a, b value.Int) bool) func(*Call, value.Value) (value.Value, error) {
	return func(c *Call, input value.Value) (value.Value, error) {
		b, err := c.bag(input)
		if err != nil {
			return nil, err
		}
		if len(b) == 0 {
			return value.Null{}, nil
		}
		best, err := c.integer(b[0])
		if err != nil {
			return nil, err
		}
		for _, e := range b[1:] {
			n, err := c.integer(e)
			if err != nil {
				return nil, err
			}
			if better(n, best) {
				best = n
			}
		}
		return best, nil
	}
}

func builtinDistinct(c *Call, input value.Value) (value.Value, error) {
	b, err := c.bag(input)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(b))
	out := make(value.Bag, 0, len(b))
	for _, e := range b {
		k := value.Key(e)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, e)
	}
	return out, nil
}

func builtinFlatten(c *Call, input value.Value) (value.Value, error) {
	b, err := c.bag(input)
	if err != nil {
		return nil, err
	}
	out := value.Bag{}
	for _, e := range b {
		inner, err := c.bag(e)
		if err != nil {
			return nil, err
		}
		out = append(out, inner...)
	}
	return out, nil
}

func builtinKeys(c *Call, input value.Value) (value.Value, error) {
	rec, ok := input.(value.Record)
	if !ok {
		return nil, c.Mismatch("record", input)
	}
	out := make(value.Bag, 0, len(rec))
	for _, k := range rec.SortedKeys() {
		out = append(out, value.String(k))
	}
	return out, nil
}

func builtinValues(c *Call, input value.Value) (value.Value, error) {
	rec, ok := input.(value.Record)
	if !ok {
		return nil, c.Mismatch("record", input)
	}
	out := make(value.Bag, 0, len(rec))
	for _, k := range rec.SortedKeys() {
		out = append(out, rec[k])
	}
	return out, nil
}

func builtinNot(c *Call, input value.Value) (value.Value, error) {
	b, ok := input.(value.Bool)
	if !ok {
		return nil, c.Mismatch("bool", input)
	}
	return !b, nil
}

func builtinMap(c *Call, input value.Value) (value.Value, error) {
	b, err := c.bag(input)
	if err != nil {
		return nil, err
	}
	out := make(value.Bag, 0, len(b))
	for _, e := range b {
		v, err := c.Arg(0, e)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func builtinFilter(c *Call, input value.Value) (value.Value, error) {
	b, err := c.bag(input)
	if err != nil {
		return nil, err
	}
	out := value.Bag{}
	for _, e := range b {
		v, err := c.Arg(0, e)
		if err != nil {
			return nil, err
		}
		keep, ok := v.(value.Bool)
		if !ok {
			return nil, c.Mismatch("bool predicate", v)
		}
		if keep {
			out = append(out, e)
		}
	}
	return out, nil
}

// partition groups bag elements by the canonical key of k(e), keeping
// groups in first-seen order.
func partition(c *Call, input value.Value) ([]value.Value, map[string]value.Bag, error) {
	b, err := c.bag(input)
	if err != nil {
		return nil, nil, err
	}
	var order []value.Value
	groups := make(map[string]value.Bag)
	for _, e := range b {
		k, err := c.Arg(0, e)
		if err != nil {
			return nil, nil, err
		}
		ck := value.Key(k)
		if _, ok := groups[ck]; !ok {
			order = append(order, k)
		}
		groups[ck] = append(groups[ck], e)
	}
	return order, groups, nil
}

func builtinGroup(c *Call, input value.Value) (value.Value, error) {
	order, groups, err := partition(c, input)
	if err != nil {
		return nil, err
	}
	out := make(value.Bag, 0, len(order))
	for _, k := range order {
		out = append(out, value.NewRecord(
			value.F("key", k),
			value.F("items", groups[value.Key(k)]),
		))
	}
	return out, nil
}

func builtinTally(c *Call, input value.Value) (value.Value, error) {
	order, groups, err := partition(c, input)
	if err != nil {
		return nil, err
	}
	out := make(value.Bag, 0, len(order))
	for _, k := range order {
		out = append(out, value.NewRecord(
			value.F("key", k),
			value.F("count", value.Int(len(groups[value.Key(k)]))),
		))
	}
	return out, nil
}

func builtinUnion(c *Call, input value.Value) (value.Value, error) {
	a, err := c.bag(input)
	if err != nil {
		return nil, err
	}
	v, err := c.Arg(0, input)
	if err != nil {
		return nil, err
	}
	b, err := c.bag(v)
	if err != nil {
		return nil, err
	}
	out := make(value.Bag, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...), nil
}

func builtinEq(c *Call, input value.Value) (value.Value, error) {
	x, err := c.Arg(0, input)
	if err != nil {
		return nil, err
	}
	return value.Bool(value.Equal(input, x)), nil
}

// binaryInt evaluates the argument and checks both operands are ints.
func binaryInt(c *Call, input value.Value) (value.Int, value.Int, error) {
	a, err := c.integer(input)
	if err != nil {
		return 0, 0, err
	}
	v, err := c.Arg(0, input)
	if err != nil {
		return 0, 0, err
	}
	b, err := c.integer(v)
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

func compareInt(cmp func(a, b value.Int) bool) func(*Call, value.Value) (value.Value, error) {
	return func(c *Call, input value.Value) (value.Value, error) {
		a, b, err := binaryInt(c, input)
		if err != nil {
			return nil, err
		}
		return value.Bool(cmp(a, b)), nil
	}
}

func arith(op func(a, b value.Int) (value.Int, bool)) func(*Call, value.Value) (value.Value, error) {
	return func(c *Call, input value.Value) (value.Value, error) {
		a, b, err := binaryInt(c, input)
		if err != nil {
			return nil, err
		}
		r, ok := op(a, b)
		if !ok {
			return nil, NewIntOverflowError(c.name, a, b, c.expr)
		}
		return r, nil
	}
}

// addInt reports false when a+b wraps.
func addInt(a, b value.Int) (value.Int, bool) {
	s := a + b
	if (b > 0 && s < a) || (b < 0 && s > a) {
		return 0, false
	}
	return s, true
}

// mulInt reports false when a*b wraps.
func mulInt(a, b value.Int) (value.Int, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	p := a * b
	if (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) || p/b != a {
		return 0, false
	}
	return p, true
}
