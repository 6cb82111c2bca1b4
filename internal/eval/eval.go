package eval

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/tally/internal/ast"
	"github.com/roach88/tally/internal/value"
)

// Evaluator interprets one Program.
//
// Thread-safety model:
//   - New(): builds the builtin frame once; nothing is mutated afterwards
//   - Run(), Apply(), RunAll(): safe from any goroutine
//
// INVARIANTS:
//   - No run observes another run's params, steps or depth
//   - Program nodes are read, never written
type Evaluator struct {
	prog        *ast.Program
	catalog     map[string]*Builtin
	root        *scope
	maxSteps    int
	maxDepth    int
	concurrency int
	tracer      Tracer
	logger      *slog.Logger
	runIDs      RunIDGenerator
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithMaxSteps sets the maximum number of evaluated stages per run.
//
// Default: 100000 (DefaultMaxSteps). Zero or negative disables the limit.
func WithMaxSteps(n int) Option {
	return func(e *Evaluator) {
		e.maxSteps = n
	}
}

// WithMaxDepth sets the maximum nesting of let applications per run.
//
// Default: 512 (DefaultMaxDepth). Zero or negative disables the limit.
func WithMaxDepth(n int) Option {
	return func(e *Evaluator) {
		e.maxDepth = n
	}
}

// WithTracer receives one Event per evaluated stage.
func WithTracer(t Tracer) Option {
	return func(e *Evaluator) {
		e.tracer = t
	}
}

// WithLogger sets the logger used for run lifecycle messages.
// Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Evaluator) {
		e.logger = l
	}
}

// WithRunIDs sets the generator used to label runs.
// Default: UUIDv7Generator.
func WithRunIDs(g RunIDGenerator) Option {
	return func(e *Evaluator) {
		e.runIDs = g
	}
}

// WithConcurrency bounds the number of parallel runs in RunAll.
// Values below 1 mean unbounded.
func WithConcurrency(n int) Option {
	return func(e *Evaluator) {
		e.concurrency = n
	}
}

// WithBuiltin adds or replaces a builtin for this Evaluator only.
func WithBuiltin(b *Builtin) Option {
	return func(e *Evaluator) {
		e.catalog[b.Name] = b
	}
}

// New creates an Evaluator for prog.
//
// prog is not copied; AST nodes are immutable once constructed and the
// caller must not change the Lets map afterwards.
func New(prog *ast.Program, opts ...Option) *Evaluator {
	if prog == nil {
		prog = ast.NewProgram(nil)
	}
	e := &Evaluator{
		prog:     prog,
		catalog:  defaultCatalog(),
		maxSteps: DefaultMaxSteps,
		maxDepth: DefaultMaxDepth,
		logger:   slog.Default(),
		runIDs:   UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.root = builtinScope(e.catalog)
	return e
}

// Program returns the program being evaluated.
func (e *Evaluator) Program() *ast.Program {
	return e.prog
}

// Run threads input through the program's top-level pipeline and returns
// the last stage's output. globals are visible to every pipeline, below
// params and lets and above builtins.
//
// A nil input is treated as Null.
func (e *Evaluator) Run(ctx context.Context, input value.Value, globals map[string]value.Value) (value.Value, error) {
	if !e.prog.Runnable() {
		return nil, NewMalformedPipelineError("program has no top-level expressions", e.prog.String())
	}
	return e.start(ctx, globals, func(r *run, sc *scope) (value.Value, error) {
		return r.pipeline(e.prog.Exprs, orNull(input), sc)
	})
}

// Apply evaluates a single expression against input in the program scope.
func (e *Evaluator) Apply(ctx context.Context, expr ast.Expr, input value.Value, globals map[string]value.Value) (value.Value, error) {
	return e.start(ctx, globals, func(r *run, sc *scope) (value.Value, error) {
		return r.eval(expr, orNull(input), sc)
	})
}

func (e *Evaluator) start(ctx context.Context, globals map[string]value.Value, fn func(*run, *scope) (value.Value, error)) (value.Value, error) {
	r := &run{
		ev:  e,
		ctx: ctx,
		id:  e.runIDs.Generate(),
		q:   newQuota(e.maxSteps, e.maxDepth),
	}
	sc := programScope(e.root, e.prog, globals)

	e.logger.Debug("run started", "run_id", r.id, "globals", len(globals))
	out, err := fn(r, sc)
	if err != nil {
		e.logger.Debug("run failed", "run_id", r.id, "steps", r.q.steps, "error", err)
		return nil, err
	}
	e.logger.Debug("run finished", "run_id", r.id, "steps", r.q.steps)
	return out, nil
}

func orNull(v value.Value) value.Value {
	if v == nil {
		return value.Null{}
	}
	return v
}

// run holds the mutable state of one evaluation.
type run struct {
	ev  *Evaluator
	ctx context.Context
	id  string
	q   *quota
}

// pipeline threads input through exprs left to right. An empty pipeline
// returns its input.
func (r *run) pipeline(exprs []ast.Expr, input value.Value, sc *scope) (value.Value, error) {
	cur := input
	for _, x := range exprs {
		out, err := r.eval(x, cur, sc)
		if err != nil {
			return nil, err
		}
		cur = out
	}
	return cur, nil
}

func (r *run) eval(x ast.Expr, input value.Value, sc *scope) (value.Value, error) {
	if err := r.ctx.Err(); err != nil {
		return nil, fmt.Errorf("run %s cancelled: %w", r.id, err)
	}
	if err := r.q.step(); err != nil {
		return nil, withExpr(err, x)
	}
	step := r.q.steps

	var (
		out value.Value
		err error
	)
	switch n := x.(type) {
	case ast.Term:
		out, err = r.evalTerm(n, input, sc)
	case ast.Projection:
		out, err = r.evalProjection(n, input)
	case ast.BagVal:
		out, err = r.evalBag(n, input, sc)
	case ast.RecordVal:
		out, err = r.evalRecord(n, n.Keys(), input, sc)
	case nil:
		err = NewMalformedPipelineError("nil expression in pipeline", "<nil>")
	default:
		err = NewMalformedPipelineError(fmt.Sprintf("unrecognized expression %T", x), x.String())
	}
	if err != nil {
		return nil, withExpr(err, x)
	}

	if r.ev.tracer != nil {
		r.ev.tracer.Trace(Event{
			RunID:  r.id,
			Step:   step,
			Depth:  r.q.depth,
			Expr:   x.String(),
			Output: out,
		})
	}
	return out, nil
}

// withExpr fills in the failing fragment on errors that do not carry one.
func withExpr(err error, x ast.Expr) error {
	ee, ok := err.(*Error)
	if !ok || ee.Expr != "" || x == nil {
		return err
	}
	ee.Expr = x.String()
	return ee
}

func (r *run) evalTerm(t ast.Term, input value.Value, sc *scope) (value.Value, error) {
	name, params := t.Destructure()
	target, err := r.resolve(name, sc, t)
	if err != nil {
		return nil, err
	}

	// Arguments resolve in the caller's scope before anything is bound.
	args := make([]binding, len(params))
	for i, p := range params {
		b, err := r.resolve(p, sc, t)
		if err != nil {
			return nil, err
		}
		args[i] = b
	}
	return r.invoke(name, target, params, args, input, t.String())
}

func (r *run) resolve(name string, sc *scope, t ast.Term) (binding, error) {
	if b, ok := sc.lookup(name); ok {
		return b, nil
	}
	return nil, NewUnresolvedNameError(name, t.String(), suggest(name, sc.visible()))
}

// invoke applies a resolved binding to args and input.
func (r *run) invoke(name string, b binding, argNames []string, args []binding, input value.Value, expr string) (value.Value, error) {
	switch b := b.(type) {
	case valueBinding:
		if len(args) != 0 {
			return nil, NewArityMismatchError(name, 0, len(args), expr)
		}
		return b.val, nil

	case letBinding:
		params, exprs := b.body.Destructure()
		if len(args) != len(params) {
			return nil, NewArityMismatchError(name, len(params), len(args), expr)
		}
		if err := r.q.enter(); err != nil {
			return nil, err
		}
		defer r.q.leave()

		frame := newScope(b.scope, len(params))
		for i, p := range params {
			frame.bind(p, args[i])
		}
		return r.pipeline(exprs, letInput(args, input), frame)

	case builtinBinding:
		bi := b.builtin
		if len(args) != bi.Arity {
			return nil, NewArityMismatchError(name, bi.Arity, len(args), expr)
		}
		return bi.Fn(&Call{r: r, name: name, argNames: argNames, args: args, expr: expr}, input)

	default:
		return nil, NewMalformedPipelineError(fmt.Sprintf("unknown binding kind for %q", name), expr)
	}
}

// letInput picks the value a let body starts from. When the first argument
// is bound to a value, the body runs on that value; otherwise (no arguments,
// or a let or builtin passed as a function) it runs on the caller's input.
func letInput(args []binding, input value.Value) value.Value {
	if len(args) == 0 {
		return input
	}
	if vb, ok := args[0].(valueBinding); ok {
		return vb.val
	}
	return input
}

func (r *run) evalProjection(p ast.Projection, input value.Value) (value.Value, error) {
	key := p.Destructure()
	rec, ok := input.(value.Record)
	if !ok {
		return nil, NewMissingFieldError(key, input, p.String())
	}
	v, ok := rec.Get(key)
	if !ok {
		return nil, NewMissingFieldError(key, input, p.String())
	}
	return v, nil
}

func (r *run) evalBag(b ast.BagVal, input value.Value, sc *scope) (value.Value, error) {
	if _, ok := input.(value.Bag); !ok {
		return nil, NewTypeMismatchError("bag pipeline", "bag", input, b.String())
	}
	return r.pipeline(b.Destructure(), input, sc)
}

// evalRecord evaluates each field against the same input, visiting keys in
// the given order. The result does not depend on that order.
func (r *run) evalRecord(rv ast.RecordVal, keys []string, input value.Value, sc *scope) (value.Value, error) {
	fields := rv.Destructure()
	out := make(value.Record, len(fields))
	for _, k := range keys {
		v, err := r.eval(fields[k], input, sc)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}
