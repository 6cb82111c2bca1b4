package eval

// Default limits for a single run.
const (
	// DefaultMaxSteps bounds the number of evaluated stages per run.
	DefaultMaxSteps = 100000

	// DefaultMaxDepth bounds nested let applications per run.
	DefaultMaxDepth = 512
)

// quota tracks steps and let-application depth for one run.
//
// Steps catch long linear evaluations; depth catches unbounded recursion
// before the Go stack does. Together they guarantee termination.
type quota struct {
	maxSteps int
	maxDepth int
	steps    int
	depth    int
}

func newQuota(maxSteps, maxDepth int) *quota {
	return &quota{maxSteps: maxSteps, maxDepth: maxDepth}
}

// step counts one evaluated stage.
func (q *quota) step() error {
	q.steps++
	if q.maxSteps > 0 && q.steps > q.maxSteps {
		return NewQuotaError("steps", q.steps, q.maxSteps)
	}
	return nil
}

// enter records one nested let application. Callers must pair it with leave.
func (q *quota) enter() error {
	q.depth++
	if q.maxDepth > 0 && q.depth > q.maxDepth {
		q.depth--
		return NewQuotaError("depth", q.depth+1, q.maxDepth)
	}
	return nil
}

func (q *quota) leave() {
	q.depth--
}
