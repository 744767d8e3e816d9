package array

import "github.com/fxnlabs/gpuarray/internal/gpu"

// Outcome says whether an operation reached the runtime.
type Outcome int

const (
	// Performed means the runtime was called; Result.Status is its answer.
	Performed Outcome = iota
	// Skipped means a precondition was not met and nothing happened.
	// The array's last status is left unchanged.
	Skipped
)

func (o Outcome) String() string {
	if o == Skipped {
		return "skipped"
	}
	return "performed"
}

// Result reports what an Allocate, ToDevice or ToHost call did.
// Neither outcome is an error: callers decide what a skip or a non-success
// status means to them.
type Result struct {
	Outcome Outcome
	Status  gpu.Status
}

// Skipped reports whether the operation was skipped.
func (r Result) Skipped() bool {
	return r.Outcome == Skipped
}

// OK reports whether the operation was performed and succeeded.
func (r Result) OK() bool {
	return r.Outcome == Performed && r.Status.OK()
}
