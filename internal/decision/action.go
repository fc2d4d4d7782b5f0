package decision

import (
	"fmt"

	"github.com/google/uuid"
)

// ActionFunc executes an action with its stored params.
type ActionFunc func(params map[string]any) (any, error)

// Action is the single outcome of a routing decision. It is a value:
// the caller decides whether and when to execute it.
type Action struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Params      map[string]any `json:"params,omitempty"`
	Handler     ActionFunc     `json:"-"`
}

// ExecResult is the structured outcome of Execute. ID is unique per
// execution so repeated runs of the same action stay distinguishable
// in logs and reports.
type ExecResult struct {
	ID     string `json:"id"`
	Status string `json:"status"` // "ok" or "error"
	Action string `json:"action"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Execute runs the attached handler, if any. Failures, panics
// included, are reported in the result, never propagated; an
// Action with no handler is a successful no-op.
func (a Action) Execute() (res ExecResult) {
	id := uuid.New().String()
	if a.Handler == nil {
		return ExecResult{ID: id, Status: "ok", Action: a.Name}
	}

	defer func() {
		if r := recover(); r != nil {
			res = ExecResult{ID: id, Status: "error", Action: a.Name, Error: fmt.Sprintf("panic: %v", r)}
		}
	}()

	out, err := a.Handler(a.Params)
	if err != nil {
		return ExecResult{ID: id, Status: "error", Action: a.Name, Error: err.Error()}
	}
	return ExecResult{ID: id, Status: "ok", Action: a.Name, Result: out}
}
