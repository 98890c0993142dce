package forge

import (
	"context"
	"fmt"
	"time"

	"github.com/dop251/goja"
)

// ScriptHost evaluates a customScript condition body. Implementations must
// be safe for concurrent use.
type ScriptHost interface {
	// Evaluate runs the script with the trigger event, the user's event
	// history and the condition parameters bound, and returns its boolean
	// result.
	Evaluate(ctx context.Context, script string, event *Event, history []*Event, params map[string]any) (bool, error)
}

// GojaScriptHost runs condition scripts on the goja JavaScript runtime. A
// fresh VM is created per evaluation for isolation; the script sees `event`,
// `history` and `params` and its final expression must be a boolean.
type GojaScriptHost struct {
	timeout time.Duration
}

// NewGojaScriptHost creates a script host with an evaluation timeout.
func NewGojaScriptHost(timeout time.Duration) *GojaScriptHost {
	if timeout <= 0 {
		timeout = 100 * time.Millisecond
	}
	return &GojaScriptHost{timeout: timeout}
}

func (h *GojaScriptHost) Evaluate(ctx context.Context, script string, event *Event, history []*Event, params map[string]any) (bool, error) {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	if err := vm.Set("event", event); err != nil {
		return false, fmt.Errorf("script host bind event: %w", err)
	}
	if err := vm.Set("history", history); err != nil {
		return false, fmt.Errorf("script host bind history: %w", err)
	}
	if err := vm.Set("params", params); err != nil {
		return false, fmt.Errorf("script host bind params: %w", err)
	}

	timer := time.AfterFunc(h.timeout, func() {
		vm.Interrupt("script timeout")
	})
	defer timer.Stop()
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < h.timeout {
		timer.Reset(time.Until(deadline))
	}

	value, err := vm.RunString(script)
	if err != nil {
		return false, fmt.Errorf("script evaluation: %w", err)
	}
	return value.ToBoolean(), nil
}
