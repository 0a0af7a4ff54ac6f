package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"hookrunner-server/capability"
	"hookrunner-server/models"
)

// EntryFunction is the function every handler must define. It receives the
// raw event payload as its only argument and its return value becomes the
// response data.
const EntryFunction = "handle"

// Budget bounds one invocation. The deadline aborts the VM via interrupt,
// the call depth bound caps recursion, and the size ceilings stand in for a
// heap limit (the engine exposes no hard memory cap, so source, payload and
// result sizes are bounded instead).
type Budget struct {
	Deadline        time.Duration
	MaxCallDepth    int
	MaxSourceBytes  int
	MaxPayloadBytes int
	MaxResultBytes  int
}

// DefaultBudget returns the limits used when none are configured.
func DefaultBudget() Budget {
	return Budget{
		Deadline:        5 * time.Second,
		MaxCallDepth:    256,
		MaxSourceBytes:  64 * 1024,
		MaxPayloadBytes: 1024 * 1024,
		MaxResultBytes:  1024 * 1024,
	}
}

// Executor runs handler code inside a fresh goja VM per invocation. The VM
// has isolated globals and no ambient I/O; the capability bridge functions
// are the only host functions bound into the handler's namespace.
type Executor struct {
	bridge *capability.Bridge
	budget Budget
	cache  *programCache
	log    *zap.Logger
}

// NewExecutor builds an executor around the capability bridge.
func NewExecutor(bridge *capability.Bridge, budget Budget, log *zap.Logger) *Executor {
	return &Executor{
		bridge: bridge,
		budget: budget,
		cache:  newProgramCache(),
		log:    log,
	}
}

// ValidateSource checks that source is acceptable as a handler: within the
// size ceiling, compilable, and defining a callable entry function. Run in a
// bare VM where capability calls fail, so top-level side effects are
// rejected at upsert time rather than surprising a later invocation.
func (e *Executor) ValidateSource(source string) error {
	if len(source) > e.budget.MaxSourceBytes {
		return &models.ValidationError{
			Reason: fmt.Sprintf("source exceeds %d bytes", e.budget.MaxSourceBytes),
		}
	}

	prog, err := goja.Compile("handler", source, false)
	if err != nil {
		return &models.ValidationError{Reason: fmt.Sprintf("source does not compile: %v", err)}
	}

	vm := goja.New()
	vm.SetMaxCallStackSize(e.budget.MaxCallDepth)
	e.bindValidationStubs(vm)

	timer := time.AfterFunc(e.budget.Deadline, func() {
		vm.Interrupt("validation budget exceeded")
	})
	defer timer.Stop()

	if _, err := vm.RunProgram(prog); err != nil {
		return &models.ValidationError{Reason: fmt.Sprintf("top-level code failed: %s", plainMessage(err))}
	}

	entry := vm.Get(EntryFunction)
	if entry == nil || goja.IsUndefined(entry) || goja.IsNull(entry) {
		return &models.ValidationError{Reason: fmt.Sprintf("source does not define a %q function", EntryFunction)}
	}
	if _, ok := goja.AssertFunction(entry); !ok {
		return &models.ValidationError{Reason: fmt.Sprintf("%q is not callable", EntryFunction)}
	}
	return nil
}

// Execute runs one invocation against an immutable handler snapshot and
// returns the handler's exported return value. Every failure comes back as
// an *models.ExecutionError or *models.CapabilityError.
func (e *Executor) Execute(ctx context.Context, inv *models.InvocationContext) (interface{}, error) {
	if len(inv.Payload) > e.budget.MaxPayloadBytes {
		return nil, &models.ExecutionError{
			Kind:    models.ExecResourceExceeded,
			Message: fmt.Sprintf("payload exceeds %d bytes", e.budget.MaxPayloadBytes),
		}
	}

	prog, ok := e.cache.get(inv.URI, inv.Snapshot.Revision)
	if !ok {
		var err error
		prog, err = goja.Compile("handler", inv.Snapshot.Source, false)
		if err != nil {
			return nil, &models.ExecutionError{
				Kind:    models.ExecCompile,
				Message: fmt.Sprintf("source does not compile: %v", err),
			}
		}
		e.cache.put(inv.URI, inv.Snapshot.Revision, prog)
	}

	// The capability sub-deadline is the invocation's remaining budget: a
	// capability call that completes before an abort stays committed
	// (at-least-once side effects, no compensation).
	deadline := e.budget.Deadline
	if dl, ok := ctx.Deadline(); ok {
		if remaining := time.Until(dl); remaining < deadline {
			deadline = remaining
		}
	}
	capCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	vm := goja.New()
	vm.SetMaxCallStackSize(e.budget.MaxCallDepth)
	if err := e.bindCapabilities(vm, capCtx, inv); err != nil {
		return nil, &models.ExecutionError{Kind: models.ExecRuntime, Message: err.Error()}
	}

	timer := time.AfterFunc(deadline, func() {
		vm.Interrupt("execution budget exceeded")
	})
	defer timer.Stop()

	if _, err := vm.RunProgram(prog); err != nil {
		return nil, e.translate(err)
	}

	entry := vm.Get(EntryFunction)
	fn, ok := goja.AssertFunction(entry)
	if !ok {
		return nil, &models.ExecutionError{
			Kind:    models.ExecMissingEntry,
			Message: fmt.Sprintf("handler does not define a callable %q function", EntryFunction),
		}
	}

	result, err := fn(goja.Undefined(), vm.ToValue(inv.Payload))
	if err != nil {
		return nil, e.translate(err)
	}

	exported := result.Export()
	if err := e.checkResultSize(exported); err != nil {
		return nil, err
	}
	return exported, nil
}

// bindCapabilities exposes each bridge builtin under its own name, plus a
// generic capability(name, args...) router so unknown capability names fail
// through the bridge instead of as bare reference errors.
func (e *Executor) bindCapabilities(vm *goja.Runtime, ctx context.Context, inv *models.InvocationContext) error {
	call := func(name string, args []goja.Value) goja.Value {
		exported := make([]interface{}, len(args))
		for i, a := range args {
			exported[i] = a.Export()
		}
		e.log.Debug("capability call",
			zap.String("invocation_id", inv.ID),
			zap.String("uri", inv.URI),
			zap.String("capability", name))
		out, err := e.bridge.Invoke(ctx, name, exported)
		if err != nil {
			// Thrown as a script-level exception: handler code may catch
			// it; uncaught it fails the invocation.
			panic(vm.NewGoError(err))
		}
		return vm.ToValue(out)
	}

	for _, name := range e.bridge.Names() {
		name := name
		err := vm.Set(name, func(fc goja.FunctionCall) goja.Value {
			return call(name, fc.Arguments)
		})
		if err != nil {
			return err
		}
	}

	return vm.Set("capability", func(fc goja.FunctionCall) goja.Value {
		if len(fc.Arguments) == 0 {
			panic(vm.NewGoError(&models.CapabilityError{
				Kind:       models.CapInvalidArgs,
				Capability: "capability",
				Message:    "capability name required",
			}))
		}
		return call(fc.Arguments[0].String(), fc.Arguments[1:])
	})
}

// bindValidationStubs binds the capability names to stubs that always throw,
// so validation rejects handlers performing side effects at the top level.
func (e *Executor) bindValidationStubs(vm *goja.Runtime) {
	for _, name := range append(e.bridge.Names(), "capability") {
		name := name
		_ = vm.Set(name, func(fc goja.FunctionCall) goja.Value {
			panic(vm.NewTypeError("capability %s may only be called from inside %s", name, EntryFunction))
		})
	}
}

func (e *Executor) checkResultSize(v interface{}) error {
	size := 0
	switch val := v.(type) {
	case nil:
	case string:
		size = len(val)
	default:
		encoded, err := json.Marshal(val)
		if err != nil {
			return &models.ExecutionError{
				Kind:    models.ExecRuntime,
				Message: "handler returned a value that cannot be serialized",
			}
		}
		size = len(encoded)
	}
	if size > e.budget.MaxResultBytes {
		return &models.ExecutionError{
			Kind:    models.ExecResourceExceeded,
			Message: fmt.Sprintf("result exceeds %d bytes", e.budget.MaxResultBytes),
		}
	}
	return nil
}

// translate maps engine failures onto the execution error taxonomy. A
// capability error travelling inside an uncaught exception is surfaced
// as-is; everything else becomes a runtime or resource error with a plain
// message and no interpreter stack trace.
func (e *Executor) translate(err error) error {
	var soErr *goja.StackOverflowError
	if errors.As(err, &soErr) {
		return &models.ExecutionError{
			Kind:    models.ExecResourceExceeded,
			Message: "call depth limit exceeded",
		}
	}

	var intErr *goja.InterruptedError
	if errors.As(err, &intErr) {
		return &models.ExecutionError{
			Kind:    models.ExecResourceExceeded,
			Message: "execution budget exceeded",
		}
	}

	var ex *goja.Exception
	if errors.As(err, &ex) {
		if capErr := capabilityFromException(ex); capErr != nil {
			return capErr
		}
		return &models.ExecutionError{Kind: models.ExecRuntime, Message: ex.Value().String()}
	}

	return &models.ExecutionError{Kind: models.ExecRuntime, Message: err.Error()}
}

// capabilityFromException digs the original bridge error out of a thrown
// GoError, whichever way the engine exported it.
func capabilityFromException(ex *goja.Exception) *models.CapabilityError {
	var capErr *models.CapabilityError

	exported := ex.Value().Export()
	if wrapped, ok := exported.(error); ok && errors.As(wrapped, &capErr) {
		return capErr
	}
	if m, ok := exported.(map[string]interface{}); ok {
		if wrapped, ok := m["value"].(error); ok && errors.As(wrapped, &capErr) {
			return capErr
		}
	}
	return nil
}

// plainMessage strips engine detail down to the thrown value's string form.
func plainMessage(err error) string {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return ex.Value().String()
	}
	var intErr *goja.InterruptedError
	if errors.As(err, &intErr) {
		return "validation budget exceeded"
	}
	return err.Error()
}
