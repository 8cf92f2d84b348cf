package executors

import (
	"context"
	"sync"
)

// SandboxExecutor simulates a payment rail for demos and tests. It is the only
// executor allowed to fabricate outcomes, and it is tagged non-live so callers
// can never mistake a simulated settlement for a real one. A destination with
// "simulate" set to "fail" produces a definitive failure.
type SandboxExecutor struct {
	mu      sync.Mutex
	settled map[string]*Result // idempotency: reference -> prior outcome
}

func NewSandboxExecutor() *SandboxExecutor {
	return &SandboxExecutor{settled: make(map[string]*Result)}
}

func (e *SandboxExecutor) Name() string { return "sandbox" }
func (e *SandboxExecutor) Live() bool   { return false }

func (e *SandboxExecutor) Execute(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if prior, ok := e.settled[req.Reference]; ok {
		return prior, nil
	}

	res := &Result{ExternalReference: "sbx_" + req.Reference, Succeeded: true}
	if mode, _ := req.Destination["simulate"].(string); mode == "fail" {
		res = &Result{ExternalReference: "sbx_" + req.Reference, FailureReason: "simulated decline"}
	}

	e.settled[req.Reference] = res
	return res, nil
}
