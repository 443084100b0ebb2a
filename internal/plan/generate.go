package plan

import (
	"context"
	"errors"
	"log"
	"time"
)

// MaxAssignmentLength caps assignment_details input.
const MaxAssignmentLength = 18000

// DefaultTimeout bounds the backend call when no timeout is configured.
const DefaultTimeout = 150 * time.Second

// Input carries the fixed inputs of one generation attempt.
type Input struct {
	Title             string
	Description       string
	Timeframe         Timeframe
	AssignmentDetails string
	GroupSize         int
	TraceID           string
}

// GeneratorOpts holds parameters for building a Generator.
type GeneratorOpts struct {
	// Backend is the external generation service. Required unless UseStub.
	Backend Backend
	// UseStub bypasses the backend and synthesizes plans deterministically.
	UseStub bool
	// Timeout bounds the backend call; DefaultTimeout when zero.
	Timeout time.Duration
}

// Generator turns assignment inputs into a validated Plan. It never returns
// a partially-valid plan: any failure is a typed *Error from the closed code
// set in errors.go.
type Generator struct {
	backend Backend
	useStub bool
	timeout time.Duration
}

// NewGenerator builds a Generator from opts.
func NewGenerator(opts GeneratorOpts) *Generator {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Generator{
		backend: opts.Backend,
		useStub: opts.UseStub,
		timeout: timeout,
	}
}

// Stub reports whether the generator runs in deterministic stub mode.
func (g *Generator) Stub() bool {
	return g.useStub
}

// Generate produces a validated plan for the given inputs.
func (g *Generator) Generate(ctx context.Context, in Input) (*Plan, error) {
	if len(in.AssignmentDetails) > MaxAssignmentLength {
		return nil, Errf(CodeAssignmentTooLong, "assignment text exceeds %d characters", MaxAssignmentLength)
	}

	n := ClampGroupSize(in.GroupSize)

	if g.useStub {
		p := StubPlan(in.Timeframe, in.GroupSize)
		// The stub is held to the same contract as real output.
		if len(p.Bundles) != n {
			return nil, Errf(CodeBundleCountMismatch, "stub produced %d bundles, expected %d", len(p.Bundles), n)
		}
		if issues := Validate(p, n); len(issues) > 0 {
			return nil, Errf(CodeAIOutputInvalid, "stub output failed validation: %s", FormatIssues(issues))
		}
		return p, nil
	}

	if g.backend == nil {
		return nil, Errf(CodeAICallFailed, "no generation backend configured")
	}

	prompt, err := BuildPrompt(PromptInput{
		Title:             in.Title,
		Description:       in.Description,
		Timeframe:         in.Timeframe,
		AssignmentDetails: in.AssignmentDetails,
		GroupSize:         in.GroupSize,
	})
	if err != nil {
		return nil, Errf(CodeAICallFailed, "render prompt: %v", err)
	}

	// Avoid logging the full assignment text; lengths are enough to debug.
	log.Printf("plan: generate trace=%s titleLen=%d assignmentLen=%d group=%d timeframe=%s",
		in.TraceID, len(in.Title), len(in.AssignmentDetails), in.GroupSize, in.Timeframe)

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.backend.Complete(callCtx, prompt)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, Errf(CodeAITimeout, "backend call exceeded %s", g.timeout)
		}
		var pe *Error
		if errors.As(err, &pe) {
			return nil, pe
		}
		return nil, Errf(CodeAICallFailed, "%v", err)
	}

	raw, ok := ExtractJSON(resp)
	if !ok {
		return nil, Errf(CodeAIOutputInvalid, "unable to parse backend output as JSON")
	}

	p, err := Decode(raw)
	if err != nil {
		return nil, Errf(CodeAIOutputInvalid, "decode plan: %v", err)
	}
	// A wrong bundle count is a contract violation by the backend, not a
	// shape problem, so it gets its own code ahead of full validation.
	if len(p.Bundles) != n {
		return nil, Errf(CodeBundleCountMismatch, "backend returned %d bundles, expected %d", len(p.Bundles), n)
	}
	if issues := Validate(p, n); len(issues) > 0 {
		return nil, Errf(CodeAIOutputInvalid, "validation failed: %s", FormatIssues(issues))
	}

	return p, nil
}
