package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/abdulmalikadeyemo/email-assistant/graph"
	"github.com/abdulmalikadeyemo/email-assistant/graph/emit"
)

// Result is the outcome of one reply run: the report plus the diagnostic
// trace. It is filled in for failed runs too, with the state at the point of
// failure.
type Result struct {
	RunID      string        `json:"run_id"`
	Status     graph.Status  `json:"status"`
	Report     Report        `json:"report"`
	Cost       graph.Summary `json:"cost"`
	Events     []emit.Event  `json:"events,omitempty"`
	FailedNode string        `json:"failed_node,omitempty"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration_ns"`
}

// Runner executes reply runs on an engine built from this package's graph.
type Runner struct {
	engine  *graph.Engine[graph.State]
	history *emit.BufferedEmitter
}

// NewRunner creates a Runner. history must be one of the engine's emitters
// for Result.Events to be filled in; it may be nil.
func NewRunner(engine *graph.Engine[graph.State], history *emit.BufferedEmitter) (*Runner, error) {
	if engine == nil {
		return nil, errors.New("workflow: engine is required")
	}
	return &Runner{engine: engine, history: history}, nil
}

// Reply runs the graph for email. The returned error is the run's error,
// unchanged, so callers can inspect it with errors.As; the Result describes
// the run either way. An invalid request fails before the run starts with a
// zero Result.
func (r *Runner) Reply(ctx context.Context, runID, email string, seed map[string]any) (Result, error) {
	initial, err := NewInitialState(email, seed)
	if err != nil {
		return Result{}, err
	}

	tracker := graph.NewCostTracker(runID)
	ctx = graph.WithCostTracker(ctx, tracker)

	start := time.Now()
	final, runErr := r.engine.Run(ctx, runID, initial)

	res := Result{
		RunID:    runID,
		Status:   graph.StatusOf(runErr),
		Cost:     tracker.Summary(),
		Duration: time.Since(start),
	}
	if r.history != nil {
		res.Events = r.history.Take(runID)
	}
	if runErr != nil {
		res.FailedNode = graph.FailedNode(runErr)
		res.Error = runErr.Error()
	}

	report, err := ReportFrom(final)
	if err != nil && runErr == nil {
		return res, err
	}
	res.Report = report
	return res, runErr
}
