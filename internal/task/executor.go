package task

import (
	"context"
	"fmt"
	"time"

	"github.com/browserpilot/browserpilot/pkg/logger"
)

// Executor drives a TaskPlan through the action handler, strictly in
// array order, applying the plan's retry policy on failure. There is no
// partial-plan resume: an aborted plan is restarted from the beginning by
// the caller.
type Executor struct {
	state   *StateManager
	handler *ActionHandler
	timing  Timing
	log     *logger.Logger
}

func NewExecutor(state *StateManager, handler *ActionHandler, timing Timing, log *logger.Logger) *Executor {
	if log == nil {
		log = logger.Discard()
	}
	return &Executor{state: state, handler: handler, timing: timing, log: log}
}

// Subscribe registers a listener for execution state snapshots and
// returns its unsubscribe function.
func (e *Executor) Subscribe(l Listener) func() { return e.state.Subscribe(l) }

// GetState returns a point-in-time snapshot of the execution state.
func (e *Executor) GetState() ExecutionState { return e.state.GetState() }

func (e *Executor) SetPageContext(pc *PageContext) { e.handler.SetPageContext(pc) }
func (e *Executor) GetPageContext() *PageContext   { return e.handler.GetPageContext() }

// ExecuteTask runs the plan's actions sequentially. The first action that
// still fails after the retry policy aborts the whole plan; remaining
// actions are never attempted and the failure is recorded as the
// top-level state error.
func (e *Executor) ExecuteTask(ctx context.Context, plan *TaskPlan, pageContext *PageContext) (err error) {
	if plan == nil {
		return fmt.Errorf("no plan to execute")
	}
	if pageContext != nil {
		e.handler.SetPageContext(pageContext)
	}

	e.state.Reset()
	e.state.SetExecuting(true)
	e.log.Info("executing plan: %s (%d actions)", plan.TaskType, len(plan.Actions))

	defer func() {
		e.state.SetExecuting(false)
		e.state.SetCurrentStep(nil)
	}()

	for i, action := range plan.Actions {
		step := i
		e.state.SetCurrentStep(&step)

		actionErr := e.handler.HandleAction(ctx, action)
		if actionErr != nil && plan.ErrorHandling.RetryStrategy != RetryNone {
			actionErr = e.handler.HandleRetry(ctx, action, plan.ErrorHandling)
		}
		if actionErr != nil {
			e.state.SetError(actionErr.Error())
			e.log.Error("plan aborted at action %s: %v", action.ID, actionErr)
			return actionErr
		}

		e.state.SetProgress(float64(i+1) / float64(len(plan.Actions)))

		// Pacing between actions, not correctness-critical.
		time.Sleep(e.timing.ActionDelay)
	}

	e.log.Info("plan completed: %s", plan.TaskType)
	return nil
}
