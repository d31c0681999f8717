package task

import (
	"context"
	"fmt"
	"time"

	"github.com/browserpilot/browserpilot/pkg/logger"
)

// Timing collects the delays the engine uses between and inside actions.
// The defaults encode the original page-render assumptions; deployments
// with slower pages tune them here.
type Timing struct {
	NavigationTimeout time.Duration
	SettleDelay       time.Duration
	ActionDelay       time.Duration
	RetryBaseDelay    time.Duration
}

func DefaultTiming() Timing {
	return Timing{
		NavigationTimeout: 30 * time.Second,
		SettleDelay:       3 * time.Second,
		ActionDelay:       500 * time.Millisecond,
		RetryBaseDelay:    time.Second,
	}
}

// ActionHandler executes exactly one action at a time against the current
// page context, driving the status transitions loading → complete, error
// or skipped through the state manager.
type ActionHandler struct {
	state     *StateManager
	browser   Browser
	extractor *LLMExtractor
	timing    Timing
	log       *logger.Logger

	pageContext *PageContext
}

func NewActionHandler(state *StateManager, browser Browser, extractor *LLMExtractor, timing Timing, log *logger.Logger) *ActionHandler {
	if log == nil {
		log = logger.Discard()
	}
	return &ActionHandler{
		state:     state,
		browser:   browser,
		extractor: extractor,
		timing:    timing,
		log:       log,
	}
}

// SetPageContext replaces the held page context. The handler also keeps
// the extractor's fallback context in sync.
func (h *ActionHandler) SetPageContext(pc *PageContext) {
	h.pageContext = pc
	h.extractor.SetPageContext(pc)
}

func (h *ActionHandler) GetPageContext() *PageContext { return h.pageContext }

// HandleAction runs one action. A nil return covers both completion and
// the deliberate skipped outcome; the per-action status carries the
// distinction.
func (h *ActionHandler) HandleAction(ctx context.Context, action Action) error {
	h.state.UpdateActionStatus(action.ID, StatusLoading)
	h.log.Info("action %s: %s", action.ID, action.Type)

	skipped, err := h.dispatch(ctx, action)
	if err != nil {
		h.log.Error("action %s failed: %v", action.ID, err)
		h.state.SetError(err.Error())
		h.state.UpdateActionStatus(action.ID, StatusError)
		return err
	}
	if skipped {
		h.log.Warn("action %s skipped: no page context", action.ID)
		h.state.UpdateActionStatus(action.ID, StatusSkipped)
		return nil
	}
	h.state.UpdateActionStatus(action.ID, StatusComplete)
	return nil
}

func (h *ActionHandler) dispatch(ctx context.Context, action Action) (skipped bool, err error) {
	switch action.Type {
	case ActionSearch:
		return false, h.handleSearch(ctx, action)
	case ActionNavigateTo:
		return false, h.handleNavigate(ctx, action)
	case ActionWait:
		return false, h.handleWait(action)
	case ActionClickElement:
		return false, fmt.Errorf("click_element action is not implemented")
	case ActionExtractDataLLM:
		return h.handleExtractLLM(ctx, action)
	case ActionExtractData:
		return h.handleExtract(ctx, action)
	default:
		return false, fmt.Errorf("unknown action type: %s", action.Type)
	}
}

func (h *ActionHandler) handleSearch(ctx context.Context, action Action) error {
	query := action.Parameters.Query
	if query == "" {
		query = action.Parameters.Text
	}
	if query == "" {
		return fmt.Errorf("search action requires a query or text parameter")
	}
	return h.browser.OpenSearch(ctx, query)
}

func (h *ActionHandler) handleNavigate(ctx context.Context, action Action) error {
	if action.Parameters.URL == "" {
		return fmt.Errorf("navigate_to action requires a url parameter")
	}
	pc, err := h.browser.Navigate(ctx, action.Parameters.URL)
	if err != nil {
		return err
	}
	h.SetPageContext(pc)
	return nil
}

// handleWait sleeps for the configured duration in seconds, one second
// when absent. It never fails.
func (h *ActionHandler) handleWait(action Action) error {
	seconds := 1.0
	if action.Parameters.Duration != nil {
		seconds = *action.Parameters.Duration
	}
	time.Sleep(time.Duration(seconds * float64(time.Second)))
	return nil
}

func (h *ActionHandler) handleExtractLLM(ctx context.Context, action Action) (bool, error) {
	if h.pageContext == nil && action.Parameters.PageContent == "" {
		return true, nil
	}
	items, err := h.extractor.Extract(ctx, action, h.pageContext)
	if err != nil {
		return false, err
	}
	h.state.UpdateExtractedData(action.ID, items)
	return false, nil
}

// handleExtract runs a selector query against the current page. A selector
// matching zero elements is not an error: the action is transparently
// re-dispatched through the LLM extractor with the failed selector folded
// into the goal, and that outcome becomes this action's outcome.
func (h *ActionHandler) handleExtract(ctx context.Context, action Action) (bool, error) {
	if h.pageContext == nil {
		return true, nil
	}
	selector := action.Parameters.Selector
	if selector == "" {
		return false, fmt.Errorf("extract_data action requires a selector parameter")
	}

	items, err := h.browser.ExtractElements(ctx, selector)
	if err != nil {
		return false, err
	}

	if len(items) == 0 {
		h.log.Warn("selector %q matched no elements, falling back to LLM extraction", selector)
		fallback := action
		fallback.Type = ActionExtractDataLLM
		fallback.Parameters.FailedSelector = selector
		fallback.Parameters.ExtractionGoal = fmt.Sprintf(
			"%s (the CSS selector %q matched no elements on the page)",
			h.extractGoalFor(action), selector,
		)
		return h.handleExtractLLM(ctx, fallback)
	}

	h.state.UpdateExtractedData(action.ID, items)
	return false, nil
}

func (h *ActionHandler) extractGoalFor(action Action) string {
	if action.Parameters.ExtractionGoal != "" {
		return action.Parameters.ExtractionGoal
	}
	if action.Parameters.Query != "" {
		return action.Parameters.Query
	}
	if action.Description != "" {
		return action.Description
	}
	return defaultExtractionGoal
}

// HandleRetry applies the plan's retry policy to a failed action. While
// retries remain it sleeps the backoff delay, bumps the counter and
// re-dispatches the action from the top. Once exhausted, a configured
// fallback action runs exactly once and its outcome is final: the
// fallback itself is never retried.
func (h *ActionHandler) HandleRetry(ctx context.Context, action Action, policy ErrorHandling) error {
	for {
		count := h.state.RetryCount(action.ID)
		if count >= policy.MaxRetries {
			if policy.Fallback != nil {
				fb := Action{
					ID:          action.ID + "_fallback",
					Type:        policy.Fallback.Type,
					Parameters:  policy.Fallback.Parameters,
					Description: "fallback for " + action.ID,
				}
				h.log.Info("retries exhausted for action %s, running fallback %s", action.ID, fb.ID)
				return h.HandleAction(ctx, fb)
			}
			return fmt.Errorf("action %q failed after %d attempts", action.ID, count+1)
		}

		time.Sleep(h.retryDelay(policy.RetryStrategy, count))
		h.state.IncrementRetryCount(action.ID)
		h.log.Info("retrying action %s (attempt %d/%d)", action.ID, count+1, policy.MaxRetries)

		if err := h.HandleAction(ctx, action); err == nil {
			return nil
		}
	}
}

func (h *ActionHandler) retryDelay(strategy RetryStrategy, retryCount int) time.Duration {
	base := h.timing.RetryBaseDelay
	if base <= 0 {
		base = time.Second
	}
	if strategy == RetryExponential {
		return time.Duration(1<<retryCount) * base
	}
	return base
}
