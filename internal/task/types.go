package task

import (
	"context"
	"strings"
	"time"
)

type ActionType string

const (
	ActionNavigateTo     ActionType = "navigate_to"
	ActionClickElement   ActionType = "click_element"
	ActionExtractData    ActionType = "extract_data"
	ActionExtractDataLLM ActionType = "extract_data_llm"
	ActionWait           ActionType = "wait"
	ActionSearch         ActionType = "search"
)

// Parameters carries the per-type action inputs. The wire shape is a flat
// JSON object; fields not relevant to the action's type stay empty.
type Parameters struct {
	URL              string         `json:"url,omitempty"`
	Selector         string         `json:"selector,omitempty"`
	Query            string         `json:"query,omitempty"`
	Text             string         `json:"text,omitempty"`
	Duration         *float64       `json:"duration,omitempty"` // seconds
	ExtractionGoal   string         `json:"extractionGoal,omitempty"`
	PageContent      string         `json:"pageContent,omitempty"`
	FailedSelector   string         `json:"failedSelector,omitempty"`
	ExtractionSchema map[string]any `json:"extractionSchema,omitempty"`
}

// Action is one step of a plan. IDs must be unique within a plan: the
// execution state maps are keyed by them.
type Action struct {
	ID          string     `json:"id"`
	Type        ActionType `json:"type"`
	Parameters  Parameters `json:"parameters"`
	Description string     `json:"description"`
}

type RetryStrategy string

const (
	RetryNone        RetryStrategy = "none"
	RetryLinear      RetryStrategy = "linear"
	RetryExponential RetryStrategy = "exponential"
)

// FallbackAction is executed once when an action has exhausted its retries.
type FallbackAction struct {
	Type       ActionType `json:"type"`
	Parameters Parameters `json:"parameters"`
}

type ErrorHandling struct {
	RetryStrategy RetryStrategy   `json:"retry_strategy"`
	MaxRetries    int             `json:"max_retries"`
	Fallback      *FallbackAction `json:"fallback,omitempty"`
}

// TaskPlan is the unit of work submitted to the executor. Actions run in
// array order.
type TaskPlan struct {
	TaskType      string            `json:"task_type"`
	Actions       []Action          `json:"actions"`
	ErrorHandling ErrorHandling     `json:"error_handling"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Explanation   string            `json:"explanation,omitempty"`
}

type ActionStatus string

const (
	StatusPending  ActionStatus = "pending"
	StatusLoading  ActionStatus = "loading"
	StatusComplete ActionStatus = "complete"
	StatusError    ActionStatus = "error"
	StatusSkipped  ActionStatus = "skipped"
	StatusCanceled ActionStatus = "canceled"
)

// ExtractedItem is a single element captured by selector-based or
// LLM-based extraction.
type ExtractedItem struct {
	Text       string            `json:"text"`
	HTML       string            `json:"html"`
	Attributes map[string]string `json:"attributes"`
}

// PageContext is a snapshot of the active page. The executor replaces its
// held context after a successful navigation; readers must treat a received
// context as a point-in-time snapshot.
type PageContext struct {
	Title        string
	URL          string
	Content      string
	OriginalHTML string
}

// ExecutionState is the single source of truth for an in-progress plan.
// It is owned by the StateManager; other components request mutations
// through the manager's methods and only ever see snapshot copies.
type ExecutionState struct {
	CurrentStep    *int
	Executing      bool
	Error          string
	ActionStatuses map[string]ActionStatus
	RetryCount     map[string]int
	ExtractedData  map[string][]ExtractedItem
	Results        map[string]string
	Progress       float64
	StartTime      time.Time
	ElapsedTime    time.Duration
}

// Browser is the surface the engine needs from a browser backend. Both the
// chromedp and the playwright backends implement it.
type Browser interface {
	// Navigate opens the URL in the active tab, waits for the page to
	// complete loading and returns a fresh snapshot of the new page.
	Navigate(ctx context.Context, url string) (*PageContext, error)

	// OpenSearch opens a search-results tab for the query. The held page
	// context is not refreshed.
	OpenSearch(ctx context.Context, query string) error

	// ExtractElements collects text, HTML and attributes for every element
	// matched by the CSS selector on the current page.
	ExtractElements(ctx context.Context, selector string) ([]ExtractedItem, error)
}

func joinItemTexts(items []ExtractedItem) string {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		if t := strings.TrimSpace(it.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n")
}
