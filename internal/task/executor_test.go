package task

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExecutor(b *fakeBrowser, client *fakeLLM) (*Executor, *fakeBrowser) {
	if b == nil {
		b = &fakeBrowser{}
	}
	if client == nil {
		client = &fakeLLM{response: `{"answer": "llm answer", "confidence": 0.9}`}
	}
	state := NewStateManager()
	extractor := NewLLMExtractor(client, nil, nil)
	handler := NewActionHandler(state, b, extractor, testTiming(), nil)
	return NewExecutor(state, handler, testTiming(), nil), b
}

func TestExecuteTaskRequiresPlan(t *testing.T) {
	e, _ := newTestExecutor(nil, nil)

	err := e.ExecuteTask(context.Background(), nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no plan")
}

func TestExecuteTaskRunsActionsInOrder(t *testing.T) {
	e, b := newTestExecutor(nil, nil)

	plan := &TaskPlan{
		TaskType: "browse",
		Actions: []Action{
			{ID: "n1", Type: ActionNavigateTo, Parameters: Parameters{URL: "https://a.example"}},
			{ID: "n2", Type: ActionNavigateTo, Parameters: Parameters{URL: "https://b.example"}},
		},
	}

	err := e.ExecuteTask(context.Background(), plan, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"https://a.example", "https://b.example"}, b.navCalls)

	s := e.GetState()
	assert.Equal(t, StatusComplete, s.ActionStatuses["n1"])
	assert.Equal(t, StatusComplete, s.ActionStatuses["n2"])
	assert.False(t, s.Executing)
	assert.Nil(t, s.CurrentStep)
	assert.Empty(t, s.Error)
	assert.Equal(t, 1.0, s.Progress)

	require.NotNil(t, e.GetPageContext())
	assert.Equal(t, "https://b.example", e.GetPageContext().URL)
}

func TestExecuteTaskAdoptsInitialPageContext(t *testing.T) {
	client := &fakeLLM{response: `{"answer": "title text", "confidence": 0.9}`}
	e, b := newTestExecutor(nil, client)

	plan := &TaskPlan{
		Actions: []Action{
			{ID: "e1", Type: ActionExtractDataLLM, Parameters: Parameters{Query: "the title"}},
		},
	}

	err := e.ExecuteTask(context.Background(), plan,
		&PageContext{URL: "https://seed.example", Content: "seeded body"})
	require.NoError(t, err)

	assert.Empty(t, b.navCalls, "the seed page must not trigger a navigation")
	s := e.GetState()
	assert.Equal(t, StatusComplete, s.ActionStatuses["e1"])
	assert.Equal(t, "title text", s.Results["e1"])
}

func TestExecuteTaskAbortsAtFirstFailure(t *testing.T) {
	e, b := newTestExecutor(nil, nil)

	plan := &TaskPlan{
		Actions: []Action{
			{ID: "c1", Type: ActionClickElement},
			{ID: "n1", Type: ActionNavigateTo, Parameters: Parameters{URL: "https://never.example"}},
		},
		ErrorHandling: ErrorHandling{RetryStrategy: RetryNone},
	}

	err := e.ExecuteTask(context.Background(), plan, nil)
	require.Error(t, err)

	s := e.GetState()
	assert.Equal(t, "click_element action is not implemented", s.Error)
	assert.Equal(t, StatusError, s.ActionStatuses["c1"])
	assert.NotContains(t, s.ActionStatuses, "n1", "later actions must not be attempted")
	assert.Empty(t, b.navCalls)
	assert.False(t, s.Executing)
	assert.Nil(t, s.CurrentStep)
}

func TestExecuteTaskRetriesPerPolicy(t *testing.T) {
	calls := 0
	b := &fakeBrowser{navigateFn: func(url string) (*PageContext, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("flaky")
		}
		return &PageContext{URL: url}, nil
	}}
	e, _ := newTestExecutor(b, nil)

	plan := &TaskPlan{
		Actions: []Action{
			{ID: "n1", Type: ActionNavigateTo, Parameters: Parameters{URL: "https://flaky.example"}},
		},
		ErrorHandling: ErrorHandling{RetryStrategy: RetryExponential, MaxRetries: 2},
	}

	err := e.ExecuteTask(context.Background(), plan, nil)
	require.NoError(t, err)

	s := e.GetState()
	assert.Equal(t, StatusComplete, s.ActionStatuses["n1"])
	assert.Equal(t, 1, s.RetryCount["n1"])
	// The transient failure stays recorded even though the retry recovered.
	assert.Equal(t, "flaky", s.Error)
}

func TestExecuteTaskFallbackRescuesPlan(t *testing.T) {
	b := &fakeBrowser{extractFn: func(string) ([]ExtractedItem, error) {
		return nil, errors.New("detached node")
	}}
	e, _ := newTestExecutor(b, nil)

	d := 0.001
	plan := &TaskPlan{
		Actions: []Action{
			{ID: "n1", Type: ActionNavigateTo, Parameters: Parameters{URL: "https://a.example"}},
			{ID: "e1", Type: ActionExtractData, Parameters: Parameters{Selector: ".item"}},
		},
		ErrorHandling: ErrorHandling{
			RetryStrategy: RetryLinear,
			MaxRetries:    1,
			Fallback:      &FallbackAction{Type: ActionWait, Parameters: Parameters{Duration: &d}},
		},
	}

	err := e.ExecuteTask(context.Background(), plan, nil)
	require.NoError(t, err)

	s := e.GetState()
	assert.Equal(t, StatusError, s.ActionStatuses["e1"])
	assert.Equal(t, StatusComplete, s.ActionStatuses["e1_fallback"])
	assert.Len(t, b.extractCalls, 2, "1 initial + 1 retry before the fallback")
}

func TestExecuteTaskResetsPreviousRun(t *testing.T) {
	e, _ := newTestExecutor(nil, nil)

	first := &TaskPlan{Actions: []Action{{ID: "c1", Type: ActionClickElement}}}
	require.Error(t, e.ExecuteTask(context.Background(), first, nil))
	require.NotEmpty(t, e.GetState().Error)

	second := &TaskPlan{Actions: []Action{
		{ID: "n1", Type: ActionNavigateTo, Parameters: Parameters{URL: "https://a.example"}},
	}}
	require.NoError(t, e.ExecuteTask(context.Background(), second, nil))

	s := e.GetState()
	assert.Empty(t, s.Error, "a new run must not inherit the previous error")
	assert.NotContains(t, s.ActionStatuses, "c1")
}

func TestExecuteTaskReportsCurrentStepWhileRunning(t *testing.T) {
	e, _ := newTestExecutor(nil, nil)

	var steps []int
	e.Subscribe(func(s ExecutionState) {
		if s.CurrentStep != nil {
			if len(steps) == 0 || steps[len(steps)-1] != *s.CurrentStep {
				steps = append(steps, *s.CurrentStep)
			}
		}
	})

	plan := &TaskPlan{Actions: []Action{
		{ID: "n1", Type: ActionNavigateTo, Parameters: Parameters{URL: "https://a.example"}},
		{ID: "n2", Type: ActionNavigateTo, Parameters: Parameters{URL: "https://b.example"}},
	}}

	require.NoError(t, e.ExecuteTask(context.Background(), plan, nil))
	assert.Equal(t, []int{0, 1}, steps)
}
