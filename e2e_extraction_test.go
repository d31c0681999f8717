package main

import (
	"context"
	"os"
	"testing"

	"github.com/browserpilot/browserpilot/internal/browser"
	"github.com/browserpilot/browserpilot/internal/llm"
	"github.com/browserpilot/browserpilot/internal/task"
	"github.com/browserpilot/browserpilot/pkg/logger"
)

// Live end-to-end run against example.com: selector extraction first, then
// the LLM path. Needs a local Chrome and an OpenAI key.
func TestE2EExtraction(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping live e2e in -short mode")
	}
	if os.Getenv("OPENAI_API_KEY") == "" {
		t.Skip("OPENAI_API_KEY is not set")
	}

	lg := logger.New(logger.DEBUG, "e2e")
	timing := task.DefaultTiming()

	b, err := browser.NewChromedp(true, timing, lg)
	if err != nil {
		t.Skipf("chrome not available: %v", err)
	}
	defer b.Close()

	client, err := llm.NewOpenAIClient("")
	if err != nil {
		t.Fatalf("llm client: %v", err)
	}

	state := task.NewStateManager()
	extractor := task.NewLLMExtractor(client, nil, lg)
	handler := task.NewActionHandler(state, b, extractor, timing, lg)
	executor := task.NewExecutor(state, handler, timing, lg)

	plan := &task.TaskPlan{
		TaskType: "e2e_extraction",
		Actions: []task.Action{
			{
				ID:         "nav",
				Type:       task.ActionNavigateTo,
				Parameters: task.Parameters{URL: "https://example.com"},
			},
			{
				ID:         "heading",
				Type:       task.ActionExtractData,
				Parameters: task.Parameters{Selector: "h1"},
			},
			{
				ID:         "purpose",
				Type:       task.ActionExtractDataLLM,
				Parameters: task.Parameters{Query: "What is this page used for?"},
			},
		},
		ErrorHandling: task.ErrorHandling{RetryStrategy: task.RetryLinear, MaxRetries: 1},
	}

	if err := executor.ExecuteTask(context.Background(), plan, nil); err != nil {
		t.Fatalf("plan failed: %v", err)
	}

	s := executor.GetState()
	if s.ActionStatuses["heading"] != task.StatusComplete {
		t.Errorf("heading extraction status = %s", s.ActionStatuses["heading"])
	}
	if s.Results["heading"] == "" {
		t.Error("expected a non-empty h1 result")
	}
	if s.ActionStatuses["purpose"] != task.StatusComplete {
		t.Errorf("llm extraction status = %s", s.ActionStatuses["purpose"])
	}
	t.Logf("heading: %s", s.Results["heading"])
	t.Logf("purpose: %s", s.Results["purpose"])
}
