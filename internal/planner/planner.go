package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"github.com/browserpilot/browserpilot/internal/task"
)

// Client produces an executable TaskPlan from a natural-language task.
// The execution engine does not depend on this package; plans may just as
// well arrive as JSON from any other producer.
type Client interface {
	BuildPlan(ctx context.Context, taskText string) (*task.TaskPlan, error)
}

type OpenAIPlanner struct {
	client *openai.Client
	model  string
}

func NewOpenAIPlanner(model string) (*OpenAIPlanner, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is not set")
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIPlanner{client: openai.NewClient(apiKey), model: model}, nil
}

const plannerSystemPrompt = `
You are a task planner for a browser automation engine.

Decompose the user's request into a plan of browser actions.

SUPPORTED ACTION TYPES:
- "navigate_to": parameters {"url": "https://..."}
- "search":      parameters {"query": "..."}
- "wait":        parameters {"duration": seconds}
- "extract_data":     parameters {"selector": "css selector"}
- "extract_data_llm": parameters {"query": "what to extract"}

Return a JSON object of the form:
{
  "task_type": "short classification",
  "actions": [
    {
      "id": "a1",
      "type": "navigate_to",
      "parameters": {"url": "https://example.com"},
      "description": "open the site"
    }
  ],
  "error_handling": {
    "retry_strategy": "linear",
    "max_retries": 2
  },
  "explanation": "one sentence about the plan"
}

Rules:
- Action ids must be unique.
- Actions run strictly in order; put navigation before extraction.
- Prefer "extract_data_llm" when no reliable CSS selector is known.
- Keep plans short (2-6 actions).
`

func (p *OpenAIPlanner) BuildPlan(ctx context.Context, taskText string) (*task.TaskPlan, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: plannerSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: "User task:\n" + taskText},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0,
	})
	if err != nil {
		return nil, fmt.Errorf("OpenAI planner error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("planner returned no choices")
	}

	plan, err := ParsePlan([]byte(resp.Choices[0].Message.Content))
	if err != nil {
		return nil, fmt.Errorf("planner JSON parse error: %w | content: %s",
			err, resp.Choices[0].Message.Content)
	}
	return plan, nil
}

// ParsePlan decodes and normalizes a TaskPlan: missing or duplicate ids
// are regenerated, action types are lowercased and an unrecognized retry
// strategy falls back to none.
func ParsePlan(data []byte) (*task.TaskPlan, error) {
	var plan task.TaskPlan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, err
	}
	if len(plan.Actions) == 0 {
		return nil, fmt.Errorf("plan has no actions")
	}

	seen := make(map[string]bool, len(plan.Actions))
	for i := range plan.Actions {
		a := &plan.Actions[i]
		a.Type = task.ActionType(strings.ToLower(strings.TrimSpace(string(a.Type))))
		a.ID = strings.TrimSpace(a.ID)
		if a.ID == "" || seen[a.ID] {
			a.ID = uuid.NewString()
		}
		seen[a.ID] = true
	}

	switch plan.ErrorHandling.RetryStrategy {
	case task.RetryNone, task.RetryLinear, task.RetryExponential:
	default:
		plan.ErrorHandling.RetryStrategy = task.RetryNone
	}
	if plan.ErrorHandling.MaxRetries < 0 {
		plan.ErrorHandling.MaxRetries = 0
	}

	return &plan, nil
}
