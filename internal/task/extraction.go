package task

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/browserpilot/browserpilot/internal/llm"
	"github.com/browserpilot/browserpilot/pkg/logger"
)

const defaultExtractionGoal = "Extract the main information from this page"

// extractionResult is the strict JSON shape the model is forced to emit.
type extractionResult struct {
	Answer     string   `json:"answer"`
	Confidence *float64 `json:"confidence"`
	Error      string   `json:"error"`
}

// LLMExtractor answers natural-language extraction goals from page text.
// It serves both the extract_data_llm action and the automatic fallback
// when a selector matches nothing.
type LLMExtractor struct {
	client      llm.Client
	buildPrompt PromptBuilder
	goal        string
	pageContext *PageContext
	log         *logger.Logger
}

func NewLLMExtractor(client llm.Client, buildPrompt PromptBuilder, log *logger.Logger) *LLMExtractor {
	if buildPrompt == nil {
		buildPrompt = DefaultPromptBuilder
	}
	if log == nil {
		log = logger.Discard()
	}
	return &LLMExtractor{client: client, buildPrompt: buildPrompt, log: log}
}

// SetGoal configures a handler-level default extraction goal, used when an
// action carries neither a query nor a description.
func (e *LLMExtractor) SetGoal(goal string) { e.goal = goal }

// SetPageContext replaces the handler's held page context, used as the
// last content fallback.
func (e *LLMExtractor) SetPageContext(pc *PageContext) { e.pageContext = pc }

// Extract resolves the goal and content for the action and asks the model
// for a structured answer. The result is a synthetic single-element list
// tagged with method=llm.
func (e *LLMExtractor) Extract(ctx context.Context, action Action, pc *PageContext) ([]ExtractedItem, error) {
	goal := e.resolveGoal(action)
	content := e.resolveContent(action, pc)

	if strings.TrimSpace(content) == "" {
		if action.Parameters.ExtractionSchema != nil {
			// Schema-only requests tolerate empty pages.
			return []ExtractedItem{}, nil
		}
		return nil, fmt.Errorf("no content available for LLM extraction")
	}

	// The completion interface takes only message and context strings, so
	// page identity travels inside the goal text.
	if pc != nil {
		var hints []string
		if pc.URL != "" {
			hints = append(hints, "page URL: "+pc.URL)
		}
		if pc.Title != "" {
			hints = append(hints, "page title: "+pc.Title)
		}
		if len(hints) > 0 {
			goal = goal + " (" + strings.Join(hints, ", ") + ")"
		}
	}

	prompt := e.buildPrompt(goal, content)
	e.log.Debug("LLM extraction goal: %s", goal)

	raw, err := e.client.GenerateCompletion(ctx, []llm.Message{
		{Role: llm.RoleUser, Content: prompt},
	}, "", llm.ModeInteractive)
	if err != nil {
		return nil, fmt.Errorf("LLM extraction request failed: %w", err)
	}

	var result extractionResult
	cleaned := strings.TrimSpace(strings.Trim(strings.TrimSpace(raw), "`"))
	if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
		return nil, fmt.Errorf("failed to parse LLM extraction result: %w", err)
	}

	if result.Error != "" {
		return nil, fmt.Errorf("LLM extraction failed: %s", result.Error)
	}

	confidence := ""
	if result.Confidence != nil {
		confidence = fmt.Sprintf("%g", *result.Confidence)
	}

	return []ExtractedItem{{
		Text: result.Answer,
		HTML: result.Answer,
		Attributes: map[string]string{
			"confidence": confidence,
			"method":     "llm",
			"goal":       goal,
		},
	}}, nil
}

// resolveGoal: explicit query, then extractionGoal, then the action
// description, then the handler default, then a generic goal.
func (e *LLMExtractor) resolveGoal(action Action) string {
	if g := strings.TrimSpace(action.Parameters.Query); g != "" {
		return g
	}
	if g := strings.TrimSpace(action.Parameters.ExtractionGoal); g != "" {
		return g
	}
	if g := strings.TrimSpace(action.Description); g != "" {
		return g
	}
	if e.goal != "" {
		return e.goal
	}
	return defaultExtractionGoal
}

// resolveContent: explicit pageContent, then the supplied context, then
// the handler's held context.
func (e *LLMExtractor) resolveContent(action Action, pc *PageContext) string {
	if action.Parameters.PageContent != "" {
		return action.Parameters.PageContent
	}
	if pc != nil && pc.Content != "" {
		return pc.Content
	}
	if e.pageContext != nil {
		return e.pageContext.Content
	}
	return ""
}
