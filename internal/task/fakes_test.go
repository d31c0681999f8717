package task

import (
	"context"
	"fmt"
	"time"

	"github.com/browserpilot/browserpilot/internal/llm"
)

type fakeBrowser struct {
	navigateFn func(url string) (*PageContext, error)
	searchFn   func(query string) error
	extractFn  func(selector string) ([]ExtractedItem, error)

	navCalls     []string
	searchCalls  []string
	extractCalls []string
}

func (b *fakeBrowser) Navigate(_ context.Context, url string) (*PageContext, error) {
	b.navCalls = append(b.navCalls, url)
	if b.navigateFn != nil {
		return b.navigateFn(url)
	}
	return &PageContext{URL: url, Title: "stub", Content: "stub content"}, nil
}

func (b *fakeBrowser) OpenSearch(_ context.Context, query string) error {
	b.searchCalls = append(b.searchCalls, query)
	if b.searchFn != nil {
		return b.searchFn(query)
	}
	return nil
}

func (b *fakeBrowser) ExtractElements(_ context.Context, selector string) ([]ExtractedItem, error) {
	b.extractCalls = append(b.extractCalls, selector)
	if b.extractFn != nil {
		return b.extractFn(selector)
	}
	return nil, nil
}

type fakeLLM struct {
	response string
	err      error

	prompts []string
	modes   []llm.Mode
}

func (f *fakeLLM) GenerateCompletion(_ context.Context, messages []llm.Message, _ string, mode llm.Mode) (string, error) {
	if len(messages) != 1 {
		return "", fmt.Errorf("expected a single message, got %d", len(messages))
	}
	f.prompts = append(f.prompts, messages[0].Content)
	f.modes = append(f.modes, mode)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func testTiming() Timing {
	return Timing{
		NavigationTimeout: 100 * time.Millisecond,
		SettleDelay:       0,
		ActionDelay:       time.Millisecond,
		RetryBaseDelay:    2 * time.Millisecond,
	}
}
