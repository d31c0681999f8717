package llm

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const defaultModel = openai.GPT4oMini

// safeContentLimit keeps a single message from blowing the model context.
const safeContentLimit = 60000

type OpenAIClient struct {
	client *openai.Client
	model  string
}

func NewOpenAIClient(model string) (*OpenAIClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is not set")
	}
	if model == "" {
		model = defaultModel
	}
	return &OpenAIClient{client: openai.NewClient(apiKey), model: model}, nil
}

func (c *OpenAIClient) GenerateCompletion(ctx context.Context, messages []Message, contextStr string, mode Mode) (string, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if contextStr != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: contextStr,
		})
	}
	for _, m := range messages {
		content := m.Content
		if len(content) > safeContentLimit {
			content = content[:safeContentLimit] + "\n...[TRUNCATED]"
		}
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: content,
		})
	}

	temperature := float32(0.7)
	if mode == ModeInteractive {
		// Directed tasks want deterministic answers.
		temperature = 0
	}

	var resp openai.ChatCompletionResponse
	var err error

	for attempt := 0; attempt < 5; attempt++ {
		resp, err = c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       c.model,
			Messages:    msgs,
			Temperature: temperature,
		})
		if err == nil {
			break
		}
		if strings.Contains(err.Error(), "429") {
			time.Sleep(time.Duration(3*(1<<attempt)) * time.Second)
			continue
		}
		return "", fmt.Errorf("OpenAI error: %w", err)
	}
	if err != nil {
		return "", fmt.Errorf("OpenAI error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response choices")
	}
	return resp.Choices[0].Message.Content, nil
}
