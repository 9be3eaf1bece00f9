package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/mikey/llm-mail-triage/internal/core"
	"github.com/mikey/llm-mail-triage/internal/utils"
)

const systemPrompt = `You are an email triage assistant. You rate how important an email is for its recipient and assign it a category. Respond with ONLY a JSON object of this exact shape:
{
  "category": "one of the valid categories",
  "importance": 0.0 to 1.0,
  "confidence": 0.0 to 1.0,
  "reasoning": "brief explanation"
}`

const userPromptFormat = `Valid categories: %s

%sEmail to analyze:
From: %s
Subject: %s
Body: %s`

// Client wraps the OpenAI chat completion API as a triage provider.
type Client struct {
	client        *openai.Client
	model         string
	maxTokens     int
	temperature   float32
	categories    core.CategorySet
	textProcessor *utils.TextProcessor
	maxBodySize   int
	logger        *zap.Logger
}

// NewClient creates a new OpenAI client.
func NewClient(
	apiKey string,
	model string,
	maxTokens int,
	temperature float32,
	categories core.CategorySet,
	textProcessor *utils.TextProcessor,
	maxBodySize int,
	logger *zap.Logger,
) *Client {
	return &Client{
		client:        openai.NewClient(apiKey),
		model:         model,
		maxTokens:     maxTokens,
		temperature:   temperature,
		categories:    categories,
		textProcessor: textProcessor,
		maxBodySize:   maxBodySize,
		logger:        logger,
	}
}

// Name implements core.LLMProvider.
func (c *Client) Name() string {
	return "openai:" + c.model
}

// ClassifyEmail implements core.LLMProvider.
func (c *Client) ClassifyEmail(ctx context.Context, email *core.Email, prior *core.PriorSignals) (*core.LLMVerdict, error) {
	body := c.textProcessor.SanitizeUTF8(email.Body)
	body = c.textProcessor.TruncateText(body, c.maxBodySize)

	userPrompt := fmt.Sprintf(userPromptFormat,
		strings.Join(c.categories.Names(), ", "),
		prior.PromptBlock(),
		email.Sender,
		email.Subject,
		body,
	)

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices")
	}

	content := resp.Choices[0].Message.Content
	verdict, err := parseVerdict(content)
	if err != nil {
		c.logger.Warn("Failed to parse openai verdict",
			zap.String("model", c.model),
			zap.Error(err))
		return nil, err
	}
	return verdict, nil
}

func parseVerdict(text string) (*core.LLMVerdict, error) {
	var verdict core.LLMVerdict
	if err := json.Unmarshal([]byte(text), &verdict); err != nil {
		extracted, ok := extractJSONObject(text)
		if !ok {
			return nil, fmt.Errorf("no JSON object in model response: %w", err)
		}
		if err := json.Unmarshal([]byte(extracted), &verdict); err != nil {
			return nil, fmt.Errorf("failed to parse model response: %w", err)
		}
	}
	if verdict.Category == "" {
		return nil, fmt.Errorf("model response missing category")
	}
	return &verdict, nil
}

func extractJSONObject(text string) (string, bool) {
	start := strings.Index(text, "{")
	if start < 0 {
		return "", false
	}
	depth := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
