package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/mikey/llm-mail-triage/internal/core"
	"github.com/mikey/llm-mail-triage/internal/utils"
)

const promptFormat = `You are an email triage assistant. Decide how important the following email is for its recipient and assign a category.

Valid categories: %s

%sRespond with ONLY a JSON object in this exact format:
{
  "category": "one of the valid categories",
  "importance": 0.0 to 1.0,
  "confidence": 0.0 to 1.0,
  "reasoning": "brief explanation"
}

Email to analyze:
From: %s
Subject: %s
Body: %s`

// Client wraps the Google Gemini API as a triage provider.
type Client struct {
	client        *genai.Client
	model         *genai.GenerativeModel
	modelName     string
	categories    core.CategorySet
	textProcessor *utils.TextProcessor
	maxBodySize   int
	logger        *zap.Logger
}

// NewClient creates a new Gemini client.
func NewClient(
	ctx context.Context,
	apiKey string,
	modelName string,
	maxTokens int32,
	temperature float32,
	categories core.CategorySet,
	textProcessor *utils.TextProcessor,
	maxBodySize int,
	logger *zap.Logger,
) (*Client, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetMaxOutputTokens(maxTokens)
	model.SetTemperature(temperature)
	model.ResponseMIMEType = "application/json"

	return &Client{
		client:        client,
		model:         model,
		modelName:     modelName,
		categories:    categories,
		textProcessor: textProcessor,
		maxBodySize:   maxBodySize,
		logger:        logger,
	}, nil
}

// Name implements core.LLMProvider.
func (c *Client) Name() string {
	return "gemini:" + c.modelName
}

// Close releases the underlying API client.
func (c *Client) Close() error {
	return c.client.Close()
}

// ClassifyEmail implements core.LLMProvider.
func (c *Client) ClassifyEmail(ctx context.Context, email *core.Email, prior *core.PriorSignals) (*core.LLMVerdict, error) {
	body := c.textProcessor.SanitizeUTF8(email.Body)
	body = c.textProcessor.TruncateText(body, c.maxBodySize)

	prompt := fmt.Sprintf(promptFormat,
		strings.Join(c.categories.Names(), ", "),
		prior.PromptBlock(),
		email.Sender,
		email.Subject,
		body,
	)

	resp, err := c.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("gemini returned no candidates")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if sb.Len() == 0 {
		return nil, fmt.Errorf("gemini response contained no text parts")
	}

	verdict, err := parseVerdict(sb.String())
	if err != nil {
		c.logger.Warn("Failed to parse gemini verdict",
			zap.String("model", c.modelName),
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
