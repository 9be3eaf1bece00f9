package bedrock

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"go.uber.org/zap"

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

// Client wraps AWS Bedrock (Anthropic message API) as a triage provider.
type Client struct {
	client        *bedrockruntime.Client
	modelID       string
	maxTokens     int
	temperature   float64
	topP          float64
	categories    core.CategorySet
	textProcessor *utils.TextProcessor
	maxBodySize   int
	logger        *zap.Logger
}

// NewClient creates a new Bedrock client.
func NewClient(
	client *bedrockruntime.Client,
	modelID string,
	maxTokens int,
	temperature float64,
	topP float64,
	categories core.CategorySet,
	textProcessor *utils.TextProcessor,
	maxBodySize int,
	logger *zap.Logger,
) *Client {
	return &Client{
		client:        client,
		modelID:       modelID,
		maxTokens:     maxTokens,
		temperature:   temperature,
		topP:          topP,
		categories:    categories,
		textProcessor: textProcessor,
		maxBodySize:   maxBodySize,
		logger:        logger,
	}
}

// Name implements core.LLMProvider.
func (c *Client) Name() string {
	return "bedrock:" + c.modelID
}

type anthropicRequest struct {
	AnthropicVersion string             `json:"anthropic_version"`
	MaxTokens        int                `json:"max_tokens"`
	Temperature      float64            `json:"temperature"`
	TopP             float64            `json:"top_p"`
	Messages         []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
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

	reqBody, err := json.Marshal(anthropicRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        c.maxTokens,
		Temperature:      c.temperature,
		TopP:             c.topP,
		Messages: []anthropicMessage{
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(c.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        reqBody,
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock request failed: %w", err)
	}

	var modelResp anthropicResponse
	if err := json.Unmarshal(resp.Body, &modelResp); err != nil {
		return nil, fmt.Errorf("failed to decode bedrock response: %w", err)
	}

	var text string
	for _, block := range modelResp.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return nil, fmt.Errorf("bedrock response contained no text block")
	}

	verdict, err := parseVerdict(text)
	if err != nil {
		c.logger.Warn("Failed to parse bedrock verdict",
			zap.String("model_id", c.modelID),
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
