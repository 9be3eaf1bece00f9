package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

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

// Client talks to a local ollama instance over its HTTP API.
type Client struct {
	baseURL       string
	model         string
	httpClient    *http.Client
	categories    core.CategorySet
	textProcessor *utils.TextProcessor
	maxBodySize   int
	logger        *zap.Logger
}

// NewClient creates a new ollama client.
func NewClient(
	baseURL string,
	model string,
	timeout time.Duration,
	categories core.CategorySet,
	textProcessor *utils.TextProcessor,
	maxBodySize int,
	logger *zap.Logger,
) *Client {
	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		model:         model,
		httpClient:    &http.Client{Timeout: timeout},
		categories:    categories,
		textProcessor: textProcessor,
		maxBodySize:   maxBodySize,
		logger:        logger,
	}
}

// Name implements core.LLMProvider.
func (c *Client) Name() string {
	return "ollama:" + c.model
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
	Format string `json:"format,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
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

	reqBody, err := json.Marshal(generateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: false,
		Format: "json",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(payload))
	}

	var genResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return nil, fmt.Errorf("failed to decode ollama response: %w", err)
	}

	verdict, err := parseVerdict(genResp.Response)
	if err != nil {
		c.logger.Warn("Failed to parse ollama verdict",
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

// extractJSONObject pulls the first balanced {...} span out of text, for
// models that wrap their JSON in prose.
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
