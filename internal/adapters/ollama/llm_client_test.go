package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/llm-mail-triage/internal/core"
	"github.com/mikey/llm-mail-triage/internal/utils"
)

func TestParseVerdictPlainJSON(t *testing.T) {
	verdict, err := parseVerdict(`{"category":"spam","importance":0.0,"confidence":0.9,"reasoning":"lottery scam"}`)
	require.NoError(t, err)
	assert.Equal(t, "spam", verdict.Category)
	assert.Equal(t, 0.9, verdict.Confidence)
}

func TestParseVerdictWrappedInProse(t *testing.T) {
	text := "Sure! Here is my assessment:\n" +
		`{"category":"newsletter","importance":0.3,"confidence":0.8,"reasoning":"weekly digest"}` +
		"\nLet me know if you need anything else."

	verdict, err := parseVerdict(text)
	require.NoError(t, err)
	assert.Equal(t, "newsletter", verdict.Category)
	assert.Equal(t, 0.3, verdict.Importance)
}

func TestParseVerdictErrors(t *testing.T) {
	_, err := parseVerdict("I cannot classify this email.")
	assert.ErrorContains(t, err, "no JSON object")

	_, err = parseVerdict(`{"importance":0.5,"confidence":0.5}`)
	assert.ErrorContains(t, err, "missing category")
}

func TestExtractJSONObject(t *testing.T) {
	got, ok := extractJSONObject(`prefix {"a":{"b":1}} suffix {"c":2}`)
	require.True(t, ok)
	assert.Equal(t, `{"a":{"b":1}}`, got)

	_, ok = extractJSONObject("no braces here")
	assert.False(t, ok)

	_, ok = extractJSONObject(`{"unterminated": true`)
	assert.False(t, ok)
}

func TestClassifyEmail(t *testing.T) {
	var gotReq generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(generateResponse{
			Response: `{"category":"wichtig","importance":0.9,"confidence":0.85,"reasoning":"deadline from manager"}`,
			Done:     true,
		})
	}))
	defer srv.Close()

	logger := zap.NewNop()
	client := NewClient(srv.URL, "llama3", 5*time.Second,
		core.DefaultCategories(), utils.NewTextProcessor(logger), 4096, logger)

	assert.Equal(t, "ollama:llama3", client.Name())

	email := &core.Email{
		Sender:  "boss@corp.example",
		Subject: "Budget deadline Friday",
		Body:    "Please send the numbers by Friday.",
	}
	verdict, err := client.ClassifyEmail(context.Background(), email, nil)
	require.NoError(t, err)
	assert.Equal(t, "wichtig", verdict.Category)
	assert.Equal(t, 0.85, verdict.Confidence)

	assert.Equal(t, "llama3", gotReq.Model)
	assert.False(t, gotReq.Stream)
	assert.Equal(t, "json", gotReq.Format)
	assert.Contains(t, gotReq.Prompt, "boss@corp.example")
	assert.Contains(t, gotReq.Prompt, "Budget deadline Friday")
	assert.Contains(t, gotReq.Prompt, string(core.CategoryWichtig))
}

func TestClassifyEmailNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	logger := zap.NewNop()
	client := NewClient(srv.URL, "llama3", 5*time.Second,
		core.DefaultCategories(), utils.NewTextProcessor(logger), 4096, logger)

	_, err := client.ClassifyEmail(context.Background(), &core.Email{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestClassifyEmailTruncatesLongBody(t *testing.T) {
	var gotReq generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(generateResponse{
			Response: `{"category":"nice_to_know","importance":0.5,"confidence":0.5,"reasoning":"long fyi"}`,
		})
	}))
	defer srv.Close()

	logger := zap.NewNop()
	client := NewClient(srv.URL, "llama3", 5*time.Second,
		core.DefaultCategories(), utils.NewTextProcessor(logger), 64, logger)

	email := &core.Email{Sender: "a@b.example", Body: strings.Repeat("x", 500)}
	_, err := client.ClassifyEmail(context.Background(), email, nil)
	require.NoError(t, err)
	assert.Contains(t, gotReq.Prompt, "Content truncated")
	assert.NotContains(t, gotReq.Prompt, strings.Repeat("x", 100))
}
