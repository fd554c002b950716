package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kiranshivaraju/aianalysis/pkg/models"
	sdk "github.com/openai/openai-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chatBody is the part of the request body the tests inspect.
type chatBody struct {
	Model       string   `json:"model"`
	Temperature *float64 `json:"temperature"`
	MaxTokens   *int     `json:"max_tokens"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func sampleRequest() models.GenerationRequest {
	return models.GenerationRequest{
		Question:      models.Question{Prompt: "Simplify 2(x + 3)", CorrectAnswer: "2x + 6"},
		StudentAnswer: "2x + 3",
		Params:        models.GenerationParams{Temperature: 0.3, MaxTokens: 256},
	}
}

func completion(content string) string {
	return `{"id":"c1","object":"chat.completion","created":1,"model":"m",` +
		`"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"` + content + `"}}]}`
}

func TestEvaluate_SendsChatCompletion(t *testing.T) {
	var got chatBody
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(completion("Forgot to distribute.")))
	}))
	defer ts.Close()

	p := NewProvider("openai", ts.URL+"/", "sk-test", "gpt-4o-mini")
	out, err := p.Evaluate(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "Forgot to distribute.", out)

	assert.Equal(t, "gpt-4o-mini", got.Model)
	require.NotNil(t, got.Temperature)
	assert.InDelta(t, 0.3, *got.Temperature, 1e-9)
	require.NotNil(t, got.MaxTokens)
	assert.Equal(t, 256, *got.MaxTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Contains(t, got.Messages[1].Content, "Simplify 2(x + 3)")
	assert.Contains(t, got.Messages[1].Content, "2x + 3")
}

func TestEvaluate_SendsZeroTemperature(t *testing.T) {
	var got chatBody
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(completion("ok")))
	}))
	defer ts.Close()

	req := sampleRequest()
	req.Params.Temperature = 0
	_, err := NewProvider("vllm", ts.URL, "", "m").Evaluate(context.Background(), req)
	require.NoError(t, err)

	require.NotNil(t, got.Temperature, "zero is sent, not dropped")
	assert.Zero(t, *got.Temperature)
}

func TestGuide_SelfHostedWithoutKey(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotContains(t, r.Header.Get("Authorization"), "sk-test")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(completion("Multiply both terms by 2.")))
	}))
	defer ts.Close()

	p := NewProvider("ollama", ts.URL, "", "llama3")
	out, err := p.Guide(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "Multiply both terms by 2.", out)
	assert.Equal(t, "ollama", p.Name())
}

func TestComplete_ErrorStatusIsNotRetried(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit"}}`))
	}))
	defer ts.Close()

	_, err := NewProvider("vllm", ts.URL, "", "m").Evaluate(context.Background(), sampleRequest())
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "vllm chat completion"))

	var apiErr *sdk.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, 1, calls, "retries belong to the job pipeline")
}

func TestComplete_NoChoices(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"m","choices":[]}`))
	}))
	defer ts.Close()

	out, err := NewProvider("vllm", ts.URL, "", "m").Evaluate(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestComplete_MalformedJSON(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":`))
	}))
	defer ts.Close()

	_, err := NewProvider("vllm", ts.URL, "", "m").Evaluate(context.Background(), sampleRequest())
	require.Error(t, err)
}
