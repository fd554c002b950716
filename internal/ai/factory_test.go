package ai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kiranshivaraju/aianalysis/internal/ai"
	"github.com/kiranshivaraju/aianalysis/internal/config"
	"github.com/kiranshivaraju/aianalysis/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider_Known(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.AIConfig
	}{
		{"ollama", config.AIConfig{
			Provider: "ollama",
			Ollama:   config.OllamaConfig{BaseURL: "http://localhost:11434", Model: "llama3"},
		}},
		{"vllm", config.AIConfig{
			Provider: "vllm",
			VLLM:     config.VLLMConfig{BaseURL: "http://localhost:8000", Model: "mistral-7b"},
		}},
		{"openai", config.AIConfig{
			Provider: "openai",
			OpenAI:   config.OpenAIConfig{BaseURL: "https://api.openai.com", APIKey: "sk-test", Model: "gpt-4o-mini"},
		}},
		{"anthropic", config.AIConfig{
			Provider:  "anthropic",
			Anthropic: config.AnthropicConfig{APIKey: "sk-ant-test", Model: "claude-sonnet-4-5-20250929"},
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.cfg.InferenceTimeout = 30 * time.Second
			p, err := ai.NewProvider(tc.cfg)
			require.NoError(t, err)
			assert.Equal(t, tc.name, p.Name())
			assert.IsType(t, &ai.TimedGenerator{}, p, "every provider is bounded by the inference timeout")
		})
	}
}

func TestNewProvider_OllamaSpeaksChatCompletions(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		var body struct {
			Model string `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotModel = body.Model
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  sign errors  "}}]}`))
	}))
	defer srv.Close()

	p, err := ai.NewProvider(config.AIConfig{
		Provider:         "ollama",
		InferenceTimeout: 5 * time.Second,
		Ollama:           config.OllamaConfig{BaseURL: srv.URL, Model: "llama3"},
	})
	require.NoError(t, err)

	out, err := p.Evaluate(context.Background(), models.GenerationRequest{
		Question:      models.Question{Prompt: "What is -3 * -4?"},
		StudentAnswer: "-12",
	})
	require.NoError(t, err)
	assert.Equal(t, "sign errors", out)
	assert.Equal(t, "llama3", gotModel)
}

func TestNewProvider_Unknown(t *testing.T) {
	_, err := ai.NewProvider(config.AIConfig{Provider: "unknown-provider"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown AI provider")
	assert.Contains(t, err.Error(), "unknown-provider")
}

func TestNewProvider_Empty(t *testing.T) {
	_, err := ai.NewProvider(config.AIConfig{Provider: ""})
	require.Error(t, err)
}
