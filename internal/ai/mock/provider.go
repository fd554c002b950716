package mock

import (
	"context"

	"github.com/kiranshivaraju/aianalysis/internal/ai"
	"github.com/kiranshivaraju/aianalysis/pkg/models"
)

// MockProvider satisfies models.Generator for testing and for AI_MOCK_MODE.
type MockProvider struct {
	Name_        string
	EvaluateFunc func(ctx context.Context, req models.GenerationRequest) (string, error)
	GuideFunc    func(ctx context.Context, req models.GenerationRequest) (string, error)
}

func (m *MockProvider) Name() string { return m.Name_ }

func (m *MockProvider) Evaluate(ctx context.Context, req models.GenerationRequest) (string, error) {
	if m.EvaluateFunc != nil {
		return m.EvaluateFunc(ctx, req)
	}
	return "", nil
}

func (m *MockProvider) Guide(ctx context.Context, req models.GenerationRequest) (string, error) {
	if m.GuideFunc != nil {
		return m.GuideFunc(ctx, req)
	}
	return "", nil
}

// Fixed outputs returned by NewMockProvider.
const (
	MockWeakness = "Mock weakness analysis: the answer suggests a gap in the underlying concept."
	MockGuidance = "Mock solution guidance: restate the problem, apply the rule step by step, then check the result."
)

// NewMockProvider returns a MockProvider with fixed, deterministic responses.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock",
		EvaluateFunc: func(_ context.Context, _ models.GenerationRequest) (string, error) {
			return MockWeakness, nil
		},
		GuideFunc: func(_ context.Context, _ models.GenerationRequest) (string, error) {
			return MockGuidance, nil
		},
	}
}

// NewFailingProvider returns a MockProvider that always returns the given error.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_: "mock-failing",
		EvaluateFunc: func(_ context.Context, _ models.GenerationRequest) (string, error) {
			return "", err
		},
		GuideFunc: func(_ context.Context, _ models.GenerationRequest) (string, error) {
			return "", err
		},
	}
}

// NewTimeoutProvider returns a MockProvider that blocks until context is cancelled.
func NewTimeoutProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock-timeout",
		EvaluateFunc: func(ctx context.Context, _ models.GenerationRequest) (string, error) {
			<-ctx.Done()
			return "", ai.ErrInferenceTimeout
		},
		GuideFunc: func(ctx context.Context, _ models.GenerationRequest) (string, error) {
			<-ctx.Done()
			return "", ai.ErrInferenceTimeout
		},
	}
}

// Compile-time check that MockProvider implements Generator.
var _ models.Generator = (*MockProvider)(nil)
