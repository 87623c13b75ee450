package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	reviewLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "explab",
		Subsystem: "ai",
		Name:      "review_duration_seconds",
		Help:      "Duration of AI review requests.",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 8),
	}, []string{"model"})

	reviewOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "explab",
		Subsystem: "ai",
		Name:      "reviews_total",
		Help:      "AI reviews by model and outcome.",
	}, []string{"model", "outcome"})
)

var errNoChoices = errors.New("openai returned no choices")

// OpenAIConfig configures the OpenAI-backed reviewer. BaseURL may point at
// any OpenAI compatible endpoint.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
	Logger      zerolog.Logger
}

// OpenAIReviewer implements Reviewer with a JSON-mode chat completion.
type OpenAIReviewer struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIReviewer builds a reviewer; an API key is mandatory.
func NewOpenAIReviewer(cfg OpenAIConfig) (*OpenAIReviewer, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 512
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &OpenAIReviewer{
		client: openai.NewClientWithConfig(clientConfig),
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/explab-api/pkg/ai"),
		logger: cfg.Logger.With().Str("component", "openai_reviewer").Str("model", cfg.Model).Logger(),
	}, nil
}

// Review asks the model for a verdict on input.
func (r *OpenAIReviewer) Review(ctx context.Context, input ReviewInput) (result ReviewResult, err error) {
	ctx, span := r.tracer.Start(ctx, "openai.review", trace.WithAttributes(
		attribute.String("ai.model", r.cfg.Model),
		attribute.String("task.type", input.TaskType),
		attribute.Int("task.files", len(input.Files)),
	))
	start := time.Now()
	defer func() {
		reviewLatency.WithLabelValues(r.cfg.Model).Observe(time.Since(start).Seconds())
		outcome := "ok"
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		reviewOutcomes.WithLabelValues(r.cfg.Model, outcome).Inc()
		span.End()
	}()

	prompt, err := renderPrompt(input)
	if err != nil {
		return ReviewResult{}, err
	}

	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       r.cfg.Model,
		MaxTokens:   r.cfg.MaxTokens,
		Temperature: r.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		return ReviewResult{}, fmt.Errorf("openai review: %w", err)
	}
	if len(resp.Choices) == 0 {
		return ReviewResult{}, errNoChoices
	}

	result, err = parseReviewResponse(resp.Choices[0].Message.Content)
	if err != nil {
		return ReviewResult{}, err
	}

	r.logger.Debug().Float64("score", result.Score).Str("verdict", result.Verdict).Int("total_tokens", resp.Usage.TotalTokens).Msg("review completed")
	return result, nil
}
