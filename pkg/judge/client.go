package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrUnexpectedStatus is returned when the judge answers with a non-200 status.
	ErrUnexpectedStatus = errors.New("judge returned unexpected status")
	// ErrEmptyResponse is returned when the judge response array is empty.
	ErrEmptyResponse = errors.New("judge returned no results")
	// ErrMalformedResponse is returned when the judge response cannot be decoded.
	ErrMalformedResponse = errors.New("judge returned malformed response")
)

// HTTPConfig configures the HTTP judge client.
type HTTPConfig struct {
	Endpoint  string
	Timeout   time.Duration
	Transport http.RoundTripper
	Logger    zerolog.Logger
}

// HTTPClient talks to a go-judge compatible endpoint over HTTP.
type HTTPClient struct {
	endpoint string
	client   *http.Client
	tracer   trace.Tracer
	logger   zerolog.Logger
}

// NewHTTPClient constructs a judge client with an explicit request timeout.
func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	base := cfg.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	return &HTTPClient{
		endpoint: strings.TrimSpace(cfg.Endpoint),
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(base),
		},
		tracer: otel.Tracer("github.com/noah-isme/explab-api/pkg/judge"),
		logger: cfg.Logger.With().Str("component", "judge_client").Logger(),
	}
}

// Run posts the request and returns the first result of the response array.
func (c *HTTPClient) Run(ctx context.Context, req Request) (result Result, err error) {
	ctx, span := c.tracer.Start(ctx, "judge.http.run", trace.WithAttributes(
		attribute.String("judge.endpoint", c.endpoint),
		attribute.Int("judge.commands", len(req.Cmd)),
	))
	started := time.Now()
	defer func() {
		ObserveRun("http", started, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if c.endpoint == "" {
		return Result{}, errors.New("judge endpoint is not configured")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return Result{}, fmt.Errorf("encode judge request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build judge request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("call judge: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, fmt.Errorf("%w: %d %s", ErrUnexpectedStatus, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var results []Result
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(results) == 0 {
		return Result{}, ErrEmptyResponse
	}

	first := results[0]
	c.logger.Debug().
		Str("status", first.Status).
		Int("exit_status", first.ExitStatus).
		Dur("elapsed", time.Since(started)).
		Msg("judge run completed")

	return first, nil
}
