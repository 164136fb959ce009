// Package modelclient implements the Remote Model Client: one-shot
// request/response calls against the upstream language-model gateway, with
// retry, timeout, and a shared keep-alive connection pool.
package modelclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/hochfrequenz/llm-merge-orchestrator/internal/domain"
)

// Backoff policy for the retry wrapper: linear, not exponential. A slow
// upstream gateway call is expensive enough that exponential backoff would
// push a retry past the caller's own timeout budget.
const backoffUnit = 1 * time.Second

// maxIdleConnsPerHost bounds the shared connection pool so a burst of
// fan-out calls cannot exhaust ephemeral ports on the gateway host.
const maxIdleConnsPerHost = 32

// userAgent identifies this application to the upstream gateway.
const userAgent = "llm-merge-orchestrator/1.0"

// CallOptions carries the optional per-call sampling parameters.
type CallOptions struct {
	Temperature *float64
	MaxTokens   int
}

// CallResult is the successful outcome of a single model call.
type CallResult struct {
	Answer    string
	LatencyMs int64
}

// metricsObserver is the subset of metrics.Registry the client depends on,
// narrowed so tests can substitute a fake without importing Prometheus.
type metricsObserver interface {
	ObserveModelCall(modelID string, success bool, latency time.Duration)
}

type noopMetricsObserver struct{}

func (noopMetricsObserver) ObserveModelCall(string, bool, time.Duration) {}

// Client is a Remote Model Client bound to one upstream gateway.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client

	// Metrics defaults to a no-op observer; assign a *metrics.Registry to
	// record call latency and outcome counts.
	Metrics metricsObserver
}

// New creates a Client with a shared, bounded connection pool.
func New(baseURL, apiKey string) *Client {
	transport := &http.Transport{
		MaxIdleConnsPerHost: maxIdleConnsPerHost,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Transport: transport},
		Metrics: noopMetricsObserver{},
	}
}

type chatRequest struct {
	Model       string          `json:"model"`
	Messages    []chatMessage   `json:"messages"`
	Temperature *float64        `json:"temperature,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// CallModel issues one request/response call against the gateway. Each
// attempt uses the full timeout independently; the caller decides whether
// to retry.
func (c *Client) CallModel(ctx context.Context, modelID string, messages []domain.Message, timeout time.Duration, opts CallOptions) (*CallResult, error) {
	start := time.Now()

	reqBody := chatRequest{
		Model:       modelID,
		Messages:    toChatMessages(messages),
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("modelclient: encode request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("modelclient: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		if callCtx.Err() != nil {
			return nil, ErrTimeout
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, ErrTimeout
		}
		return nil, &NetworkError{Reason: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Reason: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RemoteError{Status: resp.StatusCode, Body: string(body)}
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("modelclient: decode response: %w", err)
	}

	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return nil, ErrEmptyResponse
	}

	return &CallResult{
		Answer:    parsed.Choices[0].Message.Content,
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

// CallModelWithRetry wraps CallModel with a retry policy: never retry on
// ErrTimeout, retry other failures up to maxRetries times with a linear
// backoff of 1s * (attempt+1) before each retry.
func (c *Client) CallModelWithRetry(ctx context.Context, modelID string, messages []domain.Message, timeout time.Duration, opts CallOptions, maxRetries int) (*CallResult, error) {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		result, err := c.CallModel(ctx, modelID, messages, timeout, opts)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if errors.Is(err, ErrTimeout) {
			return nil, err
		}
		if attempt == maxRetries {
			break
		}

		delay := backoffUnit * time.Duration(attempt+1)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, lastErr
}

// Call runs CallModelWithRetry and captures the outcome as a
// domain.ModelCallResult instead of propagating the error, matching the
// orchestrator's per-model error-capture policy.
func (c *Client) Call(ctx context.Context, modelID string, messages []domain.Message, timeout time.Duration, opts CallOptions, maxRetries int) domain.ModelCallResult {
	start := time.Now()
	result, err := c.CallModelWithRetry(ctx, modelID, messages, timeout, opts, maxRetries)
	if err != nil {
		latency := time.Since(start)
		c.metrics().ObserveModelCall(modelID, false, latency)
		return domain.ModelCallResult{
			ModelID:   modelID,
			Success:   false,
			Error:     err.Error(),
			LatencyMs: latency.Milliseconds(),
		}
	}
	c.metrics().ObserveModelCall(modelID, true, time.Since(start))
	return domain.ModelCallResult{
		ModelID:   modelID,
		Answer:    result.Answer,
		Success:   true,
		LatencyMs: result.LatencyMs,
	}
}

// metrics returns the configured observer, falling back to a no-op for a
// Client constructed without New (e.g. a zero-value Client in a test).
func (c *Client) metrics() metricsObserver {
	if c.Metrics == nil {
		return noopMetricsObserver{}
	}
	return c.Metrics
}

func toChatMessages(messages []domain.Message) []chatMessage {
	out := make([]chatMessage, len(messages))
	for i, m := range messages {
		out[i] = chatMessage{Role: string(m.Role), Content: m.Content}
	}
	return out
}
