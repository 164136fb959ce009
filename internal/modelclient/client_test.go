package modelclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hochfrequenz/llm-merge-orchestrator/internal/domain"
)

func TestClient_CallModel_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing bearer auth header")
		}
		json.NewEncoder(w).Encode(chatResponse{
			Choices: []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
			}{
				{Message: struct {
					Content string `json:"content"`
				}{Content: "Paris"}},
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "test-key")
	result, err := c.CallModel(context.Background(), "openai/gpt-4o-mini", []domain.Message{
		{Role: domain.RoleUser, Content: "capital of France?"},
	}, 2*time.Second, CallOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if result.Answer != "Paris" {
		t.Errorf("Answer = %q, want Paris", result.Answer)
	}
}

func TestClient_CallModel_EmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(chatResponse{})
	}))
	defer srv.Close()

	c := New(srv.URL, "test-key")
	_, err := c.CallModel(context.Background(), "m", nil, 2*time.Second, CallOptions{})
	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("err = %v, want ErrEmptyResponse", err)
	}
}

func TestClient_CallModel_RemoteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("rate limited"))
	}))
	defer srv.Close()

	c := New(srv.URL, "test-key")
	_, err := c.CallModel(context.Background(), "m", nil, 2*time.Second, CallOptions{})

	var remoteErr *RemoteError
	if !errors.As(err, &remoteErr) {
		t.Fatalf("err = %v, want *RemoteError", err)
	}
	if remoteErr.Status != http.StatusTooManyRequests {
		t.Errorf("Status = %d, want 429", remoteErr.Status)
	}
}

func TestClient_CallModel_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		json.NewEncoder(w).Encode(chatResponse{})
	}))
	defer srv.Close()

	c := New(srv.URL, "test-key")
	_, err := c.CallModel(context.Background(), "m", nil, 10*time.Millisecond, CallOptions{})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
}

func TestClient_CallModelWithRetry_NoRetryOnTimeout(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	c := New(srv.URL, "test-key")
	_, err := c.CallModelWithRetry(context.Background(), "m", nil, 5*time.Millisecond, CallOptions{}, 3)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (no retry on timeout)", attempts)
	}
}

func TestClient_CallModelWithRetry_RetriesOnRemoteError(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(chatResponse{
			Choices: []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
			}{
				{Message: struct {
					Content string `json:"content"`
				}{Content: "ok"}},
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "test-key")
	start := time.Now()
	result, err := c.CallModelWithRetry(context.Background(), "m", nil, 2*time.Second, CallOptions{}, 3)
	if err != nil {
		t.Fatal(err)
	}
	if result.Answer != "ok" {
		t.Errorf("Answer = %q, want ok", result.Answer)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	// linear backoff: 1s + 2s between the three attempts.
	if time.Since(start) < 3*time.Second {
		t.Errorf("elapsed = %v, want >= 3s of linear backoff", time.Since(start))
	}
}

func TestClient_CallModelWithRetry_ExhaustsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, "test-key")
	_, err := c.CallModelWithRetry(context.Background(), "m", nil, 2*time.Second, CallOptions{}, 1)

	var remoteErr *RemoteError
	if !errors.As(err, &remoteErr) {
		t.Fatalf("err = %v, want *RemoteError after exhausting retries", err)
	}
}

func TestClient_Call_CapturesErrorWithoutPropagating(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(srv.URL, "test-key")
	result := c.Call(context.Background(), "m", nil, 2*time.Second, CallOptions{}, 0)
	if result.Success {
		t.Fatal("expected Success=false")
	}
	if result.Error == "" {
		t.Error("expected non-empty Error field")
	}
	if result.ModelID != "m" {
		t.Errorf("ModelID = %q, want m", result.ModelID)
	}
}

type spyMetricsObserver struct {
	modelID string
	success bool
	calls   int
}

func (s *spyMetricsObserver) ObserveModelCall(modelID string, success bool, _ time.Duration) {
	s.modelID = modelID
	s.success = success
	s.calls++
}

func TestClient_Call_ReportsMetricsOnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(chatResponse{
			Choices: []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
			}{
				{Message: struct {
					Content string `json:"content"`
				}{Content: "ok"}},
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "test-key")
	spy := &spyMetricsObserver{}
	c.Metrics = spy

	c.Call(context.Background(), "m1", nil, 2*time.Second, CallOptions{}, 0)

	if spy.calls != 1 || spy.modelID != "m1" || !spy.success {
		t.Errorf("spy = %+v, want one successful observation for m1", spy)
	}
}

func TestClient_Call_ReportsMetricsOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(srv.URL, "test-key")
	spy := &spyMetricsObserver{}
	c.Metrics = spy

	c.Call(context.Background(), "m1", nil, 2*time.Second, CallOptions{}, 0)

	if spy.calls != 1 || spy.success {
		t.Errorf("spy = %+v, want one failed observation", spy)
	}
}
