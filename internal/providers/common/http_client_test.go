package common_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/patientsignal/signal-workflows/internal/providers/common"
)

type echoPayload struct {
	Model string `json:"model"`
}

func TestPostJSONSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST request, got %s", r.Method)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Missing Authorization header")
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Content-Type = %q", r.Header.Get("Content-Type"))
		}
		var in echoPayload
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			t.Fatalf("decode: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]string{"model": in.Model + "-echo"})
	}))
	defer server.Close()

	client := common.NewJSONClient("perplexity", 5*time.Second)
	var out echoPayload
	err := client.PostJSON(context.Background(), server.URL, map[string]string{"Authorization": "Bearer test-key"}, echoPayload{Model: "sonar"}, &out)
	if err != nil {
		t.Fatalf("PostJSON returned error: %v", err)
	}
	if out.Model != "sonar-echo" {
		t.Errorf("Model = %q, want sonar-echo", out.Model)
	}
}

func TestPostJSONStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": {"message": "slow down"}}`))
	}))
	defer server.Close()

	client := common.NewJSONClient("perplexity", 5*time.Second)
	var out echoPayload
	err := client.PostJSON(context.Background(), server.URL, nil, echoPayload{}, &out)

	var statusErr *common.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected *StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("StatusCode = %d", statusErr.StatusCode)
	}
	if statusErr.Message != "slow down" {
		t.Errorf("Message = %q", statusErr.Message)
	}
	if !common.IsRetryable(err) {
		t.Error("429 should be retryable")
	}
}

func TestPostJSONMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer server.Close()

	client := common.NewJSONClient("perplexity", 5*time.Second)
	var out echoPayload
	err := client.PostJSON(context.Background(), server.URL, nil, echoPayload{}, &out)
	if err == nil {
		t.Fatal("expected decode error")
	}
	if common.IsRetryable(err) {
		t.Error("malformed JSON should not be retried")
	}
}
