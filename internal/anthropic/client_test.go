package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCompleteSuccess(t *testing.T) {
	var gotReq apiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("x-api-key = %q", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") == "" {
			t.Error("anthropic-version header missing")
		}
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(map[string]any{
			"content":     []map[string]any{{"type": "text", "text": "hello"}},
			"stop_reason": "end_turn",
			"usage":       map[string]any{"input_tokens": 12, "output_tokens": 3},
		})
	}))
	defer server.Close()

	c := NewClient("test-key", "test-model")
	c.SetTestTransport(server.URL)

	comp, err := c.Complete(context.Background(), Request{
		System:          "be brief",
		Messages:        []Message{{Role: "user", Content: "hi"}},
		MaxOutputTokens: 64,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if comp.Content != "hello" {
		t.Errorf("content = %q", comp.Content)
	}
	if comp.FinishReason != FinishStop {
		t.Errorf("finish reason = %q", comp.FinishReason)
	}
	if comp.Usage.InputTokens != 12 || comp.Usage.OutputTokens != 3 {
		t.Errorf("usage = %+v", comp.Usage)
	}
	if gotReq.Model != "test-model" || gotReq.MaxTokens != 64 || gotReq.System != "be brief" {
		t.Errorf("request = %+v", gotReq)
	}
}

func TestCompleteAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"type": "rate_limit_error", "message": "slow down"},
		})
	}))
	defer server.Close()

	c := NewClient("test-key", "test-model")
	c.SetTestTransport(server.URL)

	_, err := c.Complete(context.Background(), Request{Messages: []Message{{Role: "user", Content: "hi"}}})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusTooManyRequests || apiErr.Type != "rate_limit_error" {
		t.Errorf("apiErr = %+v", apiErr)
	}
	if !apiErr.Transient() {
		t.Error("429 should be transient")
	}
}

func TestCompleteNonJSONErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream blew up"))
	}))
	defer server.Close()

	c := NewClient("test-key", "test-model")
	c.SetTestTransport(server.URL)

	_, err := c.Complete(context.Background(), Request{Messages: []Message{{Role: "user", Content: "hi"}}})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusBadGateway || apiErr.Message != "upstream blew up" {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestStopReasonMapping(t *testing.T) {
	cases := []struct {
		raw  string
		want FinishReason
	}{
		{"end_turn", FinishStop},
		{"stop_sequence", FinishStop},
		{"max_tokens", FinishLength},
		{"refusal", FinishContentFilter},
	}
	for _, tc := range cases {
		if got := mapStopReason(tc.raw); got != tc.want {
			t.Errorf("mapStopReason(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestAPIErrorTransient(t *testing.T) {
	cases := []struct {
		status int
		want   bool
	}{
		{400, false},
		{404, false},
		{429, true},
		{500, true},
		{529, true},
	}
	for _, tc := range cases {
		e := &APIError{Status: tc.status}
		if got := e.Transient(); got != tc.want {
			t.Errorf("status %d transient = %v, want %v", tc.status, got, tc.want)
		}
	}
}
