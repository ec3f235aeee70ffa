package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{APIKey: "sk-test", BaseURL: srv.URL}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(body))
}

func TestNewClient_RequiresKey(t *testing.T) {
	if _, err := NewClient(Config{}, zap.NewNop()); err == nil {
		t.Fatal("expected error without API key")
	}
}

func TestSummarizeThread(t *testing.T) {
	var got chatRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("authorization = %q", auth)
		}
		json.NewDecoder(r.Body).Decode(&got)
		writeJSON(w, http.StatusOK, `{
			"choices": [{"message": {"role": "assistant", "content": "  ## Context\n- printer broken  "}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`)
	})

	summary, err := c.SummarizeThread(context.Background(), []ThreadMessage{
		{Author: "ana", Content: "the printer is broken"},
		{Author: "bob", Content: "  "},
		{Author: "bob", Content: "on it"},
	})
	if err != nil {
		t.Fatalf("SummarizeThread: %v", err)
	}

	if summary != "## Context\n- printer broken" {
		t.Errorf("summary = %q", summary)
	}
	if got.Model != "gpt-4o-mini" {
		t.Errorf("model = %s", got.Model)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" {
		t.Fatalf("messages = %+v", got.Messages)
	}
	if got.Messages[1].Content != "ana: the printer is broken\nbob: on it" {
		t.Errorf("transcript = %q", got.Messages[1].Content)
	}
}

func TestSummarizeThread_EmptyThread(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for an empty thread")
	})

	if _, err := c.SummarizeThread(context.Background(), []ThreadMessage{{Author: "a"}}); !errors.Is(err, ErrNoSummary) {
		t.Errorf("expected ErrNoSummary, got %v", err)
	}
}

func TestSummarizeThread_APIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, `{"error": {"message": "context too long", "type": "invalid_request_error"}}`)
	})

	_, err := c.SummarizeThread(context.Background(), []ThreadMessage{{Author: "a", Content: "hi"}})
	if err == nil || !strings.Contains(err.Error(), "context too long") {
		t.Errorf("expected upstream message, got %v", err)
	}
}

func TestSummarizeThread_NoChoices(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"choices": []}`)
	})

	_, err := c.SummarizeThread(context.Background(), []ThreadMessage{{Author: "a", Content: "hi"}})
	if !errors.Is(err, ErrNoSummary) {
		t.Errorf("expected ErrNoSummary, got %v", err)
	}
}

func TestTranscript_KeepsMostRecent(t *testing.T) {
	long := strings.Repeat("x", 100)
	var msgs []ThreadMessage
	for i := 0; i < 200; i++ {
		msgs = append(msgs, ThreadMessage{Author: "u", Content: long})
	}
	msgs = append(msgs, ThreadMessage{Author: "last", Content: "final word"})

	out := Transcript(msgs)
	if len(out) > maxTranscript {
		t.Errorf("transcript length %d exceeds %d", len(out), maxTranscript)
	}
	if !strings.HasSuffix(out, "last: final word") {
		t.Error("most recent message must be kept")
	}
	if !strings.HasPrefix(out, "u: ") {
		t.Errorf("transcript should start on a line boundary: %q", out[:10])
	}
}
