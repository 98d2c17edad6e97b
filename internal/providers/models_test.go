package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"agriagent/apps/backend/internal/chat"
)

func TestOpenAIChatClientMakesSingleAttempt(t *testing.T) {
	t.Parallel()

	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":{"message":"temporary upstream issue"}}`))
	}))
	defer server.Close()

	client := &OpenAIChatClient{
		apiKey:     "test",
		baseURL:    server.URL,
		model:      "dhenu2-in-8b-preview",
		httpClient: &http.Client{Timeout: 2 * time.Second},
	}
	_, err := client.Query(context.Background(), chat.AIModelRequest{UserPrompt: "hello"})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502 status error, got %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Fatalf("model calls must not retry, got %d attempts", got)
	}
}

func TestOpenAIChatClientDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"bad key"}`))
	}))
	defer server.Close()

	client := &OpenAIChatClient{apiKey: "test", baseURL: server.URL, model: "m", httpClient: server.Client()}
	_, err := client.Query(context.Background(), chat.AIModelRequest{UserPrompt: "hello"})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 status error, got %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Fatalf("expected a single attempt, got %d", got)
	}
}

func TestOpenAIChatClientSendsConversationAndSampling(t *testing.T) {
	t.Parallel()

	var payload map[string]any
	var authHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		authHeader = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("failed to decode request payload: %v", err)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer server.Close()

	client := &OpenAIChatClient{apiKey: "secret", baseURL: server.URL, model: "dhenu", httpClient: server.Client()}
	resp, err := client.Query(context.Background(), chat.AIModelRequest{
		SystemPrompt: "You are an agricultural assistant.",
		Conversation: []chat.ChatTurn{
			{Role: "user", Content: "q1"},
			{Role: "system", Content: "ignored"},
			{Role: "assistant", Content: "a1"},
		},
		UserPrompt:  "q2",
		Temperature: 0.7,
		MaxTokens:   500,
		JSONOutput:  true,
	})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if resp.Model != "dhenu" {
		t.Fatalf("expected configured model fallback, got %q", resp.Model)
	}
	if authHeader != "Bearer secret" {
		t.Fatalf("unexpected auth header %q", authHeader)
	}
	messages, _ := payload["messages"].([]any)
	if len(messages) != 4 {
		t.Fatalf("expected system + 2 turns + user, got %d", len(messages))
	}
	last, _ := messages[3].(map[string]any)
	if last["role"] != "user" || last["content"] != "q2" {
		t.Fatalf("unexpected last message %v", last)
	}
	if payload["temperature"] != 0.7 || payload["max_tokens"] != float64(500) {
		t.Fatalf("unexpected sampling %v %v", payload["temperature"], payload["max_tokens"])
	}
	if format, _ := payload["response_format"].(map[string]any); format["type"] != "json_object" {
		t.Fatalf("expected json response format, got %v", payload["response_format"])
	}
}

func TestOpenAIChatClientRequiresKey(t *testing.T) {
	client := &OpenAIChatClient{baseURL: "http://127.0.0.1:1", model: "m", httpClient: http.DefaultClient}
	if _, err := client.Query(context.Background(), chat.AIModelRequest{UserPrompt: "x"}); err == nil || !strings.Contains(err.Error(), "DHENU_API_KEY") {
		t.Fatalf("expected missing key error, got %v", err)
	}
}

func TestGeminiClientBuildsGenerateContentRequest(t *testing.T) {
	t.Parallel()

	var payload geminiRequest
	var path, apiKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		path = r.URL.Path
		apiKey = r.Header.Get("x-goog-api-key")
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("failed to decode request payload: %v", err)
		}
		_, _ = w.Write([]byte(`{
			"candidates":[{"content":{"role":"model","parts":[{"text":"{\"description\":\"d\","},{"text":"\"recommendations\":[]}"}]}}],
			"usageMetadata":{"promptTokenCount":12,"candidatesTokenCount":6,"totalTokenCount":18}
		}`))
	}))
	defer server.Close()

	client := &GeminiClient{apiKey: "g-key", baseURL: server.URL, model: "gemini-1.5-flash", httpClient: server.Client()}
	resp, err := client.Query(context.Background(), chat.AIModelRequest{
		SystemPrompt: "system",
		Conversation: []chat.ChatTurn{{Role: "assistant", Content: "earlier"}},
		UserPrompt:   "structure this",
		Temperature:  0.4,
		MaxTokens:    1024,
		JSONOutput:   true,
	})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if path != "/models/gemini-1.5-flash:generateContent" || apiKey != "g-key" {
		t.Fatalf("unexpected path=%q key=%q", path, apiKey)
	}
	if payload.GenerationConfig.ResponseMimeType != "application/json" || payload.GenerationConfig.MaxOutputTokens != 1024 {
		t.Fatalf("unexpected generation config %+v", payload.GenerationConfig)
	}
	if payload.SystemInstruction == nil || payload.SystemInstruction.Parts[0].Text != "system" {
		t.Fatalf("expected system instruction, got %+v", payload.SystemInstruction)
	}
	if len(payload.Contents) != 2 || payload.Contents[0].Role != "model" || payload.Contents[1].Role != "user" {
		t.Fatalf("unexpected contents %+v", payload.Contents)
	}
	if resp.Usage.TotalTokens != 18 || resp.Model != "gemini-1.5-flash" {
		t.Fatalf("unexpected response metadata %+v", resp)
	}
	if parsed := chat.ParseStructuredAnswer(resp.Answer); parsed.Value.Description != "d" {
		t.Fatalf("expected joined parts to form JSON, got %q", resp.Answer)
	}
}

func TestGeminiClientEmptyCandidates(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer server.Close()

	client := &GeminiClient{apiKey: "k", baseURL: server.URL, model: "m", httpClient: server.Client()}
	if _, err := client.Query(context.Background(), chat.AIModelRequest{UserPrompt: "x"}); err == nil {
		t.Fatalf("expected empty answer error")
	}
}
