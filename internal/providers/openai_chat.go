package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"agriagent/apps/backend/internal/chat"
	"agriagent/apps/backend/internal/config"
)

// OpenAIChatClient talks to any OpenAI-compatible chat/completions endpoint.
// The primary agricultural advisory model is served this way.
type OpenAIChatClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

func NewOpenAIChatClient(cfg config.Config) *OpenAIChatClient {
	return &OpenAIChatClient{
		apiKey:     strings.TrimSpace(cfg.DhenuAPIKey),
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.DhenuBaseURL), "/"),
		model:      strings.TrimSpace(cfg.DhenuModel),
		httpClient: newHTTPClient(cfg.ModelTimeout()),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage chat.AIUsage `json:"usage"`
}

func (c *OpenAIChatClient) Query(ctx context.Context, req chat.AIModelRequest) (chat.AIModelResponse, error) {
	if c.apiKey == "" {
		return chat.AIModelResponse{}, errors.New("DHENU_API_KEY is not configured")
	}
	if c.baseURL == "" {
		return chat.AIModelResponse{}, errors.New("DHENU_BASE_URL is not configured")
	}
	requestModel := strings.TrimSpace(req.Model)
	if requestModel == "" {
		requestModel = c.model
	}
	if requestModel == "" {
		return chat.AIModelResponse{}, errors.New("DHENU_MODEL is not configured")
	}

	messages := buildChatMessages(req)
	if len(messages) == 0 {
		return chat.AIModelResponse{}, errors.New("AI request input is empty")
	}
	payload := map[string]any{
		"model":    requestModel,
		"messages": messages,
	}
	if req.Temperature > 0 {
		payload["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		payload["max_tokens"] = req.MaxTokens
	}
	if req.JSONOutput {
		payload["response_format"] = map[string]string{"type": "json_object"}
	}
	bodyRaw, err := json.Marshal(payload)
	if err != nil {
		return chat.AIModelResponse{}, err
	}

	responseBody, err := doJSON(ctx, c.httpClient, "chat completions", modelRetries, func(ctx context.Context) (*http.Request, error) {
		request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(bodyRaw))
		if err != nil {
			return nil, err
		}
		request.Header.Set("Authorization", "Bearer "+c.apiKey)
		request.Header.Set("Content-Type", "application/json")
		return request, nil
	})
	if err != nil {
		return chat.AIModelResponse{}, err
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(responseBody, &parsed); err != nil {
		return chat.AIModelResponse{}, fmt.Errorf("decode chat completion: %w", err)
	}
	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		log.Printf("chat completion had no extractable answer: %s", chat.TruncateForLog(string(responseBody), 1200))
		return chat.AIModelResponse{}, errors.New("chat completion answer is empty")
	}

	modelName := strings.TrimSpace(parsed.Model)
	if modelName == "" {
		modelName = requestModel
	}
	return chat.AIModelResponse{
		Answer: strings.TrimSpace(parsed.Choices[0].Message.Content),
		Model:  modelName,
		Usage:  parsed.Usage,
	}, nil
}

func buildChatMessages(req chat.AIModelRequest) []chatMessage {
	messages := make([]chatMessage, 0, len(req.Conversation)+2)
	if system := strings.TrimSpace(req.SystemPrompt); system != "" {
		messages = append(messages, chatMessage{Role: "system", Content: system})
	}
	for _, turn := range req.Conversation {
		role := strings.ToLower(strings.TrimSpace(turn.Role))
		if role != "user" && role != "assistant" {
			continue
		}
		content := strings.TrimSpace(turn.Content)
		if content == "" {
			continue
		}
		messages = append(messages, chatMessage{Role: role, Content: content})
	}
	if prompt := strings.TrimSpace(req.UserPrompt); prompt != "" {
		messages = append(messages, chatMessage{Role: "user", Content: prompt})
	}
	return messages
}
