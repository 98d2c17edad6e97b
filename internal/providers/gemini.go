package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"

	"agriagent/apps/backend/internal/chat"
	"agriagent/apps/backend/internal/config"
)

// GeminiClient calls the generateContent REST endpoint. It serves as the
// synthesis model.
type GeminiClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

func NewGeminiClient(cfg config.Config) *GeminiClient {
	return &GeminiClient{
		apiKey:     strings.TrimSpace(cfg.GeminiAPIKey),
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.GeminiBaseURL), "/"),
		model:      strings.TrimSpace(cfg.GeminiModel),
		httpClient: newHTTPClient(cfg.ModelTimeout()),
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature      float64 `json:"temperature,omitempty"`
	MaxOutputTokens  int     `json:"maxOutputTokens,omitempty"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	Contents          []geminiContent        `json:"contents"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	ModelVersion string `json:"modelVersion"`
}

func (c *GeminiClient) Query(ctx context.Context, req chat.AIModelRequest) (chat.AIModelResponse, error) {
	if c.apiKey == "" {
		return chat.AIModelResponse{}, errors.New("GEMINI_API_KEY is not configured")
	}
	requestModel := strings.TrimSpace(req.Model)
	if requestModel == "" {
		requestModel = c.model
	}
	if requestModel == "" {
		return chat.AIModelResponse{}, errors.New("GEMINI_MODEL is not configured")
	}

	payload := geminiRequest{
		Contents: buildGeminiContents(req),
		GenerationConfig: geminiGenerationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		},
	}
	if len(payload.Contents) == 0 {
		return chat.AIModelResponse{}, errors.New("AI request input is empty")
	}
	if system := strings.TrimSpace(req.SystemPrompt); system != "" {
		payload.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: system}}}
	}
	if req.JSONOutput {
		payload.GenerationConfig.ResponseMimeType = "application/json"
	}
	bodyRaw, err := json.Marshal(payload)
	if err != nil {
		return chat.AIModelResponse{}, err
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, url.PathEscape(requestModel))
	responseBody, err := doJSON(ctx, c.httpClient, "gemini", modelRetries, func(ctx context.Context) (*http.Request, error) {
		request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyRaw))
		if err != nil {
			return nil, err
		}
		request.Header.Set("x-goog-api-key", c.apiKey)
		request.Header.Set("Content-Type", "application/json")
		return request, nil
	})
	if err != nil {
		return chat.AIModelResponse{}, err
	}

	var parsed geminiResponse
	if err := json.Unmarshal(responseBody, &parsed); err != nil {
		return chat.AIModelResponse{}, fmt.Errorf("decode gemini response: %w", err)
	}
	answer := ""
	if len(parsed.Candidates) > 0 {
		parts := make([]string, 0, len(parsed.Candidates[0].Content.Parts))
		for _, part := range parsed.Candidates[0].Content.Parts {
			if text := strings.TrimSpace(part.Text); text != "" {
				parts = append(parts, text)
			}
		}
		answer = strings.Join(parts, "\n")
	}
	if answer == "" {
		log.Printf("gemini response had no extractable answer: %s", chat.TruncateForLog(string(responseBody), 1200))
		return chat.AIModelResponse{}, errors.New("gemini response answer is empty")
	}

	modelName := strings.TrimSpace(parsed.ModelVersion)
	if modelName == "" {
		modelName = requestModel
	}
	return chat.AIModelResponse{
		Answer: answer,
		Model:  modelName,
		Usage: chat.AIUsage{
			PromptTokens:     parsed.UsageMetadata.PromptTokenCount,
			CompletionTokens: parsed.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      parsed.UsageMetadata.TotalTokenCount,
		},
	}, nil
}

func buildGeminiContents(req chat.AIModelRequest) []geminiContent {
	contents := make([]geminiContent, 0, len(req.Conversation)+1)
	for _, turn := range req.Conversation {
		role := strings.ToLower(strings.TrimSpace(turn.Role))
		switch role {
		case "assistant":
			role = "model"
		case "user":
		default:
			continue
		}
		text := strings.TrimSpace(turn.Content)
		if text == "" {
			continue
		}
		contents = append(contents, geminiContent{Role: role, Parts: []geminiPart{{Text: text}}})
	}
	if prompt := strings.TrimSpace(req.UserPrompt); prompt != "" {
		contents = append(contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: prompt}}})
	}
	return contents
}
