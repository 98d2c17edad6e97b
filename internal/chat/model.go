package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"
)

const primaryApology = "I apologize, but I'm having trouble connecting to the agricultural advisory model."

type AIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type AIModelRequest struct {
	Model        string
	SystemPrompt string
	Conversation []ChatTurn
	UserPrompt   string
	Temperature  float64
	MaxTokens    int
	JSONOutput   bool
}

type AIModelResponse struct {
	Answer string
	Model  string
	Usage  AIUsage
}

type AIClient interface {
	Query(ctx context.Context, req AIModelRequest) (AIModelResponse, error)
}

// PrimaryAdvisor asks the first answering model for free-form advice.
type PrimaryAdvisor struct {
	client  AIClient
	timeout time.Duration
}

func NewPrimaryAdvisor(client AIClient, timeout time.Duration) *PrimaryAdvisor {
	return &PrimaryAdvisor{client: client, timeout: timeout}
}

// Advise never fails; any provider error yields the static apology.
func (p *PrimaryAdvisor) Advise(ctx context.Context, query string, ec EnrichedContext) Result[string] {
	if p == nil || p.client == nil {
		return Degraded(primaryApology, notConfigured("primary model"))
	}
	callCtx, cancel := withOptionalTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.client.Query(callCtx, AIModelRequest{
		SystemPrompt: buildPrimarySystemPrompt(ec),
		Conversation: ec.PriorTurns(),
		UserPrompt:   query,
		Temperature:  primaryTemperature,
		MaxTokens:    primaryMaxTokens,
	})
	if err != nil {
		log.Printf("primary model failed request_id=%s err=%v", RequestIDFrom(ctx), err)
		return Degraded(primaryApology, err)
	}
	answer := strings.TrimSpace(resp.Answer)
	if answer == "" {
		return Degraded(primaryApology, errors.New("primary model returned empty answer"))
	}
	return Ok(answer)
}

// Synthesizer restructures the primary advice into the StructuredAnswer JSON
// contract in the target language.
type Synthesizer struct {
	client  AIClient
	timeout time.Duration
}

func NewSynthesizer(client AIClient, timeout time.Duration) *Synthesizer {
	return &Synthesizer{client: client, timeout: timeout}
}

// Synthesize returns the model's raw text. On failure the primary advice is
// returned instead so the parser can still wrap it.
func (s *Synthesizer) Synthesize(ctx context.Context, query, advice string, ec EnrichedContext, language string) Result[string] {
	if s == nil || s.client == nil {
		return Degraded(advice, notConfigured("synthesis model"))
	}
	callCtx, cancel := withOptionalTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.client.Query(callCtx, AIModelRequest{
		UserPrompt:  buildSynthesisPrompt(query, advice, ec, language),
		Temperature: synthesisTemperature,
		MaxTokens:   synthesisMaxTokens,
		JSONOutput:  true,
	})
	if err != nil {
		log.Printf("synthesis model failed request_id=%s language=%s err=%v", RequestIDFrom(ctx), language, err)
		return Degraded(advice, err)
	}
	if strings.TrimSpace(resp.Answer) == "" {
		return Degraded(advice, errors.New("synthesis model returned empty answer"))
	}
	return Ok(resp.Answer)
}

// MockAIClient answers without any network call. JSON requests get a valid
// StructuredAnswer so the whole pipeline can run offline.
type MockAIClient struct {
	Model string
}

func (m MockAIClient) Query(_ context.Context, req AIModelRequest) (AIModelResponse, error) {
	question := strings.TrimSpace(req.UserPrompt)
	if question == "" {
		question = "No question provided."
	}
	lowered := strings.ToLower(question)

	answer := "Mock advice: " + question
	if strings.Contains(lowered, "pest") || strings.Contains(lowered, "insect") {
		answer = "Mock advice: inspect leaves every morning, remove affected plants and apply neem oil in the evening."
	}
	if req.JSONOutput {
		encoded, err := json.Marshal(StructuredAnswer{
			Description:     "Mock summary for the farmer's question.",
			Recommendations: []string{"Check soil moisture before irrigating.", "Scout the field twice a week."},
		})
		if err != nil {
			return AIModelResponse{}, err
		}
		answer = "```json\n" + string(encoded) + "\n```"
	}

	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = strings.TrimSpace(m.Model)
	}
	if model == "" {
		model = "mock-agri"
	}
	return AIModelResponse{
		Answer: answer,
		Model:  model,
		Usage: AIUsage{
			PromptTokens:     120,
			CompletionTokens: 80,
			TotalTokens:      200,
		},
	}, nil
}
