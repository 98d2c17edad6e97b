package providers

import (
	"context"
	"testing"

	"agriagent/apps/backend/internal/chat"
	"agriagent/apps/backend/internal/config"
)

func TestBuildPipelineRunsOfflineWithMockModels(t *testing.T) {
	cfg := config.Config{
		UseMockModels:    true,
		NominatimBaseURL: "http://127.0.0.1:1",
	}
	pipeline, err := BuildPipeline(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("build pipeline: %v", err)
	}

	resp, trace, err := pipeline.Process(context.Background(), chat.ChatRequest{Message: "How do I control pests on cotton?"})
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if resp.Response != "Mock summary for the farmer's question." || len(resp.Recommendations) != 2 {
		t.Fatalf("unexpected mock response %+v", resp)
	}
	if resp.Sources.OriginalLanguage != chat.DefaultLanguage || resp.AudioResponse != "" {
		t.Fatalf("expected english without audio, got language=%q audio=%q", resp.Sources.OriginalLanguage, resp.AudioResponse)
	}
	if trace.Last() != chat.StageAssembled {
		t.Fatalf("expected assembled trace, got %v", trace.Stages)
	}
}
