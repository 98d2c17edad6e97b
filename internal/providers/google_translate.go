package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/api/option"
	translate "google.golang.org/api/translate/v2"

	"agriagent/apps/backend/internal/chat"
)

// GoogleTranslator implements chat.TranslationBackend on Cloud Translation v2.
type GoogleTranslator struct {
	service *translate.Service
}

func NewGoogleTranslator(ctx context.Context, apiKey string, opts ...option.ClientOption) (*GoogleTranslator, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("google translate: %w", chat.ErrProviderNotConfigured)
	}
	service, err := translate.NewService(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create translate service: %w", err)
	}
	return &GoogleTranslator{service: service}, nil
}

// DetectLanguage returns the most confident detection for text.
func (g *GoogleTranslator) DetectLanguage(ctx context.Context, text string) (string, error) {
	resp, err := g.service.Detections.List([]string{text}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("detect language: %w", err)
	}

	best := ""
	bestConfidence := -1.0
	for _, group := range resp.Detections {
		for _, item := range group {
			if item == nil || strings.TrimSpace(item.Language) == "" {
				continue
			}
			if item.Confidence > bestConfidence {
				best = item.Language
				bestConfidence = item.Confidence
			}
		}
	}
	if best == "" {
		return "", errors.New("detect language: empty detection result")
	}
	return best, nil
}

// TranslateText translates text into target. An empty source lets the API
// auto-detect.
func (g *GoogleTranslator) TranslateText(ctx context.Context, text, target, source string) (string, error) {
	call := g.service.Translations.List([]string{text}, target).Format("text")
	if source != "" {
		call = call.Source(source)
	}
	resp, err := call.Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("translate text: %w", err)
	}
	if len(resp.Translations) == 0 || resp.Translations[0] == nil {
		return "", errors.New("translate text: empty translation result")
	}
	return resp.Translations[0].TranslatedText, nil
}
