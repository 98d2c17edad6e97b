package providers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/api/option"
	texttospeech "google.golang.org/api/texttospeech/v1"

	"agriagent/apps/backend/internal/chat"
)

var speechLocales = map[string]string{
	"en": "en-IN",
	"hi": "hi-IN",
	"bn": "bn-IN",
	"gu": "gu-IN",
	"kn": "kn-IN",
	"ml": "ml-IN",
	"mr": "mr-IN",
	"pa": "pa-IN",
	"ta": "ta-IN",
	"te": "te-IN",
	"ur": "ur-IN",
}

// GoogleSpeech implements chat.SpeechSynthesizer on Cloud Text-to-Speech and
// always returns MP3.
type GoogleSpeech struct {
	service *texttospeech.Service
}

func NewGoogleSpeech(ctx context.Context, apiKey string, opts ...option.ClientOption) (*GoogleSpeech, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("google text-to-speech: %w", chat.ErrProviderNotConfigured)
	}
	service, err := texttospeech.NewService(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create text-to-speech service: %w", err)
	}
	return &GoogleSpeech{service: service}, nil
}

func (g *GoogleSpeech) Synthesize(ctx context.Context, text string, opts chat.SynthesizeOpts) (*chat.SynthesizeResult, error) {
	voice := &texttospeech.VoiceSelectionParams{
		LanguageCode: speechLocale(opts.Language),
		Name:         strings.TrimSpace(opts.Voice),
	}
	resp, err := g.service.Text.Synthesize(&texttospeech.SynthesizeSpeechRequest{
		Input:       &texttospeech.SynthesisInput{Text: text},
		Voice:       voice,
		AudioConfig: &texttospeech.AudioConfig{AudioEncoding: "MP3"},
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("synthesize speech language=%s: %w", voice.LanguageCode, err)
	}
	if resp.AudioContent == "" {
		return nil, errors.New("synthesize speech: empty audio content")
	}
	audio, err := base64.StdEncoding.DecodeString(resp.AudioContent)
	if err != nil {
		return nil, fmt.Errorf("decode synthesized audio: %w", err)
	}
	return &chat.SynthesizeResult{Audio: audio, ContentType: chat.SpeechContentType}, nil
}

func speechLocale(language string) string {
	code := chat.NormalizeLanguage(language)
	if code == "" {
		code = chat.DefaultLanguage
	}
	if locale, ok := speechLocales[code]; ok {
		return locale
	}
	return code
}
