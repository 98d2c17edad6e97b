package providers

import (
	"context"
	"log"
	"strings"

	"github.com/redis/go-redis/v9"

	"agriagent/apps/backend/internal/chat"
	"agriagent/apps/backend/internal/config"
)

// BuildPipeline assembles the chat pipeline from configuration. Providers
// without credentials are left out and their stage degrades at request time.
// rdb may be nil, in which case lookups are not cached.
func BuildPipeline(ctx context.Context, cfg config.Config, rdb *redis.Client) (*chat.Pipeline, error) {
	var translation chat.TranslationBackend
	if strings.TrimSpace(cfg.TranslateAPIKey) != "" {
		translator, err := NewGoogleTranslator(ctx, cfg.TranslateAPIKey)
		if err != nil {
			return nil, err
		}
		translation = translator
	} else {
		log.Printf("translation provider not configured; language detection falls back to %s", chat.DefaultLanguage)
	}

	var speech chat.SpeechSynthesizer
	if strings.TrimSpace(cfg.TTSAPIKey) != "" {
		synth, err := NewGoogleSpeech(ctx, cfg.TTSAPIKey)
		if err != nil {
			return nil, err
		}
		speech = synth
	} else {
		log.Printf("speech provider not configured; responses carry no audio")
	}

	var geocoder chat.Geocoder = NewNominatimGeocoder(cfg)
	var weather chat.WeatherProvider
	if strings.TrimSpace(cfg.WeatherAPIKey) != "" {
		weather = NewOpenWeatherClient(cfg)
	}
	if rdb != nil {
		geocoder = NewCachedGeocoder(geocoder, rdb, cfg.LookupCacheTTL())
		if weather != nil {
			weather = NewCachedWeather(weather, rdb, cfg.LookupCacheTTL())
		}
	}

	var primary, secondary chat.AIClient
	if cfg.UseMockModels {
		log.Printf("AI_USE_MOCK enabled; model calls are answered locally")
		primary = chat.MockAIClient{Model: cfg.DhenuModel}
		secondary = chat.MockAIClient{Model: cfg.GeminiModel}
	} else {
		primary = NewOpenAIChatClient(cfg)
		secondary = NewGeminiClient(cfg)
	}

	return chat.NewPipeline(
		chat.NewTranslator(translation, cfg.ProviderTimeout()),
		chat.NewEnricher(geocoder, weather, cfg.LookupTimeout()),
		chat.NewPrimaryAdvisor(primary, cfg.ModelTimeout()),
		chat.NewSynthesizer(secondary, cfg.ModelTimeout()),
		chat.NewSpeaker(speech, cfg.ProviderTimeout()).WithVoices(cfg.TTSVoices),
	), nil
}
