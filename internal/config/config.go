package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv           string
	AppName          string
	APIPrefix        string
	AppPort          string
	DatabaseURL      string
	RedisURL         string
	CORSAllowOrigins []string

	AuthRequired bool
	JWTSecret    string
	JWTAlgorithm string
	JWTAudience  string
	JWTIssuer    string

	UseMockModels bool
	DhenuAPIKey   string
	DhenuBaseURL  string
	DhenuModel    string
	GeminiAPIKey  string
	GeminiBaseURL string
	GeminiModel   string

	WeatherAPIKey      string
	WeatherBaseURL     string
	NominatimBaseURL   string
	NominatimUserAgent string

	TranslateAPIKey string
	TTSAPIKey       string
	// TTSVoices maps a language code to a Cloud TTS voice name.
	TTSVoices       map[string]string

	ModelTimeoutSeconds    int
	LookupTimeoutSeconds   int
	ProviderTimeoutSeconds int
	LookupCacheTTLSeconds  int
}

func Load() Config {
	_ = godotenv.Load(".env")

	googleKey := getEnv("GOOGLE_API_KEY", "")
	return Config{
		AppEnv:    getEnv("APP_ENV", "local"),
		AppName:   getEnv("APP_NAME", "AgriAgent API"),
		APIPrefix: getEnv("API_PREFIX", "/api"),
		AppPort:   getEnv("APP_PORT", "8000"),
		// Both stores are optional; empty disables the run log and lookup cache.
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),
		CORSAllowOrigins: getEnvCSV(
			"CORS_ALLOW_ORIGINS",
			[]string{"http://localhost:3000", "http://127.0.0.1:3000"},
		),
		AuthRequired:           getEnvBool("AUTH_REQUIRED", false),
		JWTSecret:              getEnv("JWT_SECRET", ""),
		JWTAlgorithm:           getEnv("JWT_ALGORITHM", "HS256"),
		JWTAudience:            getEnv("JWT_AUDIENCE", ""),
		JWTIssuer:              getEnv("JWT_ISSUER", ""),
		UseMockModels:          getEnvBool("AI_USE_MOCK", false),
		DhenuAPIKey:            getEnv("DHENU_API_KEY", ""),
		DhenuBaseURL:           getEnv("DHENU_BASE_URL", "https://api.dhenu.ai/v1"),
		DhenuModel:             getEnv("DHENU_MODEL", "dhenu2-in-8b-preview"),
		GeminiAPIKey:           getEnv("GEMINI_API_KEY", googleKey),
		GeminiBaseURL:          getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		GeminiModel:            getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		WeatherAPIKey:          getEnv("WEATHER_API_KEY", ""),
		WeatherBaseURL:         getEnv("WEATHER_BASE_URL", "https://api.openweathermap.org"),
		NominatimBaseURL:       getEnv("NOMINATIM_BASE_URL", "https://nominatim.openstreetmap.org"),
		NominatimUserAgent:     getEnv("NOMINATIM_USER_AGENT", "AgriAgent/1.0"),
		TranslateAPIKey:        getEnv("GOOGLE_TRANSLATE_API_KEY", googleKey),
		TTSAPIKey:              getEnv("GOOGLE_TTS_API_KEY", googleKey),
		TTSVoices:              getEnvPairs("GOOGLE_TTS_VOICES"),
		ModelTimeoutSeconds:    getEnvInt("MODEL_TIMEOUT_SECONDS", 30),
		LookupTimeoutSeconds:   getEnvInt("LOOKUP_TIMEOUT_SECONDS", 10),
		ProviderTimeoutSeconds: getEnvInt("PROVIDER_TIMEOUT_SECONDS", 15),
		LookupCacheTTLSeconds:  getEnvInt("LOOKUP_CACHE_TTL_SECONDS", 600),
	}
}

// Validate only rejects structurally broken settings. Missing provider keys
// are allowed: the matching pipeline stage degrades instead.
func (c Config) Validate() error {
	if strings.TrimSpace(c.APIPrefix) == "" || !strings.HasPrefix(c.APIPrefix, "/") {
		return errors.New("API_PREFIX must start with /")
	}
	if strings.TrimSpace(c.AppPort) == "" {
		return errors.New("APP_PORT is required")
	}
	secret := strings.TrimSpace(c.JWTSecret)
	if c.AuthRequired && secret == "" {
		return errors.New("JWT_SECRET is required when AUTH_REQUIRED is true")
	}
	if secret != "" {
		if secret == "change-me-in-production" {
			return errors.New("JWT_SECRET must not use insecure default value")
		}
		if len(secret) < 16 {
			return errors.New("JWT_SECRET is too short; use at least 16 characters")
		}
		if strings.TrimSpace(c.JWTAlgorithm) == "" {
			return errors.New("JWT_ALGORITHM is required")
		}
	}
	return nil
}

func (c Config) ModelTimeout() time.Duration {
	return secondsOr(c.ModelTimeoutSeconds, 30)
}

func (c Config) LookupTimeout() time.Duration {
	return secondsOr(c.LookupTimeoutSeconds, 10)
}

func (c Config) ProviderTimeout() time.Duration {
	return secondsOr(c.ProviderTimeoutSeconds, 15)
}

func (c Config) LookupCacheTTL() time.Duration {
	return secondsOr(c.LookupCacheTTLSeconds, 600)
}

func secondsOr(value, fallback int) time.Duration {
	if value <= 0 {
		value = fallback
	}
	return time.Duration(value) * time.Second
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvCSV(key string, fallback []string) []string {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, item := range parts {
		trimmed := strings.TrimSpace(item)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return fallback
	}
	return result
}

// getEnvPairs reads "key=value" items from a comma separated variable. Keys
// are lower-cased; malformed items are skipped.
func getEnvPairs(key string) map[string]string {
	pairs := map[string]string{}
	for _, item := range getEnvCSV(key, nil) {
		name, value, ok := strings.Cut(item, "=")
		name = strings.ToLower(strings.TrimSpace(name))
		value = strings.TrimSpace(value)
		if !ok || name == "" || value == "" {
			continue
		}
		pairs[name] = value
	}
	return pairs
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}
