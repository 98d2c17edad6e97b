package chat

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

var languageNames = map[string]string{
	"en": "English",
	"hi": "Hindi",
	"bn": "Bengali",
	"ta": "Tamil",
	"te": "Telugu",
	"mr": "Marathi",
	"gu": "Gujarati",
	"kn": "Kannada",
	"ml": "Malayalam",
	"pa": "Punjabi",
	"or": "Odia",
	"ur": "Urdu",
	"es": "Spanish",
	"fr": "French",
}

func languageLabel(code string) string {
	normalized := NormalizeLanguage(code)
	if name, ok := languageNames[normalized]; ok {
		return fmt.Sprintf("%s (%s)", name, normalized)
	}
	if normalized == "" {
		return "English (en)"
	}
	return normalized
}

// FormatWeather renders a snapshot for model prompts.
func FormatWeather(w WeatherSnapshot) string {
	if w.HasError() {
		return w.Error
	}
	if w.Temperature == nil && w.Humidity == nil && w.WindSpeed == nil && w.Description == "" {
		return "No weather data available"
	}
	return fmt.Sprintf(
		"%s, Temperature: %s°C, Humidity: %s%%, Wind Speed: %s m/s",
		w.Description,
		formatReading(w.Temperature),
		formatReading(w.Humidity),
		formatReading(w.WindSpeed),
	)
}

func formatReading(value *float64) string {
	if value == nil {
		return "n/a"
	}
	return strconv.FormatFloat(*value, 'f', -1, 64)
}

func writeContextBlock(b *strings.Builder, ec EnrichedContext) {
	b.WriteString("Context:\n")
	b.WriteString("- Crop: " + ec.CropName + "\n")
	b.WriteString("- Location: " + ec.LocationName + "\n")
	b.WriteString("- Weather: " + FormatWeather(ec.Weather) + "\n")
}

func buildPrimarySystemPrompt(ec EnrichedContext) string {
	var b strings.Builder
	b.WriteString("You are an agricultural assistant helping farmers with practical, local advice.\n")
	writeContextBlock(&b, ec)
	b.WriteString("- Previous messages: " + strconv.Itoa(len(ec.PriorTurns())) + " messages\n")
	return b.String()
}

func buildSynthesisPrompt(query, advice string, ec EnrichedContext, language string) string {
	var b strings.Builder
	b.WriteString("You are an agricultural expert assistant. Another model gave the advice below for a farmer's question.\n")
	b.WriteString("Analyze it and produce a better, well-structured answer tailored to the crop, location and weather.\n")
	b.WriteString("Do not restate the advice verbatim; summarize and improve on it.\n\n")
	b.WriteString("User's Question: " + strings.TrimSpace(query) + "\n\n")
	writeContextBlock(&b, ec)
	b.WriteString("\nAdvisor's Advice:\n")
	b.WriteString(strings.TrimSpace(advice))
	b.WriteString("\n\nRespond in " + languageLabel(language) + ".\n")
	b.WriteString("Return ONLY a JSON object in exactly this format, with no other text:\n")
	b.WriteString("{\n  \"description\": \"<short, clear answer>\",\n  \"recommendations\": [\"Recommendation 1\", \"Recommendation 2\"]\n}\n")
	return b.String()
}

// TruncateForLog trims value to at most limit runes for log lines and error
// details.
func TruncateForLog(value string, limit int) string {
	trimmed := strings.TrimSpace(value)
	if limit <= 0 || utf8.RuneCountInString(trimmed) <= limit {
		return trimmed
	}
	runes := []rune(trimmed)
	return string(runes[:limit]) + "...(truncated)"
}
