package chat

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

var (
	leadingFenceRe  = regexp.MustCompile("^```[A-Za-z0-9_+-]*[ \t]*\r?\n?")
	trailingFenceRe = regexp.MustCompile("\r?\n?```$")
)

// ParseStructuredAnswer recovers a StructuredAnswer from model output. Invalid
// JSON is not an error for the caller: the unfenced text becomes the
// description.
func ParseStructuredAnswer(raw string) Result[StructuredAnswer] {
	cleaned := stripCodeFence(raw)

	answer, err := decodeStructuredAnswer(cleaned)
	if err != nil {
		start := strings.Index(cleaned, "{")
		end := strings.LastIndex(cleaned, "}")
		if start >= 0 && end > start {
			if embedded, embeddedErr := decodeStructuredAnswer(cleaned[start : end+1]); embeddedErr == nil {
				return Ok(embedded)
			}
		}
		return Degraded(fallbackAnswer(cleaned), err)
	}
	return Ok(answer)
}

func stripCodeFence(raw string) string {
	cleaned := strings.TrimSpace(raw)
	cleaned = leadingFenceRe.ReplaceAllString(cleaned, "")
	cleaned = trailingFenceRe.ReplaceAllString(cleaned, "")
	return strings.TrimSpace(cleaned)
}

func decodeStructuredAnswer(text string) (StructuredAnswer, error) {
	if text == "" {
		return StructuredAnswer{}, errors.New("structured answer is empty")
	}
	var answer StructuredAnswer
	if err := json.Unmarshal([]byte(text), &answer); err != nil {
		return StructuredAnswer{}, err
	}
	answer.Description = strings.TrimSpace(answer.Description)
	if answer.Description == "" {
		answer.Description = NoDescription
	}
	recommendations := make([]string, 0, len(answer.Recommendations))
	for _, item := range answer.Recommendations {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			recommendations = append(recommendations, trimmed)
		}
	}
	answer.Recommendations = recommendations
	return answer, nil
}

func fallbackAnswer(raw string) StructuredAnswer {
	description := strings.TrimSpace(raw)
	if description == "" {
		description = NoDescription
	}
	return StructuredAnswer{Description: description, Recommendations: []string{}}
}
