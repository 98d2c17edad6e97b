package chat

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"
)

// TranslationBackend is a raw detection/translation capability. Backends
// report failures; Translator turns them into fallbacks.
type TranslationBackend interface {
	DetectLanguage(ctx context.Context, text string) (string, error)
	TranslateText(ctx context.Context, text, target, source string) (string, error)
}

type Translator struct {
	backend TranslationBackend
	timeout time.Duration
}

func NewTranslator(backend TranslationBackend, timeout time.Duration) *Translator {
	return &Translator{backend: backend, timeout: timeout}
}

// Detect never fails: blank input, missing backend and provider errors all
// resolve to DefaultLanguage.
func (t *Translator) Detect(ctx context.Context, text string) Result[string] {
	if strings.TrimSpace(text) == "" {
		return Ok(DefaultLanguage)
	}
	if t == nil || t.backend == nil {
		return Degraded(DefaultLanguage, notConfigured("translation"))
	}

	callCtx, cancel := withOptionalTimeout(ctx, t.timeout)
	defer cancel()

	detected, err := t.backend.DetectLanguage(callCtx, text)
	if err != nil {
		log.Printf("language detection failed request_id=%s err=%v", RequestIDFrom(ctx), err)
		return Degraded(DefaultLanguage, err)
	}
	code := NormalizeLanguage(detected)
	if code == "" || code == "und" {
		return Degraded(DefaultLanguage, errors.New("language detection returned no usable code"))
	}
	return Ok(code)
}

// Translate is a pass-through when the languages match, the text is blank or
// the backend fails. An empty source means auto-detect.
func (t *Translator) Translate(ctx context.Context, text, target, source string) Result[string] {
	targetCode := NormalizeLanguage(target)
	sourceCode := NormalizeLanguage(source)
	if strings.TrimSpace(text) == "" || targetCode == "" || targetCode == sourceCode {
		return Ok(text)
	}
	if t == nil || t.backend == nil {
		return Degraded(text, notConfigured("translation"))
	}

	callCtx, cancel := withOptionalTimeout(ctx, t.timeout)
	defer cancel()

	translated, err := t.backend.TranslateText(callCtx, text, targetCode, sourceCode)
	if err != nil {
		log.Printf("translation failed request_id=%s source=%s target=%s err=%v", RequestIDFrom(ctx), sourceCode, targetCode, err)
		return Degraded(text, err)
	}
	if strings.TrimSpace(translated) == "" {
		return Degraded(text, errors.New("translation returned empty text"))
	}
	return Ok(translated)
}

// TranslateAnswer translates the description and each recommendation. Any
// item that fails keeps its original text.
func (t *Translator) TranslateAnswer(ctx context.Context, answer StructuredAnswer, target, source string) Result[StructuredAnswer] {
	var firstCause error
	keep := func(r Result[string]) string {
		if r.Cause != nil && firstCause == nil {
			firstCause = r.Cause
		}
		return r.Value
	}

	out := StructuredAnswer{
		Description:     keep(t.Translate(ctx, answer.Description, target, source)),
		Recommendations: make([]string, 0, len(answer.Recommendations)),
	}
	for _, item := range answer.Recommendations {
		out.Recommendations = append(out.Recommendations, keep(t.Translate(ctx, item, target, source)))
	}
	if firstCause != nil {
		return Degraded(out, firstCause)
	}
	return Ok(out)
}

// NormalizeLanguage lower-cases a code and keeps the primary subtag, so
// "hi-IN" and "HI" both become "hi". "auto" normalizes to "".
func NormalizeLanguage(code string) string {
	normalized := strings.ToLower(strings.TrimSpace(code))
	if idx := strings.IndexAny(normalized, "-_"); idx > 0 {
		normalized = normalized[:idx]
	}
	if normalized == "auto" {
		return ""
	}
	return normalized
}

func withOptionalTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
