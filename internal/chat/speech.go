package chat

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
)

type SynthesizeOpts struct {
	// Language is the ISO-639-1 code used to pick a voice.
	Language string
	// Voice overrides language-based voice selection.
	Voice string
}

type SynthesizeResult struct {
	Audio       []byte
	ContentType string
}

// SpeechSynthesizer converts text to an encoded audio payload (MP3 for the
// Google backend).
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text string, opts SynthesizeOpts) (*SynthesizeResult, error)
}

// SpeechContentType is the only audio format the response contract carries.
const SpeechContentType = "audio/mpeg"

type Speaker struct {
	synth   SpeechSynthesizer
	timeout time.Duration
	voices  map[string]string
}

func NewSpeaker(synth SpeechSynthesizer, timeout time.Duration) *Speaker {
	return &Speaker{synth: synth, timeout: timeout}
}

// WithVoices sets per-language voice overrides, keyed by language code.
func (s *Speaker) WithVoices(voices map[string]string) *Speaker {
	s.voices = voices
	return s
}

// Speak returns base64 audio, or "" when the text is blank or synthesis fails.
func (s *Speaker) Speak(ctx context.Context, text, language string) Result[string] {
	if strings.TrimSpace(text) == "" {
		return Ok("")
	}
	if s == nil || s.synth == nil {
		return Degraded("", notConfigured("speech"))
	}
	callCtx, cancel := withOptionalTimeout(ctx, s.timeout)
	defer cancel()

	code := NormalizeLanguage(language)
	result, err := s.synth.Synthesize(callCtx, text, SynthesizeOpts{Language: code, Voice: s.voices[code]})
	if err != nil {
		log.Printf("speech synthesis failed request_id=%s language=%s err=%v", RequestIDFrom(ctx), language, err)
		return Degraded("", err)
	}
	if result == nil || len(result.Audio) == 0 {
		log.Printf("speech synthesis returned no audio request_id=%s language=%s", RequestIDFrom(ctx), language)
		return Degraded("", errors.New("speech synthesis returned no audio"))
	}
	if result.ContentType != "" && result.ContentType != SpeechContentType {
		log.Printf("speech synthesis returned unsupported audio request_id=%s content_type=%s", RequestIDFrom(ctx), result.ContentType)
		return Degraded("", fmt.Errorf("speech synthesis returned %s, want %s", result.ContentType, SpeechContentType))
	}
	return Ok(base64.StdEncoding.EncodeToString(result.Audio))
}
