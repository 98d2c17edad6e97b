package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

type Stage string

const (
	StageReceived         Stage = "RECEIVED"
	StageLanguageDetected Stage = "LANGUAGE_DETECTED"
	StageContextEnriched  Stage = "CONTEXT_ENRICHED"
	StageTranslatedToEN   Stage = "TRANSLATED_TO_EN"
	StagePrimaryAnswered  Stage = "PRIMARY_ANSWERED"
	StageSynthesized      Stage = "SYNTHESIZED"
	StageParsed           Stage = "PARSED"
	StageTranslatedBack   Stage = "TRANSLATED_BACK"
	StageAdviceTranslated Stage = "ADVICE_TRANSLATED"
	StageAudioSynthesized Stage = "AUDIO_SYNTHESIZED"
	StageAssembled        Stage = "ASSEMBLED"
	StageDelivered        Stage = "DELIVERED"
	StageError            Stage = "ERROR"
)

// Trace records how one request moved through the pipeline.
type Trace struct {
	Language string
	Stages   []Stage
	Degraded []string
	Elapsed  time.Duration
}

func (t *Trace) Advance(ctx context.Context, stage Stage) {
	t.Stages = append(t.Stages, stage)
	log.Printf("chat pipeline request_id=%s stage=%s", RequestIDFrom(ctx), stage)
}

func (t *Trace) Last() Stage {
	if len(t.Stages) == 0 {
		return ""
	}
	return t.Stages[len(t.Stages)-1]
}

func (t *Trace) note(component string, cause error) {
	if cause != nil {
		t.Degraded = append(t.Degraded, component)
	}
}

type Pipeline struct {
	translator  *Translator
	enricher    *Enricher
	advisor     *PrimaryAdvisor
	synthesizer *Synthesizer
	speaker     *Speaker
}

func NewPipeline(translator *Translator, enricher *Enricher, advisor *PrimaryAdvisor, synthesizer *Synthesizer, speaker *Speaker) *Pipeline {
	return &Pipeline{
		translator:  translator,
		enricher:    enricher,
		advisor:     advisor,
		synthesizer: synthesizer,
		speaker:     speaker,
	}
}

// DetectLanguage backs the standalone detection endpoint.
func (p *Pipeline) DetectLanguage(ctx context.Context, text string) string {
	return p.translator.Detect(ctx, text).Value
}

// Process runs one request end to end. Only ErrInvalidInput, ErrCancelled and
// ErrInternal are returned; provider failures degrade their stage instead.
func (p *Pipeline) Process(ctx context.Context, req ChatRequest) (resp ChatResponse, trace Trace, err error) {
	started := time.Now()
	defer func() {
		if recovered := recover(); recovered != nil {
			log.Printf("chat pipeline panic request_id=%s stage=%s panic=%v", RequestIDFrom(ctx), trace.Last(), recovered)
			resp = ChatResponse{}
			err = fmt.Errorf("%w: panic at %s", ErrInternal, trace.Last())
		}
		if err != nil {
			trace.Advance(ctx, StageError)
		}
		trace.Elapsed = time.Since(started)
	}()

	trace.Advance(ctx, StageReceived)
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return ChatResponse{}, trace, ErrInvalidInput
	}

	detected := p.translator.Detect(ctx, message)
	language := detected.Value
	trace.Language = language
	trace.note("language_detection", detected.Cause)
	trace.Advance(ctx, StageLanguageDetected)

	cond, err := p.enricher.Enrich(ctx, req.Location)
	if err != nil {
		if errors.Is(err, ErrInternal) {
			return ChatResponse{}, trace, err
		}
		return ChatResponse{}, trace, fmt.Errorf("%w: %v", ErrCancelled, err)
	}
	trace.Degraded = append(trace.Degraded, cond.Degraded...)
	trace.Advance(ctx, StageContextEnriched)

	messageEN := message
	if language != DefaultLanguage {
		translated := p.translator.Translate(ctx, message, DefaultLanguage, language)
		trace.note("query_translation", translated.Cause)
		messageEN = translated.Value
	}
	if err := checkpoint(ctx); err != nil {
		return ChatResponse{}, trace, err
	}
	trace.Advance(ctx, StageTranslatedToEN)

	enriched := NewEnrichedContext(req.CropName, cond, req.History, messageEN)

	advice := p.advisor.Advise(ctx, messageEN, enriched)
	trace.note("primary_model", advice.Cause)
	if err := checkpoint(ctx); err != nil {
		return ChatResponse{}, trace, err
	}
	trace.Advance(ctx, StagePrimaryAnswered)

	raw := p.synthesizer.Synthesize(ctx, messageEN, advice.Value, enriched, language)
	trace.note("synthesis_model", raw.Cause)
	if err := checkpoint(ctx); err != nil {
		return ChatResponse{}, trace, err
	}
	trace.Advance(ctx, StageSynthesized)

	parsed := ParseStructuredAnswer(raw.Value)
	trace.note("structured_answer", parsed.Cause)
	trace.Advance(ctx, StageParsed)

	localized := parsed.Value
	english := localized
	adviceText := advice.Value
	if language != DefaultLanguage {
		english, adviceText, err = p.translateOutputs(ctx, &trace, localized, advice.Value, language)
		if err != nil {
			return ChatResponse{}, trace, err
		}
		trace.Advance(ctx, StageTranslatedBack)
		trace.Advance(ctx, StageAdviceTranslated)
	}

	audio := p.speaker.Speak(ctx, localized.Description, language)
	trace.note("speech", audio.Cause)
	if err := checkpoint(ctx); err != nil {
		return ChatResponse{}, trace, err
	}
	trace.Advance(ctx, StageAudioSynthesized)

	resp = ChatResponse{
		Query:           req.Message,
		Response:        localized.Description,
		Confidence:      AnswerConfidence,
		Recommendations: nonNilStrings(localized.Recommendations),
		AudioResponse:   audio.Value,
		WeatherData:     newWeatherData(enriched.LocationName, enriched.Weather),
		MarketData:      nil,
		Sources: Sources{
			OriginalLanguage: language,
			AdviceText:       adviceText,
			EnglishStructuredAnswer: StructuredAnswer{
				Description:     english.Description,
				Recommendations: nonNilStrings(english.Recommendations),
			},
		},
	}
	trace.Advance(ctx, StageAssembled)
	return resp, trace, nil
}

// translateOutputs back-translates the localized answer to English while the
// primary advice is translated into the user's language.
func (p *Pipeline) translateOutputs(ctx context.Context, trace *Trace, localized StructuredAnswer, advice, language string) (StructuredAnswer, string, error) {
	var (
		english    Result[StructuredAnswer]
		adviceText Result[string]
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return guardBranch(ctx, "answer_back_translation", func() {
			english = p.translator.TranslateAnswer(groupCtx, localized, DefaultLanguage, language)
		})
	})
	group.Go(func() error {
		return guardBranch(ctx, "advice_translation", func() {
			adviceText = p.translator.Translate(groupCtx, advice, language, DefaultLanguage)
		})
	})
	if err := group.Wait(); err != nil {
		return StructuredAnswer{}, "", err
	}

	if err := checkpoint(ctx); err != nil {
		return StructuredAnswer{}, "", err
	}
	trace.note("answer_back_translation", english.Cause)
	trace.note("advice_translation", adviceText.Cause)
	return english.Value, adviceText.Value, nil
}

func checkpoint(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCancelled, err)
	}
	return nil
}
