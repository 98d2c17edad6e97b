package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var errUpstream = errors.New("upstream unavailable")

type fakeTranslation struct {
	detected     string
	detectErr    error
	translateErr error
	// delay, when set, picks a per-call latency for TranslateText.
	delay        func(text, target string) time.Duration
	panicTarget  string
	detectCalls  atomic.Int32
	active       atomic.Int32
	peak         atomic.Int32
	mu           sync.Mutex
	translations []string
}

func (f *fakeTranslation) DetectLanguage(_ context.Context, _ string) (string, error) {
	f.detectCalls.Add(1)
	if f.detectErr != nil {
		return "", f.detectErr
	}
	return f.detected, nil
}

// TranslateText tags text with its target so tests can see which language a
// field ended up in.
func (f *fakeTranslation) TranslateText(ctx context.Context, text, target, source string) (string, error) {
	f.mu.Lock()
	f.translations = append(f.translations, source+"->"+target)
	f.mu.Unlock()
	if f.panicTarget != "" && target == f.panicTarget {
		panic("translation backend exploded")
	}
	if f.delay != nil {
		running := f.active.Add(1)
		for {
			peak := f.peak.Load()
			if running <= peak || f.peak.CompareAndSwap(peak, running) {
				break
			}
		}
		err := sleepContext(ctx, f.delay(text, target))
		f.active.Add(-1)
		if err != nil {
			return "", err
		}
	}
	if f.translateErr != nil {
		return "", f.translateErr
	}
	return "[" + target + "] " + text, nil
}

type fakeGeocoder struct {
	name   string
	err    error
	delay  time.Duration
	panics bool
	calls  atomic.Int32
}

func (f *fakeGeocoder) ReverseGeocode(ctx context.Context, _, _ float64) (string, error) {
	f.calls.Add(1)
	if f.panics {
		panic("geocoder exploded")
	}
	if err := sleepContext(ctx, f.delay); err != nil {
		return "", err
	}
	return f.name, f.err
}

type fakeWeather struct {
	snapshot WeatherSnapshot
	err      error
	delay    time.Duration
	calls    atomic.Int32
}

func (f *fakeWeather) CurrentWeather(ctx context.Context, _, _ float64) (WeatherSnapshot, error) {
	f.calls.Add(1)
	if err := sleepContext(ctx, f.delay); err != nil {
		return WeatherSnapshot{}, err
	}
	return f.snapshot, f.err
}

type fakeAIClient struct {
	mu       sync.Mutex
	requests []AIModelRequest
	answer   func(req AIModelRequest) (string, error)
}

func (f *fakeAIClient) Query(_ context.Context, req AIModelRequest) (AIModelResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	answer, err := f.answer(req)
	if err != nil {
		return AIModelResponse{}, err
	}
	return AIModelResponse{Answer: answer, Model: "fake"}, nil
}

func (f *fakeAIClient) lastRequest() AIModelRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

type fakeSpeech struct {
	err         error
	contentType string
	calls       atomic.Int32
	langs       []string
	voices      []string
}

func (f *fakeSpeech) Synthesize(_ context.Context, text string, opts SynthesizeOpts) (*SynthesizeResult, error) {
	f.calls.Add(1)
	f.langs = append(f.langs, opts.Language)
	f.voices = append(f.voices, opts.Voice)
	if f.err != nil {
		return nil, f.err
	}
	contentType := f.contentType
	if contentType == "" {
		contentType = SpeechContentType
	}
	return &SynthesizeResult{Audio: []byte("ID3" + strings.ToUpper(text)), ContentType: contentType}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func floatPtr(v float64) *float64 {
	return &v
}

func sunnySnapshot() WeatherSnapshot {
	return WeatherSnapshot{
		Temperature: floatPtr(31.5),
		Humidity:    floatPtr(40),
		WindSpeed:   floatPtr(3.2),
		Description: "clear sky",
	}
}
