package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"agriagent/apps/backend/internal/chat"
	"agriagent/apps/backend/internal/config"
	"agriagent/apps/backend/internal/db"
)

var (
	testPool              *pgxpool.Pool
	baseTestConfig        config.Config
	integrationDBReady    bool
	integrationSkipReason string
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	baseTestConfig = newTestConfig()

	testDatabaseURL := strings.TrimSpace(os.Getenv("TEST_DATABASE_URL"))
	if testDatabaseURL == "" {
		integrationSkipReason = "integration tests skipped: TEST_DATABASE_URL is not set"
		fmt.Fprintln(os.Stderr, integrationSkipReason)
		os.Exit(m.Run())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := db.ConnectPostgres(ctx, testDatabaseURL)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "integration test setup failed: cannot connect TEST_DATABASE_URL: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	err = EnsureRunLogSchema(ctx, pool)
	if err == nil {
		err = ValidateRuntimeSchema(ctx, pool)
	}
	cancel()
	if err != nil {
		pool.Close()
		fmt.Fprintf(os.Stderr, "integration test setup failed: %v\n", err)
		os.Exit(1)
	}

	testPool = pool
	integrationDBReady = true

	exitCode := m.Run()
	testPool.Close()
	os.Exit(exitCode)
}

func newTestConfig() config.Config {
	cfg := config.Config{
		AppEnv:       "test",
		AppName:      "AgriAgent API Test",
		APIPrefix:    "/api",
		AppPort:      "0",
		JWTSecret:    "test-secret-1234567890",
		JWTAlgorithm: "HS256",
		CORSAllowOrigins: []string{
			"http://localhost:3000",
		},
	}
	if v := strings.TrimSpace(os.Getenv("TEST_JWT_SECRET")); v != "" {
		cfg.JWTSecret = v
	}
	return cfg
}

func requireIntegration(t *testing.T) {
	t.Helper()
	if !integrationDBReady {
		if integrationSkipReason == "" {
			integrationSkipReason = "integration tests skipped: TEST_DATABASE_URL is not configured"
		}
		t.Skip(integrationSkipReason)
	}
}

type stubTranslation struct {
	language string
}

func (s stubTranslation) DetectLanguage(context.Context, string) (string, error) {
	return s.language, nil
}

func (s stubTranslation) TranslateText(_ context.Context, text, target, _ string) (string, error) {
	return "[" + target + "] " + text, nil
}

type stubGeocoder struct{}

func (stubGeocoder) ReverseGeocode(context.Context, float64, float64) (string, error) {
	return "Karnal", nil
}

type stubWeather struct{}

func (stubWeather) CurrentWeather(context.Context, float64, float64) (chat.WeatherSnapshot, error) {
	temp, humidity, wind := 31.5, 40.0, 3.2
	return chat.WeatherSnapshot{Temperature: &temp, Humidity: &humidity, WindSpeed: &wind, Description: "clear sky"}, nil
}

type stubSpeech struct{}

func (stubSpeech) Synthesize(_ context.Context, text string, _ chat.SynthesizeOpts) (*chat.SynthesizeResult, error) {
	return &chat.SynthesizeResult{Audio: []byte("ID3" + text), ContentType: "audio/mpeg"}, nil
}

// newTestPipeline runs entirely in-process: stub providers plus the mock
// model client.
func newTestPipeline(language string) *chat.Pipeline {
	return chat.NewPipeline(
		chat.NewTranslator(stubTranslation{language: language}, time.Second),
		chat.NewEnricher(stubGeocoder{}, stubWeather{}, time.Second),
		chat.NewPrimaryAdvisor(chat.MockAIClient{}, time.Second),
		chat.NewSynthesizer(chat.MockAIClient{}, time.Second),
		chat.NewSpeaker(stubSpeech{}, time.Second),
	)
}

type memoryRunLog struct {
	mu      sync.Mutex
	entries []RunLogEntry
	err     error
	// release, when set, holds every write until it is closed.
	release chan struct{}
}

func (m *memoryRunLog) Record(ctx context.Context, entry RunLogEntry) error {
	if m.release != nil {
		select {
		case <-m.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return m.err
}

func (m *memoryRunLog) all() []RunLogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RunLogEntry(nil), m.entries...)
}

func newTestApp(cfg config.Config, language string, runLog RunLogger) *App {
	app := New(cfg, runLog)
	app.SetPipeline(newTestPipeline(language))
	return app
}

func signToken(t *testing.T, cfg config.Config, sub string, overrides map[string]any) string {
	t.Helper()

	claims := jwt.MapClaims{
		"exp": time.Now().UTC().Add(1 * time.Hour).Unix(),
		"iat": time.Now().UTC().Add(-1 * time.Minute).Unix(),
	}
	if strings.TrimSpace(sub) != "" {
		claims["sub"] = sub
	}
	if strings.TrimSpace(cfg.JWTAudience) != "" {
		claims["aud"] = cfg.JWTAudience
	}
	if strings.TrimSpace(cfg.JWTIssuer) != "" {
		claims["iss"] = cfg.JWTIssuer
	}
	for key, value := range overrides {
		if value == nil {
			delete(claims, key)
			continue
		}
		claims[key] = value
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(cfg.JWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func performRequest(
	t *testing.T,
	router http.Handler,
	method, targetPath, token string,
	body any,
	headers map[string]string,
) *httptest.ResponseRecorder {
	t.Helper()

	var payload []byte
	switch typed := body.(type) {
	case nil:
	case string:
		payload = []byte(typed)
	default:
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
	}

	req := httptest.NewRequest(method, targetPath, bytes.NewReader(payload))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(token) != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeJSONMap(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response JSON: %v; body=%s", err, rec.Body.String())
	}
	return payload
}

func newErrorRecorder(err error) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	writeChatError(c, err)
	return rec
}

func responseDetail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	detail, _ := decodeJSONMap(t, rec)["detail"].(string)
	return detail
}
