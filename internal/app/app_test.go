package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/orato/internal/app"
	"github.com/MrWong99/orato/internal/assess"
	"github.com/MrWong99/orato/internal/config"
	"github.com/MrWong99/orato/internal/history"
	"github.com/MrWong99/orato/internal/observe"
	"github.com/MrWong99/orato/internal/report"
	"github.com/MrWong99/orato/pkg/audio"
	"github.com/MrWong99/orato/pkg/lexicon"
	"github.com/MrWong99/orato/pkg/phoneme"
	"github.com/MrWong99/orato/pkg/provider/recognizer"
	recognizermock "github.com/MrWong99/orato/pkg/provider/recognizer/mock"
)

// testConfig returns a minimal config with defaults applied.
func testConfig() *config.Config {
	cfg := &config.Config{
		Server: config.ServerConfig{
			ListenAddr:     "127.0.0.1:0",
			RequestTimeout: 5 * time.Second,
		},
		Providers: config.ProvidersConfig{
			Recognizer: config.ProviderEntry{Name: "test"},
		},
		Lexicon: config.LexiconConfig{Path: "unused.dict"},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

// testProviders returns providers with a mock recognizer that hears "the cat".
func testProviders() (*app.Providers, *recognizermock.Recognizer) {
	conf := 0.95
	rec := &recognizermock.Recognizer{Result: recognizer.Result{
		Words: []recognizer.Word{
			{Text: "the", Start: 0.1, End: 0.3, Confidence: &conf},
			{Text: "cat", Start: 0.35, End: 0.7, Confidence: &conf},
		},
	}}
	return &app.Providers{Recognizer: rec, RecognizerName: "test"}, rec
}

func testLexicon() *lexicon.Dict {
	d := lexicon.New()
	d.Add("the", phoneme.Must("DH AH0")...)
	d.Add("cat", phoneme.Must("K AE1 T")...)
	return d
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func newApp(t *testing.T, cfg *config.Config, providers *app.Providers, opts ...app.Option) *app.App {
	t.Helper()
	opts = append([]app.Option{
		app.WithMetrics(testMetrics(t)),
		app.WithMetricsHandler(http.NotFoundHandler()),
	}, opts...)
	application, err := app.New(context.Background(), cfg, providers, opts...)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	t.Cleanup(func() { _ = application.Shutdown(context.Background()) })
	return application
}

func wavBytes(t *testing.T) []byte {
	t.Helper()
	samples := make([]float32, 16000)
	for i := range samples {
		samples[i] = 0.3
	}
	data, err := audio.Encode(samples, 16000)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return data
}

func TestNew_WithInjected(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Scoring.ASRConfidenceThreshold = 0.5
	providers, _ := testProviders()
	store := history.NewMemStore()

	application := newApp(t, cfg, providers,
		app.WithLexicon(testLexicon()),
		app.WithHistory(store),
	)

	if application.Engine() == nil {
		t.Fatal("Engine() is nil")
	}
	if application.History() != store {
		t.Error("History() should return the injected store")
	}
	if got := application.Engine().Settings().ASRConfidenceThreshold; got != 0.5 {
		t.Errorf("engine ASRConfidenceThreshold = %v, want 0.5", got)
	}
}

func TestNew_LoadsLexiconAndSQLite(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	dictPath := filepath.Join(dir, "words.dict")
	if err := os.WriteFile(dictPath, []byte("THE  DH AH0\nCAT  K AE1 T\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := testConfig()
	cfg.Lexicon.Path = dictPath
	cfg.History = config.HistoryConfig{Backend: config.HistorySQLite, DSN: filepath.Join(dir, "history.db")}
	providers, _ := testProviders()

	application := newApp(t, cfg, providers)

	if _, ok := application.History().(*history.SQLiteStore); !ok {
		t.Errorf("History() = %T, want *history.SQLiteStore", application.History())
	}
	if err := application.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
}

func TestNew_Errors(t *testing.T) {
	t.Parallel()

	t.Run("no recognizer", func(t *testing.T) {
		t.Parallel()
		_, err := app.New(context.Background(), testConfig(), &app.Providers{})
		if err == nil {
			t.Fatal("expected error for missing recognizer")
		}
	})

	t.Run("missing lexicon file", func(t *testing.T) {
		t.Parallel()
		cfg := testConfig()
		cfg.Lexicon.Path = filepath.Join(t.TempDir(), "missing.dict")
		providers, _ := testProviders()
		_, err := app.New(context.Background(), cfg, providers, app.WithHistory(history.NewMemStore()))
		if err == nil {
			t.Fatal("expected error for missing lexicon")
		}
		if !errors.Is(err, os.ErrNotExist) {
			t.Errorf("error = %v, want wrapping os.ErrNotExist", err)
		}
	})
}

func TestApp_HandlerAssessesAndRecords(t *testing.T) {
	t.Parallel()

	providers, rec := testProviders()
	store := history.NewMemStore()
	application := newApp(t, testConfig(), providers,
		app.WithLexicon(testLexicon()),
		app.WithHistory(store),
		app.WithEngineOptions(assess.WithIDGenerator(func() string { return "fixed-id" })),
	)

	srv := httptest.NewServer(application.Handler())
	t.Cleanup(srv.Close)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("text", "The cat.")
	_ = mw.WriteField("learner_id", "kim")
	fw, err := mw.CreateFormFile("audio", "clip.wav")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = fw.Write(wavBytes(t))
	_ = mw.Close()

	resp, err := http.Post(srv.URL+"/v1/assessments", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var got report.FinalReport
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != "fixed-id" {
		t.Errorf("ID = %q, want fixed-id", got.ID)
	}
	if got.Summary.TotalWords != 2 || got.Summary.Correct != 2 {
		t.Errorf("summary = %+v, want 2 of 2 correct", got.Summary)
	}
	// No aligner or extractor configured.
	if got.PronunciationMethod != report.MethodNone {
		t.Errorf("PronunciationMethod = %q, want %q", got.PronunciationMethod, report.MethodNone)
	}
	if rec.CallCount() != 1 {
		t.Errorf("Recognize call count = %d, want 1", rec.CallCount())
	}

	attempts, err := store.Recent(context.Background(), "kim", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(attempts) != 1 || attempts[0].ID != "fixed-id" {
		t.Errorf("attempts = %+v, want the one saved attempt", attempts)
	}
}

func TestApp_ServeAndShutdown(t *testing.T) {
	t.Parallel()

	providers, _ := testProviders()
	application := newApp(t, testConfig(), providers,
		app.WithLexicon(testLexicon()),
		app.WithHistory(history.NewMemStore()),
	)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- application.Serve(ctx, ln)
	}()

	url := "http://" + ln.Addr().String()
	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(url + path)
		if err != nil {
			cancel()
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200", path, resp.StatusCode)
		}
	}

	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Serve() returned unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not return within 5s after context cancellation")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
	// Second call is a no-op.
	if err := application.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("second Shutdown() error: %v", err)
	}
}

func TestApp_ShutdownDeadline(t *testing.T) {
	t.Parallel()

	providers, _ := testProviders()
	application, err := app.New(context.Background(), testConfig(), providers,
		app.WithLexicon(testLexicon()),
		app.WithHistory(history.NewMemStore()),
		app.WithMetrics(testMetrics(t)),
	)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := application.Shutdown(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Shutdown(cancelled) = %v, want context.Canceled", err)
	}
}
