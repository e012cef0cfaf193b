package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/orato/internal/report"
	"github.com/MrWong99/orato/pkg/audio"
)

// fakeWhisper answers /inference with the words "the cat".
func fakeWhisper(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/inference" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"text":"the cat","segments":[{"text":"the cat","start":0,"end":1,"words":[
			{"word":" the","start":0.1,"end":0.3,"probability":0.97},
			{"word":" cat","start":0.35,"end":0.7,"probability":0.95}]}]}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeFixtures(t *testing.T, whisperURL string) (configPath, wavPath string) {
	t.Helper()
	dir := t.TempDir()

	dict := filepath.Join(dir, "words.dict")
	if err := os.WriteFile(dict, []byte("THE  DH AH0\nCAT  K AE1 T\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	configPath = filepath.Join(dir, "config.yaml")
	cfg := fmt.Sprintf(`
server: {log_level: error}
providers:
  recognizer: {name: whisper, base_url: %q}
lexicon: {path: %q}
history: {backend: sqlite, dsn: %q}
`, whisperURL, dict, filepath.Join(dir, "history.db"))
	if err := os.WriteFile(configPath, []byte(cfg), 0o600); err != nil {
		t.Fatal(err)
	}

	samples := make([]float32, 16000)
	for i := range samples {
		samples[i] = 0.3
	}
	data, err := audio.Encode(samples, 16000)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	wavPath = filepath.Join(dir, "clip.wav")
	if err := os.WriteFile(wavPath, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return configPath, wavPath
}

// The run tests replace the default logger and so do not run in parallel.
func TestRun_ScoresFiles(t *testing.T) {
	configPath, wavPath := writeFixtures(t, fakeWhisper(t).URL)

	var stdout, stderr bytes.Buffer
	code := run([]string{"-config", configPath, "-text", "The cat.", "-learner", "kim", wavPath, wavPath}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr:\n%s", code, stderr.String())
	}

	var got []result
	if err := json.Unmarshal(stdout.Bytes(), &got); err != nil {
		t.Fatalf("decode output: %v\n%s", err, stdout.String())
	}
	if len(got) != 2 {
		t.Fatalf("results = %d, want 2", len(got))
	}
	for i, r := range got {
		if r.Error != "" || r.Report == nil {
			t.Fatalf("result %d: error %q", i, r.Error)
		}
		if r.File != wavPath {
			t.Errorf("result %d file = %q, want %q", i, r.File, wavPath)
		}
		if r.Report.Summary.Correct != 2 {
			t.Errorf("result %d correct = %d, want 2", i, r.Report.Summary.Correct)
		}
		if r.Report.PronunciationMethod != report.MethodNone {
			t.Errorf("result %d method = %q, want %q", i, r.Report.PronunciationMethod, report.MethodNone)
		}
	}
}

func TestRun_PerFileErrors(t *testing.T) {
	configPath, wavPath := writeFixtures(t, fakeWhisper(t).URL)

	var stdout, stderr bytes.Buffer
	// A passage without words fails every file.
	code := run([]string{"-config", configPath, "-text", "...", wavPath}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	var got []result
	if err := json.Unmarshal(stdout.Bytes(), &got); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if len(got) != 1 || got[0].Error == "" {
		t.Errorf("results = %+v, want one error result", got)
	}
}

func TestRun_Usage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"no files", []string{"-text", "hello"}, 2},
		{"no text", []string{"clip.wav"}, 2},
		{"unknown flag", []string{"-bogus"}, 2},
		{"missing text file", []string{"-text-file", "/nonexistent/passage.txt", "clip.wav"}, 2},
		{"missing config", []string{"-config", "/nonexistent/config.yaml", "-text", "hi", "clip.wav"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var stdout, stderr bytes.Buffer
			if got := run(tt.args, &stdout, &stderr); got != tt.want {
				t.Errorf("exit code = %d, want %d (stderr: %s)", got, tt.want, stderr.String())
			}
			if stdout.Len() != 0 {
				t.Errorf("unexpected stdout: %s", stdout.String())
			}
			if !strings.HasPrefix(stderr.String(), "orato-score") && !strings.Contains(stderr.String(), "flag") {
				t.Errorf("stderr should explain the failure, got: %s", stderr.String())
			}
		})
	}
}
