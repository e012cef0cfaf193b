// Package mfa drives the Montreal Forced Aligner command-line tool.
//
// Each Align call builds a throw-away single-speaker corpus in a temporary
// directory:
//
//	<tmp>/corpus/<id>/<id>.wav
//	<tmp>/corpus/<id>/<id>.txt
//
// runs
//
//	mfa align <tmp>/corpus <dictionary> <acoustic_model> <tmp>/out --clean --single_speaker
//
// and parses <tmp>/out/<id>.TextGrid. The subprocess is bounded by a
// timeout (five minutes by default) on top of the caller's context.
package mfa

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/MrWong99/orato/pkg/audio"
	"github.com/MrWong99/orato/pkg/provider/aligner"
)

const (
	defaultBinary        = "mfa"
	defaultDictionary    = "english_us_arpa"
	defaultAcousticModel = "english_us_arpa"
	defaultTimeout       = 5 * time.Minute
)

// ErrUnavailable is returned by Available when the mfa binary cannot be
// executed.
var ErrUnavailable = errors.New("mfa: aligner unavailable")

// Runner executes a command and returns its combined output. It exists so
// tests can replace the real subprocess.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Compile-time assertion that Aligner implements aligner.ForcedAligner.
var _ aligner.ForcedAligner = (*Aligner)(nil)

// Option is a functional option for configuring an Aligner.
type Option func(*Aligner)

// WithBinary sets the path of the mfa executable. Defaults to "mfa" on PATH.
func WithBinary(path string) Option {
	return func(a *Aligner) { a.binary = path }
}

// WithDictionary sets the pronunciation dictionary name or path. Defaults to
// "english_us_arpa".
func WithDictionary(dict string) Option {
	return func(a *Aligner) { a.dictionary = dict }
}

// WithAcousticModel sets the acoustic model name or path. Defaults to
// "english_us_arpa".
func WithAcousticModel(model string) Option {
	return func(a *Aligner) { a.acousticModel = model }
}

// WithTimeout bounds a single alignment run. Defaults to 5 minutes.
func WithTimeout(d time.Duration) Option {
	return func(a *Aligner) { a.timeout = d }
}

// WithWorkDir sets the parent directory for temporary corpora. Defaults to
// the system temp directory.
func WithWorkDir(dir string) Option {
	return func(a *Aligner) { a.workDir = dir }
}

// WithRunner replaces the subprocess runner.
func WithRunner(r Runner) Option {
	return func(a *Aligner) { a.run = r }
}

// Aligner runs Montreal Forced Aligner as a subprocess. It holds no
// per-call state and is safe for concurrent use; every call gets its own
// temporary corpus.
type Aligner struct {
	binary        string
	dictionary    string
	acousticModel string
	timeout       time.Duration
	workDir       string
	run           Runner
}

// New creates an Aligner with the given options.
func New(opts ...Option) *Aligner {
	a := &Aligner{
		binary:        defaultBinary,
		dictionary:    defaultDictionary,
		acousticModel: defaultAcousticModel,
		timeout:       defaultTimeout,
		run:           execRunner,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Available checks that the mfa binary runs by asking for its version.
func (a *Aligner) Available(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if out, err := a.run(ctx, a.binary, "version"); err != nil {
		return fmt.Errorf("%w: %v: %s", ErrUnavailable, err, strings.TrimSpace(string(out)))
	}
	return nil
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Align implements aligner.ForcedAligner.
func (a *Aligner) Align(ctx context.Context, clip *audio.Clip, transcript string) ([]aligner.Word, error) {
	if clip == nil || len(clip.WAV) == 0 {
		return nil, errors.New("mfa: clip has no WAV data")
	}
	if strings.TrimSpace(transcript) == "" {
		return nil, errors.New("mfa: empty transcript")
	}

	tmp, err := os.MkdirTemp(a.workDir, "mfa_align_")
	if err != nil {
		return nil, fmt.Errorf("mfa: create temp dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	id := unsafeName.ReplaceAllString(clip.Name, "_")
	if id == "" || id == "_" {
		id = "utterance"
	}
	corpus := filepath.Join(tmp, "corpus")
	out := filepath.Join(tmp, "out")
	speaker := filepath.Join(corpus, id)
	if err := os.MkdirAll(speaker, 0o755); err != nil {
		return nil, fmt.Errorf("mfa: create corpus: %w", err)
	}
	if err := os.MkdirAll(out, 0o755); err != nil {
		return nil, fmt.Errorf("mfa: create output dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(speaker, id+".wav"), clip.WAV, 0o644); err != nil {
		return nil, fmt.Errorf("mfa: write audio: %w", err)
	}
	if err := os.WriteFile(filepath.Join(speaker, id+".txt"), []byte(strings.TrimSpace(transcript)+"\n"), 0o644); err != nil {
		return nil, fmt.Errorf("mfa: write transcript: %w", err)
	}

	runCtx := ctx
	if a.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	args := []string{"align", corpus, a.dictionary, a.acousticModel, out, "--clean", "--single_speaker"}
	if output, err := a.run(runCtx, a.binary, args...); err != nil {
		if ctxErr := runCtx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("mfa: align: %w", ctxErr)
		}
		return nil, fmt.Errorf("mfa: align: %w: %s", err, tail(output, 400))
	}

	data, err := readTextGrid(out, id)
	if err != nil {
		return nil, err
	}
	tg, err := ParseTextGrid(data)
	if err != nil {
		return nil, err
	}
	words := tg.Words()
	if len(words) == 0 {
		return nil, aligner.ErrNoAlignment
	}
	return words, nil
}

// readTextGrid looks for the output both flat and under the speaker
// directory, since mfa versions differ in how they lay out results.
func readTextGrid(out, id string) (string, error) {
	candidates := []string{
		filepath.Join(out, id+".TextGrid"),
		filepath.Join(out, id, id+".TextGrid"),
	}
	for _, p := range candidates {
		data, err := os.ReadFile(p)
		if err == nil {
			return string(data), nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("mfa: read %q: %w", p, err)
		}
	}
	return "", fmt.Errorf("mfa: output not found: %s", strings.Join(candidates, ", "))
}

func tail(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		s = "..." + s[len(s)-n:]
	}
	return s
}
