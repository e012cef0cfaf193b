// Package assess runs the read-aloud assessment pipeline.
//
// An [Engine] takes a reference passage and a recording through five
// stages:
//
//  1. Recognise the recording into timed words.
//  2. Align the recognised words against the reference (content verdicts).
//  3. Gate on audio clarity: recogniser confidence and silence ratio.
//  4. Obtain phonemes for the correctly spoken words, either by forced
//     alignment (clear audio) or by a neural phoneme extractor (noisy audio
//     or failed alignment), and score them.
//  5. Merge content and pronunciation verdicts into a [report.FinalReport].
//
// A failed forced alignment is never fatal: the engine falls back to the
// extractor with a more lenient threshold. A failed extractor degrades the
// report to content-only with pronunciation method "none".
package assess

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/orato/internal/align"
	"github.com/MrWong99/orato/internal/content"
	"github.com/MrWong99/orato/internal/observe"
	"github.com/MrWong99/orato/internal/report"
	"github.com/MrWong99/orato/internal/resilience"
	"github.com/MrWong99/orato/internal/rhythm"
	"github.com/MrWong99/orato/internal/scoring"
	"github.com/MrWong99/orato/internal/text"
	"github.com/MrWong99/orato/pkg/audio"
	"github.com/MrWong99/orato/pkg/lexicon"
	"github.com/MrWong99/orato/pkg/provider/aligner"
	"github.com/MrWong99/orato/pkg/provider/phonemes"
	"github.com/MrWong99/orato/pkg/provider/recognizer"
)

var (
	// ErrInvalidInput is returned when the reference text is empty or holds
	// no words, or when no audio was supplied.
	ErrInvalidInput = errors.New("assess: invalid input")

	// ErrNoSpeech is returned when the recogniser found no words.
	ErrNoSpeech = errors.New("assess: no speech recognised")
)

// Fallback reasons reported on the orato.fallbacks counter.
const (
	ReasonUnclearAudio      = "unclear_audio"
	ReasonForcedAlignFailed = "forced_align_failed"
)

// PauseScorer evaluates the pauses a reader makes at punctuation.
// [rhythm.Evaluator] is the default.
type PauseScorer interface {
	Score(words []content.WordResult, reference []text.Token) rhythm.Evaluation
}

// Settings are the hot-reloadable routing and scoring parameters.
type Settings struct {
	// ASRConfidenceThreshold: audio is clear only when recogniser
	// confidence exceeds it.
	ASRConfidenceThreshold float64

	// SilenceRatioThreshold: audio is clear only when the silence ratio is
	// below it.
	SilenceRatioThreshold float64

	// ThresholdClear is the per-word confidence a forced-aligned word needs
	// to count as correctly pronounced.
	ThresholdClear float64

	// ThresholdNoisy is the same threshold for the extractor path.
	ThresholdNoisy float64

	// AccentPairs are the accent-equivalent substitutions. nil selects
	// [align.DefaultAccentPairs]; an empty non-nil slice disables accent
	// tolerance.
	AccentPairs []align.AccentPair
}

// DefaultSettings returns the standard thresholds.
func DefaultSettings() Settings {
	return Settings{
		ASRConfidenceThreshold: 0.75,
		SilenceRatioThreshold:  0.35,
		ThresholdClear:         scoring.ThresholdForced,
		ThresholdNoisy:         scoring.ThresholdFallback,
	}
}

// tuning is the immutable snapshot derived from Settings.
type tuning struct {
	settings Settings
	forced   *scoring.Scorer
	fallback *scoring.Scorer
}

func newTuning(s Settings) *tuning {
	var popts []align.PolicyOption
	if s.AccentPairs != nil {
		popts = append(popts, align.WithAccentPairs(s.AccentPairs))
	}
	policy := align.NewCostPolicy(popts...)
	return &tuning{
		settings: s,
		forced:   scoring.New(s.ThresholdClear, scoring.WithPolicy(policy)),
		fallback: scoring.New(s.ThresholdNoisy, scoring.WithPolicy(policy)),
	}
}

// named pairs a collaborator with the name it is reported under.
type named[T any] struct {
	name string
	impl T
}

// Engine is the assessment orchestrator. It holds no per-utterance state
// and is safe for concurrent use.
type Engine struct {
	recognizer named[recognizer.Recognizer]
	aligner    *named[aligner.ForcedAligner]
	extractor  *named[phonemes.Extractor]
	lexicon    lexicon.Lexicon
	pauses     PauseScorer
	metrics    *observe.Metrics

	breakerCfg   resilience.CircuitBreakerConfig
	breaker      *resilience.CircuitBreaker
	stageTimeout time.Duration
	batchLimit   int
	newID        func() string

	tuning atomic.Pointer[tuning]
}

// Option configures an Engine.
type Option func(*Engine)

// WithRecognizerName sets the name the recogniser is reported under.
// Default: "recognizer".
func WithRecognizerName(name string) Option {
	return func(e *Engine) { e.recognizer.name = name }
}

// WithAligner enables the forced-alignment path. Without an aligner every
// clear recording takes the extractor path.
func WithAligner(name string, a aligner.ForcedAligner) Option {
	return func(e *Engine) { e.aligner = &named[aligner.ForcedAligner]{name: name, impl: a} }
}

// WithExtractor sets the neural phoneme extractor. Without one the engine
// produces content-only reports whenever forced alignment is not used.
func WithExtractor(name string, x phonemes.Extractor) Option {
	return func(e *Engine) { e.extractor = &named[phonemes.Extractor]{name: name, impl: x} }
}

// WithPauseScorer replaces the default [rhythm.Evaluator].
func WithPauseScorer(p PauseScorer) Option {
	return func(e *Engine) { e.pauses = p }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithSettings sets the initial settings. Default: [DefaultSettings].
func WithSettings(s Settings) Option {
	return func(e *Engine) { e.tuning.Store(newTuning(s)) }
}

// WithAlignerBreaker configures the circuit breaker guarding the aligner.
// The breaker's Name defaults to the aligner name.
func WithAlignerBreaker(cfg resilience.CircuitBreakerConfig) Option {
	return func(e *Engine) { e.breakerCfg = cfg }
}

// WithStageTimeout bounds every collaborator call. Zero leaves timeouts to
// the collaborators and the caller's context.
func WithStageTimeout(d time.Duration) Option {
	return func(e *Engine) { e.stageTimeout = d }
}

// WithBatchLimit sets how many utterances AssessBatch processes at once.
// Default: 4.
func WithBatchLimit(n int) Option {
	return func(e *Engine) { e.batchLimit = n }
}

// WithIDGenerator replaces the UUID generator used for report IDs.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

// New returns an Engine that recognises with rec and looks up expected
// pronunciations in lex.
func New(rec recognizer.Recognizer, lex lexicon.Lexicon, opts ...Option) *Engine {
	e := &Engine{
		recognizer: named[recognizer.Recognizer]{name: "recognizer", impl: rec},
		lexicon:    lex,
		pauses:     rhythm.Evaluator{},
		batchLimit: 4,
		newID:      uuid.NewString,
	}
	for _, o := range opts {
		o(e)
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	if e.tuning.Load() == nil {
		e.tuning.Store(newTuning(DefaultSettings()))
	}
	if e.batchLimit <= 0 {
		e.batchLimit = 1
	}
	if e.aligner != nil {
		cfg := e.breakerCfg
		if cfg.Name == "" {
			cfg.Name = e.aligner.name
		}
		user := cfg.OnStateChange
		cfg.OnStateChange = func(name string, from, to resilience.State) {
			e.metrics.RecordBreakerTransition(context.Background(), name, to.String())
			if user != nil {
				user(name, from, to)
			}
		}
		e.breaker = resilience.NewCircuitBreaker(cfg)
	}
	return e
}

// Settings returns the settings currently in effect.
func (e *Engine) Settings() Settings { return e.tuning.Load().settings }

// UpdateSettings swaps in new settings. Assessments already running keep
// the settings they started with.
func (e *Engine) UpdateSettings(s Settings) {
	e.tuning.Store(newTuning(s))
	observe.Logger(context.Background()).Info("scoring settings updated",
		"asr_confidence_threshold", s.ASRConfidenceThreshold,
		"silence_ratio_threshold", s.SilenceRatioThreshold,
		"threshold_clear", s.ThresholdClear,
		"threshold_noisy", s.ThresholdNoisy,
		"accent_pairs", len(s.AccentPairs),
	)
}

// Clear reports whether audio counts as clear: confidence above the ASR
// threshold and silence ratio below the silence threshold. Without a
// confidence the silence ratio decides alone.
func (s Settings) Clear(confidence *float64, silenceRatio float64) bool {
	quiet := silenceRatio < s.SilenceRatioThreshold
	if confidence == nil {
		return quiet
	}
	return *confidence > s.ASRConfidenceThreshold && quiet
}

// Assess scores one recording of passage.
func (e *Engine) Assess(ctx context.Context, passage string, clip *audio.Clip) (report.FinalReport, error) {
	tokens := text.Tokenize(passage)
	refWords := text.Words(tokens)
	switch {
	case strings.TrimSpace(passage) == "":
		return report.FinalReport{}, fmt.Errorf("%w: reference text is empty", ErrInvalidInput)
	case len(refWords) == 0:
		return report.FinalReport{}, fmt.Errorf("%w: reference text has no words", ErrInvalidInput)
	case clip == nil:
		return report.FinalReport{}, fmt.Errorf("%w: no audio", ErrInvalidInput)
	}

	start := time.Now()
	tun := e.tuning.Load()
	id := e.newID()

	ctx, span := observe.StartSpan(ctx, "assess.Assess", trace.WithAttributes(
		attribute.String("assessment.id", id),
		attribute.Int("reference.words", len(refWords)),
	))
	defer span.End()

	e.metrics.ActiveAssessments.Add(ctx, 1)
	defer e.metrics.ActiveAssessments.Add(ctx, -1)

	unscored := lexicon.Missing(e.lexicon, refWords)
	if len(unscored) > 0 {
		span.SetAttributes(attribute.Int("lexicon.missing", len(unscored)))
		observe.Logger(ctx).Debug("reference words missing from lexicon", "id", id, "words", unscored)
	}

	quality := audio.Measure(clip)

	res, err := e.recognize(ctx, clip)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "recognize failed")
		return report.FinalReport{}, err
	}

	words := content.Match(refWords, res.Words)
	conf := res.Confidence
	if conf == nil {
		conf = recognizer.MeanConfidence(res.Words)
	}
	clear := tun.settings.Clear(conf, quality.SilenceRatio)
	rhythmEval := e.pauses.Score(words, tokens)

	method, inputs, scorer := e.pronunciation(ctx, clip, refWords, words, clear, tun)
	if err := ctx.Err(); err != nil {
		return report.FinalReport{}, fmt.Errorf("assess: %w", err)
	}

	var (
		pron    []scoring.WordResult
		summary *scoring.Summary
	)
	if scorer != nil {
		scoreStart := time.Now()
		results, sum := scorer.Score(inputs, rhythmEval.Penalty)
		e.metrics.RecordStage(ctx, observe.StageScore, time.Since(scoreStart).Seconds())
		pron, summary = results, &sum
	}

	out := report.Build(words, pron, summary)
	out.ID = id
	out.AudioClear = clear
	out.PronunciationMethod = method
	out.Quality = &quality
	out.Pauses = rhythmEval.Pauses
	out.Unscored = unscored

	var band int
	var score float64
	if summary != nil {
		band, score = summary.Band, summary.ScorePTE
	}
	span.SetAttributes(
		attribute.String("pronunciation.method", string(method)),
		attribute.Bool("audio.clear", clear),
		attribute.Int("score.band", band),
	)
	e.metrics.RecordAssessment(ctx, string(method), band, score, time.Since(start).Seconds())
	observe.Logger(ctx).Debug("assessment finished",
		"id", id,
		"method", method,
		"audio_clear", clear,
		"accuracy", out.Summary.Accuracy,
		"band", band,
	)
	return out, nil
}

// stage applies the stage timeout to ctx.
func (e *Engine) stage(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.stageTimeout > 0 {
		return context.WithTimeout(ctx, e.stageTimeout)
	}
	return context.WithCancel(ctx)
}

func (e *Engine) recognize(ctx context.Context, clip *audio.Clip) (recognizer.Result, error) {
	ctx, span := observe.StartSpan(ctx, "assess.recognize")
	defer span.End()
	sctx, cancel := e.stage(ctx)
	defer cancel()

	start := time.Now()
	res, err := e.recognizer.impl.Recognize(sctx, clip)
	e.metrics.RecordStage(ctx, observe.StageRecognize, time.Since(start).Seconds())
	if err != nil {
		e.providerFailed(ctx, e.recognizer.name, "recognizer")
		return recognizer.Result{}, fmt.Errorf("assess: recognize: %w", err)
	}
	e.metrics.RecordProviderRequest(ctx, e.recognizer.name, "recognizer", "ok")
	if len(res.Words) == 0 {
		return recognizer.Result{}, ErrNoSpeech
	}
	span.SetAttributes(attribute.Int("recognized.words", len(res.Words)))
	return res, nil
}

func (e *Engine) providerFailed(ctx context.Context, name, kind string) {
	e.metrics.RecordProviderRequest(ctx, name, kind, "error")
	e.metrics.RecordProviderError(ctx, name, kind)
}
