package audio

import "math"

// Framing parameters for the quality measurement.
const (
	defaultFrameMs          = 30.0
	defaultHopMs            = 10.0
	defaultSilenceThreshold = 0.01
)

// Quality summarises how much usable speech a clip contains.
type Quality struct {
	// SilenceRatio is the fraction of analysis frames whose RMS is below the
	// silence threshold.
	SilenceRatio float64 `json:"silence_ratio"`

	// RMSMean is the mean frame RMS.
	RMSMean float64 `json:"rms_mean"`

	// DurationS is the clip length in seconds.
	DurationS float64 `json:"duration_s"`
}

// MeasureOption tweaks the framing used by Measure.
type MeasureOption func(*measureConfig)

type measureConfig struct {
	frameMs   float64
	hopMs     float64
	threshold float64
}

// WithSilenceThreshold sets the frame RMS below which a frame counts as
// silent. Default: 0.01.
func WithSilenceThreshold(rms float64) MeasureOption {
	return func(c *measureConfig) { c.threshold = rms }
}

// WithFraming sets the analysis frame and hop length in milliseconds.
// Defaults: 30 ms frames, 10 ms hop.
func WithFraming(frameMs, hopMs float64) MeasureOption {
	return func(c *measureConfig) {
		c.frameMs = frameMs
		c.hopMs = hopMs
	}
}

// Measure computes the silence ratio, mean RMS and duration of c. An empty
// clip is reported as entirely silent.
func Measure(c *Clip, opts ...MeasureOption) Quality {
	cfg := measureConfig{frameMs: defaultFrameMs, hopMs: defaultHopMs, threshold: defaultSilenceThreshold}
	for _, o := range opts {
		o(&cfg)
	}
	if c == nil || len(c.Samples) == 0 || c.SampleRate <= 0 {
		return Quality{SilenceRatio: 1}
	}

	y := c.Samples
	dur := float64(len(y)) / float64(c.SampleRate)
	frameLen := max(1, int(float64(c.SampleRate)*cfg.frameMs/1000))
	hopLen := max(1, int(float64(c.SampleRate)*cfg.hopMs/1000))

	if len(y) < frameLen {
		r := rms(y)
		q := Quality{RMSMean: r, DurationS: dur}
		if r < cfg.threshold {
			q.SilenceRatio = 1
		}
		return q
	}

	frames := 1 + (len(y)-frameLen)/hopLen
	var silent int
	var sum float64
	for i := range frames {
		start := i * hopLen
		r := rms(y[start : start+frameLen])
		sum += r
		if r < cfg.threshold {
			silent++
		}
	}
	return Quality{
		SilenceRatio: float64(silent) / float64(frames),
		RMSMean:      sum / float64(frames),
		DurationS:    dur,
	}
}

func rms(frame []float32) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sq float64
	for _, s := range frame {
		sq += float64(s) * float64(s)
	}
	return math.Sqrt(sq / float64(len(frame)))
}
