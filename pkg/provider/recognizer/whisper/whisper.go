// Package whisper provides whisper.cpp-backed speech recognizers with word
// timestamps.
//
// [Client] talks to a running whisper-server binary (POST /inference) and
// asks for the verbose JSON response, which carries per-word timings and
// probabilities. [Native] links whisper.cpp directly through its Go bindings
// and splits the output into one segment per word.
//
// Usage:
//
//	c, err := whisper.New("http://localhost:8080", whisper.WithLanguage("en"))
//	res, err := c.Recognize(ctx, clip)
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/orato/pkg/audio"
	"github.com/MrWong99/orato/pkg/provider/recognizer"
)

const (
	defaultLanguage = "en"
	defaultTimeout  = 60 * time.Second
)

// Compile-time assertion that Client implements recognizer.Recognizer.
var _ recognizer.Recognizer = (*Client)(nil)

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base.en", "small"). When empty the server uses whichever model it
// was started with.
func WithModel(model string) Option {
	return func(c *Client) {
		c.model = model
	}
}

// WithLanguage sets the language code sent to the server (e.g., "en").
// Defaults to "en".
func WithLanguage(lang string) Option {
	return func(c *Client) {
		c.language = lang
	}
}

// WithHTTPClient replaces the HTTP client. The default client times out
// after 60 seconds.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// Client implements recognizer.Recognizer backed by a whisper.cpp HTTP
// server.
type Client struct {
	serverURL  string
	model      string
	language   string
	httpClient *http.Client
}

// New creates a Client for the whisper.cpp server at serverURL (e.g.,
// "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Client, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	c := &Client{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Recognize uploads the clip's WAV bytes and returns the timed words.
func (c *Client) Recognize(ctx context.Context, clip *audio.Clip) (recognizer.Result, error) {
	if clip == nil || len(clip.WAV) == 0 {
		return recognizer.Result{}, errors.New("whisper: clip has no WAV data")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", clip.Name+".wav")
	if err != nil {
		return recognizer.Result{}, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(clip.WAV); err != nil {
		return recognizer.Result{}, fmt.Errorf("whisper: write wav data: %w", err)
	}

	fields := map[string]string{
		"response_format": "verbose_json",
		"word_timestamps": "true",
		"temperature":     "0",
	}
	if c.language != "" {
		fields["language"] = c.language
	}
	if c.model != "" {
		fields["model"] = c.model
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return recognizer.Result{}, fmt.Errorf("whisper: write %s field: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return recognizer.Result{}, fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+"/inference", &body)
	if err != nil {
		return recognizer.Result{}, fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return recognizer.Result{}, fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return recognizer.Result{}, fmt.Errorf("whisper: server returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var vr verboseResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return recognizer.Result{}, fmt.Errorf("whisper: parse JSON response: %w", err)
	}
	words := vr.words()
	return recognizer.Result{Words: words, Confidence: recognizer.MeanConfidence(words)}, nil
}

// ---- response decoding ------------------------------------------------------

type verboseWord struct {
	Word        string   `json:"word"`
	Start       float64  `json:"start"`
	End         float64  `json:"end"`
	Probability *float64 `json:"probability"`
}

type verboseSegment struct {
	Text  string        `json:"text"`
	Start float64       `json:"start"`
	End   float64       `json:"end"`
	Words []verboseWord `json:"words"`
}

type verboseResponse struct {
	Text     string           `json:"text"`
	Segments []verboseSegment `json:"segments"`
	Words    []verboseWord    `json:"words"`
}

// words flattens the response into timed words. Segments without word
// detail have their text spread evenly over the segment span.
func (vr verboseResponse) words() []recognizer.Word {
	var out []recognizer.Word
	add := func(ws []verboseWord) {
		for _, w := range ws {
			t := strings.TrimSpace(w.Word)
			if t == "" {
				continue
			}
			out = append(out, recognizer.Word{Text: t, Start: w.Start, End: w.End, Confidence: w.Probability})
		}
	}

	for _, seg := range vr.Segments {
		if len(seg.Words) > 0 {
			add(seg.Words)
			continue
		}
		out = append(out, spread(seg.Text, seg.Start, seg.End)...)
	}
	if len(out) == 0 {
		add(vr.Words)
	}
	return out
}

// spread assigns equal time slots to the whitespace-separated words of text.
func spread(text string, start, end float64) []recognizer.Word {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil
	}
	step := max(0, end-start) / float64(len(fields))
	out := make([]recognizer.Word, len(fields))
	for i, f := range fields {
		out[i] = recognizer.Word{
			Text:  f,
			Start: start + float64(i)*step,
			End:   start + float64(i+1)*step,
		}
	}
	return out
}
