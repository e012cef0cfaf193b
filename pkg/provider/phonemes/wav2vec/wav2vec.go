// Package wav2vec is a client for a wav2vec2 phoneme recognition service.
//
// The service accepts a WAV upload at POST /phonemes (multipart field
// "audio", optional "start"/"end" form fields in seconds) and answers with
// {"phonemes": [...]} or {"phonemes": "a b c"}. Errors come back as
// {"error": "..."}. GET /health reports readiness.
//
// The service returns labels only, so the client spreads them evenly over
// the requested window to produce approximate timestamps.
package wav2vec

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/orato/pkg/audio"
	"github.com/MrWong99/orato/pkg/provider/phonemes"
)

const defaultTimeout = 60 * time.Second

// Compile-time assertion that Client implements phonemes.SpanExtractor.
var _ phonemes.SpanExtractor = (*Client)(nil)

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. The default client times out
// after 60 seconds.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// Client talks to the phoneme service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Client for the service at baseURL (e.g.,
// "http://localhost:8001").
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("wav2vec: baseURL must not be empty")
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Extract recognises the phones of the whole clip.
func (c *Client) Extract(ctx context.Context, clip *audio.Clip) ([]phonemes.Timed, error) {
	labels, err := c.request(ctx, clip, nil)
	if err != nil {
		return nil, err
	}
	return phonemes.Spread(labels, 0, clip.Seconds()), nil
}

// ExtractSpan recognises the phones between start and end seconds.
func (c *Client) ExtractSpan(ctx context.Context, clip *audio.Clip, start, end float64) ([]phonemes.Timed, error) {
	if end <= start {
		return nil, nil
	}
	labels, err := c.request(ctx, clip, map[string]string{
		"start": strconv.FormatFloat(start, 'f', 3, 64),
		"end":   strconv.FormatFloat(end, 'f', 3, 64),
	})
	if err != nil {
		return nil, err
	}
	return phonemes.Spread(labels, start, end), nil
}

// Health checks GET /health.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("wav2vec: create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("wav2vec: health: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("wav2vec: health returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) request(ctx context.Context, clip *audio.Clip, fields map[string]string) ([]string, error) {
	if clip == nil || len(clip.WAV) == 0 {
		return nil, errors.New("wav2vec: clip has no WAV data")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("audio", clip.Name+".wav")
	if err != nil {
		return nil, fmt.Errorf("wav2vec: create form file: %w", err)
	}
	if _, err := fw.Write(clip.WAV); err != nil {
		return nil, fmt.Errorf("wav2vec: write wav data: %w", err)
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("wav2vec: write %s field: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("wav2vec: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/phonemes", &body)
	if err != nil {
		return nil, fmt.Errorf("wav2vec: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("wav2vec: http request: %w", err)
	}
	defer resp.Body.Close()

	var pr phonemeResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, fmt.Errorf("wav2vec: parse JSON response (HTTP %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("wav2vec: server returned HTTP %d: %s", resp.StatusCode, pr.Error)
	}
	return pr.Phonemes, nil
}

type phonemeResponse struct {
	Phonemes labelList `json:"phonemes"`
	Error    string    `json:"error"`
}

// labelList decodes either a JSON array of labels or a space-separated
// string.
type labelList []string

func (l *labelList) UnmarshalJSON(data []byte) error {
	var arr []string
	if err := json.Unmarshal(data, &arr); err == nil {
		*l = arr
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("phonemes must be a list or a string: %w", err)
	}
	*l = strings.Fields(s)
	return nil
}
