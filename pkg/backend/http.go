package backend

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

const (
	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 60 * time.Second

	// DefaultVoice is the Kokoro voice used by /tts/generate.
	DefaultVoice = "af_heart"

	// DefaultSpeed is the TTS speaking rate.
	DefaultSpeed = 1.0
)

// HTTPClient talks to the Robo FastAPI service.
type HTTPClient struct {
	client     *http.Client
	baseURL    string
	timeout    time.Duration
	maxRetries int
	voice      string
	speed      float64
}

var _ Backend = (*HTTPClient)(nil)

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// WithTimeout sets the request timeout. It is ignored when WithHTTPClient
// is also given.
func WithTimeout(timeout time.Duration) Option {
	return func(c *HTTPClient) {
		c.timeout = timeout
	}
}

// WithRetry sets the maximum number of retries for transient failures.
// The default is 0: every call is attempted once.
func WithRetry(maxRetries int) Option {
	return func(c *HTTPClient) {
		c.maxRetries = maxRetries
	}
}

// WithVoice sets the TTS voice and speed.
func WithVoice(voice string, speed float64) Option {
	return func(c *HTTPClient) {
		c.voice = voice
		c.speed = speed
	}
}

// NewHTTP returns a client for the service at baseURL, e.g.
// "http://localhost:8000".
func NewHTTP(baseURL string, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: DefaultTimeout,
		voice:   DefaultVoice,
		speed:   DefaultSpeed,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.client == nil {
		c.client = &http.Client{Timeout: c.timeout}
	}
	return c
}

// BaseURL returns the service URL.
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

func (c *HTTPClient) SaveProfile(ctx context.Context, p Profile) error {
	return c.request(ctx, "/user-context/", p, nil)
}

func (c *HTTPClient) DetectLanguage(ctx context.Context, text string) (string, error) {
	var resp struct {
		LanguageCode string `json:"languageCode"`
	}
	if err := c.request(ctx, "/detect-language/", map[string]string{"text": text}, &resp); err != nil {
		return "", err
	}
	if resp.LanguageCode == "" {
		return "", errors.New("backend: empty languageCode")
	}
	return resp.LanguageCode, nil
}

func (c *HTTPClient) Query(ctx context.Context, req QueryRequest) (*Answer, error) {
	body := struct {
		Question  string `json:"question"`
		EnableTTS bool   `json:"enable_tts"`
	}{req.Question, req.WantAudio}
	var resp struct {
		Answer string `json:"answer"`
		Audio  string `json:"audio"`
	}
	if err := c.request(ctx, "/query/", body, &resp); err != nil {
		return nil, err
	}
	ans := &Answer{Text: resp.Answer}
	if resp.Audio != "" {
		audio, err := base64.StdEncoding.DecodeString(resp.Audio)
		if err != nil {
			return nil, fmt.Errorf("backend: decode audio: %w", err)
		}
		ans.Audio = audio
		ans.AudioMIME = "audio/mpeg"
	}
	return ans, nil
}

func (c *HTTPClient) Synthesize(ctx context.Context, text string) (*Speech, error) {
	body := struct {
		Text       string  `json:"text"`
		Voice      string  `json:"voice"`
		Speed      float64 `json:"speed"`
		ReturnType string  `json:"return_type"`
	}{text, c.voice, c.speed, "stream"}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}
	var sp *Speech
	err = c.retry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tts/generate", bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("do request: %w", err)
		}
		defer resp.Body.Close()
		audio, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response body: %w", err)
		}
		if resp.StatusCode/100 != 2 {
			return parseError(audio, resp.StatusCode)
		}
		if len(audio) == 0 {
			return errors.New("backend: empty audio")
		}
		mime := resp.Header.Get("Content-Type")
		if mime == "" || strings.HasPrefix(mime, "application/octet-stream") {
			mime = "audio/wav"
		}
		sp = &Speech{Audio: audio, MIME: mime}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sp, nil
}

func (c *HTTPClient) AnalyzeImage(ctx context.Context, img Image) (string, error) {
	var resp struct {
		Analysis string `json:"analysis"`
	}
	err := c.retry(ctx, func() error {
		return c.uploadImage(ctx, img, &resp)
	})
	if err != nil {
		return "", err
	}
	return resp.Analysis, nil
}

// request posts body as JSON to path and decodes the response into result.
func (c *HTTPClient) request(ctx context.Context, path string, body, result any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}
	return c.retry(ctx, func() error {
		return c.doRequest(ctx, path, data, result)
	})
}

// retry runs fn until it succeeds, fails permanently or maxRetries is
// exhausted, backing off 1s, 2s, 4s, ...
func (c *HTTPClient) retry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if apiErr, ok := AsError(err); ok && !apiErr.Retryable() {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
	}
	return lastErr
}

func (c *HTTPClient) doRequest(ctx context.Context, path string, data []byte, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()
	return handleResponse(resp, result)
}

// uploadImage streams img as the multipart field "image".
func (c *HTTPClient) uploadImage(ctx context.Context, img Image, result any) error {
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	errCh := make(chan error, 1)
	go func() {
		defer pw.Close()
		filename := img.Filename
		if filename == "" {
			filename = "image"
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename="%s"`, quoteEscaper.Replace(filename)))
		ct := img.MIMEType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)
		part, err := writer.CreatePart(h)
		if err != nil {
			errCh <- fmt.Errorf("create form file: %w", err)
			pw.CloseWithError(err)
			return
		}
		if _, err := part.Write(img.Data); err != nil {
			errCh <- fmt.Errorf("copy file: %w", err)
			pw.CloseWithError(err)
			return
		}
		if err := writer.Close(); err != nil {
			errCh <- fmt.Errorf("close writer: %w", err)
			pw.CloseWithError(err)
			return
		}
		errCh <- nil
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload-image/", pr)
	if err != nil {
		pr.Close()
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		pr.Close()
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if writeErr := <-errCh; writeErr != nil {
		return writeErr
	}
	return handleResponse(resp, result)
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func handleResponse(resp *http.Response, result any) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return parseError(body, resp.StatusCode)
	}
	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// parseError builds an *Error from a FastAPI error body. Validation
// errors carry a structured detail; it is kept as raw JSON.
func parseError(body []byte, status int) error {
	e := &Error{StatusCode: status}
	var fe struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &fe); err == nil && len(fe.Detail) > 0 {
		var s string
		if json.Unmarshal(fe.Detail, &s) == nil {
			e.Detail = s
		} else {
			e.Detail = string(fe.Detail)
		}
		return e
	}
	e.Detail = strings.TrimSpace(string(body))
	return e
}
