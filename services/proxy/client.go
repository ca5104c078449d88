// Package proxy talks to the remote chat, image, transcription, synthesis and
// health endpoints.
package proxy

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/sashabaranov/go-openai"

	"chatkit/core"
)

// maxErrorBody bounds how much of a failed response body is kept.
const maxErrorBody = 4096

var ErrNotConfigured = errors.New("proxy: base URL not set")

// Config holds configuration for the proxy client
type Config struct {
	BaseURL       string        `json:"base_url"`       // Base URL of the proxy; the /chat, /image, /stt and /health paths hang off it.
	TTSURL        string        `json:"tts_url"`        // Full URL of the remote speech synthesis endpoint.
	HealthTimeout time.Duration `json:"health_timeout"` // Upper bound on a single liveness check.
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		HealthTimeout: 5 * time.Second,
	}
}

// StatusError is a non-2xx response, or a 2xx response without a readable body.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("proxy: HTTP %d: %s", e.StatusCode, e.Body)
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
}

// NewChatRequest converts a selected turn window into the wire request.
func NewChatRequest(model string, turns []core.Turn) ChatRequest {
	msgs := make([]ChatMessage, 0, len(turns))
	for _, t := range turns {
		msgs = append(msgs, ChatMessage{Role: convertRole(t.Role), Content: t.Content})
	}
	return ChatRequest{Model: model, Messages: msgs}
}

func convertRole(role core.Role) string {
	switch role {
	case core.RoleSystem:
		return openai.ChatMessageRoleSystem
	case core.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}

type Client struct {
	mu     sync.RWMutex
	config Config
	http   *http.Client
	logger *core.Logger
}

func NewClient(config Config, httpClient *http.Client, logger *core.Logger) *Client {
	if httpClient == nil {
		// no overall timeout: chat responses stream for as long as the reply takes
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = core.GetLogger()
	}
	if config.HealthTimeout <= 0 {
		config.HealthTimeout = DefaultConfig().HealthTimeout
	}
	config.BaseURL = normalizeBase(config.BaseURL)
	return &Client{
		config: config,
		http:   httpClient,
		logger: logger.With(map[string]interface{}{"component": "proxy"}),
	}
}

func normalizeBase(u string) string {
	return strings.TrimRight(strings.TrimSpace(u), "/")
}

func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config.BaseURL
}

func (c *Client) SetBaseURL(u string) {
	c.mu.Lock()
	c.config.BaseURL = normalizeBase(u)
	c.mu.Unlock()
}

func (c *Client) TTSURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config.TTSURL
}

func (c *Client) SetTTSURL(u string) {
	c.mu.Lock()
	c.config.TTSURL = strings.TrimSpace(u)
	c.mu.Unlock()
}

func (c *Client) endpoint(path string) (string, error) {
	base := c.BaseURL()
	if base == "" {
		return "", ErrNotConfigured
	}
	return base + path, nil
}

func (c *Client) postJSON(ctx context.Context, url string, body interface{}) (*http.Response, error) {
	payload, err := sonic.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("proxy: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("proxy: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("proxy: %s %s: %w", req.Method, req.URL.Path, err)
	}
	if err := checkResponse(resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// checkResponse consumes and closes resp when it is not usable.
func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if resp.Body == nil || resp.Body == http.NoBody {
			return &StatusError{StatusCode: resp.StatusCode, Body: "empty response body"}
		}
		return nil
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

// StreamChat posts the request and returns the streaming body. The caller
// owns and must close it.
func (c *Client) StreamChat(ctx context.Context, chat ChatRequest) (io.ReadCloser, error) {
	url, err := c.endpoint("/chat")
	if err != nil {
		return nil, err
	}
	c.logger.With(map[string]interface{}{"model": chat.Model, "messages": len(chat.Messages)}).Debug("sending chat request")
	resp, err := c.postJSON(ctx, url, chat)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// GenerateImage requests a scene image. Base64 payloads are decoded; URL
// payloads are fetched.
func (c *Client) GenerateImage(ctx context.Context, prompt, size string) (core.Image, error) {
	url, err := c.endpoint("/image")
	if err != nil {
		return core.Image{}, err
	}
	resp, err := c.postJSON(ctx, url, openai.ImageRequest{Prompt: prompt, Size: size})
	if err != nil {
		return core.Image{}, err
	}
	defer resp.Body.Close()

	var out openai.ImageResponse
	if err := sonic.ConfigDefault.NewDecoder(resp.Body).Decode(&out); err != nil {
		return core.Image{}, fmt.Errorf("proxy: decode image response: %w", err)
	}
	if len(out.Data) == 0 {
		return core.Image{}, errors.New("proxy: image response has no data")
	}

	img := core.Image{Prompt: prompt, URL: out.Data[0].URL}
	switch {
	case out.Data[0].B64JSON != "":
		img.Data, err = base64.StdEncoding.DecodeString(out.Data[0].B64JSON)
		if err != nil {
			return core.Image{}, fmt.Errorf("proxy: decode image payload: %w", err)
		}
	case img.URL != "":
		img.Data, err = c.fetch(ctx, img.URL)
		if err != nil {
			return core.Image{}, err
		}
	default:
		return core.Image{}, errors.New("proxy: image response has neither b64_json nor url")
	}
	img.MimeType = http.DetectContentType(img.Data)
	return img, nil
}

func (c *Client) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("proxy: build request: %w", err)
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("proxy: read %s: %w", url, err)
	}
	return data, nil
}

// Transcribe uploads one recording as the multipart "file" field and returns
// the recognized text.
func (c *Client) Transcribe(ctx context.Context, filename, mimeType string, audio []byte) (string, error) {
	url, err := c.endpoint("/stt")
	if err != nil {
		return "", err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", mimeType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("proxy: build upload: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("proxy: build upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("proxy: build upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return "", fmt.Errorf("proxy: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := c.do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out openai.AudioResponse
	if err := sonic.ConfigDefault.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("proxy: decode transcription: %w", err)
	}
	return strings.TrimSpace(out.Text), nil
}

type synthesizeRequest struct {
	Text string `json:"text"`
}

// Synthesize posts text to the speech endpoint and returns the audio bytes
// with their declared content type.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, string, error) {
	url := c.TTSURL()
	if url == "" {
		return nil, "", errors.New("proxy: speech URL not set")
	}
	resp, err := c.postJSON(ctx, url, synthesizeRequest{Text: text})
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("proxy: read speech: %w", err)
	}
	return audio, resp.Header.Get("Content-Type"), nil
}

// Health checks GET {base}/health.
func (c *Client) Health(ctx context.Context) core.HealthStatus {
	url, err := c.endpoint("/health")
	if err != nil {
		return core.HealthUnconfigured
	}
	ctx, cancel := context.WithTimeout(ctx, c.config.HealthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return core.HealthOffline
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.With(map[string]interface{}{"error": err}).Debug("health check failed")
		return core.HealthOffline
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return core.HealthConnected
	}
	return core.HealthUnavailable
}
