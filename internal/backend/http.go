package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"genaid/pkg/types"
)

// Option clamping bounds and defaults for OpenAI-compatible runtimes.
const (
	minTemperature   = 0.0
	maxTemperature   = 2.0
	maxTopK          = 128
	defaultMaxTokens = 512
)

// HTTPConfig configures one kind's runtime endpoint.
type HTTPConfig struct {
	BaseURL string
	APIKey  string
	// Model name passed through to the completions endpoint; may be empty
	// when the runtime serves a single model.
	Model string
	// System prompt prepended by the runtime for this kind.
	SystemPrompt string
	// ReqTimeout bounds a single generation request (0 = none).
	ReqTimeout time.Duration
	// ConnectTimeout bounds dialing the runtime.
	ConnectTimeout time.Duration
	// PollInterval between health polls while the model is loading.
	PollInterval time.Duration

	Logger zerolog.Logger
}

// HTTP talks to an OpenAI-compatible completions runtime over HTTP.
type HTTP struct {
	baseURL      string
	apiKey       string
	model        string
	systemPrompt string
	reqTimeout   time.Duration
	pollInterval time.Duration
	client       *http.Client
	log          zerolog.Logger
}

var _ Backend = (*HTTP)(nil)

// NewHTTP constructs a runtime-backed Backend.
func NewHTTP(cfg HTTPConfig) *HTTP {
	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 5 * time.Second
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 250 * time.Millisecond
	}
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	// Client timeout stays 0: every request carries a context deadline
	// instead, so streaming responses are not cut off mid-body.
	return &HTTP{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		model:        cfg.Model,
		systemPrompt: cfg.SystemPrompt,
		reqTimeout:   cfg.ReqTimeout,
		pollInterval: pollInterval,
		client:       &http.Client{Transport: tr, Timeout: 0},
		log:          cfg.Logger,
	}
}

// healthStatus is the subset of the runtime's /health body we care about.
type healthStatus struct {
	Status   string  `json:"status"`
	Progress float64 `json:"progress"`
}

// probeOnce performs one /health round trip.
func (b *HTTP) probeOnce(ctx context.Context) (healthStatus, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/health", nil)
	if err != nil {
		return healthStatus{}, 0, err
	}
	b.authorize(req)
	resp, err := b.client.Do(req)
	if err != nil {
		return healthStatus{}, 0, err
	}
	defer resp.Body.Close()
	var hs healthStatus
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = json.Unmarshal(body, &hs)
	return hs, resp.StatusCode, nil
}

// ProbeAvailability maps the runtime's health endpoint onto availability.
// 200 means ready; 503 while the model loads maps to fetching/fetch-needed;
// auth rejections and anything else map to unavailable. Transport errors
// are returned so the caller can fail safe.
func (b *HTTP) ProbeAvailability(ctx context.Context) (types.Availability, error) {
	hs, code, err := b.probeOnce(ctx)
	if err != nil {
		return types.AvailabilityUnavailable, err
	}
	switch {
	case code >= 200 && code < 300:
		return types.AvailabilityReady, nil
	case code == http.StatusServiceUnavailable:
		if strings.Contains(strings.ToLower(hs.Status), "loading") {
			return types.AvailabilityFetching, nil
		}
		return types.AvailabilityFetchNeeded, nil
	default:
		return types.AvailabilityUnavailable, nil
	}
}

// clampOptions applies runtime bounds and fills defaults. The result is the
// negotiated baseline reported by the session.
func (b *HTTP) clampOptions(opts types.Options) types.Options {
	if opts.Temperature < minTemperature {
		opts.Temperature = minTemperature
	}
	if opts.Temperature > maxTemperature {
		opts.Temperature = maxTemperature
	}
	if opts.TopK < 0 {
		opts.TopK = 0
	}
	if opts.TopK > maxTopK {
		opts.TopK = maxTopK
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = b.systemPrompt
	}
	return opts
}

// Create waits for the runtime to be serving, reporting load progress, and
// returns a session bound to the negotiated options.
func (b *HTTP) Create(ctx context.Context, opts types.Options, onProgress ProgressFunc) (Session, error) {
	negotiated := b.clampOptions(opts)
	// Synthesized floor for runtimes whose health body carries no progress
	// field, so callers still observe a monotone sequence.
	synthetic := 0.0
	for {
		hs, code, err := b.probeOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, ErrFetchFailed(fmt.Sprintf("runtime unreachable: %v", err))
		}
		switch {
		case code >= 200 && code < 300:
			if onProgress != nil {
				onProgress(1)
			}
			return &httpSession{backend: b, opts: negotiated}, nil
		case code == http.StatusUnauthorized || code == http.StatusForbidden:
			return nil, ErrCapabilityRefused(fmt.Sprintf("runtime refused session: %s", http.StatusText(code)))
		case code == http.StatusServiceUnavailable:
			frac := hs.Progress
			if frac <= 0 {
				// cap synthesized progress below 1 so only readiness completes it
				synthetic += (0.9 - synthetic) / 4
				frac = synthetic
			}
			if onProgress != nil && ctx.Err() == nil {
				onProgress(frac)
			}
		default:
			return nil, ErrFetchFailed(fmt.Sprintf("runtime health returned %s", http.StatusText(code)))
		}
		select {
		case <-time.After(b.pollInterval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (b *HTTP) authorize(req *http.Request) {
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}
}

// httpSession is a live session against one runtime. The runtime itself is
// stateless per request; the session carries the negotiated options and a
// disposed flag.
type httpSession struct {
	backend *HTTP
	opts    types.Options

	mu       sync.Mutex
	disposed bool
}

var _ Session = (*httpSession)(nil)

func (s *httpSession) Options() types.Options { return s.opts }

func (s *httpSession) Dispose() error {
	s.mu.Lock()
	s.disposed = true
	s.mu.Unlock()
	return nil
}

func (s *httpSession) checkLive() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return errors.New("session disposed")
	}
	return nil
}

// completionRequest is the payload for /v1/completions.
type completionRequest struct {
	Model        string  `json:"model,omitempty"`
	Prompt       string  `json:"prompt"`
	SystemPrompt string  `json:"system_prompt,omitempty"`
	MaxTokens    int     `json:"max_tokens,omitempty"`
	Temperature  float64 `json:"temperature,omitempty"`
	TopK         int     `json:"top_k,omitempty"`
	Stream       bool    `json:"stream"`
}

// completionResponse is the minimal non-streaming response subset.
type completionResponse struct {
	Choices []struct {
		Text string `json:"text"`
	} `json:"choices"`
	Content string `json:"content"`
}

// streamChunk is the minimal subset of one streamed SSE event.
type streamChunk struct {
	Choices []struct {
		Text  string `json:"text"`
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Content string `json:"content"`
	Stop    bool   `json:"stop"`
}

func (s *httpSession) newCompletionRequest(ctx context.Context, text string, stream bool) (*http.Request, error) {
	payload := completionRequest{
		Model:        s.backend.model,
		Prompt:       text,
		SystemPrompt: s.opts.SystemPrompt,
		MaxTokens:    s.opts.MaxTokens,
		Temperature:  s.opts.Temperature,
		TopK:         s.opts.TopK,
		Stream:       stream,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.backend.baseURL+"/v1/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	s.backend.authorize(req)
	return req, nil
}

func (s *httpSession) Generate(ctx context.Context, text string) (string, error) {
	if err := s.checkLive(); err != nil {
		return "", err
	}
	if s.backend.reqTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.backend.reqTimeout)
		defer cancel()
	}
	req, err := s.newCompletionRequest(ctx, text, false)
	if err != nil {
		return "", err
	}
	resp, err := s.backend.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", ErrGenerationFailed(fmt.Sprintf("completion request: %v", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", ErrGenerationFailed(fmt.Sprintf("runtime http error: %s: %s", resp.Status, string(b)))
	}
	var cr completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", ErrGenerationFailed(fmt.Sprintf("decode completion: %v", err))
	}
	if len(cr.Choices) > 0 {
		return cr.Choices[0].Text, nil
	}
	return cr.Content, nil
}

// GenerateStream parses the runtime's SSE stream line by line and forwards
// each fragment in production order.
func (s *httpSession) GenerateStream(ctx context.Context, text string, onFragment func(string) error) error {
	if err := s.checkLive(); err != nil {
		return err
	}
	if s.backend.reqTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.backend.reqTimeout)
		defer cancel()
	}
	req, err := s.newCompletionRequest(ctx, text, true)
	if err != nil {
		return err
	}
	resp, err := s.backend.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrGenerationFailed(fmt.Sprintf("completion request: %v", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return ErrGenerationFailed(fmt.Sprintf("runtime http error: %s: %s", resp.Status, string(b)))
	}

	r := bufio.NewReader(resp.Body)
	for {
		line, err := r.ReadString('\n')
		if len(line) > 0 {
			if frag, done, ok := parseStreamLine(line); ok {
				if done {
					return nil
				}
				if frag != "" {
					if cbErr := onFragment(frag); cbErr != nil {
						return cbErr
					}
				}
			} else if strings.TrimSpace(line) != "" {
				s.backend.log.Debug().Str("line", strings.TrimSpace(line)).Msg("unknown stream line")
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return ErrGenerationFailed(fmt.Sprintf("stream read: %v", err))
		}
	}
}

// parseStreamLine extracts a fragment from one SSE "data:" line. Returns
// ok=false for heartbeats and lines it cannot interpret.
func parseStreamLine(line string) (frag string, done bool, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", false, true
	}
	if !strings.HasPrefix(strings.ToLower(line), "data:") {
		return "", false, false
	}
	data := strings.TrimSpace(line[len("data:"):])
	if data == "[DONE]" {
		return "", true, true
	}
	var chunk streamChunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		return "", false, false
	}
	if len(chunk.Choices) > 0 {
		c := chunk.Choices[0]
		if c.Text != "" {
			return c.Text, false, true
		}
		if c.Delta.Content != "" {
			return c.Delta.Content, false, true
		}
		if c.FinishReason != "" {
			return "", true, true
		}
		return "", false, true
	}
	// Some runtimes stream bare objects with a content field per line.
	if chunk.Content != "" || chunk.Stop {
		return chunk.Content, chunk.Stop, true
	}
	return "", false, false
}
