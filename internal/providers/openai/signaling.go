package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"realtalk/internal/domain"
)

const (
	defaultAPIBaseURL = "https://api.openai.com/v1"
	defaultModel      = "gpt-4o-realtime-preview"
	maxAnswerBytes    = 1 << 20
	maxErrorBodyBytes = 2048
)

var ErrMissingAPIKey = errors.New("OPENAI_API_KEY is not configured")

// Config controls the realtime session endpoint.
type Config struct {
	APIKey     string
	APIBaseURL string
	Model      string
	Timeout    time.Duration
}

// Provider implements ports.SessionEndpoint against the OpenAI realtime API.
type Provider struct {
	cfg    Config
	client *http.Client
	logger *zap.SugaredLogger
}

func NewProvider(cfg Config, client *http.Client, logger *zap.SugaredLogger) *Provider {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultAPIBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Provider{cfg: cfg, client: client, logger: logger}
}

// Exchange posts the offer SDP and returns the answer SDP.
func (p *Provider) Exchange(ctx context.Context, offer string) (string, error) {
	if strings.TrimSpace(p.cfg.APIKey) == "" {
		return "", &domain.NegotiationError{Err: ErrMissingAPIKey}
	}

	endpoint, err := buildRealtimeURL(p.cfg)
	if err != nil {
		return "", &domain.NegotiationError{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(offer))
	if err != nil {
		return "", &domain.NegotiationError{Err: fmt.Errorf("failed to build session request: %w", err)}
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	req.Header.Set("Content-Type", "application/sdp")

	started := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return "", &domain.NegotiationError{Err: fmt.Errorf("failed to reach realtime endpoint: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		p.logger.Warnw("realtime endpoint rejected offer", "status", resp.StatusCode, "elapsed", time.Since(started))
		return "", &domain.NegotiationError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	answer, err := io.ReadAll(io.LimitReader(resp.Body, maxAnswerBytes))
	if err != nil {
		return "", &domain.NegotiationError{Status: resp.StatusCode, Err: fmt.Errorf("failed to read answer: %w", err)}
	}
	if strings.TrimSpace(string(answer)) == "" {
		return "", &domain.NegotiationError{Status: resp.StatusCode, Err: errors.New("empty answer")}
	}

	p.logger.Debugw("realtime endpoint answered", "status", resp.StatusCode, "elapsed", time.Since(started))
	return string(answer), nil
}

func buildRealtimeURL(cfg Config) (string, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	if base == "" {
		base = defaultAPIBaseURL
	}

	realtimeURL, err := url.Parse(base + "/realtime")
	if err != nil {
		return "", fmt.Errorf("invalid OpenAI API base URL: %w", err)
	}
	if realtimeURL.Scheme != "http" && realtimeURL.Scheme != "https" {
		return "", fmt.Errorf("invalid OpenAI API base URL scheme %q", realtimeURL.Scheme)
	}

	query := realtimeURL.Query()
	query.Set("model", cfg.Model)
	realtimeURL.RawQuery = query.Encode()
	return realtimeURL.String(), nil
}
