package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	retry "github.com/sethvargo/go-retry"

	"github.com/ibeckermayer/feedsieve/internal/config"
	"github.com/ibeckermayer/feedsieve/internal/types"
)

// RemoteProvider posts each post to a classification service that holds
// the model credentials itself
type RemoteProvider struct {
	url      string
	client   *http.Client
	timeout  time.Duration
	attempts uint64
	backoff  func() retry.Backoff
}

// RemoteOption configures a RemoteProvider
type RemoteOption func(*RemoteProvider)

// WithBackoff replaces the exponential schedule (1s, 2s, 4s, ...)
func WithBackoff(b func() retry.Backoff) RemoteOption {
	return func(p *RemoteProvider) {
		p.backoff = b
	}
}

func WithHTTPClient(c *http.Client) RemoteOption {
	return func(p *RemoteProvider) {
		p.client = c
	}
}

// NewRemoteProvider creates a client for cfg.RemoteURL. Each attempt gets
// TimeoutSeconds; MaxRetries counts attempts, not re-tries.
func NewRemoteProvider(cfg config.AnalysisConfig, opts ...RemoteOption) *RemoteProvider {
	attempts := cfg.MaxRetries
	if attempts < 1 {
		attempts = 1
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	p := &RemoteProvider{
		url:      cfg.RemoteURL,
		client:   http.DefaultClient,
		timeout:  timeout,
		attempts: uint64(attempts),
		backoff: func() retry.Backoff {
			return retry.NewExponential(1 * time.Second)
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *RemoteProvider) Name() string  { return config.ProviderRemote }
func (p *RemoteProvider) Model() string { return p.url }

// remoteRequest is the service's wire format
type remoteRequest struct {
	TweetText string   `json:"tweetText"`
	TweetID   string   `json:"tweetId"`
	Author    string   `json:"author,omitempty"`
	Images    []string `json:"images,omitempty"`
	Criteria  string   `json:"criteria,omitempty"`
}

type remoteError struct {
	Error string `json:"error"`
}

// Classify posts req, retrying transport failures, timeouts and 5xx/429
// answers with exponential backoff
func (p *RemoteProvider) Classify(ctx context.Context, req types.ClassifyRequest, criteria config.CriteriaConfig) (Outcome, error) {
	if req.Criteria == "" {
		req.Criteria = criteria.Filter
	}
	body, err := json.Marshal(remoteRequest{
		TweetText: req.Text,
		TweetID:   req.CorrelationID,
		Author:    req.Author,
		Images:    req.Images,
		Criteria:  req.Criteria,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	out := Outcome{Prompt: req.Criteria}
	b := retry.WithMaxRetries(p.attempts-1, p.backoff())
	err = retry.Do(ctx, b, func(ctx context.Context) error {
		raw, err := p.post(ctx, body)
		if err != nil {
			return err
		}
		out.RawResponse = raw
		return nil
	})
	if err != nil {
		return out, fmt.Errorf("failed to reach classification service after %d attempts: %w", p.attempts, err)
	}

	out.Category, out.Reason, err = ParseResponse(out.RawResponse)
	return out, err
}

func (p *RemoteProvider) post(ctx context.Context, body []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", retry.RetryableError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", retry.RetryableError(fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("service returned status %d: %s", resp.StatusCode, serviceError(data))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return "", retry.RetryableError(err)
		}
		return "", err
	}
	return string(data), nil
}

func serviceError(body []byte) string {
	var e remoteError
	if err := json.Unmarshal(body, &e); err == nil && e.Error != "" {
		return e.Error
	}
	return string(bytes.TrimSpace(body))
}
