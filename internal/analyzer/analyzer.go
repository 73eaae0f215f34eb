// Package analyzer classifies submitted posts on a pool of worker
// goroutines and hands results back through a delivery callback.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ibeckermayer/feedsieve/internal/analyzer/providers"
	"github.com/ibeckermayer/feedsieve/internal/cache"
	"github.com/ibeckermayer/feedsieve/internal/config"
	"github.com/ibeckermayer/feedsieve/internal/store"
	"github.com/ibeckermayer/feedsieve/internal/types"
)

// ErrQueueFull is returned by Submit when the backlog is at capacity
var ErrQueueFull = errors.New("classification queue full")

// Provider defines the interface for classification backends
type Provider interface {
	Name() string
	Model() string
	Classify(ctx context.Context, req types.ClassifyRequest, criteria config.CriteriaConfig) (providers.Outcome, error)
}

// CriteriaSource supplies the criteria in force at classification time
type CriteriaSource interface {
	Criteria() config.CriteriaConfig
}

// Stats counts classifier activity
type Stats struct {
	Classified int64
	Failed     int64
	CacheHits  int64
	Dropped    int64
}

// Classifier owns the request queue and the worker pool
type Classifier struct {
	provider Provider
	criteria CriteriaSource
	cache    cache.Cache
	deliver  func(types.AnalysisResult)
	workers  int
	queue    chan types.ClassifyRequest
	record   func(store.LLMExchange)
	log      *slog.Logger

	classified atomic.Int64
	failed     atomic.Int64
	cacheHits  atomic.Int64
	dropped    atomic.Int64
}

// Option configures a Classifier
type Option func(*Classifier)

func WithCache(c cache.Cache) Option {
	return func(cl *Classifier) {
		cl.cache = c
	}
}

func WithWorkers(n int) Option {
	return func(cl *Classifier) {
		if n > 0 {
			cl.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(cl *Classifier) {
		if n > 0 {
			cl.queue = make(chan types.ClassifyRequest, n)
		}
	}
}

// WithExchangeRecorder receives every prompt/response pair sent to the provider
func WithExchangeRecorder(fn func(store.LLMExchange)) Option {
	return func(cl *Classifier) {
		cl.record = fn
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(cl *Classifier) {
		cl.log = l
	}
}

// NewProvider creates the backend selected in cfg
func NewProvider(cfg config.AnalysisConfig) (Provider, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return providers.NewOpenAIProvider(cfg), nil
	case config.ProviderAnthropic:
		return providers.NewAnthropicProvider(cfg), nil
	case config.ProviderRemote:
		if cfg.RemoteURL == "" {
			return nil, fmt.Errorf("remote provider needs analysis.remote_url")
		}
		return providers.NewRemoteProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s", cfg.Provider)
	}
}

// New creates a classifier. deliver is called from worker goroutines.
func New(provider Provider, criteria CriteriaSource, deliver func(types.AnalysisResult), opts ...Option) *Classifier {
	c := &Classifier{
		provider: provider,
		criteria: criteria,
		cache:    cache.Nop{},
		deliver:  deliver,
		workers:  4,
		queue:    make(chan types.ClassifyRequest, 256),
		log:      slog.Default().With("component", "analyzer"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Request builds the classifier request for a dispatched post
func Request(p types.NewPost) types.ClassifyRequest {
	return types.ClassifyRequest{
		CorrelationID: p.CorrelationID,
		Text:          p.Content.Text,
		Author:        p.Content.Author,
		Images:        p.Content.Media.Images,
	}
}

// Submit enqueues req without blocking
func (c *Classifier) Submit(req types.ClassifyRequest) error {
	select {
	case c.queue <- req:
		return nil
	default:
		c.dropped.Add(1)
		return ErrQueueFull
	}
}

// Pending returns the number of queued requests
func (c *Classifier) Pending() int {
	return len(c.queue)
}

// Run starts the workers and blocks until ctx is cancelled. Requests still
// queued at that point are abandoned.
func (c *Classifier) Run(ctx context.Context) error {
	c.log.Info("classifier started", "provider", c.provider.Name(), "model", c.provider.Model(), "workers", c.workers)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < c.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case req := <-c.queue:
					c.deliver(c.Classify(ctx, req))
				}
			}
		})
	}
	return g.Wait()
}

// Classify runs one request synchronously. Failures come back as a result
// with Error set, never as a Go error.
func (c *Classifier) Classify(ctx context.Context, req types.ClassifyRequest) types.AnalysisResult {
	criteria := c.criteria.Criteria()
	prompt := providers.BuildPrompt(criteria)
	key := cache.Key(req, prompt)
	diag := &types.Diagnostic{Prompt: prompt, Inputs: req}

	if e, err := c.cache.Get(ctx, key); err == nil {
		c.cacheHits.Add(1)
		diag.RawResponse = e.RawResponse
		return types.AnalysisResult{
			CorrelationID: req.CorrelationID,
			Category:      e.Category,
			Reason:        e.Reason,
			Diagnostic:    diag,
		}
	} else if !errors.Is(err, cache.ErrMiss) {
		c.log.Warn("verdict cache lookup failed", "error", err)
	}

	start := time.Now()
	out, err := c.provider.Classify(ctx, req, criteria)
	if out.Prompt != "" {
		diag.Prompt = out.Prompt
	}
	diag.RawResponse = out.RawResponse
	c.recordExchange(out, err)

	if err != nil {
		c.failed.Add(1)
		c.log.Warn("classification failed", "correlation_id", req.CorrelationID, "error", err)
		return types.AnalysisResult{
			CorrelationID: req.CorrelationID,
			Diagnostic:    diag,
			Error:         err.Error(),
		}
	}

	c.classified.Add(1)
	c.log.Debug("classified post",
		"correlation_id", req.CorrelationID,
		"category", out.Category,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	entry := cache.Entry{Category: out.Category, Reason: out.Reason, RawResponse: out.RawResponse}
	if err := c.cache.Set(ctx, key, entry); err != nil {
		c.log.Warn("failed to cache verdict", "error", err)
	}

	return types.AnalysisResult{
		CorrelationID: req.CorrelationID,
		Category:      out.Category,
		Reason:        out.Reason,
		Diagnostic:    diag,
	}
}

func (c *Classifier) recordExchange(out providers.Outcome, err error) {
	if c.record == nil {
		return
	}
	ex := store.LLMExchange{
		Timestamp: time.Now(),
		Provider:  c.provider.Name(),
		Model:     c.provider.Model(),
		Prompt:    out.Prompt,
		Response:  out.RawResponse,
	}
	if err != nil {
		ex.Error = err.Error()
	}
	c.record(ex)
}

// Stats returns a snapshot of the counters
func (c *Classifier) Stats() Stats {
	return Stats{
		Classified: c.classified.Load(),
		Failed:     c.failed.Load(),
		CacheHits:  c.cacheHits.Load(),
		Dropped:    c.dropped.Load(),
	}
}
