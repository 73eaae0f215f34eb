// Package app wires the feed pipeline to the classifier, the verdict
// history and the browser session.
package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ibeckermayer/feedsieve/internal/analyzer"
	"github.com/ibeckermayer/feedsieve/internal/auth"
	"github.com/ibeckermayer/feedsieve/internal/cache"
	"github.com/ibeckermayer/feedsieve/internal/config"
	"github.com/ibeckermayer/feedsieve/internal/dispatcher"
	"github.com/ibeckermayer/feedsieve/internal/dom"
	"github.com/ibeckermayer/feedsieve/internal/filter"
	"github.com/ibeckermayer/feedsieve/internal/loop"
	"github.com/ibeckermayer/feedsieve/internal/marks"
	"github.com/ibeckermayer/feedsieve/internal/report"
	"github.com/ibeckermayer/feedsieve/internal/scheduler"
	"github.com/ibeckermayer/feedsieve/internal/scraper"
	"github.com/ibeckermayer/feedsieve/internal/store"
	"github.com/ibeckermayer/feedsieve/internal/types"
)

// ErrNotLoggedIn is returned by RunLive when no valid session is stored
var ErrNotLoggedIn = errors.New("not logged in to the feed (run: fsctl login)")

const reportWindow = 24 * time.Hour

// App holds the long-lived collaborators. The pipeline and everything it
// touches belong to the loop.
type App struct {
	cfg        *config.Config
	settings   *config.Settings
	loop       *loop.Loop
	ids        marks.IDSource
	store      *store.Store
	cache      cache.Cache
	provider   analyzer.Provider
	classifier *analyzer.Classifier
	auth       *auth.Manager
	sched      *scheduler.Scheduler
	onResult   func(types.AnalysisResult)
	log        *slog.Logger

	// loop-owned
	pipeline  *Pipeline
	onToggle  func(on bool)
	submitted int
	resolved  int
	records   []types.ContentRecord
}

// Option configures an App
type Option func(*App)

func WithStore(s *store.Store) Option {
	return func(a *App) {
		a.store = s
	}
}

func WithCache(c cache.Cache) Option {
	return func(a *App) {
		a.cache = c
	}
}

func WithProvider(p analyzer.Provider) Option {
	return func(a *App) {
		a.provider = p
	}
}

func WithAuth(m *auth.Manager) Option {
	return func(a *App) {
		a.auth = m
	}
}

func WithIDs(ids marks.IDSource) Option {
	return func(a *App) {
		a.ids = ids
	}
}

// WithResultHook sees every classifier result after it is applied
func WithResultHook(fn func(types.AnalysisResult)) Option {
	return func(a *App) {
		a.onResult = fn
	}
}

// New builds the application from cfg. Collaborators not supplied through
// options are created from the config.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg:      cfg,
		settings: config.NewSettings(cfg),
		loop:     loop.New(),
		log:      slog.Default().With("component", "app"),
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.ids == nil {
		ids, err := marks.NewSnowflakeIDs(1)
		if err != nil {
			return nil, err
		}
		a.ids = ids
	}

	if a.store == nil {
		path, err := store.DefaultPath()
		if err != nil {
			return nil, err
		}
		st, err := store.New(path)
		if err != nil {
			return nil, err
		}
		a.store = st
	}

	if a.cache == nil {
		c, err := cache.New(ctx, cfg.Cache)
		if err != nil {
			a.log.Warn("verdict cache unavailable, using memory", "backend", cfg.Cache.Backend, "error", err)
			c = cache.NewMemory(time.Duration(cfg.Cache.TTLHours) * time.Hour)
		}
		a.cache = c
	}

	if a.provider == nil {
		p, err := analyzer.NewProvider(cfg.Analysis)
		if err != nil {
			return nil, err
		}
		a.provider = p
	}

	copts := []analyzer.Option{
		analyzer.WithCache(a.cache),
		analyzer.WithWorkers(cfg.Analysis.Workers),
		analyzer.WithQueueSize(cfg.Analysis.QueueSize),
	}
	if cfg.Scraping.DumpLLM {
		copts = append(copts, analyzer.WithExchangeRecorder(func(ex store.LLMExchange) {
			if _, err := store.SaveLLMExchange(ex); err != nil {
				a.log.Warn("failed to dump LLM exchange", "error", err)
			}
		}))
	}
	a.classifier = analyzer.New(a.provider, a.settings, a.deliver, copts...)

	if a.auth == nil {
		path, err := auth.DefaultCookieStorePath()
		if err != nil {
			return nil, err
		}
		a.auth = auth.NewManager(auth.NewCookieStore(path))
	}

	sched, err := scheduler.New("")
	if err != nil {
		return nil, err
	}
	a.sched = sched
	if err := a.scheduleJobs(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *App) scheduleJobs() error {
	sc := a.cfg.Store
	if sc.PruneSchedule != "" && sc.RetentionDays > 0 {
		retention := time.Duration(sc.RetentionDays) * 24 * time.Hour
		if err := a.sched.AddJob("prune", sc.PruneSchedule, scheduler.PruneJob(a.store, retention, time.Now)); err != nil {
			return err
		}
	}
	if sc.ReportSchedule != "" {
		if err := a.sched.AddJob("report", sc.ReportSchedule, scheduler.ReportJob(a.WriteReport)); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) Settings() *config.Settings {
	return a.settings
}

func (a *App) Store() *store.Store {
	return a.store
}

func (a *App) Auth() *auth.Manager {
	return a.auth
}

func (a *App) Scheduler() *scheduler.Scheduler {
	return a.sched
}

// Attach builds the pipeline for doc and makes it the target for verdicts.
// A nil visibility or presenter falls back to the document itself. Call it
// on the loop, or before the loop runs.
func (a *App) Attach(doc *dom.Document, visibility dispatcher.VisibilityObserver, presenter filter.Presenter) *Pipeline {
	a.pipeline = NewPipeline(doc, a.ids, a.settings, dispatcher.SinkFunc(a.submit), PipelineConfig{
		Observer:   a.cfg.Observer,
		Thread:     a.cfg.Thread,
		Visibility: visibility,
		Presenter:  presenter,
	})
	return a.pipeline
}

// submit is the dispatcher sink. It runs on the loop.
func (a *App) submit(p types.NewPost) {
	if err := a.store.SaveSubmission(p); err != nil {
		a.log.Warn("failed to record submission", "correlation_id", p.CorrelationID, "error", err)
	}
	a.submitted++
	if a.cfg.Scraping.DumpRecords {
		a.records = append(a.records, p.Content)
	}
	if err := a.classifier.Submit(analyzer.Request(p)); err != nil {
		a.log.Warn("classification request dropped", "correlation_id", p.CorrelationID, "error", err)
		a.loop.Post(func() {
			a.apply(types.AnalysisResult{CorrelationID: p.CorrelationID, Error: err.Error()})
		})
	}
}

// deliver is called from classifier workers
func (a *App) deliver(r types.AnalysisResult) {
	a.loop.Post(func() {
		a.apply(r)
	})
}

func (a *App) apply(r types.AnalysisResult) {
	a.resolved++
	if a.pipeline != nil {
		a.pipeline.OnVerdict(r)
	}
	if err := a.store.SaveVerdict(r); err != nil {
		a.log.Warn("failed to record verdict", "correlation_id", r.CorrelationID, "error", err)
	}
	if a.onResult != nil {
		a.onResult(r)
	}
}

// SetEnabled flips the filter switch. Disabling sweeps every treatment off
// the page; enabling resumes dispatch for posts already in view.
func (a *App) SetEnabled(on bool) {
	if !a.settings.SetEnabled(on) {
		return
	}
	a.postToggle(on)
}

// Toggle flips the filter switch
func (a *App) Toggle() {
	a.SetEnabled(!a.settings.Enabled())
}

// Reload swaps in the runtime settings of cfg. A changed enabled flag goes
// through the same sweep as SetEnabled.
func (a *App) Reload(cfg *config.Config) {
	was := a.settings.Enabled()
	a.settings.Replace(cfg)
	a.log.Info("settings reloaded", "display_mode", cfg.DisplayMode)
	if cfg.Enabled != was {
		a.postToggle(cfg.Enabled)
	}
}

// ReloadOnSignal calls Reload with a fresh config each time one of sigs
// arrives, until ctx is done
func (a *App) ReloadOnSignal(ctx context.Context, load func() (*config.Config, error), sigs ...os.Signal) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)
	go func() {
		defer signal.Stop(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ch:
				cfg, err := load()
				if err != nil {
					a.log.Warn("config reload failed", "error", err)
					continue
				}
				a.Reload(cfg)
			}
		}
	}()
}

func (a *App) postToggle(on bool) {
	a.log.Info("filter toggled", "enabled", on)
	a.loop.Post(func() {
		if a.pipeline != nil {
			a.pipeline.OnToggle(types.Toggle{Enabled: on})
		}
		if a.onToggle != nil {
			a.onToggle(on)
		}
	})
}

// attachMirror makes the live mirror the pipeline's document, visibility
// watcher and presenter, and routes page events back. Call it before the
// loop runs.
func (a *App) attachMirror(mirror *scraper.Mirror) *Pipeline {
	p := a.Attach(mirror.Document(), mirror, mirror)
	mirror.SetHandlers(scraper.Handlers{
		OnIntersection: p.OnIntersection,
		OnReveal:       p.Reveal,
		OnToggle:       a.Toggle,
	})
	a.onToggle = mirror.ShowEnabled
	mirror.ShowEnabled(a.settings.Enabled())
	return p
}

// RunLive drives the real feed until ctx is cancelled or the session fails
func (a *App) RunLive(ctx context.Context) error {
	if !a.auth.IsAuthenticated() {
		return ErrNotLoggedIn
	}
	cookies, err := a.auth.Cookies()
	if err != nil {
		return fmt.Errorf("failed to load cookies: %w", err)
	}

	session := scraper.NewSession(scraper.SessionConfig{
		FeedURL:    a.cfg.Scraping.FeedURL,
		Headless:   a.cfg.Scraping.Headless,
		Cookies:    cookies,
		Threshold:  a.cfg.Observer.Threshold,
		RootMargin: a.cfg.Observer.RootMargin,
	}, a.loop)
	mirror := session.Mirror()

	// the loop is not running yet, so wiring here is safe
	p := a.attachMirror(mirror)
	p.Start()

	a.sched.Start()
	defer a.sched.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.loop.Run(gctx) })
	g.Go(func() error { return a.classifier.Run(gctx) })
	g.Go(func() error {
		err := session.Run(gctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		// a finished session ends the run
		return context.Canceled
	})

	err = g.Wait()
	p.Stop()
	a.logStats()

	a.dumpRecords()
	if a.cfg.Scraping.SnapshotOnExit {
		var buf bytes.Buffer
		if serr := mirror.Snapshot(&buf); serr == nil {
			if path, werr := store.WriteDump(store.DumpSnapshots, ".html", buf.Bytes()); werr == nil {
				a.log.Info("wrote feed snapshot", "path", path)
			}
		}
	}

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// dumpRecords writes the content of every submitted post when
// scraping.dump_records is set
func (a *App) dumpRecords() {
	if !a.cfg.Scraping.DumpRecords || len(a.records) == 0 {
		return
	}
	path, err := store.SaveRecords(a.records)
	if err != nil {
		a.log.Warn("failed to dump records", "error", err)
		return
	}
	a.log.Info("wrote content records", "path", path, "count", len(a.records))
	a.records = nil
}

func (a *App) logStats() {
	cs := a.classifier.Stats()
	attrs := []any{
		"classified", cs.Classified,
		"failed", cs.Failed,
		"cache_hits", cs.CacheHits,
		"dropped", cs.Dropped,
	}
	if a.pipeline != nil {
		ds := a.pipeline.Dispatcher().Stats()
		attrs = append(attrs, "registered", ds.Registered, "submitted", ds.Submitted, "skipped", ds.Skipped)
	}
	a.log.Info("session stats", attrs...)
}

// ReplayResult summarises an offline run
type ReplayResult struct {
	Submitted int
	Results   []types.AnalysisResult
	Treated   int
}

// Replay runs the pipeline over a saved snapshot, scrolling it top to bottom,
// and waits for every submitted post to be classified
func (a *App) Replay(ctx context.Context, r io.Reader) (*ReplayResult, error) {
	doc, err := dom.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	doc.ApplyLayoutAttrs()

	res := &ReplayResult{}
	hook := a.onResult
	a.onResult = func(r types.AnalysisResult) {
		res.Results = append(res.Results, r)
		if hook != nil {
			hook(r)
		}
	}
	defer func() { a.onResult = hook }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- a.classifier.Run(ctx) }()

	p := a.Attach(doc, nil, nil)
	p.Start()
	defer p.Stop()
	a.loop.Drain()

	step := doc.Viewport().Height
	for y := step; y < documentBottom(doc); y += step {
		doc.ScrollTo(y)
		a.loop.Drain()
	}

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for a.resolved < a.submitted {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case err := <-done:
			return nil, fmt.Errorf("classifier stopped: %w", err)
		case <-ticker.C:
			a.loop.Drain()
		}
	}

	res.Submitted = a.submitted
	res.Treated = p.Treated()
	a.dumpRecords()
	return res, nil
}

func documentBottom(doc *dom.Document) float64 {
	bottom := 0.0
	for _, n := range doc.Query("[" + dom.AttrBox + "]") {
		if b, ok := doc.Box(n); ok && b.Bottom() > bottom && n != doc.Body() {
			bottom = b.Bottom()
		}
	}
	return bottom
}

// WriteReport renders the recent verdict history to the cache directory
func (a *App) WriteReport(ctx context.Context) (string, error) {
	records, err := a.store.Recent(a.cfg.Store.ReportMaxPosts)
	if err != nil {
		return "", err
	}
	stats, err := a.store.Stats(time.Now().Add(-reportWindow))
	if err != nil {
		return "", err
	}
	b, err := report.New(a.cfg.Store.ReportMaxPosts)
	if err != nil {
		return "", err
	}
	rep, err := b.Build(records, stats)
	if err != nil {
		return "", err
	}
	return store.WriteDump(store.DumpReports, ".html", []byte(rep.HTMLBody))
}

// Close releases the store and cache connections
func (a *App) Close() error {
	var errs []error
	if c, ok := a.cache.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	errs = append(errs, a.store.Close())
	return errors.Join(errs...)
}
