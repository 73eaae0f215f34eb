package app

import (
	"log/slog"

	"golang.org/x/net/html"

	"github.com/ibeckermayer/feedsieve/internal/config"
	"github.com/ibeckermayer/feedsieve/internal/dispatcher"
	"github.com/ibeckermayer/feedsieve/internal/dom"
	"github.com/ibeckermayer/feedsieve/internal/filter"
	"github.com/ibeckermayer/feedsieve/internal/marks"
	"github.com/ibeckermayer/feedsieve/internal/scraper"
	"github.com/ibeckermayer/feedsieve/internal/thread"
	"github.com/ibeckermayer/feedsieve/internal/types"
)

// PipelineConfig selects where visibility comes from and where treatments go.
// Nil fields fall back to the document itself.
type PipelineConfig struct {
	Observer   config.ObserverConfig
	Thread     thread.Policy
	Visibility dispatcher.VisibilityObserver
	Presenter  filter.Presenter
	Logger     *slog.Logger
}

// Pipeline is the per-document half of the filter: a dispatcher and an
// engine sharing one mark table. All methods must run on the loop.
type Pipeline struct {
	doc        *dom.Document
	marks      *marks.Marks
	resolver   *thread.Resolver
	dispatcher *dispatcher.Dispatcher
	engine     *filter.Engine
	log        *slog.Logger
}

// NewPipeline wires extraction, thread resolution, dispatch and treatment
// over doc. Nothing runs until Start.
func NewPipeline(doc *dom.Document, ids marks.IDSource, settings filter.Settings, sink dispatcher.Sink, pc PipelineConfig) *Pipeline {
	log := pc.Logger
	if log == nil {
		log = slog.Default()
	}
	// mirrored cells are re-parsed on every resend; page ids keep their marks
	m := marks.New(ids, marks.WithIdentity(scraper.NodeID))
	resolver := thread.NewResolver(doc, m, pc.Thread)

	dopts := []dispatcher.Option{
		dispatcher.WithIntersectionOptions(dom.IntersectionOptions{
			Threshold:  pc.Observer.Threshold,
			RootMargin: pc.Observer.RootMargin,
		}),
		dispatcher.WithLogger(log.With("component", "dispatcher")),
	}
	if pc.Visibility != nil {
		dopts = append(dopts, dispatcher.WithVisibilityObserver(pc.Visibility))
	}
	fopts := []filter.Option{filter.WithLogger(log.With("component", "filter"))}
	if pc.Presenter != nil {
		fopts = append(fopts, filter.WithPresenter(pc.Presenter))
	}

	return &Pipeline{
		doc:        doc,
		marks:      m,
		resolver:   resolver,
		dispatcher: dispatcher.New(doc, m, scraper.NewExtractor(m), resolver, settings, sink, dopts...),
		engine:     filter.New(doc, m, resolver, settings, fopts...),
		log:        log,
	}
}

func (p *Pipeline) Start() {
	p.dispatcher.Start()
}

func (p *Pipeline) Stop() {
	p.dispatcher.Stop()
}

func (p *Pipeline) Document() *dom.Document {
	return p.doc
}

func (p *Pipeline) Engine() *filter.Engine {
	return p.engine
}

func (p *Pipeline) Dispatcher() *dispatcher.Dispatcher {
	return p.dispatcher
}

// OnIntersection forwards visibility from an external watcher
func (p *Pipeline) OnIntersection(entries []dom.IntersectionEntry) {
	p.dispatcher.OnIntersection(entries)
}

// OnVerdict applies a classifier result
func (p *Pipeline) OnVerdict(r types.AnalysisResult) {
	p.engine.OnVerdict(r)
}

// OnToggle sweeps treatments when disabled. Re-enabling picks up posts that
// became visible while off.
func (p *Pipeline) OnToggle(t types.Toggle) {
	p.engine.OnToggle(t)
	if t.Enabled {
		p.dispatcher.Rescan()
	}
}

// Reveal handles a reveal click on post
func (p *Pipeline) Reveal(post *html.Node) {
	if p.engine.Reveal(post) {
		p.log.Debug("post revealed", "correlation_id", p.marks.CorrelationID(post))
	}
}

// Treated counts posts currently blurred or hidden
func (p *Pipeline) Treated() int {
	return len(p.doc.Query("." + filter.ClassTreated))
}
