// Package dispatcher turns feed mutations into classification requests.
//
// Two watchers cooperate: an insertion watcher registers every new post with
// a visibility watcher, and the visibility watcher extracts and submits a
// post the first time it comes into view. The processed marker is stamped
// before anything else happens and survives detaching, so a post is
// submitted at most once.
package dispatcher

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ibeckermayer/feedsieve/internal/dom"
	"github.com/ibeckermayer/feedsieve/internal/marks"
	"github.com/ibeckermayer/feedsieve/internal/scraper"
	"github.com/ibeckermayer/feedsieve/internal/thread"
	"github.com/ibeckermayer/feedsieve/internal/types"
	"golang.org/x/net/html"
)

// Default visibility options
const (
	DefaultThreshold  = 0.3
	DefaultRootMargin = 100
)

// VisibilityObserver is the visibility watcher. *dom.IntersectionObserver
// satisfies it; the live session supplies one backed by the real page.
type VisibilityObserver interface {
	Observe(n *html.Node)
	Unobserve(n *html.Node)
	Observing(n *html.Node) bool
}

// Sink receives posts ready for classification
type Sink interface {
	Submit(post types.NewPost)
}

// SinkFunc adapts a function to Sink
type SinkFunc func(types.NewPost)

func (f SinkFunc) Submit(p types.NewPost) { f(p) }

// Settings is the slice of runtime settings the dispatcher reads
type Settings interface {
	Enabled() bool
}

// Stats counts dispatch outcomes
type Stats struct {
	Registered int
	Submitted  int
	Skipped    int
}

// Dispatcher wires the two watchers to extraction and submission
type Dispatcher struct {
	doc      *dom.Document
	marks    *marks.Marks
	extract  *scraper.Extractor
	resolver *thread.Resolver
	settings Settings
	sink     Sink
	log      *slog.Logger
	now      func() time.Time

	visibility VisibilityObserver
	opts       dom.IntersectionOptions
	stop       func()
	stats      Stats
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithVisibilityObserver replaces the document-backed intersection observer
func WithVisibilityObserver(v VisibilityObserver) Option {
	return func(d *Dispatcher) {
		d.visibility = v
	}
}

// WithIntersectionOptions sets threshold and lookahead margin
func WithIntersectionOptions(opts dom.IntersectionOptions) Option {
	return func(d *Dispatcher) {
		d.opts = opts
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.log = l
	}
}

// New creates a dispatcher. Nothing is observed until Start.
func New(doc *dom.Document, m *marks.Marks, extractor *scraper.Extractor, resolver *thread.Resolver,
	settings Settings, sink Sink, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		doc:      doc,
		marks:    m,
		extract:  extractor,
		resolver: resolver,
		settings: settings,
		sink:     sink,
		log:      slog.Default().With("component", "dispatcher"),
		now:      time.Now,
		opts:     dom.IntersectionOptions{Threshold: DefaultThreshold, RootMargin: DefaultRootMargin},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start watches the document for new posts and registers the ones already present
func (d *Dispatcher) Start() {
	if d.stop != nil {
		return
	}
	var watcher *dom.IntersectionObserver
	if d.visibility == nil {
		watcher = d.doc.NewIntersectionObserver(d.opts, d.OnIntersection)
		d.visibility = watcher
	}
	disconnect := d.doc.Observe(d.OnMutations)
	d.stop = func() {
		disconnect()
		if watcher != nil {
			watcher.Disconnect()
			d.visibility = nil
		}
	}
	d.Register(d.doc.Root())
}

// Stop disconnects both watchers
func (d *Dispatcher) Stop() {
	if d.stop != nil {
		d.stop()
		d.stop = nil
	}
}

// Stats returns the dispatch counters
func (d *Dispatcher) Stats() Stats {
	return d.stats
}

// OnMutations is the insertion watcher
func (d *Dispatcher) OnMutations(records []dom.MutationRecord) {
	for _, rec := range records {
		for _, n := range rec.Removed {
			// a moved or wrapped element is still attached
			if d.doc.Contains(n) {
				continue
			}
			d.release(n)
		}
		for _, n := range rec.Added {
			if n.Type == html.ElementNode && d.doc.Contains(n) {
				d.marks.Attach(n)
				d.Register(n)
			}
		}
	}
}

// Register hands every unprocessed, unobserved post under n (n included)
// to the visibility watcher
func (d *Dispatcher) Register(n *html.Node) int {
	if d.visibility == nil {
		return 0
	}
	added := 0
	for _, post := range dom.FindAll(n, scraper.Post) {
		if d.marks.IsProcessed(post) || d.visibility.Observing(post) {
			continue
		}
		d.visibility.Observe(post)
		added++
	}
	d.stats.Registered += added
	return added
}

// Rescan re-registers pending posts so ones already in view are delivered again.
// Used after re-enabling.
func (d *Dispatcher) Rescan() {
	if d.visibility == nil {
		return
	}
	for _, post := range d.doc.Query(scraper.Post) {
		if d.marks.IsProcessed(post) {
			continue
		}
		d.visibility.Unobserve(post)
		d.visibility.Observe(post)
	}
}

func (d *Dispatcher) release(n *html.Node) {
	for _, post := range dom.FindAll(n, scraper.Post) {
		if d.visibility != nil {
			d.visibility.Unobserve(post)
		}
	}
	d.marks.Detach(n)
}

// OnIntersection is the visibility watcher callback
func (d *Dispatcher) OnIntersection(entries []dom.IntersectionEntry) {
	for _, e := range entries {
		if e.IsIntersecting {
			d.Process(e.Target)
		}
	}
}

// Process runs the first-visibility pipeline for one post
func (d *Dispatcher) Process(post *html.Node) {
	if !d.settings.Enabled() {
		return
	}
	if !d.doc.Contains(post) {
		return
	}
	if !d.marks.MarkProcessed(post) {
		return
	}
	if d.visibility != nil {
		d.visibility.Unobserve(post)
	}

	rec := d.extract.Extract(post)
	tc := d.resolver.Context(post)

	if rec.IsEmpty() {
		d.stats.Skipped++
		d.log.Debug("skipping post without content", "correlation_id", rec.CorrelationID)
		return
	}

	content := rec
	content.Text = ContextualText(rec, tc)

	d.stats.Submitted++
	d.log.Debug("submitting post",
		"correlation_id", rec.CorrelationID,
		"author", rec.Author,
		"is_reply", tc.HasAncestor,
		"has_descendant", tc.HasDescendant,
	)
	d.sink.Submit(types.NewPost{
		Content:       content,
		CorrelationID: rec.CorrelationID,
		IsReply:       tc.HasAncestor,
		HasDescendant: tc.HasDescendant,
		SubmittedAt:   d.now(),
	})
}

// ContextualText builds the text sent for classification: the ancestor
// chain followed by the labelled reply, plus any article or link card text.
func ContextualText(rec types.ContentRecord, tc types.ThreadContext) string {
	text := rec.Text
	if tc.HasAncestor && len(tc.AncestorChain) > 0 {
		text = fmt.Sprintf("%s [Reply @%s: %s]", strings.Join(tc.AncestorChain, " "), rec.Author, rec.Text)
	}
	if rec.ArticleText != "" {
		text += " [Article: " + rec.ArticleText + "]"
	}
	if rec.CardText != "" {
		text += " [Link card: " + rec.CardText + "]"
	}
	return strings.TrimSpace(text)
}
