// Package filter applies classifier verdicts to the feed.
//
// Every verdict gets an informational badge next to its post. A Filtered
// verdict is spread over the post's whole reconstructed thread, blurring
// (with a reveal control) or hiding each member. Treated posts carry the
// fs-treated class, which is also what the reset sweep looks for.
package filter

import (
	"log/slog"

	"github.com/ibeckermayer/feedsieve/internal/dom"
	"github.com/ibeckermayer/feedsieve/internal/marks"
	"github.com/ibeckermayer/feedsieve/internal/thread"
	"github.com/ibeckermayer/feedsieve/internal/types"
	"golang.org/x/net/html"
)

// Class names and attributes used for treatments
const (
	ClassTreated   = "fs-treated"
	ClassBlurred   = "fs-blurred"
	ClassHidden    = "fs-hidden"
	ClassContainer = "fs-post-container"
	ClassControls  = "fs-controls"
	ClassReveal    = "fs-reveal"
	ClassReason    = "fs-reason"

	BlurStyle    = "filter: blur(20px)"
	RevealLabel  = "Show"
	ThreadReason = "part of filtered thread"
)

// Settings is the slice of runtime settings the engine reads
type Settings interface {
	Enabled() bool
	DisplayMode() types.DisplayMode
}

// Presenter mirrors treatment changes somewhere outside the document model,
// typically the real browser page
type Presenter interface {
	Treat(post *html.Node, treatment types.Treatment, reason string)
	Clear(post *html.Node)
	// debug is the copyable DebugText of v
	Badge(anchor *html.Node, v types.Verdict, dark bool, debug string)
}

type nopPresenter struct{}

func (nopPresenter) Treat(*html.Node, types.Treatment, string)      {}
func (nopPresenter) Clear(*html.Node)                               {}
func (nopPresenter) Badge(*html.Node, types.Verdict, bool, string) {}

// Engine owns badges and reveal controls
type Engine struct {
	doc       *dom.Document
	marks     *marks.Marks
	resolver  *thread.Resolver
	settings  Settings
	presenter Presenter
	log       *slog.Logger

	badges   map[*html.Node]*Badge
	controls map[*html.Node]*html.Node
}

// Option configures an Engine
type Option func(*Engine)

func WithPresenter(p Presenter) Option {
	return func(e *Engine) {
		e.presenter = p
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.log = l
	}
}

func New(doc *dom.Document, m *marks.Marks, resolver *thread.Resolver, settings Settings, opts ...Option) *Engine {
	e := &Engine{
		doc:       doc,
		marks:     m,
		resolver:  resolver,
		settings:  settings,
		presenter: nopPresenter{},
		log:       slog.Default().With("component", "filter"),
		badges:    make(map[*html.Node]*Badge),
		controls:  make(map[*html.Node]*html.Node),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// OnVerdict handles one classifier result. Errors and verdicts for posts
// that are gone are dropped.
func (e *Engine) OnVerdict(result types.AnalysisResult) {
	if result.Error != "" {
		e.log.Warn("classification failed", "correlation_id", result.CorrelationID, "error", result.Error)
		return
	}
	if !e.settings.Enabled() {
		return
	}

	post, ok := e.marks.Lookup(result.CorrelationID)
	if !ok || !e.doc.Contains(post) {
		e.log.Debug("dropping verdict for missing post", "correlation_id", result.CorrelationID)
		return
	}

	v := result.Verdict()
	e.showBadge(post, v)

	if v.Category != types.Filtered {
		return
	}

	mode := e.settings.DisplayMode()
	members := e.resolver.FullThread(post)
	treated := 0
	for _, member := range members {
		reason := ThreadReason
		if member == post {
			reason = v.Reason
		}
		if e.Treat(member, mode, reason) {
			treated++
		}
	}
	e.log.Info("filtered post",
		"correlation_id", v.CorrelationID,
		"reason", v.Reason,
		"thread_size", len(members),
		"treated", treated,
	)
}

// Treat applies mode to post. It reports false when post was already treated.
func (e *Engine) Treat(post *html.Node, mode types.DisplayMode, reason string) bool {
	if dom.HasClass(post, ClassTreated) {
		return false
	}

	if mode == types.Hide {
		dom.AddClass(post, ClassTreated)
		dom.AddClass(post, ClassHidden)
		e.presenter.Treat(post, types.Hidden, reason)
		return true
	}

	container := post.Parent
	if container == nil || !dom.HasClass(container, ClassContainer) {
		container = dom.Element("div", "class", ClassContainer)
		e.doc.Wrap(post, container)
	}

	controls := dom.Element("div", "class", ClassControls)
	button := dom.Element("button", "class", ClassReveal)
	button.AppendChild(dom.TextNode(RevealLabel))
	controls.AppendChild(button)
	if reason != "" {
		reasonEl := dom.Element("div", "class", ClassReason)
		reasonEl.AppendChild(dom.TextNode(reason))
		controls.AppendChild(reasonEl)
	}

	dom.AddClass(post, ClassTreated)
	dom.AddClass(post, ClassBlurred)
	dom.SetAttr(post, "style", BlurStyle)
	e.controls[button] = post
	e.doc.Append(container, controls)

	e.presenter.Treat(post, types.Blurred, reason)
	return true
}

// Reveal strips the treatment from post and removes its reveal control.
// The post stays processed and is never dispatched again.
func (e *Engine) Reveal(post *html.Node) bool {
	if !dom.HasClass(post, ClassTreated) {
		return false
	}
	e.strip(post)
	if container := post.Parent; container != nil && dom.HasClass(container, ClassContainer) {
		for c := container.FirstChild; c != nil; {
			next := c.NextSibling
			if dom.HasClass(c, ClassControls) {
				e.dropControls(c)
				e.doc.Remove(c)
			}
			c = next
		}
	}
	e.presenter.Clear(post)
	return true
}

// ActivateControl handles a click on a reveal button
func (e *Engine) ActivateControl(button *html.Node) bool {
	post, ok := e.controls[button]
	if !ok {
		return false
	}
	return e.Reveal(post)
}

// Controls returns the reveal button attached to post, if any
func (e *Engine) Controls(post *html.Node) *html.Node {
	for button, p := range e.controls {
		if p == post {
			return button
		}
	}
	return nil
}

// Treatment reports the visual state of post
func (e *Engine) Treatment(post *html.Node) types.Treatment {
	switch {
	case dom.HasClass(post, ClassBlurred):
		return types.Blurred
	case dom.HasClass(post, ClassHidden):
		return types.Hidden
	}
	if _, ok := e.badges[post]; ok {
		return types.BadgeOnly
	}
	return types.Untreated
}

func (e *Engine) strip(post *html.Node) {
	dom.RemoveClass(post, ClassTreated)
	dom.RemoveClass(post, ClassBlurred)
	dom.RemoveClass(post, ClassHidden)
	if dom.Attr(post, "style") == BlurStyle {
		dom.RemoveAttr(post, "style")
	}
}

func (e *Engine) dropControls(controls *html.Node) {
	for _, button := range dom.FindAll(controls, "."+ClassReveal) {
		delete(e.controls, button)
	}
}
