package scraper

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"golang.org/x/net/html"

	"github.com/ibeckermayer/feedsieve/internal/dom"
	"github.com/ibeckermayer/feedsieve/internal/types"
)

// AttrNode carries the page-assigned element id on mirrored nodes
const AttrNode = "data-fs-node"

// NodeID returns the page-assigned id of a mirrored element, or ""
func NodeID(n *html.Node) string {
	return dom.Attr(n, AttrNode)
}

// Page event types
const (
	EventCell      = "cell"
	EventRemoved   = "removed"
	EventLayout    = "layout"
	EventScroll    = "scroll"
	EventViewport  = "viewport"
	EventIntersect = "intersect"
	EventReveal    = "reveal"
	EventToggle    = "toggle"
)

const skeleton = `<html><head></head><body><main><div data-testid="primaryColumn"><section><div id="timeline"></div></section></div></main></body></html>`

// Event is one message from the page script
type Event struct {
	Type       string               `json:"type"`
	ID         string               `json:"id,omitempty"`
	Prev       string               `json:"prev,omitempty"`
	HTML       string               `json:"html,omitempty"`
	Boxes      map[string]BoxUpdate `json:"boxes,omitempty"`
	Y          float64              `json:"y,omitempty"`
	Width      float64              `json:"width,omitempty"`
	Height     float64              `json:"height,omitempty"`
	Background string               `json:"bg,omitempty"`
	Entries    []IntersectEntry     `json:"entries,omitempty"`
}

// BoxUpdate is a new layout box in data-fs-box format
type BoxUpdate struct {
	Box        string `json:"box"`
	Background string `json:"bg,omitempty"`
}

type IntersectEntry struct {
	ID           string  `json:"id"`
	Ratio        float64 `json:"ratio"`
	Intersecting bool    `json:"intersecting"`
}

// Handlers receive page events that need the pipeline.
// They run on the goroutine that calls Handle.
type Handlers struct {
	OnIntersection func([]dom.IntersectionEntry)
	OnReveal       func(post *html.Node)
	// OnToggle is the page's on/off switch
	OnToggle func()
}

// Mirror keeps a dom.Document in step with the feed cells of the real page.
// It doubles as the visibility watcher and the treatment presenter, turning
// both into page commands. Like the document it is not safe for concurrent use.
type Mirror struct {
	doc      *dom.Document
	timeline *html.Node
	nodes    map[string]*html.Node
	watched  map[*html.Node]bool
	send     func(cmd string)
	handlers Handlers
	log      *slog.Logger
}

// NewMirror builds an empty feed skeleton. send receives page commands in order.
func NewMirror(send func(cmd string), h Handlers) *Mirror {
	doc, err := dom.ParseString(skeleton)
	if err != nil {
		panic(fmt.Sprintf("feed skeleton: %v", err))
	}
	return &Mirror{
		doc:      doc,
		timeline: doc.Query("#timeline")[0],
		nodes:    make(map[string]*html.Node),
		watched:  make(map[*html.Node]bool),
		send:     send,
		handlers: h,
		log:      slog.Default().With("component", "mirror"),
	}
}

// SetHandlers replaces the event handlers, for wiring after construction
func (m *Mirror) SetHandlers(h Handlers) {
	m.handlers = h
}

func (m *Mirror) Document() *dom.Document {
	return m.doc
}

// Node returns the mirrored element with the given page id
func (m *Mirror) Node(id string) (*html.Node, bool) {
	n, ok := m.nodes[id]
	return n, ok
}

// Cells returns the number of mirrored cells
func (m *Mirror) Cells() int {
	n := 0
	for c := m.timeline.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			n++
		}
	}
	return n
}

// Handle decodes and applies one page event
func (m *Mirror) Handle(payload string) error {
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return fmt.Errorf("decode page event: %w", err)
	}
	return m.Apply(ev)
}

// Apply updates the mirror for ev and forwards events the pipeline reacts to
func (m *Mirror) Apply(ev Event) error {
	switch ev.Type {
	case EventCell:
		return m.insertCell(ev)
	case EventRemoved:
		if n, ok := m.nodes[ev.ID]; ok {
			m.forget(n)
			m.doc.Remove(n)
		}
	case EventLayout:
		m.applyBoxes(ev.Boxes)
	case EventScroll:
		m.doc.ScrollTo(ev.Y)
		m.doc.Frame()
	case EventViewport:
		if ev.Width > 0 && ev.Height > 0 {
			m.doc.SetViewport(ev.Width, ev.Height)
		}
		body := m.doc.Body()
		m.doc.SetBox(body, dom.Box{Rect: dom.Rect{Width: ev.Width, Height: ev.Height}, Background: ev.Background})
	case EventIntersect:
		m.intersect(ev.Entries)
	case EventReveal:
		n, ok := m.nodes[ev.ID]
		if ok && m.handlers.OnReveal != nil {
			m.handlers.OnReveal(n)
		}
	case EventToggle:
		if m.handlers.OnToggle != nil {
			m.handlers.OnToggle()
		}
	default:
		return fmt.Errorf("unknown page event %q", ev.Type)
	}
	return nil
}

func (m *Mirror) insertCell(ev Event) error {
	nodes, err := dom.ParseFragment(ev.HTML)
	if err != nil {
		return fmt.Errorf("parse cell %s: %w", ev.ID, err)
	}
	var cell *html.Node
	for _, n := range nodes {
		if n.Type == html.ElementNode {
			cell = n
			break
		}
	}
	if cell == nil {
		return fmt.Errorf("cell %s has no element", ev.ID)
	}

	// a re-sent cell replaces its stale copy
	if old, ok := m.nodes[ev.ID]; ok {
		m.forget(old)
		m.doc.Remove(old)
	}

	for _, n := range dom.FindAll(cell, "["+AttrNode+"]") {
		m.nodes[dom.Attr(n, AttrNode)] = n
	}
	// layout must be known before the insertion is observed
	for _, n := range dom.FindAll(cell, "["+dom.AttrBox+"]") {
		r, err := dom.ParseRect(dom.Attr(n, dom.AttrBox))
		if err != nil {
			continue
		}
		m.doc.SetBox(n, dom.Box{Rect: r, Background: dom.Attr(n, dom.AttrBackground)})
	}

	m.doc.Insert(m.timeline, cell, m.after(ev.Prev))
	return nil
}

// after returns the sibling a cell following prev is inserted before.
// An empty prev means the top of the timeline; an unknown one appends.
func (m *Mirror) after(prev string) *html.Node {
	if prev == "" {
		return m.timeline.FirstChild
	}
	p, ok := m.nodes[prev]
	if !ok || p.Parent != m.timeline {
		return nil
	}
	return p.NextSibling
}

func (m *Mirror) forget(n *html.Node) {
	for _, c := range dom.FindAll(n, "["+AttrNode+"]") {
		delete(m.nodes, dom.Attr(c, AttrNode))
		delete(m.watched, c)
	}
}

func (m *Mirror) applyBoxes(boxes map[string]BoxUpdate) {
	for id, b := range boxes {
		n, ok := m.nodes[id]
		if !ok {
			continue
		}
		r, err := dom.ParseRect(b.Box)
		if err != nil {
			m.log.Debug("bad layout box", "id", id, "box", b.Box)
			continue
		}
		m.doc.SetBox(n, dom.Box{Rect: r, Background: b.Background})
	}
}

func (m *Mirror) intersect(entries []IntersectEntry) {
	if m.handlers.OnIntersection == nil {
		return
	}
	var out []dom.IntersectionEntry
	for _, e := range entries {
		n, ok := m.nodes[e.ID]
		if !ok || !m.watched[n] {
			continue
		}
		out = append(out, dom.IntersectionEntry{Target: n, Ratio: e.Ratio, IsIntersecting: e.Intersecting})
	}
	if len(out) > 0 {
		m.handlers.OnIntersection(out)
	}
}

// Observe asks the page to watch n's visibility
func (m *Mirror) Observe(n *html.Node) {
	id := dom.Attr(n, AttrNode)
	if id == "" || m.watched[n] {
		return
	}
	m.watched[n] = true
	m.call("observe", id)
}

func (m *Mirror) Unobserve(n *html.Node) {
	if !m.watched[n] {
		return
	}
	delete(m.watched, n)
	m.call("unobserve", dom.Attr(n, AttrNode))
}

func (m *Mirror) Observing(n *html.Node) bool {
	return m.watched[n]
}

// Treat applies a treatment to the real post
func (m *Mirror) Treat(post *html.Node, t types.Treatment, reason string) {
	if id := dom.Attr(post, AttrNode); id != "" {
		m.call("treat", id, t.String(), reason)
	}
}

func (m *Mirror) Clear(post *html.Node) {
	if id := dom.Attr(post, AttrNode); id != "" {
		m.call("clear", id)
	}
}

func (m *Mirror) Badge(anchor *html.Node, v types.Verdict, dark bool, debug string) {
	if id := dom.Attr(anchor, AttrNode); id != "" {
		m.call("badge", id, string(v.Category), v.Reason, dark, debug)
	}
}

// ShowEnabled updates the page's filter switch
func (m *Mirror) ShowEnabled(on bool) {
	m.call("enabled", on)
}

// Snapshot renders the mirror with layout attributes for offline replay
func (m *Mirror) Snapshot(w io.Writer) error {
	m.doc.WriteLayoutAttrs()
	return m.doc.Render(w)
}

func (m *Mirror) call(fn string, args ...any) {
	m.send(Command(fn, args...))
}

// Command renders a call into the page script's command table
func Command(fn string, args ...any) string {
	encoded := make([]string, 0, len(args))
	for _, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			b = []byte("null")
		}
		encoded = append(encoded, string(b))
	}
	return fmt.Sprintf("window.__fs && window.__fs.%s(%s)", fn, strings.Join(encoded, ", "))
}
