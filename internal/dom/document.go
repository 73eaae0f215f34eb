// Package dom is a small live document model built on golang.org/x/net/html.
//
// A Document stands in for the host page: it holds the node tree, a layout
// table (bounding boxes and background colours), a scrollable viewport and
// the observer registrations (mutation, intersection, scroll, animation
// frame) the pipeline reacts to.
//
// A Document is not safe for concurrent use. Like a browser DOM it belongs to
// a single event loop; see internal/loop.
package dom

import (
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Default viewport, matching the window size used for browser sessions
const (
	DefaultViewportWidth  = 1920
	DefaultViewportHeight = 1080
)

// MutationRecord describes one childList change
type MutationRecord struct {
	Target  *html.Node
	Added   []*html.Node
	Removed []*html.Node
}

// Document is a mutable node tree with observers attached
type Document struct {
	root   *html.Node
	layout map[*html.Node]Box

	scrollY   float64
	viewportW float64
	viewportH float64

	nextID            int
	mutationObservers map[int]func([]MutationRecord)
	scrollListeners   map[int]func(float64)
	intersection      map[int]*IntersectionObserver
	frames            []func()

	checking bool
	recheck  bool
}

// New wraps an already parsed tree
func New(root *html.Node) *Document {
	return &Document{
		root:              root,
		layout:            make(map[*html.Node]Box),
		viewportW:         DefaultViewportWidth,
		viewportH:         DefaultViewportHeight,
		mutationObservers: make(map[int]func([]MutationRecord)),
		scrollListeners:   make(map[int]func(float64)),
		intersection:      make(map[int]*IntersectionObserver),
	}
}

// Parse reads a full HTML document
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	return New(root), nil
}

// ParseString is Parse over a string
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// Root returns the document node
func (d *Document) Root() *html.Node {
	return d.root
}

// Body returns the <body> element, or the root when there is none
func (d *Document) Body() *html.Node {
	if body := d.Selection().Find("body").First(); body.Length() > 0 {
		return body.Nodes[0]
	}
	return d.root
}

// Selection returns a goquery selection over the whole document
func (d *Document) Selection() *goquery.Selection {
	return goquery.NewDocumentFromNode(d.root).Selection
}

// Query returns every element under the root matching selector
func (d *Document) Query(selector string) []*html.Node {
	return d.Selection().Find(selector).Nodes
}

// Contains reports whether n is currently attached to this document
func (d *Document) Contains(n *html.Node) bool {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur == d.root {
			return true
		}
	}
	return false
}

// Insert places child under parent before the given sibling (nil appends).
// A child that is already attached elsewhere is moved; observers then see
// the removal and the addition in one batch, after the move.
func (d *Document) Insert(parent, child, before *html.Node) {
	var batch []MutationRecord
	if old := child.Parent; old != nil {
		old.RemoveChild(child)
		batch = append(batch, MutationRecord{Target: old, Removed: []*html.Node{child}})
	}
	if before != nil && before.Parent == parent {
		parent.InsertBefore(child, before)
	} else {
		parent.AppendChild(child)
	}
	batch = append(batch, MutationRecord{Target: parent, Added: []*html.Node{child}})
	d.notify(batch...)
	d.checkIntersections()
}

// Append is Insert with no reference sibling
func (d *Document) Append(parent, child *html.Node) {
	d.Insert(parent, child, nil)
}

// Remove detaches n from its parent. Layout for the subtree is dropped.
func (d *Document) Remove(n *html.Node) {
	parent := n.Parent
	if parent == nil {
		return
	}
	parent.RemoveChild(n)
	walk(n, func(c *html.Node) {
		delete(d.layout, c)
	})
	d.notify(MutationRecord{Target: parent, Removed: []*html.Node{n}})
	d.checkIntersections()
}

// Wrap moves n inside wrapper, putting wrapper where n used to be.
// The wrapper keeps n's layout box.
func (d *Document) Wrap(n, wrapper *html.Node) {
	parent := n.Parent
	if parent == nil {
		return
	}
	if wrapper.Parent != nil {
		wrapper.Parent.RemoveChild(wrapper)
	}
	parent.InsertBefore(wrapper, n)
	parent.RemoveChild(n)
	wrapper.AppendChild(n)
	if box, ok := d.layout[n]; ok {
		if _, wrapped := d.layout[wrapper]; !wrapped {
			d.layout[wrapper] = box
		}
	}
	d.notify(MutationRecord{Target: parent, Added: []*html.Node{wrapper}, Removed: []*html.Node{n}})
}

// Observe registers a childList/subtree mutation callback for the whole document.
// The returned function unregisters it.
func (d *Document) Observe(fn func([]MutationRecord)) (disconnect func()) {
	d.nextID++
	id := d.nextID
	d.mutationObservers[id] = fn
	return func() {
		delete(d.mutationObservers, id)
	}
}

// ObserverCount reports how many mutation observers are registered
func (d *Document) ObserverCount() int {
	return len(d.mutationObservers)
}

func (d *Document) notify(batch ...MutationRecord) {
	ids := sortedKeys(d.mutationObservers)
	for _, id := range ids {
		// an earlier callback may have disconnected this one
		if fn, ok := d.mutationObservers[id]; ok {
			fn(batch)
		}
	}
}

// Render writes the tree back out as HTML
func (d *Document) Render(w io.Writer) error {
	return html.Render(w, d.root)
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}
