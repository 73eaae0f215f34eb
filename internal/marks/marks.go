// Package marks keeps the per-post annotations the pipeline attaches to
// host-owned elements: correlation id, processed marker and cached thread
// connector flags.
//
// Annotations live in a side table keyed by node pointer with a reverse
// index by correlation id. They are advisory: a missing entry only means
// the information has to be recomputed from the document. The processed
// marker and correlation id stay with a post while it is detached, like an
// attribute on the element would.
package marks

import (
	"github.com/ibeckermayer/feedsieve/internal/types"
	"golang.org/x/net/html"
)

type entry struct {
	correlationID string
	processed     bool
	adjacency     *types.Adjacency
}

// Marks is the annotation table. Like the document it belongs to one event loop.
type Marks struct {
	ids      IDSource
	entries  map[*html.Node]*entry
	byID     map[string]*html.Node
	identity func(*html.Node) string
	detached map[string]*entry
}

// Option configures a Marks table
type Option func(*Marks)

// WithIdentity gives nodes a stable key besides their pointer. A detached
// node's annotations are kept under its key and handed to the next node
// attached with the same key, so markup re-parsed into fresh nodes keeps
// them. key returns "" for nodes without one.
func WithIdentity(key func(*html.Node) string) Option {
	return func(m *Marks) {
		m.identity = key
	}
}

// New creates an empty table issuing ids from ids
func New(ids IDSource, opts ...Option) *Marks {
	m := &Marks{
		ids:      ids,
		entries:  make(map[*html.Node]*entry),
		byID:     make(map[string]*html.Node),
		detached: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Marks) key(n *html.Node) string {
	if m.identity == nil {
		return ""
	}
	return m.identity(n)
}

func (m *Marks) get(n *html.Node) *entry {
	e, ok := m.entries[n]
	if !ok {
		e = &entry{}
		m.entries[n] = e
	}
	return e
}

// StampID generates a fresh correlation id for n, replacing any previous one
func (m *Marks) StampID(n *html.Node) string {
	e := m.get(n)
	if e.correlationID != "" {
		delete(m.byID, e.correlationID)
	}
	e.correlationID = m.ids.Next()
	m.byID[e.correlationID] = n
	return e.correlationID
}

// CorrelationID returns n's id, or "" if it was never stamped
func (m *Marks) CorrelationID(n *html.Node) string {
	if e, ok := m.entries[n]; ok {
		return e.correlationID
	}
	return ""
}

// Lookup finds the element stamped with id. The element may since have
// left the document; callers check that themselves.
func (m *Marks) Lookup(id string) (*html.Node, bool) {
	n, ok := m.byID[id]
	return n, ok
}

// MarkProcessed sets the processed marker. It reports false when the
// marker was already set.
func (m *Marks) MarkProcessed(n *html.Node) bool {
	e := m.get(n)
	if e.processed {
		return false
	}
	e.processed = true
	return true
}

func (m *Marks) IsProcessed(n *html.Node) bool {
	e, ok := m.entries[n]
	return ok && e.processed
}

// SetAdjacency caches the connector flags computed for n
func (m *Marks) SetAdjacency(n *html.Node, adj types.Adjacency) {
	m.get(n).adjacency = &adj
}

// CachedAdjacency returns the flags cached for n, if any
func (m *Marks) CachedAdjacency(n *html.Node) (types.Adjacency, bool) {
	e, ok := m.entries[n]
	if !ok || e.adjacency == nil {
		return types.Adjacency{}, false
	}
	return *e.adjacency, true
}

// Detach is called when n leaves the document. For n and its descendants
// the id index and cached connector flags are dropped; processed markers and
// correlation ids are kept for when the node is attached again.
func (m *Marks) Detach(n *html.Node) int {
	detached := 0
	walk(n, func(c *html.Node) {
		e, ok := m.entries[c]
		if !ok {
			return
		}
		detached++
		if e.correlationID != "" && m.byID[e.correlationID] == c {
			delete(m.byID, e.correlationID)
		}
		e.adjacency = nil
		keep := e.processed || e.correlationID != ""
		if key := m.key(c); key != "" {
			delete(m.entries, c)
			if keep {
				m.detached[key] = e
			}
		} else if !keep {
			delete(m.entries, c)
		}
	})
	return detached
}

// Attach restores what Detach kept for n and its descendants, picking up
// entries of detached nodes with the same identity. It returns the number
// of entries taken over from another node.
func (m *Marks) Attach(n *html.Node) int {
	adopted := 0
	walk(n, func(c *html.Node) {
		e, ok := m.entries[c]
		if !ok {
			key := m.key(c)
			if key == "" {
				return
			}
			if e, ok = m.detached[key]; !ok {
				return
			}
			delete(m.detached, key)
			m.entries[c] = e
			adopted++
		}
		if e.correlationID != "" {
			m.byID[e.correlationID] = c
		}
	})
	return adopted
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

// Len returns the number of annotated nodes
func (m *Marks) Len() int {
	return len(m.entries)
}
