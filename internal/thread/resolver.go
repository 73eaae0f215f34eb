// Package thread reconstructs reply chains from feed layout.
//
// The feed exposes no thread or reply ids. Two consecutive feed cells are
// linked when the avatar column shows a connector line between them: a
// short line at the top of the lower cell or a long one reaching the bottom
// of the upper cell. Connector flags computed for a post are cached in
// marks and trusted as a fallback when layout detection comes up empty.
package thread

import (
	"fmt"

	"github.com/ibeckermayer/feedsieve/internal/dom"
	"github.com/ibeckermayer/feedsieve/internal/marks"
	"github.com/ibeckermayer/feedsieve/internal/scraper"
	"github.com/ibeckermayer/feedsieve/internal/types"
	"golang.org/x/net/html"
)

// Policy holds the connector detection thresholds, in CSS pixels
type Policy struct {
	MaxWidth        float64 `toml:"max_width"`
	ColumnTolerance float64 `toml:"column_tolerance"`
	TopTolerance    float64 `toml:"top_tolerance"`
	MinAboveHeight  float64 `toml:"min_above_height"`
	BottomTolerance float64 `toml:"bottom_tolerance"`
	MinBelowHeight  float64 `toml:"min_below_height"`
}

// DefaultPolicy returns the thresholds that match the feed's current rendering
func DefaultPolicy() Policy {
	return Policy{
		MaxWidth:        10,
		ColumnTolerance: 100,
		TopTolerance:    25,
		MinAboveHeight:  2,
		BottomTolerance: 15,
		MinBelowHeight:  15,
	}
}

// Resolver answers adjacency questions against a live document
type Resolver struct {
	doc    *dom.Document
	marks  *marks.Marks
	policy Policy
}

func NewResolver(doc *dom.Document, m *marks.Marks, policy Policy) *Resolver {
	return &Resolver{doc: doc, marks: m, policy: policy}
}

// connectors is what the layout scan of one cell found
type connectors struct {
	above bool
	below bool
}

// DetectAdjacency computes the thread links of post and caches them.
// A post outside any feed cell has no links.
func (r *Resolver) DetectAdjacency(post *html.Node) types.Adjacency {
	cell := dom.Closest(post, scraper.FeedCell)
	if cell == nil {
		return types.Adjacency{}
	}

	visual := r.scan(cell, post)
	var adj types.Adjacency

	if prev := postInCell(dom.PrevElementSibling(cell)); prev != nil {
		if visual.above {
			adj.HasAncestor = true
		} else if cached, ok := r.marks.CachedAdjacency(prev); ok && cached.HasDescendant {
			adj.HasAncestor = true
		}
	}

	adj.HasDescendant = visual.below
	if next := dom.NextElementSibling(cell); next != nil && isCell(next) && postInCell(next) == nil {
		adj.HasDescendant = false
	}

	r.marks.SetAdjacency(post, adj)
	return adj
}

// Context returns adjacency plus the ancestor chain text
func (r *Resolver) Context(post *html.Node) types.ThreadContext {
	adj := r.DetectAdjacency(post)
	ctx := types.ThreadContext{Adjacency: adj, AncestorChain: []string{}}
	if adj.HasAncestor {
		ctx.AncestorChain = r.AncestorChain(post)
	}
	return ctx
}

// AncestorChain walks upward while consecutive cells are linked and returns
// "[Thread @author: text]" entries, oldest first.
func (r *Resolver) AncestorChain(post *html.Node) []string {
	chain := []string{}
	for _, p := range r.walk(post, up) {
		chain = append([]string{fmt.Sprintf("[Thread @%s: %s]", scraper.Author(p), scraper.Text(p))}, chain...)
	}
	return chain
}

// FullThread returns every post linked to post, in feed order, post included
func (r *Resolver) FullThread(post *html.Node) []*html.Node {
	above := r.walk(post, up)
	thread := make([]*html.Node, 0, len(above)+1)
	for i := len(above) - 1; i >= 0; i-- {
		thread = append(thread, above[i])
	}
	thread = append(thread, post)
	return append(thread, r.walk(post, down)...)
}

type direction int

const (
	up direction = iota
	down
)

// walk follows links from post in one direction, nearest first
func (r *Resolver) walk(post *html.Node, dir direction) []*html.Node {
	var out []*html.Node
	cell := dom.Closest(post, scraper.FeedCell)
	current := post
	seen := map[*html.Node]bool{post: true}

	for cell != nil {
		var next *html.Node
		if dir == up {
			next = dom.PrevElementSibling(cell)
		} else {
			next = dom.NextElementSibling(cell)
		}
		neighbour := postInCell(next)
		if neighbour == nil || seen[neighbour] {
			break
		}

		var ok bool
		if dir == up {
			ok = r.linked(neighbour, current)
		} else {
			ok = r.linked(current, neighbour)
		}
		if !ok {
			break
		}
		seen[neighbour] = true
		out = append(out, neighbour)
		current = neighbour
		cell = next
	}
	return out
}

// linked is the per-link test between a post and the one directly below it
func (r *Resolver) linked(upper, lower *html.Node) bool {
	if cached, ok := r.marks.CachedAdjacency(upper); ok && cached.HasDescendant {
		return true
	}
	if cell := dom.Closest(upper, scraper.FeedCell); cell != nil && r.scan(cell, upper).below {
		return true
	}
	if cell := dom.Closest(lower, scraper.FeedCell); cell != nil && r.scan(cell, lower).above {
		return true
	}
	return false
}

// scan looks for connector lines inside cell, in the avatar column of post
func (r *Resolver) scan(cell, post *html.Node) connectors {
	var found connectors
	cellBox, ok := r.doc.Box(cell)
	if !ok {
		return found
	}
	postLeft := cellBox.Left
	if postBox, ok := r.doc.Box(post); ok {
		postLeft = postBox.Left
	}

	p := r.policy
	for _, div := range dom.FindAll(cell, "div") {
		if div == cell {
			continue
		}
		box, ok := r.doc.Box(div)
		if !ok || box.Width <= 0 || box.Height <= 0 {
			continue
		}
		if box.Width > p.MaxWidth || box.Height < box.Width {
			continue
		}
		if box.Left > postLeft+p.ColumnTolerance || dom.IsTransparent(box.Background) {
			continue
		}
		if box.Top <= cellBox.Top+p.TopTolerance && box.Height >= p.MinAboveHeight {
			found.above = true
		}
		if box.Bottom() >= cellBox.Bottom()-p.BottomTolerance && box.Height >= p.MinBelowHeight {
			found.below = true
		}
	}
	return found
}

func isCell(n *html.Node) bool {
	return dom.Matches(n, scraper.FeedCell)
}

// postInCell returns the post inside n when n is a feed cell
func postInCell(n *html.Node) *html.Node {
	if n == nil || !isCell(n) {
		return nil
	}
	return dom.FindFirst(n, scraper.Post)
}
