// Package feedtest builds synthetic feed pages with layout for tests.
package feedtest

import (
	"fmt"
	"strings"
	"testing"

	"github.com/ibeckermayer/feedsieve/internal/dom"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

// Geometry of generated cells
const (
	CellHeight   = 200
	CellWidth    = 600
	ConnectorBG  = "rgb(51, 54, 57)"
	connectorX   = 40
	connectorW   = 2
	aboveHeight  = 12
	belowTopSkip = 60
)

// Cell describes one feed cell
type Cell struct {
	ID     string
	Author string
	Text   string
	Images []string

	// Visual connector lines drawn in the avatar column
	Above bool
	Below bool

	// NoPost renders a cell without a post ("Show more", separators)
	NoPost bool
	// Extra is raw markup appended inside the post
	Extra string
}

// Markup renders cells into a full page inside the primary column
func Markup(cells ...Cell) string {
	var sb strings.Builder
	sb.WriteString(`<html><body data-fs-box="0,0,1920,100000" data-fs-bg="rgb(0, 0, 0)"><main><div data-testid="primaryColumn"><section><div id="timeline">`)
	for i, c := range cells {
		writeCell(&sb, i, c)
	}
	sb.WriteString(`</div></section></div></main></body></html>`)
	return sb.String()
}

// CellMarkup renders one cell at position i, for insertion into a live document
func CellMarkup(i int, c Cell) string {
	var sb strings.Builder
	writeCell(&sb, i, c)
	return sb.String()
}

func writeCell(sb *strings.Builder, i int, c Cell) {
	top := float64(i * CellHeight)
	box := dom.FormatRect(dom.Rect{Top: top, Width: CellWidth, Height: CellHeight})
	fmt.Fprintf(sb, `<div data-testid="cellInnerDiv" id="cell-%s" data-fs-box="%s">`, c.ID, box)
	if c.NoPost {
		sb.WriteString(`<div>Show more</div></div>`)
		return
	}
	fmt.Fprintf(sb, `<article data-testid="tweet" id="%s" data-fs-box="%s">`, c.ID, box)
	if c.Above {
		r := dom.Rect{Top: top, Left: connectorX, Width: connectorW, Height: aboveHeight}
		fmt.Fprintf(sb, `<div id="%s-above" data-fs-box="%s" data-fs-bg="%s"></div>`, c.ID, dom.FormatRect(r), ConnectorBG)
	}
	if c.Below {
		r := dom.Rect{Top: top + belowTopSkip, Left: connectorX, Width: connectorW, Height: CellHeight - belowTopSkip}
		fmt.Fprintf(sb, `<div id="%s-below" data-fs-box="%s" data-fs-bg="%s"></div>`, c.ID, dom.FormatRect(r), ConnectorBG)
	}
	if c.Author != "" {
		fmt.Fprintf(sb, `<div data-testid="User-Name"><span>%s</span><span>@%s</span><span>·</span><time datetime="2025-01-02T03:04:05.000Z">2h</time></div>`,
			c.Author, strings.ToLower(c.Author))
	}
	if c.Text != "" {
		fmt.Fprintf(sb, `<div data-testid="tweetText"><span>%s</span></div>`, html.EscapeString(c.Text))
	}
	if len(c.Images) > 0 {
		sb.WriteString(`<div data-testid="tweetPhoto">`)
		for _, src := range c.Images {
			fmt.Fprintf(sb, `<img src="%s">`, html.EscapeString(src))
		}
		sb.WriteString(`</div>`)
	}
	sb.WriteString(c.Extra)
	sb.WriteString(`</article></div>`)
}

// Page parses cells into a document with layout applied
func Page(t testing.TB, cells ...Cell) *dom.Document {
	t.Helper()
	doc, err := dom.ParseString(Markup(cells...))
	require.NoError(t, err)
	doc.ApplyLayoutAttrs()
	return doc
}

// ByID returns the single element with the given id
func ByID(t testing.TB, doc *dom.Document, id string) *html.Node {
	t.Helper()
	nodes := doc.Query(`[id="` + id + `"]`)
	require.Len(t, nodes, 1, "element #%s", id)
	return nodes[0]
}

// Timeline returns the element holding the cells
func Timeline(t testing.TB, doc *dom.Document) *html.Node {
	return ByID(t, doc, "timeline")
}

// InsertCell parses a cell and appends it to the timeline with its layout
func InsertCell(t testing.TB, doc *dom.Document, i int, c Cell) *html.Node {
	t.Helper()
	nodes, err := dom.ParseFragment(CellMarkup(i, c))
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	cell := nodes[0]

	// layout has to be known before the insertion is observed
	for _, n := range dom.FindAll(cell, "["+dom.AttrBox+"]") {
		doc.SetBox(n, boxFromAttrs(t, n))
	}
	doc.Append(Timeline(t, doc), cell)
	return cell
}

func boxFromAttrs(t testing.TB, n *html.Node) dom.Box {
	r, err := dom.ParseRect(dom.Attr(n, dom.AttrBox))
	require.NoError(t, err)
	return dom.Box{Rect: r, Background: dom.Attr(n, dom.AttrBackground)}
}
