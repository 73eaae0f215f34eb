package filter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ibeckermayer/feedsieve/internal/dom"
	"github.com/ibeckermayer/feedsieve/internal/types"
	"golang.org/x/net/html"
)

const (
	ClassBadge       = "fs-verdict-card"
	ClassBadgeIcon   = "fs-verdict-icon"
	ClassBadgeReason = "fs-verdict-reason"
	ClassDark        = "dark"

	badgeOffsetTop  = 8
	badgeOffsetLeft = 12
)

var rgbComponents = regexp.MustCompile(`\d+`)

// Badge is a floating verdict card anchored to a post
type Badge struct {
	Anchor  *html.Node
	Node    *html.Node
	Verdict types.Verdict

	top, left    float64
	pending      bool
	removeScroll func()
	disconnect   func()
}

// Label is the headline shown on the card
func Label(c types.Category) string {
	switch c {
	case types.Filtered:
		return "✗ Filtered"
	case types.Highlighted:
		return "★ Highlighted"
	default:
		return "✓ Allowed"
	}
}

func (e *Engine) showBadge(post *html.Node, v types.Verdict) {
	if _, ok := e.badges[post]; ok {
		return
	}

	dark := e.darkMode()
	class := ClassBadge + " " + string(v.Category)
	if dark {
		class += " " + ClassDark
	}
	card := dom.Element("div", "class", class, "data-correlation-id", v.CorrelationID)

	icon := dom.Element("div", "class", ClassBadgeIcon)
	icon.AppendChild(dom.TextNode(Label(v.Category)))
	card.AppendChild(icon)

	reason := v.Reason
	if reason == "" {
		reason = "analyzed"
	}
	reasonEl := dom.Element("div", "class", ClassBadgeReason)
	reasonEl.AppendChild(dom.TextNode(reason))
	card.AppendChild(reasonEl)

	b := &Badge{Anchor: post, Node: card, Verdict: v}
	e.badges[post] = b
	e.doc.Append(e.doc.Body(), card)
	b.position(e.doc)

	b.removeScroll = e.doc.OnScroll(func(float64) {
		if b.pending {
			return
		}
		b.pending = true
		e.doc.RequestAnimationFrame(func() {
			b.pending = false
			b.position(e.doc)
		})
	})
	b.disconnect = e.doc.Observe(func([]dom.MutationRecord) {
		if !e.doc.Contains(b.Anchor) {
			e.removeBadge(b)
		}
	})

	e.presenter.Badge(post, v, dark, DebugText(v))
}

// position places the card to the right of its anchor, in viewport coordinates
func (b *Badge) position(doc *dom.Document) {
	r := doc.ClientRect(b.Anchor)
	b.top = r.Top + badgeOffsetTop
	b.left = r.Right() + badgeOffsetLeft
	dom.SetAttr(b.Node, "style", fmt.Sprintf("top: %gpx; left: %gpx", b.top, b.left))
}

// Position returns the card's current top and left
func (b *Badge) Position() (top, left float64) {
	return b.top, b.left
}

func (e *Engine) removeBadge(b *Badge) {
	if _, ok := e.badges[b.Anchor]; !ok {
		return
	}
	delete(e.badges, b.Anchor)
	b.disconnect()
	b.removeScroll()
	e.doc.Remove(b.Node)
}

// Badge returns the card anchored to post
func (e *Engine) Badge(post *html.Node) (*Badge, bool) {
	b, ok := e.badges[post]
	return b, ok
}

// ActiveBadges returns the number of cards on the page
func (e *Engine) ActiveBadges() int {
	return len(e.badges)
}

// darkMode reports whether the page body paints a dark background
func (e *Engine) darkMode() bool {
	body := e.doc.Body()
	bg := dom.Attr(body, dom.AttrBackground)
	if box, ok := e.doc.Box(body); ok && box.Background != "" {
		bg = box.Background
	}
	return IsDark(bg)
}

// IsDark reports whether an rgb()/rgba() colour averages below mid grey
func IsDark(color string) bool {
	parts := rgbComponents.FindAllString(color, 3)
	if len(parts) < 3 {
		return false
	}
	sum := 0
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return false
		}
		sum += n
	}
	return sum/3 < 128
}

// DebugText renders a verdict with its diagnostic for copying into a bug report
func DebugText(v types.Verdict) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "FILTER DECISION: %s\n", strings.ToUpper(string(v.Category)))
	fmt.Fprintf(&sb, "REASON: %s\n", v.Reason)
	if v.Diagnostic == nil {
		return sb.String()
	}
	d := v.Diagnostic
	fmt.Fprintf(&sb, "\nPROMPT SENT:\n%s\n", d.Prompt)
	fmt.Fprintf(&sb, "\nTWEET TEXT SENT:\n@%s: %s\n", d.Inputs.Author, d.Inputs.Text)
	if len(d.Inputs.Images) > 0 {
		fmt.Fprintf(&sb, "\nIMAGES SENT (%d):\n%s\n", len(d.Inputs.Images), strings.Join(d.Inputs.Images, "\n"))
	} else {
		sb.WriteString("\nIMAGES SENT: none\n")
	}
	fmt.Fprintf(&sb, "\nMODEL RESPONSE:\n%s\n", d.RawResponse)
	return sb.String()
}
