package dom

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// Layout attributes used to persist boxes inside HTML snapshots and fixtures.
// data-fs-box holds "top,left,width,height" in document coordinates.
const (
	AttrBox        = "data-fs-box"
	AttrBackground = "data-fs-bg"
)

// Rect is an axis-aligned rectangle
type Rect struct {
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (r Rect) Bottom() float64 { return r.Top + r.Height }
func (r Rect) Right() float64  { return r.Left + r.Width }

// Box is the rendered geometry and computed background of an element
type Box struct {
	Rect
	Background string `json:"background"`
}

// SetBox records the layout of n in document coordinates
func (d *Document) SetBox(n *html.Node, b Box) {
	d.layout[n] = b
	d.checkIntersections()
}

// Box returns the recorded layout of n
func (d *Document) Box(n *html.Node) (Box, bool) {
	b, ok := d.layout[n]
	return b, ok
}

// ClientRect returns n's box relative to the viewport, like getBoundingClientRect.
// Elements without layout report a zero rect.
func (d *Document) ClientRect(n *html.Node) Rect {
	b, ok := d.layout[n]
	if !ok {
		return Rect{}
	}
	r := b.Rect
	r.Top -= d.scrollY
	return r
}

// SetViewport resizes the viewport
func (d *Document) SetViewport(width, height float64) {
	d.viewportW = width
	d.viewportH = height
	d.checkIntersections()
}

// Viewport returns the visible area in document coordinates
func (d *Document) Viewport() Rect {
	return Rect{Top: d.scrollY, Width: d.viewportW, Height: d.viewportH}
}

// ScrollY returns the current vertical scroll offset
func (d *Document) ScrollY() float64 {
	return d.scrollY
}

// ScrollTo moves the viewport and fires scroll listeners and intersection checks
func (d *Document) ScrollTo(y float64) {
	if y < 0 {
		y = 0
	}
	d.scrollY = y

	for _, id := range sortedKeys(d.scrollListeners) {
		if fn, ok := d.scrollListeners[id]; ok {
			fn(y)
		}
	}
	d.checkIntersections()
}

// OnScroll registers a scroll listener. The returned function removes it.
func (d *Document) OnScroll(fn func(y float64)) (remove func()) {
	d.nextID++
	id := d.nextID
	d.scrollListeners[id] = fn
	return func() {
		delete(d.scrollListeners, id)
	}
}

// ScrollListenerCount reports how many scroll listeners are attached
func (d *Document) ScrollListenerCount() int {
	return len(d.scrollListeners)
}

// RequestAnimationFrame queues fn for the next Frame
func (d *Document) RequestAnimationFrame(fn func()) {
	d.frames = append(d.frames, fn)
}

// Frame runs the callbacks queued so far and returns how many ran.
// Callbacks queued while running wait for the following frame.
func (d *Document) Frame() int {
	pending := d.frames
	d.frames = nil
	for _, fn := range pending {
		fn()
	}
	return len(pending)
}

// IsTransparent reports whether a computed background colour paints nothing
func IsTransparent(bg string) bool {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(bg)), " ", "")
	switch normalized {
	case "", "transparent", "rgba(0,0,0,0)", "none":
		return true
	}
	return false
}

// ApplyLayoutAttrs loads boxes from data-fs-box / data-fs-bg attributes.
// It returns the number of boxes applied.
func (d *Document) ApplyLayoutAttrs() int {
	applied := 0
	for _, n := range d.Query("[" + AttrBox + "]") {
		r, err := ParseRect(Attr(n, AttrBox))
		if err != nil {
			continue
		}
		d.layout[n] = Box{Rect: r, Background: Attr(n, AttrBackground)}
		applied++
	}
	d.checkIntersections()
	return applied
}

// WriteLayoutAttrs stamps every known box back onto its element so a
// rendered snapshot can be replayed with ApplyLayoutAttrs.
func (d *Document) WriteLayoutAttrs() {
	for n, b := range d.layout {
		if n.Type != html.ElementNode {
			continue
		}
		SetAttr(n, AttrBox, FormatRect(b.Rect))
		if b.Background != "" {
			SetAttr(n, AttrBackground, b.Background)
		}
	}
}

// FormatRect renders a rect in the data-fs-box format
func FormatRect(r Rect) string {
	return fmt.Sprintf("%g,%g,%g,%g", r.Top, r.Left, r.Width, r.Height)
}

// ParseRect reads the data-fs-box format
func ParseRect(s string) (Rect, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Rect{}, fmt.Errorf("invalid box %q", s)
	}
	var vals [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Rect{}, fmt.Errorf("invalid box %q: %w", s, err)
		}
		vals[i] = v
	}
	return Rect{Top: vals[0], Left: vals[1], Width: vals[2], Height: vals[3]}, nil
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
