package dom

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

const feedFixture = `<html><body>
<div id="feed">
  <div id="a" class="cell" data-fs-box="0,0,600,200" data-fs-bg="rgb(0, 0, 0)">first</div>
  <div id="b" class="cell" data-fs-box="1500,0,600,200">second</div>
</div>
</body></html>`

func mustParse(t *testing.T, s string) *Document {
	t.Helper()
	d, err := ParseString(s)
	require.NoError(t, err)
	return d
}

func byID(t *testing.T, d *Document, id string) *html.Node {
	t.Helper()
	nodes := d.Query("#" + id)
	require.Len(t, nodes, 1, "element #%s", id)
	return nodes[0]
}

func TestApplyLayoutAttrs(t *testing.T) {
	d := mustParse(t, feedFixture)
	assert.Equal(t, 2, d.ApplyLayoutAttrs())

	box, ok := d.Box(byID(t, d, "a"))
	require.True(t, ok)
	assert.Equal(t, Rect{Top: 0, Left: 0, Width: 600, Height: 200}, box.Rect)
	assert.Equal(t, "rgb(0, 0, 0)", box.Background)

	d.ScrollTo(1400)
	assert.Equal(t, float64(100), d.ClientRect(byID(t, d, "b")).Top)
}

func TestWriteLayoutAttrsRoundTrip(t *testing.T) {
	d := mustParse(t, `<html><body><div id="x"></div></body></html>`)
	x := byID(t, d, "x")
	d.SetBox(x, Box{Rect: Rect{Top: 10, Left: 20, Width: 2, Height: 40}, Background: "red"})
	d.WriteLayoutAttrs()

	var buf bytes.Buffer
	require.NoError(t, d.Render(&buf))

	replay := mustParse(t, buf.String())
	assert.Equal(t, 1, replay.ApplyLayoutAttrs())
	box, ok := replay.Box(byID(t, replay, "x"))
	require.True(t, ok)
	assert.Equal(t, float64(40), box.Height)
	assert.Equal(t, "red", box.Background)
}

func TestIsTransparent(t *testing.T) {
	assert.True(t, IsTransparent(""))
	assert.True(t, IsTransparent("rgba(0, 0, 0, 0)"))
	assert.True(t, IsTransparent("transparent"))
	assert.False(t, IsTransparent("rgb(51, 54, 57)"))
}

func TestClassHelpers(t *testing.T) {
	n := Element("div", "class", "one two")
	assert.True(t, HasClass(n, "two"))
	assert.True(t, AddClass(n, "three"))
	assert.False(t, AddClass(n, "three"))
	assert.Equal(t, "one two three", Attr(n, "class"))

	assert.True(t, RemoveClass(n, "one"))
	assert.False(t, RemoveClass(n, "one"))
	assert.Equal(t, []string{"two", "three"}, Classes(n))

	RemoveClass(n, "two")
	RemoveClass(n, "three")
	assert.False(t, HasAttr(n, "class"))
}

func TestFindAllIncludesSelf(t *testing.T) {
	d := mustParse(t, `<html><body><div id="outer" data-testid="tweetText"><span data-testid="tweetText">x</span></div></body></html>`)
	outer := byID(t, d, "outer")

	found := FindAll(outer, `[data-testid="tweetText"]`)
	require.Len(t, found, 2)
	assert.Equal(t, outer, found[0])
	assert.Equal(t, outer, Closest(found[1], "#outer"))
}

func TestMutationObserver(t *testing.T) {
	d := mustParse(t, feedFixture)
	feed := byID(t, d, "feed")

	var added, removed int
	disconnect := d.Observe(func(recs []MutationRecord) {
		for _, r := range recs {
			added += len(r.Added)
			removed += len(r.Removed)
		}
	})

	cell := Element("div", "class", "cell")
	d.Append(feed, cell)
	d.Remove(byID(t, d, "a"))
	assert.Equal(t, 1, added)
	assert.Equal(t, 1, removed)

	disconnect()
	assert.Zero(t, d.ObserverCount())
	d.Remove(cell)
	assert.Equal(t, 1, removed)
}

func TestWrapKeepsLayout(t *testing.T) {
	d := mustParse(t, feedFixture)
	d.ApplyLayoutAttrs()
	a := byID(t, d, "a")
	wrapper := Element("div", "class", "wrap")

	d.Wrap(a, wrapper)
	assert.Equal(t, wrapper, a.Parent)
	assert.Equal(t, "feed", Attr(wrapper.Parent, "id"))
	box, ok := d.Box(wrapper)
	require.True(t, ok)
	assert.Equal(t, float64(200), box.Height)
}

func TestIntersectionObserver(t *testing.T) {
	d := mustParse(t, feedFixture)
	d.ApplyLayoutAttrs()
	d.SetViewport(1000, 1000)
	a, b := byID(t, d, "a"), byID(t, d, "b")

	var got []IntersectionEntry
	obs := d.NewIntersectionObserver(IntersectionOptions{Threshold: 0.3, RootMargin: 100}, func(entries []IntersectionEntry) {
		got = append(got, entries...)
	})

	obs.Observe(a)
	obs.Observe(b)
	require.Len(t, got, 2)
	assert.True(t, got[0].IsIntersecting)
	assert.Equal(t, a, got[0].Target)
	assert.False(t, got[1].IsIntersecting)

	// b spans 1500-1700; the viewport plus margin now ends exactly at 1500 and a has left
	got = nil
	d.ScrollTo(400)
	require.Len(t, got, 1)
	assert.Equal(t, a, got[0].Target)
	assert.False(t, got[0].IsIntersecting)

	got = nil

	// reaches 1560: 60/200 = 0.3 of b
	d.ScrollTo(460)
	require.Len(t, got, 1)
	assert.Equal(t, b, got[0].Target)
	assert.True(t, got[0].IsIntersecting)
	assert.InDelta(t, 0.3, got[0].Ratio, 1e-9)

	obs.Unobserve(b)
	assert.False(t, obs.Observing(b))
	obs.Disconnect()
	assert.Zero(t, obs.Len())
}

func TestIntersectionIgnoresDetachedTargets(t *testing.T) {
	d := mustParse(t, feedFixture)
	d.ApplyLayoutAttrs()
	n := Element("div")
	d.SetBox(n, Box{Rect: Rect{Top: 0, Height: 100, Width: 100}})

	obs := d.NewIntersectionObserver(IntersectionOptions{Threshold: 0.3}, func([]IntersectionEntry) {})
	assert.False(t, obs.Measure(n).IsIntersecting)
}

func TestAnimationFrames(t *testing.T) {
	d := mustParse(t, feedFixture)
	ran := 0
	d.RequestAnimationFrame(func() {
		ran++
		d.RequestAnimationFrame(func() { ran++ })
	})
	assert.Equal(t, 1, d.Frame())
	assert.Equal(t, 1, ran)
	assert.Equal(t, 1, d.Frame())
	assert.Equal(t, 2, ran)
	assert.Zero(t, d.Frame())
}
