package dom

import (
	"sort"

	"golang.org/x/net/html"
)

// IntersectionOptions mirrors the browser's IntersectionObserverInit for a
// single threshold. RootMargin grows the viewport on every side, in pixels.
type IntersectionOptions struct {
	Threshold  float64
	RootMargin float64
}

// IntersectionEntry is delivered when a target crosses the threshold
type IntersectionEntry struct {
	Target         *html.Node
	Ratio          float64
	IsIntersecting bool
}

// IntersectionObserver watches targets against the document viewport.
// The callback receives entries whenever a target's intersecting state
// changes, including an initial entry right after Observe.
type IntersectionObserver struct {
	doc      *Document
	id       int
	opts     IntersectionOptions
	callback func([]IntersectionEntry)

	targets map[*html.Node]*targetState
	seq     int
}

type targetState struct {
	seq       int
	delivered bool
	last      bool
}

// NewIntersectionObserver registers an observer on d
func (d *Document) NewIntersectionObserver(opts IntersectionOptions, callback func([]IntersectionEntry)) *IntersectionObserver {
	d.nextID++
	o := &IntersectionObserver{
		doc:      d,
		id:       d.nextID,
		opts:     opts,
		callback: callback,
		targets:  make(map[*html.Node]*targetState),
	}
	d.intersection[o.id] = o
	return o
}

// Observe starts watching n. Observing a target twice is a no-op.
func (o *IntersectionObserver) Observe(n *html.Node) {
	if _, ok := o.targets[n]; ok {
		return
	}
	o.seq++
	o.targets[n] = &targetState{seq: o.seq}
	if _, registered := o.doc.intersection[o.id]; !registered {
		o.doc.intersection[o.id] = o
	}
	o.doc.checkIntersections()
}

// Unobserve stops watching n
func (o *IntersectionObserver) Unobserve(n *html.Node) {
	delete(o.targets, n)
}

// Observing reports whether n is currently watched
func (o *IntersectionObserver) Observing(n *html.Node) bool {
	_, ok := o.targets[n]
	return ok
}

// Len returns the number of watched targets
func (o *IntersectionObserver) Len() int {
	return len(o.targets)
}

// Disconnect drops every target and detaches the observer from its document
func (o *IntersectionObserver) Disconnect() {
	o.targets = make(map[*html.Node]*targetState)
	delete(o.doc.intersection, o.id)
}

// Measure computes the current entry for n without delivering it
func (o *IntersectionObserver) Measure(n *html.Node) IntersectionEntry {
	entry := IntersectionEntry{Target: n}
	if !o.doc.Contains(n) {
		return entry
	}
	box, ok := o.doc.layout[n]
	if !ok {
		return entry
	}

	vp := o.doc.Viewport()
	top := vp.Top - o.opts.RootMargin
	bottom := vp.Bottom() + o.opts.RootMargin

	if box.Height <= 0 {
		if box.Top >= top && box.Top <= bottom {
			entry.Ratio = 1
		}
	} else {
		overlap := min(box.Bottom(), bottom) - max(box.Top, top)
		if overlap > 0 {
			entry.Ratio = overlap / box.Height
		}
	}
	entry.IsIntersecting = entry.Ratio > 0 && entry.Ratio >= o.opts.Threshold
	return entry
}

func (o *IntersectionObserver) collect() []IntersectionEntry {
	var changed []IntersectionEntry
	var order []*targetState
	for n, st := range o.targets {
		e := o.Measure(n)
		if st.delivered && st.last == e.IsIntersecting {
			continue
		}
		st.delivered = true
		st.last = e.IsIntersecting
		changed = append(changed, e)
		order = append(order, st)
	}
	if len(changed) < 2 {
		return changed
	}
	idx := make([]int, len(changed))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool {
		return order[idx[a]].seq < order[idx[b]].seq
	})
	sorted := make([]IntersectionEntry, len(changed))
	for i, j := range idx {
		sorted[i] = changed[j]
	}
	return sorted
}

// checkIntersections re-measures every observer. Callbacks that mutate the
// document trigger another pass once the current one finishes.
func (d *Document) checkIntersections() {
	if d.checking {
		d.recheck = true
		return
	}
	d.checking = true
	defer func() { d.checking = false }()

	for {
		d.recheck = false
		for _, id := range sortedKeys(d.intersection) {
			o, ok := d.intersection[id]
			if !ok {
				continue
			}
			if entries := o.collect(); len(entries) > 0 {
				o.callback(entries)
			}
		}
		if !d.recheck {
			return
		}
	}
}
