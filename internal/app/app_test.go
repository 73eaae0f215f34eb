package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/ibeckermayer/feedsieve/internal/analyzer"
	"github.com/ibeckermayer/feedsieve/internal/analyzer/providers"
	"github.com/ibeckermayer/feedsieve/internal/auth"
	"github.com/ibeckermayer/feedsieve/internal/cache"
	"github.com/ibeckermayer/feedsieve/internal/config"
	"github.com/ibeckermayer/feedsieve/internal/dom"
	"github.com/ibeckermayer/feedsieve/internal/feedtest"
	"github.com/ibeckermayer/feedsieve/internal/marks"
	"github.com/ibeckermayer/feedsieve/internal/scraper"
	"github.com/ibeckermayer/feedsieve/internal/store"
	"github.com/ibeckermayer/feedsieve/internal/types"
)

// keywordProvider filters anything mentioning spam and fails on "fail"
type keywordProvider struct {
	calls atomic.Int64
}

func (p *keywordProvider) Name() string  { return "keyword" }
func (p *keywordProvider) Model() string { return "keyword-1" }

func (p *keywordProvider) Classify(_ context.Context, req types.ClassifyRequest, _ config.CriteriaConfig) (providers.Outcome, error) {
	p.calls.Add(1)
	switch {
	case strings.Contains(req.Text, "fail"):
		return providers.Outcome{RawResponse: "garbage"}, errors.New("no JSON object in response")
	case strings.Contains(req.Text, "spam"):
		return providers.Outcome{Category: types.Filtered, Reason: "spam"}, nil
	default:
		return providers.Outcome{Category: types.Allowed, Reason: "fine"}, nil
	}
}

var _ analyzer.Provider = (*keywordProvider)(nil)

func newApp(t *testing.T, tweak func(*config.Config)) (*App, *keywordProvider) {
	t.Helper()
	cfg := config.Default()
	if tweak != nil {
		tweak(cfg)
	}

	dir := t.TempDir()
	st, err := store.New(filepath.Join(dir, "history.db"))
	require.NoError(t, err)
	provider := &keywordProvider{}

	a, err := New(t.Context(), cfg,
		WithStore(st),
		WithCache(cache.Nop{}),
		WithProvider(provider),
		WithAuth(auth.NewManager(auth.NewCookieStore(filepath.Join(dir, "cookies.json")))),
		WithIDs(&marks.SequenceIDs{Prefix: "p"}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a, provider
}

func replayCells() []feedtest.Cell {
	return []feedtest.Cell{
		{ID: "x", Author: "Xavier", Text: "unrelated"},
		{ID: "a", Author: "Ann", Text: "root post", Below: true},
		{ID: "b", Author: "Bob", Text: "first reply", Above: true, Below: true},
		{ID: "c", Author: "Cy", Text: "buy my spam", Above: true},
		{ID: "y", Author: "Yui", Text: "nice weather"},
		{ID: "z", Author: "Zoe", Text: "more spam here"},
		{ID: "w", Author: "Wes", Text: "this will fail"},
		{ID: "v", Author: "Val", Text: "photo dump"},
		{ID: "u", Author: "Uma", Text: "last one"},
	}
}

func TestReplayClassifiesWholeSnapshot(t *testing.T) {
	a, provider := newApp(t, nil)

	res, err := a.Replay(t.Context(), strings.NewReader(feedtest.Markup(replayCells()...)))
	require.NoError(t, err)

	assert.Equal(t, 9, res.Submitted, "scrolling brings every post into view")
	assert.Len(t, res.Results, 9)
	assert.EqualValues(t, 9, provider.calls.Load())
	// the filtered reply takes its thread with it
	assert.Equal(t, 4, res.Treated)

	var failed int
	for _, r := range res.Results {
		if r.Error != "" {
			failed++
		}
	}
	assert.Equal(t, 1, failed)

	records, err := a.Store().Recent(50)
	require.NoError(t, err)
	require.Len(t, records, 9)
	for _, r := range records {
		assert.False(t, r.Pending(), "record %s", r.CorrelationID)
	}
}

func TestToggleSweepsAndResumes(t *testing.T) {
	a, _ := newApp(t, nil)
	_, err := a.Replay(t.Context(), strings.NewReader(feedtest.Markup(replayCells()...)))
	require.NoError(t, err)
	require.Positive(t, a.pipeline.Treated())

	a.SetEnabled(false)
	a.loop.Drain()
	assert.Zero(t, a.pipeline.Treated())
	assert.False(t, a.Settings().Enabled())

	// a redundant toggle posts nothing
	a.SetEnabled(false)
	assert.Zero(t, a.loop.Pending())

	a.SetEnabled(true)
	a.loop.Drain()
	assert.True(t, a.Settings().Enabled())
	assert.Equal(t, 9, a.pipeline.Dispatcher().Stats().Submitted, "processed posts are never dispatched again")
}

func TestQueueOverflowBecomesErrorResult(t *testing.T) {
	a, _ := newApp(t, func(cfg *config.Config) {
		cfg.Analysis.QueueSize = 1
		cfg.Analysis.Workers = 1
	})

	var results []types.AnalysisResult
	a.onResult = func(r types.AnalysisResult) { results = append(results, r) }

	doc := feedtest.Page(t, feedtest.Cell{ID: "a", Text: "one"}, feedtest.Cell{ID: "b", Text: "two"}, feedtest.Cell{ID: "c", Text: "three"})
	p := a.Attach(doc, nil, nil)
	p.Start()
	defer p.Stop()
	a.loop.Drain()

	// the classifier is not running, so one request waits and the rest overflow
	assert.Equal(t, 3, a.submitted)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, analyzer.ErrQueueFull.Error(), r.Error)
	}
	assert.Zero(t, p.Treated())

	rec, err := a.Store().Get(results[0].CorrelationID)
	require.NoError(t, err)
	assert.Equal(t, analyzer.ErrQueueFull.Error(), rec.Error)
}

func TestWriteReport(t *testing.T) {
	cacheDir := t.TempDir()
	t.Setenv("XDG_CACHE_HOME", cacheDir)
	t.Setenv("HOME", cacheDir)

	a, _ := newApp(t, nil)
	_, err := a.Replay(t.Context(), strings.NewReader(feedtest.Markup(replayCells()...)))
	require.NoError(t, err)

	path, err := a.WriteReport(t.Context())
	require.NoError(t, err)
	assert.Equal(t, ".html", filepath.Ext(path))

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(body), "more spam here")
}

func TestRunLiveRequiresLogin(t *testing.T) {
	a, _ := newApp(t, nil)
	assert.ErrorIs(t, a.RunLive(t.Context()), ErrNotLoggedIn)
}

func TestScheduledJobs(t *testing.T) {
	a, _ := newApp(t, func(cfg *config.Config) {
		cfg.Store.ReportSchedule = "0 8 * * *"
	})
	var names []string
	for _, j := range a.Scheduler().ListJobs() {
		names = append(names, j.Name)
	}
	assert.Equal(t, []string{"prune", "report"}, names)
}

// pageLog records the commands a mirror sends to the page
type pageLog struct {
	sent []string
}

func (l *pageLog) send(cmd string) { l.sent = append(l.sent, cmd) }

func (l *pageLog) last() string {
	if len(l.sent) == 0 {
		return ""
	}
	return l.sent[len(l.sent)-1]
}

func (l *pageLog) count(fn string) int {
	n := 0
	for _, s := range l.sent {
		if strings.Contains(s, "__fs."+fn+"(") {
			n++
		}
	}
	return n
}

// mirroredCell renders a cell event with every element stamped with a page id
func mirroredCell(t *testing.T, i int, c feedtest.Cell) scraper.Event {
	t.Helper()
	nodes, err := dom.ParseFragment(feedtest.CellMarkup(i, c))
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	for j, n := range dom.FindAll(nodes[0], "*") {
		id := dom.Attr(n, "id")
		if id == "" {
			id = fmt.Sprintf("%s-n%d", c.ID, j)
		}
		dom.SetAttr(n, scraper.AttrNode, id)
	}
	var buf bytes.Buffer
	require.NoError(t, html.Render(&buf, nodes[0]))
	return scraper.Event{Type: scraper.EventCell, ID: "cell-" + c.ID, HTML: buf.String()}
}

func pageEvent(t *testing.T, m *scraper.Mirror, ev scraper.Event) {
	t.Helper()
	payload, err := json.Marshal(ev)
	require.NoError(t, err)
	require.NoError(t, m.Handle(string(payload)))
}

// settle drains the loop until every submitted post has a verdict
func settle(t *testing.T, a *App) {
	t.Helper()
	require.Eventually(t, func() bool {
		a.loop.Drain()
		return a.resolved >= a.submitted
	}, 5*time.Second, 5*time.Millisecond)
}

func TestPageToggleSweepsAndResumes(t *testing.T) {
	a, _ := newApp(t, nil)
	go a.classifier.Run(t.Context())

	page := &pageLog{}
	mirror := scraper.NewMirror(page.send, scraper.Handlers{})
	p := a.attachMirror(mirror)
	p.Start()
	defer p.Stop()
	assert.Equal(t, `window.__fs && window.__fs.enabled(true)`, page.last())

	pageEvent(t, mirror, mirroredCell(t, 0, feedtest.Cell{ID: "a", Author: "Ann", Text: "buy my spam"}))
	b := mirroredCell(t, 1, feedtest.Cell{ID: "b", Author: "Bob", Text: "nice weather"})
	b.Prev = "cell-a"
	pageEvent(t, mirror, b)
	pageEvent(t, mirror, scraper.Event{Type: scraper.EventIntersect, Entries: []scraper.IntersectEntry{
		{ID: "a", Ratio: 1, Intersecting: true},
		{ID: "b", Ratio: 1, Intersecting: true},
	}})
	settle(t, a)
	require.Equal(t, 2, a.submitted)
	assert.Equal(t, 1, p.Treated())
	assert.Equal(t, 1, page.count("treat"))
	assert.Equal(t, 2, page.count("badge"))

	// the page switch turns filtering off
	pageEvent(t, mirror, scraper.Event{Type: scraper.EventToggle})
	a.loop.Drain()
	assert.False(t, a.Settings().Enabled())
	assert.Zero(t, p.Treated())
	assert.Equal(t, 1, page.count("clear"))
	assert.Equal(t, `window.__fs && window.__fs.enabled(false)`, page.last())

	// posts seen while off wait for the switch
	c := mirroredCell(t, 2, feedtest.Cell{ID: "c", Author: "Cy", Text: "more spam"})
	c.Prev = "cell-b"
	pageEvent(t, mirror, c)
	pageEvent(t, mirror, scraper.Event{Type: scraper.EventIntersect, Entries: []scraper.IntersectEntry{{ID: "c", Ratio: 1, Intersecting: true}}})
	a.loop.Drain()
	assert.Equal(t, 2, a.submitted)

	pageEvent(t, mirror, scraper.Event{Type: scraper.EventToggle})
	a.loop.Drain()
	assert.True(t, a.Settings().Enabled())
	assert.Equal(t, `window.__fs && window.__fs.enabled(true)`, page.last())
}

func TestReloadAppliesSettings(t *testing.T) {
	a, _ := newApp(t, nil)
	_, err := a.Replay(t.Context(), strings.NewReader(feedtest.Markup(replayCells()...)))
	require.NoError(t, err)
	require.Positive(t, a.pipeline.Treated())

	cfg := config.Default()
	cfg.DisplayMode = types.Hide
	a.Reload(cfg)
	assert.Zero(t, a.loop.Pending(), "an unchanged switch posts nothing")
	assert.Equal(t, types.Hide, a.Settings().DisplayMode())

	cfg = config.Default()
	cfg.Enabled = false
	a.Reload(cfg)
	a.loop.Drain()
	assert.False(t, a.Settings().Enabled())
	assert.Zero(t, a.pipeline.Treated())
}

func TestDumpRecordsAfterReplay(t *testing.T) {
	cacheDir := t.TempDir()
	t.Setenv("XDG_CACHE_HOME", cacheDir)
	t.Setenv("HOME", cacheDir)

	a, _ := newApp(t, func(cfg *config.Config) {
		cfg.Scraping.DumpRecords = true
	})
	_, err := a.Replay(t.Context(), strings.NewReader(feedtest.Markup(replayCells()...)))
	require.NoError(t, err)

	dir, err := store.DumpDir(store.DumpRecords)
	require.NoError(t, err)
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	var records []types.ContentRecord
	require.NoError(t, json.Unmarshal(data, &records))
	assert.Len(t, records, 9)
}
