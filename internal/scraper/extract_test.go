package scraper

import (
	"testing"

	"github.com/ibeckermayer/feedsieve/internal/dom"
	"github.com/ibeckermayer/feedsieve/internal/feedtest"
	"github.com/ibeckermayer/feedsieve/internal/marks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const richPost = `<html><body><div data-testid="cellInnerDiv">
<article data-testid="tweet" id="p">
  <div data-testid="User-Name"><a href="/ada"><span>Ada   Lovelace</span></a> <span>@ada</span> <span>·</span> <time datetime="2025-03-01T10:00:00.000Z">3h</time></div>
  <div data-testid="tweetText"><span>Notes on the</span>
     <span>analytical   engine</span></div>
  <div data-testid="tweetPhoto">
    <img src="https://pbs.twimg.com/profile_images/1/avatar.jpg">
    <div><img src="https://pbs.twimg.com/media/abc?format=png&name=small"></div>
  </div>
  <div data-testid="videoPlayer"><video src="blob:https://x.com/v1"><source src="https://video.twimg.com/v1.mp4"></video></div>
  <div data-testid="card.wrapper"><span>example.com</span><span>An Example Page</span></div>
  <a href="https://example.com/read">read</a>
  <a href="https://x.com/ada/status/1">self</a>
  <a href="https://mobile.twitter.com/ada">old</a>
  <a href="http://insecure.example">plain</a>
  <a href="/relative">rel</a>
  <div><div data-testid="article-cover-image"></div><div>Article title</div><div>Article   body</div></div>
  <div data-testid="reply"><span>12</span></div>
  <div data-testid="retweet"><span>3</span></div>
  <div data-testid="like"><span>1.2K</span></div>
  <a data-testid="analytics" href="/ada/status/1/analytics"><span>40K</span></a>
</article></div></body></html>`

func TestExtractRichPost(t *testing.T) {
	doc, err := dom.ParseString(richPost)
	require.NoError(t, err)
	m := marks.New(&marks.SequenceIDs{Prefix: "c"})
	post := doc.Query("#p")[0]

	rec := NewExtractor(m).Extract(post)

	assert.Equal(t, "Notes on the analytical engine", rec.Text)
	assert.Equal(t, "Ada Lovelace @ada", rec.Author)
	assert.Equal(t, []string{"https://pbs.twimg.com/media/abc?format=jpg&name=large"}, rec.Media.Images)
	assert.Equal(t, []string{"blob:https://x.com/v1", "https://video.twimg.com/v1.mp4"}, rec.Media.Videos)
	assert.Equal(t, []string{"https://example.com/read"}, rec.ExternalLinks)
	assert.Equal(t, "2025-03-01T10:00:00.000Z", rec.Timestamp)
	assert.Equal(t, "12", rec.Metrics.Replies)
	assert.Equal(t, "3", rec.Metrics.Reposts)
	assert.Equal(t, "1.2K", rec.Metrics.Likes)
	assert.Equal(t, "40K", rec.Metrics.Views)
	assert.Equal(t, "Article title Article body", rec.ArticleText)
	assert.Equal(t, "example.com An Example Page", rec.CardText)
	assert.False(t, rec.ExtractedAt.IsZero())

	assert.Equal(t, "c1", rec.CorrelationID)
	found, ok := m.Lookup("c1")
	require.True(t, ok)
	assert.Same(t, post, found)
}

func TestExtractMissingFieldsAreEmpty(t *testing.T) {
	doc, err := dom.ParseString(`<html><body><article data-testid="tweet" id="p"></article></body></html>`)
	require.NoError(t, err)
	m := marks.New(&marks.SequenceIDs{})

	rec := NewExtractor(m).Extract(doc.Query("#p")[0])

	assert.Empty(t, rec.Text)
	assert.Empty(t, rec.Author)
	assert.NotNil(t, rec.Media.Images)
	assert.NotNil(t, rec.Media.Videos)
	assert.NotNil(t, rec.ExternalLinks)
	assert.Empty(t, rec.Metrics.Likes)
	assert.True(t, rec.IsEmpty())
	assert.NotEmpty(t, rec.CorrelationID)
}

func TestExtractRestampsID(t *testing.T) {
	doc := feedtest.Page(t, feedtest.Cell{ID: "a", Author: "Ann", Text: "hello"})
	m := marks.New(&marks.SequenceIDs{})
	ex := NewExtractor(m)
	post := feedtest.ByID(t, doc, "a")

	first := ex.Extract(post)
	second := ex.Extract(post)
	assert.NotEqual(t, first.CorrelationID, second.CorrelationID)
	assert.Equal(t, second.CorrelationID, m.CorrelationID(post))
	assert.Equal(t, "Ann @ann", first.Author)
}

func TestParseMetric(t *testing.T) {
	cases := map[string]int{
		"":      0,
		"423":   423,
		"1,234": 1234,
		"1.2K":  1200,
		"5.7M":  5700000,
		"3k":    3000,
		"n/a":   0,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseMetric(in), "ParseMetric(%q)", in)
	}
}
