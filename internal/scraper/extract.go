package scraper

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ibeckermayer/feedsieve/internal/dom"
	"github.com/ibeckermayer/feedsieve/internal/marks"
	"github.com/ibeckermayer/feedsieve/internal/types"
	"golang.org/x/net/html"
)

var imageSizeQuery = regexp.MustCompile(`\?format=\w+&name=\w+`)

// Extractor turns a post element into a ContentRecord
type Extractor struct {
	marks *marks.Marks
	now   func() time.Time
}

// NewExtractor creates an extractor that stamps correlation ids into m
func NewExtractor(m *marks.Marks) *Extractor {
	return &Extractor{marks: m, now: time.Now}
}

// Extract snapshots the post's content. Missing regions produce empty
// values. Every call stamps a fresh correlation id on the element.
func (e *Extractor) Extract(post *html.Node) types.ContentRecord {
	rec := types.ContentRecord{
		Text:          joinText(dom.FindAll(post, PostText)),
		Author:        Author(post),
		Media:         types.Media{Images: images(post), Videos: videos(post)},
		ExternalLinks: externalLinks(post),
		Timestamp:     timestamp(post),
		Metrics: types.Metrics{
			Replies: firstText(post, ReplyCount),
			Reposts: firstText(post, RepostCount),
			Likes:   firstText(post, LikeCount),
			Views:   firstText(post, ViewCount),
		},
		ArticleText: articleText(post),
		CardText:    firstText(post, LinkCard),
		ExtractedAt: e.now(),
	}
	rec.CorrelationID = e.marks.StampID(post)
	return rec
}

// Text returns the post's own text without touching annotations
func Text(post *html.Node) string {
	return joinText(dom.FindAll(post, PostText))
}

// Author returns the first non-empty byline segment split on "·" or newline
func Author(post *html.Node) string {
	byline := joinText(dom.FindAll(post, PostAuthor))
	for _, part := range strings.FieldsFunc(byline, func(r rune) bool {
		return r == '·' || r == '\n'
	}) {
		if part = strings.TrimSpace(part); part != "" {
			return part
		}
	}
	return ""
}

// NodeText joins the trimmed text nodes under n with single spaces
func NodeText(n *html.Node) string {
	var parts []string
	var visit func(*html.Node)
	visit = func(c *html.Node) {
		if c.Type == html.TextNode {
			if s := strings.TrimSpace(c.Data); s != "" {
				parts = append(parts, s)
			}
			return
		}
		for k := c.FirstChild; k != nil; k = k.NextSibling {
			visit(k)
		}
	}
	visit(n)
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

func joinText(nodes []*html.Node) string {
	parts := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if s := NodeText(n); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

func firstText(post *html.Node, selector string) string {
	if n := dom.FindFirst(post, selector); n != nil {
		return NodeText(n)
	}
	return ""
}

func images(post *html.Node) []string {
	out := []string{}
	for _, container := range dom.FindAll(post, PostPhoto) {
		for _, img := range dom.FindAll(container, "img") {
			src := dom.Attr(img, "src")
			if src == "" || strings.Contains(src, "profile") {
				continue
			}
			out = append(out, imageSizeQuery.ReplaceAllLiteralString(src, "?format=jpg&name=large"))
		}
	}
	return out
}

func videos(post *html.Node) []string {
	out := []string{}
	for _, container := range dom.FindAll(post, PostVideo) {
		for _, v := range dom.FindAll(container, "video, source") {
			if src := dom.Attr(v, "src"); src != "" {
				out = append(out, src)
			}
		}
	}
	return out
}

func externalLinks(post *html.Node) []string {
	out := []string{}
	for _, a := range dom.FindAll(post, PostLink) {
		href := dom.Attr(a, "href")
		if !strings.HasPrefix(href, "https://") {
			continue
		}
		u, err := url.Parse(href)
		if err != nil || isFeedHost(u.Hostname()) {
			continue
		}
		out = append(out, href)
	}
	return out
}

func isFeedHost(host string) bool {
	host = strings.ToLower(host)
	for _, h := range feedHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

func timestamp(post *html.Node) string {
	if t := dom.FindFirst(post, PostTimestamp); t != nil {
		return dom.Attr(t, "datetime")
	}
	return ""
}

// articleText collects the text of the siblings following an article cover image
func articleText(post *html.Node) string {
	cover := dom.FindFirst(post, ArticleCover)
	if cover == nil || cover.Parent == nil {
		return ""
	}
	var parts []string
	for s := cover.NextSibling; s != nil; s = s.NextSibling {
		if s.Type != html.ElementNode {
			continue
		}
		if text := NodeText(s); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// ParseMetric converts abbreviated metric strings like "1.2K", "5.7M", or "423" to integers
func ParseMetric(s string) int {
	if s == "" {
		return 0
	}

	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", "")

	multiplier := 1.0
	if strings.HasSuffix(strings.ToUpper(s), "K") {
		multiplier = 1000
		s = s[:len(s)-1]
	} else if strings.HasSuffix(strings.ToUpper(s), "M") {
		multiplier = 1000000
		s = s[:len(s)-1]
	}

	value, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}

	return int(value * multiplier)
}
