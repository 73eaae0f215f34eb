// Package report renders the verdict history as a standalone HTML page.
package report

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/ibeckermayer/feedsieve/internal/store"
	"github.com/ibeckermayer/feedsieve/internal/types"
)

// Builder creates reports from stored verdicts
type Builder struct {
	maxPosts int
	template *template.Template
	now      func() time.Time
}

// New creates a new report builder
func New(maxPosts int) (*Builder, error) {
	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"percent": func(f float64) string { return fmt.Sprintf("%.0f%%", f*100) },
	}).Parse(defaultTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}

	return &Builder{
		maxPosts: maxPosts,
		template: tmpl,
		now:      time.Now,
	}, nil
}

// Report is a rendered report
type Report struct {
	Title     string
	HTMLBody  string
	PlainBody string
	CreatedAt time.Time
}

// Data is the template data structure
type Data struct {
	Title string
	Date  string
	Stats store.Stats
	Posts []PostData
}

// PostData represents one verdict row in the template
type PostData struct {
	Author   string
	Content  string
	Category string
	Label    string
	Reason   string
	Error    string
	Likes    int
	Reposts  int
	Replies  int
	IsReply  bool
	When     string
}

// Build renders records (newest first) with the window's stats
func (b *Builder) Build(records []store.Record, stats store.Stats) (*Report, error) {
	if len(records) > b.maxPosts {
		records = records[:b.maxPosts]
	}

	now := b.now()
	data := Data{
		Title: "feedsieve verdicts",
		Date:  now.Format("Monday, January 2 15:04"),
		Stats: stats,
		Posts: make([]PostData, len(records)),
	}

	for i, r := range records {
		data.Posts[i] = PostData{
			Author:   r.Author,
			Content:  truncate(r.Text, 280),
			Category: categoryClass(r),
			Label:    label(r),
			Reason:   r.Reason,
			Error:    r.Error,
			Likes:    r.Likes,
			Reposts:  r.Reposts,
			Replies:  r.Replies,
			IsReply:  r.IsReply,
			When:     r.SubmittedAt.Format("Jan 2 15:04"),
		}
	}

	var htmlBuf bytes.Buffer
	if err := b.template.Execute(&htmlBuf, data); err != nil {
		return nil, fmt.Errorf("failed to render template: %w", err)
	}

	return &Report{
		Title:     data.Title,
		HTMLBody:  htmlBuf.String(),
		PlainBody: buildPlainText(data),
		CreatedAt: now,
	}, nil
}

func categoryClass(r store.Record) string {
	switch {
	case r.Error != "":
		return "error"
	case r.Pending():
		return "pending"
	default:
		return string(r.Category)
	}
}

func label(r store.Record) string {
	switch categoryClass(r) {
	case "error":
		return "Error"
	case "pending":
		return "Pending"
	case string(types.Filtered):
		return "Filtered"
	case string(types.Highlighted):
		return "Highlighted"
	default:
		return "Allowed"
	}
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}

func buildPlainText(data Data) string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "%s\n%s\n\n", data.Title, data.Date)
	fmt.Fprintf(&buf, "%d posts: %d filtered, %d allowed, %d highlighted, %d errors, %d pending\n\n",
		data.Stats.Total, data.Stats.Filtered, data.Stats.Allowed, data.Stats.Highlighted,
		data.Stats.Errors, data.Stats.Pending)

	for i, p := range data.Posts {
		fmt.Fprintf(&buf, "%d. [%s] @%s: %s\n", i+1, p.Label, p.Author, p.Content)
		if p.Reason != "" {
			fmt.Fprintf(&buf, "   %s\n", p.Reason)
		}
		if p.Error != "" {
			fmt.Fprintf(&buf, "   error: %s\n", p.Error)
		}
	}
	return buf.String()
}

const defaultTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <title>{{.Title}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; max-width: 700px; margin: 0 auto; padding: 20px; background: #f5f5f5; }
        .container { background: white; border-radius: 8px; padding: 20px; }
        h1 { color: #1da1f2; margin-bottom: 5px; }
        .date { color: #666; margin-bottom: 20px; }
        .stats { color: #333; margin-bottom: 20px; }
        .post { border-bottom: 1px solid #eee; padding: 15px 0; }
        .post:last-child { border-bottom: none; }
        .author { font-weight: bold; color: #333; }
        .badge { padding: 2px 8px; border-radius: 12px; font-size: 12px; margin-left: 5px; }
        .filtered .badge { background: #fde8e8; color: #c0392b; }
        .allowed .badge { background: #e8f5fd; color: #1da1f2; }
        .highlighted .badge { background: #fff5d6; color: #b7791f; }
        .error .badge, .pending .badge { background: #eee; color: #666; }
        .content { margin: 10px 0; line-height: 1.4; }
        .reason { color: #1da1f2; font-style: italic; margin: 8px 0; }
        .metrics { color: #666; font-size: 13px; }
        .footer { margin-top: 20px; padding-top: 15px; border-top: 1px solid #eee; color: #999; font-size: 12px; text-align: center; }
    </style>
</head>
<body>
    <div class="container">
        <h1>{{.Title}}</h1>
        <div class="date">{{.Date}}</div>
        <div class="stats">
            {{.Stats.Total}} posts · {{.Stats.Filtered}} filtered ({{percent .Stats.FilterRate}}) · {{.Stats.Highlighted}} highlighted · {{.Stats.Errors}} errors
        </div>

        {{range .Posts}}
        <div class="post {{.Category}}">
            <div class="author">@{{.Author}}{{if .IsReply}} (reply){{end}} <span class="badge">{{.Label}}</span></div>
            <div class="content">{{.Content}}</div>
            {{if .Reason}}<div class="reason">{{.Reason}}</div>{{end}}
            {{if .Error}}<div class="reason">{{.Error}}</div>{{end}}
            <div class="metrics">{{.When}} · {{.Likes}} likes · {{.Reposts}} reposts · {{.Replies}} replies</div>
        </div>
        {{end}}

        <div class="footer">
            Showing {{len .Posts}} posts · Generated by feedsieve
        </div>
    </div>
</body>
</html>`
