package types

import "time"

// Category is the classifier's verdict for a post
type Category string

const (
	Filtered    Category = "filtered"
	Allowed     Category = "allowed"
	Highlighted Category = "highlighted"
)

// ParseCategory maps a raw verdict string to a Category.
// Unknown values are treated as Allowed so a confused model never hides content.
func ParseCategory(s string) Category {
	switch Category(s) {
	case Filtered, Highlighted:
		return Category(s)
	default:
		return Allowed
	}
}

// DisplayMode selects how filtered posts are suppressed
type DisplayMode string

const (
	Blur DisplayMode = "blur"
	Hide DisplayMode = "hide"
)

// Treatment is the visual state the filter engine has applied to a post
type Treatment int

const (
	Untreated Treatment = iota
	Blurred
	Hidden
	BadgeOnly
)

func (t Treatment) String() string {
	switch t {
	case Blurred:
		return "blurred"
	case Hidden:
		return "hidden"
	case BadgeOnly:
		return "badge-only"
	default:
		return "untreated"
	}
}

// Media holds the media references found in a post
type Media struct {
	Images []string `json:"images"`
	Videos []string `json:"videos"`
}

// Metrics holds engagement counters as rendered by the feed ("1.2K", "34")
type Metrics struct {
	Replies string `json:"replies"`
	Reposts string `json:"reposts"`
	Likes   string `json:"likes"`
	Views   string `json:"views"`
}

// ContentRecord is an immutable snapshot of a post taken at first visibility
type ContentRecord struct {
	CorrelationID string    `json:"correlation_id"`
	Text          string    `json:"text"`
	Author        string    `json:"author"`
	Media         Media     `json:"media"`
	ExternalLinks []string  `json:"external_links"`
	Timestamp     string    `json:"timestamp"`
	Metrics       Metrics   `json:"metrics"`
	ArticleText   string    `json:"article_text"`
	CardText      string    `json:"card_text"`
	ExtractedAt   time.Time `json:"extracted_at"`
}

// IsEmpty reports whether the record carries nothing worth classifying
func (c ContentRecord) IsEmpty() bool {
	return c.Text == "" && len(c.Media.Images) == 0
}

// Adjacency describes the inferred thread links of a single post
type Adjacency struct {
	HasAncestor   bool `json:"has_ancestor"`
	HasDescendant bool `json:"has_descendant"`
}

// ThreadContext is derived relationship data, recomputed on demand
type ThreadContext struct {
	Adjacency
	AncestorChain []string `json:"ancestor_chain"`
}

// ClassifyRequest is what the classifier collaborator receives
type ClassifyRequest struct {
	CorrelationID string   `json:"correlation_id"`
	Text          string   `json:"text"`
	Author        string   `json:"author,omitempty"`
	Images        []string `json:"images,omitempty"`
	Criteria      string   `json:"criteria,omitempty"`
}

// Diagnostic captures what was sent to the model and what came back
type Diagnostic struct {
	Prompt      string          `json:"prompt"`
	RawResponse string          `json:"raw_response"`
	Inputs      ClassifyRequest `json:"inputs"`
}

// Verdict is a classification outcome for one correlation id
type Verdict struct {
	CorrelationID string      `json:"correlation_id"`
	Category      Category    `json:"category"`
	Reason        string      `json:"reason"`
	Diagnostic    *Diagnostic `json:"diagnostic,omitempty"`
}

// NewPost is the "newTweet" message sent to the classifier-dispatch side.
// Content.Text holds the contextual text (thread chain + own text).
type NewPost struct {
	Content       ContentRecord `json:"content"`
	CorrelationID string        `json:"correlation_id"`
	IsReply       bool          `json:"is_reply"`
	HasDescendant bool          `json:"has_descendant"`
	SubmittedAt   time.Time     `json:"submitted_at"`
}

// AnalysisResult is the "analysisResult" message coming back from the classifier side.
// Either Error is set or Category/Reason are.
type AnalysisResult struct {
	CorrelationID string      `json:"correlation_id"`
	Category      Category    `json:"category,omitempty"`
	Reason        string      `json:"reason,omitempty"`
	Diagnostic    *Diagnostic `json:"diagnostic,omitempty"`
	Error         string      `json:"error,omitempty"`
}

// Verdict converts a successful result into a Verdict
func (r AnalysisResult) Verdict() Verdict {
	return Verdict{
		CorrelationID: r.CorrelationID,
		Category:      r.Category,
		Reason:        r.Reason,
		Diagnostic:    r.Diagnostic,
	}
}

// Toggle is the "toggleExtension" control message
type Toggle struct {
	Enabled bool `json:"is_enabled"`
}
