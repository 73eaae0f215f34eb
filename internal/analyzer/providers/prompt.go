package providers

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ibeckermayer/feedsieve/internal/config"
	"github.com/ibeckermayer/feedsieve/internal/types"
)

const systemPromptPrefix = `You are a post classifier. Classify this post into one of three categories based on the criteria below.`

const systemPromptSuffix = `Respond in JSON: {"reason": "7-12 word explanation", "verdict": "filtered" | "allowed" | "highlighted"}

Classification rules:
1. If post matches FILTER criteria → "filtered"
2. If post matches HIGHLIGHT criteria → "highlighted"
3. If post matches ALLOW criteria → "allowed"

Examples:
{"reason": "electoral politics discussing voting and partisan candidates", "verdict": "filtered"}
{"reason": "engagement bait asking followers to ratio this post", "verdict": "filtered"}
{"reason": "useful tech workflow tip for developer productivity", "verdict": "allowed"}
{"reason": "founder sharing startup product update and roadmap", "verdict": "allowed"}
{"reason": "thought-provoking question about AI product design choices", "verdict": "highlighted"}
{"reason": "insightful debate on UX patterns for complex workflows", "verdict": "highlighted"}`

// imagePrompt stands in for the text of a post that only has media
const imagePrompt = "Analyze this post image:"

// Outcome is a provider's answer for one post
type Outcome struct {
	Category    types.Category
	Reason      string
	Prompt      string
	RawResponse string
}

// BuildPrompt constructs the system prompt from the three criteria lists
func BuildPrompt(c config.CriteriaConfig) string {
	c = c.WithDefaults()

	var sb strings.Builder
	sb.WriteString(systemPromptPrefix)
	sb.WriteString("\n\nFILTER these posts:\n")
	sb.WriteString(c.Filter)
	sb.WriteString("\n\nALLOW these posts:\n")
	sb.WriteString(c.Allow)
	sb.WriteString("\n\nHIGHLIGHT these posts (most interesting, discussion-worthy):\n")
	sb.WriteString(c.Highlight)
	sb.WriteString("\n\n")
	sb.WriteString(systemPromptSuffix)
	return sb.String()
}

// UserContent is the user turn sent for req: the post text prefixed with
// its author when known
func UserContent(req types.ClassifyRequest) string {
	text := req.Text
	if req.Author != "" {
		text = fmt.Sprintf("@%s: %s", req.Author, text)
	}
	if strings.TrimSpace(req.Text) == "" && len(req.Images) > 0 {
		return imagePrompt
	}
	return text
}

// response accepts both verdict shapes: the three-way {"verdict"} and the
// older boolean {"filter"}
type response struct {
	Reason  string  `json:"reason"`
	Verdict *string `json:"verdict"`
	Filter  *bool   `json:"filter"`
}

// ParseResponse extracts a category and reason from a model reply. Models
// sometimes wrap the object in prose or a code fence.
func ParseResponse(raw string) (types.Category, string, error) {
	r, err := firstObject(raw)
	if err != nil {
		return "", "", err
	}

	switch {
	case r.Verdict != nil:
		return types.ParseCategory(strings.ToLower(strings.TrimSpace(*r.Verdict))), r.Reason, nil
	case r.Filter != nil && *r.Filter:
		return types.Filtered, r.Reason, nil
	case r.Filter != nil:
		return types.Allowed, r.Reason, nil
	default:
		return "", "", fmt.Errorf("response has neither verdict nor filter: %.200s", raw)
	}
}

// firstObject decodes the first complete JSON object in raw, ignoring
// whatever text surrounds it
func firstObject(raw string) (response, error) {
	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return response{}, fmt.Errorf("no JSON object in response: %.200s", raw)
	}
	var lastErr error
	for start >= 0 {
		var r response
		err := json.NewDecoder(strings.NewReader(raw[start:])).Decode(&r)
		if err == nil {
			return r, nil
		}
		lastErr = err
		next := strings.IndexByte(raw[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return response{}, fmt.Errorf("failed to parse response JSON: %w (response was: %.200s)", lastErr, raw)
}
