package config

// DefaultCriteria returns the built-in classification lists
func DefaultCriteria() CriteriaConfig {
	return CriteriaConfig{
		Filter:    defaultFilterCriteria,
		Allow:     defaultAllowCriteria,
		Highlight: defaultHighlightCriteria,
	}
}

// WithDefaults fills empty lists from the built-in ones
func (c CriteriaConfig) WithDefaults() CriteriaConfig {
	d := DefaultCriteria()
	if c.Filter == "" {
		c.Filter = d.Filter
	}
	if c.Allow == "" {
		c.Allow = d.Allow
	}
	if c.Highlight == "" {
		c.Highlight = d.Highlight
	}
	return c
}

const defaultFilterCriteria = `- Engagement bait: rage bait, thirst traps, "agree or disagree?", ratio requests (BUT NOT if it links to an article or substantive content)
- Vapid musings: "ugh mondays", "vibes", trend-riding with no actual thought or insight
- Personal updates without insight: moving announcements, visa news, team offsites, company culture posts
- Electoral politics: elections, political parties, candidates, voting, partisan debates
- Culture war content: racism debates, immigration policy, DEI controversy, left vs right ideology
- Low-effort replies: emoji-only, "this", "lol", "+1", "W", "L", "ratio"
- Generic complaints: "is X down?", venting without substance
- Celebrity gossip, sports drama, reality TV`

const defaultAllowCriteria = `- Tech, programming, software, AI/ML, startups, founder content
- Articles or linked content: posts sharing articles, blog posts, or long-form content are valuable even if the post text is brief
- New tools, frameworks, or paradigms, especially emerging tech that may not be widely known yet
- Economics, finance, markets, investing, business news, global trade
- Intellectual discussion: philosophy, science, rationality, epistemology, decision-making, ideas
- Engineering philosophy: design principles, tradeoffs, how to build good products
- Wisdom, quotes, or life lessons, especially from founders, investors, or notable figures
- Productivity, self-improvement, or life philosophy with actual insight
- Product announcements, tutorials, tips, workflows
- Personal projects, side projects, open source
- Hiring posts, career advice, industry analysis
- Book recommendations, learning resources
- Original thoughts and opinions on any allowed topic above

IMPORTANT: Judge posts by their text content first. Images are supplementary context. Never filter a post JUST because it contains an image. If the text is substantive and interesting, allow it regardless of whether there's an image.

Note: Economics and business news mentioning governments or politicians in economic context is NOT political content. Allow it.`

const defaultHighlightCriteria = `- Posts that invite discussion or debate on design, product, or AI/ML topics
- Insightful opinions or hot takes on product strategy, UX, or design systems
- AI research breakthroughs, new models, new paradigms, or technical deep dives
- Thought-provoking questions about building products or startups
- Contrarian or novel perspectives on tech industry trends
- Philosophical insights about engineering, decision-making, or epistemology`
