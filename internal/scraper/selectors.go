package scraper

// X.com DOM selectors
// These are isolated here because X changes their DOM frequently
// Update these when extraction or thread detection breaks

const (
	// Feed structure
	FeedContainer = `[data-testid="primaryColumn"]`
	FeedCell      = `[data-testid="cellInnerDiv"]`
	Post          = `[data-testid="tweet"]`

	// Post content
	PostText      = `[data-testid="tweetText"]`
	PostAuthor    = `[data-testid="User-Name"]`
	PostPhoto     = `[data-testid="tweetPhoto"]`
	PostVideo     = `[data-testid="videoPlayer"]`
	ArticleCover  = `[data-testid="article-cover-image"]`
	LinkCard      = `[data-testid="card.wrapper"]`
	PostTimestamp = `time`
	PostLink      = `a[href]`

	// Engagement
	ReplyCount  = `[data-testid="reply"]`
	RepostCount = `[data-testid="retweet"]`
	LikeCount   = `[data-testid="like"]`
	ViewCount   = `[data-testid="analytics"]`

	// Login page indicator (for detecting auth state)
	LoginForm = `[data-testid="loginButton"]`

	WaitForFeed = FeedContainer
)

// Hosts belonging to the feed itself; links to them are not external
var feedHosts = []string{"x.com", "twitter.com"}
