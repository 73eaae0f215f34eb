package store

import (
	"time"

	"github.com/ibeckermayer/feedsieve/internal/types"
)

// Record is one dispatched post and, once known, its verdict
type Record struct {
	CorrelationID string         `json:"correlation_id"`
	Author        string         `json:"author"`
	Text          string         `json:"text"`
	IsReply       bool           `json:"is_reply"`
	HasDescendant bool           `json:"has_descendant"`
	ImageCount    int            `json:"image_count"`
	Likes         int            `json:"likes"`
	Reposts       int            `json:"reposts"`
	Replies       int            `json:"replies"`
	Category      types.Category `json:"category,omitempty"`
	Reason        string         `json:"reason,omitempty"`
	Error         string         `json:"error,omitempty"`
	SubmittedAt   time.Time      `json:"submitted_at"`
	DecidedAt     *time.Time     `json:"decided_at,omitempty"` // nil while classification is in flight
}

// Pending reports whether no verdict has arrived yet
func (r Record) Pending() bool {
	return r.DecidedAt == nil
}

// Stats counts verdicts over a window
type Stats struct {
	Since       time.Time `json:"since"`
	Total       int       `json:"total"`
	Filtered    int       `json:"filtered"`
	Allowed     int       `json:"allowed"`
	Highlighted int       `json:"highlighted"`
	Errors      int       `json:"errors"`
	Pending     int       `json:"pending"`
}

// FilterRate is the share of decided posts that were filtered
func (s Stats) FilterRate() float64 {
	decided := s.Filtered + s.Allowed + s.Highlighted
	if decided == 0 {
		return 0
	}
	return float64(s.Filtered) / float64(decided)
}
