package document

import "time"

// ArticleSummary is the per-article slice of a version record.
type ArticleSummary struct {
	DocUID    string `json:"doc_uid"`
	DocSlug   string `json:"doc_slug"`
	Title     string `json:"title"`
	WordCount int    `json:"word_count"`
}

// Version is an immutable snapshot of one processing run's output. A
// new run always creates a new version, never mutates a prior one.
type Version struct {
	// VersionID is the snapshot identifier. Failed runs carry an
	// "error_" prefix.
	VersionID string `json:"version_id"`
	// RunID is the job that produced the snapshot.
	RunID string `json:"run_id"`
	// ContentHash is the SHA-256 over every article's title and content
	// in array order.
	ContentHash string `json:"content_hash"`
	// ArticleCount is the number of articles in the snapshot.
	ArticleCount int `json:"article_count"`
	// Articles summarizes the snapshot's articles.
	Articles []ArticleSummary `json:"articles"`
	// CreatedAt is the snapshot time.
	CreatedAt time.Time `json:"created_at"`
}

// Priority orders review requests for human attention.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// PriorityFor maps a cross-article issue count to a review priority.
// The count is the only input. The authoritative QA report's P0/P1 mix
// is deliberately not consulted here.
func PriorityFor(issuesCount int) Priority {
	switch {
	case issuesCount > 5:
		return PriorityUrgent
	case issuesCount > 2:
		return PriorityHigh
	case issuesCount > 0:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// ReviewRequest asks a human to look at a version.
type ReviewRequest struct {
	// ReviewID is the queue entry identifier.
	ReviewID string `json:"review_id"`
	// VersionID is the version under review.
	VersionID string `json:"version_id"`
	// Priority orders the queue.
	Priority Priority `json:"priority"`
	// IssuesCount is the cross-article issue count the priority was
	// derived from.
	IssuesCount int `json:"issues_count"`
	// Status is always "queued" at creation.
	Status string `json:"status"`
	// CreatedAt is the enqueue time.
	CreatedAt time.Time `json:"created_at"`
}
