// Package review turns a version snapshot and its cross-article issue
// count into a prioritized human-review request.
package review

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/glyphworks/kbforge/document"
	"github.com/glyphworks/kbforge/store"
)

// StatusQueued is the state every new review request starts in.
const StatusQueued = "queued"

// Reviewer creates review requests and hands them to the queue. A nil
// queue keeps requests in memory only.
type Reviewer struct {
	queue  store.ReviewQueue
	logger *slog.Logger
}

// NewReviewer creates a Reviewer.
func NewReviewer(queue store.ReviewQueue, logger *slog.Logger) *Reviewer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reviewer{queue: queue, logger: logger}
}

// Request builds a review request for the version. Priority is derived
// from the cross-article issue count alone. Enqueue failures are
// logged; the queued record is returned either way so a broken queue
// never fails the run.
func (r *Reviewer) Request(ctx context.Context, versionID string, issuesCount int) *document.ReviewRequest {
	req := &document.ReviewRequest{
		ReviewID:    uuid.New().String(),
		VersionID:   versionID,
		Priority:    document.PriorityFor(issuesCount),
		IssuesCount: issuesCount,
		Status:      StatusQueued,
		CreatedAt:   time.Now().UTC(),
	}

	if r.queue != nil {
		if err := r.queue.Enqueue(ctx, req); err != nil {
			r.logger.Error("review enqueue failed",
				"review_id", req.ReviewID,
				"version_id", versionID,
				"error", err)
		}
	}

	r.logger.Info("review requested",
		"review_id", req.ReviewID,
		"version_id", versionID,
		"priority", string(req.Priority),
		"issues", issuesCount)
	return req
}
