package review

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glyphworks/kbforge/document"
	"github.com/glyphworks/kbforge/store/memstore"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRequest_PriorityFromIssueCount(t *testing.T) {
	reviewer := NewReviewer(nil, quietLogger())

	tests := []struct {
		issues int
		want   document.Priority
	}{
		{0, document.PriorityLow},
		{1, document.PriorityMedium},
		{2, document.PriorityMedium},
		{3, document.PriorityHigh},
		{5, document.PriorityHigh},
		{6, document.PriorityUrgent},
		{40, document.PriorityUrgent},
	}
	for _, tt := range tests {
		req := reviewer.Request(context.Background(), "v_job-1_abc", tt.issues)
		assert.Equal(t, tt.want, req.Priority, "issues=%d", tt.issues)
		assert.Equal(t, tt.issues, req.IssuesCount)
	}
}

func TestRequest_QueuedRecordShape(t *testing.T) {
	queue := memstore.New()
	reviewer := NewReviewer(queue, quietLogger())

	req := reviewer.Request(context.Background(), "v_job-1_abc", 3)

	require.NotNil(t, req)
	assert.NotEmpty(t, req.ReviewID)
	assert.Equal(t, "v_job-1_abc", req.VersionID)
	assert.Equal(t, StatusQueued, req.Status)
	assert.False(t, req.CreatedAt.IsZero())

	queued := queue.Reviews()
	require.Len(t, queued, 1)
	assert.Equal(t, req.ReviewID, queued[0].ReviewID)
	assert.Equal(t, document.PriorityHigh, queued[0].Priority)
}

func TestRequest_UniqueReviewIDs(t *testing.T) {
	reviewer := NewReviewer(nil, quietLogger())

	first := reviewer.Request(context.Background(), "v_job-1_abc", 0)
	second := reviewer.Request(context.Background(), "v_job-1_abc", 0)

	assert.NotEqual(t, first.ReviewID, second.ReviewID)
}

type failingQueue struct{}

func (f *failingQueue) Enqueue(context.Context, *document.ReviewRequest) error {
	return errors.New("stream offline")
}

func TestRequest_EnqueueFailureStillReturnsRequest(t *testing.T) {
	reviewer := NewReviewer(&failingQueue{}, quietLogger())

	req := reviewer.Request(context.Background(), "v_job-1_abc", 7)

	require.NotNil(t, req)
	assert.Equal(t, document.PriorityUrgent, req.Priority)
	assert.Equal(t, StatusQueued, req.Status)
}
