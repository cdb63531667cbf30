// Package adapt analyzes the article set for length and structure
// balance. It only reports; rebalancing itself is an editorial action
// taken outside the pipeline.
package adapt

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/glyphworks/kbforge/document"
)

const (
	// splitWordThreshold is the single-article word ceiling.
	splitWordThreshold = 3000
	// thinWordThreshold marks an article too small to stand alone.
	thinWordThreshold = 150
	// flatWordThreshold is the length above which an article needs at
	// least two headings.
	flatWordThreshold = 800
	// imbalanceRatio is the longest-to-shortest word ratio above which
	// the set counts as unbalanced.
	imbalanceRatio = 3.0
)

// Action is a recommended rebalancing step.
type Action string

const (
	ActionSplit       Action = "split"
	ActionMerge       Action = "merge"
	ActionExpand      Action = "expand"
	ActionRestructure Action = "restructure"
	ActionRebalance   Action = "rebalance"
)

// Recommendation is one flagged rebalancing need.
type Recommendation struct {
	Article string `json:"article"`
	Action  Action `json:"action"`
	Reason  string `json:"reason"`
}

// Result is the balance analysis for one run's article set.
type Result struct {
	ArticleCount    int              `json:"article_count"`
	TotalWords      int              `json:"total_words"`
	MeanWords       float64          `json:"mean_words"`
	MinWords        int              `json:"min_words"`
	MaxWords        int              `json:"max_words"`
	LengthRatio     float64          `json:"length_ratio,omitempty"`
	Balanced        bool             `json:"balanced"`
	Recommendations []Recommendation `json:"recommendations,omitempty"`
	AnalyzedAt      time.Time        `json:"analyzed_at"`
}

// Adjuster computes balance analysis. Stateless; one instance serves
// any number of runs.
type Adjuster struct {
	logger *slog.Logger
}

// NewAdjuster creates an Adjuster.
func NewAdjuster(logger *slog.Logger) *Adjuster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adjuster{logger: logger}
}

// Analyze inspects every article's length and heading structure and
// the spread across the set. The result carries a recommendation per
// finding; an empty recommendation list means the set is balanced.
func (a *Adjuster) Analyze(articles []*document.Article) *Result {
	result := &Result{
		ArticleCount: len(articles),
		AnalyzedAt:   time.Now().UTC(),
	}
	if len(articles) == 0 {
		result.Balanced = true
		return result
	}

	var longest *document.Article
	result.MinWords = -1
	for _, art := range articles {
		words := art.WordCount()
		result.TotalWords += words
		if result.MinWords < 0 || words < result.MinWords {
			result.MinWords = words
		}
		if words > result.MaxWords {
			result.MaxWords = words
			longest = art
		}

		switch {
		case words > splitWordThreshold:
			result.recommend(art, ActionSplit,
				fmt.Sprintf("article is %d words, above the single-article ceiling", words))
		case words < thinWordThreshold && len(articles) > 1:
			result.recommend(art, ActionMerge,
				fmt.Sprintf("article is only %d words, consider merging with a sibling", words))
		case words < thinWordThreshold:
			result.recommend(art, ActionExpand,
				fmt.Sprintf("article is only %d words", words))
		}

		if words > flatWordThreshold && headingCount(art) < 2 {
			result.recommend(art, ActionRestructure,
				fmt.Sprintf("%d words under %d headings", words, headingCount(art)))
		}
	}
	result.MeanWords = float64(result.TotalWords) / float64(len(articles))

	if len(articles) > 1 && result.MinWords > 0 {
		result.LengthRatio = float64(result.MaxWords) / float64(result.MinWords)
		if result.LengthRatio > imbalanceRatio {
			result.recommend(longest, ActionRebalance,
				fmt.Sprintf("longest article is %.1fx the shortest", result.LengthRatio))
		}
	}

	result.Balanced = len(result.Recommendations) == 0
	if !result.Balanced {
		a.logger.Debug("article set needs rebalancing",
			"articles", len(articles),
			"recommendations", len(result.Recommendations))
	}
	return result
}

func (r *Result) recommend(art *document.Article, action Action, reason string) {
	r.Recommendations = append(r.Recommendations, Recommendation{
		Article: art.DocSlug,
		Action:  action,
		Reason:  reason,
	})
}

// headingCount prefers the stamped heading list and falls back to
// scanning the content.
func headingCount(art *document.Article) int {
	if len(art.Headings) > 0 {
		return len(art.Headings)
	}
	return len(document.ExtractHeadings(art.Content))
}
