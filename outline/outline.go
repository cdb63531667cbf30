// Package outline plans article structure: the global planner maps a
// document classification to an ordered section list and an article
// count via a fixed archetype table, and the per-article planner
// distributes those sections across articles without reordering.
package outline

import (
	"fmt"

	"github.com/glyphworks/kbforge/analyze"
)

// GlobalOutline is the document-level structure plan.
type GlobalOutline struct {
	// Archetype names the template row that produced the plan.
	Archetype string `json:"archetype"`
	// Sections is the ordered list of section titles.
	Sections []string `json:"sections"`
	// ArticleCount is how many articles the sections split into.
	ArticleCount int `json:"article_count"`
}

// ArticleOutline is the plan for one article.
type ArticleOutline struct {
	// Index is the article's position, starting at zero.
	Index int `json:"index"`
	// Title is the planned article title.
	Title string `json:"title"`
	// Sections is this article's contiguous slice of the global
	// outline, in global order.
	Sections []string `json:"sections"`
}

// archetype is one row of the planning table: a canned section
// template plus per-complexity article counts.
type archetype struct {
	sections []string
	counts   map[string]int
}

// archetypes keys content types to their templates. Content types
// without a row fall back to the generic archetype.
var archetypes = map[string]archetype{
	analyze.TypeAPIDocumentation: {
		sections: []string{
			"Overview",
			"Authentication",
			"Endpoints",
			"Request and Response Formats",
			"Error Handling",
			"Rate Limits",
			"Examples",
		},
		counts: map[string]int{"low": 1, "moderate": 2, "high": 3},
	},
	analyze.TypeTutorial: {
		sections: []string{
			"Introduction",
			"Prerequisites",
			"Setup",
			"Step-by-Step Guide",
			"Verification",
			"Troubleshooting",
			"Next Steps",
		},
		counts: map[string]int{"low": 1, "moderate": 1, "high": 2},
	},
	"generic": {
		sections: []string{
			"Overview",
			"Key Concepts",
			"Details",
			"Examples",
			"Best Practices",
			"Summary",
		},
		counts: map[string]int{"low": 1, "moderate": 1, "high": 2},
	},
}

// PlanGlobal builds the global outline from a classification. The
// archetype table is authoritative for both sections and count; the
// analyzer's own article-count recommendation stays advisory metadata.
func PlanGlobal(analysis *analyze.Analysis) *GlobalOutline {
	name := analysis.ContentType
	arch, ok := archetypes[name]
	if !ok {
		name = "generic"
		arch = archetypes[name]
	}

	count, ok := arch.counts[analysis.Complexity]
	if !ok {
		count = 1
	}

	sections := make([]string, len(arch.sections))
	copy(sections, arch.sections)

	return &GlobalOutline{
		Archetype:    name,
		Sections:     sections,
		ArticleCount: count,
	}
}

// PlanArticles splits the global outline into per-article outlines.
// Sections are assigned in contiguous groups of ceil(len/N) in global
// order; trailing sections land in the last article. The returned
// count can be lower than requested when there are too few sections.
func PlanArticles(global *GlobalOutline, docTitle string) []ArticleOutline {
	groups := splitSections(global.Sections, global.ArticleCount)

	outlines := make([]ArticleOutline, 0, len(groups))
	for i, group := range groups {
		title := docTitle
		if len(groups) > 1 && len(group) > 0 {
			title = fmt.Sprintf("%s: %s", docTitle, group[0])
		}
		outlines = append(outlines, ArticleOutline{
			Index:    i,
			Title:    title,
			Sections: group,
		})
	}
	return outlines
}

// splitSections chunks sections into groups of ceil(len/n), preserving
// order. n <= 1 yields a single group.
func splitSections(sections []string, n int) [][]string {
	if n <= 1 || len(sections) <= 1 {
		return [][]string{sections}
	}
	if n > len(sections) {
		n = len(sections)
	}

	size := (len(sections) + n - 1) / n
	var groups [][]string
	for start := 0; start < len(sections); start += size {
		end := min(start+size, len(sections))
		groups = append(groups, sections[start:end])
	}
	return groups
}
