package document

import (
	"strings"
	"time"
)

// ArticleStatus tracks an article through the publish gate.
type ArticleStatus string

const (
	// StatusDraft is the working state while the pipeline runs.
	StatusDraft ArticleStatus = "draft"
	// StatusPublished means the article passed the publish gate.
	StatusPublished ArticleStatus = "published"
	// StatusBlocked means a P0 flag or low coverage held the article back.
	StatusBlocked ArticleStatus = "blocked"
)

// EvidenceLevel classifies how well-supported a paragraph's claims are.
type EvidenceLevel string

const (
	EvidenceHigh        EvidenceLevel = "HIGH"
	EvidenceMedium      EvidenceLevel = "MEDIUM"
	EvidenceLow         EvidenceLevel = "LOW"
	EvidenceSpeculation EvidenceLevel = "SPECULATION"
)

// ParagraphClass is the structural/semantic kind assigned to a
// paragraph by the evidence tagger.
type ParagraphClass string

const (
	ClassCodeExample      ParagraphClass = "code_example"
	ClassAnnotation       ParagraphClass = "annotation"
	ClassListItem         ParagraphClass = "list_item"
	ClassFactualStatement ParagraphClass = "factual_statement"
	ClassRecommendation   ParagraphClass = "recommendation"
	ClassExample          ParagraphClass = "example"
	ClassGeneralContent   ParagraphClass = "general_content"
)

// EvidenceTag is one paragraph's evidence classification.
type EvidenceTag struct {
	Section    string         `json:"section"`
	Paragraph  int            `json:"paragraph"`
	Class      ParagraphClass `json:"class"`
	Level      EvidenceLevel  `json:"level"`
	Confidence float64        `json:"confidence"`
}

// EvidenceMeta is the evidence tagger's contribution to an article.
type EvidenceMeta struct {
	Tags         []EvidenceTag         `json:"tags"`
	Distribution map[EvidenceLevel]int `json:"distribution"`
	TaggedAt     time.Time             `json:"tagged_at"`
}

// StyleMeta records what the style processor changed.
type StyleMeta struct {
	HeadingAdjustments int       `json:"heading_adjustments"`
	ListFixes          int       `json:"list_fixes"`
	WhitespaceFixes    int       `json:"whitespace_fixes"`
	Notes              []string  `json:"notes,omitempty"`
	ProcessedAt        time.Time `json:"processed_at"`
}

// RelatedLink is one suggested link, internal or external.
type RelatedLink struct {
	Title string  `json:"title"`
	URL   string  `json:"url"`
	Score float64 `json:"score,omitempty"`
}

// RelatedLinksMeta is the related-links stage's contribution.
type RelatedLinksMeta struct {
	Internal    []RelatedLink `json:"internal"`
	External    []RelatedLink `json:"external,omitempty"`
	GeneratedAt time.Time     `json:"generated_at"`
}

// GapFillMeta records gap detection and infill results.
type GapFillMeta struct {
	GapsFound      int       `json:"gaps_found"`
	Markers        []string  `json:"markers,omitempty"`
	ThinSections   []string  `json:"thin_sections,omitempty"`
	CompletionUsed bool      `json:"completion_used"`
	FilledAt       time.Time `json:"filled_at"`
}

// CodeMeta records code-normalizer results.
type CodeMeta struct {
	FencedBlocks int            `json:"fenced_blocks"`
	InlineSpans  int            `json:"inline_spans"`
	Languages    map[string]int `json:"languages,omitempty"`
	NormalizedAt time.Time      `json:"normalized_at"`
}

// ValidationMeta is the per-article slice of the job-level QA report,
// stamped by the publisher.
type ValidationMeta struct {
	CoveragePercent float64   `json:"coverage_percent"`
	FlagCount       int       `json:"flag_count"`
	P0Count         int       `json:"p0_count"`
	Publishable     bool      `json:"publishable"`
	ValidatedAt     time.Time `json:"validated_at"`
}

// Article is the working representation of one output article as it
// moves through the pipeline. Each stage sets only its own metadata
// field, so a later stage's article always carries every earlier
// stage's output.
type Article struct {
	// DocUID is the permanent globally unique identifier.
	DocUID string `json:"doc_uid"`
	// DocSlug is the human-readable URL identifier derived from the title.
	DocSlug string `json:"doc_slug"`
	// Title is the article title.
	Title string `json:"title"`
	// Content is the article body.
	Content string `json:"content"`
	// Summary is a short abstract used in listings and version records.
	Summary string `json:"summary,omitempty"`
	// Engine names the pipeline generation that produced the article.
	Engine string `json:"engine"`
	// Status is the publish-gate state.
	Status ArticleStatus `json:"status"`
	// Headings lists the article's section headings in order.
	Headings []string `json:"headings,omitempty"`
	// Metadata carries caller-supplied job context.
	Metadata map[string]string `json:"metadata,omitempty"`

	Evidence     *EvidenceMeta     `json:"evidence_metadata,omitempty"`
	Style        *StyleMeta        `json:"style_metadata,omitempty"`
	RelatedLinks *RelatedLinksMeta `json:"related_links,omitempty"`
	GapFill      *GapFillMeta      `json:"gap_fill_metadata,omitempty"`
	CodeBlocks   *CodeMeta         `json:"code_metadata,omitempty"`
	Validation   *ValidationMeta   `json:"validation,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WordCount returns the article body word count.
func (a *Article) WordCount() int {
	return len(strings.Fields(a.Content))
}

// Clone returns a deep copy. Enrichment stages operate on a clone so
// that a failed stage can hand back the untouched original.
func (a *Article) Clone() *Article {
	if a == nil {
		return nil
	}
	cp := *a
	cp.Headings = append([]string(nil), a.Headings...)
	if a.Metadata != nil {
		cp.Metadata = make(map[string]string, len(a.Metadata))
		for k, v := range a.Metadata {
			cp.Metadata[k] = v
		}
	}
	if a.Evidence != nil {
		ev := *a.Evidence
		ev.Tags = append([]EvidenceTag(nil), a.Evidence.Tags...)
		if a.Evidence.Distribution != nil {
			ev.Distribution = make(map[EvidenceLevel]int, len(a.Evidence.Distribution))
			for k, v := range a.Evidence.Distribution {
				ev.Distribution[k] = v
			}
		}
		cp.Evidence = &ev
	}
	if a.Style != nil {
		st := *a.Style
		st.Notes = append([]string(nil), a.Style.Notes...)
		cp.Style = &st
	}
	if a.RelatedLinks != nil {
		rl := *a.RelatedLinks
		rl.Internal = append([]RelatedLink(nil), a.RelatedLinks.Internal...)
		rl.External = append([]RelatedLink(nil), a.RelatedLinks.External...)
		cp.RelatedLinks = &rl
	}
	if a.GapFill != nil {
		gf := *a.GapFill
		gf.Markers = append([]string(nil), a.GapFill.Markers...)
		gf.ThinSections = append([]string(nil), a.GapFill.ThinSections...)
		cp.GapFill = &gf
	}
	if a.CodeBlocks != nil {
		cb := *a.CodeBlocks
		if a.CodeBlocks.Languages != nil {
			cb.Languages = make(map[string]int, len(a.CodeBlocks.Languages))
			for k, v := range a.CodeBlocks.Languages {
				cb.Languages[k] = v
			}
		}
		cp.CodeBlocks = &cb
	}
	if a.Validation != nil {
		v := *a.Validation
		cp.Validation = &v
	}
	return &cp
}
