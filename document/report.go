package document

import "time"

// Severity is the blocking tier of a QA flag.
type Severity string

const (
	// SeverityP0 blocks publication unconditionally.
	SeverityP0 Severity = "P0"
	// SeverityP1 is advisory: publication proceeds with a recorded warning.
	SeverityP1 Severity = "P1"
)

// Flag codes emitted by the validator and the orchestrator. The tier
// prefix is part of the code so reports stay readable without joining
// against the severity field.
const (
	FlagPipelineError        = "P0_PIPELINE_ERROR"
	FlagLowCoverage          = "P1_LOW_COVERAGE"
	FlagCriticalCoverage     = "P0_LOW_COVERAGE"
	FlagUnsupportedClaims    = "P1_UNSUPPORTED_CLAIMS"
	FlagSevereClaims         = "P0_UNSUPPORTED_CLAIMS"
	FlagPlaceholders         = "P1_PLACEHOLDERS"
	FlagSeverePlaceholders   = "P0_PLACEHOLDERS"
	FlagMinimalSections      = "P1_MINIMAL_SECTIONS"
	FlagDuplicateParagraphs  = "P0_DUPLICATE_PARAGRAPHS"
	FlagDuplicateSentences   = "P1_DUPLICATE_SENTENCES"
	FlagSevereDuplication    = "P0_DUPLICATE_SENTENCES"
	FlagBrokenLinks          = "P1_BROKEN_LINKS"
	FlagMissingMedia         = "P1_MISSING_MEDIA"
	FlagContentTooShort      = "P1_CONTENT_TOO_SHORT"
	FlagContentTooLong       = "P1_CONTENT_TOO_LONG"
	FlagNoHeadings           = "P1_NO_HEADINGS"
	FlagHeadingSpan          = "P1_HEADING_SPAN"
	FlagNoCodeExamples       = "P1_NO_CODE_EXAMPLES"
	FlagVagueTechnical       = "P1_VAGUE_TECHNICAL"
	FlagSevereVagueTechnical = "P0_VAGUE_TECHNICAL"
	FlagInconsistentTerms    = "P1_INCONSISTENT_TERMS"
)

// QAFlag is a single machine-readable quality issue.
type QAFlag struct {
	// Code is the stable flag identifier.
	Code string `json:"code"`
	// Severity is the blocking tier.
	Severity Severity `json:"severity"`
	// Message is a human-readable description of the issue.
	Message string `json:"message"`
	// Location narrows the issue to a section anchor when known.
	Location string `json:"location,omitempty"`
}

// publishCoverageFloor is the minimum coverage percent for publication.
const publishCoverageFloor = 70.0

// QAReport is the authoritative quality report for one run. The
// validator computes it once; downstream consumers treat it as
// read-only.
type QAReport struct {
	// JobID identifies the processing run.
	JobID string `json:"job_id"`
	// CoveragePercent estimates how much source content survived into
	// the output, in [0, 100].
	CoveragePercent float64 `json:"coverage_percent"`
	// Flags lists every detected quality issue.
	Flags []QAFlag `json:"flags"`
	// BrokenLinks lists syntactically invalid URLs found in the output.
	BrokenLinks []string `json:"broken_links,omitempty"`
	// MissingMedia lists referenced but unembedded media.
	MissingMedia []string `json:"missing_media,omitempty"`
	// GeneratedAt is when the report was computed.
	GeneratedAt time.Time `json:"generated_at"`
}

// ErrorQAReport builds the report returned when the pipeline aborts.
func ErrorQAReport(jobID string, cause error) *QAReport {
	msg := "pipeline aborted"
	if cause != nil {
		msg = "pipeline aborted: " + cause.Error()
	}
	return &QAReport{
		JobID:           jobID,
		CoveragePercent: 0,
		Flags: []QAFlag{{
			Code:     FlagPipelineError,
			Severity: SeverityP0,
			Message:  msg,
		}},
		GeneratedAt: time.Now().UTC(),
	}
}

// AddFlag appends a flag to the report.
func (r *QAReport) AddFlag(code string, severity Severity, message, location string) {
	r.Flags = append(r.Flags, QAFlag{Code: code, Severity: severity, Message: message, Location: location})
}

// P0Count returns the number of blocking flags.
func (r *QAReport) P0Count() int {
	n := 0
	for _, f := range r.Flags {
		if f.Severity == SeverityP0 {
			n++
		}
	}
	return n
}

// IsPublishable reports whether the content may go live: no P0 flags
// and coverage at or above 70 percent. A single P0 blocks regardless
// of coverage.
func (r *QAReport) IsPublishable() bool {
	if r == nil {
		return false
	}
	return r.P0Count() == 0 && r.CoveragePercent >= publishCoverageFloor
}
