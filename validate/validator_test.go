package validate

import (
	"strings"
	"testing"

	"github.com/glyphworks/kbforge/document"
)

func bundleWithWords(n int) *document.RawBundle {
	return document.NewRawBundle("job-1", "src-1", []document.RawBlock{
		{Type: document.BlockParagraph, Text: strings.TrimSpace(strings.Repeat("word ", n))},
	}, nil, nil)
}

func normDoc(words int, sections ...document.Section) *document.NormDoc {
	return &document.NormDoc{JobID: "job-1", WordCount: words, Sections: sections}
}

func proseSection(content string) document.Section {
	return document.Section{AnchorID: "body", Content: content}
}

func findFlag(report *document.QAReport, code string) *document.QAFlag {
	for i := range report.Flags {
		if report.Flags[i].Code == code {
			return &report.Flags[i]
		}
	}
	return nil
}

func TestCoveragePercent(t *testing.T) {
	tests := []struct {
		name     string
		words    int
		rawWords int // 0 = no bundle
		want     float64
	}{
		{"empty no bundle", 0, 0, 30},
		{"under fifty", 49, 0, 30},
		{"fifty", 50, 0, 65},
		{"under two hundred", 199, 0, 65},
		{"two hundred", 200, 0, 80},
		{"under five hundred", 499, 0, 80},
		{"five hundred", 500, 0, 92},
		{"ratio ninety", 90, 100, 95},
		{"ratio eighty five", 85, 100, 87},
		{"ratio seventy", 70, 100, 78},
		{"ratio fifty", 50, 100, 65},
		{"ratio forty keeps raw value", 40, 100, 40},
		{"ratio floor", 10, 100, 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var bundle *document.RawBundle
			if tt.rawWords > 0 {
				bundle = bundleWithWords(tt.rawWords)
			}
			if got := coveragePercent(tt.words, bundle); got != tt.want {
				t.Errorf("coveragePercent(%d, raw %d) = %v, want %v", tt.words, tt.rawWords, got, tt.want)
			}
		})
	}
}

func TestCoverageMonotonicity(t *testing.T) {
	bundle := bundleWithWords(200)
	prev := 0.0
	for words := 0; words <= 400; words += 5 {
		got := coveragePercent(words, bundle)
		if got < prev {
			t.Fatalf("coverage dropped from %v to %v at %d words", prev, got, words)
		}
		prev = got
	}

	prev = 0.0
	for words := 0; words <= 1000; words += 5 {
		got := coveragePercent(words, nil)
		if got < prev {
			t.Fatalf("banded coverage dropped from %v to %v at %d words", prev, got, words)
		}
		prev = got
	}
}

func TestValidate_CleanDocument(t *testing.T) {
	norm := normDoc(600,
		document.Section{AnchorID: "overview", Heading: "Overview", Level: 2,
			Content: "The service accepts uploads and stores them in object storage for later retrieval by tenant."},
		document.Section{AnchorID: "usage", Heading: "Usage", Level: 2,
			Content: "Send a signed request with the tenant header set. The response carries the stored object location."},
	)

	report := New().Validate(norm, nil)
	if len(report.Flags) != 0 {
		t.Fatalf("flags = %+v, want none", report.Flags)
	}
	if report.CoveragePercent != 92 {
		t.Errorf("coverage = %v, want 92", report.CoveragePercent)
	}
	if !report.IsPublishable() {
		t.Error("clean document must be publishable")
	}
	if report.JobID != "job-1" {
		t.Errorf("job id = %q", report.JobID)
	}
	if report.GeneratedAt.IsZero() {
		t.Error("generated_at not stamped")
	}
}

func TestValidate_Flags(t *testing.T) {
	repeated := "Every request must include the tenant identifier header for routing."

	tests := []struct {
		name     string
		norm     *document.NormDoc
		code     string
		severity document.Severity
	}{
		{
			name:     "critical coverage",
			norm:     normDoc(20, proseSection("Tiny body.")),
			code:     document.FlagCriticalCoverage,
			severity: document.SeverityP0,
		},
		{
			name:     "low coverage",
			norm:     normDoc(300, proseSection("Medium sized body that lands in the eighty percent band.")),
			code:     document.FlagLowCoverage,
			severity: document.SeverityP1,
		},
		{
			name:     "unsupported claims advisory",
			norm:     normDoc(600, proseSection("This is always correct. It never fails. Obviously the best choice.")),
			code:     document.FlagUnsupportedClaims,
			severity: document.SeverityP1,
		},
		{
			name: "unsupported claims blocking",
			norm: normDoc(600, proseSection(
				"It always works and never breaks. Obviously and clearly this is certainly the case.")),
			code:     document.FlagSevereClaims,
			severity: document.SeverityP0,
		},
		{
			name:     "single placeholder",
			norm:     normDoc(600, proseSection("Body text with one [TODO] marker left behind in the prose.")),
			code:     document.FlagPlaceholders,
			severity: document.SeverityP1,
		},
		{
			name: "many placeholders",
			norm: normDoc(600, proseSection(
				"[MISSING] a [MISSING] b [MISSING] c [MISSING] d [MISSING] e [MISSING]")),
			code:     document.FlagSeverePlaceholders,
			severity: document.SeverityP0,
		},
		{
			name: "duplicate paragraphs",
			norm: normDoc(600, proseSection(
				"The deployment pipeline promotes builds from staging to production automatically.\n\n"+
					"The deployment pipeline promotes builds from staging to production automatically.")),
			code:     document.FlagDuplicateParagraphs,
			severity: document.SeverityP0,
		},
		{
			name: "duplicate sentences advisory",
			norm: normDoc(600, proseSection(
				"The cache invalidation strategy relies on versioned keys for correctness. Something else entirely different follows here.\n\n"+
					"Unrelated opening statement for the second paragraph. The cache invalidation strategy relies on versioned keys for correctness.")),
			code:     document.FlagDuplicateSentences,
			severity: document.SeverityP1,
		},
		{
			name: "duplicate sentences blocking",
			norm: normDoc(600, proseSection(
				repeated+" Filler one follows with more words here.\n\n"+
					repeated+" Filler two follows with more words here.\n\n"+
					repeated+" Filler three follows with more words here.\n\n"+
					repeated+" Filler four follows with more words here.")),
			code:     document.FlagSevereDuplication,
			severity: document.SeverityP0,
		},
		{
			name:     "broken links",
			norm:     normDoc(600, proseSection("[bad](htp://broken.example) and [nohost](http://) remain.")),
			code:     document.FlagBrokenLinks,
			severity: document.SeverityP1,
		},
		{
			name:     "empty image source",
			norm:     normDoc(600, proseSection("![diagram]()")),
			code:     document.FlagMissingMedia,
			severity: document.SeverityP1,
		},
		{
			name:     "figure prose without media",
			norm:     normDoc(600, proseSection("The diagram below shows the request flow end to end.")),
			code:     document.FlagMissingMedia,
			severity: document.SeverityP1,
		},
		{
			name:     "too short",
			norm:     normDoc(10, proseSection("Barely anything here.")),
			code:     document.FlagContentTooShort,
			severity: document.SeverityP1,
		},
		{
			name:     "too long",
			norm:     normDoc(6000, proseSection("Plenty of body, counted through the word count field.")),
			code:     document.FlagContentTooLong,
			severity: document.SeverityP1,
		},
		{
			name:     "no headings",
			norm:     normDoc(600, proseSection("Flat prose without any structure to speak of.")),
			code:     document.FlagNoHeadings,
			severity: document.SeverityP1,
		},
		{
			name:     "heading span",
			norm:     normDoc(600, proseSection("# Top\n\nIntro prose.\n\n##### Deep\n\nDeep body.")),
			code:     document.FlagHeadingSpan,
			severity: document.SeverityP1,
		},
		{
			name:     "technical topic without code",
			norm:     normDoc(600, proseSection("Install the SDK and configure the API endpoint.")),
			code:     document.FlagNoCodeExamples,
			severity: document.SeverityP1,
		},
		{
			name:     "vague technical advisory",
			norm:     normDoc(600, proseSection("It basically works, sort of, with roughly the same output.")),
			code:     document.FlagVagueTechnical,
			severity: document.SeverityP1,
		},
		{
			name: "vague technical blocking",
			norm: normDoc(600, proseSection(
				"Basically it somehow works, sort of, kind of, roughly, and so on.")),
			code:     document.FlagSevereVagueTechnical,
			severity: document.SeverityP0,
		},
		{
			name:     "inconsistent capitalization",
			norm:     normDoc(600, proseSection("The API paginates results. Call the api twice to fetch it in pages.")),
			code:     document.FlagInconsistentTerms,
			severity: document.SeverityP1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := New().Validate(tt.norm, nil)
			flag := findFlag(report, tt.code)
			if flag == nil {
				t.Fatalf("flag %s not found in %+v", tt.code, report.Flags)
			}
			if flag.Severity != tt.severity {
				t.Errorf("severity = %s, want %s", flag.Severity, tt.severity)
			}
		})
	}
}

func TestValidate_NoFalsePositives(t *testing.T) {
	tests := []struct {
		name   string
		norm   *document.NormDoc
		absent []string
	}{
		{
			name: "valid and relative links",
			norm: normDoc(600, proseSection(
				"[ok](https://example.com/a) then [rel](/kb/other) then [anchor](#setup).")),
			absent: []string{document.FlagBrokenLinks},
		},
		{
			name: "figure prose with embedded image",
			norm: normDoc(600, proseSection(
				"See the diagram below for the flow.\n\n![architecture](arch.png)")),
			absent: []string{document.FlagMissingMedia, document.FlagBrokenLinks},
		},
		{
			name: "technical topic with code",
			norm: normDoc(600, proseSection(
				"Install the SDK and configure the API endpoint.\n\n```bash\nkbforge init\n```")),
			absent: []string{document.FlagNoCodeExamples},
		},
		{
			name: "code content invisible to text heuristics",
			norm: normDoc(600, proseSection(
				"Plain prose using `api` inline and the API elsewhere.\n\n"+
					"```\nalways never obviously clearly certainly\n```")),
			absent: []string{
				document.FlagUnsupportedClaims,
				document.FlagSevereClaims,
				document.FlagInconsistentTerms,
			},
		},
		{
			name: "lowercase terms inside urls",
			norm: normDoc(600, proseSection(
				"Fetch http://example.com/doc and follow the HTTP spec. HTTP has versions.")),
			absent: []string{document.FlagInconsistentTerms},
		},
		{
			name:   "full coverage band",
			norm:   normDoc(600, proseSection("# Title\n\nEnough body words by the word count field.")),
			absent: []string{document.FlagLowCoverage, document.FlagCriticalCoverage},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := New().Validate(tt.norm, nil)
			for _, code := range tt.absent {
				if findFlag(report, code) != nil {
					t.Errorf("flag %s should not fire: %+v", code, report.Flags)
				}
			}
		})
	}
}

func TestValidate_BrokenLinkCollectionCapped(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 12; i++ {
		sb.WriteString("[x](htp://broken")
		sb.WriteByte(byte('a' + i))
		sb.WriteString(".example) ")
	}
	report := New().Validate(normDoc(600, proseSection(sb.String())), nil)

	if len(report.BrokenLinks) != 10 {
		t.Fatalf("broken links = %d, want 10", len(report.BrokenLinks))
	}
	if report.BrokenLinks[0] != "htp://brokena.example" {
		t.Errorf("first broken link = %q", report.BrokenLinks[0])
	}
}

func TestValidate_MinimalSectionLocation(t *testing.T) {
	norm := normDoc(600,
		document.Section{AnchorID: "first", Heading: "First", Level: 2, Content: "thin"},
		document.Section{AnchorID: "second", Heading: "Second", Level: 2, Content: "also thin"},
	)
	report := New().Validate(norm, nil)

	flag := findFlag(report, document.FlagMinimalSections)
	if flag == nil {
		t.Fatalf("minimal sections flag missing: %+v", report.Flags)
	}
	if flag.Location != "first" {
		t.Errorf("location = %q, want first", flag.Location)
	}
}

func TestBrokenTarget(t *testing.T) {
	tests := []struct {
		target string
		want   bool
	}{
		{"https://example.com/a", false},
		{"http://example.com", false},
		{"http://", true},
		{"htp://x.example", true},
		{"example.com/docs", true},
		{"mailto:team@example.com", true},
		{"https://%zz", true},
		{"#anchor", false},
		{"/kb/slug", false},
		{"./sibling", false},
		{"../parent", false},
	}
	for _, tt := range tests {
		if got := brokenTarget(tt.target); got != tt.want {
			t.Errorf("brokenTarget(%q) = %v, want %v", tt.target, got, tt.want)
		}
	}
}

func TestStripCode(t *testing.T) {
	content := "Start `inline` mid.\n\n```\nFENCED BODY\n```\n\n<pre><code class=\"language-go\">RENDERED</code></pre>\n\nEnd."
	got := stripCode(content)

	for _, gone := range []string{"inline", "FENCED BODY", "RENDERED"} {
		if strings.Contains(got, gone) {
			t.Errorf("stripCode kept %q: %q", gone, got)
		}
	}
	for _, kept := range []string{"Start", "mid.", "End."} {
		if !strings.Contains(got, kept) {
			t.Errorf("stripCode dropped %q: %q", kept, got)
		}
	}
}

func TestHeadingLevels(t *testing.T) {
	content := "### C\n\n# A\n\n```\n## fenced out\n```\n\n## B\n\n# A again"
	got := headingLevels(content)
	want := []int{1, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("levels = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("levels = %v, want %v", got, want)
		}
	}

	if levels := headingLevels("no structure here"); len(levels) != 0 {
		t.Errorf("levels = %v, want empty", levels)
	}
}
