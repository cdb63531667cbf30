package document

import "testing"

func TestIsPublishable(t *testing.T) {
	tests := []struct {
		name     string
		coverage float64
		flags    []QAFlag
		want     bool
	}{
		{
			name:     "clean report",
			coverage: 92,
			want:     true,
		},
		{
			name:     "coverage at floor",
			coverage: 70,
			want:     true,
		},
		{
			name:     "coverage below floor",
			coverage: 69.9,
			want:     false,
		},
		{
			name:     "p0 blocks at full coverage",
			coverage: 100,
			flags:    []QAFlag{{Code: FlagSeverePlaceholders, Severity: SeverityP0, Message: "placeholders"}},
			want:     false,
		},
		{
			name:     "p1 flags do not block",
			coverage: 85,
			flags: []QAFlag{
				{Code: FlagLowCoverage, Severity: SeverityP1, Message: "coverage below target"},
				{Code: FlagBrokenLinks, Severity: SeverityP1, Message: "broken links"},
			},
			want: true,
		},
		{
			name:     "p0 and low coverage",
			coverage: 30,
			flags:    []QAFlag{{Code: FlagCriticalCoverage, Severity: SeverityP0, Message: "critical coverage"}},
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &QAReport{JobID: "job-1", CoveragePercent: tt.coverage, Flags: tt.flags}
			if got := r.IsPublishable(); got != tt.want {
				t.Errorf("IsPublishable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorQAReport(t *testing.T) {
	r := ErrorQAReport("job-9", nil)
	if r.JobID != "job-9" {
		t.Errorf("JobID = %q, want job-9", r.JobID)
	}
	if len(r.Flags) != 1 || r.Flags[0].Code != FlagPipelineError {
		t.Fatalf("flags = %+v, want single %s", r.Flags, FlagPipelineError)
	}
	if r.Flags[0].Severity != SeverityP0 {
		t.Errorf("severity = %s, want P0", r.Flags[0].Severity)
	}
	if r.IsPublishable() {
		t.Error("error report must not be publishable")
	}
}

func TestPriorityFor(t *testing.T) {
	tests := []struct {
		issues int
		want   Priority
	}{
		{0, PriorityLow},
		{1, PriorityMedium},
		{2, PriorityMedium},
		{3, PriorityHigh},
		{5, PriorityHigh},
		{6, PriorityUrgent},
		{100, PriorityUrgent},
	}
	for _, tt := range tests {
		if got := PriorityFor(tt.issues); got != tt.want {
			t.Errorf("PriorityFor(%d) = %s, want %s", tt.issues, got, tt.want)
		}
	}
}
