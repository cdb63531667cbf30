package document

import (
	"regexp"
	"strings"
	"testing"
)

var anchorPattern = regexp.MustCompile(`^[a-z0-9-]{0,60}$`)

func TestSlugifyDeterministic(t *testing.T) {
	inputs := []string{
		"Getting Started",
		"API Reference: v2",
		"Café au lait",
		"  leading and trailing  ",
		"Ünïcödé Héadings",
	}
	for _, in := range inputs {
		first := Slugify(in, 60)
		second := Slugify(in, 60)
		if first != second {
			t.Errorf("Slugify(%q) not deterministic: %q vs %q", in, first, second)
		}
	}
}

func TestAnchorID(t *testing.T) {
	tests := []struct {
		name    string
		heading string
		want    string
	}{
		{"simple", "Introduction", "introduction"},
		{"spaces", "Getting Started", "getting-started"},
		{"punctuation", "What's New?", "whats-new"},
		{"accents", "Café Configuration", "cafe-configuration"},
		{"underscores", "snake_case_heading", "snake-case-heading"},
		{"collapsed hyphens", "a -- b", "a-b"},
		{"empty", "", "section"},
		{"symbols only", "!!! ???", "section"},
		{"numeric", "2024 Roadmap", "2024-roadmap"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AnchorID(tt.heading)
			if got != tt.want {
				t.Errorf("AnchorID(%q) = %q, want %q", tt.heading, got, tt.want)
			}
			if !anchorPattern.MatchString(got) {
				t.Errorf("AnchorID(%q) = %q does not match %s", tt.heading, got, anchorPattern)
			}
		})
	}
}

func TestAnchorIDLengthCap(t *testing.T) {
	long := strings.Repeat("very long heading ", 20)
	got := AnchorID(long)
	if len(got) > 60 {
		t.Errorf("anchor length = %d, want <= 60", len(got))
	}
	if strings.HasSuffix(got, "-") {
		t.Errorf("anchor %q has trailing hyphen after truncation", got)
	}
}

func TestAssignAnchorIDsDisambiguation(t *testing.T) {
	headings := []string{"Intro", "Intro", "Intro"}
	got := AssignAnchorIDs(headings)
	want := []string{"intro", "intro-2", "intro-3"}
	if len(got) != len(want) {
		t.Fatalf("got %d ids, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ids[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestAssignAnchorIDsNoReuse(t *testing.T) {
	headings := []string{"Setup", "Usage", "Setup", "", "", "Usage", "Setup"}
	got := AssignAnchorIDs(headings)
	seen := map[string]bool{}
	for _, id := range got {
		if seen[id] {
			t.Errorf("anchor %q assigned twice", id)
		}
		seen[id] = true
	}
}

func TestDocSlug(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"Getting Started with the API", "getting-started-with-the-api"},
		{"", "article"},
		{"###", "article"},
	}
	for _, tt := range tests {
		if got := DocSlug(tt.title); got != tt.want {
			t.Errorf("DocSlug(%q) = %q, want %q", tt.title, got, tt.want)
		}
	}

	long := strings.Repeat("words in a long title ", 10)
	if got := DocSlug(long); len(got) > 80 {
		t.Errorf("DocSlug length = %d, want <= 80", len(got))
	}
}

func TestNewDocUID(t *testing.T) {
	uid := NewDocUID()
	if len(uid) != 26 {
		t.Fatalf("uid length = %d, want 26", len(uid))
	}
	for _, r := range uid {
		if !strings.ContainsRune(crockford, r) {
			t.Errorf("uid %q contains %q outside the base32 alphabet", uid, r)
		}
	}

	other := NewDocUID()
	if uid == other {
		t.Error("two generated uids are identical")
	}
}
