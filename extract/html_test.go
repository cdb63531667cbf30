package extract

import (
	"strings"
	"testing"
)

func TestLooksLikeHTML(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    bool
	}{
		{"full page", "<!DOCTYPE html><html><body>hi</body></html>", true},
		{"fragment", "<div class=\"content\"><p>Hello</p></div>", true},
		{"heading tag", "<h2>Install</h2>", true},
		{"markdown", "# Install\n\nRun the installer.", false},
		{"plain text", "just some words", false},
		{"angle brackets in prose", "use a < b and b > c here", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := looksLikeHTML(tt.content); got != tt.want {
				t.Errorf("looksLikeHTML() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExtractHTMLTitle(t *testing.T) {
	tests := []struct {
		name     string
		html     string
		expected string
	}{
		{
			name:     "simple title",
			html:     "<html><head><title>My Page</title></head><body></body></html>",
			expected: "My Page",
		},
		{
			name:     "title with whitespace",
			html:     "<html><head><title>  Spaced Title  </title></head></html>",
			expected: "Spaced Title",
		},
		{
			name:     "no title",
			html:     "<html><head></head><body>Content</body></html>",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractHTMLTitle(tt.html)
			if got != tt.expected {
				t.Errorf("extractHTMLTitle() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestCleanMarkdown(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{
			name:  "excessive newlines",
			input: "Line 1\n\n\n\n\n\nLine 2",
		},
		{
			name:  "trailing spaces",
			input: "Line with trailing space   \nAnother line",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cleanMarkdown(tt.input)
			if strings.Contains(got, "\n\n\n\n") {
				t.Error("cleanMarkdown should remove excessive newlines")
			}
			for _, line := range strings.Split(got, "\n") {
				if strings.HasSuffix(line, " ") {
					t.Errorf("cleanMarkdown should remove trailing spaces: %q", line)
				}
			}
		})
	}
}

func TestFirstMarkdownHeading(t *testing.T) {
	tests := []struct {
		name     string
		markdown string
		expected string
	}{
		{
			name:     "H1 at start",
			markdown: "# Hello World\n\nContent here",
			expected: "Hello World",
		},
		{
			name:     "H1 after prose",
			markdown: "Some text\n\n# Title Here\n\nMore content",
			expected: "Title Here",
		},
		{
			name:     "no H1",
			markdown: "## Section\n\nContent",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := firstMarkdownHeading(tt.markdown)
			if got != tt.expected {
				t.Errorf("firstMarkdownHeading() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestHTMLConverter_FullPage(t *testing.T) {
	converter := newHTMLConverter()

	page := `<!DOCTYPE html>
<html>
<head><title>Test Page</title></head>
<body>
<nav>Navigation</nav>
<main>
<h1>Main Heading</h1>
<p>This is a paragraph with <strong>bold</strong> text.</p>
<ul>
<li>Item 1</li>
<li>Item 2</li>
</ul>
</main>
<footer>Footer</footer>
</body>
</html>`

	result, err := converter.convert(page)
	if err != nil {
		t.Fatalf("convert() error = %v", err)
	}

	if result.title != "Test Page" {
		t.Errorf("title = %q, want %q", result.title, "Test Page")
	}
	if !strings.Contains(result.markdown, "Main Heading") {
		t.Error("markdown should contain 'Main Heading'")
	}
	if !strings.Contains(result.markdown, "Item 1") {
		t.Error("markdown should contain 'Item 1'")
	}
}

func TestHTMLConverter_Fragment(t *testing.T) {
	converter := newHTMLConverter()

	fragment := `<article><h2>Install</h2><p>Run the installer and follow the prompts.</p></article>`

	result, err := converter.convert(fragment)
	if err != nil {
		t.Fatalf("convert() error = %v", err)
	}

	if !strings.Contains(result.markdown, "Install") {
		t.Error("markdown should contain 'Install'")
	}
	if !strings.Contains(result.markdown, "Run the installer") {
		t.Error("markdown should contain the paragraph text")
	}
}
