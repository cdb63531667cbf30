package enrich

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glyphworks/kbforge/document"
)

func normalizeContent(t *testing.T, content string) (*document.Article, *document.CodeMeta) {
	t.Helper()
	n := NewCodeNormalizer()
	a, err := n.Enrich(context.Background(), &document.Article{Content: content})
	require.NoError(t, err)
	require.NotNil(t, a.CodeBlocks)
	return a, a.CodeBlocks
}

func TestCodeNormalizer_Fenced(t *testing.T) {
	a, meta := normalizeContent(t, "Intro.\n\n```js\nlet ok = a < b && c > d;\n```\n\nOutro.")

	assert.Equal(t, "Intro.\n\n<pre><code class=\"language-javascript\">let ok = a &lt; b &amp;&amp; c &gt; d;</code></pre>\n\nOutro.", a.Content)
	assert.Equal(t, 1, meta.FencedBlocks)
	assert.Equal(t, map[string]int{"language-javascript": 1}, meta.Languages)
}

func TestCodeNormalizer_UnknownOrMissingLanguage(t *testing.T) {
	a, meta := normalizeContent(t, "```wat\nx\n```\n\n```\ny\n```")

	assert.Contains(t, a.Content, `<pre><code class="language-text">x</code></pre>`)
	assert.Contains(t, a.Content, `<pre><code class="language-text">y</code></pre>`)
	assert.Equal(t, 2, meta.FencedBlocks)
	assert.Equal(t, map[string]int{"language-text": 2}, meta.Languages)
}

func TestCodeNormalizer_Inline(t *testing.T) {
	a, meta := normalizeContent(t, "Run `npm install` and check `a > b` holds.")

	assert.Equal(t, "Run <code>npm install</code> and check <code>a &gt; b</code> holds.", a.Content)
	assert.Equal(t, 2, meta.InlineSpans)
	assert.Equal(t, 0, meta.FencedBlocks)
}

func TestCodeNormalizer_QuoteEscaping(t *testing.T) {
	a, _ := normalizeContent(t, "```sh\necho \"it's done\"\n```")
	assert.Contains(t, a.Content, `<pre><code class="language-bash">echo &#34;it&#39;s done&#34;</code></pre>`)
}

func TestCodeNormalizer_Indented(t *testing.T) {
	a, meta := normalizeContent(t, "Paragraph before.\n\n    x := 1\n    y := 2\n\nParagraph after.")

	assert.Equal(t, "Paragraph before.\n\n<pre><code class=\"language-text\">x := 1\ny := 2</code></pre>\n\nParagraph after.", a.Content)
	assert.Equal(t, 1, meta.FencedBlocks)
	assert.Equal(t, map[string]int{"language-text": 1}, meta.Languages)
}

func TestCodeNormalizer_ListContinuationIsNotCode(t *testing.T) {
	content := "- item with detail\n\n    continuation prose under the item\n\nAfter."
	a, meta := normalizeContent(t, content)

	assert.Equal(t, content, a.Content)
	assert.Equal(t, 0, meta.FencedBlocks)
}

func TestCodeNormalizer_Idempotent(t *testing.T) {
	content := "Use `flag` here.\n\n```py\nprint('x < y')\n```\n\n    tail = 1\n\nDone."

	first, firstMeta := normalizeContent(t, content)
	second, secondMeta := normalizeContent(t, first.Content)

	assert.Equal(t, first.Content, second.Content)
	assert.Equal(t, firstMeta.FencedBlocks, secondMeta.FencedBlocks)
	assert.Equal(t, firstMeta.InlineSpans, secondMeta.InlineSpans)
	assert.Equal(t, firstMeta.Languages, secondMeta.Languages)
}

func TestCanonicalLanguage(t *testing.T) {
	tests := []struct {
		info string
		want string
	}{
		{"js", "language-javascript"},
		{"PY", "language-python"},
		{"golang", "language-go"},
		{"c++", "language-cpp"},
		{"", "language-text"},
		{"mystery", "language-text"},
		{"go linenums", "language-go"},
	}
	for _, tt := range tests {
		t.Run(tt.info, func(t *testing.T) {
			assert.Equal(t, tt.want, canonicalLanguage(tt.info))
		})
	}
}

func TestLanguageList(t *testing.T) {
	meta := &document.CodeMeta{Languages: map[string]int{
		"language-go":   2,
		"language-text": 1,
		"language-bash": 2,
	}}
	assert.Equal(t, []string{"language-bash", "language-go", "language-text"}, LanguageList(meta))
	assert.Nil(t, LanguageList(nil))
}
