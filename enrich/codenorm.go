package enrich

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/glyphworks/kbforge/document"
)

const defaultLanguageClass = "language-text"

var (
	// preBlockRe matches blocks a previous run already normalized.
	preBlockRe = regexp.MustCompile(`<pre><code class="(language-[a-z0-9+]+)">(?s:.*?)</code></pre>`)
	// fencedRe matches a fenced code block with optional info string.
	fencedRe = regexp.MustCompile("(?ms)^```([^\n]*)\n(.*?)^```[ \t]*$")
	// inlineCodeRe matches a single-line backtick span.
	inlineCodeRe = regexp.MustCompile("`([^`\n]+)`")
	// inlineDoneRe matches spans a previous run already converted.
	inlineDoneRe = regexp.MustCompile(`<code>([^<>\n]*)</code>`)
	// listItemRe guards indented-code detection against list continuations.
	listItemRe = regexp.MustCompile(`^\s*(?:[-*+]|\d+[.)])\s`)
)

// languageAliases maps fence info strings to canonical highlight names.
var languageAliases = map[string]string{
	"js": "javascript", "jsx": "javascript", "mjs": "javascript", "javascript": "javascript",
	"ts": "typescript", "tsx": "typescript", "typescript": "typescript",
	"py": "python", "python": "python", "python3": "python",
	"rb": "ruby", "ruby": "ruby",
	"go": "go", "golang": "go",
	"java": "java", "kt": "kotlin", "kotlin": "kotlin",
	"c": "c", "cpp": "cpp", "c++": "cpp", "cc": "cpp",
	"cs": "csharp", "csharp": "csharp",
	"php": "php", "swift": "swift",
	"rs": "rust", "rust": "rust",
	"sh": "bash", "bash": "bash", "zsh": "bash", "shell": "bash", "console": "bash",
	"ps1": "powershell", "powershell": "powershell",
	"yml": "yaml", "yaml": "yaml",
	"json": "json", "jsonc": "json",
	"xml": "xml", "html": "html", "htm": "html",
	"css": "css", "scss": "scss", "sass": "scss",
	"sql": "sql", "mysql": "sql", "postgres": "sql", "postgresql": "sql",
	"md": "markdown", "markdown": "markdown",
	"dockerfile": "dockerfile", "docker": "dockerfile",
	"makefile": "makefile", "make": "makefile",
	"toml": "toml", "ini": "ini",
	"proto": "protobuf", "protobuf": "protobuf",
	"graphql": "graphql", "gql": "graphql",
	"r": "r", "scala": "scala",
	"perl": "perl", "pl": "perl",
	"lua": "lua", "dart": "dart",
	"ex": "elixir", "exs": "elixir", "elixir": "elixir",
	"erl": "erlang", "erlang": "erlang",
	"clj": "clojure", "clojure": "clojure",
	"hs": "haskell", "haskell": "haskell",
	"txt": "text", "text": "text", "plain": "text",
}

// CodeNormalizer rewrites fenced, inline and indented code into
// HTML-escaped pre/code form with canonical language-* classes.
// Already-normalized regions are recognized and left alone, so a
// re-run reproduces the same content and metadata.
type CodeNormalizer struct{}

// NewCodeNormalizer creates a CodeNormalizer.
func NewCodeNormalizer() *CodeNormalizer {
	return &CodeNormalizer{}
}

// Name implements Enricher.
func (n *CodeNormalizer) Name() string {
	return "code_normalize"
}

// Enrich implements Enricher.
func (n *CodeNormalizer) Enrich(_ context.Context, article *document.Article) (*document.Article, error) {
	content, meta := n.normalize(article.Content)
	article.Content = content
	article.CodeBlocks = meta
	return article, nil
}

func (n *CodeNormalizer) normalize(content string) (string, *document.CodeMeta) {
	meta := &document.CodeMeta{Languages: map[string]int{}}
	var stash []string
	add := func(rendered string) string {
		stash = append(stash, rendered)
		return fmt.Sprintf("\x00code%d\x00", len(stash)-1)
	}

	// Regions a previous run produced: count them, keep them verbatim.
	content = preBlockRe.ReplaceAllStringFunc(content, func(block string) string {
		class := preBlockRe.FindStringSubmatch(block)[1]
		meta.FencedBlocks++
		meta.Languages[class]++
		return add(block)
	})
	content = inlineDoneRe.ReplaceAllStringFunc(content, func(span string) string {
		meta.InlineSpans++
		return add(span)
	})

	content = fencedRe.ReplaceAllStringFunc(content, func(block string) string {
		m := fencedRe.FindStringSubmatch(block)
		class := canonicalLanguage(m[1])
		body := strings.TrimSuffix(m[2], "\n")
		meta.FencedBlocks++
		meta.Languages[class]++
		return add(renderCode(class, body))
	})

	content = n.replaceIndented(content, add, meta)

	content = inlineCodeRe.ReplaceAllStringFunc(content, func(span string) string {
		body := inlineCodeRe.FindStringSubmatch(span)[1]
		meta.InlineSpans++
		return add("<code>" + html.EscapeString(body) + "</code>")
	})

	for i, rendered := range stash {
		content = strings.Replace(content, fmt.Sprintf("\x00code%d\x00", i), rendered, 1)
	}

	meta.NormalizedAt = time.Now().UTC()
	return content, meta
}

// replaceIndented converts blank-line-bounded runs of 4-space or tab
// indented lines. Runs continuing a list item are prose, not code.
func (n *CodeNormalizer) replaceIndented(content string, add func(string) string, meta *document.CodeMeta) string {
	lines := strings.Split(content, "\n")
	out := make([]string, 0, len(lines))
	i := 0
	for i < len(lines) {
		if !isIndentedCode(lines[i]) || !blankOrStart(lines, i) || continuesList(lines, i) {
			out = append(out, lines[i])
			i++
			continue
		}

		j := i
		for j < len(lines) && (isIndentedCode(lines[j]) || strings.TrimSpace(lines[j]) == "") {
			j++
		}
		end := j
		for end > i && strings.TrimSpace(lines[end-1]) == "" {
			end--
		}

		block := make([]string, 0, end-i)
		for _, line := range lines[i:end] {
			block = append(block, stripIndent(line))
		}
		meta.FencedBlocks++
		meta.Languages[defaultLanguageClass]++
		out = append(out, add(renderCode(defaultLanguageClass, strings.Join(block, "\n"))))

		out = append(out, lines[end:j]...)
		i = j
	}
	return strings.Join(out, "\n")
}

func renderCode(class, body string) string {
	return `<pre><code class="` + class + `">` + html.EscapeString(body) + `</code></pre>`
}

// canonicalLanguage maps a fence info string to language-*; anything
// unrecognized becomes language-text.
func canonicalLanguage(info string) string {
	info = strings.ToLower(strings.TrimSpace(info))
	if fields := strings.Fields(info); len(fields) > 0 {
		info = fields[0]
	}
	if canonical, ok := languageAliases[info]; ok {
		return "language-" + canonical
	}
	return defaultLanguageClass
}

func isIndentedCode(line string) bool {
	return strings.HasPrefix(line, "    ") || strings.HasPrefix(line, "\t")
}

func stripIndent(line string) string {
	if strings.HasPrefix(line, "\t") {
		return line[1:]
	}
	return strings.TrimPrefix(line, "    ")
}

func blankOrStart(lines []string, i int) bool {
	return i == 0 || strings.TrimSpace(lines[i-1]) == ""
}

// continuesList reports whether the closest preceding non-blank line
// is a list item.
func continuesList(lines []string, i int) bool {
	for k := i - 1; k >= 0; k-- {
		trimmed := strings.TrimSpace(lines[k])
		if trimmed == "" {
			continue
		}
		return listItemRe.MatchString(lines[k])
	}
	return false
}

// LanguageList returns the canonical classes in a CodeMeta sorted by
// count then name, for logging and summaries.
func LanguageList(meta *document.CodeMeta) []string {
	if meta == nil || len(meta.Languages) == 0 {
		return nil
	}
	out := make([]string, 0, len(meta.Languages))
	for class := range meta.Languages {
		out = append(out, class)
	}
	sort.Slice(out, func(a, b int) bool {
		if meta.Languages[out[a]] != meta.Languages[out[b]] {
			return meta.Languages[out[a]] > meta.Languages[out[b]]
		}
		return out[a] < out[b]
	})
	return out
}
