package extract

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/glyphworks/kbforge/document"
)

// Markdown line patterns.
var (
	headingRe  = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)
	fenceRe    = regexp.MustCompile("^(```|~~~)\\s*([A-Za-z0-9_+#.-]*)\\s*$")
	imageRe    = regexp.MustCompile(`^!\[([^\]]*)\]\(([^)\s]*)[^)]*\)\s*$`)
	listItemRe = regexp.MustCompile(`^\s{0,3}([-*+]|\d+[.)])\s+`)
)

// parsedMarkdown is the block-level decomposition of a markdown body.
type parsedMarkdown struct {
	frontmatter map[string]any
	blocks      []document.RawBlock
	mediaIDs    []string
}

// parseMarkdown splits markdown into typed blocks with character-offset
// provenance. Offsets are relative to the body, after any frontmatter.
func parseMarkdown(sourceID, content string) *parsedMarkdown {
	p := &parsedMarkdown{}

	body := content
	if strings.HasPrefix(body, "---\n") || strings.HasPrefix(body, "---\r\n") {
		if fm, rest, err := extractFrontmatter(body); err == nil {
			p.frontmatter = fm
			body = rest
		}
	}

	lines := strings.Split(body, "\n")
	offset := 0

	var (
		para       []string
		paraStart  int
		list       []string
		listStart  int
		table      []string
		tableStart int
		code       []string
		codeStart  int
		codeLang   string
		codeFence  string
	)

	flushParagraph := func(end int) {
		if len(para) == 0 {
			return
		}
		text := strings.TrimSpace(strings.Join(para, "\n"))
		if text != "" {
			p.addBlock(document.RawBlock{Type: document.BlockParagraph, Text: text}, sourceID, paraStart, end)
		}
		para = nil
	}
	flushList := func(end int) {
		if len(list) == 0 {
			return
		}
		p.addBlock(document.RawBlock{Type: document.BlockList, Text: strings.Join(list, "\n")}, sourceID, listStart, end)
		list = nil
	}
	flushTable := func(end int) {
		if len(table) == 0 {
			return
		}
		p.addBlock(document.RawBlock{Type: document.BlockTable, Text: strings.Join(table, "\n")}, sourceID, tableStart, end)
		table = nil
	}
	flushAll := func(end int) {
		flushParagraph(end)
		flushList(end)
		flushTable(end)
	}

	for _, line := range lines {
		lineStart := offset
		offset += len(line) + 1
		trimmed := strings.TrimRight(line, " \t\r")

		// Inside a fenced code block everything is literal until the
		// closing fence.
		if codeFence != "" {
			if m := fenceRe.FindStringSubmatch(trimmed); m != nil && m[1] == codeFence && m[2] == "" {
				attrs := map[string]string{}
				if codeLang != "" {
					attrs["language"] = codeLang
				}
				p.addBlock(document.RawBlock{
					Type:  document.BlockCode,
					Text:  strings.Join(code, "\n"),
					Attrs: attrs,
				}, sourceID, codeStart, lineStart+len(line))
				code = nil
				codeFence = ""
				codeLang = ""
				continue
			}
			code = append(code, line)
			continue
		}

		if m := fenceRe.FindStringSubmatch(trimmed); m != nil {
			flushAll(lineStart)
			codeFence = m[1]
			codeLang = strings.ToLower(m[2])
			codeStart = lineStart
			continue
		}

		if trimmed == "" {
			flushAll(lineStart)
			continue
		}

		if m := headingRe.FindStringSubmatch(trimmed); m != nil {
			flushAll(lineStart)
			p.addBlock(document.RawBlock{
				Type:  document.BlockHeading,
				Text:  strings.TrimSpace(m[2]),
				Level: len(m[1]),
			}, sourceID, lineStart, lineStart+len(line))
			continue
		}

		if m := imageRe.FindStringSubmatch(trimmed); m != nil {
			flushAll(lineStart)
			src := m[2]
			p.addBlock(document.RawBlock{
				Type:  document.BlockImage,
				Text:  m[1],
				Attrs: map[string]string{"src": src},
			}, sourceID, lineStart, lineStart+len(line))
			if src != "" {
				p.mediaIDs = append(p.mediaIDs, src)
			}
			continue
		}

		if strings.HasPrefix(trimmed, "|") {
			flushParagraph(lineStart)
			flushList(lineStart)
			if len(table) == 0 {
				tableStart = lineStart
			}
			table = append(table, trimmed)
			continue
		}

		if listItemRe.MatchString(line) {
			flushParagraph(lineStart)
			flushTable(lineStart)
			if len(list) == 0 {
				listStart = lineStart
			}
			list = append(list, trimmed)
			continue
		}

		// Continuation lines attach to an open list; otherwise prose.
		if len(list) > 0 && strings.HasPrefix(line, "  ") {
			list = append(list, trimmed)
			continue
		}

		flushList(lineStart)
		flushTable(lineStart)
		if len(para) == 0 {
			paraStart = lineStart
		}
		para = append(para, trimmed)
	}

	// Unterminated fence: keep the collected lines as a code block.
	if codeFence != "" {
		attrs := map[string]string{}
		if codeLang != "" {
			attrs["language"] = codeLang
		}
		p.addBlock(document.RawBlock{Type: document.BlockCode, Text: strings.Join(code, "\n"), Attrs: attrs}, sourceID, codeStart, offset)
	}
	flushAll(offset)

	return p
}

func (p *parsedMarkdown) addBlock(b document.RawBlock, sourceID string, start, end int) {
	b.Sources = []document.SourceSpan{{SourceID: sourceID, Start: start, End: end}}
	p.blocks = append(p.blocks, b)
}

// extractFrontmatter parses YAML frontmatter from markdown content.
// Returns the parsed frontmatter map, the remaining body, and any error.
func extractFrontmatter(content string) (map[string]any, string, error) {
	const delimiter = "---"

	start := len(delimiter)
	if len(content) > start && content[start] == '\r' {
		start++
	}
	if len(content) > start && content[start] == '\n' {
		start++
	}

	closeIdx := strings.Index(content[start:], "\n"+delimiter)
	if closeIdx == -1 {
		closeIdx = strings.Index(content[start:], "\r\n"+delimiter)
	}
	if closeIdx == -1 {
		return nil, content, fmt.Errorf("no closing frontmatter delimiter")
	}

	yamlContent := content[start : start+closeIdx]

	bodyStart := start + closeIdx + 1 + len(delimiter)
	for bodyStart < len(content) && (content[bodyStart] == '\n' || content[bodyStart] == '\r') {
		bodyStart++
	}

	body := ""
	if bodyStart < len(content) {
		body = content[bodyStart:]
	}

	var frontmatter map[string]any
	if err := yaml.Unmarshal([]byte(yamlContent), &frontmatter); err != nil {
		return nil, content, fmt.Errorf("parse YAML frontmatter: %w", err)
	}

	return frontmatter, body, nil
}
