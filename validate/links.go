package validate

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/glyphworks/kbforge/document"
)

const (
	// maxBrokenLinks caps the broken link collection.
	maxBrokenLinks = 10
	// maxMissingMedia caps the missing media collection.
	maxMissingMedia = 5
)

var (
	// imageAnyRe matches any markdown image so link scanning can skip
	// image targets.
	imageAnyRe = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	// markdownTargetRe captures the destination of a markdown link.
	markdownTargetRe = regexp.MustCompile(`\[[^\]]*\]\(([^)\s]+)(?:\s[^)]*)?\)`)
	// emptyImageRe matches an image marker with no source.
	emptyImageRe = regexp.MustCompile(`!\[([^\]]*)\]\(\s*\)`)
	// imageTargetRe matches an image marker with a source.
	imageTargetRe = regexp.MustCompile(`!\[[^\]]*\]\(\s*[^)\s]+[^)]*\)`)
	// figureRefRe matches prose pointing at media.
	figureRefRe = regexp.MustCompile(`(?i)\b(figure|diagram|screenshot|image)s? (below|above)\b`)
)

func (v *Validator) checkLinks(report *document.QAReport, content string, hrefs []string) {
	var broken []string
	seen := map[string]bool{}
	add := func(target string) {
		if seen[target] || !brokenTarget(target) {
			return
		}
		seen[target] = true
		if len(broken) < maxBrokenLinks {
			broken = append(broken, target)
		}
	}

	withoutImages := imageAnyRe.ReplaceAllString(content, "")
	for _, m := range markdownTargetRe.FindAllStringSubmatch(withoutImages, -1) {
		add(m[1])
	}
	for _, href := range hrefs {
		add(href)
	}

	if len(broken) > 0 {
		report.BrokenLinks = broken
		report.AddFlag(document.FlagBrokenLinks, document.SeverityP1,
			fmt.Sprintf("%d syntactically invalid links", len(broken)), "")
	}
}

// brokenTarget reports whether a link destination is syntactically
// unusable: unparseable, a non-http(s) scheme, or a missing host.
// Anchor and relative targets are internal navigation, not links to
// validate.
func brokenTarget(target string) bool {
	switch {
	case strings.HasPrefix(target, "#"),
		strings.HasPrefix(target, "/"),
		strings.HasPrefix(target, "./"),
		strings.HasPrefix(target, "../"):
		return false
	}

	u, err := url.Parse(target)
	if err != nil {
		return true
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return true
	}
	return u.Host == ""
}

func (v *Validator) checkMedia(report *document.QAReport, content string, embeddedImgs int, missingImgs []string) {
	var missing []string
	for _, m := range emptyImageRe.FindAllStringSubmatch(content, -1) {
		missing = append(missing, imageLabel(m[1]))
	}
	missing = append(missing, missingImgs...)

	embedded := len(imageTargetRe.FindAllString(content, -1)) + embeddedImgs
	if embedded == 0 {
		for _, phrase := range figureRefRe.FindAllString(content, -1) {
			missing = append(missing, strings.ToLower(phrase))
		}
	}

	if len(missing) == 0 {
		return
	}
	if len(missing) > maxMissingMedia {
		missing = missing[:maxMissingMedia]
	}
	report.MissingMedia = missing
	report.AddFlag(document.FlagMissingMedia, document.SeverityP1,
		fmt.Sprintf("%d media references missing sources", len(missing)), "")
}

func imageLabel(alt string) string {
	if strings.TrimSpace(alt) == "" {
		return "unnamed image"
	}
	return alt
}

// htmlRefs walks inline HTML once and returns anchor hrefs, the count
// of images with sources, and labels for images without one.
func htmlRefs(content string) (hrefs []string, embeddedImgs int, missingImgs []string) {
	if !strings.Contains(content, "<a ") && !strings.Contains(content, "<img") {
		return nil, 0, nil
	}
	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return nil, 0, nil
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "a":
				if href, ok := nodeAttr(n, "href"); ok && href != "" {
					hrefs = append(hrefs, href)
				}
			case "img":
				if src, ok := nodeAttr(n, "src"); !ok || strings.TrimSpace(src) == "" {
					alt, _ := nodeAttr(n, "alt")
					missingImgs = append(missingImgs, imageLabel(alt))
				} else {
					embeddedImgs++
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return hrefs, embeddedImgs, missingImgs
}

func nodeAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}
