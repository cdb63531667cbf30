package crossqa

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/glyphworks/kbforge/document"
	"github.com/glyphworks/kbforge/llm"
)

// articleDigest is the compact per-article structure serialized into
// the consistency prompt.
type articleDigest struct {
	Slug     string   `json:"slug"`
	Title    string   `json:"title"`
	Headings []string `json:"headings,omitempty"`
	FAQs     []string `json:"faqs,omitempty"`
	Links    []string `json:"related_links,omitempty"`
}

type llmDuplicate struct {
	ArticleA string `json:"article_a"`
	ArticleB string `json:"article_b"`
	Reason   string `json:"reason"`
}

type llmInvalidLink struct {
	Article string `json:"article"`
	URL     string `json:"url"`
}

type llmFAQ struct {
	Question string   `json:"question"`
	Articles []string `json:"articles"`
}

type llmTerm struct {
	Canonical string   `json:"canonical"`
	Variants  []string `json:"variants"`
}

// llmFindings is the strict response contract. All four keys must be
// present or the whole response is discarded.
type llmFindings struct {
	Duplicates        []llmDuplicate   `json:"duplicates"`
	InvalidLinks      []llmInvalidLink `json:"invalid_related_links"`
	DuplicateFAQs     []llmFAQ         `json:"duplicate_faqs"`
	TerminologyIssues []llmTerm        `json:"terminology_issues"`
}

var requiredKeys = []string{"duplicates", "invalid_related_links", "duplicate_faqs", "terminology_issues"}

func (c *Checker) requestFindings(ctx context.Context, articles []*document.Article) (*llmFindings, error) {
	digests := make([]articleDigest, 0, len(articles))
	for _, a := range articles {
		d := articleDigest{
			Slug:     a.DocSlug,
			Title:    a.Title,
			Headings: a.Headings,
			FAQs:     extractQuestions(a.Content),
		}
		if a.RelatedLinks != nil {
			for _, link := range a.RelatedLinks.Internal {
				d.Links = append(d.Links, link.URL)
			}
		}
		digests = append(digests, d)
	}
	payload, err := json.Marshal(digests)
	if err != nil {
		return nil, fmt.Errorf("serializing article digests: %w", err)
	}

	temp := 0.2
	resp, err := c.client.Complete(ctx, llm.Request{
		Purpose:     llm.PurposeCrossQA,
		Prompt:      consistencyPrompt(string(payload)),
		Temperature: &temp,
		MaxTokens:   2000,
	})
	if err != nil {
		return nil, err
	}
	return parseFindings(resp.Content)
}

func consistencyPrompt(digests string) string {
	var sb strings.Builder
	sb.WriteString("You review a set of knowledge base articles for cross-article consistency.\n\n")
	sb.WriteString("Articles:\n")
	sb.WriteString(digests)
	sb.WriteString("\n\nFind articles covering the same subject, questions repeated across articles, and terms written in more than one form.\n")
	sb.WriteString("Respond with JSON only, containing exactly these four keys:\n")
	sb.WriteString(`{"duplicates": [{"article_a": "<slug>", "article_b": "<slug>", "reason": "<short>"}], ` +
		`"invalid_related_links": [{"article": "<slug>", "url": "<url>"}], ` +
		`"duplicate_faqs": [{"question": "<text>", "articles": ["<slug>"]}], ` +
		`"terminology_issues": [{"canonical": "<preferred form>", "variants": ["<other forms seen>"]}]}`)
	sb.WriteString("\nUse [] for a key with no findings.")
	return sb.String()
}

// parseFindings enforces the four-key contract. Any missing key or
// malformed payload rejects the response entirely so the programmatic
// findings stand alone.
func parseFindings(content string) (*llmFindings, error) {
	payload := llm.ExtractJSON(content)
	if payload == "" {
		return nil, fmt.Errorf("no JSON object in response")
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return nil, fmt.Errorf("parsing consistency response: %w", err)
	}
	for _, key := range requiredKeys {
		if _, ok := raw[key]; !ok {
			return nil, fmt.Errorf("consistency response missing key %q", key)
		}
	}
	var findings llmFindings
	if err := json.Unmarshal([]byte(payload), &findings); err != nil {
		return nil, fmt.Errorf("parsing consistency findings: %w", err)
	}
	return &findings, nil
}
