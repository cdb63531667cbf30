package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Verdict is a moderation decision for a piece of text.
type Verdict struct {
	// Flagged is true when the text should not be published as-is.
	Flagged bool `json:"flagged"`
	// Categories lists the policy categories that matched.
	Categories []string `json:"categories,omitempty"`
}

// localBlocklist backs the fallback verdict for providers without a
// hosted moderation endpoint. Deliberately coarse: the pipeline treats
// a flagged verdict as a gap to rewrite, not a hard failure.
var localBlocklist = map[string]string{
	"how to build a bomb": "violence",
	"credit card dump":    "illicit",
	"child sexual":        "sexual/minors",
}

// Moderate returns a moderation verdict for text. When the generation
// endpoint's provider exposes a moderation API it is used; otherwise a
// local keyword check decides.
func (c *Client) Moderate(ctx context.Context, text string) (*Verdict, error) {
	ep := c.registry.Resolve(PurposeGeneration)
	if ep == nil {
		return localVerdict(text), nil
	}

	provider := GetProvider(ep.Provider)
	mp, ok := provider.(ModerationProvider)
	if !ok {
		return localVerdict(text), nil
	}

	body, err := mp.BuildModerationBody(text)
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("build moderation body: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, mp.BuildModerationURL(ep.URL), bytes.NewReader(body))
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("create moderation request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	provider.SetHeaders(httpReq, ep.APIKey)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Warn("moderation request failed, using local verdict", "error", err)
		return localVerdict(text), nil
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil || httpResp.StatusCode != http.StatusOK {
		c.logger.Warn("moderation response unusable, using local verdict",
			"status", httpResp.StatusCode, "error", err)
		return localVerdict(text), nil
	}

	verdict, err := mp.ParseModerationResponse(respBody)
	if err != nil {
		c.logger.Warn("moderation parse failed, using local verdict", "error", err)
		return localVerdict(text), nil
	}
	return verdict, nil
}

func localVerdict(text string) *Verdict {
	lower := strings.ToLower(text)
	v := &Verdict{}
	for phrase, category := range localBlocklist {
		if strings.Contains(lower, phrase) {
			v.Flagged = true
			v.Categories = append(v.Categories, category)
		}
	}
	return v
}
