package enrich

const gapFillSystemPrompt = `You are a technical editor completing knowledge-base articles. You fill gaps using only what the surrounding article establishes, keeping every existing heading and all correct content exactly as written. You never invent facts, URLs, or version numbers.`

const gapFillUserPrompt = `The article %q has the following gaps:
%s
Rewrite the article with every gap filled in context. Keep the heading structure and all sound content unchanged; replace placeholder markers with real prose and expand thin sections.

Article:
%s

Respond with the complete rewritten article body in Markdown only.`
