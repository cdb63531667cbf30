package prewrite

const extractSystemPrompt = `You are a technical editor preparing notes for article writers. You extract concrete facts and key points from source material, quoting the source faithfully and never inventing information.`

const extractUserPrompt = `Planned articles:
%s
Extract writing notes for each planned article from the source document below. For each article list:
- facts: up to 8 concrete statements taken from the source (names, numbers, behaviors, commands)
- key_points: up to 6 themes the article must cover

Source document:
%s

Respond with a JSON array only, one object per article:
[{"article_index": 0, "facts": ["..."], "key_points": ["..."]}]`
