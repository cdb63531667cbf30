package analyze

// classifySystemPrompt is the system prompt for document classification.
const classifySystemPrompt = `You are a technical-content classifier. Analyze documents and return structured classifications.

Always respond with valid JSON. Do not include any text outside the JSON object.`

// classifyUserPrompt is the user prompt template for classification.
// The %s placeholder is replaced with the document preview.
const classifyUserPrompt = `Classify this document along the following dimensions:

1. **content_type**: Choose exactly one:
   - "api_documentation" - describes endpoints, request/response formats, or integration surfaces
   - "tutorial" - step-by-step instructions for accomplishing a task
   - "troubleshooting" - diagnosing and fixing problems, FAQs, error catalogs
   - "conceptual" - explains ideas, architecture, or background
   - "reference" - lookup material: options, settings, schemas, glossaries
   - "generic" - none of the above fits

2. **technical_depth**: "introductory", "intermediate", or "advanced".

3. **audience_level**: "beginner", "intermediate", or "expert".

4. **granularity**: "high_level", "detailed", or "comprehensive".

5. **structure**: "well_structured" (clear heading hierarchy), "partially_structured", or "unstructured".

6. **completeness**: "complete", "partial" (gaps or stubs), or "fragmentary".

7. **complexity**: "low", "moderate", or "high".

8. **key_topics**: The main topics covered, as a list of short phrases. Maximum 10.

9. **recommended_article_count**: How many knowledge-base articles this content should become (1-8). Split only when the material covers clearly separable concerns.

10. **confidence_score**: Your confidence in this classification, 0.0-1.0.

Document to classify:
---
%s
---

Respond with JSON only:
{"content_type":"...","technical_depth":"...","audience_level":"...","granularity":"...","structure":"...","completeness":"...","complexity":"...","key_topics":[...],"recommended_article_count":1,"confidence_score":0.0}`
