package generate

const writeSystemPrompt = `You are a technical writer producing knowledge-base articles. You write clear, accurate Markdown grounded strictly in the provided source material and notes. You never invent facts, URLs, or version numbers.`

const writeUserPrompt = `Write a knowledge-base article titled %q.

Required sections, in this order, each introduced with a "## " heading:
%s
Writing notes:
%s
Source material:
%s

Respond with the article body in Markdown only, starting at the first section heading. Do not repeat the article title as a heading.`
