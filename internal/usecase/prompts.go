package usecase

import (
	"fmt"
	"strings"

	"poetry-pipeline/internal/domain/model"
	"poetry-pipeline/internal/domain/ports/adapter"
	"poetry-pipeline/internal/domain/structured"
)

// strictSuffix is appended on the single retry after an extraction failure.
const strictSuffix = `

Your previous answer could not be parsed. Output ONLY one valid JSON value, with no markdown fences, no commentary before or after it, and every string properly escaped. Keep it short enough to finish within the length limit.`

var analysisSchema = structured.MustCompileSchema("analysis", `{
	"type": "object",
	"required": ["literaryAnalysis", "thematicAnalysis", "emotionalAnalysis", "culturalAnalysis"],
	"properties": {
		"literaryAnalysis": {"type": "string", "minLength": 1},
		"thematicAnalysis": {"type": "string", "minLength": 1},
		"emotionalAnalysis": {"type": "string", "minLength": 1},
		"culturalAnalysis": {"type": "string", "minLength": 1},
		"hebrewAnalysis": {"type": "string"}
	}
}`)

// Array items of the gloss and comparison schemas are checked one by one
// after decoding so a malformed entry drops only itself.

var comparisonSchema = structured.MustCompileSchema("comparison", `{
	"type": "object",
	"required": ["comparisonContent"],
	"properties": {
		"comparisonContent": {"type": "string", "minLength": 1},
		"agreements": {"type": "array"},
		"disagreements": {"type": "array"},
		"insights": {"type": "array"}
	}
}`)

var vocabularySchema = structured.MustCompileSchema("vocabulary", `{
	"type": "array",
	"minItems": 1
}`)

var linesSchema = structured.MustCompileSchema("lines", `{
	"type": "array",
	"minItems": 1
}`)

var poemSchema = structured.MustCompileSchema("poem", `{
	"type": "object",
	"required": ["title", "content"],
	"properties": {
		"title": {"type": "string", "minLength": 1},
		"titleHe": {"type": "string"},
		"author": {"type": "string"},
		"content": {"type": "string", "minLength": 1},
		"themes": {"type": "array", "items": {"type": "string"}}
	}
}`)

var verifySchema = structured.MustCompileSchema("verify", `{
	"type": "object",
	"required": ["status"],
	"properties": {
		"status": {"enum": ["verified", "corrected", "rejected"]},
		"reason": {"type": "string"}
	}
}`)

func analysisPrompt(title, author, content string, themes []string, lang model.Language) string {
	instruction := "Respond in English."
	hebrewField := ""
	if lang == model.LanguageHE {
		instruction = `IMPORTANT: Respond entirely in Hebrew. All analysis must be written in Hebrew.

In addition to the standard analysis categories, include a dedicated section for Hebrew-specific poetic devices:
- Biblical parallelism (הקבלה)
- Root-play / shoresh wordplay (משחקי שורשים)
- Chiasmus (כיאזמוס)
- Acrostic patterns (אקרוסטיכון)
- Allusions to biblical or liturgical texts (רמזים למקורות)`
		hebrewField = `,
  "hebrewAnalysis": "Dedicated analysis of Hebrew-specific poetic devices: biblical parallelism, root-play, chiasmus, acrostic patterns, allusions to sacred texts, and unique features of Hebrew prosody."`
	}

	return fmt.Sprintf(`You are a literary critic and poetry analyst. Analyze the following poem in depth.

Title: %s
Author: %s
Themes: %s

--- POEM ---
%s
--- END POEM ---

%s

Provide your analysis in the following JSON format:
{
  "literaryAnalysis": "Analysis of literary devices, structure, form, meter, rhyme scheme, enjambment, imagery, metaphor, simile, personification, etc.",
  "thematicAnalysis": "Analysis of the poem's themes, central ideas, philosophical underpinnings, and how they develop through the poem.",
  "emotionalAnalysis": "Analysis of the emotional arc, tone shifts, mood, and the reader's emotional journey through the poem.",
  "culturalAnalysis": "Analysis of cultural context, historical period, literary movement, intertextual references, and the poem's place in literary tradition."%s
}

Respond ONLY with valid JSON.`, title, author, strings.Join(themes, ", "), content, instruction, hebrewField)
}

func comparisonPrompt(title string, lang model.Language, comments []*model.Commentary) string {
	instruction := "Write the comparison in English."
	if lang == model.LanguageHE {
		instruction = "IMPORTANT: Write the entire comparison in Hebrew."
	}

	var b strings.Builder
	for i, c := range comments {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "=== %s Analysis ===\nLiterary: %s\nThematic: %s\nEmotional: %s\nCultural: %s\n",
			c.Provider, c.Literary, c.Thematic, c.Emotional, c.Cultural)
		if c.Hebrew != "" {
			fmt.Fprintf(&b, "Hebrew Devices: %s\n", c.Hebrew)
		}
	}

	var insights []string
	for _, c := range comments {
		insights = append(insights, fmt.Sprintf(`    {"model": %q, "insight": "Unique insight from %s"}`, c.Provider, c.Provider))
	}

	return fmt.Sprintf(`You are a meta-critic comparing %d AI analyses of the poem %q.

%s

Here are the analyses from the different AI models:

%s

Provide a comparison in the following JSON format:
{
  "comparisonContent": "A flowing, essay-style comparison (3-5 paragraphs) discussing how the models approached the poem differently, what unique insights each brought, and what this tells us about AI literary analysis.",
  "agreements": ["Point the models agree on", ...],
  "disagreements": ["Area where models diverge with explanation", ...],
  "insights": [
%s
  ]
}

Respond ONLY with valid JSON.`, len(comments), title, instruction, b.String(), strings.Join(insights, ",\n"))
}

func vocabularyPrompt(content string, lang model.Language) string {
	instruction := "Identify non-basic English words that a typical reader might not know. Provide concise definitions."
	if lang == model.LanguageHE {
		instruction = "The poem is in Hebrew. Identify non-basic Hebrew words that an intermediate Hebrew reader might not know. Provide definitions in English."
	}
	return fmt.Sprintf(`Analyze this poem and identify words that are not basic everyday vocabulary: literary, archaic, technical, or uncommon words that a reader might want to look up.

%s

Poem:
%s

Return a JSON array of objects with "word" (the exact word as it appears in the poem) and "definition" (a brief, clear definition in English, 5-15 words).

Only include genuinely non-basic words (aim for 5-15 words). Do NOT include common words.

Respond ONLY with the JSON array, no other text:
[{"word": "...", "definition": "..."}]`, instruction, content)
}

func linesPrompt(content string, lang model.Language) string {
	instruction := "Provide explanations in English. Each explanation should be a plain-language paraphrase of what the line means."
	if lang == model.LanguageHE {
		instruction = "The poem is in Hebrew. Provide explanations in Hebrew. Each explanation should be a plain-language paraphrase of what the line means."
	}
	return fmt.Sprintf(`For each line of this poem, provide a short (10-15 word) plain-language explanation of what it means in context of the full poem.

%s

Poem:
%s

Return a JSON array of objects with "line" (the exact line text) and "explanation" (the plain-language meaning).
Skip empty lines. Only include lines that contain text.

Respond ONLY with the JSON array, no other text:
[{"line": "...", "explanation": "..."}]`, instruction, content)
}

func generationPrompt(themes []string, lang model.Language, avoidTitles []string) string {
	instruction := "Write the poem in English."
	if lang == model.LanguageHE {
		instruction = "Write the poem entirely in Hebrew. Include rich Hebrew poetic devices."
	}
	if len(avoidTitles) > 0 {
		instruction += fmt.Sprintf(" These titles are already taken, choose a different title and write new lines: %q.", avoidTitles)
	}
	return fmt.Sprintf(`Write an original poem about the following themes: %s.

%s

The poem should be between 12-40 lines, with clear stanza breaks. It should be literary, evocative, and suitable for serious literary analysis.

Respond in JSON format:
{"title": "...", "titleHe": "..." (if Hebrew), "content": "full poem with \n for line breaks", "themes": ["theme1", "theme2", "theme3"]}`,
		strings.Join(themes, ", "), instruction)
}

func extractionPrompt(res adapter.ResearchResult, wanted string) string {
	answer := res.Answer
	if answer == "" {
		answer = "No direct answer"
	}
	snippets := make([]string, 0, len(res.Sources))
	for _, s := range res.Sources {
		snippets = append(snippets, s.Snippet)
	}
	return fmt.Sprintf(`Based on this research about poems, extract or identify %s. If the full text is available, include it. If not, provide the poem's title, author, and whatever text is available.

Research results: %s
Sources: %s

Respond in JSON format:
{"title": "...", "author": "...", "content": "full poem text...", "themes": ["theme1", "theme2"]}`, wanted, answer, strings.Join(snippets, "\n"))
}

func verificationPrompt(title, author, content string, res adapter.ResearchResult) string {
	answer := res.Answer
	if answer == "" {
		answer = "No direct answer found."
	}
	sources := make([]string, 0, len(res.Sources))
	for _, s := range res.Sources {
		sources = append(sources, fmt.Sprintf("[%s] %s", s.URL, s.Snippet))
	}
	return fmt.Sprintf(`You are verifying whether a poem was correctly attributed and transcribed.

POEM TO VERIFY:
Title: %s
Author: %s
Text:
%s

RESEARCH RESULTS:
%s
Sources: %s

INSTRUCTIONS:
1. Check if the author attribution is correct: does this poem actually belong to this author?
2. Check if the poem text is accurate: does it match what's found online, or was it fabricated or paraphrased?
3. If the poem is correct, respond with status "verified".
4. If the author or text is wrong but you can correct it from the research, respond with status "corrected" and provide the fixed data.
5. If you cannot verify the poem at all (no evidence it exists, or the text appears fabricated), respond with status "rejected".

Respond in JSON:
{
  "status": "verified" | "corrected" | "rejected",
  "reason": "brief explanation",
  "correctedTitle": "only if corrected",
  "correctedTitleHe": "only if corrected, Hebrew title",
  "correctedAuthor": "only if corrected",
  "correctedAuthorHe": "only if corrected, Hebrew author name",
  "correctedContent": "only if corrected, full corrected text",
  "correctedContentHe": "only if corrected, full corrected Hebrew text",
  "sourceUrl": "URL where the poem was found (from research sources)"
}`, title, author, content, answer, strings.Join(sources, "\n"))
}

// verificationQuery is an exact-phrase web query for a title and author.
func verificationQuery(title, author string, lang model.Language) string {
	if lang == model.LanguageHE {
		return fmt.Sprintf("%q %q שיר טקסט מלא", title, author)
	}
	return fmt.Sprintf("%q %q poem full text", title, author)
}
