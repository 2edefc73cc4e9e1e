package domain

import "strings"

// InsightSystemPrompt frames the model as a structured extractor.
const InsightSystemPrompt = "You extract practical knowledge from video transcripts. " +
	"You answer with a single JSON object in a fixed format and nothing else."

const insightInstructions = `Read the transcript below and extract structured, actionable insights.
Answer with minified JSON only: no markdown fences, no commentary, no trailing commas.
Every key must be present even when its value is empty. Use arrays even for a single item.

{
  "lessons": [
    {
      "title": "short lesson title",
      "summary": "one or two sentence summary",
      "detailed_explanation": "context and why the lesson matters",
      "action_steps": ["specific practical step"],
      "examples": ["story or quote from the transcript"]
    }
  ],
  "quotes": ["memorable quote taken verbatim from the transcript"],
  "mindset_shifts": ["change of perspective the speaker recommends"],
  "reflection_questions": ["question that helps apply the lesson"],
  "mistakes_or_warnings": ["mistake or warning the speaker highlights"],
  "personal_insights": ["personal story or opinion of the speaker"],
  "emotional_tone": "overall tone, e.g. motivational or cautionary",
  "category": "theme, e.g. productivity, health, finance",
  "tags": ["tag"]
}

Quotes and examples must come from the transcript. Answer in the language of the transcript.

Transcript:
`

// InsightUserPrompt builds the user message for one transcript.
func InsightUserPrompt(transcript string) string {
	return insightInstructions + strings.TrimSpace(transcript)
}
