package domain

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Insights is the canonical document persisted for a processed video.
type Insights struct {
	Lessons             []Lesson `json:"lessons"`
	Quotes              []string `json:"quotes"`
	MindsetShifts       []string `json:"mindset_shifts"`
	ReflectionQuestions []string `json:"reflection_questions"`
	MistakesOrWarnings  []string `json:"mistakes_or_warnings"`
	PersonalInsights    []string `json:"personal_insights"`
	EmotionalTone       string   `json:"emotional_tone"`
	Category            string   `json:"category"`
	Tags                []string `json:"tags"`
}

type Lesson struct {
	Title               string   `json:"title"`
	Summary             string   `json:"summary"`
	DetailedExplanation string   `json:"detailed_explanation"`
	ActionSteps         []string `json:"action_steps"`
	Examples            []string `json:"examples"`
}

// EmptyInsights returns a document with every list present and empty.
func EmptyInsights() Insights {
	return Insights{
		Lessons:             []Lesson{},
		Quotes:              []string{},
		MindsetShifts:       []string{},
		ReflectionQuestions: []string{},
		MistakesOrWarnings:  []string{},
		PersonalInsights:    []string{},
		Tags:                []string{},
	}
}

var fencePattern = regexp.MustCompile("(?i)```(?:json)?")

// StripCodeFences removes markdown code fence markers from model output.
func StripCodeFences(raw string) string {
	return strings.TrimSpace(fencePattern.ReplaceAllString(raw, ""))
}

// ParseInsightsPayload strips fences from raw model output and decodes it
// into a generic JSON object. Anything that is not a JSON object fails.
func ParseInsightsPayload(raw string) (map[string]any, error) {
	cleaned := StripCodeFences(raw)
	if cleaned == "" {
		return nil, Wrap(ErrMalformedResponse, "insights", "parse", "empty model output", nil)
	}
	if start, end := strings.IndexByte(cleaned, '{'), strings.LastIndexByte(cleaned, '}'); start >= 0 && end > start {
		cleaned = cleaned[start : end+1]
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return nil, Wrap(ErrMalformedResponse, "insights", "parse", "model output is not a JSON object", err)
	}
	if payload == nil {
		return nil, Wrap(ErrMalformedResponse, "insights", "parse", "model output is null", nil)
	}
	return payload, nil
}

// NormalizeInsights maps a loosely shaped model payload onto the canonical
// schema. It never fails: missing fields get empty values and known aliases
// are folded into their canonical names.
func NormalizeInsights(payload map[string]any) Insights {
	out := EmptyInsights()
	if payload == nil {
		return out
	}
	if nested, ok := payload["insights"].(map[string]any); ok && payload["lessons"] == nil {
		payload = nested
	}

	out.Quotes = stringList(pick(payload, "quotes"))
	out.MindsetShifts = stringList(pick(payload, "mindset_shifts"))
	out.ReflectionQuestions = stringList(pick(payload, "reflection_questions"))
	out.MistakesOrWarnings = stringList(pick(payload, "mistakes_or_warnings", "mistakes", "warnings"))
	out.PersonalInsights = stringList(pick(payload, "personal_insights"))
	out.EmotionalTone = scalarString(pick(payload, "emotional_tone", "tone"))
	out.Category = scalarString(pick(payload, "category"))
	out.Tags = stringList(pick(payload, "tags"))

	if lessons, ok := pick(payload, "lessons", "key_lessons").([]any); ok {
		for _, item := range lessons {
			out.Lessons = append(out.Lessons, normalizeLesson(item))
		}
	}
	return out
}

func normalizeLesson(item any) Lesson {
	lesson := Lesson{ActionSteps: []string{}, Examples: []string{}}
	fields, ok := item.(map[string]any)
	if !ok {
		lesson.Title = scalarString(item)
		return lesson
	}
	lesson.Title = firstString(fields, "title", "lesson", "key", "key_insight")
	lesson.Summary = firstString(fields, "summary", "details")
	lesson.DetailedExplanation = firstString(fields, "detailed_explanation", "details")
	switch {
	case isList(fields["action_steps"]):
		lesson.ActionSteps = stringList(fields["action_steps"])
	case isList(fields["tips"]):
		lesson.ActionSteps = stringList(fields["tips"])
	default:
		lesson.ActionSteps = stringList(pick(fields, "action_step", "action_steps", "tips"))
	}
	lesson.Examples = stringList(pick(fields, "examples", "example"))
	return lesson
}

func pick(fields map[string]any, keys ...string) any {
	for _, key := range keys {
		if v, ok := fields[key]; ok && v != nil {
			return v
		}
	}
	return nil
}

func firstString(fields map[string]any, keys ...string) string {
	for _, key := range keys {
		if s := scalarString(fields[key]); s != "" {
			return s
		}
	}
	return ""
}

func isList(v any) bool {
	_, ok := v.([]any)
	return ok
}

// stringList accepts a list or a single scalar and always returns a non-nil slice.
func stringList(v any) []string {
	out := []string{}
	switch t := v.(type) {
	case nil:
	case []any:
		for _, item := range t {
			if s := itemString(item); s != "" {
				out = append(out, s)
			}
		}
	default:
		if s := scalarString(t); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func itemString(v any) string {
	if fields, ok := v.(map[string]any); ok {
		if s := firstString(fields, "text", "quote", "question", "title", "value"); s != "" {
			return s
		}
		encoded, err := json.Marshal(fields)
		if err != nil {
			return ""
		}
		return string(encoded)
	}
	return scalarString(v)
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil, map[string]any, []any:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}
