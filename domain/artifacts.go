package domain

import (
	"fmt"
	"strings"
	"time"
)

const ContentTypeJSON = "application/json"

// TranscriptDocument is the persisted transcript artifact body.
type TranscriptDocument struct {
	Results struct {
		Transcripts []TranscriptEntry `json:"transcripts"`
	} `json:"results"`
}

type TranscriptEntry struct {
	Transcript string `json:"transcript"`
}

func NewTranscriptDocument(text string) TranscriptDocument {
	var doc TranscriptDocument
	doc.Results.Transcripts = []TranscriptEntry{{Transcript: text}}
	return doc
}

// Text joins every transcript entry of the document.
func (d TranscriptDocument) Text() string {
	parts := make([]string, 0, len(d.Results.Transcripts))
	for _, entry := range d.Results.Transcripts {
		parts = append(parts, entry.Transcript)
	}
	return strings.Join(parts, " ")
}

// TranscriptKey names the immutable transcript artifact of one attempt.
func TranscriptKey(videoID string, at time.Time) string {
	return fmt.Sprintf("transcripts/transcription-%s-%d.json", videoID, at.UnixMilli())
}

// InsightsKey names the immutable insights artifact of one attempt.
func InsightsKey(videoID string, at time.Time) string {
	return fmt.Sprintf("insights/insights-%s-%d.json", videoID, at.UnixMilli())
}
