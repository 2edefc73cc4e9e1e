package domain

import (
	"fmt"
	"strings"
	"time"
)

// VideoStatus is the processing state of a catalog record.
type VideoStatus string

const (
	VideoStatusPending    VideoStatus = "pending"
	VideoStatusProcessing VideoStatus = "processing"
	VideoStatusRetrying   VideoStatus = "retrying"
	VideoStatusDone       VideoStatus = "done"
	// VideoStatusFailed is only found on records written before retries existed.
	VideoStatusFailed          VideoStatus = "failed"
	VideoStatusFailedPermanent VideoStatus = "failed_permanent"
)

// DefaultMaxRetries is the number of re-enqueues a job gets before it is dead-lettered.
const DefaultMaxRetries = 3

var videoTransitions = map[VideoStatus][]VideoStatus{
	VideoStatusPending:         {VideoStatusProcessing},
	VideoStatusProcessing:      {VideoStatusDone, VideoStatusRetrying, VideoStatusFailedPermanent},
	VideoStatusRetrying:        {VideoStatusProcessing, VideoStatusFailedPermanent},
	VideoStatusFailed:          {VideoStatusPending},
	VideoStatusFailedPermanent: {VideoStatusPending},
}

// AllVideoStatuses lists every status in lifecycle order.
func AllVideoStatuses() []VideoStatus {
	return []VideoStatus{
		VideoStatusPending,
		VideoStatusProcessing,
		VideoStatusRetrying,
		VideoStatusDone,
		VideoStatusFailed,
		VideoStatusFailedPermanent,
	}
}

// ParseVideoStatus converts a stored value into a VideoStatus.
func ParseVideoStatus(raw string) (VideoStatus, error) {
	status := VideoStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !status.Valid() {
		return "", fmt.Errorf("unknown video status %q", raw)
	}
	return status, nil
}

func (s VideoStatus) Valid() bool {
	switch s {
	case VideoStatusPending, VideoStatusProcessing, VideoStatusRetrying,
		VideoStatusDone, VideoStatusFailed, VideoStatusFailedPermanent:
		return true
	}
	return false
}

// InFlight reports whether a job for the record is queued or running.
func (s VideoStatus) InFlight() bool {
	return s == VideoStatusPending || s == VideoStatusProcessing || s == VideoStatusRetrying
}

// Failed reports whether the record can be re-armed by a new submission.
func (s VideoStatus) Failed() bool {
	return s == VideoStatusFailed || s == VideoStatusFailedPermanent
}

func (s VideoStatus) String() string { return string(s) }

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to VideoStatus) bool {
	for _, next := range videoTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// SourcesFor returns every status that may move into to.
func SourcesFor(to VideoStatus) []VideoStatus {
	var out []VideoStatus
	for _, from := range AllVideoStatuses() {
		if CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}

// Video is the shared catalog record for one canonical video id.
type Video struct {
	ID              string
	Status          VideoStatus
	OwnerHint       string
	Title           string
	ThumbnailURL    string
	DurationSeconds int
	SourceLink      string
	TranscriptRef   string
	InsightsRef     string
	RetryCount      int
	LastError       string
	LastFailedAt    *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Ready reports whether the record is done and both artifacts are retrievable.
func (v *Video) Ready() bool {
	return v != nil && v.Status == VideoStatusDone && v.TranscriptRef != "" && v.InsightsRef != ""
}

// VideoMetadata is what the metadata provider knows about a link.
type VideoMetadata struct {
	Title           string
	ThumbnailURL    string
	DurationSeconds int
}
