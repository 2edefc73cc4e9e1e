package domain

import (
	"errors"
	"strings"
	"time"
)

// Job is the queue message that asks the worker to process one video.
type Job struct {
	VideoID    string `json:"video_id"`
	SourceLink string `json:"source_link"`
	OwnerHint  string `json:"owner_hint"`
	RetryCount int    `json:"retry_count"`
}

// Validate rejects messages the worker cannot act on.
func (j Job) Validate() error {
	switch {
	case strings.TrimSpace(j.VideoID) == "":
		return errors.New("job missing video_id")
	case strings.TrimSpace(j.SourceLink) == "":
		return errors.New("job missing source_link")
	case j.RetryCount < 0:
		return errors.New("job has negative retry_count")
	}
	return nil
}

// Next returns the job for the following attempt.
func (j Job) Next() Job {
	j.RetryCount++
	return j
}

// Owner is the identity the finished video is added to.
func (j Job) Owner() Identity {
	return IdentityFromOwnerID(j.OwnerHint)
}

// DeadLetter records a job whose retries are exhausted.
type DeadLetter struct {
	Job
	FinalStatus VideoStatus `json:"final_status"`
	Error       string      `json:"error"`
	FailedAt    time.Time   `json:"failed_at"`
}
