// Package ocr drives the asynchronous text-recognition job: submit the image,
// then poll the job handle on a fixed interval until it succeeds, fails, or
// exhausts a hard attempt budget.
package ocr

import (
	"context"
	"fmt"
)

// JobState is the poller's view of one recognition job.
type JobState string

const (
	StateSubmitted JobState = "submitted"
	StatePolling   JobState = "polling"
	StateSucceeded JobState = "succeeded"
	StateFailed    JobState = "failed"
	StateTimedOut  JobState = "timed_out"
)

// Terminal reports whether no further transitions are possible.
func (s JobState) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateTimedOut:
		return true
	}
	return false
}

// Handle is the opaque job reference returned by the service on submission.
type Handle string

// Status is the service-reported state of a polled job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
)

// Page is one page of recognized text, lines in reading order.
type Page struct {
	Lines []string
}

// PollResult is one poll response: the job status plus, on success, the
// recognized pages.
type PollResult struct {
	Status Status
	Pages  []Page
}

// Service is the recognition collaborator. Submit returns an opaque handle;
// Poll reports job progress. Transport details are out of scope here.
type Service interface {
	Submit(ctx context.Context, image []byte) (Handle, error)
	Poll(ctx context.Context, h Handle) (PollResult, error)
}

// Job is the aggregate outcome of one submit+poll cycle.
type Job struct {
	Handle Handle
	State  JobState

	// Lines is the flattened text, page order then in-page order. Populated
	// only when State is StateSucceeded.
	Lines []string
}

// SubmissionError means the service accepted the request but returned no job
// handle, so there is nothing to poll.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string {
	if e == nil || e.Err == nil {
		return "ocr submission failed"
	}
	return fmt.Sprintf("ocr submission failed: %v", e.Err)
}

func (e *SubmissionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
