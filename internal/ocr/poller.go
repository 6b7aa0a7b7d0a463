package ocr

import (
	"context"
	"errors"
	"log"
	"time"
)

const (
	// DefaultInterval is the fixed wait between poll attempts. The loop is a
	// hard ceiling, not a backoff: every attempt waits the same interval so
	// the caller's latency stays bounded at interval*budget.
	DefaultInterval = 1 * time.Second

	// DefaultMaxAttempts is the poll attempt budget.
	DefaultMaxAttempts = 10
)

// Poller runs the bounded polling state machine over a Service.
type Poller struct {
	Service     Service
	Interval    time.Duration
	MaxAttempts int
	Logger      *log.Logger

	// Sleep is injectable for tests; nil means a real context-aware wait.
	Sleep func(ctx context.Context, d time.Duration) error

	// OnAttempt, when set, is invoked before each poll attempt.
	OnAttempt func(attempt int)
}

func (p *Poller) interval() time.Duration {
	if p.Interval <= 0 {
		return DefaultInterval
	}
	return p.Interval
}

func (p *Poller) maxAttempts() int {
	if p.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return p.MaxAttempts
}

func (p *Poller) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run submits the image and polls the returned handle to a terminal state.
//
// The returned Job always carries a terminal state; the error is non-nil for
// submission failures, cancellation, and transport failures during polling.
// Exhausting the attempt budget is not a transport error: it yields
// StateTimedOut with a nil error so callers can flag it distinctly.
func (p *Poller) Run(ctx context.Context, image []byte) (Job, error) {
	handle, err := p.Service.Submit(ctx, image)
	if err != nil {
		return Job{State: StateFailed}, &SubmissionError{Err: err}
	}
	if handle == "" {
		return Job{State: StateFailed}, &SubmissionError{Err: errNoHandle}
	}

	job := Job{Handle: handle, State: StateSubmitted}
	for attempt := 1; attempt <= p.maxAttempts(); attempt++ {
		if err := p.sleep(ctx, p.interval()); err != nil {
			job.State = StateFailed
			return job, err
		}
		job.State = StatePolling
		if p.OnAttempt != nil {
			p.OnAttempt(attempt)
		}

		res, err := p.Service.Poll(ctx, handle)
		if err != nil {
			job.State = StateFailed
			return job, err
		}
		switch res.Status {
		case StatusSucceeded:
			job.State = StateSucceeded
			job.Lines = flattenPages(res.Pages)
			return job, nil
		case StatusPending:
			if p.Logger != nil {
				p.Logger.Printf("ocr: job %s pending, attempt %d/%d", handle, attempt, p.maxAttempts())
			}
		default:
			// Any other terminal status stops polling immediately.
			job.State = StateFailed
			return job, nil
		}
	}

	job.State = StateTimedOut
	return job, nil
}

var errNoHandle = errors.New("submission response carried no job handle")

// flattenPages joins per-page line lists into a single ordered sequence,
// preserving page order then in-page order.
func flattenPages(pages []Page) []string {
	var out []string
	for _, page := range pages {
		out = append(out, page.Lines...)
	}
	return out
}
