// Package pipeline orchestrates the four analysis stages over one uploaded
// image and reconciles their outputs into a single immutable Result.
//
// No stage failure is fatal: each failure degrades signal quality, sets a
// per-stage flag, and the run still produces a Result. The only fatal
// condition is an absent input image.
package pipeline

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/snaplens/snaplens/internal/actions"
	"github.com/snaplens/snaplens/internal/classify"
	"github.com/snaplens/snaplens/internal/deep"
	"github.com/snaplens/snaplens/internal/meta"
	"github.com/snaplens/snaplens/internal/metrics"
	"github.com/snaplens/snaplens/internal/ocr"
	"github.com/snaplens/snaplens/internal/redact"
	"github.com/snaplens/snaplens/internal/vision"
)

// ErrNoImage rejects a run before any stage starts.
var ErrNoImage = errors.New("no image supplied")

// Upload is one user-supplied image.
type Upload struct {
	Bytes []byte
	MIME  string
}

// StageError records one stage's failure. Detail is redacted and safe to
// surface.
type StageError struct {
	Failed bool   `json:"failed"`
	Detail string `json:"detail,omitempty"`
}

// StageErrors carries the per-stage failure flags of one run.
type StageErrors struct {
	Metadata StageError `json:"metadata"`
	OCR      StageError `json:"ocr"`
	Vision   StageError `json:"vision"`
	LLM      StageError `json:"llm"`
}

// Advisory messages surfaced by the presentation layer, one per stage flag.
const (
	adviseMetadata = "Capture metadata could not be read; location context is unavailable."
	adviseOCR      = "Text recognition did not complete; suggestions are based on visual signals only."
	adviseVision   = "Visual tagging failed; suggestions are based on recognized text only."
	adviseLLM      = "Semantic analysis was unavailable; suggestions use the rule-based classifier."
)

// Advisories maps each set flag to its human-readable message, in stage order.
func (e StageErrors) Advisories() []string {
	var out []string
	if e.Metadata.Failed {
		out = append(out, adviseMetadata)
	}
	if e.OCR.Failed {
		out = append(out, adviseOCR)
	}
	if e.Vision.Failed {
		out = append(out, adviseVision)
	}
	if e.LLM.Failed {
		out = append(out, adviseLLM)
	}
	return out
}

// Result is the aggregate outcome of one run. It is built once, after every
// stage has settled, and never mutated afterwards.
type Result struct {
	RunID string `json:"run_id"`

	Capture meta.Capture `json:"capture"`
	Place   meta.Place   `json:"place"`

	OCRState ocr.JobState `json:"ocr_state"`
	OCRLines []string     `json:"ocr_lines"`
	OCRText  string       `json:"ocr_text"`

	Tags vision.Tags `json:"tags"`

	Deep  *deep.Result `json:"deep,omitempty"`
	Hints *deep.Hints  `json:"hints,omitempty"`

	ContentType classify.ContentType `json:"content_type"`
	Intents     []string             `json:"intents"`
	Actions     []actions.Action     `json:"actions"`

	Errors   StageErrors   `json:"errors"`
	Duration time.Duration `json:"duration"`
}

// Config wires the runner's collaborators. Meta, Geo, Merger and Entities
// are optional; OCR and Vision are required.
type Config struct {
	Meta     meta.Extractor
	Geo      meta.Geocoder
	OCR      ocr.Service
	Vision   vision.Tagger
	Merger   deep.Merger
	Entities deep.EntityExtractor
	Resolver *actions.Resolver

	PollInterval time.Duration
	PollAttempts int

	Logger  *log.Logger
	Metrics *metrics.Pipeline
}

// Runner executes analysis runs. It owns at most one in-flight run: starting
// a new run cancels the previous one so stale results are never returned.
type Runner struct {
	cfg      Config
	resolver *actions.Resolver

	mu         sync.Mutex
	runSeq     uint64
	cancelPrev context.CancelFunc
}

// NewRunner constructs a Runner. A nil Resolver falls back to the embedded
// default tables.
func NewRunner(cfg Config) *Runner {
	resolver := cfg.Resolver
	if resolver == nil {
		resolver = actions.NewResolver()
	}
	return &Runner{cfg: cfg, resolver: resolver}
}

// Analyze runs the full pipeline for one upload.
//
// Stage order: metadata extraction, OCR (submit + poll) and vision tagging
// run concurrently; the deep-analysis merge joins OCR text and vision tags;
// reconciliation and intent resolution close the run. The returned Result is
// complete even when individual stages failed.
func (r *Runner) Analyze(ctx context.Context, up Upload) (*Result, error) {
	if len(up.Bytes) == 0 {
		return nil, ErrNoImage
	}

	ctx, cancel, seq := r.beginRun(ctx)
	defer r.endRun(cancel, seq)

	runID := uuid.NewString()
	logf := func(format string, args ...any) {
		if r.cfg.Logger == nil {
			return
		}
		prefix := make([]any, 0, len(args)+1)
		prefix = append(prefix, runID)
		prefix = append(prefix, args...)
		r.cfg.Logger.Printf("run=%s "+format, prefix...)
	}

	start := time.Now()
	r.cfg.Metrics.RunStarted()
	logf("pipeline start: bytes=%d mime=%s", len(up.Bytes), up.MIME)

	res := &Result{RunID: runID}

	// Metadata, OCR and vision have no data dependencies on each other; the
	// deep merge below needs all three settled.
	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		stageStart := time.Now()
		res.Capture, res.Place, res.Errors.Metadata = r.runMetadata(ctx, up)
		logf("metadata stage done: gps=%t err=%t duration=%s",
			res.Capture.HasGPS, res.Errors.Metadata.Failed, time.Since(stageStart).Round(time.Millisecond))
	}()

	go func() {
		defer wg.Done()
		stageStart := time.Now()
		var job ocr.Job
		job, res.Errors.OCR = r.runOCR(ctx, up)
		res.OCRState = job.State
		res.OCRLines = job.Lines
		res.OCRText = joinLines(job.Lines)
		logf("ocr stage done: state=%s lines=%d err=%t duration=%s",
			job.State, len(job.Lines), res.Errors.OCR.Failed, time.Since(stageStart).Round(time.Millisecond))
	}()

	go func() {
		defer wg.Done()
		stageStart := time.Now()
		res.Tags, res.Errors.Vision = r.runVision(ctx, up)
		logf("vision stage done: tags=%d objects=%d brands=%d err=%t duration=%s",
			len(res.Tags.Tags), len(res.Tags.Objects), len(res.Tags.Brands),
			res.Errors.Vision.Failed, time.Since(stageStart).Round(time.Millisecond))
	}()

	wg.Wait()

	if err := ctx.Err(); err != nil {
		logf("pipeline cancelled before deep analysis")
		return nil, err
	}

	ev := deep.Evidence{
		OCRText: res.OCRText,
		Capture: res.Capture,
		Place:   res.Place,
		Tags:    res.Tags,
	}
	res.Deep, res.Hints, res.Errors.LLM = r.runDeep(ctx, ev, logf)

	if err := ctx.Err(); err != nil {
		logf("pipeline cancelled before reconciliation")
		return nil, err
	}

	res.ContentType = classify.Reconcile(res.Hints, res.Deep, res.Tags, res.OCRText, res.Capture)
	if res.Hints == nil && res.Deep == nil {
		r.cfg.Metrics.LLMFallback()
	}
	res.Intents, res.Actions = r.resolver.Resolve(res.ContentType)

	res.Duration = time.Since(start)
	r.cfg.Metrics.RunFinished(res.Duration)
	logf("pipeline complete: contentType=%s intents=%d actions=%d advisories=%d duration=%s",
		res.ContentType, len(res.Intents), len(res.Actions), len(res.Errors.Advisories()),
		res.Duration.Round(time.Millisecond))

	return res, nil
}

// beginRun cancels any in-flight run and registers this one. The returned
// sequence number identifies the run for endRun.
func (r *Runner) beginRun(ctx context.Context) (context.Context, context.CancelFunc, uint64) {
	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	if r.cancelPrev != nil {
		r.cancelPrev()
	}
	r.runSeq++
	seq := r.runSeq
	r.cancelPrev = cancel
	r.mu.Unlock()
	return ctx, cancel, seq
}

func (r *Runner) endRun(cancel context.CancelFunc, seq uint64) {
	r.mu.Lock()
	// Only clear the slot if a newer run has not replaced it.
	if r.runSeq == seq {
		r.cancelPrev = nil
	}
	r.mu.Unlock()
	cancel()
}

func (r *Runner) runMetadata(ctx context.Context, up Upload) (meta.Capture, meta.Place, StageError) {
	if r.cfg.Meta == nil {
		return meta.Capture{}, meta.Place{}, StageError{}
	}
	capture, err := r.cfg.Meta.Extract(ctx, up.Bytes)
	if err != nil {
		r.cfg.Metrics.StageError("metadata")
		return meta.Capture{}, meta.Place{}, stageErr(err)
	}
	if !capture.HasGPS || r.cfg.Geo == nil {
		return capture, meta.Place{}, StageError{}
	}
	place, err := r.cfg.Geo.Reverse(ctx, capture.Latitude, capture.Longitude)
	if err != nil {
		// The capture itself is still usable; only the derived location
		// context is missing.
		r.cfg.Metrics.StageError("metadata")
		return capture, meta.Place{}, stageErr(err)
	}
	return capture, place, StageError{}
}

func (r *Runner) runOCR(ctx context.Context, up Upload) (ocr.Job, StageError) {
	poller := &ocr.Poller{
		Service:     r.cfg.OCR,
		Interval:    r.cfg.PollInterval,
		MaxAttempts: r.cfg.PollAttempts,
		Logger:      r.cfg.Logger,
		OnAttempt:   func(int) { r.cfg.Metrics.OCRPoll() },
	}
	job, err := poller.Run(ctx, up.Bytes)
	if err != nil {
		r.cfg.Metrics.StageError("ocr")
		return job, stageErr(err)
	}
	if job.State != ocr.StateSucceeded {
		r.cfg.Metrics.StageError("ocr")
		return job, StageError{Failed: true, Detail: "ocr job ended in state " + string(job.State)}
	}
	return job, StageError{}
}

func (r *Runner) runVision(ctx context.Context, up Upload) (vision.Tags, StageError) {
	tags, err := r.cfg.Vision.Analyze(ctx, up.Bytes, up.MIME)
	if err != nil {
		r.cfg.Metrics.StageError("vision")
		return vision.Tags{}, stageErr(err)
	}
	return tags, StageError{}
}

func (r *Runner) runDeep(ctx context.Context, ev deep.Evidence, logf func(string, ...any)) (*deep.Result, *deep.Hints, StageError) {
	var (
		result  *deep.Result
		hints   *deep.Hints
		errFlag StageError
	)
	if r.cfg.Merger != nil {
		stageStart := time.Now()
		out, err := r.cfg.Merger.Merge(ctx, ev)
		if err != nil {
			r.cfg.Metrics.StageError("llm")
			errFlag = StageError{Failed: true, Detail: redact.Secrets(err.Error())}
			logf("deep merge unavailable: %s duration=%s", errFlag.Detail, time.Since(stageStart).Round(time.Millisecond))
		} else {
			result = out
			logf("deep merge done: contentType=%q duration=%s", out.ContentType, time.Since(stageStart).Round(time.Millisecond))
		}
	}
	if r.cfg.Entities != nil {
		stageStart := time.Now()
		out, err := r.cfg.Entities.Extract(ctx, ev)
		if err != nil {
			r.cfg.Metrics.StageError("llm")
			errFlag = StageError{Failed: true, Detail: redact.Secrets(err.Error())}
			logf("entity extraction unavailable: %s duration=%s", errFlag.Detail, time.Since(stageStart).Round(time.Millisecond))
		} else {
			hints = out
			logf("entity extraction done: people=%d products=%d duration=%s",
				len(out.People), len(out.Products), time.Since(stageStart).Round(time.Millisecond))
		}
	}
	return result, hints, errFlag
}

func stageErr(err error) StageError {
	return StageError{Failed: true, Detail: redact.Secrets(err.Error())}
}

func joinLines(lines []string) string {
	return strings.Join(lines, " ")
}
