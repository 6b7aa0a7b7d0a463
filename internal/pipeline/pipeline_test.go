package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/snaplens/snaplens/internal/deep"
	"github.com/snaplens/snaplens/internal/meta"
	"github.com/snaplens/snaplens/internal/ocr"
	"github.com/snaplens/snaplens/internal/vision"
)

type fakeMeta struct {
	capture meta.Capture
	err     error
}

func (f fakeMeta) Extract(_ context.Context, _ []byte) (meta.Capture, error) {
	return f.capture, f.err
}

type fakeGeo struct {
	place  meta.Place
	err    error
	called bool
}

func (f *fakeGeo) Reverse(_ context.Context, _, _ float64) (meta.Place, error) {
	f.called = true
	return f.place, f.err
}

// fakeOCR answers every poll the same way.
type fakeOCR struct {
	submitErr error
	result    ocr.PollResult
	pollErr   error

	started chan struct{}
	block   bool
}

func (f *fakeOCR) Submit(_ context.Context, _ []byte) (ocr.Handle, error) {
	if f.started != nil {
		close(f.started)
	}
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return "op-1", nil
}

func (f *fakeOCR) Poll(ctx context.Context, _ ocr.Handle) (ocr.PollResult, error) {
	if f.block {
		<-ctx.Done()
		return ocr.PollResult{}, ctx.Err()
	}
	if f.pollErr != nil {
		return ocr.PollResult{}, f.pollErr
	}
	return f.result, nil
}

type fakeTagger struct {
	tags vision.Tags
	err  error
}

func (f fakeTagger) Analyze(_ context.Context, _ []byte, _ string) (vision.Tags, error) {
	return f.tags, f.err
}

type fakeMerger struct {
	result *deep.Result
	err    error
	seen   deep.Evidence
}

func (f *fakeMerger) Merge(_ context.Context, ev deep.Evidence) (*deep.Result, error) {
	f.seen = ev
	return f.result, f.err
}

type fakeExtractor struct {
	hints *deep.Hints
	err   error
}

func (f fakeExtractor) Extract(_ context.Context, _ deep.Evidence) (*deep.Hints, error) {
	return f.hints, f.err
}

func succeedingOCR(lines ...string) *fakeOCR {
	return &fakeOCR{result: ocr.PollResult{
		Status: ocr.StatusSucceeded,
		Pages:  []ocr.Page{{Lines: lines}},
	}}
}

func testConfig(o ocr.Service, v vision.Tagger) Config {
	return Config{
		Meta:         fakeMeta{},
		OCR:          o,
		Vision:       v,
		PollInterval: time.Millisecond,
		PollAttempts: 3,
	}
}

func TestAnalyzeRejectsEmptyUpload(t *testing.T) {
	t.Parallel()

	r := NewRunner(testConfig(succeedingOCR(), fakeTagger{}))
	_, err := r.Analyze(context.Background(), Upload{})
	if !errors.Is(err, ErrNoImage) {
		t.Fatalf("expected ErrNoImage, got %v", err)
	}
}

func TestAnalyzeHappyPath(t *testing.T) {
	t.Parallel()

	merger := &fakeMerger{result: &deep.Result{ContentType: "Book", Explanation: "cover"}}
	cfg := testConfig(
		succeedingOCR("The Silent Patient", "by Alex Michaelides"),
		fakeTagger{tags: vision.Tags{Tags: []string{"book"}, Caption: "a book cover"}},
	)
	cfg.Meta = fakeMeta{capture: meta.Capture{CameraMake: "Apple"}}
	cfg.Merger = merger
	cfg.Entities = fakeExtractor{hints: &deep.Hints{
		Products: []string{"The Silent Patient"},
		People:   []string{"Alex Michaelides"},
	}}

	r := NewRunner(cfg)
	res, err := r.Analyze(context.Background(), Upload{Bytes: []byte("img"), MIME: "image/jpeg"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.RunID == "" {
		t.Fatal("expected a run ID")
	}
	if res.OCRState != ocr.StateSucceeded {
		t.Fatalf("unexpected OCR state %s", res.OCRState)
	}
	if res.OCRText != "The Silent Patient by Alex Michaelides" {
		t.Fatalf("unexpected OCR text %q", res.OCRText)
	}
	if res.ContentType != "Book" {
		t.Fatalf("expected Book, got %s", res.ContentType)
	}
	if len(res.Intents) == 0 || len(res.Actions) == 0 {
		t.Fatal("expected resolved intents and actions")
	}
	if len(res.Errors.Advisories()) != 0 {
		t.Fatalf("expected no advisories, got %v", res.Errors.Advisories())
	}
	if res.Duration <= 0 {
		t.Fatal("expected a positive run duration")
	}

	// The merge must see the joined evidence from the concurrent stages.
	if merger.seen.OCRText != res.OCRText || len(merger.seen.Tags.Tags) != 1 {
		t.Fatalf("merge evidence not joined: %+v", merger.seen)
	}
}

func TestAnalyzeFlagsOCRTimeout(t *testing.T) {
	t.Parallel()

	pending := &fakeOCR{result: ocr.PollResult{Status: ocr.StatusPending}}
	cfg := testConfig(pending, fakeTagger{tags: vision.Tags{Tags: []string{"product"}}})

	r := NewRunner(cfg)
	res, err := r.Analyze(context.Background(), Upload{Bytes: []byte("img")})
	if err != nil {
		t.Fatalf("a timed-out OCR job must not abort the run: %v", err)
	}
	if res.OCRState != ocr.StateTimedOut {
		t.Fatalf("expected timed_out, got %s", res.OCRState)
	}
	if !res.Errors.OCR.Failed {
		t.Fatal("expected the OCR flag to be set")
	}
	// Classification proceeds on the surviving vision signal.
	if res.ContentType != "Product" {
		t.Fatalf("expected Product from tags alone, got %s", res.ContentType)
	}
}

func TestAnalyzeFlagsVisionFailure(t *testing.T) {
	t.Parallel()

	cfg := testConfig(
		succeedingOCR("Doors at 8:00pm", "tickets $15"),
		fakeTagger{err: errors.New("service unavailable")},
	)

	r := NewRunner(cfg)
	res, err := r.Analyze(context.Background(), Upload{Bytes: []byte("img")})
	if err != nil {
		t.Fatalf("a failed vision stage must not abort the run: %v", err)
	}
	if !res.Errors.Vision.Failed {
		t.Fatal("expected the vision flag to be set")
	}
	if res.ContentType != "EventFlyer" {
		t.Fatalf("expected EventFlyer from OCR text alone, got %s", res.ContentType)
	}
}

func TestAnalyzeFlagsLLMFailureAndFallsBack(t *testing.T) {
	t.Parallel()

	cfg := testConfig(
		succeedingOCR("plain text"),
		fakeTagger{tags: vision.Tags{Tags: []string{"clothing"}}},
	)
	cfg.Merger = &fakeMerger{err: errors.New("model overloaded")}
	cfg.Entities = fakeExtractor{err: errors.New("model overloaded")}

	r := NewRunner(cfg)
	res, err := r.Analyze(context.Background(), Upload{Bytes: []byte("img")})
	if err != nil {
		t.Fatalf("a failed model pass must not abort the run: %v", err)
	}
	if !res.Errors.LLM.Failed {
		t.Fatal("expected the LLM flag to be set")
	}
	if res.Deep != nil || res.Hints != nil {
		t.Fatal("expected no advisory outputs")
	}
	if res.ContentType != "Clothing" {
		t.Fatalf("expected the deterministic classifier to decide, got %s", res.ContentType)
	}
}

func TestAnalyzeSurvivesEveryStageFailing(t *testing.T) {
	t.Parallel()

	cfg := Config{
		Meta:         fakeMeta{err: errors.New("no exif block")},
		OCR:          &fakeOCR{submitErr: errors.New("submit refused")},
		Vision:       fakeTagger{err: errors.New("tagging down")},
		Merger:       &fakeMerger{err: errors.New("model down")},
		Entities:     fakeExtractor{err: errors.New("model down")},
		PollInterval: time.Millisecond,
		PollAttempts: 2,
	}

	r := NewRunner(cfg)
	res, err := r.Analyze(context.Background(), Upload{Bytes: []byte("img")})
	if err != nil {
		t.Fatalf("total degradation must still produce a result: %v", err)
	}

	e := res.Errors
	if !e.Metadata.Failed || !e.OCR.Failed || !e.Vision.Failed || !e.LLM.Failed {
		t.Fatalf("expected all four flags set, got %+v", e)
	}
	if len(e.Advisories()) != 4 {
		t.Fatalf("expected four advisories, got %v", e.Advisories())
	}
	if res.ContentType != "Generic" {
		t.Fatalf("expected Generic with no evidence, got %s", res.ContentType)
	}
	if len(res.Intents) == 0 {
		t.Fatal("Generic still resolves intents")
	}
}

func TestAnalyzeGeocodesOnlyWithGPS(t *testing.T) {
	t.Parallel()

	geo := &fakeGeo{place: meta.Place{DisplayName: "Somewhere", Business: "Cafe"}}
	cfg := testConfig(succeedingOCR("x"), fakeTagger{})
	cfg.Meta = fakeMeta{capture: meta.Capture{HasGPS: true, Latitude: 1, Longitude: 2}}
	cfg.Geo = geo

	r := NewRunner(cfg)
	res, err := r.Analyze(context.Background(), Upload{Bytes: []byte("img")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !geo.called {
		t.Fatal("expected a reverse lookup for a GPS capture")
	}
	if res.Place.Business != "Cafe" {
		t.Fatalf("unexpected place: %+v", res.Place)
	}

	// No GPS: the geocoder stays idle and the stage is clean.
	geo2 := &fakeGeo{}
	cfg2 := testConfig(succeedingOCR("x"), fakeTagger{})
	cfg2.Geo = geo2
	res, err = NewRunner(cfg2).Analyze(context.Background(), Upload{Bytes: []byte("img")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if geo2.called {
		t.Fatal("no GPS means no reverse lookup")
	}
	if res.Errors.Metadata.Failed {
		t.Fatal("absent GPS is not a failure")
	}
}

func TestAnalyzeKeepsCaptureWhenGeocodeFails(t *testing.T) {
	t.Parallel()

	cfg := testConfig(succeedingOCR("x"), fakeTagger{})
	cfg.Meta = fakeMeta{capture: meta.Capture{HasGPS: true, Latitude: 1, Longitude: 2, CameraMake: "Apple"}}
	cfg.Geo = &fakeGeo{err: errors.New("nominatim unreachable")}

	res, err := NewRunner(cfg).Analyze(context.Background(), Upload{Bytes: []byte("img")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Errors.Metadata.Failed {
		t.Fatal("expected the metadata flag to be set")
	}
	if res.Capture.CameraMake != "Apple" {
		t.Fatal("the capture itself must survive a geocode failure")
	}
}

func TestAnalyzeNewRunCancelsPrevious(t *testing.T) {
	t.Parallel()

	blocked := &fakeOCR{block: true, started: make(chan struct{})}
	first := NewRunner(testConfig(blocked, fakeTagger{}))

	firstDone := make(chan error, 1)
	go func() {
		_, err := first.Analyze(context.Background(), Upload{Bytes: []byte("first")})
		firstDone <- err
	}()

	<-blocked.started

	// The second run on the same Runner supersedes the first.
	second := succeedingOCR("second image")
	first.cfg.OCR = second
	res, err := first.Analyze(context.Background(), Upload{Bytes: []byte("second")})
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if res.OCRText != "second image" {
		t.Fatalf("unexpected second-run text %q", res.OCRText)
	}

	select {
	case err := <-firstDone:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected the first run to be cancelled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("first run never returned after being superseded")
	}
}

func TestAnalyzeRedactsStageErrorDetails(t *testing.T) {
	t.Parallel()

	cfg := testConfig(succeedingOCR("x"), fakeTagger{})
	cfg.Merger = &fakeMerger{err: errors.New("request failed: api_key=sk-secret-123 status=401")}

	res, err := NewRunner(cfg).Analyze(context.Background(), Upload{Bytes: []byte("img")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(res.Errors.LLM.Detail, "sk-secret-123") {
		t.Fatalf("stage detail leaked a credential: %q", res.Errors.LLM.Detail)
	}
}
