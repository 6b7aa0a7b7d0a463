package deep

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"strings"

	"google.golang.org/genai"
)

// Config configures the Gemini-backed analyzer.
type Config struct {
	APIKey string
	Model  string

	// BaseURL overrides the Gemini API base URL. Useful for proxies/testing.
	BaseURL string

	// MaxRetries bounds extra attempts for transient failures (429/5xx/net
	// timeouts). Zero means a single attempt.
	MaxRetries int

	Logger *log.Logger
}

// GeminiAnalyzer implements Merger and EntityExtractor against the Gemini API.
type GeminiAnalyzer struct {
	client     *genai.Client
	model      string
	maxRetries int
	logger     *log.Logger
}

// NewGeminiAnalyzer constructs the analyzer. APIKey and Model are required.
func NewGeminiAnalyzer(ctx context.Context, cfg Config) (*GeminiAnalyzer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("GEMINI_MODEL is required")
	}

	cc := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		cc.HTTPOptions.BaseURL = strings.TrimSpace(cfg.BaseURL)
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}
	return &GeminiAnalyzer{
		client:     client,
		model:      strings.TrimSpace(cfg.Model),
		maxRetries: cfg.MaxRetries,
		logger:     cfg.Logger,
	}, nil
}

var resultOutputSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"content_type": {Type: genai.TypeString},
		"intents":      {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		"actions":      {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		"explanation":  {Type: genai.TypeString},
	},
	Required: []string{"content_type", "intents", "actions", "explanation"},
}

var hintsOutputSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"event":    {Type: genai.TypeString},
		"people":   {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		"products": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		"websites": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		"places":   {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		"dates":    {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		"prices":   {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
	},
}

// Merge builds the bounded deep-analysis prompt and parses the structured
// reply. Errors (transport or parse) are advisory: the caller records them
// and proceeds on the deterministic path.
func (g *GeminiAnalyzer) Merge(ctx context.Context, ev Evidence) (*Result, error) {
	reply, err := g.generate(ctx, mergeSystemPrompt, buildEvidencePrompt(ev.Truncated()), 0.4, resultOutputSchema)
	if err != nil {
		return nil, err
	}
	out, err := parseResult(reply)
	if err != nil {
		if g.logger != nil {
			g.logger.Printf("deep: discarding unparsable merge reply: %v", err)
		}
		return nil, err
	}
	return out, nil
}

// Extract runs the entity-extraction pass over the same bounded evidence.
func (g *GeminiAnalyzer) Extract(ctx context.Context, ev Evidence) (*Hints, error) {
	reply, err := g.generate(ctx, entitySystemPrompt, buildEvidencePrompt(ev.Truncated()), 0.2, hintsOutputSchema)
	if err != nil {
		return nil, err
	}
	out, err := parseHints(reply)
	if err != nil {
		if g.logger != nil {
			g.logger.Printf("deep: discarding unparsable entity reply: %v", err)
		}
		return nil, err
	}
	return out, nil
}

func (g *GeminiAnalyzer) generate(ctx context.Context, system, user string, temperature float32, schema *genai.Schema) (string, error) {
	var reply string
	err := withRetry(ctx, g.maxRetries, func(ctx context.Context) error {
		resp, err := g.client.Models.GenerateContent(
			ctx,
			g.model,
			genai.Text(user),
			&genai.GenerateContentConfig{
				SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
				Temperature:       genai.Ptr(temperature),
				CandidateCount:    1,
				ResponseMIMEType:  "application/json",
				ResponseSchema:    schema,
			},
		)
		if err != nil {
			return classifyErr(err)
		}
		reply = resp.Text()
		return nil
	})
	return reply, err
}

const mergeSystemPrompt = `You are an intelligent image analysis agent. Your job is to analyze image-derived data and determine what the image is likely about, what the user might want, and suggest meaningful actions.

You will receive:
- OCR text (from a flyer, sign, product, article, etc.)
- Vision tags and objects (from image analysis)
- Capture metadata (location, timestamp, etc.)

Return structured JSON with:
{
  "content_type": string,
  "intents": [string],
  "actions": [string],
  "explanation": string
}`

const entitySystemPrompt = `You are an assistant that extracts structured information from OCR text, capture metadata, and visual object labels. Your job is to identify people, places, events, prices, dates, products, and websites. Respond with a JSON object with labeled fields and lists. Use empty strings and empty lists for anything not present.`

func buildEvidencePrompt(ev Evidence) string {
	visionJSON, _ := json.Marshal(ev.Tags)
	metaJSON, _ := json.Marshal(struct {
		Timestamp   string `json:"timestamp,omitempty"`
		CameraMake  string `json:"camera_make,omitempty"`
		CameraModel string `json:"camera_model,omitempty"`
		Location    string `json:"location,omitempty"`
		Business    string `json:"business,omitempty"`
	}{
		Timestamp:   formatTimestamp(ev),
		CameraMake:  ev.Capture.CameraMake,
		CameraModel: ev.Capture.CameraModel,
		Location:    ev.Place.DisplayName,
		Business:    ev.Place.Business,
	})

	var b strings.Builder
	b.WriteString("OCR Text:\n")
	b.WriteString(ev.OCRText)
	b.WriteString("\n\nVision Tags/Objects:\n")
	b.Write(visionJSON)
	b.WriteString("\n\nCapture Metadata:\n")
	b.Write(metaJSON)
	return b.String()
}

func formatTimestamp(ev Evidence) string {
	if ev.Capture.Timestamp.IsZero() {
		return ""
	}
	return ev.Capture.Timestamp.Format("2006-01-02T15:04:05Z07:00")
}

// TransientError marks a model failure as retryable.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	if e == nil || e.Err == nil {
		return "transient error"
	}
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func classifyErr(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == 429 || apiErr.Code/100 == 5 {
			return &TransientError{Err: err}
		}
		return err
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &TransientError{Err: err}
	}
	return err
}
