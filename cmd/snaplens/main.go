package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/snaplens/snaplens/internal/actions"
	"github.com/snaplens/snaplens/internal/azure"
	"github.com/snaplens/snaplens/internal/config"
	"github.com/snaplens/snaplens/internal/deep"
	"github.com/snaplens/snaplens/internal/exif"
	"github.com/snaplens/snaplens/internal/metrics"
	"github.com/snaplens/snaplens/internal/nominatim"
	"github.com/snaplens/snaplens/internal/pipeline"
	"github.com/snaplens/snaplens/internal/redact"
	"github.com/snaplens/snaplens/internal/reencode"
	"github.com/snaplens/snaplens/internal/version"
	"github.com/snaplens/snaplens/internal/vision"
)

func main() {
	ctx := context.Background()

	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	switch os.Args[1] {
	case "help", "-h", "--help":
		usage(os.Stdout)
		return
	case "version":
		fmt.Println(version.Current)
		return
	case "analyze":
		os.Exit(runAnalyze(ctx, os.Args[2:]))
	default:
		_, _ = fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		usage(os.Stderr)
		os.Exit(2)
	}
}

func runAnalyze(ctx context.Context, args []string) int {
	// Best effort: a missing .env file is fine.
	_ = godotenv.Load()

	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	imagePath := fs.String("image", "", "Path of the image file to analyze")
	configPath := fs.String("config", "", "Optional YAML config file path")
	pollInterval := fs.Duration("poll-interval", 0, "OCR poll interval override (env: OCR_POLL_INTERVAL)")
	pollAttempts := fs.Int("poll-attempts", 0, "OCR poll attempt budget override (env: OCR_POLL_ATTEMPTS)")
	noDeep := fs.Bool("no-deep", false, "Skip the language-model passes")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *imagePath == "" {
		_, _ = fmt.Fprintln(os.Stderr, "analyze requires --image")
		return 2
	}

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", redact.Secrets(err.Error()))
		return 2
	}
	if err := cfg.ApplyEnv(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", redact.Secrets(err.Error()))
		return 2
	}
	if *pollInterval > 0 {
		cfg.Pipeline.PollInterval = config.Duration(*pollInterval)
	}
	if *pollAttempts > 0 {
		cfg.Pipeline.PollAttempts = *pollAttempts
	}

	logger := log.New(os.Stderr, "", log.LstdFlags)

	image, err := os.ReadFile(*imagePath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "read image: %s\n", err)
		return 2
	}

	azureClient, err := azure.NewClient(cfg.Azure.Endpoint, cfg.Azure.Key, cfg.Azure.RateLimitRPS)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "azure config error: %s\n", redact.Secrets(err.Error()))
		return 2
	}

	runnerCfg := pipeline.Config{
		Meta: exif.Extractor{},
		Geo: &nominatim.Client{
			BaseURL:   cfg.Nominatim.BaseURL,
			UserAgent: cfg.Nominatim.UserAgent,
		},
		OCR: azureClient,
		Vision: &vision.RetryTagger{
			Tagger:    azureClient,
			Reencoder: reencode.JPEG{},
			Logger:    logger,
		},
		PollInterval: time.Duration(cfg.Pipeline.PollInterval),
		PollAttempts: cfg.Pipeline.PollAttempts,
		Logger:       logger,
		Metrics:      metrics.NewPipeline(prometheus.DefaultRegisterer),
	}

	if !*noDeep {
		analyzer, err := deep.NewGeminiAnalyzer(ctx, deep.Config{
			APIKey:     cfg.Gemini.APIKey,
			Model:      cfg.Gemini.Model,
			BaseURL:    cfg.Gemini.BaseURL,
			MaxRetries: cfg.Gemini.MaxRetries,
			Logger:     logger,
		})
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "gemini config error: %s\n", redact.Secrets(err.Error()))
			return 2
		}
		runnerCfg.Merger = analyzer
		runnerCfg.Entities = analyzer
	}

	if cfg.TablesPath != "" {
		tables, err := actions.LoadTablesFile(cfg.TablesPath)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "tables error: %s\n", err)
			return 2
		}
		runnerCfg.Resolver = actions.NewResolverWithTables(*tables)
	}

	runner := pipeline.NewRunner(runnerCfg)
	result, err := runner.Analyze(ctx, pipeline.Upload{
		Bytes: image,
		MIME:  reencode.InferMIMEType(*imagePath),
	})
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "analyze failed: %s\n", redact.Secrets(err.Error()))
		return 1
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "encode result: %s\n", err)
		return 1
	}
	fmt.Println(string(out))

	for _, advisory := range result.Errors.Advisories() {
		_, _ = fmt.Fprintf(os.Stderr, "note: %s\n", advisory)
	}
	return 0
}

func usage(w *os.File) {
	_, _ = fmt.Fprintf(w, `snaplens: turn a photo into suggested real-world actions

Usage:
  snaplens <command> [flags]

Commands:
  analyze  Analyze one local image and print the result JSON
  version  Print the release version

Examples:
  snaplens analyze --image flyer.jpg
  snaplens analyze --image receipt.png --no-deep

Environment:
  AZURE_VISION_ENDPOINT  Computer Vision resource endpoint (required)
  AZURE_VISION_KEY       Computer Vision subscription key (required)
  AZURE_RATE_LIMIT_RPS   Global request rate limit, 0 disables
  GEMINI_API_KEY         Gemini API key (required unless --no-deep)
  GEMINI_MODEL           Gemini model name
  GEMINI_BASE_URL        Optional base URL override (proxies/testing)
  OCR_POLL_INTERVAL      OCR poll interval (default 1s)
  OCR_POLL_ATTEMPTS      OCR poll attempt budget (default 10)
  ACTION_TABLES_PATH     Optional YAML file replacing the intent/action tables

A .env file in the working directory is loaded if present.

`)
}
