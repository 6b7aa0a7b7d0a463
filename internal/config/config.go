// Package config loads pipeline tuning from an optional YAML file with
// environment-variable overrides. Flags layered on top belong to the CLI.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration for YAML ("1s", "500ms").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the full runtime configuration.
type Config struct {
	Azure struct {
		Endpoint     string  `yaml:"endpoint"`
		Key          string  `yaml:"key"`
		RateLimitRPS float64 `yaml:"rate_limit_rps"`
	} `yaml:"azure"`

	Gemini struct {
		APIKey     string `yaml:"api_key"`
		Model      string `yaml:"model"`
		BaseURL    string `yaml:"base_url"`
		MaxRetries int    `yaml:"max_retries"`
	} `yaml:"gemini"`

	Nominatim struct {
		BaseURL   string `yaml:"base_url"`
		UserAgent string `yaml:"user_agent"`
	} `yaml:"nominatim"`

	Pipeline struct {
		PollInterval Duration `yaml:"poll_interval"`
		PollAttempts int      `yaml:"poll_attempts"`
	} `yaml:"pipeline"`

	// TablesPath optionally replaces the embedded intent/action tables.
	TablesPath string `yaml:"tables_path"`
}

// Default returns the built-in configuration.
func Default() Config {
	var c Config
	c.Gemini.Model = "gemini-2.0-flash"
	c.Gemini.MaxRetries = 2
	c.Nominatim.UserAgent = "snaplens/0.1"
	c.Pipeline.PollInterval = Duration(1 * time.Second)
	c.Pipeline.PollAttempts = 10
	return c
}

// LoadFile overlays a YAML file onto the defaults. A missing path is not an
// error; a present but unreadable/invalid file is.
func LoadFile(path string) (Config, error) {
	c := Default()
	path = strings.TrimSpace(path)
	if path == "" {
		return c, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, fmt.Errorf("parse config file: %w", err)
	}
	return c, nil
}

// ApplyEnv overlays environment variables onto the configuration. Empty
// variables leave the existing value in place.
func (c *Config) ApplyEnv() error {
	setString(&c.Azure.Endpoint, "AZURE_VISION_ENDPOINT")
	setString(&c.Azure.Key, "AZURE_VISION_KEY")
	if err := setFloat(&c.Azure.RateLimitRPS, "AZURE_RATE_LIMIT_RPS"); err != nil {
		return err
	}
	setString(&c.Gemini.APIKey, "GEMINI_API_KEY")
	setString(&c.Gemini.Model, "GEMINI_MODEL")
	setString(&c.Gemini.BaseURL, "GEMINI_BASE_URL")
	if err := setInt(&c.Gemini.MaxRetries, "GEMINI_MAX_RETRIES"); err != nil {
		return err
	}
	setString(&c.Nominatim.BaseURL, "NOMINATIM_BASE_URL")
	setString(&c.Nominatim.UserAgent, "NOMINATIM_USER_AGENT")
	if err := setDuration(&c.Pipeline.PollInterval, "OCR_POLL_INTERVAL"); err != nil {
		return err
	}
	if err := setInt(&c.Pipeline.PollAttempts, "OCR_POLL_ATTEMPTS"); err != nil {
		return err
	}
	setString(&c.TablesPath, "ACTION_TABLES_PATH")
	return nil
}

func setString(dst *string, varName string) {
	if v := strings.TrimSpace(os.Getenv(varName)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, varName string) error {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return nil
	}
	out, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	*dst = out
	return nil
}

func setFloat(dst *float64, varName string) error {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return nil
	}
	out, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	*dst = out
	return nil
}

func setDuration(dst *Duration, varName string) error {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return nil
	}
	out, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	*dst = Duration(out)
	return nil
}
