package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/haivivi/robocare/pkg/backend"
	"github.com/haivivi/robocare/pkg/chatsession"
	"github.com/haivivi/robocare/pkg/storage"
)

// Service file names within a context.
const (
	ServiceRobocare = "robocare"
	ServiceProfile  = "profile"
)

// Backend kinds.
const (
	BackendHTTP   = "http"
	BackendGemini = "gemini"
	BackendOpenAI = "openai"
)

// Storage kinds for audio and image resources.
const (
	StorageMemory = "memory"
	StorageLocal  = "local"
	StorageS3     = "s3"
)

// Robocare is the robocare.yaml service file.
type Robocare struct {
	// Backend is http (default), gemini or openai.
	Backend string `yaml:"backend,omitempty"`

	// BaseURL is the Robo service URL for the http backend, or an API
	// base URL override for openai.
	BaseURL string `yaml:"base_url,omitempty"`

	APIKey      string  `yaml:"api_key,omitempty"`
	Model       string  `yaml:"model,omitempty"`
	SpeechModel string  `yaml:"speech_model,omitempty"`
	Voice       string  `yaml:"voice,omitempty"`
	Speed       float64 `yaml:"speed,omitempty"`

	// Timeout is the request timeout in seconds.
	Timeout    int `yaml:"timeout,omitempty"`
	MaxRetries int `yaml:"max_retries,omitempty"`

	Language       string `yaml:"language,omitempty"`
	Pipeline       string `yaml:"pipeline,omitempty"`
	Greeting       string `yaml:"greeting,omitempty"`
	RequireProfile bool   `yaml:"require_profile,omitempty"`

	// Storage is memory (default), local or s3.
	Storage    string            `yaml:"storage,omitempty"`
	StorageDir string            `yaml:"storage_dir,omitempty"`
	S3         *storage.S3Config `yaml:"s3,omitempty"`

	// JournalDir defaults to "journal" in the context directory; "off"
	// keeps transcripts in memory only.
	JournalDir string `yaml:"journal_dir,omitempty"`

	// Player is the audio command line; "none" disables playback.
	Player string `yaml:"player,omitempty"`
}

// Validate checks enumerated fields.
func (r *Robocare) Validate() error {
	switch r.Backend {
	case "", BackendHTTP:
		if r.BaseURL == "" {
			return fmt.Errorf("robocare: base_url is required for the http backend")
		}
	case BackendGemini, BackendOpenAI:
		if r.APIKey == "" {
			return fmt.Errorf("robocare: api_key is required for the %s backend", r.Backend)
		}
	default:
		return fmt.Errorf("robocare: unknown backend %q", r.Backend)
	}
	switch r.Storage {
	case "", StorageMemory, StorageLocal:
	case StorageS3:
		if r.S3 == nil || r.S3.Bucket == "" {
			return fmt.Errorf("robocare: s3.bucket is required for s3 storage")
		}
	default:
		return fmt.Errorf("robocare: unknown storage %q", r.Storage)
	}
	if _, err := r.ParsedPipeline(); err != nil {
		return err
	}
	if r.Language != "" {
		if _, ok := backend.NameFor(r.Locale()); !ok {
			return fmt.Errorf("robocare: unsupported language %q", r.Language)
		}
	}
	return nil
}

// Locale returns the configured language as a locale. Language may be a
// name ("tamil") or a locale tag ("ta-IN", "ta").
func (r *Robocare) Locale() string {
	if l, ok := backend.LocaleFor(r.Language); ok {
		return l
	}
	return backend.NormalizeLocale(r.Language)
}

// ParsedPipeline returns the configured query pipeline.
func (r *Robocare) ParsedPipeline() (chatsession.Pipeline, error) {
	p, ok := chatsession.ParsePipeline(r.Pipeline)
	if !ok {
		return p, fmt.Errorf("robocare: unknown pipeline %q", r.Pipeline)
	}
	return p, nil
}

// RequestTimeout returns Timeout as a duration, or the backend default.
func (r *Robocare) RequestTimeout() time.Duration {
	if r.Timeout <= 0 {
		return backend.DefaultTimeout
	}
	return time.Duration(r.Timeout) * time.Second
}

// PlayerCommand returns the player command line, or nil when playback is
// disabled. An empty Player means the default command.
func (r *Robocare) PlayerCommand() (cmd []string, enabled bool) {
	switch strings.TrimSpace(r.Player) {
	case "none", "off":
		return nil, false
	case "":
		return nil, true
	}
	return strings.Fields(r.Player), true
}
