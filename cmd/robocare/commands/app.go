package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"google.golang.org/genai"

	"github.com/haivivi/robocare/cmd/robocare/internal/config"
	"github.com/haivivi/robocare/pkg/backend"
	"github.com/haivivi/robocare/pkg/chatlog"
	"github.com/haivivi/robocare/pkg/chatsession"
	"github.com/haivivi/robocare/pkg/hostio"
	"github.com/haivivi/robocare/pkg/kv"
	"github.com/haivivi/robocare/pkg/resource"
	"github.com/haivivi/robocare/pkg/storage"
)

// app is a session wired from a context's configuration.
type app struct {
	Context string
	Dir     string
	Config  *config.Robocare

	Backend   backend.Backend
	Resources resource.Factory
	Journal   *chatlog.Journal
	Session   *chatsession.Session

	closers []func() error
}

type appOptions struct {
	// Recognizer nil leaves speech recognition unsupported.
	Recognizer chatsession.Recognizer
	Notifier   chatsession.Notifier

	// Greeting adds the greeting message to a new session.
	Greeting bool

	// NoPlayback forces a NopPlayer.
	NoPlayback bool

	// Player replaces the configured player.
	Player chatsession.Player
}

// loadContext resolves -c and loads robocare.yaml.
func loadContext() (name, dir string, r *config.Robocare, err error) {
	cfg, err := GetConfig()
	if err != nil {
		return "", "", nil, err
	}
	name, dir, err = cfg.ResolveContext(contextName)
	if err != nil {
		return "", "", nil, err
	}
	r, err = config.LoadService[config.Robocare](dir, config.ServiceRobocare)
	if err != nil {
		if errors.Is(err, config.ErrServiceNotFound) {
			return "", "", nil, fmt.Errorf("context %q is not configured; run 'robocare config set %s robocare base_url <url>'", name, name)
		}
		return "", "", nil, err
	}
	if err := r.Validate(); err != nil {
		return "", "", nil, err
	}
	return name, dir, r, nil
}

func newBackend(ctx context.Context, r *config.Robocare) (backend.Backend, error) {
	switch r.Backend {
	case "", config.BackendHTTP:
		opts := []backend.Option{
			backend.WithTimeout(r.RequestTimeout()),
			backend.WithRetry(r.MaxRetries),
		}
		if r.Voice != "" || r.Speed != 0 {
			speed := r.Speed
			if speed == 0 {
				speed = backend.DefaultSpeed
			}
			voice := r.Voice
			if voice == "" {
				voice = backend.DefaultVoice
			}
			opts = append(opts, backend.WithVoice(voice, speed))
		}
		return backend.NewHTTP(r.BaseURL, opts...), nil

	case config.BackendGemini:
		cc := &genai.ClientConfig{APIKey: r.APIKey, Backend: genai.BackendGeminiAPI}
		if r.BaseURL != "" {
			cc.HTTPOptions = genai.HTTPOptions{BaseURL: r.BaseURL}
		}
		client, err := genai.NewClient(ctx, cc)
		if err != nil {
			return nil, fmt.Errorf("create gemini client: %w", err)
		}
		return &backend.Gemini{Client: client, Model: r.Model}, nil

	case config.BackendOpenAI:
		opts := []option.RequestOption{
			option.WithAPIKey(r.APIKey),
			option.WithRequestTimeout(r.RequestTimeout()),
			option.WithMaxRetries(r.MaxRetries),
		}
		if r.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(r.BaseURL))
		}
		client := openai.NewClient(opts...)
		return &backend.OpenAI{
			Client:      &client,
			Model:       r.Model,
			SpeechModel: r.SpeechModel,
			Voice:       r.Voice,
		}, nil
	}
	return nil, fmt.Errorf("unknown backend %q", r.Backend)
}

func newResources(r *config.Robocare, dir string) (resource.Factory, error) {
	switch r.Storage {
	case "", config.StorageMemory:
		return resource.NewMemory(), nil
	case config.StorageLocal:
		root := r.StorageDir
		if root == "" {
			root = filepath.Join(dir, "blobs")
		}
		store, err := storage.NewLocal(root)
		if err != nil {
			return nil, err
		}
		return resource.NewStored(store, "resources"), nil
	case config.StorageS3:
		store, err := storage.DialS3(*r.S3)
		if err != nil {
			return nil, err
		}
		return resource.NewStored(store, "resources"), nil
	}
	return nil, fmt.Errorf("unknown storage %q", r.Storage)
}

// openJournal opens the transcript journal of a context.
func openJournal(r *config.Robocare, dir string) (*chatlog.Journal, kv.Store, error) {
	var (
		store kv.Store
		err   error
	)
	switch r.JournalDir {
	case "off":
		store = kv.NewMemory()
	case "":
		store, err = kv.OpenBadger(kv.BadgerOptions{Dir: filepath.Join(dir, "journal")})
	default:
		store, err = kv.OpenBadger(kv.BadgerOptions{Dir: r.JournalDir})
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open journal: %w", err)
	}
	return chatlog.NewJournal(store), store, nil
}

func newPlayer(r *config.Robocare, res resource.Factory, disabled bool) chatsession.Player {
	command, enabled := r.PlayerCommand()
	if !enabled || disabled {
		return &hostio.NopPlayer{}
	}
	p := hostio.NewCommandPlayer(res, command...)
	if !p.Available() {
		slog.Warn("audio player not found; replies will not be spoken", "command", command)
		return &hostio.NopPlayer{}
	}
	return p
}

// loadProfile returns the saved profile of a context, if any.
func loadProfile(dir string) (backend.Profile, bool, error) {
	p, err := config.LoadService[backend.Profile](dir, config.ServiceProfile)
	if errors.Is(err, config.ErrServiceNotFound) {
		return backend.Profile{}, false, nil
	}
	if err != nil {
		return backend.Profile{}, false, err
	}
	return *p, !p.IsZero(), nil
}

func openApp(ctx context.Context, opts appOptions) (*app, error) {
	name, dir, r, err := loadContext()
	if err != nil {
		return nil, err
	}
	a := &app{Context: name, Dir: dir, Config: r}
	if err := a.open(ctx, opts); err != nil {
		a.Close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *app) open(ctx context.Context, opts appOptions) error {
	var err error
	if a.Backend, err = newBackend(ctx, a.Config); err != nil {
		return err
	}
	if a.Resources, err = newResources(a.Config, a.Dir); err != nil {
		return err
	}
	journal, store, err := openJournal(a.Config, a.Dir)
	if err != nil {
		return err
	}
	a.Journal = journal
	a.closers = append(a.closers, store.Close)

	player := opts.Player
	if player == nil {
		player = newPlayer(a.Config, a.Resources, opts.NoPlayback)
	}
	pipeline, _ := a.Config.ParsedPipeline()
	a.Session, err = chatsession.New(chatsession.Config{
		Greeting:       a.Config.Greeting,
		NoGreeting:     !opts.Greeting,
		Language:       a.Config.Locale(),
		Pipeline:       pipeline,
		RequireProfile: a.Config.RequireProfile,
	}, chatsession.Deps{
		Backend:    a.Backend,
		Player:     player,
		Resources:  a.Resources,
		Recognizer: opts.Recognizer,
		Notifier:   opts.Notifier,
		Journal:    a.Journal,
		Logger:     chatsession.SlogLogger(slog.Default()),
	})
	if err != nil {
		return err
	}
	slog.Debug("session opened", "context", a.Context, "session", a.Session.ID(), "backend", a.Config.Backend)

	profile, ok, err := loadProfile(a.Dir)
	if err != nil {
		return err
	}
	if ok {
		if err := a.Session.SubmitProfile(ctx, profile); err != nil {
			slog.Warn("submit saved profile", "error", err)
		}
	}
	return nil
}

// Close closes the session, then the stores behind it.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.Session != nil {
		errs = append(errs, a.Session.Close(ctx))
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// stderrNotifier prints notices in the chat style.
func stderrNotifier() chatsession.Notifier {
	styles := chatStyles()
	return &hostio.PrintNotifier{W: os.Stderr, Format: styles.RenderNotice}
}
