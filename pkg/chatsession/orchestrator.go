package chatsession

import (
	"context"
	"strings"

	"github.com/haivivi/robocare/pkg/backend"
	"github.com/haivivi/robocare/pkg/chatlog"
	"github.com/haivivi/robocare/pkg/resource"
)

// QueryFallback is the reply shown when answering fails.
const QueryFallback = "Sorry, I encountered an error. Please try again."

// Pipeline selects how spoken answers are produced.
type Pipeline int

const (
	// PipelineInline asks Query for text and audio in one call.
	PipelineInline Pipeline = iota

	// PipelineSeparateTTS asks Query for text, then Synthesize for audio.
	PipelineSeparateTTS
)

func (p Pipeline) String() string {
	switch p {
	case PipelineInline:
		return "inline"
	case PipelineSeparateTTS:
		return "separate_tts"
	default:
		return "unknown"
	}
}

// ParsePipeline parses the String form of a Pipeline. Empty means inline.
func ParsePipeline(s string) (Pipeline, bool) {
	switch s {
	case "", "inline":
		return PipelineInline, true
	case "separate_tts", "separate-tts":
		return PipelineSeparateTTS, true
	}
	return PipelineInline, false
}

// Orchestrator runs one question/answer round trip per utterance.
type Orchestrator struct {
	log            *chatlog.Log
	state          *State
	backend        backend.Backend
	speech         *Speech
	playback       *Playback
	logger         Logger
	pipeline       Pipeline
	requireProfile bool
}

// Submit sends utterance to the backend and appends the reply.
//
// Backend failures are not returned: the reply becomes QueryFallback.
// Returned errors are preconditions (ErrEmptyUtterance, ErrBusy,
// ErrProfileRequired) that leave the log untouched.
func (o *Orchestrator) Submit(ctx context.Context, utterance string) error {
	text := strings.TrimSpace(utterance)
	if text == "" {
		return ErrEmptyUtterance
	}
	if o.requireProfile && !o.state.Snapshot().ProfileSubmitted {
		return ErrProfileRequired
	}
	if !o.state.tryAcquire() {
		return ErrBusy
	}
	defer o.state.release()

	o.speech.ResetTranscript()
	o.log.Append(chatlog.SenderUser, chatlog.Text(text))
	o.state.setLoading(true)
	defer o.state.setLoading(false)

	pending, err := o.log.AppendPending(chatlog.SenderBot)
	if err != nil {
		o.logger.ErrorPrintf("append placeholder: %v", err)
		return err
	}

	o.detectLanguage(ctx, text)

	ans, err := o.query(ctx, text)
	if err != nil {
		o.logger.WarnPrintf("query: %v", err)
		o.resolve(pending, chatlog.Result{Content: chatlog.Text(QueryFallback)})
		return nil
	}

	var audio resource.Handle
	if len(ans.Audio) > 0 {
		audio, err = o.playback.Load(ctx, ans.Audio, ans.AudioMIME)
		if err != nil {
			o.logger.WarnPrintf("%v", err)
		}
	}
	o.resolve(pending, chatlog.Result{
		Content:  chatlog.Text(ans.Text),
		Language: o.state.Snapshot().Language,
		Audio:    audio,
	})
	if !audio.IsZero() {
		if err := o.playback.Play(ctx, audio); err != nil {
			o.logger.WarnPrintf("%v", err)
		}
	}
	return nil
}

// detectLanguage updates the session language from text. Failures keep
// the current language.
func (o *Orchestrator) detectLanguage(ctx context.Context, text string) {
	lang, err := o.backend.DetectLanguage(ctx, text)
	if err != nil {
		o.logger.WarnPrintf("detect language: %v", err)
		return
	}
	lang = backend.NormalizeLocale(lang)
	if lang == "" {
		o.logger.WarnPrintf("detect language: empty result")
		return
	}
	if err := o.speech.ChangeLanguage(ctx, lang); err != nil {
		o.logger.WarnPrintf("%v", err)
	}
}

func (o *Orchestrator) query(ctx context.Context, text string) (*backend.Answer, error) {
	if o.pipeline == PipelineSeparateTTS {
		return backend.QueryWithSeparateTTS(ctx, o.backend, text)
	}
	return o.backend.Query(ctx, backend.QueryRequest{Question: text, WantAudio: true})
}

func (o *Orchestrator) resolve(p *chatlog.Pending, r chatlog.Result) {
	if _, err := o.log.ResolvePending(p, r); err != nil {
		o.logger.ErrorPrintf("resolve placeholder: %v", err)
	}
}
