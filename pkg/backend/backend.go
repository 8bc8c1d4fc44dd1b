// Package backend is the remote side of Robo: profile storage, language
// detection, question answering, speech synthesis and image analysis.
//
// Three implementations are provided. HTTPClient talks to the Robo
// FastAPI service. Gemini and OpenAI call the model providers directly and
// are useful when no service is deployed.
package backend

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoSpeech is returned by Synthesize on backends without TTS.
var ErrNoSpeech = errors.New("backend: speech synthesis not supported")

// Backend is the contract the chat session depends on.
type Backend interface {
	// SaveProfile stores the user's profile so later answers can be
	// personalized.
	SaveProfile(ctx context.Context, p Profile) error

	// DetectLanguage returns the locale tag (e.g. "hi-IN") of text.
	DetectLanguage(ctx context.Context, text string) (string, error)

	// Query answers a question. With WantAudio the answer may carry
	// synthesized speech.
	Query(ctx context.Context, req QueryRequest) (*Answer, error)

	// Synthesize converts text to speech.
	Synthesize(ctx context.Context, text string) (*Speech, error)

	// AnalyzeImage returns a textual analysis of an image.
	AnalyzeImage(ctx context.Context, img Image) (string, error)
}

// Profile is the user context collected before chatting.
type Profile struct {
	Age        string            `json:"age" yaml:"age"`
	Gender     string            `json:"gender" yaml:"gender"`
	Height     string            `json:"height,omitempty" yaml:"height,omitempty"`
	Weight     string            `json:"weight,omitempty" yaml:"weight,omitempty"`
	Profession string            `json:"profession" yaml:"profession"`
	Goal       string            `json:"goal" yaml:"goal"`
	Extra      map[string]string `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// IsZero reports whether no field is set.
func (p Profile) IsZero() bool {
	return p.Age == "" && p.Gender == "" && p.Height == "" && p.Weight == "" &&
		p.Profession == "" && p.Goal == "" && len(p.Extra) == 0
}

// QueryRequest is a question for Query.
type QueryRequest struct {
	Question  string
	WantAudio bool
}

// Answer is the reply to a QueryRequest. Audio is nil when no speech was
// produced.
type Answer struct {
	Text      string
	Audio     []byte
	AudioMIME string
}

// Speech is synthesized audio.
type Speech struct {
	Audio []byte
	MIME  string
}

// Image is an image to analyze.
type Image struct {
	Data     []byte
	MIMEType string
	Filename string
}

// QueryWithSeparateTTS answers req.Question as text, then synthesizes the
// answer with a second call. A synthesis failure fails the whole call.
func QueryWithSeparateTTS(ctx context.Context, b Backend, question string) (*Answer, error) {
	ans, err := b.Query(ctx, QueryRequest{Question: question})
	if err != nil {
		return nil, err
	}
	sp, err := b.Synthesize(ctx, ans.Text)
	if err != nil {
		return nil, fmt.Errorf("synthesize answer: %w", err)
	}
	return &Answer{Text: ans.Text, Audio: sp.Audio, AudioMIME: sp.MIME}, nil
}
