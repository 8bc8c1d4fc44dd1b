package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/genai"
)

// DefaultGeminiModel is used when Gemini.Model is empty.
const DefaultGeminiModel = "gemini-2.0-flash"

// Gemini answers with Google Gemini. It has no speech synthesis: Query
// ignores WantAudio and Synthesize returns ErrNoSpeech.
type Gemini struct {
	Client *genai.Client

	// Model should not start with "models/". Empty means DefaultGeminiModel.
	Model string

	profile profileBox
}

var _ Backend = (*Gemini)(nil)

// SaveProfile keeps p for personalizing later answers.
func (g *Gemini) SaveProfile(_ context.Context, p Profile) error {
	g.profile.set(p)
	return nil
}

func (g *Gemini) DetectLanguage(ctx context.Context, text string) (string, error) {
	locales := supportedLocales()
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(detectionPrompt(), genai.RoleUser),
		ResponseMIMEType:  "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"languageCode": {Type: genai.TypeString, Enum: locales},
			},
			Required: []string{"languageCode"},
		},
	}
	out, err := g.generate(ctx, genai.Text(text), cfg)
	if err != nil {
		return "", err
	}
	var d detection
	if err := unmarshalJSON(out, &d); err != nil {
		return "", fmt.Errorf("gemini: parse detection %q: %w", out, err)
	}
	if d.LanguageCode == "" {
		return "", errors.New("gemini: empty languageCode")
	}
	return NormalizeLocale(d.LanguageCode), nil
}

func (g *Gemini) Query(ctx context.Context, req QueryRequest) (*Answer, error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt(g.profile.get()), genai.RoleUser),
	}
	out, err := g.generate(ctx, genai.Text(req.Question), cfg)
	if err != nil {
		return nil, err
	}
	return &Answer{Text: out}, nil
}

func (g *Gemini) Synthesize(context.Context, string) (*Speech, error) {
	return nil, ErrNoSpeech
}

func (g *Gemini) AnalyzeImage(ctx context.Context, img Image) (string, error) {
	if len(img.Data) == 0 {
		return "", errors.New("gemini: empty image")
	}
	contents := []*genai.Content{{
		Role: genai.RoleUser,
		Parts: []*genai.Part{
			genai.NewPartFromText(imagePrompt),
			genai.NewPartFromBytes(img.Data, img.MIMEType),
		},
	}}
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt(g.profile.get()), genai.RoleUser),
	}
	return g.generate(ctx, contents, cfg)
}

func (g *Gemini) generate(ctx context.Context, contents []*genai.Content, cfg *genai.GenerateContentConfig) (string, error) {
	model := g.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	resp, err := g.Client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		if e, ok := err.(*apierror.APIError); ok {
			err = e.Unwrap()
		}
		return "", fmt.Errorf("gemini: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return "", errors.New("gemini: no candidates")
	}
	c := resp.Candidates[0]
	switch c.FinishReason {
	case genai.FinishReasonStop, genai.FinishReasonUnspecified, "":
	case genai.FinishReasonMaxTokens:
		return "", errors.New("gemini: max tokens")
	default:
		return "", fmt.Errorf("gemini: unexpected finish reason: %s", c.FinishReason)
	}
	if c.Content == nil {
		return "", errors.New("gemini: empty content")
	}
	var sb strings.Builder
	for _, p := range c.Content.Parts {
		if p.Text != "" && !p.Thought {
			sb.WriteString(p.Text)
		}
	}
	if sb.Len() == 0 {
		return "", errors.New("gemini: empty response")
	}
	return strings.TrimSpace(sb.String()), nil
}
