package backend

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/param"
)

const (
	DefaultOpenAIModel       = "gpt-4o-mini"
	DefaultOpenAISpeechModel = "gpt-4o-mini-tts"
	DefaultOpenAIVoice       = "alloy"
)

// OpenAI answers with the OpenAI chat completions API and synthesizes
// speech with the audio API (mp3).
type OpenAI struct {
	Client *openai.Client

	// Model is the chat model. Empty means DefaultOpenAIModel.
	Model string

	// SpeechModel and Voice configure Synthesize and Query with WantAudio.
	SpeechModel string
	Voice       string

	profile profileBox
}

var _ Backend = (*OpenAI)(nil)

func (o *OpenAI) model() string {
	if o.Model == "" {
		return DefaultOpenAIModel
	}
	return o.Model
}

// SaveProfile keeps p for personalizing later answers.
func (o *OpenAI) SaveProfile(_ context.Context, p Profile) error {
	o.profile.set(p)
	return nil
}

func systemMessage(text string) openai.ChatCompletionMessageParamUnion {
	return openai.ChatCompletionMessageParamUnion{
		OfSystem: &openai.ChatCompletionSystemMessageParam{
			Content: openai.ChatCompletionSystemMessageParamContentUnion{
				OfString: param.NewOpt(text),
			},
		},
	}
}

func userMessage(parts ...openai.ChatCompletionContentPartUnionParam) openai.ChatCompletionMessageParamUnion {
	return openai.ChatCompletionMessageParamUnion{
		OfUser: &openai.ChatCompletionUserMessageParam{
			Content: openai.ChatCompletionUserMessageParamContentUnion{
				OfArrayOfContentParts: parts,
			},
		},
	}
}

// detectionSchema returns the strict output schema for DetectLanguage.
func detectionSchema() (*jsonschema.Schema, error) {
	s, err := jsonschema.For[detection](nil)
	if err != nil {
		return nil, err
	}
	s.AdditionalProperties = &jsonschema.Schema{Not: &jsonschema.Schema{}}
	if p := s.Properties["languageCode"]; p != nil {
		for _, l := range supportedLocales() {
			p.Enum = append(p.Enum, l)
		}
	}
	return s, nil
}

func (o *OpenAI) DetectLanguage(ctx context.Context, text string) (string, error) {
	schema, err := detectionSchema()
	if err != nil {
		return "", fmt.Errorf("openai: detection schema: %w", err)
	}
	params := openai.ChatCompletionNewParams{
		Model: o.model(),
		Messages: []openai.ChatCompletionMessageParamUnion{
			systemMessage(detectionPrompt()),
			userMessage(openai.TextContentPart(text)),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        "language_detection",
					Description: param.NewOpt("Locale of the user's text"),
					Schema:      schema,
					Strict:      param.NewOpt(true),
				},
			},
		},
	}
	out, err := o.complete(ctx, params)
	if err != nil {
		return "", err
	}
	var d detection
	if err := unmarshalJSON(out, &d); err != nil {
		return "", fmt.Errorf("openai: parse detection %q: %w", out, err)
	}
	if d.LanguageCode == "" {
		return "", errors.New("openai: empty languageCode")
	}
	return NormalizeLocale(d.LanguageCode), nil
}

func (o *OpenAI) Query(ctx context.Context, req QueryRequest) (*Answer, error) {
	params := openai.ChatCompletionNewParams{
		Model: o.model(),
		Messages: []openai.ChatCompletionMessageParamUnion{
			systemMessage(systemPrompt(o.profile.get())),
			userMessage(openai.TextContentPart(req.Question)),
		},
	}
	text, err := o.complete(ctx, params)
	if err != nil {
		return nil, err
	}
	ans := &Answer{Text: text}
	if req.WantAudio {
		sp, err := o.Synthesize(ctx, text)
		if err != nil {
			return nil, err
		}
		ans.Audio, ans.AudioMIME = sp.Audio, sp.MIME
	}
	return ans, nil
}

func (o *OpenAI) Synthesize(ctx context.Context, text string) (*Speech, error) {
	model, voice := o.SpeechModel, o.Voice
	if model == "" {
		model = DefaultOpenAISpeechModel
	}
	if voice == "" {
		voice = DefaultOpenAIVoice
	}
	resp, err := o.Client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Input:          text,
		Model:          model,
		Voice:          openai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		return nil, fmt.Errorf("openai: speech: %w", err)
	}
	defer resp.Body.Close()
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai: read speech: %w", err)
	}
	if len(audio) == 0 {
		return nil, errors.New("openai: empty speech")
	}
	return &Speech{Audio: audio, MIME: "audio/mpeg"}, nil
}

func (o *OpenAI) AnalyzeImage(ctx context.Context, img Image) (string, error) {
	if len(img.Data) == 0 {
		return "", errors.New("openai: empty image")
	}
	mime := img.MIMEType
	if mime == "" {
		mime = "image/jpeg"
	}
	url := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
	params := openai.ChatCompletionNewParams{
		Model: o.model(),
		Messages: []openai.ChatCompletionMessageParamUnion{
			systemMessage(systemPrompt(o.profile.get())),
			userMessage(
				openai.TextContentPart(imagePrompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: url}),
			),
		},
	}
	return o.complete(ctx, params)
}

func (o *OpenAI) complete(ctx context.Context, params openai.ChatCompletionNewParams) (string, error) {
	resp, err := o.Client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: no choices")
	}
	choice := resp.Choices[0]
	if choice.Message.Refusal != "" {
		return "", fmt.Errorf("openai: blocked: %s", choice.Message.Refusal)
	}
	text := strings.TrimSpace(choice.Message.Content)
	if text == "" {
		return "", errors.New("openai: empty response")
	}
	return text, nil
}
