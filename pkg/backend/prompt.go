package backend

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
)

const basePrompt = `You are Robo, a friendly multilingual health assistant.
Answer empathetically and concisely, in the language the user wrote in.
Give practical, general wellness guidance. Do not diagnose; suggest seeing a
doctor when symptoms sound serious.`

const detectPrompt = `Identify the language of the user's text. Reply with JSON
{"languageCode": "<locale>"} where locale is one of: %s.
Use en-IN when unsure.`

const imagePrompt = `Describe what this image shows and, if it is related to
health, food, exercise or medicine, give short helpful guidance.`

// profileBox holds the profile shared by the model-backed backends.
type profileBox struct {
	mu sync.RWMutex
	p  Profile
}

func (b *profileBox) set(p Profile) {
	b.mu.Lock()
	b.p = p
	b.mu.Unlock()
}

func (b *profileBox) get() Profile {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.p
}

// systemPrompt returns the answering instructions personalized with p.
func systemPrompt(p Profile) string {
	if p.IsZero() {
		return basePrompt
	}
	var sb strings.Builder
	sb.WriteString(basePrompt)
	sb.WriteString("\n\nAbout the user:\n")
	field := func(name, v string) {
		if v != "" {
			fmt.Fprintf(&sb, "- %s: %s\n", name, v)
		}
	}
	field("age", p.Age)
	field("gender", p.Gender)
	field("height", p.Height)
	field("weight", p.Weight)
	field("profession", p.Profession)
	field("goal", p.Goal)
	for _, k := range slices.Sorted(maps.Keys(p.Extra)) {
		field(k, p.Extra[k])
	}
	return sb.String()
}

func supportedLocales() []string {
	out := make([]string, len(Languages))
	for i, l := range Languages {
		out[i] = l.Locale
	}
	return out
}

func detectionPrompt() string {
	return fmt.Sprintf(detectPrompt, strings.Join(supportedLocales(), ", "))
}
