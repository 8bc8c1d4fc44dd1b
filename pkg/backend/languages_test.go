package backend

import (
	"strings"
	"testing"
)

func TestLocaleFor(t *testing.T) {
	tests := []struct {
		name string
		want string
		ok   bool
	}{
		{"english", "en-IN", true},
		{"Hindi", "hi-IN", true},
		{" kannada ", "kn-IN", true},
		{"tamil", "ta-IN", true},
		{"telugu", "te-IN", true},
		{"malayalam", "ml-IN", true},
		{"klingon", "", false},
	}
	for _, tt := range tests {
		got, ok := LocaleFor(tt.name)
		if got != tt.want || ok != tt.ok {
			t.Errorf("LocaleFor(%q) = %q, %v", tt.name, got, ok)
		}
	}
}

func TestNameFor(t *testing.T) {
	if name, ok := NameFor("hi_in"); !ok || name != "hindi" {
		t.Errorf("NameFor(hi_in) = %q, %v", name, ok)
	}
	if _, ok := NameFor("fr-FR"); ok {
		t.Error("NameFor(fr-FR) ok")
	}
}

func TestNormalizeLocale(t *testing.T) {
	tests := map[string]string{
		"hi-IN":  "hi-IN",
		"HI_in":  "hi-IN",
		"ta":     "ta-IN",
		"en-us":  "en-US",
		"fr":     "fr",
		"":       "",
		" ml-IN": "ml-IN",
	}
	for in, want := range tests {
		if got := NormalizeLocale(in); got != want {
			t.Errorf("NormalizeLocale(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSystemPrompt(t *testing.T) {
	if got := systemPrompt(Profile{}); got != basePrompt {
		t.Errorf("empty profile prompt = %q", got)
	}
	got := systemPrompt(Profile{Age: "34", Goal: "sleep", Extra: map[string]string{"diet": "vegetarian"}})
	for _, want := range []string{"- age: 34", "- goal: sleep", "- diet: vegetarian"} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "gender") {
		t.Errorf("prompt lists unset field:\n%s", got)
	}
}

func TestUnmarshalJSONRepairs(t *testing.T) {
	tests := []string{
		`{"languageCode": "ta-IN"}`,
		"```json\n{\"languageCode\": \"ta-IN\"}\n```",
		`{"languageCode": "ta-IN"`,
		`{'languageCode': 'ta-IN'}`,
	}
	for _, in := range tests {
		var d detection
		if err := unmarshalJSON(in, &d); err != nil {
			t.Errorf("unmarshalJSON(%q): %v", in, err)
			continue
		}
		if d.LanguageCode != "ta-IN" {
			t.Errorf("unmarshalJSON(%q) = %q", in, d.LanguageCode)
		}
	}
}
