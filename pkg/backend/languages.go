package backend

import "strings"

// DefaultLocale is the locale a session starts in.
const DefaultLocale = "en-IN"

// Language is a supported conversation language.
type Language struct {
	Name   string
	Locale string
}

// Languages lists the supported languages in menu order.
var Languages = []Language{
	{Name: "english", Locale: "en-IN"},
	{Name: "hindi", Locale: "hi-IN"},
	{Name: "kannada", Locale: "kn-IN"},
	{Name: "tamil", Locale: "ta-IN"},
	{Name: "telugu", Locale: "te-IN"},
	{Name: "malayalam", Locale: "ml-IN"},
}

// LocaleFor returns the locale for a language name (case-insensitive).
func LocaleFor(name string) (string, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, l := range Languages {
		if l.Name == name {
			return l.Locale, true
		}
	}
	return "", false
}

// NameFor returns the language name for a locale.
func NameFor(locale string) (string, bool) {
	locale = NormalizeLocale(locale)
	for _, l := range Languages {
		if l.Locale == locale {
			return l.Name, true
		}
	}
	return "", false
}

// NormalizeLocale canonicalizes a locale tag: "hi_in" and "HI-in" become
// "hi-IN". A bare supported language code ("ta") maps to its Indian locale.
// Unknown tags are returned with only the casing fixed.
func NormalizeLocale(tag string) string {
	tag = strings.ReplaceAll(strings.TrimSpace(tag), "_", "-")
	if tag == "" {
		return ""
	}
	lang, region, hasRegion := strings.Cut(tag, "-")
	lang = strings.ToLower(lang)
	if !hasRegion {
		for _, l := range Languages {
			if strings.HasPrefix(l.Locale, lang+"-") {
				return l.Locale
			}
		}
		return lang
	}
	return lang + "-" + strings.ToUpper(region)
}
