package backend

import (
	"encoding/json"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// unmarshalJSON decodes model output into v. Models often wrap JSON in
// markdown fences or leave it unterminated, so syntax errors are retried
// after jsonrepair.
func unmarshalJSON(data string, v any) error {
	data = strings.TrimSpace(data)
	data = strings.TrimPrefix(data, "```json")
	data = strings.TrimPrefix(data, "```")
	data = strings.TrimSuffix(data, "```")
	err := json.Unmarshal([]byte(data), v)
	if err == nil {
		return nil
	}
	if _, ok := err.(*json.SyntaxError); ok {
		fixed, err := jsonrepair.JSONRepair(data)
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(fixed), v)
	}
	return err
}

// detection is the JSON shape models are asked to return for language
// detection.
type detection struct {
	LanguageCode string `json:"languageCode" jsonschema:"BCP-47 locale of the text, e.g. hi-IN"`
}
