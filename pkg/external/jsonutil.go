package external

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoJSON is returned when a model response carries no decodable JSON value.
var ErrNoJSON = errors.New("no JSON value in response")

// StripCodeFences removes markdown code fence lines from a model response.
func StripCodeFences(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, ln := range lines {
		if strings.HasPrefix(strings.TrimSpace(ln), "```") {
			continue
		}
		out = append(out, ln)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// ExtractJSON returns the first complete JSON object or array found in a model
// response. Braces inside JSON strings and surrounding prose are tolerated.
func ExtractJSON(response string) (json.RawMessage, error) {
	s := StripCodeFences(strings.TrimSpace(response))
	if s == "" {
		return nil, ErrNoJSON
	}

	for i := 0; i < len(s); i++ {
		if s[i] != '{' && s[i] != '[' {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(s[i:]))
		dec.UseNumber()
		var raw json.RawMessage
		if err := dec.Decode(&raw); err == nil && len(raw) > 0 {
			return raw, nil
		}
	}
	return nil, ErrNoJSON
}

// DecodeJSON extracts the first JSON value of a response into v.
func DecodeJSON(response string, v any) error {
	raw, err := ExtractJSON(response)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}
