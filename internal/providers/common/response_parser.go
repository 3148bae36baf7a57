package common

import "encoding/json"

type errorEnvelope struct {
	Error json.RawMessage `json:"error"`
}

type errorObject struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// ErrorMessage pulls a human-readable message out of an upstream error body.
// Providers use either {"error": {"message": ...}} or {"error": "..."}; anything
// else is returned truncated.
func ErrorMessage(body []byte) string {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && len(env.Error) > 0 {
		var obj errorObject
		if err := json.Unmarshal(env.Error, &obj); err == nil && obj.Message != "" {
			return obj.Message
		}
		var s string
		if err := json.Unmarshal(env.Error, &s); err == nil && s != "" {
			return s
		}
	}
	return Truncate(string(body), 200)
}

// Truncate cuts s to at most n runes
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
