package parse

import (
	"encoding/json"
	"strings"
)

// Request is the inbound call contract. FileURL accepts a plain string, a
// JSON object (or object-in-a-string) carrying the URL under a known key,
// or a list. APIKey and Model are per-call overrides; nil means "use the
// configured credential".
type Request struct {
	Prompt  string  `json:"prompt"`
	FileURL any     `json:"file_url"`
	APIKey  *string `json:"api_key"`
	Model   *string `json:"model"`
}

// urlKeys is the priority order for digging a URL out of an object.
var urlKeys = []string{"url", "file_url", "image_url", "src", "href", "value"}

// ExtractFileURL resolves the file URL from the accepted input shapes,
// recursing into nested objects and lists.
func ExtractFileURL(value any) string {
	switch v := value.(type) {
	case string:
		text := strings.TrimSpace(v)
		if text == "" {
			return ""
		}
		// A JSON-looking string gets one decode attempt.
		if (strings.HasPrefix(text, "{") && strings.HasSuffix(text, "}")) ||
			(strings.HasPrefix(text, "[") && strings.HasSuffix(text, "]")) {
			var decoded any
			if err := json.Unmarshal([]byte(text), &decoded); err == nil {
				return ExtractFileURL(decoded)
			}
		}
		return text

	case map[string]any:
		for _, key := range urlKeys {
			candidate, ok := v[key]
			if !ok {
				continue
			}
			switch c := candidate.(type) {
			case string:
				if s := strings.TrimSpace(c); s != "" {
					return s
				}
			case map[string]any, []any:
				if extracted := ExtractFileURL(c); extracted != "" {
					return extracted
				}
			}
		}
		return ""

	case []any:
		for _, item := range v {
			if extracted := ExtractFileURL(item); extracted != "" {
				return extracted
			}
		}
		return ""
	}
	return ""
}

// AbsolutizeURL turns a relative URL into an absolute one against base.
// Already-absolute URLs pass through; with no base the input is returned
// as-is and fails URL-shape validation downstream.
func AbsolutizeURL(rawURL, base string) string {
	if rawURL == "" {
		return rawURL
	}
	if IsHTTPURL(rawURL) {
		return rawURL
	}
	// Strip quotes if mistakenly included upstream.
	if len(rawURL) >= 2 {
		if (rawURL[0] == '"' && rawURL[len(rawURL)-1] == '"') ||
			(rawURL[0] == '\'' && rawURL[len(rawURL)-1] == '\'') {
			rawURL = rawURL[1 : len(rawURL)-1]
		}
	}
	if !strings.HasPrefix(rawURL, "/") {
		rawURL = "/" + rawURL
	}
	if base == "" {
		return rawURL
	}
	return strings.TrimRight(base, "/") + rawURL
}

// IsHTTPURL reports whether s passes the basic URL-shape validation.
func IsHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// AutoBaseURL discovers a file-host base from the environment snapshot.
// Deployments inject FILES_URL or INTERNAL_FILES_URL; a localhost
// REMOTE_INSTALL_URL is a development heuristic for a local file host.
func AutoBaseURL(getenv func(string) string) string {
	for _, key := range []string{"FILES_URL", "INTERNAL_FILES_URL"} {
		v := getenv(key)
		if IsHTTPURL(v) {
			return strings.TrimRight(v, "/")
		}
	}
	remote := getenv("REMOTE_INSTALL_URL")
	if remote != "" && (strings.Contains(remote, "localhost") || strings.Contains(remote, "127.0.0.1")) {
		return "http://localhost"
	}
	return ""
}
