package parse

import (
	"regexp"
	"strings"
)

// Field patterns for the basic extraction sieve. Deliberately low
// precision: these are generic regexes, not semantic parsers.
var fieldPatterns = map[string]*regexp.Regexp{
	"email":  regexp.MustCompile(`(?i)\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
	"phone":  regexp.MustCompile(`(?i)(?:\+?1[-.\s]?)?\(?[0-9]{3}\)?[-.\s]?[0-9]{3}[-.\s]?[0-9]{4}`),
	"date":   regexp.MustCompile(`(?i)\b\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\b|\b\d{4}[/-]\d{1,2}[/-]\d{1,2}\b`),
	"amount": regexp.MustCompile(`(?i)\$\s*\d+(?:,\d{3})*(?:\.\d{2})?|\b\d+(?:,\d{3})*(?:\.\d{2})?\s*(?:USD|EUR|GBP)\b`),
}

// fieldOrder keeps map iteration deterministic for tests and logs.
var fieldOrder = []string{"email", "phone", "date", "amount"}

// ExtractFields runs the prompt-keyword-gated regex pass over text. A
// field is attempted only when its name (or plural) appears as a
// case-insensitive substring of the prompt. One match yields a string,
// several yield a list, none omits the key.
func ExtractFields(text, prompt string) map[string]any {
	fields := map[string]any{}
	promptLower := strings.ToLower(prompt)

	for _, name := range fieldOrder {
		// Substring match also covers plurals ("emails" contains "email").
		if !strings.Contains(promptLower, name) {
			continue
		}
		matches := fieldPatterns[name].FindAllString(text, -1)
		switch {
		case len(matches) == 1:
			fields[name] = matches[0]
		case len(matches) > 1:
			fields[name] = matches
		}
	}
	return fields
}
