package tickets

import (
	"regexp"
	"strings"
)

// mentionPattern matches @handle tokens. Handles are word characters only;
// punctuation terminates the token, so "@dana," mentions dana.
var mentionPattern = regexp.MustCompile(`@(\w+)`)

// ParseMentions extracts the unique mention handles from a message body, in
// first-occurrence order. Matching is case-insensitive; the returned handles
// are lowercased. The same handle written twice yields one entry.
func ParseMentions(body string) []string {
	matches := mentionPattern.FindAllStringSubmatch(body, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	var handles []string
	for _, m := range matches {
		h := strings.ToLower(m[1])
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		handles = append(handles, h)
	}
	return handles
}
