package sources

import (
	"regexp"
	"strings"
)

// maxHeadlineLen bounds each sanitized line before it is allowed near
// the reasoning-service prompt.
const maxHeadlineLen = 220

// injectionPattern matches lines that look like instruction injection
// smuggled into scraped content.
var injectionPattern = regexp.MustCompile(`(?i)\b(ignore|disregard|system prompt|pretend|act as|new instruction|you are now)\b`)

// fencePattern strips fenced code blocks wholesale; scraped text has no
// business shipping executable-looking blocks into the prompt.
var fencePattern = regexp.MustCompile("(?s)```.*?```")

// SanitizeText cleans one piece of externally-sourced free text:
// fenced blocks removed, injection-looking lines dropped, length bounded.
func SanitizeText(text string) string {
	text = fencePattern.ReplaceAllString(text, "")

	var kept []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if injectionPattern.MatchString(line) {
			continue
		}
		kept = append(kept, line)
	}

	out := strings.Join(kept, " ")
	// Bound length in runes so a cut never leaves half a UTF-8 sequence.
	if runes := []rune(out); len(runes) > maxHeadlineLen {
		out = string(runes[:maxHeadlineLen])
	}
	return strings.TrimSpace(out)
}

// Sanitize applies SanitizeText to every headline, dropping the ones
// that end up empty.
func Sanitize(headlines []Headline) []Headline {
	out := make([]Headline, 0, len(headlines))
	for _, h := range headlines {
		title := SanitizeText(h.Title)
		if title == "" {
			continue
		}
		out = append(out, Headline{
			Source: h.Source,
			Title:  title,
			Detail: SanitizeText(h.Detail),
		})
	}
	return out
}
