package session

import (
	"regexp"
	"strings"
)

// fallbackGreeting is spoken when neither the tenant config nor the system
// prompt yields an opening line
const fallbackGreeting = "Namaste! Thank you for calling. How can I help you today?"

var (
	// quoted opening line beginning with Namaste
	namasteQuoteRe = regexp.MustCompile(`"(Namaste[^"]+)"`)
	// any quoted string
	quoteRe = regexp.MustCompile(`"([^"]{10,300})"`)
)

// ExtractGreeting synthesizes the initial greeting. Preference order: the
// tenant's explicit welcome message, a quoted "Namaste..." line from the
// system prompt, any quoted string on a prompt line that mentions a greeting
// or welcome, then the hardcoded fallback.
func ExtractGreeting(welcomeMessage, systemPrompt string) string {
	if s := strings.TrimSpace(welcomeMessage); s != "" {
		return s
	}

	if m := namasteQuoteRe.FindStringSubmatch(systemPrompt); m != nil {
		return m[1]
	}

	for _, line := range strings.Split(systemPrompt, "\n") {
		lower := strings.ToLower(line)
		if !strings.Contains(lower, "greeting") && !strings.Contains(lower, "welcome") {
			continue
		}
		if m := quoteRe.FindStringSubmatch(line); m != nil {
			return m[1]
		}
	}

	return fallbackGreeting
}
