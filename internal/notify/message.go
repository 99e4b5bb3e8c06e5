package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/helllo-ai/voice-bridge/internal/llm"
	"github.com/helllo-ai/voice-bridge/internal/tokens"
)

// componentKeys are the four labeled slots of the customer template
var componentKeys = []string{"body_1", "body_2", "body_3", "body_4"}

// customerSystemInstruction drives the 4-component customer message. The
// model may answer with labeled BODY_N sections or a JSON object with the
// four keys; both are accepted downstream.
const customerSystemInstruction = `You are an exceptional copywriter creating WhatsApp messages for a receptionist AI system. You will receive a call type and the critical details captured during the call. Produce exactly four labeled components:

BODY_1: the customer's name if present in the details, otherwise "there". Just the name or greeting, nothing else.
BODY_2: a warm one-line acknowledgment of the call context with at most two emojis.
BODY_3: every critical detail from the call, formatted clearly and concisely.
BODY_4: a personality-driven closing line matched to the business context.

Return either the four labeled sections (BODY_1: ... BODY_4:) or a JSON object with keys body_1, body_2, body_3, body_4. No newlines inside a component.`

// GenerateCustomerMessage asks the model for the four customer message
// components and records the generation usage into the accumulator. Any
// failure falls back to default components.
func GenerateCustomerMessage(ctx context.Context, client *llm.Client, callType string, keyDetails map[string]string, acc *tokens.Accumulator) map[string]string {
	prompt := fmt.Sprintf(
		"Create a WhatsApp notification message for a %s call with the following details:\n\n%s\nProvide exactly four components labeled BODY_1 through BODY_4.",
		callType, renderDetails(keyDetails))

	text, usage, err := client.GenerateText(ctx, customerSystemInstruction, prompt)
	if acc != nil {
		acc.AddWhatsappTokens(usage, client.GenModel())
	}
	if err != nil {
		return DefaultComponents()
	}

	return ValidateComponents(ParseComponents(text))
}

func renderDetails(keyDetails map[string]string) string {
	if len(keyDetails) == 0 {
		return "No additional details were captured.\n"
	}
	keys := make([]string, 0, len(keyDetails))
	for k := range keyDetails {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(keyDetails[k])
		b.WriteString("\n")
	}
	return b.String()
}

// ParseComponents extracts the four body components from the model output,
// accepting either a JSON object or labeled BODY_N sections
func ParseComponents(text string) map[string]string {
	if raw := llm.ExtractJSON(text); raw != nil {
		var decoded map[string]any
		if err := json.Unmarshal(raw, &decoded); err == nil {
			components := make(map[string]string, len(componentKeys))
			for _, key := range componentKeys {
				if v, ok := decoded[key]; ok && v != nil {
					components[key] = fmt.Sprintf("%v", v)
				}
			}
			if len(components) > 0 {
				return components
			}
		}
	}

	return parseLabeled(text)
}

func parseLabeled(text string) map[string]string {
	components := make(map[string]string)

	var currentKey string
	var content []string
	flush := func() {
		if currentKey != "" && len(content) > 0 {
			components[currentKey] = strings.Join(content, " ")
		}
		content = nil
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		matched := false
		for _, key := range componentKeys {
			label := strings.ToUpper(key) + ":"
			if strings.HasPrefix(strings.ToUpper(line), label) {
				flush()
				currentKey = key
				if rest := strings.TrimSpace(line[len(label):]); rest != "" {
					content = append(content, rest)
				}
				matched = true
				break
			}
		}
		if !matched && currentKey != "" {
			content = append(content, line)
		}
	}
	flush()

	return components
}

// ValidateComponents fills defaults for any missing component
func ValidateComponents(components map[string]string) map[string]string {
	if components == nil {
		components = make(map[string]string)
	}
	defaults := DefaultComponents()
	for _, key := range componentKeys {
		if strings.TrimSpace(components[key]) == "" {
			components[key] = defaults[key]
		}
	}
	return components
}

// DefaultComponents returns the fallback customer message
func DefaultComponents() map[string]string {
	return map[string]string{
		"body_1": "there",
		"body_2": "Thank you for your inquiry.",
		"body_3": "We've received your message and will follow up shortly.",
		"body_4": "We look forward to serving you soon!",
	}
}

// OwnerComponents builds the fixed-slot owner message: customer phone, call
// type, summary, and a pipe-joined rendering of the remaining details
func OwnerComponents(customerPhone, callType, summary string, keyDetails map[string]string) map[string]string {
	return map[string]string{
		"body_1": orDefault(customerPhone, "Unknown number"),
		"body_2": orDefault(callType, "Unknown"),
		"body_3": orDefault(summary, "No summary available"),
		"body_4": FormatOwnerDetails(keyDetails),
	}
}

// FormatOwnerDetails renders key details as pipe-separated "Key: value"
// pairs, excluding the summary key (already carried in its own slot)
func FormatOwnerDetails(keyDetails map[string]string) string {
	keys := make([]string, 0, len(keyDetails))
	for k := range keyDetails {
		if k == "summary" {
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return "No additional details available"
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s: %s", titleKey(k), keyDetails[k]))
	}
	return strings.Join(pairs, " | ")
}

func titleKey(k string) string {
	words := strings.Split(strings.ReplaceAll(k, "_", " "), " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
