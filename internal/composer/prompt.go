package composer

import (
	"fmt"
	"strings"

	"github.com/kalambet/pal/internal/history"
	"github.com/kalambet/pal/internal/llm"
	"github.com/kalambet/pal/internal/profile"
)

const (
	genericPreamble = "You are a helpful personal assistant.\n"

	relevantSnippetLen = 60
	recentSnippetLen   = 40
	recentShown        = 2
	ellipsis           = "..."
)

// Composer turns a profile and conversation memory into a completion request.
type Composer struct {
	MaxTokens   int
	Temperature float64
}

// New creates a Composer. Non-positive maxTokens falls back to the default;
// a negative temperature does too.
func New(maxTokens int, temperature float64) *Composer {
	if maxTokens <= 0 {
		maxTokens = llm.DefaultMaxTokens
	}
	if temperature < 0 {
		temperature = llm.DefaultTemperature
	}
	return &Composer{MaxTokens: maxTokens, Temperature: temperature}
}

// Compose builds the request for message. p may be nil.
func (c *Composer) Compose(message string, p *profile.Profile, relevant, recent []history.Record) llm.Request {
	return llm.Request{
		System:      SystemPrompt(p, relevant, recent),
		User:        message,
		MaxTokens:   c.MaxTokens,
		Temperature: c.Temperature,
	}
}

// SystemPrompt renders the system instructions. Without a profile it is the
// generic preamble followed by the memory context.
func SystemPrompt(p *profile.Profile, relevant, recent []history.Record) string {
	memory := MemoryContext(relevant, recent)
	if p == nil {
		return genericPreamble + memory
	}

	family := p.FamilyInfo
	if family == "" {
		family = "Not specified"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "You are a personalized assistant for %s.\n\n", p.Name)
	sb.WriteString("About them:\n")
	fmt.Fprintf(&sb, "- Role: %s\n", p.Role)
	fmt.Fprintf(&sb, "- Work/Study: %s\n", p.WorkArea)
	fmt.Fprintf(&sb, "- Communication style: %s\n", p.CommunicationStyle)
	fmt.Fprintf(&sb, "- Work schedule: %s\n", p.WorkHours)
	fmt.Fprintf(&sb, "- Interests: %s\n", p.Interests)
	fmt.Fprintf(&sb, "- Family: %s\n", family)
	fmt.Fprintf(&sb, "- Areas they want help with: %s\n", strings.Join(p.HelpAreas, ", "))
	sb.WriteString("\n")
	sb.WriteString(memory)
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "Respond in a %s way, considering their background and previous conversations.\n", strings.ToLower(p.CommunicationStyle))
	sb.WriteString("Reference their interests and past discussions when relevant.")
	return sb.String()
}

// MemoryContext renders the relevant and recent conversation blocks. Only the
// last two recent records are shown.
func MemoryContext(relevant, recent []history.Record) string {
	var sb strings.Builder
	if len(relevant) > 0 {
		sb.WriteString("Previous relevant conversations:\n")
		for _, r := range relevant {
			fmt.Fprintf(&sb, "- You previously discussed: '%s'\n", truncate(r.User, relevantSnippetLen))
		}
	}
	if len(recent) > 0 {
		sb.WriteString("\nRecent context:\n")
		if len(recent) > recentShown {
			recent = recent[len(recent)-recentShown:]
		}
		for _, r := range recent {
			fmt.Fprintf(&sb, "- Recent: %s -> %s\n", truncate(r.User, recentSnippetLen), truncate(r.Assistant, recentSnippetLen))
		}
	}
	return sb.String()
}

// truncate keeps the first n runes of s and always appends the ellipsis.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) > n {
		runes = runes[:n]
	}
	return string(runes) + ellipsis
}
