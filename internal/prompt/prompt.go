// Package prompt builds the final instruction text sent to the completion
// provider from the system prompt, the persona and the assembled memory
// context.
package prompt

import (
	"fmt"
	"slices"
	"strings"

	"github.com/flemzord/membot/internal/settings"
)

// EmojiLine is added when the persona allows emojis.
const EmojiLine = "Feel free to use emojis to make your responses more expressive."

// AssistantMarker opens the assistant turn at the end of every prompt.
const AssistantMarker = "Assistant:"

var lengthGuidance = map[settings.ResponseLength]string{
	settings.LengthShort:  "Keep your responses brief and to the point (1-2 sentences when possible).",
	settings.LengthMedium: "Provide balanced responses with moderate detail.",
	settings.LengthLong:   "Provide detailed and thorough responses when appropriate.",
}

// Input holds everything a prompt is built from.
type Input struct {
	BaseSystemPrompt string
	Persona          settings.Persona
	Context          string
	UserMessage      string
	UserName         string
}

// Build returns the prompt for in. The output is deterministic: optional
// parts are omitted entirely when their setting is empty or disabled.
func Build(in Input) string {
	lines := SystemLines(in.BaseSystemPrompt, in.Persona)

	var b strings.Builder
	b.WriteString(strings.Join(lines, "\n"))

	if ctx := strings.TrimSpace(in.Context); ctx != "" {
		b.WriteString("\n\n")
		b.WriteString(ctx)
	}

	name := in.UserName
	if name == "" {
		name = "User"
	}
	fmt.Fprintf(&b, "\n\nUser (%s): %s\n%s", name, in.UserMessage, AssistantMarker)
	return b.String()
}

// System returns only the system part of the prompt: base prompt and
// persona lines.
func System(base string, p settings.Persona) string {
	return strings.Join(SystemLines(base, p), "\n")
}

// SystemLines returns the base prompt followed by one line per configured
// persona element. The response-length guidance is always last.
func SystemLines(base string, p settings.Persona) []string {
	var lines []string
	if s := strings.TrimSpace(base); s != "" {
		lines = append(lines, s)
	}
	if s := Traits(p.Traits); s != "" {
		lines = append(lines, "Personality traits: "+s)
	}
	if s := strings.TrimSpace(p.CommunicationStyle); s != "" {
		lines = append(lines, "Communication style: "+s)
	}
	if s := strings.TrimSpace(p.Tone); s != "" {
		lines = append(lines, "Tone: "+s)
	}
	if p.UseEmojis {
		lines = append(lines, EmojiLine)
	}
	if p.Roleplay.Enabled && strings.TrimSpace(p.Roleplay.CharacterDescription) != "" {
		lines = append(lines, "Character description: "+strings.TrimSpace(p.Roleplay.CharacterDescription))
	}
	if s := strings.TrimSpace(p.CustomInstructions); s != "" {
		lines = append(lines, "Additional instructions: "+s)
	}
	return append(lines, LengthGuidance(p.ResponseLength))
}

// Traits renders traits as "name: value/10" pairs sorted by name.
func Traits(traits map[string]int) string {
	if len(traits) == 0 {
		return ""
	}
	names := make([]string, 0, len(traits))
	for name := range traits {
		names = append(names, name)
	}
	slices.Sort(names)

	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s: %d/10", name, traits[name])
	}
	return strings.Join(parts, ", ")
}

// LengthGuidance maps a response length to its instruction. Unknown or
// empty lengths get the medium guidance.
func LengthGuidance(l settings.ResponseLength) string {
	if s, ok := lengthGuidance[l]; ok {
		return s
	}
	return lengthGuidance[settings.LengthMedium]
}
