// Package prompt_builder assembles the companion's system prompt from the
// relationship stage, retrieved memories, the user's mood and personality traits.
package prompt_builder //nolint:revive // var-naming: using underscores for domain clarity

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"text/template"

	"github.com/lewisedginton/companion_chatbot/internal/sentiment"
	"github.com/lewisedginton/companion_chatbot/internal/storage_manager"
)

const (
	// NoMemories replaces the memory list when nothing was retrieved.
	NoMemories = "No previous memories."
	// DefaultTrait is used when no personality traits are given.
	DefaultTrait = "caring"

	// TemplatePath is where LoadBuilder looks for a template override.
	TemplatePath = "system_prompt.tmpl"
)

// DefaultTemplate is the built-in system prompt.
const DefaultTemplate = `You are a caring AI companion speaking in a {{.Tone}} manner.

Context:
• Relationship: {{.Stage}}
• User's Mood: {{.Emotion}} ({{.Confidence}}% confidence)
• Previous Interactions:
{{.MemoryText}}

Remember to:
1. Be natural and engaging
2. Match the appropriate tone for our {{.Stage}} relationship
3. Keep responses concise and meaningful
4. Show emotional awareness
5. Stay consistent in personality
6. Let these personality traits come through: {{.Traits}}

Your response should be warm yet appropriate for our current relationship stage.`

// PromptData is the value a prompt template is executed with.
type PromptData struct {
	Tone       string
	Example    string
	Stage      string
	Emotion    string
	Confidence int
	Memories   []string
	MemoryText string
	Traits     string
}

// Builder renders prompts with a fixed template.
type Builder struct {
	tmpl *template.Template
}

var defaultBuilder = MustNew(DefaultTemplate)

// Default returns the builder for the built-in template.
func Default() *Builder {
	return defaultBuilder
}

// New parses a prompt template. Templates see a PromptData value.
func New(text string) (*Builder, error) {
	tmpl, err := template.New("system_prompt").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt template: %w", err)
	}
	return &Builder{tmpl: tmpl}, nil
}

// MustNew is New that panics on a bad template.
func MustNew(text string) *Builder {
	b, err := New(text)
	if err != nil {
		panic(err)
	}
	return b
}

// LoadBuilder reads TemplatePath from provider and falls back to the built-in
// template when the file does not exist.
func LoadBuilder(ctx context.Context, provider storage_manager.FileProvider) (*Builder, error) {
	data, err := provider.Read(ctx, TemplatePath)
	if errors.Is(err, storage_manager.ErrNotFound) {
		return defaultBuilder, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt template: %w", err)
	}
	return New(string(data))
}

// BuildPrompt renders the built-in template. The same inputs always produce the same prompt.
func BuildPrompt(stage string, memories []string, mood sentiment.Summary, traits []string) string {
	return defaultBuilder.Build(stage, memories, mood, traits)
}

// Build renders the builder's template. Unknown stages take the default stage's
// tone but keep their own name in the text.
func (b *Builder) Build(stage string, memories []string, mood sentiment.Summary, traits []string) string {
	var out strings.Builder
	if err := b.tmpl.Execute(&out, NewPromptData(stage, memories, mood, traits)); err != nil {
		// a broken override degrades to the built-in prompt
		if b != defaultBuilder {
			return defaultBuilder.Build(stage, memories, mood, traits)
		}
		panic(err)
	}
	return out.String()
}

// NewPromptData formats the prompt inputs.
func NewPromptData(stage string, memories []string, mood sentiment.Summary, traits []string) PromptData {
	info, _ := LookupStage(stage)

	emotion, confidence := mood.DominantLabel, mood.Confidence
	if emotion == "" {
		emotion, confidence = sentiment.NeutralLabel, 1.0
	}
	emotion = strings.TrimPrefix(emotion, "LABEL_")

	memoryText := NoMemories
	if len(memories) > 0 {
		lines := make([]string, len(memories))
		for i, m := range memories {
			lines[i] = "• " + m
		}
		memoryText = strings.Join(lines, "\n")
	}

	var cleaned []string
	for _, t := range traits {
		if t = strings.TrimSpace(t); t != "" {
			cleaned = append(cleaned, t)
		}
	}
	traitText := DefaultTrait
	if len(cleaned) > 0 {
		traitText = strings.Join(cleaned, ", ")
	}

	return PromptData{
		Tone:       info.Tone,
		Example:    info.Example,
		Stage:      stage,
		Emotion:    emotion,
		Confidence: int(math.RoundToEven(confidence * 100)),
		Memories:   memories,
		MemoryText: memoryText,
		Traits:     traitText,
	}
}
