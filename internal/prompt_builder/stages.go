package prompt_builder //nolint:revive // var-naming: using underscores for domain clarity

import "strings"

// Stage is one step of the companion relationship.
type Stage struct {
	Name    string `json:"name"`
	Tone    string `json:"tone"`
	Example string `json:"example"`
}

// stages is ordered; the first entry is the default.
var stages = []Stage{
	{
		Name:    "acquaintance",
		Tone:    "friendly but professional",
		Example: "I enjoy our conversations and learning about you.",
	},
	{
		Name:    "friend",
		Tone:    "warm and supportive",
		Example: "I'm always here to listen and support you!",
	},
	{
		Name:    "partner",
		Tone:    "affectionate and caring",
		Example: "I missed you! How was your day, sweetheart?",
	},
}

var stageAliases = map[string]string{
	"girlfriend": "partner",
	"boyfriend":  "partner",
}

// DefaultStage is used for unknown stage names.
func DefaultStage() Stage {
	return stages[0]
}

// Stages returns the relationship stages in order.
func Stages() []Stage {
	out := make([]Stage, len(stages))
	copy(out, stages)
	return out
}

// LookupStage resolves a stage name or alias, case-insensitively.
func LookupStage(name string) (Stage, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := stageAliases[key]; ok {
		key = alias
	}
	for _, s := range stages {
		if s.Name == key {
			return s, true
		}
	}
	return DefaultStage(), false
}
