// Package memory_service keeps a semantic memory per user: the texts a user asked
// to remember and an L2 vector index over their embeddings, persisted as one
// snapshot per user.
package memory_service //nolint:revive // var-naming: using underscores for domain clarity

import (
	"time"

	"github.com/lewisedginton/companion_chatbot/internal/vectorindex"
)

// MemoryRecord is one remembered statement and its embedding.
type MemoryRecord struct {
	UserID    string    `json:"user_id"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding,omitempty"`
}

// Snapshot is the persisted form of a user's memory state. IndexData holds the
// hex encoded binary form of the vector index.
type Snapshot struct {
	UserID    string    `json:"user_id"`
	Memories  []string  `json:"memories"`
	IndexData string    `json:"index_data"`
	Dimension int       `json:"dimension"`
	UpdatedAt time.Time `json:"updated_at"`
}

// userState holds texts and index in lockstep: texts[i] belongs to vector i.
type userState struct {
	texts []string
	index *vectorindex.FlatL2
	// unsaved is set when the latest mutation could not be persisted.
	unsaved bool

	// unreadable is set when the stored snapshot could not be read. Saves are
	// refused until a later read succeeds.
	unreadable bool
}

func newUserState(dim int) (*userState, error) {
	index, err := vectorindex.New(dim)
	if err != nil {
		return nil, err
	}
	return &userState{index: index}, nil
}
