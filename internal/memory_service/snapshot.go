package memory_service

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"slices"
	"time"

	"github.com/lewisedginton/companion_chatbot/internal/vectorindex"
)

// snapshotPath returns the storage path for a user's snapshot. The user ID is
// path-escaped so it always names a single file.
func snapshotPath(userID string) string {
	return fmt.Sprintf("snapshots/%s.json", url.PathEscape(userID))
}

func encodeSnapshot(userID string, st *userState, now time.Time) ([]byte, error) {
	indexData, err := st.index.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to encode index: %w", err)
	}

	snap := Snapshot{
		UserID:    userID,
		Memories:  slices.Clone(st.texts),
		IndexData: hex.EncodeToString(indexData),
		Dimension: st.index.Dimension(),
		UpdatedAt: now.UTC(),
	}
	if snap.Memories == nil {
		snap.Memories = []string{}
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return data, nil
}

// decodeSnapshot rebuilds user state. A text/vector count mismatch is tolerated
// because retrieval filters out-of-range positions.
func decodeSnapshot(data []byte, dim int) (*userState, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	raw, err := hex.DecodeString(snap.IndexData)
	if err != nil {
		return nil, fmt.Errorf("failed to decode index hex: %w", err)
	}
	index, err := vectorindex.Decode(raw)
	if err != nil {
		return nil, err
	}
	if index.Dimension() != dim {
		return nil, fmt.Errorf("%w: snapshot has %d, manager uses %d",
			vectorindex.ErrDimensionMismatch, index.Dimension(), dim)
	}

	return &userState{texts: snap.Memories, index: index}, nil
}
