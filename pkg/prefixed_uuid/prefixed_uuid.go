// Package prefixed_uuid provides identifiers of the form "prefix-uuid", so an
// ID names its kind ("chat-3f2b...") while storage keeps the bare UUID.
package prefixed_uuid //nolint:revive // var-naming: using underscores for domain clarity

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidFormat is returned for strings that are not "prefix-uuid".
var ErrInvalidFormat = errors.New("invalid prefixed UUID")

// PrefixedUUID represents a UUID with a prefix string.
type PrefixedUUID struct {
	Prefix string
	UUID   uuid.UUID
}

// New creates a PrefixedUUID with a random UUID. The prefix must not contain '-'.
func New(prefix string) PrefixedUUID {
	return PrefixedUUID{
		Prefix: prefix,
		UUID:   uuid.New(),
	}
}

// FromUUID creates a PrefixedUUID from an existing UUID and prefix.
func FromUUID(prefix string, id uuid.UUID) PrefixedUUID {
	return PrefixedUUID{
		Prefix: prefix,
		UUID:   id,
	}
}

// FromString parses "prefix-uuid". The prefix ends at the first '-'.
func FromString(s string) (PrefixedUUID, error) {
	prefix, rest, ok := strings.Cut(s, "-")
	if !ok || prefix == "" {
		return PrefixedUUID{}, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
	}

	parsed, err := uuid.Parse(rest)
	if err != nil {
		return PrefixedUUID{}, fmt.Errorf("%w: %q: %w", ErrInvalidFormat, s, err)
	}
	// uuid.Parse also accepts urn: and braced forms; only the canonical form round-trips
	if parsed.String() != strings.ToLower(rest) {
		return PrefixedUUID{}, fmt.Errorf("%w: %q is not canonical", ErrInvalidFormat, s)
	}

	return PrefixedUUID{Prefix: prefix, UUID: parsed}, nil
}

// Parse parses s and requires the given prefix.
func Parse(prefix, s string) (PrefixedUUID, error) {
	id, err := FromString(s)
	if err != nil {
		return PrefixedUUID{}, err
	}
	if id.Prefix != prefix {
		return PrefixedUUID{}, fmt.Errorf("%w: want prefix %q, got %q", ErrInvalidFormat, prefix, id.Prefix)
	}
	return id, nil
}

// String returns the prefixed UUID in the format "prefix-uuid".
func (p PrefixedUUID) String() string {
	return p.Prefix + "-" + p.UUID.String()
}

// IsZero returns true if the PrefixedUUID is uninitialized (zero value).
func (p PrefixedUUID) IsZero() bool {
	return p.Prefix == "" && p.UUID == uuid.Nil
}

// MarshalText implements encoding.TextMarshaler, so JSON and YAML see a string.
func (p PrefixedUUID) MarshalText() ([]byte, error) {
	if p.IsZero() {
		return []byte{}, nil
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty text yields the zero value.
func (p *PrefixedUUID) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*p = PrefixedUUID{}
		return nil
	}
	parsed, err := FromString(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
