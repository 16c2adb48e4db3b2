package core

import "fmt"

// Value is Ben-Or's tri-valued domain V = {0, 1, ?}. Zero and One are
// terminal, decidable values; Unknown only ever appears inside a round's
// Phase-P tally or as a transient confirm value — it is never latched as a
// decision.
type Value int8

const (
	Zero Value = iota
	One
	Unknown
)

// ParseValue maps the wire encoding ("0", "1", "?") to a Value.
func ParseValue(s string) (Value, error) {
	switch s {
	case "0":
		return Zero, nil
	case "1":
		return One, nil
	case "?":
		return Unknown, nil
	default:
		return Unknown, fmt.Errorf("invalid value %q", s)
	}
}

// String renders the wire encoding, matching ParseValue's accepted inputs.
func (v Value) String() string {
	switch v {
	case Zero:
		return "0"
	case One:
		return "1"
	case Unknown:
		return "?"
	default:
		return "?"
	}
}

// IsDecidable reports whether v is a terminal value (0 or 1).
func (v Value) IsDecidable() bool {
	return v == Zero || v == One
}

// MarshalJSON renders Value the way the wire format expects it: the bare
// integer 0 or 1 for decided values, and the string "?" for Unknown, so a
// getState response round-trips through encoding/json without a custom
// envelope type at every call site.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v {
	case Zero:
		return []byte("0"), nil
	case One:
		return []byte("1"), nil
	default:
		return []byte(`"?"`), nil
	}
}

// UnmarshalJSON accepts either a bare 0/1 integer or the "?" string.
func (v *Value) UnmarshalJSON(data []byte) error {
	s := string(data)
	switch s {
	case "0":
		*v = Zero
	case "1":
		*v = One
	case `"?"`:
		*v = Unknown
	default:
		return fmt.Errorf("invalid value literal %q", s)
	}
	return nil
}
