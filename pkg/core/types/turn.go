package types

import "strings"

// Role identifies who authored a turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Turn is one role-tagged message in a conversation.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// UserTurn returns a user-authored turn.
func UserTurn(text string) Turn { return Turn{Role: RoleUser, Text: text} }

// ModelTurn returns a model-authored turn.
func ModelTurn(text string) Turn { return Turn{Role: RoleModel, Text: text} }

// Recent returns a copy of the last n turns, or all of them when there are fewer.
// A non-positive n returns every turn.
func Recent(turns []Turn, n int) []Turn {
	if n > 0 && len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out
}

// IsBlank reports whether the turn carries no visible text.
func (t Turn) IsBlank() bool {
	return strings.TrimSpace(t.Text) == ""
}
